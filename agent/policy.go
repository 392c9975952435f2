package agent

import (
	"math"

	"github.com/sarchlab/wifictl/protocol"
)

// A Policy decides the AP transmit power from the telemetry of one station.
// Decide is called once per exchange, in the order the messages arrive.
type Policy interface {
	Decide(env protocol.EnvironmentMessage) float64
}

// FixedPolicy always answers the same power.
type FixedPolicy struct {
	Power float64
}

// Decide returns p.Power.
func (p FixedPolicy) Decide(protocol.EnvironmentMessage) float64 {
	return p.Power
}

// MeanDownlinkPolicy lowers the AP power as the mean downlink throughput of
// the previous report grows. Messages that share a SimTime form one report.
//
// Until a full report has been seen it answers DefaultPower. Afterwards it
// answers MaxPower * (1 - mean/ReferenceMbps), clamped to
// [MinPower, MaxPower].
type MeanDownlinkPolicy struct {
	MinPower      float64
	MaxPower      float64
	DefaultPower  float64
	ReferenceMbps float64

	reportTime float64
	sum        float64
	count      int
	prevMean   float64
	hasPrev    bool
}

// NewMeanDownlinkPolicy returns a policy in [1, 30] dBm that starts at
// 20 dBm and reaches the minimum at a mean downlink of 100 Mbps.
func NewMeanDownlinkPolicy() *MeanDownlinkPolicy {
	return &MeanDownlinkPolicy{
		MinPower:      1,
		MaxPower:      30,
		DefaultPower:  20,
		ReferenceMbps: 100,
		reportTime:    -1,
	}
}

// Decide records the downlink throughput of env and returns the power.
func (p *MeanDownlinkPolicy) Decide(env protocol.EnvironmentMessage) float64 {
	if env.SimTime != p.reportTime {
		if p.count > 0 {
			p.prevMean = p.sum / float64(p.count)
			p.hasPrev = true
		}

		p.reportTime = env.SimTime
		p.sum = 0
		p.count = 0
	}

	p.sum += env.DLThroughput
	p.count++

	if !p.hasPrev {
		return p.DefaultPower
	}

	power := p.MaxPower - p.MaxPower*p.prevMean/p.ReferenceMbps

	return math.Max(p.MinPower, math.Min(p.MaxPower, power))
}

// PreviousMean returns the mean downlink throughput of the last complete
// report, if there is one.
func (p *MeanDownlinkPolicy) PreviousMean() (float64, bool) {
	return p.prevMean, p.hasPrev
}
