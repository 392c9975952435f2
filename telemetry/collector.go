// Package telemetry turns cumulative packet counters and node positions into
// per-cycle throughput and distance figures.
package telemetry

import (
	"fmt"

	"github.com/sarchlab/wifictl/wifi"
)

// A Locator reports the current position of a node.
type Locator interface {
	Position() wifi.Vector
}

// A Counter reports the cumulative number of packets a node has received.
type Counter interface {
	Received() uint64
}

// Node groups the accessors the collector needs for one node.
type Node struct {
	Locator Locator
	Counter Counter
}

// StationSample is the telemetry of one station in one cycle.
type StationSample struct {
	Position     wifi.Vector
	Distance     float64
	DLThroughput float64
}

// Throughput converts the packets received between two counter readings into
// Mbps. A counter that went backward is treated as reset, so every packet it
// now reports is counted.
func Throughput(current, last uint64, payloadBytes int) float64 {
	delta := current - last
	if current < last {
		delta = current
	}

	return float64(delta*uint64(payloadBytes)) * 8 / 1e6
}

// Collector keeps the last counter reading of the AP and of every station.
// All readings start at zero, so the first cycle counts every packet received
// since the simulation started.
type Collector struct {
	payloadBytes int
	ap           Node
	stations     []Node

	lastAP       uint64
	lastStations []uint64
}

// NewCollector creates a collector for an AP and its stations.
func NewCollector(ap Node, stations []Node, payloadBytes int) *Collector {
	if payloadBytes <= 0 {
		panic(fmt.Sprintf("telemetry: invalid payload size %d", payloadBytes))
	}

	return &Collector{
		payloadBytes: payloadBytes,
		ap:           ap,
		stations:     stations,
		lastStations: make([]uint64, len(stations)),
	}
}

// ForScenario creates a collector over the AP and stations of s.
func ForScenario(s *wifi.Scenario) *Collector {
	stations := make([]Node, 0, len(s.Stations))
	for _, sta := range s.Stations {
		stations = append(stations, Node{Locator: sta, Counter: sta.Server()})
	}

	return NewCollector(
		Node{Locator: s.AP, Counter: s.AP.Server()},
		stations,
		s.PacketSize(),
	)
}

// NumStations returns the number of stations.
func (c *Collector) NumStations() int {
	return len(c.stations)
}

// PayloadBytes returns the payload size used in the throughput formula.
func (c *Collector) PayloadBytes() int {
	return c.payloadBytes
}

// APPosition returns the current position of the AP.
func (c *Collector) APPosition() wifi.Vector {
	return c.ap.Locator.Position()
}

// BeginCycle reads the AP counter and returns the uplink throughput since the
// previous cycle. It must be called once per cycle.
func (c *Collector) BeginCycle() float64 {
	cur := c.ap.Counter.Received()
	ul := Throughput(cur, c.lastAP, c.payloadBytes)
	c.lastAP = cur

	return ul
}

// Station reads the counter and position of station i. It returns its
// downlink throughput since the previous read and its current distance to
// the AP.
func (c *Collector) Station(i int) StationSample {
	sta := c.stations[i]

	cur := sta.Counter.Received()
	dl := Throughput(cur, c.lastStations[i], c.payloadBytes)
	c.lastStations[i] = cur

	pos := sta.Locator.Position()

	return StationSample{
		Position:     pos,
		Distance:     wifi.Distance(c.ap.Locator.Position(), pos),
		DLThroughput: dl,
	}
}
