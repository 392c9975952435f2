package wifi

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Medium decides whether a frame reaches its receiver. The received power
// follows a log-distance path loss with Nakagami-m fading, and the frame is
// delivered when its SNR reaches MinSNR.
type Medium struct {
	LossExponent      float64
	ReferenceLoss     float64
	ReferenceDistance float64
	NoiseFloor        float64
	MinSNR            float64

	fading distuv.Gamma
}

// NewMedium creates a medium with the loss parameters of the default
// scenario. Fading draws from src.
func NewMedium(src rand.Source) *Medium {
	return NewMediumWithFading(1.0, src)
}

// NewMediumWithFading creates a medium whose Nakagami shape parameter is m.
// m = 1 gives Rayleigh fading.
func NewMediumWithFading(m float64, src rand.Source) *Medium {
	return &Medium{
		LossExponent:      3.0,
		ReferenceLoss:     40.0459,
		ReferenceDistance: 1.0,
		NoiseFloor:        -93.97,
		MinSNR:            5.0,
		fading:            distuv.Gamma{Alpha: m, Beta: m, Src: src},
	}
}

// PathLoss returns the mean loss in dB over distance d meters.
func (m *Medium) PathLoss(d float64) float64 {
	if d <= m.ReferenceDistance {
		return m.ReferenceLoss
	}

	return m.ReferenceLoss + 10*m.LossExponent*math.Log10(d/m.ReferenceDistance)
}

// RxPower draws the power, in dBm, at which a frame sent at txPower over
// distance d is received.
func (m *Medium) RxPower(txPower, d float64) float64 {
	rx := txPower - m.PathLoss(d)

	gain := m.fading.Rand()
	if gain <= 0 {
		return math.Inf(-1)
	}

	return rx + 10*math.Log10(gain)
}

// Deliver draws whether a frame sent at txPower from `from` reaches `to`.
func (m *Medium) Deliver(txPower float64, from, to Vector) bool {
	return m.RxPower(txPower, Distance(from, to))-m.NoiseFloor >= m.MinSNR
}
