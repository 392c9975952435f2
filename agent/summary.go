package agent

import "math"

// Summary aggregates the exchanges of a run.
type Summary struct {
	Exchanges   int
	FirstTime   float64
	LastTime    float64
	MeanDL      float64
	MeanUL      float64
	MinDistance float64
	MaxDistance float64

	sumDL, sumUL float64
}

// Add accounts for one exchange.
func (s *Summary) Add(e ExchangeEntry) {
	if s.Exchanges == 0 {
		s.FirstTime, s.LastTime = e.SimTime, e.SimTime
		s.MinDistance, s.MaxDistance = e.Distance, e.Distance
	}

	s.Exchanges++
	s.FirstTime = math.Min(s.FirstTime, e.SimTime)
	s.LastTime = math.Max(s.LastTime, e.SimTime)
	s.MinDistance = math.Min(s.MinDistance, e.Distance)
	s.MaxDistance = math.Max(s.MaxDistance, e.Distance)

	s.sumDL += e.DLThroughput
	s.sumUL += e.ULThroughput
	s.MeanDL = s.sumDL / float64(s.Exchanges)
	s.MeanUL = s.sumUL / float64(s.Exchanges)
}

// Duration returns the simulated time between the first and last exchange.
func (s *Summary) Duration() float64 {
	return s.LastTime - s.FirstTime
}
