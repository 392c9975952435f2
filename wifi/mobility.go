package wifi

import (
	"math"
	"math/rand/v2"

	"github.com/sarchlab/wifictl/sim"
	"gonum.org/v1/gonum/stat/distuv"
)

// Mobility reports where a node is at the current simulated time.
type Mobility interface {
	Position() Vector
}

// ConstantPosition keeps a node at a fixed position.
type ConstantPosition struct {
	pos Vector
}

// NewConstantPosition creates a ConstantPosition at pos.
func NewConstantPosition(pos Vector) *ConstantPosition {
	return &ConstantPosition{pos: pos}
}

// Position returns the fixed position.
func (m *ConstantPosition) Position() Vector {
	return m.pos
}

type walkEvent struct {
	sim.EventBase
}

// RandomWalk2d moves a node at a constant speed along legs of a fixed length.
// Each leg has a uniformly drawn direction. The node bounces off the edges of
// its bounds.
type RandomWalk2d struct {
	engine sim.Engine
	name   string

	bounds    Bounds
	speed     float64
	legLength float64
	direction distuv.Uniform

	base     Vector
	baseTime sim.VTimeInSec
	velocity Vector
	legEnd   sim.VTimeInSec
	legs     int
}

// NewRandomWalk2d creates a random walk starting at start. The walk does not
// move until Start is called.
func NewRandomWalk2d(
	engine sim.Engine,
	name string,
	start Vector,
	bounds Bounds,
	speed float64,
	legLength float64,
	src rand.Source,
) *RandomWalk2d {
	return &RandomWalk2d{
		engine:    engine,
		name:      name,
		bounds:    bounds,
		speed:     speed,
		legLength: legLength,
		direction: distuv.Uniform{Min: 0, Max: 2 * math.Pi, Src: src},
		base:      bounds.clamp(start),
	}
}

// Name returns the name of the walk.
func (m *RandomWalk2d) Name() string {
	return m.name
}

// Legs returns how many legs the walk has started.
func (m *RandomWalk2d) Legs() int {
	return m.legs
}

// Velocity returns the current velocity.
func (m *RandomWalk2d) Velocity() Vector {
	return m.velocity
}

// Start draws the first leg at the current time.
func (m *RandomWalk2d) Start() {
	now := m.engine.CurrentTime()
	m.baseTime = now
	m.startLeg(now)
	m.scheduleNext(now)
}

// Position returns the position at the current simulated time.
func (m *RandomWalk2d) Position() Vector {
	return m.positionAt(m.engine.CurrentTime())
}

func (m *RandomWalk2d) positionAt(t sim.VTimeInSec) Vector {
	dt := float64(t - m.baseTime)
	if dt <= 0 {
		return m.base
	}

	return m.bounds.clamp(m.base.Add(m.velocity.Scale(dt)))
}

// Handle ends a leg or bounces off an edge.
func (m *RandomWalk2d) Handle(e sim.Event) error {
	now := e.Time()
	m.base = m.positionAt(now)
	m.baseTime = now

	if now >= m.legEnd {
		m.startLeg(now)
	} else {
		m.rebound()
	}

	m.scheduleNext(now)

	return nil
}

func (m *RandomWalk2d) startLeg(now sim.VTimeInSec) {
	angle := m.direction.Rand()
	m.velocity = Vector{
		X: m.speed * math.Cos(angle),
		Y: m.speed * math.Sin(angle),
	}
	m.legEnd = now + sim.VTimeInSec(m.legLength/m.speed)
	m.legs++
}

func (m *RandomWalk2d) rebound() {
	const eps = 1e-9

	p := m.base
	if (p.X >= m.bounds.XMax-eps && m.velocity.X > 0) ||
		(p.X <= m.bounds.XMin+eps && m.velocity.X < 0) {
		m.velocity.X = -m.velocity.X
	}

	if (p.Y >= m.bounds.YMax-eps && m.velocity.Y > 0) ||
		(p.Y <= m.bounds.YMin+eps && m.velocity.Y < 0) {
		m.velocity.Y = -m.velocity.Y
	}
}

func (m *RandomWalk2d) scheduleNext(now sim.VTimeInSec) {
	next := m.legEnd

	exit := m.bounds.timeToExit(m.base, m.velocity)
	if hit := now + sim.VTimeInSec(exit); hit < next {
		next = hit
	}

	m.engine.Schedule(&walkEvent{EventBase: sim.MakeEventBase(next, m)})
}
