// Package wifi provides a small simulated WiFi scenario: nodes with mobility,
// radios whose transmit power can be changed, a lossy shared medium and
// constant-rate UDP traffic. It runs on the sim engine.
package wifi

import (
	"fmt"
	"math"
)

// Vector is a position or a velocity in meters (per second).
type Vector struct {
	X, Y, Z float64
}

// Add returns v + o.
func (v Vector) Add(o Vector) Vector {
	return Vector{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

// Sub returns v - o.
func (v Vector) Sub(o Vector) Vector {
	return Vector{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

// Scale returns v * k.
func (v Vector) Scale(k float64) Vector {
	return Vector{v.X * k, v.Y * k, v.Z * k}
}

// Length returns the euclidean norm of v.
func (v Vector) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

func (v Vector) String() string {
	return fmt.Sprintf("(%g, %g, %g)", v.X, v.Y, v.Z)
}

// Distance returns the distance between a and b.
func Distance(a, b Vector) float64 {
	return a.Sub(b).Length()
}

// Bounds is an axis-aligned rectangle on the XY plane.
type Bounds struct {
	XMin, XMax float64
	YMin, YMax float64
}

// Contains tells whether p lies inside the rectangle, edges included.
func (b Bounds) Contains(p Vector) bool {
	return p.X >= b.XMin && p.X <= b.XMax && p.Y >= b.YMin && p.Y <= b.YMax
}

func (b Bounds) clamp(p Vector) Vector {
	p.X = math.Min(math.Max(p.X, b.XMin), b.XMax)
	p.Y = math.Min(math.Max(p.Y, b.YMin), b.YMax)

	return p
}

// timeToExit returns how long a point at p moving at v stays inside the
// rectangle. It is +Inf when v is zero.
func (b Bounds) timeToExit(p, v Vector) float64 {
	t := math.Inf(1)

	if v.X > 0 {
		t = math.Min(t, (b.XMax-p.X)/v.X)
	} else if v.X < 0 {
		t = math.Min(t, (b.XMin-p.X)/v.X)
	}

	if v.Y > 0 {
		t = math.Min(t, (b.YMax-p.Y)/v.Y)
	} else if v.Y < 0 {
		t = math.Min(t, (b.YMin-p.Y)/v.Y)
	}

	return math.Max(t, 0)
}
