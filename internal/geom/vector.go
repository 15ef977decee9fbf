// Package geom provides the small value types shared by the broad and
// narrow collision phases.
//
// Everything here is an immutable value: functions take and return copies
// and never allocate.
package geom

import "math"

// Epsilon is the squared-distance threshold below which two points are
// treated as coincident.
const Epsilon = 1e-12

// Vector2 is a 2D float vector.
type Vector2 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Vec2 is shorthand for Vector2{x, y}.
func Vec2(x, y float64) Vector2 { return Vector2{X: x, Y: y} }

// UnitX is the canonical fallback normal.
var UnitX = Vector2{X: 1}

func (v Vector2) Add(o Vector2) Vector2        { return Vector2{v.X + o.X, v.Y + o.Y} }
func (v Vector2) Sub(o Vector2) Vector2        { return Vector2{v.X - o.X, v.Y - o.Y} }
func (v Vector2) Scale(s float64) Vector2      { return Vector2{v.X * s, v.Y * s} }
func (v Vector2) Mul(o Vector2) Vector2        { return Vector2{v.X * o.X, v.Y * o.Y} }
func (v Vector2) Dot(o Vector2) float64        { return v.X*o.X + v.Y*o.Y }
func (v Vector2) Neg() Vector2                 { return Vector2{-v.X, -v.Y} }
func (v Vector2) LengthSq() float64            { return v.X*v.X + v.Y*v.Y }
func (v Vector2) Length() float64              { return math.Sqrt(v.LengthSq()) }
func (v Vector2) DistanceSq(o Vector2) float64 { return v.Sub(o).LengthSq() }

// Normalize returns v scaled to unit length. A vector whose squared length
// is below Epsilon normalizes to UnitX.
func (v Vector2) Normalize() Vector2 {
	lsq := v.LengthSq()
	if lsq < Epsilon {
		return UnitX
	}
	return v.Scale(1 / math.Sqrt(lsq))
}

// Floor truncates both components toward negative infinity.
func (v Vector2) Floor() (x, y int) {
	return FloorInt(v.X), FloorInt(v.Y)
}

// FloorLimit bounds FloorInt. It is far outside any grid yet leaves room
// to add neighbour offsets without overflowing int.
const FloorLimit = math.MaxInt >> 1

// FloorInt is int(math.Floor(f)) with defined results where the
// conversion is not: NaN maps to -FloorLimit, and values beyond
// ±FloorLimit saturate.
func FloorInt(f float64) int {
	switch {
	case math.IsNaN(f), f <= -FloorLimit:
		return -FloorLimit
	case f >= FloorLimit:
		return FloorLimit
	}
	return int(math.Floor(f))
}

// IsFinite reports whether neither component is NaN or infinite.
func (v Vector2) IsFinite() bool {
	return isFinite(v.X) && isFinite(v.Y)
}

// ApproxEqual compares component-wise within tol.
func (v Vector2) ApproxEqual(o Vector2, tol float64) bool {
	return math.Abs(v.X-o.X) <= tol && math.Abs(v.Y-o.Y) <= tol
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
