package geom

import "math"

// Circle2D is a circle in world space. A circle with Radius <= 0 is
// degenerate and never collides.
type Circle2D struct {
	Center Vector2 `json:"center"`
	Radius float64 `json:"radius"`
}

// Degenerate reports whether the circle has no extent or is not finite.
func (c Circle2D) Degenerate() bool {
	return !(c.Radius > 0) || !isFinite(c.Radius) || !c.Center.IsFinite()
}

// OrientedBox2D is a rectangle with its own orthonormal frame.
// AxisX and AxisY must be unit length and perpendicular; HalfExtents are >= 0.
type OrientedBox2D struct {
	Center      Vector2 `json:"center"`
	AxisX       Vector2 `json:"axisX"`
	AxisY       Vector2 `json:"axisY"`
	HalfExtents Vector2 `json:"halfExtents"`
}

// NewAxisAlignedBox builds an OBB on the world basis.
func NewAxisAlignedBox(center, halfExtents Vector2) OrientedBox2D {
	return OrientedBox2D{
		Center:      center,
		AxisX:       Vector2{X: 1},
		AxisY:       Vector2{Y: 1},
		HalfExtents: halfExtents,
	}
}

// NewRotatedBox builds an OBB rotated by angle radians counter-clockwise.
func NewRotatedBox(center, halfExtents Vector2, angle float64) OrientedBox2D {
	s, c := math.Sincos(angle)
	return OrientedBox2D{
		Center:      center,
		AxisX:       Vector2{X: c, Y: s},
		AxisY:       Vector2{X: -s, Y: c},
		HalfExtents: halfExtents,
	}
}

// ToLocal expresses a world point in the box frame.
func (b OrientedBox2D) ToLocal(p Vector2) Vector2 {
	d := p.Sub(b.Center)
	return Vector2{X: d.Dot(b.AxisX), Y: d.Dot(b.AxisY)}
}

// ToWorld maps a point in the box frame back to world space.
func (b OrientedBox2D) ToWorld(local Vector2) Vector2 {
	return b.Center.Add(b.AxisX.Scale(local.X)).Add(b.AxisY.Scale(local.Y))
}

// Valid reports whether the box satisfies its frame invariants within tol.
func (b OrientedBox2D) Valid(tol float64) bool {
	if !b.Center.IsFinite() || !b.AxisX.IsFinite() || !b.AxisY.IsFinite() || !b.HalfExtents.IsFinite() {
		return false
	}
	if b.HalfExtents.X < 0 || b.HalfExtents.Y < 0 {
		return false
	}
	return math.Abs(b.AxisX.LengthSq()-1) <= tol &&
		math.Abs(b.AxisY.LengthSq()-1) <= tol &&
		math.Abs(b.AxisX.Dot(b.AxisY)) <= tol
}

// AABB2D is an axis-aligned rectangle given by its bounds.
type AABB2D struct {
	XMin float64 `json:"xMin"`
	XMax float64 `json:"xMax"`
	YMin float64 `json:"yMin"`
	YMax float64 `json:"yMax"`
}

// Center returns the midpoint of the box.
func (a AABB2D) Center() Vector2 {
	return Vector2{X: (a.XMin + a.XMax) * 0.5, Y: (a.YMin + a.YMax) * 0.5}
}

// HalfExtents returns half the width and height.
func (a AABB2D) HalfExtents() Vector2 {
	return Vector2{X: (a.XMax - a.XMin) * 0.5, Y: (a.YMax - a.YMin) * 0.5}
}

// Contains reports whether p lies inside or on the boundary.
func (a AABB2D) Contains(p Vector2) bool {
	return p.X >= a.XMin && p.X <= a.XMax && p.Y >= a.YMin && p.Y <= a.YMax
}

// ToOBB wraps the box as an axis-aligned OrientedBox2D.
func (a AABB2D) ToOBB() OrientedBox2D {
	return NewAxisAlignedBox(a.Center(), a.HalfExtents())
}
