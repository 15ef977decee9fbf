package collision

import (
	"math"

	"tilecollide/internal/geom"
)

// CircleCircle tests two circles for overlap.
//
// Circles touching exactly (distance == rA+rB) overlap with depth 0.
// When the centers coincide within geom.Epsilon the normal is geom.UnitX
// and the depth is the combined radius.
func CircleCircle(a, b geom.Circle2D) (Contact, bool) {
	if a.Degenerate() || b.Degenerate() {
		return Contact{}, false
	}

	delta := b.Center.Sub(a.Center)
	combined := a.Radius + b.Radius
	if !within(delta, combined) {
		return Contact{}, false
	}

	normal, depth := separation(delta, combined)
	return Contact{
		Normal: normal,
		Depth:  depth,
		Point:  a.Center.Add(normal.Scale(a.Radius)),
	}, true
}

// CircleCircleDual is CircleCircle with the contact point on B's surface
// added. It never disagrees with CircleCircle about overlap.
func CircleCircleDual(a, b geom.Circle2D) (DualContact, bool) {
	c, ok := CircleCircle(a, b)
	if !ok {
		return DualContact{}, false
	}
	return DualContact{
		Normal: c.Normal,
		Depth:  c.Depth,
		PointA: c.Point,
		PointB: b.Center.Sub(c.Normal.Scale(b.Radius)),
	}, true
}

// IntersectsCircles is the boolean-only early-out for two circles.
func IntersectsCircles(a, b geom.Circle2D) bool {
	if a.Degenerate() || b.Degenerate() {
		return false
	}
	return within(b.Center.Sub(a.Center), a.Radius+b.Radius)
}

// within reports |delta| <= reach. Squares that overflow fall back to
// math.Hypot so huge but finite inputs still compare correctly.
func within(delta geom.Vector2, reach float64) bool {
	distSq, reachSq := delta.LengthSq(), reach*reach
	if math.IsInf(distSq, 0) || math.IsInf(reachSq, 0) {
		return math.Hypot(delta.X, delta.Y) <= reach
	}
	return distSq <= reachSq
}

// separation turns an offset into a unit normal and a clamped depth.
// Shared by every branch that measures a point distance.
func separation(delta geom.Vector2, reach float64) (geom.Vector2, float64) {
	distSq := delta.LengthSq()
	if distSq < geom.Epsilon {
		return geom.UnitX, clampDepth(reach)
	}
	if !math.IsInf(distSq, 0) {
		dist := math.Sqrt(distSq)
		return delta.Scale(1 / dist), clampDepth(reach - dist)
	}

	// Rescale before normalizing; 1/Inf would zero the normal.
	dist := math.Hypot(delta.X, delta.Y)
	dir := geom.Vector2{X: infSign(delta.X), Y: infSign(delta.Y)}
	if dir == (geom.Vector2{}) {
		m := math.Max(math.Abs(delta.X), math.Abs(delta.Y))
		dir = delta.Scale(1 / m)
	}
	return dir.Normalize(), clampDepth(reach - dist)
}

// infSign is ±1 for an infinite component and 0 otherwise.
func infSign(v float64) float64 {
	switch {
	case math.IsInf(v, 1):
		return 1
	case math.IsInf(v, -1):
		return -1
	}
	return 0
}

// clampDepth keeps depth finite and non-negative.
func clampDepth(d float64) float64 {
	if !(d > 0) {
		return 0
	}
	if math.IsInf(d, 1) {
		return math.MaxFloat64
	}
	return d
}
