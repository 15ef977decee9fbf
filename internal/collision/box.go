package collision

import (
	"math"

	"tilecollide/internal/geom"
)

// insideEpsilon decides whether clamping the circle center to the box
// changed it. Centers within this distance of a face count as inside.
const insideEpsilon = 1e-9

// CircleBox tests a circle against an oriented box.
//
// Outside the box, the normal points from the circle center toward the
// closest point on the box and depth is radius minus that distance.
//
// With the center inside the box (or on its boundary) the closest-point
// offset carries no direction, so the exit face is chosen instead: the face
// nearest the center along the box axes, ties going to +X, -X, +Y, -Y in
// that order. The normal is that face's outward axis and depth is the
// radius plus the distance to the face.
func CircleBox(c geom.Circle2D, box geom.OrientedBox2D) (Contact, bool) {
	if c.Degenerate() || !boxUsable(box) {
		return Contact{}, false
	}

	local := box.ToLocal(c.Center)
	he := box.HalfExtents
	closest := geom.Vector2{
		X: clamp(local.X, -he.X, he.X),
		Y: clamp(local.Y, -he.Y, he.Y),
	}

	if isInside(local, closest) {
		normal, face, faceDist := exitFace(box, local)
		return Contact{
			Normal: normal,
			Depth:  clampDepth(c.Radius + faceDist),
			Point:  c.Center.Add(normal.Scale(c.Radius)),
			Face:   face,
		}, true
	}

	diff := box.ToWorld(closest).Sub(c.Center)
	if !within(diff, c.Radius) {
		return Contact{}, false
	}

	normal, depth := separation(diff, c.Radius)
	return Contact{
		Normal: normal,
		Depth:  depth,
		Point:  c.Center.Add(normal.Scale(c.Radius)),
	}, true
}

// IntersectsCircleBox is the boolean-only form of CircleBox.
func IntersectsCircleBox(c geom.Circle2D, box geom.OrientedBox2D) bool {
	if c.Degenerate() || !boxUsable(box) {
		return false
	}
	local := box.ToLocal(c.Center)
	he := box.HalfExtents
	closest := geom.Vector2{
		X: clamp(local.X, -he.X, he.X),
		Y: clamp(local.Y, -he.Y, he.Y),
	}
	if isInside(local, closest) {
		return true
	}
	return within(box.ToWorld(closest).Sub(c.Center), c.Radius)
}

// exitFace picks the face nearest to a local point inside the box.
// First strictly smaller distance wins, in +X, -X, +Y, -Y order.
func exitFace(box geom.OrientedBox2D, local geom.Vector2) (geom.Vector2, BoxFace, float64) {
	he := box.HalfExtents
	candidates := [4]struct {
		dist float64
		face BoxFace
	}{
		{he.X - local.X, FacePosX},
		{local.X + he.X, FaceNegX},
		{he.Y - local.Y, FacePosY},
		{he.Y + local.Y, FaceNegY},
	}

	best := 0
	for i := 1; i < len(candidates); i++ {
		if candidates[i].dist < candidates[best].dist {
			best = i
		}
	}

	var normal geom.Vector2
	switch candidates[best].face {
	case FacePosX:
		normal = box.AxisX
	case FaceNegX:
		normal = box.AxisX.Neg()
	case FacePosY:
		normal = box.AxisY
	case FaceNegY:
		normal = box.AxisY.Neg()
	}

	// A center a hair outside the face still lands here with a tiny negative distance.
	dist := math.Max(0, candidates[best].dist)
	return normal.Normalize(), candidates[best].face, dist
}

func isInside(local, closest geom.Vector2) bool {
	return math.Abs(local.X-closest.X) <= insideEpsilon &&
		math.Abs(local.Y-closest.Y) <= insideEpsilon
}

func boxUsable(b geom.OrientedBox2D) bool {
	if !b.Center.IsFinite() || !b.AxisX.IsFinite() || !b.AxisY.IsFinite() || !b.HalfExtents.IsFinite() {
		return false
	}
	if b.HalfExtents.X < 0 || b.HalfExtents.Y < 0 {
		return false
	}
	// Axes must carry a direction or the inside normal would not be unit.
	return b.AxisX.LengthSq() >= geom.Epsilon && b.AxisY.LengthSq() >= geom.Epsilon
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
