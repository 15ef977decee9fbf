// Package collision implements the narrow phase: exact overlap tests between
// a circle and another circle, and between a circle and an oriented box.
//
// Every test returns (Contact, bool). Degenerate or non-finite input is not
// an error: it resolves to false. A successful test always yields a unit
// normal and a depth >= 0, never NaN.
//
// All functions are pure and allocation-free, so they are safe to call from
// any number of goroutines.
package collision

import "tilecollide/internal/geom"

// BoxFace names the face a deeply penetrating circle exits through.
type BoxFace uint8

const (
	FaceNone BoxFace = iota // Circle center outside the box
	FacePosX
	FaceNegX
	FacePosY
	FaceNegY
)

// String returns the face label used in logs and JSON.
func (f BoxFace) String() string {
	switch f {
	case FacePosX:
		return "+x"
	case FaceNegX:
		return "-x"
	case FacePosY:
		return "+y"
	case FaceNegY:
		return "-y"
	default:
		return "none"
	}
}

// MarshalText lets BoxFace encode as its label.
func (f BoxFace) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// Contact describes a single overlap.
//
// Normal is unit length and points from the first shape toward the second.
// Depth is how far the shapes must move apart along Normal to separate.
// Point lies on the surface of the first shape.
type Contact struct {
	Normal geom.Vector2 `json:"normal"`
	Depth  float64      `json:"depth"`
	Point  geom.Vector2 `json:"point"`
	Face   BoxFace      `json:"face"` // Set only by the circle-box inside branch
}

// Deep reports whether the contact came from a circle whose center was
// inside the box.
func (c Contact) Deep() bool { return c.Face != FaceNone }

// DualContact is a circle-circle contact with a point on each surface.
type DualContact struct {
	Normal geom.Vector2 `json:"normal"`
	Depth  float64      `json:"depth"`
	PointA geom.Vector2 `json:"pointA"`
	PointB geom.Vector2 `json:"pointB"`
}
