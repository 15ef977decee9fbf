package world

import (
	"time"

	"tilecollide/internal/collision"
	"tilecollide/internal/geom"
)

// Body is a moving circle. The world only integrates Position by Velocity;
// it never resolves contacts.
type Body struct {
	ID       string       `json:"id" yaml:"id"`
	Position geom.Vector2 `json:"position" yaml:"position"`
	Velocity geom.Vector2 `json:"velocity" yaml:"velocity"`
	Radius   float64      `json:"radius" yaml:"radius"`
}

// Circle returns the body's collision shape.
func (b Body) Circle() geom.Circle2D {
	return geom.Circle2D{Center: b.Position, Radius: b.Radius}
}

// TileContact is a body overlapping a solid cell or a boundary wall.
type TileContact struct {
	BodyID  string            `json:"bodyId"`
	CellX   int               `json:"cellX"`
	CellY   int               `json:"cellY"`
	Wall    bool              `json:"wall"` // Cell lies outside the grid
	Box     geom.AABB2D       `json:"box"`
	Contact collision.Contact `json:"contact"`
}

// BodyContact is an overlapping pair of bodies. A precedes B in insertion
// order and the normal points from A toward B.
type BodyContact struct {
	A       string                `json:"a"`
	B       string                `json:"b"`
	Contact collision.DualContact `json:"contact"`

	ai, bi uint32 // insertion indices, for ordering
}

// StepReport is an immutable record of one tick. Reports are never mutated
// after publication, so readers may hold them indefinitely.
type StepReport struct {
	Tick         uint64        `json:"tick"`
	Timestamp    time.Time     `json:"timestamp"`
	Duration     time.Duration `json:"durationNs"`
	TilesHash    uint64        `json:"tilesHash"`
	Bodies       []Body        `json:"bodies"`
	TileContacts []TileContact `json:"tileContacts"`
	BodyContacts []BodyContact `json:"bodyContacts"`
}

// ContactCount returns the total number of contacts in the report.
func (r *StepReport) ContactCount() int {
	return len(r.TileContacts) + len(r.BodyContacts)
}
