// Package spatial provides the broad phase: the tile grid indexer that maps
// world positions onto static obstacle cells, and the bucket grid and
// sweep-and-prune structures used to pair up moving bodies.
//
// All structures use preallocated slices with integer indices (not pointers)
// to minimize GC pressure and maximize cache locality.
package spatial

import (
	"errors"
	"fmt"

	"tilecollide/internal/geom"
)

var (
	ErrInvalidCellSize   = errors.New("spatial: cell size must be positive")
	ErrInvalidDimensions = errors.New("spatial: grid width and height must be positive")
)

// GridParams describes a uniform tile grid. Constant for a query session.
type GridParams struct {
	Width    int          `json:"width" yaml:"width"`
	Height   int          `json:"height" yaml:"height"`
	Origin   geom.Vector2 `json:"origin" yaml:"origin"`
	CellSize geom.Vector2 `json:"cellSize" yaml:"cellSize"`
}

// Validate checks the invariants all index math depends on.
func (p GridParams) Validate() error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("%w: got %dx%d", ErrInvalidDimensions, p.Width, p.Height)
	}
	if !(p.CellSize.X > 0) || !(p.CellSize.Y > 0) || !p.CellSize.IsFinite() {
		return fmt.Errorf("%w: got %vx%v", ErrInvalidCellSize, p.CellSize.X, p.CellSize.Y)
	}
	if !p.Origin.IsFinite() {
		return fmt.Errorf("spatial: origin must be finite")
	}
	return nil
}

// Tile is a caller-owned cell handle. ID is the caller's tile kind; Layers
// is an optional bitmask for LayerMask policies.
type Tile struct {
	X      int    `json:"x"`
	Y      int    `json:"y"`
	ID     int    `json:"id"`
	Layers uint32 `json:"layers,omitempty"`
}

// CollisionPolicy decides whether an in-bounds tile blocks movement.
type CollisionPolicy func(Tile) bool

// DefaultCollisionThreshold is the tile ID above which IDAbove's default
// policy treats a tile as solid.
const DefaultCollisionThreshold = 10

// DefaultPolicy treats tiles with ID > 10 as solid.
var DefaultPolicy = IDAbove(DefaultCollisionThreshold)

// IDAbove returns a policy that flags tiles whose ID exceeds threshold.
func IDAbove(threshold int) CollisionPolicy {
	return func(t Tile) bool { return t.ID > threshold }
}

// LayerMask returns a policy that flags tiles sharing any bit with mask.
func LayerMask(mask uint32) CollisionPolicy {
	return func(t Tile) bool { return t.Layers&mask != 0 }
}

// MaxNeighbours is the size of a 3x3 neighbourhood minus its center.
const MaxNeighbours = 8

// Neighbours is a fixed-capacity result of a neighbourhood scan. It is a
// plain value so a scan never touches the heap.
type Neighbours struct {
	boxes [MaxNeighbours]geom.AABB2D
	n     int
}

// Len returns the number of boxes found.
func (n *Neighbours) Len() int { return n.n }

// At returns the i-th box in scan order.
func (n *Neighbours) At(i int) geom.AABB2D { return n.boxes[i] }

// Slice views the found boxes. The view aliases n.
func (n *Neighbours) Slice() []geom.AABB2D { return n.boxes[:n.n] }

func (n *Neighbours) push(b geom.AABB2D) {
	n.boxes[n.n] = b
	n.n++
}

// TileGrid converts world positions into tile lookups. It holds no tile
// state of its own; the tile slice is passed per call and only read, so a
// TileGrid is safe for concurrent use as long as that slice is not being
// written at the same time.
//
// Tile lookups are row-major: tiles[x + y*Width].
type TileGrid struct {
	params  GridParams
	invCell geom.Vector2 // 1/cellSize for faster division
	half    geom.Vector2
}

// NewTileGrid validates params and precomputes the reciprocal cell size.
func NewTileGrid(params GridParams) (*TileGrid, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &TileGrid{
		params:  params,
		invCell: geom.Vector2{X: 1 / params.CellSize.X, Y: 1 / params.CellSize.Y},
		half:    params.CellSize.Scale(0.5),
	}, nil
}

// Params returns the grid parameters.
func (g *TileGrid) Params() GridParams { return g.params }

// CellCount returns Width*Height, the required tile lookup length.
func (g *TileGrid) CellCount() int { return g.params.Width * g.params.Height }

// CellOf returns the cell containing pos, flooring toward negative infinity.
// The result may be outside the grid.
func (g *TileGrid) CellOf(pos geom.Vector2) (x, y int) {
	return pos.Sub(g.params.Origin).Mul(g.invCell).Floor()
}

// Index flattens a cell coordinate.
func (g *TileGrid) Index(x, y int) int {
	return x + y*g.params.Width
}

// InBounds reports whether (x, y) lies in [0,Width) x [0,Height).
func (g *TileGrid) InBounds(x, y int) bool {
	return x >= 0 && x < g.params.Width && y >= 0 && y < g.params.Height
}

// CellAABB returns the world bounds of a cell. Works for out-of-grid cells
// too, which is how boundary walls get their boxes.
func (g *TileGrid) CellAABB(x, y int) geom.AABB2D {
	center := g.params.Origin.Add(geom.Vector2{
		X: (float64(x) + 0.5) * g.params.CellSize.X,
		Y: (float64(y) + 0.5) * g.params.CellSize.Y,
	})
	return geom.AABB2D{
		XMin: center.X - g.half.X,
		XMax: center.X + g.half.X,
		YMin: center.Y - g.half.Y,
		YMax: center.Y + g.half.Y,
	}
}

// Tile returns the tile under pos. ok is false when pos falls outside the
// grid or the lookup is too short to hold that cell; callers never index
// past the slice.
func (g *TileGrid) Tile(pos geom.Vector2, tiles []Tile) (tile Tile, ok bool) {
	x, y := g.CellOf(pos)
	return g.TileAt(x, y, tiles)
}

// TileAt is Tile for a cell coordinate.
func (g *TileGrid) TileAt(x, y int, tiles []Tile) (Tile, bool) {
	if !g.InBounds(x, y) {
		return Tile{}, false
	}
	idx := g.Index(x, y)
	if idx >= len(tiles) {
		return Tile{}, false
	}
	return tiles[idx], true
}

// NeighbourCollisions returns the boxes of the eight cells around pos that
// block movement. Cells outside the grid are always solid; cells inside are
// solid when policy says so (nil means DefaultPolicy). Cells missing from a
// short lookup are treated like cells outside the grid.
//
// Scan order is x outer, y inner, both ascending, so results are
// deterministic. pos itself may lie outside the grid.
func (g *TileGrid) NeighbourCollisions(pos geom.Vector2, tiles []Tile, policy CollisionPolicy) Neighbours {
	var out Neighbours
	cx, cy := g.CellOf(pos)
	for _, d := range neighbourOffsets {
		x, y := cx+d[0], cy+d[1]
		if g.solid(x, y, tiles, policy) {
			out.push(g.CellAABB(x, y))
		}
	}
	return out
}

// AppendNeighbourCollisions is NeighbourCollisions writing into a
// caller-supplied buffer, for callers that batch many bodies.
func (g *TileGrid) AppendNeighbourCollisions(dst []geom.AABB2D, pos geom.Vector2, tiles []Tile, policy CollisionPolicy) []geom.AABB2D {
	cx, cy := g.CellOf(pos)
	for _, d := range neighbourOffsets {
		x, y := cx+d[0], cy+d[1]
		if g.solid(x, y, tiles, policy) {
			dst = append(dst, g.CellAABB(x, y))
		}
	}
	return dst
}

// neighbourOffsets lists the 3x3 ring in scan order: x outer, y inner.
var neighbourOffsets = [MaxNeighbours][2]int{
	{-1, -1}, {-1, 0}, {-1, 1},
	{0, -1}, {0, 1},
	{1, -1}, {1, 0}, {1, 1},
}

func (g *TileGrid) solid(x, y int, tiles []Tile, policy CollisionPolicy) bool {
	tile, ok := g.TileAt(x, y, tiles)
	if !ok {
		return true
	}
	if policy == nil {
		return DefaultPolicy(tile)
	}
	return policy(tile)
}
