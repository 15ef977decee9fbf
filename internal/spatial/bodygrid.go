package spatial

import (
	"math"

	"tilecollide/internal/geom"
)

// BodyGrid buckets moving bodies by cell for radius queries.
// Uses preallocated slices with body indices (not pointers) for GC efficiency.
//
// Optimal cell size equals the largest query radius; with a tile world the
// tile size is a good default since bodies are usually smaller than a tile.
//
// Memory layout: cells are stored in row-major order (cells[row*cols+col]).
// Positions outside the covered area are clamped into the border cells.
type BodyGrid struct {
	origin      geom.Vector2
	cellSize    float64
	invCellSize float64 // 1/cellSize for faster division
	cols, rows  int
	cells       [][]uint32 // cells[row*cols+col] = list of body indices
	scratch     []uint32   // reusable buffer for query results
}

// NewBodyGrid creates a grid covering a width x height area starting at origin.
// maxBodies is used to preallocate cell capacity.
func NewBodyGrid(origin geom.Vector2, width, height, cellSize float64, maxBodies int) *BodyGrid {
	if !(cellSize > 0) {
		cellSize = 1
	}
	cols := int(math.Ceil(width / cellSize))
	rows := int(math.Ceil(height / cellSize))

	// Ensure at least 1x1 grid
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}

	cells := make([][]uint32, cols*rows)
	avgPerCell := maxBodies / len(cells)
	if avgPerCell < 4 {
		avgPerCell = 4
	}
	for i := range cells {
		cells[i] = make([]uint32, 0, avgPerCell)
	}

	return &BodyGrid{
		origin:      origin,
		cellSize:    cellSize,
		invCellSize: 1.0 / cellSize,
		cols:        cols,
		rows:        rows,
		cells:       cells,
		scratch:     make([]uint32, 0, 64),
	}
}

// Clear resets all cells without deallocating underlying memory.
func (g *BodyGrid) Clear() {
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0]
	}
}

// Insert adds a body at pos. id should be the index into the caller's slice.
func (g *BodyGrid) Insert(id uint32, pos geom.Vector2) {
	col, row := g.cellCoord(pos)
	idx := row*g.cols + col
	g.cells[idx] = append(g.cells[idx], id)
}

func (g *BodyGrid) cellCoord(pos geom.Vector2) (col, row int) {
	col = g.clampCol(geom.FloorInt((pos.X - g.origin.X) * g.invCellSize))
	row = g.clampRow(geom.FloorInt((pos.Y - g.origin.Y) * g.invCellSize))
	return col, row
}

func (g *BodyGrid) clampCol(c int) int {
	if c < 0 {
		return 0
	}
	if c >= g.cols {
		return g.cols - 1
	}
	return c
}

func (g *BodyGrid) clampRow(r int) int {
	if r < 0 {
		return 0
	}
	if r >= g.rows {
		return g.rows - 1
	}
	return r
}

// QueryRadius returns all body IDs potentially within radius of center.
//
// IMPORTANT: The returned slice is reused on subsequent calls.
// Copy the results if you need to persist them.
//
// The returned candidates may include bodies outside the radius;
// the caller must perform a precise test (narrow phase).
func (g *BodyGrid) QueryRadius(center geom.Vector2, radius float64) []uint32 {
	g.scratch = g.scratch[:0]

	minCol, minRow := g.cellCoord(geom.Vector2{X: center.X - radius, Y: center.Y - radius})
	maxCol, maxRow := g.cellCoord(geom.Vector2{X: center.X + radius, Y: center.Y + radius})

	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			g.scratch = append(g.scratch, g.cells[row*g.cols+col]...)
		}
	}

	return g.scratch
}

// QueryCell returns all body IDs in the cell containing pos.
func (g *BodyGrid) QueryCell(pos geom.Vector2) []uint32 {
	col, row := g.cellCoord(pos)
	return g.cells[row*g.cols+col]
}

// Stats returns grid statistics for debugging/profiling.
func (g *BodyGrid) Stats() GridStats {
	var total, maxInCell, nonEmpty int
	for _, cell := range g.cells {
		count := len(cell)
		total += count
		if count > maxInCell {
			maxInCell = count
		}
		if count > 0 {
			nonEmpty++
		}
	}

	avg := 0.0
	if nonEmpty > 0 {
		avg = float64(total) / float64(nonEmpty)
	}

	return GridStats{
		TotalCells:     len(g.cells),
		NonEmptyCells:  nonEmpty,
		TotalBodies:    total,
		MaxInCell:      maxInCell,
		AvgPerNonEmpty: avg,
	}
}

// GridStats contains grid statistics for debugging.
type GridStats struct {
	TotalCells     int     `json:"totalCells"`
	NonEmptyCells  int     `json:"nonEmptyCells"`
	TotalBodies    int     `json:"totalBodies"`
	MaxInCell      int     `json:"maxInCell"`
	AvgPerNonEmpty float64 `json:"avgPerNonEmpty"`
}

// Dimensions returns the grid dimensions.
func (g *BodyGrid) Dimensions() (cols, rows int, cellSize float64) {
	return g.cols, g.rows, g.cellSize
}
