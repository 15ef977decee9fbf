package spatial

import "fmt"

// NewLookup allocates a row-major tile lookup for the grid with every tile's
// coordinate filled in and ID 0.
func (g *TileGrid) NewLookup() []Tile {
	tiles := make([]Tile, g.CellCount())
	for y := 0; y < g.params.Height; y++ {
		for x := 0; x < g.params.Width; x++ {
			tiles[g.Index(x, y)] = Tile{X: x, Y: y}
		}
	}
	return tiles
}

// LookupFromRows builds a lookup from tile IDs given as rows[y][x].
// Rows must match the grid dimensions exactly.
func (g *TileGrid) LookupFromRows(rows [][]int) ([]Tile, error) {
	if len(rows) != g.params.Height {
		return nil, fmt.Errorf("spatial: got %d tile rows, grid height is %d", len(rows), g.params.Height)
	}
	tiles := g.NewLookup()
	for y, row := range rows {
		if len(row) != g.params.Width {
			return nil, fmt.Errorf("spatial: tile row %d has %d cells, grid width is %d", y, len(row), g.params.Width)
		}
		for x, id := range row {
			tiles[g.Index(x, y)].ID = id
		}
	}
	return tiles, nil
}
