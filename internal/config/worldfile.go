package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"tilecollide/internal/geom"
	"tilecollide/internal/spatial"
	"tilecollide/internal/world"
)

// ErrPolicyConflict is returned when a world file sets both a threshold
// and a layer mask.
var ErrPolicyConflict = errors.New("config: policy sets both threshold and layerMask")

// PolicySpec selects a tile collision policy. With neither field set the
// default ID threshold applies.
type PolicySpec struct {
	Threshold *int   `yaml:"threshold,omitempty"`
	LayerMask uint32 `yaml:"layerMask,omitempty"`
}

// Policy builds the collision policy.
func (p PolicySpec) Policy() spatial.CollisionPolicy {
	switch {
	case p.LayerMask != 0:
		return spatial.LayerMask(p.LayerMask)
	case p.Threshold != nil:
		return spatial.IDAbove(*p.Threshold)
	default:
		return spatial.DefaultPolicy
	}
}

// WorldFile is the YAML description of a world:
//
//	grid:
//	  width: 4
//	  height: 3
//	  origin: {x: 0, y: 0}
//	  cellSize: {x: 32, y: 32}
//	policy:
//	  threshold: 10
//	tiles:
//	  - [20, 20, 20, 20]
//	  - [20,  0,  0, 20]
//	  - [20, 20, 20, 20]
//	bodies:
//	  - {id: ball, position: {x: 48, y: 48}, velocity: {x: 10, y: 0}, radius: 8}
type WorldFile struct {
	Grid   spatial.GridParams `yaml:"grid"`
	Policy PolicySpec         `yaml:"policy"`
	Tiles  [][]int            `yaml:"tiles"`
	Bodies []world.Body       `yaml:"bodies"`
}

// LoadWorldFile reads and validates a YAML world file.
func LoadWorldFile(path string) (*WorldFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read world file: %w", err)
	}
	wf, err := ParseWorldFile(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return wf, nil
}

// ParseWorldFile decodes and validates a world description.
func ParseWorldFile(data []byte) (*WorldFile, error) {
	var wf WorldFile
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("parse world file: %w", err)
	}
	if err := wf.Validate(); err != nil {
		return nil, err
	}
	return &wf, nil
}

// Validate checks the grid, the policy and the tile rows. Bodies are
// validated when they are added to the world.
func (wf *WorldFile) Validate() error {
	if err := wf.Grid.Validate(); err != nil {
		return err
	}
	if wf.Policy.Threshold != nil && wf.Policy.LayerMask != 0 {
		return ErrPolicyConflict
	}
	if wf.Tiles == nil {
		return nil
	}
	if len(wf.Tiles) != wf.Grid.Height {
		return fmt.Errorf("config: got %d tile rows, grid height is %d", len(wf.Tiles), wf.Grid.Height)
	}
	for y, row := range wf.Tiles {
		if len(row) != wf.Grid.Width {
			return fmt.Errorf("config: tile row %d has %d cells, grid width is %d", y, len(row), wf.Grid.Width)
		}
	}
	return nil
}

// DefaultWorldFile builds an empty grid from cfg ringed by solid tiles.
func DefaultWorldFile(cfg WorldConfig) *WorldFile {
	rows := make([][]int, cfg.GridHeight)
	for y := range rows {
		rows[y] = make([]int, cfg.GridWidth)
		for x := range rows[y] {
			if x == 0 || y == 0 || x == cfg.GridWidth-1 || y == cfg.GridHeight-1 {
				rows[y][x] = spatial.DefaultCollisionThreshold + 1
			}
		}
	}
	return &WorldFile{
		Grid: spatial.GridParams{
			Width:    cfg.GridWidth,
			Height:   cfg.GridHeight,
			Origin:   geom.Vec2(0, 0),
			CellSize: geom.Vec2(cfg.CellSize, cfg.CellSize),
		},
		Tiles: rows,
	}
}

// WorldConfig combines the file with runtime settings.
func (wf *WorldFile) WorldConfig(cfg WorldConfig) world.Config {
	return world.Config{
		Grid:      wf.Grid,
		Tiles:     wf.Tiles,
		Policy:    wf.Policy.Policy(),
		TickRate:  cfg.TickRate,
		MaxBodies: cfg.MaxBodies,
	}
}
