package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tilecollide/internal/geom"
	"tilecollide/internal/spatial"
	"tilecollide/internal/world"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "ADMIN_TOKEN",
		"DISABLE_DEBUG_SERVER", "DEBUG_ADDR", "DEBUG_USER", "DEBUG_PASS",
		"TICK_RATE", "MAX_BODIES", "EVENT_LOG_PATH", "WORLD_FILE",
		"GRID_WIDTH", "GRID_HEIGHT", "CELL_SIZE", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg := Load()
	assert.Equal(t, DefaultServer(), cfg.Server)
	assert.Equal(t, DefaultWorld(), cfg.World)
	assert.True(t, cfg.Debug.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("TICK_RATE", "60")
	t.Setenv("CELL_SIZE", "16.5")
	t.Setenv("MAX_BODIES", "not-a-number")
	t.Setenv("CORS_ORIGINS", "http://a.test, ,http://b.test")
	t.Setenv("EVENT_LOG_PATH", "")
	t.Setenv("DISABLE_DEBUG_SERVER", "true")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("ADMIN_TOKEN", "s3cret")

	cfg := Load()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 60, cfg.World.TickRate)
	assert.Equal(t, 16.5, cfg.World.CellSize)
	assert.Equal(t, DefaultWorld().MaxBodies, cfg.World.MaxBodies, "bad ints fall back")
	assert.Empty(t, cfg.World.EventLogPath, "explicit empty path disables the log")
	assert.False(t, cfg.Debug.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "s3cret", cfg.Server.AdminToken)
}

const sampleWorld = `
grid:
  width: 4
  height: 3
  origin: {x: 0, y: 0}
  cellSize: {x: 2, y: 2}
policy:
  threshold: 5
tiles:
  - [6, 6, 6, 6]
  - [6, 0, 0, 6]
  - [6, 6, 6, 6]
bodies:
  - {id: ball, position: {x: 3, y: 3}, velocity: {x: 1, y: 0}, radius: 0.5}
`

func TestParseWorldFile(t *testing.T) {
	wf, err := ParseWorldFile([]byte(sampleWorld))
	require.NoError(t, err)

	assert.Equal(t, spatial.GridParams{Width: 4, Height: 3, CellSize: geom.Vec2(2, 2)}, wf.Grid)
	require.NotNil(t, wf.Policy.Threshold)
	assert.Equal(t, 5, *wf.Policy.Threshold)
	assert.Equal(t, []world.Body{{
		ID:       "ball",
		Position: geom.Vec2(3, 3),
		Velocity: geom.Vec2(1, 0),
		Radius:   0.5,
	}}, wf.Bodies)

	policy := wf.Policy.Policy()
	assert.True(t, policy(spatial.Tile{ID: 6}))
	assert.False(t, policy(spatial.Tile{ID: 5}))

	w, err := world.New(wf.WorldConfig(DefaultWorld()))
	require.NoError(t, err)
	tile, ok := w.TileAt(geom.Vec2(3, 3))
	require.True(t, ok)
	assert.Equal(t, 0, tile.ID)
}

func TestParseWorldFileErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad yaml", "grid: ["},
		{"zero cell", "grid: {width: 2, height: 2, cellSize: {x: 0, y: 1}}"},
		{"short rows", "grid: {width: 2, height: 2, cellSize: {x: 1, y: 1}}\ntiles: [[0, 0]]"},
		{"narrow row", "grid: {width: 2, height: 1, cellSize: {x: 1, y: 1}}\ntiles: [[0]]"},
		{"both policies", "grid: {width: 1, height: 1, cellSize: {x: 1, y: 1}}\npolicy: {threshold: 1, layerMask: 2}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseWorldFile([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestPolicySpecDefaults(t *testing.T) {
	var p PolicySpec
	assert.False(t, p.Policy()(spatial.Tile{ID: 10}))
	assert.True(t, p.Policy()(spatial.Tile{ID: 11}))

	p.LayerMask = 0b100
	assert.True(t, p.Policy()(spatial.Tile{Layers: 0b110}))
	assert.False(t, p.Policy()(spatial.Tile{ID: 99, Layers: 0b011}))
}

func TestLoadWorldFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleWorld), 0o644))

	wf, err := LoadWorldFile(path)
	require.NoError(t, err)
	assert.Len(t, wf.Tiles, 3)

	_, err = LoadWorldFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDefaultWorldFileHasSolidBorder(t *testing.T) {
	wf := DefaultWorldFile(WorldConfig{GridWidth: 4, GridHeight: 3, CellSize: 10})
	require.NoError(t, wf.Validate())

	assert.Equal(t, []int{11, 11, 11, 11}, wf.Tiles[0])
	assert.Equal(t, []int{11, 0, 0, 11}, wf.Tiles[1])
	assert.True(t, wf.Policy.Policy()(spatial.Tile{ID: wf.Tiles[0][0]}))
}
