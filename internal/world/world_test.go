package world

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tilecollide/internal/collision"
	"tilecollide/internal/geom"
	"tilecollide/internal/spatial"
)

const tol = 1e-9

func nan() float64 { return math.NaN() }

func newTestWorld(t *testing.T, w, h int, rows [][]int) *World {
	t.Helper()
	world, err := New(Config{
		Grid: spatial.GridParams{
			Origin:   geom.Vec2(0, 0),
			CellSize: geom.Vec2(1, 1),
			Width:    w,
			Height:   h,
		},
		Tiles: rows,
	})
	require.NoError(t, err)
	return world
}

func TestNewRejectsBadGrid(t *testing.T) {
	_, err := New(Config{Grid: spatial.GridParams{CellSize: geom.Vec2(0, 1), Width: 2, Height: 2}})
	assert.ErrorIs(t, err, spatial.ErrInvalidCellSize)

	_, err = New(Config{
		Grid:  spatial.GridParams{CellSize: geom.Vec2(1, 1), Width: 2, Height: 2},
		Tiles: [][]int{{0, 0}},
	})
	assert.Error(t, err)
}

func TestAddBodyValidation(t *testing.T) {
	w := newTestWorld(t, 4, 4, nil)

	b, err := w.AddBody(Body{Position: geom.Vec2(1, 1), Radius: 0.5})
	require.NoError(t, err)
	_, err = uuid.Parse(b.ID)
	assert.NoError(t, err, "empty IDs are assigned a UUID")

	_, err = w.AddBody(Body{ID: b.ID, Position: geom.Vec2(2, 2), Radius: 0.5})
	assert.ErrorIs(t, err, ErrDuplicateBody)

	_, err = w.AddBody(Body{Position: geom.Vec2(1, 1), Radius: 0})
	assert.ErrorIs(t, err, ErrInvalidBody)

	_, err = w.AddBody(Body{Position: geom.Vec2(1, 1), Velocity: geom.Vec2(nan(), 0), Radius: 1})
	assert.ErrorIs(t, err, ErrInvalidBody)

	got, ok := w.Body(b.ID)
	require.True(t, ok)
	assert.Equal(t, b, got)

	require.NoError(t, w.RemoveBody(b.ID))
	assert.ErrorIs(t, w.RemoveBody(b.ID), ErrUnknownBody)
	assert.Empty(t, w.Bodies())
}

func TestAddBodyLimit(t *testing.T) {
	w, err := New(Config{
		Grid:      spatial.GridParams{CellSize: geom.Vec2(1, 1), Width: 4, Height: 4},
		MaxBodies: 1,
	})
	require.NoError(t, err)

	_, err = w.AddBody(Body{ID: "a", Position: geom.Vec2(1, 1), Radius: 0.5})
	require.NoError(t, err)
	_, err = w.AddBody(Body{ID: "b", Position: geom.Vec2(2, 2), Radius: 0.5})
	assert.True(t, errors.Is(err, ErrBodyLimit))
}

func TestStepIntegratesVelocity(t *testing.T) {
	w := newTestWorld(t, 10, 10, nil)
	_, err := w.AddBody(Body{ID: "a", Position: geom.Vec2(5, 5), Velocity: geom.Vec2(1, -2), Radius: 0.25})
	require.NoError(t, err)

	report := w.Step(0.5)
	require.Len(t, report.Bodies, 1)
	assert.True(t, report.Bodies[0].Position.ApproxEqual(geom.Vec2(5.5, 4), tol))
	assert.Equal(t, uint64(1), report.Tick)
	assert.Same(t, report, w.Snapshot())

	// Bad dt still detects but does not move.
	report = w.Step(nan())
	assert.True(t, report.Bodies[0].Position.ApproxEqual(geom.Vec2(5.5, 4), tol))
	assert.Equal(t, uint64(2), report.Tick)
}

func TestStepBoundaryWallContact(t *testing.T) {
	w := newTestWorld(t, 3, 3, nil)
	_, err := w.AddBody(Body{ID: "a", Position: geom.Vec2(0.3, 1.5), Radius: 0.5})
	require.NoError(t, err)

	report := w.Step(0)
	require.Len(t, report.TileContacts, 1)
	tc := report.TileContacts[0]
	assert.Equal(t, "a", tc.BodyID)
	assert.Equal(t, -1, tc.CellX)
	assert.Equal(t, 1, tc.CellY)
	assert.True(t, tc.Wall)
	assert.True(t, tc.Contact.Normal.ApproxEqual(geom.Vec2(-1, 0), tol))
	assert.InDelta(t, 0.2, tc.Contact.Depth, tol)
	assert.Empty(t, report.BodyContacts)
}

func TestStepBodyInsideSolidCell(t *testing.T) {
	rows := make([][]int, 10)
	for y := range rows {
		rows[y] = make([]int, 10)
	}
	rows[5][5] = 20

	w := newTestWorld(t, 10, 10, rows)
	_, err := w.AddBody(Body{ID: "a", Position: geom.Vec2(5.5, 5.5), Radius: 0.2})
	require.NoError(t, err)

	report := w.Step(0)
	require.Len(t, report.TileContacts, 1)
	tc := report.TileContacts[0]
	assert.Equal(t, 5, tc.CellX)
	assert.Equal(t, 5, tc.CellY)
	assert.False(t, tc.Wall)
	assert.Equal(t, collision.FacePosX, tc.Contact.Face)
	assert.True(t, tc.Contact.Normal.ApproxEqual(geom.UnitX, tol))
	assert.InDelta(t, 0.7, tc.Contact.Depth, tol)
}

func TestStepBodyContactsOrdered(t *testing.T) {
	w := newTestWorld(t, 20, 20, nil)
	for _, b := range []Body{
		{ID: "c", Position: geom.Vec2(10, 10), Radius: 1},
		{ID: "a", Position: geom.Vec2(3.5, 3), Radius: 1},
		{ID: "b", Position: geom.Vec2(2, 3), Radius: 1},
		{ID: "d", Position: geom.Vec2(15, 15), Radius: 1},
	} {
		_, err := w.AddBody(b)
		require.NoError(t, err)
	}

	report := w.Step(0)
	require.Len(t, report.BodyContacts, 1)
	bc := report.BodyContacts[0]
	assert.Equal(t, "a", bc.A)
	assert.Equal(t, "b", bc.B)
	assert.True(t, bc.Contact.Normal.ApproxEqual(geom.Vec2(-1, 0), tol))
	assert.InDelta(t, 0.5, bc.Contact.Depth, tol)
	assert.True(t, bc.Contact.PointA.ApproxEqual(geom.Vec2(2.5, 3), tol))
	assert.True(t, bc.Contact.PointB.ApproxEqual(geom.Vec2(3, 3), tol))
	assert.Empty(t, report.TileContacts)
}

func TestSetTileChangesHashAndContacts(t *testing.T) {
	w := newTestWorld(t, 5, 5, nil)
	before := w.TilesHash()

	assert.ErrorIs(t, w.SetTile(5, 0, 20), ErrCellOutOfRange)
	require.NoError(t, w.SetTile(2, 3, 20))
	assert.NotEqual(t, before, w.TilesHash())

	tile, ok := w.TileAt(geom.Vec2(2.5, 3.5))
	require.True(t, ok)
	assert.Equal(t, spatial.Tile{X: 2, Y: 3, ID: 20}, tile)

	n := w.NeighbourCollisions(geom.Vec2(2.5, 2.5))
	require.Equal(t, 1, n.Len())
	assert.Equal(t, geom.AABB2D{XMin: 2, XMax: 3, YMin: 3, YMax: 4}, n.At(0))

	require.NoError(t, w.SetTile(2, 3, 0))
	assert.Equal(t, before, w.TilesHash())
	assert.Len(t, w.Tiles(), 25)
}

func TestSetTilesRejectsWholeBatch(t *testing.T) {
	w := newTestWorld(t, 4, 4, nil)
	before := w.TilesHash()

	err := w.SetTiles([]TileEdit{{X: 0, Y: 0, ID: 20}, {X: 1, Y: 1, ID: 20}, {X: 4, Y: 1, ID: 20}})
	assert.ErrorIs(t, err, ErrCellOutOfRange)
	assert.Equal(t, before, w.TilesHash())
	for _, tile := range w.Tiles() {
		assert.Zero(t, tile.ID, "cell (%d,%d) was edited", tile.X, tile.Y)
	}

	require.NoError(t, w.SetTiles(nil))
	assert.Equal(t, before, w.TilesHash())
}

func TestSetTilesIsAtomicForSteps(t *testing.T) {
	const size = 64
	w := newTestWorld(t, size, size, nil)
	_, err := w.AddBody(Body{ID: "ball", Position: geom.Vec2(32.5, 32.5), Radius: 0.25})
	require.NoError(t, err)

	fill := func(id int) []TileEdit {
		edits := make([]TileEdit, 0, size*size)
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				edits = append(edits, TileEdit{X: x, Y: y, ID: id})
			}
		}
		return edits
	}
	empty, solid := fill(0), fill(20)

	emptyHash := w.TilesHash()
	require.NoError(t, w.SetTiles(solid))
	solidHash := w.TilesHash()
	require.NoError(t, w.SetTiles(empty))
	require.NotEqual(t, emptyHash, solidHash)

	stop := make(chan struct{})
	reports := make(chan *StepReport, 1024)
	go func() {
		defer close(reports)
		reports <- w.Step(0)
		for {
			select {
			case <-stop:
				return
			default:
			}
			select {
			case reports <- w.Step(0):
			default:
			}
		}
	}()

	for i := 0; i < 20; i++ {
		require.NoError(t, w.SetTiles(solid))
		require.NoError(t, w.SetTiles(empty))
	}
	close(stop)

	seen := 0
	for r := range reports {
		seen++
		switch r.TilesHash {
		case emptyHash:
			assert.Empty(t, r.TileContacts, "tick %d", r.Tick)
		case solidHash:
			assert.NotEmpty(t, r.TileContacts, "tick %d", r.Tick)
		default:
			t.Fatalf("tick %d saw a partially applied batch (hash %x)", r.Tick, r.TilesHash)
		}
	}
	assert.Positive(t, seen)
}

func TestBodiesNearUsesLastStep(t *testing.T) {
	w := newTestWorld(t, 10, 10, nil)
	_, err := w.AddBody(Body{ID: "near", Position: geom.Vec2(2, 2), Radius: 1.5})
	require.NoError(t, err)
	_, err = w.AddBody(Body{ID: "far", Position: geom.Vec2(8, 8), Radius: 0.5})
	require.NoError(t, err)

	assert.Empty(t, w.BodiesNear(geom.Vec2(2, 2), 1), "grid is empty before the first step")

	w.Step(0)
	near := w.BodiesNear(geom.Vec2(4, 2), 0.75)
	require.Len(t, near, 1)
	assert.Equal(t, "near", near[0].ID)

	require.NoError(t, w.RemoveBody("near"))
	assert.Empty(t, w.BodiesNear(geom.Vec2(4, 2), 0.75))
	assert.Nil(t, w.BodiesNear(geom.Vec2(4, 2), 0))
}

func TestStartStop(t *testing.T) {
	w, err := New(Config{
		Grid:     spatial.GridParams{CellSize: geom.Vec2(1, 1), Width: 8, Height: 8},
		TickRate: 200,
	})
	require.NoError(t, err)

	var calls atomic.Int32
	w.OnStep = func(*StepReport) { calls.Add(1) }

	w.Start(context.Background())
	w.Start(context.Background()) // no-op
	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	w.Stop()

	after := w.Snapshot().Tick
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, w.Snapshot().Tick, "no ticks after Stop")
	w.Stop()
}

func TestStartStopsOnContextCancel(t *testing.T) {
	w, err := New(Config{
		Grid:     spatial.GridParams{CellSize: geom.Vec2(1, 1), Width: 8, Height: 8},
		TickRate: 200,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	require.Eventually(t, func() bool { return w.Snapshot().Tick > 0 }, time.Second, 5*time.Millisecond)
	cancel()
	require.Eventually(t, func() bool { return !w.Running() }, time.Second, 5*time.Millisecond)

	w.Start(context.Background())
	assert.True(t, w.Running())
	from := w.Snapshot().Tick
	require.Eventually(t, func() bool { return w.Snapshot().Tick > from+2 }, time.Second, 5*time.Millisecond,
		"a cancelled loop can be started again")
	w.Stop()
	assert.False(t, w.Running())
}

func BenchmarkStep(b *testing.B) {
	w, err := New(Config{
		Grid:      spatial.GridParams{CellSize: geom.Vec2(1, 1), Width: 64, Height: 64},
		MaxBodies: 512,
	})
	require.NoError(b, err)
	for i := 0; i < 256; i++ {
		x, y := float64(i%16)*4+1, float64(i/16)*4+1
		_, err := w.AddBody(Body{Position: geom.Vec2(x, y), Velocity: geom.Vec2(0.1, 0.05), Radius: 0.6})
		require.NoError(b, err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w.Step(1.0 / 30)
	}
}
