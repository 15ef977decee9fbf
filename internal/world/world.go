// Package world hosts a detection-only simulation driver around the
// collision core: it owns the tile lookup and the moving bodies, advances
// positions each tick and reports every contact the broad and narrow phases
// find. It never pushes bodies apart.
package world

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"tilecollide/internal/collision"
	"tilecollide/internal/geom"
	"tilecollide/internal/spatial"
)

var (
	ErrBodyLimit      = errors.New("world: body limit reached")
	ErrDuplicateBody  = errors.New("world: body id already exists")
	ErrUnknownBody    = errors.New("world: unknown body")
	ErrInvalidBody    = errors.New("world: body radius must be positive and position finite")
	ErrCellOutOfRange = errors.New("world: cell outside the grid")
)

// Config describes a world. Tiles, when set, are rows[y][x] of tile IDs.
type Config struct {
	Grid      spatial.GridParams
	Tiles     [][]int
	Policy    spatial.CollisionPolicy // nil means spatial.DefaultPolicy
	TickRate  int                     // Ticks per second for Start
	MaxBodies int
	Logger    *zap.Logger
}

// DefaultTickRate is used when Config.TickRate is not positive.
const DefaultTickRate = 30

// DefaultMaxBodies is used when Config.MaxBodies is not positive.
const DefaultMaxBodies = 1024

// World is safe for concurrent use. Step holds the write lock; queries take
// the read lock, matching the read-only-snapshot-per-step contract of the
// grid indexer.
type World struct {
	mu     sync.RWMutex
	grid   *spatial.TileGrid
	tiles  []spatial.Tile
	policy spatial.CollisionPolicy

	bodies map[string]*Body
	order  []string // Insertion order; keeps contact output deterministic

	// Broad phase scratch, reused every tick
	circles  []geom.Circle2D
	sap      *spatial.SweepAndPrune
	bodyGrid *spatial.BodyGrid

	// Body IDs and the largest radius as of the last bodyGrid rebuild
	gridOrder []string
	gridReach float64

	tickRate  int
	maxBodies int
	tickCount uint64
	tilesHash uint64

	running  bool
	stopChan chan struct{}
	doneChan chan struct{}

	latest   atomic.Pointer[StepReport]
	eventLog *EventLog
	logger   *zap.Logger

	// OnStep is called after each tick with the published report, outside
	// the world lock. Set it before Start.
	OnStep func(report *StepReport)
}

// New builds a world from cfg.
func New(cfg Config) (*World, error) {
	grid, err := spatial.NewTileGrid(cfg.Grid)
	if err != nil {
		return nil, err
	}

	tiles := grid.NewLookup()
	if cfg.Tiles != nil {
		if tiles, err = grid.LookupFromRows(cfg.Tiles); err != nil {
			return nil, err
		}
	}

	policy := cfg.Policy
	if policy == nil {
		policy = spatial.DefaultPolicy
	}
	tickRate := cfg.TickRate
	if tickRate <= 0 {
		tickRate = DefaultTickRate
	}
	maxBodies := cfg.MaxBodies
	if maxBodies <= 0 {
		maxBodies = DefaultMaxBodies
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	p := cfg.Grid
	cell := p.CellSize.X
	if p.CellSize.Y > cell {
		cell = p.CellSize.Y
	}

	w := &World{
		grid:      grid,
		tiles:     tiles,
		policy:    policy,
		bodies:    make(map[string]*Body),
		order:     make([]string, 0, 64),
		circles:   make([]geom.Circle2D, 0, 64),
		sap:       spatial.NewSweepAndPrune(maxBodies),
		bodyGrid:  spatial.NewBodyGrid(p.Origin, float64(p.Width)*p.CellSize.X, float64(p.Height)*p.CellSize.Y, cell, maxBodies),
		tickRate:  tickRate,
		maxBodies: maxBodies,
		eventLog:  NewEventLog(),
		logger:    logger,
	}
	w.tilesHash = hashTiles(tiles)
	w.latest.Store(&StepReport{TilesHash: w.tilesHash, Bodies: []Body{}, TileContacts: []TileContact{}, BodyContacts: []BodyContact{}})
	return w, nil
}

// Grid returns the world's tile grid indexer.
func (w *World) Grid() *spatial.TileGrid { return w.grid }

// Policy returns the collision policy used for tiles.
func (w *World) Policy() spatial.CollisionPolicy { return w.policy }

// TickRate returns ticks per second used by Start.
func (w *World) TickRate() int { return w.tickRate }

// AddBody inserts b. An empty ID gets a random UUID. Returns the stored copy.
func (w *World) AddBody(b Body) (Body, error) {
	if !b.Position.IsFinite() || !b.Velocity.IsFinite() || b.Circle().Degenerate() {
		return Body{}, ErrInvalidBody
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}

	w.mu.Lock()
	if len(w.bodies) >= w.maxBodies {
		w.mu.Unlock()
		return Body{}, ErrBodyLimit
	}
	if _, exists := w.bodies[b.ID]; exists {
		w.mu.Unlock()
		return Body{}, fmt.Errorf("%w: %s", ErrDuplicateBody, b.ID)
	}
	stored := b
	w.bodies[b.ID] = &stored
	w.order = append(w.order, b.ID)
	tick := w.tickCount
	w.mu.Unlock()

	w.eventLog.EmitSimple(EventTypeBodyAdded, tick, b.ID, b)
	w.logger.Debug("body added", zap.String("id", b.ID), zap.Float64("radius", b.Radius))
	return b, nil
}

// RemoveBody deletes a body by ID.
func (w *World) RemoveBody(id string) error {
	w.mu.Lock()
	if _, ok := w.bodies[id]; !ok {
		w.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownBody, id)
	}
	delete(w.bodies, id)
	for i, existing := range w.order {
		if existing == id {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
	tick := w.tickCount
	w.mu.Unlock()

	w.eventLog.EmitSimple(EventTypeBodyRemoved, tick, id, nil)
	w.logger.Debug("body removed", zap.String("id", id))
	return nil
}

// Body returns a copy of a body.
func (w *World) Body(id string) (Body, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	b, ok := w.bodies[id]
	if !ok {
		return Body{}, false
	}
	return *b, true
}

// Bodies returns copies of all bodies in insertion order.
func (w *World) Bodies() []Body {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.bodiesLocked()
}

func (w *World) bodiesLocked() []Body {
	out := make([]Body, 0, len(w.order))
	for _, id := range w.order {
		out = append(out, *w.bodies[id])
	}
	return out
}

// TileEdit sets the tile ID of one cell.
type TileEdit struct {
	X  int `json:"x"`
	Y  int `json:"y"`
	ID int `json:"id"`
}

// SetTile changes one tile's ID.
func (w *World) SetTile(x, y, id int) error {
	return w.SetTiles([]TileEdit{{X: x, Y: y, ID: id}})
}

// SetTiles applies a batch of edits under one write lock and rehashes the
// lookup once. Every edit is checked first; one out-of-range cell rejects
// the whole batch and leaves the map untouched. Steps see either none or
// all of the batch.
func (w *World) SetTiles(edits []TileEdit) error {
	if len(edits) == 0 {
		return nil
	}

	w.mu.Lock()
	for i, e := range edits {
		if !w.grid.InBounds(e.X, e.Y) {
			w.mu.Unlock()
			return fmt.Errorf("%w: edit %d at (%d,%d)", ErrCellOutOfRange, i, e.X, e.Y)
		}
	}
	for _, e := range edits {
		w.tiles[w.grid.Index(e.X, e.Y)].ID = e.ID
	}
	w.tilesHash = hashTiles(w.tiles)
	tick := w.tickCount
	w.mu.Unlock()

	for _, e := range edits {
		w.eventLog.EmitSimple(EventTypeTileChanged, tick, "", TilePayload{X: e.X, Y: e.Y, ID: e.ID})
	}
	return nil
}

// Tiles returns a copy of the tile lookup.
func (w *World) Tiles() []spatial.Tile {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]spatial.Tile, len(w.tiles))
	copy(out, w.tiles)
	return out
}

// TileAt returns the tile under a world position.
func (w *World) TileAt(pos geom.Vector2) (spatial.Tile, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.grid.Tile(pos, w.tiles)
}

// NeighbourCollisions runs the grid indexer against the live lookup with
// the world's policy.
func (w *World) NeighbourCollisions(pos geom.Vector2) spatial.Neighbours {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.grid.NeighbourCollisions(pos, w.tiles, w.policy)
}

// TilesHash fingerprints the tile lookup. It changes whenever a tile does.
func (w *World) TilesHash() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.tilesHash
}

// BodiesNear returns bodies whose circles overlap the query circle. The
// bucket grid is rebuilt each step, so bodies added since the last step are
// not found until the next one.
func (w *World) BodiesNear(center geom.Vector2, radius float64) []Body {
	query := geom.Circle2D{Center: center, Radius: radius}
	if query.Degenerate() {
		return nil
	}

	// QueryRadius reuses a scratch buffer, so this needs the write lock.
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []Body
	for _, idx := range w.bodyGrid.QueryRadius(center, radius+w.gridReach) {
		if int(idx) >= len(w.gridOrder) {
			continue
		}
		b := w.bodies[w.gridOrder[idx]]
		if b != nil && collision.IntersectsCircles(query, b.Circle()) {
			out = append(out, *b)
		}
	}
	return out
}

// Snapshot returns the latest published step report. Never nil.
func (w *World) Snapshot() *StepReport {
	return w.latest.Load()
}

// EventLog exposes the world's event log.
func (w *World) EventLog() *EventLog { return w.eventLog }

// StartEventLog begins writing events to path as JSONL.
func (w *World) StartEventLog(path string) error {
	return w.eventLog.Start(path)
}

// Start runs Step at the configured tick rate until ctx is done or Stop is
// called.
func (w *World) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.stopChan = make(chan struct{})
	w.doneChan = make(chan struct{})
	stop, done := w.stopChan, w.doneChan
	w.mu.Unlock()

	interval := time.Second / time.Duration(w.tickRate)
	dt := interval.Seconds()

	go func() {
		defer func() {
			w.mu.Lock()
			if w.doneChan == done {
				w.running = false
			}
			w.mu.Unlock()
			close(done)
		}()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.Step(dt)
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	w.logger.Info("world started", zap.Int("tickRate", w.tickRate))
}

// Running reports whether the tick loop is active.
func (w *World) Running() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// Stop halts the tick loop and waits for it to exit, then flushes the
// event log.
func (w *World) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		w.eventLog.Stop()
		return
	}
	w.running = false
	close(w.stopChan)
	done := w.doneChan
	w.mu.Unlock()

	<-done
	w.eventLog.Stop()
	w.logger.Info("world stopped", zap.Uint64("ticks", w.Snapshot().Tick))
}

func hashTiles(tiles []spatial.Tile) uint64 {
	d := xxhash.New()
	var buf [12]byte
	for _, t := range tiles {
		binary.LittleEndian.PutUint64(buf[:8], uint64(int64(t.ID)))
		binary.LittleEndian.PutUint32(buf[8:], t.Layers)
		d.Write(buf[:])
	}
	return d.Sum64()
}
