package world

import (
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"tilecollide/internal/collision"
	"tilecollide/internal/geom"
)

// Step advances every body by dt seconds and detects contacts against
// solid tiles, boundary walls and other bodies. The report is published
// for Snapshot and handed to OnStep. A non-finite or negative dt leaves
// positions unchanged but still runs detection.
func (w *World) Step(dt float64) *StepReport {
	start := time.Now()

	w.mu.Lock()
	w.tickCount++
	tick := w.tickCount

	if !(dt >= 0) || math.IsInf(dt, 0) {
		dt = 0
	}

	w.circles = w.circles[:0]
	for _, id := range w.order {
		b := w.bodies[id]
		b.Position = b.Position.Add(b.Velocity.Scale(dt))
		w.circles = append(w.circles, b.Circle())
	}

	tileContacts := w.detectTiles()
	bodyContacts := w.detectBodies()

	w.bodyGrid.Clear()
	w.gridOrder = append(w.gridOrder[:0], w.order...)
	w.gridReach = 0
	for i, c := range w.circles {
		w.bodyGrid.Insert(uint32(i), c.Center)
		w.gridReach = math.Max(w.gridReach, c.Radius)
	}

	report := &StepReport{
		Tick:         tick,
		Timestamp:    start,
		TilesHash:    w.tilesHash,
		Bodies:       w.bodiesLocked(),
		TileContacts: tileContacts,
		BodyContacts: bodyContacts,
	}
	report.Duration = time.Since(start)
	w.latest.Store(report)
	onStep := w.OnStep
	w.mu.Unlock()

	w.emitReport(report)
	if onStep != nil {
		onStep(report)
	}
	return report
}

// detectTiles tests each body against the solid cells around it and the
// cell it stands in. Caller holds w.mu.
func (w *World) detectTiles() []TileContact {
	contacts := make([]TileContact, 0)
	var boxes []geom.AABB2D

	for i, id := range w.order {
		c := w.circles[i]
		boxes = w.grid.AppendNeighbourCollisions(boxes[:0], c.Center, w.tiles, w.policy)

		// The neighbourhood excludes the centre cell; a body spawned or
		// moved into a solid cell still has to report it.
		cx, cy := w.grid.CellOf(c.Center)
		if tile, ok := w.grid.TileAt(cx, cy, w.tiles); !ok || w.policy(tile) {
			boxes = append(boxes, w.grid.CellAABB(cx, cy))
		}

		for _, box := range boxes {
			contact, hit := collision.CircleBox(c, box.ToOBB())
			if !hit {
				continue
			}
			x, y := w.grid.CellOf(box.Center())
			contacts = append(contacts, TileContact{
				BodyID:  id,
				CellX:   x,
				CellY:   y,
				Wall:    !w.grid.InBounds(x, y),
				Box:     box,
				Contact: contact,
			})
		}
	}
	return contacts
}

// detectBodies pairs bodies with the sweep, confirms with the cheap
// intersection test and resolves the contact. Caller holds w.mu.
func (w *World) detectBodies() []BodyContact {
	contacts := make([]BodyContact, 0)
	for _, pair := range w.sap.UpdateCircles(w.circles) {
		i, j := pair.A, pair.B
		if i > j {
			i, j = j, i
		}
		a, b := w.circles[i], w.circles[j]
		if !collision.IntersectsCircles(a, b) {
			continue
		}
		contact, hit := collision.CircleCircleDual(a, b)
		if !hit {
			continue
		}
		contacts = append(contacts, BodyContact{
			A:       w.order[i],
			B:       w.order[j],
			Contact: contact,
			ai:      i,
			bi:      j,
		})
	}

	sort.Slice(contacts, func(x, y int) bool {
		if contacts[x].ai != contacts[y].ai {
			return contacts[x].ai < contacts[y].ai
		}
		return contacts[x].bi < contacts[y].bi
	})
	return contacts
}

func (w *World) emitReport(r *StepReport) {
	el := w.eventLog
	el.EmitSimple(EventTypeStep, r.Tick, "", StepPayload{
		Bodies:       len(r.Bodies),
		TileContacts: len(r.TileContacts),
		BodyContacts: len(r.BodyContacts),
		DurationNs:   r.Duration.Nanoseconds(),
	})
	for i := range r.TileContacts {
		el.EmitSimple(EventTypeTileContact, r.Tick, r.TileContacts[i].BodyID, r.TileContacts[i])
	}
	for i := range r.BodyContacts {
		el.EmitSimple(EventTypeBodyContact, r.Tick, r.BodyContacts[i].A, r.BodyContacts[i])
	}

	if ce := w.logger.Check(zap.DebugLevel, "step"); ce != nil {
		ce.Write(
			zap.Uint64("tick", r.Tick),
			zap.Int("bodies", len(r.Bodies)),
			zap.Int("tileContacts", len(r.TileContacts)),
			zap.Int("bodyContacts", len(r.BodyContacts)),
			zap.Duration("took", r.Duration),
		)
	}
}
