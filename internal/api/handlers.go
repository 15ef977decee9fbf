package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"tilecollide/internal/collision"
	"tilecollide/internal/geom"
	"tilecollide/internal/render"
	"tilecollide/internal/spatial"
	"tilecollide/internal/world"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// maxTileEdits bounds one PUT /api/world/tiles request.
const maxTileEdits = 4096

type overlapCirclesRequest struct {
	A geom.Circle2D `json:"a"`
	B geom.Circle2D `json:"b"`
}

type overlapCirclesResponse struct {
	Overlap bool                   `json:"overlap"`
	Contact *collision.DualContact `json:"contact,omitempty"`
}

// boxRequest describes an oriented box by center, half extents and a
// rotation in radians.
type boxRequest struct {
	Center      geom.Vector2 `json:"center"`
	HalfExtents geom.Vector2 `json:"halfExtents"`
	Angle       float64      `json:"angle"`
}

type overlapCircleBoxRequest struct {
	Circle geom.Circle2D `json:"circle"`
	Box    boxRequest    `json:"box"`
}

type overlapCircleBoxResponse struct {
	Overlap bool               `json:"overlap"`
	Contact *collision.Contact `json:"contact,omitempty"`
}

type cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type gridTileRequest struct {
	Position geom.Vector2 `json:"position"`
}

type gridTileResponse struct {
	Cell cell          `json:"cell"`
	OK   bool          `json:"ok"`
	Tile *spatial.Tile `json:"tile,omitempty"`
}

// gridNeighboursRequest may override the world's policy with an ID
// threshold or a layer mask, but not both.
type gridNeighboursRequest struct {
	Position  geom.Vector2 `json:"position"`
	Threshold *int         `json:"threshold,omitempty"`
	LayerMask *uint32      `json:"layerMask,omitempty"`
}

type gridNeighboursResponse struct {
	Cell  cell          `json:"cell"`
	Boxes []geom.AABB2D `json:"boxes"`
}

type worldResponse struct {
	Grid      spatial.GridParams `json:"grid"`
	Tiles     [][]int            `json:"tiles"` // rows[y][x]
	TilesHash string             `json:"tilesHash"`
}

type setTilesRequest struct {
	Tiles []world.TileEdit `json:"tiles"`
}

func (h *routerHandlers) handleOverlapCircles(w http.ResponseWriter, r *http.Request) {
	var req overlapCirclesRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	contact, ok := collision.CircleCircleDual(req.A, req.B)
	RecordQuery("circles", ok)

	resp := overlapCirclesResponse{Overlap: ok}
	if ok {
		resp.Contact = &contact
	}
	writeJSON(w, resp)
}

func (h *routerHandlers) handleOverlapCircleBox(w http.ResponseWriter, r *http.Request) {
	var req overlapCircleBoxRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	box := geom.NewRotatedBox(req.Box.Center, req.Box.HalfExtents, req.Box.Angle)
	contact, ok := collision.CircleBox(req.Circle, box)
	RecordQuery("circle_box", ok)

	resp := overlapCircleBoxResponse{Overlap: ok}
	if ok {
		resp.Contact = &contact
	}
	writeJSON(w, resp)
}

func (h *routerHandlers) handleGridTile(w http.ResponseWriter, r *http.Request) {
	var req gridTileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	x, y := h.world.Grid().CellOf(req.Position)
	tile, ok := h.world.TileAt(req.Position)
	RecordQuery("tile", ok)

	resp := gridTileResponse{Cell: cell{X: x, Y: y}, OK: ok}
	if ok {
		resp.Tile = &tile
	}
	writeJSON(w, resp)
}

func (h *routerHandlers) handleGridNeighbours(w http.ResponseWriter, r *http.Request) {
	var req gridNeighboursRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	policy := h.world.Policy()
	switch {
	case req.Threshold != nil && req.LayerMask != nil:
		writeError(w, "threshold and layerMask are mutually exclusive", http.StatusBadRequest)
		return
	case req.Threshold != nil:
		policy = spatial.IDAbove(*req.Threshold)
	case req.LayerMask != nil:
		policy = spatial.LayerMask(*req.LayerMask)
	}

	grid := h.world.Grid()
	n := grid.NeighbourCollisions(req.Position, h.world.Tiles(), policy)
	RecordQuery("neighbours", n.Len() > 0)

	x, y := grid.CellOf(req.Position)
	writeJSON(w, gridNeighboursResponse{
		Cell:  cell{X: x, Y: y},
		Boxes: append(make([]geom.AABB2D, 0, n.Len()), n.Slice()...),
	})
}

func (h *routerHandlers) handleGetWorld(w http.ResponseWriter, r *http.Request) {
	etag := fmt.Sprintf(`"%016x"`, h.world.TilesHash())
	w.Header().Set("ETag", etag)
	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	grid := h.world.Grid()
	p := grid.Params()
	tiles := h.world.Tiles()

	rows := make([][]int, p.Height)
	for y := range rows {
		rows[y] = make([]int, p.Width)
		for x := range rows[y] {
			rows[y][x] = tiles[grid.Index(x, y)].ID
		}
	}

	writeJSON(w, worldResponse{
		Grid:      p,
		Tiles:     rows,
		TilesHash: strings.Trim(etag, `"`),
	})
}

func (h *routerHandlers) handleGetReport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.world.Snapshot())
}

func (h *routerHandlers) handleRender(w http.ResponseWriter, r *http.Request) {
	if h.renderer == nil {
		writeError(w, "Rendering unavailable", http.StatusServiceUnavailable)
		return
	}

	report := h.world.Snapshot()
	key := render.FrameKey{Tick: report.Tick, TilesHash: h.world.TilesHash()}

	start := time.Now()
	png, hit, err := h.renderer.CachedPNG(h.frames, key, render.Scene{
		Grid:   h.world.Grid(),
		Tiles:  h.world.Tiles(),
		Policy: h.world.Policy(),
		Report: report,
	})
	if err != nil {
		h.logger.Error("render failed", zap.Error(err))
		writeError(w, "Render failed", http.StatusInternalServerError)
		return
	}
	if !hit {
		RecordRender(time.Since(start))
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame", key.String())
	w.Write(png)
}

func (h *routerHandlers) handleAddBody(w http.ResponseWriter, r *http.Request) {
	var body world.Body
	if !decodeJSON(w, r, &body) {
		return
	}

	added, err := h.world.AddBody(body)
	switch {
	case errors.Is(err, world.ErrInvalidBody):
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, world.ErrDuplicateBody):
		writeError(w, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, world.ErrBodyLimit):
		writeError(w, "Body limit reached", http.StatusServiceUnavailable)
		return
	case err != nil:
		h.logger.Error("add body failed", zap.Error(err))
		writeError(w, "Internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Location", "/api/world/bodies/"+added.ID)
	writeJSONStatus(w, http.StatusCreated, added)
}

func (h *routerHandlers) handleRemoveBody(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.world.RemoveBody(id); err != nil {
		if errors.Is(err, world.ErrUnknownBody) {
			writeError(w, "Body not found", http.StatusNotFound)
			return
		}
		h.logger.Error("remove body failed", zap.Error(err))
		writeError(w, "Internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *routerHandlers) handleSetTiles(w http.ResponseWriter, r *http.Request) {
	var req setTilesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Tiles) == 0 {
		writeError(w, "tiles is required", http.StatusBadRequest)
		return
	}
	if len(req.Tiles) > maxTileEdits {
		writeError(w, fmt.Sprintf("at most %d tiles per request", maxTileEdits), http.StatusRequestEntityTooLarge)
		return
	}

	if err := h.world.SetTiles(req.Tiles); err != nil {
		if errors.Is(err, world.ErrCellOutOfRange) {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("set tiles failed", zap.Error(err))
		writeError(w, "Internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{
		"updated":   len(req.Tiles),
		"tilesHash": fmt.Sprintf("%016x", h.world.TilesHash()),
	})
}

// Helper functions (package-level for reuse)

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, "Invalid request: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == etag || candidate == "*" {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	writeJSONStatus(w, code, map[string]string{"error": message})
}
