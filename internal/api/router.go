package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"tilecollide/internal/geom"
	"tilecollide/internal/render"
	"tilecollide/internal/spatial"
	"tilecollide/internal/world"
)

// WorldInterface defines the world methods used by the API.
// This interface enables mocking for tests without spinning up the tick loop.
// Keep this minimal - only include methods the API layer actually calls.
type WorldInterface interface {
	// Snapshot returns the latest published step report (never nil)
	Snapshot() *world.StepReport
	// Grid returns the tile grid indexer
	Grid() *spatial.TileGrid
	// Policy returns the tile collision policy
	Policy() spatial.CollisionPolicy
	// Tiles returns a copy of the tile lookup
	Tiles() []spatial.Tile
	// TileAt returns the tile under a world position
	TileAt(pos geom.Vector2) (spatial.Tile, bool)
	// TilesHash fingerprints the tile lookup
	TilesHash() uint64
	// Bodies returns copies of all bodies
	Bodies() []world.Body
	// AddBody inserts a body, assigning an ID when empty
	AddBody(b world.Body) (world.Body, error)
	// RemoveBody deletes a body by ID
	RemoveBody(id string) error
	// SetTiles applies a batch of tile edits atomically
	SetTiles(edits []world.TileEdit) error
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
//
// Example usage in tests:
//
//	cfg := api.RouterConfig{
//	    World: w,
//	    RateLimitConfig: &api.RateLimitConfig{
//	        RequestsPerSecond: 1000, // High limit for tests
//	        Burst:             1000,
//	    },
//	}
//	router := api.NewRouter(cfg)
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// World is the simulation (required)
	World WorldInterface

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one will be created using RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is optional configuration for the rate limiter.
	// Only used if RateLimiter is nil. If both are nil, uses DefaultRateLimitConfig.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins is an optional list of allowed CORS origins.
	// If nil, uses DefaultOrigins.
	CORSOrigins []string

	// Auth guards the mutating world routes. nil disables it.
	Auth *TokenAuth

	// Renderer draws /api/world/render.png. nil uses render.DefaultOptions.
	Renderer *render.Renderer

	// Logger receives request logs. nil disables request logging.
	Logger *zap.Logger
}

// routerHandlers holds the handler functions for the router.
type routerHandlers struct {
	world    WorldInterface
	renderer *render.Renderer
	frames   *render.FrameCache
	logger   *zap.Logger
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// The returned router starts no goroutines and opens no listeners apart
// from the rate limiter's cleanup loop when RouterConfig.RateLimiter is nil.
// Pass a limiter in to own its lifetime.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// Middleware - Order matters!
	r.Use(middleware.RequestID)
	r.Use(requestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)

	// Rate limiting (BEFORE CORS to reject early and save CPU)
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = DefaultOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "If-None-Match"},
		ExposedHeaders:   []string{"ETag"},
		AllowCredentials: true,
	}))

	renderer := cfg.Renderer
	if renderer == nil {
		var err error
		if renderer, err = render.New(render.DefaultOptions); err != nil {
			logger.Warn("render endpoint disabled", zap.Error(err))
		}
	}

	h := &routerHandlers{
		world:    cfg.World,
		renderer: renderer,
		frames:   render.NewFrameCache(render.DefaultMaxFrames),
		logger:   logger,
	}

	r.Route("/api", func(r chi.Router) {
		// Stateless shape tests
		r.Post("/overlap/circles", h.handleOverlapCircles)
		r.Post("/overlap/circle-box", h.handleOverlapCircleBox)

		// Grid indexer against the live tile lookup
		r.Post("/grid/tile", h.handleGridTile)
		r.Post("/grid/neighbours", h.handleGridNeighbours)

		r.Route("/world", func(r chi.Router) {
			r.Get("/", h.handleGetWorld)
			r.Get("/report", h.handleGetReport)
			r.Get("/render.png", h.handleRender)

			r.Group(func(r chi.Router) {
				r.Use(cfg.Auth.Middleware)
				r.Post("/bodies", h.handleAddBody)
				r.Delete("/bodies/{id}", h.handleRemoveBody)
				r.Put("/tiles", h.handleSetTiles)
			})
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	return r
}

// requestLogger logs each request through zap and records HTTP metrics
// under the matched route pattern.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			pattern := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				pattern = rctx.RoutePattern()
			}
			took := time.Since(start)
			RecordRequest(r.Method, pattern, status, took)

			if logger != nil {
				logger.Info("http request",
					zap.String("method", r.Method),
					zap.String("route", pattern),
					zap.Int("status", status),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("took", took),
					zap.String("requestId", middleware.GetReqID(r.Context())),
				)
			}
		})
	}
}
