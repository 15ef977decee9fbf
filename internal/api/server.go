package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"tilecollide/internal/render"
)

// ServerConfig configures the public API server.
type ServerConfig struct {
	Addr              string
	RateLimit         RateLimitConfig
	CORSOrigins       []string
	AdminToken        string
	BroadcastInterval time.Duration
	ShutdownTimeout   time.Duration
	Renderer          *render.Renderer
}

// Server is the HTTP API server with WebSocket support.
// It combines the HTTP router with WebSocket hub for real-time updates.
type Server struct {
	world       WorldInterface
	cfg         ServerConfig
	router      *chi.Mux
	wsHub       *WebSocketHub
	rateLimiter *IPRateLimiter
	logger      *zap.Logger
}

// NewServer creates a new API server.
//
// Background workers do NOT start until Run is called, so tests can build
// a server and drive Router() with httptest.
func NewServer(w WorldInterface, cfg ServerConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	if cfg.RateLimit.RequestsPerSecond <= 0 {
		cfg.RateLimit = DefaultRateLimitConfig
	}

	s := &Server{
		world:       w,
		cfg:         cfg,
		wsHub:       NewWebSocketHub(cfg.CORSOrigins, logger),
		rateLimiter: NewIPRateLimiter(cfg.RateLimit),
		logger:      logger,
	}

	s.router = NewRouter(RouterConfig{
		World:       w,
		RateLimiter: s.rateLimiter,
		CORSOrigins: cfg.CORSOrigins,
		Auth:        NewTokenAuth(cfg.AdminToken),
		Renderer:    cfg.Renderer,
		Logger:      logger,
	})
	s.router.Get("/ws", s.wsHub.HandleWebSocket)

	return s
}

// Router returns the HTTP handler for use with httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *WebSocketHub {
	return s.wsHub
}

// Run starts the hub and the broadcast loop, then serves HTTP until ctx is
// done and shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	defer s.rateLimiter.Stop()

	go s.wsHub.Run(hubCtx)
	s.wsHub.StartBroadcastLoop(hubCtx, s.world, s.cfg.BroadcastInterval)

	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening", zap.String("addr", s.cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	s.logger.Info("api server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
