package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tilecollide/internal/api"
	"tilecollide/internal/config"
	"tilecollide/internal/logging"
	"tilecollide/internal/render"
	"tilecollide/internal/world"
)

func main() {
	// Load .env file from parent directory, then the current one
	envErr := godotenv.Load("../.env")
	if envErr != nil {
		envErr = godotenv.Load(".env")
	}

	appConfig := config.Load()

	logger, err := logging.New(appConfig.Log.Level, logging.Format(appConfig.Log.Format))
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if envErr != nil {
		logger.Info("no .env file found, using environment variables only")
	}

	if err := run(appConfig, logger); err != nil {
		logger.Error("server exited", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(appConfig config.AppConfig, logger *zap.Logger) error {
	worldCfg := appConfig.World
	serverCfg := appConfig.Server

	wf := config.DefaultWorldFile(worldCfg)
	if worldCfg.WorldFile != "" {
		loaded, err := config.LoadWorldFile(worldCfg.WorldFile)
		if err != nil {
			return err
		}
		wf = loaded
		logger.Info("world file loaded", zap.String("path", worldCfg.WorldFile))
	}

	wc := wf.WorldConfig(worldCfg)
	wc.Logger = logger.Named("world")
	w, err := world.New(wc)
	if err != nil {
		return fmt.Errorf("build world: %w", err)
	}
	for _, b := range wf.Bodies {
		if _, err := w.AddBody(b); err != nil {
			return fmt.Errorf("add body %q: %w", b.ID, err)
		}
	}

	p := w.Grid().Params()
	logger.Info("world ready",
		zap.Int("width", p.Width),
		zap.Int("height", p.Height),
		zap.Float64("cellSize", p.CellSize.X),
		zap.Int("bodies", len(wf.Bodies)),
		zap.Int("tickRate", w.TickRate()),
	)

	if err := w.StartEventLog(worldCfg.EventLogPath); err != nil {
		logger.Warn("event log disabled", zap.Error(err))
	} else if worldCfg.EventLogPath != "" {
		logger.Info("event log started", zap.String("path", worldCfg.EventLogPath))
	}

	w.OnStep = func(report *world.StepReport) {
		api.RecordStep(report)
		api.UpdateEventLogStats(w.EventLog().Stats())
	}

	renderer, err := render.New(render.DefaultOptions)
	if err != nil {
		logger.Warn("render endpoint disabled", zap.Error(err))
	}

	if serverCfg.AdminToken == "" {
		logger.Warn("ADMIN_TOKEN not set, mutating routes are open")
	}

	srv := api.NewServer(w, api.ServerConfig{
		Addr: fmt.Sprintf(":%d", serverCfg.Port),
		RateLimit: api.RateLimitConfig{
			RequestsPerSecond: serverCfg.RateLimitRPS,
			Burst:             serverCfg.RateLimitBurst,
		},
		CORSOrigins:     serverCfg.CORSOrigins,
		AdminToken:      serverCfg.AdminToken,
		ShutdownTimeout: serverCfg.ShutdownTimeout,
		Renderer:        renderer,
	}, logger.Named("api"))

	debugSrv := api.NewDebugServer(api.ObservabilityConfig{
		Enabled:       appConfig.Debug.Enabled,
		ListenAddr:    appConfig.Debug.ListenAddr,
		BasicAuthUser: appConfig.Debug.BasicAuthUser,
		BasicAuthPass: appConfig.Debug.BasicAuthPass,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w.Start(ctx)
	defer w.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if debugSrv != nil {
		g.Go(func() error {
			if err := debugSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("debug server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
			defer cancel()
			return debugSrv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	logger.Info("shutting down", zap.Uint64("ticks", w.Snapshot().Tick))
	return err
}
