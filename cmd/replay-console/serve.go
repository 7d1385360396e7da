// serve.go — The daemon: message surface, bridge transport, health endpoint.
// A file lock guards against a second instance racing on the same data dir.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/replaydeck/replaydeck/internal/api"
	"github.com/replaydeck/replaydeck/internal/ax"
	"github.com/replaydeck/replaydeck/internal/bridge"
	"github.com/replaydeck/replaydeck/internal/browser"
	"github.com/replaydeck/replaydeck/internal/config"
	"github.com/replaydeck/replaydeck/internal/decision"
	"github.com/replaydeck/replaydeck/internal/executor"
	"github.com/replaydeck/replaydeck/internal/locator"
	"github.com/replaydeck/replaydeck/internal/logging"
	"github.com/replaydeck/replaydeck/internal/playback"
	"github.com/replaydeck/replaydeck/internal/recorder"
	"github.com/replaydeck/replaydeck/internal/recording"
	"github.com/replaydeck/replaydeck/internal/telemetry"
	"github.com/replaydeck/replaydeck/internal/util"
	"github.com/replaydeck/replaydeck/internal/vision"
	"github.com/replaydeck/replaydeck/internal/waiting"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the replay daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
}

func serve(cfg *config.Config) error {
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		LogDir: cfg.LogDir,
	})
	if err != nil {
		return err
	}

	lock := flock.New(filepath.Join(cfg.DataDir, "replaydeck.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another replay-console daemon already owns %s", cfg.DataDir)
	}
	defer func() { _ = lock.Unlock() }()

	store, err := recording.NewStore(cfg.DataDir)
	if err != nil {
		return err
	}
	teleStore, err := telemetry.OpenStore(filepath.Join(cfg.DataDir, "telemetry.db"))
	if err != nil {
		return err
	}
	defer func() { _ = teleStore.Close() }()

	teleLogger := telemetry.NewLogger(teleStore, telemetry.LoggerOptions{
		BatchSize:     cfg.Telemetry.BatchSize,
		FlushInterval: time.Duration(cfg.Telemetry.FlushIntervalMs) * time.Millisecond,
		RetentionDays: cfg.Telemetry.RetentionDays,
	}, logger)
	teleLogger.Start()
	if purged, err := teleLogger.PurgeExpired(context.Background()); err == nil && purged > 0 {
		logger.Info("expired telemetry purged", "events", purged)
	}

	controlBridge := bridge.New(logger)
	newController := buildPipeline(controlBridge, cfg, teleLogger, logger)

	server := api.NewServer(
		recorder.New(store, logger),
		store,
		teleStore,
		teleLogger,
		controlBridge,
		newController,
		logger,
	)

	httpServer := &http.Server{
		Addr:              cfg.APIBind,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	util.SafeGo(func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		teleLogger.Shutdown(shutdownCtx)
		_ = httpServer.Shutdown(shutdownCtx)
	})

	logger.Info("replay daemon listening", "bind", cfg.APIBind)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// buildPipeline wires the playback stack over the extension bridge and
// returns the per-run controller factory.
func buildPipeline(controlBridge *bridge.Bridge, cfg *config.Config, teleLogger *telemetry.Logger, logger *slog.Logger) func() *playback.Controller {
	sessions := browser.NewSessions(controlBridge, logger)
	axSvc := ax.NewService(controlBridge, logger)
	visionSvc := vision.NewService(controlBridge, vision.Unconfigured(), vision.Options{
		Language:      cfg.Vision.Language,
		MaxConcurrent: cfg.Vision.MaxConcurrent,
		CacheTTL:      time.Duration(cfg.Vision.CacheTTLMs) * time.Millisecond,
	}, logger)
	if cfg.Vision.PrewarmOnStart {
		util.SafeGo(func() { _ = visionSvc.Prewarm(context.Background()) })
	}

	registry := locator.NewRegistry(sessions, axSvc, visionSvc, logger)
	waiter := waiting.NewWaiter(sessions, waiting.Options{
		Timeout:            time.Duration(cfg.Waiting.TimeoutMs) * time.Millisecond,
		PollingInterval:    time.Duration(cfg.Waiting.PollingIntervalMs) * time.Millisecond,
		StabilityThreshold: time.Duration(cfg.Waiting.StabilityThresholdMs) * time.Millisecond,
	}, logger)
	exec := executor.New(sessions, executor.Options{
		MouseMoveSteps:     cfg.Executor.MouseMoveSteps,
		MouseMoveStepDelay: time.Duration(cfg.Executor.MouseMoveStepMs) * time.Millisecond,
		KeystrokeDelay:     time.Duration(cfg.Executor.KeystrokeDelayMs) * time.Millisecond,
		ClearBeforeType:    true,
	}, logger)

	return func() *playback.Controller {
		engine := decision.NewEngine(registry, waiter, exec, teleLogger, decision.Options{
			MinConfidence:   cfg.Decision.MinConfidence,
			StrategyTimeout: time.Duration(cfg.Decision.StrategyTimeoutMs) * time.Millisecond,
			MaxRetries:      cfg.Decision.MaxRetries,
			RetryDelay:      time.Duration(cfg.Decision.RetryDelayMs) * time.Millisecond,
			Sequential:      cfg.Decision.Sequential,
		}, logger)
		return playback.NewController(engine, exec, visionSvc, axSvc, sessions, teleLogger, logger)
	}
}
