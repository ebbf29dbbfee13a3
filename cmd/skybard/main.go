// Package main is the entry point for the skybar daemon.
//
// It loads configuration, opens the history database and the forecast cache,
// wires the recompute engine to its input sources (forecast refresher,
// battery poller), and serves the loopback status API. All long-running
// parts run under one errgroup; graceful shutdown is handled via OS signal
// interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"skybar/internal/config"
	"skybar/internal/engine"
	"skybar/internal/forecast"
	"skybar/internal/history"
	"skybar/internal/power"
	"skybar/internal/sched"
	"skybar/internal/status"
	"skybar/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("skybard starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"location_configured", cfg.Location.Configured(),
	)

	// Diagnostics history.
	historyPath := cfg.History.Path
	if historyPath == "" {
		historyPath = filepath.Join(stateDir(), "history.db")
	}
	store, err := history.Open(historyPath, cfg.History.MaxRows)
	if err != nil {
		return fmt.Errorf("opening history store: %w", err)
	}
	defer store.Close()
	recorder := history.NewRecorder(store, logger)

	// Forecast cache and client.
	cacheDir := cfg.Forecast.CacheDir
	if cacheDir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return fmt.Errorf("resolving cache dir: %w", err)
		}
		cacheDir = filepath.Join(base, "skybar")
	}
	cache, err := forecast.NewCache(cacheDir)
	if err != nil {
		return fmt.Errorf("opening forecast cache: %w", err)
	}

	clock := types.RealClock{}
	loop := sched.NewLoop(logger)

	client := forecast.NewClient(cfg.Forecast)
	var eng *engine.Engine
	refresher := forecast.NewRefresher(forecast.RefresherConfig{
		Source:    client,
		Location:  cfg.Location.Ref(),
		Interval:  cfg.Forecast.RefreshInterval,
		Clock:     clock,
		Cache:     cache,
		OnPayload: func(p *types.ForecastPayload) { eng.OnForecast(p) },
		Logger:    logger,
	})

	eng = engine.New(engine.Config{
		Clock:          clock,
		Loop:           loop,
		Debounce:       cfg.Engine.Debounce,
		Detection:      cfg.Detection.Settings(),
		Slot:           cfg.Slot.Settings(),
		Alert:          cfg.Alert.Settings(),
		HasLocation:    cfg.Location.Configured(),
		Presenter:      &logPresenter{logger: logger},
		SwitchRecorder: recorder,
		AlertRecorder:  recorder,
		Refresher:      refreshAdapter{refresher},
		Logger:         logger,
	})

	poller := power.NewPoller(power.PollerConfig{
		Source:   power.NewSysfsSource(cfg.Power.SysfsPath),
		Interval: cfg.Power.PollInterval,
		OnChange: eng.OnPower,
		Logger:   logger,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return loop.Run(gCtx) })
	g.Go(func() error { return refresher.Run(gCtx) })
	g.Go(func() error { return poller.Run(gCtx) })

	if cfg.Status.Enabled {
		statusSrv := status.NewServer(status.ServerConfig{
			Addr:          cfg.Status.Addr,
			Build:         cfg.Build,
			Store:         store,
			SlotSnapshot:  eng.SlotSnapshot,
			AlertSnapshot: eng.AlertSnapshot,
			CurrentEvent:  eng.CurrentEvent,
			Logger:        logger,
		})
		g.Go(func() error { return statusSrv.Run(gCtx) })
	}

	// Seed the engine from the cache so the slot has data before the first
	// fetch completes, then run the first wave.
	if cached, err := cache.Load(); err != nil {
		logger.Warn("forecast cache unreadable, starting cold", "error", err)
	} else if cached != nil {
		logger.Info("loaded cached forecast", "fetched_at", cached.FetchedAt)
		eng.OnForecast(cached)
	}
	eng.Kick("startup")

	err = g.Wait()
	logger.Info("skybard stopped")
	return err
}

// refreshAdapter bridges the orchestrator's reasoned refresh requests to the
// refresher's coalescing queue.
type refreshAdapter struct {
	refresher *forecast.Refresher
}

func (a refreshAdapter) RequestRefresh(reason string) {
	a.refresher.RequestRefresh()
}

// logPresenter surfaces fired alerts through the structured log. The desktop
// presentation layer tails these records.
type logPresenter struct {
	logger *slog.Logger
}

func (p *logPresenter) Present(_ context.Context, tier types.AlertTier, duration time.Duration, pulses int) {
	p.logger.Info("alert presented",
		"tier", tier,
		"duration_ms", duration.Milliseconds(),
		"pulses", pulses,
	)
}

// stateDir resolves the per-user state directory (XDG_STATE_HOME or
// ~/.local/state) for the history database.
func stateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "skybar")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "skybar-state"
	}
	return filepath.Join(home, ".local", "state", "skybar")
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	})
	return slog.New(handler)
}
