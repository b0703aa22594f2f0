// Package app assembles the logmirror daemon: configuration, single-instance
// lock, journal, history store, container gateway, and the reconciliation
// loop with its optional health HTTP server.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"

	"logmirror/common/retry"
	"logmirror/internal/logmirror/archive"
	"logmirror/internal/logmirror/capture"
	"logmirror/internal/logmirror/config"
	"logmirror/internal/logmirror/exclude"
	dockergw "logmirror/internal/logmirror/gateway/docker"
	"logmirror/internal/logmirror/journal"
	"logmirror/internal/logmirror/reconcile"
	"logmirror/internal/logmirror/store"
)

// App is the assembled daemon.
type App struct {
	cfg          config.Config
	lock         *flock.Flock
	journal      *journal.Journal
	history      *store.Store
	reconciler   *reconcile.Reconciler
	healthServer *HealthServer
}

// New wires the daemon together. It acquires the single-instance lock, opens
// the journal and history store, and verifies the container engine is
// reachable before returning.
func New(cfg config.Config) (*App, error) {
	if err := os.MkdirAll(cfg.LogRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create log root %s: %w", cfg.LogRoot, err)
	}

	// Two daemons appending to the same active logs would interleave and
	// double-archive; refuse to start if another instance holds the lock.
	lock := flock.New(filepath.Join(cfg.LogRoot, "logmirrord.lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("another logmirrord instance is already running (lock %s)", lock.Path())
	}

	j, err := journal.Open(filepath.Join(cfg.LogRoot, "daemon.log"))
	if err != nil {
		lock.Unlock()
		return nil, err
	}

	slog.Info("opening history database", "path", cfg.DBPath)
	history, err := store.New(cfg.DBPath)
	if err != nil {
		j.Close()
		lock.Unlock()
		return nil, fmt.Errorf("failed to initialize history database: %w", err)
	}

	gw, err := dockergw.New()
	if err != nil {
		history.Close()
		j.Close()
		lock.Unlock()
		return nil, fmt.Errorf("failed to initialize container gateway: %w", err)
	}

	// The engine socket may not be up yet right after boot; give it a few
	// attempts before giving up.
	if err := retry.Do(context.Background(), retry.DefaultConfig, func() error {
		return gw.Ping(context.Background())
	}); err != nil {
		history.Close()
		j.Close()
		lock.Unlock()
		return nil, fmt.Errorf("container engine unreachable: %w", err)
	}

	reconciler := reconcile.New(
		gw,
		capture.NewManager(gw, j, cfg.StopTimeout),
		archive.New(),
		exclude.NewStore(cfg.ExcludeFile),
		j,
		history,
		reconcile.Config{
			Interval:        cfg.Interval,
			LogRoot:         cfg.LogRoot,
			ShutdownTimeout: cfg.ShutdownTimeout,
		},
	)

	var healthServer *HealthServer
	if cfg.HTTPAddr != "" {
		healthServer = NewHealthServer(cfg.HTTPAddr, reconciler, history)
		slog.Info("health server configured", "addr", cfg.HTTPAddr)
	}

	return &App{
		cfg:          cfg,
		lock:         lock,
		journal:      j,
		history:      history,
		reconciler:   reconciler,
		healthServer: healthServer,
	}, nil
}

// Run runs the daemon until SIGINT or SIGTERM, then drains: every capture
// task is stopped and its log archived before Run returns.
func (a *App) Run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if a.healthServer != nil {
		if err := a.healthServer.Start(ctx); err != nil {
			slog.Warn("health server failed to start; continuing without it", "err", err)
		}
	}

	slog.Info("logmirror is running; press Ctrl+C to stop",
		"log_root", a.cfg.LogRoot,
		"exclude_file", a.cfg.ExcludeFile,
		"interval", a.cfg.Interval,
	)

	// Blocks until ctx is cancelled and the shutdown sweep completes.
	a.reconciler.Run(ctx)

	slog.Info("shutting down")
	return nil
}

// Stop releases the daemon's resources. Call after Run returns.
func (a *App) Stop() {
	if a.healthServer != nil {
		a.healthServer.Stop()
	}

	slog.Info("closing history database")
	if err := a.history.Close(); err != nil {
		slog.Warn("close history database", "err", err)
	}
	if err := a.journal.Close(); err != nil {
		slog.Warn("close journal", "err", err)
	}
	if err := a.lock.Unlock(); err != nil {
		slog.Warn("release lock", "err", err)
	}
}
