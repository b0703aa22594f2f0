// Package reconcile contains the daemon's core control loop. On a fixed
// interval it diffs desired state (running and not excluded) against tracked
// state (has an active capture task) and drives the capture manager and
// archiver to close the gap.
package reconcile

import (
	"context"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"logmirror/common/retry"
	"logmirror/internal/logmirror/archive"
	"logmirror/internal/logmirror/capture"
	"logmirror/internal/logmirror/exclude"
	"logmirror/internal/logmirror/gateway"
	"logmirror/internal/logmirror/journal"
	"logmirror/internal/logmirror/store"
)

// Config configures the reconciliation loop.
type Config struct {
	// Interval is how often to run a reconciliation pass. Defaults to 10s.
	Interval time.Duration
	// LogRoot is the directory holding per-container log directories.
	LogRoot string
	// ShutdownTimeout bounds the stop-all-and-archive sweep on shutdown so
	// one unresponsive capture task cannot keep the process alive. Defaults
	// to 30s.
	ShutdownTimeout time.Duration
	// Retry controls in-tick retries of engine listing calls. Zero value
	// selects retry.DefaultConfig.
	Retry retry.Config
}

// record is the loop's per-container state. At most one exists per identity;
// only the loop goroutine reads or writes the tracked map, so no locking.
type record struct {
	generation string
	handle     *capture.Handle
	logPath    string
}

// Reconciler drives capture tasks to mirror the set of running containers.
type Reconciler struct {
	gw       gateway.Gateway
	captures *capture.Manager
	archiver *archive.Archiver
	policy   *exclude.Store
	journal  *journal.Journal
	history  *store.Store
	cfg      Config

	tracked        map[string]*record
	lastExclusions exclude.Set

	// trackedCount mirrors len(tracked) for readers outside the loop
	// goroutine (the status endpoint).
	trackedCount atomic.Int64
}

// New creates a Reconciler.
func New(gw gateway.Gateway, captures *capture.Manager, archiver *archive.Archiver,
	policy *exclude.Store, j *journal.Journal, history *store.Store, cfg Config) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig
	}
	return &Reconciler{
		gw:             gw,
		captures:       captures,
		archiver:       archiver,
		policy:         policy,
		journal:        j,
		history:        history,
		cfg:            cfg,
		tracked:        make(map[string]*record),
		lastExclusions: exclude.Set{},
	}
}

// TrackedCount returns the number of containers with an active capture task.
// Safe to call from any goroutine.
func (r *Reconciler) TrackedCount() int {
	return int(r.trackedCount.Load())
}

// Run starts the reconciliation loop. Blocks until ctx is cancelled, then
// stops and archives every tracked container before returning.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	log.Printf("[reconciler] starting, interval=%s", r.cfg.Interval)
	r.journal.Printf("Daemon started")

	r.InitialScan()

	// First pass immediately so a freshly started daemon does not sit idle
	// for a whole interval.
	if err := r.Tick(ctx); err != nil {
		log.Printf("[reconciler] tick error: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			log.Println("[reconciler] stopping")
			r.Shutdown()
			return
		case <-ticker.C:
			if err := r.Tick(ctx); err != nil {
				log.Printf("[reconciler] tick error: %v", err)
			}
		}
	}
}

// InitialScan archives any active log files left behind by a previous daemon
// instance, so no container's new output is ever appended after stale
// content without an archive boundary between them.
func (r *Reconciler) InitialScan() {
	entries, err := os.ReadDir(r.cfg.LogRoot)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[reconciler] initial scan: %v", err)
		}
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		archived, err := r.archiver.Archive(name, r.logPathFor(name))
		if err != nil {
			r.journal.Printf("Failed to archive leftover log for %s: %v", name, err)
			continue
		}
		if archived != "" {
			r.journal.Printf("Archived leftover log for %s to %s", name, archived)
			r.recordArchive(context.Background(), name, archived)
		}
	}
}

// Tick runs a single reconciliation pass.
func (r *Reconciler) Tick(ctx context.Context) error {
	defer func() { r.trackedCount.Store(int64(len(r.tracked))) }()

	// The exclusion file is the sole source of truth, re-read every tick. A
	// failed read falls back to the previous tick's snapshot rather than an
	// empty set, so a transient error cannot un-exclude containers.
	exclusions, err := r.policy.Load()
	if err != nil {
		r.journal.Printf("Failed to read exclusion file: %v (reusing previous snapshot)", err)
		exclusions = r.lastExclusions
	} else {
		r.lastExclusions = exclusions
	}

	var containers []gateway.Container
	err = retry.Do(ctx, r.cfg.Retry, func() error {
		var listErr error
		containers, listErr = r.gw.Running(ctx)
		return listErr
	})
	if err != nil {
		// Tracked state is left untouched until the engine is reachable
		// again; the next tick retries.
		r.journal.Printf("Cannot reach container engine: %v", err)
		return err
	}

	running := make(map[string]gateway.Container, len(containers))
	for _, ctr := range containers {
		running[ctr.Name] = ctr
	}

	// Starts first: newly-discovered containers that should be captured.
	for _, ctr := range containers {
		if exclusions.Contains(ctr.Name) {
			continue
		}
		if _, ok := r.tracked[ctr.Name]; ok {
			continue
		}
		r.startCapture(ctx, ctr)
	}

	// Then stop, exclusion, and restart checks for tracked containers.
	for _, name := range r.trackedNames() {
		rec := r.tracked[name]
		ctr, isRunning := running[name]

		switch {
		case !isRunning:
			r.stopCapture(ctx, name, rec, store.ReasonStopped)

		case exclusions.Contains(name):
			r.journal.Printf("Container %s is now excluded; stopping capture", name)
			r.stopCapture(ctx, name, rec, store.ReasonExcluded)

		case ctr.Generation != rec.generation:
			// Restart: archive the old log and begin a fresh capture within
			// the same tick so the container never runs unlogged.
			r.journal.Printf("Container %s restarted; rotating log", name)
			r.stopCapture(ctx, name, rec, store.ReasonRestart)
			r.startCapture(ctx, ctr)

		case !rec.handle.Alive():
			// The task exited on its own (engine ended the stream) while the
			// container is still running. Re-establish capture.
			r.journal.Printf("Capture task for %s exited unexpectedly; restarting capture", name)
			r.stopCapture(ctx, name, rec, store.ReasonStopped)
			r.startCapture(ctx, ctr)
		}
	}

	return nil
}

// Shutdown stops and archives every tracked container, bounded by the
// configured shutdown timeout.
func (r *Reconciler) Shutdown() {
	deadline := time.Now().Add(r.cfg.ShutdownTimeout)
	ctx := context.Background()

	for _, name := range r.trackedNames() {
		if time.Now().After(deadline) {
			r.journal.Printf("Shutdown deadline exceeded; abandoning remaining capture tasks")
			break
		}
		r.stopCapture(ctx, name, r.tracked[name], store.ReasonShutdown)
	}

	r.trackedCount.Store(int64(len(r.tracked)))
	r.journal.Printf("Daemon stopped")
}

// startCapture archives any pre-existing active log (leftover from an
// earlier incarnation), starts a capture task, and creates the tracking
// record. Failures are journaled and retried on the next tick.
func (r *Reconciler) startCapture(ctx context.Context, ctr gateway.Container) {
	logPath := r.logPathFor(ctr.Name)

	archived, err := r.archiver.Archive(ctr.Name, logPath)
	if err != nil {
		// Starting anyway would append new output after stale content with
		// no archive boundary. Leave it for the next tick.
		r.journal.Printf("Failed to archive existing log for %s: %v (capture deferred)", ctr.Name, err)
		return
	}
	if archived != "" {
		r.journal.Printf("Archived leftover log for %s to %s", ctr.Name, archived)
		r.recordArchive(ctx, ctr.Name, archived)
	}

	handle, err := r.captures.Start(ctx, ctr, logPath)
	if err != nil {
		r.journal.Printf("Failed to start capture for %s: %v", ctr.Name, err)
		return
	}

	if err := r.history.RecordSessionStart(ctx, handle.SessionID, ctr.Name, ctr.Generation, logPath); err != nil {
		slog.Warn("record session start", "container", ctr.Name, "err", err)
	}

	r.tracked[ctr.Name] = &record{
		generation: ctr.Generation,
		handle:     handle,
		logPath:    logPath,
	}
}

// stopCapture stops the capture task, archives the active log, and destroys
// the record. The record is removed even when the stop times out, so one
// stuck task cannot block reconciliation of the others; archiving is then
// best-effort.
func (r *Reconciler) stopCapture(ctx context.Context, name string, rec *record, reason string) {
	if err := r.captures.Stop(rec.handle); err != nil {
		log.Printf("[reconciler] stop capture for %s: %v", name, err)
	}

	archived, err := r.archiver.Archive(name, rec.logPath)
	if err != nil {
		// The active log stays in place; the next start for this container
		// archives it before capturing.
		r.journal.Printf("Failed to archive log for %s: %v (leaving active log in place)", name, err)
	} else if archived != "" {
		r.journal.Printf("Archived log for %s to %s", name, archived)
		r.recordArchive(ctx, name, archived)
	}

	if err := r.history.CloseSession(ctx, rec.handle.SessionID, reason); err != nil {
		slog.Warn("close session", "container", name, "err", err)
	}

	delete(r.tracked, name)
}

// trackedNames snapshots the tracked identities so callers can mutate the
// map while iterating.
func (r *Reconciler) trackedNames() []string {
	names := make([]string, 0, len(r.tracked))
	for name := range r.tracked {
		names = append(names, name)
	}
	return names
}

func (r *Reconciler) logPathFor(name string) string {
	return filepath.Join(r.cfg.LogRoot, name, name+".log")
}

func (r *Reconciler) recordArchive(ctx context.Context, name, path string) {
	if err := r.history.RecordArchive(ctx, name, path); err != nil {
		slog.Warn("record archive", "container", name, "err", err)
	}
}
