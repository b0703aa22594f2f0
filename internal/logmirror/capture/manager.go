// Package capture owns the lifecycle of per-container log capture tasks.
// Each task is a background goroutine that streams one container's combined
// output into its active log file until stopped.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"logmirror/internal/logmirror/gateway"
	"logmirror/internal/logmirror/journal"
)

// DefaultStopTimeout bounds the wait for a capture task to exit after a stop
// request, before the stream is force-closed.
const DefaultStopTimeout = 5 * time.Second

// ErrStopTimeout is returned by Stop when the capture task failed to exit
// even after its stream was force-closed.
var ErrStopTimeout = errors.New("capture task did not exit")

// Handle identifies one running capture task. It is owned exclusively by the
// reconciliation loop's record for the container; the task it refers to is
// guaranteed to no longer be writing once Stop returns nil.
type Handle struct {
	// SessionID uniquely identifies this capture session in the journal and
	// the history store.
	SessionID string

	identity string
	logPath  string
	cancel   context.CancelFunc
	stream   io.ReadCloser
	done     chan struct{}
	copyErr  error
}

// Identity returns the container name this task captures.
func (h *Handle) Identity() string { return h.identity }

// LogPath returns the active log file this task appends to.
func (h *Handle) LogPath() string { return h.logPath }

// Alive reports whether the capture task is still running. A task can exit
// on its own when the engine ends the stream (e.g. container removed).
func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Manager starts and stops capture tasks against a gateway.
type Manager struct {
	gw          gateway.Gateway
	journal     *journal.Journal
	stopTimeout time.Duration
}

// NewManager creates a Manager. stopTimeout bounds Stop's graceful wait;
// zero selects DefaultStopTimeout.
func NewManager(gw gateway.Gateway, j *journal.Journal, stopTimeout time.Duration) *Manager {
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	return &Manager{gw: gw, journal: j, stopTimeout: stopTimeout}
}

// Start opens the container's live log stream and launches the background
// task appending it to logPath, creating the file and its directory if
// absent. Start returns as soon as the task is launched; the task runs until
// Stop is called or the stream ends on its own.
func (m *Manager) Start(ctx context.Context, ctr gateway.Container, logPath string) (*Handle, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, fmt.Errorf("capture: create log directory: %w", err)
	}

	// The stream outlives the reconciliation tick that started it, so it
	// gets its own context; Stop is its only terminator.
	streamCtx, cancel := context.WithCancel(context.Background())

	stream, err := m.gw.OpenLogStream(streamCtx, ctr)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("capture: open log stream for %s: %w", ctr.Name, err)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		cancel()
		stream.Close()
		return nil, fmt.Errorf("capture: open log file %s: %w", logPath, err)
	}

	h := &Handle{
		SessionID: uuid.NewString(),
		identity:  ctr.Name,
		logPath:   logPath,
		cancel:    cancel,
		stream:    stream,
		done:      make(chan struct{}),
	}

	go func() {
		defer close(h.done)
		defer f.Close()
		_, h.copyErr = io.Copy(f, stream)
	}()

	m.journal.Printf("Started logging container %s", ctr.Name)
	return h, nil
}

// Stop requests graceful termination of the capture task and waits, bounded
// by the manager's stop timeout, for it to exit. On timeout the stream is
// force-closed and Stop waits once more; if the task still has not exited,
// ErrStopTimeout is returned and the caller should treat the task as
// abandoned. After a nil return nothing is writing to the task's logPath.
func (m *Manager) Stop(h *Handle) error {
	h.cancel()

	select {
	case <-h.done:
		m.journal.Printf("Stopped logging container %s", h.identity)
		return nil
	case <-time.After(m.stopTimeout):
	}

	m.journal.Printf("Capture task for %s did not stop in %s; forcing termination", h.identity, m.stopTimeout)
	h.stream.Close()

	select {
	case <-h.done:
		m.journal.Printf("Stopped logging container %s", h.identity)
		return nil
	case <-time.After(m.stopTimeout):
		m.journal.Printf("Capture task for %s is unresponsive; abandoning it", h.identity)
		return fmt.Errorf("capture: %s: %w", h.identity, ErrStopTimeout)
	}
}
