// Package journal maintains the daemon's append-only operator journal at
// {LOG_ROOT}/daemon.log. Every action the reconciliation loop takes is
// recorded there, one timestamped line per action.
//
// The line format is fixed for compatibility with external tooling:
//
//	{YYYY-MM-DD HH:MM:SS} - {message}
package journal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const timeLayout = "2006-01-02 15:04:05"

// Journal is an append-only line journal. Appends are serialized; the
// Journal is safe for use from multiple goroutines.
type Journal struct {
	mu  sync.Mutex
	f   *os.File
	now func() time.Time
}

// Open opens (creating if necessary) the journal file in append mode.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("journal: create directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	return &Journal{f: f, now: time.Now}, nil
}

// Printf appends one formatted, timestamped line to the journal. Write
// failures never propagate to the caller; the loop must not stall on a full
// disk, so they are reported through slog instead.
func (j *Journal) Printf(format string, args ...any) {
	line := fmt.Sprintf("%s - %s\n", j.now().Format(timeLayout), fmt.Sprintf(format, args...))

	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.f.WriteString(line); err != nil {
		slog.Warn("journal write failed", "err", err)
	}
}

// Close closes the journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.f.Close()
}
