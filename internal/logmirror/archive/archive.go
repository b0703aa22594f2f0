// Package archive retires active container log files to immutable,
// uniquely-named archive files.
package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

const stampLayout = "20060102-150405"

// Archiver renames active logs into the per-container directory under
// timestamped names. An archive file is never overwritten: when two archives
// for the same container land within the same second, the later one gets a
// numeric suffix.
type Archiver struct {
	// Now supplies timestamps; overridable in tests. Defaults to time.Now.
	Now func() time.Time
}

// New creates an Archiver using the wall clock.
func New() *Archiver {
	return &Archiver{Now: time.Now}
}

// Archive renames logPath to {dir}/{identity}-{YYYYMMDD-HHMMSS}.log.archived
// in the same directory as the active log. It returns the archive path, or
// "" when logPath does not exist (a no-op, so callers can archive
// unconditionally at every transition). The capture task for logPath must
// already be stopped.
func (a *Archiver) Archive(identity, logPath string) (string, error) {
	if _, err := os.Stat(logPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("archive: stat %s: %w", logPath, err)
	}

	dir := filepath.Dir(logPath)
	stamp := a.Now().Format(stampLayout)

	target := filepath.Join(dir, fmt.Sprintf("%s-%s.log.archived", identity, stamp))
	for n := 2; ; n++ {
		if _, err := os.Stat(target); errors.Is(err, fs.ErrNotExist) {
			break
		}
		target = filepath.Join(dir, fmt.Sprintf("%s-%s-%d.log.archived", identity, stamp, n))
	}

	if err := os.Rename(logPath, target); err != nil {
		return "", fmt.Errorf("archive: rename %s: %w", logPath, err)
	}
	return target, nil
}
