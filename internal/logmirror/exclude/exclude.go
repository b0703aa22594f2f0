// Package exclude loads the exclusion policy: the set of container names the
// daemon must never capture. The policy lives in a plain-text file edited by
// external tooling (logmirrorctl or an operator's editor) and is re-read
// fresh on every reconciliation tick.
package exclude

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// Set is a set of excluded container names.
type Set map[string]struct{}

// Contains reports whether name is excluded.
func (s Set) Contains(name string) bool {
	_, ok := s[name]
	return ok
}

// Store reads the exclusion file. It never caches: every Load is a whole-file
// snapshot, relying on the writer side's atomic-replace contract for
// consistency under concurrent edits.
type Store struct {
	path string
}

// NewStore creates a Store for the given exclusion file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the exclusion file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the exclusion file and returns the current Set. Lines are
// trimmed; blank lines and lines whose first non-space character is '#' are
// each skipped independently. Duplicate names collapse. An absent file means
// no exclusions (first run); any other read error is returned to the caller.
func (s *Store) Load() (Set, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Set{}, nil
		}
		return nil, fmt.Errorf("exclude: open %s: %w", s.path, err)
	}
	defer f.Close()

	set := Set{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		set[line] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("exclude: read %s: %w", s.path, err)
	}
	return set, nil
}
