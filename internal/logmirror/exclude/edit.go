package exclude

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Add appends name to the exclusion file, creating it if absent. Returns
// false when the name is already listed. The rewrite is atomic (temp file
// plus rename) so a concurrent daemon read never sees a partial file.
func (s *Store) Add(name string) (bool, error) {
	lines, err := s.readLines()
	if err != nil {
		return false, err
	}
	for _, line := range lines {
		if strings.TrimSpace(line) == name {
			return false, nil
		}
	}
	lines = append(lines, name)
	if err := s.writeLines(lines); err != nil {
		return false, err
	}
	return true, nil
}

// Remove deletes name from the exclusion file. Comment and blank lines are
// preserved. Returns false when the name was not listed.
func (s *Store) Remove(name string) (bool, error) {
	lines, err := s.readLines()
	if err != nil {
		return false, err
	}
	kept := lines[:0]
	found := false
	for _, line := range lines {
		if strings.TrimSpace(line) == name {
			found = true
			continue
		}
		kept = append(kept, line)
	}
	if !found {
		return false, nil
	}
	if err := s.writeLines(kept); err != nil {
		return false, err
	}
	return true, nil
}

// readLines returns the file's raw lines. An absent file yields no lines.
func (s *Store) readLines() ([]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("exclude: read %s: %w", s.path, err)
	}
	text := strings.TrimSuffix(string(data), "\n")
	if text == "" {
		return nil, nil
	}
	return strings.Split(text, "\n"), nil
}

func (s *Store) writeLines(lines []string) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("exclude: create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".exclude-*")
	if err != nil {
		return fmt.Errorf("exclude: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	content := ""
	if len(lines) > 0 {
		content = strings.Join(lines, "\n") + "\n"
	}
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return fmt.Errorf("exclude: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("exclude: close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("exclude: chmod temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("exclude: replace %s: %w", s.path, err)
	}
	return nil
}
