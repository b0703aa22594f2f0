package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Session is one capture session: the lifetime of a single capture task for
// a container generation.
type Session struct {
	ID         string
	Container  string
	Generation string
	LogPath    string
	StartedAt  time.Time
	StoppedAt  sql.NullTime
	StopReason sql.NullString
}

// Stop reasons recorded when a session is closed.
const (
	ReasonStopped  = "stopped"  // container no longer running
	ReasonExcluded = "excluded" // container added to the exclusion set
	ReasonRestart  = "restart"  // container generation changed
	ReasonShutdown = "shutdown" // daemon shutting down
)

// RecordSessionStart inserts a new open session row.
func (s *Store) RecordSessionStart(ctx context.Context, id, container, generation, logPath string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO capture_sessions (id, container, generation, log_path, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, container, generation, logPath, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record session start: %w", err)
	}
	return nil
}

// CloseSession marks a session stopped with the given reason. Closing an
// already-closed or unknown session is a no-op.
func (s *Store) CloseSession(ctx context.Context, id, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE capture_sessions
		SET stopped_at = ?, stop_reason = ?
		WHERE id = ? AND stopped_at IS NULL
	`, time.Now().UTC(), reason, id)
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	return nil
}

// RecordArchive inserts an archive event row.
func (s *Store) RecordArchive(ctx context.Context, container, path string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO archives (container, path, created_at)
		VALUES (?, ?, ?)
	`, container, path, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record archive: %w", err)
	}
	return nil
}

// OpenSessionCount returns the number of sessions without a stop time.
func (s *Store) OpenSessionCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM capture_sessions WHERE stopped_at IS NULL`,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count open sessions: %w", err)
	}
	return n, nil
}

// SessionCount returns the total number of recorded sessions.
func (s *Store) SessionCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM capture_sessions`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return n, nil
}

// ArchiveCount returns the total number of recorded archive events.
func (s *Store) ArchiveCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM archives`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count archives: %w", err)
	}
	return n, nil
}

// RecentSessions returns the most recently started sessions, newest first.
func (s *Store) RecentSessions(ctx context.Context, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, container, generation, log_path, started_at, stopped_at, stop_reason
		FROM capture_sessions
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess := &Session{}
		if err := rows.Scan(
			&sess.ID, &sess.Container, &sess.Generation, &sess.LogPath,
			&sess.StartedAt, &sess.StoppedAt, &sess.StopReason,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}
