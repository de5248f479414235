// Package store keeps a SQLite journal of daemon sessions.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store represents the SQLite session journal.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at the given path and runs migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Begin records the start of a session and returns its ID.
func (s *Store) Begin(sess *Session) (int64, error) {
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now()
	}
	result, err := s.db.Exec(`
		INSERT INTO sessions (started_ns, version, engine, device_path)
		VALUES (?, ?, ?, ?)`,
		sess.StartedAt.UnixNano(), sess.Version, sess.Engine, sess.DevicePath,
	)
	if err != nil {
		return 0, fmt.Errorf("insert session: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	sess.ID = id
	return id, nil
}

// Finish records the end of session id.
func (s *Store) Finish(id int64, stats SessionStats, reason string) error {
	result, err := s.db.Exec(`
		UPDATE sessions
		SET ended_ns = ?, frames_presented = ?, frames_dropped = ?,
		    poll_cycles = ?, gpio_read_errors = ?, exit_reason = ?
		WHERE id = ? AND ended_ns IS NULL`,
		time.Now().UnixNano(),
		int64(stats.FramesPresented), int64(stats.FramesDropped),
		int64(stats.PollCycles), int64(stats.GPIOReadErrors),
		reason, id,
	)
	if err != nil {
		return fmt.Errorf("finish session %d: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish session %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("finish session %d: not found or already finished", id)
	}
	return nil
}

// AddEvent records a notable event in session id.
func (s *Store) AddEvent(id int64, kind, detail string) error {
	_, err := s.db.Exec(`
		INSERT INTO session_events (session_id, timestamp_ns, kind, detail)
		VALUES (?, ?, ?, ?)`,
		id, time.Now().UnixNano(), kind, detail,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Events returns the events of session id in time order.
func (s *Store) Events(id int64) ([]Event, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, timestamp_ns, kind, COALESCE(detail, '')
		FROM session_events WHERE session_id = ?
		ORDER BY timestamp_ns, id`, id)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var ts int64
		if err := rows.Scan(&e.ID, &e.SessionID, &ts, &e.Kind, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Timestamp = time.Unix(0, ts)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Recent returns up to limit sessions, newest first.
func (s *Store) Recent(limit int) ([]Session, error) {
	rows, err := s.db.Query(`
		SELECT id, started_ns, ended_ns, version, engine, device_path,
		       frames_presented, frames_dropped, poll_cycles, gpio_read_errors,
		       COALESCE(exit_reason, '')
		FROM sessions ORDER BY started_ns DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		var started int64
		var ended sql.NullInt64
		var presented, dropped, cycles, readErrs int64
		if err := rows.Scan(
			&sess.ID, &started, &ended, &sess.Version, &sess.Engine, &sess.DevicePath,
			&presented, &dropped, &cycles, &readErrs, &sess.ExitReason,
		); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.StartedAt = time.Unix(0, started)
		if ended.Valid {
			sess.EndedAt = time.Unix(0, ended.Int64)
		}
		sess.Stats = SessionStats{
			FramesPresented: uint64(presented),
			FramesDropped:   uint64(dropped),
			PollCycles:      uint64(cycles),
			GPIOReadErrors:  uint64(readErrs),
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// CloseStale marks sessions that never finished, for example after a
// power loss, and returns how many were closed.
func (s *Store) CloseStale(reason string) (int64, error) {
	result, err := s.db.Exec(`
		UPDATE sessions SET exit_reason = ?
		WHERE ended_ns IS NULL AND exit_reason IS NULL`, reason)
	if err != nil {
		return 0, fmt.Errorf("close stale sessions: %w", err)
	}
	return result.RowsAffected()
}
