// Package store persists recorded events to a local SQLite database. The
// recorder treats this as a fire-and-forget sink; callers decide whether a
// failure is fatal.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "modernc.org/sqlite" // CGO-free SQLite

	"github.com/probelight/qa-recorder/internal/models"
)

// Store wraps the events database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the event store at path.
func Open(path string) (*Store, error) {
	// WAL + busy timeout to avoid "database is locked"
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, path: path}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS recorded_events(
	  id             INTEGER PRIMARY KEY,
	  session_id     TEXT    NOT NULL,
	  run_id         TEXT,
	  ts_utc         INTEGER NOT NULL,
	  ts_iso         TEXT    NOT NULL,
	  event_type     TEXT    NOT NULL CHECK (event_type IN ('click','input','submit','navigation')),
	  selector       TEXT,
	  element_text   TEXT,
	  value          TEXT,
	  url            TEXT    NOT NULL,
	  meta_json      TEXT    CHECK (meta_json IS NULL OR json_valid(meta_json)),
	  origin         TEXT    NOT NULL,
	  recording_mode TEXT    NOT NULL CHECK (recording_mode IN ('auto','manual'))
	);
	CREATE INDEX IF NOT EXISTS idx_recorded_events_ts      ON recorded_events(ts_utc);
	CREATE INDEX IF NOT EXISTS idx_recorded_events_type    ON recorded_events(event_type);
	CREATE INDEX IF NOT EXISTS idx_recorded_events_session ON recorded_events(session_id);
	CREATE INDEX IF NOT EXISTS idx_recorded_events_run     ON recorded_events(run_id);
	`)
	if err != nil {
		return fmt.Errorf("failed to create database tables: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SizeOnDisk returns the database file size in bytes, 0 when unknown.
func (s *Store) SizeOnDisk() int64 {
	info, err := os.Stat(s.path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// Validate checks an event against the store schema before insert.
func (s *Store) Validate(ev models.RecordedEvent, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	if ev.URL == "" {
		return fmt.Errorf("URL cannot be empty")
	}
	if !models.ValidTypes[ev.EventType] {
		return fmt.Errorf("invalid event type: %s", ev.EventType)
	}
	if ev.RecordingMode != models.ModeAuto && ev.RecordingMode != models.ModeManual {
		return fmt.Errorf("invalid recording mode: %s", ev.RecordingMode)
	}
	if ev.TSUTC <= 0 {
		return fmt.Errorf("timestamp must be positive")
	}
	return nil
}

// Record inserts a single event. Satisfies the recorder's Sink interface.
func (s *Store) Record(ctx context.Context, ev models.RecordedEvent, sessionID string) error {
	return s.InsertBatch(ctx, sessionID, []models.RecordedEvent{ev})
}

// InsertBatch stores events transactionally; either all land or none do.
func (s *Store) InsertBatch(ctx context.Context, sessionID string, events []models.RecordedEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO recorded_events
		(session_id, run_id, ts_utc, ts_iso, event_type, selector, element_text, value, url, meta_json, origin, recording_mode)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		if err := s.Validate(ev, sessionID); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("invalid event: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			sessionID, ev.RunID, ev.TSUTC, ev.TSISO, ev.EventType,
			ev.Selector, ev.ElementText, ev.Value, ev.URL, ev.MetaJSON,
			ev.Origin, ev.RecordingMode,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to execute statement: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// EventsByRun returns a run's events ordered by capture timestamp.
func (s *Store) EventsByRun(ctx context.Context, runID string) ([]models.RecordedEvent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, ts_utc, ts_iso, event_type, selector,
		element_text, value, url, meta_json, origin, recording_mode
		FROM recorded_events WHERE run_id = ? ORDER BY ts_utc, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.RecordedEvent
	for rows.Next() {
		var ev models.RecordedEvent
		if err := rows.Scan(&ev.RunID, &ev.TSUTC, &ev.TSISO, &ev.EventType, &ev.Selector,
			&ev.ElementText, &ev.Value, &ev.URL, &ev.MetaJSON, &ev.Origin, &ev.RecordingMode); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// CountByType returns per-type event counts for a session.
func (s *Store) CountByType(ctx context.Context, sessionID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT event_type, COUNT(*)
		FROM recorded_events WHERE session_id = ? GROUP BY event_type`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[typ] = n
	}
	return counts, rows.Err()
}
