// Package history records what the client observed into SQLite: value
// changes of observable resources, notification outcomes, state changes
// and errors.
//
// A Recorder is a log.Logger, so it is attached next to the event file
// logger and the slog adapter through log.MultiLogger.
package history

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mash-protocol/m2m-inventory/pkg/log"
)

// ValueRecord is one recorded value change.
type ValueRecord struct {
	Time      time.Time
	SessionID string
	Path      string
	Value     string
}

// StateRecord is one recorded state change.
type StateRecord struct {
	Time     time.Time
	Entity   string
	OldState string
	NewState string
	Reason   string
}

// Recorder writes events into a SQLite database.
type Recorder struct {
	db     *sql.DB
	logger *slog.Logger

	failures atomic.Int64
}

var _ log.Logger = (*Recorder)(nil)

// Open opens (or creates) the history database at path. logger may be nil.
func Open(path string, logger *slog.Logger) (*Recorder, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	// One writer keeps event order and avoids SQLITE_BUSY between our own
	// connections.
	db.SetMaxOpenConns(1)

	r := &Recorder{db: db, logger: logger}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history: %w", err)
	}
	return r, nil
}

// Close closes the database.
func (r *Recorder) Close() error { return r.db.Close() }

// Failures returns the number of events that could not be written.
func (r *Recorder) Failures() int64 { return r.failures.Load() }

func (r *Recorder) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS value_changes (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		path       TEXT NOT NULL,
		value      TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_value_changes_path ON value_changes(path, id);

	CREATE TABLE IF NOT EXISTS notification_status (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		path       TEXT NOT NULL,
		status     TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_notification_status ON notification_status(status);

	CREATE TABLE IF NOT EXISTS state_changes (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		entity     TEXT NOT NULL,
		old_state  TEXT,
		new_state  TEXT NOT NULL,
		reason     TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS errors (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		layer      TEXT NOT NULL,
		message    TEXT NOT NULL,
		code       INTEGER,
		context    TEXT,
		created_at TEXT NOT NULL
	);
	`
	_, err := r.db.Exec(schema)
	return err
}

// Log records the event. Events without a history table are ignored.
func (r *Recorder) Log(event log.Event) {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	at := ts.UTC().Format(time.RFC3339Nano)

	var err error
	switch {
	case event.Notification != nil && event.Notification.Status != "":
		n := event.Notification
		_, err = r.db.Exec(
			`INSERT INTO notification_status (session_id, path, status, created_at) VALUES (?, ?, ?, ?)`,
			event.SessionID, n.Path, n.Status, at)

	case event.Notification != nil && event.Layer == log.LayerResource && event.Notification.Value != nil:
		n := event.Notification
		_, err = r.db.Exec(
			`INSERT INTO value_changes (session_id, path, value, created_at) VALUES (?, ?, ?, ?)`,
			event.SessionID, n.Path, fmt.Sprint(n.Value), at)

	case event.StateChange != nil:
		sc := event.StateChange
		_, err = r.db.Exec(
			`INSERT INTO state_changes (session_id, entity, old_state, new_state, reason, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			event.SessionID, sc.Entity.String(), sc.OldState, sc.NewState, sc.Reason, at)

	case event.Error != nil:
		e := event.Error
		var code sql.NullInt64
		if e.Code != nil {
			code = sql.NullInt64{Int64: int64(*e.Code), Valid: true}
		}
		_, err = r.db.Exec(
			`INSERT INTO errors (session_id, layer, message, code, context, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			event.SessionID, e.Layer.String(), e.Message, code, e.Context, at)

	default:
		return
	}

	if err != nil {
		r.failures.Add(1)
		if r.logger != nil {
			r.logger.Warn("history: write failed", "category", event.Category, "error", err)
		}
	}
}

// Values returns the most recent value changes of path, newest first.
// limit <= 0 returns all of them.
func (r *Recorder) Values(path string, limit int) ([]ValueRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(
		`SELECT created_at, session_id, path, value FROM value_changes
		 WHERE path = ? ORDER BY id DESC LIMIT ?`, path, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ValueRecord
	for rows.Next() {
		var rec ValueRecord
		var at string
		if err := rows.Scan(&at, &rec.SessionID, &rec.Path, &rec.Value); err != nil {
			return nil, err
		}
		rec.Time, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// StatusCounts returns how often each notification status was reported.
// An empty path counts all resources.
func (r *Recorder) StatusCounts(path string) (map[string]int, error) {
	rows, err := r.db.Query(
		`SELECT status, COUNT(*) FROM notification_status
		 WHERE ? = '' OR path = ? GROUP BY status`, path, path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

// States returns the most recent state changes, oldest first.
// limit <= 0 returns all of them.
func (r *Recorder) States(limit int) ([]StateRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(
		`SELECT created_at, entity, old_state, new_state, reason FROM (
			SELECT id, created_at, entity, old_state, new_state, reason
			FROM state_changes ORDER BY id DESC LIMIT ?
		 ) ORDER BY id ASC`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StateRecord
	for rows.Next() {
		var rec StateRecord
		var at string
		var oldState, reason sql.NullString
		if err := rows.Scan(&at, &rec.Entity, &oldState, &rec.NewState, &reason); err != nil {
			return nil, err
		}
		rec.Time, _ = time.Parse(time.RFC3339Nano, at)
		rec.OldState = oldState.String
		rec.Reason = reason.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ErrorCount returns the number of recorded errors.
func (r *Recorder) ErrorCount() (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM errors`).Scan(&n)
	return n, err
}
