// Package eventlog records power transitions in SQLite so they survive the
// process and can be inspected offline.
package eventlog

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// #region kinds

// Event kinds written by the notifier hooks.
const (
	KindWakeUp           = "wake_up"
	KindGoToSleep        = "go_to_sleep"
	KindNap              = "nap"
	KindDreamStarted     = "dream_started"
	KindDreamStopped     = "dream_stopped"
	KindWirelessCharging = "wireless_charging_started"
	KindUserActivity     = "user_activity"
)

// #endregion

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS power_events (
	id           TEXT PRIMARY KEY,
	kind         TEXT NOT NULL,
	detail       TEXT,
	wakefulness  TEXT NOT NULL,
	created_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS power_events_created_at ON power_events (created_at);
`

// #endregion schema

// #region entry

// Entry is a single row in the power_events table.
type Entry struct {
	ID          string
	Kind        string
	Detail      string
	Wakefulness string
	CreatedAt   time.Time
}

// #endregion

// #region log

// Log appends power events to a database shared with the settings store.
type Log struct {
	db *sql.DB
}

// New runs the event-log migration on db and returns the log.
func New(db *sql.DB) (*Log, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate event log: %w", err)
	}
	return &Log{db: db}, nil
}

// Append writes one event. A zero CreatedAt means now; the row id is always
// assigned here.
func (l *Log) Append(e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	e.ID = uuid.New().String()

	_, err := l.db.Exec(
		`INSERT INTO power_events (id, kind, detail, wakefulness, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		e.ID,
		e.Kind,
		nullIfEmpty(e.Detail),
		e.Wakefulness,
		e.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// Recent returns the newest events, newest first.
func (l *Log) Recent(limit int) ([]Entry, error) {
	rows, err := l.db.Query(
		`SELECT id, kind, COALESCE(detail, ''), wakefulness, created_at
		 FROM power_events ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var created string
		if err := rows.Scan(&e.ID, &e.Kind, &e.Detail, &e.Wakefulness, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if t, perr := time.Parse(time.RFC3339Nano, created); perr == nil {
			e.CreatedAt = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
