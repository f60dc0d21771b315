// Package db pkg/db/db.go provides SQLite persistence for the fault
// journal: raw events as they arrive and component status transitions
// as reconciliation produces them.
package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/carverauto/faultradar/pkg/db/migrations"
	"github.com/carverauto/faultradar/pkg/models"
)

const createTablesSQL = `
	-- Raw telemetry events as received from the active source
	CREATE TABLE IF NOT EXISTS raw_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT NOT NULL,
		kind TEXT NOT NULL,
		code TEXT,
		description TEXT,
		component_hint TEXT,
		timestamp TIMESTAMP NOT NULL
	);

	-- Component status transitions from reconciliation
	CREATE TABLE IF NOT EXISTS transitions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		component_id TEXT NOT NULL,
		prev_status TEXT NOT NULL,
		new_status TEXT NOT NULL,
		active_codes TEXT,
		sequence INTEGER NOT NULL,
		timestamp TIMESTAMP NOT NULL
	);

	-- Operator notifications raised from status transitions
	CREATE TABLE IF NOT EXISTS notifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		dedupe_key TEXT NOT NULL,
		component_id TEXT,
		level TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		status TEXT NOT NULL,
		codes TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS notification_deliveries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		notification_id INTEGER NOT NULL,
		target TEXT NOT NULL,
		status TEXT NOT NULL,
		detail TEXT,
		sent_at TIMESTAMP,
		FOREIGN KEY (notification_id) REFERENCES notifications(id)
	);

	CREATE TABLE IF NOT EXISTS notification_acks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		notification_id INTEGER NOT NULL,
		acknowledged_by TEXT NOT NULL,
		comment TEXT,
		acknowledged_at TIMESTAMP NOT NULL,
		FOREIGN KEY (notification_id) REFERENCES notifications(id)
	);

	-- Indexes for history and report queries
	CREATE INDEX IF NOT EXISTS idx_raw_events_time
		ON raw_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_transitions_component_time
		ON transitions(component_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_transitions_time
		ON transitions(timestamp);
	CREATE INDEX IF NOT EXISTS idx_notifications_dedupe
		ON notifications(dedupe_key, status);
	CREATE INDEX IF NOT EXISTS idx_notifications_created
		ON notifications(created_at);

	-- Enable WAL mode for better concurrent access
	PRAGMA journal_mode=WAL;
	PRAGMA foreign_keys=ON;
	`

// DB represents the database connection and operations.
type DB struct {
	*sql.DB
}

// New creates a new database connection and initializes the schema.
func New(dbPath string) (Service, error) {
	sqlDB, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedOpenDB, err)
	}

	// Enable WAL mode for better concurrent access
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToEnableWAL, err)
	}

	db := &DB{sqlDB}
	if err := db.initSchema(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToInit, err)
	}

	if err := migrations.Migration_AddActiveCodesColumn(sqlDB); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToMigrate, err)
	}

	return db, nil
}

// initSchema creates the database tables if they don't exist.
func (db *DB) initSchema() error {
	_, err := db.DB.Exec(createTablesSQL)

	return err
}

// RecordEvents journals a poll batch under its source name. An empty
// batch is a no-op.
func (db *DB) RecordEvents(source string, events []models.RawEvent, timestamp time.Time) (err error) {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToBeginTx, err)
	}

	defer func() {
		err = finishTx(tx, err)
	}()

	const insertSQL = `
		INSERT INTO raw_events (source, kind, code, description, component_hint, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	for i := range events {
		ev := &events[i]

		if _, err = tx.Exec(insertSQL,
			source,
			string(ev.Kind),
			ev.Code,
			ev.Description,
			ev.ComponentHint,
			timestamp,
		); err != nil {
			return fmt.Errorf("%w raw event: %w", ErrFailedToInsert, err)
		}
	}

	return nil
}

// RecordTransitions journals component status changes.
func (db *DB) RecordTransitions(transitions []Transition) (err error) {
	if len(transitions) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToBeginTx, err)
	}

	defer func() {
		err = finishTx(tx, err)
	}()

	const insertSQL = `
		INSERT INTO transitions (component_id, prev_status, new_status, active_codes, sequence, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	for i := range transitions {
		tr := &transitions[i]

		var codes []byte

		if len(tr.ActiveCodes) > 0 {
			codes, err = json.Marshal(tr.ActiveCodes)
			if err != nil {
				return fmt.Errorf("%w transition codes: %w", ErrFailedToInsert, err)
			}
		}

		if _, err = tx.Exec(insertSQL,
			tr.ComponentID,
			string(tr.PrevStatus),
			string(tr.NewStatus),
			string(codes),
			int64(tr.Sequence),
			tr.Timestamp,
		); err != nil {
			return fmt.Errorf("%w transition: %w", ErrFailedToInsert, err)
		}
	}

	return nil
}

// GetRecentEvents returns the newest journaled raw events.
func (db *DB) GetRecentEvents(limit int) ([]EventRecord, error) {
	const querySQL = `
		SELECT id, source, kind, code, description, component_hint, timestamp
		FROM raw_events
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := db.Query(querySQL, limit)
	if err != nil {
		return nil, fmt.Errorf("%w raw events: %w", ErrFailedToQuery, err)
	}
	defer CloseRows(rows)

	var events []EventRecord

	for rows.Next() {
		var ev EventRecord

		var kind string

		if err := rows.Scan(&ev.ID, &ev.Source, &kind, &ev.Code, &ev.Description, &ev.ComponentHint, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("%w raw event row: %w", ErrFailedToScan, err)
		}

		ev.Kind = models.EventKind(kind)
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w raw events: %w", ErrFailedToQuery, err)
	}

	return events, nil
}

// GetTransitions returns the newest transitions for one component.
func (db *DB) GetTransitions(componentID string, limit int) ([]Transition, error) {
	const querySQL = `
		SELECT id, component_id, prev_status, new_status, active_codes, sequence, timestamp
		FROM transitions
		WHERE component_id = ?
		ORDER BY id DESC
		LIMIT ?
	`

	return db.queryTransitions(querySQL, componentID, limit)
}

// GetRecentTransitions returns the newest transitions across all
// components.
func (db *DB) GetRecentTransitions(limit int) ([]Transition, error) {
	const querySQL = `
		SELECT id, component_id, prev_status, new_status, active_codes, sequence, timestamp
		FROM transitions
		ORDER BY id DESC
		LIMIT ?
	`

	return db.queryTransitions(querySQL, limit)
}

func (db *DB) queryTransitions(querySQL string, args ...interface{}) ([]Transition, error) {
	rows, err := db.Query(querySQL, args...)
	if err != nil {
		return nil, fmt.Errorf("%w transitions: %w", ErrFailedToQuery, err)
	}
	defer CloseRows(rows)

	var transitions []Transition

	for rows.Next() {
		var tr Transition

		var prev, next, codes string

		if err := rows.Scan(&tr.ID, &tr.ComponentID, &prev, &next, &codes, &tr.Sequence, &tr.Timestamp); err != nil {
			return nil, fmt.Errorf("%w transition row: %w", ErrFailedToScan, err)
		}

		tr.PrevStatus = models.Status(prev)
		tr.NewStatus = models.Status(next)

		if codes != "" {
			if err := json.Unmarshal([]byte(codes), &tr.ActiveCodes); err != nil {
				return nil, fmt.Errorf("%w transition codes: %w", ErrFailedToScan, err)
			}
		}

		transitions = append(transitions, tr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w transitions: %w", ErrFailedToQuery, err)
	}

	return transitions, nil
}

func finishTx(tx Transaction, err error) error {
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}

		return err
	}

	return tx.Commit()
}
