// Package db pkg/db/interfaces.go
package db

import (
	"time"

	"github.com/carverauto/faultradar/pkg/models"
)

//go:generate mockgen -destination=mock_db.go -package=db github.com/carverauto/faultradar/pkg/db Row,Result,Rows,Transaction,Service

// Row represents a database row.
type Row interface {
	Scan(dest ...interface{}) error
}

// Result represents the result of a database operation.
type Result interface {
	LastInsertId() (int64, error)
	RowsAffected() (int64, error)
}

// Rows represents multiple database rows.
type Rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Close() error
	Err() error
}

// Transaction represents operations that can be performed within a
// database transaction.
type Transaction interface {
	Exec(query string, args ...interface{}) (Result, error)
	Query(query string, args ...interface{}) (Rows, error)
	QueryRow(query string, args ...interface{}) Row
	Commit() error
	Rollback() error
}

// Service represents all database operations.
type Service interface {
	// Core database operations.

	Begin() (Transaction, error)
	Close() error
	Exec(query string, args ...interface{}) (Result, error)
	Query(query string, args ...interface{}) (Rows, error)
	QueryRow(query string, args ...interface{}) Row

	// Journal operations.

	RecordEvents(source string, events []models.RawEvent, timestamp time.Time) error
	RecordTransitions(transitions []Transition) error
	GetRecentEvents(limit int) ([]EventRecord, error)
	GetTransitions(componentID string, limit int) ([]Transition, error)
	GetRecentTransitions(limit int) ([]Transition, error)

	// Report operations.

	GetComponentStats(since time.Time) ([]ComponentStat, error)

	// Maintenance operations.

	CleanOldData(retentionPeriod time.Duration) error
}
