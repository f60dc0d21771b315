package db

import (
	"time"

	"github.com/carverauto/faultradar/pkg/models"
)

// EventRecord is one raw event journaled from a poll batch.
type EventRecord struct {
	ID            int64            `json:"id"`
	Source        string           `json:"source"`
	Kind          models.EventKind `json:"kind"`
	Code          string           `json:"code,omitempty"`
	Description   string           `json:"description,omitempty"`
	ComponentHint string           `json:"component_hint,omitempty"`
	Timestamp     time.Time        `json:"timestamp"`
}

// Transition is one component status change produced by
// reconciliation.
type Transition struct {
	ID          int64         `json:"id"`
	ComponentID string        `json:"component_id"`
	PrevStatus  models.Status `json:"prev_status"`
	NewStatus   models.Status `json:"new_status"`
	ActiveCodes []string      `json:"active_codes,omitempty"`
	Sequence    uint64        `json:"sequence"`
	Timestamp   time.Time     `json:"timestamp"`
}

// ComponentStat aggregates journal activity for one component over a
// report window.
type ComponentStat struct {
	ComponentID    string    `json:"component_id"`
	Transitions    int64     `json:"transitions"`
	FaultEntries   int64     `json:"fault_entries"`
	AlarmEntries   int64     `json:"alarm_entries"`
	LastTransition time.Time `json:"last_transition"`
}
