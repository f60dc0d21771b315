// Package models pkg/models/event.go
package models

// EventKind classifies a raw telemetry event.
type EventKind string

const (
	KindFault EventKind = "fault"
	KindAlarm EventKind = "alarm"
	// KindClear is an explicit clear-everything signal emitted by
	// edge-mode sources (e.g. the simulator's clear-all action).
	KindClear EventKind = "clear"
)

// RawEvent is a single fault/alarm observation produced by a source
// during one poll cycle. Events are transient; reconciliation folds
// them into the snapshot.
type RawEvent struct {
	Kind        EventKind `json:"kind"`
	Code        string    `json:"code"`
	Description string    `json:"description,omitempty"`
	// ComponentHint is a component id supplied directly by the source.
	// When present it takes precedence over the model's code maps.
	ComponentHint string `json:"component_hint,omitempty"`
}
