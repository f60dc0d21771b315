package models

import (
	"sort"
	"time"
)

// Status is the reconciled display state of a component.
type Status string

const (
	StatusNormal Status = "normal"
	StatusFault  Status = "fault"
	StatusAlarm  Status = "alarm"
)

// UnassignedComponent collects codes that resolve to no model component
// so no event is ever silently dropped.
const UnassignedComponent = "unassigned"

// ReconcileMode describes how a source reports active codes.
type ReconcileMode string

const (
	// ModeSnapshot sources report the full currently-active set every
	// poll; codes absent from a batch have cleared.
	ModeSnapshot ReconcileMode = "snapshot"
	// ModeEdge sources report only newly-raised codes; codes stay
	// active until an explicit clear arrives.
	ModeEdge ReconcileMode = "edge"
)

// ComponentState is one component's entry in a snapshot. ActiveCodes
// is keyed by code; the value records whether the code is fault- or
// alarm-kind, which decides the component status.
type ComponentState struct {
	ComponentID string               `json:"component_id"`
	Status      Status               `json:"status"`
	ActiveCodes map[string]EventKind `json:"active_codes,omitempty"`
	LastChanged time.Time            `json:"last_changed"`
}

// Codes returns the active codes sorted for stable display.
func (c *ComponentState) Codes() []string {
	codes := make([]string, 0, len(c.ActiveCodes))
	for code := range c.ActiveCodes {
		codes = append(codes, code)
	}

	sort.Strings(codes)

	return codes
}

// Snapshot is the reconciled state of every component at one instant.
// Snapshots are immutable once published; each reconciliation cycle
// produces a new one.
type Snapshot struct {
	Sequence    uint64                    `json:"sequence"`
	Source      string                    `json:"source"`
	GeneratedAt time.Time                 `json:"generated_at"`
	Components  map[string]ComponentState `json:"components"`
}

// Component returns the state for id, or an all-normal placeholder
// when the snapshot has no entry for it.
func (s *Snapshot) Component(id string) ComponentState {
	if cs, ok := s.Components[id]; ok {
		return cs
	}

	return ComponentState{ComponentID: id, Status: StatusNormal}
}

// Counts returns the number of components currently in fault and in
// alarm state.
func (s *Snapshot) Counts() (faults, alarms int) {
	for _, cs := range s.Components {
		switch cs.Status {
		case StatusFault:
			faults++
		case StatusAlarm:
			alarms++
		case StatusNormal:
		}
	}

	return faults, alarms
}
