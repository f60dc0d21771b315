package models

import "time"

// SourceHealth reports the transport condition of a source.
type SourceHealth string

const (
	HealthConnected    SourceHealth = "connected"
	HealthDegraded     SourceHealth = "degraded"
	HealthDisconnected SourceHealth = "disconnected"
)

// SchedulerState is the poll scheduler's position in its lifecycle.
type SchedulerState string

const (
	StateIdle         SchedulerState = "idle"
	StateConnecting   SchedulerState = "connecting"
	StateConnected    SchedulerState = "connected"
	StatePolling      SchedulerState = "polling"
	StateDisconnected SchedulerState = "disconnected"
)

// SourceStatus is the supervision surface for the active source:
// connection health plus poll accounting, kept separate from
// fault/alarm state so losing telemetry never looks like all-clear.
type SourceStatus struct {
	Source              string         `json:"source"`
	State               SchedulerState `json:"state"`
	Health              SourceHealth   `json:"health"`
	ConnectedSince      time.Time      `json:"connected_since,omitempty"`
	LastPoll            time.Time      `json:"last_poll,omitempty"`
	LastError           string         `json:"last_error,omitempty"`
	TotalPolls          int64          `json:"total_polls"`
	FailedPolls         int64          `json:"failed_polls"`
	ConsecutiveFailures int            `json:"consecutive_failures"`
	CurrentBackoff      time.Duration  `json:"current_backoff"`
}

// PollSample is one poll cycle measurement.
type PollSample struct {
	Timestamp time.Time     `json:"timestamp"`
	Source    string        `json:"source"`
	Duration  time.Duration `json:"duration"`
	Events    int           `json:"events"`
	Failed    bool          `json:"failed"`
}
