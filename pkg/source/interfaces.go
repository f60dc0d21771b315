// Package source pkg/source/interfaces.go
package source

//go:generate mockgen -destination=mock_source.go -package=source github.com/carverauto/faultradar/pkg/source Source,Injector

import (
	"context"

	"github.com/carverauto/faultradar/pkg/models"
)

// Source is a pluggable telemetry adapter. The scheduler drives the
// lifecycle: Connect, then repeated Poll calls, then Disconnect.
// Implementations must tolerate Disconnect without a prior Connect and
// repeated Disconnect calls.
type Source interface {
	// Connect establishes the underlying transport. It must be safe to
	// call again after a failed Connect or after Disconnect.
	Connect(ctx context.Context) error

	// Poll fetches the current batch of raw events. The meaning of a
	// batch depends on Mode: a full current state in snapshot mode, or
	// new assertions and clears since the last poll in edge mode.
	// Poll must honor ctx cancellation.
	Poll(ctx context.Context) ([]models.RawEvent, error)

	// Disconnect tears down the transport and releases resources.
	Disconnect() error

	// Health reports the adapter's view of its transport.
	Health() models.SourceHealth

	// Mode tells the reconciler how to interpret poll batches.
	Mode() models.ReconcileMode

	// Name returns the configured instance name, used in logs and metrics.
	Name() string
}

// Injector is implemented by sources that accept manually injected
// events, such as the simulator.
type Injector interface {
	RaiseFault(code, description string)
	RaiseAlarm(code, description string)
	ClearAll()
}
