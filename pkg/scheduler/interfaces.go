// Package scheduler pkg/scheduler/interfaces.go
package scheduler

//go:generate mockgen -destination=mock_scheduler.go -package=scheduler github.com/carverauto/faultradar/pkg/scheduler EventSink

import (
	"context"

	"github.com/carverauto/faultradar/pkg/models"
)

// EventSink consumes the batches the scheduler polls off its source.
type EventSink interface {
	ApplyBatch(ctx context.Context, events []models.RawEvent) error
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(ctx context.Context, events []models.RawEvent) error

func (f EventSinkFunc) ApplyBatch(ctx context.Context, events []models.RawEvent) error {
	return f(ctx, events)
}
