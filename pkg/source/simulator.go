package source

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/carverauto/faultradar/pkg/models"
)

// Simulator is an in-memory source for demos and tests. Events are
// injected through the Injector interface and handed out on the next
// poll. It runs in edge mode, so injected faults stay active until an
// explicit clear.
type Simulator struct {
	name string

	mu        sync.Mutex
	queue     []models.RawEvent
	connected bool
}

// NewSimulator creates a simulator source with the given instance name.
func NewSimulator(name string) *Simulator {
	return &Simulator{name: name}
}

// NewSimulatorSource is the registry factory for the simulator. The
// config block is unused.
func NewSimulatorSource(_ context.Context, name string, _ json.RawMessage) (Source, error) {
	return NewSimulator(name), nil
}

func (s *Simulator) Connect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connected = true

	return nil
}

func (s *Simulator) Poll(ctx context.Context) ([]models.RawEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil, ErrNotConnected
	}

	events := s.queue
	s.queue = nil

	return events, nil
}

func (s *Simulator) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connected = false
	s.queue = nil

	return nil
}

func (s *Simulator) Health() models.SourceHealth {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return models.HealthConnected
	}

	return models.HealthDisconnected
}

func (*Simulator) Mode() models.ReconcileMode {
	return models.ModeEdge
}

func (s *Simulator) Name() string {
	return s.name
}

// RaiseFault queues a fault assertion for the next poll.
func (s *Simulator) RaiseFault(code, description string) {
	s.inject(models.RawEvent{Kind: models.KindFault, Code: code, Description: description})
}

// RaiseAlarm queues an alarm assertion for the next poll.
func (s *Simulator) RaiseAlarm(code, description string) {
	s.inject(models.RawEvent{Kind: models.KindAlarm, Code: code, Description: description})
}

// ClearAll queues a clear-all marker. Events queued before the marker
// are still delivered; the reconciler wipes them when it applies the
// clear.
func (s *Simulator) ClearAll() {
	s.inject(models.RawEvent{Kind: models.KindClear})
}

func (s *Simulator) inject(ev models.RawEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queue = append(s.queue, ev)
}
