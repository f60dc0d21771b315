// Package scheduler drives one source through its connect, poll and
// backoff lifecycle. Successful poll batches go to the event sink;
// transport failures tear the connection down and retry with
// exponential backoff, while data failures keep the connection up so a
// single bad payload never turns into a reconnect storm.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/carverauto/faultradar/pkg/metrics"
	"github.com/carverauto/faultradar/pkg/models"
	"github.com/carverauto/faultradar/pkg/source"
)

const (
	defaultInterval       = time.Second
	defaultTimeout        = 3 * time.Second
	defaultInitialBackoff = time.Second
	defaultMaxBackoff     = 30 * time.Second
)

// Config holds the poll cadence and retry tuning.
type Config struct {
	Interval       time.Duration
	Timeout        time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = defaultInterval
	}

	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}

	if c.InitialBackoff <= 0 {
		c.InitialBackoff = defaultInitialBackoff
	}

	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = defaultMaxBackoff
	}

	return c
}

// Scheduler owns the poll loop for a single source.
type Scheduler struct {
	source    source.Source
	sink      EventSink
	collector metrics.SampleCollector
	config    Config

	mu     sync.Mutex
	status models.SourceStatus
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a scheduler for src. Batches are delivered to sink in
// poll order. collector may be nil if poll samples are not wanted.
func New(src source.Source, sink EventSink, collector metrics.SampleCollector, cfg Config) *Scheduler {
	cfg = cfg.withDefaults()

	return &Scheduler{
		source:    src,
		sink:      sink,
		collector: collector,
		config:    cfg,
		status: models.SourceStatus{
			Source:         src.Name(),
			State:          models.StateIdle,
			Health:         models.HealthDisconnected,
			CurrentBackoff: cfg.InitialBackoff,
		},
	}
}

// Start launches the poll loop. It returns an error if the scheduler
// is already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return errAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	log.Printf("Starting scheduler for source %s (interval %s, timeout %s)",
		s.source.Name(), s.config.Interval, s.config.Timeout)

	go s.run(runCtx, s.done)

	return nil
}

// Stop cancels the poll loop and waits for it to exit or for ctx to
// expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()

	if s.cancel == nil {
		s.mu.Unlock()
		return errNotStarted
	}

	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler for %s did not stop: %w", s.source.Name(), ctx.Err())
	}
}

// Status returns a copy of the current supervision state.
func (s *Scheduler) Status() models.SourceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.status
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer s.shutdown()

	backoff := s.config.InitialBackoff

	for {
		if ctx.Err() != nil {
			return
		}

		s.noteConnecting()
		log.Printf("Connecting source %s", s.source.Name())

		connectCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
		err := s.source.Connect(connectCtx)

		cancel()

		if err != nil {
			log.Printf("Failed to connect source %s, retrying in %s: %v", s.source.Name(), backoff, err)
			s.noteDisconnected(err, backoff)

			if !sleepCtx(ctx, backoff) {
				return
			}

			backoff = nextBackoff(backoff, s.config.MaxBackoff)

			continue
		}

		s.noteConnected()
		log.Printf("Source %s connected", s.source.Name())

		polledOK, lastErr := s.pollLoop(ctx)
		if ctx.Err() != nil {
			return
		}

		// One successful poll resets the retry ladder.
		if polledOK {
			backoff = s.config.InitialBackoff
		}

		if err := s.source.Disconnect(); err != nil {
			log.Printf("Error disconnecting source %s: %v", s.source.Name(), err)
		}

		s.noteDisconnected(lastErr, backoff)
		log.Printf("Source %s disconnected, reconnecting in %s", s.source.Name(), backoff)

		if !sleepCtx(ctx, backoff) {
			return
		}

		backoff = nextBackoff(backoff, s.config.MaxBackoff)
	}
}

// pollLoop polls immediately and then on every tick until the context
// ends or the transport fails. It reports whether any poll succeeded
// during this connected period, and the failure that ended the loop.
func (s *Scheduler) pollLoop(ctx context.Context) (polledOK bool, err error) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		ok, pollErr := s.pollOnce(ctx)

		polledOK = polledOK || ok
		if pollErr != nil {
			return polledOK, pollErr
		}

		select {
		case <-ctx.Done():
			return polledOK, nil
		case <-ticker.C:
		}
	}
}

// pollOnce runs a single poll cycle. ok is true on a clean poll. A
// non-nil error means the transport failed; data errors are logged and
// swallowed so the next cycle proceeds on the same connection.
func (s *Scheduler) pollOnce(ctx context.Context) (ok bool, err error) {
	s.noteState(models.StatePolling)

	pollCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	start := time.Now()
	events, err := s.pollWithDeadline(pollCtx)
	elapsed := time.Since(start)

	s.recordSample(elapsed, len(events), err != nil)

	if ctx.Err() != nil {
		return false, nil
	}

	if err != nil {
		s.notePollFailure(err, source.IsDataError(err))

		if source.IsDataError(err) {
			log.Printf("Source %s returned bad data: %v", s.source.Name(), err)
			return false, nil
		}

		log.Printf("Source %s poll failed: %v", s.source.Name(), err)

		return false, err
	}

	s.notePollSuccess()

	if len(events) > 0 {
		log.Printf("Source %s delivered %d events in %s", s.source.Name(), len(events), elapsed)
	}

	if err := s.sink.ApplyBatch(ctx, events); err != nil {
		log.Printf("Failed to apply batch from %s: %v", s.source.Name(), err)
	}

	return true, nil
}

// pollWithDeadline runs Poll in its own goroutine so the deadline
// holds even when an adapter ignores context cancellation. A late
// result from an abandoned poll is discarded.
func (s *Scheduler) pollWithDeadline(ctx context.Context) ([]models.RawEvent, error) {
	type pollResult struct {
		events []models.RawEvent
		err    error
	}

	resultCh := make(chan pollResult, 1)

	go func() {
		events, err := s.source.Poll(ctx)
		resultCh <- pollResult{events: events, err: err}
	}()

	select {
	case res := <-resultCh:
		return res.events, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: no reply within %s", source.ErrTimeout, s.config.Timeout)
		}

		return nil, ctx.Err()
	}
}

func (s *Scheduler) recordSample(elapsed time.Duration, events int, failed bool) {
	if s.collector == nil {
		return
	}

	s.collector.AddSample(models.PollSample{
		Timestamp: time.Now(),
		Source:    s.source.Name(),
		Duration:  elapsed,
		Events:    events,
		Failed:    failed,
	})
}

func (s *Scheduler) shutdown() {
	if err := s.source.Disconnect(); err != nil {
		log.Printf("Error disconnecting source %s: %v", s.source.Name(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.State = models.StateIdle
	s.status.Health = models.HealthDisconnected
}

func (s *Scheduler) noteConnecting() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.State = models.StateConnecting
	s.status.Health = models.HealthDisconnected
}

func (s *Scheduler) noteConnected() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.State = models.StateConnected
	s.status.Health = models.HealthConnected
	s.status.ConnectedSince = time.Now()
	s.status.LastError = ""
}

func (s *Scheduler) noteState(state models.SchedulerState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.State = state
}

func (s *Scheduler) notePollSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.State = models.StateConnected
	s.status.Health = models.HealthConnected
	s.status.LastPoll = time.Now()
	s.status.LastError = ""
	s.status.TotalPolls++
	s.status.ConsecutiveFailures = 0
	s.status.CurrentBackoff = s.config.InitialBackoff
}

func (s *Scheduler) notePollFailure(err error, dataError bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.LastPoll = time.Now()
	s.status.LastError = err.Error()
	s.status.TotalPolls++
	s.status.FailedPolls++
	s.status.ConsecutiveFailures++

	if dataError {
		s.status.State = models.StateConnected
		s.status.Health = models.HealthDegraded
	}
}

func (s *Scheduler) noteDisconnected(err error, backoff time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.State = models.StateDisconnected
	s.status.Health = models.HealthDisconnected
	s.status.CurrentBackoff = backoff

	if err != nil {
		s.status.LastError = err.Error()
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		next = maxBackoff
	}

	return next
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
