/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package monitor assembles the fault monitoring pipeline: equipment
// model, telemetry source, poll scheduler, reconciliation, state
// store, journal, notifications and the operator API.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/carverauto/faultradar/pkg/api"
	"github.com/carverauto/faultradar/pkg/config"
	"github.com/carverauto/faultradar/pkg/db"
	"github.com/carverauto/faultradar/pkg/equipment"
	"github.com/carverauto/faultradar/pkg/metrics"
	"github.com/carverauto/faultradar/pkg/models"
	"github.com/carverauto/faultradar/pkg/notify"
	"github.com/carverauto/faultradar/pkg/publish"
	"github.com/carverauto/faultradar/pkg/reconcile"
	"github.com/carverauto/faultradar/pkg/scheduler"
	"github.com/carverauto/faultradar/pkg/source"
	"github.com/carverauto/faultradar/pkg/source/opcua"
	"github.com/carverauto/faultradar/pkg/source/snmp"
	"github.com/carverauto/faultradar/pkg/state"
)

const (
	metricsBufferSize      = 128
	retentionSweepInterval = time.Hour
	healthWatchInterval    = 5 * time.Second
)

// Server drives one telemetry source through the poll scheduler and
// fans reconciled snapshots out to the store, journal, notifier and
// publisher. It implements the lifecycle Service interface.
type Server struct {
	cfg       *config.MonitorConfig
	registry  source.Registry
	store     *state.Store
	metrics   *metrics.Manager
	database  db.Service
	notifier  notify.Notifier
	cleanup   *notify.CleanupService
	publisher *publish.Publisher

	// switchMu serializes source switches against each other and
	// against shutdown.
	switchMu sync.Mutex

	mu        sync.Mutex
	model     *equipment.Model
	modelPath string
	engine    *reconcile.Engine
	src       source.Source
	sched     *scheduler.Scheduler
	apiServer api.Service
	runCtx    context.Context
	cancel    context.CancelFunc
}

// DefaultRegistry returns a registry with all built-in source adapters
// registered.
func DefaultRegistry() source.Registry {
	r := source.NewRegistry()
	r.Register("simulator", source.NewSimulatorSource)
	r.Register("command", source.NewCommandSource)
	r.Register("opcua", opcua.NewOPCUASource)
	r.Register("snmp", snmp.NewSNMPSource)

	return r
}

// NewServer builds the pipeline from config: equipment model, snapshot
// store, poll metrics, and, when a journal path is configured, the
// SQLite journal with its notification service.
func NewServer(cfg *config.MonitorConfig) (*Server, error) {
	model, err := equipment.Load(cfg.ModelFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load equipment model: %w", err)
	}

	s := &Server{
		cfg:       cfg,
		registry:  DefaultRegistry(),
		store:     state.NewStore(cfg.HistorySize),
		metrics:   metrics.NewManager(metricsBufferSize),
		model:     model,
		modelPath: cfg.ModelFile,
	}

	if cfg.DBPath != "" {
		database, err := db.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}

		s.database = database

		svc := notify.NewService(notify.NewStore(database))
		for i := range cfg.Webhooks {
			svc.AddSender(notify.NewWebhookSender(cfg.Webhooks[i]))
		}

		s.notifier = svc
		s.cleanup = notify.NewCleanupService(svc, notify.CleanupConfig{
			ResolvedRetention:     time.Duration(cfg.Retention),
			AcknowledgedRetention: time.Duration(cfg.Retention),
		})
	}

	if cfg.MQTT != nil && cfg.MQTT.Enabled {
		s.publisher = publish.New(*cfg.MQTT, s.store)
	}

	return s, nil
}

// Store returns the snapshot store, for wiring the API server.
func (s *Server) Store() *state.Store {
	return s.store
}

// DB returns the journal service; nil when persistence is disabled.
func (s *Server) DB() db.Service {
	return s.database
}

// Notifier returns the notification service; nil when persistence is
// disabled.
func (s *Server) Notifier() notify.Notifier {
	return s.notifier
}

// Metrics returns the poll metrics manager.
func (s *Server) Metrics() *metrics.Manager {
	return s.metrics
}

// Registry returns the source registry so callers can add adapters.
func (s *Server) Registry() source.Registry {
	return s.registry
}

// SetAPI attaches the HTTP API server. Must be called before Start.
func (s *Server) SetAPI(svc api.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.apiServer = svc
}

// Start brings up the configured source and the background consumers.
// When an API server is attached it serves HTTP until shutdown, so the
// caller is expected to run Start on its own goroutine.
func (s *Server) Start(ctx context.Context) error {
	log.Printf("Starting fault monitor (model %s, source %s)", s.cfg.ModelFile, s.cfg.Source.Type)

	runCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.runCtx = runCtx
	s.cancel = cancel
	apiServer := s.apiServer
	model := s.model
	modelPath := s.modelPath
	s.mu.Unlock()

	if err := s.SwitchSource(runCtx, s.cfg.Source); err != nil {
		cancel()
		return fmt.Errorf("failed to start source: %w", err)
	}

	if s.publisher != nil {
		if err := s.publisher.Start(); err != nil {
			log.Printf("MQTT publisher failed to start: %v", err)
		}
	}

	if s.cleanup != nil {
		s.cleanup.Start()
	}

	if s.database != nil {
		go s.retentionLoop(runCtx)
	}

	go s.healthWatch(runCtx)

	if apiServer == nil {
		return nil
	}

	apiServer.UpdateModel(model, modelPath)
	apiServer.SetModelHandler(s.LoadModel)
	apiServer.SetSourceHandler(s.switchSourceByType)
	apiServer.SetInjectHandler(s.Inject)
	apiServer.SetStatusHandler(s.Status)

	log.Printf("HTTP API listening on %s", s.cfg.ListenAddr)

	return apiServer.Start(s.cfg.ListenAddr)
}

// Stop tears the pipeline down: HTTP first so no new control
// operations arrive, then the scheduler, then the slower consumers.
func (s *Server) Stop(ctx context.Context) error {
	log.Printf("Stopping fault monitor")

	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.runCtx = nil
	apiServer := s.apiServer
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if apiServer != nil {
		if err := apiServer.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down HTTP API: %v", err)
		}
	}

	s.switchMu.Lock()
	s.mu.Lock()
	sched := s.sched
	s.sched = nil
	s.src = nil
	s.mu.Unlock()
	s.switchMu.Unlock()

	if sched != nil {
		if err := sched.Stop(ctx); err != nil {
			log.Printf("Error stopping scheduler: %v", err)
		}
	}

	if s.publisher != nil {
		s.publisher.Stop()
	}

	if s.cleanup != nil {
		s.cleanup.Stop()
	}

	if s.database != nil {
		if err := s.database.Close(); err != nil {
			return fmt.Errorf("failed to close journal: %w", err)
		}
	}

	return nil
}

// SwitchSource tears down the active source and starts the one spec
// names. Only one source is active at a time. The snapshot resets to
// baseline because nothing observed through the old source carries
// over to the new one.
func (s *Server) SwitchSource(ctx context.Context, spec config.SourceSpec) error {
	if spec.Name == "" {
		spec.Name = spec.Type
	}

	newSrc, err := s.registry.Get(ctx, spec.Type, spec.Name, spec.Config)
	if err != nil {
		return err
	}

	s.switchMu.Lock()
	defer s.switchMu.Unlock()

	s.mu.Lock()
	prev := s.sched
	s.sched = nil
	s.src = nil
	s.mu.Unlock()

	if prev != nil {
		if err := prev.Stop(ctx); err != nil {
			log.Printf("Error stopping previous source: %v", err)
		}
	}

	s.mu.Lock()

	engine, err := reconcile.NewEngine(s.model, newSrc.Mode(), newSrc.Name())
	if err != nil {
		s.mu.Unlock()
		return err
	}

	sched := scheduler.New(newSrc, s, s.metrics, scheduler.Config{
		Interval: time.Duration(s.cfg.PollInterval),
		Timeout:  time.Duration(s.cfg.PollTimeout),
	})

	s.src = newSrc
	s.engine = engine
	s.sched = sched
	s.store.Reset(engine.Baseline(time.Now()))
	s.mu.Unlock()

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	log.Printf("Active source is now %s (%s mode)", newSrc.Name(), newSrc.Mode())

	return nil
}

// switchSourceByType is the API-facing switch: the request names a
// registered adapter type and the adapter starts with its default
// configuration.
func (s *Server) switchSourceByType(name string) error {
	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()

	if ctx == nil {
		return errNotStarted
	}

	return s.SwitchSource(ctx, config.SourceSpec{Type: name, Name: name})
}

// LoadModel swaps in the equipment model at path. On failure the
// previous model stays active.
func (s *Server) LoadModel(path string) error {
	model, err := equipment.Load(path)
	if err != nil {
		return err
	}

	s.mu.Lock()

	s.model = model
	s.modelPath = path

	if s.src != nil {
		engine, engineErr := reconcile.NewEngine(model, s.src.Mode(), s.src.Name())
		if engineErr != nil {
			s.mu.Unlock()
			return engineErr
		}

		s.engine = engine
		s.store.Reset(engine.Baseline(time.Now()))
	}

	apiServer := s.apiServer
	s.mu.Unlock()

	if apiServer != nil {
		apiServer.UpdateModel(model, path)
	}

	log.Printf("Equipment model loaded from %s (%d components)", path, len(model.Components))

	return nil
}

// Inject forwards a manual test event to the active source. Only
// sources implementing the Injector interface accept it.
func (s *Server) Inject(req api.InjectRequest) error {
	s.mu.Lock()
	src := s.src
	s.mu.Unlock()

	if src == nil {
		return errNotStarted
	}

	injector, ok := src.(source.Injector)
	if !ok {
		return fmt.Errorf("%w: %s", source.ErrInjectUnsupported, src.Name())
	}

	switch req.Action {
	case "raise-fault":
		injector.RaiseFault(req.Code, req.Description)
	case "raise-alarm":
		injector.RaiseAlarm(req.Code, req.Description)
	case "clear-all":
		injector.ClearAll()
	default:
		return fmt.Errorf("%w: %s", errUnknownAction, req.Action)
	}

	log.Printf("Injected %s on source %s", req.Action, src.Name())

	return nil
}

// Status reports the active source's supervision state.
func (s *Server) Status() models.SourceStatus {
	s.mu.Lock()
	sched := s.sched
	s.mu.Unlock()

	if sched == nil {
		return models.SourceStatus{
			Source: s.cfg.Source.Name,
			State:  models.StateIdle,
			Health: models.HealthDisconnected,
		}
	}

	return sched.Status()
}

// ApplyBatch reconciles one poll batch into a new snapshot and feeds
// the journal and notifier. The scheduler is the only caller.
func (s *Server) ApplyBatch(ctx context.Context, events []models.RawEvent) error {
	now := time.Now()

	s.mu.Lock()

	engine := s.engine
	if engine == nil {
		s.mu.Unlock()
		return errNotStarted
	}

	var sourceName string
	if s.src != nil {
		sourceName = s.src.Name()
	}

	prev := s.store.Current()
	snap := engine.Apply(prev, events, now)
	s.store.Publish(snap)
	s.mu.Unlock()

	transitions := diffTransitions(prev, snap)

	if s.database != nil {
		if len(events) > 0 {
			if err := s.database.RecordEvents(sourceName, events, now); err != nil {
				log.Printf("Failed to journal events: %v", err)
			}
		}

		if len(transitions) > 0 {
			if err := s.database.RecordTransitions(transitions); err != nil {
				log.Printf("Failed to journal transitions: %v", err)
			}
		}
	}

	s.notifyTransitions(ctx, transitions)

	return nil
}

// diffTransitions lists components whose status changed between two
// consecutive snapshots, ordered by component id.
func diffTransitions(prev, next *models.Snapshot) []db.Transition {
	if next == nil {
		return nil
	}

	var out []db.Transition

	for id, cs := range next.Components {
		prevStatus := models.StatusNormal

		if prev != nil {
			if p, ok := prev.Components[id]; ok {
				prevStatus = p.Status
			}
		}

		if cs.Status == prevStatus {
			continue
		}

		out = append(out, db.Transition{
			ComponentID: id,
			PrevStatus:  prevStatus,
			NewStatus:   cs.Status,
			ActiveCodes: cs.Codes(),
			Sequence:    next.Sequence,
			Timestamp:   cs.LastChanged,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].ComponentID < out[j].ComponentID
	})

	return out
}

func (s *Server) notifyTransitions(ctx context.Context, transitions []db.Transition) {
	if s.notifier == nil {
		return
	}

	for i := range transitions {
		s.notifyTransition(ctx, &transitions[i])
	}
}

// notifyTransition translates one status change into the notification
// lifecycle: a raise opens a fault or alarm notification, recovery
// resolves it and leaves an informational trace.
func (s *Server) notifyTransition(ctx context.Context, tr *db.Transition) {
	faultKey := "component:" + tr.ComponentID + ":fault"
	alarmKey := "component:" + tr.ComponentID + ":alarm"
	recoveredKey := "component:" + tr.ComponentID + ":recovered"

	switch tr.NewStatus {
	case models.StatusFault:
		s.resolveKey(ctx, alarmKey)
		s.resolveKey(ctx, recoveredKey)
		s.raise(ctx, notify.Request{
			DedupeKey:   faultKey,
			ComponentID: tr.ComponentID,
			Level:       notify.LevelError,
			Title:       fmt.Sprintf("Fault on %s", tr.ComponentID),
			Message:     fmt.Sprintf("Component %s entered fault state (was %s)", tr.ComponentID, tr.PrevStatus),
			Codes:       tr.ActiveCodes,
		})
	case models.StatusAlarm:
		s.resolveKey(ctx, faultKey)
		s.resolveKey(ctx, recoveredKey)
		s.raise(ctx, notify.Request{
			DedupeKey:   alarmKey,
			ComponentID: tr.ComponentID,
			Level:       notify.LevelWarning,
			Title:       fmt.Sprintf("Alarm on %s", tr.ComponentID),
			Message:     fmt.Sprintf("Component %s entered alarm state (was %s)", tr.ComponentID, tr.PrevStatus),
			Codes:       tr.ActiveCodes,
		})
	case models.StatusNormal:
		s.resolveKey(ctx, faultKey)
		s.resolveKey(ctx, alarmKey)
		s.raise(ctx, notify.Request{
			DedupeKey:   recoveredKey,
			ComponentID: tr.ComponentID,
			Level:       notify.LevelInfo,
			Title:       fmt.Sprintf("%s recovered", tr.ComponentID),
			Message:     fmt.Sprintf("Component %s returned to normal (was %s)", tr.ComponentID, tr.PrevStatus),
		})
	}
}

func (s *Server) raise(ctx context.Context, req notify.Request) {
	if _, err := s.notifier.Notify(ctx, req); err != nil {
		if errors.Is(err, notify.ErrDuplicate) {
			return
		}

		log.Printf("Failed to raise notification %q: %v", req.Title, err)
	}
}

func (s *Server) resolveKey(ctx context.Context, key string) {
	if err := s.notifier.ResolveKey(ctx, key); err != nil {
		log.Printf("Failed to resolve notification key %q: %v", key, err)
	}
}

// healthWatch raises notifications when the source transport health
// changes. Losing telemetry is not a component fault, but it still has
// to reach the operator.
func (s *Server) healthWatch(ctx context.Context) {
	ticker := time.NewTicker(healthWatchInterval)
	defer ticker.Stop()

	var last models.SourceHealth

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		status := s.Status()
		if status.Health == last {
			continue
		}

		s.noteHealthChange(ctx, status, last)
		last = status.Health
	}
}

func (s *Server) noteHealthChange(ctx context.Context, status models.SourceStatus, prev models.SourceHealth) {
	log.Printf("Source %s health changed: %s -> %s", status.Source, prev, status.Health)

	if s.notifier == nil {
		return
	}

	key := "source:" + status.Source + ":health"

	switch status.Health {
	case models.HealthConnected:
		// The initial connect is not a recovery.
		if prev == "" {
			return
		}

		s.resolveKey(ctx, key)
		s.raise(ctx, notify.Request{
			DedupeKey: key + ":recovered",
			Level:     notify.LevelInfo,
			Title:     fmt.Sprintf("Source %s reconnected", status.Source),
			Message:   fmt.Sprintf("Telemetry source %s is connected again", status.Source),
		})
	case models.HealthDegraded:
		s.resolveKey(ctx, key+":recovered")
		s.raise(ctx, notify.Request{
			DedupeKey: key,
			Level:     notify.LevelWarning,
			Title:     fmt.Sprintf("Source %s degraded", status.Source),
			Message:   fmt.Sprintf("Telemetry source %s is returning bad data: %s", status.Source, status.LastError),
		})
	case models.HealthDisconnected:
		s.resolveKey(ctx, key+":recovered")
		s.raise(ctx, notify.Request{
			DedupeKey: key,
			Level:     notify.LevelError,
			Title:     fmt.Sprintf("Source %s disconnected", status.Source),
			Message:   fmt.Sprintf("Telemetry source %s lost its connection: %s", status.Source, status.LastError),
		})
	}
}

// retentionLoop purges journal rows past the retention window.
func (s *Server) retentionLoop(ctx context.Context) {
	ticker := time.NewTicker(retentionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.database.CleanOldData(time.Duration(s.cfg.Retention)); err != nil {
				log.Printf("Journal retention sweep failed: %v", err)
			}
		}
	}
}
