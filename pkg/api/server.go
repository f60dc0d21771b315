// pkg/api/server.go

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"golang.org/x/net/netutil"

	"github.com/carverauto/faultradar/pkg/db"
	"github.com/carverauto/faultradar/pkg/equipment"
	httpx "github.com/carverauto/faultradar/pkg/http"
	"github.com/carverauto/faultradar/pkg/metrics"
	"github.com/carverauto/faultradar/pkg/models"
	"github.com/carverauto/faultradar/pkg/notify"
	"github.com/carverauto/faultradar/pkg/source"
	"github.com/carverauto/faultradar/pkg/state"
)

const (
	defaultMaxConns   = 256
	defaultListLimit  = 100
	requestsPerSecond = 100
	requestBurst      = 10
	readHeaderTimeout = 10 * time.Second
)

func NewAPIServer(store *state.Store, database db.Service, notifier notify.Notifier, collector metrics.SampleCollector) *APIServer {
	s := &APIServer{
		store:     store,
		db:        database,
		notifier:  notifier,
		metrics:   collector,
		maxConns:  defaultMaxConns,
		startedAt: time.Now(),
		clients:   make(map[*websocket.Conn]*wsClient),
		router:    mux.NewRouter(),
	}
	s.setupRoutes()

	return s
}

func (s *APIServer) setupRoutes() {
	s.router.Use(httpx.CommonMiddleware)
	s.router.Use(httpx.RequestLogger)
	s.router.Use(httpx.RateLimit(requestsPerSecond, requestBurst))

	// State endpoints
	s.router.HandleFunc("/api/state", s.getState).Methods("GET")
	s.router.HandleFunc("/api/state/history", s.getStateHistory).Methods("GET")
	s.router.HandleFunc("/api/components", s.getComponents).Methods("GET")
	s.router.HandleFunc("/api/components/{id}", s.getComponent).Methods("GET")

	// Model endpoints
	s.router.HandleFunc("/api/model", s.getModel).Methods("GET")
	s.router.HandleFunc("/api/model", s.loadModel).Methods("POST")

	// Control endpoints
	s.router.HandleFunc("/api/source", s.switchSource).Methods("POST")
	s.router.HandleFunc("/api/inject", s.inject).Methods("POST")

	// Supervision endpoints
	s.router.HandleFunc("/api/status", s.getSystemStatus).Methods("GET")
	s.router.HandleFunc("/api/metrics", s.getPollMetrics).Methods("GET")

	// Journal endpoints
	s.router.HandleFunc("/api/events", s.getEvents).Methods("GET")
	s.router.HandleFunc("/api/transitions", s.getTransitions).Methods("GET")
	s.router.HandleFunc("/api/stats", s.getComponentStats).Methods("GET")

	// Notification endpoints
	s.router.HandleFunc("/api/notifications", s.getNotifications).Methods("GET")
	s.router.HandleFunc("/api/notifications/{id}/ack", s.ackNotification).Methods("POST")

	// Live stream
	s.router.HandleFunc("/api/ws", s.serveWS).Methods("GET")
}

func (s *APIServer) getState(w http.ResponseWriter, _ *http.Request) {
	snap := s.store.Current()
	if snap == nil {
		http.Error(w, "No snapshot available", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		log.Printf("Error encoding snapshot response: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (s *APIServer) getStateHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 0)
	history := s.store.History(limit)

	json.NewEncoder(w).Encode(history)
}

func (s *APIServer) getComponents(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	model := s.model
	s.mu.RUnlock()

	if model == nil {
		http.Error(w, "No model loaded", http.StatusServiceUnavailable)
		return
	}

	snap := s.store.Current()
	views := make([]ComponentView, 0, len(model.Components)+1)

	for i := range model.Components {
		views = append(views, buildView(model.Components[i], snap))
	}

	// Codes that resolved to no model component still show up so they
	// are never invisible to an operator.
	if snap != nil {
		if cs, ok := snap.Components[models.UnassignedComponent]; ok && cs.Status != models.StatusNormal {
			views = append(views, ComponentView{
				Component:   equipment.Component{ID: models.UnassignedComponent, Name: "Unassigned"},
				Status:      cs.Status,
				ActiveCodes: cs.Codes(),
				LastChanged: cs.LastChanged,
			})
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(views); err != nil {
		log.Printf("Error encoding components response: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (s *APIServer) getComponent(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	s.mu.RLock()
	model := s.model
	s.mu.RUnlock()

	if model == nil {
		http.Error(w, "No model loaded", http.StatusServiceUnavailable)
		return
	}

	comp, ok := model.Component(id)
	if !ok {
		http.Error(w, "Component not found", http.StatusNotFound)
		return
	}

	view := buildView(*comp, s.store.Current())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(view)
}

func buildView(comp equipment.Component, snap *models.Snapshot) ComponentView {
	view := ComponentView{Component: comp, Status: models.StatusNormal}

	if snap != nil {
		cs := snap.Component(comp.ID)
		view.Status = cs.Status
		view.ActiveCodes = cs.Codes()
		view.LastChanged = cs.LastChanged
	}

	return view
}

func (s *APIServer) getModel(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	doc := ModelDocument{Model: s.model, Path: s.modelPath, LoadedAt: s.modelLoadedAt}
	s.mu.RUnlock()

	if doc.Model == nil {
		http.Error(w, "No model loaded", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}

func (s *APIServer) loadModel(w http.ResponseWriter, r *http.Request) {
	var req ModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Path == "" {
		http.Error(w, "Model path is required", http.StatusBadRequest)
		return
	}

	s.mu.RLock()
	handler := s.modelHandler
	s.mu.RUnlock()

	if handler == nil {
		http.Error(w, "Model loading is not available", http.StatusServiceUnavailable)
		return
	}

	log.Printf("Loading model from %s", req.Path)

	if err := handler(req.Path); err != nil {
		log.Printf("Error loading model from %s: %v", req.Path, err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"status": "loaded", "path": req.Path})
}

func (s *APIServer) switchSource(w http.ResponseWriter, r *http.Request) {
	var req SourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Source == "" {
		http.Error(w, "Source name is required", http.StatusBadRequest)
		return
	}

	s.mu.RLock()
	handler := s.sourceHandler
	s.mu.RUnlock()

	if handler == nil {
		http.Error(w, "Source switching is not available", http.StatusServiceUnavailable)
		return
	}

	log.Printf("Switching source to %s", req.Source)

	if err := handler(req.Source); err != nil {
		log.Printf("Error switching source to %s: %v", req.Source, err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"status": "switched", "source": req.Source})
}

func (s *APIServer) inject(w http.ResponseWriter, r *http.Request) {
	var req InjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.RLock()
	handler := s.injectHandler
	s.mu.RUnlock()

	if handler == nil {
		http.Error(w, "Injection is not available", http.StatusServiceUnavailable)
		return
	}

	if err := handler(req); err != nil {
		if errors.Is(err, source.ErrInjectUnsupported) {
			http.Error(w, "Active source does not support injection", http.StatusConflict)
			return
		}

		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"status": "injected", "action": req.Action})
}

func (s *APIServer) getSystemStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	statusHandler := s.statusHandler
	startedAt := s.startedAt
	s.mu.RUnlock()

	status := SystemStatus{
		Uptime:     time.Since(startedAt).Round(time.Second).String(),
		LastUpdate: time.Now(),
	}

	if snap := s.store.Current(); snap != nil {
		status.SnapshotSequence = snap.Sequence
		status.TotalComponents = len(snap.Components)
		status.Faults, status.Alarms = snap.Counts()
		status.LastUpdate = snap.GeneratedAt
	}

	if statusHandler != nil {
		status.Source = statusHandler()
	}

	log.Printf("System status: %+v", status)
	json.NewEncoder(w).Encode(status)
}

func (s *APIServer) getPollMetrics(w http.ResponseWriter, _ *http.Request) {
	samples := make(map[string][]models.PollSample)

	if s.metrics != nil {
		for _, src := range s.metrics.ActiveSources() {
			samples[src] = s.metrics.GetSamples(src)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(samples)
}

func (s *APIServer) getEvents(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		http.Error(w, "Journal is not available", http.StatusServiceUnavailable)
		return
	}

	limit := queryInt(r, "limit", defaultListLimit)

	events, err := s.db.GetRecentEvents(limit)
	if err != nil {
		log.Printf("Error fetching events: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(events)
}

func (s *APIServer) getTransitions(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		http.Error(w, "Journal is not available", http.StatusServiceUnavailable)
		return
	}

	limit := queryInt(r, "limit", defaultListLimit)
	componentID := r.URL.Query().Get("component")

	var (
		transitions []db.Transition
		err         error
	)

	if componentID != "" {
		transitions, err = s.db.GetTransitions(componentID, limit)
	} else {
		transitions, err = s.db.GetRecentTransitions(limit)
	}

	if err != nil {
		log.Printf("Error fetching transitions: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(transitions)
}

func (s *APIServer) getComponentStats(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		http.Error(w, "Journal is not available", http.StatusServiceUnavailable)
		return
	}

	hours := queryInt(r, "hours", 24)
	since := time.Now().Add(-time.Duration(hours) * time.Hour)

	stats, err := s.db.GetComponentStats(since)
	if err != nil {
		log.Printf("Error fetching component stats: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

func (s *APIServer) getNotifications(w http.ResponseWriter, r *http.Request) {
	if s.notifier == nil {
		http.Error(w, "Notifications are not available", http.StatusServiceUnavailable)
		return
	}

	q := r.URL.Query()
	filter := notify.Filter{
		ComponentID: q.Get("component"),
		Limit:       queryInt(r, "limit", defaultListLimit),
	}

	if v := q.Get("status"); v != "" {
		status := notify.Status(v)
		filter.Status = &status
	}

	if v := q.Get("level"); v != "" {
		level := notify.Level(v)
		filter.Level = &level
	}

	notifications, err := s.notifier.List(r.Context(), filter)
	if err != nil {
		log.Printf("Error listing notifications: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(notifications)
}

func (s *APIServer) ackNotification(w http.ResponseWriter, r *http.Request) {
	if s.notifier == nil {
		http.Error(w, "Notifications are not available", http.StatusServiceUnavailable)
		return
	}

	vars := mux.Vars(r)

	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid notification ID", http.StatusBadRequest)
		return
	}

	var req AckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	err = s.notifier.Acknowledge(r.Context(), notify.AcknowledgeRequest{
		NotificationID: id,
		AcknowledgedBy: req.AcknowledgedBy,
		Comment:        req.Comment,
	})

	switch {
	case errors.Is(err, notify.ErrNotificationNotFound):
		http.Error(w, "Notification not found", http.StatusNotFound)
	case errors.Is(err, notify.ErrAlreadyAcknowledged):
		http.Error(w, "Notification already acknowledged", http.StatusConflict)
	case errors.Is(err, notify.ErrInvalidRequest):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case err != nil:
		log.Printf("Error acknowledging notification %d: %v", id, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	default:
		json.NewEncoder(w).Encode(map[string]string{"status": "acknowledged"})
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}

	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}

	return n
}

// UpdateModel installs the model the handlers serve. The monitor calls
// it once at startup and again after every successful load.
func (s *APIServer) UpdateModel(model *equipment.Model, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log.Printf("Model updated: %s (%d components)", path, len(model.Components))

	s.model = model
	s.modelPath = path
	s.modelLoadedAt = time.Now()
}

func (s *APIServer) SetModelHandler(handler func(path string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modelHandler = handler
}

func (s *APIServer) SetSourceHandler(handler func(name string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sourceHandler = handler
}

func (s *APIServer) SetInjectHandler(handler func(req InjectRequest) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.injectHandler = handler
}

func (s *APIServer) SetStatusHandler(handler func() models.SourceStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusHandler = handler
}

// Start serves the API on addr until Shutdown. The listener is capped
// so a misbehaving client cannot exhaust file descriptors.
func (s *APIServer) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	snapshots, cancel := s.store.Subscribe(wsSubscribeBuffer)

	s.mu.Lock()
	s.unsubscribe = cancel
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	srv := s.httpServer
	s.mu.Unlock()

	go s.watchSnapshots(snapshots)

	log.Printf("HTTP API listening on %s", addr)

	err = srv.Serve(netutil.LimitListener(ln, s.maxConns))
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}

// Shutdown stops the snapshot stream, drops websocket clients and
// closes the HTTP server.
func (s *APIServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.unsubscribe
	s.unsubscribe = nil
	srv := s.httpServer
	s.httpServer = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	s.closeClients()

	if srv == nil {
		return nil
	}

	return srv.Shutdown(ctx)
}
