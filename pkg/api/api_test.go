package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/faultradar/pkg/db"
	"github.com/carverauto/faultradar/pkg/equipment"
	"github.com/carverauto/faultradar/pkg/metrics"
	"github.com/carverauto/faultradar/pkg/models"
	"github.com/carverauto/faultradar/pkg/notify"
	"github.com/carverauto/faultradar/pkg/source"
	"github.com/carverauto/faultradar/pkg/state"
)

const testModelJSON = `{
  "title": "Drive Line",
  "components": [
    {"id": "rectifier", "name": "Rectifier", "x": 10, "y": 10, "w": 80, "h": 40},
    {"id": "inverter", "name": "Inverter", "x": 110, "y": 10, "w": 80, "h": 40},
    {"id": "fan", "name": "Cooling Fan", "x": 210, "y": 10, "w": 80, "h": 40}
  ],
  "connections": [
    {"from": "rectifier", "to": "inverter"},
    {"from": "inverter", "to": "fan"}
  ],
  "fault_map": {"F30012": "inverter"},
  "alarm_map": {"A05010": "fan"}
}`

func newTestServer(t *testing.T) *APIServer {
	t.Helper()

	database, err := db.New(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = database.Close()
	})

	notifier := notify.NewService(notify.NewStore(database))

	return NewAPIServer(state.NewStore(8), database, notifier, metrics.NewManager(16))
}

func loadTestModel(t *testing.T) *equipment.Model {
	t.Helper()

	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte(testModelJSON), 0o600))

	model, err := equipment.Load(path)
	require.NoError(t, err)

	return model
}

func testSnapshot(seq uint64) *models.Snapshot {
	return &models.Snapshot{
		Sequence:    seq,
		Source:      "simulator",
		GeneratedAt: time.Now(),
		Components: map[string]models.ComponentState{
			"inverter": {
				ComponentID: "inverter",
				Status:      models.StatusFault,
				ActiveCodes: map[string]models.EventKind{"F30012": models.KindFault},
				LastChanged: time.Now(),
			},
			"fan": {ComponentID: "fan", Status: models.StatusNormal},
		},
	}
}

func doGET(s *APIServer, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	return rec
}

func doPOST(s *APIServer, path string, body interface{}) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data)))

	return rec
}

func TestGetStateBeforeFirstSnapshot(t *testing.T) {
	s := newTestServer(t)

	rec := doGET(s, "/api/state")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetStateReturnsCurrentSnapshot(t *testing.T) {
	s := newTestServer(t)
	s.store.Publish(testSnapshot(7))

	rec := doGET(s, "/api/state")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap models.Snapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))

	assert.Equal(t, uint64(7), snap.Sequence)
	assert.Equal(t, "simulator", snap.Source)
	assert.Equal(t, models.StatusFault, snap.Component("inverter").Status)
}

func TestStateHistoryLimit(t *testing.T) {
	s := newTestServer(t)

	for seq := uint64(1); seq <= 3; seq++ {
		s.store.Publish(testSnapshot(seq))
	}

	rec := doGET(s, "/api/state/history?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var history []models.Snapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&history))

	require.Len(t, history, 2)
	assert.Equal(t, uint64(3), history[0].Sequence)
	assert.Equal(t, uint64(2), history[1].Sequence)
}

func TestComponentsRequireModel(t *testing.T) {
	s := newTestServer(t)

	rec := doGET(s, "/api/components")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestComponentsJoinModelAndState(t *testing.T) {
	s := newTestServer(t)
	s.UpdateModel(loadTestModel(t), "model.json")
	s.store.Publish(testSnapshot(1))

	rec := doGET(s, "/api/components")
	require.Equal(t, http.StatusOK, rec.Code)

	var views []ComponentView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&views))
	require.Len(t, views, 3)

	byID := make(map[string]ComponentView)
	for _, v := range views {
		byID[v.ID] = v
	}

	assert.Equal(t, models.StatusFault, byID["inverter"].Status)
	assert.Equal(t, []string{"F30012"}, byID["inverter"].ActiveCodes)
	assert.Equal(t, models.StatusNormal, byID["fan"].Status)
	assert.Equal(t, models.StatusNormal, byID["rectifier"].Status)
}

func TestComponentsIncludeUnassigned(t *testing.T) {
	s := newTestServer(t)
	s.UpdateModel(loadTestModel(t), "model.json")

	snap := testSnapshot(1)
	snap.Components[models.UnassignedComponent] = models.ComponentState{
		ComponentID: models.UnassignedComponent,
		Status:      models.StatusAlarm,
		ActiveCodes: map[string]models.EventKind{"A99999": models.KindAlarm},
	}
	s.store.Publish(snap)

	rec := doGET(s, "/api/components")
	require.Equal(t, http.StatusOK, rec.Code)

	var views []ComponentView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&views))
	require.Len(t, views, 4)

	last := views[len(views)-1]
	assert.Equal(t, models.UnassignedComponent, last.ID)
	assert.Equal(t, models.StatusAlarm, last.Status)
}

func TestGetComponentByID(t *testing.T) {
	s := newTestServer(t)
	s.UpdateModel(loadTestModel(t), "model.json")
	s.store.Publish(testSnapshot(1))

	rec := doGET(s, "/api/components/inverter")
	require.Equal(t, http.StatusOK, rec.Code)

	var view ComponentView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))

	assert.Equal(t, "Inverter", view.Name)
	assert.Equal(t, models.StatusFault, view.Status)

	rec = doGET(s, "/api/components/unknown")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetModelDocument(t *testing.T) {
	s := newTestServer(t)

	rec := doGET(s, "/api/model")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	s.UpdateModel(loadTestModel(t), "/etc/faultradar/model.json")

	rec = doGET(s, "/api/model")
	require.Equal(t, http.StatusOK, rec.Code)

	var doc struct {
		Title      string                `json:"title"`
		Path       string                `json:"path"`
		Components []equipment.Component `json:"components"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&doc))

	assert.Equal(t, "Drive Line", doc.Title)
	assert.Equal(t, "/etc/faultradar/model.json", doc.Path)
	assert.Len(t, doc.Components, 3)
}

func TestLoadModelEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := doPOST(s, "/api/model", ModelRequest{Path: "somewhere.json"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var gotPath string

	s.SetModelHandler(func(path string) error {
		gotPath = path
		return nil
	})

	rec = doPOST(s, "/api/model", ModelRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doPOST(s, "/api/model", ModelRequest{Path: "new-model.json"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "new-model.json", gotPath)

	s.SetModelHandler(func(string) error {
		return errors.New("no such file")
	})

	rec = doPOST(s, "/api/model", ModelRequest{Path: "missing.json"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "no such file")
}

func TestSwitchSourceEndpoint(t *testing.T) {
	s := newTestServer(t)

	var gotName string

	s.SetSourceHandler(func(name string) error {
		gotName = name
		return nil
	})

	rec := doPOST(s, "/api/source", SourceRequest{Source: "opcua"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "opcua", gotName)

	rec = doPOST(s, "/api/source", SourceRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInjectEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := doPOST(s, "/api/inject", InjectRequest{Action: "raise-fault", Code: "F30012"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var got InjectRequest

	s.SetInjectHandler(func(req InjectRequest) error {
		got = req
		return nil
	})

	rec = doPOST(s, "/api/inject", InjectRequest{Action: "raise-fault", Code: "F30012"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "raise-fault", got.Action)
	assert.Equal(t, "F30012", got.Code)

	s.SetInjectHandler(func(InjectRequest) error {
		return source.ErrInjectUnsupported
	})

	rec = doPOST(s, "/api/inject", InjectRequest{Action: "raise-fault", Code: "F30012"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSystemStatus(t *testing.T) {
	s := newTestServer(t)
	s.store.Publish(testSnapshot(4))

	s.SetStatusHandler(func() models.SourceStatus {
		return models.SourceStatus{
			Source: "simulator",
			State:  models.StatePolling,
			Health: models.HealthConnected,
		}
	})

	rec := doGET(s, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var status SystemStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))

	assert.Equal(t, uint64(4), status.SnapshotSequence)
	assert.Equal(t, 2, status.TotalComponents)
	assert.Equal(t, 1, status.Faults)
	assert.Equal(t, 0, status.Alarms)
	assert.Equal(t, "simulator", status.Source.Source)
	assert.Equal(t, models.StatePolling, status.Source.State)
}

func TestEventsJournal(t *testing.T) {
	s := newTestServer(t)

	events := []models.RawEvent{
		{Kind: models.KindFault, Code: "F30012", Description: "overcurrent"},
		{Kind: models.KindAlarm, Code: "A05010"},
	}
	require.NoError(t, s.db.RecordEvents("simulator", events, time.Now()))

	rec := doGET(s, "/api/events?limit=10")
	require.Equal(t, http.StatusOK, rec.Code)

	var records []db.EventRecord
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&records))

	require.Len(t, records, 2)
	assert.Equal(t, "simulator", records[0].Source)
}

func TestTransitionsJournal(t *testing.T) {
	s := newTestServer(t)

	transitions := []db.Transition{
		{
			ComponentID: "inverter",
			PrevStatus:  models.StatusNormal,
			NewStatus:   models.StatusFault,
			ActiveCodes: []string{"F30012"},
			Sequence:    1,
			Timestamp:   time.Now(),
		},
		{
			ComponentID: "fan",
			PrevStatus:  models.StatusNormal,
			NewStatus:   models.StatusAlarm,
			ActiveCodes: []string{"A05010"},
			Sequence:    1,
			Timestamp:   time.Now(),
		},
	}
	require.NoError(t, s.db.RecordTransitions(transitions))

	rec := doGET(s, "/api/transitions")
	require.Equal(t, http.StatusOK, rec.Code)

	var all []db.Transition
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&all))
	assert.Len(t, all, 2)

	rec = doGET(s, "/api/transitions?component=inverter")
	require.Equal(t, http.StatusOK, rec.Code)

	var filtered []db.Transition
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&filtered))
	require.Len(t, filtered, 1)
	assert.Equal(t, "inverter", filtered[0].ComponentID)
}

func TestPollMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)

	s.metrics.AddSample(models.PollSample{
		Timestamp: time.Now(),
		Source:    "simulator",
		Duration:  12 * time.Millisecond,
		Events:    2,
	})

	rec := doGET(s, "/api/metrics")
	require.Equal(t, http.StatusOK, rec.Code)

	var samples map[string][]models.PollSample
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&samples))

	require.Contains(t, samples, "simulator")
	require.Len(t, samples["simulator"], 1)
	assert.Equal(t, 2, samples["simulator"][0].Events)
}

func TestNotificationListAndAck(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	n, err := s.notifier.Notify(ctx, notify.Request{
		DedupeKey:   "fault/inverter",
		ComponentID: "inverter",
		Level:       notify.LevelError,
		Title:       "inverter fault",
		Message:     "F30012 active",
	})
	require.NoError(t, err)

	rec := doGET(s, "/api/notifications?component=inverter")
	require.Equal(t, http.StatusOK, rec.Code)

	var list []notify.Notification
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, "inverter fault", list[0].Title)

	ackPath := "/api/notifications/" + strconv.FormatInt(n.ID, 10) + "/ack"

	rec = doPOST(s, ackPath, AckRequest{AcknowledgedBy: "operator"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doPOST(s, ackPath, AckRequest{AcknowledgedBy: "operator"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doPOST(s, "/api/notifications/9999/ack", AckRequest{AcknowledgedBy: "operator"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doPOST(s, "/api/notifications/abc/ack", AckRequest{AcknowledgedBy: "operator"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebSocketStreamsSnapshots(t *testing.T) {
	s := newTestServer(t)
	s.store.Publish(testSnapshot(1))

	snapshots, cancel := s.store.Subscribe(wsSubscribeBuffer)
	defer cancel()

	go s.watchSnapshots(snapshots)

	srv := httptest.NewServer(s.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	defer resp.Body.Close()
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	// The hub seeds a new client with the current snapshot.
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var seeded models.Snapshot
	require.NoError(t, json.Unmarshal(data, &seeded))
	assert.Equal(t, uint64(1), seeded.Sequence)

	s.store.Publish(testSnapshot(2))

	_, data, err = conn.ReadMessage()
	require.NoError(t, err)

	var pushed models.Snapshot
	require.NoError(t, json.Unmarshal(data, &pushed))
	assert.Equal(t, uint64(2), pushed.Sequence)
	assert.Equal(t, models.StatusFault, pushed.Component("inverter").Status)
}

func TestShutdownWithoutStart(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.Shutdown(context.Background()))
}
