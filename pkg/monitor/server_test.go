package monitor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/faultradar/pkg/api"
	"github.com/carverauto/faultradar/pkg/config"
	"github.com/carverauto/faultradar/pkg/db"
	"github.com/carverauto/faultradar/pkg/models"
	"github.com/carverauto/faultradar/pkg/notify"
	"github.com/carverauto/faultradar/pkg/source"
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

const pumpModelJSON = `{
  "title": "Pump Station",
  "components": [
    {"id": "pump", "name": "Feed Pump", "x": 10, "y": 10, "w": 80, "h": 40},
    {"id": "motor", "name": "Drive Motor", "x": 110, "y": 10, "w": 80, "h": 40}
  ],
  "connections": [
    {"from": "motor", "to": "pump"}
  ],
  "fault_map": {"F11111": "pump"},
  "alarm_map": {"A22222": "motor"}
}`

func writeModelFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func newTestConfig(t *testing.T) *config.MonitorConfig {
	t.Helper()

	cfg := &config.MonitorConfig{
		ModelFile:    writeModelFile(t, testModelJSON),
		DBPath:       filepath.Join(t.TempDir(), "journal.db"),
		Source:       config.SourceSpec{Type: "simulator", Name: "simulator"},
		PollInterval: config.Duration(20 * time.Millisecond),
		PollTimeout:  config.Duration(500 * time.Millisecond),
		HistorySize:  16,
	}
	require.NoError(t, cfg.Validate())

	return cfg
}

func startTestServer(t *testing.T) *Server {
	t.Helper()

	srv, err := NewServer(newTestConfig(t))
	require.NoError(t, err)

	require.NoError(t, srv.Start(context.Background()))

	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		require.NoError(t, srv.Stop(stopCtx))
	})

	return srv
}

func waitForStatus(t *testing.T, srv *Server, componentID string, want models.Status) {
	t.Helper()

	require.Eventually(t, func() bool {
		snap := srv.Store().Current()
		if snap == nil {
			return false
		}

		return snap.Component(componentID).Status == want
	}, 3*time.Second, 10*time.Millisecond)
}

func TestNewServerMissingModel(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.ModelFile = filepath.Join(t.TempDir(), "missing.json")

	_, err := NewServer(cfg)
	require.Error(t, err)
}

func TestServerStartPublishesBaseline(t *testing.T) {
	srv := startTestServer(t)

	snap := srv.Store().Current()
	require.NotNil(t, snap)

	for _, id := range []string{"rectifier", "inverter", "fan"} {
		assert.Equal(t, models.StatusNormal, snap.Component(id).Status, "component %s", id)
	}

	assert.Equal(t, "simulator", srv.Status().Source)

	require.Eventually(t, func() bool {
		return srv.Status().Health == models.HealthConnected
	}, 3*time.Second, 10*time.Millisecond)
}

func TestInjectFaultAndRecovery(t *testing.T) {
	srv := startTestServer(t)
	ctx := context.Background()

	require.NoError(t, srv.Inject(api.InjectRequest{Action: "raise-fault", Code: "F30012", Description: "dc link overvoltage"}))
	waitForStatus(t, srv, "inverter", models.StatusFault)

	snap := srv.Store().Current()
	inverter := snap.Component("inverter")
	assert.Contains(t, inverter.Codes(), "F30012")

	require.NoError(t, srv.Inject(api.InjectRequest{Action: "raise-alarm", Code: "A05010", Description: "fan slow"}))
	waitForStatus(t, srv, "fan", models.StatusAlarm)

	// The raise opened fault and alarm notifications.
	require.Eventually(t, func() bool {
		got, err := srv.Notifier().List(ctx, notify.Filter{DedupeKey: "component:inverter:fault"})
		return err == nil && len(got) == 1 && got[0].Status == notify.StatusPending
	}, 3*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		got, err := srv.Notifier().List(ctx, notify.Filter{DedupeKey: "component:fan:alarm"})
		return err == nil && len(got) == 1 && got[0].Level == notify.LevelWarning
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, srv.Inject(api.InjectRequest{Action: "clear-all"}))
	waitForStatus(t, srv, "inverter", models.StatusNormal)
	waitForStatus(t, srv, "fan", models.StatusNormal)

	// Recovery resolves the fault and leaves an informational trace.
	require.Eventually(t, func() bool {
		got, err := srv.Notifier().List(ctx, notify.Filter{DedupeKey: "component:inverter:fault"})
		return err == nil && len(got) == 1 && got[0].Status == notify.StatusResolved
	}, 3*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		got, err := srv.Notifier().List(ctx, notify.Filter{DedupeKey: "component:inverter:recovered"})
		return err == nil && len(got) == 1 && got[0].Level == notify.LevelInfo
	}, 3*time.Second, 10*time.Millisecond)
}

func TestInjectJournalsTransitions(t *testing.T) {
	srv := startTestServer(t)

	require.NoError(t, srv.Inject(api.InjectRequest{Action: "raise-fault", Code: "F30012"}))
	waitForStatus(t, srv, "inverter", models.StatusFault)

	var match *db.Transition

	require.Eventually(t, func() bool {
		transitions, err := srv.DB().GetRecentTransitions(50)
		if err != nil {
			return false
		}

		for i := range transitions {
			tr := transitions[i]
			if tr.ComponentID == "inverter" && tr.NewStatus == models.StatusFault {
				match = &tr
				return true
			}
		}

		return false
	}, 3*time.Second, 10*time.Millisecond)

	require.NotNil(t, match)
	assert.Equal(t, models.StatusNormal, match.PrevStatus)
	assert.Equal(t, []string{"F30012"}, match.ActiveCodes)
}

func TestInjectBeforeStart(t *testing.T) {
	srv, err := NewServer(newTestConfig(t))
	require.NoError(t, err)

	err = srv.Inject(api.InjectRequest{Action: "raise-fault", Code: "F30012"})
	require.ErrorIs(t, err, errNotStarted)

	err = srv.switchSourceByType("simulator")
	require.ErrorIs(t, err, errNotStarted)

	err = srv.ApplyBatch(context.Background(), nil)
	require.ErrorIs(t, err, errNotStarted)
}

func TestInjectUnknownAction(t *testing.T) {
	srv := startTestServer(t)

	err := srv.Inject(api.InjectRequest{Action: "explode"})
	require.ErrorIs(t, err, errUnknownAction)
}

func TestInjectRequiresInjector(t *testing.T) {
	// The controller registers its cleanup first so the server stops
	// polling the mock before expectations are checked.
	ctrl := gomock.NewController(t)
	src := source.NewMockSource(ctrl)
	src.EXPECT().Name().Return("passive").AnyTimes()
	src.EXPECT().Mode().Return(models.ModeSnapshot).AnyTimes()
	src.EXPECT().Connect(gomock.Any()).Return(nil).AnyTimes()
	src.EXPECT().Poll(gomock.Any()).Return(nil, nil).AnyTimes()
	src.EXPECT().Disconnect().Return(nil).AnyTimes()
	src.EXPECT().Health().Return(models.HealthConnected).AnyTimes()

	srv := startTestServer(t)
	srv.Registry().Register("passive", func(_ context.Context, _ string, _ json.RawMessage) (source.Source, error) {
		return src, nil
	})

	require.NoError(t, srv.SwitchSource(context.Background(), config.SourceSpec{Type: "passive"}))

	err := srv.Inject(api.InjectRequest{Action: "raise-fault", Code: "F30012"})
	require.ErrorIs(t, err, source.ErrInjectUnsupported)
}

func TestSwitchSourceResetsSnapshot(t *testing.T) {
	srv := startTestServer(t)

	require.NoError(t, srv.Inject(api.InjectRequest{Action: "raise-fault", Code: "F30012"}))
	waitForStatus(t, srv, "inverter", models.StatusFault)

	// A fresh source starts from a clean baseline; nothing observed
	// through the old source carries over.
	require.NoError(t, srv.SwitchSource(context.Background(), config.SourceSpec{Type: "simulator"}))

	snap := srv.Store().Current()
	require.NotNil(t, snap)
	assert.Equal(t, models.StatusNormal, snap.Component("inverter").Status)
	assert.Equal(t, "simulator", srv.Status().Source)
}

func TestLoadModelSwapsComponents(t *testing.T) {
	srv := startTestServer(t)

	path := writeModelFile(t, pumpModelJSON)
	require.NoError(t, srv.LoadModel(path))

	snap := srv.Store().Current()
	require.NotNil(t, snap)
	assert.Contains(t, snap.Components, "pump")
	assert.Contains(t, snap.Components, "motor")
	assert.NotContains(t, snap.Components, "inverter")

	// A load failure keeps the previous model active.
	err := srv.LoadModel(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, srv.Store().Current().Components, "pump")
}

func TestStatusBeforeStart(t *testing.T) {
	srv, err := NewServer(newTestConfig(t))
	require.NoError(t, err)

	status := srv.Status()
	assert.Equal(t, "simulator", status.Source)
	assert.Equal(t, models.StateIdle, status.State)
	assert.Equal(t, models.HealthDisconnected, status.Health)
}

func TestDiffTransitions(t *testing.T) {
	now := time.Now()

	prev := &models.Snapshot{
		Sequence: 4,
		Components: map[string]models.ComponentState{
			"a": {ComponentID: "a", Status: models.StatusNormal},
			"b": {ComponentID: "b", Status: models.StatusAlarm},
			"c": {ComponentID: "c", Status: models.StatusFault},
		},
	}
	next := &models.Snapshot{
		Sequence: 5,
		Components: map[string]models.ComponentState{
			"a": {
				ComponentID: "a",
				Status:      models.StatusFault,
				ActiveCodes: map[string]models.EventKind{"F1": models.KindFault},
				LastChanged: now,
			},
			"b": {ComponentID: "b", Status: models.StatusNormal, LastChanged: now},
			"c": {
				ComponentID: "c",
				Status:      models.StatusFault,
				ActiveCodes: map[string]models.EventKind{"F2": models.KindFault},
			},
		},
	}

	transitions := diffTransitions(prev, next)
	require.Len(t, transitions, 2)

	assert.Equal(t, "a", transitions[0].ComponentID)
	assert.Equal(t, models.StatusNormal, transitions[0].PrevStatus)
	assert.Equal(t, models.StatusFault, transitions[0].NewStatus)
	assert.Equal(t, []string{"F1"}, transitions[0].ActiveCodes)
	assert.Equal(t, uint64(5), transitions[0].Sequence)

	assert.Equal(t, "b", transitions[1].ComponentID)
	assert.Equal(t, models.StatusAlarm, transitions[1].PrevStatus)
	assert.Equal(t, models.StatusNormal, transitions[1].NewStatus)
}

func TestDiffTransitionsNilPrev(t *testing.T) {
	next := &models.Snapshot{
		Sequence: 1,
		Components: map[string]models.ComponentState{
			"a": {ComponentID: "a", Status: models.StatusNormal},
			"b": {ComponentID: "b", Status: models.StatusFault},
		},
	}

	transitions := diffTransitions(nil, next)
	require.Len(t, transitions, 1)
	assert.Equal(t, "b", transitions[0].ComponentID)
	assert.Equal(t, models.StatusNormal, transitions[0].PrevStatus)

	assert.Empty(t, diffTransitions(next, nil))
}
