package db

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/faultradar/pkg/models"
)

func newTestDB(t *testing.T) Service {
	t.Helper()

	svc, err := New(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, svc.Close())
	})

	return svc
}

func TestRecordAndQueryEvents(t *testing.T) {
	svc := newTestDB(t)
	now := time.Now()

	events := []models.RawEvent{
		{Kind: models.KindFault, Code: "F30012", Description: "Inverter bridge fault", ComponentHint: "inverter"},
		{Kind: models.KindAlarm, Code: "A05010"},
		{Kind: models.KindClear},
	}

	require.NoError(t, svc.RecordEvents("simulator", events, now))

	records, err := svc.GetRecentEvents(10)
	require.NoError(t, err)
	require.Len(t, records, 3)

	// Newest first.
	assert.Equal(t, models.KindClear, records[0].Kind)
	assert.Equal(t, "A05010", records[1].Code)
	assert.Equal(t, "F30012", records[2].Code)
	assert.Equal(t, "simulator", records[2].Source)
	assert.Equal(t, "Inverter bridge fault", records[2].Description)
	assert.Equal(t, "inverter", records[2].ComponentHint)
	assert.WithinDuration(t, now, records[2].Timestamp, time.Second)
}

func TestRecordEventsEmptyBatch(t *testing.T) {
	svc := newTestDB(t)

	require.NoError(t, svc.RecordEvents("simulator", nil, time.Now()))

	records, err := svc.GetRecentEvents(10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRecordAndQueryTransitions(t *testing.T) {
	svc := newTestDB(t)
	now := time.Now()

	transitions := []Transition{
		{
			ComponentID: "inverter",
			PrevStatus:  models.StatusNormal,
			NewStatus:   models.StatusFault,
			ActiveCodes: []string{"F30012"},
			Sequence:    1,
			Timestamp:   now.Add(-2 * time.Minute),
		},
		{
			ComponentID: "fan",
			PrevStatus:  models.StatusNormal,
			NewStatus:   models.StatusAlarm,
			ActiveCodes: []string{"A05010"},
			Sequence:    2,
			Timestamp:   now.Add(-time.Minute),
		},
		{
			ComponentID: "inverter",
			PrevStatus:  models.StatusFault,
			NewStatus:   models.StatusNormal,
			Sequence:    3,
			Timestamp:   now,
		},
	}

	require.NoError(t, svc.RecordTransitions(transitions))

	inverter, err := svc.GetTransitions("inverter", 10)
	require.NoError(t, err)
	require.Len(t, inverter, 2)
	assert.Equal(t, models.StatusNormal, inverter[0].NewStatus)
	assert.Nil(t, inverter[0].ActiveCodes)
	assert.Equal(t, models.StatusFault, inverter[1].NewStatus)
	assert.Equal(t, []string{"F30012"}, inverter[1].ActiveCodes)
	assert.Equal(t, uint64(1), inverter[1].Sequence)

	recent, err := svc.GetRecentTransitions(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "inverter", recent[0].ComponentID)
	assert.Equal(t, "fan", recent[1].ComponentID)
}

func TestGetComponentStats(t *testing.T) {
	svc := newTestDB(t)
	now := time.Now()

	require.NoError(t, svc.RecordTransitions([]Transition{
		{ComponentID: "inverter", PrevStatus: models.StatusNormal, NewStatus: models.StatusFault, Sequence: 1, Timestamp: now.Add(-time.Hour)},
		{ComponentID: "inverter", PrevStatus: models.StatusFault, NewStatus: models.StatusNormal, Sequence: 2, Timestamp: now.Add(-30 * time.Minute)},
		{ComponentID: "fan", PrevStatus: models.StatusNormal, NewStatus: models.StatusAlarm, Sequence: 3, Timestamp: now.Add(-10 * time.Minute)},
		{ComponentID: "fan", PrevStatus: models.StatusAlarm, NewStatus: models.StatusNormal, Sequence: 4, Timestamp: now.Add(-48 * time.Hour)},
	}))

	stats, err := svc.GetComponentStats(now.Add(-2 * time.Hour))
	require.NoError(t, err)
	require.Len(t, stats, 2)

	assert.Equal(t, "fan", stats[0].ComponentID)
	assert.Equal(t, int64(1), stats[0].Transitions)
	assert.Equal(t, int64(1), stats[0].AlarmEntries)
	assert.Zero(t, stats[0].FaultEntries)
	assert.False(t, stats[0].LastTransition.IsZero())

	assert.Equal(t, "inverter", stats[1].ComponentID)
	assert.Equal(t, int64(2), stats[1].Transitions)
	assert.Equal(t, int64(1), stats[1].FaultEntries)
}

func TestCleanOldData(t *testing.T) {
	svc := newTestDB(t)
	now := time.Now()

	require.NoError(t, svc.RecordEvents("simulator", []models.RawEvent{
		{Kind: models.KindFault, Code: "F30012"},
	}, now.Add(-48*time.Hour)))
	require.NoError(t, svc.RecordEvents("simulator", []models.RawEvent{
		{Kind: models.KindAlarm, Code: "A05010"},
	}, now))

	require.NoError(t, svc.RecordTransitions([]Transition{
		{ComponentID: "inverter", PrevStatus: models.StatusNormal, NewStatus: models.StatusFault, Sequence: 1, Timestamp: now.Add(-48 * time.Hour)},
		{ComponentID: "inverter", PrevStatus: models.StatusFault, NewStatus: models.StatusNormal, Sequence: 2, Timestamp: now},
	}))

	require.NoError(t, svc.CleanOldData(24*time.Hour))

	events, err := svc.GetRecentEvents(10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "A05010", events[0].Code)

	transitions, err := svc.GetRecentTransitions(10)
	require.NoError(t, err)
	require.Len(t, transitions, 1)
	assert.Equal(t, models.StatusNormal, transitions[0].NewStatus)
}

func TestMigrationUpgradesLegacySchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "legacy.db")

	legacy, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)

	_, err = legacy.Exec(`
		CREATE TABLE transitions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			component_id TEXT NOT NULL,
			prev_status TEXT NOT NULL,
			new_status TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			timestamp TIMESTAMP NOT NULL
		)
	`)
	require.NoError(t, err)
	require.NoError(t, legacy.Close())

	svc, err := New(dbPath)
	require.NoError(t, err)

	defer func() {
		require.NoError(t, svc.Close())
	}()

	require.NoError(t, svc.RecordTransitions([]Transition{
		{
			ComponentID: "inverter",
			PrevStatus:  models.StatusNormal,
			NewStatus:   models.StatusFault,
			ActiveCodes: []string{"F30012"},
			Sequence:    1,
			Timestamp:   time.Now(),
		},
	}))

	transitions, err := svc.GetRecentTransitions(1)
	require.NoError(t, err)
	require.Len(t, transitions, 1)
	assert.Equal(t, []string{"F30012"}, transitions[0].ActiveCodes)
}
