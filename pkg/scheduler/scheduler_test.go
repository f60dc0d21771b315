package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/faultradar/pkg/metrics"
	"github.com/carverauto/faultradar/pkg/models"
	"github.com/carverauto/faultradar/pkg/source"
)

func fastConfig() Config {
	return Config{
		Interval:       10 * time.Millisecond,
		Timeout:        500 * time.Millisecond,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     40 * time.Millisecond,
	}
}

type collectingSink struct {
	batches int64
	events  int64
}

func (c *collectingSink) ApplyBatch(_ context.Context, events []models.RawEvent) error {
	atomic.AddInt64(&c.batches, 1)
	atomic.AddInt64(&c.events, int64(len(events)))

	return nil
}

func TestSchedulerDeliversBatches(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := source.NewMockSource(ctrl)

	src.EXPECT().Name().Return("mock").AnyTimes()
	src.EXPECT().Connect(gomock.Any()).Return(nil).Times(1)
	src.EXPECT().Poll(gomock.Any()).Return([]models.RawEvent{
		{Kind: models.KindFault, Code: "F30012"},
	}, nil).AnyTimes()
	src.EXPECT().Disconnect().Return(nil).Times(1)

	sink := &collectingSink{}
	collector := metrics.NewManager(16)
	sched := New(src, sink, collector, fastConfig())

	require.NoError(t, sched.Start(context.Background()))

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&sink.batches) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	status := sched.Status()
	assert.Equal(t, "mock", status.Source)
	assert.Equal(t, models.HealthConnected, status.Health)
	assert.GreaterOrEqual(t, status.TotalPolls, int64(2))
	assert.Zero(t, status.FailedPolls)
	assert.False(t, status.ConnectedSince.IsZero())

	samples := collector.GetSamples("mock")
	require.NotEmpty(t, samples)
	assert.Equal(t, 1, samples[0].Events)
	assert.False(t, samples[0].Failed)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, sched.Stop(stopCtx))

	assert.Equal(t, models.StateIdle, sched.Status().State)
}

func TestDataErrorKeepsConnection(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := source.NewMockSource(ctrl)

	src.EXPECT().Name().Return("mock").AnyTimes()
	src.EXPECT().Connect(gomock.Any()).Return(nil).Times(1)
	src.EXPECT().Poll(gomock.Any()).Return(nil, source.ErrMalformed).AnyTimes()
	src.EXPECT().Disconnect().Return(nil).Times(1)

	sink := &collectingSink{}
	sched := New(src, sink, nil, fastConfig())

	require.NoError(t, sched.Start(context.Background()))

	require.Eventually(t, func() bool {
		return sched.Status().FailedPolls >= 2
	}, 2*time.Second, 5*time.Millisecond)

	status := sched.Status()
	assert.Equal(t, models.HealthDegraded, status.Health)
	assert.Contains(t, status.LastError, "malformed")
	assert.Zero(t, atomic.LoadInt64(&sink.batches), "bad batches must not reach the sink")

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, sched.Stop(stopCtx))
}

func TestTransportErrorTriggersReconnect(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := source.NewMockSource(ctrl)

	var connects, polls int64

	src.EXPECT().Name().Return("mock").AnyTimes()
	src.EXPECT().Connect(gomock.Any()).DoAndReturn(func(context.Context) error {
		atomic.AddInt64(&connects, 1)
		return nil
	}).AnyTimes()
	src.EXPECT().Poll(gomock.Any()).DoAndReturn(func(context.Context) ([]models.RawEvent, error) {
		if atomic.AddInt64(&polls, 1) == 1 {
			return nil, errors.New("connection reset by peer")
		}

		return nil, nil
	}).AnyTimes()
	src.EXPECT().Disconnect().Return(nil).AnyTimes()

	sink := &collectingSink{}
	sched := New(src, sink, nil, fastConfig())

	require.NoError(t, sched.Start(context.Background()))

	require.Eventually(t, func() bool {
		status := sched.Status()
		return atomic.LoadInt64(&connects) >= 2 && status.TotalPolls >= 2 && status.ConsecutiveFailures == 0
	}, 2*time.Second, 5*time.Millisecond)

	status := sched.Status()
	assert.Equal(t, int64(1), status.FailedPolls)
	assert.Equal(t, fastConfig().InitialBackoff, status.CurrentBackoff, "successful poll should reset backoff")

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, sched.Stop(stopCtx))
}

func TestConnectFailureBacksOff(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := source.NewMockSource(ctrl)

	src.EXPECT().Name().Return("mock").AnyTimes()
	src.EXPECT().Connect(gomock.Any()).Return(errors.New("no route to host")).AnyTimes()
	src.EXPECT().Disconnect().Return(nil).Times(1)

	cfg := fastConfig()
	sched := New(src, &collectingSink{}, nil, cfg)

	require.NoError(t, sched.Start(context.Background()))

	// 10ms doubles to the 40ms cap after two failed attempts.
	require.Eventually(t, func() bool {
		return sched.Status().CurrentBackoff == cfg.MaxBackoff
	}, 2*time.Second, 5*time.Millisecond)

	status := sched.Status()
	assert.Equal(t, models.StateDisconnected, status.State)
	assert.Equal(t, models.HealthDisconnected, status.Health)
	assert.Contains(t, status.LastError, "no route to host")
	assert.Zero(t, status.TotalPolls)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, sched.Stop(stopCtx))
}

func TestHardTimeoutAbandonsHungPoll(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := source.NewMockSource(ctrl)

	src.EXPECT().Name().Return("mock").AnyTimes()
	src.EXPECT().Connect(gomock.Any()).Return(nil).AnyTimes()
	src.EXPECT().Poll(gomock.Any()).DoAndReturn(func(context.Context) ([]models.RawEvent, error) {
		// Ignores cancellation on purpose, like a stuck adapter.
		time.Sleep(200 * time.Millisecond)
		return nil, nil
	}).AnyTimes()
	src.EXPECT().Disconnect().Return(nil).AnyTimes()

	cfg := fastConfig()
	cfg.Timeout = 25 * time.Millisecond
	collector := metrics.NewManager(16)
	sched := New(src, &collectingSink{}, collector, cfg)

	require.NoError(t, sched.Start(context.Background()))

	require.Eventually(t, func() bool {
		return sched.Status().FailedPolls >= 1
	}, 2*time.Second, 5*time.Millisecond)

	status := sched.Status()
	assert.Contains(t, status.LastError, "no reply within")

	samples := collector.GetSamples("mock")
	require.NotEmpty(t, samples)
	assert.True(t, samples[0].Failed)
	assert.Less(t, samples[0].Duration, 100*time.Millisecond, "poll must be abandoned at the deadline")

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, sched.Stop(stopCtx))

	// Let abandoned polls drain before the controller checks expectations.
	time.Sleep(250 * time.Millisecond)
}

func TestSinkErrorDoesNotStopPolling(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := source.NewMockSource(ctrl)

	src.EXPECT().Name().Return("mock").AnyTimes()
	src.EXPECT().Connect(gomock.Any()).Return(nil).Times(1)
	src.EXPECT().Poll(gomock.Any()).Return(nil, nil).AnyTimes()
	src.EXPECT().Disconnect().Return(nil).Times(1)

	sink := EventSinkFunc(func(context.Context, []models.RawEvent) error {
		return errors.New("store unavailable")
	})
	sched := New(src, sink, nil, fastConfig())

	require.NoError(t, sched.Start(context.Background()))

	require.Eventually(t, func() bool {
		return sched.Status().TotalPolls >= 3
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, models.HealthConnected, sched.Status().Health)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, sched.Stop(stopCtx))
}

func TestStartAndStopGuards(t *testing.T) {
	ctrl := gomock.NewController(t)
	src := source.NewMockSource(ctrl)

	src.EXPECT().Name().Return("mock").AnyTimes()
	src.EXPECT().Connect(gomock.Any()).Return(nil).AnyTimes()
	src.EXPECT().Poll(gomock.Any()).Return(nil, nil).AnyTimes()
	src.EXPECT().Disconnect().Return(nil).AnyTimes()

	sched := New(src, &collectingSink{}, nil, fastConfig())

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.ErrorIs(t, sched.Stop(stopCtx), errNotStarted)

	require.NoError(t, sched.Start(context.Background()))
	require.ErrorIs(t, sched.Start(context.Background()), errAlreadyStarted)

	require.NoError(t, sched.Stop(stopCtx))
	require.ErrorIs(t, sched.Stop(stopCtx), errNotStarted)
}
