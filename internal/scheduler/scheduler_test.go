package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNew_RejectsInvalidArgs(t *testing.T) {
	cases := map[string]struct {
		interval time.Duration
		fn       func(context.Context)
	}{
		"zero interval": {0, func(context.Context) {}},
		"nil tick":      {time.Second, nil},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			s, err := New("maintenance", tc.interval, tc.fn, nil)
			require.Error(t, err)
			require.Nil(t, s)
		})
	}
}

func TestScheduler_MaintenanceLifecycle(t *testing.T) {
	var calls atomic.Int64
	s, err := New("maintenance", 10*time.Millisecond, func(context.Context) { calls.Add(1) }, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.Equal(t, Status{Name: "maintenance", Interval: "10ms"}, s.Status())

	require.True(t, s.Start())
	require.False(t, s.Start(), "second Start while running")
	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	require.True(t, s.Stop())
	require.False(t, s.Stop(), "second Stop while stopped")

	st := s.Status()
	assert.False(t, st.Running)
	assert.Equal(t, calls.Load(), st.Ticks)
	require.NotNil(t, st.LastTick)
	assert.WithinDuration(t, time.Now(), *st.LastTick, time.Second)

	stopped := calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, calls.Load(), "ticked after Stop")

	// Restart ticks immediately, then on the interval.
	require.True(t, s.Start())
	defer s.Stop()
	require.Eventually(t, func() bool { return calls.Load() > stopped }, time.Second, 5*time.Millisecond)
	assert.True(t, s.Status().Running)
}

func TestScheduler_RecoversPanickingTick(t *testing.T) {
	var calls atomic.Int64
	s, err := New("maintenance", 10*time.Millisecond, func(context.Context) {
		if calls.Add(1) == 1 {
			panic("redis script failed")
		}
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	require.True(t, s.Start())
	defer s.Stop()

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	assert.True(t, s.IsRunning())
}

func TestScheduler_StopCancelsInFlightTick(t *testing.T) {
	started := make(chan struct{})
	var cancelled atomic.Bool

	// Long interval so only the immediate tick runs.
	s, err := New("maintenance", time.Hour, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
	}, nil)
	require.NoError(t, err)

	require.True(t, s.Start())
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatalf("tick did not start")
	}

	require.True(t, s.Stop())
	assert.True(t, cancelled.Load(), "Stop returned before the tick observed cancellation")
}
