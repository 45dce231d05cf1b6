package probe

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RealSaake/SkillBridge-sub000/internal/clock"
	"github.com/RealSaake/SkillBridge-sub000/internal/recovery"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newController(t *testing.T, m *clock.Manual, name string, maxRetries int) *recovery.Controller {
	t.Helper()
	cfg := recovery.DefaultConfig()
	cfg.OperationName = name
	cfg.MaxRetries = maxRetries
	ctrl, err := recovery.New(cfg, recovery.WithClock(m), recovery.WithSink(recovery.SinkFunc(func(recovery.Event) {})))
	require.NoError(t, err)
	return ctrl
}

// advanceWhenArmed waits for the runner to report and arm its timers, then
// moves the clock forward.
func advanceWhenArmed(t *testing.T, m *clock.Manual, d time.Duration) {
	t.Helper()
	require.Eventually(t, func() bool { return m.Pending() > 0 }, 2*time.Second, time.Millisecond)
	m.Advance(d)
}

func runAsync(ctx context.Context, r *Runner) <-chan error {
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	return done
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not finish")
		return nil
	}
}

func TestRunner_SucceedsFirstTime(t *testing.T) {
	m := clock.NewManual(epoch)
	ctrl := newController(t, m, "insights", 3)

	var calls atomic.Int32
	r, err := NewRunner("insights", func(context.Context) error {
		calls.Add(1)
		return nil
	}, ctrl, Options{})
	require.NoError(t, err)

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, ctrl.Disposed())
}

func TestRunner_RecoversAfterAutomaticRetries(t *testing.T) {
	m := clock.NewManual(epoch)
	ctrl := newController(t, m, "insights", 3)

	var calls atomic.Int32
	r, err := NewRunner("insights", func(context.Context) error {
		if calls.Add(1) <= 2 {
			return errors.New("network unreachable")
		}
		return nil
	}, ctrl, Options{})
	require.NoError(t, err)

	done := runAsync(context.Background(), r)
	advanceWhenArmed(t, m, time.Second)
	advanceWhenArmed(t, m, 2*time.Second)

	require.NoError(t, wait(t, done))
	assert.Equal(t, int32(3), calls.Load())

	s := ctrl.Snapshot()
	assert.Equal(t, recovery.StatusIdle, s.Status)
	assert.Equal(t, 0, s.Attempt, "success resets the budget")
	assert.True(t, ctrl.Disposed())
}

func TestRunner_ExhaustedOneShot(t *testing.T) {
	m := clock.NewManual(epoch)
	ctrl := newController(t, m, "insights", 1)

	r, err := NewRunner("insights", func(context.Context) error {
		return errors.New("503 service unavailable")
	}, ctrl, Options{})
	require.NoError(t, err)

	done := runAsync(context.Background(), r)
	advanceWhenArmed(t, m, time.Second)

	err = wait(t, done)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExhausted))
	assert.Contains(t, err.Error(), "503 service unavailable")
	assert.Equal(t, recovery.StatusExhausted, ctrl.Snapshot().Status)
}

func TestRunner_AuthNeedsManualAction(t *testing.T) {
	m := clock.NewManual(epoch)
	ctrl := newController(t, m, "profile", 3)

	r, err := NewRunner("profile", func(context.Context) error {
		return errors.New("401 unauthorized")
	}, ctrl, Options{})
	require.NoError(t, err)

	err = r.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrManualActionRequired))
	assert.Equal(t, 0, m.Pending())
}

func TestRunner_IntervalWaitsForManualRetry(t *testing.T) {
	m := clock.NewManual(epoch)
	ctrl := newController(t, m, "profile", 3)

	var calls atomic.Int32
	r, err := NewRunner("profile", func(context.Context) error {
		if calls.Add(1) == 1 {
			return errors.New("auth token expired")
		}
		return nil
	}, ctrl, Options{Interval: time.Hour})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runAsync(ctx, r)

	require.Eventually(t, func() bool {
		return ctrl.Snapshot().Status == recovery.StatusFailed
	}, 2*time.Second, time.Millisecond)
	require.NoError(t, ctrl.RetryNow())

	require.Eventually(t, func() bool {
		return calls.Load() == 2 && ctrl.Snapshot().Attempt == 0
	}, 2*time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, wait(t, done), context.Canceled)
	assert.True(t, ctrl.Disposed())
}

func TestRunner_IntervalWaitsForResetAfterExhaustion(t *testing.T) {
	m := clock.NewManual(epoch)
	ctrl := newController(t, m, "quiz", 0)

	var calls atomic.Int32
	r, err := NewRunner("quiz", func(context.Context) error {
		if calls.Add(1) == 1 {
			return errors.New("500 internal server error")
		}
		return nil
	}, ctrl, Options{Interval: time.Hour})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runAsync(ctx, r)

	require.Eventually(t, func() bool {
		return ctrl.Snapshot().Status == recovery.StatusExhausted
	}, 2*time.Second, time.Millisecond)
	require.NoError(t, ctrl.Reset())
	require.Eventually(t, func() bool { return calls.Load() == 2 }, 2*time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, wait(t, done), context.Canceled)
}

func TestRunner_CancelWhileRetrying(t *testing.T) {
	m := clock.NewManual(epoch)
	ctrl := newController(t, m, "insights", 3)

	r, err := NewRunner("insights", func(context.Context) error {
		return errors.New("fetch failed")
	}, ctrl, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, r)
	require.Eventually(t, func() bool { return m.Pending() > 0 }, 2*time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, wait(t, done), context.Canceled)
	assert.True(t, ctrl.Disposed())
	assert.Equal(t, 0, m.Pending(), "dispose cancels timers")
}

func TestRunner_OnSnapshot(t *testing.T) {
	m := clock.NewManual(epoch)
	ctrl := newController(t, m, "insights", 3)

	var (
		mu       sync.Mutex
		statuses []recovery.Status
	)
	var calls atomic.Int32
	r, err := NewRunner("insights", func(context.Context) error {
		if calls.Add(1) == 1 {
			return errors.New("network down")
		}
		return nil
	}, ctrl, Options{OnSnapshot: func(s recovery.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		statuses = append(statuses, s.Status)
	}})
	require.NoError(t, err)

	done := runAsync(context.Background(), r)
	advanceWhenArmed(t, m, time.Second)
	require.NoError(t, wait(t, done))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []recovery.Status{
		recovery.StatusFailed,
		recovery.StatusRetrying,
		recovery.StatusIdle, // automatic retry
		recovery.StatusIdle, // reset after success
	}, statuses)
}

func TestNewRunner_DisposedController(t *testing.T) {
	ctrl := newController(t, clock.NewManual(epoch), "insights", 3)
	ctrl.Dispose()

	_, err := NewRunner("insights", func(context.Context) error { return nil }, ctrl, Options{})
	assert.ErrorIs(t, err, recovery.ErrDisposed)
}
