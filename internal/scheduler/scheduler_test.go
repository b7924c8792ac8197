// internal/scheduler/scheduler_test.go
//
// Cadence and bookkeeping tests.  Most tests call Tick directly with a fake
// clock; one exercises the real ticker loop.

package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newSched() (*Scheduler, *clock) {
	c := &clock{t: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)}
	return New(WithClock(c.now)), c
}

func counter(name string, n *atomic.Int32) Task {
	return TaskFunc(name, func(context.Context) error { n.Add(1); return nil })
}

func statusOf(t *testing.T, s *Scheduler, name string) TaskStatus {
	t.Helper()
	for _, st := range s.Status() {
		if st.Name == name {
			return st
		}
	}
	t.Fatalf("task %q not found", name)
	return TaskStatus{}
}

func TestCadenceOneSecond(t *testing.T) {
	s, c := newSched()
	var n atomic.Int32
	require.NoError(t, s.AddTask(counter("tick", &n), time.Second, true))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		s.Tick(ctx)
		c.advance(time.Second)
	}

	st := statusOf(t, s, "tick")
	assert.Equal(t, uint64(3), st.RunCount)
	assert.Equal(t, int32(3), n.Load())
	assert.Equal(t, st.LastRun.Add(time.Second), st.NextRun)
}

func TestNotDueUntilInterval(t *testing.T) {
	s, c := newSched()
	var n atomic.Int32
	require.NoError(t, s.AddTask(counter("slow", &n), time.Minute, true))

	ctx := context.Background()
	assert.Equal(t, 1, s.Tick(ctx), "new tasks are due at once")
	c.advance(59 * time.Second)
	assert.Equal(t, 0, s.Tick(ctx))
	c.advance(time.Second)
	assert.Equal(t, 1, s.Tick(ctx))
}

func TestDisableStopsRuns(t *testing.T) {
	s, c := newSched()
	var n atomic.Int32
	require.NoError(t, s.AddTask(counter("t", &n), time.Second, true))

	ctx := context.Background()
	s.Tick(ctx)
	require.Equal(t, uint64(1), statusOf(t, s, "t").RunCount)

	require.True(t, s.Disable("t"))
	for i := 0; i < 5; i++ {
		c.advance(time.Second)
		s.Tick(ctx)
	}
	assert.Equal(t, uint64(1), statusOf(t, s, "t").RunCount)

	require.True(t, s.Enable("t"))
	s.Tick(ctx)
	assert.Equal(t, uint64(2), statusOf(t, s, "t").RunCount)

	assert.False(t, s.Enable("nope"))
	assert.False(t, s.Disable("nope"))
}

func TestErrorsAndPanicsAreRecorded(t *testing.T) {
	s, c := newSched()
	require.NoError(t, s.AddTask(TaskFunc("fail", func(context.Context) error {
		return errors.New("disk full")
	}), time.Second, true))
	require.NoError(t, s.AddTask(TaskFunc("boom", func(context.Context) error {
		panic("nil map")
	}), time.Second, true))
	var n atomic.Int32
	require.NoError(t, s.AddTask(counter("ok", &n), time.Second, true))

	ctx := context.Background()
	s.Tick(ctx)
	c.advance(time.Second)
	s.Tick(ctx)

	fail := statusOf(t, s, "fail")
	assert.Equal(t, uint64(2), fail.ErrorCount)
	assert.Equal(t, uint64(0), fail.RunCount)
	assert.Equal(t, "disk full", fail.LastError)

	boom := statusOf(t, s, "boom")
	assert.Equal(t, uint64(2), boom.ErrorCount)
	assert.Contains(t, boom.LastError, "panicked")

	assert.Equal(t, int32(2), n.Load(), "failures never stop other tasks")
}

func TestRunNow(t *testing.T) {
	s, _ := newSched()
	var n atomic.Int32
	require.NoError(t, s.AddTask(counter("manual", &n), time.Hour, false))

	assert.NoError(t, s.RunNow(context.Background(), "manual"))
	assert.ErrorIs(t, s.RunNow(context.Background(), "missing"), ErrUnknownTask)

	st := statusOf(t, s, "manual")
	assert.Equal(t, uint64(1), st.RunCount)
	assert.False(t, st.Enabled)
	assert.False(t, st.LastRun.IsZero())
}

func TestAddTaskValidation(t *testing.T) {
	s, _ := newSched()
	var n atomic.Int32
	require.NoError(t, s.AddTask(counter("a", &n), time.Second, true))
	assert.ErrorIs(t, s.AddTask(counter("a", &n), time.Second, true), ErrDuplicateTask)
	assert.ErrorIs(t, s.AddTask(counter("b", &n), 0, true), ErrBadInterval)
}

func TestStatusKeepsRegistrationOrder(t *testing.T) {
	s, _ := newSched()
	var n atomic.Int32
	for _, name := range []string{"z", "a", "m"} {
		require.NoError(t, s.AddTask(counter(name, &n), time.Second, true))
	}
	var names []string
	for _, st := range s.Status() {
		names = append(names, st.Name)
	}
	assert.Equal(t, []string{"z", "a", "m"}, names)
}

func TestTaskMayInspectScheduler(t *testing.T) {
	s, _ := newSched()
	var seen int
	require.NoError(t, s.AddTask(TaskFunc("self", func(context.Context) error {
		seen = len(s.Status())
		s.Disable("self")
		return nil
	}), time.Second, true))

	s.Tick(context.Background())
	assert.Equal(t, 1, seen)
	assert.False(t, statusOf(t, s, "self").Enabled)
}

func TestStartStopRealLoop(t *testing.T) {
	s := New(WithTick(10 * time.Millisecond))
	var n atomic.Int32
	require.NoError(t, s.AddTask(counter("fast", &n), time.Millisecond, true))

	s.Start(context.Background())
	assert.Eventually(t, func() bool { return n.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop(time.Second))

	after := n.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, n.Load(), "no runs after Stop")
}

func TestStopWithoutStart(t *testing.T) {
	assert.NoError(t, New().Stop(time.Millisecond))
}

func TestRunNowRefusesTaskInFlight(t *testing.T) {
	s, c := newSched()
	var inFlight, maxInFlight, runs atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, s.AddTask(TaskFunc("slow", func(context.Context) error {
		n := inFlight.Add(1)
		if n > maxInFlight.Load() {
			maxInFlight.Store(n)
		}
		if runs.Add(1) == 1 {
			close(entered)
			<-release
		}
		inFlight.Add(-1)
		return nil
	}), time.Second, true))

	done := make(chan struct{})
	go func() {
		s.Tick(context.Background())
		close(done)
	}()
	<-entered

	assert.ErrorIs(t, s.RunNow(context.Background(), "slow"), ErrTaskRunning)
	c.advance(time.Hour)
	assert.Equal(t, 0, s.Tick(context.Background()), "running task is not due again")

	close(release)
	<-done
	assert.Equal(t, int32(1), maxInFlight.Load())
	assert.Equal(t, int32(1), runs.Load())

	require.NoError(t, s.RunNow(context.Background(), "slow"))
	assert.Equal(t, int32(2), runs.Load())
}

func TestSuccessClearsLastError(t *testing.T) {
	s, c := newSched()
	fail := true
	require.NoError(t, s.AddTask(TaskFunc("flaky", func(context.Context) error {
		if fail {
			return errors.New("db locked")
		}
		return nil
	}), time.Second, true))

	s.Tick(context.Background())
	assert.Equal(t, "db locked", statusOf(t, s, "flaky").LastError)

	fail = false
	c.advance(time.Second)
	s.Tick(context.Background())
	st := statusOf(t, s, "flaky")
	assert.Empty(t, st.LastError)
	assert.Equal(t, uint64(1), st.ErrorCount)
	assert.Equal(t, uint64(1), st.RunCount)
}
