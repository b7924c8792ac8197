// internal/scheduler/scheduler.go
//
// Periodic maintenance scheduler.
//
// Context
// -------
// One driver goroutine wakes every tick (1 s in production).  Each wake-up
// snapshots the enabled tasks whose next run has arrived, runs them one
// after another, and records the outcome: last run, next run (last run +
// interval), run and error counts, the last error, and wall time.  A slow
// task delays only the tasks behind it in the same batch; the ticker keeps
// its own cadence and simply fires again once the batch is done.
//
// A newly added task is due at once.  RunNow executes a task out of band
// on the caller's goroutine and updates the same bookkeeping.  A task never
// runs twice at once: Tick skips it and RunNow refuses it while it runs.
//
// Notes
// -----
//   - The mutex guards only the task table.  Tasks run with it released,
//     so a task may call Status, Enable, or Disable without deadlock.
//   - A panicking task is recovered and counted as an error.
//   - Tick is exported so tests can drive the loop with a fake clock.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/cardeal/internal/logger"
	"github.com/yanizio/cardeal/internal/metrics"
)

// DefaultTick is the production wake-up interval.
const DefaultTick = time.Second

var (
	ErrDuplicateTask = errors.New("scheduler: task already registered")
	ErrBadInterval   = errors.New("scheduler: interval must be positive")
	ErrUnknownTask   = errors.New("scheduler: unknown task")
	ErrTaskRunning   = errors.New("scheduler: task already running")
)

// TaskStatus is a snapshot of one task's bookkeeping.
type TaskStatus struct {
	Name         string        `json:"name"`
	Interval     time.Duration `json:"interval"`
	Enabled      bool          `json:"enabled"`
	Running      bool          `json:"running"`
	LastRun      time.Time     `json:"last_run,omitzero"`
	NextRun      time.Time     `json:"next_run,omitzero"`
	RunCount     uint64        `json:"run_count"`
	ErrorCount   uint64        `json:"error_count"`
	LastError    string        `json:"last_error,omitempty"`
	LastDuration time.Duration `json:"last_duration"`
}

type entry struct {
	task Task
	TaskStatus
}

// Scheduler runs registered tasks.  Construct with New.
type Scheduler struct {
	mu    sync.Mutex
	tasks map[string]*entry
	order []string

	tick time.Duration
	now  func() time.Time
	log  *zap.SugaredLogger

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTick overrides DefaultTick.
func WithTick(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

// WithClock overrides time.Now for due-time decisions.
func WithClock(now func() time.Time) Option { return func(s *Scheduler) { s.now = now } }

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option { return func(s *Scheduler) { s.log = logger.OrNop(l) } }

// New returns an idle Scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		tasks: make(map[string]*entry),
		tick:  DefaultTick,
		now:   time.Now,
		log:   logger.OrNop(nil),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// AddTask registers t to run every interval.
func (s *Scheduler) AddTask(t Task, interval time.Duration, enabled bool) error {
	if interval <= 0 {
		return fmt.Errorf("%w: %s", ErrBadInterval, t.Name())
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	name := t.Name()
	if _, ok := s.tasks[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, name)
	}
	s.tasks[name] = &entry{
		task:       t,
		TaskStatus: TaskStatus{Name: name, Interval: interval, Enabled: enabled},
	}
	s.order = append(s.order, name)
	return nil
}

// Enable turns a task on.  It reports false for unknown names.
func (s *Scheduler) Enable(name string) bool { return s.setEnabled(name, true) }

// Disable turns a task off.  A run already in progress finishes.
func (s *Scheduler) Disable(name string) bool { return s.setEnabled(name, false) }

func (s *Scheduler) setEnabled(name string, on bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.tasks[name]
	if !ok {
		return false
	}
	e.Enabled = on
	return true
}

// RunNow runs name immediately on the calling goroutine, regardless of its
// schedule or enabled flag.  A task that is already running is not started
// a second time: RunNow returns ErrTaskRunning instead.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.tasks[name]
	switch {
	case !ok:
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	case e.Running:
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskRunning, name)
	}
	e.Running = true
	s.mu.Unlock()

	s.execute(ctx, e)
	return nil
}

// Status returns every task in registration order.
func (s *Scheduler) Status() []TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskStatus, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.tasks[name].TaskStatus)
	}
	return out
}

// Tick runs every due task once and returns how many ran.
func (s *Scheduler) Tick(ctx context.Context) int {
	now := s.now()

	s.mu.Lock()
	var due []*entry
	for _, name := range s.order {
		e := s.tasks[name]
		if e.Enabled && !e.Running && !now.Before(e.NextRun) {
			e.Running = true
			due = append(due, e)
		}
	}
	s.mu.Unlock()

	for _, e := range due {
		if ctx.Err() != nil {
			s.mu.Lock()
			e.Running = false
			s.mu.Unlock()
			continue
		}
		s.execute(ctx, e)
	}
	return len(due)
}

// execute runs e's task outside the lock.  Caller must have set Running.
func (s *Scheduler) execute(ctx context.Context, e *entry) {
	start := s.now()
	wall := time.Now()
	err := safeRun(ctx, e.task)
	took := time.Since(wall)

	s.mu.Lock()
	e.Running = false
	e.LastRun = start
	e.NextRun = start.Add(e.Interval)
	e.LastDuration = took
	if err != nil {
		e.ErrorCount++
		e.LastError = err.Error()
	} else {
		e.RunCount++
		e.LastError = ""
	}
	s.mu.Unlock()

	metrics.TaskDuration.WithLabelValues(e.Name).Observe(took.Seconds())
	if err != nil {
		metrics.TaskRuns.WithLabelValues(e.Name, "error").Inc()
		s.log.Errorw("task failed", "task", e.Name, "took", took, "err", err)
		return
	}
	metrics.TaskRuns.WithLabelValues(e.Name, "ok").Inc()
	s.log.Debugw("task done", "task", e.Name, "took", took)
}

func safeRun(ctx context.Context, t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return t.Run(ctx)
}

// Start launches the driver loop.  It returns immediately; the loop exits
// on Stop or when ctx is cancelled.  Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.mu.Lock()
		n := len(s.tasks)
		s.mu.Unlock()
		s.log.Infow("scheduler online", "tasks", n, "tick", s.tick)

		go s.loop(ctx)
	})
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	t := time.NewTicker(s.tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Tick(ctx)
		}
	}
}

// Stop signals the loop and waits up to timeout for the current batch to
// finish.  A Scheduler that was never started stops at once.
func (s *Scheduler) Stop(timeout time.Duration) error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stop)
		started := true
		s.startOnce.Do(func() { started = false })
		if !started {
			return
		}
		select {
		case <-s.done:
			s.log.Infow("scheduler stopped")
		case <-time.After(timeout):
			err = fmt.Errorf("scheduler: stop timed out after %s", timeout)
		}
	})
	return err
}
