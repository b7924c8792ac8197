// internal/jobqueue/queue.go
//
// Background job queue.
//
// Context
// -------
// Handlers and scheduled tasks hand off slow work (backup uploads,
// notifications) with Enqueue and return at once.  Jobs wait in an
// unbounded FIFO slice and a fixed set of workers drain it.  A worker that
// finds the queue empty sleeps for the idle interval before polling again.
//
// Failures stay inside the queue: an error or panic is logged and counted,
// and the worker moves on to the next job.
//
// Notes
// -----
//   - FIFO holds for the queue itself.  With more than one worker, jobs may
//     finish out of order.
//   - Stop waits for running jobs up to a timeout; jobs still queued are
//     dropped and counted.
package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/yanizio/cardeal/internal/logger"
	"github.com/yanizio/cardeal/internal/metrics"
)

// Defaults match the production sizing.
const (
	DefaultWorkers = 2
	DefaultIdle    = 100 * time.Millisecond
)

// ErrStopped is returned by Enqueue after Stop.
var ErrStopped = errors.New("jobqueue: stopped")

// Func is the work a job performs.
type Func func(ctx context.Context) error

// Job is one queued unit of work.
type Job struct {
	ID       string
	Name     string
	Fn       Func
	Enqueued time.Time
}

// Stats is a snapshot of queue counters.
type Stats struct {
	Workers   int    `json:"workers"`
	Pending   int    `json:"pending"`
	Active    int32  `json:"active"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
}

// Config sizes a Queue.
type Config struct {
	Workers int
	Idle    time.Duration
	Logger  *zap.SugaredLogger
}

// Queue is safe for concurrent use.  Construct with New.
type Queue struct {
	workers int
	idle    time.Duration
	log     *zap.SugaredLogger

	mu      sync.Mutex
	jobs    []Job
	stopped bool

	active    atomic.Int32
	completed atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64

	backlogLog rate.Sometimes

	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
}

// New returns a stopped-until-Start Queue.
func New(cfg Config) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Idle <= 0 {
		cfg.Idle = DefaultIdle
	}
	return &Queue{
		workers:    cfg.Workers,
		idle:       cfg.Idle,
		log:        logger.OrNop(cfg.Logger),
		backlogLog: rate.Sometimes{Interval: time.Minute},
		stopCh:     make(chan struct{}),
	}
}

// Enqueue appends fn to the queue and returns the job id.
func (q *Queue) Enqueue(name string, fn Func) (string, error) {
	job := Job{ID: uuid.NewString(), Name: name, Fn: fn, Enqueued: time.Now()}

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return "", ErrStopped
	}
	q.jobs = append(q.jobs, job)
	n := len(q.jobs)
	q.mu.Unlock()

	metrics.JobsPending.Set(float64(n))
	if n > 100*q.workers {
		q.backlogLog.Do(func() { q.log.Warnw("job backlog growing", "pending", n) })
	}
	return job.ID, nil
}

// Pending reports queued jobs not yet picked up.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Stats returns current counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Workers:   q.workers,
		Pending:   q.Pending(),
		Active:    q.active.Load(),
		Completed: q.completed.Load(),
		Failed:    q.failed.Load(),
		Dropped:   q.dropped.Load(),
	}
}

// Start launches the workers.  ctx is passed to every job; cancelling it
// also stops the workers.  Calling Start twice is a no-op.
func (q *Queue) Start(ctx context.Context) {
	q.startOnce.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go q.worker(ctx, i)
		}
		q.log.Infow("job queue online", "workers", q.workers)
	})
}

func (q *Queue) pop() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return Job{}, false
	}
	job := q.jobs[0]
	q.jobs[0] = Job{}
	q.jobs = q.jobs[1:]
	metrics.JobsPending.Set(float64(len(q.jobs)))
	return job, true
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	idle := time.NewTimer(q.idle)
	defer idle.Stop()

	for {
		select {
		case <-q.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		job, ok := q.pop()
		if !ok {
			idle.Reset(q.idle)
			select {
			case <-q.stopCh:
				return
			case <-ctx.Done():
				return
			case <-idle.C:
			}
			continue
		}
		q.run(ctx, id, job)
	}
}

func (q *Queue) run(ctx context.Context, workerID int, job Job) {
	q.active.Add(1)
	defer q.active.Add(-1)

	start := time.Now()
	err := safeExecute(ctx, job)
	took := time.Since(start)

	if err != nil {
		q.failed.Add(1)
		metrics.JobsProcessed.WithLabelValues("error").Inc()
		q.log.Errorw("job failed",
			"job", job.Name, "job_id", job.ID, "worker", workerID, "took", took, "err", err)
		return
	}
	q.completed.Add(1)
	metrics.JobsProcessed.WithLabelValues("ok").Inc()
	q.log.Debugw("job done", "job", job.Name, "job_id", job.ID, "worker", workerID, "took", took)
}

func safeExecute(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job.Fn(ctx)
}

// Stop refuses new jobs, signals the workers, and waits up to timeout for
// in-flight jobs.  Jobs still queued are dropped.
func (q *Queue) Stop(timeout time.Duration) error {
	var err error
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.stopped = true
		q.mu.Unlock()
		close(q.stopCh)

		done := make(chan struct{})
		go func() {
			q.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(timeout):
			err = fmt.Errorf("jobqueue: stop timed out after %s", timeout)
		}

		q.mu.Lock()
		n := len(q.jobs)
		q.jobs = nil
		q.mu.Unlock()
		q.dropped.Add(uint64(n))
		metrics.JobsPending.Set(0)
		q.log.Infow("job queue stopped", "dropped", n, "timed_out", err != nil)
	})
	return err
}
