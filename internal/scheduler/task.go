package scheduler

import "context"

// Task is a named unit of periodic work.  Run should return promptly when
// ctx is cancelled.
type Task interface {
	Name() string
	Run(ctx context.Context) error
}

type funcTask struct {
	name string
	fn   func(context.Context) error
}

func (t funcTask) Name() string                  { return t.name }
func (t funcTask) Run(ctx context.Context) error { return t.fn(ctx) }

// TaskFunc adapts fn to a Task called name.
func TaskFunc(name string, fn func(context.Context) error) Task {
	return funcTask{name: name, fn: fn}
}
