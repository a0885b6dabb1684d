package task

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Func does the actual work of a task.
type Func func(ctx context.Context) error

// Task is deferred work built when a tile is created and run later. Once the
// work succeeds it is never run again; a failed run is retried by the next
// caller of Run.
type Task struct {
	id    uuid.UUID
	label string
	fn    Func

	mu   sync.Mutex
	done bool
}

func New(label string, fn Func) *Task {
	return &Task{
		id:    uuid.New(),
		label: label,
		fn:    fn,
	}
}

func (t *Task) ID() uuid.UUID {
	return t.id
}

func (t *Task) Label() string {
	return t.label
}

// Run executes the task unless it already succeeded. Concurrent callers wait
// for the run in progress.
func (t *Task) Run(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := t.fn(ctx); err != nil {
		return err
	}
	t.done = true
	return nil
}

func (t *Task) Done() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.done
}
