// Package queue implements the Task queue SPI: a pluggable FIFO between
// task producers (the worker, when it issues a successor Task) and task
// consumers (the worker pool), with an in-memory implementation for
// single-process use and a Redis list implementation for distributed use.
package queue

import (
	"context"
	"time"

	"github.com/flowforge/engine/common/task"
)

// TaskQueue is the pluggable transport between task producers and the
// worker pool. Pop blocks up to timeout waiting for a Task; ok is false on
// timeout with no error. Both implementations remove a Task when it is
// popped and never redeliver it, so a Task whose worker stops mid-dispatch
// is lost. Nothing deduplicates Tasks: one pushed twice is dispatched
// twice, and at a Join that counts as two arrivals.
type TaskQueue interface {
	Push(ctx context.Context, t task.Task) error
	Pop(ctx context.Context, timeout time.Duration) (task.Task, bool, error)
	Len(ctx context.Context) (int, error)
}
