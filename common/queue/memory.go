package queue

import (
	"context"
	"sync"
	"time"

	"github.com/flowforge/engine/common/task"
)

// MemoryQueue is a single buffered channel shared by all producers and
// consumers, matching the teacher's per-topic channel in
// common/queue.MemoryQueue but collapsed to a single FIFO topic since a
// TaskQueue has exactly one stream of work.
type MemoryQueue struct {
	ch chan task.Task
	mu sync.Mutex
}

// NewMemoryQueue creates an in-memory TaskQueue with the given buffer
// capacity.
func NewMemoryQueue(capacity int) *MemoryQueue {
	return &MemoryQueue{ch: make(chan task.Task, capacity)}
}

func (q *MemoryQueue) Push(ctx context.Context, t task.Task) error {
	select {
	case q.ch <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Pop(ctx context.Context, timeout time.Duration) (task.Task, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case t := <-q.ch:
		return t, true, nil
	case <-timer.C:
		return task.Task{}, false, nil
	case <-ctx.Done():
		return task.Task{}, false, ctx.Err()
	}
}

func (q *MemoryQueue) Len(ctx context.Context) (int, error) {
	return len(q.ch), nil
}
