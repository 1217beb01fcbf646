package instance

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/flowforge/engine/common/queue"
	"github.com/flowforge/engine/common/statestore"
	"github.com/flowforge/engine/common/task"
	"github.com/flowforge/engine/common/value"
)

// Syscall is the set of control-flow primitives a single Task dispatch may
// invoke, at most once per Task: a Join arrival that is not the last, and
// a failed Function execution that schedules a retry, invoke none. It is
// the Worker's internal vocabulary, not something exposed to Function
// handlers.
type Syscall interface {
	// Jump enqueues a Task for the single successor node nodeIndex,
	// continuing the same flow.
	Jump(ctx context.Context, nodeIndex int) error
	// Fork enqueues one Task per target, each carrying a fresh flow_id.
	// joinIndex is not used: the Join's counter is initialized from its
	// own Expect on first arrival (StateStore.JoinArrive).
	Fork(ctx context.Context, targets []int, joinIndex int) error
	// Complete marks the instance Completed; called when End is reached.
	Complete(ctx context.Context) error
	// Fail marks the instance Failed with cause.
	Fail(ctx context.Context, nodeIndex int, cause error) error
}

// Context is the concrete Syscall implementation the Worker constructs per
// Task dispatch, closing over the instance/blueprint identity and the
// shared Queue/StateStore.
type Context struct {
	InstanceID  string
	BlueprintID string
	FlowID      string

	Queue queue.TaskQueue
	Store statestore.StateStore
}

func (c *Context) Jump(ctx context.Context, nodeIndex int) error {
	return c.Queue.Push(ctx, task.Task{
		InstanceID:  c.InstanceID,
		BlueprintID: c.BlueprintID,
		NodeIndex:   nodeIndex,
		FlowID:      c.FlowID,
	})
}

func (c *Context) Fork(ctx context.Context, targets []int, joinIndex int) error {
	for _, t := range targets {
		if err := c.Queue.Push(ctx, task.Task{
			InstanceID:  c.InstanceID,
			BlueprintID: c.BlueprintID,
			NodeIndex:   t,
			FlowID:      uuid.NewString(),
		}); err != nil {
			return fmt.Errorf("instance: fork to node %d: %w", t, err)
		}
	}
	return nil
}

func (c *Context) Complete(ctx context.Context) error {
	return c.Store.SetStatus(ctx, c.InstanceID, statestore.StatusCompleted)
}

func (c *Context) Fail(ctx context.Context, nodeIndex int, cause error) error {
	if err := c.Store.SetVar(ctx, c.InstanceID, "__error", errorValue(nodeIndex, cause)); err != nil {
		return err
	}
	return c.Store.SetStatus(ctx, c.InstanceID, statestore.StatusFailed)
}

func errorValue(nodeIndex int, cause error) value.Value {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return value.Object(map[string]value.Value{
		"node_index": value.Int(int64(nodeIndex)),
		"message":    value.String(msg),
	})
}
