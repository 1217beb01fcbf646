// Package worker implements the Task-driven execution loop: pop a Task,
// dispatch by blueprint node kind, issue at most one Syscall (Jump, Fork,
// Complete, or Fail) per Task. Function handlers run synchronously inside
// Dispatch; a Join arrival that is not the last, and a failed Function
// execution that schedules a retry, issue no syscall.
package worker

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/flowforge/engine/common/blueprint"
	"github.com/flowforge/engine/common/expr"
	"github.com/flowforge/engine/common/function"
	"github.com/flowforge/engine/common/instance"
	"github.com/flowforge/engine/common/interp"
	"github.com/flowforge/engine/common/logger"
	"github.com/flowforge/engine/common/queue"
	"github.com/flowforge/engine/common/statestore"
	"github.com/flowforge/engine/common/task"
	"github.com/flowforge/engine/common/value"
)

// BlueprintSource resolves a blueprint by ID; the Worker never mutates or
// caches blueprints itself, since they are immutable and owned by the
// Engine's registry.
type BlueprintSource interface {
	Get(id string) (*blueprint.Blueprint, bool)
}

// EventSink receives a history entry for an instance as each node is
// entered/completed/failed; cmd/engine's WebSocket hub implements this to
// fan events out to live watchers. Nil is permitted (events are dropped).
type EventSink interface {
	Record(instanceID string, e instance.Event)
}

// Worker pops Tasks off a queue and drives Instances forward. Any number
// of Worker loops, in any number of processes, may share one Queue and
// StateStore.
type Worker struct {
	Blueprints BlueprintSource
	Functions  *function.Registry
	Queue      queue.TaskQueue
	Store      statestore.StateStore
	Evaluator  *expr.Evaluator
	Logger     *logger.Logger
	Events     EventSink

	// PopTimeout bounds each Queue.Pop call so Run can observe ctx
	// cancellation promptly even against a queue with no pending work.
	PopTimeout time.Duration
}

// Run pops and processes Tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	timeout := w.PopTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		t, ok, err := w.Queue.Pop(ctx, timeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logf("queue pop error: %v", err)
			continue
		}
		if !ok {
			continue
		}

		if err := w.Dispatch(ctx, t); err != nil {
			w.logf("task %s/%d failed: %v", t.InstanceID, t.NodeIndex, err)
		}
	}
}

func (w *Worker) logf(format string, args ...interface{}) {
	if w.Logger != nil {
		w.Logger.Error(fmt.Sprintf(format, args...))
	}
}

func (w *Worker) record(instanceID string, e instance.Event) {
	if w.Events != nil {
		w.Events.Record(instanceID, e)
	}
}

// Dispatch executes exactly one Task: it loads the Blueprint and node,
// dispatches by kind, and issues the node's syscall(s). A Task whose
// instance has already reached a terminal status (Completed or Failed) is
// dropped rather than dispatched, since a slower sibling branch's Task can
// otherwise arrive after another branch already failed (or completed) the
// instance and resurrect it or stack a second outcome on top.
func (w *Worker) Dispatch(ctx context.Context, t task.Task) error {
	status, err := w.Store.GetStatus(ctx, t.InstanceID)
	if err != nil {
		return fmt.Errorf("worker: load status for %q: %w", t.InstanceID, err)
	}
	if status == statestore.StatusCompleted || status == statestore.StatusFailed {
		return nil
	}

	bp, ok := w.Blueprints.Get(t.BlueprintID)
	if !ok {
		return fmt.Errorf("worker: unknown blueprint %q", t.BlueprintID)
	}
	if t.NodeIndex < 0 || t.NodeIndex >= len(bp.Nodes) {
		return fmt.Errorf("worker: node index %d out of range for blueprint %q", t.NodeIndex, t.BlueprintID)
	}
	node := bp.Nodes[t.NodeIndex]

	sc := &instance.Context{
		InstanceID:  t.InstanceID,
		BlueprintID: t.BlueprintID,
		FlowID:      t.FlowID,
		Queue:       w.Queue,
		Store:       w.Store,
	}

	w.record(t.InstanceID, instance.Event{NodeIndex: t.NodeIndex, NodeID: node.ID, Kind: "entered", Timestamp: time.Now()})

	switch node.Kind {
	case blueprint.KindStart:
		err = sc.Jump(ctx, node.Next)
	case blueprint.KindEnd:
		err = sc.Complete(ctx)
	case blueprint.KindAssign:
		err = w.execAssign(ctx, sc, node)
	case blueprint.KindFunction:
		err = w.execFunction(ctx, sc, t, node)
	case blueprint.KindIf:
		err = w.execIf(ctx, sc, node)
	case blueprint.KindLoop:
		err = w.execLoop(ctx, sc, node)
	case blueprint.KindIteration:
		err = w.execIteration(ctx, sc, node)
	case blueprint.KindFork:
		err = sc.Fork(ctx, node.Targets, node.JoinIdx)
	case blueprint.KindJoin:
		err = w.execJoin(ctx, sc, t, node)
	default:
		err = fmt.Errorf("worker: unknown node kind %q", node.Kind)
	}

	if err != nil {
		w.record(t.InstanceID, instance.Event{NodeIndex: t.NodeIndex, NodeID: node.ID, Kind: "failed", Detail: err.Error(), Timestamp: time.Now()})
		return err
	}
	w.record(t.InstanceID, instance.Event{NodeIndex: t.NodeIndex, NodeID: node.ID, Kind: "completed", Timestamp: time.Now()})
	return nil
}

func (w *Worker) execAssign(ctx context.Context, sc *instance.Context, node blueprint.Node) error {
	vars, err := w.Store.GetVarsSnapshot(ctx, sc.InstanceID)
	if err != nil {
		return fmt.Errorf("worker: assign %q: load vars: %w", node.ID, err)
	}
	result, err := w.Evaluator.Eval(node.Expr, vars)
	if err != nil {
		return fmt.Errorf("worker: assign %q: eval: %w", node.ID, err)
	}
	if err := w.Store.SetVar(ctx, sc.InstanceID, node.Var, result); err != nil {
		return fmt.Errorf("worker: assign %q: set var: %w", node.ID, err)
	}
	return sc.Jump(ctx, node.Next)
}

func (w *Worker) execIf(ctx context.Context, sc *instance.Context, node blueprint.Node) error {
	vars, err := w.Store.GetVarsSnapshot(ctx, sc.InstanceID)
	if err != nil {
		return fmt.Errorf("worker: if %q: load vars: %w", node.ID, err)
	}
	ok, err := w.Evaluator.EvalBool(node.Cond, vars)
	if err != nil {
		return fmt.Errorf("worker: if %q: eval: %w", node.ID, err)
	}
	if ok {
		return sc.Jump(ctx, node.Then)
	}
	return sc.Jump(ctx, node.Else)
}

func (w *Worker) execLoop(ctx context.Context, sc *instance.Context, node blueprint.Node) error {
	vars, err := w.Store.GetVarsSnapshot(ctx, sc.InstanceID)
	if err != nil {
		return fmt.Errorf("worker: loop %q: load vars: %w", node.ID, err)
	}
	ok, err := w.Evaluator.EvalBool(node.Cond, vars)
	if err != nil {
		return fmt.Errorf("worker: loop %q: eval: %w", node.ID, err)
	}
	if ok {
		return sc.Jump(ctx, node.Body)
	}
	return sc.Jump(ctx, node.Exit)
}

// execIteration walks node.Collection using a per-(instance, node) cursor
// variable so repeated arrivals (once per loop-back from Body) resume
// from where the previous arrival left off.
func (w *Worker) execIteration(ctx context.Context, sc *instance.Context, node blueprint.Node) error {
	cursorVar := fmt.Sprintf("__iter_%s", node.ID)

	vars, err := w.Store.GetVarsSnapshot(ctx, sc.InstanceID)
	if err != nil {
		return fmt.Errorf("worker: iteration %q: load vars: %w", node.ID, err)
	}

	collection, err := w.Evaluator.Eval(node.Collection, vars)
	if err != nil {
		return fmt.Errorf("worker: iteration %q: eval collection: %w", node.ID, err)
	}
	items := collection.AsArray()

	cursor := 0
	if cv, ok := vars[cursorVar]; ok {
		cursor = int(cv.AsInt())
	}

	if cursor >= len(items) {
		if err := w.Store.SetVar(ctx, sc.InstanceID, cursorVar, value.Int(0)); err != nil {
			return fmt.Errorf("worker: iteration %q: reset cursor: %w", node.ID, err)
		}
		return sc.Jump(ctx, node.Done)
	}

	if err := w.Store.SetVar(ctx, sc.InstanceID, node.ItemVar, items[cursor]); err != nil {
		return fmt.Errorf("worker: iteration %q: bind item: %w", node.ID, err)
	}
	if err := w.Store.SetVar(ctx, sc.InstanceID, cursorVar, value.Int(int64(cursor+1))); err != nil {
		return fmt.Errorf("worker: iteration %q: advance cursor: %w", node.ID, err)
	}
	return sc.Jump(ctx, node.Body)
}

func (w *Worker) execJoin(ctx context.Context, sc *instance.Context, t task.Task, node blueprint.Node) error {
	result, err := w.Store.JoinArrive(ctx, sc.InstanceID, t.NodeIndex, node.Expect)
	if err != nil {
		return fmt.Errorf("worker: join %q: arrive: %w", node.ID, err)
	}
	if !result.HitZero {
		// Not the last branch to arrive: this Task's work is done.
		return nil
	}
	return sc.Jump(ctx, node.Next)
}

// execFunction resolves interpolation, executes the handler, and either
// continues to node.Next on success or retries-then-fails per
// node.Retry/node.OnFail.
func (w *Worker) execFunction(ctx context.Context, sc *instance.Context, t task.Task, node blueprint.Node) error {
	vars, err := w.Store.GetVarsSnapshot(ctx, sc.InstanceID)
	if err != nil {
		return fmt.Errorf("worker: function %q: load vars: %w", node.ID, err)
	}

	params, err := interp.Resolve(node.Params, vars)
	if err != nil {
		return fmt.Errorf("worker: function %q: interpolate: %w", node.ID, err)
	}

	handler, ok := w.Functions.Lookup(node.Function)
	if !ok {
		return fmt.Errorf("worker: function %q: unknown handler %q", node.ID, node.Function)
	}

	result, execErr := handler.Execute(ctx, params, function.RuntimeContext{
		InstanceID: sc.InstanceID,
		NodeID:     node.ID,
		Attempt:    t.Attempt,
	})

	if execErr == nil {
		if node.Output != "" {
			if err := w.Store.SetVar(ctx, sc.InstanceID, node.Output, result); err != nil {
				return fmt.Errorf("worker: function %q: store output: %w", node.ID, err)
			}
		}
		return sc.Jump(ctx, node.Next)
	}

	maxAttempts := 1
	if node.Retry != nil && node.Retry.MaxAttempts > 0 {
		maxAttempts = node.Retry.MaxAttempts
	}

	if t.Attempt+1 < maxAttempts {
		return w.scheduleRetry(ctx, t, node)
	}

	if node.OnFail >= 0 {
		return sc.Jump(ctx, node.OnFail)
	}
	return sc.Fail(ctx, t.NodeIndex, execErr)
}

// scheduleRetry re-enqueues t for another attempt after an exponential
// backoff, grounded on the teacher's RetryPolicy (BackoffMS *
// BackoffMultiplier^attempt). The delay runs in its own goroutine so the
// worker loop is free to process other Tasks meanwhile.
func (w *Worker) scheduleRetry(ctx context.Context, t task.Task, node blueprint.Node) error {
	delay := time.Duration(node.Retry.BackoffMS) * time.Millisecond
	if node.Retry.BackoffMultiplier > 0 {
		delay = time.Duration(float64(node.Retry.BackoffMS) * math.Pow(node.Retry.BackoffMultiplier, float64(t.Attempt))) * time.Millisecond
	}

	retryTask := t
	retryTask.Attempt++

	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return
		}
		if err := w.Queue.Push(context.Background(), retryTask); err != nil {
			w.logf("retry enqueue failed for %s/%d: %v", t.InstanceID, t.NodeIndex, err)
		}
	}()
	return nil
}
