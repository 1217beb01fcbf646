package worker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/flowforge/engine/common/blueprint"
	"github.com/flowforge/engine/common/expr"
	"github.com/flowforge/engine/common/function"
	"github.com/flowforge/engine/common/queue"
	"github.com/flowforge/engine/common/statestore"
	"github.com/flowforge/engine/common/task"
	"github.com/flowforge/engine/common/value"
)

type fakeSource struct {
	bp *blueprint.Blueprint
}

func (f *fakeSource) Get(id string) (*blueprint.Blueprint, bool) {
	if f.bp.ID != id {
		return nil, false
	}
	return f.bp, true
}

func newWorker(bp *blueprint.Blueprint) (*Worker, queue.TaskQueue, statestore.StateStore) {
	q := queue.NewMemoryQueue(16)
	st := statestore.NewMemoryStore()
	w := &Worker{
		Blueprints: &fakeSource{bp: bp},
		Functions:  function.NewRegistry(),
		Queue:      q,
		Store:      st,
		Evaluator:  expr.NewEvaluator(),
	}
	return w, q, st
}

func TestWorker_AssignEvaluatesAndJumps(t *testing.T) {
	bp := &blueprint.Blueprint{
		ID: "assign",
		Nodes: []blueprint.Node{
			{ID: "a", Kind: blueprint.KindAssign, Var: "x", Expr: "1 + 2", Next: 1},
			{ID: "end", Kind: blueprint.KindEnd, Next: -1},
		},
		StartIdx: 0,
	}
	w, q, st := newWorker(bp)
	ctx := context.Background()

	if err := st.CreateInstance(ctx, "i1", bp.ID); err != nil {
		t.Fatalf("create instance: %v", err)
	}

	if err := w.Dispatch(ctx, task.Task{InstanceID: "i1", BlueprintID: bp.ID, NodeIndex: 0}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	got, ok, err := st.GetVar(ctx, "i1", "x")
	if err != nil || !ok {
		t.Fatalf("get var: ok=%v err=%v", ok, err)
	}
	if got.AsInt() != 3 {
		t.Fatalf("x = %v, want 3", got)
	}

	next, ok, err := q.Pop(ctx, time.Second)
	if err != nil || !ok {
		t.Fatalf("pop: ok=%v err=%v", ok, err)
	}
	if next.NodeIndex != 1 {
		t.Fatalf("next task node = %d, want 1", next.NodeIndex)
	}
}

func TestWorker_IfBranches(t *testing.T) {
	bp := &blueprint.Blueprint{
		ID: "branch",
		Nodes: []blueprint.Node{
			{ID: "check", Kind: blueprint.KindIf, Cond: "vars.ok == true", Then: 1, Else: 2},
			{ID: "yes", Kind: blueprint.KindEnd, Next: -1},
			{ID: "no", Kind: blueprint.KindEnd, Next: -1},
		},
		StartIdx: 0,
	}
	w, q, st := newWorker(bp)
	ctx := context.Background()

	if err := st.CreateInstance(ctx, "i1", bp.ID); err != nil {
		t.Fatalf("create instance: %v", err)
	}
	if err := st.SetVar(ctx, "i1", "ok", value.Bool(true)); err != nil {
		t.Fatalf("set var: %v", err)
	}

	if err := w.Dispatch(ctx, task.Task{InstanceID: "i1", BlueprintID: bp.ID, NodeIndex: 0}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	next, ok, err := q.Pop(ctx, time.Second)
	if err != nil || !ok {
		t.Fatalf("pop: ok=%v err=%v", ok, err)
	}
	if next.NodeIndex != 1 {
		t.Fatalf("should take the then branch, got node %d", next.NodeIndex)
	}
}

func TestWorker_ForkJoinExactlyOneProceeds(t *testing.T) {
	bp := &blueprint.Blueprint{
		ID: "fj",
		Nodes: []blueprint.Node{
			{ID: "fork", Kind: blueprint.KindFork, Targets: []int{1, 2}, JoinIdx: 3},
			{ID: "b1", Kind: blueprint.KindEnd, Next: -1},
			{ID: "b2", Kind: blueprint.KindEnd, Next: -1},
			{ID: "join", Kind: blueprint.KindJoin, Expect: 2, Next: 4},
			{ID: "after", Kind: blueprint.KindEnd, Next: -1},
		},
		StartIdx: 0,
	}
	w, _, st := newWorker(bp)
	ctx := context.Background()
	if err := st.CreateInstance(ctx, "i1", bp.ID); err != nil {
		t.Fatalf("create instance: %v", err)
	}

	proceeded := 0
	for branch := 0; branch < 2; branch++ {
		err := w.Dispatch(ctx, task.Task{InstanceID: "i1", BlueprintID: bp.ID, NodeIndex: 3})
		if err != nil {
			t.Fatalf("dispatch join: %v", err)
		}
	}

	q := w.Queue
	for {
		_, ok, err := q.Pop(ctx, 50*time.Millisecond)
		if err != nil {
			t.Fatalf("pop: %v", err)
		}
		if !ok {
			break
		}
		proceeded++
	}
	if proceeded != 1 {
		t.Fatalf("expected exactly one task past the join, got %d", proceeded)
	}
}

func TestWorker_IterationWalksCollectionThenDone(t *testing.T) {
	bp := &blueprint.Blueprint{
		ID: "iter",
		Nodes: []blueprint.Node{
			{ID: "loop", Kind: blueprint.KindIteration, Collection: "vars.items", ItemVar: "item", Body: 1, Done: 2},
			{ID: "body", Kind: blueprint.KindEnd, Next: -1},
			{ID: "done", Kind: blueprint.KindEnd, Next: -1},
		},
		StartIdx: 0,
	}
	w, q, st := newWorker(bp)
	ctx := context.Background()
	if err := st.CreateInstance(ctx, "i1", bp.ID); err != nil {
		t.Fatalf("create instance: %v", err)
	}
	items := value.Array([]value.Value{value.Int(10), value.Int(20)})
	if err := st.SetVar(ctx, "i1", "items", items); err != nil {
		t.Fatalf("set var: %v", err)
	}

	// First arrival: binds item=10, advances cursor, jumps to Body.
	if err := w.Dispatch(ctx, task.Task{InstanceID: "i1", BlueprintID: bp.ID, NodeIndex: 0}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	item, _, _ := st.GetVar(ctx, "i1", "item")
	if item.AsInt() != 10 {
		t.Fatalf("item = %v, want 10", item)
	}
	t1, _, _ := q.Pop(ctx, time.Second)
	if t1.NodeIndex != 1 {
		t.Fatalf("expected body node, got %d", t1.NodeIndex)
	}

	// Second arrival: binds item=20.
	if err := w.Dispatch(ctx, task.Task{InstanceID: "i1", BlueprintID: bp.ID, NodeIndex: 0}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	item, _, _ = st.GetVar(ctx, "i1", "item")
	if item.AsInt() != 20 {
		t.Fatalf("item = %v, want 20", item)
	}
	q.Pop(ctx, time.Second)

	// Third arrival: collection exhausted, jumps to Done.
	if err := w.Dispatch(ctx, task.Task{InstanceID: "i1", BlueprintID: bp.ID, NodeIndex: 0}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	t3, ok, _ := q.Pop(ctx, time.Second)
	if !ok || t3.NodeIndex != 2 {
		t.Fatalf("expected done node, got %d ok=%v", t3.NodeIndex, ok)
	}
}

type echoHandler struct{}

func (echoHandler) Name() string                   { return "echo" }
func (echoHandler) Validate(value.Value) error      { return nil }
func (echoHandler) Execute(_ context.Context, params value.Value, _ function.RuntimeContext) (value.Value, error) {
	return params, nil
}

func TestWorker_FunctionSuccessSetsOutputAndJumps(t *testing.T) {
	bp := &blueprint.Blueprint{
		ID: "fn",
		Nodes: []blueprint.Node{
			{ID: "call", Kind: blueprint.KindFunction, Function: "echo", Params: value.Object(map[string]value.Value{"greeting": value.String("${name}")}), Output: "result", Next: 1, OnFail: -1},
			{ID: "end", Kind: blueprint.KindEnd, Next: -1},
		},
		StartIdx: 0,
	}
	w, q, st := newWorker(bp)
	if err := w.Functions.Register(echoHandler{}); err != nil {
		t.Fatalf("register: %v", err)
	}
	ctx := context.Background()
	if err := st.CreateInstance(ctx, "i1", bp.ID); err != nil {
		t.Fatalf("create instance: %v", err)
	}
	if err := st.SetVar(ctx, "i1", "name", value.String("ada")); err != nil {
		t.Fatalf("set var: %v", err)
	}

	if err := w.Dispatch(ctx, task.Task{InstanceID: "i1", BlueprintID: bp.ID, NodeIndex: 0}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	result, ok, err := st.GetVar(ctx, "i1", "result")
	if err != nil || !ok {
		t.Fatalf("get result: ok=%v err=%v", ok, err)
	}
	greeting, ok := result.Get("greeting")
	if !ok || greeting.AsString() != "ada" {
		t.Fatalf("greeting = %v, ok=%v", greeting, ok)
	}

	next, ok, err := q.Pop(ctx, time.Second)
	if err != nil || !ok || next.NodeIndex != 1 {
		t.Fatalf("next task = %+v ok=%v err=%v", next, ok, err)
	}
}

type alwaysFailHandler struct{ calls int }

func (h *alwaysFailHandler) Name() string              { return "fail" }
func (h *alwaysFailHandler) Validate(value.Value) error { return nil }
func (h *alwaysFailHandler) Execute(context.Context, value.Value, function.RuntimeContext) (value.Value, error) {
	h.calls++
	return value.Null(), fmt.Errorf("boom")
}

func TestWorker_FunctionRetriesThenFailsInstance(t *testing.T) {
	bp := &blueprint.Blueprint{
		ID: "retry",
		Nodes: []blueprint.Node{
			{
				ID: "call", Kind: blueprint.KindFunction, Function: "fail",
				Params: value.Object(nil), Next: 1, OnFail: -1,
				Retry: &blueprint.RetryPolicy{MaxAttempts: 2, BackoffMS: 1},
			},
			{ID: "end", Kind: blueprint.KindEnd, Next: -1},
		},
		StartIdx: 0,
	}
	w, q, st := newWorker(bp)
	h := &alwaysFailHandler{}
	if err := w.Functions.Register(h); err != nil {
		t.Fatalf("register: %v", err)
	}
	ctx := context.Background()
	if err := st.CreateInstance(ctx, "i1", bp.ID); err != nil {
		t.Fatalf("create instance: %v", err)
	}

	if err := w.Dispatch(ctx, task.Task{InstanceID: "i1", BlueprintID: bp.ID, NodeIndex: 0, Attempt: 0}); err != nil {
		t.Fatalf("dispatch attempt 0: %v", err)
	}

	retryTask, ok, err := q.Pop(ctx, time.Second)
	if err != nil || !ok {
		t.Fatalf("expected a retry task to be enqueued: ok=%v err=%v", ok, err)
	}
	if retryTask.Attempt != 1 {
		t.Fatalf("retry attempt = %d, want 1", retryTask.Attempt)
	}

	if err := w.Dispatch(ctx, retryTask); err != nil {
		t.Fatalf("dispatch attempt 1: %v", err)
	}

	status, err := st.GetStatus(ctx, "i1")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if status != statestore.StatusFailed {
		t.Fatalf("status = %v, want failed", status)
	}
	if h.calls != 2 {
		t.Fatalf("handler calls = %d, want 2", h.calls)
	}
}
