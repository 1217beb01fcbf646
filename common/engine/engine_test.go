package engine

import (
	"context"
	"testing"
	"time"

	"github.com/flowforge/engine/common/dsl"
	"github.com/flowforge/engine/common/expr"
	"github.com/flowforge/engine/common/function"
	"github.com/flowforge/engine/common/queue"
	"github.com/flowforge/engine/common/statestore"
	"github.com/flowforge/engine/common/value"
	"github.com/flowforge/engine/common/worker"
)

func newEngine() *Engine {
	return New(function.NewRegistry(), expr.NewEvaluator(), queue.NewMemoryQueue(16), statestore.NewMemoryStore(), nil)
}

func assignDoc() *dsl.Document {
	return &dsl.Document{
		Name: "double",
		Nodes: []dsl.Node{
			{ID: "start", Kind: dsl.KindStart, Next: "double"},
			{ID: "double", Kind: dsl.KindAssign, Var: "x", Expr: "vars.x * 2", Next: "end"},
			{ID: "end", Kind: dsl.KindEnd},
		},
	}
}

func TestEngine_CompileAndRegister(t *testing.T) {
	e := newEngine()
	bp, warnings, err := e.Compile(assignDoc())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}

	e.RegisterBlueprint(bp)
	if _, ok := e.Get("double"); !ok {
		t.Fatalf("expected blueprint %q to be registered", bp.ID)
	}
}

func TestEngine_StartRunsToCompletion(t *testing.T) {
	e := newEngine()
	bp, _, err := e.Compile(assignDoc())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	e.RegisterBlueprint(bp)

	instanceID, err := e.Start(context.Background(), "double", map[string]value.Value{"x": value.Int(21)}, "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	w := &worker.Worker{Blueprints: e, Functions: e.Functions, Queue: e.Queue, Store: e.Store, Evaluator: e.Evaluator, PopTimeout: 10 * time.Millisecond}
	for i := 0; i < 3; i++ {
		tsk, ok, err := e.Queue.Pop(context.Background(), 10*time.Millisecond)
		if err != nil {
			t.Fatalf("pop: %v", err)
		}
		if !ok {
			t.Fatalf("expected a pending task at step %d", i)
		}
		if err := w.Dispatch(context.Background(), tsk); err != nil {
			t.Fatalf("dispatch: %v", err)
		}
	}

	status, err := e.Status(context.Background(), instanceID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status != statestore.StatusCompleted {
		t.Fatalf("status = %v, want completed", status)
	}

	vars, err := e.Variables(context.Background(), instanceID)
	if err != nil {
		t.Fatalf("variables: %v", err)
	}
	if vars["x"].AsInt() != 42 {
		t.Fatalf("x = %v, want 42", vars["x"])
	}
}

func TestEngine_StartUnknownBlueprint(t *testing.T) {
	e := newEngine()
	if _, err := e.Start(context.Background(), "missing", nil, ""); err == nil {
		t.Fatalf("expected error for unknown blueprint")
	}
}

func TestEngine_Cancel(t *testing.T) {
	e := newEngine()
	bp, _, err := e.Compile(assignDoc())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	e.RegisterBlueprint(bp)

	instanceID, err := e.Start(context.Background(), "double", map[string]value.Value{"x": value.Int(1)}, "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := e.Cancel(context.Background(), instanceID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	status, err := e.Status(context.Background(), instanceID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status != statestore.StatusFailed {
		t.Fatalf("status = %v, want failed", status)
	}
}

func TestEngine_Patch(t *testing.T) {
	e := newEngine()
	bp, _, err := e.Compile(assignDoc())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	e.RegisterBlueprint(bp)

	instanceID, err := e.Start(context.Background(), "double", map[string]value.Value{"x": value.Int(1)}, "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	ops := []byte(`[{"op":"replace","path":"/x","value":99}]`)
	if err := e.Patch(context.Background(), instanceID, ops); err != nil {
		t.Fatalf("patch: %v", err)
	}

	vars, err := e.Variables(context.Background(), instanceID)
	if err != nil {
		t.Fatalf("variables: %v", err)
	}
	if vars["x"].AsInt() != 99 {
		t.Fatalf("x = %v, want 99", vars["x"])
	}
}
