package expr

import (
	"testing"

	"github.com/flowforge/engine/common/value"
)

func TestEvalBool(t *testing.T) {
	e := NewEvaluator()
	vars := map[string]value.Value{"count": value.Int(3)}

	ok, err := e.EvalBool("vars.count < 5", vars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected true")
	}
}

func TestEvalArithmetic(t *testing.T) {
	e := NewEvaluator()
	vars := map[string]value.Value{"count": value.Int(3)}

	got, err := e.Eval("vars.count + 1", vars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.AsInt() != 4 {
		t.Fatalf("got %v, want 4", got)
	}
}

func TestEvalBoolTypeMismatch(t *testing.T) {
	e := NewEvaluator()
	if _, err := e.EvalBool("vars.count + 1", map[string]value.Value{"count": value.Int(1)}); err == nil {
		t.Fatalf("expected error for non-boolean result")
	}
}

func TestCompileCachesProgram(t *testing.T) {
	e := NewEvaluator()
	if err := e.Compile("vars.count > 0"); err != nil {
		t.Fatalf("compile: %v", err)
	}
	if e.CacheSize() != 1 {
		t.Fatalf("expected 1 cached program, got %d", e.CacheSize())
	}
	if _, err := e.Eval("vars.count > 0", map[string]value.Value{"count": value.Int(1)}); err != nil {
		t.Fatalf("eval after compile: %v", err)
	}
	if e.CacheSize() != 1 {
		t.Fatalf("eval of a compiled expression should not grow the cache")
	}
}

func TestCompileRejectsInvalidExpression(t *testing.T) {
	e := NewEvaluator()
	if err := e.Compile("vars.count +"); err == nil {
		t.Fatalf("expected compile error")
	}
}
