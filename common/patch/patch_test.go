package patch

import (
	"testing"

	"github.com/flowforge/engine/common/value"
)

func TestApplyReplacesField(t *testing.T) {
	vars := map[string]value.Value{
		"count":  value.Int(1),
		"status": value.String("pending"),
	}
	ops := []byte(`[{"op":"replace","path":"/status","value":"cancelled"}]`)

	out, err := Apply(vars, ops)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out["status"].AsString() != "cancelled" {
		t.Fatalf("status = %v, want cancelled", out["status"])
	}
	if out["count"].AsInt() != 1 {
		t.Fatalf("count = %v, want unchanged 1", out["count"])
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	vars := map[string]value.Value{"x": value.Int(1)}
	ops := []byte(`[{"op":"replace","path":"/x","value":2}]`)

	if _, err := Apply(vars, ops); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if vars["x"].AsInt() != 1 {
		t.Fatalf("input vars were mutated: x = %v", vars["x"])
	}
}

func TestValidateRejectsBadPath(t *testing.T) {
	vars := map[string]value.Value{"x": value.Int(1)}
	ops := []byte(`[{"op":"replace","path":"/missing/nested","value":2}]`)

	if err := Validate(vars, ops); err == nil {
		t.Fatalf("expected validation to fail for a missing path")
	}
}

func TestApplyAddsNewField(t *testing.T) {
	vars := map[string]value.Value{"x": value.Int(1)}
	ops := []byte(`[{"op":"add","path":"/y","value":"new"}]`)

	out, err := Apply(vars, ops)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out["y"].AsString() != "new" {
		t.Fatalf("y = %v, want new", out["y"])
	}
}
