package interp

import (
	"testing"

	"github.com/flowforge/engine/common/value"
)

func vars() map[string]value.Value {
	return map[string]value.Value{
		"count": value.Int(3),
		"user": value.Object(map[string]value.Value{
			"name": value.String("ada"),
			"tags": value.Array([]value.Value{value.String("admin")}),
		}),
	}
}

func TestResolveBareMarkerPreservesType(t *testing.T) {
	got, err := Resolve(value.String("${count}"), vars())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.Kind() != value.KindInt || got.AsInt() != 3 {
		t.Fatalf("got %v", got)
	}
}

func TestResolveEmbeddedMarkerStringifies(t *testing.T) {
	got, err := Resolve(value.String("count is ${count}"), vars())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.AsString() != "count is 3" {
		t.Fatalf("got %q", got.AsString())
	}
}

func TestResolveDottedPath(t *testing.T) {
	got, err := Resolve(value.String("${user.name}"), vars())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.AsString() != "ada" {
		t.Fatalf("got %v", got)
	}
}

func TestResolveObjectRecurses(t *testing.T) {
	params := value.Object(map[string]value.Value{
		"url":    value.String("https://example.com/${user.name}"),
		"static": value.Int(1),
	})
	got, err := Resolve(params, vars())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	url, _ := got.Get("url")
	if url.AsString() != "https://example.com/ada" {
		t.Fatalf("url = %v", url)
	}
}

func TestResolveUndefinedVariableIsNull(t *testing.T) {
	got, err := Resolve(value.String("${missing}"), vars())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.Kind() != value.KindNull {
		t.Fatalf("got %v, want null", got)
	}
}

func TestResolveEmbeddedUndefinedVariableStringifiesAsNull(t *testing.T) {
	got, err := Resolve(value.String("value is ${missing}"), vars())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.AsString() != "value is null" {
		t.Fatalf("got %q", got.AsString())
	}
}
