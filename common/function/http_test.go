package function

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flowforge/engine/common/value"
)

func TestHTTPHandlerValidateRequiresURL(t *testing.T) {
	h := NewHTTPHandler()
	if err := h.Validate(value.Object(map[string]value.Value{})); err == nil {
		t.Fatalf("expected missing url to fail validation")
	}
	if err := h.Validate(value.Object(map[string]value.Value{
		"url": value.String("http://example.com"),
	})); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestHTTPHandlerExecuteSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	h := NewHTTPHandler()
	params := value.Object(map[string]value.Value{"url": value.String(srv.URL)})

	out, err := h.Execute(context.Background(), params, RuntimeContext{InstanceID: "i1", NodeID: "n1"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	status, _ := out.Get("status_code")
	if status.AsInt() != 200 {
		t.Fatalf("status_code = %v", status)
	}
	body, _ := out.Get("body")
	ok, _ := body.Get("ok")
	if !ok.AsBool() {
		t.Fatalf("body.ok = %v", ok)
	}
}

func TestHTTPHandlerExecuteErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"boom"}`))
	}))
	defer srv.Close()

	h := NewHTTPHandler()
	params := value.Object(map[string]value.Value{"url": value.String(srv.URL)})

	_, err := h.Execute(context.Background(), params, RuntimeContext{})
	if err == nil {
		t.Fatalf("expected error for 500 response")
	}
}
