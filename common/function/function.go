// Package function implements the pluggable Function handler contract and
// a registry of named handlers available to Function blueprint nodes.
package function

import (
	"context"
	"fmt"
	"sync"

	"github.com/flowforge/engine/common/value"
)

// RuntimeContext is the subset of execution context a Handler needs: its
// own instance/node identity, for logging and idempotency keys.
type RuntimeContext struct {
	InstanceID string
	NodeID     string
	Attempt    int
}

// Handler is a single pluggable function a workflow can invoke from a
// Function node. Validate runs at compile time against the node's
// parameter template (pre-interpolation), so a malformed call is rejected
// before any instance ever starts; Execute runs at task dispatch time
// against the post-interpolation parameters.
type Handler interface {
	Name() string
	Validate(params value.Value) error
	Execute(ctx context.Context, params value.Value, rc RuntimeContext) (value.Value, error)
}

// Registry is a read-after-startup map of Handler by name.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds h under h.Name(), rejecting a name collision.
func (r *Registry) Register(h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[h.Name()]; exists {
		return fmt.Errorf("function: handler %q already registered", h.Name())
	}
	r.handlers[h.Name()] = h
	return nil
}

// Lookup returns the handler registered under name, if any.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}
