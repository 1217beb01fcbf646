// Package engine is the service-level API surface a host process (cmd/engine)
// wraps in HTTP: a compiled-Blueprint registry plus the instance lifecycle
// operations (Start/Status/Variables/Cancel/Patch) that push the first Task
// and read back StateStore-owned state. It holds no execution loop itself —
// that is common/worker's job, running in the same or a separate process
// against the same Queue/StateStore pair.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowforge/engine/common/blueprint"
	"github.com/flowforge/engine/common/compiler"
	"github.com/flowforge/engine/common/dsl"
	"github.com/flowforge/engine/common/expr"
	"github.com/flowforge/engine/common/function"
	"github.com/flowforge/engine/common/logger"
	"github.com/flowforge/engine/common/patch"
	"github.com/flowforge/engine/common/queue"
	"github.com/flowforge/engine/common/ratelimit"
	"github.com/flowforge/engine/common/statestore"
	"github.com/flowforge/engine/common/task"
	"github.com/flowforge/engine/common/value"
)

// RateLimitError is returned by Start when the caller has exceeded its
// tiered rate limit; callers can type-assert to *RateLimitError for the
// retry_after/limit detail the HTTP layer reports as a 429.
type RateLimitError struct {
	Tier       ratelimit.WorkflowTier
	Limit      int64
	RetryAfter int64
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("engine: rate limit exceeded for tier %s (limit %d/min, retry after %ds)", e.Tier, e.Limit, e.RetryAfter)
}

// Engine owns the compiled Blueprint registry and exposes the instance
// lifecycle operations. It is safe for concurrent use.
type Engine struct {
	Functions *function.Registry
	Evaluator *expr.Evaluator
	Queue     queue.TaskQueue
	Store     statestore.StateStore
	RateLimit *ratelimit.RateLimiter // nil disables rate limiting
	Logger    *logger.Logger

	mu         sync.RWMutex
	blueprints map[string]*blueprint.Blueprint
}

// New constructs an Engine over an already-wired Queue/StateStore/Functions
// set, typically built by common/bootstrap.Setup.
func New(functions *function.Registry, evaluator *expr.Evaluator, q queue.TaskQueue, store statestore.StateStore, log *logger.Logger) *Engine {
	return &Engine{
		Functions:  functions,
		Evaluator:  evaluator,
		Queue:      q,
		Store:      store,
		Logger:     log,
		blueprints: make(map[string]*blueprint.Blueprint),
	}
}

// Compile expands and compiles a Document into a Blueprint, without
// registering it. Callers inspect the returned warnings (unreachable
// nodes) and then call RegisterBlueprint once satisfied.
func (e *Engine) Compile(doc *dsl.Document) (*blueprint.Blueprint, []string, error) {
	expanded, err := compiler.Expand(doc)
	if err != nil {
		return nil, nil, fmt.Errorf("engine: expand: %w", err)
	}
	bp, warnings, err := compiler.Compile(expanded, compiler.Options{
		Functions: e.Functions,
		Evaluator: e.Evaluator,
	})
	if err != nil {
		return nil, nil, err
	}
	return bp, warnings, nil
}

// RegisterBlueprint makes bp available to Start and to any Worker sharing
// this Engine's BlueprintSource. Re-registering the same ID replaces it;
// Instances already running against the old Blueprint keep executing
// against whichever copy the Worker resolved at dispatch time, since the
// Blueprint itself never changes underneath a Task mid-flight.
func (e *Engine) RegisterBlueprint(bp *blueprint.Blueprint) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.blueprints[bp.ID] = bp
}

// RegisterFunction adds a Function handler, available to any Blueprint
// compiled afterward.
func (e *Engine) RegisterFunction(h function.Handler) error {
	return e.Functions.Register(h)
}

// Get resolves a Blueprint by ID. It satisfies common/worker.BlueprintSource.
func (e *Engine) Get(id string) (*blueprint.Blueprint, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	bp, ok := e.blueprints[id]
	return bp, ok
}

// Start creates a new Instance of blueprintID, seeds its variable scope,
// and pushes the first Task (the Start node). When RateLimit is set, the
// Start counts against rateLimitKey's bucket for the tier InspectBlueprint
// assigns to the Blueprint; an empty key is a bucket like any other. The
// global limit is not checked here.
func (e *Engine) Start(ctx context.Context, blueprintID string, vars map[string]value.Value, rateLimitKey string) (string, error) {
	bp, ok := e.Get(blueprintID)
	if !ok {
		return "", fmt.Errorf("engine: unknown blueprint %q", blueprintID)
	}

	if e.RateLimit != nil {
		tier := ratelimit.InspectBlueprint(bp).Tier
		result, err := e.RateLimit.CheckTieredLimit(ctx, rateLimitKey, tier)
		if err != nil {
			return "", fmt.Errorf("engine: rate limit check: %w", err)
		}
		if !result.Allowed {
			return "", &RateLimitError{Tier: tier, Limit: result.Limit, RetryAfter: result.RetryAfterSeconds}
		}
	}

	instanceID := uuid.NewString()
	if err := e.Store.CreateInstance(ctx, instanceID, bp.ID); err != nil {
		return "", fmt.Errorf("engine: create instance: %w", err)
	}
	for name, v := range vars {
		if err := e.Store.SetVar(ctx, instanceID, name, v); err != nil {
			return "", fmt.Errorf("engine: seed var %q: %w", name, err)
		}
	}

	err := e.Queue.Push(ctx, task.Task{
		InstanceID:  instanceID,
		BlueprintID: bp.ID,
		NodeIndex:   bp.StartIdx,
		FlowID:      uuid.NewString(),
	})
	if err != nil {
		return "", fmt.Errorf("engine: enqueue start task: %w", err)
	}

	return instanceID, nil
}

// Status returns an Instance's current lifecycle status.
func (e *Engine) Status(ctx context.Context, instanceID string) (statestore.Status, error) {
	return e.Store.GetStatus(ctx, instanceID)
}

// Variables returns a snapshot of an Instance's full variable scope.
func (e *Engine) Variables(ctx context.Context, instanceID string) (map[string]value.Value, error) {
	return e.Store.GetVarsSnapshot(ctx, instanceID)
}

// Cancel marks an Instance Failed with a cancellation cause. Any Task
// already popped by a Worker for this instance is dropped on arrival,
// since Dispatch checks for a terminal status before running a node;
// Tasks still sitting in the Queue are simply never acted on once popped.
func (e *Engine) Cancel(ctx context.Context, instanceID string) error {
	cause := value.Object(map[string]value.Value{
		"node_index": value.Int(-1),
		"message":    value.String("cancelled"),
	})
	if err := e.Store.SetVar(ctx, instanceID, "__error", cause); err != nil {
		return fmt.Errorf("engine: cancel: set cause: %w", err)
	}
	return e.Store.SetStatus(ctx, instanceID, statestore.StatusFailed)
}

// Patch applies an RFC 6902 JSON Patch to an Instance's variable scope,
// validating the result before committing any variable write.
func (e *Engine) Patch(ctx context.Context, instanceID string, ops []byte) error {
	vars, err := e.Store.GetVarsSnapshot(ctx, instanceID)
	if err != nil {
		return fmt.Errorf("engine: patch: load vars: %w", err)
	}
	patched, err := patch.Apply(vars, ops)
	if err != nil {
		return fmt.Errorf("engine: patch: %w", err)
	}
	for name, v := range patched {
		if err := e.Store.SetVar(ctx, instanceID, name, v); err != nil {
			return fmt.Errorf("engine: patch: set var %q: %w", name, err)
		}
	}
	return nil
}

// waitForStatus is the polling loop behind WaitForTerminal; it polls Status
// at a fixed interval since the StateStore SPI has no blocking wait
// primitive.
func (e *Engine) waitForStatus(ctx context.Context, instanceID string, poll time.Duration, done func(statestore.Status) bool) (statestore.Status, error) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		status, err := e.Store.GetStatus(ctx, instanceID)
		if err != nil {
			return "", err
		}
		if done(status) {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-ticker.C:
		}
	}
}

// WaitForTerminal blocks until instanceID reaches Completed or Failed, or
// ctx is done.
func (e *Engine) WaitForTerminal(ctx context.Context, instanceID string, poll time.Duration) (statestore.Status, error) {
	return e.waitForStatus(ctx, instanceID, poll, func(s statestore.Status) bool {
		return s == statestore.StatusCompleted || s == statestore.StatusFailed
	})
}
