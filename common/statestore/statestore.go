// Package statestore implements the State store SPI: instance lifecycle,
// per-instance variable storage, and the atomic Join-arrival counter the
// worker depends on for Fork/Join correctness.
package statestore

import (
	"context"
	"errors"

	"github.com/flowforge/engine/common/value"
)

// Status is an Instance's lifecycle state.
type Status string

const (
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ErrNotFound is returned when an instance/variable lookup misses.
var ErrNotFound = errors.New("statestore: not found")

// JoinResult reports the outcome of one JoinArrive call: the counter's
// value after this arrival, and whether this specific call was the one
// that drove it to zero (so exactly one caller proceeds to the Join's
// Next node, no matter how many arrivals race).
type JoinResult struct {
	Remaining int64
	HitZero   bool
}

// StateStore is the pluggable backing store for Instance state. JoinArrive
// must be atomic: concurrent calls for the same (instanceID, joinNodeIndex)
// must each observe a consistent decrement with exactly one HitZero=true,
// even when the counter has never been initialized before the first
// arrival (initialize-then-decrement in one operation).
type StateStore interface {
	CreateInstance(ctx context.Context, instanceID, blueprintID string) error
	GetVar(ctx context.Context, instanceID, name string) (value.Value, bool, error)
	SetVar(ctx context.Context, instanceID, name string, v value.Value) error
	GetVarsSnapshot(ctx context.Context, instanceID string) (map[string]value.Value, error)

	// JoinArrive atomically initializes the counter for
	// (instanceID, joinNodeIndex) to expect on first arrival, then
	// decrements it by one and reports the result.
	JoinArrive(ctx context.Context, instanceID string, joinNodeIndex int, expect int) (JoinResult, error)

	SetStatus(ctx context.Context, instanceID string, status Status) error
	GetStatus(ctx context.Context, instanceID string) (Status, error)
}
