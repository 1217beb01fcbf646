// Package instance models a single run of a Blueprint: its identity,
// status, and a bounded history of node transitions, plus the runtime
// Context the Worker uses to act on it.
package instance

import (
	"time"

	"github.com/flowforge/engine/common/statestore"
)

// historyLimit bounds a Ring; once it is full the oldest entries are
// dropped. The StateStore, not a Ring, is the authority for status.
const historyLimit = 500

// Event is one node transition of an Instance, surfaced over the WebSocket
// event hub.
type Event struct {
	NodeIndex int       `json:"node_index"`
	NodeID    string    `json:"node_id"`
	Kind      string    `json:"kind"` // "entered", "completed", "failed"
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Instance is a lightweight, mostly-metadata handle for one run. The
// Engine's Status and Variables calls read the StateStore directly and do
// not return it; the authoritative variable/status state lives there.
type Instance struct {
	ID          string           `json:"id"`
	BlueprintID string           `json:"blueprint_id"`
	Status      statestore.Status `json:"status"`
	History     []Event          `json:"history,omitempty"`
}

// Ring is a small in-memory (not persisted) history buffer holding at most
// historyLimit Events. The Worker and the event hub do not append to one;
// live event fan-out goes through worker.EventSink.
type Ring struct {
	events []Event
}

func NewRing() *Ring { return &Ring{} }

func (r *Ring) Append(e Event) {
	r.events = append(r.events, e)
	if len(r.events) > historyLimit {
		r.events = r.events[len(r.events)-historyLimit:]
	}
}

func (r *Ring) Snapshot() []Event {
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
