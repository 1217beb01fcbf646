// Package events fans Instance history out to WebSocket watchers, one
// connection set per instance id, adapted from the teacher's per-username
// notification hub to key on instance id instead.
package events

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/flowforge/engine/common/instance"
)

// Hub maintains active WebSocket connections and fans Instance events out
// to whichever of them are watching that instance.
type Hub struct {
	connections map[string][]*Client
	mutex       sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan *message
}

type message struct {
	instanceID string
	data       []byte
}

func NewHub() *Hub {
	return &Hub{
		connections: make(map[string][]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *message, 256),
	}
}

// Run starts the hub's dispatch loop; call it once, in its own goroutine.
func (h *Hub) Run() {
	log.Println("events: hub started")

	for {
		select {
		case c := <-h.register:
			h.registerClient(c)
		case c := <-h.unregister:
			h.unregisterClient(c)
		case m := <-h.broadcast:
			h.broadcastToInstance(m)
		}
	}
}

// Attach registers a live WebSocket connection as a watcher of instanceID
// and starts its read/write pumps. The caller owns the *websocket.Conn
// (created via the upgrader in cmd/engine/handlers) and hands it off here.
func (h *Hub) Attach(conn *websocket.Conn, instanceID string) {
	c := NewClient(h, conn, instanceID)
	h.register <- c
	go c.writePump()
	go c.readPump()
}

func (h *Hub) registerClient(c *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.connections[c.instanceID] = append(h.connections[c.instanceID], c)
}

func (h *Hub) unregisterClient(c *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	clients := h.connections[c.instanceID]
	for i, existing := range clients {
		if existing == c {
			h.connections[c.instanceID] = append(clients[:i], clients[i+1:]...)
			close(c.send)
			if len(h.connections[c.instanceID]) == 0 {
				delete(h.connections, c.instanceID)
			}
			break
		}
	}
}

func (h *Hub) broadcastToInstance(m *message) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := h.connections[m.instanceID]
	for _, c := range clients {
		select {
		case c.send <- m.data:
		default:
			log.Printf("events: send buffer full, dropping event for a watcher of instance=%s", m.instanceID)
		}
	}
}

// Record implements common/worker.EventSink: every node transition the
// Worker logs for instanceID is marshaled and handed to the hub's
// broadcast loop. A full broadcast channel drops the event rather than
// blocking the Worker's dispatch loop.
func (h *Hub) Record(instanceID string, e instance.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- &message{instanceID: instanceID, data: data}:
	default:
		log.Printf("events: broadcast channel full, dropping event for instance=%s", instanceID)
	}
}

// ConnectionCount returns the total number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	n := 0
	for _, clients := range h.connections {
		n += len(clients)
	}
	return n
}

// InstanceCount returns the number of instances with at least one watcher.
func (h *Hub) InstanceCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.connections)
}
