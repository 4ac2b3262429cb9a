// Package wstransport fans event bus telemetry out to WebSocket clients.
// Unlike the hub it's adapted from, it owns no broadcast channel of its
// own: each client is a direct eventbus.Bus subscriber, so the bounded
// drop-oldest policy from spec §4.E applies uniformly instead of being
// re-implemented per client.
package wstransport

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/edgeflow/motorctl/internal/eventbus"
)

// subscriptionCapacity bounds each client's per-connection queue before the
// event bus starts dropping that client's oldest undelivered event.
const subscriptionCapacity = 64

// Message is the wire format pushed to every connected client.
type Message struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Hub tracks connected clients only for GetClientCount; delivery itself is
// driven entirely by each client's own bus subscription.
type Hub struct {
	bus *eventbus.Bus

	mu      sync.RWMutex
	clients map[string]struct{}
}

// NewHub constructs a Hub fed by bus.
func NewHub(bus *eventbus.Bus) *Hub {
	return &Hub{bus: bus, clients: make(map[string]struct{})}
}

// GetClientCount returns the number of connected WebSocket clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket drives one client connection for its lifetime.
func (h *Hub) HandleWebSocket(c *websocket.Conn) {
	id := generateClientID()
	ch, unsubscribe := h.bus.Subscribe(subscriptionCapacity)
	defer unsubscribe()

	h.mu.Lock()
	h.clients[id] = struct{}{}
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, id)
		h.mu.Unlock()
	}()

	done := make(chan struct{})
	go readPump(c, done)
	writePump(c, ch, done)
}

func readPump(c *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(c *websocket.Conn, ch <-chan eventbus.Envelope, done <-chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case env, ok := <-ch:
			if !ok {
				return
			}
			msg := Message{ID: env.ID, Type: env.Event.EventType(), Timestamp: time.Now(), Data: env.Event}
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func generateClientID() string {
	return fmt.Sprintf("client-%d", time.Now().UnixNano())
}
