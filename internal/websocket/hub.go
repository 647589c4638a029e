package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukerupert/ecoquest/internal/model"
)

// Message is a real-time notification sent to clients. Change events carry
// an entity id, snapshots carry the full data.
type Message struct {
	Type   string         `json:"type"`
	Entity string         `json:"entity"`
	Action string         `json:"action"`
	ID     int64          `json:"id,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
	Data   any            `json:"data,omitempty"`
}

// NewMessage creates a Message with the Type field derived from entity and action.
func NewMessage(entity, action string, id int64, extra map[string]any) Message {
	return Message{
		Type:   fmt.Sprintf("%s_%s", entity, action),
		Entity: entity,
		Action: action,
		ID:     id,
		Extra:  extra,
	}
}

// NewSnapshot creates a "<entity>_snapshot" message carrying data.
func NewSnapshot(entity string, data any) Message {
	msg := NewMessage(entity, "snapshot", 0, nil)
	msg.Data = data
	return msg
}

// Hub maintains the set of active WebSocket clients and broadcasts messages.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Client buffer full, drop rather than block
		}
	}
}

// Snapshot queues the latest data of an entity for one client. A newer
// snapshot of the same entity replaces one that has not been written yet, so
// a slow client skips intermediate states but always ends on the latest.
// It reports false when the client is not registered.
func (h *Hub) Snapshot(c *Client, entity string, data any) bool {
	msg, err := json.Marshal(NewSnapshot(entity, data))
	if err != nil {
		h.logger.Error("marshal snapshot", "entity", entity, "error", err)
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.clients[c]; !ok {
		return false
	}
	c.queueSnapshot(entity, msg)
	return true
}

func (h *Hub) matching(match func(model.Identity) bool) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []*Client
	for c := range h.clients {
		if match(c.identity) {
			out = append(out, c)
		}
	}
	return out
}

// SignedOut ends every connection opened with the session token.
func (h *Hub) SignedOut(token string) int {
	clients := h.matching(func(id model.Identity) bool { return id.Token == token })
	for _, c := range clients {
		if c.state != nil {
			c.state.SignOut()
		}
		c.Close()
	}
	return len(clients)
}

// Deleted ends every connection of a deleted user.
func (h *Hub) Deleted(userID int64) int {
	clients := h.matching(func(id model.Identity) bool { return !id.Guest && id.UserID == userID })
	for _, c := range clients {
		if c.state != nil {
			c.state.Delete()
		}
		c.Close()
	}
	return len(clients)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
