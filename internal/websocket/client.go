package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/ecoquest/internal/model"
	"github.com/dukerupert/ecoquest/internal/profile"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
)

// Client represents a single WebSocket connection of a signed-in identity.
type Client struct {
	hub      *Hub
	conn     *ws.Conn
	send     chan []byte
	wake     chan struct{}
	identity model.Identity
	state    *profile.State

	// start runs once the client is registered. The returned func runs
	// before the client is unregistered.
	start func(ctx context.Context) func()

	mu        sync.Mutex
	cancel    context.CancelFunc
	closed    bool
	snapshots map[string][]byte
}

// NewClient creates a Client tied to the given hub and connection.
func NewClient(hub *Hub, conn *ws.Conn, id model.Identity) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		wake:     make(chan struct{}, 1),
		identity: id,
	}
}

// Identity returns the identity the connection was opened with.
func (c *Client) Identity() model.Identity {
	return c.identity
}

// Run registers the client, starts the write pump, and runs the read pump.
// It blocks until the connection is closed, then releases the client's
// subscriptions and unregisters.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	c.cancel = cancel
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	if c.start != nil {
		stop := c.start(ctx)
		defer stop()
	}

	go c.writePump(ctx)
	c.readPump(ctx)
}

// Close ends the connection. Run returns shortly after.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}
}

// queueSnapshot keeps msg as the latest unwritten snapshot of entity and
// wakes the write pump.
func (c *Client) queueSnapshot(entity string, msg []byte) {
	c.mu.Lock()
	if c.snapshots == nil {
		c.snapshots = make(map[string][]byte)
	}
	c.snapshots[entity] = msg
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// takeSnapshots removes and returns the queued snapshots ordered by entity.
func (c *Client) takeSnapshots() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	entities := make([]string, 0, len(c.snapshots))
	for e := range c.snapshots {
		entities = append(entities, e)
	}
	sort.Strings(entities)

	out := make([][]byte, 0, len(entities))
	for _, e := range entities {
		out = append(out, c.snapshots[e])
	}
	c.snapshots = nil
	return out
}

// readPump reads and discards all incoming messages. It returns on error
// (connection close), which triggers cleanup.
func (c *Client) readPump(ctx context.Context) {
	for {
		_, _, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
	}
}

// writePump drains the send channel and the queued snapshots and writes them
// to the WebSocket. It also sends periodic pings to detect stale connections.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				// Hub closed the channel, connection is done
				return
			}
			if err := c.conn.Write(ctx, ws.MessageText, msg); err != nil {
				return
			}
		case <-c.wake:
			for _, msg := range c.takeSnapshots() {
				if err := c.conn.Write(ctx, ws.MessageText, msg); err != nil {
					return
				}
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
