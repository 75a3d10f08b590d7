package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/gfnviewer/queuewatch/internal/logwatch"
	"github.com/gfnviewer/queuewatch/internal/queue"
	"github.com/gfnviewer/queuewatch/internal/state"
)

// ErrTooManyConnections is returned by AddClient when the connection limit
// has been reached.
var ErrTooManyConnections = errors.New("too many websocket connections")

const clientBuffer = 64

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, clientBuffer),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *client) close() {
	close(c.send)
}

// Broadcaster fans dispatcher output out to websocket clients. Sends never
// block: a client whose buffer is full is disconnected.
type Broadcaster struct {
	mu       sync.Mutex
	clients  map[*client]bool
	store    *state.Store
	maxConns int
	seq      uint64
	logger   *slog.Logger
}

// NewBroadcaster creates a broadcaster. maxConns <= 0 means no limit.
func NewBroadcaster(store *state.Store, maxConns int, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		clients:  make(map[*client]bool),
		store:    store,
		maxConns: maxConns,
		logger:   logger,
	}
}

// AddClient registers conn and queues the current snapshot as its first
// message.
func (b *Broadcaster) AddClient(conn *websocket.Conn) (*client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.maxConns > 0 && len(b.clients) >= b.maxConns {
		return nil, ErrTooManyConnections
	}

	c := newClient(conn)
	b.clients[c] = true

	// Snapshots reuse the current seq; only broadcasts advance it.
	data, err := json.Marshal(WSMessage{Type: MsgSnapshot, Seq: b.seq, Payload: SnapshotPayload{
		Status:  b.store.Snapshot(),
		History: b.store.History(),
	}})
	if err == nil {
		c.send <- data
	}
	return c, nil
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(c)
}

func (b *Broadcaster) removeLocked(c *client) {
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
}

func (b *Broadcaster) QueueEvent(ev queue.Event, text string) {
	b.broadcast(MsgQueue, QueuePayload{Event: ev, Text: text})
}

func (b *Broadcaster) TrackingChanged(st state.Status) {
	b.broadcast(MsgTracking, TrackingPayload{Status: st})
}

func (b *Broadcaster) HealthChanged(h logwatch.HealthSnapshot) {
	b.broadcast(MsgHealth, HealthPayload{Health: h})
}

func (b *Broadcaster) broadcast(typ MessageType, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := b.encodeLocked(typ, payload)
	if err != nil {
		b.logger.Error("broadcast marshal error", "type", typ, "error", err)
		return
	}

	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			b.logger.Warn("ws client too slow, disconnecting", "remote", c.conn.RemoteAddr().String())
			b.removeLocked(c)
		}
	}
}

func (b *Broadcaster) encodeLocked(typ MessageType, payload interface{}) ([]byte, error) {
	b.seq++
	return json.Marshal(WSMessage{Type: typ, Seq: b.seq, Payload: payload})
}

func (b *Broadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Close disconnects every client.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		b.removeLocked(c)
	}
}
