package presence

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
)

// ErrHubClosed is returned by Join after Close.
var ErrHubClosed = errors.New("presence hub closed")

// Hub owns the set of connected clients and the presence counter. Every
// membership change and the broadcast it triggers happen under one lock,
// so each client sees events in the order the count changed.
type Hub struct {
	mu      sync.Mutex
	clients map[*Client]struct{}
	counter Counter
	closed  bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]struct{})}
}

// Join registers c, increments the count and tells everyone, c included.
func (h *Hub) Join(c *Client) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0, ErrHubClosed
	}
	if _, ok := h.clients[c]; ok {
		return h.counter.Current(), nil
	}

	h.clients[c] = struct{}{}
	count := h.counter.Increment()
	slog.Info("user connected",
		slog.String("user_id", c.userID),
		slog.Int64("current_count", count),
	)
	h.broadcastLocked(newEvent(c.name, count, true))
	return count, nil
}

// Leave unregisters c. Calling it for a client that is not (or no longer)
// registered does nothing, so a connection is only ever counted down once.
func (h *Hub) Leave(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	h.removeLocked(c)
	count := h.counter.Current()
	slog.Info("user disconnected",
		slog.String("user_id", c.userID),
		slog.Int64("current_count", count),
	)
	h.broadcastLocked(newEvent(c.name, count, false))
}

// Count returns the number of connected clients.
func (h *Hub) Count() int64 {
	return h.counter.Current()
}

// Close disconnects every client without further broadcasts and refuses
// new joins.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *Hub) removeLocked(c *Client) {
	delete(h.clients, c)
	close(c.send)
	h.counter.Decrement()
}

// broadcastLocked queues ev on every client. A client whose buffer is full
// is dropped, which is itself announced as a leave.
func (h *Hub) broadcastLocked(ev Event) {
	pending := []Event{ev}
	for len(pending) > 0 {
		ev, pending = pending[0], pending[1:]

		data, err := json.Marshal(ev)
		if err != nil {
			slog.Error("marshaling presence event", slog.Any("error", err))
			return
		}

		for c := range h.clients {
			select {
			case c.send <- data:
			default:
				h.removeLocked(c)
				slog.Warn("dropped slow presence client", slog.String("user_id", c.userID))
				pending = append(pending, newEvent(c.name, h.counter.Current(), false))
			}
		}
	}
}
