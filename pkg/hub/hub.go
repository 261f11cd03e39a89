package hub

import (
	"context"
	"log/slog"
	"sync"
)

// Hub fans device events out to subscribed pages. Run owns the client
// set; everything else talks to it through channels.
type Hub struct {
	name   string
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*Client]bool

	broadcast  chan Message
	register   chan *Client
	unregister chan *Client

	// status is the latest status event, replayed to pages that join late.
	statusMu sync.RWMutex
	status   *Message

	running chan struct{}
	done    chan struct{}
}

// New creates a hub; name tags its log lines.
func New(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		name:       name,
		logger:     logger.With("hub", name),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		running:    make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until ctx is done, then closes every client's
// queue so their connections shut down.
func (h *Hub) Run(ctx context.Context) {
	close(h.running)
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				h.drop(c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("status client joined", "client", c.id, "clients", n)

		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c] {
				h.drop(c)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("status client left", "client", c.id, "clients", n)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.drop(c)
					h.logger.Warn("status client too slow, disconnecting", "client", c.id)
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop removes c and closes its queue. h.mu must be held.
func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	close(c.send)
}

// Running is closed once Run has started.
func (h *Hub) Running() <-chan struct{} {
	return h.running
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Broadcast queues msg for every client. It never blocks; when the queue
// is full the message is dropped.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("event queue full, dropping message")
	}
}

// Publish encodes an event, remembers it for replay and broadcasts it.
func (h *Hub) Publish(eventType string, status any) error {
	msg, err := NewEventMessage(eventType, status)
	if err != nil {
		return err
	}
	if eventType == EventStatus {
		h.statusMu.Lock()
		h.status = &msg
		h.statusMu.Unlock()
	}
	h.Broadcast(msg)
	return nil
}

// Snapshot returns the messages a newly joined client should see first.
func (h *Hub) Snapshot() []Message {
	h.statusMu.RLock()
	defer h.statusMu.RUnlock()
	if h.status == nil {
		return nil
	}
	return []Message{*h.status}
}

// ClientCount reports how many pages are subscribed.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
