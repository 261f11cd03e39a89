package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// Keepalive and limits for status subscribers. Pages never send data, so
// the read limit only has to fit control frames.
const (
	writeTimeout = 10 * time.Second
	idleTimeout  = 60 * time.Second
	pingInterval = idleTimeout * 9 / 10
	readLimit    = 512
	queueSize    = 32
)

// Client is one page subscribed to hub events.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan Message
}

// NewClient queues the hub's snapshot for conn and registers it. It
// returns nil if the hub has stopped.
func NewClient(h *Hub, conn *websocket.Conn) *Client {
	snapshot := h.Snapshot()
	c := &Client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan Message, queueSize+len(snapshot)),
	}
	for _, msg := range snapshot {
		c.send <- msg
	}

	select {
	case h.register <- c:
		return c
	case <-h.done:
		return nil
	}
}

// ID identifies the client in logs.
func (c *Client) ID() string {
	return c.id
}

// Run pushes events to the page until it disconnects or the hub stops.
// It blocks and is meant to be called from the websocket handler.
func (c *Client) Run() {
	go c.pushEvents()
	c.awaitClose()
}

// awaitClose consumes pongs and close frames until the page goes away.
func (c *Client) awaitClose() {
	defer c.leave()

	c.conn.SetReadLimit(readLimit)
	c.extendDeadline()
	c.conn.SetPongHandler(func(string) error {
		c.extendDeadline()
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("status client read failed", "client", c.id, "error", err)
			}
			return
		}
	}
}

func (c *Client) leave() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.done:
	}
	c.conn.Close()
}

func (c *Client) extendDeadline() {
	c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
}

// pushEvents is the only goroutine that writes to conn.
func (c *Client) pushEvents() {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	defer c.conn.Close()

	for {
		var err error
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server stopping"))
				return
			}
			err = c.write(websocket.TextMessage, msg.Data)
		case <-ping.C:
			err = c.write(websocket.PingMessage, nil)
		}
		if err != nil {
			return
		}
	}
}

func (c *Client) write(kind int, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(kind, data)
}
