package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/commentbot/internal/logbus"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	sendBuffer = 256
)

// Frame is a message from the dashboard
type Frame struct {
	Type    string `json:"type"`
	Profile string `json:"profile"`
}

// Client is one dashboard connection. It subscribes to profile channels on
// request and forwards their events.
type Client struct {
	id     string
	conn   *websocket.Conn
	bus    *logbus.Bus
	send   chan []byte
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	closed   bool
	closedMu sync.RWMutex
}

var _ logbus.Subscriber = (*Client)(nil)

func newClient(conn *websocket.Conn, bus *logbus.Bus, id string, logger *zap.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		id:     id,
		conn:   conn,
		bus:    bus,
		send:   make(chan []byte, sendBuffer),
		logger: logger.With(zap.String("client", id)),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (c *Client) ID() string { return c.id }

// Deliver queues an event without blocking. Events for a full or closed
// client are dropped.
func (c *Client) Deliver(e logbus.Event) {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	if c.closed {
		return
	}

	msg, err := json.Marshal(e)
	if err != nil {
		c.logger.Error("Failed to encode event", zap.Error(err))
		return
	}

	select {
	case c.send <- msg:
	default:
		c.logger.Warn("Send buffer full, dropping event", zap.String("profile", e.Profile))
	}
}

func (c *Client) close() {
	c.closedMu.Lock()
	defer c.closedMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
}

// readPump handles join/leave frames until the connection drops
func (c *Client) readPump() {
	defer func() {
		c.bus.LeaveAll(c)
		c.close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(msg, &frame); err != nil {
			c.logger.Debug("Ignoring malformed frame", zap.Error(err))
			continue
		}
		c.handle(frame)
	}
}

func (c *Client) handle(frame Frame) {
	if frame.Profile == "" {
		return
	}

	switch frame.Type {
	case "join":
		c.bus.Join(frame.Profile, c)
		c.logger.Info("Client joined profile", zap.String("profile", frame.Profile))
	case "leave":
		c.bus.Leave(frame.Profile, c)
		c.logger.Info("Client left profile", zap.String("profile", frame.Profile))
	default:
		c.logger.Debug("Unknown frame type", zap.String("type", frame.Type))
	}
}

// writePump forwards queued events and keeps the connection alive
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
