package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// Client is one websocket connection for a user.
type Client struct {
	id     string
	userID string
	conn   *websocket.Conn
	server *Server
	send   chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	closedMu sync.RWMutex
	closed   bool
}

func newClient(s *Server, conn *websocket.Conn, userID string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		id:     uuid.Must(uuid.NewV7()).String(),
		userID: userID,
		conn:   conn,
		server: s,
		send:   make(chan []byte, s.cfg.SendBuffer),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) UserID() string {
	return c.userID
}

// Send queues a frame without blocking.
func (c *Client) Send(frame Frame) error {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	if c.closed {
		return ErrClientClosed
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close stops both pumps and closes the connection. Safe to call more than once.
func (c *Client) Close() {
	c.closedMu.Lock()
	if c.closed {
		c.closedMu.Unlock()
		return
	}
	c.closed = true
	c.closedMu.Unlock()

	c.cancel()
	c.conn.Close()
}

func (c *Client) readPump(dispatch Dispatcher) {
	defer func() {
		c.server.unregister(c)
		c.Close()
	}()

	c.conn.SetReadLimit(c.server.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.logger.Warn("websocket read error",
					slog.String("client_id", c.id),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		c.handleFrame(dispatch, msg)
	}
}

func (c *Client) handleFrame(dispatch Dispatcher, data []byte) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.Send(Frame{Type: FrameError, Text: "malformed frame"})
		return
	}
	if frame.Type != FrameMessage || frame.Text == "" {
		c.Send(Frame{Type: FrameError, Text: "unsupported frame"})
		return
	}

	if err := dispatch(c.ctx, c.userID, frame.Text); err != nil {
		c.server.logger.Warn("dispatch failed",
			slog.String("client_id", c.id),
			slog.String("user_id", c.userID),
			slog.String("error", err.Error()),
		)
		c.Send(Frame{Type: FrameError, Text: "message not accepted"})
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}
