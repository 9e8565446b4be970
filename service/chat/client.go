package chat

import (
	"encoding/json"
	"sync"
	"time"

	"ChirpChat/logger"

	"github.com/gorilla/websocket"
)

// Transport kinds presented to the registry. Both satisfy the same
// deliver-to-user contract; only frame formatting differs.
const (
	TransportWebsocket = "websocket"
	TransportSSE       = "sse"
)

// Client is one user session on this gateway. A user may hold several
// clients (tabs, devices), each with an independent send queue consumed by
// a single writer goroutine.
type Client struct {
	ConnID string
	UserID string
	Kind   string

	WS   *websocket.Conn // nil for SSE
	Send chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func NewClient(connID, userID, kind string, ws *websocket.Conn, sendQueueSize int) *Client {
	return &Client{
		ConnID: connID,
		UserID: userID,
		Kind:   kind,
		WS:     ws,
		Send:   make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
	}
}

// Enqueue queues a payload without blocking. A full queue means a slow
// client; the payload is dropped and the caller treats the send as failed.
func (c *Client) Enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- payload:
		return true
	default:
		logger.Warnf("[client] send queue full, dropping frame user=%s conn=%s", c.UserID, c.ConnID)
		return false
	}
}

// EnqueueJSON marshals and queues a payload.
func (c *Client) EnqueueJSON(v any) bool {
	raw, err := json.Marshal(v)
	if err != nil {
		logger.Errorf("[client] marshal failed user=%s: %v", c.UserID, err)
		return false
	}
	return c.Enqueue(raw)
}

// Close releases the writer. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) Done() <-chan struct{} { return c.done }

// WritePump drains the send queue onto the WebSocket, pinging on an
// interval. Runs as the connection's single writer goroutine; returns when
// the client is closed or a write fails.
func (c *Client) WritePump(writeDeadline, pingInterval time.Duration) {
	if c.WS == nil {
		return
	}
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.WS.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.writeWS(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), writeDeadline)
			return
		case payload := <-c.Send:
			if err := c.writeWS(websocket.TextMessage, payload, writeDeadline); err != nil {
				logger.Infof("[client] write failed user=%s conn=%s: %v", c.UserID, c.ConnID, err)
				return
			}
		case <-ticker.C:
			if err := c.writeWS(websocket.PingMessage, nil, writeDeadline); err != nil {
				return
			}
		}
	}
}

func (c *Client) writeWS(messageType int, payload []byte, deadline time.Duration) error {
	if err := c.WS.SetWriteDeadline(time.Now().Add(deadline)); err != nil {
		return err
	}
	return c.WS.WriteMessage(messageType, payload)
}
