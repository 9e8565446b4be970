package chat

import (
	"net"
	"net/http"
	"time"

	"ChirpChat/logger"
	midsec "ChirpChat/middleware/security"
	"ChirpChat/tools/ids"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Largest inbound frame the gateway accepts.
const maxFrameBytes = 32 << 10

// HandleWS upgrades, authenticates via the token query parameter, registers
// the connection and runs the blocking read loop. One goroutine reads, one
// (WritePump) writes; the loop exits on transport close which starts the
// presence grace period.
func (h *Hub) HandleWS(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "token not provided"})
		return
	}
	userID, err := midsec.ParseToken(h.conf.JWTSecret, token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "could not validate credentials"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[ws] upgrade failed: %v", err)
		return
	}

	client := NewClient(ids.GenerateString(), userID, TransportWebsocket, ws, h.conf.QueueSize)
	go client.WritePump(h.conf.WriteDeadline, h.conf.HeartbeatInterval)

	// A peer that answers neither pings nor sends data within two heartbeat
	// intervals is dead: the read fails, the connection is unregistered and
	// the presence grace period starts.
	readWait := 2 * h.conf.HeartbeatInterval
	ws.SetReadLimit(maxFrameBytes)
	_ = ws.SetReadDeadline(time.Now().Add(readWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readWait))
	})

	ctx := c.Request.Context()
	h.Register(ctx, client)
	defer h.Unregister(client)

	for {
		mt, data, rerr := ws.ReadMessage()
		if rerr != nil {
			if websocket.IsCloseError(rerr,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[ws] peer closed user=%s conn=%s", client.UserID, client.ConnID)
			} else if ne, ok := rerr.(net.Error); ok && ne.Timeout() {
				logger.Infof("[ws] read timeout user=%s conn=%s: %v", client.UserID, client.ConnID, rerr)
			} else {
				logger.Infof("[ws] read error user=%s conn=%s: %v", client.UserID, client.ConnID, rerr)
			}
			return
		}
		// Data frames prove liveness as well as pongs.
		_ = ws.SetReadDeadline(time.Now().Add(readWait))
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		h.Dispatch(ctx, client, data)
	}
}
