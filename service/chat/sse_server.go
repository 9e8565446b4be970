package chat

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"ChirpChat/logger"
	midsec "ChirpChat/middleware/security"
	"ChirpChat/tools/ids"

	"github.com/gin-gonic/gin"
)

// HandleSSE is the unidirectional fallback transport. The stream drains the
// same per-client send queue the WebSocket writer would, so the fan-out
// path cannot tell the transports apart. Clients post their actions to the
// companion endpoint (HandleSSEAction).
func (h *Hub) HandleSSE(c *gin.Context) {
	userID := midsec.UserID(c)
	client := NewClient(ids.GenerateString(), userID, TransportSSE, nil, h.conf.QueueSize)

	h.Register(c.Request.Context(), client)
	defer func() {
		h.Unregister(client)
		logger.Infof("[sse] stream closed user=%s", userID)
	}()

	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.SSEvent("sse_connected", gin.H{"status": "ok"})
	c.Writer.Flush()

	keepAlive := time.NewTicker(15 * time.Second)
	defer keepAlive.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case payload := <-client.Send:
			c.SSEvent(sseEventName(payload), string(payload))
			return true
		case <-keepAlive.C:
			c.SSEvent("ping", "keep-alive")
			return true
		}
	})
}

// sseEventName pulls the event tag out of an outbound payload for the SSE
// event field.
func sseEventName(payload []byte) string {
	var f struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(payload, &f); err != nil || f.EventType == "" {
		return "message"
	}
	return f.EventType
}

// HandleSSEAction accepts the same JSON frames the WebSocket reads. Acks
// and errors that would flow back on the socket are returned in the
// response body instead.
func (h *Hub) HandleSSEAction(c *gin.Context) {
	userID := midsec.UserID(c)
	raw, err := c.GetRawData()
	if err != nil || len(raw) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "empty body"})
		return
	}

	// Collector client: not registered, exists only to catch direct replies.
	rc := NewClient(ids.GenerateString(), userID, TransportSSE, nil, 8)
	h.Dispatch(c.Request.Context(), rc, raw)

	c.JSON(http.StatusOK, gin.H{"events": drainReplies(rc)})
}

func drainReplies(rc *Client) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(rc.Send))
	for {
		select {
		case p := <-rc.Send:
			out = append(out, p)
		default:
			return out
		}
	}
}

// HandleSync is the pull-based catch-up endpoint: ordered payloads with
// sequence > since addressed to the caller, reconstructed from the shared
// event log.
func (h *Hub) HandleSync(c *gin.Context) {
	userID := midsec.UserID(c)
	since, err := strconv.ParseInt(c.DefaultQuery("since", "0"), 10, 64)
	if err != nil || since < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid since parameter"})
		return
	}

	payloads, err := h.bcast.ReplayFor(c.Request.Context(), since, userID)
	if err != nil {
		logger.Errorf("[sync] replay failed user=%s since=%d: %v", userID, since, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "event log unavailable"})
		return
	}
	logger.Infof("[sync] user=%s since=%d returned %d events", userID, since, len(payloads))
	c.JSON(http.StatusOK, payloads)
}
