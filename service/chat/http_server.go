package chat

import (
	"encoding/json"
	"net/http"

	"ChirpChat/logger"
	midsec "ChirpChat/middleware/security"
	"ChirpChat/tools/ids"

	"github.com/gin-gonic/gin"
)

// HandleSendMessageHTTP mirrors the WebSocket send_message path for
// mobile/API clients without a socket: same rate limiting, idempotency and
// ack semantics, with the ack in the response body.
func (h *Hub) HandleSendMessageHTTP(c *gin.Context) {
	userID := midsec.UserID(c)

	var req SendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid payload"})
		return
	}
	req.ChatID = c.Param("chat_id")

	frame, err := json.Marshal(struct {
		EventType EventType `json:"event_type"`
		SendMessageReq
	}{EvSendMessage, req})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "encode failed"})
		return
	}

	rc := NewClient(ids.GenerateString(), userID, TransportSSE, nil, 8)
	h.Dispatch(c.Request.Context(), rc, frame)

	replies := drainReplies(rc)
	for _, p := range replies {
		if sseEventName(p) == string(EvError) {
			c.JSON(http.StatusUnprocessableEntity, json.RawMessage(p))
			return
		}
	}
	if len(replies) == 0 {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "no acknowledgement produced"})
		return
	}
	c.JSON(http.StatusOK, replies[0])
}

// HandleSetMood persists the mood and broadcasts a profile update to every
// chat partner.
func (h *Hub) HandleSetMood(c *gin.Context) {
	userID := midsec.UserID(c)

	var req struct {
		Mood string `json:"mood"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Mood == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "mood required"})
		return
	}

	ctx := c.Request.Context()
	if err := h.store.SetUserMood(ctx, userID, req.Mood); err != nil {
		logger.Errorf("[mood] persist failed user=%s: %v", userID, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "failed to save mood"})
		return
	}
	if err := h.presence.SetMood(ctx, userID, req.Mood); err != nil {
		logger.Warnf("[mood] presence mood failed user=%s: %v", userID, err)
	}

	partners, err := h.store.ChatPartners(ctx, userID)
	if err == nil && len(partners) > 0 {
		if _, err := h.bcast.Broadcast(ctx, partners, NewProfileUpdate(userID, req.Mood)); err != nil {
			logger.Warnf("[mood] broadcast failed user=%s: %v", userID, err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"user_id": userID, "mood": req.Mood})
}

// HandlePresence returns the shared presence record of one user.
func (h *Hub) HandlePresence(c *gin.Context) {
	rec, err := h.presence.Snapshot(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "presence unavailable"})
		return
	}
	c.JSON(http.StatusOK, rec)
}
