package chat

import (
	"context"
	"encoding/json"
	"time"

	"ChirpChat/logger"
	"ChirpChat/module/chat/model"
	"ChirpChat/service/storage"
	"ChirpChat/tools/errs"

	"github.com/google/uuid"
)

func (h *Hub) registerHandlers() {
	h.disp.Register(EvSendMessage, h.handleSendMessage)
	h.disp.Register(EvToggleReaction, h.handleToggleReaction)
	h.disp.Register(EvStartTyping, h.handleTyping(true))
	h.disp.Register(EvStopTyping, h.handleTyping(false))
	h.disp.Register(EvPingThinking, h.handlePingThinking)
	h.disp.Register(EvChangeChatMode, h.handleChangeChatMode)
	h.disp.Register(EvHeartbeat, h.handleHeartbeat)
}

// handleSendMessage: rate limit, membership, dedup, persist (unless the
// chat is incognito), ack to the origin, broadcast, then mark the
// idempotency key and hand off to the notifier.
func (h *Hub) handleSendMessage(ctx context.Context, c *Client, raw json.RawMessage) error {
	var req SendMessageReq
	if err := json.Unmarshal(raw, &req); err != nil || req.ChatID == "" {
		return errs.ErrBadPayload.WithDetail("send_message requires chat_id")
	}

	ok, err := h.rate.Allow(ctx, c.UserID, storage.RateClassMessage)
	if err != nil {
		return errs.ErrStoreFailed.WithDetail("rate limiter unavailable")
	}
	if !ok {
		return errs.ErrThrottled.WithDetail("too many messages, slow down")
	}

	member, err := h.store.IsParticipant(ctx, req.ChatID, c.UserID)
	if err != nil {
		return errs.ErrStoreFailed.WithDetail("membership check failed")
	}
	if !member {
		return errs.ErrPermission
	}

	// A retried send with the same client_temp_id is acknowledged as
	// already processed: no second insert, no second broadcast.
	if req.ClientTempID != "" {
		storedID, seen, err := h.idem.AlreadyProcessed(ctx, req.ClientTempID)
		if err != nil {
			return errs.ErrStoreFailed.WithDetail("dedup check failed")
		}
		if seen {
			c.EnqueueJSON(NewMessageAck(req.ChatID, storedID, req.ClientTempID, true))
			return nil
		}
	}

	mode, err := h.store.ChatMode(ctx, req.ChatID)
	if err != nil {
		return err
	}
	ephemeral := mode == model.ModeIncognito

	now := time.Now().UTC()
	msg := &model.Message{
		ID:                  uuid.NewString(),
		ChatID:              req.ChatID,
		UserID:              c.UserID,
		Text:                req.Text,
		ClipType:            req.ClipType,
		ClipPlaceholderText: req.ClipPlaceholderText,
		ClipURL:             req.ClipURL,
		ImageURL:            req.ImageURL,
		ClientTempID:        req.ClientTempID,
		CreatedAt:           now,
		UpdatedAt:           now,
		Reactions:           model.Reactions{},
		Ephemeral:           ephemeral,
	}

	// Incognito messages are broadcast without persistence.
	if !ephemeral {
		if err := h.store.InsertMessage(ctx, msg); err != nil {
			logger.Errorf("[hub] message insert failed chat=%s user=%s: %v", req.ChatID, c.UserID, err)
			return errs.ErrStoreFailed.WithDetail("failed to save message")
		}
	}

	targets, err := h.parts.Get(ctx, req.ChatID)
	if err != nil {
		return errs.ErrStoreFailed.WithDetail("participant lookup failed")
	}

	// Ack the origin before (or interleaved with) the broadcast.
	c.EnqueueJSON(NewMessageAck(req.ChatID, msg.ID, req.ClientTempID, false))

	if _, err := h.bcast.Broadcast(ctx, targets, NewMessage(req.ChatID, msg)); err != nil {
		return errs.ErrStoreFailed.WithDetail("broadcast failed")
	}

	if req.ClientTempID != "" {
		if err := h.idem.MarkProcessed(ctx, req.ClientTempID, msg.ID); err != nil {
			logger.Warnf("[hub] idem mark failed id=%s: %v", req.ClientTempID, err)
		}
	}

	if h.notify != nil && !ephemeral {
		go func(m *model.Message, t []string) {
			nctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.notify.NotifyNewMessage(nctx, m, t); err != nil {
				logger.Warnf("[hub] notify enqueue failed msg=%s: %v", m.ID, err)
			}
		}(msg, targets)
	}

	if _, err := h.presence.Touch(ctx, c.UserID); err != nil {
		logger.Warnf("[hub] last_seen touch failed user=%s: %v", c.UserID, err)
	}
	return nil
}

// handleToggleReaction: reactions target the full participant set including
// the originator, so their other devices converge on the stored state.
func (h *Hub) handleToggleReaction(ctx context.Context, c *Client, raw json.RawMessage) error {
	var req ToggleReactionReq
	if err := json.Unmarshal(raw, &req); err != nil || req.ChatID == "" || req.MessageID == "" || req.Emoji == "" {
		return errs.ErrBadPayload.WithDetail("toggle_reaction requires chat_id, message_id and emoji")
	}

	ok, err := h.rate.Allow(ctx, c.UserID, storage.RateClassReaction)
	if err != nil {
		return errs.ErrStoreFailed.WithDetail("rate limiter unavailable")
	}
	if !ok {
		return errs.ErrThrottled.WithDetail("too many reactions, slow down")
	}

	member, err := h.store.IsParticipant(ctx, req.ChatID, c.UserID)
	if err != nil {
		return errs.ErrStoreFailed.WithDetail("membership check failed")
	}
	if !member {
		return errs.ErrPermission
	}

	msg, err := h.store.GetMessage(ctx, req.MessageID)
	if err != nil {
		return err
	}
	if msg.ChatID != req.ChatID {
		return errs.ErrBadPayload.WithDetail("message does not belong to the specified chat")
	}

	if msg.Reactions == nil {
		msg.Reactions = model.Reactions{}
	}
	msg.Reactions.Toggle(req.Emoji, c.UserID)

	if err := h.store.UpdateReactions(ctx, req.MessageID, msg.Reactions); err != nil {
		return errs.ErrStoreFailed.WithDetail("failed to update reaction")
	}

	targets, err := h.parts.Get(ctx, req.ChatID)
	if err != nil {
		return errs.ErrStoreFailed.WithDetail("participant lookup failed")
	}
	if _, err := h.bcast.Broadcast(ctx, targets, NewReactionUpdate(req.ChatID, req.MessageID, msg.Reactions)); err != nil {
		return errs.ErrStoreFailed.WithDetail("broadcast failed")
	}
	return nil
}

// handleTyping builds the start/stop variants. Typing indicators exclude
// the originator and are transient: duplicated or dropped frames are fine.
func (h *Hub) handleTyping(isTyping bool) HandlerFunc {
	return func(ctx context.Context, c *Client, raw json.RawMessage) error {
		var req TypingReq
		if err := json.Unmarshal(raw, &req); err != nil || req.ChatID == "" {
			return errs.ErrBadPayload.WithDetail("typing indicator requires chat_id")
		}

		members, err := h.parts.Get(ctx, req.ChatID)
		if err != nil {
			return errs.ErrStoreFailed.WithDetail("participant lookup failed")
		}
		targets := make([]string, 0, len(members))
		sender := false
		for _, uid := range members {
			if uid == c.UserID {
				sender = true
				continue
			}
			targets = append(targets, uid)
		}
		if !sender {
			return errs.ErrPermission
		}
		_, err = h.bcast.Broadcast(ctx, targets, NewTypingIndicator(req.ChatID, c.UserID, isTyping))
		return err
	}
}

// handlePingThinking delivers a direct transient ping to one recipient.
func (h *Hub) handlePingThinking(ctx context.Context, c *Client, raw json.RawMessage) error {
	var req PingThinkingReq
	if err := json.Unmarshal(raw, &req); err != nil || req.RecipientUserID == "" {
		return errs.ErrBadPayload.WithDetail("ping requires recipient_user_id")
	}
	if _, err := h.store.GetUser(ctx, req.RecipientUserID); err != nil {
		return err
	}
	sender, err := h.store.GetUser(ctx, c.UserID)
	if err != nil {
		return err
	}
	_, err = h.bcast.Broadcast(ctx, []string{req.RecipientUserID}, NewThinkingOfYou(sender.ID, sender.DisplayName))
	return err
}

// handleChangeChatMode persists the mode and tells the full participant
// set, originator included.
func (h *Hub) handleChangeChatMode(ctx context.Context, c *Client, raw json.RawMessage) error {
	var req ChangeChatModeReq
	if err := json.Unmarshal(raw, &req); err != nil || req.ChatID == "" {
		return errs.ErrBadPayload.WithDetail("change_chat_mode requires chat_id")
	}
	if !model.ValidMode(req.Mode) {
		return errs.ErrBadPayload.WithDetail("unknown chat mode: " + req.Mode)
	}

	member, err := h.store.IsParticipant(ctx, req.ChatID, c.UserID)
	if err != nil {
		return errs.ErrStoreFailed.WithDetail("membership check failed")
	}
	if !member {
		return errs.ErrPermission
	}

	if err := h.store.SetChatMode(ctx, req.ChatID, req.Mode); err != nil {
		return errs.ErrStoreFailed.WithDetail("failed to change chat mode")
	}

	targets, err := h.parts.Get(ctx, req.ChatID)
	if err != nil {
		return errs.ErrStoreFailed.WithDetail("participant lookup failed")
	}
	_, err = h.bcast.Broadcast(ctx, targets, NewChatModeChanged(req.ChatID, req.Mode, c.UserID))
	return err
}

// handleHeartbeat refreshes activity; the last_seen write is throttled by
// the presence store, so chatty clients cost one write per interval.
func (h *Hub) handleHeartbeat(ctx context.Context, c *Client, _ json.RawMessage) error {
	if _, err := h.presence.Touch(ctx, c.UserID); err != nil {
		logger.Warnf("[hub] heartbeat touch failed user=%s: %v", c.UserID, err)
	}
	return nil
}
