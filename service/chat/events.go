package chat

import (
	"encoding/json"
	"time"

	"ChirpChat/module/chat/model"
	"ChirpChat/tools/errs"
)

type EventType string

// Inbound event types (client -> gateway).
const (
	EvSendMessage    EventType = "send_message"
	EvToggleReaction EventType = "toggle_reaction"
	EvStartTyping    EventType = "start_typing"
	EvStopTyping     EventType = "stop_typing"
	EvPingThinking   EventType = "ping_thinking_of_you"
	EvChangeChatMode EventType = "change_chat_mode"
	EvHeartbeat      EventType = "HEARTBEAT"
)

// Outbound event types (gateway -> client).
const (
	EvNewMessage      EventType = "new_message"
	EvReactionUpdate  EventType = "message_reaction_update"
	EvTypingIndicator EventType = "typing_indicator"
	EvPresenceUpdate  EventType = "user_presence_update"
	EvProfileUpdate   EventType = "user_profile_update"
	EvChatModeChanged EventType = "chat_mode_changed"
	EvThinkingOfYou   EventType = "thinking_of_you_received"
	EvMessageAck      EventType = "message_ack"
	EvError           EventType = "error"
)

// Envelope is the addressed, sequenced unit put on the shared channel and
// into the replay log. Immutable once published.
type Envelope struct {
	Sequence      int64           `json:"sequence,omitempty"`
	TargetUserIDs []string        `json:"target_user_ids"`
	Payload       json.RawMessage `json:"payload"`
}

// ===== Inbound =====

type inboundFrame struct {
	EventType EventType `json:"event_type"`
}

// ParseInbound extracts the event tag from a raw client frame. The variant
// body stays raw; each handler unmarshals its own typed request.
func ParseInbound(raw []byte) (EventType, error) {
	var f inboundFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return "", errs.ErrBadPayload.WithDetail("invalid JSON payload")
	}
	if f.EventType == "" {
		return "", errs.ErrBadPayload.WithDetail("missing event_type")
	}
	return f.EventType, nil
}

type SendMessageReq struct {
	ChatID              string `json:"chat_id"`
	Text                string `json:"text,omitempty"`
	ClipType            string `json:"clip_type,omitempty"`
	ClipPlaceholderText string `json:"clip_placeholder_text,omitempty"`
	ClipURL             string `json:"clip_url,omitempty"`
	ImageURL            string `json:"image_url,omitempty"`
	ClientTempID        string `json:"client_temp_id,omitempty"`
}

type ToggleReactionReq struct {
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

type TypingReq struct {
	ChatID string `json:"chat_id"`
}

type PingThinkingReq struct {
	RecipientUserID string `json:"recipient_user_id"`
}

type ChangeChatModeReq struct {
	ChatID string `json:"chat_id"`
	Mode   string `json:"mode"`
}

// ===== Outbound =====

// Outbound is one strongly typed wire payload. Logged events enter the
// replay log and carry a sequence number; transient ones (typing, presence,
// profile, pings) are last-write-wins signals that are published but never
// replayed.
type Outbound interface {
	Type() EventType
	Logged() bool
}

type sequenced interface {
	setSequence(int64)
}

type NewMessageEvent struct {
	EventType EventType      `json:"event_type"`
	Sequence  int64          `json:"sequence,omitempty"`
	ChatID    string         `json:"chat_id"`
	Message   *model.Message `json:"message"`
}

func NewMessage(chatID string, m *model.Message) *NewMessageEvent {
	return &NewMessageEvent{EventType: EvNewMessage, ChatID: chatID, Message: m}
}

func (e *NewMessageEvent) Type() EventType { return EvNewMessage }
func (e *NewMessageEvent) Logged() bool { return true }
func (e *NewMessageEvent) setSequence(s int64) { e.Sequence = s }

type ReactionUpdateEvent struct {
	EventType EventType       `json:"event_type"`
	Sequence  int64           `json:"sequence,omitempty"`
	ChatID    string          `json:"chat_id"`
	MessageID string          `json:"message_id"`
	Reactions model.Reactions `json:"reactions"`
}

func NewReactionUpdate(chatID, messageID string, r model.Reactions) *ReactionUpdateEvent {
	return &ReactionUpdateEvent{EventType: EvReactionUpdate, ChatID: chatID, MessageID: messageID, Reactions: r}
}

func (e *ReactionUpdateEvent) Type() EventType { return EvReactionUpdate }
func (e *ReactionUpdateEvent) Logged() bool { return true }
func (e *ReactionUpdateEvent) setSequence(s int64) { e.Sequence = s }

type ChatModeChangedEvent struct {
	EventType EventType `json:"event_type"`
	Sequence  int64     `json:"sequence,omitempty"`
	ChatID    string    `json:"chat_id"`
	Mode      string    `json:"mode"`
	ChangedBy string    `json:"changed_by"`
}

func NewChatModeChanged(chatID, mode, changedBy string) *ChatModeChangedEvent {
	return &ChatModeChangedEvent{EventType: EvChatModeChanged, ChatID: chatID, Mode: mode, ChangedBy: changedBy}
}

func (e *ChatModeChangedEvent) Type() EventType { return EvChatModeChanged }
func (e *ChatModeChangedEvent) Logged() bool { return true }
func (e *ChatModeChangedEvent) setSequence(s int64) { e.Sequence = s }

type TypingIndicatorEvent struct {
	EventType EventType `json:"event_type"`
	ChatID    string    `json:"chat_id"`
	UserID    string    `json:"user_id"`
	IsTyping  bool      `json:"is_typing"`
}

func NewTypingIndicator(chatID, userID string, isTyping bool) *TypingIndicatorEvent {
	return &TypingIndicatorEvent{EventType: EvTypingIndicator, ChatID: chatID, UserID: userID, IsTyping: isTyping}
}

func (e *TypingIndicatorEvent) Type() EventType { return EvTypingIndicator }
func (e *TypingIndicatorEvent) Logged() bool { return false }

type PresenceUpdateEvent struct {
	EventType EventType  `json:"event_type"`
	UserID    string     `json:"user_id"`
	IsOnline  bool       `json:"is_online"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
	Mood      string     `json:"mood,omitempty"`
}

func NewPresenceUpdate(userID string, isOnline bool, lastSeen *time.Time, mood string) *PresenceUpdateEvent {
	return &PresenceUpdateEvent{EventType: EvPresenceUpdate, UserID: userID, IsOnline: isOnline, LastSeen: lastSeen, Mood: mood}
}

func (e *PresenceUpdateEvent) Type() EventType { return EvPresenceUpdate }
func (e *PresenceUpdateEvent) Logged() bool { return false }

type ProfileUpdateEvent struct {
	EventType EventType `json:"event_type"`
	UserID    string    `json:"user_id"`
	Mood      string    `json:"mood,omitempty"`
}

func NewProfileUpdate(userID, mood string) *ProfileUpdateEvent {
	return &ProfileUpdateEvent{EventType: EvProfileUpdate, UserID: userID, Mood: mood}
}

func (e *ProfileUpdateEvent) Type() EventType { return EvProfileUpdate }
func (e *ProfileUpdateEvent) Logged() bool { return false }

type ThinkingOfYouEvent struct {
	EventType  EventType `json:"event_type"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
}

func NewThinkingOfYou(senderID, senderName string) *ThinkingOfYouEvent {
	return &ThinkingOfYouEvent{EventType: EvThinkingOfYou, SenderID: senderID, SenderName: senderName}
}

func (e *ThinkingOfYouEvent) Type() EventType { return EvThinkingOfYou }
func (e *ThinkingOfYouEvent) Logged() bool { return false }

// MessageAckEvent goes only to the originating connection, never broadcast.
type MessageAckEvent struct {
	EventType    EventType `json:"event_type"`
	ClientTempID string    `json:"client_temp_id,omitempty"`
	MessageID    string    `json:"message_id"`
	ChatID       string    `json:"chat_id"`
	Duplicate    bool      `json:"duplicate,omitempty"`
}

func NewMessageAck(chatID, messageID, clientTempID string, duplicate bool) *MessageAckEvent {
	return &MessageAckEvent{EventType: EvMessageAck, ChatID: chatID, MessageID: messageID, ClientTempID: clientTempID, Duplicate: duplicate}
}

func (e *MessageAckEvent) Type() EventType { return EvMessageAck }
func (e *MessageAckEvent) Logged() bool { return false }

// ErrorEvent goes only to the originating connection.
type ErrorEvent struct {
	EventType EventType `json:"event_type"`
	Code      int       `json:"code"`
	Detail    string    `json:"detail"`
}

func NewErrorEvent(err error) *ErrorEvent {
	ce := errs.AsCode(err)
	detail := ce.Msg
	if ce.Detail != "" {
		detail = detail + ": " + ce.Detail
	}
	return &ErrorEvent{EventType: EvError, Code: ce.Code, Detail: detail}
}

func (e *ErrorEvent) Type() EventType { return EvError }
func (e *ErrorEvent) Logged() bool { return false }
