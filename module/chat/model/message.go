package model

import "time"

// Chat modes. Incognito messages are broadcast but never persisted.
const (
	ModeNormal    = "normal"
	ModeFight     = "fight"
	ModeIncognito = "incognito"
)

// Reactions maps emoji -> reacting user IDs.
type Reactions map[string][]string

// Toggle adds the user under the emoji, or removes them if already present.
// Empty emoji buckets are dropped.
func (r Reactions) Toggle(emoji, userID string) {
	users := r[emoji]
	for i, u := range users {
		if u == userID {
			users = append(users[:i], users[i+1:]...)
			if len(users) == 0 {
				delete(r, emoji)
			} else {
				r[emoji] = users
			}
			return
		}
	}
	r[emoji] = append(users, userID)
}

type Message struct {
	ID                  string    `json:"id"`
	ChatID              string    `json:"chat_id"`
	UserID              string    `json:"user_id"`
	Text                string    `json:"text,omitempty"`
	ClipType            string    `json:"clip_type,omitempty"`
	ClipPlaceholderText string    `json:"clip_placeholder_text,omitempty"`
	ClipURL             string    `json:"clip_url,omitempty"`
	ImageURL            string    `json:"image_url,omitempty"`
	ClientTempID        string    `json:"client_temp_id,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
	Reactions           Reactions `json:"reactions"`
	Ephemeral           bool      `json:"ephemeral,omitempty"`
}

type Chat struct {
	ID        string    `json:"id"`
	Mode      string    `json:"mode"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ValidMode reports whether m is one of the recognized chat modes.
func ValidMode(m string) bool {
	return m == ModeNormal || m == ModeFight || m == ModeIncognito
}
