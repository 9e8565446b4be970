package store

import (
	"context"
	"encoding/json"
	"time"

	chatmodel "ChirpChat/module/chat/model"
	usermodel "ChirpChat/module/user/model"
	"ChirpChat/tools/errs"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// Repo is the relational collaborator. The realtime core never persists
// domain data itself; handlers call through here before broadcasting.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(ctx context.Context, dsn string) (*Repo, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "pg connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "pg ping")
	}
	return &Repo{pool: pool}, nil
}

func (r *Repo) Close() { r.pool.Close() }

// InsertMessage stores a message row and bumps the chat's updated_at.
func (r *Repo) InsertMessage(ctx context.Context, m *chatmodel.Message) error {
	reactions, err := json.Marshal(m.Reactions)
	if err != nil {
		return errors.Wrap(err, "marshal reactions")
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO messages
			(id, chat_id, user_id, text, clip_type, clip_placeholder_text,
			 clip_url, image_url, client_temp_id, created_at, updated_at, reactions)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		m.ID, m.ChatID, m.UserID, m.Text, m.ClipType, m.ClipPlaceholderText,
		m.ClipURL, m.ImageURL, m.ClientTempID, m.CreatedAt, m.UpdatedAt, reactions)
	if err != nil {
		return errors.Wrap(err, "insert message")
	}
	_, err = tx.Exec(ctx, `UPDATE chats SET updated_at = $1 WHERE id = $2`, m.UpdatedAt, m.ChatID)
	if err != nil {
		return errors.Wrap(err, "touch chat")
	}
	return errors.Wrap(tx.Commit(ctx), "commit")
}

// GetMessage loads one message row.
func (r *Repo) GetMessage(ctx context.Context, messageID string) (*chatmodel.Message, error) {
	var m chatmodel.Message
	var reactions []byte
	err := r.pool.QueryRow(ctx, `
		SELECT id, chat_id, user_id,
		       COALESCE(text,''), COALESCE(clip_type,''), COALESCE(clip_placeholder_text,''),
		       COALESCE(clip_url,''), COALESCE(image_url,''), COALESCE(client_temp_id,''),
		       created_at, updated_at, reactions
		FROM messages WHERE id = $1`, messageID).
		Scan(&m.ID, &m.ChatID, &m.UserID, &m.Text, &m.ClipType, &m.ClipPlaceholderText,
			&m.ClipURL, &m.ImageURL, &m.ClientTempID, &m.CreatedAt, &m.UpdatedAt, &reactions)
	if err == pgx.ErrNoRows {
		return nil, errs.ErrNotFound.WithDetail("message not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, "get message")
	}
	m.Reactions = chatmodel.Reactions{}
	if len(reactions) > 0 {
		if err := json.Unmarshal(reactions, &m.Reactions); err != nil {
			return nil, errors.Wrap(err, "unmarshal reactions")
		}
	}
	return &m, nil
}

// UpdateReactions replaces the reaction map on a message.
func (r *Repo) UpdateReactions(ctx context.Context, messageID string, reactions chatmodel.Reactions) error {
	raw, err := json.Marshal(reactions)
	if err != nil {
		return errors.Wrap(err, "marshal reactions")
	}
	_, err = r.pool.Exec(ctx,
		`UPDATE messages SET reactions = $1, updated_at = $2 WHERE id = $3`,
		raw, time.Now().UTC(), messageID)
	return errors.Wrap(err, "update reactions")
}

// Participants returns the member user IDs of a chat.
func (r *Repo) Participants(ctx context.Context, chatID string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id FROM chat_participants WHERE chat_id = $1`, chatID)
	if err != nil {
		return nil, errors.Wrap(err, "participants")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, errors.Wrap(err, "participants scan")
		}
		out = append(out, uid)
	}
	return out, errors.Wrap(rows.Err(), "participants rows")
}

// IsParticipant checks chat membership for permission decisions.
func (r *Repo) IsParticipant(ctx context.Context, chatID, userID string) (bool, error) {
	var one int
	err := r.pool.QueryRow(ctx,
		`SELECT 1 FROM chat_participants WHERE chat_id = $1 AND user_id = $2`,
		chatID, userID).Scan(&one)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "is participant")
	}
	return true, nil
}

// ChatPartners returns every distinct user sharing at least one chat with
// the given user, excluding the user themselves. Drives presence and
// profile-change fan-out.
func (r *Repo) ChatPartners(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT cp2.user_id
		FROM chat_participants cp1
		JOIN chat_participants cp2 ON cp1.chat_id = cp2.chat_id
		WHERE cp1.user_id = $1 AND cp2.user_id <> $1`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "chat partners")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, errors.Wrap(err, "chat partners scan")
		}
		out = append(out, uid)
	}
	return out, errors.Wrap(rows.Err(), "chat partners rows")
}

// ChatMode reads the current mode of a chat.
func (r *Repo) ChatMode(ctx context.Context, chatID string) (string, error) {
	var mode string
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(mode, 'normal') FROM chats WHERE id = $1`, chatID).Scan(&mode)
	if err == pgx.ErrNoRows {
		return "", errs.ErrNotFound.WithDetail("chat not found")
	}
	return mode, errors.Wrap(err, "chat mode")
}

// SetChatMode persists a mode change.
func (r *Repo) SetChatMode(ctx context.Context, chatID, mode string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE chats SET mode = $1, updated_at = $2 WHERE id = $3`,
		mode, time.Now().UTC(), chatID)
	return errors.Wrap(err, "set chat mode")
}

// GetUser loads a user row.
func (r *Repo) GetUser(ctx context.Context, userID string) (*usermodel.User, error) {
	var u usermodel.User
	err := r.pool.QueryRow(ctx, `
		SELECT id, display_name, COALESCE(avatar_url,''), COALESCE(mood,'Neutral')
		FROM users WHERE id = $1`, userID).
		Scan(&u.ID, &u.DisplayName, &u.AvatarURL, &u.Mood)
	if err == pgx.ErrNoRows {
		return nil, errs.ErrNotFound.WithDetail("user not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, "get user")
	}
	return &u, nil
}

// SetUserMood persists a mood change on the user row.
func (r *Repo) SetUserMood(ctx context.Context, userID, mood string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET mood = $1 WHERE id = $2`, mood, userID)
	return errors.Wrap(err, "set mood")
}
