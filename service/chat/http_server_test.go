package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	midsec "ChirpChat/middleware/security"
	usermodel "ChirpChat/module/user/model"
	"ChirpChat/tools/errs"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// apiRouter wires the HTTP surface with the caller identity pre-set, the
// way the auth middleware would after validating a token.
func apiRouter(f *hubFixture, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(midsec.CtxUserIDKey, userID) })
	r.POST("/chats/:chat_id/messages", f.hub.HandleSendMessageHTTP)
	r.POST("/events/actions", f.hub.HandleSSEAction)
	r.GET("/events/sync", f.hub.HandleSync)
	r.POST("/users/me/mood", f.hub.HandleSetMood)
	r.GET("/users/:user_id/presence", f.hub.HandlePresence)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestSendMessageHTTPResponseIsAck(t *testing.T) {
	f := newHubFixture(t, time.Minute)
	f.store.members["chat-1"] = []string{"alice", "bob"}
	r := apiRouter(f, "alice")

	w := doJSON(t, r, http.MethodPost, "/chats/chat-1/messages", map[string]any{
		"text":           "hello over http",
		"client_temp_id": "tmp-http-1",
	})

	require.Equal(t, http.StatusOK, w.Code)
	var ack MessageAckEvent
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ack))
	require.Equal(t, EvMessageAck, ack.EventType)
	require.Equal(t, "tmp-http-1", ack.ClientTempID)
	require.Equal(t, "chat-1", ack.ChatID)
	require.NotEmpty(t, ack.MessageID)

	require.Equal(t, 1, f.store.insertedCount())
	envs := f.bus.publishedEnvelopes(t)
	require.Len(t, envs, 1)
	var ev NewMessageEvent
	require.NoError(t, json.Unmarshal(envs[0].Payload, &ev))
	require.Equal(t, "hello over http", ev.Message.Text)
}

func TestSendMessageHTTPNonMember(t *testing.T) {
	f := newHubFixture(t, time.Minute)
	f.store.members["chat-1"] = []string{"bob"}
	r := apiRouter(f, "alice")

	w := doJSON(t, r, http.MethodPost, "/chats/chat-1/messages", map[string]any{"text": "x"})

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var ev ErrorEvent
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ev))
	require.Equal(t, errs.CodePermission, ev.Code)
	require.Zero(t, f.store.insertedCount())
}

func TestSendMessageHTTPBadBody(t *testing.T) {
	f := newHubFixture(t, time.Minute)
	r := apiRouter(f, "alice")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chats/chat-1/messages", bytes.NewBufferString("not json"))
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSSEActionReturnsDirectReplies(t *testing.T) {
	f := newHubFixture(t, time.Minute)
	f.store.members["chat-1"] = []string{"alice", "bob"}
	r := apiRouter(f, "alice")

	w := doJSON(t, r, http.MethodPost, "/events/actions", map[string]any{
		"event_type":     "send_message",
		"chat_id":        "chat-1",
		"text":           "via action endpoint",
		"client_temp_id": "tmp-act-1",
	})

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Events []json.RawMessage `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Events, 1)
	var ack MessageAckEvent
	require.NoError(t, json.Unmarshal(body.Events[0], &ack))
	require.Equal(t, EvMessageAck, ack.EventType)
	require.Equal(t, "tmp-act-1", ack.ClientTempID)
}

func TestSSEActionNoDirectReplies(t *testing.T) {
	f := newHubFixture(t, time.Minute)
	f.store.members["chat-1"] = []string{"alice", "bob"}
	r := apiRouter(f, "alice")

	// Typing produces no reply to the origin, only a broadcast.
	w := doJSON(t, r, http.MethodPost, "/events/actions", map[string]any{
		"event_type": "start_typing",
		"chat_id":    "chat-1",
	})

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Events []json.RawMessage `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Empty(t, body.Events)
	require.Len(t, f.bus.publishedEnvelopes(t), 1)
}

func TestSSEActionEmptyBody(t *testing.T) {
	f := newHubFixture(t, time.Minute)
	r := apiRouter(f, "alice")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/events/actions", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSyncReturnsMissedEvents(t *testing.T) {
	f := newHubFixture(t, time.Minute)
	r := apiRouter(f, "alice")
	ctx := context.Background()

	_, err := f.hub.Broadcaster().Broadcast(ctx, []string{"alice", "bob"}, NewChatModeChanged("chat-1", "fight", "bob"))
	require.NoError(t, err)
	_, err = f.hub.Broadcaster().Broadcast(ctx, []string{"bob"}, NewChatModeChanged("chat-2", "normal", "bob"))
	require.NoError(t, err)

	w := doJSON(t, r, http.MethodGet, "/events/sync?since=0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var payloads []json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payloads))
	require.Len(t, payloads, 1)
	var ev ChatModeChangedEvent
	require.NoError(t, json.Unmarshal(payloads[0], &ev))
	require.Equal(t, "chat-1", ev.ChatID)
	require.EqualValues(t, 1, ev.Sequence)

	// Caught up: since is exclusive.
	w = doJSON(t, r, http.MethodGet, "/events/sync?since=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payloads))
	require.Empty(t, payloads)
}

func TestSyncRejectsBadSince(t *testing.T) {
	f := newHubFixture(t, time.Minute)
	r := apiRouter(f, "alice")

	for _, q := range []string{"since=abc", "since=-1"} {
		w := doJSON(t, r, http.MethodGet, "/events/sync?"+q, nil)
		require.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestSyncStoreFailure(t *testing.T) {
	f := newHubFixture(t, time.Minute)
	f.bus.replayErr = errors.New("redis gone")
	r := apiRouter(f, "alice")

	w := doJSON(t, r, http.MethodGet, "/events/sync?since=0", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSetMoodPersistsAndNotifiesPartners(t *testing.T) {
	f := newHubFixture(t, time.Minute)
	f.store.users["alice"] = &usermodel.User{ID: "alice", DisplayName: "Alice"}
	f.store.partners["alice"] = []string{"bob"}
	r := apiRouter(f, "alice")

	w := doJSON(t, r, http.MethodPost, "/users/me/mood", map[string]any{"mood": "happy"})
	require.Equal(t, http.StatusOK, w.Code)

	require.Equal(t, "happy", f.store.users["alice"].Mood)
	f.presence.mu.Lock()
	require.Equal(t, "happy", f.presence.moods["alice"])
	f.presence.mu.Unlock()

	envs := f.bus.publishedEnvelopes(t)
	require.Len(t, envs, 1)
	require.Equal(t, []string{"bob"}, envs[0].TargetUserIDs)
	var ev ProfileUpdateEvent
	require.NoError(t, json.Unmarshal(envs[0].Payload, &ev))
	require.Equal(t, EvProfileUpdate, ev.EventType)
	require.Equal(t, "happy", ev.Mood)
}

func TestSetMoodRequiresMood(t *testing.T) {
	f := newHubFixture(t, time.Minute)
	r := apiRouter(f, "alice")

	w := doJSON(t, r, http.MethodPost, "/users/me/mood", map[string]any{})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPresenceSnapshotEndpoint(t *testing.T) {
	f := newHubFixture(t, time.Minute)
	f.presence.mu.Lock()
	f.presence.ownerOnline = true
	f.presence.moods["bob"] = "relaxed"
	f.presence.mu.Unlock()
	r := apiRouter(f, "alice")

	w := doJSON(t, r, http.MethodGet, "/users/bob/presence", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rec struct {
		UserID   string `json:"user_id"`
		IsOnline bool   `json:"is_online"`
		Mood     string `json:"mood"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	require.Equal(t, "bob", rec.UserID)
	require.True(t, rec.IsOnline)
	require.Equal(t, "relaxed", rec.Mood)
}
