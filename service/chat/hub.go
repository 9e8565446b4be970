package chat

import (
	"context"
	"sync"
	"time"

	"ChirpChat/logger"
	chatmodel "ChirpChat/module/chat/model"
	usermodel "ChirpChat/module/user/model"
	"ChirpChat/service/storage"
)

// PresenceStore is the shared presence directory contract.
type PresenceStore interface {
	Online(ctx context.Context, userID, gatewayID string) error
	Offline(ctx context.Context, userID string) error
	Owner(ctx context.Context, userID string) (gatewayID string, online bool, err error)
	Touch(ctx context.Context, userID string) (bool, error)
	SetMood(ctx context.Context, userID, mood string) error
	Snapshot(ctx context.Context, userID string) (storage.PresenceRecord, error)
}

// Store is the slice of the relational collaborator the realtime core needs.
// Persistence happens here before anything is broadcast; the core itself
// stores nothing durable.
type Store interface {
	ParticipantLookup
	InsertMessage(ctx context.Context, m *chatmodel.Message) error
	GetMessage(ctx context.Context, messageID string) (*chatmodel.Message, error)
	UpdateReactions(ctx context.Context, messageID string, r chatmodel.Reactions) error
	IsParticipant(ctx context.Context, chatID, userID string) (bool, error)
	ChatPartners(ctx context.Context, userID string) ([]string, error)
	ChatMode(ctx context.Context, chatID string) (string, error)
	SetChatMode(ctx context.Context, chatID, mode string) error
	GetUser(ctx context.Context, userID string) (*usermodel.User, error)
	SetUserMood(ctx context.Context, userID, mood string) error
}

// Notifier enqueues push notifications after a successful message
// broadcast. Best effort, outside the delivery core.
type Notifier interface {
	NotifyNewMessage(ctx context.Context, m *chatmodel.Message, targets []string) error
}

type HubConf struct {
	GatewayID   string
	JWTSecret   string
	GracePeriod time.Duration
	QueueSize   int

	WriteDeadline     time.Duration
	HeartbeatInterval time.Duration

	Clock func() time.Time // injectable for tests; nil => time.Now
}

func (c *HubConf) norm() {
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = 30 * time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.WriteDeadline <= 0 {
		c.WriteDeadline = 5 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 25 * time.Second
	}
}

// Hub owns every piece of per-process realtime state: the connection
// registry, the grace timers, and the handles to the shared stores.
// Constructed once in main and passed by reference into every route.
type Hub struct {
	conf HubConf

	reg      *Registry
	presence PresenceStore
	store    Store
	parts    *ParticipantCache
	bcast    *Broadcaster
	idem     storage.IdemStore
	rate     storage.RateLimiter
	notify   Notifier // may be nil
	disp     *Dispatcher

	mu          sync.Mutex
	graceTimers map[string]*time.Timer
}

type HubDeps struct {
	Registry    *Registry
	Presence    PresenceStore
	Store       Store
	Parts       *ParticipantCache
	Broadcaster *Broadcaster
	Idem        storage.IdemStore
	Rate        storage.RateLimiter
	Notify      Notifier
}

func NewHub(conf HubConf, d HubDeps) *Hub {
	conf.norm()
	h := &Hub{
		conf:        conf,
		reg:         d.Registry,
		presence:    d.Presence,
		store:       d.Store,
		parts:       d.Parts,
		bcast:       d.Broadcaster,
		idem:        d.Idem,
		rate:        d.Rate,
		notify:      d.Notify,
		disp:        NewDispatcher(),
		graceTimers: make(map[string]*time.Timer),
	}
	h.registerHandlers()
	return h
}

func (h *Hub) Registry() *Registry { return h.reg }
func (h *Hub) Broadcaster() *Broadcaster { return h.bcast }
func (h *Hub) GatewayID() string { return h.conf.GatewayID }

// ===== Connect / disconnect and the grace-period state machine =====

// Register accepts an authenticated connection: local registry first so a
// racing broadcast can already reach it, then shared presence, then a
// presence broadcast to chat partners. Cancels any pending grace timer, so
// a reconnect within the window produces zero offline noise.
func (h *Hub) Register(ctx context.Context, c *Client) {
	h.reg.Register(c)
	h.cancelGrace(c.UserID)

	if err := h.presence.Online(ctx, c.UserID, h.conf.GatewayID); err != nil {
		logger.Errorf("[hub] presence online failed user=%s: %v", c.UserID, err)
	}
	h.broadcastPresence(ctx, c.UserID, true)
	logger.Infof("[hub] user %s connected via %s, local conns=%d", c.UserID, c.Kind, h.reg.Len())
}

// Unregister removes the connection immediately (a fast reconnect is a
// fresh connection) but defers the shared offline flip behind a grace
// timer. Another live local connection for the same user suppresses the
// timer entirely.
func (h *Hub) Unregister(c *Client) {
	h.reg.Unregister(c)
	c.Close()
	if h.reg.IsLocal(c.UserID) {
		return
	}
	h.scheduleGrace(c.UserID)
	logger.Infof("[hub] user %s disconnected, grace timer %s", c.UserID, h.conf.GracePeriod)
}

func (h *Hub) scheduleGrace(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.graceTimers[userID]; ok {
		t.Stop()
	}
	h.graceTimers[userID] = time.AfterFunc(h.conf.GracePeriod, func() {
		h.graceExpired(userID)
	})
}

func (h *Hub) cancelGrace(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.graceTimers[userID]; ok {
		t.Stop()
		delete(h.graceTimers, userID)
	}
}

// graceExpired performs PENDING_OFFLINE -> OFFLINE. Re-checks local state
// and shared ownership first: a reconnect on another gateway rewrites
// gateway_id, and that gateway now owns the record.
func (h *Hub) graceExpired(userID string) {
	h.mu.Lock()
	delete(h.graceTimers, userID)
	h.mu.Unlock()

	if h.reg.IsLocal(userID) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	owner, online, err := h.presence.Owner(ctx, userID)
	if err != nil {
		logger.Errorf("[hub] grace owner check failed user=%s: %v", userID, err)
		return
	}
	if online && owner != h.conf.GatewayID {
		// Reconnected elsewhere during the grace window.
		return
	}
	if err := h.presence.Offline(ctx, userID); err != nil {
		logger.Errorf("[hub] presence offline failed user=%s: %v", userID, err)
		return
	}
	h.broadcastPresence(ctx, userID, false)
	logger.Infof("[hub] user %s offline after grace period", userID)
}

// broadcastPresence tells every chat partner about an online/offline flip.
func (h *Hub) broadcastPresence(ctx context.Context, userID string, online bool) {
	partners, err := h.store.ChatPartners(ctx, userID)
	if err != nil {
		logger.Errorf("[hub] partner lookup failed user=%s: %v", userID, err)
		return
	}
	if len(partners) == 0 {
		return
	}
	rec, err := h.presence.Snapshot(ctx, userID)
	if err != nil {
		logger.Errorf("[hub] presence snapshot failed user=%s: %v", userID, err)
		rec = storage.PresenceRecord{UserID: userID}
	}
	var lastSeen *time.Time
	if !rec.LastSeen.IsZero() {
		t := rec.LastSeen
		lastSeen = &t
	}
	if _, err := h.bcast.Broadcast(ctx, partners, NewPresenceUpdate(userID, online, lastSeen, rec.Mood)); err != nil {
		logger.Errorf("[hub] presence broadcast failed user=%s: %v", userID, err)
	}
}

// ===== Inbound dispatch =====

// Dispatch routes one raw client frame. Per-event failures come back to the
// originating connection as an error event; they never tear the connection
// down.
func (h *Hub) Dispatch(ctx context.Context, c *Client, raw []byte) {
	t, err := ParseInbound(raw)
	if err != nil {
		c.EnqueueJSON(NewErrorEvent(err))
		return
	}
	if err := h.disp.Dispatch(ctx, t, c, raw); err != nil {
		logger.Infof("[hub] event %s from user %s rejected: %v", t, c.UserID, err)
		c.EnqueueJSON(NewErrorEvent(err))
	}
}
