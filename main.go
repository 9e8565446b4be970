package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"ChirpChat/global"
	"ChirpChat/logger"
	mid "ChirpChat/middleware"
	midsec "ChirpChat/middleware/security"
	"ChirpChat/module/chat/store"
	"ChirpChat/service/chat"
	"ChirpChat/service/kafka"
	"ChirpChat/service/storage"
	storageredis "ChirpChat/service/storage/redis"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// .env is optional; the environment wins.
	_ = godotenv.Load()

	conf, err := global.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1) Shared stores
	if err := storageredis.Init(storageredis.Config{
		Addr:     conf.RedisAddr,
		Password: conf.RedisPassword,
		DB:       conf.RedisDB,
	}); err != nil {
		log.Fatalf("redis init failed: %v", err)
	}
	defer func() { _ = storageredis.Close() }()
	rdb := storageredis.Client()

	repo, err := store.NewRepo(ctx, conf.PostgresDSN)
	if err != nil {
		log.Fatalf("postgres init failed: %v", err)
	}
	defer repo.Close()

	// 2) Push-notification enqueue; the gateway runs without it.
	var notify chat.Notifier
	producer, err := kafka.NewProducer(conf.KafkaBrokers, conf.KafkaNotifyTopic)
	if err != nil {
		logger.Warnf("[main] kafka unavailable, push notifications disabled: %v", err)
	} else {
		notify = producer
		defer func() { _ = producer.Close() }()
	}

	// 3) Realtime core
	parts, err := chat.NewParticipantCache(conf.ParticipantCacheSize, conf.ParticipantCacheTTL, repo)
	if err != nil {
		log.Fatalf("participant cache init failed: %v", err)
	}

	eventLog := storage.NewEventLog(rdb, conf.EventLogMax, conf.EventLogTTL)
	registry := chat.NewRegistry()
	fan := chat.NewFanout(conf.FanoutWorkers, conf.FanoutQueue)
	bcast := chat.NewBroadcaster(eventLog, registry, fan, conf.SubscribeBackoff)

	hub := chat.NewHub(chat.HubConf{
		GatewayID:         conf.GatewayID,
		JWTSecret:         conf.JWTSecret,
		GracePeriod:       conf.GracePeriod,
		QueueSize:         conf.SendQueueSize,
		WriteDeadline:     conf.WriteDeadline,
		HeartbeatInterval: conf.HeartbeatInterval,
	}, chat.HubDeps{
		Registry:    registry,
		Presence:    storage.NewPresenceStore(rdb, conf.LastSeenInterval),
		Store:       repo,
		Parts:       parts,
		Broadcaster: bcast,
		Idem:        storage.NewRedisIdem(rdb, conf.IdemTTL),
		Rate: storage.NewRedisRateLimiter(rdb, map[string]storage.RateLimit{
			storage.RateClassMessage:  {Limit: conf.MsgRateLimit, Window: conf.MsgRateWindow},
			storage.RateClassReaction: {Limit: conf.ReactRateLimit, Window: conf.ReactRateWindow},
		}),
		Notify: notify,
	})

	// 4) Per-process subscriber loop on the shared broadcast channel.
	go bcast.Run(ctx, eventLog.Subscribe)

	// 5) HTTP + WebSocket + SSE
	mid.Configure(midsec.DefaultOptions(conf.JWTSecret))

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/ws/connect", hub.HandleWS) // token via query parameter
	mid.GET(r, "/events/subscribe", hub.HandleSSE, mid.RouteOpt{IsAuth: true})
	mid.GET(r, "/events/sync", hub.HandleSync, mid.RouteOpt{IsAuth: true})
	mid.POST(r, "/events/actions", hub.HandleSSEAction, mid.RouteOpt{IsAuth: true})
	mid.POST(r, "/chats/:chat_id/messages", hub.HandleSendMessageHTTP, mid.RouteOpt{IsAuth: true})
	mid.POST(r, "/users/me/mood", hub.HandleSetMood, mid.RouteOpt{IsAuth: true})
	mid.GET(r, "/users/:user_id/presence", hub.HandlePresence, mid.RouteOpt{IsAuth: true})

	logger.Infof("[main] gateway %s listening on :%d", conf.GatewayID, conf.Port)
	if err := r.Run(fmt.Sprintf(":%d", conf.Port)); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}
