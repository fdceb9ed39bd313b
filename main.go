package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"messenger-service/internal/auth"
	"messenger-service/internal/backplane"
	"messenger-service/internal/blob"
	"messenger-service/internal/config"
	"messenger-service/internal/db"
	"messenger-service/internal/handlers"
	"messenger-service/internal/middleware"
	"messenger-service/internal/notify"
	"messenger-service/internal/observability"
	"messenger-service/internal/pipeline"
	"messenger-service/internal/presence"
	"messenger-service/internal/rabbitmq"
	"messenger-service/internal/repositories"
	"messenger-service/internal/telemetry"
	"messenger-service/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownTracing := observability.InitTracing(context.Background(), cfg.Telemetry.OTLPEndpoint, cfg.Server.Environment)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(ctx)
	}()

	database, err := db.Connect(cfg.DB.DSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer database.Close()

	var bp backplane.Backplane
	if cfg.AMQP.URL != "" {
		amqpBP, err := backplane.NewAMQP(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			log.Fatalf("failed to connect to amqp backplane: %v", err)
		}
		bp = amqpBP
	} else {
		log.Printf("amqp url not set, using in-process backplane")
		bp = backplane.NewMemory()
	}
	defer bp.Close()

	var presenceStore presence.Store
	if cfg.Redis.Addr != "" {
		presenceStore = presence.NewRedisStore(redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}))
	} else {
		log.Printf("redis addr not set, using in-process presence store")
		presenceStore = presence.NewMemoryStore()
	}

	auditPublisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.AuditExchange)
	defer auditPublisher.Close()
	audit := telemetry.NewAuditEmitter(auditPublisher, "audit.messenger", "messenger-service", cfg.Server.Environment)

	roomRepo := repositories.NewRoomRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	readRepo := repositories.NewReadStatusRepo(database)
	friendRepo := repositories.NewFriendRepo(database)

	verifier := auth.NewVerifier(cfg.JWT.Secret)
	hub := ws.NewHub(bp)
	router := notify.NewRouter(bp)
	tracker := presence.NewTracker(presenceStore, roomRepo, bp)
	pipe := pipeline.New(roomRepo, messageRepo, readRepo, bp, router)

	store, err := blob.NewDiskStore(cfg.Uploads.Dir, cfg.Uploads.BaseURL)
	if err != nil {
		log.Fatalf("failed to init upload store: %v", err)
	}

	roomHandler := handlers.NewRoomHandler(roomRepo, messageRepo, readRepo, friendRepo, pipe, router, tracker, hub, audit)
	messageHandler := handlers.NewMessageHandler(roomRepo, messageRepo, pipe, store, audit)
	friendHandler := handlers.NewFriendHandler(friendRepo, router, audit)
	roomWS := ws.NewRoomWebSocketHandler(hub, verifier, roomRepo, pipe, tracker)
	notifyWS := ws.NewNotifyWebSocketHandler(hub, verifier, tracker)

	engine := gin.Default()
	engine.Use(gin.Recovery())
	engine.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	engine.Use(otelgin.Middleware("messenger-service"))
	engine.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(verifier)

	engine.GET("/rooms", authMiddleware, roomHandler.ListRooms)
	engine.POST("/rooms/private", authMiddleware, roomHandler.StartPrivateChat)
	engine.POST("/rooms/groups", authMiddleware, roomHandler.CreateGroup)
	engine.POST("/rooms/:room_uid/members", authMiddleware, roomHandler.AddMember)
	engine.DELETE("/rooms/:room_uid/members/:user_id", authMiddleware, roomHandler.KickMember)
	engine.POST("/rooms/:room_uid/leave", authMiddleware, roomHandler.LeaveGroup)
	engine.POST("/rooms/:room_uid/admin", authMiddleware, roomHandler.TransferAdmin)
	engine.DELETE("/rooms/:room_uid", authMiddleware, roomHandler.DeleteGroup)
	engine.POST("/rooms/:room_uid/read", authMiddleware, roomHandler.MarkRead)

	engine.GET("/rooms/:room_uid/messages", authMiddleware, messageHandler.GetMessages)
	engine.POST("/rooms/:room_uid/messages", authMiddleware, messageHandler.PostMessage)
	engine.PATCH("/rooms/:room_uid/messages/:message_id", authMiddleware, messageHandler.EditMessage)
	engine.DELETE("/rooms/:room_uid/messages/:message_id", authMiddleware, messageHandler.DeleteMessage)
	engine.POST("/rooms/:room_uid/files", authMiddleware, messageHandler.UploadFile)

	engine.POST("/friends/requests", authMiddleware, friendHandler.SendRequest)
	engine.POST("/friends/requests/:request_id/accept", authMiddleware, friendHandler.AcceptRequest)
	engine.POST("/friends/requests/:request_id/reject", authMiddleware, friendHandler.RejectRequest)
	engine.DELETE("/friends/requests/:request_id", authMiddleware, friendHandler.CancelRequest)
	engine.GET("/friends", authMiddleware, friendHandler.ListFriends)
	engine.GET("/friends/requests", authMiddleware, friendHandler.PendingRequests)

	engine.GET("/ws/rooms/:room_uid", roomWS.Handle)
	engine.GET("/ws/notifications", notifyWS.Handle)

	engine.Static("/uploads", cfg.Uploads.Dir)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.RegisterDebugRoutes(engine, audit, cfg.Server.Debug)

	if err := engine.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
