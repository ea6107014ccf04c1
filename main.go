package main

import (
	"context"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"social-service/internal/bus"
	"social-service/internal/db"
	"social-service/internal/handlers"
	"social-service/internal/identity"
	"social-service/internal/middleware"
	"social-service/internal/notifications"
	"social-service/internal/observability"
	"social-service/internal/rabbitmq"
	"social-service/internal/repositories"
	"social-service/internal/telemetry"
	"social-service/internal/ws"
)

func main() {
	ctx := context.Background()

	database, err := db.Connect()
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	shutdownTracing, err := observability.InitTracing(ctx, "social-service")
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}
	defer shutdownTracing(ctx)

	amqpURL := os.Getenv("AMQP_URL")
	if opsPublisher, err := observability.NewAMQPPublisher(amqpURL, getEnv("OPS_EXCHANGE", "ops.events")); err != nil {
		log.Printf("ops event publishing disabled: %v", err)
	} else {
		observability.SetPublisher(opsPublisher)
		defer opsPublisher.Close()
	}

	auditPublisher := rabbitmq.NewPublisher(amqpURL, getEnv("AUDIT_EXCHANGE", "audit.events"))
	defer auditPublisher.Close()
	audit := telemetry.NewAuditEmitter(auditPublisher, "audit_log.social", "social-service", getEnv("ENVIRONMENT", "development"))

	directory := identity.NewHTTPDirectory(getEnv("AUTH_URL", "http://localhost:8081"), nil)

	var eventBus bus.Bus
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		redisBus, err := bus.NewRedisBus(ctx, redisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		eventBus = redisBus
	} else {
		log.Printf("REDIS_URL not set, broadcasting in-process only")
		eventBus = bus.NewLocalBus()
	}
	defer eventBus.Close()

	chatRepo := repositories.NewChatRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	friendRepo := repositories.NewFriendshipRepo(database)
	notificationRepo := repositories.NewNotificationRepo(database)

	notifier := notifications.NewAggregator(notificationRepo, eventBus)
	hub := ws.NewHub(eventBus)

	chatHandler := handlers.NewChatHandler(chatRepo, directory, eventBus, audit)
	messageHandler := handlers.NewMessageHandler(chatRepo, messageRepo, directory, eventBus, notifier, audit)
	friendshipHandler := handlers.NewFriendshipHandler(friendRepo, directory, eventBus, notifier, audit)
	notificationHandler := handlers.NewNotificationHandler(notificationRepo)
	subscribeHandler := ws.NewSubscribeHandler(hub, chatRepo, directory)

	router := gin.Default()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("social-service"))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(directory)

	router.POST("/chats", authMiddleware, chatHandler.CreateChat)
	router.GET("/chats", authMiddleware, chatHandler.ListChats)
	router.POST("/chats/:chat_id/participants", authMiddleware, chatHandler.AddParticipants)
	router.POST("/chats/:chat_id/leave", authMiddleware, chatHandler.LeaveChat)
	router.DELETE("/chats/:chat_id", authMiddleware, chatHandler.DeleteChat)
	router.PUT("/chats/:chat_id/mute", authMiddleware, chatHandler.SetMuted)
	router.GET("/chats/:chat_id/messages", authMiddleware, messageHandler.GetMessages)
	router.POST("/chats/:chat_id/messages", authMiddleware, messageHandler.PostMessage)

	router.POST("/friendships", authMiddleware, friendshipHandler.SendRequest)
	router.POST("/friendships/:id/accept", authMiddleware, friendshipHandler.Accept)
	router.POST("/friendships/:id/reject", authMiddleware, friendshipHandler.Reject)
	router.DELETE("/friendships/:id", authMiddleware, friendshipHandler.Cancel)
	router.GET("/friendships/incoming", authMiddleware, friendshipHandler.ListIncoming)
	router.GET("/friendships/outgoing", authMiddleware, friendshipHandler.ListOutgoing)
	router.GET("/friends", authMiddleware, friendshipHandler.ListFriends)
	router.DELETE("/friends/:user_id", authMiddleware, friendshipHandler.Unfriend)

	router.GET("/notifications", authMiddleware, notificationHandler.List)
	router.PUT("/notifications/:id/read", authMiddleware, notificationHandler.MarkRead)
	router.DELETE("/notifications/:id", authMiddleware, notificationHandler.Delete)

	router.GET("/ws", subscribeHandler.Handle)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	port := getEnv("PORT", "8083")
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
