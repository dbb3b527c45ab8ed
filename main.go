package main

import (
	"context"
	"flag"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"chat-hub/internal/blocklist"
	"chat-hub/internal/config"
	"chat-hub/internal/db"
	"chat-hub/internal/handlers"
	"chat-hub/internal/hub"
	"chat-hub/internal/identity"
	"chat-hub/internal/logging"
	"chat-hub/internal/middleware"
	"chat-hub/internal/notify"
	"chat-hub/internal/observability"
	"chat-hub/internal/rabbitmq"
	"chat-hub/internal/repositories"
	"chat-hub/internal/telemetry"
	"chat-hub/internal/ws"
)

const serviceName = "chat-hub"

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.OTLPEndpoint, serviceName)
	if err != nil {
		logger.Fatal("init tracing", zap.Error(err))
	}
	defer shutdownTracing(ctx)

	database, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("connect database", zap.Error(err))
	}
	defer database.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddress,
		DB:   cfg.RedisDB,
	})
	defer redisClient.Close()
	blocks := blocklist.NewRedisStore(redisClient)

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	defer publisher.Close()

	notifyService := notify.NewService(publisher, logger)
	auditEmitter := telemetry.NewAuditEmitter(publisher, logger, "audit.logs", serviceName, cfg.Environment)

	verifier := identity.NewHMACVerifier([]byte(cfg.JWTSecret))

	connectionRepo := repositories.NewConnectionRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	receiptRepo := repositories.NewReceiptRepo(database)
	unreadRepo := repositories.NewUnreadRepo(database)
	groupDirectory := repositories.NewGroupDirectoryRepo(database)

	router := hub.NewRouter(connectionRepo, groupDirectory, blocks)
	gateway := hub.NewGateway()
	coordinator := hub.NewUnreadCoordinator(connectionRepo, unreadRepo, notifyService, logger)

	service := hub.NewService(hub.ServiceDeps{
		Logger:      logger,
		Connections: connectionRepo,
		Messages:    messageRepo,
		Receipts:    receiptRepo,
		Groups:      groupDirectory,
		Router:      router,
		Gateway:     gateway,
		Coordinator: coordinator,
		Attachments: notifyService,
		Audit:       auditEmitter,
		ConnTTL:     cfg.ConnectionTTL,
		MediaRoots:  cfg.AllowedMediaRoots,
	})

	wsHandler := ws.NewHandler(service, gateway, verifier, logger)
	historyHandler := handlers.NewHistoryHandler(router, messageRepo, receiptRepo, unreadRepo, cfg.HistoryPageSize)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware(serviceName))
	engine.Use(observability.HTTPMetricsMiddleware())

	auth := middleware.Auth(verifier)

	engine.GET("/ws", wsHandler.Handle)
	engine.GET("/conversations/:id/messages", auth, historyHandler.ListMessages)
	engine.GET("/unreads", auth, historyHandler.ListUnreads)
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterDebugRoutes(engine, auditEmitter, cfg.DebugEndpoints)

	logger.Info("starting server", zap.String("address", cfg.HTTPAddress))
	if err := engine.Run(cfg.HTTPAddress); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
