package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"portal-chat/internal/config"
	"portal-chat/internal/db"
	"portal-chat/internal/handlers"
	"portal-chat/internal/middleware"
	"portal-chat/internal/objstore"
	"portal-chat/internal/observability"
	"portal-chat/internal/repositories"
	"portal-chat/internal/telemetry"
	"portal-chat/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}

	log := newLogger(cfg)

	shutdownTracing := setupTracing(cfg, log)
	defer shutdownTracing()

	database, err := db.Connect(cfg.Database.DSN, log)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	publisher := observability.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, log)
	observability.SetPublisher(publisher)
	defer publisher.Close()

	audit := telemetry.NewAuditEmitter("audit.chat", "portal-chat", "production", log)

	store, err := objstore.NewLocalStore(cfg.Storage.Root)
	if err != nil {
		log.Fatalf("failed to open object store: %v", err)
	}
	signer := objstore.NewSigner(cfg.Storage.SignKey, "/files")

	messageRepo := repositories.NewMessageRepo(database)
	profileRepo := repositories.NewProfileRepo(database)
	sessionRepo := repositories.NewSessionRepo(database)

	hub := ws.NewFeedHub(log)

	chatHandler := handlers.NewChatHandler(messageRepo, profileRepo, hub, audit, log)
	attachmentHandler := handlers.NewAttachmentHandler(store, signer, cfg.Storage.SignedTTL, log)
	feedWS := ws.NewFeedWebSocketHandler(hub, sessionRepo, log)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("portal-chat"))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(sessionRepo)

	router.GET("/peers", authMiddleware, chatHandler.ListPeers)
	router.GET("/messages/:peer_id", authMiddleware, chatHandler.GetConversation)
	router.POST("/messages/:peer_id", authMiddleware, chatHandler.SendMessage)
	router.PUT("/messages/:peer_id/:message_id", authMiddleware, chatHandler.EditMessage)
	router.DELETE("/messages/:peer_id/:message_id", authMiddleware, chatHandler.DeleteMessage)
	router.POST("/unread/recount", authMiddleware, chatHandler.RecountUnread)

	router.POST("/attachments", authMiddleware, attachmentHandler.Upload)
	router.POST("/attachments/sign", authMiddleware, attachmentHandler.Sign)
	router.GET("/files/*path", attachmentHandler.Serve)

	router.GET("/ws/feed", feedWS.Handle)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	log.WithField("port", cfg.Server.Port).Info("portal-chat listening")
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func newLogger(cfg config.Config) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Logging.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{})
	}
	return log
}

// setupTracing installs the OTLP trace exporter when an endpoint is
// configured; otherwise tracing stays on the default no-op provider.
func setupTracing(cfg config.Config, log *logrus.Logger) func() {
	if cfg.Telemetry.OTLPEndpoint == "" {
		return func() {}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.Telemetry.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		log.WithError(err).Warn("otlp exporter init failed, tracing disabled")
		return func() {}
	}

	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(provider)

	return func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("trace provider shutdown failed")
		}
	}
}
