package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"go-messenger/internal/chat"
	"go-messenger/internal/config"
	"go-messenger/internal/db"
	"go-messenger/internal/middleware"
	"go-messenger/internal/notify"
	"go-messenger/internal/presence"
	"go-messenger/internal/signaling"
	"go-messenger/internal/upload"
	"go-messenger/internal/user"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("configuration invalid")
	}

	var logger zerolog.Logger
	if cfg.Dev {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger()
	} else {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	database, err := db.NewDatabase(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection failed")
	}
	defer database.Close()
	if err := database.AutoMigrate(); err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}
	logger.Info().Msg("connected to PostgreSQL")

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer redisClient.Close()
	logger.Info().Msg("connected to Redis")

	tracker := presence.NewTracker(redisClient, cfg.PresenceTTL, logger)

	userRepo := user.NewRepository(database.Conn)
	userService := user.NewService(userRepo, cfg.JWTSecret)
	userHandler := user.NewHandler(userService)

	chatRepo := chat.NewRepository(database.Conn)

	var gateway notify.PushGateway
	if cfg.PushGatewayURL != "" {
		gateway = notify.NewHTTPGateway(cfg.PushGatewayURL)
	} else {
		gateway = notify.NewNoopGateway(logger)
	}
	dispatcher := notify.NewDispatcher(chatRepo, tracker, gateway, cfg.PushTimeout, logger)

	hub := chat.NewHub(chatRepo, dispatcher, logger)
	hubCtx, stopHub := context.WithCancel(context.Background())
	go hub.Run(hubCtx)

	chatHandler := chat.NewHandler(hub, chatRepo, tracker, logger)

	signalRegistry := signaling.NewRegistry()
	signalHandler := signaling.NewHandler(signalRegistry, tracker, logger)

	uploadHandler, err := upload.NewHandler(cfg.UploadDir, cfg.UploadMaxBytes, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("upload directory unavailable")
	}

	auth := middleware.NewAuth(userService)

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Post("/register", userHandler.Register)
	r.Post("/login", userHandler.Login)
	r.Handle("/uploads/*", uploadHandler.Serve())

	r.Group(func(r chi.Router) {
		r.Use(auth.Handle)

		r.Get("/api/users/search", userHandler.SearchUsers)
		r.Post("/api/push-token", userHandler.RegisterPushToken)
		r.Post("/api/conversations", chatHandler.StartConversation)
		r.Get("/api/conversations", chatHandler.GetConversations)
		r.Get("/api/messages", chatHandler.GetChatHistory)
		r.Post("/api/upload", uploadHandler.Upload)

		r.Get("/ws", chatHandler.ServeWs)
		r.Get("/ws/signal", signalHandler.ServeWs)
	})

	srv := &http.Server{
		Addr:        cfg.Addr,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	stopHub()

	logger.Info().Msg("server stopped")
}
