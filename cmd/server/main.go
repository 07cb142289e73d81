package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"go-predict/internal/cache"
	"go-predict/internal/chat"
	"go-predict/internal/config"
	"go-predict/internal/db"
	"go-predict/internal/mail"
	"go-predict/internal/middleware"
	"go-predict/internal/sms"
	"go-predict/internal/user"
	"go-predict/internal/wallet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	// Platform layer: Postgres + Redis.
	database, err := db.NewDatabase(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	log.Info("connected to PostgreSQL")

	ctx := context.Background()
	if err := database.AutoMigrate(ctx); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	log.Info("database schema initialized")

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	log.Info("connected to Redis")

	kv := cache.New(redisClient)

	// External collaborators.
	ledger := wallet.NewClient(cfg.WalletBaseURL, kv)
	smsClient := sms.NewClient(cfg.SMSBaseURL)
	mailClient := mail.NewClient(cfg.MailBaseURL)

	// Three codes per phone per burst, refilling one per minute.
	codeLimiter := middleware.NewKeyedLimiter(rate.Every(time.Minute), 3)
	go func() {
		for range time.Tick(10 * time.Minute) {
			codeLimiter.Cleanup(time.Hour)
		}
	}()

	// User feature.
	userRepo := user.NewRepository(database.Conn)
	userService := user.NewService(userRepo, kv, ledger, smsClient, mailClient,
		codeLimiter, cfg.JWTSecret, cfg.PublicBaseURL)
	userHandler := user.NewHandler(userService)

	// Chat feature.
	chatRepo := chat.NewRepository(database.Conn)
	hub := chat.NewHub(redisClient)
	chatService := chat.NewService(chatRepo, hub)
	chatHandler := chat.NewHandler(chatService, hub)

	// The user-info response includes the unread-notification count.
	userService.SetNotifications(chatService)

	go hub.Run()
	go hub.SubscribeToRedis(ctx)

	authMiddleware := middleware.NewAuthMiddleware(userService)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	// Public routes.
	r.Post("/auth/request-code", userHandler.RequestCode)
	r.Post("/auth/verify", userHandler.VerifyCode)
	r.Get("/api/leaderboard", userHandler.Leaderboard)
	r.Get("/confirm-email", userHandler.ConfirmEmail)

	// Protected routes.
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)

		r.Get("/api/users/{id}", userHandler.GetUser)
		r.Get("/api/users/{id}/trades", userHandler.GetTrades)
		r.Put("/api/users/me", userHandler.UpdateMe)

		r.Get("/api/chat/messages", chatHandler.GetRoomMessages)
		r.Post("/api/chat/messages", chatHandler.CreateMessage)
		r.Post("/api/chat/messages/{id}/read", chatHandler.SetRead)
		r.Get("/api/chat/notifications", chatHandler.GetNotifications)

		r.Get("/ws", chatHandler.ServeWs)
	})

	log.Infof("server starting on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, r); err != nil {
		log.Fatal(err)
	}
}
