package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"palpitos-backend/internal/config"
	"palpitos-backend/internal/handlers"
	"palpitos-backend/internal/middleware"
	"palpitos-backend/internal/repository"
	"palpitos-backend/internal/services"
	"palpitos-backend/internal/storage"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func Run() {
	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	setupLogger(cfg.Log.Level)

	// Connect to database
	db, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	log.Info().Msg("Database connection established")

	// Blob store
	blobStore, err := storage.NewS3Store(
		context.Background(),
		cfg.AWS.Region,
		cfg.AWS.S3Bucket,
		cfg.AWS.AccessKey,
		cfg.AWS.SecretKey,
		cfg.AWS.Endpoint,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create blob store")
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	coupleRepo := repository.NewCoupleRepository(db)
	stateRepo := repository.NewStateRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	imageRepo := repository.NewImageRepository(db)

	// Initialize services
	userService := services.NewUserService(userRepo, cfg.JWT.Secret)
	coupleService := services.NewCoupleService(coupleRepo, userRepo)
	emotionService := services.NewEmotionService(stateRepo, messageRepo, coupleRepo)
	mediaService := services.NewMediaService(imageRepo, blobStore,
		cfg.Sync.SignedURLTTL(), cfg.Sync.OrphanGrace())
	wsHub := services.NewWSHub()

	var push *services.PushNotifier
	if cfg.APNs.Enabled {
		push, err = services.NewPushNotifier(
			cfg.APNs.CertPath, cfg.APNs.CertPassword, cfg.APNs.Topic, cfg.APNs.Production)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create push notifier")
		}
	}

	// Background reclamation of blobs orphaned by failed record inserts
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go mediaService.RunOrphanSweeper(sweepCtx, cfg.Sync.OrphanSweepInterval())

	// Initialize handlers
	userHandler := handlers.NewUserHandler(userService)
	coupleHandler := handlers.NewCoupleHandler(coupleService, wsHub)
	emotionHandler := handlers.NewEmotionHandler(emotionService, coupleService, userService, wsHub, push)
	mediaHandler := handlers.NewMediaHandler(mediaService, coupleService, userService, wsHub, push)
	wsHandler := handlers.NewWebSocketHandler(wsHub, userService, coupleService, emotionService, cfg.Sync.PollInterval())

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware)

	// Routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Post("/users", userHandler.CreateUser)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(userService))

			r.Put("/users/push-token", userHandler.UpdatePushToken)

			r.Post("/couples", coupleHandler.Link)
			r.Get("/couples/me", coupleHandler.GetMine)
			r.Delete("/couples/{couple_id}", coupleHandler.Unlink)

			r.Post("/state", emotionHandler.SetState)
			r.Get("/state", emotionHandler.GetMyState)
			r.Get("/state/partner", emotionHandler.GetPartnerState)
			r.Get("/sync", emotionHandler.GetSyncStatus)

			r.Get("/messages/quota", emotionHandler.GetQuota)
			r.Post("/messages", emotionHandler.SendMessage)
			r.Get("/messages/unread", emotionHandler.GetUnread)
			r.Post("/messages/read", emotionHandler.MarkAllRead)
			r.Post("/messages/{message_id}/read", emotionHandler.MarkRead)

			r.Post("/images", mediaHandler.SendImage)
			r.Get("/images/pending", mediaHandler.ListPending)
			r.Get("/images/{image_id}/url", mediaHandler.OpenImage)
			r.Post("/images/{image_id}/close", mediaHandler.CloseImage)
			r.Post("/images/{image_id}/destroy", mediaHandler.DestroyImage)
			r.Delete("/images/{image_id}", mediaHandler.RemoveImage)
		})
	})

	// WebSocket route
	r.Get("/ws", wsHandler.HandleWebSocket)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	stopSweep()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// corsMiddleware handles CORS
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
