package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fintra/authserver/config"
	"github.com/fintra/authserver/internal/db"
	"github.com/fintra/authserver/internal/handlers"
	"github.com/fintra/authserver/internal/logging"
	"github.com/fintra/authserver/internal/mq"
	"github.com/fintra/authserver/internal/notify"
	"github.com/fintra/authserver/internal/ratelimit"
	"github.com/fintra/authserver/internal/services"
	"github.com/fintra/authserver/internal/storage"
	"github.com/fintra/authserver/internal/store"
	"github.com/fintra/authserver/internal/token"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

// Server wraps the HTTP server and its backing connections.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	broker     mq.Backend
	cache      *redis.Client
}

// New constructs a Server with all collaborators wired from config.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	logger := logging.New(cfg.LogLevel)

	if strings.TrimSpace(cfg.JWT.AccessSecret) == "" || strings.TrimSpace(cfg.JWT.RefreshSecret) == "" {
		return nil, errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET are required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	imageStore, err := newStorage(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	broker, sender, err := newSender(ctx, cfg.MQ, logger)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	var cache *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			_ = dbConn.Close()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		cache = redis.NewClient(opt)
		if err := cache.Ping(ctx).Err(); err != nil {
			_ = dbConn.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
	}

	userRepo := store.NewUserRepository(dbConn)
	otpRepo := store.NewOtpRepository(dbConn)

	tokens := token.NewIssuer(cfg.JWT)
	otpService := services.NewOTPService(otpRepo, sender, cfg.OTP.TTL)
	accountService := services.NewAccountService(userRepo, otpRepo, imageStore, tokens, sender, logger)
	limiter := ratelimit.New(cache, cfg.OTP.RateLimit, cfg.OTP.RateWindow)

	authHandler := handlers.NewAuthHandler(accountService, otpService, tokens, limiter, logger)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authHandler)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		broker:     broker,
		cache:      cache,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown closes the server and its backing connections.
func (s *Server) Shutdown() error {
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.broker != nil {
		_ = s.broker.Close()
	}
	if s.cache != nil {
		_ = s.cache.Close()
	}
	return s.httpServer.Close()
}

func newStorage(ctx context.Context, cfg config.StorageConfig) (*storage.Storage, error) {
	var (
		backend storage.ObjectStorage
		err     error
	)
	switch cfg.Backend {
	case config.StorageBackendGCS:
		backend, err = storage.NewGCSClient(ctx, cfg.GCS)
	case config.StorageBackendMinio:
		backend, err = storage.NewMinioClient(cfg.Minio)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	wrapped := storage.NewStorage(backend, cfg.PublicBaseURL)
	if err := wrapped.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return wrapped, nil
}

// newSender picks the notification path: a broker-backed sender when a
// broker is configured, otherwise the logging stub.
func newSender(ctx context.Context, cfg config.MQConfig, logger *slog.Logger) (mq.Backend, notify.Sender, error) {
	switch cfg.Backend {
	case config.MQBackendRabbitMQ:
		broker, err := mq.NewRabbit(cfg.RabbitMQ)
		if err != nil {
			return nil, nil, err
		}
		return broker, notify.NewQueueSender(broker, cfg.EmailQueue, cfg.SMSQueue), nil
	case config.MQBackendPubSub:
		broker, err := mq.NewPubSub(ctx, cfg.PubSub)
		if err != nil {
			return nil, nil, err
		}
		return broker, notify.NewQueueSender(broker, cfg.EmailQueue, cfg.SMSQueue), nil
	case config.MQBackendNone:
		return nil, notify.NewLogSender(logger), nil
	default:
		return nil, nil, fmt.Errorf("unknown mq backend %q", cfg.Backend)
	}
}
