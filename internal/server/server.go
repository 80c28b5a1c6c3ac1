package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/intakedesk/apiserver/config"
	"github.com/intakedesk/apiserver/internal/db"
	"github.com/intakedesk/apiserver/internal/events"
	"github.com/intakedesk/apiserver/internal/handlers"
	"github.com/intakedesk/apiserver/internal/metrics"
	"github.com/intakedesk/apiserver/internal/mq"
	"github.com/intakedesk/apiserver/internal/services"
	"github.com/intakedesk/apiserver/internal/storage"
	"github.com/intakedesk/apiserver/internal/store"
	"github.com/intakedesk/apiserver/internal/store/memstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	storage    *storage.Storage
	queue      *mq.MQ
	logger     *slog.Logger
}

// repositories groups the record store views the services need.
type repositories struct {
	users    services.UserRepository
	profiles services.ProfileRepository
	docs     services.DocumentRepository
	audit    services.AuditLog
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	logger := NewLogger(cfg)
	slog.SetDefault(logger)

	jwtSecret := strings.TrimSpace(cfg.JWTSecret)
	if jwtSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	s := &Server{logger: logger}

	repos, err := s.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	blobs, err := storage.Open(ctx, cfg)
	if err != nil {
		s.close()
		return nil, err
	}
	s.storage = blobs

	queue, err := mq.Open(ctx, cfg)
	if err != nil {
		s.close()
		return nil, err
	}
	s.queue = queue

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	userService := services.NewUserService(repos.users)
	if seed := cfg.BootstrapAdmin; seed.Email != "" {
		admin, created, err := userService.EnsureAdmin(ctx, seed.Email, seed.Name, seed.Password)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("seed admin: %w", err)
		}
		logger.Info("admin account ready", "user_id", admin.ID, "email", admin.Email, "created", created)
	}
	profileService := services.NewProfileService(
		repos.profiles,
		repos.docs,
		repos.audit,
		blobs,
		services.WithLogger(logger),
		services.WithMetrics(m),
		services.WithEvents(events.NewPublisher(queue, cfg.EventsChannel, logger)),
		services.WithCommitConcurrency(cfg.CommitConcurrency),
	)
	directoryService := services.NewDirectoryService(repos.profiles)

	profileHandler := handlers.NewProfileHandler(profileService, directoryService, cfg.MaxUploadBytes)
	adminHandler := handlers.NewAdminHandler(profileService, directoryService)
	authMiddleware := []func(http.Handler) http.Handler{
		handlers.RequireAuth(jwtSecret),
		handlers.LoadCaller(userService),
	}

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, userService, jwtSecret)
	})
	router.Route("/validate", handlers.ValidateRouter)
	router.Route("/profiles", func(r chi.Router) {
		handlers.ProfileRouter(r, profileHandler, authMiddleware...)
	})
	router.Route("/documents", func(r chi.Router) {
		handlers.DocumentRouter(r, profileHandler, authMiddleware...)
	})
	router.Route("/admin", func(r chi.Router) {
		handlers.AdminRouter(r, adminHandler, authMiddleware...)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	s.router = router
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("server configured",
		"port", port,
		"store", cfg.StoreBackend,
		"storage", cfg.StorageBackend,
		"mq", cfg.MQBackend,
	)
	return s, nil
}

func (s *Server) openStore(ctx context.Context, cfg config.Config) (repositories, error) {
	switch cfg.StoreBackend {
	case "memory":
		mem := memstore.New()
		return repositories{
			users:    mem.Users(),
			profiles: mem.Profiles(),
			docs:     mem.Documents(),
			audit:    mem.AdminActions(),
		}, nil
	case "postgres", "":
		dbConn, err := db.Open(ctx, cfg)
		if err != nil {
			return repositories{}, err
		}
		s.db = dbConn
		docs := store.NewDocumentRepository(dbConn)
		return repositories{
			users:    store.NewUserRepository(dbConn),
			profiles: store.NewProfileRepository(dbConn),
			docs:     docs,
			audit:    store.NewAdminActionRepository(dbConn),
		}, nil
	default:
		return repositories{}, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}

// NewLogger builds the process logger from LOG_FORMAT and LOG_LEVEL.
func NewLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler).With("service", "intake-apiserver")
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones and
// releases the store, storage and broker connections.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.close()
	return err
}

func (s *Server) close() {
	if s.queue != nil {
		if err := s.queue.Close(); err != nil {
			s.logger.Warn("close message queue", "error", err)
		}
	}
	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			s.logger.Warn("close storage", "error", err)
		}
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}
