package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/etiktak/etiktak_backend/internal/client"
	"github.com/etiktak/etiktak_backend/internal/config"
	"github.com/etiktak/etiktak_backend/internal/facade"
	"github.com/etiktak/etiktak_backend/internal/hashing"
	"github.com/etiktak/etiktak_backend/internal/metrics"
	"github.com/etiktak/etiktak_backend/internal/middleware"
	"github.com/etiktak/etiktak_backend/internal/notification"
	"github.com/etiktak/etiktak_backend/internal/routes"
	"github.com/etiktak/etiktak_backend/internal/store"
	"github.com/etiktak/etiktak_backend/internal/verification"
)

// Backends are the external systems the server talks to. Any of them may be
// nil in development: the store falls back to memory, SMS are logged and
// idempotency keys are ignored.
type Backends struct {
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Sender notification.Sender
}

// Server wraps the Fiber application and shared dependencies.
type Server struct {
	app    *fiber.App
	cfg    config.Config
	facade *facade.Facade
}

// New wires the services and delegates route wiring to routes.Setup.
func New(cfg config.Config, b Backends, logger *slog.Logger) (*Server, error) {
	if !cfg.IsDev() {
		if b.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", cfg.AppEnv)
		}
		if b.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", cfg.AppEnv)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var st store.Store
	if b.DB != nil {
		st = store.NewPostgresStore(b.DB)
	} else {
		logger.Warn("no database configured, using in-memory store")
		st = store.NewMemoryStore()
	}

	sender := b.Sender
	if sender == nil {
		sender = notification.NewLoggerSender(logger)
	}

	clients := client.NewService(st, hashing.NewBcrypt(cfg.BcryptCost), logger, client.WithMetrics(m))
	verifications := verification.NewService(st, sender, verification.Config{
		ChallengeDigits: cfg.ChallengeDigits,
		MessageTemplate: cfg.MessageTemplate,
	}, logger, verification.WithMetrics(m))
	f := facade.New(clients, verifications)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: middleware.ErrorHandler(logger),
	})
	routes.Setup(app, routes.Deps{
		Cfg:      cfg,
		DB:       b.DB,
		Cache:    b.Cache,
		Logger:   logger,
		Facade:   f,
		Gatherer: reg,
	})

	return &Server{app: app, cfg: cfg, facade: f}, nil
}

// App exposes the Fiber application, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Facade exposes the service entry points to background consumers.
func (s *Server) Facade() *facade.Facade {
	return s.facade
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
