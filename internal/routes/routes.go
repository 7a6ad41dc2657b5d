package routes

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/etiktak/etiktak_backend/internal/config"
	"github.com/etiktak/etiktak_backend/internal/facade"
	"github.com/etiktak/etiktak_backend/internal/middleware"
)

// Deps aggregates shared dependencies required to wire routes. DB and Cache
// are optional; without Cache idempotency keys are ignored.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Logger   *slog.Logger
	Facade   *facade.Facade
	Gatherer prometheus.Gatherer
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) {
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		// Anonymous client creation has no caller to bind a key to, so a
		// replay would hand its device token to whoever guessed the key.
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger,
			"/service/client/create/", "/service/client/create"))
	}

	RegisterHealthRoutes(app, d)

	svc := app.Group("/service")
	RegisterClientRoutes(svc.Group("/client"), d.Facade)
	RegisterVerificationRoutes(svc.Group("/verification"), d.Facade)
}
