package routes

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/daoledger/daoledger/internal/apperr"
	"github.com/daoledger/daoledger/internal/config"
	"github.com/daoledger/daoledger/internal/engine"
	"github.com/daoledger/daoledger/internal/metrics"
	"github.com/daoledger/daoledger/internal/middleware"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg     config.Config
	Engine  *engine.Engine
	DB      *pgxpool.Pool
	Cache   *redis.Client
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	// AccessLog enables the plain text access log on stdout.
	AccessLog bool
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Engine == nil {
		return errors.New("engine is required")
	}
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDevelopment() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	if d.AccessLog {
		// [HH:MM:SS] 200 -  145ms METHOD /path
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
		}))
	}
	app.Use(middleware.Audit(d.Logger))

	// Health
	RegisterHealthRoutes(app, d)

	api := app.Group("/api/v1",
		middleware.Caller(),
		middleware.WriteRateLimit(d.Cache, d.Cfg.WriteRateLimit, d.Logger),
		middleware.Idempotency(d.Cache, middleware.IdempotencyConfig{TTL: d.Cfg.IdempotencyTTL}, d.Logger),
	)
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterAccountRoutes(api, d.Engine)
	RegisterTransferRoutes(api, d.Engine, d.Cfg.ReceiverTimeout)
	RegisterGovernanceRoutes(api, d.Engine)

	return nil
}

// ErrorHandler renders domain and fiber errors as JSON.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := http.StatusInternalServerError
		body := fiber.Map{"error": "internal", "message": "internal server error"}

		var fe *fiber.Error
		var de *apperr.Error
		switch {
		case errors.As(err, &de):
			status = de.Code.HTTPStatus()
			body = fiber.Map{"error": string(de.Code), "message": de.Message}
		case errors.As(err, &fe):
			status = fe.Code
			body = fiber.Map{"error": http.StatusText(fe.Code), "message": fe.Message}
		}
		if status >= http.StatusInternalServerError && logger != nil {
			logger.Error("unhandled error", slog.String("path", c.Path()), slog.Any("error", err))
		}
		if id := middleware.RequestIDFrom(c); id != "" {
			body["request_id"] = id
		}
		return c.Status(status).JSON(body)
	}
}
