package handler

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const readinessTimeout = 2 * time.Second

// RegistryChecker probes connectivity to the academic registry.
type RegistryChecker interface {
	CheckConnection(ctx context.Context) error
}

// RegisterHealthRoutes wires liveness and readiness probes. sqlDB and
// rdb are nil when the optional audit trail or rate limiter backend is
// not configured; disabled backends never fail readiness.
func RegisterHealthRoutes(app fiber.Router, registry RegistryChecker, sqlDB *sql.DB, rdb *redis.Client) {
	app.Get("/livez", LivezHandler())
	app.Get("/readyz", ReadyzHandler(registry, sqlDB, rdb))
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	}
}

func ReadyzHandler(registry RegistryChecker, sqlDB *sql.DB, rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), readinessTimeout)
		defer cancel()

		checks := fiber.Map{}
		ready := true

		registryStatus := "ok"
		if registry == nil {
			registryStatus = "disabled"
		} else if err := registry.CheckConnection(ctx); err != nil {
			registryStatus = "down"
			ready = false
		}
		checks["registry"] = registryStatus

		pgStatus := "disabled"
		if sqlDB != nil {
			pgStatus = "ok"
			if err := sqlDB.PingContext(ctx); err != nil {
				pgStatus = "down"
				ready = false
			}
		}
		checks["postgres"] = pgStatus

		redisStatus := "disabled"
		if rdb != nil {
			redisStatus = "ok"
			if err := rdb.Ping(ctx).Err(); err != nil {
				redisStatus = "down"
				ready = false
			}
		}
		checks["redis"] = redisStatus

		status := "ready"
		statusCode := fiber.StatusOK
		if !ready {
			status = "not_ready"
			statusCode = fiber.StatusServiceUnavailable
		}

		return c.Status(statusCode).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	}
}
