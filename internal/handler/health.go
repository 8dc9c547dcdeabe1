package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// Index handles GET /.
func Index(c echo.Context) error {
	return c.String(http.StatusOK, "Hello")
}

// BreakerState is implemented by publishers guarded by a circuit breaker.
type BreakerState interface {
	State() string
}

// HealthHandler reports readiness of the service's dependencies.
type HealthHandler struct {
	DB      *sql.DB
	Redis   *redis.Client // optional
	Breaker BreakerState  // optional
}

// Ready handles GET /healthz. The database must answer a ping; Redis, when
// configured, must too. The publisher's breaker state is informational.
func (h *HealthHandler) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	checks := echo.Map{}
	status := http.StatusOK

	if err := h.DB.PingContext(ctx); err != nil {
		checks["database"] = err.Error()
		status = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	if h.Redis != nil {
		if err := h.Redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			checks["redis"] = "ok"
		}
	}

	if h.Breaker != nil {
		checks["publisher"] = h.Breaker.State()
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "unavailable"
	}
	return c.JSON(status, echo.Map{"status": overall, "checks": checks})
}
