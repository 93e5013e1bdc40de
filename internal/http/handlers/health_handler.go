package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

// HealthCheck проверяет одну зависимость сервиса.
type HealthCheck func(ctx context.Context) error

// HealthHandler предоставляет endpoint для проверки здоровья сервиса.
type HealthHandler struct {
	checks map[string]HealthCheck
}

// NewHealthHandler создаёт health handler. rdb может быть nil, если Redis не настроен.
func NewHealthHandler(db *sqlx.DB, rdb *redis.Client) *HealthHandler {
	checks := map[string]HealthCheck{
		"database": db.PingContext,
	}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}
	}
	return &HealthHandler{checks: checks}
}

// HealthResponse представляет ответ health check.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// Health обрабатывает GET /health.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.checks))
	status := "healthy"
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			checks[name] = "unhealthy: " + err.Error()
			status = "unhealthy"
			continue
		}
		checks[name] = "healthy"
	}

	statusCode := http.StatusOK
	if status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Checks:    checks,
	})
}
