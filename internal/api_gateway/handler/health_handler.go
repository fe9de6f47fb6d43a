package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger is a dependency the gateway needs to serve requests
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	checks  map[string]Pinger
	timeout time.Duration
	logger  *slog.Logger
}

func NewHealthHandler(logger *slog.Logger, checks map[string]Pinger, timeout time.Duration) *HealthHandler {
	return &HealthHandler{
		checks:  checks,
		timeout: timeout,
		logger:  logger,
	}
}

// Check pings every dependency; any failure answers 503
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			h.logger.Warn("Health check failed", "dependency", name, "error", err)
			results[name] = "down"
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		results[name] = "up"
	}

	c.JSON(code, gin.H{
		"status":    status,
		"checks":    results,
		"timestamp": time.Now().UTC(),
	})
}
