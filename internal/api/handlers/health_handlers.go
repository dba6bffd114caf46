package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stockline/stockline_service/internal/domain/entities"
)

const readinessTimeout = 2 * time.Second

// CheckFunc reports whether a dependency is reachable.
type CheckFunc func(ctx context.Context) error

// StatsSource reports price cache occupancy.
type StatsSource interface {
	Stats() entities.CacheStats
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	checks    map[string]CheckFunc
	stats     StatsSource
	logger    *zap.Logger
	version   string
	startTime time.Time
}

// NewHealthHandler creates a new health handler. checks are run by the
// readiness probe only.
func NewHealthHandler(checks map[string]CheckFunc, stats StatsSource, logger *zap.Logger, version string) *HealthHandler {
	return &HealthHandler{
		checks:    checks,
		stats:     stats,
		logger:    logger,
		version:   version,
		startTime: time.Now(),
	}
}

// Health returns process information and cache occupancy
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"version":   h.version,
		"uptime":    time.Since(h.startTime).Round(time.Second).String(),
		"timestamp": time.Now().UTC(),
		"cache":     h.stats.Stats(),
	})
}

// Liveness returns 200 while the process is serving
// GET /live
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// Readiness runs every dependency check
// GET /ready
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]string, len(names))
	statusCode := http.StatusOK
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			results[name] = err.Error()
			statusCode = http.StatusServiceUnavailable
			h.logger.Warn("Readiness check failed", zap.String("check", name), zap.Error(err))
			continue
		}
		results[name] = "ok"
	}

	status := "ready"
	if statusCode != http.StatusOK {
		status = "not_ready"
	}
	c.JSON(statusCode, gin.H{"status": status, "checks": results})
}
