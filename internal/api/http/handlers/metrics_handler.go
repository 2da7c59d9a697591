package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/identity-sync/internal/observability"
)

// MetricsHandler serves in-memory counters.
type MetricsHandler struct {
	metrics *observability.Metrics
}

// NewMetricsHandler returns a new handler instance.
func NewMetricsHandler(metrics *observability.Metrics) *MetricsHandler {
	return &MetricsHandler{metrics: metrics}
}

// Snapshot returns all counters.
func (h *MetricsHandler) Snapshot(c *fiber.Ctx) error {
	return c.JSON(h.metrics.GetSnapshot())
}
