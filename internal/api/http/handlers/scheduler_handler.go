package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/identity-sync/internal/scheduler"
)

// SchedulerHandler controls the cron scheduler at runtime.
type SchedulerHandler struct {
	scheduler *scheduler.Scheduler
}

// NewSchedulerHandler returns a new handler instance.
func NewSchedulerHandler(sched *scheduler.Scheduler) *SchedulerHandler {
	return &SchedulerHandler{scheduler: sched}
}

// Status reports the scheduler state.
func (h *SchedulerHandler) Status(c *fiber.Ctx) error {
	return c.JSON(h.scheduler.GetStatus())
}

// Start enables scheduled passes.
func (h *SchedulerHandler) Start(c *fiber.Ctx) error {
	if err := h.scheduler.Start(); err != nil {
		return err
	}
	return c.JSON(h.scheduler.GetStatus())
}

// Stop disables scheduled passes.
func (h *SchedulerHandler) Stop(c *fiber.Ctx) error {
	h.scheduler.Stop()
	return c.JSON(h.scheduler.GetStatus())
}
