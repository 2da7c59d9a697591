package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/identity-sync/internal/repository"
	"github.com/spec-kit/identity-sync/internal/service"
	"github.com/spec-kit/identity-sync/pkg/util"
)

// SyncHandler exposes pass triggering and pass history.
type SyncHandler struct {
	syncService *service.SyncService
	passes      repository.PassRepository
}

// NewSyncHandler returns a new handler instance. The pass repository may be
// nil when audit persistence is disabled.
func NewSyncHandler(syncService *service.SyncService, passes repository.PassRepository) *SyncHandler {
	return &SyncHandler{syncService: syncService, passes: passes}
}

// Run triggers one reconciliation pass and blocks until it finishes.
func (h *SyncHandler) Run(c *fiber.Ctx) error {
	res, err := h.syncService.RunPass(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"pass_id": res.PassID,
		"stats":   res.Stats(),
	})
}

// Status reports whether a pass is running in this process and the last
// completed pass summary, if one is cached.
func (h *SyncHandler) Status(c *fiber.Ctx) error {
	response := fiber.Map{"running": h.syncService.Running()}
	if last, ok := h.syncService.LastPass(c.UserContext()); ok {
		response["last_pass"] = last
	}
	return c.JSON(response)
}

// ListPasses returns recent pass summaries.
func (h *SyncHandler) ListPasses(c *fiber.Ctx) error {
	if h.passes == nil {
		return util.NewNotFound("admin.list_passes", "pass history is not persisted")
	}
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	records, err := h.passes.ListPasses(c.UserContext(), limit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"passes": records})
}

// GetPass returns one pass summary with its audit actions.
func (h *SyncHandler) GetPass(c *fiber.Ctx) error {
	if h.passes == nil {
		return util.NewNotFound("admin.get_pass", "pass history is not persisted")
	}
	id := c.Params("id")

	pass, err := h.passes.GetPass(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return util.NewNotFound("admin.get_pass", "pass not found")
		}
		return err
	}

	actions, err := h.passes.ListActions(c.UserContext(), id, 500)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"pass":    pass,
		"actions": actions,
	})
}
