package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/talmeida/linktrace/internal/app/repository"
	"github.com/talmeida/linktrace/internal/app/service"
	"go.uber.org/zap"
)

const defaultRangeDays = 7

// DashDeps groups dependencies required by the dashboard handlers.
type DashDeps struct {
	Logger     *zap.Logger
	Dashboard  *service.Dashboard
	AccessLogs repository.AccessLogRepository
}

// DashHandler serves the analytics endpoints.
type DashHandler struct {
	logger     *zap.Logger
	dashboard  *service.Dashboard
	accessLogs repository.AccessLogRepository
}

// NewDashHandler creates a dashboard handler.
func NewDashHandler(deps DashDeps) *DashHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashHandler{
		logger:     logger,
		dashboard:  deps.Dashboard,
		accessLogs: deps.AccessLogs,
	}
}

// Register wires dashboard routes onto the provided router group.
func (h *DashHandler) Register(dash fiber.Router) {
	dash.Get("/overview", h.Overview)
	dash.Get("/links/:slug", h.LinkStats)
	dash.Get("/links/:slug/logs", h.Logs)
}

// Overview handles GET /dash/overview.
func (h *DashHandler) Overview(c *fiber.Ctx) error {
	rr, err := h.resolveRange(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	overview, err := h.dashboard.Overview(requestContext(c), rr, c.QueryInt("top"))
	if err != nil {
		h.logger.Error("failed to compute overview", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to compute overview",
		})
	}
	return c.JSON(overview)
}

// LinkStats handles GET /dash/links/:slug.
func (h *DashHandler) LinkStats(c *fiber.Ctx) error {
	rr, err := h.resolveRange(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	stats, err := h.dashboard.LinkStats(requestContext(c),
		c.Params("slug"), rr, c.Query("group_by", "day"), c.QueryInt("top"))
	if err != nil {
		h.logger.Error("failed to compute link stats",
			zap.Error(err), zap.String("slug", c.Params("slug")))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to compute link stats",
		})
	}
	return c.JSON(stats)
}

// Logs handles GET /dash/links/:slug/logs, newest first.
func (h *DashHandler) Logs(c *fiber.Ctx) error {
	limit, offset := pagination(c, 50, 500)

	entries, total, err := h.accessLogs.ListBySlug(requestContext(c), c.Params("slug"), limit, offset)
	if err != nil {
		h.logger.Error("failed to list access logs", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list access logs",
		})
	}

	return c.JSON(fiber.Map{
		"logs":   entries,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *DashHandler) resolveRange(c *fiber.Ctx) (service.ResolvedRange, error) {
	return service.ResolveRange(
		c.Query("from"),
		c.Query("to"),
		c.Query("tz", "UTC"),
		defaultRangeDays,
	)
}
