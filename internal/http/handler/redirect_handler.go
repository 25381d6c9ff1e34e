package handler

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/talmeida/linktrace/internal/app/repository"
	"github.com/talmeida/linktrace/internal/app/service"
	"go.uber.org/zap"
)

// RedirectDeps groups dependencies required by the redirect handler.
type RedirectDeps struct {
	Logger *zap.Logger
	Engine *service.RedirectEngine
}

// RedirectHandler serves the public hot path: slug in, 302 out.
type RedirectHandler struct {
	logger *zap.Logger
	engine *service.RedirectEngine
}

// NewRedirectHandler creates a redirect handler with the provided dependencies.
func NewRedirectHandler(deps RedirectDeps) *RedirectHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedirectHandler{
		logger: logger,
		engine: deps.Engine,
	}
}

// Register wires redirect routes onto the provided router.
func (h *RedirectHandler) Register(router fiber.Router) {
	router.Get("/", h.Health)
	router.Get("/health", h.Health)
	router.Get("/:slug", h.Resolve)
}

// Health is a simple root endpoint so we know the service is running.
func (h *RedirectHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": "linktrace",
		"status":  "ok",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Resolve handles GET /:slug and issues the redirect. Logging, enrichment
// and callback dispatch all run behind the engine, off this path.
func (h *RedirectHandler) Resolve(c *fiber.Ctx) error {
	slug := c.Params("slug")
	if slug == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "missing slug",
		})
	}

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	outcome, err := h.engine.Resolve(ctx, slug, service.RequestContext{
		RawQuery:       string(c.Request().URI().QueryString()),
		IP:             c.IP(),
		UserAgent:      c.Get(fiber.HeaderUserAgent),
		Referer:        c.Get(fiber.HeaderReferer),
		AcceptLanguage: c.Get(fiber.HeaderAcceptLanguage),
		DNT:            c.Get("DNT"),
		Connection:     c.Get(fiber.HeaderConnection),
		AcceptEncoding: c.Get(fiber.HeaderAcceptEncoding),
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrLinkNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "short link not found",
			})
		case errors.Is(err, service.ErrLinkGone):
			return c.Status(fiber.StatusGone).JSON(fiber.Map{
				"error": "link is no longer available",
			})
		default:
			h.logger.Error("failed to resolve slug", zap.Error(err), zap.String("slug", slug))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "internal server error",
			})
		}
	}

	return c.Redirect(outcome.Destination, fiber.StatusFound)
}
