package handler

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"
	"github.com/talmeida/linktrace/internal/app/model"
	"github.com/talmeida/linktrace/internal/app/repository"
	"github.com/talmeida/linktrace/internal/app/service"
	"go.uber.org/zap"
)

const exportPageSize = 500

// AdminDeps groups dependencies required by the admin handlers.
type AdminDeps struct {
	Logger      *zap.Logger
	LinkService service.LinkService
	AccessLogs  repository.AccessLogRepository
	BaseURL     string
}

// AdminHandler implements the link management surface.
type AdminHandler struct {
	logger      *zap.Logger
	linkService service.LinkService
	accessLogs  repository.AccessLogRepository
	baseURL     string
}

// NewAdminHandler creates an admin handler with the provided dependencies.
func NewAdminHandler(deps AdminDeps) *AdminHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{
		logger:      logger,
		linkService: deps.LinkService,
		accessLogs:  deps.AccessLogs,
		baseURL:     strings.TrimRight(deps.BaseURL, "/"),
	}
}

// Register wires admin routes onto the provided router group.
func (h *AdminHandler) Register(admin fiber.Router) {
	links := admin.Group("/links")
	links.Post("/", h.CreateLink)
	links.Get("/", h.ListLinks)
	links.Get("/export", h.ExportLinks)
	links.Get("/:slug", h.GetLink)
	links.Patch("/:slug", h.UpdateLink)
	links.Delete("/:slug", h.DeleteLink)
	links.Post("/:slug/qr", h.RegenerateQR)
	links.Get("/:slug/logs", h.ListLogs)
	links.Get("/:slug/logs/export", h.ExportLogs)

	admin.Post("/import", h.ImportDocuments)
}

type shortenRequest struct {
	Name        string `json:"name" form:"name"`
	URL         string `json:"url" form:"url"`
	CallbackURL string `json:"callback_url" form:"callback_url"`
	Slug        string `json:"slug" form:"slug"`
}

// Shorten handles POST /shorten, the quick form-style creation flow.
func (h *AdminHandler) Shorten(c *fiber.Ctx) error {
	var req shortenRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if req.URL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "url is required",
		})
	}

	link, err := h.linkService.CreateLink(requestContext(c), service.CreateLinkInput{
		Slug:        req.Slug,
		OriginalURL: req.URL,
		CallbackURL: req.CallbackURL,
		Title:       req.Name,
	})
	if err != nil {
		return h.createError(c, err)
	}

	return c.JSON(fiber.Map{
		"slug":      link.Slug,
		"short_url": fmt.Sprintf("%s/%s", h.baseURL, link.Slug),
		"qr_png":    link.QRPNG,
		"qr_svg":    link.QRSVG,
	})
}

// LinkResponse is the admin-facing representation of a link.
type LinkResponse struct {
	Slug        string     `json:"slug"`
	ShortURL    string     `json:"short_url"`
	OriginalURL string     `json:"original_url"`
	CallbackURL string     `json:"callback_url,omitempty"`
	Title       string     `json:"title,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	Tags        []string   `json:"tags"`
	IsActive    bool       `json:"is_active"`
	MaxClicks   *int64     `json:"max_clicks,omitempty"`
	ClickCount  int64      `json:"click_count"`
	QRPNG       string     `json:"qr_png,omitempty"`
	QRSVG       string     `json:"qr_svg,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

func (h *AdminHandler) linkResponse(link *model.Link) LinkResponse {
	return LinkResponse{
		Slug:        link.Slug,
		ShortURL:    fmt.Sprintf("%s/%s", h.baseURL, link.Slug),
		OriginalURL: link.OriginalURL,
		CallbackURL: link.CallbackURL,
		Title:       link.Title,
		Notes:       link.Notes,
		Tags:        link.Tags,
		IsActive:    link.IsActive,
		MaxClicks:   link.MaxClicks,
		ClickCount:  link.ClickCount,
		QRPNG:       link.QRPNG,
		QRSVG:       link.QRSVG,
		CreatedAt:   link.CreatedAt,
		UpdatedAt:   link.UpdatedAt,
		ExpiresAt:   link.ExpiresAt,
	}
}

// CreateLinkRequest represents the JSON body for creating a link.
type CreateLinkRequest struct {
	Slug        string     `json:"slug,omitempty"`
	OriginalURL string     `json:"original_url"`
	CallbackURL string     `json:"callback_url,omitempty"`
	Title       string     `json:"title,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	IsActive    *bool      `json:"is_active,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	MaxClicks   *int64     `json:"max_clicks,omitempty"`
}

// CreateLink handles POST /admin/links.
func (h *AdminHandler) CreateLink(c *fiber.Ctx) error {
	var req CreateLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if req.OriginalURL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "original_url is required",
		})
	}

	link, err := h.linkService.CreateLink(requestContext(c), service.CreateLinkInput{
		Slug:        req.Slug,
		OriginalURL: req.OriginalURL,
		CallbackURL: req.CallbackURL,
		Title:       req.Title,
		Notes:       req.Notes,
		Tags:        req.Tags,
		IsActive:    req.IsActive,
		ExpiresAt:   req.ExpiresAt,
		MaxClicks:   req.MaxClicks,
	})
	if err != nil {
		return h.createError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(h.linkResponse(link))
}

func (h *AdminHandler) createError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, repository.ErrSlugTaken):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "slug already in use",
		})
	case errors.Is(err, service.ErrInvalidSlug), errors.Is(err, service.ErrInvalidURL):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	default:
		h.logger.Error("failed to create link", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to create link",
		})
	}
}

// ListLinks handles GET /admin/links with optional filters.
func (h *AdminHandler) ListLinks(c *fiber.Ctx) error {
	limit, offset := pagination(c, 20, 100)

	filter := repository.LinkFilter{
		Slug:        c.Query("slug"),
		Title:       c.Query("title"),
		OriginalURL: c.Query("url"),
		Tag:         c.Query("tag"),
	}
	if active := c.Query("is_active"); active != "" {
		v := active == "true" || active == "1"
		filter.IsActive = &v
	}

	links, total, err := h.linkService.ListLinks(requestContext(c), filter, limit, offset)
	if err != nil {
		h.logger.Error("failed to list links", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list links",
		})
	}

	return c.JSON(fiber.Map{
		"links": lo.Map(links, func(l model.Link, _ int) LinkResponse {
			return h.linkResponse(&l)
		}),
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// ExportLinks handles GET /admin/links/export and streams all links as CSV.
func (h *AdminHandler) ExportLinks(c *fiber.Ctx) error {
	ctx := requestContext(c)

	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="links.csv"`)

	w := csv.NewWriter(c.Response().BodyWriter())
	header := []string{
		"slug", "original_url", "callback_url", "title", "notes", "tags",
		"is_active", "max_clicks", "click_count", "created_at", "expires_at",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for offset := 0; ; offset += exportPageSize {
		links, _, err := h.linkService.ListLinks(ctx, repository.LinkFilter{}, exportPageSize, offset)
		if err != nil {
			h.logger.Error("failed to export links", zap.Error(err))
			return err
		}
		for _, l := range links {
			row := []string{
				l.Slug, l.OriginalURL, l.CallbackURL, l.Title, l.Notes,
				strings.Join(l.Tags, "|"),
				strconv.FormatBool(l.IsActive),
				formatOptionalInt(l.MaxClicks),
				strconv.FormatInt(l.ClickCount, 10),
				l.CreatedAt.UTC().Format(time.RFC3339),
				formatOptionalTime(l.ExpiresAt),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		if len(links) < exportPageSize {
			break
		}
	}

	w.Flush()
	return w.Error()
}

// GetLink handles GET /admin/links/:slug.
func (h *AdminHandler) GetLink(c *fiber.Ctx) error {
	link, err := h.linkService.GetLink(requestContext(c), c.Params("slug"))
	if err != nil {
		return h.lookupError(c, err)
	}
	return c.JSON(h.linkResponse(link))
}

// UpdateLinkRequest represents the PATCH body. Absent fields are untouched.
type UpdateLinkRequest struct {
	OriginalURL *string    `json:"original_url,omitempty"`
	CallbackURL *string    `json:"callback_url,omitempty"`
	Title       *string    `json:"title,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	IsActive    *bool      `json:"is_active,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	MaxClicks   *int64     `json:"max_clicks,omitempty"`
}

// UpdateLink handles PATCH /admin/links/:slug.
func (h *AdminHandler) UpdateLink(c *fiber.Ctx) error {
	var req UpdateLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	link, err := h.linkService.UpdateLink(requestContext(c), c.Params("slug"), service.UpdateLinkInput{
		OriginalURL: req.OriginalURL,
		CallbackURL: req.CallbackURL,
		Title:       req.Title,
		Notes:       req.Notes,
		Tags:        req.Tags,
		IsActive:    req.IsActive,
		ExpiresAt:   req.ExpiresAt,
		MaxClicks:   req.MaxClicks,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidURL) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		return h.lookupError(c, err)
	}
	return c.JSON(h.linkResponse(link))
}

// DeleteLink handles DELETE /admin/links/:slug. The link is removed and its
// historical log entries are renamed to a tombstoned slug.
func (h *AdminHandler) DeleteLink(c *fiber.Ctx) error {
	slug := c.Params("slug")
	tombstone, err := h.linkService.DeleteLink(requestContext(c), slug)
	if err != nil {
		return h.lookupError(c, err)
	}
	return c.JSON(fiber.Map{
		"deleted":   slug,
		"tombstone": tombstone,
	})
}

// RegenerateQR handles POST /admin/links/:slug/qr.
func (h *AdminHandler) RegenerateQR(c *fiber.Ctx) error {
	link, err := h.linkService.RegenerateQR(requestContext(c), c.Params("slug"))
	if err != nil {
		return h.lookupError(c, err)
	}
	return c.JSON(h.linkResponse(link))
}

// ListLogs handles GET /admin/links/:slug/logs.
func (h *AdminHandler) ListLogs(c *fiber.Ctx) error {
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

// ExportLogs handles GET /admin/links/:slug/logs/export as CSV.
func (h *AdminHandler) ExportLogs(c *fiber.Ctx) error {
	ctx := requestContext(c)
	slug := c.Params("slug")

	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="%s-logs.csv"`, slug))

	w := csv.NewWriter(c.Response().BodyWriter())
	header := []string{
		"id", "slug", "timestamp", "ip", "browser", "browser_version",
		"os", "os_version", "device", "country", "region", "city",
		"referer", "destination",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for offset := 0; ; offset += exportPageSize {
		entries, _, err := h.accessLogs.ListBySlug(ctx, slug, exportPageSize, offset)
		if err != nil {
			h.logger.Error("failed to export access logs", zap.Error(err))
			return err
		}
		for _, e := range entries {
			row := []string{
				e.ID, e.Slug, e.Timestamp.UTC().Format(time.RFC3339),
				e.IP, e.Browser, e.BrowserVersion,
				e.OS, e.OSVersion, e.Device,
				e.Country, e.Region, e.City,
				e.Referer, e.Destination,
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		if len(entries) < exportPageSize {
			break
		}
	}

	w.Flush()
	return w.Error()
}

// ImportDocuments handles POST /admin/import with a JSON array of link
// documents in either the legacy or the current shape.
func (h *AdminHandler) ImportDocuments(c *fiber.Ctx) error {
	var docs []json.RawMessage
	if err := json.Unmarshal(c.Body(), &docs); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "body must be a JSON array of link documents",
		})
	}

	result, err := h.linkService.ImportDocuments(requestContext(c), docs)
	if err != nil {
		h.logger.Error("failed to import documents", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "import failed",
		})
	}
	return c.JSON(result)
}

func (h *AdminHandler) lookupError(c *fiber.Ctx, err error) error {
	if errors.Is(err, repository.ErrLinkNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "link not found",
		})
	}
	h.logger.Error("link operation failed", zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "internal server error",
	})
}

func pagination(c *fiber.Ctx, def, max int) (limit, offset int) {
	limit = def
	if parsed := c.QueryInt("limit"); parsed > 0 && parsed <= max {
		limit = parsed
	}
	if parsed := c.QueryInt("offset"); parsed > 0 {
		offset = parsed
	}
	return limit, offset
}

func requestContext(c *fiber.Ctx) context.Context {
	if ctx := c.UserContext(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func formatOptionalInt(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
