package handler

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/talmeida/linktrace/internal/app/model"
	"github.com/talmeida/linktrace/internal/app/repository"
	"github.com/talmeida/linktrace/internal/app/service"
)

type stubLinkRepository struct {
	links map[string]*model.Link
}

func (s *stubLinkRepository) Create(ctx context.Context, link *model.Link) error { return nil }

func (s *stubLinkRepository) GetBySlug(ctx context.Context, slug string) (*model.Link, error) {
	if link, ok := s.links[slug]; ok {
		cp := *link
		return &cp, nil
	}
	return nil, repository.ErrLinkNotFound
}

func (s *stubLinkRepository) List(ctx context.Context, filter repository.LinkFilter, limit, offset int) ([]model.Link, int64, error) {
	return nil, 0, nil
}

func (s *stubLinkRepository) Update(ctx context.Context, link *model.Link) error { return nil }

func (s *stubLinkRepository) Delete(ctx context.Context, slug string) (string, error) {
	return "", repository.ErrLinkNotFound
}

func (s *stubLinkRepository) IncrementClicks(ctx context.Context, slug string) error { return nil }

func (s *stubLinkRepository) AllSlugs(ctx context.Context) ([]string, error) { return nil, nil }

func newTestApp(links map[string]*model.Link) *fiber.App {
	engine := service.NewRedirectEngine(service.RedirectEngineDeps{
		Links:            &stubLinkRepository{links: links},
		EnforceLinkState: true,
	})

	app := fiber.New()
	h := NewRedirectHandler(RedirectDeps{Engine: engine})
	h.Register(app)
	return app
}

func TestRedirectHandler_Resolve(t *testing.T) {
	app := newTestApp(map[string]*model.Link{
		"abc123": {
			Slug:        "abc123",
			OriginalURL: "https://example.com/page?x=1",
			IsActive:    true,
		},
	})

	req := httptest.NewRequest(fiber.MethodGet, "/abc123?x=2&y=3", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusFound {
		t.Fatalf("expected 302, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get(fiber.HeaderLocation); loc != "https://example.com/page?x=2&y=3" {
		t.Fatalf("unexpected Location header %q", loc)
	}
}

func TestRedirectHandler_NotFound(t *testing.T) {
	app := newTestApp(nil)

	req := httptest.NewRequest(fiber.MethodGet, "/ghost1", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestRedirectHandler_Gone(t *testing.T) {
	app := newTestApp(map[string]*model.Link{
		"abc123": {
			Slug:        "abc123",
			OriginalURL: "https://example.com",
			IsActive:    false,
		},
	})

	req := httptest.NewRequest(fiber.MethodGet, "/abc123", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusGone {
		t.Fatalf("expected 410, got %d", resp.StatusCode)
	}
}

func TestRedirectHandler_Health(t *testing.T) {
	app := newTestApp(nil)

	for _, path := range []string{"/", "/health"} {
		req := httptest.NewRequest(fiber.MethodGet, path, nil)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("request to %s failed: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("expected 200 from %s, got %d", path, resp.StatusCode)
		}
	}
}
