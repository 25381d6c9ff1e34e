package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"github.com/talmeida/linktrace/internal/app/model"
	"github.com/talmeida/linktrace/internal/app/repository"
	"go.uber.org/zap"
)

var (
	// ErrInvalidSlug rejects slugs outside ^[a-zA-Z0-9_-]{3,64}$.
	ErrInvalidSlug = errors.New("slug must match ^[a-zA-Z0-9_-]{3,64}$")
	// ErrInvalidURL rejects destinations that are not absolute http(s) URLs.
	ErrInvalidURL = errors.New("original_url must be an absolute http(s) URL")
)

const (
	generatedSlugLength  = 6
	slugGenerateAttempts = 3
)

// LinkService defines behaviour-level operations on links.
type LinkService interface {
	CreateLink(ctx context.Context, input CreateLinkInput) (*model.Link, error)
	GetLink(ctx context.Context, slug string) (*model.Link, error)
	ListLinks(ctx context.Context, filter repository.LinkFilter, limit, offset int) ([]model.Link, int64, error)
	UpdateLink(ctx context.Context, slug string, input UpdateLinkInput) (*model.Link, error)
	// DeleteLink tombstones the slug in historical logs, removes the link
	// and its QR assets, and returns the tombstoned slug.
	DeleteLink(ctx context.Context, slug string) (string, error)
	// ImportDocuments ingests raw link documents of either schema
	// generation, normalizing before insert.
	ImportDocuments(ctx context.Context, docs []json.RawMessage) (ImportResult, error)
	// RegenerateQR rebuilds the QR assets for an existing slug.
	RegenerateQR(ctx context.Context, slug string) (*model.Link, error)
}

type linkService struct {
	logger *zap.Logger
	repo   repository.LinkRepository
	qr     *QRGenerator
	filter *SlugFilter
	cache  *LinkCache
}

// LinkServiceDeps groups dependencies for NewLinkService.
type LinkServiceDeps struct {
	Logger *zap.Logger
	Repo   repository.LinkRepository
	QR     *QRGenerator
	Filter *SlugFilter
	Cache  *LinkCache
}

// NewLinkService returns a service implementation backed by the given repository.
func NewLinkService(deps LinkServiceDeps) LinkService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &linkService{
		logger: logger,
		repo:   deps.Repo,
		qr:     deps.QR,
		filter: deps.Filter,
		cache:  deps.Cache,
	}
}

// CreateLinkInput captures data required to create a link.
type CreateLinkInput struct {
	Slug        string
	OriginalURL string
	CallbackURL string
	Title       string
	Notes       string
	Tags        []string
	IsActive    *bool
	ExpiresAt   *time.Time
	MaxClicks   *int64
}

// UpdateLinkInput captures fields that can be changed on an existing link.
// The slug itself is immutable.
type UpdateLinkInput struct {
	OriginalURL *string
	CallbackURL *string
	Title       *string
	Notes       *string
	Tags        []string
	IsActive    *bool
	ExpiresAt   *time.Time
	MaxClicks   *int64
}

func (s *linkService) CreateLink(ctx context.Context, input CreateLinkInput) (*model.Link, error) {
	if !validDestination(input.OriginalURL) {
		return nil, ErrInvalidURL
	}
	if input.Slug != "" && !model.ValidSlug(input.Slug) {
		return nil, ErrInvalidSlug
	}

	link := &model.Link{
		Slug:        input.Slug,
		OriginalURL: input.OriginalURL,
		CallbackURL: input.CallbackURL,
		Title:       input.Title,
		Notes:       input.Notes,
		Tags:        input.Tags,
		IsActive:    true,
		ExpiresAt:   input.ExpiresAt,
		MaxClicks:   input.MaxClicks,
	}
	if input.IsActive != nil {
		link.IsActive = *input.IsActive
	}
	if link.Tags == nil {
		link.Tags = []string{}
	}

	if err := s.insertLink(ctx, link, input.Slug == ""); err != nil {
		return nil, err
	}

	if s.qr != nil {
		pngURL, svgURL, err := s.qr.Generate(link.Slug)
		if err != nil {
			// The link exists either way; assets can be regenerated later.
			s.logger.Warn("failed to generate qr assets",
				zap.String("slug", link.Slug), zap.Error(err))
		} else {
			link.QRPNG = pngURL
			link.QRSVG = svgURL
			if err := s.repo.Update(ctx, link); err != nil {
				s.logger.Warn("failed to store qr asset urls",
					zap.String("slug", link.Slug), zap.Error(err))
			}
		}
	}

	if s.filter != nil {
		s.filter.Add(link.Slug)
	}

	s.logger.Info("link created",
		zap.String("slug", link.Slug),
		zap.String("original_url", link.OriginalURL),
	)
	return link, nil
}

// insertLink performs the atomic insert-if-absent. For generated slugs a
// conflict just means an unlucky draw, so it retries with a fresh slug; a
// caller-chosen slug conflict propagates as ErrSlugTaken.
func (s *linkService) insertLink(ctx context.Context, link *model.Link, generated bool) error {
	attempts := 1
	if generated {
		attempts = slugGenerateAttempts
	}

	for i := 0; i < attempts; i++ {
		if generated {
			link.Slug = randomSlug(generatedSlugLength)
		}
		err := s.repo.Create(ctx, link)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrSlugTaken) || !generated {
			return err
		}
	}
	return repository.ErrSlugTaken
}

func (s *linkService) GetLink(ctx context.Context, slug string) (*model.Link, error) {
	link, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("get link: %w", err)
	}
	return link, nil
}

func (s *linkService) ListLinks(ctx context.Context, filter repository.LinkFilter, limit, offset int) ([]model.Link, int64, error) {
	links, total, err := s.repo.List(ctx, filter, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list links: %w", err)
	}
	return links, total, nil
}

func (s *linkService) UpdateLink(ctx context.Context, slug string, input UpdateLinkInput) (*model.Link, error) {
	link, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("load link: %w", err)
	}

	if input.OriginalURL != nil {
		if !validDestination(*input.OriginalURL) {
			return nil, ErrInvalidURL
		}
		link.OriginalURL = *input.OriginalURL
	}
	if input.CallbackURL != nil {
		link.CallbackURL = *input.CallbackURL
	}
	if input.Title != nil {
		link.Title = *input.Title
	}
	if input.Notes != nil {
		link.Notes = *input.Notes
	}
	if input.Tags != nil {
		link.Tags = input.Tags
	}
	if input.IsActive != nil {
		link.IsActive = *input.IsActive
	}
	if input.ExpiresAt != nil {
		link.ExpiresAt = input.ExpiresAt
	}
	if input.MaxClicks != nil {
		link.MaxClicks = input.MaxClicks
	}

	if err := s.repo.Update(ctx, link); err != nil {
		return nil, fmt.Errorf("update link: %w", err)
	}

	s.cache.Invalidate(ctx, slug)
	return link, nil
}

func (s *linkService) DeleteLink(ctx context.Context, slug string) (string, error) {
	tombstone, err := s.repo.Delete(ctx, slug)
	if err != nil {
		return "", err
	}

	s.cache.Invalidate(ctx, slug)
	if s.qr != nil {
		s.qr.Remove(slug)
	}

	s.logger.Info("link deleted",
		zap.String("slug", slug),
		zap.String("tombstone", tombstone),
	)
	return tombstone, nil
}

// ImportResult summarizes a document import.
type ImportResult struct {
	Imported  int      `json:"imported"`
	Conflicts []string `json:"conflicts,omitempty"`
	Invalid   int      `json:"invalid"`
}

func (s *linkService) ImportDocuments(ctx context.Context, docs []json.RawMessage) (ImportResult, error) {
	var result ImportResult
	for _, raw := range docs {
		link, err := model.DecodeLinkDocument(raw)
		if err != nil || link.Slug == "" || !validDestination(link.OriginalURL) {
			result.Invalid++
			continue
		}

		if err := s.repo.Create(ctx, link); err != nil {
			if errors.Is(err, repository.ErrSlugTaken) {
				result.Conflicts = append(result.Conflicts, link.Slug)
				continue
			}
			return result, fmt.Errorf("import %q: %w", link.Slug, err)
		}

		if s.filter != nil {
			s.filter.Add(link.Slug)
		}
		result.Imported++
	}

	s.logger.Info("documents imported",
		zap.Int("imported", result.Imported),
		zap.Int("conflicts", len(result.Conflicts)),
		zap.Int("invalid", result.Invalid),
	)
	return result, nil
}

func (s *linkService) RegenerateQR(ctx context.Context, slug string) (*model.Link, error) {
	link, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if s.qr == nil {
		return link, nil
	}

	pngURL, svgURL, err := s.qr.Generate(slug)
	if err != nil {
		return nil, fmt.Errorf("regenerate qr: %w", err)
	}
	link.QRPNG = pngURL
	link.QRSVG = svgURL
	if err := s.repo.Update(ctx, link); err != nil {
		return nil, fmt.Errorf("store qr urls: %w", err)
	}

	s.cache.Invalidate(ctx, slug)
	return link, nil
}

func validDestination(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

const slugAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// randomSlug draws n characters from the slug alphabet using crypto/rand.
func randomSlug(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails when the platform entropy source is
		// broken; fall back to a time-derived slug rather than panic.
		return fmt.Sprintf("%x", time.Now().UnixNano())[:n]
	}
	for i, b := range buf {
		buf[i] = slugAlphabet[int(b)%len(slugAlphabet)]
	}
	return string(buf)
}
