package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/talmeida/linktrace/internal/app/model"
	"github.com/talmeida/linktrace/internal/app/repository"
	infraprom "github.com/talmeida/linktrace/internal/infra/prometheus"
	"go.uber.org/zap"
)

// ErrLinkGone signals an inactive, expired, or over-limit link when state
// enforcement is enabled.
var ErrLinkGone = errors.New("link is not active")

// RequestContext carries the request metadata the engine needs. The engine
// never sees the HTTP transport itself.
type RequestContext struct {
	RawQuery       string
	IP             string
	UserAgent      string
	Referer        string
	AcceptLanguage string
	DNT            string
	Connection     string
	AcceptEncoding string
}

// RedirectOutcome is the value object handed back to the transport layer,
// which issues the actual 3xx response.
type RedirectOutcome struct {
	Destination string
	EntryID     string
}

// AccessPublisher hands a finished access-log entry to the async pipeline.
type AccessPublisher interface {
	Publish(entry *model.AccessLogEntry) error
}

// RedirectEngine resolves slugs to destinations and emits access events.
// Persistence and callback dispatch happen downstream of the publisher, off
// the response's critical path.
type RedirectEngine struct {
	logger       *zap.Logger
	links        repository.LinkRepository
	cache        *LinkCache
	filter       *SlugFilter
	enricher     *Enricher
	publisher    AccessPublisher
	metrics      *infraprom.Metrics
	enforceState bool
	now          func() time.Time
}

// RedirectEngineDeps groups dependencies for NewRedirectEngine.
type RedirectEngineDeps struct {
	Logger           *zap.Logger
	Links            repository.LinkRepository
	Cache            *LinkCache
	Filter           *SlugFilter
	Enricher         *Enricher
	Publisher        AccessPublisher
	Metrics          *infraprom.Metrics
	EnforceLinkState bool
}

// NewRedirectEngine creates the engine.
func NewRedirectEngine(deps RedirectEngineDeps) *RedirectEngine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedirectEngine{
		logger:       logger,
		links:        deps.Links,
		cache:        deps.Cache,
		filter:       deps.Filter,
		enricher:     deps.Enricher,
		publisher:    deps.Publisher,
		metrics:      deps.Metrics,
		enforceState: deps.EnforceLinkState,
		now:          time.Now,
	}
}

// Resolve maps a slug to its final destination. On success it assigns the
// access-log entry id, schedules enrichment + event publication in the
// background, and returns immediately; a missing slug yields
// repository.ErrLinkNotFound and produces no access-log entry.
func (e *RedirectEngine) Resolve(ctx context.Context, slug string, req RequestContext) (*RedirectOutcome, error) {
	if !model.ValidSlug(slug) {
		e.count(infraprom.OutcomeNotFound)
		return nil, repository.ErrLinkNotFound
	}

	if e.filter != nil && !e.filter.MightContain(slug) {
		// Definitive negative: skip the stores entirely.
		e.count(infraprom.OutcomeNotFound)
		return nil, repository.ErrLinkNotFound
	}

	link, err := e.loadLink(ctx, slug)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrLinkNotFound):
			e.count(infraprom.OutcomeNotFound)
		case errors.Is(err, ErrLinkGone):
			e.count(infraprom.OutcomeGone)
		default:
			e.count(infraprom.OutcomeError)
		}
		return nil, err
	}

	destination, err := MergeDestination(link.OriginalURL, req.RawQuery)
	if err != nil {
		e.count(infraprom.OutcomeError)
		return nil, fmt.Errorf("compute destination: %w", err)
	}

	entry := e.newEntry(slug, destination, req)
	go e.enrichAndPublish(entry, req)

	e.count(infraprom.OutcomeRedirected)
	e.logger.Debug("redirecting short link",
		zap.String("slug", slug),
		zap.String("destination", destination),
		zap.String("entry_id", entry.ID),
	)

	return &RedirectOutcome{Destination: destination, EntryID: entry.ID}, nil
}

func (e *RedirectEngine) loadLink(ctx context.Context, slug string) (*model.Link, error) {
	link := e.cache.Get(ctx, slug)
	if link == nil {
		var err error
		link, err = e.links.GetBySlug(ctx, slug)
		if err != nil {
			return nil, err
		}
		e.cache.Put(ctx, link)
	}

	if e.enforceState {
		if !link.IsActive || link.Expired(e.now()) || link.OverClickLimit() {
			return nil, ErrLinkGone
		}
	}

	return link, nil
}

func (e *RedirectEngine) newEntry(slug, destination string, req RequestContext) *model.AccessLogEntry {
	return &model.AccessLogEntry{
		ID:          uuid.New().String(),
		Slug:        slug,
		Timestamp:   e.now().UTC(),
		IP:          req.IP,
		UserAgent:   req.UserAgent,
		Referer:     req.Referer,
		Destination: destination,
	}
}

// enrichAndPublish runs detached from the request. The geo lookup carries
// its own timeout inside the enricher, so a slow provider cannot stall
// other requests or the response that already went out.
func (e *RedirectEngine) enrichAndPublish(entry *model.AccessLogEntry, req RequestContext) {
	if e.enricher != nil {
		device, geo := e.enricher.DescribeClient(context.Background(), req.UserAgent, req.IP)
		entry.ApplyDevice(device)
		entry.ApplyGeo(geo)
	}

	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(entry); err != nil {
		e.logger.Error("failed to publish access event",
			zap.String("slug", entry.Slug),
			zap.String("entry_id", entry.ID),
			zap.Error(err),
		)
		return
	}
	if e.metrics != nil {
		e.metrics.EventsPublished.Inc()
	}
}

func (e *RedirectEngine) count(outcome string) {
	if e.metrics != nil {
		e.metrics.Redirects.WithLabelValues(outcome).Inc()
	}
}

// MergeDestination overlays the incoming query parameters onto the
// destination URL's own. Incoming values win on key collision; disjoint keys
// from both sides survive. With no incoming query the destination is used
// verbatim.
func MergeDestination(destination, rawQuery string) (string, error) {
	if rawQuery == "" {
		return destination, nil
	}

	parsed, err := url.Parse(destination)
	if err != nil {
		return "", fmt.Errorf("parse destination %q: %w", destination, err)
	}

	incoming, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", fmt.Errorf("parse incoming query %q: %w", rawQuery, err)
	}

	merged := parsed.Query()
	for key, values := range incoming {
		merged[key] = values
	}
	parsed.RawQuery = merged.Encode()

	return parsed.String(), nil
}
