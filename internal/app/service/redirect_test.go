package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/talmeida/linktrace/internal/app/model"
	"github.com/talmeida/linktrace/internal/app/repository"
)

type capturePublisher struct {
	entries chan *model.AccessLogEntry
	err     error
}

func newCapturePublisher() *capturePublisher {
	return &capturePublisher{entries: make(chan *model.AccessLogEntry, 8)}
}

func (p *capturePublisher) Publish(entry *model.AccessLogEntry) error {
	if p.err != nil {
		return p.err
	}
	p.entries <- entry
	return nil
}

func (p *capturePublisher) wait(t *testing.T) *model.AccessLogEntry {
	t.Helper()
	select {
	case entry := <-p.entries:
		return entry
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the published entry")
		return nil
	}
}

func newTestEngine(repo repository.LinkRepository, pub AccessPublisher, enforce bool) *RedirectEngine {
	return NewRedirectEngine(RedirectEngineDeps{
		Links:            repo,
		Publisher:        pub,
		EnforceLinkState: enforce,
	})
}

func TestMergeDestination(t *testing.T) {
	tests := []struct {
		name        string
		destination string
		rawQuery    string
		want        string
	}{
		{
			name:        "no incoming query",
			destination: "https://example.com/page?x=1",
			rawQuery:    "",
			want:        "https://example.com/page?x=1",
		},
		{
			name:        "incoming wins on collision and disjoint keys survive",
			destination: "https://example.com/page?x=1",
			rawQuery:    "x=2&y=3",
			want:        "https://example.com/page?x=2&y=3",
		},
		{
			name:        "destination keys survive",
			destination: "https://example.com/page?keep=yes",
			rawQuery:    "add=1",
			want:        "https://example.com/page?add=1&keep=yes",
		},
		{
			name:        "plain destination gains a query",
			destination: "https://example.com/page",
			rawQuery:    "utm=abc",
			want:        "https://example.com/page?utm=abc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MergeDestination(tt.destination, tt.rawQuery)
			if err != nil {
				t.Fatalf("MergeDestination error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMergeDestination_Deterministic(t *testing.T) {
	first, err := MergeDestination("https://example.com/?b=2&a=1", "c=3")
	if err != nil {
		t.Fatalf("MergeDestination error: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := MergeDestination("https://example.com/?b=2&a=1", "c=3")
		if err != nil {
			t.Fatalf("MergeDestination error: %v", err)
		}
		if again != first {
			t.Fatalf("merge is not deterministic: %q vs %q", again, first)
		}
	}
}

func TestRedirectEngine_Resolve(t *testing.T) {
	repo := &mockLinkRepository{
		getFn: func(ctx context.Context, slug string) (*model.Link, error) {
			return &model.Link{
				Slug:        slug,
				OriginalURL: "https://example.com/page?x=1",
				IsActive:    true,
			}, nil
		},
	}
	pub := newCapturePublisher()
	engine := newTestEngine(repo, pub, true)

	outcome, err := engine.Resolve(context.Background(), "abc123", RequestContext{
		RawQuery:  "x=2&y=3",
		IP:        "203.0.113.9",
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		Referer:   "https://referrer.example",
	})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if outcome.Destination != "https://example.com/page?x=2&y=3" {
		t.Fatalf("unexpected destination %q", outcome.Destination)
	}
	if outcome.EntryID == "" {
		t.Fatal("expected an entry id to be assigned")
	}

	entry := pub.wait(t)
	if entry.ID != outcome.EntryID {
		t.Fatalf("published entry id %q does not match outcome %q", entry.ID, outcome.EntryID)
	}
	if entry.Slug != "abc123" || entry.IP != "203.0.113.9" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.Destination != outcome.Destination {
		t.Fatalf("entry destination %q does not match outcome", entry.Destination)
	}
}

func TestRedirectEngine_Resolve_NotFoundProducesNoEntry(t *testing.T) {
	pub := newCapturePublisher()
	engine := newTestEngine(&mockLinkRepository{}, pub, true)

	_, err := engine.Resolve(context.Background(), "ghost1", RequestContext{})
	if !errors.Is(err, repository.ErrLinkNotFound) {
		t.Fatalf("expected ErrLinkNotFound, got %v", err)
	}

	select {
	case entry := <-pub.entries:
		t.Fatalf("unexpected entry published for a missing slug: %+v", entry)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRedirectEngine_Resolve_InvalidSlug(t *testing.T) {
	calls := 0
	repo := &mockLinkRepository{
		getFn: func(ctx context.Context, slug string) (*model.Link, error) {
			calls++
			return nil, repository.ErrLinkNotFound
		},
	}
	engine := newTestEngine(repo, nil, true)

	_, err := engine.Resolve(context.Background(), "a!", RequestContext{})
	if !errors.Is(err, repository.ErrLinkNotFound) {
		t.Fatalf("expected ErrLinkNotFound, got %v", err)
	}
	if calls != 0 {
		t.Fatal("invalid slugs must not reach the repository")
	}
}

func TestRedirectEngine_Resolve_InactiveLink(t *testing.T) {
	inactive := func(ctx context.Context, slug string) (*model.Link, error) {
		return &model.Link{
			Slug:        slug,
			OriginalURL: "https://example.com",
			IsActive:    false,
		}, nil
	}

	engine := newTestEngine(&mockLinkRepository{getFn: inactive}, nil, true)
	if _, err := engine.Resolve(context.Background(), "abc123", RequestContext{}); !errors.Is(err, ErrLinkGone) {
		t.Fatalf("expected ErrLinkGone with enforcement on, got %v", err)
	}

	// With enforcement off the same link still redirects.
	pub := newCapturePublisher()
	relaxed := newTestEngine(&mockLinkRepository{getFn: inactive}, pub, false)
	outcome, err := relaxed.Resolve(context.Background(), "abc123", RequestContext{})
	if err != nil {
		t.Fatalf("Resolve returned error with enforcement off: %v", err)
	}
	if outcome.Destination != "https://example.com" {
		t.Fatalf("unexpected destination %q", outcome.Destination)
	}
	pub.wait(t)
}

func TestRedirectEngine_Resolve_ExpiredAndOverLimit(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	limit := int64(10)

	cases := map[string]*model.Link{
		"expired": {
			Slug: "abc123", OriginalURL: "https://example.com",
			IsActive: true, ExpiresAt: &past,
		},
		"over limit": {
			Slug: "abc123", OriginalURL: "https://example.com",
			IsActive: true, MaxClicks: &limit, ClickCount: 10,
		},
	}

	for name, link := range cases {
		t.Run(name, func(t *testing.T) {
			repo := &mockLinkRepository{
				getFn: func(ctx context.Context, slug string) (*model.Link, error) {
					return link, nil
				},
			}
			engine := newTestEngine(repo, nil, true)
			if _, err := engine.Resolve(context.Background(), "abc123", RequestContext{}); !errors.Is(err, ErrLinkGone) {
				t.Fatalf("expected ErrLinkGone, got %v", err)
			}
		})
	}
}

func TestRedirectEngine_Resolve_PublisherFailureDoesNotAffectResponse(t *testing.T) {
	repo := &mockLinkRepository{
		getFn: func(ctx context.Context, slug string) (*model.Link, error) {
			return &model.Link{Slug: slug, OriginalURL: "https://example.com", IsActive: true}, nil
		},
	}
	pub := newCapturePublisher()
	pub.err = errors.New("stream unavailable")
	engine := newTestEngine(repo, pub, true)

	outcome, err := engine.Resolve(context.Background(), "abc123", RequestContext{})
	if err != nil {
		t.Fatalf("Resolve must succeed even when publishing fails: %v", err)
	}
	if outcome.Destination != "https://example.com" {
		t.Fatalf("unexpected destination %q", outcome.Destination)
	}
}

func TestRedirectEngine_Resolve_BloomNegativeSkipsStores(t *testing.T) {
	calls := 0
	repo := &mockLinkRepository{
		getFn: func(ctx context.Context, slug string) (*model.Link, error) {
			calls++
			return nil, repository.ErrLinkNotFound
		},
	}

	engine := NewRedirectEngine(RedirectEngineDeps{
		Links:  repo,
		Filter: NewSlugFilter([]string{"known1"}),
	})

	if _, err := engine.Resolve(context.Background(), "other2", RequestContext{}); !errors.Is(err, repository.ErrLinkNotFound) {
		t.Fatalf("expected ErrLinkNotFound, got %v", err)
	}
	if calls != 0 {
		t.Fatal("filter negatives must not reach the repository")
	}
}
