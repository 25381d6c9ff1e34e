package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/talmeida/linktrace/internal/app/model"
)

type mockAccessLogRepository struct {
	appendFn func(ctx context.Context, entry *model.AccessLogEntry) error
	listFn   func(ctx context.Context, slug string, limit, offset int) ([]model.AccessLogEntry, int64, error)
	renameFn func(ctx context.Context, oldSlug, newSlug string) (int64, error)
	purgeFn  func(ctx context.Context, cutoff time.Time) (int64, error)
}

func (m *mockAccessLogRepository) Append(ctx context.Context, entry *model.AccessLogEntry) error {
	if m.appendFn != nil {
		return m.appendFn(ctx, entry)
	}
	return nil
}

func (m *mockAccessLogRepository) ListBySlug(ctx context.Context, slug string, limit, offset int) ([]model.AccessLogEntry, int64, error) {
	if m.listFn != nil {
		return m.listFn(ctx, slug, limit, offset)
	}
	return nil, 0, nil
}

func (m *mockAccessLogRepository) RenameSlug(ctx context.Context, oldSlug, newSlug string) (int64, error) {
	if m.renameFn != nil {
		return m.renameFn(ctx, oldSlug, newSlug)
	}
	return 0, nil
}

func (m *mockAccessLogRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.purgeFn != nil {
		return m.purgeFn(ctx, cutoff)
	}
	return 0, nil
}

type recordingEvictor struct {
	slugs []string
}

func (r *recordingEvictor) Invalidate(ctx context.Context, slug string) {
	r.slugs = append(r.slugs, slug)
}

// settlement tracks how a delivery was acknowledged.
type settlement struct {
	acks int
	naks int
}

func (s *settlement) ack(...nats.AckOpt) error { s.acks++; return nil }
func (s *settlement) nak(...nats.AckOpt) error { s.naks++; return nil }

func encodeEntry(t *testing.T, entry *model.AccessLogEntry) []byte {
	t.Helper()
	data, err := json.Marshal(entry)
	if err != nil {
		t.Fatalf("marshal entry: %v", err)
	}
	return data
}

func TestAccessConsumer_PersistFailureNaksWithoutCallback(t *testing.T) {
	var callbacks int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&callbacks, 1)
	}))
	defer server.Close()

	increments := 0
	links := &mockLinkRepository{
		getFn: func(ctx context.Context, slug string) (*model.Link, error) {
			return &model.Link{Slug: slug, CallbackURL: server.URL}, nil
		},
		incrementFn: func(ctx context.Context, slug string) error {
			increments++
			return nil
		},
	}
	logs := &mockAccessLogRepository{
		appendFn: func(ctx context.Context, entry *model.AccessLogEntry) error {
			return errors.New("connection reset")
		},
	}

	c := NewAccessConsumer(AccessConsumerDeps{
		Logs:     logs,
		Links:    links,
		Callback: NewCallbackDispatcher(CallbackDeps{Timeout: 2 * time.Second}),
	})

	var s settlement
	entry := &model.AccessLogEntry{ID: "e1", Slug: "abc123", Timestamp: time.Now().UTC()}
	c.process(context.Background(), encodeEntry(t, entry), s.ack, s.nak)

	if s.naks != 1 || s.acks != 0 {
		t.Fatalf("expected one nak and no ack, got naks=%d acks=%d", s.naks, s.acks)
	}
	if increments != 0 {
		t.Fatal("click counter must not move for an unstored entry")
	}
	if n := atomic.LoadInt32(&callbacks); n != 0 {
		t.Fatalf("callback must not fire for an unstored entry, got %d requests", n)
	}
}

func TestAccessConsumer_StoresEntryBeforeCallback(t *testing.T) {
	var stored atomic.Bool
	received := make(chan model.AccessLogEntry, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !stored.Load() {
			t.Error("callback fired before the entry was stored")
		}
		var got model.AccessLogEntry
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode callback body: %v", err)
		}
		received <- got
	}))
	defer server.Close()

	increments := 0
	links := &mockLinkRepository{
		getFn: func(ctx context.Context, slug string) (*model.Link, error) {
			return &model.Link{Slug: slug, CallbackURL: server.URL}, nil
		},
		incrementFn: func(ctx context.Context, slug string) error {
			increments++
			return nil
		},
	}
	logs := &mockAccessLogRepository{
		appendFn: func(ctx context.Context, entry *model.AccessLogEntry) error {
			stored.Store(true)
			return nil
		},
	}

	c := NewAccessConsumer(AccessConsumerDeps{
		Logs:     logs,
		Links:    links,
		Callback: NewCallbackDispatcher(CallbackDeps{Timeout: 2 * time.Second}),
	})

	var s settlement
	entry := &model.AccessLogEntry{ID: "e2", Slug: "abc123", Timestamp: time.Now().UTC()}
	c.process(context.Background(), encodeEntry(t, entry), s.ack, s.nak)

	if s.acks != 1 || s.naks != 0 {
		t.Fatalf("expected one ack and no nak, got acks=%d naks=%d", s.acks, s.naks)
	}
	if increments != 1 {
		t.Fatalf("expected one click increment, got %d", increments)
	}
	select {
	case got := <-received:
		if got.ID != "e2" {
			t.Fatalf("callback carried id %q, want e2", got.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("callback never arrived")
	}
}

func TestAccessConsumer_CallbackFailureStillAcksOnce(t *testing.T) {
	var callbacks int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&callbacks, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	links := &mockLinkRepository{
		getFn: func(ctx context.Context, slug string) (*model.Link, error) {
			return &model.Link{Slug: slug, CallbackURL: server.URL}, nil
		},
	}

	c := NewAccessConsumer(AccessConsumerDeps{
		Logs:     &mockAccessLogRepository{},
		Links:    links,
		Callback: NewCallbackDispatcher(CallbackDeps{Timeout: 2 * time.Second}),
	})

	var s settlement
	entry := &model.AccessLogEntry{ID: "e3", Slug: "abc123", Timestamp: time.Now().UTC()}
	c.process(context.Background(), encodeEntry(t, entry), s.ack, s.nak)

	if s.acks != 1 || s.naks != 0 {
		t.Fatalf("a failed callback must not trigger redelivery, got acks=%d naks=%d", s.acks, s.naks)
	}
	if n := atomic.LoadInt32(&callbacks); n != 1 {
		t.Fatalf("expected exactly one delivery attempt, got %d", n)
	}
}

func TestAccessConsumer_BadPayloadNaks(t *testing.T) {
	appended := 0
	c := NewAccessConsumer(AccessConsumerDeps{
		Logs: &mockAccessLogRepository{
			appendFn: func(ctx context.Context, entry *model.AccessLogEntry) error {
				appended++
				return nil
			},
		},
		Links: &mockLinkRepository{},
	})

	var s settlement
	c.process(context.Background(), []byte("{not json"), s.ack, s.nak)

	if s.naks != 1 || s.acks != 0 {
		t.Fatalf("expected one nak and no ack, got naks=%d acks=%d", s.naks, s.acks)
	}
	if appended != 0 {
		t.Fatal("an undecodable payload must not reach the store")
	}
}

func TestAccessConsumer_EvictsLimitedLinkAfterClick(t *testing.T) {
	max := int64(5)
	limited := &model.Link{Slug: "capped", MaxClicks: &max, ClickCount: 4}
	open := &model.Link{Slug: "open99"}
	links := &mockLinkRepository{
		getFn: func(ctx context.Context, slug string) (*model.Link, error) {
			if slug == "capped" {
				return limited, nil
			}
			return open, nil
		},
	}

	evictor := &recordingEvictor{}
	c := NewAccessConsumer(AccessConsumerDeps{
		Logs:  &mockAccessLogRepository{},
		Links: links,
		Cache: evictor,
	})

	var s settlement
	for _, slug := range []string{"capped", "open99"} {
		entry := &model.AccessLogEntry{ID: "e-" + slug, Slug: slug, Timestamp: time.Now().UTC()}
		c.process(context.Background(), encodeEntry(t, entry), s.ack, s.nak)
	}

	if len(evictor.slugs) != 1 || evictor.slugs[0] != "capped" {
		t.Fatalf("expected only the limit-bound link to be evicted, got %v", evictor.slugs)
	}
}

func TestAccessConsumer_FetchErrorBacksOff(t *testing.T) {
	var calls int32
	fetch := func(batch int, opts ...nats.PullOpt) ([]*nats.Msg, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nats.ErrConnectionClosed
	}

	c := NewAccessConsumer(AccessConsumerDeps{
		Logs:  &mockAccessLogRepository{},
		Links: &mockLinkRepository{},
	})

	done := make(chan struct{})
	go func() {
		c.consume(fetch)
		close(done)
	}()

	time.Sleep(250 * time.Millisecond)
	if n := atomic.LoadInt32(&calls); n > 2 {
		t.Fatalf("fetch retried %d times in 250ms, loop is not backing off", n)
	}

	c.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consume loop did not exit after Stop")
	}
}
