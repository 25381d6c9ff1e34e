package service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/talmeida/linktrace/internal/app/model"
	"github.com/talmeida/linktrace/internal/http/util"
)

func TestCallbackDispatcher_DeliversSignedPayload(t *testing.T) {
	secret := []byte("callback-secret")

	var (
		gotBody      []byte
		gotSignature string
		gotType      string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSignature = r.Header.Get(SignatureHeader)
		gotType = r.Header.Get("Content-Type")
	}))
	defer srv.Close()

	dispatcher := NewCallbackDispatcher(CallbackDeps{
		Signer:  util.NewPayloadSigner(secret),
		Timeout: time.Second,
	})

	entry := &model.AccessLogEntry{
		ID:          "entry-1",
		Slug:        "abc123",
		Timestamp:   time.Now().UTC(),
		IP:          "203.0.113.9",
		Destination: "https://example.com/page",
	}
	dispatcher.Dispatch(context.Background(), srv.URL, entry)

	if gotType != "application/json" {
		t.Fatalf("unexpected content type %q", gotType)
	}

	var received model.AccessLogEntry
	if err := json.Unmarshal(gotBody, &received); err != nil {
		t.Fatalf("callback body is not valid JSON: %v", err)
	}
	if received.ID != "entry-1" || received.Slug != "abc123" {
		t.Fatalf("unexpected callback payload: %+v", received)
	}

	if !util.NewPayloadSigner(secret).Verify(gotBody, gotSignature) {
		t.Fatal("signature does not verify against the body")
	}
}

func TestCallbackDispatcher_SwallowsFailures(t *testing.T) {
	entry := &model.AccessLogEntry{ID: "entry-1", Slug: "abc123"}

	t.Run("non-2xx response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		dispatcher := NewCallbackDispatcher(CallbackDeps{
			Signer:  util.NewPayloadSigner(nil),
			Timeout: time.Second,
		})
		// Must return normally.
		dispatcher.Dispatch(context.Background(), srv.URL, entry)
	})

	t.Run("connection refused", func(t *testing.T) {
		dispatcher := NewCallbackDispatcher(CallbackDeps{
			Signer:  util.NewPayloadSigner(nil),
			Timeout: time.Second,
		})
		dispatcher.Dispatch(context.Background(), "http://127.0.0.1:1/callback", entry)
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-release
		}))
		defer func() {
			close(release)
			srv.Close()
		}()

		dispatcher := NewCallbackDispatcher(CallbackDeps{
			Signer:  util.NewPayloadSigner(nil),
			Timeout: 50 * time.Millisecond,
		})

		start := time.Now()
		dispatcher.Dispatch(context.Background(), srv.URL, entry)
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Fatalf("dispatch did not respect its timeout, took %v", elapsed)
		}
	})
}

func TestCallbackDispatcher_SkipsEmptyURL(t *testing.T) {
	dispatcher := NewCallbackDispatcher(CallbackDeps{
		Signer: util.NewPayloadSigner(nil),
	})
	dispatcher.Dispatch(context.Background(), "", &model.AccessLogEntry{ID: "entry-1"})
}

func TestCallbackDispatcher_UnsignedWithoutSecret(t *testing.T) {
	var gotSignature string
	seen := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = true
		gotSignature = r.Header.Get(SignatureHeader)
	}))
	defer srv.Close()

	dispatcher := NewCallbackDispatcher(CallbackDeps{
		Signer:  util.NewPayloadSigner(nil),
		Timeout: time.Second,
	})
	dispatcher.Dispatch(context.Background(), srv.URL, &model.AccessLogEntry{ID: "entry-1"})

	if !seen {
		t.Fatal("expected the callback to be delivered")
	}
	if gotSignature != "" {
		t.Fatalf("expected no signature header, got %q", gotSignature)
	}
}
