package model

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func TestDecodeLinkDocument_CurrentShape(t *testing.T) {
	raw := []byte(`{
		"slug": "abc123",
		"original_url": "https://example.com/page",
		"callback_url": "https://hooks.example.com/x",
		"title": "Landing page",
		"tags": ["campaign", "q3"],
		"is_active": false,
		"click_count": 42,
		"created_at": "2026-03-01T10:00:00Z"
	}`)

	link, err := DecodeLinkDocument(raw)
	if err != nil {
		t.Fatalf("DecodeLinkDocument error: %v", err)
	}
	if link.Slug != "abc123" || link.Title != "Landing page" {
		t.Fatalf("unexpected link: %+v", link)
	}
	if link.IsActive {
		t.Fatal("is_active=false must map to an inactive link")
	}
	if link.ClickCount != 42 {
		t.Fatalf("unexpected click count %d", link.ClickCount)
	}
	want := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if !link.CreatedAt.Equal(want) {
		t.Fatalf("unexpected created at %v", link.CreatedAt)
	}
	if len(link.Tags) != 2 {
		t.Fatalf("unexpected tags %v", link.Tags)
	}
}

func TestDecodeLinkDocument_LegacyShape(t *testing.T) {
	raw := []byte(`{
		"slug": "old001",
		"original_url": "https://example.com/legacy",
		"description": "Old campaign",
		"status": "valid",
		"createdAt": "2023-11-05 08:30:00",
		"reviewedAt": "2023-12-01 09:00:00"
	}`)

	link, err := DecodeLinkDocument(raw)
	if err != nil {
		t.Fatalf("DecodeLinkDocument error: %v", err)
	}
	if link.Title != "Old campaign" {
		t.Fatalf("description must populate the title, got %q", link.Title)
	}
	if !link.IsActive {
		t.Fatal(`status "valid" must map to an active link`)
	}
	want := time.Date(2023, 11, 5, 8, 30, 0, 0, time.UTC)
	if !link.CreatedAt.Equal(want) {
		t.Fatalf("unexpected created at %v", link.CreatedAt)
	}
	if link.UpdatedAt.IsZero() {
		t.Fatal("reviewedAt must populate the updated timestamp")
	}
}

func TestDecodeLinkDocument_LegacyInvalidStatus(t *testing.T) {
	raw := []byte(`{"slug":"old002","original_url":"https://example.com","status":"revoked"}`)

	link, err := DecodeLinkDocument(raw)
	if err != nil {
		t.Fatalf("DecodeLinkDocument error: %v", err)
	}
	if link.IsActive {
		t.Fatalf(`status %q must map to an inactive link`, "revoked")
	}
}

func TestDecodeLinkDocument_CurrentFieldsWin(t *testing.T) {
	// A mixed document carries both generations; the current fields win.
	raw := []byte(`{
		"slug": "mix001",
		"original_url": "https://example.com",
		"title": "Current title",
		"description": "Legacy description",
		"is_active": false,
		"status": "valid",
		"created_at": "2026-01-01T00:00:00Z",
		"createdAt": "2020-01-01 00:00:00"
	}`)

	link, err := DecodeLinkDocument(raw)
	if err != nil {
		t.Fatalf("DecodeLinkDocument error: %v", err)
	}
	if link.Title != "Current title" {
		t.Fatalf("expected the current title to win, got %q", link.Title)
	}
	if link.IsActive {
		t.Fatal("is_active must take precedence over status")
	}
	if link.CreatedAt.Year() != 2026 {
		t.Fatalf("created_at must take precedence over createdAt, got %v", link.CreatedAt)
	}
}

func TestDecodeLinkDocument_MissingStateDefaultsActive(t *testing.T) {
	link, err := DecodeLinkDocument([]byte(`{"slug":"bare01","original_url":"https://example.com"}`))
	if err != nil {
		t.Fatalf("DecodeLinkDocument error: %v", err)
	}
	if !link.IsActive {
		t.Fatal("documents without state fields must default to active")
	}
	if link.CreatedAt.IsZero() {
		t.Fatal("missing timestamps must fall back to now, not zero")
	}
	if link.Tags == nil {
		t.Fatal("tags must normalize to an empty slice")
	}
}

func TestDocTime_Formats(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Time
	}{
		{`"2026-03-01T10:00:00Z"`, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)},
		{`"2026-03-01T10:00:00+02:00"`, time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)},
		{`"2026-03-01T10:00:00"`, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)},
		{`"2026-03-01 10:00:00"`, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)},
		{`"2026-03-01"`, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
		{`null`, time.Time{}},
		{`"garbage"`, time.Time{}},
	}

	for _, tt := range tests {
		var dt DocTime
		if err := json.Unmarshal([]byte(tt.raw), &dt); err != nil {
			t.Fatalf("unmarshal %s: %v", tt.raw, err)
		}
		if !dt.Time().Equal(tt.want) {
			t.Errorf("DocTime(%s) = %v, want %v", tt.raw, dt.Time(), tt.want)
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	expires := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	original := &Link{
		Slug:        "abc123",
		OriginalURL: "https://example.com/page",
		Title:       "Page",
		Tags:        []string{"a"},
		IsActive:    true,
		ClickCount:  7,
		CreatedAt:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		ExpiresAt:   &expires,
	}

	data, err := EncodeLinkDocument(original)
	if err != nil {
		t.Fatalf("EncodeLinkDocument error: %v", err)
	}

	decoded, err := DecodeLinkDocument(data)
	if err != nil {
		t.Fatalf("DecodeLinkDocument error: %v", err)
	}
	if decoded.Slug != original.Slug ||
		decoded.OriginalURL != original.OriginalURL ||
		decoded.Title != original.Title ||
		decoded.IsActive != original.IsActive ||
		decoded.ClickCount != original.ClickCount {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}
	if !decoded.CreatedAt.Equal(original.CreatedAt) {
		t.Fatalf("created at mismatch: %v", decoded.CreatedAt)
	}
	if decoded.ExpiresAt == nil || !decoded.ExpiresAt.Equal(expires) {
		t.Fatalf("expires at mismatch: %v", decoded.ExpiresAt)
	}
}

func TestValidSlug(t *testing.T) {
	valid := []string{"abc", "abc123", "with_underscore", "with-dash", "ABC999"}
	for _, s := range valid {
		if !ValidSlug(s) {
			t.Errorf("expected %q to be valid", s)
		}
	}

	invalid := []string{"", "ab", "has space", "has/slash", "emoji😀", "x"}
	for _, s := range invalid {
		if ValidSlug(s) {
			t.Errorf("expected %q to be invalid", s)
		}
	}
}
