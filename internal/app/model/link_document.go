package model

import (
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// LinkDocument is the wire/cache representation of a link record. The store
// has gone through two schema generations: legacy documents carry
// `description`, `createdAt`/`reviewedAt` string timestamps and a
// `status` field, current documents carry `title`, `created_at`/`updated_at`
// and `is_active`. Both shapes decode here and normalize to a canonical Link
// so nothing outside this package branches on field presence.
type LinkDocument struct {
	Slug        string   `json:"slug"`
	OriginalURL string   `json:"original_url"`
	CallbackURL string   `json:"callback_url,omitempty"`
	Title       string   `json:"title,omitempty"`
	Notes       string   `json:"notes,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	IsActive    *bool    `json:"is_active,omitempty"`
	MaxClicks   *int64   `json:"max_clicks,omitempty"`
	ClickCount  int64    `json:"click_count,omitempty"`
	QRPNG       string   `json:"qr_png,omitempty"`
	QRSVG       string   `json:"qr_svg,omitempty"`

	CreatedAt DocTime  `json:"created_at,omitempty"`
	UpdatedAt *DocTime `json:"updated_at,omitempty"`
	ExpiresAt *DocTime `json:"expires_at,omitempty"`

	// Legacy generation fields. Never written, only read.
	Description     string   `json:"description,omitempty"`
	Status          string   `json:"status,omitempty"`
	LegacyCreatedAt *DocTime `json:"createdAt,omitempty"`
	LegacyReviewed  *DocTime `json:"reviewedAt,omitempty"`
}

// DocTime decodes the timestamp formats observed across schema generations:
// RFC3339 (with or without zone), bare dates, and null.
type DocTime time.Time

var docTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (t *DocTime) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*t = DocTime(time.Time{})
		return nil
	}
	if strings.HasSuffix(s, "Z") {
		s = strings.TrimSuffix(s, "Z") + "+00:00"
	}
	for _, layout := range docTimeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = DocTime(parsed.UTC())
			return nil
		}
	}
	// Unparseable timestamps degrade to zero instead of failing the read.
	*t = DocTime(time.Time{})
	return nil
}

func (t DocTime) MarshalJSON() ([]byte, error) {
	tt := time.Time(t)
	if tt.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(tt.UTC().Format(time.RFC3339))
}

func (t DocTime) Time() time.Time { return time.Time(t) }

func docTimePtr(t time.Time) *DocTime {
	d := DocTime(t.UTC())
	return &d
}

// Normalize resolves the legacy/current field split into a canonical Link.
func (d *LinkDocument) Normalize() *Link {
	title := d.Title
	if title == "" {
		title = d.Description
	}

	active := true
	switch {
	case d.IsActive != nil:
		active = *d.IsActive
	case d.Status != "":
		active = d.Status == "valid"
	}

	createdAt := d.CreatedAt.Time()
	if createdAt.IsZero() && d.LegacyCreatedAt != nil {
		createdAt = d.LegacyCreatedAt.Time()
	}
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var updatedAt time.Time
	if d.UpdatedAt != nil {
		updatedAt = d.UpdatedAt.Time()
	}
	if updatedAt.IsZero() && d.LegacyReviewed != nil {
		updatedAt = d.LegacyReviewed.Time()
	}

	var expiresAt *time.Time
	if d.ExpiresAt != nil && !d.ExpiresAt.Time().IsZero() {
		t := d.ExpiresAt.Time()
		expiresAt = &t
	}

	tags := d.Tags
	if tags == nil {
		tags = []string{}
	}

	return &Link{
		Slug:        d.Slug,
		OriginalURL: d.OriginalURL,
		CallbackURL: d.CallbackURL,
		Title:       title,
		Notes:       d.Notes,
		Tags:        tags,
		IsActive:    active,
		MaxClicks:   d.MaxClicks,
		ClickCount:  d.ClickCount,
		QRPNG:       d.QRPNG,
		QRSVG:       d.QRSVG,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
		ExpiresAt:   expiresAt,
	}
}

// DocumentFromLink renders a link in the current document shape. Legacy
// fields are left empty so they are omitted on encode.
func DocumentFromLink(l *Link) *LinkDocument {
	doc := &LinkDocument{
		Slug:        l.Slug,
		OriginalURL: l.OriginalURL,
		CallbackURL: l.CallbackURL,
		Title:       l.Title,
		Notes:       l.Notes,
		Tags:        l.Tags,
		IsActive:    &l.IsActive,
		MaxClicks:   l.MaxClicks,
		ClickCount:  l.ClickCount,
		QRPNG:       l.QRPNG,
		QRSVG:       l.QRSVG,
		CreatedAt:   DocTime(l.CreatedAt),
	}
	if !l.UpdatedAt.IsZero() {
		doc.UpdatedAt = docTimePtr(l.UpdatedAt)
	}
	if l.ExpiresAt != nil {
		doc.ExpiresAt = docTimePtr(*l.ExpiresAt)
	}
	return doc
}

// DecodeLinkDocument parses a raw document of either schema generation and
// returns the normalized link.
func DecodeLinkDocument(data []byte) (*Link, error) {
	var doc LinkDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc.Normalize(), nil
}

// EncodeLinkDocument serializes a link in the current document shape.
func EncodeLinkDocument(l *Link) ([]byte, error) {
	return json.Marshal(DocumentFromLink(l))
}
