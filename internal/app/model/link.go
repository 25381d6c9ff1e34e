package model

import (
	"regexp"
	"time"
)

// Link describes the core short-link entity stored in Postgres.
// The slug is globally unique and immutable once assigned.
type Link struct {
	Slug        string     `json:"slug" gorm:"primaryKey;size:64"`
	OriginalURL string     `json:"original_url" gorm:"type:text;not null"`
	CallbackURL string     `json:"callback_url,omitempty" gorm:"type:text"`
	Title       string     `json:"title,omitempty" gorm:"size:255"`
	Notes       string     `json:"notes,omitempty" gorm:"type:text"`
	Tags        []string   `json:"tags" gorm:"type:jsonb;serializer:json"`
	IsActive    bool       `json:"is_active" gorm:"not null;default:true"`
	MaxClicks   *int64     `json:"max_clicks,omitempty"`
	ClickCount  int64      `json:"click_count" gorm:"not null;default:0"`
	QRPNG       string     `json:"qr_png,omitempty" gorm:"type:text"`
	QRSVG       string     `json:"qr_svg,omitempty" gorm:"type:text"`
	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime;index"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty" gorm:"index"`
}

var slugPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,64}$`)

// ValidSlug reports whether s is an acceptable short-link slug.
func ValidSlug(s string) bool {
	return slugPattern.MatchString(s)
}

// Expired reports whether the link has passed its expiry timestamp.
func (l *Link) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && now.After(*l.ExpiresAt)
}

// OverClickLimit reports whether the link has consumed its click budget.
func (l *Link) OverClickLimit() bool {
	return l.MaxClicks != nil && l.ClickCount >= *l.MaxClicks
}
