package model

import "time"

// DeviceFacts are derived from the user-agent string. The mobile/tablet/pc
// flags are independent hints from the parser, not an enum.
type DeviceFacts struct {
	Browser        string `json:"browser,omitempty"`
	BrowserVersion string `json:"browser_version,omitempty"`
	OS             string `json:"os,omitempty"`
	OSVersion      string `json:"os_version,omitempty"`
	Device         string `json:"device,omitempty"`
	IsMobile       bool   `json:"is_mobile"`
	IsTablet       bool   `json:"is_tablet"`
	IsPC           bool   `json:"is_pc"`
}

// GeoFacts are derived from the client IP. Every field except IP may be
// absent when the lookup was skipped or failed.
type GeoFacts struct {
	IP        string   `json:"ip"`
	Country   string   `json:"country,omitempty"`
	Region    string   `json:"region,omitempty"`
	City      string   `json:"city,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Org       string   `json:"org,omitempty"`
}

// AccessLogEntry records one redirect attempt. Entries are written exactly
// once and never mutated; the slug is a soft reference and may later be
// rewritten to a tombstoned value when the link is deleted.
type AccessLogEntry struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	Slug      string    `json:"slug" gorm:"size:128;not null;index:idx_access_logs_slug_ts,priority:1"`
	Timestamp time.Time `json:"timestamp" gorm:"not null;index:idx_access_logs_slug_ts,priority:2,sort:desc"`

	IP        string `json:"ip" gorm:"size:64"`
	UserAgent string `json:"user_agent,omitempty" gorm:"type:text"`
	Referer   string `json:"referer,omitempty" gorm:"type:text"`

	Browser        string `json:"browser,omitempty" gorm:"size:64"`
	BrowserVersion string `json:"browser_version,omitempty" gorm:"size:64"`
	OS             string `json:"os,omitempty" gorm:"size:64"`
	OSVersion      string `json:"os_version,omitempty" gorm:"size:64"`
	Device         string `json:"device,omitempty" gorm:"size:128"`
	IsMobile       bool   `json:"is_mobile"`
	IsTablet       bool   `json:"is_tablet"`
	IsPC           bool   `json:"is_pc"`

	Country   string   `json:"country,omitempty" gorm:"size:64"`
	Region    string   `json:"region,omitempty" gorm:"size:64"`
	City      string   `json:"city,omitempty" gorm:"size:128"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Org       string   `json:"org,omitempty" gorm:"size:128"`

	// Destination is the URL actually redirected to, post query-merge.
	Destination string `json:"destination" gorm:"type:text"`
}

// TableName keeps the table name aligned with the historical collection.
func (AccessLogEntry) TableName() string {
	return "access_logs"
}

// ApplyDevice copies parsed device facts onto the entry.
func (e *AccessLogEntry) ApplyDevice(d DeviceFacts) {
	e.Browser = d.Browser
	e.BrowserVersion = d.BrowserVersion
	e.OS = d.OS
	e.OSVersion = d.OSVersion
	e.Device = d.Device
	e.IsMobile = d.IsMobile
	e.IsTablet = d.IsTablet
	e.IsPC = d.IsPC
}

// ApplyGeo copies resolved geo facts onto the entry.
func (e *AccessLogEntry) ApplyGeo(g GeoFacts) {
	if g.IP != "" {
		e.IP = g.IP
	}
	e.Country = g.Country
	e.Region = g.Region
	e.City = g.City
	e.Latitude = g.Latitude
	e.Longitude = g.Longitude
	e.Org = g.Org
}

const (
	AccessStreamName     = "ACCESS_LOGS"
	AccessStreamSubject  = "access.events"
	AccessConsumerName   = "access-logger"
	AccessStreamMaxBytes = 1024 * 1024 * 100 // 100MB
)
