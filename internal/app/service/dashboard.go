package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Dashboard runs read-only analytics over the access-log and link tables.
// It speaks SQL directly through the shared pgx pool; writes stay with the
// GORM repositories.
type Dashboard struct {
	logger *zap.Logger
	pool   *pgxpool.Pool
}

// NewDashboard creates the aggregator.
func NewDashboard(logger *zap.Logger, pool *pgxpool.Pool) *Dashboard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dashboard{logger: logger, pool: pool}
}

// SeriesPoint is one time bucket of click counts.
type SeriesPoint struct {
	Bucket string `json:"bucket"`
	Clicks int64  `json:"clicks"`
}

// TopLink is one row of the most-clicked ranking.
type TopLink struct {
	Slug        string     `json:"slug"`
	Title       string     `json:"title,omitempty"`
	OriginalURL string     `json:"original_url,omitempty"`
	Clicks      int64      `json:"clicks"`
	LastClick   *time.Time `json:"last_click,omitempty"`
}

// Overview aggregates activity across all links in the window.
type Overview struct {
	Range       ResolvedRange `json:"range"`
	ClicksTotal int64         `json:"clicks_total"`
	UniqueIPs   int64         `json:"unique_ips"`
	LinksTotal  int64         `json:"links_total"`
	LinksActive int64         `json:"links_active"`
	TopLinks    []TopLink     `json:"top_links"`
	Series      []SeriesPoint `json:"series"`
}

// Breakdown is a keyed count (browser, os, device type, referer).
type Breakdown struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// GeoBreakdown is a count per country/region/city tuple.
type GeoBreakdown struct {
	Country string `json:"country,omitempty"`
	Region  string `json:"region,omitempty"`
	City    string `json:"city,omitempty"`
	Count   int64  `json:"count"`
}

// LinkStats aggregates one slug's activity in the window.
type LinkStats struct {
	Range       ResolvedRange  `json:"range"`
	Slug        string         `json:"slug"`
	ClicksTotal int64          `json:"clicks_total"`
	UniqueIPs   int64          `json:"unique_ips"`
	LastClick   *time.Time     `json:"last_click,omitempty"`
	Series      []SeriesPoint  `json:"series"`
	Browsers    []Breakdown    `json:"browsers"`
	OS          []Breakdown    `json:"os"`
	DeviceTypes []Breakdown    `json:"device_type"`
	Referers    []Breakdown    `json:"referers"`
	Geo         []GeoBreakdown `json:"geo"`
}

// Overview computes the all-links summary for the window.
func (d *Dashboard) Overview(ctx context.Context, rr ResolvedRange, topN int) (*Overview, error) {
	if topN <= 0 {
		topN = 10
	}

	out := &Overview{Range: rr}

	err := d.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT ip)
		FROM access_logs
		WHERE timestamp >= $1 AND timestamp <= $2`,
		rr.FromUTC, rr.ToUTC,
	).Scan(&out.ClicksTotal, &out.UniqueIPs)
	if err != nil {
		return nil, fmt.Errorf("dashboard summary: %w", err)
	}

	err = d.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE is_active)
		FROM links`,
	).Scan(&out.LinksTotal, &out.LinksActive)
	if err != nil {
		return nil, fmt.Errorf("dashboard link counts: %w", err)
	}

	out.Series, err = d.series(ctx, "", rr, "day")
	if err != nil {
		return nil, err
	}

	out.TopLinks, err = d.topLinks(ctx, rr, topN)
	if err != nil {
		return nil, err
	}

	return out, nil
}

// LinkStats computes per-slug aggregates and breakdowns.
func (d *Dashboard) LinkStats(ctx context.Context, slug string, rr ResolvedRange, groupBy string, topN int) (*LinkStats, error) {
	if topN <= 0 {
		topN = 10
	}
	if groupBy != "hour" {
		groupBy = "day"
	}

	stats := &LinkStats{Range: rr, Slug: slug}

	err := d.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT ip), MAX(timestamp)
		FROM access_logs
		WHERE slug = $1 AND timestamp >= $2 AND timestamp <= $3`,
		slug, rr.FromUTC, rr.ToUTC,
	).Scan(&stats.ClicksTotal, &stats.UniqueIPs, &stats.LastClick)
	if err != nil {
		return nil, fmt.Errorf("link stats summary: %w", err)
	}

	stats.Series, err = d.series(ctx, slug, rr, groupBy)
	if err != nil {
		return nil, err
	}

	for _, b := range []struct {
		column string
		dest   *[]Breakdown
	}{
		{"browser", &stats.Browsers},
		{"os", &stats.OS},
		{"referer", &stats.Referers},
	} {
		*b.dest, err = d.breakdown(ctx, slug, rr, b.column, topN)
		if err != nil {
			return nil, err
		}
	}

	stats.DeviceTypes, err = d.deviceTypeBreakdown(ctx, slug, rr, topN)
	if err != nil {
		return nil, err
	}

	stats.Geo, err = d.geoBreakdown(ctx, slug, rr, topN)
	if err != nil {
		return nil, err
	}

	return stats, nil
}

func (d *Dashboard) series(ctx context.Context, slug string, rr ResolvedRange, groupBy string) ([]SeriesPoint, error) {
	format := "YYYY-MM-DD"
	if groupBy == "hour" {
		format = `YYYY-MM-DD HH24:00`
	}

	query := `
		SELECT to_char(timestamp AT TIME ZONE $1, '` + format + `') AS bucket, COUNT(*)
		FROM access_logs
		WHERE timestamp >= $2 AND timestamp <= $3`
	args := []any{rr.TZ, rr.FromUTC, rr.ToUTC}
	if slug != "" {
		query += ` AND slug = $4`
		args = append(args, slug)
	}
	query += ` GROUP BY bucket ORDER BY bucket`

	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("dashboard series: %w", err)
	}
	defer rows.Close()

	return scanRows(rows, func(row pgx.Rows) (SeriesPoint, error) {
		var p SeriesPoint
		err := row.Scan(&p.Bucket, &p.Clicks)
		return p, err
	})
}

func (d *Dashboard) topLinks(ctx context.Context, rr ResolvedRange, topN int) ([]TopLink, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT a.slug, COUNT(*) AS clicks, MAX(a.timestamp) AS last_click,
		       COALESCE(l.title, ''), COALESCE(l.original_url, '')
		FROM access_logs a
		LEFT JOIN links l ON l.slug = a.slug
		WHERE a.timestamp >= $1 AND a.timestamp <= $2
		GROUP BY a.slug, l.title, l.original_url
		ORDER BY clicks DESC
		LIMIT $3`,
		rr.FromUTC, rr.ToUTC, topN,
	)
	if err != nil {
		return nil, fmt.Errorf("dashboard top links: %w", err)
	}
	defer rows.Close()

	return scanRows(rows, func(row pgx.Rows) (TopLink, error) {
		var t TopLink
		err := row.Scan(&t.Slug, &t.Clicks, &t.LastClick, &t.Title, &t.OriginalURL)
		return t, err
	})
}

func (d *Dashboard) breakdown(ctx context.Context, slug string, rr ResolvedRange, column string, topN int) ([]Breakdown, error) {
	// column comes from a fixed set above, never from the request.
	rows, err := d.pool.Query(ctx, `
		SELECT COALESCE(NULLIF(`+column+`, ''), 'unknown') AS key, COUNT(*) AS count
		FROM access_logs
		WHERE slug = $1 AND timestamp >= $2 AND timestamp <= $3
		GROUP BY key
		ORDER BY count DESC
		LIMIT $4`,
		slug, rr.FromUTC, rr.ToUTC, topN,
	)
	if err != nil {
		return nil, fmt.Errorf("dashboard %s breakdown: %w", column, err)
	}
	defer rows.Close()

	return scanRows(rows, func(row pgx.Rows) (Breakdown, error) {
		var b Breakdown
		err := row.Scan(&b.Key, &b.Count)
		return b, err
	})
}

func (d *Dashboard) deviceTypeBreakdown(ctx context.Context, slug string, rr ResolvedRange, topN int) ([]Breakdown, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT CASE
		         WHEN is_mobile THEN 'mobile'
		         WHEN is_tablet THEN 'tablet'
		         WHEN is_pc THEN 'pc'
		         ELSE 'other'
		       END AS key, COUNT(*) AS count
		FROM access_logs
		WHERE slug = $1 AND timestamp >= $2 AND timestamp <= $3
		GROUP BY key
		ORDER BY count DESC
		LIMIT $4`,
		slug, rr.FromUTC, rr.ToUTC, topN,
	)
	if err != nil {
		return nil, fmt.Errorf("dashboard device breakdown: %w", err)
	}
	defer rows.Close()

	return scanRows(rows, func(row pgx.Rows) (Breakdown, error) {
		var b Breakdown
		err := row.Scan(&b.Key, &b.Count)
		return b, err
	})
}

func (d *Dashboard) geoBreakdown(ctx context.Context, slug string, rr ResolvedRange, topN int) ([]GeoBreakdown, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT COALESCE(country, ''), COALESCE(region, ''), COALESCE(city, ''), COUNT(*) AS count
		FROM access_logs
		WHERE slug = $1 AND timestamp >= $2 AND timestamp <= $3
		GROUP BY country, region, city
		ORDER BY count DESC
		LIMIT $4`,
		slug, rr.FromUTC, rr.ToUTC, topN,
	)
	if err != nil {
		return nil, fmt.Errorf("dashboard geo breakdown: %w", err)
	}
	defer rows.Close()

	geo, err := scanRows(rows, func(row pgx.Rows) (GeoBreakdown, error) {
		var g GeoBreakdown
		err := row.Scan(&g.Country, &g.Region, &g.City, &g.Count)
		return g, err
	})
	if err != nil {
		return nil, err
	}

	// Drop rows with no geo data at all rather than reporting an empty tuple.
	return lo.Filter(geo, func(g GeoBreakdown, _ int) bool {
		return g.Country != "" || g.Region != "" || g.City != ""
	}), nil
}

func scanRows[T any](rows pgx.Rows, scan func(pgx.Rows) (T, error)) ([]T, error) {
	var out []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}
