package service

import (
	"fmt"
	"strings"
	"time"
)

// ResolvedRange is a dashboard query window resolved to both the caller's
// timezone and UTC.
type ResolvedRange struct {
	TZ        string
	FromLocal time.Time
	ToLocal   time.Time
	FromUTC   time.Time
	ToUTC     time.Time
}

// ResolveRange interprets the optional from/to parameters (bare dates or
// RFC3339 timestamps) in the named IANA timezone. Missing bounds default to
// the trailing defaultDays window ending now; inverted bounds are swapped.
func ResolveRange(fromParam, toParam, tzName string, defaultDays int) (ResolvedRange, error) {
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return ResolvedRange{}, fmt.Errorf("invalid timezone %q: %w", tzName, err)
	}
	if defaultDays <= 0 {
		defaultDays = 7
	}

	nowLocal := time.Now().In(loc)

	fromLocal, err := parseRangeBound(fromParam, loc)
	if err != nil {
		return ResolvedRange{}, err
	}
	toLocal, err := parseRangeBound(toParam, loc)
	if err != nil {
		return ResolvedRange{}, err
	}

	window := time.Duration(defaultDays) * 24 * time.Hour
	switch {
	case fromLocal.IsZero() && toLocal.IsZero():
		toLocal = nowLocal
		fromLocal = nowLocal.Add(-window)
	case fromLocal.IsZero():
		fromLocal = toLocal.Add(-window)
	case toLocal.IsZero():
		toLocal = nowLocal
	}

	if fromLocal.After(toLocal) {
		fromLocal, toLocal = toLocal, fromLocal
	}

	return ResolvedRange{
		TZ:        tzName,
		FromLocal: fromLocal,
		ToLocal:   toLocal,
		FromUTC:   fromLocal.UTC(),
		ToUTC:     toLocal.UTC(),
	}, nil
}

// parseRangeBound accepts YYYY-MM-DD (midnight in loc) or an RFC3339
// timestamp with or without an explicit zone.
func parseRangeBound(value string, loc *time.Location) (time.Time, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return time.Time{}, nil
	}

	if len(v) == 10 {
		t, err := time.ParseInLocation("2006-01-02", v, loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date %q: %w", value, err)
		}
		return t, nil
	}

	if strings.HasSuffix(v, "Z") {
		v = strings.TrimSuffix(v, "Z") + "+00:00"
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.In(loc), nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05", v, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid datetime %q", value)
	}
	return t, nil
}
