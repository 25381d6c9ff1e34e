package service

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/mileusna/useragent"
	"github.com/talmeida/linktrace/internal/app/model"
	infraprom "github.com/talmeida/linktrace/internal/infra/prometheus"
	"go.uber.org/zap"
)

// GeoProvider resolves geolocation facts for a public IP address.
// Implementations are expected to be slow and unreliable; callers treat any
// error as "no geo data".
type GeoProvider interface {
	Lookup(ctx context.Context, ip string) (model.GeoFacts, error)
}

// Enricher derives device and geo facts from request metadata. Both lookups
// are advisory analytics data: DescribeClient always returns a value and
// never reports an error to the caller.
type Enricher struct {
	logger  *zap.Logger
	geo     GeoProvider
	metrics *infraprom.Metrics
	timeout time.Duration
}

// EnricherDeps groups dependencies for NewEnricher.
type EnricherDeps struct {
	Logger     *zap.Logger
	Geo        GeoProvider
	Metrics    *infraprom.Metrics
	GeoTimeout time.Duration
}

// NewEnricher creates an enrichment service.
func NewEnricher(deps EnricherDeps) *Enricher {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := deps.GeoTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Enricher{
		logger:  logger,
		geo:     deps.Geo,
		metrics: deps.Metrics,
		timeout: timeout,
	}
}

// DescribeClient parses the user-agent and resolves the IP's geolocation.
// Unparseable user-agents degrade to zero-valued device facts; private or
// unresolvable IPs degrade to IP-only geo facts.
func (e *Enricher) DescribeClient(ctx context.Context, ua, ip string) (model.DeviceFacts, model.GeoFacts) {
	return ParseUserAgent(ua), e.describeIP(ctx, ip)
}

// ParseUserAgent classifies a user-agent string. The mobile/tablet/pc flags
// come straight from the parser and are independent hints, not an enum.
func ParseUserAgent(ua string) model.DeviceFacts {
	if strings.TrimSpace(ua) == "" {
		return model.DeviceFacts{}
	}
	parsed := useragent.Parse(ua)
	return model.DeviceFacts{
		Browser:        parsed.Name,
		BrowserVersion: parsed.Version,
		OS:             parsed.OS,
		OSVersion:      parsed.OSVersion,
		Device:         parsed.Device,
		IsMobile:       parsed.Mobile,
		IsTablet:       parsed.Tablet,
		IsPC:           parsed.Desktop,
	}
}

func (e *Enricher) describeIP(ctx context.Context, ip string) model.GeoFacts {
	facts := model.GeoFacts{IP: ip}

	if !lookupableIP(ip) {
		if e.metrics != nil {
			e.metrics.GeoLookups.WithLabelValues(infraprom.ResultSkipped).Inc()
		}
		return facts
	}

	lookupCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resolved, err := e.geo.Lookup(lookupCtx, ip)
	if err != nil {
		if e.metrics != nil {
			e.metrics.GeoLookups.WithLabelValues(infraprom.ResultError).Inc()
		}
		e.logger.Debug("geo lookup degraded", zap.String("ip", ip), zap.Error(err))
		return facts
	}

	if e.metrics != nil {
		e.metrics.GeoLookups.WithLabelValues(infraprom.ResultOK).Inc()
	}
	resolved.IP = ip
	return resolved
}

// lookupableIP reports whether the address is worth an external lookup.
// Private, loopback, link-local and unparseable addresses are skipped.
func lookupableIP(ip string) bool {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return false
	}
	if parsed.IsPrivate() || parsed.IsLoopback() || parsed.IsUnspecified() ||
		parsed.IsLinkLocalUnicast() || parsed.IsLinkLocalMulticast() {
		return false
	}
	return true
}

// IPWhoisProvider queries the ipwho.is JSON API.
type IPWhoisProvider struct {
	client  *http.Client
	baseURL string
}

// NewIPWhoisProvider builds a provider against baseURL (default
// https://ipwho.is). The timeout bounds a single lookup.
func NewIPWhoisProvider(baseURL string, timeout time.Duration) *IPWhoisProvider {
	if baseURL == "" {
		baseURL = "https://ipwho.is"
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &IPWhoisProvider{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type ipWhoisResponse struct {
	Success   bool     `json:"success"`
	Country   string   `json:"country"`
	Region    string   `json:"region"`
	City      string   `json:"city"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Org       string   `json:"org"`
}

// Lookup performs a single bounded GET {base}/{ip}.
func (p *IPWhoisProvider) Lookup(ctx context.Context, ip string) (model.GeoFacts, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/"+ip, nil)
	if err != nil {
		return model.GeoFacts{}, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return model.GeoFacts{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.GeoFacts{}, fmt.Errorf("geo provider status %d", resp.StatusCode)
	}

	var payload ipWhoisResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return model.GeoFacts{}, fmt.Errorf("geo provider payload: %w", err)
	}
	if !payload.Success {
		return model.GeoFacts{}, fmt.Errorf("geo provider reported failure for %s", ip)
	}

	return model.GeoFacts{
		IP:        ip,
		Country:   payload.Country,
		Region:    payload.Region,
		City:      payload.City,
		Latitude:  payload.Latitude,
		Longitude: payload.Longitude,
		Org:       payload.Org,
	}, nil
}
