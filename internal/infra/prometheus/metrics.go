package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the application-level collectors. One instance is built at
// startup and shared by the redirect engine, the access pipeline, and the
// HTTP middleware.
type Metrics struct {
	Redirects        *prometheus.CounterVec
	EventsPublished  prometheus.Counter
	EventsConsumed   *prometheus.CounterVec
	CallbackDispatch *prometheus.CounterVec
	GeoLookups       *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
}

// Redirect outcomes recorded on the Redirects counter.
const (
	OutcomeRedirected = "redirected"
	OutcomeNotFound   = "not_found"
	OutcomeGone       = "gone"
	OutcomeError      = "error"
)

// Result labels shared by EventsConsumed, CallbackDispatch and GeoLookups.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

// NewMetrics registers the application collectors on the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		Redirects: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "linktrace",
			Name:      "redirects_total",
			Help:      "Redirect resolutions by outcome.",
		}, []string{"outcome"}),
		EventsPublished: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "linktrace",
			Name:      "access_events_published_total",
			Help:      "Access events published to the stream.",
		}),
		EventsConsumed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "linktrace",
			Name:      "access_events_consumed_total",
			Help:      "Access events consumed from the stream by result.",
		}, []string{"result"}),
		CallbackDispatch: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "linktrace",
			Name:      "callback_dispatch_total",
			Help:      "Webhook callback dispatches by result.",
		}, []string{"result"}),
		GeoLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "linktrace",
			Name:      "geo_lookup_total",
			Help:      "Geo enrichment lookups by result.",
		}, []string{"result"}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "linktrace",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}
