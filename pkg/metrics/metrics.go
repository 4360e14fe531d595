// Package metrics exposes the Prometheus registry shared by all discogs-sync
// packages. Metrics are defined next to the code that updates them (client,
// cache, ratelimit, coordinator, export) and registered via promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer used by every package.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer matching Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the metrics of Gatherer in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Every metric carries an account label.
//
// Quota Metrics (pkg/ratelimit):
//   - discogs_quota_remaining (Gauge): Calls left in the current window, reported or predicted
//   - discogs_quota_limit (Gauge): Calls allowed per window
//   - discogs_rate_limit_denials_total{reason} (Counter): Local denials by floor, budget or cooldown
//
// Request Metrics (pkg/client):
//   - discogs_requests_total{resource, status} (Counter): Requests by resource and HTTP status
//   - discogs_request_duration_seconds{resource} (Histogram): Request duration by resource
//   - discogs_errors_total{kind} (Counter): Failed calls by kind (unauthorized, not_found, rate_limited, network, unknown)
//
// Cache Metrics (pkg/cache):
//   - discogs_category_fetches_total{category, result} (Counter): Recorded fetch outcomes
//   - discogs_category_consecutive_failures{category} (Gauge): Failures since the last success
//   - discogs_mirror_errors_total{operation} (Counter): Redis mirror errors
//
// Polling Metrics (pkg/coordinator):
//   - discogs_ticks_total{result} (Counter): Ticks by outcome
//   - discogs_category_deferred_total{category} (Counter): Refreshes deferred by the limiter
//
// Export Metrics (pkg/export):
//   - discogs_exports_total{kind, result} (Counter): Export runs by outcome
//   - discogs_export_items{kind} (Gauge): Items in the last successful export
//
// Example Prometheus Queries:
//
//   # Quota headroom
//   discogs_quota_remaining / discogs_quota_limit
//
//   # Denials per minute
//   sum by (reason) (rate(discogs_rate_limit_denials_total[5m])) * 60
//
//   # Categories currently failing
//   discogs_category_consecutive_failures > 0
//
//   # P95 request latency
//   histogram_quantile(0.95, rate(discogs_request_duration_seconds_bucket[5m]))
