// Package metrics exposes the Prometheus registry used by the rank search
// engine. All metrics are defined in their respective packages (cache,
// client, ratelimit, scan, search) via promauto and land in the default
// registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by every package.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer matching Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - mindshare_cache_hits_total{layer} (Counter): Cache hits by layer (memory, redis)
//   - mindshare_cache_misses_total{layer} (Counter): Cache misses, expired entries included
//   - mindshare_cache_entries{layer} (Gauge): Entries held by the memory store
//   - mindshare_cache_errors_total{layer, operation} (Counter): Cache operation errors
//
// Request Metrics (pkg/client):
//   - mindshare_requests_total{timeframe, status} (Counter): Page requests by timeframe and HTTP status
//   - mindshare_request_duration_seconds{timeframe} (Histogram): Page fetch duration, retries included
//   - mindshare_errors_total{class} (Counter): Failed attempts by class (client, server, rate_limit, network, malformed)
//
// Retry Metrics (pkg/client):
//   - mindshare_retries_total{error_class} (Counter): Retry attempts by error class
//   - mindshare_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - mindshare_retry_exhausted_total{error_class} (Counter): Fetches that exhausted their attempts
//
// Rate Limit Metrics (pkg/ratelimit):
//   - mindshare_rate_limit_cooldowns_total (Counter): Cooldowns started by 429 responses
//   - mindshare_rate_limit_wait_seconds (Histogram): Time spent waiting before a request
//   - mindshare_rate_limit_consecutive_429 (Gauge): Current streak of 429 responses
//
// Scan Metrics (pkg/scan):
//   - mindshare_scans_total{timeframe, outcome} (Counter): Scans by outcome (found, not_found, inconclusive, cancelled)
//   - mindshare_scan_pages_total{timeframe, result} (Counter): Pages examined (ok, failed, no_data)
//   - mindshare_scan_duration_seconds{timeframe} (Histogram): Scan duration
//
// Search Metrics (pkg/search):
//   - mindshare_searches_total (Counter): Searches started
//   - mindshare_stale_writes_total{kind} (Counter): Writes dropped from superseded searches
//   - mindshare_search_outcomes_total{timeframe, status} (Counter): Committed outcomes
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(mindshare_cache_hits_total[5m])) /
//   (sum(rate(mindshare_cache_hits_total[5m])) + sum(rate(mindshare_cache_misses_total[5m])))
//
//   # Skipped page rate
//   sum(rate(mindshare_scan_pages_total{result="failed"}[5m])) / sum(rate(mindshare_scan_pages_total[5m]))
//
//   # Inconclusive scans
//   rate(mindshare_scans_total{outcome="inconclusive"}[15m])
//
//   # P95 Page Fetch Latency
//   histogram_quantile(0.95, rate(mindshare_request_duration_seconds_bucket[5m]))
