package metrics

import (
	"time"

	"github.com/leaveopt/leaveopt/internal/observability"
)

// Plan proxy metrics following Prometheus conventions
const (
	CacheHitsTotal      = "plan_cache_hits_total"
	CacheMissesTotal    = "plan_cache_misses_total"
	CacheErrorsTotal    = "plan_cache_errors_total"
	UpstreamCallsTotal  = "plan_upstream_calls_total"
	UpstreamDuration    = "plan_upstream_duration_ms"
	SharedFlightsTotal  = "plan_shared_flights_total"
	RateLimitRejections = "rate_limit_rejections_total"
	RateLimitWindows    = "rate_limit_active_windows"
)

// RecordCacheLookup records a cache hit or miss for the given backend.
func RecordCacheLookup(backend string, hit bool) {
	if observability.TelemetrySystem == nil {
		return
	}
	name := CacheMissesTotal
	if hit {
		name = CacheHitsTotal
	}
	_ = observability.TelemetrySystem.Counter(name, 1, map[string]string{"backend": backend})
}

// RecordCacheError records a failed cache read or write.
func RecordCacheError(backend, op string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(CacheErrorsTotal, 1, map[string]string{
		"backend": backend,
		"op":      op,
	})
}

// RecordUpstreamCall records one upstream completion call and its latency.
// status is "success", "upstream" or "malformed".
func RecordUpstreamCall(status string, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(UpstreamCallsTotal, 1, map[string]string{"status": status})
	_ = observability.TelemetrySystem.Histogram(UpstreamDuration, duration, map[string]string{"status": status})
}

// RecordSharedFlight records a request that joined an in-flight upstream call.
func RecordSharedFlight() {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(SharedFlightsTotal, 1, nil)
}

// RecordRateLimitRejection records a request rejected by the rate limiter.
func RecordRateLimitRejection(endpoint string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(RateLimitRejections, 1, map[string]string{"endpoint": endpoint})
}

// SetRateLimitWindows reports the number of tracked client windows.
func SetRateLimitWindows(count int) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Gauge(RateLimitWindows, float64(count), nil)
}
