package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/leaveopt/leaveopt/internal/core/engine"
	"github.com/leaveopt/leaveopt/internal/metrics"
	"github.com/leaveopt/leaveopt/internal/observability"
)

// RateLimitMessage is the body text sent with every 429.
const RateLimitMessage = "Too many requests, please try again later."

// Standard rate limit headers (draft-ietf-httpapi-ratelimit-headers).
const (
	HeaderRateLimitLimit     = "RateLimit-Limit"
	HeaderRateLimitRemaining = "RateLimit-Remaining"
	HeaderRateLimitReset     = "RateLimit-Reset"
	HeaderRateLimitPolicy    = "RateLimit-Policy"
	HeaderRetryAfter         = "Retry-After"
)

// RateLimit admits requests through limiter keyed by client address. Every
// limited response carries RateLimit-* headers; rejected requests get a 429
// with Retry-After and never reach next. A nil limiter disables limiting.
func RateLimit(limiter *engine.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			if limiter.Clock != nil {
				now = limiter.Clock()
			}

			address := ClientAddress(r)
			decision := limiter.Admit(address, now)
			writeRateLimitHeaders(w, decision, limiter.Window, now)

			if !decision.Allowed {
				w.Header().Set(HeaderRetryAfter, strconv.Itoa(ceilSeconds(decision.RetryAfter(now))))

				endpoint := getEndpointPattern(r)
				metrics.RecordRateLimitRejection(endpoint)
				if logger := observability.Logger(); logger != nil {
					logger.Debug("rate limit exceeded",
						zap.String("client", address),
						zap.String("endpoint", endpoint),
						zap.Int("limit", decision.Limit),
						zap.Time("reset", decision.Reset),
						zap.String("request_id", GetRequestID(r.Context())))
				}

				writeErrorResponse(w, http.StatusTooManyRequests, RateLimitMessage)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientAddress returns the host part of r.RemoteAddr. Run chi's RealIP
// middleware first when the server sits behind a trusted proxy.
func ClientAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeRateLimitHeaders(w http.ResponseWriter, d engine.Decision, window time.Duration, now time.Time) {
	h := w.Header()
	h.Set(HeaderRateLimitLimit, strconv.Itoa(d.Limit))
	h.Set(HeaderRateLimitRemaining, strconv.Itoa(d.Remaining))
	h.Set(HeaderRateLimitReset, strconv.Itoa(ceilSeconds(d.RetryAfter(now))))
	if window > 0 {
		h.Set(HeaderRateLimitPolicy, strconv.Itoa(d.Limit)+";w="+strconv.Itoa(ceilSeconds(window)))
	}
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
