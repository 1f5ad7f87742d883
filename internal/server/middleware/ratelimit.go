package middleware

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/watchdeck/watchdeck/internal/metrics"
	"github.com/watchdeck/watchdeck/internal/ratelimit"
)

// GlobalRateLimit returns a coarse per-IP ceiling applied in front of the
// whole router, using httprate's sliding window. The class-based limiter
// below handles the finer per-caller quotas.
func GlobalRateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.LimitByIP(requestsPerMinute, time.Minute)
}

// ClassRateLimit returns an HTTP middleware enforcing the fixed-window
// quota of one limiter class. The caller identity is the API key id (or
// session user id) when the request is authenticated, else the source IP,
// so independent callers never share a counter.
//
// A rejection is a normal outcome: 429 with Retry-After and the standard
// error envelope. A counter-store failure is not attributed to the caller;
// the limiter logs it, the store-error counter records it, and the request
// proceeds.
func ClassRateLimit(limiter *ratelimit.Limiter, class ratelimit.Class, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := callerIdentity(r)

			decision, err := limiter.Check(r.Context(), class, identity)
			if err != nil {
				// Fail open: an unavailable counter store should not
				// take the API down with it.
				if m != nil {
					m.RateLimitStoreErrors.Inc()
				}
				next.ServeHTTP(w, r)
				return
			}

			if decision.Limit > 0 {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			}

			if !decision.Allowed {
				if m != nil {
					m.RateLimitExceededTotal.WithLabelValues(string(class)).Inc()
				}
				retryAfter := int(decision.RetryAfter.Seconds() + 0.5)
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":{"code":429,"message":"Rate limit exceeded","context":{"retry_after_seconds":` + strconv.Itoa(retryAfter) + `}}}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// callerIdentity picks the rate-limit identity for a request: the resolved
// principal when one is present, else the source IP without the port.
func callerIdentity(r *http.Request) string {
	if p := GetPrincipal(r.Context()); p != nil {
		return p.Identity()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
