// Package ratelimit throttles order submissions per client.
package ratelimit

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/noah-isme/backend-merch/internal/common"
)

// CodeRateLimited is the error code for throttled requests.
const CodeRateLimited = "RATE_LIMITED"

// Backend records one request for key and reports whether it fits in max
// per window, how many remain and when the budget next frees up.
type Backend interface {
	Allow(ctx context.Context, key string, window time.Duration, max int) (allowed bool, remaining int, reset time.Time, err error)
}

// Config picks the bucket key and the budget.
type Config struct {
	Key    func(*http.Request) string
	Window time.Duration
	Max    int
}

// Handler fails open: when the backend errors the request goes through and
// OnError is told.
type Handler struct {
	Limiter Backend
	Config  Config
	OnError func(error)
}

func (h Handler) Middleware(next http.Handler) http.Handler {
	if h.Limiter == nil || h.Config.Key == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, remaining, reset, err := h.Limiter.Allow(r.Context(), h.Config.Key(r), h.Config.Window, h.Config.Max)
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		setBudgetHeaders(w.Header(), max(h.Config.Max, 0), remaining, reset)
		if allowed {
			next.ServeHTTP(w, r)
			return
		}
		wait := math.Ceil(time.Until(reset).Seconds())
		w.Header().Set("Retry-After", strconv.Itoa(max(int(wait), 1)))
		common.JSONError(w, http.StatusTooManyRequests, CodeRateLimited, "too many orders from this client, retry later", nil)
	})
}

func setBudgetHeaders(h http.Header, limit, remaining int, reset time.Time) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
}

// ByClientIP buckets by the request's remote host. Mount it after chi's
// RealIP so proxy headers are honoured.
func ByClientIP(prefix string) func(*http.Request) string {
	return func(r *http.Request) string {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return prefix + host
		}
		return prefix + r.RemoteAddr
	}
}
