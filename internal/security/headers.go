// Package security holds HTTP hardening middleware for the JSON API.
package security

import (
	"net/http"
	"strconv"
	"strings"
)

const defaultHSTSMaxAge = 365 * 24 * 60 * 60

// Headers sets response headers suited to a JSON-only API. HSTS is sent only
// when the request arrived over TLS, directly or behind a proxy that reports
// X-Forwarded-Proto.
type Headers struct {
	Enable                bool
	EnableHSTS            bool
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
}

var apiHeaders = [...][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Cross-Origin-Resource-Policy", "same-site"},
	{"Permissions-Policy", "camera=(), geolocation=(), microphone=(), payment=()"},
}

func (h Headers) Middleware(next http.Handler) http.Handler {
	if !h.Enable {
		return next
	}
	hsts := h.hstsValue()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := w.Header()
		for _, kv := range apiHeaders {
			headers.Set(kv[0], kv[1])
		}
		if h.EnableHSTS && overTLS(r) {
			headers.Set("Strict-Transport-Security", hsts)
		}
		next.ServeHTTP(w, r)
	})
}

func (h Headers) hstsValue() string {
	age := h.HSTSMaxAge
	if age <= 0 {
		age = defaultHSTSMaxAge
	}
	var b strings.Builder
	b.WriteString("max-age=")
	b.WriteString(strconv.Itoa(age))
	if h.HSTSIncludeSubdomains {
		b.WriteString("; includeSubDomains")
	}
	return b.String()
}

func overTLS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
