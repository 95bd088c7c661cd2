package main

import (
	"crypto/subtle"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// debugRoutes serves net/http/pprof under /pprof via chi's profiler.
func debugRoutes() http.Handler {
	return middleware.Profiler()
}

// basicAuth guards next when user is set; an empty user leaves it open,
// which only makes sense in development.
func basicAuth(next http.Handler, user, pass string) http.Handler {
	if user == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		userOK := subtle.ConstantTimeCompare([]byte(u), []byte(user)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(p), []byte(pass)) == 1
		if !ok || !userOK || !passOK {
			w.Header().Set("WWW-Authenticate", `Basic realm="pprof"`)
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
