// Package middleware holds the request middleware the server stacks in front of every
// route: chi's stock pieces behind plain signatures, plus access logging, JSON panic
// recovery and request annotation
package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RequestID reuses an inbound X-Request-Id or mints one
func RequestID() func(http.Handler) http.Handler { return chimw.RequestID }

// RealIP trusts X-Real-IP / X-Forwarded-For for RemoteAddr
func RealIP() func(http.Handler) http.Handler { return chimw.RealIP }

// NoCache marks every response uncacheable. Session status must never be served stale
func NoCache() func(http.Handler) http.Handler { return chimw.NoCache }

// Compress gzips/deflates compressible responses at level
func Compress(level int) func(http.Handler) http.Handler { return chimw.Compress(level) }

// Heartbeat answers GET path with 200 before routing
func Heartbeat(path string) func(http.Handler) http.Handler { return chimw.Heartbeat(path) }

// RedirectSlashes redirects /sessions/ to /sessions
func RedirectSlashes() func(http.Handler) http.Handler { return chimw.RedirectSlashes }

// StripSlashes routes /sessions/ as /sessions without a redirect
func StripSlashes() func(http.Handler) http.Handler { return chimw.StripSlashes }

// Timeout cancels the request context after d and answers 504 if nothing was written
func Timeout(d time.Duration) func(http.Handler) http.Handler { return chimw.Timeout(d) }

// Throttle caps in-flight requests; callers over the cap get 429
func Throttle(limit int) func(http.Handler) http.Handler { return chimw.Throttle(limit) }

// CORS allows cross origin calls from origins. The widget page posts tokens back from
// whatever origin serves it, so an empty list allows all
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	})
}
