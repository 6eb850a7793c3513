package httpkit

import (
	"compress/flate"
	"net/http"
	"time"

	"turnstiled/internal/platform/net/middleware"
)

// StackOptions tunes CommonStackWith. Zero values keep the defaults
type StackOptions struct {
	// CORSOrigins are the origins allowed to call the API; empty allows any
	CORSOrigins []string
	// Slow is the access log warn threshold; 0 never warns
	Slow time.Duration
	// Timeout bounds each request; 0 means 30s
	Timeout time.Duration
}

// CommonStackWith is the middleware every route group gets, outermost first
func CommonStackWith(o StackOptions) []func(http.Handler) http.Handler {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	return []func(http.Handler) http.Handler{
		middleware.RequestID(),
		middleware.RealIP(),
		middleware.Annotate(),
		middleware.RecoverJSON,
		middleware.NoCache(),
		middleware.AccessLog(o.Slow),
		middleware.CORS(o.CORSOrigins),
		middleware.Compress(flate.BestSpeed),
		middleware.Heartbeat("/health"),
		middleware.RedirectSlashes(),
		middleware.StripSlashes(),
		middleware.Timeout(o.Timeout),
	}
}
