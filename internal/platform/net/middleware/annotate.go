package middleware

import (
	"net/http"

	"turnstiled/internal/platform/logger"
	pnet "turnstiled/internal/platform/net"
)

// SessionParam is the query parameter the widget routes carry the solve session in
const SessionParam = "session"

// Annotate copies the request id and any solve session id onto the request context so
// both pnet lookups and logger.C see them. Mount it after RequestID
func Annotate() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			rid := pnet.RequestID(ctx)
			sid := r.URL.Query().Get(SessionParam)
			ctx = pnet.WithRequest(ctx, rid, sid)
			ctx = logger.WithRequest(ctx, rid, sid)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
