package middleware

import (
	"net/http"
	"runtime/debug"

	perr "turnstiled/internal/platform/errors"
	"turnstiled/internal/platform/logger"
	pnet "turnstiled/internal/platform/net"
	phttp "turnstiled/internal/platform/net/http"
)

// RecoverJSON turns a handler panic into a 500 error envelope and logs the stack.
// http.ErrAbortHandler is re-raised so the server can drop the connection
func RecoverJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler {
				panic(v)
			}
			logger.C(r.Context()).Error().
				Interface("panic", v).
				Bytes("stack", debug.Stack()).
				Msg("handler panicked")

			if rid := pnet.RequestID(r.Context()); rid != "" {
				w.Header().Set("X-Request-Id", rid)
			}
			phttp.RespondError(w, r, perr.PanicErrf("internal error"))
		}()
		next.ServeHTTP(w, r)
	})
}
