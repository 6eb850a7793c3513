// Package net carries the ids a request is about (its request id and the solve session)
// and the JSON envelope every response body is wrapped in
package net

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
)

type sessionKey struct{}

// WithRequest stores reqID where chi's GetReqID finds it, plus the solve session when known
func WithRequest(ctx context.Context, reqID, sessionID string) context.Context {
	if reqID != "" {
		ctx = context.WithValue(ctx, chimw.RequestIDKey, reqID)
	}
	if sessionID != "" {
		ctx = context.WithValue(ctx, sessionKey{}, sessionID)
	}
	return ctx
}

// RequestID is the chi request id, or ""
func RequestID(ctx context.Context) string { return chimw.GetReqID(ctx) }

// SessionID is the solve session the request concerns, or ""
func SessionID(ctx context.Context) string {
	s, _ := ctx.Value(sessionKey{}).(string)
	return s
}
