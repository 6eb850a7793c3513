// Package httpkit is what service modules import to declare routes: the router seam,
// envelope responses, and mount helpers for the versioned API
package httpkit

import (
	"net/http"
	"strings"

	phttp "turnstiled/internal/platform/net/http"
	"turnstiled/internal/platform/net/http/bind"
)

type (
	// Router is the platform router seam
	Router = phttp.Router
	// Handler is a plain handler func
	Handler = phttp.Handler
	// Response is a return-style reply
	Response = phttp.Response
)

// OK is a 200 with data
func OK(data any) Response { return phttp.OK(data) }

// Created is a 201 with data
func Created(data any) Response { return phttp.Created(data) }

// Handle turns a return-style handler into a Handler
func Handle(fn func(*http.Request) Response) Handler { return phttp.Handle(fn) }

// WriteError is for handlers that render HTML on success but still fail with an envelope
func WriteError(w http.ResponseWriter, r *http.Request, err error) { phttp.RespondError(w, r, err) }

// Param reads a {name} path segment
func Param(r *http.Request, name string) string { return phttp.URLParam(r, name) }

// Validate checks a struct assembled from the query string with the shared validator
func Validate(v any) error { return bind.Validate(v) }

// Get mounts a GET route whose result is enveloped
func Get(r Router, path string, h func(*http.Request) (any, error)) {
	r.Get(path, phttp.NoBodyHandler(h))
}

// PostJSON mounts a POST route that binds and validates a T from the body
func PostJSON[T any](r Router, path string, h func(*http.Request, T) (any, error)) {
	r.Post(path, phttp.JSONHandler(h))
}

// MountUnder mounts a module's routes at prefix behind its own middleware
func MountUnder(r Router, prefix string, mw []func(http.Handler) http.Handler, mount func(Router)) {
	r.Route(prefix, func(sub Router) {
		if len(mw) > 0 {
			sub.Use(mw...)
		}
		mount(sub)
	})
}

// MountAPI mounts /api/{version} behind mw
func MountAPI(r Router, version string, mw []func(http.Handler) http.Handler, mount func(Router)) {
	MountUnder(r, "/api/"+strings.Trim(version, "/"), mw, mount)
}

// MountAPIV1 is MountAPI(r, "v1", ...)
func MountAPIV1(r Router, mw []func(http.Handler) http.Handler, mount func(Router)) {
	MountAPI(r, "v1", mw, mount)
}
