// Package http is the transport seam the service modules mount against: a small router
// interface backed by chi, envelope writers, and the listening server
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Handler is a plain handler func; chi accepts it as http.HandlerFunc
type Handler = func(http.ResponseWriter, *http.Request)

// Router is the part of chi the modules use
type Router interface {
	Get(path string, h Handler)
	Post(path string, h Handler)
	Handle(path string, h http.Handler)
	Use(mw ...func(http.Handler) http.Handler)
	Group(fn func(Router))
	Route(pattern string, fn func(Router))
	Mux() http.Handler
}

type chiRouter struct{ r chi.Router }

// AdaptChi exposes a chi mux or subrouter as a Router
func AdaptChi(r chi.Router) Router { return chiRouter{r: r} }

func (c chiRouter) Get(p string, h Handler)                   { c.r.Get(p, h) }
func (c chiRouter) Post(p string, h Handler)                  { c.r.Post(p, h) }
func (c chiRouter) Handle(p string, h http.Handler)           { c.r.Handle(p, h) }
func (c chiRouter) Use(mw ...func(http.Handler) http.Handler) { c.r.Use(mw...) }
func (c chiRouter) Mux() http.Handler                         { return c.r }

func (c chiRouter) Group(fn func(Router)) {
	c.r.Group(func(g chi.Router) { fn(chiRouter{r: g}) })
}

func (c chiRouter) Route(pattern string, fn func(Router)) {
	c.r.Route(pattern, func(s chi.Router) { fn(chiRouter{r: s}) })
}

// URLParam reads a {name} segment matched by chi
func URLParam(r *http.Request, name string) string { return chi.URLParam(r, name) }
