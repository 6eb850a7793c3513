package modkit

import "net/http"

// Option tweaks how a module is named and mounted
type Option func(*Built)

// Built is the mount configuration a module constructor reads after Build
type Built struct {
	Name   string
	Prefix string
	Mw     []func(http.Handler) http.Handler
}

// WithName names the module for logs and the port registry
func WithName(name string) Option {
	return func(b *Built) { b.Name = name }
}

// WithPrefix sets the route the module mounts under
func WithPrefix(prefix string) Option {
	return func(b *Built) { b.Prefix = prefix }
}

// WithMiddlewares appends middleware that wraps only this module's routes
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(b *Built) { b.Mw = append(b.Mw, mw...) }
}

// Build folds opts left to right. A constructor passes its defaults first so callers override them
func Build(opts ...Option) Built {
	var b Built
	for _, o := range opts {
		if o != nil {
			o(&b)
		}
	}
	return b
}
