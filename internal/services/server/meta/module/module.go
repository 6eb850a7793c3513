// Package module mounts the meta routes (health, readiness, version, detector) as a modkit module
package module

import (
	"cmp"
	"net/http"

	modkit "turnstiled/internal/modkit"
	"turnstiled/internal/modkit/httpkit"
	str "turnstiled/internal/platform/strings"

	metahttp "turnstiled/internal/services/server/meta/http"
)

// Options carries what the meta routes report on
type Options struct {
	ServiceName string
	Checks      []metahttp.Check
	Detector    metahttp.PackInfo
}

// Module serves the meta routes. It exports no ports
type Module struct {
	name   string
	prefix string
	mws    []func(http.Handler) http.Handler
	deps   metahttp.Deps
}

// New builds the meta module; uptime counts from the moment it is built
func New(deps modkit.Deps, o Options, opts ...modkit.Option) *Module {
	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("meta"),
		modkit.WithPrefix("/meta"),
	}, opts...)...)

	now := deps.Clock()
	return &Module{
		name:   b.Name,
		prefix: b.Prefix,
		mws:    b.Mw,
		deps: metahttp.Deps{
			ServiceName: cmp.Or(o.ServiceName, "turnstiled"),
			StartedAt:   now(),
			Checks:      o.Checks,
			Detector:    o.Detector,
			Now:         now,
		},
	}
}

// MountRoutes mounts the meta routes under the module prefix
func (m *Module) MountRoutes(r httpkit.Router) {
	httpkit.MountUnder(r, m.Prefix(), m.mws, func(rr httpkit.Router) {
		metahttp.Register(rr, m.deps)
	})
}

// Name returns the module name
func (m *Module) Name() string { return str.MustString(m.name, "meta module name") }

// Prefix returns the module route prefix
func (m *Module) Prefix() string { return str.MustPrefix(m.prefix) }

// Ports is nil; nothing else wires against meta
func (m *Module) Ports() any { return nil }
