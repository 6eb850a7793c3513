// Package module wires relay sessions into the server using modkit
package module

import (
	"context"
	"net/http"

	modkit "turnstiled/internal/modkit"
	"turnstiled/internal/modkit/httpkit"
	str "turnstiled/internal/platform/strings"
	sessionshttp "turnstiled/internal/services/sessions/http"
	sessionsrepo "turnstiled/internal/services/sessions/repo"
	sessionssvc "turnstiled/internal/services/sessions/service"
)

// Module owns the session store and service. Besides the versioned API it mounts the
// widget routes at the root and runs the janitor
type Module struct {
	name   string
	prefix string
	mws    []func(http.Handler) http.Handler
	ports  Ports

	store *sessionsrepo.Memory
	svc   *sessionssvc.Svc
	opts  Options
}

// New constructs a sessions module. Zero fields in overrides fall back to FromConfig
func New(deps modkit.Deps, overrides Options, opts ...modkit.Option) *Module {
	b := modkit.Build(append([]modkit.Option{modkit.WithName("sessions"), modkit.WithPrefix("/sessions")}, opts...)...)

	o := FromConfig(deps.Cfg)
	if overrides.TTL != 0 {
		o.TTL = overrides.TTL
	}
	if overrides.Retention != 0 {
		o.Retention = overrides.Retention
	}
	if overrides.SweepEvery != 0 {
		o.SweepEvery = overrides.SweepEvery
	}
	if overrides.AllowDemo {
		o.AllowDemo = true
	}
	if overrides.PublicURL != "" {
		o.PublicURL = overrides.PublicURL
	}

	store := sessionsrepo.NewMemory()
	svc := sessionssvc.New(deps, store, sessionssvc.Config{
		TTL:        o.TTL,
		Retention:  o.Retention,
		SweepEvery: o.SweepEvery,
		AllowDemo:  o.AllowDemo,
	})

	return &Module{
		name:   b.Name,
		prefix: b.Prefix,
		mws:    b.Mw,
		ports:  Ports{Sessions: svc, Store: store},
		store:  store,
		svc:    svc,
		opts:   o,
	}
}

// MountRoutes mounts the JSON session API under the module prefix
func (m *Module) MountRoutes(r httpkit.Router) {
	httpkit.MountUnder(r, m.Prefix(), m.mws, func(rr httpkit.Router) {
		sessionshttp.Register(rr, m.svc, sessionshttp.Options{PublicURL: m.opts.PublicURL})
	})
}

// MountPublic mounts the widget facing routes (/, /solve, /status, /token, ...) at the root
func (m *Module) MountPublic(r httpkit.Router, mws ...func(http.Handler) http.Handler) {
	r.Group(func(g httpkit.Router) {
		if len(mws) > 0 {
			g.Use(mws...)
		}
		sessionshttp.RegisterPublic(g, m.svc, sessionshttp.Options{PublicURL: m.opts.PublicURL})
	})
}

// Run drives the janitor until ctx is done
func (m *Module) Run(ctx context.Context) error { return m.svc.Run(ctx) }

// Options returns the effective options
func (m *Module) Options() Options { return m.opts }

// Name returns the module name
func (m *Module) Name() string { return str.MustString(m.name, "module name") }

// Prefix returns the module route prefix
func (m *Module) Prefix() string { return str.MustPrefix(m.prefix) }
