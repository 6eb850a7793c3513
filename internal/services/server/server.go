// Package server composes the session server: widget routes at the root, the versioned
// JSON API under /api/v1, docs and profiling
package server

import (
	"context"
	"time"

	"turnstiled/internal/core/detector"
	"turnstiled/internal/core/rulepack"
	"turnstiled/internal/platform/config"
	"turnstiled/internal/platform/logger"
	phttp "turnstiled/internal/platform/net/http"
	"turnstiled/internal/platform/net/middleware"

	"turnstiled/internal/modkit"
	"turnstiled/internal/modkit/httpkit"
	"turnstiled/internal/modkit/module"
	"turnstiled/internal/modkit/swaggerkit"

	metahttp "turnstiled/internal/services/server/meta/http"
	metamod "turnstiled/internal/services/server/meta/module"
	sessionsmod "turnstiled/internal/services/sessions/module"
)

// Options are the server options
type Options struct {
	// Config is the root config; sub modules apply their own prefixes
	Config         config.Conf
	Logger         *logger.Logger
	EnableSwagger  bool
	EnableProfiler bool
	CORSOrigins    []string
	SlowRequest    time.Duration
	MaxInflight    int
	RulesFile      string
	Sessions       sessionsmod.Options
	Now            func() time.Time
}

// FromConfig reads TURNSTILE_SERVER_* and TURNSTILE_RULES_FILE
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("TURNSTILE_SERVER_")
	return Options{
		Config:         cfg,
		EnableSwagger:  c.MayBool("SWAGGER", true),
		EnableProfiler: c.MayBool("PROFILER", false),
		CORSOrigins:    c.MayCSV("CORS_ORIGINS", nil),
		SlowRequest:    c.MayDuration("SLOW_REQUEST", time.Second),
		MaxInflight:    c.MayInt("MAX_INFLIGHT", 0),
		RulesFile:      cfg.Prefix("TURNSTILE_").MayString("RULES_FILE", ""),
	}
}

// App is what Mount assembled. Run drives its background work
type App struct {
	Sessions *sessionsmod.Module
	Detector *detector.Engine
	Modules  []module.Module
}

// Run drives the session janitor until ctx is done
func (a *App) Run(ctx context.Context) error { return a.Sessions.Run(ctx) }

// Mount mounts the server onto the given router
func Mount(r phttp.Router, opt Options) *App {
	log := opt.Logger
	if log == nil {
		log = logger.Named("server")
	}
	deps := modkit.Deps{
		Log: *log,
		Cfg: opt.Config,
		Now: opt.Now,
	}

	engine := detector.NewFromLoader(func() (*rulepack.Pack, error) {
		return rulepack.LoadOrEmbedded(opt.RulesFile)
	}, detector.Options{})
	if err := engine.Err(); err != nil {
		log.Warn().Err(err).Str("rules_file", opt.RulesFile).Msg("primary detection disabled")
	}

	var sessionOpts []modkit.Option
	if opt.MaxInflight > 0 {
		sessionOpts = append(sessionOpts, modkit.WithMiddlewares(middleware.Throttle(opt.MaxInflight)))
	}
	sessions := sessionsmod.New(deps, opt.Sessions, sessionOpts...)
	sp := module.MustPortsOf[sessionsmod.Ports](sessions)

	mods := []module.Module{
		metamod.New(deps, metamod.Options{
			ServiceName: "turnstiled",
			Checks: []metahttp.Check{
				{Name: "sessions", Target: sp.Store},
				{Name: "detector", Target: engine},
			},
			Detector: engine,
		}),
		sessions,
	}

	stack := httpkit.CommonStackWith(httpkit.StackOptions{
		CORSOrigins: opt.CORSOrigins,
		Slow:        opt.SlowRequest,
	})

	// widget routes live at the root where the page scripts expect them
	sessions.MountPublic(r, stack...)

	swaggerkit.Mount(r, opt.EnableSwagger, swaggerkit.WithServerURL(sessions.Options().PublicURL))
	phttp.MountProfiler(r, "/debug", opt.EnableProfiler)

	httpkit.MountAPIV1(r, stack, func(api httpkit.Router) {
		for _, m := range mods {
			module.Register(m.Name(), m.Ports())
			m.MountRoutes(api)
		}
	})

	log.Info().
		Bool("swagger", opt.EnableSwagger).
		Bool("profiler", opt.EnableProfiler).
		Bool("primary_detection", engine.Enabled()).
		Msg("server mounted")

	return &App{Sessions: sessions, Detector: engine, Modules: mods}
}
