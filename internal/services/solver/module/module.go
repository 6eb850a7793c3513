// Package module wires the solve orchestrator and exposes its ports
package module

import (
	"turnstiled/internal/core/detector"
	"turnstiled/internal/core/rulepack"
	"turnstiled/internal/modkit"
	"turnstiled/internal/modkit/httpkit"
	"turnstiled/internal/platform/logger"
	"turnstiled/internal/services/solver/domain"
	"turnstiled/internal/services/solver/guardrails"
	"turnstiled/internal/services/solver/service"
)

// Module defines the solver module. It has no routes; callers drive it through Ports
type Module struct {
	deps   modkit.Deps
	ports  Ports
	engine *detector.Engine
	opts   Options
}

// Backends are the optional escalation targets
type Backends struct {
	Provider domain.Provider
	Relay    domain.Relay
	Opener   domain.Opener
}

// New constructs the solver module
func New(deps modkit.Deps, overrides Options, b Backends) *Module {
	opts := FromConfig(deps.Cfg)

	if overrides.Concurrency != 0 {
		opts.Concurrency = overrides.Concurrency
	}
	if overrides.SolveTimeout != 0 {
		opts.SolveTimeout = overrides.SolveTimeout
	}
	if overrides.DetectTimeout != 0 {
		opts.DetectTimeout = overrides.DetectTimeout
	}
	if overrides.ClickTimeout != 0 {
		opts.ClickTimeout = overrides.ClickTimeout
	}
	if overrides.ClickBudget != 0 {
		opts.ClickBudget = overrides.ClickBudget
	}
	if overrides.ClickPause != 0 {
		opts.ClickPause = overrides.ClickPause
	}
	if overrides.ClickSettle != 0 {
		opts.ClickSettle = overrides.ClickSettle
	}
	if overrides.ClickPoll != 0 {
		opts.ClickPoll = overrides.ClickPoll
	}
	if overrides.ProviderTimeout != 0 {
		opts.ProviderTimeout = overrides.ProviderTimeout
	}
	if overrides.RelayTimeout != 0 {
		opts.RelayTimeout = overrides.RelayTimeout
	}
	if overrides.RelayPoll != 0 {
		opts.RelayPoll = overrides.RelayPoll
	}
	if overrides.RulesFile != "" {
		opts.RulesFile = overrides.RulesFile
	}
	if overrides.MaxMatches != 0 {
		opts.MaxMatches = overrides.MaxMatches
	}

	// a broken rule file disables the primary engine, the DOM fallback keeps working
	engine := detector.NewFromLoader(func() (*rulepack.Pack, error) {
		return rulepack.LoadOrEmbedded(opts.RulesFile)
	}, detector.Options{MaxMatches: opts.MaxMatches})
	if err := engine.Err(); err != nil {
		logger.Named("solver").Warn().Err(err).Str("rules_file", opts.RulesFile).Msg("primary detection disabled")
	}

	svc := service.New(deps, service.Config{
		Budgets: guardrails.Budgets{
			Solve:    opts.SolveTimeout,
			Detect:   opts.DetectTimeout,
			Click:    opts.ClickTimeout,
			Provider: opts.ProviderTimeout,
			Relay:    opts.RelayTimeout,
		},
		ClickBudget: opts.ClickBudget,
		ClickPause:  opts.ClickPause,
		ClickSettle: opts.ClickSettle,
		ClickPoll:   opts.ClickPoll,
		RelayPoll:   opts.RelayPoll,
	}, service.Backends{
		Engine:   engine,
		Provider: b.Provider,
		Relay:    b.Relay,
		Opener:   b.Opener,
	})

	m := &Module{deps: deps, engine: engine, opts: opts}
	m.ports = Ports{
		Solver:   svc,
		Pool:     service.NewPool(svc, opts.Concurrency),
		Detector: engine,
	}
	return m
}

// Ports returns the module ports (Solver, Pool, Detector)
func (m *Module) Ports() any { return m.ports }

// Solver returns the typed ports
func (m *Module) Solver() Ports { return m.ports }

// Options returns the effective options
func (m *Module) Options() Options { return m.opts }

// Name returns the module name
func (m *Module) Name() string { return "solver" }

// Prefix returns no prefix; the solver has no routes
func (m *Module) Prefix() string { return "" }

// MountRoutes returns no HTTP routes
func (m *Module) MountRoutes(_ httpkit.Router) {}
