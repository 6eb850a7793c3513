// Package service runs the solve orchestrator: one state machine per page that detects a
// challenge, validates its sitekey and escalates click -> provider -> session relay
package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"turnstiled/internal/core/detector"
	"turnstiled/internal/modkit"
	perr "turnstiled/internal/platform/errors"
	"turnstiled/internal/platform/logger"
	"turnstiled/internal/services/solver/domain"
	"turnstiled/internal/services/solver/guardrails"
)

// Service solves the challenge on one page
type Service interface {
	Solve(ctx context.Context, page domain.Page) domain.Result
}

// Config holds budgets and pacing
type Config struct {
	Budgets guardrails.Budgets

	// ClickBudget bounds response polls across all clicked candidates
	ClickBudget int
	ClickPause  time.Duration
	ClickSettle time.Duration
	ClickPoll   time.Duration

	RelayPoll time.Duration
}

// DefaultConfig mirrors the TURNSTILE_SOLVER_* defaults
func DefaultConfig() Config {
	return Config{
		Budgets: guardrails.Budgets{
			Detect:   10 * time.Second,
			Click:    20 * time.Second,
			Provider: 2 * time.Minute,
			Relay:    30 * time.Second,
		},
		ClickBudget: 10,
		ClickPause:  500 * time.Millisecond,
		ClickSettle: 2 * time.Second,
		ClickPoll:   500 * time.Millisecond,
		RelayPoll:   500 * time.Millisecond,
	}
}

// Backends are the collaborators a run may escalate to. Only Engine is required
type Backends struct {
	Engine   *detector.Engine
	Provider domain.Provider
	Relay    domain.Relay
	Opener   domain.Opener
}

// Svc implements Service. It holds no per run state and is safe for concurrent use
type Svc struct {
	cfg    Config
	b      Backends
	now    func() time.Time
	tracer trace.Tracer

	attempts metric.Int64Counter
	outcomes metric.Int64Counter
}

const instrumentation = "turnstiled/solver"

// New builds the orchestrator
func New(deps modkit.Deps, cfg Config, b Backends) *Svc {
	if b.Engine == nil {
		panic("solver.Service requires a detection engine")
	}
	def := DefaultConfig()
	if cfg.ClickBudget <= 0 {
		cfg.ClickBudget = def.ClickBudget
	}
	if cfg.ClickPoll <= 0 {
		cfg.ClickPoll = def.ClickPoll
	}
	if cfg.RelayPoll <= 0 {
		cfg.RelayPoll = def.RelayPoll
	}

	meter := deps.MeterOrGlobal(instrumentation)
	attempts, err := meter.Int64Counter("turnstiled.solver.attempts",
		metric.WithDescription("solve strategies started"))
	if err != nil {
		attempts = noop.Int64Counter{}
	}
	outcomes, err := meter.Int64Counter("turnstiled.solver.outcomes",
		metric.WithDescription("solve strategies finished, by outcome"))
	if err != nil {
		outcomes = noop.Int64Counter{}
	}

	return &Svc{
		cfg:      cfg,
		b:        b,
		now:      deps.Clock(),
		tracer:   deps.TracerOrGlobal(instrumentation),
		attempts: attempts,
		outcomes: outcomes,
	}
}

// Config returns the effective configuration
func (s *Svc) Config() Config { return s.cfg }

// Solve drives page to a terminal state. It never returns a bare error: failures are in
// Result.Err and the attempt records
func (s *Svc) Solve(ctx context.Context, page domain.Page) domain.Result {
	ctx, cancel := guardrails.ForSolve(ctx, s.cfg.Budgets)
	defer cancel()

	l := logger.C(ctx).With().Str("component", "solver").Str("url", page.URL()).Logger()
	r := &run{
		svc:  s,
		page: page,
		log:  &l,
		res: domain.Result{
			URL:         page.URL(),
			State:       domain.StateIdle,
			Attempts:    []domain.AttemptRecord{},
			Transitions: []domain.Transition{},
		},
	}

	state := domain.StateIdle
	for !state.Terminal() {
		next := domain.StateFailed
		if err := r.aborted(ctx); err != nil {
			r.res.Err = err
		} else {
			next = r.step(ctx, state)
		}
		r.res.Transitions = append(r.res.Transitions, domain.Transition{From: state, To: next, At: s.now()})
		state = next
	}

	r.res.State = state
	if state == domain.StateFailed && r.res.Err == nil {
		r.res.Err = perr.Exhaustedf("solver: all %d strategies failed", len(r.res.Attempts))
	}
	if r.res.Err != nil {
		r.res.Error = r.res.Err.Error()
	}

	ev := r.log.Info()
	if state == domain.StateFailed {
		ev = r.log.Warn().Err(r.res.Err)
	}
	ev.Str("state", string(state)).
		Str("sitekey", r.res.Sitekey).
		Int("attempts", len(r.res.Attempts)).
		Msg("solve finished")
	return r.res
}
