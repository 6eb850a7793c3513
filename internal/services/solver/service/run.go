package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"turnstiled/internal/core/sitekey"
	perr "turnstiled/internal/platform/errors"
	"turnstiled/internal/platform/logger"
	"turnstiled/internal/services/solver/domain"
	"turnstiled/internal/services/solver/guardrails"
)

// run is the mutable state of one Solve call, never shared
type run struct {
	svc     *Svc
	page    domain.Page
	log     *logger.Logger
	res     domain.Result
	html    string
	task    domain.Task
	verdict sitekey.Verdict
}

type step func(r *run, ctx context.Context) domain.State

var steps = map[domain.State]step{
	domain.StateIdle:            (*run).idle,
	domain.StateDetecting:       (*run).detecting,
	domain.StateDetected:        (*run).detected,
	domain.StateAttemptClick:    (*run).attemptClick,
	domain.StateAttemptProvider: (*run).attemptProvider,
	domain.StateAttemptRelay:    (*run).attemptRelay,
}

// step runs the handler for st; a panic fails the run
func (r *run) step(ctx context.Context, st domain.State) (next domain.State) {
	defer func() {
		if p := recover(); p != nil {
			r.res.Err = perr.PanicErrf("solver: %s panicked: %v", st, p)
			r.log.Error().Err(r.res.Err).Msg("solver step panic")
			next = domain.StateFailed
		}
	}()
	fn, ok := steps[st]
	if !ok {
		r.res.Err = perr.Internalf("solver: no handler for state %s", st)
		return domain.StateFailed
	}
	return fn(r, ctx)
}

// aborted reports why the run must stop now, or nil
func (r *run) aborted(ctx context.Context) error {
	if r.page.IsClosed() {
		return perr.Wrap(guardrails.ErrPageClosed, perr.ErrorCodeUnavailable, "solver: page closed")
	}
	switch err := ctx.Err(); {
	case err == nil:
		return nil
	case guardrails.Expired(err):
		return perr.Wrap(err, perr.ErrorCodeTimeout, "solver: solve budget exhausted")
	default:
		return perr.Wrap(err, perr.ErrorCodeUnavailable, "solver: canceled")
	}
}

func (r *run) alive() bool { return !r.page.IsClosed() }

// eval runs a page script and decodes its JSON result into out
func (r *run) eval(ctx context.Context, s domain.Script, arg, out any) error {
	return evalInto(ctx, r.page, s, arg, out)
}

func evalInto(ctx context.Context, p domain.Page, s domain.Script, arg, out any) error {
	raw, err := p.Evaluate(ctx, s, arg)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeJSON, "solver: decode %s result", s)
	}
	return nil
}

func (r *run) idle(context.Context) domain.State { return domain.StateDetecting }

func (r *run) detecting(ctx context.Context) domain.State {
	dctx, cancel := guardrails.ForDetect(ctx, r.svc.cfg.Budgets)
	defer cancel()

	content, err := r.page.Content(dctx)
	if err != nil {
		if abort := r.aborted(ctx); abort != nil {
			r.res.Err = abort
			return domain.StateFailed
		}
		r.log.Warn().Err(err).Msg("content capture failed, relying on dom snapshot")
		content = ""
	}
	r.html = content

	det, err := r.svc.b.Engine.Detect(dctx, content, r.snapshot)
	if err != nil {
		r.res.Err = perr.WithOp(err, "solver.detect")
		return domain.StateFailed
	}
	r.res.Detection = &det
	if !det.Found {
		return domain.StateNoChallenge
	}
	r.log.Debug().
		Str("source", string(det.Source)).
		Int("confidence", det.Confidence).
		Strs("categories", det.Categories).
		Msg("challenge detected")
	return domain.StateDetected
}

// snapshot feeds the fallback engine from the live DOM
func (r *run) snapshot(ctx context.Context) (string, error) {
	var snap domain.Snapshot
	if err := r.eval(ctx, domain.ScriptSnapshot, nil, &snap); err != nil {
		return "", err
	}
	if snap.HTML != "" {
		r.html = snap.HTML
	}
	return snap.HTML, nil
}

func (r *run) detected(context.Context) domain.State {
	r.task = domain.Task{URL: r.page.URL()}
	if v, ok := sitekey.Pick(sitekey.ValidateAll(r.res.Detection.Sitekeys)); ok {
		r.verdict = v
		r.res.Verdict = &v
		r.res.Sitekey = v.Raw
		r.task.Sitekey = v.Raw
		r.task.Action, r.task.CData = widgetParams(r.html, v.Raw)
		r.log.Debug().Str("sitekey", v.Raw).Str("verdict", string(v.Kind)).Str("reason", v.Reason).Msg("sitekey picked")
	}
	return domain.StateAttemptClick
}

func (r *run) attemptClick(ctx context.Context) domain.State {
	return r.strategy(ctx, domain.StrategyClick, r.click)
}

func (r *run) attemptProvider(ctx context.Context) domain.State {
	return r.strategy(ctx, domain.StrategyProvider, r.provider)
}

func (r *run) attemptRelay(ctx context.Context) domain.State {
	return r.strategy(ctx, domain.StrategyRelay, r.relay)
}

// strategy runs one attempt and turns its result into a record and the next state
func (r *run) strategy(ctx context.Context, st domain.Strategy, fn func(context.Context) (string, error)) domain.State {
	sctx, span := r.svc.tracer.Start(ctx, "solver."+string(st), trace.WithAttributes(
		attribute.String("strategy", string(st)),
		attribute.String("sitekey", r.task.Sitekey),
	))
	defer span.End()
	stAttr := attribute.String("strategy", string(st))
	r.svc.attempts.Add(sctx, 1, metric.WithAttributes(stAttr))

	started := r.svc.now()
	tok, err := protect(sctx, fn)
	rec := domain.AttemptRecord{Strategy: st, Started: started, Elapsed: r.svc.now().Sub(started)}
	switch {
	case err == nil && tok != "":
		rec.Outcome = domain.OutcomeSuccess
	case guardrails.Expired(err) || perr.IsCode(err, perr.ErrorCodeTimeout):
		rec.Outcome = domain.OutcomeTimeout
		rec.Reason = err.Error()
	default:
		if err == nil {
			err = errors.New("no token")
		}
		rec.Outcome = domain.OutcomeFailure
		rec.Reason = err.Error()
	}
	r.res.Attempts = append(r.res.Attempts, rec)

	span.SetAttributes(attribute.String("outcome", string(rec.Outcome)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, rec.Reason)
	}
	r.svc.outcomes.Add(sctx, 1, metric.WithAttributes(stAttr, attribute.String("outcome", string(rec.Outcome))))
	r.log.Info().
		Str("strategy", string(st)).
		Str("outcome", string(rec.Outcome)).
		Str("reason", rec.Reason).
		Dur("elapsed", rec.Elapsed).
		Msg("strategy finished")

	if rec.Outcome == domain.OutcomeSuccess {
		r.res.Solved = true
		r.res.Token = tok
		return domain.StateSolved
	}
	if abort := r.aborted(ctx); abort != nil {
		r.res.Err = abort
		return domain.StateFailed
	}
	return nextAfter(st)
}

func nextAfter(st domain.Strategy) domain.State {
	for i, s := range domain.Order {
		if s == st && i+1 < len(domain.Order) {
			return domain.Order[i+1].State()
		}
	}
	return domain.StateFailed
}

// protect turns a strategy panic into an attempt failure
func protect(ctx context.Context, fn func(context.Context) (string, error)) (tok string, err error) {
	defer func() {
		if p := recover(); p != nil {
			tok, err = "", perr.PanicErrf("panic: %v", p)
		}
	}()
	return fn(ctx)
}

// inject writes tok into the page; at least one surface has to take it
func (r *run) inject(ctx context.Context, tok string) error {
	var out domain.Injected
	if err := r.eval(ctx, domain.ScriptInjectToken, domain.Injection{Token: tok}, &out); err != nil {
		return fmt.Errorf("inject token: %w", err)
	}
	if out.Accepted == 0 {
		return errors.New("inject token: no surface accepted the token")
	}
	r.log.Debug().Strs("surfaces", out.Surfaces).Msg("token injected")
	return nil
}
