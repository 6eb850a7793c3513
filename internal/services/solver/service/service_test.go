package service

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"turnstiled/internal/core/detector"
	"turnstiled/internal/core/rulepack"
	"turnstiled/internal/modkit"
	perr "turnstiled/internal/platform/errors"
	"turnstiled/internal/services/solver/domain"
	"turnstiled/internal/services/solver/guardrails"
)

const (
	realKey = "0x4AAAAAAABkMYinukE8nzYS"
	widget  = `<html><body><form><div class="cf-turnstile" data-sitekey="` + realKey +
		`" data-action="login" data-cdata="c-42"></div></form></body></html>`
)

func engine(t *testing.T) *detector.Engine {
	t.Helper()
	p, err := rulepack.Load()
	if err != nil {
		t.Fatalf("load pack: %v", err)
	}
	return detector.New(p, detector.Options{})
}

func fastConfig() Config {
	return Config{
		Budgets: guardrails.Budgets{
			Detect:   time.Second,
			Click:    time.Second,
			Provider: time.Second,
			Relay:    time.Second,
		},
		ClickBudget: 3,
		ClickPoll:   time.Millisecond,
		RelayPoll:   time.Millisecond,
	}
}

func newSvc(t *testing.T, cfg Config, b Backends) *Svc {
	t.Helper()
	if b.Engine == nil {
		b.Engine = engine(t)
	}
	return New(modkit.Deps{}, cfg, b)
}

func visible(ref string) domain.Candidate {
	return domain.Candidate{Ref: ref, Kind: "document", Selector: ".cf-turnstile", Visible: true}
}

func strategies(res domain.Result) []string {
	var out []string
	for _, a := range res.Attempts {
		out = append(out, string(a.Strategy)+":"+string(a.Outcome))
	}
	return out
}

func states(res domain.Result) []domain.State {
	out := []domain.State{}
	for _, tr := range res.Transitions {
		out = append(out, tr.To)
	}
	return out
}

func TestSolve_NoChallenge(t *testing.T) {
	page := &fakePage{url: "https://example.test/", content: "<html><body>hello</body></html>", snapshot: "<html><body>hello</body></html>"}
	res := newSvc(t, fastConfig(), Backends{}).Solve(context.Background(), page)

	if res.State != domain.StateNoChallenge || res.Solved || res.Err != nil {
		t.Fatalf("result = %+v", res)
	}
	if len(res.Attempts) != 0 {
		t.Fatalf("no strategy should run: %v", strategies(res))
	}
	want := []domain.State{domain.StateDetecting, domain.StateNoChallenge}
	if got := states(res); !reflect.DeepEqual(got, want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	if page.count(domain.ScriptSnapshot) != 1 {
		t.Fatalf("silent primary should consult the dom snapshot")
	}
}

func TestSolve_ClickSolves(t *testing.T) {
	page := &fakePage{url: "https://example.test/login", content: widget,
		candidates: []domain.Candidate{{Ref: "c0", Visible: false}, visible("c1")}, clickToken: "tok-click"}
	prov := &fakeProvider{token: "tok-provider"}
	res := newSvc(t, fastConfig(), Backends{Provider: prov}).Solve(context.Background(), page)

	if !res.Solved || res.State != domain.StateSolved || res.Token != "tok-click" {
		t.Fatalf("result = %+v", res)
	}
	if got := strategies(res); !reflect.DeepEqual(got, []string{"click:success"}) {
		t.Fatalf("attempts = %v", got)
	}
	if prov.calls.Load() != 0 {
		t.Fatalf("provider must not run after a click solve")
	}
	if !reflect.DeepEqual(page.clicked, []string{"c1"}) {
		t.Fatalf("clicked = %v, hidden candidates must be skipped", page.clicked)
	}
	if res.Sitekey != realKey || res.Verdict == nil || !res.Verdict.Usable() {
		t.Fatalf("sitekey = %q verdict = %+v", res.Sitekey, res.Verdict)
	}
	want := []domain.State{domain.StateDetecting, domain.StateDetected, domain.StateAttemptClick, domain.StateSolved}
	if got := states(res); !reflect.DeepEqual(got, want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
}

func TestSolve_NoVisibleCandidatesGoesToProviderOnly(t *testing.T) {
	page := &fakePage{url: "https://example.test/login", content: widget,
		candidates: []domain.Candidate{{Ref: "c0", Visible: false}}}
	prov := &fakeProvider{token: "tok-provider"}
	relay := &fakeRelay{}
	res := newSvc(t, fastConfig(), Backends{Provider: prov, Relay: relay}).Solve(context.Background(), page)

	if !res.Solved || res.Token != "tok-provider" {
		t.Fatalf("result = %+v", res)
	}
	if got := strategies(res); !reflect.DeepEqual(got, []string{"click:failure", "provider:success"}) {
		t.Fatalf("attempts = %v", got)
	}
	if !strings.Contains(res.Attempts[0].Reason, "no visible") {
		t.Fatalf("click reason = %q", res.Attempts[0].Reason)
	}
	if relay.creates.Load() != 0 || res.Attempted(domain.StrategyRelay) {
		t.Fatalf("relay must not run when the provider succeeds")
	}
	if !reflect.DeepEqual(page.injected, []string{"tok-provider"}) {
		t.Fatalf("injected = %v", page.injected)
	}
	task := prov.tasks[0]
	if task.Sitekey != realKey || task.URL != page.url || task.Action != "login" || task.CData != "c-42" {
		t.Fatalf("task = %+v", task)
	}
}

func TestSolve_ProviderFailsRelaySolves(t *testing.T) {
	page := &fakePage{url: "https://example.test/login", content: widget}
	prov := &fakeProvider{err: perr.Providerf("ERROR_CAPTCHA_UNSOLVABLE")}
	relay := &fakeRelay{statuses: []domain.RelayStatus{
		{Status: domain.RelayPending},
		{Status: domain.RelayAwaitingToken},
		{Status: domain.RelayCompleted, Token: "tok-relay"},
	}}
	op := &fakeOpener{}
	res := newSvc(t, fastConfig(), Backends{Provider: prov, Relay: relay, Opener: op}).Solve(context.Background(), page)

	if !res.Solved || res.Token != "tok-relay" {
		t.Fatalf("result = %+v", res)
	}
	if got := strategies(res); !reflect.DeepEqual(got, []string{"click:failure", "provider:failure", "session_relay:success"}) {
		t.Fatalf("attempts = %v", got)
	}
	if relay.polls.Load() < 3 {
		t.Fatalf("polls = %d", relay.polls.Load())
	}
	if len(op.pages) != 1 {
		t.Fatalf("opened %d relay pages", len(op.pages))
	}
	second := op.pages[0]
	if !reflect.DeepEqual(second.navigated, []string{"http://relay.test/solve?session=sess-1"}) || !second.IsClosed() {
		t.Fatalf("relay page navigated=%v closed=%v", second.navigated, second.IsClosed())
	}
	if !reflect.DeepEqual(page.injected, []string{"tok-relay"}) {
		t.Fatalf("injected = %v", page.injected)
	}
}

func TestSolve_AllStrategiesExhausted(t *testing.T) {
	page := &fakePage{url: "https://example.test/login", content: widget}
	relay := &fakeRelay{statuses: []domain.RelayStatus{{Status: domain.RelayExpired}}}
	op := &fakeOpener{}
	res := newSvc(t, fastConfig(), Backends{
		Provider: &fakeProvider{err: errors.New("boom")},
		Relay:    relay,
		Opener:   op,
	}).Solve(context.Background(), page)

	if res.Solved || res.State != domain.StateFailed {
		t.Fatalf("result = %+v", res)
	}
	if !perr.IsCode(res.Err, perr.ErrorCodeExhausted) || res.Error == "" {
		t.Fatalf("err = %v", res.Err)
	}
	if got := strategies(res); !reflect.DeepEqual(got, []string{"click:failure", "provider:failure", "session_relay:failure"}) {
		t.Fatalf("attempts = %v", got)
	}
	if !op.pages[0].IsClosed() {
		t.Fatalf("relay page must be closed on failure too")
	}
}

func TestSolve_DemoKeySkipsOutOfBandStrategies(t *testing.T) {
	page := &fakePage{url: "https://example.test/", content: `<div class="cf-turnstile" data-sitekey="1x00000000000000000000AA"></div>`}
	prov := &fakeProvider{token: "never"}
	relay := &fakeRelay{}
	res := newSvc(t, fastConfig(), Backends{Provider: prov, Relay: relay}).Solve(context.Background(), page)

	if res.State != domain.StateFailed || !perr.IsCode(res.Err, perr.ErrorCodeExhausted) {
		t.Fatalf("result = %+v", res)
	}
	if prov.calls.Load() != 0 || relay.creates.Load() != 0 {
		t.Fatalf("demo key reached provider=%d relay=%d", prov.calls.Load(), relay.creates.Load())
	}
	for _, a := range res.Attempts[1:] {
		if !strings.Contains(a.Reason, "unusable sitekey") {
			t.Fatalf("%s reason = %q", a.Strategy, a.Reason)
		}
	}
}

func TestSolve_ProviderTimeoutDemotes(t *testing.T) {
	cfg := fastConfig()
	cfg.Budgets.Provider = 20 * time.Millisecond
	page := &fakePage{url: "https://example.test/login", content: widget}
	relay := &fakeRelay{statuses: []domain.RelayStatus{{Status: domain.RelayCompleted, Token: "tok-relay"}}}
	res := newSvc(t, cfg, Backends{Provider: &fakeProvider{block: true}, Relay: relay}).Solve(context.Background(), page)

	if !res.Solved || res.Token != "tok-relay" {
		t.Fatalf("result = %+v", res)
	}
	if res.Attempts[1].Outcome != domain.OutcomeTimeout {
		t.Fatalf("provider outcome = %s", res.Attempts[1].Outcome)
	}
}

func TestSolve_InjectionMustLand(t *testing.T) {
	page := &fakePage{url: "https://example.test/login", content: widget, noSurface: true}
	res := newSvc(t, fastConfig(), Backends{Provider: &fakeProvider{token: "tok"}}).Solve(context.Background(), page)

	if res.Solved {
		t.Fatalf("token without a surface must not count as solved")
	}
	if a := res.Attempts[1]; a.Outcome != domain.OutcomeFailure || !strings.Contains(a.Reason, "no surface") {
		t.Fatalf("provider attempt = %+v", a)
	}
}

func TestSolve_PanicsBecomeFailures(t *testing.T) {
	page := &fakePage{url: "https://example.test/login", content: widget}
	relay := &fakeRelay{statuses: []domain.RelayStatus{{Status: domain.RelayCompleted, Token: "tok-relay"}}}
	res := newSvc(t, fastConfig(), Backends{Provider: &fakeProvider{panic: true}, Relay: relay}).Solve(context.Background(), page)

	if !res.Solved {
		t.Fatalf("result = %+v", res)
	}
	if a := res.Attempts[1]; a.Outcome != domain.OutcomeFailure || !strings.Contains(a.Reason, "panic") {
		t.Fatalf("provider attempt = %+v", a)
	}
}

func TestSolve_PageClosedStopsRun(t *testing.T) {
	page := &fakePage{url: "https://example.test/login", content: widget,
		candidates: []domain.Candidate{visible("c0")}, closeOn: domain.ScriptClickCandidates}
	prov := &fakeProvider{token: "tok"}
	res := newSvc(t, fastConfig(), Backends{Provider: prov}).Solve(context.Background(), page)

	if res.State != domain.StateFailed || !perr.IsCode(res.Err, perr.ErrorCodeUnavailable) {
		t.Fatalf("result = %+v err=%v", res, res.Err)
	}
	if !errors.Is(res.Err, guardrails.ErrPageClosed) {
		t.Fatalf("err = %v", res.Err)
	}
	if prov.calls.Load() != 0 {
		t.Fatalf("closed page must not escalate")
	}
}

func TestSolve_CanceledContextExitsPromptly(t *testing.T) {
	cfg := fastConfig()
	cfg.Budgets.Relay = time.Hour
	page := &fakePage{url: "https://example.test/login", content: widget}
	relay := &fakeRelay{} // pending forever
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	res := newSvc(t, cfg, Backends{Relay: relay}).Solve(ctx, page)
	if time.Since(start) > 2*time.Second {
		t.Fatalf("abandoned run took %v", time.Since(start))
	}
	if res.State != domain.StateFailed || !perr.IsCode(res.Err, perr.ErrorCodeTimeout) {
		t.Fatalf("result = %+v err=%v", res, res.Err)
	}
}

func TestSolve_DetectionUnavailable(t *testing.T) {
	eng := detector.NewFromLoader(func() (*rulepack.Pack, error) { return nil, errors.New("bad rules") }, detector.Options{})
	page := &fakePage{url: "https://example.test/", content: widget, snapErr: errors.New("no dom")}
	res := newSvc(t, fastConfig(), Backends{Engine: eng}).Solve(context.Background(), page)

	if res.State != domain.StateFailed || !perr.IsCode(res.Err, perr.ErrorCodeDetection) {
		t.Fatalf("result = %+v err=%v", res, res.Err)
	}
}

func TestSolve_FallbackFindsLiveWidget(t *testing.T) {
	eng := detector.NewFromLoader(func() (*rulepack.Pack, error) { return nil, errors.New("bad rules") }, detector.Options{})
	page := &fakePage{url: "https://example.test/", content: "<html></html>", snapshot: widget}
	prov := &fakeProvider{token: "tok"}
	res := newSvc(t, fastConfig(), Backends{Engine: eng, Provider: prov}).Solve(context.Background(), page)

	if !res.Solved || res.Detection.Source != detector.SourceFallback {
		t.Fatalf("result = %+v", res)
	}
	if prov.tasks[0].Action != "login" {
		t.Fatalf("widget params should come from the snapshot: %+v", prov.tasks[0])
	}
}

func TestNew_RequiresEngine(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	New(modkit.Deps{}, Config{}, Backends{})
}

func TestNew_Defaults(t *testing.T) {
	s := New(modkit.Deps{}, Config{}, Backends{Engine: engine(t)})
	def := DefaultConfig()
	if s.Config().ClickBudget != def.ClickBudget || s.Config().RelayPoll != def.RelayPoll {
		t.Fatalf("config = %+v", s.Config())
	}
}

func TestWidgetParams(t *testing.T) {
	html := `<div data-sitekey="a" data-action="x"></div><div data-sitekey="b" data-action="y" data-cdata="z"></div>`
	if a, c := widgetParams(html, "b"); a != "y" || c != "z" {
		t.Fatalf("got %q %q", a, c)
	}
	if a, c := widgetParams(html, "missing"); a != "" || c != "" {
		t.Fatalf("got %q %q", a, c)
	}
}

// slowService tracks how many solves overlap
type slowService struct {
	inflight atomic.Int32
	peak     atomic.Int32
}

func (s *slowService) Solve(ctx context.Context, p domain.Page) domain.Result {
	n := s.inflight.Add(1)
	defer s.inflight.Add(-1)
	for {
		old := s.peak.Load()
		if n <= old || s.peak.CompareAndSwap(old, n) {
			break
		}
	}
	_ = guardrails.Wait(ctx, 5*time.Millisecond, nil)
	return domain.Result{URL: p.URL(), State: domain.StateNoChallenge}
}

func TestPool_SolveAllRespectsLimit(t *testing.T) {
	svc := &slowService{}
	pool := NewPool(svc, 2)
	var pages []domain.Page
	for _, u := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		pages = append(pages, &fakePage{url: u})
	}
	res, err := pool.SolveAll(context.Background(), pages)
	if err != nil {
		t.Fatalf("SolveAll: %v", err)
	}
	for i, r := range res {
		if r.URL != pages[i].URL() {
			t.Fatalf("result %d url = %q", i, r.URL)
		}
	}
	if p := svc.peak.Load(); p > 2 || p < 1 {
		t.Fatalf("peak concurrency = %d", p)
	}
}

func TestPool_SharedCeilingAcrossCallers(t *testing.T) {
	svc := &slowService{}
	pool := NewPool(svc, 3)
	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := pool.Solve(context.Background(), &fakePage{url: "x"}); err != nil {
				t.Errorf("Solve: %v", err)
			}
		}()
	}
	wg.Wait()
	if p := svc.peak.Load(); p > 3 {
		t.Fatalf("peak concurrency = %d", p)
	}
}

func TestPool_CanceledWhileQueued(t *testing.T) {
	pool := NewPool(&slowService{}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := pool.Solve(ctx, &fakePage{url: "x"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if NewPool(&slowService{}, 0).Limit() != 1 {
		t.Fatalf("non positive limit should clamp to 1")
	}
}
