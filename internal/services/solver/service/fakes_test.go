package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"turnstiled/internal/services/solver/domain"
)

// fakePage answers solver scripts from fields. It is closed by Close or when closeOn runs
type fakePage struct {
	url        string
	content    string
	contentErr error
	snapshot   string
	snapErr    error
	candidates []domain.Candidate
	clickToken string
	noSurface  bool
	closeOn    domain.Script
	panicOn    domain.Script

	mu        sync.Mutex
	response  string
	clicked   []string
	injected  []string
	navigated []string
	evals     map[domain.Script]int
	closed    atomic.Bool
}

func (p *fakePage) URL() string { return p.url }

func (p *fakePage) Content(context.Context) (string, error) {
	if p.closed.Load() {
		return "", errors.New("target closed")
	}
	return p.content, p.contentErr
}

func (p *fakePage) Evaluate(ctx context.Context, s domain.Script, arg any) (json.RawMessage, error) {
	if p.closed.Load() {
		return nil, errors.New("target closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == p.panicOn {
		panic("script exploded")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.evals == nil {
		p.evals = map[domain.Script]int{}
	}
	p.evals[s]++
	if s == p.closeOn {
		p.closed.Store(true)
	}

	var out any
	switch s {
	case domain.ScriptSnapshot:
		if p.snapErr != nil {
			return nil, p.snapErr
		}
		out = domain.Snapshot{HTML: p.snapshot}
	case domain.ScriptClickCandidates:
		out = p.candidates
	case domain.ScriptHover:
		out = domain.Ack{OK: true}
	case domain.ScriptClick:
		p.clicked = append(p.clicked, arg.(domain.Target).Ref)
		p.response = p.clickToken
		out = domain.Ack{OK: true}
	case domain.ScriptReadResponse:
		out = domain.Response{Token: p.response}
	case domain.ScriptInjectToken:
		if p.noSurface {
			out = domain.Injected{}
			break
		}
		tok := arg.(domain.Injection).Token
		p.injected = append(p.injected, tok)
		p.response = tok
		out = domain.Injected{Accepted: 1, Surfaces: []string{"cf-turnstile-response"}}
	default:
		return nil, errors.New("unknown script")
	}
	return json.Marshal(out)
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigated = append(p.navigated, url)
	return nil
}

func (p *fakePage) IsClosed() bool { return p.closed.Load() }

func (p *fakePage) Close(context.Context) error {
	p.closed.Store(true)
	return nil
}

func (p *fakePage) count(s domain.Script) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.evals[s]
}

type fakeProvider struct {
	token string
	err   error
	block bool
	panic bool

	calls atomic.Int32
	mu    sync.Mutex
	tasks []domain.Task
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Solve(ctx context.Context, t domain.Task) (string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.tasks = append(f.tasks, t)
	f.mu.Unlock()
	if f.panic {
		panic("provider exploded")
	}
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.token, f.err
}

type fakeRelay struct {
	createErr error
	statuses  []domain.RelayStatus // last entry repeats
	statusErr error

	creates atomic.Int32
	polls   atomic.Int32
}

func (f *fakeRelay) Create(_ context.Context, t domain.Task) (domain.RelaySession, error) {
	f.creates.Add(1)
	if f.createErr != nil {
		return domain.RelaySession{}, f.createErr
	}
	return domain.RelaySession{
		ID:        "sess-1",
		SolveURL:  "http://relay.test/solve?session=sess-1",
		Status:    domain.RelayPending,
		ExpiresAt: time.Now().Add(time.Minute),
	}, nil
}

func (f *fakeRelay) Status(context.Context, string) (domain.RelayStatus, error) {
	n := int(f.polls.Add(1)) - 1
	if f.statusErr != nil {
		return domain.RelayStatus{}, f.statusErr
	}
	if len(f.statuses) == 0 {
		return domain.RelayStatus{ID: "sess-1", Status: domain.RelayPending}, nil
	}
	return f.statuses[min(n, len(f.statuses)-1)], nil
}

type fakeOpener struct {
	mu    sync.Mutex
	pages []*fakePage
}

func (o *fakeOpener) Open(context.Context) (domain.Page, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p := &fakePage{url: "about:blank"}
	o.pages = append(o.pages, p)
	return p, nil
}
