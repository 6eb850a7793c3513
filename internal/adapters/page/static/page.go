// Package static is a goquery backed page handle for runs without a browser. Scripts are
// emulated over the parsed DOM: nothing executes, so clicks never produce a token
package static

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"

	"turnstiled/internal/core/dom"
	perr "turnstiled/internal/platform/errors"
	"turnstiled/internal/services/solver/domain"
)

const (
	maxBody   = 5 << 20
	userAgent = "turnstiled-scan/1"
)

// ErrClosed is returned by every call on a closed page
var ErrClosed = errors.New("static: page closed")

// Page implements domain.Page over a goquery document
type Page struct {
	client *http.Client
	closed atomic.Bool

	mu   sync.Mutex
	url  string
	raw  string
	doc  *goquery.Document
	refs map[string]*goquery.Selection
}

var _ domain.Page = (*Page)(nil)

// New parses html as the content served at url
func New(url, html string, client *http.Client) (*Page, error) {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	p := &Page{client: client}
	if err := p.load(url, html); err != nil {
		return nil, err
	}
	return p, nil
}

// Fetch loads url with client
func Fetch(ctx context.Context, url string, client *http.Client) (*Page, error) {
	p, err := New("about:blank", "", client)
	if err != nil {
		return nil, err
	}
	if err := p.Navigate(ctx, url); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Page) load(url, html string) error {
	doc, err := dom.Parse(html)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeDetection, "static: parse %s", url)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url, p.raw, p.doc = url, html, doc
	p.refs = map[string]*goquery.Selection{}
	return nil
}

// URL returns the current address
func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// Content returns the content as served, before any injection
func (p *Page) Content(ctx context.Context) (string, error) {
	if err := p.usable(ctx); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.raw, nil
}

// HTML renders the current DOM, including injected tokens
func (p *Page) HTML() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return dom.Render(p.doc)
}

// Navigate replaces the document with a GET of url
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.usable(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "static: bad url %q", url)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	resp, err := p.client.Do(req)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "static: get %s", url)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		return perr.Newf(perr.ErrorCodeUnavailable, "static: get %s status %d", url, resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "static: read %s", url)
	}
	return p.load(resp.Request.URL.String(), string(b))
}

// IsClosed reports whether Close ran
func (p *Page) IsClosed() bool { return p.closed.Load() }

// Close marks the page closed
func (p *Page) Close(context.Context) error {
	p.closed.Store(true)
	return nil
}

func (p *Page) usable(ctx context.Context) error {
	if p.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

// Evaluate emulates the named solver scripts
func (p *Page) Evaluate(ctx context.Context, s domain.Script, arg any) (json.RawMessage, error) {
	if err := p.usable(ctx); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	var out any
	switch s {
	case domain.ScriptSnapshot:
		html, err := dom.Render(p.doc)
		if err != nil {
			return nil, err
		}
		out = domain.Snapshot{HTML: html}
	case domain.ScriptClickCandidates:
		out = p.candidates()
	case domain.ScriptHover, domain.ScriptClick:
		var t domain.Target
		if err := decodeArg(arg, &t); err != nil {
			return nil, err
		}
		_, ok := p.refs[t.Ref]
		out = domain.Ack{OK: ok}
	case domain.ScriptReadResponse:
		out = domain.Response{Token: p.doc.Find(`input[name="cf-turnstile-response"]`).First().AttrOr("value", "")}
	case domain.ScriptInjectToken:
		var in domain.Injection
		if err := decodeArg(arg, &in); err != nil {
			return nil, err
		}
		out = p.inject(in.Token)
	default:
		return nil, fmt.Errorf("static: unsupported script %q", s)
	}
	return json.Marshal(out)
}

// candidates lists challenge frames, then in-document controls, once per node
func (p *Page) candidates() []domain.Candidate {
	out := []domain.Candidate{}
	seen := map[any]struct{}{}
	add := func(n *goquery.Selection, kind, selector, desc string) {
		node := n.Get(0)
		if _, dup := seen[node]; dup {
			return
		}
		seen[node] = struct{}{}
		ref := fmt.Sprintf("c%d", len(out))
		p.refs[ref] = n
		out = append(out, domain.Candidate{
			Ref:         ref,
			Kind:        kind,
			Selector:    selector + " " + dom.Describe(n),
			Description: desc,
			Visible:     dom.Visible(n),
		})
	}
	for _, s := range domain.IframeSelectors {
		p.doc.Find(s).Each(func(_ int, n *goquery.Selection) { add(n, "iframe", s, "challenge frame") })
	}
	for _, t := range domain.DocumentTargets {
		p.doc.Find(t[0]).Each(func(_ int, n *goquery.Selection) { add(n, "document", t[0], t[1]) })
	}
	return out
}

// inject writes tok into every response surface, creating the hidden field when the page
// has none yet
func (p *Page) inject(tok string) domain.Injected {
	res := domain.Injected{Surfaces: []string{}}
	seen := map[any]struct{}{}
	for _, s := range domain.ResponseSelectors {
		p.doc.Find(s).Each(func(_ int, n *goquery.Selection) {
			if _, dup := seen[n.Get(0)]; dup {
				return
			}
			seen[n.Get(0)] = struct{}{}
			n.SetAttr("value", tok)
			res.Surfaces = append(res.Surfaces, n.AttrOr("name", s))
		})
	}
	if len(res.Surfaces) == 0 {
		host := p.doc.Find(".cf-turnstile, [data-sitekey]").First()
		if host.Length() == 0 {
			host = p.doc.Find("form").First()
		}
		if host.Length() == 0 {
			host = p.doc.Find("body").First()
		}
		if host.Length() > 0 {
			host.AppendHtml(`<input type="hidden" name="cf-turnstile-response">`)
			host.Find(`input[name="cf-turnstile-response"]`).Last().SetAttr("value", tok)
			res.Surfaces = append(res.Surfaces, "cf-turnstile-response (created)")
		}
	}
	res.Accepted = len(res.Surfaces)
	return res
}

// decodeArg accepts the typed argument or anything that marshals to the same shape
func decodeArg(arg, into any) error {
	switch v := arg.(type) {
	case nil:
		return errors.New("static: missing script argument")
	case json.RawMessage:
		return json.Unmarshal(v, into)
	}
	b, err := json.Marshal(arg)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, into)
}

// Opener opens blank secondary pages sharing the client
type Opener struct {
	Client *http.Client
}

var _ domain.Opener = Opener{}

// Open returns a blank page
func (o Opener) Open(context.Context) (domain.Page, error) {
	return New("about:blank", "", o.Client)
}
