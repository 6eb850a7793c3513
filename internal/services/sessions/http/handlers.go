// Package http provides http transport for relay sessions: the JSON API used by the relay
// client and the widget pages served to the out-of-band solver
package http

import (
	"bytes"
	"embed"
	"html/template"
	stdhttp "net/http"
	"net/url"
	"strings"
	"time"

	"turnstiled/internal/core/sitekey"
	"turnstiled/internal/modkit/httpkit"
	perr "turnstiled/internal/platform/errors"
	"turnstiled/internal/platform/logger"
	"turnstiled/internal/services/sessions/domain"
	svc "turnstiled/internal/services/sessions/service"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Options configures link building
type Options struct {
	// PublicURL is the externally reachable base, e.g. http://localhost:8888. When empty
	// links are built from the request host
	PublicURL string
}

// Routes lists the public surface for the index page
var Routes = []string{
	"GET /solve?sitekey=&url=&action=&cdata=",
	"GET /solve?session=",
	"GET /status?session=",
	"GET /session/{id}",
	"POST /token",
	"GET /test",
	"POST /api/v1/sessions",
	"GET /api/v1/sessions/{id}",
}

// Register mounts the JSON session API on a versioned router
func Register(r httpkit.Router, s svc.Service, opts Options) {
	h := &handlers{svc: s, opts: opts}
	httpkit.PostJSON[domain.CreateInput](r, "/", h.create)
	httpkit.Get(r, "/{id}", h.sessionStatus)
}

// RegisterPublic mounts the widget facing routes at the server root
func RegisterPublic(r httpkit.Router, s svc.Service, opts Options) {
	h := &handlers{svc: s, opts: opts}
	r.Get("/", h.index)
	r.Get("/solve", h.solve)
	r.Get("/test", h.test)
	httpkit.Get(r, "/status", h.status)
	httpkit.Get(r, "/session/{id}", h.sessionStatus)
	httpkit.PostJSON[domain.TokenInput](r, "/token", h.token)
}

type handlers struct {
	svc  svc.Service
	opts Options
}

// swagger:route POST /sessions Sessions sessionsCreate
// @Summary Create a relay session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body domain.CreateInput true "Session"
// @Success 201 {object} domain.Created "created"
// @Router /sessions [post]
func (h *handlers) create(r *stdhttp.Request, in domain.CreateInput) (any, error) {
	sess, err := h.svc.Create(r.Context(), in)
	if err != nil {
		return nil, err
	}
	return httpkit.Created(domain.Created{
		SessionID: sess.ID,
		SolveURL:  h.base(r) + "/solve?session=" + url.QueryEscape(sess.ID),
		Status:    sess.Status,
		ExpiresAt: sess.ExpiresAt.UTC().Format(time.RFC3339),
	}), nil
}

// swagger:route GET /sessions/{id} Sessions sessionsGet
// @Summary Session status, with the token once completed
// @Tags Sessions
// @Produce json
// @Param id path string true "Session id"
// @Success 200 {object} domain.StatusView "ok"
// @Failure 404 {object} ErrorResponse "unknown session"
// @Router /sessions/{id} [get]
func (h *handlers) sessionStatus(r *stdhttp.Request) (any, error) {
	return h.svc.Status(r.Context(), httpkit.Param(r, "id"))
}

func (h *handlers) status(r *stdhttp.Request) (any, error) {
	return h.svc.Status(r.Context(), r.URL.Query().Get("session"))
}

func (h *handlers) token(r *stdhttp.Request, in domain.TokenInput) (any, error) {
	ctx := logger.WithRequest(r.Context(), "", in.SessionID)
	if _, err := h.svc.Submit(ctx, in); err != nil {
		return nil, err
	}
	return domain.Accepted{Success: true, Message: "token received"}, nil
}

// solve creates a session from the query, or reopens ?session=, and serves the widget
func (h *handlers) solve(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	id := q.Get("session")
	if id == "" {
		in := domain.CreateInput{
			Sitekey: q.Get("sitekey"),
			URL:     q.Get("url"),
			Action:  q.Get("action"),
			CData:   q.Get("cdata"),
		}
		if err := httpkit.Validate(in); err != nil {
			httpkit.WriteError(w, r, err)
			return
		}
		sess, err := h.svc.Create(ctx, in)
		if err != nil {
			httpkit.WriteError(w, r, err)
			return
		}
		id = sess.ID
	}

	sess, err := h.svc.MarkServed(ctx, id)
	if err != nil {
		httpkit.WriteError(w, r, err)
		return
	}
	origin := sess.URL
	if u, err := url.Parse(sess.URL); err == nil {
		origin = u.Scheme + "://" + u.Host
	}
	render(w, r, "widget.html", widgetPage{
		SessionID: sess.ID,
		Sitekey:   sess.Sitekey,
		Action:    sess.Action,
		CData:     sess.CData,
		Origin:    origin,
		TokenURL:  h.base(r) + "/token",
		Completed: sess.Status == domain.StatusCompleted,
	})
}

func (h *handlers) test(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	var p testPage
	for _, k := range sitekey.DemoKeys() {
		p.Widgets = append(p.Widgets, demoWidget{Sitekey: k, Description: sitekey.Validate(k).Description})
	}
	render(w, r, "test.html", p)
}

// swagger:route GET / Sessions sessionsIndex
// @Summary Liveness with the active session count; HTML unless JSON is accepted
// @Tags Sessions
// @Produce json
// @Success 200 {object} domain.Liveness "ok"
// @Router / [get]
func (h *handlers) index(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	live := domain.Liveness{
		Service:        "turnstiled",
		ActiveSessions: h.svc.Active(r.Context()),
		Routes:         Routes,
	}
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		httpkit.Handle(func(*stdhttp.Request) httpkit.Response { return httpkit.OK(live) })(w, r)
		return
	}
	render(w, r, "index.html", live)
}

// base is the public origin links are built against
func (h *handlers) base(r *stdhttp.Request) string {
	if h.opts.PublicURL != "" {
		return strings.TrimRight(h.opts.PublicURL, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + r.Host
}

type widgetPage struct {
	SessionID string
	Sitekey   string
	Action    string
	CData     string
	Origin    string
	TokenURL  string
	Completed bool
}

type demoWidget struct {
	Sitekey     string
	Description string
}

type testPage struct {
	Widgets []demoWidget
}

// render writes a named page as text/html
func render(w stdhttp.ResponseWriter, r *stdhttp.Request, name string, data any) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		logger.C(r.Context()).Error().Err(err).Str("template", name).Msg("render failed")
		httpkit.WriteError(w, r, perr.Wrapf(err, perr.ErrorCodeUnknown, "render %s", name))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(stdhttp.StatusOK)
	_, _ = buf.WriteTo(w)
}
