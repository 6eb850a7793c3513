package http_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"turnstiled/internal/platform/config"
	perr "turnstiled/internal/platform/errors"
	phttp "turnstiled/internal/platform/net/http"
	"turnstiled/internal/platform/testkit"
)

type envelope struct {
	StatusCode int             `json:"status_code"`
	Status     string          `json:"status"`
	Code       int             `json:"code"`
	Error      string          `json:"error"`
	Data       json.RawMessage `json:"data"`
}

func serve(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode %q: %v", rec.Body.String(), err)
		}
	}
	return rec, env
}

type createIn struct {
	Sitekey string `json:"sitekey" validate:"required,keychars"`
}

func TestRouter_RoutesGroupsAndParams(t *testing.T) {
	r := phttp.AdaptChi(chi.NewRouter())

	var order []string
	tag := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, req)
			})
		}
	}
	r.Use(tag("root"))
	r.Route("/sessions", func(s phttp.Router) {
		s.Use(tag("sessions"))
		s.Get("/{id}", phttp.NoBodyHandler(func(req *http.Request) (any, error) {
			return map[string]string{"id": phttp.URLParam(req, "id")}, nil
		}))
	})
	r.Group(func(g phttp.Router) {
		g.Post("/token", phttp.Handle(func(*http.Request) phttp.Response { return phttp.NoContent() }))
	})
	r.Handle("/raw", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) }))

	rec, env := serve(t, r.Mux(), http.MethodGet, "/sessions/9f3c2a", "")
	if rec.Code != http.StatusOK || string(env.Data) != `{"id":"9f3c2a"}` {
		t.Fatalf("get = %d %s", rec.Code, rec.Body.String())
	}
	if strings.Join(order, ",") != "root,sessions" {
		t.Fatalf("middleware order = %v", order)
	}

	if rec, _ := serve(t, r.Mux(), http.MethodPost, "/token", ""); rec.Code != http.StatusNoContent || rec.Body.Len() != 0 {
		t.Fatalf("token = %d %q", rec.Code, rec.Body.String())
	}
	if rec, _ := serve(t, r.Mux(), http.MethodGet, "/raw", ""); rec.Code != http.StatusTeapot {
		t.Fatalf("raw = %d", rec.Code)
	}
}

func TestHandle_Responses(t *testing.T) {
	cases := []struct {
		name   string
		resp   phttp.Response
		status int
		code   int
	}{
		{"ok", phttp.OK("ready"), http.StatusOK, 0},
		{"created", phttp.Created(map[string]int{"n": 1}), http.StatusCreated, 0},
		{"zero status", phttp.Response{Body: "x"}, http.StatusOK, 0},
		{"not found", phttp.Error(perr.NotFoundf("no session")), http.StatusNotFound, int(perr.ErrorCodeNotFound)},
		{"plain error", phttp.Error(errors.New("boom")), http.StatusInternalServerError, 0},
		{"error beats status", phttp.Response{Status: http.StatusCreated, Body: perr.Conflictf("dup")}, http.StatusConflict, int(perr.ErrorCodeConflict)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := http.HandlerFunc(phttp.Handle(func(*http.Request) phttp.Response { return tc.resp }))
			rec, env := serve(t, h, http.MethodGet, "/", "")
			if rec.Code != tc.status || env.StatusCode != tc.status || env.Code != tc.code {
				t.Fatalf("got %d %s", rec.Code, rec.Body.String())
			}
			if (tc.status >= 400) != (env.Error != "") {
				t.Fatalf("error field = %q", env.Error)
			}
		})
	}

	h := http.HandlerFunc(phttp.Handle(func(*http.Request) phttp.Response {
		return phttp.Response{Status: http.StatusAccepted, Body: "queued", Header: http.Header{"Retry-After": {"2"}}}
	}))
	rec, _ := serve(t, h, http.MethodGet, "/", "")
	if rec.Code != http.StatusAccepted || rec.Header().Get("Retry-After") != "2" {
		t.Fatalf("headers = %v", rec.Header())
	}
}

func TestJSONHandler(t *testing.T) {
	h := http.HandlerFunc(phttp.JSONHandler(func(_ *http.Request, in createIn) (any, error) {
		if in.Sitekey == "taken" {
			return nil, perr.Conflictf("sitekey busy")
		}
		return phttp.Created(in), nil
	}))

	rec, env := serve(t, h, http.MethodPost, "/", `{"sitekey":"0x4AAAAAAABkMYinukE8nzYS"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", rec.Code, rec.Body.String())
	}
	testkit.MustContain(t, string(env.Data), "0x4AAAAAAABkMYinukE8nzYS")

	cases := map[string]int{
		``:                        http.StatusBadRequest,
		`{"sitekey":`:             http.StatusBadRequest,
		`{"sitekey":"a b"}`:       http.StatusBadRequest,
		`{"sitekey":"x","y":1}`:   http.StatusBadRequest,
		`{"sitekey":"taken"}`:     http.StatusConflict,
		`{"sitekey":"x"} {"a":1}`: http.StatusBadRequest,
	}
	for body, want := range cases {
		if rec, _ := serve(t, h, http.MethodPost, "/", body); rec.Code != want {
			t.Fatalf("%q = %d, want %d (%s)", body, rec.Code, want, rec.Body.String())
		}
	}
}

func TestRespondError(t *testing.T) {
	rec := httptest.NewRecorder()
	phttp.RespondError(rec, httptest.NewRequest(http.MethodGet, "/", nil), perr.Expiredf("session expired"))
	if rec.Code != http.StatusGone {
		t.Fatalf("status = %d", rec.Code)
	}
	testkit.MustContain(t, rec.Body.String(), "session expired")
}

func TestMountProfiler(t *testing.T) {
	off := phttp.AdaptChi(chi.NewRouter())
	phttp.MountProfiler(off, "/debug", false)
	if rec, _ := serve(t, off.Mux(), http.MethodGet, "/debug/pprof/", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("disabled profiler = %d", rec.Code)
	}

	on := phttp.AdaptChi(chi.NewRouter())
	phttp.MountProfiler(on, "debug/", true)
	if rec, _ := serve(t, on.Mux(), http.MethodGet, "/debug/pprof/", ""); rec.Code != http.StatusOK {
		t.Fatalf("profiler index = %d", rec.Code)
	}
}

func TestNewServer(t *testing.T) {
	testkit.Serial(t)
	t.Setenv("TURNSTILE_SERVER_PORT", "9090")
	s := phttp.NewServer(config.New().Prefix("TURNSTILE_SERVER_"))
	if s.Addr() != ":9090" {
		t.Fatalf("addr = %q", s.Addr())
	}
	s.Router().Get("/ping", phttp.Handle(func(*http.Request) phttp.Response { return phttp.OK("pong") }))
	if rec, _ := serve(t, s.Handler(), http.MethodGet, "/ping", ""); rec.Code != http.StatusOK {
		t.Fatalf("ping = %d", rec.Code)
	}

	t.Setenv("TURNSTILE_SERVER_PORT", "127.0.0.1:7000")
	if a := phttp.NewServer(config.New().Prefix("TURNSTILE_SERVER_")).Addr(); a != "127.0.0.1:7000" {
		t.Fatalf("addr = %q", a)
	}
	if a := phttp.NewServer(config.New().Prefix("TURNSTILE_NOPE_")).Addr(); a != phttp.DefaultAddr {
		t.Fatalf("default addr = %q", a)
	}
}
