// Package http provides meta endpoints
package http

import (
	stdctx "context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"turnstiled/internal/core/version"
	"turnstiled/internal/modkit/httpkit"
)

// Pinger is satisfied by anything readiness can probe
type Pinger interface {
	Ping(stdctx.Context) error
}

// Check is one named readiness dependency. A nil Target is reported as skipped
type Check struct {
	Name   string
	Target any
}

// PackInfo is satisfied by the detection engine
type PackInfo interface {
	Enabled() bool
	Err() error
	PackInfo() (version, rules int)
}

// Deps are the handler dependencies
type Deps struct {
	ServiceName string
	StartedAt   time.Time
	Checks      []Check
	Detector    PackInfo
	Now         func() time.Time
}

type handlers struct {
	deps Deps
}

// Register mounts the meta routes
func Register(r httpkit.Router, d Deps) {
	if d.Now == nil {
		d.Now = time.Now
	}
	h := &handlers{deps: d}

	httpkit.Get(r, "/health", h.health)
	httpkit.Get(r, "/ready", h.ready)
	httpkit.Get(r, "/version", h.version)
	httpkit.Get(r, "/service", h.service)
	httpkit.Get(r, "/detector", h.detector)
}

// HealthResponse is the health payload
type HealthResponse struct {
	OK      bool   `json:"ok"       example:"true"`
	Service string `json:"service"  example:"turnstiled"`
	Started string `json:"started"  example:"2025-09-03T13:00:00Z"`
	Now     string `json:"now"      example:"2025-09-03T13:05:00Z"`
}

// ReadyCheck describes a single dependency check
type ReadyCheck struct {
	Name   string `json:"name"   example:"sessions"`
	Status string `json:"status" example:"ok"` // ok fail skipped unknown
	Error  string `json:"error,omitempty" example:"detector: rule pack unavailable"`
}

// ReadyResponse summarizes readiness
type ReadyResponse struct {
	Status string       `json:"status" example:"ok"` // ok degraded fail
	Checks []ReadyCheck `json:"checks"`
	Now    string       `json:"now"    example:"2025-09-03T13:05:00Z"`
}

// ServiceResponse describes service info
type ServiceResponse struct {
	Name    string `json:"name"    example:"turnstiled"`
	Started string `json:"started" example:"2025-09-03T13:00:00Z"`
	Uptime  int64  `json:"uptime"  example:"300"`
}

// DetectorResponse reports the loaded rule pack
type DetectorResponse struct {
	Primary     bool              `json:"primary"      example:"true"`
	Error       string            `json:"error,omitempty"`
	PackVersion int               `json:"pack_version" example:"1"`
	Rules       int               `json:"rules"        example:"14"`
	Build       version.BuildInfo `json:"build"`
}

// @Summary Health check
// @Tags Meta
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /meta/health [get]
func (h *handlers) health(_ *http.Request) (any, error) {
	return HealthResponse{
		OK:      true,
		Service: h.deps.ServiceName,
		Started: h.deps.StartedAt.UTC().Format(time.RFC3339),
		Now:     h.deps.Now().UTC().Format(time.RFC3339),
	}, nil
}

// @Summary Readiness probe with dependency checks
// @Tags Meta
// @Produce json
// @Success 200 {object} ReadyResponse
// @Router /meta/ready [get]
func (h *handlers) ready(r *http.Request) (any, error) {
	ctx, cancel := stdctx.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	// probes are independent, so run them side by side and keep the declared order
	checks := make([]ReadyCheck, len(h.deps.Checks))
	var g errgroup.Group
	for i, c := range h.deps.Checks {
		g.Go(func() error {
			checks[i] = probe(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	return ReadyResponse{
		Status: rollup(checks),
		Checks: checks,
		Now:    h.deps.Now().UTC().Format(time.RFC3339),
	}, nil
}

const readyTimeout = 2 * time.Second

func probe(ctx stdctx.Context, c Check) ReadyCheck {
	out := ReadyCheck{Name: c.Name, Status: "unknown"}
	switch t := c.Target.(type) {
	case nil:
		out.Status = "skipped"
	case Pinger:
		out.Status = "ok"
		if err := t.Ping(ctx); err != nil {
			out.Status, out.Error = "fail", err.Error()
		}
	}
	return out
}

// rollup: any fail is fail, anything short of ok degrades
func rollup(checks []ReadyCheck) string {
	status := "ok"
	for _, c := range checks {
		if c.Status == "fail" {
			return "fail"
		}
		if c.Status != "ok" {
			status = "degraded"
		}
	}
	return status
}

// @Summary Build and version info
// @Tags Meta
// @Produce json
// @Success 200 {object} version.BuildInfo
// @Router /meta/version [get]
func (h *handlers) version(_ *http.Request) (any, error) {
	return version.Info(), nil
}

// @Summary Service info and uptime
// @Tags Meta
// @Produce json
// @Success 200 {object} ServiceResponse
// @Router /meta/service [get]
func (h *handlers) service(_ *http.Request) (any, error) {
	uptime := h.deps.Now().Sub(h.deps.StartedAt)
	return ServiceResponse{
		Name:    h.deps.ServiceName,
		Started: h.deps.StartedAt.UTC().Format(time.RFC3339),
		Uptime:  int64(uptime / time.Second),
	}, nil
}

// @Summary Rule pack and detector state
// @Tags Meta
// @Produce json
// @Success 200 {object} DetectorResponse
// @Router /meta/detector [get]
func (h *handlers) detector(_ *http.Request) (any, error) {
	out := DetectorResponse{Build: version.Info()}
	if d := h.deps.Detector; d != nil {
		out.Primary = d.Enabled()
		if err := d.Err(); err != nil {
			out.Error = err.Error()
		}
		out.PackVersion, out.Rules = d.PackInfo()
	}
	return out, nil
}
