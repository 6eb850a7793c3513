package module

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"turnstiled/internal/modkit"
	"turnstiled/internal/platform/config"
	"turnstiled/internal/platform/testkit"
	"turnstiled/internal/services/solver/domain"
)

// page is a minimal handle with no challenge surfaces
type page struct{ html string }

func (p page) URL() string { return "https://example.test/" }
func (p page) Content(context.Context) (string, error) { return p.html, nil }
func (p page) Navigate(context.Context, string) error { return nil }
func (p page) IsClosed() bool { return false }
func (p page) Close(context.Context) error { return nil }
func (p page) Evaluate(_ context.Context, s domain.Script, _ any) (json.RawMessage, error) {
	if s == domain.ScriptSnapshot {
		return json.Marshal(domain.Snapshot{HTML: p.html})
	}
	return nil, errors.New("unsupported")
}

func TestFromConfig(t *testing.T) {
	testkit.Serial(t)
	t.Setenv("TURNSTILE_SOLVER_CONCURRENCY", "9")
	t.Setenv("TURNSTILE_SOLVER_CLICK_TIMEOUT", "3s")
	t.Setenv("TURNSTILE_SOLVER_RELAY_POLL", "250ms")
	t.Setenv("TURNSTILE_RULES_FILE", "/etc/turnstiled/rules.yaml")

	o := FromConfig(config.New())
	if o.Concurrency != 9 || o.ClickTimeout != 3*time.Second || o.RelayPoll != 250*time.Millisecond {
		t.Fatalf("options = %+v", o)
	}
	if o.RulesFile != "/etc/turnstiled/rules.yaml" || o.ClickBudget != 10 || o.DetectTimeout != 10*time.Second {
		t.Fatalf("options = %+v", o)
	}
}

func TestNew_OverridesAndPorts(t *testing.T) {
	testkit.Serial(t)
	m := New(modkit.Deps{Cfg: config.New()}, Options{Concurrency: 2, ClickBudget: 1}, Backends{})
	if m.Name() != "solver" || m.Prefix() != "" {
		t.Fatalf("name=%q prefix=%q", m.Name(), m.Prefix())
	}
	p, ok := m.Ports().(Ports)
	if !ok || p.Solver == nil || p.Pool == nil || p.Detector == nil {
		t.Fatalf("ports = %#v", m.Ports())
	}
	if p.Pool.Limit() != 2 || m.Options().ClickBudget != 1 {
		t.Fatalf("overrides not applied: %+v", m.Options())
	}
	if !p.Detector.Enabled() {
		t.Fatalf("embedded rules should load: %v", p.Detector.Err())
	}

	res := p.Solver.Solve(context.Background(), page{html: "<html><body>plain</body></html>"})
	if res.State != domain.StateNoChallenge {
		t.Fatalf("state = %s", res.State)
	}
}

func TestNew_BadRulesFileFallsBack(t *testing.T) {
	testkit.Serial(t)
	bad := filepath.Join(t.TempDir(), "rules.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	m := New(modkit.Deps{Cfg: config.New()}, Options{RulesFile: bad}, Backends{})
	if m.Solver().Detector.Enabled() {
		t.Fatalf("broken rule file should disable the primary engine")
	}
	res := m.Solver().Solver.Solve(context.Background(), page{html: `<div class="cf-turnstile" data-sitekey="0x4AAAAAAABkMYinukE8nzYS"></div>`})
	if res.Detection == nil || !res.Detection.Found {
		t.Fatalf("fallback should still detect: %+v", res)
	}
}
