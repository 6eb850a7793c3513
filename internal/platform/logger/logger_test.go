package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"turnstiled/internal/platform/testkit"
)

func install(t *testing.T, opt Options) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	opt.Writer = &buf
	Init(opt)
	t.Cleanup(func() { Init(FromEnv()) })
	return &buf
}

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, l := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if l == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(l), &m); err != nil {
			t.Fatalf("line %q: %v", l, err)
		}
		out = append(out, m)
	}
	return out
}

func TestFromEnv(t *testing.T) {
	testkit.Serial(t)
	t.Setenv("TURNSTILE_LOG_LEVEL", "debug")
	t.Setenv("TURNSTILE_LOG_FORMAT", "Console")
	t.Setenv("TURNSTILE_LOG_SAMPLE_EVERY", "5")
	o := FromEnv()
	if o.Level != "debug" || o.Format != "console" || o.SampleEvery != 5 || o.Service != "turnstiled" {
		t.Fatalf("options = %+v", o)
	}
}

func TestNamedAndC(t *testing.T) {
	testkit.Serial(t)
	buf := install(t, Options{Level: "info", Service: "turnstiled-test"})

	Named("solver").Info().Msg("attempt")
	ctx := WithRequest(context.Background(), "turnstiled/abc-000001", "9f3c2a")
	C(ctx).Warn().Msg("token late")
	C(WithRequest(context.Background(), "", "")).Info().Msg("bare")
	Named("").Debug().Msg("filtered")

	got := lines(t, buf)
	if len(got) != 3 {
		t.Fatalf("lines = %v", got)
	}
	if got[0]["component"] != "solver" || got[0]["service"] != "turnstiled-test" {
		t.Fatalf("named line = %v", got[0])
	}
	if got[1]["request_id"] != "turnstiled/abc-000001" || got[1]["session_id"] != "9f3c2a" || got[1]["level"] != "warn" {
		t.Fatalf("ctx line = %v", got[1])
	}
	if _, ok := got[2]["request_id"]; ok {
		t.Fatalf("bare line = %v", got[2])
	}
}

func TestInit_LevelsAndFormats(t *testing.T) {
	testkit.Serial(t)
	buf := install(t, Options{Level: "nonsense"})
	Get().Debug().Msg("hidden")
	Get().Info().Msg("shown")
	if n := len(lines(t, buf)); n != 1 {
		t.Fatalf("unknown level should mean info, got %d lines", n)
	}

	buf = install(t, Options{Level: "error", Format: "console"})
	Get().Warn().Msg("hidden")
	Get().Error().Msg("rules file unreadable")
	out := buf.String()
	testkit.MustContain(t, out, "rules file unreadable")
	if strings.Contains(out, "hidden") || strings.HasPrefix(out, "{") {
		t.Fatalf("console output = %q", out)
	}
}
