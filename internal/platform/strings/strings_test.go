package strings

import (
	"testing"

	"turnstiled/internal/platform/testkit"
)

func TestMustString(t *testing.T) {
	if got := MustString("sessions", "module name"); got != "sessions" {
		t.Fatalf("got %q", got)
	}
	testkit.MustPanic(t, func() { MustString(" \t", "module name") })
}

func TestMustPrefix(t *testing.T) {
	for in, want := range map[string]string{
		"sessions":   "/sessions",
		"/meta/":     "/meta",
		"  /api/v1 ": "/api/v1",
		"//solver//": "/solver",
	} {
		if got := MustPrefix(in); got != want {
			t.Fatalf("MustPrefix(%q) = %q, want %q", in, got, want)
		}
	}
	for _, in := range []string{"", "/", " / "} {
		testkit.MustPanic(t, func() { MustPrefix(in) })
	}
}
