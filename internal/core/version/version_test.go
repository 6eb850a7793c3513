package version

import (
	"runtime/debug"
	"testing"

	"turnstiled/internal/platform/testkit"
)

func TestInfo_VCSFallback(t *testing.T) {
	testkit.Swap(t, &readBuildInfo, func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{GoVersion: "go1.25.0", Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "4f2a9c1"},
			{Key: "vcs.time", Value: "2026-10-01T12:00:00Z"},
		}}, true
	})
	b := Info()
	if b.Service != "turnstiled" || b.Version != "dev" || b.Commit != "4f2a9c1" || b.Date != "2026-10-01T12:00:00Z" || b.GoVersion != "go1.25.0" {
		t.Fatalf("info = %+v", b)
	}
}

func TestInfo_LdflagsWin(t *testing.T) {
	testkit.Swap(t, &commit, "abc123")
	testkit.Swap(t, &readBuildInfo, func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "4f2a9c1"}}}, true
	})
	if b := Info(); b.Commit != "abc123" || b.Date != "unknown" {
		t.Fatalf("info = %+v", b)
	}

	testkit.Swap(t, &readBuildInfo, func() (*debug.BuildInfo, bool) { return nil, false })
	testkit.Swap(t, &commit, "")
	if b := Info(); b.Commit != "none" || b.GoVersion != "" {
		t.Fatalf("no build info = %+v", b)
	}
}
