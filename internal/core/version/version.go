// Package version reports which build of turnstiled is running
package version

import "runtime/debug"

// Stamped with -ldflags "-X turnstiled/internal/core/version.version=v1.2.0 -X ...commit=abc123 -X ...date=2026-10-01"
var (
	version = "dev"
	commit  = ""
	date    = ""
)

// BuildInfo is the build stamp the meta routes and binaries print
type BuildInfo struct {
	Service   string `json:"service"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version,omitempty"`
}

var readBuildInfo = debug.ReadBuildInfo

// Info prefers ldflags stamps and falls back to the VCS settings the go tool embeds
func Info() BuildInfo {
	b := BuildInfo{Service: "turnstiled", Version: version, Commit: commit, Date: date}
	if bi, ok := readBuildInfo(); ok {
		b.GoVersion = bi.GoVersion
		for _, s := range bi.Settings {
			switch {
			case s.Key == "vcs.revision" && b.Commit == "":
				b.Commit = s.Value
			case s.Key == "vcs.time" && b.Date == "":
				b.Date = s.Value
			}
		}
	}
	if b.Commit == "" {
		b.Commit = "none"
	}
	if b.Date == "" {
		b.Date = "unknown"
	}
	return b
}
