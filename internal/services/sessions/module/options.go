package module

import (
	"time"

	"turnstiled/internal/platform/config"
)

// Options controls session lifetimes and link building
type Options struct {
	TTL        time.Duration
	Retention  time.Duration
	SweepEvery time.Duration
	AllowDemo  bool
	PublicURL  string
}

// FromConfig reads TURNSTILE_SESSIONS_* and TURNSTILE_SERVER_PUBLIC_URL
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("TURNSTILE_SESSIONS_")
	return Options{
		TTL:        c.MayDuration("TTL", 2*time.Minute),
		Retention:  c.MayDuration("RETENTION", time.Hour),
		SweepEvery: c.MayDuration("SWEEP_EVERY", time.Minute),
		AllowDemo:  c.MayBool("ALLOW_DEMO", false),
		PublicURL:  cfg.Prefix("TURNSTILE_SERVER_").MayString("PUBLIC_URL", ""),
	}
}
