package module

import (
	"time"

	"turnstiled/internal/platform/config"
)

// Options controls the solve orchestrator
type Options struct {
	Concurrency     int
	SolveTimeout    time.Duration
	DetectTimeout   time.Duration
	ClickTimeout    time.Duration
	ClickBudget     int
	ClickPause      time.Duration
	ClickSettle     time.Duration
	ClickPoll       time.Duration
	ProviderTimeout time.Duration
	RelayTimeout    time.Duration
	RelayPoll       time.Duration
	RulesFile       string
	MaxMatches      int
}

// FromConfig reads TURNSTILE_SOLVER_* and TURNSTILE_RULES_FILE
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("TURNSTILE_SOLVER_")
	return Options{
		Concurrency:     c.MayInt("CONCURRENCY", 4),
		SolveTimeout:    c.MayDuration("TIMEOUT", 0),
		DetectTimeout:   c.MayDuration("DETECT_TIMEOUT", 10*time.Second),
		ClickTimeout:    c.MayDuration("CLICK_TIMEOUT", 20*time.Second),
		ClickBudget:     c.MayInt("CLICK_BUDGET", 10),
		ClickPause:      c.MayDuration("CLICK_PAUSE", 500*time.Millisecond),
		ClickSettle:     c.MayDuration("CLICK_SETTLE", 2*time.Second),
		ClickPoll:       c.MayDuration("CLICK_POLL", 500*time.Millisecond),
		ProviderTimeout: c.MayDuration("PROVIDER_TIMEOUT", 2*time.Minute),
		RelayTimeout:    c.MayDuration("RELAY_TIMEOUT", 30*time.Second),
		RelayPoll:       c.MayDuration("RELAY_POLL", 500*time.Millisecond),
		RulesFile:       cfg.Prefix("TURNSTILE_").MayString("RULES_FILE", ""),
		MaxMatches:      c.MayInt("MAX_MATCHES", 0),
	}
}
