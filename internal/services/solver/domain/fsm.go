package domain

import (
	"time"

	"turnstiled/internal/core/detector"
	"turnstiled/internal/core/sitekey"
)

// State is an orchestrator state
type State string

const (
	StateIdle            State = "idle"
	StateDetecting       State = "detecting"
	StateNoChallenge     State = "no_challenge"
	StateDetected        State = "detected"
	StateAttemptClick    State = "attempt_click"
	StateAttemptProvider State = "attempt_provider"
	StateAttemptRelay    State = "attempt_session_relay"
	StateSolved          State = "solved"
	StateFailed          State = "failed"
)

// Terminal reports whether no transition leaves s
func (s State) Terminal() bool {
	return s == StateNoChallenge || s == StateSolved || s == StateFailed
}

// Strategy names a solve attempt kind
type Strategy string

const (
	StrategyClick    Strategy = "click"
	StrategyProvider Strategy = "provider"
	StrategyRelay    Strategy = "session_relay"
)

// Order is the fixed strategy precedence
var Order = []Strategy{StrategyClick, StrategyProvider, StrategyRelay}

// State returns the attempt state for st
func (st Strategy) State() State {
	switch st {
	case StrategyClick:
		return StateAttemptClick
	case StrategyProvider:
		return StateAttemptProvider
	default:
		return StateAttemptRelay
	}
}

// Outcome is how one attempt ended
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeTimeout Outcome = "timeout"
)

// AttemptRecord is kept for every strategy that ran
type AttemptRecord struct {
	Strategy Strategy      `json:"strategy"`
	Outcome  Outcome       `json:"outcome"`
	Reason   string        `json:"reason,omitempty"`
	Started  time.Time     `json:"started"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Transition is one edge taken by the machine
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

// Result is the single structured outcome of Solve. Err is set on failed runs only
type Result struct {
	URL         string           `json:"url"`
	State       State            `json:"state"`
	Solved      bool             `json:"solved"`
	Token       string           `json:"token,omitempty"`
	Sitekey     string           `json:"sitekey,omitempty"`
	Verdict     *sitekey.Verdict `json:"verdict,omitempty"`
	Detection   *detector.Result `json:"detection,omitempty"`
	Attempts    []AttemptRecord  `json:"attempts"`
	Transitions []Transition     `json:"transitions"`
	Err         error            `json:"-"`
	Error       string           `json:"error,omitempty"`
}

// Attempted reports whether st ran
func (r Result) Attempted(st Strategy) bool {
	for _, a := range r.Attempts {
		if a.Strategy == st {
			return true
		}
	}
	return false
}
