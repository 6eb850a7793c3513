package domain

import (
	"context"
	"time"
)

// Task describes one widget instance to solve out of band
type Task struct {
	Sitekey string `json:"sitekey"`
	URL     string `json:"url"`
	Action  string `json:"action,omitempty"`
	CData   string `json:"cdata,omitempty"`
}

// Provider obtains a token from a third party solving service
type Provider interface {
	Name() string
	Solve(ctx context.Context, t Task) (string, error)
}

// Relay status values mirror the session server
const (
	RelayPending       = "pending"
	RelayAwaitingToken = "awaiting_token"
	RelayCompleted     = "completed"
	RelayExpired       = "expired"
)

// RelaySession is a session created on a relay server
type RelaySession struct {
	ID        string    `json:"session_id"`
	SolveURL  string    `json:"solve_url"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RelayStatus is one poll of a relay session
type RelayStatus struct {
	ID     string `json:"session_id"`
	Status string `json:"status"`
	Token  string `json:"token,omitempty"`
}

// Relay talks to a session server that renders the widget for a real browser
type Relay interface {
	Create(ctx context.Context, t Task) (RelaySession, error)
	Status(ctx context.Context, id string) (RelayStatus, error)
}
