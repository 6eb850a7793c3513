// Package domain holds the solve session model and the DTOs for sessions http and service contracts
package domain

import "time"

// Status is the lifecycle state of a solve session
type Status string

const (
	// StatusPending is a freshly created session nobody has opened yet
	StatusPending Status = "pending"
	// StatusAwaitingToken means the widget page was served and a token is expected
	StatusAwaitingToken Status = "awaiting_token"
	// StatusCompleted holds a submitted token; terminal
	StatusCompleted Status = "completed"
	// StatusExpired is observed at read time once expires_at has passed without a token
	StatusExpired Status = "expired"
)

// Session is one out-of-band relay solve attempt
type Session struct {
	ID          string
	Sitekey     string
	URL         string
	Action      string
	CData       string
	Status      Status
	Token       string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	CompletedAt time.Time
}

// StatusAt is the status as observed at now. Expiry does not depend on the janitor
func (s Session) StatusAt(now time.Time) Status {
	if s.Status == StatusCompleted {
		return StatusCompleted
	}
	if !now.Before(s.ExpiresAt) {
		return StatusExpired
	}
	return s.Status
}

// Live reports whether the session can still accept a token at now
func (s Session) Live(now time.Time) bool {
	switch s.StatusAt(now) {
	case StatusPending, StatusAwaitingToken:
		return true
	}
	return false
}
