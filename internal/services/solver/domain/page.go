// Package domain holds the solve orchestrator contracts: the page handle it drives, the
// provider and relay it falls back to, and the state machine vocabulary
package domain

import (
	"context"
	"encoding/json"
)

// Page is a capability shaped handle on one browser tab. Implementations decide how a
// Script is executed; the orchestrator only relies on the JSON shapes documented per Script
type Page interface {
	URL() string
	Content(ctx context.Context) (string, error)
	Evaluate(ctx context.Context, s Script, arg any) (json.RawMessage, error)
	Navigate(ctx context.Context, url string) error
	IsClosed() bool
	Close(ctx context.Context) error
}

// Opener creates a secondary page in the same browser context
type Opener interface {
	Open(ctx context.Context) (Page, error)
}

// Snapshot is the ScriptSnapshot result
type Snapshot struct {
	HTML string `json:"html"`
}

// Candidate is one clickable challenge surface returned by ScriptClickCandidates
type Candidate struct {
	Ref         string `json:"ref"`
	Kind        string `json:"kind"` // iframe or document
	Selector    string `json:"selector"`
	Description string `json:"description"`
	Visible     bool   `json:"visible"`
}

// Target addresses a candidate for ScriptHover and ScriptClick
type Target struct {
	Ref string `json:"ref"`
}

// Ack is the ScriptHover and ScriptClick result
type Ack struct {
	OK bool `json:"ok"`
}

// Response is the ScriptReadResponse result
type Response struct {
	Token string `json:"token"`
}

// Injection is the ScriptInjectToken argument
type Injection struct {
	Token string `json:"token"`
}

// Injected is the ScriptInjectToken result
type Injected struct {
	Accepted int      `json:"accepted"`
	Surfaces []string `json:"surfaces"`
}
