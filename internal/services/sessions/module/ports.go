package module

import (
	"context"

	sessionsdom "turnstiled/internal/services/sessions/domain"
)

// Pinger is the readiness surface of the session store
type Pinger interface {
	Ping(context.Context) error
}

// Ports holds the ports exposed by the sessions module
type Ports struct {
	Sessions sessionsdom.ServicePort
	Store    Pinger
}

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }
