package module

import (
	"turnstiled/internal/core/detector"
	"turnstiled/internal/services/solver/service"
)

// Ports holds the ports exposed by the solver module
type Ports struct {
	Solver   service.Service
	Pool     *service.Pool
	Detector *detector.Engine
}
