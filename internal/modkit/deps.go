// Package modkit carries the shared dependencies and mount options every service module takes
package modkit

import (
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"turnstiled/internal/platform/config"
	"turnstiled/internal/platform/logger"
)

// Deps is handed to each module constructor. Any field may be left zero
type Deps struct {
	Log    logger.Logger
	Cfg    config.Conf
	Meter  metric.Meter
	Tracer trace.Tracer
	Now    func() time.Time
}

// MeterOrGlobal prefers the injected meter over the global provider
func (d Deps) MeterOrGlobal(name string) metric.Meter {
	if d.Meter == nil {
		return otel.Meter(name)
	}
	return d.Meter
}

// TracerOrGlobal prefers the injected tracer over the global provider
func (d Deps) TracerOrGlobal(name string) trace.Tracer {
	if d.Tracer == nil {
		return otel.Tracer(name)
	}
	return d.Tracer
}

// Clock is the time source sessions and meta use for TTLs and uptime
func (d Deps) Clock() func() time.Time {
	if d.Now == nil {
		return time.Now
	}
	return d.Now
}
