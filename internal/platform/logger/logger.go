// Package logger owns the process zerolog logger. Code logs through Named for a component
// or C for a request, which adds the request and solve session ids stored by WithRequest
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"

	"turnstiled/internal/platform/config/raw"
)

// Logger is zerolog's logger
type Logger = zerolog.Logger

// Options shapes the root logger
type Options struct {
	// Level is a zerolog level name; unknown names mean info
	Level string
	// Format is "json" or "console"
	Format string
	// Service is stamped on every line when set
	Service string
	// Writer defaults to stderr so scan reports on stdout stay clean
	Writer      io.Writer
	Caller      bool
	SampleEvery int
}

// FromEnv reads TURNSTILE_LOG_{LEVEL,FORMAT,SERVICE,CALLER,SAMPLE_EVERY}
func FromEnv() Options {
	env := raw.New().Prefix("TURNSTILE_LOG_")
	return Options{
		Level:       env.Get("LEVEL", "info"),
		Format:      strings.ToLower(env.Get("FORMAT", "json")),
		Service:     env.Get("SERVICE", "turnstiled"),
		Caller:      env.GetBool("CALLER", false),
		SampleEvery: env.GetInt("SAMPLE_EVERY", 0),
	}
}

var (
	root     atomic.Pointer[zerolog.Logger]
	fromEnv  sync.Once
	setupOne sync.Once
)

// Init replaces the root logger. Loggers handed out earlier keep the old settings
func Init(opt Options) {
	setupOne.Do(func() {
		zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
		zerolog.TimeFieldFormat = time.RFC3339Nano
	})

	w := opt.Writer
	if w == nil {
		w = os.Stderr
	}
	if opt.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(opt.Level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	zc := zerolog.New(w).Level(lvl).With().Timestamp()
	if opt.Service != "" {
		zc = zc.Str("service", opt.Service)
	}
	if opt.Caller {
		zc = zc.Caller()
	}
	l := zc.Logger()
	if opt.SampleEvery > 1 {
		l = l.Sample(&zerolog.BasicSampler{N: uint32(opt.SampleEvery)})
	}
	root.Store(&l)
}

// Get is the root logger, built from the environment on first use
func Get() *Logger {
	fromEnv.Do(func() {
		if root.Load() == nil {
			Init(FromEnv())
		}
	})
	return root.Load()
}

// Named tags lines with a component such as "solver" or "sessions"
func Named(component string) *Logger {
	if component == "" {
		return Get()
	}
	l := Get().With().Str("component", component).Logger()
	return &l
}

type ctxKey int

const (
	requestIDKey ctxKey = iota
	sessionIDKey
)

// WithRequest stores the ids C adds to every line. Blank ids are skipped
func WithRequest(ctx context.Context, reqID, sessionID string) context.Context {
	if reqID != "" {
		ctx = context.WithValue(ctx, requestIDKey, reqID)
	}
	if sessionID != "" {
		ctx = context.WithValue(ctx, sessionIDKey, sessionID)
	}
	return ctx
}

// C is the root logger carrying whatever ids ctx holds
func C(ctx context.Context) *Logger {
	zc := Get().With()
	if s, _ := ctx.Value(requestIDKey).(string); s != "" {
		zc = zc.Str("request_id", s)
	}
	if s, _ := ctx.Value(sessionIDKey).(string); s != "" {
		zc = zc.Str("session_id", s)
	}
	l := zc.Logger()
	return &l
}
