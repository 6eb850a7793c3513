// @title         turnstiled
// @version       0.1.0
// @description   Turnstile relay sessions and service metadata

package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"turnstiled/internal/core/version"
	"turnstiled/internal/platform/config"
	"turnstiled/internal/platform/logger"
	phttp "turnstiled/internal/platform/net/http"

	"turnstiled/internal/services/server"
)

func main() {
	root := config.New()
	srvCfg := root.Prefix("TURNSTILE_SERVER_")

	l := logger.Get()
	info := version.Info()
	l.Info().Str("version", info.Version).Str("commit", info.Commit).Msg("turnstiled starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// http server (reads TURNSTILE_SERVER_PORT)
	srv := phttp.NewServer(srvCfg)

	opt := server.FromConfig(root)
	opt.Logger = logger.Named("server")
	app := server.Mount(srv.Router(), opt)

	// janitor
	go func() {
		if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			l.Error().Err(err).Msg("session janitor stopped")
		}
	}()

	errc := make(chan error, 1)
	go func() { errc <- srv.Run(ctx) }()

	select {
	case err := <-errc:
		if err != nil {
			l.Panic().Err(err).Msg("http server stopped")
		}
		return
	case <-ctx.Done():
	}

	l.Info().Msg("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), srvCfg.MayDuration("SHUTDOWN_TIMEOUT", 10*time.Second))
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		l.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := <-errc; err != nil {
		l.Error().Err(err).Msg("http server stopped")
	}
}
