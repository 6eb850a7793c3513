package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"turnstiled/internal/platform/config"
	"turnstiled/internal/platform/logger"
)

// DefaultAddr is where the session server listens when PORT is unset
const DefaultAddr = ":8888"

// Server owns the root chi mux and the listener serving it
type Server struct {
	addr string
	mux  *chi.Mux
	srv  *http.Server
}

// NewServer reads PORT (":8080", "8080" or "host:port") and READ_HEADER_TIMEOUT from cfg
func NewServer(cfg config.Conf) *Server {
	addr := cfg.MayString("PORT", DefaultAddr)
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}
	mux := chi.NewRouter()
	return &Server{
		addr: addr,
		mux:  mux,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: cfg.MayDuration("READ_HEADER_TIMEOUT", 10*time.Second),
		},
	}
}

// Router is the root router modules mount on
func (s *Server) Router() Router { return AdaptChi(s.mux) }

// Handler serves the mounted routes without a listener
func (s *Server) Handler() http.Handler { return s.mux }

// Addr is the configured listen address
func (s *Server) Addr() string { return s.addr }

// Run listens until Shutdown. A clean shutdown returns nil
func (s *Server) Run(ctx context.Context) error {
	logger.C(ctx).Info().Str("addr", s.addr).Msg("http listening")
	if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires
func (s *Server) Shutdown(ctx context.Context) error { return s.srv.Shutdown(ctx) }
