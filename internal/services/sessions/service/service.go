// Package service brokers relay solve sessions between the served widget page and the
// orchestrator polling for a token
package service

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"turnstiled/internal/core/sitekey"
	"turnstiled/internal/modkit"
	perr "turnstiled/internal/platform/errors"
	"turnstiled/internal/platform/logger"
	"turnstiled/internal/services/sessions/domain"
	"turnstiled/internal/services/sessions/repo"
)

// Service defines the service contract for sessions
type Service interface{ domain.ServicePort }

// Config controls session lifetimes
type Config struct {
	TTL        time.Duration
	Retention  time.Duration
	SweepEvery time.Duration
	// AllowDemo accepts documented test sitekeys, which never need a real solve
	AllowDemo bool
}

// Svc implements the Service interface
type Svc struct {
	repo  repo.Repo
	cfg   Config
	now   func() time.Time
	newID func() string
}

// New creates the session service over r
func New(deps modkit.Deps, r repo.Repo, cfg Config) *Svc {
	if r == nil {
		panic("sessions.Service requires a non nil Repo")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 2 * time.Minute
	}
	if cfg.Retention <= 0 {
		cfg.Retention = time.Hour
	}
	if cfg.SweepEvery <= 0 {
		cfg.SweepEvery = time.Minute
	}
	return &Svc{
		repo:  r,
		cfg:   cfg,
		now:   deps.Clock(),
		newID: func() string { return uuid.NewString() },
	}
}

// Create validates the sitekey and target url and stores a pending session
func (s *Svc) Create(ctx context.Context, in domain.CreateInput) (domain.Session, error) {
	key := strings.TrimSpace(in.Sitekey)
	v := sitekey.Validate(key)
	switch {
	case v.Kind == sitekey.KindFake:
		return domain.Session{}, perr.WithField(perr.InvalidArgf("sitekey rejected: %s", v.Reason), "sitekey")
	case v.Kind == sitekey.KindDemo && !s.cfg.AllowDemo:
		return domain.Session{}, perr.WithField(
			perr.InvalidArgf("demo sitekey %s cannot be solved for real; use /test", key), "sitekey")
	}
	target, err := url.Parse(strings.TrimSpace(in.URL))
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return domain.Session{}, perr.WithField(perr.InvalidArgf("url must be an absolute http(s) url"), "url")
	}

	now := s.now()
	sess := domain.Session{
		ID:        s.newID(),
		Sitekey:   key,
		URL:       target.String(),
		Action:    in.Action,
		CData:     in.CData,
		Status:    domain.StatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.TTL),
	}
	if err := s.repo.Insert(ctx, sess); err != nil {
		return domain.Session{}, err
	}
	logger.C(ctx).Info().
		Str("session_id", sess.ID).
		Str("sitekey", sess.Sitekey).
		Str("verdict", string(v.Kind)).
		Time("expires_at", sess.ExpiresAt).
		Msg("session created")
	return sess, nil
}

// Get returns the session with its status observed now
func (s *Svc) Get(ctx context.Context, id string) (domain.Session, error) {
	sess, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Session{}, err
	}
	sess.Status = sess.StatusAt(s.now())
	return sess, nil
}

// Status reports the session status, and the token once completed
func (s *Svc) Status(ctx context.Context, id string) (domain.StatusView, error) {
	if strings.TrimSpace(id) == "" {
		return domain.StatusView{}, perr.WithField(perr.InvalidArgf("session id required"), "session")
	}
	sess, err := s.Get(ctx, id)
	if err != nil {
		return domain.StatusView{}, err
	}
	return view(sess), nil
}

// MarkServed moves pending to awaiting_token when the widget page is rendered.
// Completed sessions are returned unchanged; expired ones are rejected
func (s *Svc) MarkServed(ctx context.Context, id string) (domain.Session, error) {
	now := s.now()
	return s.repo.Update(ctx, id, func(sess *domain.Session) error {
		switch sess.StatusAt(now) {
		case domain.StatusExpired:
			return perr.Expiredf("session %s expired", sess.ID)
		case domain.StatusPending:
			sess.Status = domain.StatusAwaitingToken
		}
		return nil
	})
}

// Submit stores the token exactly once. Later submissions never replace it
func (s *Svc) Submit(ctx context.Context, in domain.TokenInput) (domain.StatusView, error) {
	now := s.now()
	sess, err := s.repo.Update(ctx, in.SessionID, func(sess *domain.Session) error {
		switch sess.StatusAt(now) {
		case domain.StatusCompleted:
			return perr.Conflictf("session %s already completed", sess.ID)
		case domain.StatusExpired:
			return perr.Expiredf("session %s expired", sess.ID)
		}
		sess.Status = domain.StatusCompleted
		sess.Token = in.Token
		sess.CompletedAt = now
		return nil
	})
	log := logger.C(ctx)
	if err != nil {
		log.Warn().Err(err).Str("session_id", in.SessionID).Msg("token rejected")
		return domain.StatusView{}, err
	}
	log.Info().Str("session_id", sess.ID).Int("token_len", len(sess.Token)).Msg("token received")
	return view(sess), nil
}

// Active counts sessions still waiting for a token
func (s *Svc) Active(ctx context.Context) int {
	now := s.now()
	return s.repo.Count(ctx, func(sess domain.Session) bool { return sess.Live(now) })
}

// Sweep evicts sessions whose expiry is older than the retention window and returns
// how many were dropped
func (s *Svc) Sweep(ctx context.Context) int {
	cutoff := s.now().Add(-s.cfg.Retention)
	gone := s.repo.DeleteWhere(ctx, func(sess domain.Session) bool {
		return sess.ExpiresAt.Before(cutoff)
	})
	return len(gone)
}

// Run sweeps on a ticker until ctx is done
func (s *Svc) Run(ctx context.Context) error {
	log := logger.Named("janitor")
	ticker := time.NewTicker(s.cfg.SweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := s.Sweep(ctx); n > 0 {
				log.Debug().Int("evicted", n).Int("remaining", s.repo.Len()).Msg("sessions swept")
			}
		}
	}
}

// Config returns the effective configuration
func (s *Svc) Config() Config { return s.cfg }

func view(sess domain.Session) domain.StatusView {
	v := domain.StatusView{
		SessionID: sess.ID,
		Status:    sess.Status,
		Sitekey:   sess.Sitekey,
		URL:       sess.URL,
		CreatedAt: sess.CreatedAt.UTC().Format(time.RFC3339),
		ExpiresAt: sess.ExpiresAt.UTC().Format(time.RFC3339),
	}
	if sess.Status == domain.StatusCompleted {
		v.Token = sess.Token
	}
	return v
}
