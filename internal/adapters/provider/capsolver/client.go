// Package capsolver is a CapSolver compatible token provider for the solve orchestrator
package capsolver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"turnstiled/internal/platform/config"
	perr "turnstiled/internal/platform/errors"
	"turnstiled/internal/platform/logger"
	"turnstiled/internal/services/solver/domain"
)

const (
	baseURLDefault   = "https://api.capsolver.com"
	defaultTimeout   = 15 * time.Second
	defaultPoll      = 5 * time.Second
	defaultMaxPolls  = 60
	defaultRate      = 5.0
	defaultMaxRetry  = 3
	defaultRetryBase = 500 * time.Millisecond
)

// Options configures the Client
type Options struct {
	APIKey  string
	BaseURL string
	// Timeout caps a single HTTP exchange
	Timeout time.Duration

	PollInterval time.Duration
	MaxPolls     int

	// RatePerSec throttles outbound requests across all solves sharing the client
	RatePerSec float64
	Burst      int

	// Retry config for transport errors, 429 and 5xx
	MaxRetries int
	RetryBase  time.Duration
}

// FromConfig reads TURNSTILE_PROVIDER_*
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("TURNSTILE_PROVIDER_")
	return Options{
		APIKey:       c.MayString("API_KEY", ""),
		BaseURL:      c.MayString("BASE_URL", baseURLDefault),
		Timeout:      c.MayDuration("TIMEOUT", defaultTimeout),
		PollInterval: c.MayDuration("POLL_INTERVAL", defaultPoll),
		MaxPolls:     c.MayInt("MAX_POLLS", defaultMaxPolls),
		RatePerSec:   c.MayFloat64("RATE", defaultRate),
		MaxRetries:   c.MayInt("MAX_RETRIES", defaultMaxRetry),
	}
}

// Client solves Turnstile tasks through createTask and getTaskResult
type Client struct {
	http    *http.Client
	opts    Options
	limiter *rate.Limiter
	log     logger.Logger
}

var _ domain.Provider = (*Client)(nil)

// NewClient creates a Client with sane defaults
func NewClient(o Options) *Client {
	if o.BaseURL == "" {
		o.BaseURL = baseURLDefault
	}
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPoll
	}
	if o.MaxPolls <= 0 {
		o.MaxPolls = defaultMaxPolls
	}
	if o.RatePerSec <= 0 {
		o.RatePerSec = defaultRate
	}
	if o.Burst <= 0 {
		o.Burst = max(1, int(o.RatePerSec))
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryBase <= 0 {
		o.RetryBase = defaultRetryBase
	}
	return &Client{
		http:    &http.Client{Timeout: o.Timeout},
		opts:    o,
		limiter: rate.NewLimiter(rate.Limit(o.RatePerSec), o.Burst),
		log:     *logger.Named("capsolver"),
	}
}

// Name implements domain.Provider
func (c *Client) Name() string { return "capsolver" }

// Configured reports whether an API key is set
func (c *Client) Configured() bool { return c.opts.APIKey != "" }

// Solve creates a task and polls until it is ready, failed or out of polls
func (c *Client) Solve(ctx context.Context, t domain.Task) (string, error) {
	if !c.Configured() {
		return "", perr.Providerf("capsolver: api key not configured")
	}
	id, err := c.createTask(ctx, t)
	if err != nil {
		return "", err
	}
	l := c.log.With().Str("task_id", id).Str("sitekey", t.Sitekey).Logger()
	l.Debug().Msg("capsolver task created")

	for i := 0; i < c.opts.MaxPolls; i++ {
		if err := sleepCtx(ctx, c.opts.PollInterval); err != nil {
			return "", ctxErr(err, "capsolver: waiting for task")
		}
		var out getTaskResultResponse
		if err := c.post(ctx, "/getTaskResult", getTaskResultRequest{ClientKey: c.opts.APIKey, TaskID: id}, &out); err != nil {
			return "", err
		}
		if out.failed() {
			return "", perr.Providerf("capsolver: getTaskResult: %s", out.message())
		}
		switch out.Status {
		case StatusReady:
			if out.Solution.Token == "" {
				return "", perr.Providerf("capsolver: task %s ready without a token", id)
			}
			l.Info().Int("polls", i+1).Msg("capsolver task ready")
			return out.Solution.Token, nil
		case StatusFailed:
			return "", perr.Providerf("capsolver: task %s failed", id)
		}
	}
	return "", perr.Timeoutf("capsolver: task %s not ready after %d polls", id, c.opts.MaxPolls)
}

func (c *Client) createTask(ctx context.Context, t domain.Task) (string, error) {
	in := createTaskRequest{
		ClientKey: c.opts.APIKey,
		Task:      task{Type: TaskType, WebsiteURL: t.URL, WebsiteKey: t.Sitekey},
	}
	if t.Action != "" || t.CData != "" {
		in.Task.Metadata = &metadata{Action: t.Action, CData: t.CData}
	}
	var out createTaskResponse
	if err := c.post(ctx, "/createTask", in, &out); err != nil {
		return "", err
	}
	if out.failed() {
		return "", perr.Providerf("capsolver: createTask: %s", out.message())
	}
	if out.TaskID == "" {
		return "", perr.Providerf("capsolver: createTask returned no task id")
	}
	return out.TaskID, nil
}

// post sends one JSON call, retrying transient failures with exponential backoff
func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeJSON, "capsolver: encode %s", path)
	}
	url := c.opts.BaseURL + path
	attempt := 0

	op := func() error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(perr.Wrapf(err, perr.ErrorCodeUnknown, "capsolver: new request"))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return perr.Wrapf(err, perr.ErrorCodeUnavailable, "capsolver: %s", path)
		}
		defer func() { _ = resp.Body.Close() }()

		c.log.Debug().Str("path", path).Int("status", resp.StatusCode).Int("attempt", attempt).Msg("capsolver http response")

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			_, _ = io.Copy(io.Discard, resp.Body)
			return perr.Newf(perr.ErrorCodeTooManyRequests, "capsolver: %s rate limited", path)
		case resp.StatusCode >= 500:
			_, _ = io.Copy(io.Discard, resp.Body)
			return perr.Newf(perr.ErrorCodeUnavailable, "capsolver: %s status %d", path, resp.StatusCode)
		}

		// the API reports refusals as errorId in a 200 or 400 body
		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return perr.Wrapf(err, perr.ErrorCodeUnavailable, "capsolver: read %s", path)
		}
		if err := json.Unmarshal(raw, out); err != nil {
			tail := string(raw[:min(len(raw), 256)])
			return backoff.Permanent(perr.Wrapf(err, perr.ErrorCodeProvider, "capsolver: %s status %d body %s", path, resp.StatusCode, tail))
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.RetryBase
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.opts.MaxRetries)), ctx)

	err = backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		c.log.Warn().Err(err).Str("path", path).Dur("retry_in", wait).Int("attempt", attempt).Msg("capsolver transient error retrying")
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctxErr(ctx.Err(), "capsolver: "+path)
	}
	if perr.Retryable(err) {
		return perr.Wrapf(err, perr.ErrorCodeProvider, "capsolver: %s gave up after %d attempts", path, attempt)
	}
	return err
}

// ctxErr keeps the context error in the chain so callers can tell a budget from a cancel
func ctxErr(err error, msg string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return perr.Wrap(err, perr.ErrorCodeTimeout, msg)
	}
	return perr.Wrap(err, perr.ErrorCodeUnavailable, msg)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
