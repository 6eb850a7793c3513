// Package relay is the orchestrator side client of a turnstiled session server
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"turnstiled/internal/platform/config"
	perr "turnstiled/internal/platform/errors"
	"turnstiled/internal/platform/logger"
	"turnstiled/internal/services/solver/domain"
)

const (
	baseURLDefault = "http://localhost:8888"
	defaultTimeout = 10 * time.Second
)

// Options configures the Client
type Options struct {
	BaseURL string
	Timeout time.Duration
}

// FromConfig reads TURNSTILE_RELAY_*
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("TURNSTILE_RELAY_")
	return Options{
		BaseURL: c.MayString("BASE_URL", baseURLDefault),
		Timeout: c.MayDuration("TIMEOUT", defaultTimeout),
	}
}

// Client creates and polls relay sessions
type Client struct {
	http *http.Client
	opts Options
	log  logger.Logger
}

var _ domain.Relay = (*Client)(nil)

// NewClient creates a relay client
func NewClient(o Options) *Client {
	if o.BaseURL == "" {
		o.BaseURL = baseURLDefault
	}
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	return &Client{
		http: &http.Client{Timeout: o.Timeout},
		opts: o,
		log:  *logger.Named("relay"),
	}
}

type createBody struct {
	Sitekey string `json:"sitekey"`
	URL     string `json:"url"`
	Action  string `json:"action,omitempty"`
	CData   string `json:"cdata,omitempty"`
}

// envelope mirrors the server response body with data left raw
type envelope struct {
	StatusCode int             `json:"status_code"`
	Code       perr.ErrorCode  `json:"code,omitempty"`
	Error      string          `json:"error,omitempty"`
	RequestID  string          `json:"request_id,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// Create registers t with the server and returns the session and its solve url
func (c *Client) Create(ctx context.Context, t domain.Task) (domain.RelaySession, error) {
	body, err := json.Marshal(createBody{Sitekey: t.Sitekey, URL: t.URL, Action: t.Action, CData: t.CData})
	if err != nil {
		return domain.RelaySession{}, perr.Wrap(err, perr.ErrorCodeJSON, "relay: encode task")
	}
	var out domain.RelaySession
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions", body, &out); err != nil {
		return domain.RelaySession{}, err
	}
	if out.ID == "" {
		return domain.RelaySession{}, perr.Newf(perr.ErrorCodeUnknown, "relay: create returned no session id")
	}
	c.log.Debug().Str("relay_session", out.ID).Str("sitekey", t.Sitekey).Msg("relay session created")
	return out, nil
}

// Status polls one session. Unknown ids map to NotFound
func (c *Client) Status(ctx context.Context, id string) (domain.RelayStatus, error) {
	var out domain.RelayStatus
	err := c.do(ctx, http.MethodGet, "/status?session="+url.QueryEscape(id), nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.opts.BaseURL+path, rd)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "relay: new request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "relay: %s %s", method, path)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "relay: read %s", path)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return perr.Wrapf(err, codeForStatus(resp.StatusCode), "relay: %s status %d", path, resp.StatusCode)
	}
	if resp.StatusCode >= 300 {
		code := env.Code
		if code == perr.ErrorCodeUnknown {
			code = codeForStatus(resp.StatusCode)
		}
		msg := env.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return perr.Newf(code, "relay: %s", msg)
	}
	if len(env.Data) == 0 {
		return perr.Newf(perr.ErrorCodeUnknown, "relay: %s returned no data", path)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeJSON, "relay: decode %s", path)
	}
	return nil
}

// codeForStatus is used when the server did not send an error code
func codeForStatus(status int) perr.ErrorCode {
	switch {
	case status == http.StatusNotFound:
		return perr.ErrorCodeNotFound
	case status == http.StatusGone:
		return perr.ErrorCodeExpired
	case status == http.StatusTooManyRequests:
		return perr.ErrorCodeTooManyRequests
	case status >= 500:
		return perr.ErrorCodeUnavailable
	case status >= 400:
		return perr.ErrorCodeInvalidArgument
	default:
		return perr.ErrorCodeUnknown
	}
}
