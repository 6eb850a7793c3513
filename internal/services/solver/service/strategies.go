package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"

	"turnstiled/internal/core/dom"
	perr "turnstiled/internal/platform/errors"
	"turnstiled/internal/services/solver/domain"
	"turnstiled/internal/services/solver/guardrails"
)

var errNoCandidates = errors.New("no visible challenge candidates")

// click hovers and clicks each visible candidate in order, reading the response field
// after each one. Polls are shared across candidates and capped by ClickBudget
func (r *run) click(ctx context.Context) (string, error) {
	cfg := r.svc.cfg
	ctx, cancel := guardrails.ForClick(ctx, cfg.Budgets)
	defer cancel()

	var cands []domain.Candidate
	if err := r.eval(ctx, domain.ScriptClickCandidates, nil, &cands); err != nil {
		return "", err
	}
	var visible []domain.Candidate
	for _, c := range cands {
		if c.Visible {
			visible = append(visible, c)
		}
	}
	if len(visible) == 0 {
		return "", errNoCandidates
	}

	per := max(1, cfg.ClickBudget/len(visible))
	for _, c := range visible {
		var ack domain.Ack
		if err := r.eval(ctx, domain.ScriptHover, domain.Target{Ref: c.Ref}, &ack); err != nil {
			if dead(ctx, r) {
				return "", deadErr(ctx, err)
			}
			r.log.Debug().Err(err).Str("selector", c.Selector).Msg("hover failed")
			continue
		}
		if err := guardrails.Wait(ctx, cfg.ClickPause, r.alive); err != nil {
			return "", err
		}
		if err := r.eval(ctx, domain.ScriptClick, domain.Target{Ref: c.Ref}, &ack); err != nil || !ack.OK {
			if dead(ctx, r) {
				return "", deadErr(ctx, err)
			}
			r.log.Debug().Err(err).Str("selector", c.Selector).Msg("click not delivered")
			continue
		}
		r.log.Debug().Str("selector", c.Selector).Str("kind", c.Kind).Msg("clicked")
		if err := guardrails.Wait(ctx, cfg.ClickSettle, r.alive); err != nil {
			return "", err
		}

		tok, err := r.readResponse(ctx, per, cfg.ClickPoll)
		if err != nil || tok != "" {
			return tok, err
		}
	}
	return "", fmt.Errorf("no token after clicking %d candidates", len(visible))
}

// readResponse polls the response field up to n times
func (r *run) readResponse(ctx context.Context, n int, every time.Duration) (string, error) {
	tok := ""
	polls := 0
	err := guardrails.Poll(ctx, every, r.alive, func(ctx context.Context) (bool, error) {
		polls++
		var resp domain.Response
		if err := r.eval(ctx, domain.ScriptReadResponse, nil, &resp); err != nil {
			return false, err
		}
		tok = resp.Token
		return tok != "" || polls >= n, nil
	})
	return tok, err
}

func dead(ctx context.Context, r *run) bool { return ctx.Err() != nil || r.page.IsClosed() }

func deadErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil {
		return guardrails.ErrPageClosed
	}
	return err
}

// provider asks the configured solving service for a token and injects it
func (r *run) provider(ctx context.Context) (string, error) {
	p := r.svc.b.Provider
	if p == nil {
		return "", errors.New("no provider configured")
	}
	if err := r.usable(); err != nil {
		return "", err
	}
	pctx, cancel := guardrails.ForProvider(ctx, r.svc.cfg.Budgets)
	defer cancel()

	tok, err := p.Solve(pctx, r.task)
	if err != nil {
		return "", err
	}
	if tok == "" {
		return "", perr.Providerf("%s returned an empty token", p.Name())
	}
	if err := r.inject(ctx, tok); err != nil {
		return "", err
	}
	return tok, nil
}

// relay asks a session server to render the widget in a second page and waits for the
// token a real browser submits there
func (r *run) relay(ctx context.Context) (string, error) {
	rl := r.svc.b.Relay
	if rl == nil {
		return "", errors.New("no relay configured")
	}
	if err := r.usable(); err != nil {
		return "", err
	}
	ctx, cancel := guardrails.ForRelay(ctx, r.svc.cfg.Budgets)
	defer cancel()

	sess, err := rl.Create(ctx, r.task)
	if err != nil {
		return "", err
	}
	l := r.log.With().Str("relay_session", sess.ID).Logger()
	l.Debug().Str("solve_url", sess.SolveURL).Msg("relay session created")

	if op := r.svc.b.Opener; op != nil {
		second, err := op.Open(ctx)
		if err != nil {
			l.Warn().Err(err).Msg("open relay page")
		} else {
			defer closePage(ctx, second)
			if err := second.Navigate(ctx, sess.SolveURL); err != nil {
				l.Warn().Err(err).Msg("navigate relay page")
			}
		}
	}

	tok := ""
	err = guardrails.Poll(ctx, r.svc.cfg.RelayPoll, r.alive, func(ctx context.Context) (bool, error) {
		st, err := rl.Status(ctx, sess.ID)
		if err != nil {
			if perr.IsCode(err, perr.ErrorCodeNotFound) || perr.IsCode(err, perr.ErrorCodeExpired) || ctx.Err() != nil {
				return false, err
			}
			l.Debug().Err(err).Msg("relay status failed, retrying")
			return false, nil
		}
		switch st.Status {
		case domain.RelayCompleted:
			tok = st.Token
			return tok != "", nil
		case domain.RelayExpired:
			return false, perr.Expiredf("relay session %s expired", sess.ID)
		}
		return false, nil
	})
	if err != nil {
		return "", err
	}
	if err := r.inject(ctx, tok); err != nil {
		return "", err
	}
	return tok, nil
}

func (r *run) usable() error {
	if r.task.Sitekey == "" {
		return errors.New("no sitekey found")
	}
	if !r.verdict.Usable() {
		return fmt.Errorf("unusable sitekey: %s (%s)", r.verdict.Kind, r.verdict.Reason)
	}
	return nil
}

// closePage closes p even when ctx already ended
func closePage(ctx context.Context, p domain.Page) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	_ = p.Close(cctx)
}

// widgetParams reads data-action and data-cdata from the widget carrying key
func widgetParams(html, key string) (action, cdata string) {
	if html == "" || key == "" {
		return "", ""
	}
	doc, err := dom.Parse(html)
	if err != nil {
		return "", ""
	}
	doc.Find("[data-sitekey]").EachWithBreak(func(_ int, n *goquery.Selection) bool {
		if v, _ := n.Attr("data-sitekey"); v != key {
			return true
		}
		action = n.AttrOr("data-action", "")
		cdata = n.AttrOr("data-cdata", "")
		return false
	})
	return action, cdata
}
