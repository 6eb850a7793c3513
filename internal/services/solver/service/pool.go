package service

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"turnstiled/internal/services/solver/domain"
)

// Pool runs independent orchestrations under a shared concurrency ceiling
type Pool struct {
	svc   Service
	sem   *semaphore.Weighted
	limit int
}

// NewPool bounds svc to limit concurrent solves (limit <= 0 means 1)
func NewPool(svc Service, limit int) *Pool {
	if limit <= 0 {
		limit = 1
	}
	return &Pool{svc: svc, sem: semaphore.NewWeighted(int64(limit)), limit: limit}
}

// Limit returns the ceiling
func (p *Pool) Limit() int { return p.limit }

// Solve waits for a slot and solves page. The error is non-nil only when ctx ended
// before a slot freed up
func (p *Pool) Solve(ctx context.Context, page domain.Page) (domain.Result, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return domain.Result{}, err
	}
	defer p.sem.Release(1)
	return p.svc.Solve(ctx, page), nil
}

// SolveAll solves every page and returns results in input order
func (p *Pool) SolveAll(ctx context.Context, pages []domain.Page) ([]domain.Result, error) {
	out := make([]domain.Result, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.limit)
	for i, page := range pages {
		g.Go(func() error {
			res, err := p.Solve(gctx, page)
			if err != nil {
				return err
			}
			out[i] = res
			return nil
		})
	}
	return out, g.Wait()
}
