// Package repo provides the in-memory session store
package repo

import (
	"context"
	"sort"
	"sync"

	perr "turnstiled/internal/platform/errors"
	"turnstiled/internal/services/sessions/domain"
)

// Repo defines the storage contract for sessions. Values cross the boundary by copy
type Repo interface {
	Insert(ctx context.Context, s domain.Session) error
	Get(ctx context.Context, id string) (domain.Session, error)
	// Update applies fn to the stored session under the store lock and persists the
	// result only when fn returns nil
	Update(ctx context.Context, id string, fn func(*domain.Session) error) (domain.Session, error)
	Count(ctx context.Context, keep func(domain.Session) bool) int
	DeleteWhere(ctx context.Context, drop func(domain.Session) bool) []string
	Len() int
}

// Memory implements Repo over a mutex guarded map. One instance per server
type Memory struct {
	mu sync.RWMutex
	m  map[string]domain.Session
}

// NewMemory returns an empty store
func NewMemory() *Memory {
	return &Memory{m: make(map[string]domain.Session)}
}

// Insert stores a new session; an existing id is a conflict
func (r *Memory) Insert(_ context.Context, s domain.Session) error {
	if s.ID == "" {
		return perr.InvalidArgf("session id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[s.ID]; ok {
		return perr.Conflictf("session %s already exists", s.ID)
	}
	r.m[s.ID] = s
	return nil
}

// Get returns a copy of the session
func (r *Memory) Get(_ context.Context, id string) (domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.m[id]
	if !ok {
		return domain.Session{}, perr.NotFoundf("session %s not found", id)
	}
	return s, nil
}

// Update is the only mutation path for an existing session
func (r *Memory) Update(_ context.Context, id string, fn func(*domain.Session) error) (domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.m[id]
	if !ok {
		return domain.Session{}, perr.NotFoundf("session %s not found", id)
	}
	next := s
	if err := fn(&next); err != nil {
		return s, err
	}
	next.ID = s.ID
	r.m[id] = next
	return next, nil
}

// Count returns how many sessions satisfy keep
func (r *Memory) Count(_ context.Context, keep func(domain.Session) bool) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, s := range r.m {
		if keep == nil || keep(s) {
			n++
		}
	}
	return n
}

// DeleteWhere evicts matching sessions and returns their ids sorted
func (r *Memory) DeleteWhere(_ context.Context, drop func(domain.Session) bool) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var gone []string
	for id, s := range r.m {
		if drop(s) {
			delete(r.m, id)
			gone = append(gone, id)
		}
	}
	sort.Strings(gone)
	return gone
}

// Len is the raw store size including expired and completed sessions
func (r *Memory) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}

// Ping lets readiness probes treat the store like any other dependency
func (r *Memory) Ping(context.Context) error { return nil }
