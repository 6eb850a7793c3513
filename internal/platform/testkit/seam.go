package testkit

import (
	"sync"
	"testing"
)

// one lock for every test that touches process state (env vars, package vars, registries)
var (
	processMu sync.Mutex
	heldMu    sync.Mutex
	held      = map[*testing.T]bool{}
)

// Serial holds the process lock until t finishes. A second call from the same test is a
// no-op; a subtest of a holder must not call it. t.Setenv still works since the test
// itself is not marked parallel
func Serial(t *testing.T) {
	t.Helper()
	heldMu.Lock()
	mine := held[t]
	heldMu.Unlock()
	if mine {
		return
	}
	processMu.Lock()
	heldMu.Lock()
	held[t] = true
	heldMu.Unlock()
	t.Cleanup(func() {
		heldMu.Lock()
		delete(held, t)
		heldMu.Unlock()
		processMu.Unlock()
	})
}

// Swap points *target at v until t finishes
func Swap[T any](t *testing.T, target *T, v T) {
	t.Helper()
	prev := *target
	*target = v
	t.Cleanup(func() { *target = prev })
}
