package tracker

import (
	"context"
	"sync"

	"github.com/blobtailer/blobtailer/internal/logger"
	"github.com/blobtailer/blobtailer/pkg/lease"
)

// ActiveLeases is the shared active-lease map and compromised-claims set
// used by the tags and container-move variants. Both are mutated from
// worker goroutines and from lease-renewal timer goroutines, so every
// access goes through the mutex.
//
// The compromised set is passed to each lease.Manager as a closure over
// MarkCompromised rather than a reference to the tracker itself, breaking
// the cyclic-ownership the spec warns about in §9 (a lease manager must
// never hold a reference back to its owning tracker).
type ActiveLeases struct {
	mu          sync.Mutex
	managers    map[string]*lease.Manager
	compromised map[string]bool
}

// NewActiveLeases returns an empty lease map.
func NewActiveLeases() *ActiveLeases {
	return &ActiveLeases{
		managers:    make(map[string]*lease.Manager),
		compromised: make(map[string]bool),
	}
}

// Store records the manager now owning name's claim.
func (a *ActiveLeases) Store(name string, m *lease.Manager) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.managers[name] = m
}

// Get returns the manager owning name's claim, if any.
func (a *ActiveLeases) Get(name string) (*lease.Manager, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, ok := a.managers[name]
	return m, ok
}

// Remove forgets name's claim without touching the lease itself.
func (a *ActiveLeases) Remove(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.managers, name)
}

// MarkCompromised flags name's claim as compromised. Safe to call from the
// lease manager's renewal timer goroutine.
func (a *ActiveLeases) MarkCompromised(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.compromised[name] = true
}

// WasCompromised reads and clears the compromised flag for name.
func (a *ActiveLeases) WasCompromised(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	compromised := a.compromised[name]
	delete(a.compromised, name)
	return compromised
}

// CloseAll stops renewal and releases every still-held lease, swallowing
// per-lease errors and logging them — matching close()'s contract that
// teardown always proceeds to the next lease.
func (a *ActiveLeases) CloseAll(ctx context.Context) {
	a.mu.Lock()
	managers := make(map[string]*lease.Manager, len(a.managers))
	for name, m := range a.managers {
		managers[name] = m
	}
	a.managers = make(map[string]*lease.Manager)
	a.mu.Unlock()

	for name, m := range managers {
		m.StopRenewal()
		if err := m.Release(ctx); err != nil {
			logger.Warn("tracker: failed to release lease during close", "blob_name", name, "error", err)
		}
	}
}
