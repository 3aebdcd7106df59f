// Package lease provides a single-writer exclusion token on a blob, kept
// alive by periodic renewal on a background timer.
//
// The timer shape (stop/stopped channels, Start/Stop idempotent) is the same
// as the teacher's lease-break scanner; the acquire/renew/release conflict
// handling follows the Azure blob leaser idiom: conflict on acquire is a
// negative result, not an error, and renewal failure is surfaced to the
// owner exactly once rather than retried silently.
package lease

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blobtailer/blobtailer/internal/telemetry"
	"github.com/blobtailer/blobtailer/pkg/objectstore"
)

// OnFailure is invoked on the renewal timer's goroutine when a renewal
// fails. It must be side-effect-only (e.g. set a flag in a concurrent set)
// — per the spec's cyclic-ownership note, callers should pass a handle to
// their compromised-set, not the owner object itself, to avoid a reference
// cycle between the lease manager and its owner.
type OnFailure func(blobName string)

// Manager acquires, renews, and releases a lease on one blob.
//
// A Manager is created when a claim begins and is scoped to that single
// claim; it does not outlive the blob's processing. The token field is
// touched by both the owning goroutine and the renewal timer goroutine, so
// all access goes through atomic.Value.
type Manager struct {
	store     objectstore.Client
	container string
	name      string
	duration  time.Duration
	renewal   time.Duration
	onFailure OnFailure

	token atomic.Value // string; empty string means no lease held

	mu      sync.Mutex
	stop    chan struct{}
	stopped chan struct{}
	running bool
}

// NewManager constructs a Manager for one blob. duration is the lease
// duration requested on acquire (15–60s); renewal is the period between
// renew() calls once start_renewal is invoked (renewal < duration,
// recommended ≈ 2·duration/3).
func NewManager(store objectstore.Client, container, name string, duration, renewal time.Duration, onFailure OnFailure) *Manager {
	m := &Manager{
		store:     store,
		container: container,
		name:      name,
		duration:  duration,
		renewal:   renewal,
		onFailure: onFailure,
	}
	m.token.Store("")
	return m
}

// Acquire asks the store for a lease of the configured duration. Returns
// ("", nil) when the store reports a conflict (another holder exists); any
// other failure propagates.
func (m *Manager) Acquire(ctx context.Context) (string, error) {
	ctx, span := telemetry.StartLeaseSpan(ctx, telemetry.SpanLeaseAcquire, m.name, telemetry.Container(m.container))
	defer span.End()

	h, err := m.store.AcquireLease(ctx, m.container, m.name, m.duration)
	if err != nil {
		if objectstore.IsConflict(err) {
			return "", nil
		}
		telemetry.RecordError(ctx, err)
		return "", err
	}
	span.SetAttributes(telemetry.LeaseToken(h.Token))
	m.token.Store(h.Token)
	return h.Token, nil
}

// Renew extends the current lease. Failure propagates to the caller; it
// does not itself invoke OnFailure — that only happens from the background
// renewal timer (StartRenewal).
func (m *Manager) Renew(ctx context.Context) error {
	ctx, span := telemetry.StartLeaseSpan(ctx, telemetry.SpanLeaseRenew, m.name, telemetry.Container(m.container))
	defer span.End()

	token := m.Token()
	if token == "" {
		err := objectstore.NewLeaseNotHeldError(m.container, m.name)
		telemetry.RecordError(ctx, err)
		return err
	}
	err := m.store.RenewLease(ctx, objectstore.LeaseHandle{Token: token, Container: m.container, Name: m.name})
	if err != nil {
		telemetry.RecordError(ctx, err)
	}
	return err
}

// Release relinquishes the lease. A "lease not held" reply from the store
// is swallowed as success, matching the spec's release() contract.
func (m *Manager) Release(ctx context.Context) error {
	ctx, span := telemetry.StartLeaseSpan(ctx, telemetry.SpanLeaseRelease, m.name, telemetry.Container(m.container))
	defer span.End()

	token := m.Token()
	if token == "" {
		return nil
	}
	err := m.store.ReleaseLease(ctx, objectstore.LeaseHandle{Token: token, Container: m.container, Name: m.name})
	if err != nil && !objectstore.IsLeaseNotHeld(err) {
		telemetry.RecordError(ctx, err)
		return err
	}
	m.token.Store("")
	return nil
}

// Token returns the current lease token, or "" if no lease is held.
func (m *Manager) Token() string {
	return m.token.Load().(string)
}

// StartRenewal schedules Renew at the configured renewal period on a
// dedicated timer. On the first renewal failure, onFailure is invoked
// exactly once and the timer stops; no further renewals are attempted.
// Idempotent — a second call while already running is a no-op.
func (m *Manager) StartRenewal() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stop = make(chan struct{})
	m.stopped = make(chan struct{})
	m.mu.Unlock()

	go m.renewLoop()
}

// StopRenewal cancels the renewal timer. Blocks until the loop has exited.
// Idempotent.
func (m *Manager) StopRenewal() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stop)
	m.mu.Unlock()

	<-m.stopped
}

func (m *Manager) renewLoop() {
	defer close(m.stopped)

	ticker := time.NewTicker(m.renewal)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), m.renewal)
			err := m.Renew(ctx)
			cancel()
			if err != nil {
				if m.onFailure != nil {
					m.onFailure(m.name)
				}
				m.mu.Lock()
				if m.running {
					m.running = false
					close(m.stop)
				}
				m.mu.Unlock()
				return
			}
		}
	}
}
