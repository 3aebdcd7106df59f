// Package container implements the container-move state tracker: state is
// implicit in which of three containers a blob lives in (incoming, archive,
// errors), so it requires copy+delete permission but no tag-write
// permission.
package container

import (
	"context"
	"fmt"
	"time"

	"github.com/blobtailer/blobtailer/internal/logger"
	"github.com/blobtailer/blobtailer/internal/telemetry"
	"github.com/blobtailer/blobtailer/pkg/lease"
	"github.com/blobtailer/blobtailer/pkg/objectstore"
	"github.com/blobtailer/blobtailer/pkg/tracker"
)

const strategyName = "container"

// Config configures the container-move tracker.
type Config struct {
	Incoming      string
	Archive       string
	Errors        string
	LeaseDuration time.Duration
	LeaseRenewal  time.Duration
}

// Tracker keeps state implicit in which container a blob lives in.
type Tracker struct {
	store    objectstore.Client
	incoming string
	archive  string
	errors   string
	duration time.Duration
	renewal  time.Duration
	leases   *tracker.ActiveLeases
}

var _ tracker.Tracker = (*Tracker)(nil)

// New constructs a tracker backed by container moves.
func New(store objectstore.Client, cfg Config) *Tracker {
	return &Tracker{
		store:    store,
		incoming: cfg.Incoming,
		archive:  cfg.Archive,
		errors:   cfg.Errors,
		duration: cfg.LeaseDuration,
		renewal:  cfg.LeaseRenewal,
		leases:   tracker.NewActiveLeases(),
	}
}

// FilterCandidates excludes any blob already present in archive, probed one
// blob at a time. Listing the entire archive container scales linearly in
// archive size and is rejected by design; a per-blob existence probe keeps
// this O(1) per candidate regardless of archive size.
func (t *Tracker) FilterCandidates(ctx context.Context, blobs []tracker.BlobInfo) ([]tracker.BlobInfo, error) {
	ctx, span := telemetry.StartTrackerSpan(ctx, telemetry.SpanTrackerFilter, strategyName)
	defer span.End()

	candidates := make([]tracker.BlobInfo, 0, len(blobs))
	for _, b := range blobs {
		present, err := t.store.Exists(ctx, t.archive, b.Name)
		if err != nil {
			telemetry.RecordError(ctx, err)
			return nil, err
		}
		if present {
			continue
		}
		candidates = append(candidates, b)
	}
	return candidates, nil
}

// Claim acquires a lease on the incoming blob and starts renewal.
func (t *Tracker) Claim(ctx context.Context, name string) (bool, error) {
	ctx, span := telemetry.StartTrackerSpan(ctx, telemetry.SpanPollClaim, strategyName, telemetry.BlobName(name))
	defer span.End()

	m := lease.NewManager(t.store, t.incoming, name, t.duration, t.renewal, func(blobName string) {
		t.leases.MarkCompromised(blobName)
	})

	token, err := m.Acquire(ctx)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return false, err
	}
	if token == "" {
		return false, nil
	}

	m.StartRenewal()
	t.leases.Store(name, m)
	return true, nil
}

// MarkCompleted copies incoming/name to archive/name, then deletes
// incoming/name with the held lease token as a write condition. Deleting
// the blob implicitly releases its lease, so no explicit release follows —
// an explicit release on an already-deleted blob would itself error.
func (t *Tracker) MarkCompleted(ctx context.Context, name string) error {
	return t.moveTo(ctx, name, t.archive)
}

// MarkFailed is identical to MarkCompleted with destination=errors.
func (t *Tracker) MarkFailed(ctx context.Context, name string, reason string) error {
	return t.moveTo(ctx, name, t.errors)
}

func (t *Tracker) moveTo(ctx context.Context, name, destination string) error {
	spanName := telemetry.SpanTrackerComplete
	if destination == t.errors {
		spanName = telemetry.SpanTrackerFail
	}
	ctx, span := telemetry.StartTrackerSpan(ctx, spanName, strategyName, telemetry.BlobName(name), telemetry.Container(destination))
	defer span.End()

	m, ok := t.leases.Get(name)
	if !ok {
		err := fmt.Errorf("tracker/container: terminal mark on %q without a held lease", name)
		telemetry.RecordError(ctx, err)
		return err
	}
	m.StopRenewal()

	// Copy-before-delete ordering is mandatory: if copy fails the blob must
	// remain in incoming for retry.
	if err := t.store.CopyBlob(ctx, t.incoming, name, destination, name); err != nil {
		telemetry.RecordError(ctx, err)
		return err
	}

	if err := t.store.DeleteBlob(ctx, t.incoming, name, m.Token()); err != nil {
		// Copy already succeeded; next cycle's filter will skip the
		// now-archived name via the archive existence probe.
		telemetry.RecordError(ctx, err)
		return err
	}

	t.leases.Remove(name)
	return nil
}

// Release stops renewal and releases the lease without changing terminal
// state — used only when a claim ended without a terminal mark (e.g. the
// orchestrator was interrupted before processing started).
func (t *Tracker) Release(ctx context.Context, name string) error {
	ctx, span := telemetry.StartTrackerSpan(ctx, telemetry.SpanLeaseRelease, strategyName, telemetry.BlobName(name))
	defer span.End()

	m, ok := t.leases.Get(name)
	if !ok {
		// A terminal mark already removed the lease from the map, or the
		// blob was never claimed. Either is a harmless no-op here.
		logger.Debug("tracker/container: release on blob with no active lease", "blob_name", name)
		return nil
	}
	m.StopRenewal()
	t.leases.Remove(name)
	return m.Release(ctx)
}

// WasLeaseRenewalCompromised implements tracker.Tracker.
func (t *Tracker) WasLeaseRenewalCompromised(name string) bool {
	return t.leases.WasCompromised(name)
}

// Close implements tracker.Tracker.
func (t *Tracker) Close(ctx context.Context) {
	t.leases.CloseAll(ctx)
}
