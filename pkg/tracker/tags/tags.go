// Package tags implements the tag-based state tracker: state lives in five
// reserved index tags on each blob, so it works across multiple replicas
// without a shared registry, at the cost of requiring tag-write permission.
package tags

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/blobtailer/blobtailer/internal/telemetry"
	"github.com/blobtailer/blobtailer/pkg/lease"
	"github.com/blobtailer/blobtailer/pkg/objectstore"
	"github.com/blobtailer/blobtailer/pkg/tracker"
)

const strategyName = "tags"

const (
	tagStatus    = "logstash_status"
	tagProcessor = "logstash_processor"
	tagStarted   = "logstash_started"
	tagCompleted = "logstash_completed"
	tagError     = "logstash_error"

	statusProcessing = "processing"
	statusCompleted  = "completed"
	statusFailed     = "failed"

	maxErrorLength = 256
)

var errorSanitizeRe = regexp.MustCompile(`[^A-Za-z0-9 +\-./:=_]`)

// sanitizeError replaces any character outside the allowed alphabet with
// "_", truncates to maxErrorLength, and maps an empty reason to "unknown".
func sanitizeError(reason string) string {
	if reason == "" {
		return "unknown"
	}
	s := errorSanitizeRe.ReplaceAllString(reason, "_")
	if len(s) > maxErrorLength {
		s = s[:maxErrorLength]
	}
	return s
}

// Config configures the tag-based tracker.
type Config struct {
	Container     string
	Processor     string
	LeaseDuration time.Duration
	LeaseRenewal  time.Duration
}

// Tracker stores state in five reserved index tags on each blob.
type Tracker struct {
	store     objectstore.Client
	container string
	processor string
	duration  time.Duration
	renewal   time.Duration
	leases    *tracker.ActiveLeases
}

var _ tracker.Tracker = (*Tracker)(nil)

// New constructs a tracker backed by blob index tags.
func New(store objectstore.Client, cfg Config) *Tracker {
	return &Tracker{
		store:     store,
		container: cfg.Container,
		processor: cfg.Processor,
		duration:  cfg.LeaseDuration,
		renewal:   cfg.LeaseRenewal,
		leases:    tracker.NewActiveLeases(),
	}
}

// FilterCandidates includes a blob iff its status tag is absent, empty, or
// "failed". Prefers tags prefetched on the listing page; falls back to a
// per-blob tag read when the page did not carry them, per the spec's
// preference for the prefetched path where available.
func (t *Tracker) FilterCandidates(ctx context.Context, blobs []tracker.BlobInfo) ([]tracker.BlobInfo, error) {
	ctx, span := telemetry.StartTrackerSpan(ctx, telemetry.SpanTrackerFilter, strategyName)
	defer span.End()

	candidates := make([]tracker.BlobInfo, 0, len(blobs))
	for _, b := range blobs {
		tags := b.Tags
		if tags == nil {
			var err error
			tags, err = t.store.GetTags(ctx, t.container, b.Name)
			if err != nil {
				if objectstore.IsNotFound(err) {
					continue
				}
				telemetry.RecordError(ctx, err)
				return nil, err
			}
		}
		status := tags[tagStatus]
		if status == "" || status == statusFailed {
			candidates = append(candidates, b)
		}
	}
	return candidates, nil
}

// Claim acquires a lease, merges the reserved tags over the blob's existing
// tags with status=processing, and writes them back using the lease token
// as a write condition.
func (t *Tracker) Claim(ctx context.Context, name string) (bool, error) {
	ctx, span := telemetry.StartTrackerSpan(ctx, telemetry.SpanPollClaim, strategyName, telemetry.BlobName(name))
	defer span.End()

	m := lease.NewManager(t.store, t.container, name, t.duration, t.renewal, func(blobName string) {
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

	existing, err := t.store.GetTags(ctx, t.container, name)
	if err != nil {
		_ = m.Release(ctx)
		telemetry.RecordError(ctx, err)
		return false, err
	}

	merged := mergeUserTags(existing)
	merged[tagStatus] = statusProcessing
	merged[tagProcessor] = t.processor
	merged[tagStarted] = time.Now().UTC().Format(time.RFC3339)

	if err := t.store.SetTags(ctx, t.container, name, merged, token); err != nil {
		if objectstore.IsConflict(err) {
			_ = m.Release(ctx)
			return false, nil
		}
		_ = m.Release(ctx)
		telemetry.RecordError(ctx, err)
		return false, err
	}

	m.StartRenewal()
	t.leases.Store(name, m)
	return true, nil
}

// MarkCompleted writes status=completed and clears the started/error tags.
func (t *Tracker) MarkCompleted(ctx context.Context, name string) error {
	return t.markTerminal(ctx, telemetry.SpanTrackerComplete, name, func(tags map[string]string) {
		delete(tags, tagStarted)
		delete(tags, tagError)
		tags[tagStatus] = statusCompleted
		tags[tagCompleted] = time.Now().UTC().Format(time.RFC3339)
		tags[tagProcessor] = t.processor
	})
}

// MarkFailed writes status=failed with a sanitized, truncated reason.
func (t *Tracker) MarkFailed(ctx context.Context, name string, reason string) error {
	return t.markTerminal(ctx, telemetry.SpanTrackerFail, name, func(tags map[string]string) {
		tags[tagStatus] = statusFailed
		tags[tagError] = sanitizeError(reason)
		tags[tagProcessor] = t.processor
	})
}

func (t *Tracker) markTerminal(ctx context.Context, spanName, name string, mutate func(map[string]string)) error {
	ctx, span := telemetry.StartTrackerSpan(ctx, spanName, strategyName, telemetry.BlobName(name))
	defer span.End()

	m, ok := t.leases.Get(name)
	if !ok {
		err := fmt.Errorf("tracker/tags: mark on %q without a held claim", name)
		telemetry.RecordError(ctx, err)
		return err
	}

	existing, err := t.store.GetTags(ctx, t.container, name)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return err
	}
	merged := mergeUserTags(existing)
	mutate(merged)

	if err := t.store.SetTags(ctx, t.container, name, merged, m.Token()); err != nil {
		telemetry.RecordError(ctx, err)
		return err
	}
	return nil
}

// Release stops renewal, releases the lease, and forgets the blob.
func (t *Tracker) Release(ctx context.Context, name string) error {
	ctx, span := telemetry.StartTrackerSpan(ctx, telemetry.SpanLeaseRelease, strategyName, telemetry.BlobName(name))
	defer span.End()

	m, ok := t.leases.Get(name)
	if !ok {
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

// mergeUserTags copies every tag from existing except the five reserved
// keys, so a later caller can layer its own reserved-tag writes on top
// without ever emitting more than five reserved tags alongside the
// caller's user tags (the store caps total tags at 10).
func mergeUserTags(existing map[string]string) map[string]string {
	out := make(map[string]string, len(existing))
	for k, v := range existing {
		switch k {
		case tagStatus, tagProcessor, tagStarted, tagCompleted, tagError:
			continue
		default:
			out[k] = v
		}
	}
	return out
}
