// Package tracker implements the polymorphic state-tracking subsystem: three
// interchangeable strategies for deciding which blobs are eligible, claiming
// one, and recording its terminal outcome.
//
// The interface-plus-variant-dispatch shape follows the teacher's
// content.ContentStore / metadata.MetadataStore ports, selected by string
// enum in pkg/config/stores.go; each variant here is a from-scratch
// implementation of this subsystem's own semantics, not a port of a teacher
// backend.
package tracker

import (
	"context"
	"time"
)

// BlobInfo is the subset of listing output the tracker needs.
type BlobInfo struct {
	Name         string
	Container    string
	Size         int64
	LastModified time.Time
	Tags         map[string]string // nil unless the listing prefetched tags
}

// Tracker is the capability set the poll orchestrator consumes. All three
// variants (tags, container-move, local-registry) implement it; the
// orchestrator never inspects which variant it holds.
type Tracker interface {
	// FilterCandidates returns the subset of blobs eligible for processing
	// this cycle. Must include previously-failed blobs.
	FilterCandidates(ctx context.Context, blobs []BlobInfo) ([]BlobInfo, error)

	// Claim attempts exclusive ownership of name. False means another
	// worker holds it; true means the caller now owns it until a terminal
	// mark or a release.
	Claim(ctx context.Context, name string) (bool, error)

	// MarkCompleted records a terminal success on a held claim.
	MarkCompleted(ctx context.Context, name string) error

	// MarkFailed records a terminal failure on a held claim.
	MarkFailed(ctx context.Context, name string, reason string) error

	// Release relinquishes a claim without changing terminal state — used
	// when processing never reached a terminal mark (e.g. cancellation
	// before a claim's worker ran).
	Release(ctx context.Context, name string) error

	// WasLeaseRenewalCompromised reads and clears the compromised flag for
	// name, set asynchronously by the claim's lease manager on renewal
	// failure. Consulted by the orchestrator immediately before
	// MarkCompleted to demote a compromised success into a failure.
	WasLeaseRenewalCompromised(name string) bool

	// Close releases every still-held claim. Swallows per-claim errors and
	// continues, per the spec's close() contract.
	Close(ctx context.Context)
}
