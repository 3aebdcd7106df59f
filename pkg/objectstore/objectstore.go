// Package objectstore abstracts the object-storage capabilities the poll
// orchestrator, state trackers, and lease manager need, without exposing any
// storage-specific type on the interface boundary.
//
// Separation of Concerns:
//
// This package manages only the operations the core subsystems consume:
// paginated listing, byte reads, index-tag read/write, existence probes,
// server-side copy, delete, and blob leasing. It does NOT manage:
//   - Credential or endpoint resolution → handled by pkg/config and the
//     concrete client constructor
//   - Retry/backoff policy → handled by the concrete client's own transport
//   - Line splitting or event shaping → handled by pkg/stream
//
// Design Principles:
//   - Storage-agnostic: a fake in-memory implementation (faketest) backs
//     every unit test; only integration tests touch the real Azure client.
//   - Capability-based: tag operations are grouped separately from blob data
//     operations so a future read-only client could implement a subset.
//   - Context-aware: every blocking operation takes a context.Context and
//     must return promptly on cancellation.
//   - Conflict/missing/transient errors are distinguished via sentinel errors
//     (see errors.go) rather than storage-specific status codes.
package objectstore

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes one blob as returned by a listing page.
type BlobInfo struct {
	Name         string
	Container    string
	Size         int64
	LastModified time.Time

	// Tags holds index tags prefetched on the listing response, when the
	// caller requested them and the store supports it. Nil when not
	// requested/supported; callers must fall back to a per-blob tag read
	// in that case.
	Tags map[string]string
}

// ListOptions configures one paginated listing call.
type ListOptions struct {
	Container string
	Prefix    string
	PageSize  int32

	// IncludeTags requests that BlobInfo.Tags be populated from the listing
	// response itself, avoiding a per-blob round trip.
	IncludeTags bool

	// Marker continues a previous listing; empty starts from the beginning.
	Marker string
}

// Page is one page of a listing call.
type Page struct {
	Blobs         []BlobInfo
	NextMarker    string // empty when the listing is exhausted
	HasNextMarker bool
}

// LeaseHandle identifies a held lease so renew/release can reference it
// without the caller tracking a token string directly.
type LeaseHandle struct {
	Token     string
	Container string
	Name      string
}

// Client is the object-storage port consumed by the tracker variants, the
// lease manager, and the line streamer. Implementations must be safe for
// concurrent use by multiple goroutines.
type Client interface {
	// ListPage lists one page of blobs in a container, optionally filtered
	// by prefix. Pass opts.Marker from a previous Page to continue.
	ListPage(ctx context.Context, opts ListOptions) (Page, error)

	// OpenReader opens the blob's bytes for sequential reading. The caller
	// must Close the returned reader.
	OpenReader(ctx context.Context, container, name string) (io.ReadCloser, error)

	// Exists reports whether a blob is present in a container.
	Exists(ctx context.Context, container, name string) (bool, error)

	// GetTags reads the full index-tag set for a blob.
	GetTags(ctx context.Context, container, name string) (map[string]string, error)

	// SetTags overwrites the index-tag set for a blob, conditioned on the
	// lease token if non-empty. Returns ErrConflict if the write condition
	// is not met.
	SetTags(ctx context.Context, container, name string, tags map[string]string, leaseToken string) error

	// CopyBlob performs a server-side copy from one container/name to
	// another and waits for completion.
	CopyBlob(ctx context.Context, srcContainer, srcName, dstContainer, dstName string) error

	// DeleteBlob deletes a blob, conditioned on the lease token if non-empty.
	DeleteBlob(ctx context.Context, container, name, leaseToken string) error

	// AcquireLease acquires a lease of the given duration on a blob.
	// Returns ErrConflict if another holder already has the lease.
	AcquireLease(ctx context.Context, container, name string, duration time.Duration) (LeaseHandle, error)

	// RenewLease extends a held lease.
	RenewLease(ctx context.Context, h LeaseHandle) error

	// ReleaseLease relinquishes a held lease. A "lease not held" reply is
	// swallowed as success.
	ReleaseLease(ctx context.Context, h LeaseHandle) error
}
