package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for poll-cycle, tracker, lease, and stream
// operations. These follow OpenTelemetry semantic conventions where
// applicable.
const (
	// ========================================================================
	// Cycle & replica attributes
	// ========================================================================
	AttrCycleID   = "poll.cycle_id"
	AttrProcessor = "poll.processor"
	AttrStrategy  = "tracker.strategy"

	// ========================================================================
	// Object storage attributes
	// ========================================================================
	AttrContainer    = "storage.container"
	AttrBlobName     = "storage.blob_name"
	AttrBlobSize     = "storage.blob_size"
	AttrStorageAcct  = "storage.account"
	AttrLastModified = "storage.last_modified"

	// ========================================================================
	// Lease attributes
	// ========================================================================
	AttrLeaseToken    = "lease.token"
	AttrLeaseDuration = "lease.duration_seconds"

	// ========================================================================
	// Tracker attributes
	// ========================================================================
	AttrTrackerStatus = "tracker.status"

	// ========================================================================
	// Stream attributes
	// ========================================================================
	AttrLineNumber = "stream.line_number"
	AttrEventCount = "stream.event_count"

	// ========================================================================
	// Error attributes
	// ========================================================================
	AttrErrorCode = "error.code"
	AttrAttempt   = "retry.attempt"
)

// Span names for poll-cycle operations.
const (
	SpanPollCycle       = "poll.cycle"
	SpanPollDiscover    = "poll.discover"
	SpanPollClaim       = "tracker.claim"
	SpanPollProcess     = "poll.process_blob"
	SpanLeaseAcquire    = "lease.acquire"
	SpanLeaseRenew      = "lease.renew"
	SpanLeaseRelease    = "lease.release"
	SpanTrackerFilter   = "tracker.filter_candidates"
	SpanTrackerComplete = "tracker.mark_completed"
	SpanTrackerFail     = "tracker.mark_failed"
	SpanStreamBlob      = "stream.read_blob"
)

// CycleID returns an attribute for the poll-cycle correlation ID.
func CycleID(id string) attribute.KeyValue {
	return attribute.String(AttrCycleID, id)
}

// Processor returns an attribute for the owning replica's identifier.
func Processor(name string) attribute.KeyValue {
	return attribute.String(AttrProcessor, name)
}

// Strategy returns an attribute for the tracking strategy in use.
func Strategy(name string) attribute.KeyValue {
	return attribute.String(AttrStrategy, name)
}

// Container returns an attribute for the object storage container name.
func Container(name string) attribute.KeyValue {
	return attribute.String(AttrContainer, name)
}

// BlobName returns an attribute for a blob name.
func BlobName(name string) attribute.KeyValue {
	return attribute.String(AttrBlobName, name)
}

// BlobSize returns an attribute for a blob size in bytes.
func BlobSize(size int64) attribute.KeyValue {
	return attribute.Int64(AttrBlobSize, size)
}

// StorageAccount returns an attribute for the storage account name.
func StorageAccount(name string) attribute.KeyValue {
	return attribute.String(AttrStorageAcct, name)
}

// LeaseToken returns an attribute for a lease token, truncated for
// readability.
func LeaseToken(token string) attribute.KeyValue {
	if len(token) > 8 {
		token = token[:8] + "…"
	}
	return attribute.String(AttrLeaseToken, token)
}

// LeaseDuration returns an attribute for a lease duration in seconds.
func LeaseDuration(seconds int32) attribute.KeyValue {
	return attribute.Int64(AttrLeaseDuration, int64(seconds))
}

// TrackerStatus returns an attribute for a tracker state record's status.
func TrackerStatus(status string) attribute.KeyValue {
	return attribute.String(AttrTrackerStatus, status)
}

// LineNumber returns an attribute for a 1-based line number within a blob.
func LineNumber(n int64) attribute.KeyValue {
	return attribute.Int64(AttrLineNumber, n)
}

// EventCount returns an attribute for an emitted event count.
func EventCount(n int) attribute.KeyValue {
	return attribute.Int(AttrEventCount, n)
}

// ErrorCode returns an attribute for a symbolic error classification.
func ErrorCode(code string) attribute.KeyValue {
	return attribute.String(AttrErrorCode, code)
}

// Attempt returns an attribute for a retry attempt number.
func Attempt(n int) attribute.KeyValue {
	return attribute.Int(AttrAttempt, n)
}

// StartPollSpan starts a span for one poll_once invocation.
func StartPollSpan(ctx context.Context, cycleID, processor, strategy string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		CycleID(cycleID),
		Processor(processor),
		Strategy(strategy),
	}
	allAttrs = append(allAttrs, attrs...)
	return StartSpan(ctx, SpanPollCycle, trace.WithAttributes(allAttrs...))
}

// StartBlobSpan starts a span for an operation scoped to a single blob.
func StartBlobSpan(ctx context.Context, name, container, blobName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		Container(container),
		BlobName(blobName),
	}
	allAttrs = append(allAttrs, attrs...)
	return StartSpan(ctx, name, trace.WithAttributes(allAttrs...))
}

// StartLeaseSpan starts a span for a lease operation.
func StartLeaseSpan(ctx context.Context, name, blobName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		BlobName(blobName),
	}
	allAttrs = append(allAttrs, attrs...)
	return StartSpan(ctx, name, trace.WithAttributes(allAttrs...))
}

// StartTrackerSpan starts a span for a tracker operation.
func StartTrackerSpan(ctx context.Context, name, strategy string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		Strategy(strategy),
	}
	allAttrs = append(allAttrs, attrs...)
	return StartSpan(ctx, name, trace.WithAttributes(allAttrs...))
}
