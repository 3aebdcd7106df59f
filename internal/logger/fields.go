package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging across the poll orchestrator,
// state tracker, lease manager, and line streamer. Use these keys
// consistently so log lines can be aggregated and queried across replicas.
const (
	// ========================================================================
	// Cycle & Replica Identity
	// ========================================================================
	KeyCycleID   = "cycle_id"  // Correlation ID for one poll_once invocation
	KeyProcessor = "processor" // Processor identifier (hostname, pod name) of this replica
	KeyStrategy  = "strategy"  // Tracking strategy: tags, container, registry

	// ========================================================================
	// Object Storage Identity
	// ========================================================================
	KeyBlobName      = "blob_name"      // Blob name within its container
	KeyContainer     = "container"      // Azure container name (incoming, archive, errors)
	KeyStorageAcct   = "storage_account" // Azure storage account name
	KeyBlobSize      = "blob_size"      // Blob size in bytes
	KeyLastModified  = "last_modified"  // Blob last-modified timestamp (ISO-8601)

	// ========================================================================
	// Lease Management
	// ========================================================================
	KeyLeaseToken    = "lease_token"    // Opaque lease token
	KeyLeaseDuration = "lease_duration" // Lease duration in seconds
	KeyLeaseRenewal  = "lease_renewal"  // Lease renewal period in seconds

	// ========================================================================
	// Tracker State
	// ========================================================================
	KeyTrackerStatus = "tracker_status" // absent, processing, completed, failed
	KeyStartedAt     = "started_at"     // ISO-8601 instant a claim was taken
	KeyCompletedAt   = "completed_at"   // ISO-8601 instant a claim was terminally marked

	// ========================================================================
	// Streaming
	// ========================================================================
	KeyLineNumber   = "line_number"   // 1-based line number within a blob
	KeyEventCount   = "event_count"   // Number of events emitted for one blob
	KeyCompleted    = "completed"     // Whether a stream ran to completion

	// ========================================================================
	// Cycle Summary
	// ========================================================================
	KeyBlobsProcessed = "blobs_processed"
	KeyBlobsFailed    = "blobs_failed"
	KeyBlobsSkipped   = "blobs_skipped"
	KeyEventsProduced = "events_produced"
	KeyDurationMs     = "duration_ms" // Operation duration in milliseconds

	// ========================================================================
	// Errors & Retries
	// ========================================================================
	KeyError      = "error"       // Error message
	KeyErrorCode  = "error_code"  // Numeric/symbolic error classification
	KeyAttempt    = "attempt"     // Retry attempt number
	KeyMaxRetries = "max_retries" // Maximum retry attempts

	// ========================================================================
	// Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// CycleID returns a slog.Attr for the poll-cycle correlation ID
func CycleID(id string) slog.Attr {
	return slog.String(KeyCycleID, id)
}

// Processor returns a slog.Attr for the processor identifier
func Processor(name string) slog.Attr {
	return slog.String(KeyProcessor, name)
}

// Strategy returns a slog.Attr for the tracking strategy in use
func Strategy(name string) slog.Attr {
	return slog.String(KeyStrategy, name)
}

// BlobName returns a slog.Attr for a blob name
func BlobName(name string) slog.Attr {
	return slog.String(KeyBlobName, name)
}

// Container returns a slog.Attr for an Azure container name
func Container(name string) slog.Attr {
	return slog.String(KeyContainer, name)
}

// StorageAccount returns a slog.Attr for the Azure storage account name
func StorageAccount(name string) slog.Attr {
	return slog.String(KeyStorageAcct, name)
}

// BlobSize returns a slog.Attr for a blob size in bytes
func BlobSize(size int64) slog.Attr {
	return slog.Int64(KeyBlobSize, size)
}

// LastModified returns a slog.Attr for a blob's last-modified timestamp
func LastModified(t fmt.Stringer) slog.Attr {
	return slog.String(KeyLastModified, t.String())
}

// LeaseToken returns a slog.Attr for a lease token, truncated for readability
func LeaseToken(token string) slog.Attr {
	if len(token) > 8 {
		token = token[:8] + "…"
	}
	return slog.String(KeyLeaseToken, token)
}

// TrackerStatus returns a slog.Attr for a tracker state record's status
func TrackerStatus(status string) slog.Attr {
	return slog.String(KeyTrackerStatus, status)
}

// LineNumber returns a slog.Attr for a 1-based line number
func LineNumber(n int64) slog.Attr {
	return slog.Int64(KeyLineNumber, n)
}

// EventCount returns a slog.Attr for an emitted event count
func EventCount(n int) slog.Attr {
	return slog.Int(KeyEventCount, n)
}

// Completed returns a slog.Attr for stream-completion status
func Completed(completed bool) slog.Attr {
	return slog.Bool(KeyCompleted, completed)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for a symbolic error classification
func ErrorCode(code string) slog.Attr {
	return slog.String(KeyErrorCode, code)
}

// Attempt returns a slog.Attr for a retry attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// MaxRetries returns a slog.Attr for the maximum retry attempts
func MaxRetries(n int) slog.Attr {
	return slog.Int(KeyMaxRetries, n)
}
