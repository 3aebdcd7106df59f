package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds cycle-scoped logging context attached by the poll
// orchestrator and propagated down into the tracker, lease manager, and
// streamer so every log line for one poll_once invocation can be correlated.
type LogContext struct {
	CycleID   string    // Correlation ID for one poll_once invocation
	Processor string    // Processor identifier (hostname, pod name) of this replica
	Strategy  string    // Tracking strategy in use: tags, container, registry
	BlobName  string    // Blob currently being claimed/streamed/marked
	StartTime time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a fresh LogContext for a cycle owned by processor,
// with StartTime set to now so DurationMs reports elapsed cycle time.
func NewLogContext(processor string) *LogContext {
	return &LogContext{
		Processor: processor,
		StartTime: time.Now(),
	}
}

// Clone returns a shallow copy of lc, or nil if lc is nil.
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	return &clone
}

// WithBlob returns a copy of lc scoped to the given blob name, or a fresh
// LogContext carrying just the blob name if lc is nil.
func (lc *LogContext) WithBlob(name string) *LogContext {
	if lc == nil {
		return &LogContext{BlobName: name}
	}
	next := lc.Clone()
	next.BlobName = name
	return next
}

// WithCycle returns a copy of lc scoped to the given cycle ID.
func (lc *LogContext) WithCycle(cycleID string) *LogContext {
	if lc == nil {
		return &LogContext{CycleID: cycleID}
	}
	next := lc.Clone()
	next.CycleID = cycleID
	return next
}

// DurationMs returns the elapsed time since StartTime in milliseconds.
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime)) / float64(time.Millisecond)
}
