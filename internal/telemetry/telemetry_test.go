package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "blobtailer", cfg.ServiceName)
	assert.Equal(t, "dev", cfg.ServiceVersion)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestInitDisabled(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Enabled = false

	shutdown, err := Init(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	// Should be able to call shutdown without error
	err = shutdown(ctx)
	assert.NoError(t, err)

	// Should not be enabled
	assert.False(t, IsEnabled())
}

func TestTracerReturnsNoOp(t *testing.T) {
	// Reset state
	tracer = nil
	enabled = false

	// Without initialization, should return no-op tracer
	tr := Tracer()
	require.NotNil(t, tr)
}

func TestStartSpan(t *testing.T) {
	ctx := context.Background()

	// Even without initialization, StartSpan should work (no-op)
	newCtx, span := StartSpan(ctx, "test.operation")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)

	// Should be able to end the span
	span.End()
}

func TestSpanFromContext(t *testing.T) {
	ctx := context.Background()

	// Should return a span even without active span
	span := SpanFromContext(ctx)
	require.NotNil(t, span)
}

func TestAddEvent(t *testing.T) {
	ctx := context.Background()

	// Should not panic with no active span
	require.NotPanics(t, func() {
		AddEvent(ctx, "test.event")
	})
}

func TestRecordError(t *testing.T) {
	ctx := context.Background()

	// Should not panic with nil error
	require.NotPanics(t, func() {
		RecordError(ctx, nil)
	})

	// Should not panic with error
	require.NotPanics(t, func() {
		RecordError(ctx, errors.New("test error"))
	})
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()

	// Should not panic
	require.NotPanics(t, func() {
		SetStatus(ctx, codes.Ok, "success")
	})

	require.NotPanics(t, func() {
		SetStatus(ctx, codes.Error, "failed")
	})
}

func TestSetAttributes(t *testing.T) {
	ctx := context.Background()

	// Should not panic
	require.NotPanics(t, func() {
		SetAttributes(ctx, CycleID("cycle-abc123"))
	})
}

func TestTraceID(t *testing.T) {
	ctx := context.Background()

	// Without active span, should return empty string
	traceID := TraceID(ctx)
	assert.Equal(t, "", traceID)
}

func TestSpanID(t *testing.T) {
	ctx := context.Background()

	// Without active span, should return empty string
	spanID := SpanID(ctx)
	assert.Equal(t, "", spanID)
}

func TestAttributeHelpers(t *testing.T) {
	t.Run("CycleID", func(t *testing.T) {
		attr := CycleID("cycle-abc123")
		assert.Equal(t, AttrCycleID, string(attr.Key))
		assert.Equal(t, "cycle-abc123", attr.Value.AsString())
	})

	t.Run("Processor", func(t *testing.T) {
		attr := Processor("worker-1")
		assert.Equal(t, AttrProcessor, string(attr.Key))
		assert.Equal(t, "worker-1", attr.Value.AsString())
	})

	t.Run("Strategy", func(t *testing.T) {
		attr := Strategy("tags")
		assert.Equal(t, AttrStrategy, string(attr.Key))
		assert.Equal(t, "tags", attr.Value.AsString())
	})

	t.Run("Container", func(t *testing.T) {
		attr := Container("incoming")
		assert.Equal(t, AttrContainer, string(attr.Key))
		assert.Equal(t, "incoming", attr.Value.AsString())
	})

	t.Run("BlobName", func(t *testing.T) {
		attr := BlobName("2026/07/30/app.log")
		assert.Equal(t, AttrBlobName, string(attr.Key))
		assert.Equal(t, "2026/07/30/app.log", attr.Value.AsString())
	})

	t.Run("BlobSize", func(t *testing.T) {
		attr := BlobSize(1048576)
		assert.Equal(t, AttrBlobSize, string(attr.Key))
		assert.Equal(t, int64(1048576), attr.Value.AsInt64())
	})

	t.Run("StorageAccount", func(t *testing.T) {
		attr := StorageAccount("mystorageacct")
		assert.Equal(t, AttrStorageAcct, string(attr.Key))
		assert.Equal(t, "mystorageacct", attr.Value.AsString())
	})

	t.Run("LeaseToken", func(t *testing.T) {
		attr := LeaseToken("abcd1234-ef56-7890")
		assert.Equal(t, AttrLeaseToken, string(attr.Key))
		assert.Equal(t, "abcd1234…", attr.Value.AsString())
	})

	t.Run("LeaseTokenShortUnchanged", func(t *testing.T) {
		attr := LeaseToken("abc")
		assert.Equal(t, "abc", attr.Value.AsString())
	})

	t.Run("LeaseDuration", func(t *testing.T) {
		attr := LeaseDuration(60)
		assert.Equal(t, AttrLeaseDuration, string(attr.Key))
		assert.Equal(t, int64(60), attr.Value.AsInt64())
	})

	t.Run("TrackerStatus", func(t *testing.T) {
		attr := TrackerStatus("processing")
		assert.Equal(t, AttrTrackerStatus, string(attr.Key))
		assert.Equal(t, "processing", attr.Value.AsString())
	})

	t.Run("LineNumber", func(t *testing.T) {
		attr := LineNumber(42)
		assert.Equal(t, AttrLineNumber, string(attr.Key))
		assert.Equal(t, int64(42), attr.Value.AsInt64())
	})

	t.Run("EventCount", func(t *testing.T) {
		attr := EventCount(17)
		assert.Equal(t, AttrEventCount, string(attr.Key))
		assert.Equal(t, int64(17), attr.Value.AsInt64())
	})

	t.Run("ErrorCode", func(t *testing.T) {
		attr := ErrorCode("lease_conflict")
		assert.Equal(t, AttrErrorCode, string(attr.Key))
		assert.Equal(t, "lease_conflict", attr.Value.AsString())
	})

	t.Run("Attempt", func(t *testing.T) {
		attr := Attempt(2)
		assert.Equal(t, AttrAttempt, string(attr.Key))
		assert.Equal(t, int64(2), attr.Value.AsInt64())
	})
}

func TestStartPollSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartPollSpan(ctx, "cycle-abc123", "worker-1", "tags")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()

	// With additional attributes
	newCtx2, span2 := StartPollSpan(ctx, "cycle-def456", "worker-2", "registry", EventCount(3))
	require.NotNil(t, newCtx2)
	require.NotNil(t, span2)
	span2.End()
}

func TestStartBlobSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartBlobSpan(ctx, SpanPollProcess, "incoming", "a.log")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()

	// With additional attributes
	newCtx2, span2 := StartBlobSpan(ctx, SpanStreamBlob, "incoming", "b.log", BlobSize(2048))
	require.NotNil(t, newCtx2)
	require.NotNil(t, span2)
	span2.End()
}

func TestStartLeaseSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartLeaseSpan(ctx, SpanLeaseAcquire, "a.log")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()

	newCtx2, span2 := StartLeaseSpan(ctx, SpanLeaseRenew, "a.log", LeaseDuration(60))
	require.NotNil(t, newCtx2)
	require.NotNil(t, span2)
	span2.End()
}

func TestStartTrackerSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartTrackerSpan(ctx, SpanTrackerFilter, "container")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()

	newCtx2, span2 := StartTrackerSpan(ctx, SpanTrackerComplete, "registry", TrackerStatus("completed"))
	require.NotNil(t, newCtx2)
	require.NotNil(t, span2)
	span2.End()
}
