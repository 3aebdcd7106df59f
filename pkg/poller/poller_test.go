package poller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blobtailer/blobtailer/pkg/objectstore/faketest"
	"github.com/blobtailer/blobtailer/pkg/stream"
	"github.com/blobtailer/blobtailer/pkg/tracker/tags"
)

func newTestOrchestrator(t *testing.T, store *faketest.Client, sink stream.Sink, cfg Config) *Orchestrator {
	t.Helper()
	tr := tags.New(store, tags.Config{
		Container:     cfg.Container,
		Processor:     "c1",
		LeaseDuration: 30 * time.Second,
		LeaseRenewal:  20 * time.Second,
	})
	return New(store, tr, stream.New(stream.Config{}), sink, cfg)
}

func collectingSink() (stream.Sink, func() []stream.Event) {
	var mu sync.Mutex
	var events []stream.Event
	sink := func(e stream.Event) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
		return nil
	}
	return sink, func() []stream.Event {
		mu.Lock()
		defer mu.Unlock()
		return append([]stream.Event(nil), events...)
	}
}

func TestPollOnceProcessesAllClaimableBlobs(t *testing.T) {
	store := faketest.New(nil)
	store.PutBlob("incoming", "a.log", []byte("line1\nline2\n"), nil)
	store.PutBlob("incoming", "b.log", []byte("line1\n"), nil)

	sink, collected := collectingSink()
	o := newTestOrchestrator(t, store, sink, Config{Container: "incoming", BatchSize: 10, Concurrency: 2})

	summary, err := o.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.BlobsProcessed)
	assert.Equal(t, 0, summary.BlobsFailed)
	assert.Equal(t, 3, summary.EventsProduced)
	assert.Len(t, collected(), 3)
}

func TestPollOnceSkipsAlreadyCompletedBlobs(t *testing.T) {
	store := faketest.New(nil)
	store.PutBlob("incoming", "done.log", []byte("x\n"), map[string]string{"logstash_status": "completed"})

	sink, _ := collectingSink()
	o := newTestOrchestrator(t, store, sink, Config{Container: "incoming", BatchSize: 10, Concurrency: 2})

	summary, err := o.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.BlobsProcessed)
	assert.Equal(t, 0, summary.BlobsFailed)
}

func TestPollOnceRespectsBatchSize(t *testing.T) {
	store := faketest.New(nil)
	for _, name := range []string{"a.log", "b.log", "c.log"} {
		store.PutBlob("incoming", name, []byte("x\n"), nil)
	}

	sink, _ := collectingSink()
	o := newTestOrchestrator(t, store, sink, Config{Container: "incoming", BatchSize: 2, Concurrency: 1})

	summary, err := o.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.BlobsProcessed)
}

func TestHealthyFalseUntilFirstCycleCompletes(t *testing.T) {
	store := faketest.New(nil)
	sink, _ := collectingSink()
	o := newTestOrchestrator(t, store, sink, Config{Container: "incoming", BatchSize: 10, Concurrency: 1})

	assert.False(t, o.Healthy())
	_, err := o.PollOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, o.Healthy())
}

func TestStopPreventsHealthyAndFurtherClaims(t *testing.T) {
	store := faketest.New(nil)
	store.PutBlob("incoming", "a.log", []byte("x\n"), nil)

	sink, _ := collectingSink()
	o := newTestOrchestrator(t, store, sink, Config{Container: "incoming", BatchSize: 10, Concurrency: 1})
	o.Stop()

	summary, err := o.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.BlobsProcessed)
	assert.False(t, o.Healthy())
}

func TestPollOnceReleasesLeaseAfterSuccessfulCompletion(t *testing.T) {
	store := faketest.New(nil)
	store.PutBlob("incoming", "a.log", []byte("line1\n"), nil)

	sink, _ := collectingSink()
	o := newTestOrchestrator(t, store, sink, Config{Container: "incoming", BatchSize: 10, Concurrency: 1})

	summary, err := o.PollOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.BlobsProcessed)

	// If processOne had skipped release() on the success path, the fake
	// store's lease would still be held and this would fail with a
	// conflict error.
	_, err = store.AcquireLease(context.Background(), "incoming", "a.log", 30*time.Second)
	assert.NoError(t, err)
}

func TestPollOnceHonorsMultiplePrefixesWithinOneBatchBudget(t *testing.T) {
	store := faketest.New(nil)
	store.PutBlob("incoming", "app/a.log", []byte("x\n"), nil)
	store.PutBlob("incoming", "db/b.log", []byte("x\n"), nil)

	sink, _ := collectingSink()
	o := newTestOrchestrator(t, store, sink, Config{
		Container: "incoming", BatchSize: 10, Concurrency: 2,
		Prefixes: []string{"app/", "db/"},
	})

	summary, err := o.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.BlobsProcessed)
}
