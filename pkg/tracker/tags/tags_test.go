package tags

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blobtailer/blobtailer/pkg/objectstore/faketest"
	"github.com/blobtailer/blobtailer/pkg/tracker"
)

func newTestTracker(store *faketest.Client) *Tracker {
	return New(store, Config{
		Container:     "incoming",
		Processor:     "c1",
		LeaseDuration: 30 * time.Second,
		LeaseRenewal:  20 * time.Second,
	})
}

func TestFilterCandidatesIncludesAbsentAndFailedExcludesOthers(t *testing.T) {
	store := faketest.New(nil)
	store.PutBlob("incoming", "absent.log", []byte("x"), nil)
	store.PutBlob("incoming", "failed.log", []byte("x"), map[string]string{tagStatus: statusFailed})
	store.PutBlob("incoming", "processing.log", []byte("x"), map[string]string{tagStatus: statusProcessing})
	store.PutBlob("incoming", "completed.log", []byte("x"), map[string]string{tagStatus: statusCompleted})

	tr := newTestTracker(store)
	blobs := []tracker.BlobInfo{
		{Name: "absent.log"}, {Name: "failed.log"}, {Name: "processing.log"}, {Name: "completed.log"},
	}
	candidates, err := tr.FilterCandidates(context.Background(), blobs)
	require.NoError(t, err)

	var names []string
	for _, c := range candidates {
		names = append(names, c.Name)
	}
	assert.ElementsMatch(t, []string{"absent.log", "failed.log"}, names)
}

func TestClaimPreservesUserTagsAndSetsReservedTags(t *testing.T) {
	store := faketest.New(nil)
	store.PutBlob("incoming", "a.log", []byte("x"), map[string]string{"env": "prod", "team": "infra"})

	tr := newTestTracker(store)
	ok, err := tr.Claim(context.Background(), "a.log")
	require.NoError(t, err)
	require.True(t, ok)

	tags, err := store.GetTags(context.Background(), "incoming", "a.log")
	require.NoError(t, err)
	assert.Equal(t, "prod", tags["env"])
	assert.Equal(t, "infra", tags["team"])
	assert.Equal(t, statusProcessing, tags[tagStatus])
	assert.Equal(t, "c1", tags[tagProcessor])
	assert.LessOrEqual(t, len(tags), 10)
}

func TestClaimReturnsFalseOnLeaseConflict(t *testing.T) {
	store := faketest.New(nil)
	store.PutBlob("incoming", "a.log", []byte("x"), nil)

	tr1 := newTestTracker(store)
	ok, err := tr1.Claim(context.Background(), "a.log")
	require.NoError(t, err)
	require.True(t, ok)

	tr2 := newTestTracker(store)
	ok, err = tr2.Claim(context.Background(), "a.log")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMarkCompletedClearsStartedAndError(t *testing.T) {
	store := faketest.New(nil)
	store.PutBlob("incoming", "a.log", []byte("x"), nil)

	tr := newTestTracker(store)
	_, err := tr.Claim(context.Background(), "a.log")
	require.NoError(t, err)

	require.NoError(t, tr.MarkCompleted(context.Background(), "a.log"))

	tags, err := store.GetTags(context.Background(), "incoming", "a.log")
	require.NoError(t, err)
	assert.Equal(t, statusCompleted, tags[tagStatus])
	assert.NotContains(t, tags, tagStarted)
	assert.NotContains(t, tags, tagError)
}

func TestMarkFailedSanitizesAndTruncatesReason(t *testing.T) {
	store := faketest.New(nil)
	store.PutBlob("incoming", "a.log", []byte("x"), nil)

	tr := newTestTracker(store)
	_, err := tr.Claim(context.Background(), "a.log")
	require.NoError(t, err)

	longReason := strings.Repeat("x", 300) + "!@#$%^&*()"
	require.NoError(t, tr.MarkFailed(context.Background(), "a.log", longReason))

	tags, err := store.GetTags(context.Background(), "incoming", "a.log")
	require.NoError(t, err)
	assert.Equal(t, statusFailed, tags[tagStatus])
	assert.LessOrEqual(t, len(tags[tagError]), 256)
	assert.Regexp(t, `^[A-Za-z0-9 +\-./:=_]{0,256}$`, tags[tagError])
}

func TestMarkFailedWithEmptyReasonBecomesUnknown(t *testing.T) {
	assert.Equal(t, "unknown", sanitizeError(""))
}

func TestReleaseStopsRenewalAndClearsMap(t *testing.T) {
	store := faketest.New(nil)
	store.PutBlob("incoming", "a.log", []byte("x"), nil)

	tr := newTestTracker(store)
	_, err := tr.Claim(context.Background(), "a.log")
	require.NoError(t, err)

	require.NoError(t, tr.Release(context.Background(), "a.log"))
	assert.False(t, tr.WasLeaseRenewalCompromised("a.log"))

	// Released claim can be reclaimed.
	ok, err := tr.Claim(context.Background(), "a.log")
	require.NoError(t, err)
	assert.True(t, ok)
}
