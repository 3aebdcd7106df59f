package registry

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blobtailer/blobtailer/pkg/tracker"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	path := filepath.Join(t.TempDir(), "registry.db")
	tr, err := Open(Config{Path: path, Processor: "c1"})
	require.NoError(t, err)
	t.Cleanup(func() { tr.Close(context.Background()) })
	return tr
}

func TestClaimInsertsRowAndSecondClaimFails(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	ok, err := tr.Claim(ctx, "y.log")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = tr.Claim(ctx, "y.log")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFilterExcludesCompletedIncludesEverythingElse(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	_, err := tr.Claim(ctx, "done.log")
	require.NoError(t, err)
	require.NoError(t, tr.MarkCompleted(ctx, "done.log"))

	_, err = tr.Claim(ctx, "failed.log")
	require.NoError(t, err)
	require.NoError(t, tr.MarkFailed(ctx, "failed.log", "boom"))

	candidates, err := tr.FilterCandidates(ctx, []tracker.BlobInfo{
		{Name: "done.log"}, {Name: "failed.log"}, {Name: "new.log"},
	})
	require.NoError(t, err)

	var names []string
	for _, c := range candidates {
		names = append(names, c.Name)
	}
	assert.ElementsMatch(t, []string{"failed.log", "new.log"}, names)
}

func TestReleaseDeletesProcessingRowAllowingReclaim(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	ok, err := tr.Claim(ctx, "y.log")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, tr.Release(ctx, "y.log"))

	ok, err = tr.Claim(ctx, "y.log")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReleaseDoesNotDeleteTerminalRow(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	_, err := tr.Claim(ctx, "y.log")
	require.NoError(t, err)
	require.NoError(t, tr.MarkCompleted(ctx, "y.log"))
	require.NoError(t, tr.Release(ctx, "y.log"))

	candidates, err := tr.FilterCandidates(ctx, []tracker.BlobInfo{{Name: "y.log"}})
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestWasLeaseRenewalCompromisedAlwaysFalse(t *testing.T) {
	tr := newTestTracker(t)
	assert.False(t, tr.WasLeaseRenewalCompromised("anything"))
}
