package config

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blobtailer/blobtailer/pkg/objectstore/faketest"
	"github.com/blobtailer/blobtailer/pkg/tracker/container"
	"github.com/blobtailer/blobtailer/pkg/tracker/registry"
	"github.com/blobtailer/blobtailer/pkg/tracker/tags"
)

func TestNewTrackerBuildsTagsVariant(t *testing.T) {
	store := faketest.New(nil)
	tr, err := NewTracker(TrackingConfig{
		Strategy: "tags",
		Tags:     map[string]any{"container": "incoming"},
	}, LeaseConfig{Duration: 30e9, Renewal: 20e9}, "c1", store)

	require.NoError(t, err)
	_, ok := tr.(*tags.Tracker)
	assert.True(t, ok)
}

func TestNewTrackerBuildsContainerVariant(t *testing.T) {
	store := faketest.New(nil)
	tr, err := NewTracker(TrackingConfig{
		Strategy: "container",
		Container: map[string]any{
			"incoming": "incoming", "archive": "archive", "errors": "errors",
		},
	}, LeaseConfig{Duration: 30e9, Renewal: 20e9}, "c1", store)

	require.NoError(t, err)
	_, ok := tr.(*container.Tracker)
	assert.True(t, ok)
}

func TestNewTrackerBuildsRegistryVariant(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.db")
	tr, err := NewTracker(TrackingConfig{
		Strategy: "registry",
		Registry: map[string]any{"path": path},
	}, LeaseConfig{}, "c1", nil)

	require.NoError(t, err)
	_, ok := tr.(*registry.Tracker)
	assert.True(t, ok)
	tr.Close(context.Background())
}

func TestNewTrackerRejectsMissingStrategyFields(t *testing.T) {
	_, err := NewTracker(TrackingConfig{Strategy: "tags"}, LeaseConfig{}, "c1", faketest.New(nil))
	assert.Error(t, err)
}

func TestNewTrackerRejectsUnknownStrategy(t *testing.T) {
	_, err := NewTracker(TrackingConfig{Strategy: "bogus"}, LeaseConfig{}, "c1", faketest.New(nil))
	assert.Error(t, err)
}
