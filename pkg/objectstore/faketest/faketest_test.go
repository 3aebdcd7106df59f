package faketest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blobtailer/blobtailer/pkg/objectstore"
)

func TestListPagePrefixAndMarker(t *testing.T) {
	c := New(nil)
	c.PutBlob("incoming", "a.log", []byte("a"), nil)
	c.PutBlob("incoming", "b.log", []byte("b"), nil)
	c.PutBlob("incoming", "other.txt", []byte("c"), nil)

	page, err := c.ListPage(context.Background(), objectstore.ListOptions{
		Container: "incoming",
		Prefix:    "a",
	})
	require.NoError(t, err)
	require.Len(t, page.Blobs, 1)
	assert.Equal(t, "a.log", page.Blobs[0].Name)
	assert.False(t, page.HasNextMarker)
}

func TestListPagePagination(t *testing.T) {
	c := New(nil)
	c.PutBlob("incoming", "a.log", []byte("a"), nil)
	c.PutBlob("incoming", "b.log", []byte("b"), nil)
	c.PutBlob("incoming", "c.log", []byte("c"), nil)

	page, err := c.ListPage(context.Background(), objectstore.ListOptions{Container: "incoming", PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page.Blobs, 2)
	require.True(t, page.HasNextMarker)

	next, err := c.ListPage(context.Background(), objectstore.ListOptions{
		Container: "incoming",
		PageSize:  2,
		Marker:    page.NextMarker,
	})
	require.NoError(t, err)
	assert.Len(t, next.Blobs, 1)
	assert.False(t, next.HasNextMarker)
}

func TestAcquireLeaseConflict(t *testing.T) {
	c := New(nil)
	c.PutBlob("incoming", "a.log", []byte("x"), nil)

	h1, err := c.AcquireLease(context.Background(), "incoming", "a.log", 30*time.Second)
	require.NoError(t, err)
	assert.NotEmpty(t, h1.Token)

	_, err = c.AcquireLease(context.Background(), "incoming", "a.log", 30*time.Second)
	assert.True(t, objectstore.IsConflict(err))
}

func TestAcquireLeaseAfterExpiry(t *testing.T) {
	c := New(nil)
	c.PutBlob("incoming", "a.log", []byte("x"), nil)

	h1, err := c.AcquireLease(context.Background(), "incoming", "a.log", 30*time.Second)
	require.NoError(t, err)

	c.ExpireLease("incoming", "a.log")

	h2, err := c.AcquireLease(context.Background(), "incoming", "a.log", 30*time.Second)
	require.NoError(t, err)
	assert.NotEqual(t, h1.Token, h2.Token)
}

func TestSetTagsRequiresValidLease(t *testing.T) {
	c := New(nil)
	c.PutBlob("incoming", "a.log", []byte("x"), map[string]string{"env": "prod"})

	err := c.SetTags(context.Background(), "incoming", "a.log", map[string]string{"env": "prod", "logstash_status": "processing"}, "bogus-token")
	assert.True(t, objectstore.IsConflict(err))

	h, err := c.AcquireLease(context.Background(), "incoming", "a.log", 30*time.Second)
	require.NoError(t, err)

	err = c.SetTags(context.Background(), "incoming", "a.log", map[string]string{"env": "prod", "logstash_status": "processing"}, h.Token)
	require.NoError(t, err)

	tags, err := c.GetTags(context.Background(), "incoming", "a.log")
	require.NoError(t, err)
	assert.Equal(t, "prod", tags["env"])
	assert.Equal(t, "processing", tags["logstash_status"])
}

func TestCopyThenDeleteMovesBlob(t *testing.T) {
	c := New(nil)
	c.PutBlob("incoming", "a.log", []byte("line1\n"), nil)

	h, err := c.AcquireLease(context.Background(), "incoming", "a.log", 30*time.Second)
	require.NoError(t, err)

	require.NoError(t, c.CopyBlob(context.Background(), "incoming", "a.log", "archive", "a.log"))
	require.NoError(t, c.DeleteBlob(context.Background(), "incoming", "a.log", h.Token))

	exists, err := c.Exists(context.Background(), "incoming", "a.log")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = c.Exists(context.Background(), "archive", "a.log")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestReleaseLeaseOnDeletedBlobIsNoop(t *testing.T) {
	c := New(nil)
	c.PutBlob("incoming", "a.log", []byte("x"), nil)
	h, err := c.AcquireLease(context.Background(), "incoming", "a.log", 30*time.Second)
	require.NoError(t, err)

	require.NoError(t, c.DeleteBlob(context.Background(), "incoming", "a.log", h.Token))
	assert.NoError(t, c.ReleaseLease(context.Background(), h))
}
