package lease

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blobtailer/blobtailer/pkg/objectstore/faketest"
)

func TestAcquireReturnsEmptyTokenOnConflict(t *testing.T) {
	store := faketest.New(nil)
	store.PutBlob("incoming", "a.log", []byte("x"), nil)

	m1 := NewManager(store, "incoming", "a.log", 30*time.Second, 20*time.Second, nil)
	token1, err := m1.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, token1)

	m2 := NewManager(store, "incoming", "a.log", 30*time.Second, 20*time.Second, nil)
	token2, err := m2.Acquire(context.Background())
	require.NoError(t, err)
	assert.Empty(t, token2)
}

func TestAcquireSucceedsAfterPriorOwnerExpires(t *testing.T) {
	store := faketest.New(nil)
	store.PutBlob("incoming", "a.log", []byte("x"), nil)

	m1 := NewManager(store, "incoming", "a.log", 30*time.Second, 20*time.Second, nil)
	_, err := m1.Acquire(context.Background())
	require.NoError(t, err)

	store.ExpireLease("incoming", "a.log")

	m2 := NewManager(store, "incoming", "a.log", 30*time.Second, 20*time.Second, nil)
	token2, err := m2.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, token2)
}

func TestReleaseIsIdempotentAndSafeWithoutAcquire(t *testing.T) {
	store := faketest.New(nil)
	store.PutBlob("incoming", "a.log", []byte("x"), nil)

	m := NewManager(store, "incoming", "a.log", 30*time.Second, 20*time.Second, nil)
	assert.NoError(t, m.Release(context.Background()))

	_, err := m.Acquire(context.Background())
	require.NoError(t, err)
	assert.NoError(t, m.Release(context.Background()))
	assert.NoError(t, m.Release(context.Background()))
	assert.Empty(t, m.Token())
}

func TestStartRenewalInvokesOnFailureExactlyOnceOnLostLease(t *testing.T) {
	store := faketest.New(nil)
	store.PutBlob("incoming", "a.log", []byte("x"), nil)

	var mu sync.Mutex
	failures := 0
	onFailure := func(name string) {
		mu.Lock()
		failures++
		mu.Unlock()
	}

	m := NewManager(store, "incoming", "a.log", 30*time.Second, 20*time.Millisecond, onFailure)
	_, err := m.Acquire(context.Background())
	require.NoError(t, err)

	// Simulate another replica stealing the lease: expire it so renew fails.
	store.ExpireLease("incoming", "a.log")

	m.StartRenewal()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return failures == 1
	}, time.Second, 5*time.Millisecond)

	// Give the loop a moment to fully stop, then confirm no further calls.
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 1, failures)
	mu.Unlock()
}

func TestStopRenewalIsIdempotent(t *testing.T) {
	store := faketest.New(nil)
	store.PutBlob("incoming", "a.log", []byte("x"), nil)

	m := NewManager(store, "incoming", "a.log", 30*time.Second, 20*time.Second, nil)
	_, err := m.Acquire(context.Background())
	require.NoError(t, err)

	m.StartRenewal()
	m.StopRenewal()
	m.StopRenewal() // must not block or panic
}

func TestRenewWithoutTokenReturnsLeaseNotHeld(t *testing.T) {
	store := faketest.New(nil)
	store.PutBlob("incoming", "a.log", []byte("x"), nil)

	m := NewManager(store, "incoming", "a.log", 30*time.Second, 20*time.Second, nil)
	err := m.Renew(context.Background())
	require.Error(t, err)
}
