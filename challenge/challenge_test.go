package challenge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssuer_IssueAndRedeem(t *testing.T) {
	iss := NewIssuer(Config{})
	defer iss.Close()
	ctx := context.Background()

	challenge, err := iss.Issue(ctx, "key-1")
	require.NoError(t, err)
	assert.Len(t, challenge, 43) // base64url of 32 bytes

	require.NoError(t, iss.Redeem(ctx, "key-1", challenge))

	// Challenges are single-use.
	assert.ErrorIs(t, iss.Redeem(ctx, "key-1", challenge), ErrUnknownChallenge)
}

func TestIssuer_KeyMismatchKeepsChallenge(t *testing.T) {
	iss := NewIssuer(Config{})
	defer iss.Close()
	ctx := context.Background()

	challenge, err := iss.Issue(ctx, "key-1")
	require.NoError(t, err)

	assert.ErrorIs(t, iss.Redeem(ctx, "key-2", challenge), ErrKeyMismatch)
	assert.NoError(t, iss.Redeem(ctx, "key-1", challenge))
}

func TestIssuer_UnknownChallenge(t *testing.T) {
	iss := NewIssuer(Config{})
	defer iss.Close()

	assert.ErrorIs(t, iss.Redeem(context.Background(), "key-1", "never-issued"), ErrUnknownChallenge)
}

func TestIssuer_Expired(t *testing.T) {
	store := NewMemoryStore(0)
	defer store.Close()
	iss := NewIssuer(Config{Store: store, TTL: time.Minute})
	ctx := context.Background()

	now := time.Now()
	iss.now = func() time.Time { return now }

	challenge, err := iss.Issue(ctx, "key-1")
	require.NoError(t, err)

	iss.now = func() time.Time { return now.Add(2 * time.Minute) }
	assert.ErrorIs(t, iss.Redeem(ctx, "key-1", challenge), ErrExpired)
	assert.Equal(t, 0, store.Len())
}

func TestIssuer_ConcurrentRedeem(t *testing.T) {
	iss := NewIssuer(Config{})
	defer iss.Close()
	ctx := context.Background()

	challenge, err := iss.Issue(ctx, "key-1")
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if iss.Redeem(ctx, "key-1", challenge) == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
}

func TestIssuer_CustomSize(t *testing.T) {
	iss := NewIssuer(Config{Size: 16})
	defer iss.Close()

	challenge, err := iss.Issue(context.Background(), "key-1")
	require.NoError(t, err)
	assert.Len(t, challenge, 22) // base64url of 16 bytes
}

func TestIssuer_Close(t *testing.T) {
	iss := NewIssuer(Config{})
	iss.Close()
	iss.Close()

	_, err := iss.Issue(context.Background(), "key-1")
	assert.ErrorIs(t, err, ErrClosed)
}

type failingStore struct{ err error }

func (f failingStore) Put(ctx context.Context, challenge string, grant Grant) error { return f.err }
func (f failingStore) Lookup(ctx context.Context, challenge string) (Grant, bool, error) {
	return Grant{}, false, f.err
}
func (f failingStore) Delete(ctx context.Context, challenge string) (bool, error) {
	return false, f.err
}

func TestIssuer_StoreErrors(t *testing.T) {
	boom := errors.New("connection refused")
	iss := NewIssuer(Config{Store: failingStore{err: boom}})
	defer iss.Close()
	ctx := context.Background()

	_, err := iss.Issue(ctx, "key-1")
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, iss.Redeem(ctx, "key-1", "c"), boom)
}

func TestMemoryStore_DropExpired(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	defer store.Close()
	ctx := context.Background()

	now := time.Now()
	store.now = func() time.Time { return now }
	require.NoError(t, store.Put(ctx, "a", Grant{KeyID: "k", ExpiresAt: now.Add(time.Minute)}))
	require.NoError(t, store.Put(ctx, "b", Grant{KeyID: "k", ExpiresAt: now.Add(time.Hour)}))

	store.now = func() time.Time { return now.Add(2 * time.Minute) }
	store.dropExpired()

	assert.Equal(t, 1, store.Len())
	_, ok, err := store.Lookup(ctx, "b")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStore_DeleteOnce(t *testing.T) {
	store := NewMemoryStore(0)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "a", Grant{KeyID: "k"}))

	removed, err := store.Delete(ctx, "a")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = store.Delete(ctx, "a")
	require.NoError(t, err)
	assert.False(t, removed)
}
