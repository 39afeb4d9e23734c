package kv

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestGetMissingKey(t *testing.T) {
	store := openTestStore(t)

	_, ok := store.Get(context.Background(), "nope")
	require.False(t, ok)
}

func TestSetGetRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	store.Set(ctx, "snapshot", `{"capturedAt":1}`)
	v, ok := store.Get(ctx, "snapshot")
	require.True(t, ok)
	require.Equal(t, `{"capturedAt":1}`, v)

	store.Set(ctx, "snapshot", `{"capturedAt":2}`)
	v, ok = store.Get(ctx, "snapshot")
	require.True(t, ok)
	require.Equal(t, `{"capturedAt":2}`, v)
}

func TestDeleteOlderThan(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	store.Set(ctx, "preview:a", "{}")
	store.Set(ctx, "preview:b", "{}")
	store.Set(ctx, "snapshot", "{}")

	// Everything was written just now; a cutoff in the future prunes all
	// preview keys but leaves other prefixes alone.
	n, err := store.DeleteOlderThan(ctx, "preview:", time.Now().Add(time.Hour).Unix())
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	_, ok := store.Get(ctx, "preview:a")
	require.False(t, ok)
	_, ok = store.Get(ctx, "snapshot")
	require.True(t, ok)

	// A cutoff in the past prunes nothing.
	store.Set(ctx, "preview:c", "{}")
	n, err = store.DeleteOlderThan(ctx, "preview:", time.Now().Add(-time.Hour).Unix())
	require.NoError(t, err)
	require.EqualValues(t, 0, n)
}
