package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindStore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("first bind succeeds", func(t *testing.T) {
		require.NoError(t, store.BindStore(ctx, "store-a"))
	})

	t.Run("rebinding to the same store is a no-op", func(t *testing.T) {
		require.NoError(t, store.BindStore(ctx, "store-a"))
	})

	t.Run("binding to a different store is refused", func(t *testing.T) {
		err := store.BindStore(ctx, "store-b")
		var mismatch *ErrStoreBindingMismatch
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, "store-a", mismatch.Bound)
		assert.Equal(t, "store-b", mismatch.Requested)
	})

	t.Run("force rebind overrides the mismatch", func(t *testing.T) {
		require.NoError(t, store.ForceRebindStore(ctx, "store-b"))
		require.NoError(t, store.BindStore(ctx, "store-b"))
	})
}

func TestBoundEnrichmentVersion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	got, err := store.BoundEnrichmentVersion(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, store.SetBoundEnrichmentVersion(ctx, "v2"))
	got, err = store.BoundEnrichmentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v2", got)
}

func TestIsPausedSetPaused(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	paused, until, err := store.IsPaused(ctx)
	require.NoError(t, err)
	assert.False(t, paused)
	assert.Empty(t, until)

	require.NoError(t, store.SetPaused(ctx, true, "2026-01-01T00:00:00Z"))

	paused, until, err = store.IsPaused(ctx)
	require.NoError(t, err)
	assert.True(t, paused)
	assert.Equal(t, "2026-01-01T00:00:00Z", until)

	require.NoError(t, store.SetPaused(ctx, false, ""))

	paused, until, err = store.IsPaused(ctx)
	require.NoError(t, err)
	assert.False(t, paused)
	assert.Empty(t, until)
}
