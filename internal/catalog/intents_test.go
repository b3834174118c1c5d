package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntentLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	attemptID := uuid.NewString()
	require.NoError(t, store.InsertIntent(ctx, "doc.txt", attemptID, StateUploading, 1))

	open, err := store.ListOpenIntents(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "doc.txt", open[0].FilePath)
	assert.Equal(t, int64(0), open[0].FinishedAt)

	require.NoError(t, store.FinishIntent(ctx, "doc.txt", attemptID, "rolled_back", 2))

	open, err = store.ListOpenIntents(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestListOpenIntentsOrdersByStartedAt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertIntent(ctx, "second.txt", uuid.NewString(), StateUploading, 20))
	require.NoError(t, store.InsertIntent(ctx, "first.txt", uuid.NewString(), StateUploading, 10))

	open, err := store.ListOpenIntents(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "first.txt", open[0].FilePath)
	assert.Equal(t, "second.txt", open[1].FilePath)
}
