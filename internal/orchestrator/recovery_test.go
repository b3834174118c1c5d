package orchestrator

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agilenature/libsync/internal/catalog"
	"github.com/agilenature/libsync/internal/searchclient"
)

func TestRecoveryRollsForwardWhenDocumentAlreadyVisible(t *testing.T) {
	ctx := context.Background()
	store := newTestCatalog(t)
	remote := newFakeRemote()

	require.NoError(t, store.EnsureTracked(ctx, "doc.txt", "hash1", 10, 1000, "v1", 1))

	_, token, err := store.BeginTransition(ctx, "doc.txt")
	require.NoError(t, err)
	attemptID := uuid.NewString()
	require.NoError(t, store.InsertIntent(ctx, "doc.txt", attemptID, catalog.StateUploading, 1))
	rawID := "raw-1"
	require.NoError(t, store.CommitTransition(ctx, token, attemptID, catalog.RecordUpdate{
		NewState:       catalog.StateUploading,
		RemoteRawID:    &rawID,
		SetRemoteRawID: true,
		UploadHash:     strPtrRec("hash1"),
	}, 2))

	// Simulate the import having actually succeeded remotely before the
	// crash: the backend already has a document carrying this upload_hash.
	remote.docs[rawID] = searchclient.DocumentRef{Name: "doc-raw-1", UploadHash: "hash1"}

	// Open a second intent and commit the record to PROCESSING under it;
	// CommitTransition finalizes this intent.
	_, token2, err := store.BeginTransition(ctx, "doc.txt")
	require.NoError(t, err)
	attemptID2 := uuid.NewString()
	require.NoError(t, store.InsertIntent(ctx, "doc.txt", attemptID2, catalog.StateIndexed, 3))
	// Advance the record to PROCESSING, leaving no intent open yet.
	require.NoError(t, store.CommitTransition(ctx, token2, attemptID2, catalog.RecordUpdate{NewState: catalog.StateProcessing}, 4))

	// Re-open a fresh intent representing the crashed visible-check attempt.
	_, token3, err := store.BeginTransition(ctx, "doc.txt")
	require.NoError(t, err)
	attemptID3 := uuid.NewString()
	require.NoError(t, store.InsertIntent(ctx, "doc.txt", attemptID3, catalog.StateIndexed, 5))

	rec := NewRecovery(store, remote, "mystore", slog.Default())
	require.NoError(t, rec.Run(ctx))

	got, err := store.GetRecord(ctx, "doc.txt")
	require.NoError(t, err)
	assert.Equal(t, catalog.StateIndexed, got.FSMState)
	require.NotNil(t, got.RemoteDocID)
	assert.Equal(t, "doc-raw-1", *got.RemoteDocID)

	open, err := store.ListOpenIntents(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestRecoveryLeavesUnconfirmableIntentForRetry(t *testing.T) {
	ctx := context.Background()
	store := newTestCatalog(t)
	remote := newFakeRemote()

	require.NoError(t, store.EnsureTracked(ctx, "doc.txt", "hash1", 10, 1000, "v1", 1))

	attemptID := uuid.NewString()
	require.NoError(t, store.InsertIntent(ctx, "doc.txt", attemptID, catalog.StateUploading, 1))

	rec := NewRecovery(store, remote, "mystore", slog.Default())
	require.NoError(t, rec.Run(ctx))

	got, err := store.GetRecord(ctx, "doc.txt")
	require.NoError(t, err)
	assert.Equal(t, catalog.StateUntracked, got.FSMState, "record is left at its last-committed state")

	open, err := store.ListOpenIntents(ctx)
	require.NoError(t, err)
	assert.Empty(t, open, "abandoned intent is resolved even though no roll-forward happened")
}

func TestRecoverySkipsRecordAlreadyPastIntendedState(t *testing.T) {
	ctx := context.Background()
	store := newTestCatalog(t)
	remote := newFakeRemote()

	require.NoError(t, store.EnsureTracked(ctx, "doc.txt", "hash1", 10, 1000, "v1", 1))

	attemptID := uuid.NewString()
	require.NoError(t, store.InsertIntent(ctx, "doc.txt", attemptID, catalog.StateUploading, 1))

	// Manually resolve the record to FAILED via a different attempt,
	// leaving the first intent open/stale.
	_, token, err := store.BeginTransition(ctx, "doc.txt")
	require.NoError(t, err)
	otherAttempt := uuid.NewString()
	require.NoError(t, store.InsertIntent(ctx, "doc.txt", otherAttempt, catalog.StateFailed, 2))
	require.NoError(t, store.CommitTransition(ctx, token, otherAttempt, catalog.RecordUpdate{NewState: catalog.StateFailed}, 3))

	rec := NewRecovery(store, remote, "mystore", slog.Default())
	require.NoError(t, rec.Run(ctx))

	open, err := store.ListOpenIntents(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func strPtrRec(s string) *string { return &s }
