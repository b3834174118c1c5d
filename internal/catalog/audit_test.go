package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditTrail(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordAudit(ctx, "doc.txt", StateUntracked, StateUploading, "", 1))
	require.NoError(t, store.RecordAudit(ctx, "doc.txt", StateUploading, StateFailed, "remote timeout", 2))

	history, err := store.ListAuditByPath(ctx, "doc.txt")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, StateUntracked, history[0].FromState)
	assert.Equal(t, StateFailed, history[1].ToState)
	assert.Equal(t, "remote timeout", history[1].Reason)

	errs, err := store.ListAuditErrors(ctx, 10)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "doc.txt", errs[0].FilePath)
}
