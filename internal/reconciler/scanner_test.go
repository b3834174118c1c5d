package reconciler

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agilenature/libsync/internal/catalog"
)

func newTestStore(t *testing.T) *catalog.Store {
	t.Helper()

	store, err := catalog.Open(context.Background(), ":memory:", slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestScanClassifiesNewFiles(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	dir := t.TempDir()

	writeFile(t, dir, "a.txt", "hello")
	writeFile(t, dir, "b.txt", "world")

	sc := NewScanner(store, slog.Default())
	cs, err := sc.Scan(ctx, dir, "v1", 1)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"a.txt", "b.txt"}, cs.New)
	assert.Empty(t, cs.Modified)
	assert.Empty(t, cs.Missing)

	rec, err := store.GetRecord(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, catalog.StateUntracked, rec.FSMState)
	assert.NotEmpty(t, rec.ContentHash)
}

func TestScanSecondPassIsUnchanged(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	dir := t.TempDir()

	writeFile(t, dir, "a.txt", "hello")

	sc := NewScanner(store, slog.Default())
	_, err := sc.Scan(ctx, dir, "v1", 1)
	require.NoError(t, err)

	cs, err := sc.Scan(ctx, dir, "v1", 2)
	require.NoError(t, err)

	assert.Empty(t, cs.New)
	assert.Empty(t, cs.Modified)
	assert.Equal(t, 1, cs.Unchanged)
}

func TestScanDetectsContentModification(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	dir := t.TempDir()

	path := writeFile(t, dir, "a.txt", "hello")

	sc := NewScanner(store, slog.Default())
	_, err := sc.Scan(ctx, dir, "v1", 1)
	require.NoError(t, err)

	// Force the mtime forward past the epsilon and change content.
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.WriteFile(path, []byte("goodbye"), 0o644))
	require.NoError(t, os.Chtimes(path, future, future))

	cs, err := sc.Scan(ctx, dir, "v1", 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.txt"}, cs.Modified)

	rec, err := store.GetRecord(ctx, "a.txt")
	require.NoError(t, err)
	assert.NotEqual(t, "", rec.ContentHash)
}

func TestScanDetectsMtimeChangeWithIdenticalContent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	dir := t.TempDir()

	path := writeFile(t, dir, "a.txt", "hello")

	sc := NewScanner(store, slog.Default())
	_, err := sc.Scan(ctx, dir, "v1", 1)
	require.NoError(t, err)

	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, future, future))

	cs, err := sc.Scan(ctx, dir, "v1", 2)
	require.NoError(t, err)

	assert.Empty(t, cs.Modified)
	assert.Equal(t, 1, cs.MtimeSkipped)
}

func TestScanMarksDeletedFileMissing(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	dir := t.TempDir()

	path := writeFile(t, dir, "a.txt", "hello")

	sc := NewScanner(store, slog.Default())
	_, err := sc.Scan(ctx, dir, "v1", 1)
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))

	cs, err := sc.Scan(ctx, dir, "v1", 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.txt"}, cs.Missing)

	rec, err := store.GetRecord(ctx, "a.txt")
	require.NoError(t, err)
	require.NotNil(t, rec.MissingSince)
}

func TestScanClearsMissingWhenFileReappears(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	dir := t.TempDir()

	path := writeFile(t, dir, "a.txt", "hello")

	sc := NewScanner(store, slog.Default())
	_, err := sc.Scan(ctx, dir, "v1", 1)
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	_, err = sc.Scan(ctx, dir, "v1", 2)
	require.NoError(t, err)

	writeFile(t, dir, "a.txt", "hello again")

	cs, err := sc.Scan(ctx, dir, "v1", 3)
	require.NoError(t, err)
	assert.Contains(t, cs.Modified, "a.txt")

	rec, err := store.GetRecord(ctx, "a.txt")
	require.NoError(t, err)
	assert.Nil(t, rec.MissingSince)
}
