package orchestrator

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agilenature/libsync/internal/catalog"
	"github.com/agilenature/libsync/internal/rateguard"
	"github.com/agilenature/libsync/internal/searchclient"
)

// fakeRemote is an in-memory stand-in for RemoteClient.
type fakeRemote struct {
	mu sync.Mutex

	uploadCount int
	importCount int
	rawIDSeq    int
	docs        map[string]searchclient.DocumentRef // keyed by raw ID
	operations  map[string]string                   // operation name -> result doc id

	failUpload bool
	failImport bool
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{docs: map[string]searchclient.DocumentRef{}, operations: map[string]string{}}
}

func (f *fakeRemote) UploadRaw(ctx context.Context, r io.Reader, size int64, displayName string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failUpload {
		return "", assert.AnError
	}

	f.uploadCount++
	f.rawIDSeq++
	id := "raw-" + time.Now().Format("150405.000000000") + "-" + displayName

	return id, nil
}

func (f *fakeRemote) ImportIntoStore(ctx context.Context, rawID, store string) (searchclient.Operation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failImport {
		return searchclient.Operation{}, assert.AnError
	}

	f.importCount++

	docName := "doc-" + rawID
	f.docs[rawID] = searchclient.DocumentRef{Name: docName}

	opName := "operations/" + docName
	f.operations[opName] = docName

	return searchclient.Operation{Name: opName, Done: true, ResultDocID: docName}, nil
}

// AwaitOperation resolves purely from op.Name, mirroring the real client's
// resume-by-name contract — stepVisible reconstructs the Operation from a
// persisted name with Done/ResultDocID left zero-valued.
func (f *fakeRemote) AwaitOperation(ctx context.Context, op searchclient.Operation, timeout time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	docID, ok := f.operations[op.Name]
	if !ok {
		return "", assert.AnError
	}

	return docID, nil
}

func (f *fakeRemote) GetDocument(ctx context.Context, store, docID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, d := range f.docs {
		if d.Name == docID {
			return true, nil
		}
	}

	return false, nil
}

func (f *fakeRemote) DeleteDocument(ctx context.Context, store, docName string, force bool) error {
	return nil
}

func (f *fakeRemote) DeleteRaw(ctx context.Context, rawID string) error {
	return nil
}

func (f *fakeRemote) ListStoreDocuments(ctx context.Context, store string) ([]searchclient.DocumentRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []searchclient.DocumentRef
	for _, d := range f.docs {
		out = append(out, d)
	}

	return out, nil
}

type fakeFileSource struct {
	content map[string]string
}

func (f fakeFileSource) Open(filePath string) (io.ReadCloser, int64, error) {
	body, ok := f.content[filePath]
	if !ok {
		body = "stub content for " + filePath
	}

	return io.NopCloser(bytes.NewReader([]byte(body))), int64(len(body)), nil
}

func noopGuard() *rateguard.Guard {
	return rateguard.NewGuard(nil, nil, 0, slog.Default())
}

func newTestCatalog(t *testing.T) *catalog.Store {
	t.Helper()

	store, err := catalog.Open(context.Background(), ":memory:", slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestDispatchOneFreshUploadAdvancesThroughAllThreeEdges(t *testing.T) {
	ctx := context.Background()
	store := newTestCatalog(t)
	remote := newFakeRemote()
	files := fakeFileSource{}

	require.NoError(t, store.EnsureTracked(ctx, "doc.txt", "hash1", 10, 1000, "v1", 1))

	d := NewDispatcher(store, remote, noopGuard(), files, "mystore", 4, 0, slog.Default())

	for i := 0; i < 3; i++ {
		_, err := d.RunBatch(ctx, "v1")
		require.NoError(t, err)
	}

	rec, err := store.GetRecord(ctx, "doc.txt")
	require.NoError(t, err)
	assert.Equal(t, catalog.StateIndexed, rec.FSMState)
	require.NotNil(t, rec.RemoteDocID)
	require.NotNil(t, rec.RemoteRawID)
	assert.Equal(t, "hash1", rec.UploadHash)
	assert.Equal(t, 1, remote.uploadCount)
	assert.Equal(t, 1, remote.importCount, "stepVisible must resume the operation stepRawAccepted started, not start a second one")

	require.NotNil(t, rec.RemoteOperationName)
	assert.NotEmpty(t, *rec.RemoteOperationName)
}

func TestDispatchOneUploadFailureMarksFailed(t *testing.T) {
	ctx := context.Background()
	store := newTestCatalog(t)
	remote := newFakeRemote()
	remote.failUpload = true
	files := fakeFileSource{}

	require.NoError(t, store.EnsureTracked(ctx, "doc.txt", "hash1", 10, 1000, "v1", 1))

	d := NewDispatcher(store, remote, noopGuard(), files, "mystore", 4, 0, slog.Default())

	report, err := d.RunBatch(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	rec, err := store.GetRecord(ctx, "doc.txt")
	require.NoError(t, err)
	assert.Equal(t, catalog.StateFailed, rec.FSMState)
	assert.NotEmpty(t, rec.ErrorReason)
	assert.Equal(t, 1, rec.AttemptCount)
}

func TestDispatchOneAlreadyCurrentIsSkipped(t *testing.T) {
	ctx := context.Background()
	store := newTestCatalog(t)
	remote := newFakeRemote()
	files := fakeFileSource{}

	require.NoError(t, store.EnsureTracked(ctx, "doc.txt", "hash1", 10, 1000, "v1", 1))

	d := NewDispatcher(store, remote, noopGuard(), files, "mystore", 4, 0, slog.Default())
	for i := 0; i < 3; i++ {
		_, err := d.RunBatch(ctx, "v1")
		require.NoError(t, err)
	}

	report, err := d.RunBatch(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 0, report.Indexed)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 1, remote.uploadCount, "content unchanged, no second upload")
}

func TestDispatchContentEditTriggersReplacement(t *testing.T) {
	ctx := context.Background()
	store := newTestCatalog(t)
	remote := newFakeRemote()
	files := fakeFileSource{}

	require.NoError(t, store.EnsureTracked(ctx, "doc.txt", "hash1", 10, 1000, "v1", 1))

	d := NewDispatcher(store, remote, noopGuard(), files, "mystore", 4, 0, slog.Default())

	for i := 0; i < 3; i++ {
		_, err := d.RunBatch(ctx, "v1")
		require.NoError(t, err)
	}

	rec, err := store.GetRecord(ctx, "doc.txt")
	require.NoError(t, err)
	require.Equal(t, catalog.StateIndexed, rec.FSMState)
	require.NotNil(t, rec.RemoteRawID)
	require.NotNil(t, rec.RemoteDocID)

	oldRawID := *rec.RemoteRawID
	oldDocID := *rec.RemoteDocID

	// Re-scanning a modified file refreshes content_hash without touching
	// fsm_state (see catalog.EnsureTracked), which is exactly what leaves
	// an INDEXED record with upload_hash != content_hash and routes it
	// into stepReplace on the next batch.
	require.NoError(t, store.EnsureTracked(ctx, "doc.txt", "hash2", 14, 2000, "v1", 3))

	for i := 0; i < 3; i++ {
		_, err := d.RunBatch(ctx, "v1")
		require.NoError(t, err)
	}

	rec, err = store.GetRecord(ctx, "doc.txt")
	require.NoError(t, err)
	assert.Equal(t, catalog.StateIndexed, rec.FSMState)
	assert.Equal(t, "hash2", rec.UploadHash, "upload_hash must advance to the new content hash")
	assert.Equal(t, 2, remote.uploadCount, "replacement must upload the new bytes, not skip straight to import")
	assert.Equal(t, 2, remote.importCount)

	require.NotNil(t, rec.RemoteRawID)
	require.NotNil(t, rec.RemoteDocID)
	assert.NotEqual(t, oldRawID, *rec.RemoteRawID, "replacement must mint a fresh raw id")
	assert.NotEqual(t, oldDocID, *rec.RemoteDocID, "replacement must mint a fresh doc id")

	require.NotNil(t, rec.OrphanRawID)
	assert.Equal(t, oldRawID, *rec.OrphanRawID, "old raw id must land in the orphan field")
	require.NotNil(t, rec.OrphanDocID)
	assert.Equal(t, oldDocID, *rec.OrphanDocID, "old doc id must land in the orphan field")

	// One more round must settle, not loop back into another replacement.
	report, err := d.RunBatch(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 0, report.Indexed)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 2, remote.uploadCount, "settled record must not be re-uploaded")
}

func TestStepFailedRetryExhaustsTransientBudget(t *testing.T) {
	ctx := context.Background()
	store := newTestCatalog(t)
	remote := newFakeRemote()
	remote.failUpload = true
	files := fakeFileSource{}

	require.NoError(t, store.EnsureTracked(ctx, "doc.txt", "hash1", 10, 1000, "v1", 1))

	d := NewDispatcher(store, remote, noopGuard(), files, "mystore", 4, 0, slog.Default())

	// Fail, then retry-reset, then fail again repeatedly until the budget
	// is exhausted — two round trips per cycle (FAILED->UNTRACKED free
	// reset, then UNTRACKED->UPLOADING attempted upload that fails again).
	for i := 0; i < 2*(maxTransientAttempts+1); i++ {
		_, err := d.RunBatch(ctx, "v1")
		require.NoError(t, err)
	}

	rec, err := store.GetRecord(ctx, "doc.txt")
	require.NoError(t, err)
	assert.Equal(t, catalog.StateFailed, rec.FSMState)
	assert.GreaterOrEqual(t, rec.AttemptCount, maxTransientAttempts)
}

func TestStopAcceptingPreventsNewBatches(t *testing.T) {
	ctx := context.Background()
	store := newTestCatalog(t)
	remote := newFakeRemote()
	files := fakeFileSource{}

	require.NoError(t, store.EnsureTracked(ctx, "doc.txt", "hash1", 10, 1000, "v1", 1))

	d := NewDispatcher(store, remote, noopGuard(), files, "mystore", 4, 0, slog.Default())
	d.StopAccepting()

	report, err := d.RunBatch(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, BatchReport{}, report)
	assert.Equal(t, 0, remote.uploadCount)
}

func TestConcurrencyLimitIsRespectedAcrossManyRecords(t *testing.T) {
	ctx := context.Background()
	store := newTestCatalog(t)
	remote := newFakeRemote()
	files := fakeFileSource{}

	for i := 0; i < 20; i++ {
		path := "file" + string(rune('a'+i)) + ".txt"
		require.NoError(t, store.EnsureTracked(ctx, path, "h"+path, 10, 1000, "v1", 1))
	}

	d := NewDispatcher(store, remote, noopGuard(), files, "mystore", 3, 0, slog.Default())
	assert.Equal(t, 3, d.ConcurrencyLimit())

	d.SetConcurrencyLimit(5)
	assert.Equal(t, 5, d.ConcurrencyLimit())

	_, err := d.RunBatch(ctx, "v1")
	require.NoError(t, err)
}
