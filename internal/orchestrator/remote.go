package orchestrator

import (
	"context"
	"io"
	"time"

	"github.com/agilenature/libsync/internal/searchclient"
)

// RemoteClient is the subset of *searchclient.Client the dispatch loop
// drives. Accepting the interface here (not the concrete type) keeps the
// dispatcher testable with a fake backend, the same separation the
// teacher draws between internal/graph.Client and the sync engine that
// calls it.
type RemoteClient interface {
	UploadRaw(ctx context.Context, r io.Reader, size int64, displayName string) (string, error)
	ImportIntoStore(ctx context.Context, rawID, store string) (searchclient.Operation, error)
	AwaitOperation(ctx context.Context, op searchclient.Operation, timeout time.Duration) (string, error)
	GetDocument(ctx context.Context, store, docID string) (bool, error)
	DeleteDocument(ctx context.Context, store, docName string, force bool) error
	DeleteRaw(ctx context.Context, rawID string) error
	ListStoreDocuments(ctx context.Context, store string) ([]searchclient.DocumentRef, error)
}
