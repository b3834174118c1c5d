package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/agilenature/libsync/internal/catalog"
)

func newAttemptID() string {
	return uuid.NewString()
}

// ReconcilerStore is the Catalog surface phases 2-3 need beyond ScannerStore.
type ReconcilerStore interface {
	ScannerStore
	BindStore(ctx context.Context, storeID string) error
	ForceRebindStore(ctx context.Context, storeID string) error
	LoadOrphans(ctx context.Context) ([]*catalog.FileRecord, error)
	BeginTransition(ctx context.Context, filePath string) (*catalog.FileRecord, *catalog.SnapshotToken, error)
	InsertIntent(ctx context.Context, filePath, attemptID string, intendedState catalog.FileState, startedAt int64) error
	CommitTransition(ctx context.Context, token *catalog.SnapshotToken, attemptID string, update catalog.RecordUpdate, now int64) error
}

// RemoteClient is the narrow surface the orphan drain phase needs.
type RemoteClient interface {
	DeleteDocument(ctx context.Context, store, docName string, force bool) error
	DeleteRaw(ctx context.Context, rawID string) error
}

// Reconciler runs the four-phase pre-upload sweep (spec.md §4.6). Grounded
// on the teacher's phase-structured Reconcile method and its
// info-then-info logging bookends.
type Reconciler struct {
	store   ReconcilerStore
	remote  RemoteClient
	scanner *Scanner
	storeID string
	logger  *slog.Logger
}

func NewReconciler(store ReconcilerStore, remote RemoteClient, storeID string, logger *slog.Logger, scanOpts ...ScannerOption) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Reconciler{
		store:   store,
		remote:  remote,
		scanner: NewScanner(store, logger, scanOpts...),
		storeID: storeID,
		logger:  logger,
	}
}

// Reconcile runs all four phases in order. force bypasses phase 2's
// store-binding mismatch guard, rebinding the library to storeID instead of
// refusing to proceed (spec.md §7's documented operator override).
func (r *Reconciler) Reconcile(ctx context.Context, root string, force bool, enrichmentVersion string, now int64) (Result, error) {
	r.logger.Info("reconciliation started", "root", root, "store", r.storeID, "force", force)

	var result Result

	if err := r.checkMount(root); err != nil {
		return result, err
	}

	if err := r.checkStoreBinding(ctx, force); err != nil {
		return result, err
	}

	drained, failed := r.drainOrphans(ctx, now)
	result.OrphansDrained = drained
	result.OrphansFailed = failed

	cs, err := r.scanner.Scan(ctx, root, enrichmentVersion, now)
	if err != nil {
		return result, fmt.Errorf("reconciler: change classification: %w", err)
	}

	result.Changes = cs

	r.logger.Info("reconciliation complete",
		"new", len(cs.New), "modified", len(cs.Modified), "missing", len(cs.Missing),
		"unchanged", cs.Unchanged, "mtime_skipped", cs.MtimeSkipped,
		"orphans_drained", drained, "orphans_failed", failed,
	)

	return result, nil
}

// checkMount verifies the library root exists and is a directory
// (spec.md §4.6 phase 1).
func (r *Reconciler) checkMount(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return &ErrMountUnavailable{Root: root, Err: err}
	}

	if !info.IsDir() {
		return &ErrMountUnavailable{Root: root, Err: fmt.Errorf("not a directory")}
	}

	return nil
}

// checkStoreBinding enforces that a library is bound to exactly one remote
// store for its lifetime (spec.md §4.6 phase 2, §7).
func (r *Reconciler) checkStoreBinding(ctx context.Context, force bool) error {
	err := r.store.BindStore(ctx, r.storeID)
	if err == nil {
		return nil
	}

	var mismatch *catalog.ErrStoreBindingMismatch
	if !errors.As(err, &mismatch) {
		return fmt.Errorf("reconciler: store binding: %w", err)
	}

	if !force {
		return err
	}

	r.logger.Warn("reconciler: forcing store rebind", "from", mismatch.Bound, "to", mismatch.Requested)

	return r.store.ForceRebindStore(ctx, r.storeID)
}

// drainOrphans deletes the remote document and raw artifact for every
// record carrying a pending orphan cleanup (spec.md §4.6 phase 3). Failures
// are logged and left in place for the next run — no state corruption, per
// the spec's explicit no-retry-storm guidance for this phase.
func (r *Reconciler) drainOrphans(ctx context.Context, now int64) (drained, failed int) {
	orphans, err := r.store.LoadOrphans(ctx)
	if err != nil {
		r.logger.Warn("reconciler: load orphans failed", "error", err)
		return 0, 0
	}

	for _, rec := range orphans {
		if err := r.drainOne(ctx, rec, now); err != nil {
			r.logger.Warn("reconciler: orphan drain failed, left for next run",
				"path", rec.FilePath, "error", err)
			failed++
			continue
		}

		drained++
	}

	return drained, failed
}

// drainOne deletes a record's orphaned raw/doc artifacts and clears the
// orphan fields. It refuses to delete an orphan id that still matches the
// record's live remote_raw_id/remote_doc_id — a replacement that failed to
// mint fresh ids (or a stale read racing a concurrent dispatch) must never
// let the sweeper delete the artifact the live record still points at.
func (r *Reconciler) drainOne(ctx context.Context, rec *catalog.FileRecord, now int64) error {
	if rec.OrphanDocID != nil && *rec.OrphanDocID != "" {
		if rec.RemoteDocID != nil && *rec.RemoteDocID == *rec.OrphanDocID {
			return fmt.Errorf("orphan_doc_id %q matches live remote_doc_id for %q, refusing to delete", *rec.OrphanDocID, rec.FilePath)
		}
		if err := r.remote.DeleteDocument(ctx, r.storeID, *rec.OrphanDocID, true); err != nil {
			return fmt.Errorf("delete document: %w", err)
		}
	}

	if rec.OrphanRawID != nil && *rec.OrphanRawID != "" {
		if rec.RemoteRawID != nil && *rec.RemoteRawID == *rec.OrphanRawID {
			return fmt.Errorf("orphan_raw_id %q matches live remote_raw_id for %q, refusing to delete", *rec.OrphanRawID, rec.FilePath)
		}
		if err := r.remote.DeleteRaw(ctx, *rec.OrphanRawID); err != nil {
			return fmt.Errorf("delete raw: %w", err)
		}
	}

	_, token, err := r.store.BeginTransition(ctx, rec.FilePath)
	if err != nil {
		return fmt.Errorf("begin transition: %w", err)
	}

	attemptID := newAttemptID()
	if err := r.store.InsertIntent(ctx, rec.FilePath, attemptID, token.State, now); err != nil {
		return fmt.Errorf("insert intent: %w", err)
	}

	if err := r.store.CommitTransition(ctx, token, attemptID, catalog.RecordUpdate{
		NewState:       token.State,
		OrphanRawID:    nil,
		SetOrphanRawID: true,
		OrphanDocID:    nil,
		SetOrphanDocID: true,
	}, now); err != nil {
		return fmt.Errorf("clear orphan fields: %w", err)
	}

	return nil
}
