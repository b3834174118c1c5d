package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agilenature/libsync/internal/catalog"
)

// Recovery runs the startup sweep over intents left open by a prior,
// interrupted run (spec.md §4.5 Recovery sweep; §3 Intent log). Grounded
// on the teacher's LoadPending-for-crash-recovery usage in
// internal/sync/ledger.go — the same idea (an append-only action log
// replayed at startup) applied to this domain's single-row-per-attempt
// intents instead of a cycle-scoped action queue.
type Recovery struct {
	store   *catalog.Store
	remote  RemoteClient
	storeID string
	logger  *slog.Logger
}

func NewRecovery(store *catalog.Store, remote RemoteClient, storeID string, logger *slog.Logger) *Recovery {
	if logger == nil {
		logger = slog.Default()
	}

	return &Recovery{store: store, remote: remote, storeID: storeID, logger: logger}
}

// Run consults the backend for every open intent and resolves it: rolls
// forward if the import actually completed, otherwise leaves the record
// where it is and marks the intent rolled_back so the dispatch loop
// re-attempts it normally on the next round. It must complete before the
// dispatch loop starts.
func (r *Recovery) Run(ctx context.Context) error {
	intents, err := r.store.ListOpenIntents(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator: recovery: list open intents: %w", err)
	}

	now := time.Now().UnixNano()

	for _, intent := range intents {
		if err := r.resolveOne(ctx, intent, now); err != nil {
			r.logger.Warn("orchestrator: recovery: could not resolve intent",
				"path", intent.FilePath, "attempt_id", intent.AttemptID, "error", err)
		}
	}

	return nil
}

func (r *Recovery) resolveOne(ctx context.Context, intent *catalog.UploadIntent, now int64) error {
	rec, err := r.store.GetRecord(ctx, intent.FilePath)
	if err != nil {
		// Record gone (e.g. deleted between intent and restart) — the
		// intent has nothing left to reconcile against.
		return r.store.FinishIntent(ctx, intent.FilePath, intent.AttemptID, "rolled_back", now)
	}

	if rec.FSMState == catalog.StateFailed || rec.FSMState == catalog.StateIndexed {
		// A later attempt already resolved this record past the state
		// the open intent names; it's stale bookkeeping from a
		// superseded attempt.
		return r.store.FinishIntent(ctx, intent.FilePath, intent.AttemptID, "rolled_back", now)
	}

	if intent.IntendedState == catalog.StateIndexed && rec.UploadHash != "" {
		if docID, ok, err := r.findVisibleDocument(ctx, rec.UploadHash); err != nil {
			r.logger.Warn("orchestrator: recovery: list_store_documents failed, leaving for retry",
				"path", rec.FilePath, "error", err)
		} else if ok {
			return r.rollForwardToIndexed(ctx, rec, intent, docID, now)
		}
	}

	// No cheap way to confirm a raw upload or an import actually landed
	// without a matching store document (C2 exposes no raw-status poll —
	// see DESIGN.md). Leave the record's persisted state untouched — it
	// is whatever CommitTransition last successfully wrote, which is
	// always a valid pre-state for re-attempting the same edge — and
	// mark the abandoned intent resolved so it stops showing up in the
	// next sweep.
	return r.store.FinishIntent(ctx, intent.FilePath, intent.AttemptID, "rolled_back", now)
}

func (r *Recovery) findVisibleDocument(ctx context.Context, uploadHash string) (docID string, ok bool, err error) {
	docs, err := r.remote.ListStoreDocuments(ctx, r.storeID)
	if err != nil {
		return "", false, err
	}

	for _, d := range docs {
		if d.UploadHash == uploadHash {
			return d.Name, true, nil
		}
	}

	return "", false, nil
}

func (r *Recovery) rollForwardToIndexed(ctx context.Context, rec *catalog.FileRecord, intent *catalog.UploadIntent, docID string, now int64) error {
	_, token, err := r.store.BeginTransition(ctx, rec.FilePath)
	if err != nil {
		return err
	}

	update := catalog.RecordUpdate{
		NewState:       catalog.StateIndexed,
		RemoteDocID:    &docID,
		SetRemoteDocID: true,
	}

	if err := r.store.CommitTransition(ctx, token, intent.AttemptID, update, now); err != nil {
		return err
	}

	r.logger.Info("orchestrator: recovery: rolled forward to INDEXED", "path", rec.FilePath, "doc_id", docID)

	return nil
}
