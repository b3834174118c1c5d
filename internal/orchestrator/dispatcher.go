package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/agilenature/libsync/internal/catalog"
	"github.com/agilenature/libsync/internal/fsm"
	"github.com/agilenature/libsync/internal/rateguard"
	"github.com/agilenature/libsync/internal/searchclient"
)

func newAttemptID() string {
	return uuid.NewString()
}

// FileSource opens a library-relative path for reading, joined against the
// library root. Accepting the interface (rather than os.Open directly)
// lets the dispatcher be driven by a fake in tests, the same separation
// the teacher draws between Executor and the real filesystem.
type FileSource interface {
	Open(filePath string) (io.ReadCloser, int64, error)
}

// LocalFileSource reads from a library root on the local filesystem,
// grounded on the teacher's executeUpload open/stat sequence.
type LocalFileSource struct {
	Root string
}

func (l LocalFileSource) Open(filePath string) (io.ReadCloser, int64, error) {
	f, err := os.Open(filepath.Join(l.Root, filePath))
	if err != nil {
		return nil, 0, fmt.Errorf("orchestrator: open %s: %w", filePath, err)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("orchestrator: stat %s: %w", filePath, err)
	}

	return f, stat.Size(), nil
}

const (
	// maxCommitConflictAttempts bounds the begin/execute/commit retry cycle
	// on OCC conflicts (spec.md §4.5 step 5).
	maxCommitConflictAttempts = 5
	// conflictBackoffCap is the per-attempt ceiling on conflict retry
	// backoff, distinct from RemoteClient's own network retry backoff.
	conflictBackoffCap = 1 * time.Second
	// operationTimeout bounds how long AwaitOperation polls a single
	// import job before giving up.
	operationTimeout = 5 * time.Minute
	// defaultBatchSize is how many pending records one RunBatch call pulls
	// from the Catalog per round.
	defaultBatchSize = 50
)

// Dispatcher drives the bounded-concurrency dispatch loop (spec.md §4.5).
// It is the central coordinator wiring Catalog, RateGuard, FSM, and
// RemoteClient together — grounded on the teacher's TransferManager/
// dispatchPool shape in internal/sync/transfer.go, generalized with a
// dynamicSemaphore in place of errgroup's fixed SetLimit.
type Dispatcher struct {
	store  *catalog.Store
	remote RemoteClient
	guard  *rateguard.Guard
	files  FileSource
	logger *slog.Logger

	sem            *dynamicSemaphore
	maxConcurrency int
	batchSize      int

	storeID string

	accepting atomic.Bool // true = accepting new dispatches, false = draining
	wg        sync.WaitGroup
}

// NewDispatcher constructs a Dispatcher bound to storeID, with an initial
// concurrency ceiling of initialLimit (spec.md §4.5: "N=10 in the sweet
// spot under realistic latency; N=1 and N=50 are the measured bracket") and
// a hard maxConcurrency no later SetConcurrencyLimit call is allowed to
// exceed. maxConcurrency <= 0 leaves the ceiling unbounded.
func NewDispatcher(store *catalog.Store, remote RemoteClient, guard *rateguard.Guard, files FileSource, storeID string, initialLimit, maxConcurrency int, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		store:          store,
		remote:         remote,
		guard:          guard,
		files:          files,
		logger:         logger,
		sem:            newDynamicSemaphore(initialLimit),
		maxConcurrency: maxConcurrency,
		batchSize:      defaultBatchSize,
		storeID:        storeID,
	}
	d.accepting.Store(true)

	return d
}

// SetConcurrencyLimit adjusts N mid-run, clamped to maxConcurrency. In-flight
// work is never cancelled; new dispatches wait until active_count < n
// (spec.md §4.5, §9).
func (d *Dispatcher) SetConcurrencyLimit(n int) {
	if d.maxConcurrency > 0 && n > d.maxConcurrency {
		n = d.maxConcurrency
	}

	d.sem.SetLimit(n)
}

// ConcurrencyLimit reports the current ceiling.
func (d *Dispatcher) ConcurrencyLimit() int {
	return d.sem.Limit()
}

// SetBatchSize overrides how many pending records one RunBatch call pulls
// (orchestrator.batch_limit). n <= 0 is ignored, leaving defaultBatchSize
// in effect.
func (d *Dispatcher) SetBatchSize(n int) {
	if n > 0 {
		d.batchSize = n
	}
}

// BatchReport summarizes the outcome of one RunBatch call.
type BatchReport struct {
	Indexed int
	Failed  int
	Skipped int // rate-guard skip or stop_accepting drain
}

// RunBatch loads up to the batch size (defaultBatchSize unless
// SetBatchSize changed it) of pending records spanning both
// fresh-entry states and mid-flight resume states, and dispatches each
// concurrently (bounded by the dynamic semaphore), returning once that one
// batch has fully drained. The caller (the CLI's `upload`/`sync` command,
// or RetryPass) decides whether to call RunBatch again — a single call
// never loops indefinitely, so a record that keeps landing back in FAILED
// can't spin the batch forever.
func (d *Dispatcher) RunBatch(ctx context.Context, enrichmentVersion string) (BatchReport, error) {
	var report BatchReport

	if !d.accepting.Load() {
		return report, nil
	}

	states := []catalog.FileState{
		catalog.StateUntracked,
		catalog.StateUploading,
		catalog.StateProcessing,
		catalog.StateIndexed,
		catalog.StateFailed,
	}

	records, err := d.store.LoadPending(ctx, states, enrichmentVersion, d.batchSize)
	if err != nil {
		return report, fmt.Errorf("orchestrator: load pending: %w", err)
	}

	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, rec := range records {
		rec := rec

		if err := d.sem.Acquire(ctx); err != nil {
			wg.Wait()
			return report, err
		}

		wg.Add(1)
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			defer wg.Done()
			defer d.sem.Release()

			outcome := d.dispatchOne(ctx, rec, enrichmentVersion)

			mu.Lock()
			switch outcome {
			case dispatchIndexed:
				report.Indexed++
			case dispatchFailed:
				report.Failed++
			case dispatchSkipped:
				report.Skipped++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if ctx.Err() != nil {
		return report, ctx.Err()
	}

	return report, nil
}

// Wait blocks until every in-flight dispatch goroutine has returned — used
// by graceful shutdown's drain phase.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// StopAccepting enters drain mode: RunBatch stops pulling new records from
// the Catalog once its current round finishes, but in-flight work is left
// to complete (spec.md §4.5's stop_accepting signal).
func (d *Dispatcher) StopAccepting() {
	d.accepting.Store(false)
}

// ResumeAccepting undoes StopAccepting, e.g. after an operator `resume`.
func (d *Dispatcher) ResumeAccepting() {
	d.accepting.Store(true)
}

type dispatchOutcome int

const (
	dispatchIndexed dispatchOutcome = iota
	dispatchFailed
	dispatchSkipped
)

// dispatchOne advances one record by a single FSM edge, following the
// six-step dispatch loop contract (spec.md §4.5): acquire a RateGuard
// ticket, begin_transition, execute the side effect, commit_transition
// with conflict retry, then report the outcome back to RateGuard. A record
// that needs multiple edges to reach INDEXED (e.g. a fresh UNTRACKED file)
// is picked up again on the next RunBatch round once its state changes —
// no single dispatch call blocks through the whole lifecycle.
func (d *Dispatcher) dispatchOne(ctx context.Context, rec *catalog.FileRecord, enrichmentVersion string) dispatchOutcome {
	decision, err := d.guard.Acquire(ctx)
	if err != nil {
		return dispatchSkipped
	}

	if !decision.Proceed {
		d.logger.Debug("orchestrator: rate guard skip", "path", rec.FilePath)
		return dispatchSkipped
	}

	outcome, err := d.stepWithConflictRetry(ctx, rec.FilePath, enrichmentVersion)

	switch {
	case err == nil:
		d.guard.RecordOutcome(rateguard.OutcomeSuccess)
	case errors.Is(err, searchclient.ErrThrottled):
		d.guard.RecordOutcome(rateguard.OutcomeRateLimited)
	case errors.Is(err, searchclient.ErrServerError):
		d.guard.RecordOutcome(rateguard.OutcomeServerError)
	default:
		d.guard.RecordOutcome(rateguard.OutcomeOther)
	}

	if err != nil {
		d.logger.Warn("orchestrator: dispatch step failed", "path", rec.FilePath, "error", err)
		return dispatchFailed
	}

	return outcome
}

// stepWithConflictRetry runs one begin/execute/commit cycle, retrying on
// *catalog.ErrConflict up to maxCommitConflictAttempts with exponential
// backoff and jitter capped at conflictBackoffCap (spec.md §4.5 step 5).
func (d *Dispatcher) stepWithConflictRetry(ctx context.Context, filePath, enrichmentVersion string) (dispatchOutcome, error) {
	var lastErr error

	for attempt := 0; attempt < maxCommitConflictAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepContext(ctx, conflictRetryBackoff(attempt)); err != nil {
				return dispatchFailed, err
			}
		}

		outcome, err := d.step(ctx, filePath, enrichmentVersion)
		if err == nil {
			return outcome, nil
		}

		var conflict *catalog.ErrConflict
		if !errors.As(err, &conflict) {
			return dispatchFailed, err
		}

		lastErr = err
	}

	return dispatchFailed, fmt.Errorf("orchestrator: exhausted %d conflict retries for %q: %w", maxCommitConflictAttempts, filePath, lastErr)
}

func conflictRetryBackoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * 50 * time.Millisecond
	if base > conflictBackoffCap {
		base = conflictBackoffCap
	}

	jitter := time.Duration(rand.Int64N(int64(base) / 2))

	return base/2 + jitter
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// step performs exactly one begin_transition / side-effect / commit_transition
// cycle, choosing the event from the record's current state.
func (d *Dispatcher) step(ctx context.Context, filePath, enrichmentVersion string) (dispatchOutcome, error) {
	rec, token, err := d.store.BeginTransition(ctx, filePath)
	if err != nil {
		return dispatchFailed, fmt.Errorf("orchestrator: begin transition %q: %w", filePath, err)
	}

	now := time.Now().UnixNano()
	attemptID := newAttemptID()

	switch rec.FSMState {
	case catalog.StateFailed:
		return d.stepFailedRetry(ctx, rec, token, attemptID, now)
	case catalog.StateUntracked:
		return d.stepBeginUpload(ctx, rec, token, attemptID, now, rec.ContentHash, enrichmentVersion)
	case catalog.StateIndexed:
		return d.stepReplace(ctx, rec, token, attemptID, now, rec.ContentHash, enrichmentVersion)
	case catalog.StateUploading:
		return d.stepRawAccepted(ctx, rec, token, attemptID, now)
	case catalog.StateProcessing:
		return d.stepVisible(ctx, rec, token, attemptID, now)
	default:
		return dispatchFailed, fmt.Errorf("orchestrator: %q in unexpected state %s", filePath, rec.FSMState)
	}
}

// stepFailedRetry is the free FAILED->UNTRACKED reset (no remote call,
// no guard) that makes the record eligible for a fresh begin-upload on
// the next round. A record that has already exhausted
// maxTransientAttempts is left FAILED and reported as failed instead.
// attempt_count is never reset, so such a record stays FAILED even after
// its content_hash changes.
func (d *Dispatcher) stepFailedRetry(ctx context.Context, rec *catalog.FileRecord, token *catalog.SnapshotToken, attemptID string, now int64) (dispatchOutcome, error) {
	if rec.AttemptCount >= maxTransientAttempts {
		return dispatchFailed, nil
	}

	next, err := fsm.Transition(rec.FSMState, fsm.EventRetry, fsm.TransitionInput{Record: rec})
	if err != nil {
		return dispatchFailed, err
	}

	if err := d.store.InsertIntent(ctx, rec.FilePath, attemptID, next, now); err != nil {
		return dispatchFailed, err
	}

	if err := d.store.CommitTransition(ctx, token, attemptID, catalog.RecordUpdate{NewState: next}, now); err != nil {
		return dispatchFailed, err
	}

	return dispatchSkipped, nil // not terminal; picked up again next round
}

// stepBeginUpload uploads the raw bytes and transitions UNTRACKED->UPLOADING.
func (d *Dispatcher) stepBeginUpload(ctx context.Context, rec *catalog.FileRecord, token *catalog.SnapshotToken, attemptID string, now int64, desiredHash, enrichmentVersion string) (dispatchOutcome, error) {
	next, err := fsm.Transition(rec.FSMState, fsm.EventBeginUpload, fsm.TransitionInput{Record: rec, DesiredHash: desiredHash})
	if err != nil {
		return dispatchSkipped, nil //nolint:nilerr // guard rejection means already-current, not an error
	}

	if err := d.store.InsertIntent(ctx, rec.FilePath, attemptID, next, now); err != nil {
		return dispatchFailed, err
	}

	f, size, err := d.files.Open(rec.FilePath)
	if err != nil {
		return d.failRecord(ctx, rec, token, attemptID, now, err)
	}
	defer f.Close()

	rawID, err := d.remote.UploadRaw(ctx, f, size, filepath.Base(rec.FilePath))
	if err != nil {
		return d.failRecord(ctx, rec, token, attemptID, now, err)
	}

	update := catalog.RecordUpdate{
		NewState:          next,
		RemoteRawID:       &rawID,
		SetRemoteRawID:    true,
		UploadHash:        &desiredHash,
		EnrichmentVersion: &enrichmentVersion,
	}

	if err := d.store.CommitTransition(ctx, token, attemptID, update, now); err != nil {
		return dispatchFailed, err
	}

	return dispatchSkipped, nil
}

// stepReplace is the upload-first replacement entry point: an INDEXED
// record whose content_hash has moved on uploads the new bytes under a
// fresh remote_raw_id, moves the old remote_raw_id/remote_doc_id into the
// orphan fields, and re-enters the upload path in the same commit (spec.md
// §4.4 Replacement protocol steps (a)-(c); steps (d)/(e) are the orphan
// sweeper's job, §4.6). The old doc is cleared from remote_doc_id here too
// so the live record never simultaneously names a doc id that is also
// sitting in orphan_doc_id awaiting deletion (I5, mirroring the raw-id
// guard in reconciler.drainOne).
func (d *Dispatcher) stepReplace(ctx context.Context, rec *catalog.FileRecord, token *catalog.SnapshotToken, attemptID string, now int64, desiredHash, enrichmentVersion string) (dispatchOutcome, error) {
	next, err := fsm.Transition(rec.FSMState, fsm.EventReplace, fsm.TransitionInput{Record: rec, DesiredHash: desiredHash})
	if err != nil {
		return dispatchFailed, err
	}

	if err := d.store.InsertIntent(ctx, rec.FilePath, attemptID, next, now); err != nil {
		return dispatchFailed, err
	}

	f, size, err := d.files.Open(rec.FilePath)
	if err != nil {
		return d.failRecord(ctx, rec, token, attemptID, now, err)
	}
	defer f.Close()

	rawID, err := d.remote.UploadRaw(ctx, f, size, filepath.Base(rec.FilePath))
	if err != nil {
		return d.failRecord(ctx, rec, token, attemptID, now, err)
	}

	update := catalog.RecordUpdate{
		NewState:          next,
		RemoteRawID:       &rawID,
		SetRemoteRawID:    true,
		RemoteDocID:       nil,
		SetRemoteDocID:    true,
		UploadHash:        &desiredHash,
		EnrichmentVersion: &enrichmentVersion,
		OrphanRawID:       rec.RemoteRawID,
		SetOrphanRawID:    true,
		OrphanDocID:       rec.RemoteDocID,
		SetOrphanDocID:    true,
	}

	if err := d.store.CommitTransition(ctx, token, attemptID, update, now); err != nil {
		return dispatchFailed, err
	}

	return dispatchSkipped, nil
}

// stepRawAccepted starts the import-into-store job for the uploaded raw
// artifact and records the returned operation's resource name so stepVisible
// can resume polling it without starting a second job — ImportIntoStore
// begins a new asynchronous job on every call, it does not return a handle
// to an already-running one. guardRawAccepted treats a recorded
// remote_raw_id as proof the raw artifact already reached an
// ACTIVE-equivalent state — UploadRaw's HTTP response is itself the terminal
// confirmation in this backend's contract (there is no separate
// poll-the-raw-status call in C2; see DESIGN.md).
func (d *Dispatcher) stepRawAccepted(ctx context.Context, rec *catalog.FileRecord, token *catalog.SnapshotToken, attemptID string, now int64) (dispatchOutcome, error) {
	rawActive := rec.RemoteRawID != nil && *rec.RemoteRawID != ""

	next, err := fsm.Transition(rec.FSMState, fsm.EventRawAccepted, fsm.TransitionInput{Record: rec, RawBackendActive: rawActive})
	if err != nil {
		return dispatchFailed, err
	}

	if err := d.store.InsertIntent(ctx, rec.FilePath, attemptID, next, now); err != nil {
		return dispatchFailed, err
	}

	op, err := d.remote.ImportIntoStore(ctx, *rec.RemoteRawID, d.storeID)
	if err != nil {
		return d.failRecord(ctx, rec, token, attemptID, now, err)
	}

	update := catalog.RecordUpdate{
		NewState:               next,
		RemoteOperationName:    &op.Name,
		SetRemoteOperationName: true,
	}

	if err := d.store.CommitTransition(ctx, token, attemptID, update, now); err != nil {
		return dispatchFailed, err
	}

	return dispatchSkipped, nil
}

// stepVisible resumes the import operation stepRawAccepted started —
// reconstructing the handle from the persisted operation name rather than
// calling ImportIntoStore again — and confirms the document is visible
// before committing PROCESSING->INDEXED.
func (d *Dispatcher) stepVisible(ctx context.Context, rec *catalog.FileRecord, token *catalog.SnapshotToken, attemptID string, now int64) (dispatchOutcome, error) {
	if rec.RemoteOperationName == nil || *rec.RemoteOperationName == "" {
		return d.failRecord(ctx, rec, token, attemptID, now, fmt.Errorf("orchestrator: %q reached PROCESSING with no recorded operation name", rec.FilePath))
	}

	op := searchclient.Operation{Name: *rec.RemoteOperationName}

	docID, err := d.remote.AwaitOperation(ctx, op, operationTimeout)
	if err != nil {
		return d.failRecord(ctx, rec, token, attemptID, now, err)
	}

	visible, err := d.remote.GetDocument(ctx, d.storeID, docID)
	if err != nil {
		return d.failRecord(ctx, rec, token, attemptID, now, err)
	}

	next, err := fsm.Transition(rec.FSMState, fsm.EventVisible, fsm.TransitionInput{Record: rec, DocumentVisible: visible})
	if err != nil {
		return d.failRecord(ctx, rec, token, attemptID, now, err)
	}

	if err := d.store.InsertIntent(ctx, rec.FilePath, attemptID, next, now); err != nil {
		return dispatchFailed, err
	}

	update := catalog.RecordUpdate{
		NewState:       next,
		RemoteDocID:    &docID,
		SetRemoteDocID: true,
	}

	if err := d.store.CommitTransition(ctx, token, attemptID, update, now); err != nil {
		return dispatchFailed, err
	}

	return dispatchIndexed, nil
}

// failRecord transitions the record to FAILED, recording reason, and
// finalizes the already-open intent (inserted by the calling step before
// the side effect that just failed) via the same CommitTransition call —
// the intent's outcome column records that *a* transition committed, even
// though it landed on FAILED rather than the state the intent named.
func (d *Dispatcher) failRecord(ctx context.Context, rec *catalog.FileRecord, token *catalog.SnapshotToken, attemptID string, now int64, cause error) (dispatchOutcome, error) {
	reason := cause.Error()
	attempts := rec.AttemptCount + 1

	update := catalog.RecordUpdate{
		NewState:     catalog.StateFailed,
		ErrorReason:  &reason,
		AttemptCount: &attempts,
	}

	if err := d.store.CommitTransition(ctx, token, attemptID, update, now); err != nil {
		// The returned cause is not a conflict, so the conflict-retry
		// wrapper does not retry; a later RunBatch round re-drives this
		// record from its current state. Surface the original cause.
		return dispatchFailed, cause
	}

	return dispatchFailed, cause
}
