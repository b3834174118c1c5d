package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// scanRecord scans a single file_records row in recordColumns order.
func scanRecord(row interface{ Scan(...any) error }) (*FileRecord, error) {
	r := &FileRecord{}

	err := row.Scan(
		&r.FilePath, &r.ContentHash, &r.Size, &r.Mtime, &r.FSMState, &r.Version,
		&r.RemoteRawID, &r.RemoteDocID, &r.RemoteOperationName, &r.OrphanRawID, &r.OrphanDocID, &r.MissingSince,
		&r.UploadHash, &r.EnrichmentVersion, &r.ErrorReason, &r.AttemptCount,
		&r.RemoteExpiration, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return r, nil
}

// GetRecord returns the FileRecord at path, or *ErrNotFound if absent.
func (s *Store) GetRecord(ctx context.Context, filePath string) (*FileRecord, error) {
	row := s.recordStmts.get.QueryRowContext(ctx, filePath)

	r, err := scanRecord(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &ErrNotFound{FilePath: filePath}
		}

		return nil, fmt.Errorf("catalog: get record %q: %w", filePath, err)
	}

	return r, nil
}

// EnsureTracked inserts a new UNTRACKED record for a path the scanner
// discovered, or refreshes content_hash/size/mtime for an existing one
// without touching its fsm_state or version (the FSM owns those fields
// exclusively — spec.md §3 Lifecycles).
func (s *Store) EnsureTracked(ctx context.Context, filePath, contentHash string, size int64, mtime float64, enrichmentVersion string, now int64) error {
	_, err := s.recordStmts.upsertNew.ExecContext(ctx, filePath, contentHash, size, mtime, enrichmentVersion, now)
	if err != nil {
		return fmt.Errorf("catalog: ensure tracked %q: %w", filePath, err)
	}

	return nil
}

// LoadPending returns up to limit records whose fsm_state is one of states
// and that have not yet been submitted under the current bound enrichment
// version with their current content_hash — spec.md §4.1 load_pending's
// idempotency gate (P2). currentEnrichmentVersion is the version the caller
// supplies (the CLI passes library.enrichment_version from config); a record whose
// upload_hash already equals its own content_hash under that version is
// skipped. states may hold any number of draining states, so the
// Orchestrator can fold entries needing a fresh begin-upload and records
// resuming mid-flight into a single query.
func (s *Store) LoadPending(ctx context.Context, states []FileState, currentEnrichmentVersion string, limit int) ([]*FileRecord, error) {
	if len(states) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?, ", len(states)-1) + "?"
	query := sqlListPendingPrefix + placeholders + sqlListPendingSuffix

	args := make([]any, 0, len(states)+2)
	for _, st := range states {
		args = append(args, st)
	}

	args = append(args, currentEnrichmentVersion, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: load pending: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ListTrackedPaths returns every file_path not currently flagged missing —
// the baseline SyncReconciler's change classification diffs the on-disk
// walk against (spec.md §4.6 phase 4).
func (s *Store) ListTrackedPaths(ctx context.Context) ([]string, error) {
	rows, err := s.recordStmts.listTrackedPaths.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: list tracked paths: %w", err)
	}
	defer rows.Close()

	var out []string

	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("catalog: scan tracked path: %w", err)
		}

		out = append(out, p)
	}

	return out, rows.Err()
}

// CountByState returns the number of file_records rows in each FSM state,
// for `status` reporting — omits states with zero rows.
func (s *Store) CountByState(ctx context.Context) (map[FileState]int, error) {
	rows, err := s.recordStmts.countByState.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: count by state: %w", err)
	}
	defer rows.Close()

	out := make(map[FileState]int)

	for rows.Next() {
		var state FileState

		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("catalog: scan state count: %w", err)
		}

		out[state] = count
	}

	return out, rows.Err()
}

// LoadOrphans returns every record with a pending orphan cleanup
// obligation (orphan_raw_id non-null, spec.md I3).
func (s *Store) LoadOrphans(ctx context.Context) ([]*FileRecord, error) {
	rows, err := s.recordStmts.listOrphans.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: load orphans: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// LoadMissingOlderThan returns records marked missing before cutoff (unix
// nanos), used by the operator-opted prune step (spec.md §4.6 phase 4).
func (s *Store) LoadMissingOlderThan(ctx context.Context, cutoff int64) ([]*FileRecord, error) {
	rows, err := s.recordStmts.listMissing.QueryContext(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("catalog: load missing: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// LoadExpiring returns INDEXED records whose remote_expiration has passed
// cutoff (unix nanos), so they can be requeued for re-upload (spec.md §6).
func (s *Store) LoadExpiring(ctx context.Context, cutoff int64) ([]*FileRecord, error) {
	rows, err := s.recordStmts.listExpiring.QueryContext(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("catalog: load expiring: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]*FileRecord, error) {
	var out []*FileRecord

	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan record: %w", err)
		}

		out = append(out, r)
	}

	return out, rows.Err()
}

// BeginTransition reads the current record and returns it along with an OCC
// snapshot token (spec.md §4.1). Returns *ErrNotFound if no such record.
func (s *Store) BeginTransition(ctx context.Context, filePath string) (*FileRecord, *SnapshotToken, error) {
	r, err := s.GetRecord(ctx, filePath)
	if err != nil {
		return nil, nil, err
	}

	return r, &SnapshotToken{FilePath: filePath, State: r.FSMState, Version: r.Version}, nil
}

// RecordUpdate is the set of fields CommitTransition is allowed to change.
// A field with an accompanying Set* flag is written only when its flag is
// true, and then as given (nil clears the column); the other pointer fields
// are written only when non-nil.
type RecordUpdate struct {
	NewState               FileState
	RemoteRawID            *string
	SetRemoteRawID         bool
	RemoteDocID            *string
	SetRemoteDocID         bool
	RemoteOperationName    *string
	SetRemoteOperationName bool
	OrphanRawID            *string
	SetOrphanRawID         bool
	OrphanDocID            *string
	SetOrphanDocID         bool
	UploadHash             *string
	EnrichmentVersion      *string
	ErrorReason            *string
	AttemptCount           *int
	RemoteExpiration       *int64
	SetRemoteExp           bool
	LastVerifiedAt         *int64
	SetLastVerifiedAt      bool
}

// CommitTransition applies updates iff the record still matches token,
// atomically increments version, writes an audit row, and finalizes the
// open intent for (filePath, attemptID) in the same SQLite transaction
// (spec.md §3 I4, §4.1). Returns *ErrConflict if the row no longer matches
// the snapshot — the FSM/Orchestrator retries the whole begin/execute/commit
// cycle on conflict (spec.md §4.5 step 5), never surfacing it upward.
//
// The snapshot read and the conditional write are two short transactions
// rather than one held open across the side effect's network round trip —
// see DESIGN.md's Open Question resolution for why.
func (s *Store) CommitTransition(ctx context.Context, token *SnapshotToken, attemptID string, update RecordUpdate, now int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog: begin commit tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after a successful Commit

	res, err := tx.ExecContext(ctx, buildUpdateSQL(update), buildUpdateArgs(update, now, token)...)
	if err != nil {
		return fmt.Errorf("catalog: commit transition %q: %w", token.FilePath, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("catalog: commit transition %q: rows affected: %w", token.FilePath, err)
	}

	if affected == 0 {
		return &ErrConflict{FilePath: token.FilePath}
	}

	if _, err := tx.ExecContext(ctx, sqlFinishIntent, now, "committed", token.FilePath, attemptID); err != nil {
		return fmt.Errorf("catalog: finalize intent %q: %w", token.FilePath, err)
	}

	if _, err := tx.ExecContext(ctx, sqlInsertAudit, token.FilePath, token.State, update.NewState, errOrEmpty(update.ErrorReason), now); err != nil {
		return fmt.Errorf("catalog: audit %q: %w", token.FilePath, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("catalog: commit tx %q: %w", token.FilePath, err)
	}

	return nil
}

func errOrEmpty(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}

// buildUpdateSQL constructs the conditional UPDATE for CommitTransition.
// Always bumps version by 1 and writes updated_at/fsm_state; optional
// columns are included only when the caller asked to set them, so an
// unrelated transition doesn't clobber fields it has no opinion about.
func buildUpdateSQL(u RecordUpdate) string {
	sql := `UPDATE file_records SET fsm_state = ?, version = version + 1, updated_at = ?`

	if u.SetRemoteRawID {
		sql += `, remote_raw_id = ?`
	}

	if u.SetRemoteDocID {
		sql += `, remote_doc_id = ?`
	}

	if u.SetRemoteOperationName {
		sql += `, remote_operation_name = ?`
	}

	if u.SetOrphanRawID {
		sql += `, orphan_raw_id = ?`
	}

	if u.SetOrphanDocID {
		sql += `, orphan_doc_id = ?`
	}

	if u.UploadHash != nil {
		sql += `, upload_hash = ?`
	}

	if u.EnrichmentVersion != nil {
		sql += `, enrichment_version = ?`
	}

	if u.ErrorReason != nil {
		sql += `, error_reason = ?`
	}

	if u.AttemptCount != nil {
		sql += `, attempt_count = ?`
	}

	if u.SetRemoteExp {
		sql += `, remote_expiration = ?`
	}

	if u.SetLastVerifiedAt {
		sql += `, last_verified_at = ?`
	}

	sql += ` WHERE file_path = ? AND fsm_state = ? AND version = ?`

	return sql
}

func buildUpdateArgs(u RecordUpdate, now int64, token *SnapshotToken) []any {
	args := []any{u.NewState, now}

	if u.SetRemoteRawID {
		args = append(args, u.RemoteRawID)
	}

	if u.SetRemoteDocID {
		args = append(args, u.RemoteDocID)
	}

	if u.SetRemoteOperationName {
		args = append(args, u.RemoteOperationName)
	}

	if u.SetOrphanRawID {
		args = append(args, u.OrphanRawID)
	}

	if u.SetOrphanDocID {
		args = append(args, u.OrphanDocID)
	}

	if u.UploadHash != nil {
		args = append(args, *u.UploadHash)
	}

	if u.EnrichmentVersion != nil {
		args = append(args, *u.EnrichmentVersion)
	}

	if u.ErrorReason != nil {
		args = append(args, *u.ErrorReason)
	}

	if u.AttemptCount != nil {
		args = append(args, *u.AttemptCount)
	}

	if u.SetRemoteExp {
		args = append(args, u.RemoteExpiration)
	}

	if u.SetLastVerifiedAt {
		args = append(args, u.LastVerifiedAt)
	}

	args = append(args, token.FilePath, token.State, token.Version)

	return args
}

// MarkMissing flags every path in paths as missing-from-disk with the given
// timestamp. It never touches the remote (spec.md P6) and never mutates
// fsm_state — "missing" is an orthogonal flag layered on top of the FSM.
func (s *Store) MarkMissing(ctx context.Context, paths []string, now int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog: begin mark-missing tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after a successful Commit

	stmt, err := tx.PrepareContext(ctx, `UPDATE file_records SET missing_since = ?, updated_at = ?
		WHERE file_path = ? AND missing_since IS NULL`)
	if err != nil {
		return fmt.Errorf("catalog: prepare mark-missing: %w", err)
	}
	defer stmt.Close()

	for _, p := range paths {
		if _, err := stmt.ExecContext(ctx, now, now, p); err != nil {
			return fmt.Errorf("catalog: mark missing %q: %w", p, err)
		}
	}

	return tx.Commit()
}

// ClearMissing un-marks a path as missing (the scanner found it again).
func (s *Store) ClearMissing(ctx context.Context, filePath string, now int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE file_records SET missing_since = NULL, updated_at = ?
		WHERE file_path = ?`, now, filePath)
	if err != nil {
		return fmt.Errorf("catalog: clear missing %q: %w", filePath, err)
	}

	return nil
}

// DeleteRecord removes a record entirely — used by --prune-missing after a
// successful remote delete of a long-missing file (spec.md §4.6 phase 4).
func (s *Store) DeleteRecord(ctx context.Context, filePath string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM file_records WHERE file_path = ?`, filePath)
	if err != nil {
		return fmt.Errorf("catalog: delete record %q: %w", filePath, err)
	}

	return nil
}
