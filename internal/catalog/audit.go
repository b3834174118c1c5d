package catalog

import (
	"context"
	"fmt"
)

// RecordAudit appends a row describing a state transition outside of the
// CommitTransition fast path, which writes its own audit row.
func (s *Store) RecordAudit(ctx context.Context, filePath string, from, to FileState, reason string, at int64) error {
	_, err := s.auditStmts.insert.ExecContext(ctx, filePath, from, to, reason, at)
	if err != nil {
		return fmt.Errorf("catalog: record audit %q: %w", filePath, err)
	}

	return nil
}

// ListAuditByPath returns the full transition history for one path, oldest
// first.
func (s *Store) ListAuditByPath(ctx context.Context, filePath string) ([]*AuditEntry, error) {
	rows, err := s.auditStmts.listByPath.QueryContext(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("catalog: list audit for %q: %w", filePath, err)
	}
	defer rows.Close()

	return scanAuditEntries(rows)
}

// ListAuditErrors returns the most recent limit transitions into FAILED,
// newest first, for `status --errors`.
func (s *Store) ListAuditErrors(ctx context.Context, limit int) ([]*AuditEntry, error) {
	rows, err := s.auditStmts.listErrors.QueryContext(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("catalog: list audit errors: %w", err)
	}
	defer rows.Close()

	return scanAuditEntries(rows)
}

func scanAuditEntries(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) ([]*AuditEntry, error) {
	var out []*AuditEntry

	for rows.Next() {
		e := &AuditEntry{}

		if err := rows.Scan(&e.ID, &e.FilePath, &e.FromState, &e.ToState, &e.Reason, &e.At); err != nil {
			return nil, fmt.Errorf("catalog: scan audit entry: %w", err)
		}

		out = append(out, e)
	}

	return out, rows.Err()
}
