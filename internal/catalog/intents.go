package catalog

import (
	"context"
	"fmt"
)

// InsertIntent writes the write-ahead row for an attempted transition,
// in its own short transaction preceding the side effect (spec.md §3, §9:
// "every attempted transition is preceded by an UploadIntent row"). The
// caller passes attemptID through to CommitTransition so the same intent
// row is the one finalized.
func (s *Store) InsertIntent(ctx context.Context, filePath, attemptID string, intendedState FileState, startedAt int64) error {
	_, err := s.intentStmts.insert.ExecContext(ctx, filePath, attemptID, intendedState, startedAt)
	if err != nil {
		return fmt.Errorf("catalog: insert intent %q: %w", filePath, err)
	}

	return nil
}

// FinishIntent marks an open intent row as resolved outside of a
// CommitTransition call — used by the Orchestrator's recovery sweep when an
// intent is abandoned without ever reaching a commit (spec.md §4.5 step 1,
// recovery sweep: "any UploadIntent left open from a prior run is either
// resumed or marked rolled_back").
func (s *Store) FinishIntent(ctx context.Context, filePath, attemptID, outcome string, finishedAt int64) error {
	_, err := s.intentStmts.finish.ExecContext(ctx, finishedAt, outcome, filePath, attemptID)
	if err != nil {
		return fmt.Errorf("catalog: finish intent %q: %w", filePath, err)
	}

	return nil
}

// ListOpenIntents returns every UploadIntent row with no FinishedAt,
// ordered oldest first — the input to the Orchestrator's startup recovery
// sweep (spec.md §4.5 step 1).
func (s *Store) ListOpenIntents(ctx context.Context) ([]*UploadIntent, error) {
	rows, err := s.intentStmts.listOpen.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: list open intents: %w", err)
	}
	defer rows.Close()

	var out []*UploadIntent

	for rows.Next() {
		it := &UploadIntent{}

		if err := rows.Scan(&it.ID, &it.FilePath, &it.AttemptID, &it.IntendedState, &it.StartedAt, &it.FinishedAt, &it.Outcome); err != nil {
			return nil, fmt.Errorf("catalog: scan intent: %w", err)
		}

		out = append(out, it)
	}

	return out, rows.Err()
}
