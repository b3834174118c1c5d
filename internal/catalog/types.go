// Package catalog is the sole durable-state owner for the upload pipeline
// (SPEC_FULL.md C1). It persists FileRecord rows, an append-only
// UploadIntent log, and a small library_config binding table in an
// embedded SQLite database, and exposes the narrow transactional surface
// the Orchestrator and SyncReconciler drive through.
package catalog

import "fmt"

// FileState is one of the five states a FileRecord can occupy.
type FileState string

const (
	StateUntracked  FileState = "UNTRACKED"
	StateUploading  FileState = "UPLOADING"
	StateProcessing FileState = "PROCESSING"
	StateIndexed    FileState = "INDEXED"
	StateFailed     FileState = "FAILED"
)

// Valid reports whether s is one of the five legal states.
func (s FileState) Valid() bool {
	switch s {
	case StateUntracked, StateUploading, StateProcessing, StateIndexed, StateFailed:
		return true
	default:
		return false
	}
}

// FileRecord is the primary entity (spec.md §3), keyed by FilePath relative
// to a library root.
type FileRecord struct {
	FilePath          string
	ContentHash       string
	Size              int64
	Mtime             float64
	FSMState          FileState
	Version           int64
	RemoteRawID         *string
	RemoteDocID         *string
	RemoteOperationName *string
	OrphanRawID         *string
	OrphanDocID         *string
	MissingSince        *int64 // unix nanos; nil when present on disk
	UploadHash          string
	EnrichmentVersion   string
	ErrorReason         string
	AttemptCount        int
	RemoteExpiration    *int64 // unix nanos; nil when unknown/not yet indexed
	CreatedAt           int64
	UpdatedAt           int64
}

// SnapshotToken is the OCC token returned by BeginTransition: the
// (state, version) pair a conditional commit is gated on (spec.md I4).
type SnapshotToken struct {
	FilePath string
	State    FileState
	Version  int64
}

// UploadIntent is a write-ahead row preceding an attempted transition
// (spec.md §3 Intent log, §9). FinishedAt is zero while the intent is open.
type UploadIntent struct {
	ID            int64
	FilePath      string
	AttemptID     string
	IntendedState FileState
	StartedAt     int64
	FinishedAt    int64 // 0 while open
	Outcome       string // "", "committed", "rolled_back"
}

// AuditEntry is an append-only record of a terminal (FAILED) outcome or a
// successful transition; the FAILED rows are browsable via `status --errors`.
type AuditEntry struct {
	ID        int64
	FilePath  string
	FromState FileState
	ToState   FileState
	Reason    string
	At        int64
}

// ErrConflict is returned by CommitTransition when the snapshot token no
// longer matches the stored row (spec.md I4, P1).
type ErrConflict struct {
	FilePath string
}

func (e *ErrConflict) Error() string {
	return fmt.Sprintf("catalog: transition conflict for %q", e.FilePath)
}

// ErrNotFound is returned when a FileRecord lookup finds no row.
type ErrNotFound struct {
	FilePath string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("catalog: no record for %q", e.FilePath)
}

// ErrStoreBindingMismatch is returned when the library is bound to a
// different remote store than the one the caller intends to run against
// (spec.md §4.6 phase 2, §7).
type ErrStoreBindingMismatch struct {
	Bound, Requested string
}

func (e *ErrStoreBindingMismatch) Error() string {
	return fmt.Sprintf("catalog: library bound to store %q, refusing to run against %q (use operator override)",
		e.Bound, e.Requested)
}
