// Package reconciler is the pre-upload-run sweep (SPEC_FULL.md C6): it
// verifies the library root and store binding, drains orphaned remote
// artifacts left behind by an upload-first replacement, and classifies
// on-disk changes against the Catalog so the Orchestrator has fresh work to
// dispatch. Grounded on the teacher's internal/sync/reconciler.go (phase
// structure, logging bookends) and scanner.go (mtime-fast-path-then-hash
// change detection), simplified from the teacher's two-way local/remote
// merge to this domain's one-sided, local-authoritative comparison.
package reconciler

import (
	"fmt"
	"time"
)

// mtimeEpsilon is the fast-path tolerance below which two mtimes are
// considered equal without a content-hash check (spec.md §4.6 phase 4).
const mtimeEpsilon = 1e-6

// ChangeSet is the outcome of phase 4's walk, bucketed per spec.md §4.6.
type ChangeSet struct {
	New          []string
	Modified     []string
	Missing      []string
	Unchanged    int
	MtimeSkipped int
}

// Result is everything Reconcile produces across its four phases.
type Result struct {
	OrphansDrained int
	OrphansFailed  int
	Changes        ChangeSet
}

// ErrMountUnavailable is returned by the mount-check phase when the library
// root is not accessible — a recoverable condition; query paths that don't
// touch the disk remain usable (spec.md §4.6 phase 1).
type ErrMountUnavailable struct {
	Root string
	Err  error
}

func (e *ErrMountUnavailable) Error() string {
	return fmt.Sprintf("reconciler: library root %q unavailable: %v", e.Root, e.Err)
}

func (e *ErrMountUnavailable) Unwrap() error { return e.Err }

// mtimeClose reports whether a and b fall within the fast-path epsilon.
func mtimeClose(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}

	return d < mtimeEpsilon
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
