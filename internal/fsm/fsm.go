// Package fsm is a pure decision engine for the five-state upload lifecycle
// (SPEC_FULL.md C4). It performs no I/O and holds no state of its own —
// Transition takes the current state, an event and the record snapshot and
// returns only the next state (or an error); the caller (the Orchestrator)
// decides and carries out the side effects under OCC, the same separation
// the teacher's Planner draws between deciding an ActionPlan and an
// Executor carrying it out.
package fsm

import (
	"errors"
	"fmt"

	"github.com/agilenature/libsync/internal/catalog"
)

// Event names one of the legal transition triggers (spec.md §4.4 table).
type Event string

const (
	EventBeginUpload  Event = "begin-upload"
	EventRawAccepted  Event = "raw-accepted"
	EventError        Event = "error"
	EventVisible      Event = "visible"
	EventTimeoutError Event = "timeout-error"
	EventRetry        Event = "retry"
	EventReplace      Event = "replace"
)

// ErrIllegalTransition is returned when (state, event) has no entry in the
// transition table.
var ErrIllegalTransition = errors.New("fsm: illegal transition")

// ErrGuardFailed is returned when the transition is legal but its guard
// condition does not hold.
var ErrGuardFailed = errors.New("fsm: guard failed")

type edge struct {
	to    catalog.FileState
	guard func(in TransitionInput) error
}

var transitionTable = map[catalog.FileState]map[Event]edge{
	catalog.StateUntracked: {
		EventBeginUpload: {to: catalog.StateUploading, guard: guardBeginUpload},
	},
	catalog.StateUploading: {
		EventRawAccepted: {to: catalog.StateProcessing, guard: guardRawAccepted},
		EventError:       {to: catalog.StateFailed},
	},
	catalog.StateProcessing: {
		EventVisible:      {to: catalog.StateIndexed, guard: guardVisible},
		EventTimeoutError: {to: catalog.StateFailed},
	},
	catalog.StateFailed: {
		EventRetry: {to: catalog.StateUntracked},
	},
	catalog.StateIndexed: {
		EventReplace: {to: catalog.StateUploading},
	},
}

// TransitionInput carries everything a guard needs to decide whether a
// transition may proceed. Fields unused by a particular guard are ignored.
type TransitionInput struct {
	Record           *catalog.FileRecord
	DesiredHash      string
	RawBackendActive bool
	DocumentVisible  bool
}

// Transition looks up (current, event) in the table, runs its guard if
// any, and returns the destination state. It never mutates Record — the
// caller persists the result via catalog.CommitTransition under OCC.
func Transition(current catalog.FileState, event Event, in TransitionInput) (catalog.FileState, error) {
	byEvent, ok := transitionTable[current]
	if !ok {
		return "", fmt.Errorf("%w: no transitions defined from %s", ErrIllegalTransition, current)
	}

	e, ok := byEvent[event]
	if !ok {
		return "", fmt.Errorf("%w: %s has no %q transition", ErrIllegalTransition, current, event)
	}

	if e.guard != nil {
		if err := e.guard(in); err != nil {
			return "", err
		}
	}

	return e.to, nil
}

// guardBeginUpload enforces the idempotency gate: a record already
// matching the desired hash has nothing new to upload (spec.md §4.4 Guards).
func guardBeginUpload(in TransitionInput) error {
	if in.Record.UploadHash == in.DesiredHash && in.DesiredHash != "" {
		return fmt.Errorf("%w: upload_hash already matches desired_hash", ErrGuardFailed)
	}

	return nil
}

// guardRawAccepted requires the raw artifact to have reached an
// ACTIVE-equivalent terminal backend state, not merely be enqueued.
func guardRawAccepted(in TransitionInput) error {
	if !in.RawBackendActive {
		return fmt.Errorf("%w: raw artifact not yet active at the backend", ErrGuardFailed)
	}

	return nil
}

// guardVisible requires a positive get_document or list_store_documents
// result following a completed import operation.
func guardVisible(in TransitionInput) error {
	if !in.DocumentVisible {
		return fmt.Errorf("%w: document not yet visible in store", ErrGuardFailed)
	}

	return nil
}
