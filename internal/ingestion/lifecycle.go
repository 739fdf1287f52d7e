package ingestion

import (
	"errors"
	"fmt"
)

// Sentinel errors for parse-job state transition validation.
// These can be used with errors.Is() for error checking.
var (
	// ErrInvalidTransition indicates a transition the state machine does not allow.
	ErrInvalidTransition = errors.New("invalid job state transition")

	// ErrTerminalStateImmutable indicates an attempt to leave a terminal state.
	ErrTerminalStateImmutable = errors.New("terminal job state is immutable")
)

// ValidateJobTransition validates a parse-job state transition.
//
// Valid transitions:
//   - QUEUED → RUNNING (worker claimed the lock)
//   - RUNNING → DONE | FAILED | DEADLETTER
//   - FAILED → QUEUED (operator requeue) | DEADLETTER (attempt budget exhausted)
//   - DONE/DEADLETTER → same state (idempotent)
//
// Everything else is invalid; in particular terminal states never transition
// to a different state, and jobs never move backwards from RUNNING to QUEUED
// without passing through FAILED.
func ValidateJobTransition(from, to JobStatus) error {
	if from.IsTerminal() {
		if from != to {
			return fmt.Errorf("%w: %s → %s", ErrTerminalStateImmutable, from, to)
		}

		return nil // idempotent terminal state
	}

	valid := map[JobStatus]map[JobStatus]bool{
		JobQueued: {
			JobRunning: true,
		},
		JobRunning: {
			JobDone:       true,
			JobFailed:     true,
			JobDeadletter: true,
		},
		JobFailed: {
			JobQueued:     true,
			JobDeadletter: true,
		},
	}

	if !valid[from][to] {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, from, to)
	}

	return nil
}

// NextStatusAfterFailure decides where a job goes after a failed attempt:
// FAILED while attempts remain, DEADLETTER once the budget is exhausted.
func NextStatusAfterFailure(attemptCount, maxAttempts int) JobStatus {
	if attemptCount >= maxAttempts {
		return JobDeadletter
	}

	return JobFailed
}
