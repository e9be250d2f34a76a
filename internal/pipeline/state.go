// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"errors"
	"fmt"
)

const (
	// StateQueued indicates the job was planned but has not started.
	StateQueued State = iota
	// StateRunning indicates the job is executing its steps.
	StateRunning
	// StateSucceeded is terminal: every step succeeded or was allowed to fail.
	StateSucceeded
	// StateFailed is terminal: a step failed or the job was cancelled.
	StateFailed
)

var (
	// ErrInvalidState is returned when a State value is not one of the defined job states.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidTransition is returned for a state change the lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid job state transition")
)

type (
	// State represents the lifecycle state of a job.
	State int32

	// InvalidStateError is returned when a State value is not recognized.
	InvalidStateError struct {
		Value State
	}

	// TransitionError reports a rejected state change.
	TransitionError struct {
		From State
		To   State
	}
)

// String returns a human-readable representation of the job state.
func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state %d (valid: 0=queued, 1=running, 2=succeeded, 3=failed)", e.Value)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move job from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// Validate returns nil if the State is one of the defined job states.
func (s State) Validate() error {
	switch s {
	case StateQueued, StateRunning, StateSucceeded, StateFailed:
		return nil
	default:
		return &InvalidStateError{Value: s}
	}
}

// IsTerminal returns true for Succeeded and Failed.
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// canTransition reports whether the lifecycle allows from -> to.
// Queued -> Failed covers jobs cancelled before they start.
func canTransition(from, to State) bool {
	switch from {
	case StateQueued:
		return to == StateRunning || to == StateFailed
	case StateRunning:
		return to == StateSucceeded || to == StateFailed
	default:
		return false
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return []byte(s.String()), nil
}
