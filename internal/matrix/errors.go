// SPDX-License-Identifier: MPL-2.0

package matrix

import (
	"errors"
	"fmt"
)

// MaxEntries bounds the number of entries a matrix may expand to.
const MaxEntries = 256

var (
	// ErrEmptyMatrix is returned when a matrix has neither axes nor includes.
	ErrEmptyMatrix = errors.New("matrix declares no axes and no include entries")
	// ErrMissingKey is returned when an entry lacks a required key.
	ErrMissingKey = errors.New("matrix entry is missing a required key")
	// ErrDuplicateEntry is returned when two entries would build the same thing.
	ErrDuplicateEntry = errors.New("duplicate matrix entry")
	// ErrNameCollision is returned when two entries derive the same artifact
	// name. It wraps ErrDuplicateEntry.
	ErrNameCollision = fmt.Errorf("artifact name collision: %w", ErrDuplicateEntry)
	// ErrTooManyEntries is returned when expansion exceeds MaxEntries.
	ErrTooManyEntries = errors.New("matrix expands to too many entries")
)

type (
	// MissingKeyError identifies the entry and key that failed validation.
	MissingKeyError struct {
		Index int
		Key   string
		Entry Entry
	}

	// DuplicateEntryError reports two entries with identical key/value sets.
	DuplicateEntryError struct {
		First  int
		Second int
		Entry  Entry
	}

	// NameCollisionError reports two entries that derive the same artifact name.
	NameCollisionError struct {
		Name   string
		First  int
		Second int
	}

	// TooManyEntriesError reports the size an expansion would have had.
	TooManyEntriesError struct {
		Count int
		Max   int
	}
)

// Error implements the error interface.
func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("matrix entry #%d %s: required key %q is empty", e.Index+1, e.Entry.Label(), e.Key)
}

// Unwrap returns ErrMissingKey for errors.Is() compatibility.
func (e *MissingKeyError) Unwrap() error { return ErrMissingKey }

// Error implements the error interface.
func (e *DuplicateEntryError) Error() string {
	return fmt.Sprintf("matrix entries #%d and #%d are identical: %s", e.First+1, e.Second+1, e.Entry)
}

// Unwrap returns ErrDuplicateEntry for errors.Is() compatibility.
func (e *DuplicateEntryError) Unwrap() error { return ErrDuplicateEntry }

// Error implements the error interface.
func (e *NameCollisionError) Error() string {
	return fmt.Sprintf("matrix entries #%d and #%d both produce artifact %q", e.First+1, e.Second+1, e.Name)
}

// Unwrap returns ErrNameCollision for errors.Is() compatibility.
func (e *NameCollisionError) Unwrap() error { return ErrNameCollision }

// Error implements the error interface.
func (e *TooManyEntriesError) Error() string {
	return fmt.Sprintf("matrix expands to %d entries (maximum %d)", e.Count, e.Max)
}

// Unwrap returns ErrTooManyEntries for errors.Is() compatibility.
func (e *TooManyEntriesError) Unwrap() error { return ErrTooManyEntries }
