package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingRequiredField is matched by MissingRequiredFieldError via errors.Is.
	ErrMissingRequiredField = errors.New("missing required field")

	// ErrRecordNotFound is returned by single-record updates for an unknown id.
	ErrRecordNotFound = errors.New("record not found")

	// ErrInvalidTransition is returned when a status change is not allowed
	// from the record's current status.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// MappingError reports a malformed mapping rule.
type MappingError struct {
	Column  string
	Message string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("mapping error for column %q: %s", e.Column, e.Message)
}

// MissingRequiredFieldError reports a node that still lacks action or node kind
// after defaults and overrides were applied.
type MissingRequiredFieldError struct {
	Row    int
	Fields []string
}

func (e *MissingRequiredFieldError) Error() string {
	return fmt.Sprintf("row %d: missing required field(s): %s", e.Row, strings.Join(e.Fields, ", "))
}

// Is matches ErrMissingRequiredField.
func (e *MissingRequiredFieldError) Is(target error) bool {
	return target == ErrMissingRequiredField
}

// RowProcessingError wraps any failure while transforming a single row.
// It never aborts a run.
type RowProcessingError struct {
	Row int
	Err error
}

func (e *RowProcessingError) Error() string {
	return fmt.Sprintf("error processing row %d: %v", e.Row, e.Err)
}

func (e *RowProcessingError) Unwrap() error { return e.Err }

// PersistenceError reports that the state store is unreachable or corrupt.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("state store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// SourceReadError reports an unreadable or header-less source table.
type SourceReadError struct {
	Path string
	Err  error
}

func (e *SourceReadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("source read error: %v", e.Err)
	}
	return fmt.Sprintf("source read error in %s: %v", e.Path, e.Err)
}

func (e *SourceReadError) Unwrap() error { return e.Err }

// ReconciliationParseError reports a malformed failure report.
type ReconciliationParseError struct {
	Line int
	Err  error
}

func (e *ReconciliationParseError) Error() string {
	return fmt.Sprintf("failure report line %d: %v", e.Line, e.Err)
}

func (e *ReconciliationParseError) Unwrap() error { return e.Err }
