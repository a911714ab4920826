package mesh

import (
	"errors"
	"fmt"
)

var (
	// ErrVersionConflict is returned by Store.Save when the stored snapshot
	// moved on since the caller loaded it.
	ErrVersionConflict = errors.New("snapshot version conflict")
	// ErrNoSnapshot is returned by Store.Load when nothing has been saved yet
	ErrNoSnapshot = errors.New("no snapshot stored")
	// ErrSchemaMismatch rejects snapshots written by an incompatible schema
	ErrSchemaMismatch = errors.New("snapshot schema mismatch")
)

// ValidationError rejects malformed input before any mutation
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// NotFoundError reports an unknown entity id
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// IllegalStateError reports a transition the entity's state machine forbids
type IllegalStateError struct {
	Kind string
	ID   string
	From string
	To   string
}

func (e *IllegalStateError) Error() string {
	return fmt.Sprintf("illegal %s transition for %s: %s -> %s", e.Kind, e.ID, e.From, e.To)
}

// ConcurrencyConflictError is returned to the loser of a race on a
// stock-affecting resolution.
type ConcurrencyConflictError struct {
	Kind string
	ID   string
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("%s %s was resolved concurrently", e.Kind, e.ID)
}

// Invalid builds a ValidationError
func Invalid(field, reason string) error { return &ValidationError{Field: field, Reason: reason} }

// NotFound builds a NotFoundError
func NotFound(kind, id string) error { return &NotFoundError{Kind: kind, ID: id} }

// IllegalTransition builds an IllegalStateError
func IllegalTransition(kind, id string, from, to any) error {
	return &IllegalStateError{Kind: kind, ID: id, From: fmt.Sprint(from), To: fmt.Sprint(to)}
}

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is a NotFoundError
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsIllegalState reports whether err is an IllegalStateError
func IsIllegalState(err error) bool {
	var target *IllegalStateError
	return errors.As(err, &target)
}

// IsConcurrencyConflict reports whether err is a ConcurrencyConflictError
func IsConcurrencyConflict(err error) bool {
	var target *ConcurrencyConflictError
	return errors.As(err, &target)
}
