package catalog

import (
	"errors"
	"fmt"
)

// Sentinel errors for the catalog error taxonomy.
// Use errors.Is(err, catalog.ErrNotFound) to check; use errors.As with the
// structured types below to read details.
var (
	ErrValidation    = errors.New("catalog: validation failed")
	ErrNotFound      = errors.New("catalog: not found")
	ErrAlreadyExists = errors.New("catalog: already exists")
	ErrDatabase      = errors.New("catalog: database error")
	ErrNetwork       = errors.New("catalog: network error")
)

// ValidationError reports bad input. Never retried.
type ValidationError struct {
	Field string
	Rule  string
	Value any
}

func (e *ValidationError) Error() string {
	if e.Rule == "" {
		return fmt.Sprintf("catalog: invalid %s", e.Field)
	}

	return fmt.Sprintf("catalog: invalid %s: failed %q (got %v)", e.Field, e.Rule, e.Value)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NotFoundError reports a missing entity. Never retried.
type NotFoundError struct {
	EntityType EntityType
	ID         string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("catalog: %s %q not found", e.EntityType, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// AlreadyExistsError reports a uniqueness violation, such as a second
// Collection for the same media id. Never retried.
type AlreadyExistsError struct {
	EntityType EntityType
	Key        string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("catalog: %s %q already exists", e.EntityType, e.Key)
}

func (e *AlreadyExistsError) Is(target error) bool {
	return target == ErrAlreadyExists
}

// DatabaseError wraps a Local Store failure. Fatal to the current operation
// but not to the process.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("catalog: database %s: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}

func (e *DatabaseError) Is(target error) bool {
	return target == ErrDatabase
}

// NetworkError wraps a remote call failure. Retryable. StatusCode is zero
// for transport failures. Err may additionally wrap ErrNotFound,
// ErrAlreadyExists, or ErrValidation when the remote rejected the request.
type NetworkError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("catalog: remote %s: HTTP %d: %v", e.Op, e.StatusCode, e.Err)
	}

	return fmt.Sprintf("catalog: remote %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

func (e *NetworkError) Is(target error) bool {
	return target == ErrNetwork
}

// IsRejection reports whether a remote failure was a definitive refusal by
// the server (4xx) rather than a transient transport or server failure.
// Rejections are not worth retrying unchanged.
func (e *NetworkError) IsRejection() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 &&
		e.StatusCode != 408 && e.StatusCode != 429
}

// NewNotFound is shorthand for a NotFoundError.
func NewNotFound(t EntityType, id string) error {
	return &NotFoundError{EntityType: t, ID: id}
}

// NewAlreadyExists is shorthand for an AlreadyExistsError.
func NewAlreadyExists(t EntityType, key string) error {
	return &AlreadyExistsError{EntityType: t, Key: key}
}

// WrapDB wraps err as a DatabaseError unless it already carries a taxonomy
// error (NotFound, AlreadyExists, Validation), which pass through unchanged.
func WrapDB(op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrValidation) || errors.Is(err, ErrDatabase) {
		return err
	}

	return &DatabaseError{Op: op, Err: err}
}
