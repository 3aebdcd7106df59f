package objectstore

import "fmt"

// ErrorCode represents the kind of object-store error that occurred.
type ErrorCode int

const (
	// ErrConflict indicates a lease is already held by another owner, or a
	// conditional write's precondition (lease token / ETag) was not met.
	// Not a failure: callers treat this as a negative result (claim=false).
	ErrConflict ErrorCode = iota + 1

	// ErrNotFound indicates the blob or container does not exist.
	ErrNotFound

	// ErrLeaseNotHeld indicates a release/renew was attempted on a lease
	// that the store no longer recognizes (already expired or released).
	ErrLeaseNotHeld

	// ErrTransient indicates a timeout, throttling response, or 5xx from
	// the store. Surfaces as a failed blob; not specially retried here.
	ErrTransient
)

// String returns a human-readable name for the error code.
func (e ErrorCode) String() string {
	switch e {
	case ErrConflict:
		return "Conflict"
	case ErrNotFound:
		return "NotFound"
	case ErrLeaseNotHeld:
		return "LeaseNotHeld"
	case ErrTransient:
		return "Transient"
	default:
		return fmt.Sprintf("Unknown(%d)", e)
	}
}

// StoreError is the error type returned by Client implementations so callers
// can distinguish conflict/missing/transient without depending on any
// storage-specific error type.
type StoreError struct {
	Code      ErrorCode
	Container string
	Name      string
	Message   string
	Cause     error
}

func (e *StoreError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s: %s/%s: %s", e.Code, e.Container, e.Name, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}

// NewConflictError creates a Conflict error for the given blob.
func NewConflictError(container, name, message string) *StoreError {
	return &StoreError{Code: ErrConflict, Container: container, Name: name, Message: message}
}

// NewNotFoundError creates a NotFound error for the given blob.
func NewNotFoundError(container, name string) *StoreError {
	return &StoreError{Code: ErrNotFound, Container: container, Name: name, Message: "blob not found"}
}

// NewLeaseNotHeldError creates a LeaseNotHeld error for the given blob.
func NewLeaseNotHeldError(container, name string) *StoreError {
	return &StoreError{Code: ErrLeaseNotHeld, Container: container, Name: name, Message: "lease not held"}
}

// NewTransientError wraps an underlying transport/store error as transient.
func NewTransientError(container, name string, cause error) *StoreError {
	return &StoreError{Code: ErrTransient, Container: container, Name: name, Message: cause.Error(), Cause: cause}
}

// IsConflict returns true if err is a Conflict StoreError.
func IsConflict(err error) bool {
	se, ok := err.(*StoreError)
	return ok && se.Code == ErrConflict
}

// IsNotFound returns true if err is a NotFound StoreError.
func IsNotFound(err error) bool {
	se, ok := err.(*StoreError)
	return ok && se.Code == ErrNotFound
}

// IsLeaseNotHeld returns true if err is a LeaseNotHeld StoreError.
func IsLeaseNotHeld(err error) bool {
	se, ok := err.(*StoreError)
	return ok && se.Code == ErrLeaseNotHeld
}
