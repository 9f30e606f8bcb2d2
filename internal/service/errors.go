package service

import (
	"errors"
	"fmt"
)

// Error taxonomy. Handlers map these to status codes with errors.Is.
var (
	ErrInvalidInput              = errors.New("invalid input")
	ErrDuplicate                 = errors.New("document already registered")
	ErrNotFound                  = errors.New("document not found")
	ErrStorageFailure            = errors.New("blob storage failure")
	ErrRegistryUnavailable       = errors.New("registry unavailable")
	ErrRegistryRejected          = errors.New("registry rejected registration")
	ErrConfirmationIndeterminate = errors.New("registration outcome indeterminate")

	ErrIDRequired = fmt.Errorf("%w: id is required", ErrInvalidInput)
)

// State is a step of the registration workflow.
type State string

const (
	StateValidating       State = "validating"
	StateHashComputed     State = "hash_computed"
	StateDuplicateChecked State = "duplicate_checked"
	StateBlobStored       State = "blob_stored"
	StateSubmitted        State = "submitted"
	StateConfirmed        State = "confirmed"
	StateAssembled        State = "assembled"
	StateAborted          State = "aborted"
)

// AbortError reports where and why a registration stopped.
// State is the last state reached before the abort. Reason is one of the
// taxonomy sentinels, or nil for unexpected faults. TxHash is set once a
// transaction has been broadcast.
type AbortError struct {
	State   State
	Reason  error
	DocHash string
	TxHash  string
	Err     error
}

func (e *AbortError) Error() string {
	switch {
	case e.Reason != nil && e.Err != nil:
		return fmt.Sprintf("registration aborted after %s: %v: %v", e.State, e.Reason, e.Err)
	case e.Reason != nil:
		return fmt.Sprintf("registration aborted after %s: %v", e.State, e.Reason)
	default:
		return fmt.Sprintf("registration aborted after %s: %v", e.State, e.Err)
	}
}

func (e *AbortError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Reason != nil {
		errs = append(errs, e.Reason)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Code returns the stable machine code for err. Unknown errors map to INTERNAL_ERROR.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.Is(err, ErrDuplicate):
		return "DUPLICATE"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrStorageFailure):
		return "STORAGE_FAILURE"
	case errors.Is(err, ErrRegistryUnavailable):
		return "REGISTRY_UNAVAILABLE"
	case errors.Is(err, ErrRegistryRejected):
		return "REGISTRY_REJECTED"
	case errors.Is(err, ErrConfirmationIndeterminate):
		return "CONFIRMATION_INDETERMINATE"
	default:
		return "INTERNAL_ERROR"
	}
}
