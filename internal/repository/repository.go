// Package repository contains data access layer abstractions.
// Implementations live in subpackages; Nop is used when no database is configured.
package repository

import (
	"context"
	"errors"
	"time"

	"docregistry/internal/model"
)

// ErrNotFound is returned when no journal row matches.
var ErrNotFound = errors.New("registration not found")

// RegistrationRepository journals registration attempts so blob pointers outlive the request.
// No business logic here, strictly persistence operations.
type RegistrationRepository interface {
	// Create inserts a new attempt in the blob_stored state.
	Create(ctx context.Context, r *model.Registration) error

	// MarkSubmitted records the broadcast transaction hash.
	MarkSubmitted(ctx context.Context, attemptID, txHash string) error

	// MarkConfirmed records the registry-assigned id and timestamp.
	MarkConfirmed(ctx context.Context, attemptID, documentID string, registeredAt int64) error

	// MarkAborted records a terminal failure. state is aborted or indeterminate.
	MarkAborted(ctx context.Context, attemptID string, state model.RegistrationState, reason string) error

	// MarkOrphaned flags an attempt whose blob has no registry counterpart.
	MarkOrphaned(ctx context.Context, attemptID, reason string) error

	// FindConfirmedByDocumentID returns the confirmed attempt for a registry id.
	FindConfirmedByDocumentID(ctx context.Context, documentID string) (*model.Registration, error)

	// ListUnsettled returns submitted, indeterminate and aborted attempts last updated
	// before olderThan, oldest first.
	ListUnsettled(ctx context.Context, olderThan time.Time, limit int) ([]model.Registration, error)
}

// Nop discards writes and finds nothing.
type Nop struct{}

var _ RegistrationRepository = Nop{}

func (Nop) Create(context.Context, *model.Registration) error { return nil }
func (Nop) MarkSubmitted(context.Context, string, string) error { return nil }
func (Nop) MarkConfirmed(context.Context, string, string, int64) error { return nil }
func (Nop) MarkAborted(context.Context, string, model.RegistrationState, string) error {
	return nil
}
func (Nop) MarkOrphaned(context.Context, string, string) error { return nil }
func (Nop) FindConfirmedByDocumentID(context.Context, string) (*model.Registration, error) {
	return nil, ErrNotFound
}
func (Nop) ListUnsettled(context.Context, time.Time, int) ([]model.Registration, error) {
	return nil, nil
}
