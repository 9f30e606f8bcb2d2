// Package registry is the read/write client for the on-chain document registry.
//
// The contract maps content hashes to sequential ids and creation timestamps.
// Ids are assigned by the contract when a registration transaction is mined;
// this package never derives or guesses them. Writes are two-phase: Submit
// returns once the transaction is accepted into the pending pool and Confirm
// blocks until it is mined, then reads the assigned id back from the contract.
package registry

import (
	"context"
	"errors"
	"time"

	"docregistry/internal/hasher"
)

var (
	// ErrUnavailable marks provider or network failures. Callers may retry the whole operation.
	ErrUnavailable = errors.New("registry unavailable")
	// ErrRejected marks a reverted call or transaction, e.g. the hash is already registered.
	// Retrying with the same hash will not succeed.
	ErrRejected = errors.New("registry rejected transaction")
	// ErrIndeterminate marks a broadcast transaction whose outcome could not be observed.
	// It may still be mined later.
	ErrIndeterminate = errors.New("registry outcome indeterminate")
)

// Record is a registry entry as returned by getDoc.
// Exists is false for ids that were never assigned; that is not an error.
type Record struct {
	ID              uint64
	DocHash         hasher.Digest
	CreatedAtMillis int64
	Exists          bool
}

// Pending identifies a broadcast registration transaction awaiting confirmation.
type Pending struct {
	TxHash      string
	DocHash     hasher.Digest
	Nonce       uint64
	SubmittedAt time.Time
}

// Confirmation is the registry-assigned identity of a mined registration.
type Confirmation struct {
	ID              uint64
	CreatedAtMillis int64
	TxHash          string
	BlockNumber     uint64
}

// Registry is the contract surface consumed by the document services.
type Registry interface {
	// ExistsByHash reports whether hash is already registered.
	ExistsByHash(ctx context.Context, hash hasher.Digest) (bool, error)
	// RecordByID fetches a record; absence is reported through Record.Exists.
	RecordByID(ctx context.Context, id uint64) (Record, error)
	// IDByHash resolves a hash to its id. The contract's zero sentinel is reported as ok=false.
	IDByHash(ctx context.Context, hash hasher.Digest) (id uint64, ok bool, err error)
	// TotalCount returns the number of registered documents; ids run 1..TotalCount.
	TotalCount(ctx context.Context) (uint64, error)
	// Submit broadcasts a registration transaction for hash.
	Submit(ctx context.Context, hash hasher.Digest) (Pending, error)
	// Confirm waits for p to be mined and reads back the assigned id and timestamp.
	// Expiry of ctx while waiting yields ErrIndeterminate.
	Confirm(ctx context.Context, p Pending) (Confirmation, error)
}
