package swapdb

import (
	"context"
	"errors"
)

var (
	// ErrDuplicateSwapRecord is returned when a record for a key that is
	// already present in the store is created. It signals that the same
	// swap event was processed twice.
	ErrDuplicateSwapRecord = errors.New("duplicate swap record")

	// ErrSwapNotFound is returned when no record exists for a key.
	ErrSwapNotFound = errors.New("swap not found")

	// ErrStateRegression is returned when a state update would move a
	// swap backwards or out of a final state.
	ErrStateRegression = errors.New("swap state regression")
)

// Store is the swap record store used by the swap executor. Records are
// created exactly once per key and only their state may change afterwards.
type Store interface {
	// CreateSwap atomically adds a new record to the store. If a record
	// with the same key already exists ErrDuplicateSwapRecord is returned
	// and the existing record is left untouched.
	CreateSwap(ctx context.Context, swap *SwapRecord) error

	// FetchSwap returns the record for the given key.
	FetchSwap(ctx context.Context, key Key) (*SwapRecord, error)

	// FetchSwaps returns all records currently in the store.
	FetchSwaps(ctx context.Context) ([]*SwapRecord, error)

	// UpdateState moves the record for the given key to a new state.
	UpdateState(ctx context.Context, key Key, state State) error

	// Close closes the underlying database.
	Close() error
}
