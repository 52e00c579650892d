package swapdb

import (
	"context"
	"sort"
	"sync"

	"github.com/lightningnetwork/lnd/clock"
)

// MemoryStore is a volatile Store implementation. All records are lost when
// the process exits.
type MemoryStore struct {
	clock clock.Clock

	swaps map[Key]*SwapRecord
	mu    sync.Mutex
}

// NewMemoryStore returns a new empty in-memory store.
func NewMemoryStore(clock clock.Clock) *MemoryStore {
	return &MemoryStore{
		clock: clock,
		swaps: make(map[Key]*SwapRecord),
	}
}

// CreateSwap atomically adds a new record to the store.
//
// NOTE: Part of the Store interface.
func (m *MemoryStore) CreateSwap(_ context.Context, swap *SwapRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.swaps[swap.Key]; ok {
		return ErrDuplicateSwapRecord
	}

	record := swap.copy()
	if record.InitiationTime.IsZero() {
		record.InitiationTime = m.clock.Now()
	}
	record.LastUpdate = record.InitiationTime

	m.swaps[swap.Key] = record

	return nil
}

// FetchSwap returns the record for the given key.
//
// NOTE: Part of the Store interface.
func (m *MemoryStore) FetchSwap(_ context.Context, key Key) (*SwapRecord,
	error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.swaps[key]
	if !ok {
		return nil, ErrSwapNotFound
	}

	return record.copy(), nil
}

// FetchSwaps returns all records ordered by initiation time.
//
// NOTE: Part of the Store interface.
func (m *MemoryStore) FetchSwaps(_ context.Context) ([]*SwapRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	swaps := make([]*SwapRecord, 0, len(m.swaps))
	for _, record := range m.swaps {
		swaps = append(swaps, record.copy())
	}

	sort.Slice(swaps, func(i, j int) bool {
		return swaps[i].InitiationTime.Before(swaps[j].InitiationTime)
	})

	return swaps, nil
}

// UpdateState moves the record for the given key to a new state.
//
// NOTE: Part of the Store interface.
func (m *MemoryStore) UpdateState(_ context.Context, key Key,
	state State) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.swaps[key]
	if !ok {
		return ErrSwapNotFound
	}

	if !record.State.CanTransitionTo(state) {
		return ErrStateRegression
	}

	record.State = state
	record.LastUpdate = m.clock.Now()

	return nil
}

// Close is a no-op for the in-memory store.
//
// NOTE: Part of the Store interface.
func (m *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
