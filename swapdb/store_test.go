package swapdb

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lightninglabs/tbtcswap/swap"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/stretchr/testify/require"
)

var (
	testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	testAddress = common.HexToAddress(
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
	)

	testPreimage = lntypes.Preimage{1, 2, 3}
)

// storeFactories returns a constructor for every backend that can be tested
// without external services.
func storeFactories() map[string]func(*testing.T, clock.Clock) Store {
	return map[string]func(*testing.T, clock.Clock) Store{
		"memory": func(_ *testing.T, c clock.Clock) Store {
			return NewMemoryStore(c)
		},
		"bolt": func(t *testing.T, c clock.Clock) Store {
			store, err := NewBoltStore(t.TempDir(), c)
			require.NoError(t, err)

			t.Cleanup(func() {
				require.NoError(t, store.Close())
			})

			return store
		},
		"sqlite": func(t *testing.T, c clock.Clock) Store {
			return NewTestSqliteDB(t, c)
		},
	}
}

func runStoreTest(t *testing.T, test func(*testing.T, Store,
	*clock.TestClock)) {

	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			testClock := clock.NewTestClock(testTime)
			test(t, factory(t, testClock), testClock)
		})
	}
}

func newTestRecord() *SwapRecord {
	return &SwapRecord{
		Key: Key{
			Address: testAddress,
			Hash:    testPreimage.Hash(),
		},
		Type:    swap.TypeLock,
		Amount:  big.NewInt(1_000_000_000),
		Invoice: "lnbcrt1invoice",
		State:   StateInvoiceCreated,
	}
}

// TestStoreCreateOnce asserts that a record can only be created once per key
// and that the stored invoice stays the one from the first call.
func TestStoreCreateOnce(t *testing.T) {
	runStoreTest(t, func(t *testing.T, store Store, _ *clock.TestClock) {
		ctx := context.Background()

		first := newTestRecord()
		require.NoError(t, store.CreateSwap(ctx, first))

		second := newTestRecord()
		second.Invoice = "lnbcrt1other"
		err := store.CreateSwap(ctx, second)
		require.ErrorIs(t, err, ErrDuplicateSwapRecord)

		record, err := store.FetchSwap(ctx, first.Key)
		require.NoError(t, err)
		require.Equal(t, first.Invoice, record.Invoice)
		require.Equal(t, first.Amount, record.Amount)
		require.Equal(t, first.Type, record.Type)
		require.Equal(t, StateInvoiceCreated, record.State)
		require.True(t, record.InitiationTime.Equal(testTime))

		// The same hash for another counterparty is a different key.
		other := newTestRecord()
		other.Address = common.HexToAddress("0x01")
		require.NoError(t, store.CreateSwap(ctx, other))

		swaps, err := store.FetchSwaps(ctx)
		require.NoError(t, err)
		require.Len(t, swaps, 2)
	})
}

// TestStoreConcurrentCreate asserts that exactly one of many concurrent
// creations for the same key succeeds.
func TestStoreConcurrentCreate(t *testing.T) {
	runStoreTest(t, func(t *testing.T, store Store, _ *clock.TestClock) {
		const attempts = 10

		var (
			wg         sync.WaitGroup
			succeeded  atomic.Int32
			duplicates atomic.Int32
		)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()

				err := store.CreateSwap(
					context.Background(), newTestRecord(),
				)
				switch {
				case err == nil:
					succeeded.Add(1)

				case errors.Is(err, ErrDuplicateSwapRecord):
					duplicates.Add(1)
				}
			}()
		}
		wg.Wait()

		require.EqualValues(t, 1, succeeded.Load())
		require.EqualValues(t, attempts-1, duplicates.Load())
	})
}

// TestStoreUpdateState asserts that states only move forward and that final
// states are never left.
func TestStoreUpdateState(t *testing.T) {
	runStoreTest(t, func(t *testing.T, store Store,
		testClock *clock.TestClock) {

		ctx := context.Background()
		record := newTestRecord()

		err := store.UpdateState(ctx, record.Key, StateLocked)
		require.ErrorIs(t, err, ErrSwapNotFound)

		require.NoError(t, store.CreateSwap(ctx, record))

		updateTime := testTime.Add(time.Minute)
		testClock.SetTime(updateTime)

		require.NoError(t, store.UpdateState(ctx, record.Key, StateLocked))

		err = store.UpdateState(ctx, record.Key, StateInvoiceCreated)
		require.ErrorIs(t, err, ErrStateRegression)

		require.NoError(t, store.UpdateState(ctx, record.Key, StateSettled))

		err = store.UpdateState(ctx, record.Key, StateFundsAtRisk)
		require.ErrorIs(t, err, ErrStateRegression)

		fetched, err := store.FetchSwap(ctx, record.Key)
		require.NoError(t, err)
		require.Equal(t, StateSettled, fetched.State)
		require.Equal(t, record.Invoice, fetched.Invoice)
		require.True(t, fetched.LastUpdate.Equal(updateTime))
	})
}

// TestStoreResolveFundsAtRisk asserts that a swap whose funds were at risk
// can still be completed, but not failed or reopened.
func TestStoreResolveFundsAtRisk(t *testing.T) {
	runStoreTest(t, func(t *testing.T, store Store, _ *clock.TestClock) {
		ctx := context.Background()
		record := newTestRecord()
		record.State = StateFundsAtRisk

		require.NoError(t, store.CreateSwap(ctx, record))

		err := store.UpdateState(ctx, record.Key, StateFailed)
		require.ErrorIs(t, err, ErrStateRegression)

		err = store.UpdateState(ctx, record.Key, StateLocked)
		require.ErrorIs(t, err, ErrStateRegression)

		require.NoError(t, store.UpdateState(ctx, record.Key, StateSettled))

		err = store.UpdateState(ctx, record.Key, StateFundsAtRisk)
		require.ErrorIs(t, err, ErrStateRegression)

		fetched, err := store.FetchSwap(ctx, record.Key)
		require.NoError(t, err)
		require.Equal(t, StateSettled, fetched.State)
	})
}

func TestStoreFetchMissing(t *testing.T) {
	runStoreTest(t, func(t *testing.T, store Store, _ *clock.TestClock) {
		_, err := store.FetchSwap(context.Background(), Key{})
		require.ErrorIs(t, err, ErrSwapNotFound)
	})
}

func TestStateTransitions(t *testing.T) {
	require.True(t, StateInitiated.CanTransitionTo(StatePaid))
	require.True(t, StatePaid.CanTransitionTo(StateClaimed))
	require.True(t, StatePaid.CanTransitionTo(StateFundsAtRisk))
	require.True(t, StateLocked.CanTransitionTo(StateLocked))
	require.False(t, StateLocked.CanTransitionTo(StateInvoiceCreated))
	require.False(t, StateFailed.CanTransitionTo(StateClaimed))
	require.False(t, StateClaimed.CanTransitionTo(StateFundsAtRisk))
	require.True(t, StateFundsAtRisk.CanTransitionTo(StateSettled))
	require.True(t, StateFundsAtRisk.CanTransitionTo(StateClaimed))
	require.False(t, StateFundsAtRisk.CanTransitionTo(StateFailed))

	require.False(t, StateLocked.IsFinal())
	require.True(t, StateFundsAtRisk.IsFinal())
}
