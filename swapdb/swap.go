package swapdb

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lightninglabs/tbtcswap/swap"
	"github.com/lightningnetwork/lnd/lntypes"
)

// Key identifies a swap record. A counterparty may run many swaps, but never
// two with the same payment hash.
type Key struct {
	// Address is the ledger address of the counterparty.
	Address common.Address

	// Hash is the payment hash both legs of the swap are bound to.
	Hash lntypes.Hash
}

// String returns a human readable representation of the key.
func (k Key) String() string {
	return fmt.Sprintf("%v:%v", k.Address.Hex(), k.Hash)
}

// bytes returns the fixed size binary encoding of the key.
func (k Key) bytes() []byte {
	b := make([]byte, 0, common.AddressLength+lntypes.HashSize)
	b = append(b, k.Address.Bytes()...)

	return append(b, k.Hash[:]...)
}

// SwapRecord is the stored state of a single swap.
type SwapRecord struct {
	Key

	// Type is the direction of the swap.
	Type swap.Type

	// Amount is the ledger amount of the swap. For claim swaps this is the
	// amount locked by the counterparty, for lock swaps it is the amount
	// we lock for them.
	Amount *big.Int

	// Invoice is the invoice of the swap. It is the counterparty's invoice
	// for claim swaps and our generated hold invoice for lock swaps.
	Invoice string

	// State is the current state of the swap.
	State State

	// InitiationTime is the time at which the record was created.
	InitiationTime time.Time

	// LastUpdate is the time of the last state change.
	LastUpdate time.Time
}

// copy returns a deep copy of the record.
func (s *SwapRecord) copy() *SwapRecord {
	c := *s
	if s.Amount != nil {
		c.Amount = new(big.Int).Set(s.Amount)
	}

	return &c
}
