package tbtcswap

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lightninglabs/tbtcswap/swap"
	"github.com/lightninglabs/tbtcswap/swapdb"
	"github.com/lightningnetwork/lnd/clock"
)

// Config contains the services and policy parameters of the swap executor.
type Config struct {
	// Operator is the ledger address of this operator. Events addressed
	// to other operators are ignored.
	Operator common.Address

	// Ledger is the smart contract ledger.
	Ledger Ledger

	// Network is the payment network node.
	Network PaymentNetwork

	// Router finds payment routes.
	Router Router

	// Parser decodes invoices.
	Parser InvoiceParser

	// Store keeps track of all swaps.
	Store swapdb.Store

	// Alerter is notified about swaps that put funds at risk.
	Alerter Alerter

	// Metrics collects swap statistics. It is optional.
	Metrics *Metrics

	// Clock is used for all timestamps.
	Clock clock.Clock

	// Fees is the fee policy of this operator.
	Fees *swap.FeePolicy

	// TimeoutPolicy derives the required ledger lock duration.
	TimeoutPolicy swap.TimeoutPolicy

	// LedgerUnitsPerSat is the scale of ledger amounts relative to
	// network units.
	LedgerUnitsPerSat *big.Int

	// Retry is the retry policy for operations after an irreversible
	// step.
	Retry RetryConfig
}

// validate checks that all required services are set.
func (c *Config) validate() error {
	switch {
	case c.Ledger == nil:
		return errors.New("ledger required")

	case c.Network == nil:
		return errors.New("payment network required")

	case c.Router == nil:
		return errors.New("router required")

	case c.Parser == nil:
		return errors.New("invoice parser required")

	case c.Store == nil:
		return errors.New("store required")

	case c.Alerter == nil:
		return errors.New("alerter required")

	case c.Clock == nil:
		return errors.New("clock required")

	case c.Fees == nil:
		return errors.New("fee policy required")

	case c.LedgerUnitsPerSat == nil || c.LedgerUnitsPerSat.Sign() <= 0:
		return errors.New("ledger units per sat must be positive")

	case c.Operator == (common.Address{}):
		return errors.New("operator address required")
	}

	return c.Fees.Validate()
}
