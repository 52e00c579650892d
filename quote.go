package tbtcswap

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/ethereum/go-ethereum/common"
	"github.com/lightninglabs/tbtcswap/swap"
	"github.com/lightninglabs/tbtcswap/swapdb"
	"github.com/lightningnetwork/lnd/lntypes"
)

// Estimate is the cost of paying an invoice through a claim swap.
type Estimate struct {
	// Fee is the routing fee to the invoice destination.
	Fee btcutil.Amount `json:"fee"`

	// Delay is the minimum ledger lock time the operator requires for
	// the invoice.
	Delay uint64 `json:"delay"`
}

// Quoter answers the read only queries of counterparties. It never pays,
// locks or stores anything.
type Quoter struct {
	cfg *Config
}

// NewQuoter returns a new Quoter.
func NewQuoter(cfg *Config) *Quoter {
	return &Quoter{
		cfg: cfg,
	}
}

// EstimateClaim returns the routing fee and the required lock time of a claim
// swap that pays the given invoice.
func (q *Quoter) EstimateClaim(ctx context.Context,
	invoice string) (*Estimate, error) {

	parsed, err := q.cfg.Parser.ParseInvoice(invoice)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInvoice, err)
	}

	route, err := q.cfg.Router.FindRoute(ctx, parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRouteUnavailable, err)
	}

	policy := q.cfg.TimeoutPolicy
	if policy == (swap.TimeoutPolicy{}) {
		policy = swap.DefaultTimeoutPolicy
	}

	return &Estimate{
		Fee:   route.Fee,
		Delay: policy.MinimumLockDuration(route.TimeoutDelta),
	}, nil
}

// LookupInvoice returns the hold invoice that was generated for the lock swap
// of the given counterparty and payment hash.
func (q *Quoter) LookupInvoice(ctx context.Context, userAddress common.Address,
	hash lntypes.Hash) (string, error) {

	record, err := q.cfg.Store.FetchSwap(ctx, swapdb.Key{
		Address: userAddress,
		Hash:    hash,
	})
	if err != nil {
		return "", err
	}

	// Claim swaps store the counterparty's own invoice, which is none of
	// our business to hand out.
	if record.Type != swap.TypeLock || record.Invoice == "" {
		return "", ErrSwapNotFound
	}

	return record.Invoice, nil
}
