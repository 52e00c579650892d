package tbtcswap

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightninglabs/tbtcswap/swap"
	"github.com/lightninglabs/tbtcswap/swapdb"
	"github.com/stretchr/testify/require"
)

// TestEstimateClaim asserts that the estimate reports the routing fee and the
// lock time required for the route without paying anything.
func TestEstimateClaim(t *testing.T) {
	ctx := newTestContext(t)
	ctx.router.route.Fee = 3
	quoter := NewQuoter(ctx.cfg)

	invoice := ctx.addInvoice(&ParsedInvoice{
		Hash:   testHash,
		Tokens: sats(100),
	})

	estimate, err := quoter.EstimateClaim(context.Background(), invoice)
	require.NoError(t, err)
	require.Equal(t, &Estimate{
		Fee:   btcutil.Amount(3),
		Delay: 50,
	}, estimate)
	require.Zero(t, ctx.network.paymentCount())

	_, err = quoter.EstimateClaim(context.Background(), "garbage")
	require.ErrorIs(t, err, ErrInvalidInvoice)

	ctx.router.err = errors.New("no path")
	_, err = quoter.EstimateClaim(context.Background(), invoice)
	require.ErrorIs(t, err, ErrRouteUnavailable)
}

// TestLookupInvoice asserts that only generated hold invoices are returned.
func TestLookupInvoice(t *testing.T) {
	ctx := newTestContext(t)
	quoter := NewQuoter(ctx.cfg)

	_, err := quoter.LookupInvoice(context.Background(), testUser, testHash)
	require.ErrorIs(t, err, ErrSwapNotFound)

	lockSwap := NewLockSwap(ctx.cfg, newLockIntent())
	require.NoError(t, lockSwap.Start(context.Background()))

	invoice, err := quoter.LookupInvoice(
		context.Background(), testUser, testHash,
	)
	require.NoError(t, err)
	require.Equal(t, lockSwap.Invoice(), invoice)

	// The invoice of another user's swap isn't found under our address.
	_, err = quoter.LookupInvoice(context.Background(), otherUser, testHash)
	require.ErrorIs(t, err, ErrSwapNotFound)

	// Claim swaps don't expose the counterparty's invoice.
	claimKey := swapdb.Key{
		Address: otherUser,
		Hash:    testHash,
	}
	err = ctx.store.CreateSwap(context.Background(), &swapdb.SwapRecord{
		Key:     claimKey,
		Type:    swap.TypeClaim,
		Amount:  big.NewInt(1),
		Invoice: "lnbcrt1",
	})
	require.NoError(t, err)

	_, err = quoter.LookupInvoice(context.Background(), otherUser, testHash)
	require.ErrorIs(t, err, ErrSwapNotFound)
}
