package tbtcswap

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/davecgh/go-spew/spew"
	"github.com/lightninglabs/tbtcswap/fsm"
	"github.com/lightninglabs/tbtcswap/swap"
	"github.com/lightninglabs/tbtcswap/swapdb"
)

// validateAction checks the claim intent against the invoice it carries,
// the route to the invoice destination and the operator's fee policy. No
// funds are at risk if any of the checks fails.
func (s *ClaimSwap) validateAction(ctx context.Context,
	_ fsm.EventContext) fsm.EventType {

	invoice, err := s.cfg.Parser.ParseInvoice(s.Intent.Invoice)
	if err != nil {
		return s.HandleError(fmt.Errorf("%w: %v", ErrInvalidInvoice,
			err))
	}

	if invoice.Hash != s.Intent.Hash {
		return s.HandleError(fmt.Errorf("%w: invoice hash %v doesn't "+
			"match swap", ErrInvalidInvoice, invoice.Hash))
	}

	// Paying an invoice without amount would let the counterparty choose
	// what we pay, so we reject it before even looking for a route.
	if !invoice.HasAmount() {
		return s.HandleError(ErrNoAmountRequested)
	}

	route, err := s.cfg.Router.FindRoute(ctx, invoice)
	if err != nil {
		return s.HandleError(fmt.Errorf("%w: %v", ErrRouteUnavailable,
			err))
	}
	s.log.Tracef("Found route: %v", spew.Sdump(route))

	err = checkLockTime(s.cfg.TimeoutPolicy, s.Intent.LockTime, route)
	if err != nil {
		return s.HandleError(err)
	}

	amountToPay, err := claimAmountToPay(s.cfg, s.Intent.Amount, route)
	if err != nil {
		return s.HandleError(err)
	}

	if err := checkInvoiceAmount(invoice, amountToPay); err != nil {
		return s.HandleError(err)
	}

	s.invoice = invoice
	s.route = route

	s.log.Infof("Claim swap validated: paying up to %v sat with %v sat "+
		"routing fee and timeout delta %v", amountToPay, route.Fee,
		route.TimeoutDelta)

	return OnValidated
}

// payInvoiceAction records the swap and pays the invoice along the route that
// was validated. The record is created first, so a duplicate intent can never
// cause a second payment.
func (s *ClaimSwap) payInvoiceAction(ctx context.Context,
	_ fsm.EventContext) fsm.EventType {

	err := s.cfg.Store.CreateSwap(ctx, &swapdb.SwapRecord{
		Key:     s.key,
		Type:    swap.TypeClaim,
		Amount:  s.Intent.Amount,
		Invoice: s.Intent.Invoice,
		State:   swapdb.StateInitiated,
	})
	if err != nil {
		return s.HandleError(err)
	}
	s.recordCreated = true

	preimage, err := s.cfg.Network.PayViaRoute(ctx, s.Intent.Hash, s.route)
	switch {
	// The payment definitely failed, nothing left the node.
	case errors.Is(err, ErrPaymentFailed):
		return s.HandleError(err)

	// We don't know whether the payment went through.
	case err != nil:
		s.LastActionError = fmt.Errorf("payment outcome unknown: %w",
			err)

		return OnFundsAtRisk
	}

	if preimage.Hash() != s.Intent.Hash {
		s.LastActionError = fmt.Errorf("payment returned preimage %v "+
			"not matching the swap hash", preimage)

		return OnFundsAtRisk
	}

	s.preimage = preimage
	s.updateState(ctx, swapdb.StatePaid)

	s.log.Infof("Invoice paid, preimage %v", preimage)

	return OnPaid
}

// claimOnLedgerAction reveals the preimage on the ledger. We paid the invoice
// already, so the claim is retried until it confirms or the retry policy is
// exhausted.
func (s *ClaimSwap) claimOnLedgerAction(ctx context.Context,
	_ fsm.EventContext) fsm.EventType {

	err := s.cfg.Retry.retry(ctx, s.log, "ledger claim", func() error {
		return s.cfg.Ledger.ClaimPayment(
			ctx, s.Intent.UserAddress, s.Intent.Hash, s.preimage,
		)
	})
	if err != nil {
		s.LastActionError = fmt.Errorf("%w: claim with preimage %v: %v",
			ErrOnChainSubmissionFailed, s.preimage, err)

		return OnFundsAtRisk
	}

	return OnClaimed
}

func (s *ClaimSwap) completedAction(ctx context.Context,
	_ fsm.EventContext) fsm.EventType {

	s.updateState(ctx, swapdb.StateClaimed)
	s.cfg.Metrics.completed(swap.TypeClaim)

	s.log.Infof("Claim swap completed")

	return fsm.NoOp
}

func (s *ClaimSwap) failedAction(ctx context.Context,
	_ fsm.EventContext) fsm.EventType {

	// A duplicate intent must not touch the record of the original swap.
	if s.recordCreated {
		s.updateState(ctx, swapdb.StateFailed)
	}
	s.cfg.Metrics.failed(swap.TypeClaim, s.LastActionError)

	s.log.Warnf("Claim swap aborted: %v", s.LastActionError)

	return fsm.NoOp
}

func (s *ClaimSwap) fundsAtRiskAction(ctx context.Context,
	_ fsm.EventContext) fsm.EventType {

	s.updateState(ctx, swapdb.StateFundsAtRisk)
	s.cfg.Metrics.atRisk(swap.TypeClaim)

	s.cfg.Alerter.Alert(&Alert{
		Type:        swap.TypeClaim,
		UserAddress: s.Intent.UserAddress,
		Hash:        s.Intent.Hash,
		Message:     s.LastActionError.Error(),
	})

	return fsm.NoOp
}

// updateState persists a state change, also after the swap's context was
// canceled. Failing to do so doesn't stop the swap, the ledger and the payment
// network are authoritative.
func (s *ClaimSwap) updateState(ctx context.Context, state swapdb.State) {
	err := s.cfg.Store.UpdateState(
		context.WithoutCancel(ctx), s.key, state,
	)
	if err != nil {
		s.log.Errorf("Unable to store state %v: %v", state, err)
	}
}

// checkLockTime fails if the ledger lock expires before the route to the
// invoice destination could time out, including the safety margin.
func checkLockTime(policy swap.TimeoutPolicy, lockTime *big.Int,
	route *Route) error {

	required := new(big.Int).SetUint64(
		policy.MinimumLockDuration(route.TimeoutDelta),
	)
	if lockTime == nil || lockTime.Cmp(required) < 0 {
		return fmt.Errorf("%w: lock time %v below required %v",
			ErrInsufficientLockTime, lockTime, required)
	}

	return nil
}

// claimAmountToPay returns the maximum invoice amount in network units that
// may be paid for the given locked ledger amount: the locked amount with the
// operator fees applied plus the routing fee.
func claimAmountToPay(cfg *Config, lockedAmount *big.Int,
	route *Route) (*big.Int, error) {

	if lockedAmount == nil {
		return nil, errors.New("no locked amount")
	}

	lockedSats, err := swap.LedgerToNetwork(
		lockedAmount, cfg.LedgerUnitsPerSat,
	)
	if err != nil {
		return nil, err
	}

	amountToPay := cfg.Fees.Apply(big.NewInt(int64(lockedSats)))

	return amountToPay.Add(amountToPay, big.NewInt(int64(route.Fee))), nil
}

// checkInvoiceAmount fails if the invoice requests more than the given amount
// in any of the units it specifies.
func checkInvoiceAmount(invoice *ParsedInvoice, amountToPay *big.Int) error {
	tooLarge := func(requested, limit *big.Int, unit string) error {
		if requested.Cmp(limit) > 0 {
			return fmt.Errorf("%w: invoice requests %v %s, at "+
				"most %v allowed", ErrAmountTooLarge,
				requested, unit, limit)
		}

		return nil
	}

	satsAmount := func(amt btcutil.Amount) *big.Int {
		return big.NewInt(int64(amt))
	}

	if invoice.Tokens != nil {
		err := tooLarge(satsAmount(*invoice.Tokens), amountToPay, "sat")
		if err != nil {
			return err
		}
	}

	if invoice.MilliTokens != nil {
		requested := new(big.Int).SetUint64(
			uint64(*invoice.MilliTokens),
		)
		limit := new(big.Int).Mul(amountToPay, big.NewInt(1000))

		if err := tooLarge(requested, limit, "msat"); err != nil {
			return err
		}
	}

	if invoice.SafeTokens != nil {
		err := tooLarge(
			satsAmount(*invoice.SafeTokens), amountToPay, "sat",
		)
		if err != nil {
			return err
		}
	}

	return nil
}
