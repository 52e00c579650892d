package tbtcswap

import (
	"context"
	"errors"
	"fmt"

	"github.com/lightninglabs/tbtcswap/fsm"
	"github.com/lightninglabs/tbtcswap/swap"
	"github.com/lightninglabs/tbtcswap/swapdb"
)

// createHoldInvoiceAction creates a hold invoice for the swap hash that
// requests the target amount plus the operator fees, and records it.
func (s *LockSwap) createHoldInvoiceAction(ctx context.Context,
	_ fsm.EventContext) fsm.EventType {

	if s.Intent.Amount == nil {
		return s.HandleError(errors.New("no swap amount"))
	}

	// A swap that was already processed must not create another invoice.
	// The store's create-once guarantee below is what makes this safe
	// under concurrency, this check only avoids the network call.
	_, err := s.cfg.Store.FetchSwap(ctx, s.key)
	switch {
	case err == nil:
		return s.HandleError(ErrDuplicateSwapRecord)

	case !errors.Is(err, swapdb.ErrSwapNotFound):
		return s.HandleError(err)
	}

	satsToReceive, err := swap.NetworkAmount(
		s.cfg.Fees.Apply(s.Intent.Amount),
	)
	if err != nil {
		return s.HandleError(err)
	}

	memo := fmt.Sprintf("swap %v", swap.ShortHash(&s.Intent.Hash))
	invoice, err := s.cfg.Network.AddHoldInvoice(
		ctx, s.Intent.Hash, satsToReceive, memo,
	)
	if err != nil {
		return s.HandleError(fmt.Errorf("unable to add hold invoice: "+
			"%w", err))
	}

	err = s.cfg.Store.CreateSwap(ctx, &swapdb.SwapRecord{
		Key:     s.key,
		Type:    swap.TypeLock,
		Amount:  s.Intent.Amount,
		Invoice: invoice,
		State:   swapdb.StateInvoiceCreated,
	})
	if err != nil {
		return s.HandleError(err)
	}

	s.invoice = invoice

	s.log.Infof("Hold invoice for %v sat created", satsToReceive)

	return OnInvoiceCreated
}

// lockOnLedgerAction locks the tokens for the counterparty once their payment
// is held. The counterparty's htlcs are locked in, so the transaction is
// retried until it confirms or the retry policy is exhausted.
func (s *LockSwap) lockOnLedgerAction(ctx context.Context,
	_ fsm.EventContext) fsm.EventType {

	if !s.lockSubmitted.CompareAndSwap(false, true) {
		s.log.Warnf("Ledger lock already submitted")
		return fsm.NoOp
	}

	s.log.Infof("Hold invoice paid, locking tokens")

	err := s.cfg.Retry.retry(ctx, s.log, "ledger lock", func() error {
		return s.cfg.Ledger.LockForSwap(
			ctx, s.Intent.UserAddress, s.Intent.Hash,
		)
	})
	if err != nil {
		s.LastActionError = fmt.Errorf("%w: lock: %v",
			ErrOnChainSubmissionFailed, err)

		return OnFundsAtRisk
	}

	s.updateState(ctx, swapdb.StateLocked)

	return OnLocked
}

// settleInvoiceAction settles the held invoice with the preimage that the
// counterparty revealed when claiming the tokens. The preimage is public now,
// so settling is retried until it succeeds or the retry policy is exhausted.
func (s *LockSwap) settleInvoiceAction(ctx context.Context,
	eventCtx fsm.EventContext) fsm.EventType {

	reveal, ok := eventCtx.(*PreimageReveal)
	if !ok {
		s.LastActionError = fsm.ErrInvalidContextType
		return OnFundsAtRisk
	}

	err := s.cfg.Retry.retry(ctx, s.log, "invoice settlement", func() error {
		return s.cfg.Network.SettleInvoice(ctx, reveal.Preimage)
	})
	if err != nil {
		s.LastActionError = fmt.Errorf("%w: preimage %v: %v",
			ErrSettlementFailed, reveal.Preimage, err)

		return OnFundsAtRisk
	}

	return OnSettled
}

func (s *LockSwap) completedAction(ctx context.Context,
	_ fsm.EventContext) fsm.EventType {

	s.updateState(ctx, swapdb.StateSettled)
	s.cfg.Metrics.completed(swap.TypeLock)

	s.log.Infof("Lock swap completed")

	return fsm.NoOp
}

func (s *LockSwap) failedAction(ctx context.Context,
	eventCtx fsm.EventContext) fsm.EventType {

	if update, ok := eventCtx.(*InvoiceUpdate); ok &&
		update.State == InvoiceStateCanceled {

		s.LastActionError = errInvoiceCanceled
	}

	// A duplicate intent must not touch the record of the original swap.
	if s.invoice != "" {
		s.updateState(ctx, swapdb.StateFailed)
	}
	s.cfg.Metrics.failed(swap.TypeLock, s.LastActionError)

	s.log.Warnf("Lock swap aborted: %v", s.LastActionError)

	return fsm.NoOp
}

func (s *LockSwap) fundsAtRiskAction(ctx context.Context,
	eventCtx fsm.EventContext) fsm.EventType {

	if update, ok := eventCtx.(*InvoiceUpdate); ok &&
		update.State == InvoiceStateCanceled {

		s.LastActionError = fmt.Errorf("%w after tokens were locked",
			errInvoiceCanceled)
	}

	s.updateState(ctx, swapdb.StateFundsAtRisk)
	s.cfg.Metrics.atRisk(swap.TypeLock)

	s.cfg.Alerter.Alert(&Alert{
		Type:        swap.TypeLock,
		UserAddress: s.Intent.UserAddress,
		Hash:        s.Intent.Hash,
		Message:     s.LastActionError.Error(),
	})

	return fsm.NoOp
}

// updateState persists a state change, also after the swap's context was
// canceled. Failing to do so doesn't stop the swap, the ledger and the payment
// network are authoritative.
func (s *LockSwap) updateState(ctx context.Context, state swapdb.State) {
	err := s.cfg.Store.UpdateState(
		context.WithoutCancel(ctx), s.key, state,
	)
	if err != nil {
		s.log.Errorf("Unable to store state %v: %v", state, err)
	}
}
