package tbtcswap

import (
	"errors"

	"github.com/lightninglabs/tbtcswap/swapdb"
)

var (
	// ErrInvalidInvoice is returned when an invoice can't be decoded or
	// its payment hash doesn't match the swap.
	ErrInvalidInvoice = errors.New("invalid invoice")

	// ErrNoAmountRequested is returned for invoices without an amount.
	ErrNoAmountRequested = errors.New("invoice requests no amount")

	// ErrAmountTooLarge is returned when an invoice requests more than
	// the locked amount plus fees.
	ErrAmountTooLarge = errors.New("invoice amount too large")

	// ErrInsufficientLockTime is returned when the ledger lock expires too
	// early for the route to the invoice destination.
	ErrInsufficientLockTime = errors.New("insufficient lock time")

	// ErrDuplicateSwapRecord is returned when a swap is processed twice.
	ErrDuplicateSwapRecord = swapdb.ErrDuplicateSwapRecord

	// ErrDuplicateInvoiceId is returned when the payment network already
	// has an invoice for a payment hash.
	ErrDuplicateInvoiceId = errors.New("duplicate invoice id")

	// ErrRouteUnavailable is returned when no route to the invoice
	// destination could be found.
	ErrRouteUnavailable = errors.New("route unavailable")

	// ErrPaymentFailed is returned when a payment definitely failed.
	ErrPaymentFailed = errors.New("payment failed")

	// ErrOnChainSubmissionFailed is returned when a ledger transaction
	// couldn't be confirmed.
	ErrOnChainSubmissionFailed = errors.New("ledger submission failed")

	// ErrSettlementFailed is returned when a hold invoice couldn't be
	// settled.
	ErrSettlementFailed = errors.New("invoice settlement failed")

	// ErrEventIgnored is returned for ledger events that are addressed to
	// another operator. It doesn't indicate a failure.
	ErrEventIgnored = errors.New("event ignored")

	// ErrSwapNotFound is returned when a looked up swap doesn't exist.
	ErrSwapNotFound = swapdb.ErrSwapNotFound
)

// failureReason returns a short label for the error kind of a failed swap.
func failureReason(err error) string {
	reasons := []struct {
		err   error
		label string
	}{
		{ErrInvalidInvoice, "invalid_invoice"},
		{ErrNoAmountRequested, "no_amount"},
		{ErrAmountTooLarge, "amount_too_large"},
		{ErrInsufficientLockTime, "insufficient_lock_time"},
		{ErrDuplicateSwapRecord, "duplicate_swap"},
		{ErrDuplicateInvoiceId, "duplicate_invoice"},
		{ErrRouteUnavailable, "route_unavailable"},
		{ErrPaymentFailed, "payment_failed"},
	}

	for _, reason := range reasons {
		if errors.Is(err, reason.err) {
			return reason.label
		}
	}

	return "other"
}
