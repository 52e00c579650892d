package swapdb

// State indicates the current state of a swap. A single type is used for both
// swap directions.
type State uint8

const (
	// StateInitiated is the initial state of a swap. The swap event was
	// accepted and validated but nothing irreversible happened yet.
	StateInitiated State = 0

	// StateInvoiceCreated means that our hold invoice for a lock swap was
	// added to the payment network node.
	StateInvoiceCreated State = 1

	// StatePaid means that the counterparty's invoice of a claim swap was
	// paid and we know the preimage.
	StatePaid State = 2

	// StateLocked means that the hold invoice of a lock swap was held and
	// the ledger lock transaction was mined.
	StateLocked State = 3

	// StateClaimed is the final state of a successful claim swap, the
	// locked tokens were claimed with the preimage.
	StateClaimed State = 4

	// StateSettled is the final state of a successful lock swap, the hold
	// invoice was settled with the revealed preimage.
	StateSettled State = 5

	// StateFailed indicates that the swap was aborted before any funds
	// were put at risk.
	StateFailed State = 6

	// StateFundsAtRisk indicates that the swap couldn't complete after an
	// irreversible action on one side. Manual intervention is required.
	StateFundsAtRisk State = 7
)

// stage returns the position of the state in the swap life cycle. States
// can only move to a later stage.
func (s State) stage() int {
	switch s {
	case StateInitiated:
		return 0

	case StateInvoiceCreated:
		return 1

	case StatePaid, StateLocked:
		return 2

	default:
		return 3
	}
}

// IsFinal returns true if the swap is in a final state.
func (s State) IsFinal() bool {
	return s.stage() == 3
}

// CanTransitionTo returns true if a swap in this state may be moved to the
// next state. Re-applying the current state is allowed. A swap whose funds
// were at risk can still be completed, for example when a preimage reveal
// arrives after the escalation.
func (s State) CanTransitionTo(next State) bool {
	if s == next {
		return true
	}

	if s == StateFundsAtRisk {
		return next == StateClaimed || next == StateSettled
	}

	if s.IsFinal() {
		return false
	}

	return next.stage() > s.stage()
}

// String returns a string representation of the swap's state.
func (s State) String() string {
	switch s {
	case StateInitiated:
		return "Initiated"

	case StateInvoiceCreated:
		return "InvoiceCreated"

	case StatePaid:
		return "Paid"

	case StateLocked:
		return "Locked"

	case StateClaimed:
		return "Claimed"

	case StateSettled:
		return "Settled"

	case StateFailed:
		return "Failed"

	case StateFundsAtRisk:
		return "FundsAtRisk"

	default:
		return "Unknown"
	}
}
