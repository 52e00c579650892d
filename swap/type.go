package swap

// Type indicates the direction of a swap.
type Type uint8

const (
	// TypeClaim is a swap where the counterparty locked tokens on the
	// ledger and we pay their invoice to claim the locked tokens.
	TypeClaim Type = iota

	// TypeLock is a swap where the counterparty pays our hold invoice and
	// we lock tokens for them on the ledger.
	TypeLock
)

func (t Type) String() string {
	switch t {
	case TypeClaim:
		return "Claim"
	case TypeLock:
		return "Lock"
	default:
		return "Unknown"
	}
}
