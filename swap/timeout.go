package swap

// TimeoutPolicy maps the timeout delta of a payment route to the minimum
// lock duration we require on the ledger before paying.
type TimeoutPolicy struct {
	// Multiplier is the lock duration required per block of route
	// timeout delta.
	Multiplier uint32 `long:"multiplier" description:"Required ledger lock duration per block of route timeout delta"`

	// Margin is a constant safety margin added on top.
	Margin uint32 `long:"margin" description:"Constant safety margin added to the required ledger lock duration"`
}

// DefaultTimeoutPolicy is the timeout policy used if none is configured.
var DefaultTimeoutPolicy = TimeoutPolicy{
	Multiplier: 4,
	Margin:     10,
}

// MinimumLockDuration returns the minimum ledger lock duration for a route
// with the given timeout delta. The result is non-decreasing in the delta.
func (p TimeoutPolicy) MinimumLockDuration(timeoutDelta uint32) uint64 {
	return uint64(timeoutDelta)*uint64(p.Multiplier) + uint64(p.Margin)
}
