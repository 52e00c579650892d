package swap

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/btcsuite/btcd/btcutil"
)

const (
	// FeeRateTotalParts defines the granularity of the linear fee rate.
	// The ledger denominates the linear fee in parts per million of the
	// swapped amount, and we use the same fixed point arithmetic here.
	FeeRateTotalParts = 1e6

	// DefaultLedgerUnitsPerSat is the scale between the smallest unit of
	// the 18 decimal ledger token and a satoshi.
	DefaultLedgerUnitsPerSat = 1e10
)

var (
	// ErrNegativeFee is returned when a fee parameter is negative.
	ErrNegativeFee = errors.New("fee parameters must not be negative")

	// ErrAmountOutOfRange is returned when a ledger amount can't be
	// expressed in network units.
	ErrAmountOutOfRange = errors.New("amount out of range")

	feeRateTotalParts = big.NewInt(FeeRateTotalParts)
)

// FeePolicy holds the per operator fee parameters as they are registered on
// the ledger.
type FeePolicy struct {
	// ConstantFee is added to every swap amount.
	ConstantFee *big.Int

	// LinearFee is the proportional fee in parts per million.
	LinearFee *big.Int
}

// NewFeePolicy returns a fee policy for the given parameters.
func NewFeePolicy(constantFee, linearFee int64) *FeePolicy {
	return &FeePolicy{
		ConstantFee: big.NewInt(constantFee),
		LinearFee:   big.NewInt(linearFee),
	}
}

// Validate checks that both fee parameters are set and not negative.
func (f *FeePolicy) Validate() error {
	if f.ConstantFee == nil || f.LinearFee == nil {
		return errors.New("fee parameters not set")
	}

	if f.ConstantFee.Sign() < 0 || f.LinearFee.Sign() < 0 {
		return ErrNegativeFee
	}

	return nil
}

// Apply returns the amount increased by the operator fee.
func (f *FeePolicy) Apply(amount *big.Int) *big.Int {
	return ComputeFee(amount, f.ConstantFee, f.LinearFee)
}

// String returns a human readable representation of the fee policy.
func (f *FeePolicy) String() string {
	return fmt.Sprintf("constant=%v, linear=%v ppm", f.ConstantFee,
		f.LinearFee)
}

// ComputeFee returns the amount increased by the constant fee and by the
// linear fee applied to the amount. Only integer arithmetic is used, the
// linear part is rounded down.
func ComputeFee(amount, constantFee, linearFee *big.Int) *big.Int {
	linear := new(big.Int).Mul(amount, linearFee)
	linear.Quo(linear, feeRateTotalParts)

	total := new(big.Int).Add(amount, constantFee)

	return total.Add(total, linear)
}

// LedgerToNetwork converts a ledger token amount to satoshis, rounding down.
func LedgerToNetwork(amount, unitsPerSat *big.Int) (btcutil.Amount, error) {
	if amount.Sign() < 0 || unitsPerSat.Sign() <= 0 {
		return 0, ErrAmountOutOfRange
	}

	sats := new(big.Int).Quo(amount, unitsPerSat)
	if !sats.IsInt64() {
		return 0, ErrAmountOutOfRange
	}

	return btcutil.Amount(sats.Int64()), nil
}

// NetworkAmount converts a fee adjusted amount that is denominated in
// satoshis to a btcutil.Amount.
func NetworkAmount(amount *big.Int) (btcutil.Amount, error) {
	if amount.Sign() < 0 || !amount.IsInt64() ||
		amount.Int64() > math.MaxInt64/1000 {

		return 0, ErrAmountOutOfRange
	}

	return btcutil.Amount(amount.Int64()), nil
}
