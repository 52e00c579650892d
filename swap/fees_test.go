package swap

import (
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/require"
)

// TestComputeFee asserts that the fee is added on top of the amount using
// integer arithmetic with the linear part rounded down.
func TestComputeFee(t *testing.T) {
	tests := []struct {
		name     string
		amount   int64
		constant int64
		linear   int64
		expected int64
	}{
		{
			name:     "zero fees",
			amount:   100_000,
			expected: 100_000,
		},
		{
			name:     "constant only",
			amount:   100_000,
			constant: 10,
			expected: 100_010,
		},
		{
			name:     "linear only",
			amount:   1_000_000,
			linear:   1_000,
			expected: 1_001_000,
		},
		{
			name:     "linear rounds down",
			amount:   999,
			linear:   1_000,
			expected: 999,
		},
		{
			name:     "both",
			amount:   2_000_000,
			constant: 5,
			linear:   2_500,
			expected: 2_005_005,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			fee := ComputeFee(
				big.NewInt(test.amount), big.NewInt(test.constant),
				big.NewInt(test.linear),
			)
			require.Equal(t, test.expected, fee.Int64())
		})
	}
}

// TestComputeFeeMonotonic asserts that a larger amount never yields a smaller
// fee adjusted total.
func TestComputeFeeMonotonic(t *testing.T) {
	constant, linear := big.NewInt(7), big.NewInt(1_234)

	prev := ComputeFee(big.NewInt(0), constant, linear)
	for amt := int64(1); amt < 5_000; amt += 37 {
		cur := ComputeFee(big.NewInt(amt), constant, linear)
		require.True(t, cur.Cmp(prev) >= 0)
		require.True(t, cur.Int64() >= amt+7)

		prev = cur
	}
}

func TestFeePolicyValidate(t *testing.T) {
	require.NoError(t, NewFeePolicy(0, 0).Validate())
	require.NoError(t, NewFeePolicy(10, 100).Validate())
	require.ErrorIs(t, NewFeePolicy(-1, 0).Validate(), ErrNegativeFee)
	require.ErrorIs(t, NewFeePolicy(0, -1).Validate(), ErrNegativeFee)
	require.Error(t, (&FeePolicy{}).Validate())
}

func TestMinimumLockDuration(t *testing.T) {
	require.EqualValues(t, 10, DefaultTimeoutPolicy.MinimumLockDuration(0))
	require.EqualValues(t, 410, DefaultTimeoutPolicy.MinimumLockDuration(100))

	prev := DefaultTimeoutPolicy.MinimumLockDuration(0)
	for delta := uint32(1); delta < 2_000; delta++ {
		cur := DefaultTimeoutPolicy.MinimumLockDuration(delta)
		require.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
}

func TestLedgerToNetwork(t *testing.T) {
	scale := big.NewInt(DefaultLedgerUnitsPerSat)

	amt, err := LedgerToNetwork(
		new(big.Int).Mul(big.NewInt(12_345), scale), scale,
	)
	require.NoError(t, err)
	require.Equal(t, btcutil.Amount(12_345), amt)

	// Sub satoshi remainders are dropped.
	amt, err = LedgerToNetwork(big.NewInt(DefaultLedgerUnitsPerSat-1), scale)
	require.NoError(t, err)
	require.Zero(t, amt)

	_, err = LedgerToNetwork(big.NewInt(-1), scale)
	require.ErrorIs(t, err, ErrAmountOutOfRange)

	huge := new(big.Int).Lsh(big.NewInt(1), 200)
	_, err = LedgerToNetwork(huge, scale)
	require.ErrorIs(t, err, ErrAmountOutOfRange)
}
