package ethledger

import (
	_ "embed"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const (
	eventClaimIntent    = "TBTC2LNSwapCreated"
	eventLockIntent     = "LN2TBTCSwapCreated"
	eventPreimageReveal = "LN2TBTCPreimageRevealed"

	methodClaimPayment = "operatorClaimPayment"
	methodLockForSwap  = "operatorLockTBTCForLN2TBTCSwap"
	methodOperators    = "operators"
)

//go:embed swaps.abi.json
var swapsABIJSON string

// SwapsABI is the ABI of the swap contract subset the operator uses.
var SwapsABI = mustParseABI(swapsABIJSON)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}

	return parsed
}

// claimIntentEvent is an unpacked TBTC2LNSwapCreated log.
type claimIntentEvent struct {
	UserAddress common.Address
	Operator    common.Address
	PaymentHash [32]byte
	Amount      *big.Int
	LockTime    *big.Int
	Invoice     string
}

// lockIntentEvent is an unpacked LN2TBTCSwapCreated log.
type lockIntentEvent struct {
	UserAddress common.Address
	Operator    common.Address
	PaymentHash [32]byte
	TBTCAmount  *big.Int
}

// preimageRevealEvent is an unpacked LN2TBTCPreimageRevealed log.
type preimageRevealEvent struct {
	UserAddress common.Address
	Operator    common.Address
	PaymentHash [32]byte
	Preimage    [32]byte
}
