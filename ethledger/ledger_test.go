package ethledger

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
	"github.com/lightninglabs/tbtcswap/test"
	"github.com/stretchr/testify/require"
)

var (
	testContract = common.HexToAddress(
		"0x00000000000000000000000000000000000c0de5",
	)
	testUser     = test.Address(2)
	testOperator = test.Address(1)
	testPreimage = test.Preimage(5)
	testHash     = testPreimage.Hash()
)

// mockBackend implements the calls the bound contract makes. Calls to any
// other backend method panic.
type mockBackend struct {
	bind.ContractBackend

	sync.Mutex

	callResult []byte
	calls      []ethereum.CallMsg

	sent          []*types.Transaction
	receiptStatus uint64

	logs   chan<- types.Log
	subErr chan error
	subbed chan struct{}
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		receiptStatus: types.ReceiptStatusSuccessful,
		subErr:        make(chan error, 1),
		subbed:        make(chan struct{}, 1),
	}
}

func (m *mockBackend) CallContract(_ context.Context, msg ethereum.CallMsg,
	_ *big.Int) ([]byte, error) {

	m.Lock()
	defer m.Unlock()

	m.calls = append(m.calls, msg)

	return m.callResult, nil
}

func (m *mockBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header,
	error) {

	return &types.Header{Number: big.NewInt(100)}, nil
}

func (m *mockBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (m *mockBackend) PendingNonceAt(context.Context, common.Address) (uint64,
	error) {

	m.Lock()
	defer m.Unlock()

	return uint64(len(m.sent)), nil
}

func (m *mockBackend) SendTransaction(_ context.Context,
	tx *types.Transaction) error {

	m.Lock()
	defer m.Unlock()

	m.sent = append(m.sent, tx)

	return nil
}

func (m *mockBackend) TransactionReceipt(_ context.Context,
	hash common.Hash) (*types.Receipt, error) {

	return &types.Receipt{
		Status:      m.receiptStatus,
		TxHash:      hash,
		BlockNumber: big.NewInt(101),
	}, nil
}

func (m *mockBackend) CodeAt(context.Context, common.Address,
	*big.Int) ([]byte, error) {

	return []byte{1}, nil
}

func (m *mockBackend) SubscribeFilterLogs(_ context.Context,
	_ ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription,
	error) {

	m.logs = ch
	m.subbed <- struct{}{}

	return event.NewSubscription(func(quit <-chan struct{}) error {
		select {
		case <-quit:
			return nil

		case err := <-m.subErr:
			return err
		}
	}), nil
}

func newTestLedger(t *testing.T, backend *mockBackend) *Ledger {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	ledger, err := NewLedger(&Config{
		Backend:  backend,
		Contract: testContract,
		Key:      key,
		ChainID:  big.NewInt(1337),
		GasLimit: 200_000,
	})
	require.NoError(t, err)

	return ledger
}

// makeLog packs an event log the way the contract emits it.
func makeLog(t *testing.T, name string, operator common.Address,
	args ...interface{}) types.Log {

	ev := SwapsABI.Events[name]
	data, err := ev.Inputs.NonIndexed().Pack(args...)
	require.NoError(t, err)

	return types.Log{
		Address: testContract,
		Topics: []common.Hash{
			ev.ID,
			common.BytesToHash(testUser.Bytes()),
			common.BytesToHash(operator.Bytes()),
		},
		Data: data,
	}
}

func TestParseLogs(t *testing.T) {
	ledger := newTestLedger(t, newMockBackend())

	claimLog := makeLog(
		t, eventClaimIntent, testOperator, [32]byte(testHash),
		big.NewInt(1_000_000), big.NewInt(600), "lnbcrt1invoice",
	)
	claim, err := ledger.parseClaimIntent(claimLog)
	require.NoError(t, err)
	require.Equal(t, testUser, claim.UserAddress)
	require.Equal(t, testOperator, claim.Operator)
	require.Equal(t, testHash, claim.Hash)
	require.Zero(t, claim.Amount.Cmp(big.NewInt(1_000_000)))
	require.Zero(t, claim.LockTime.Cmp(big.NewInt(600)))
	require.Equal(t, "lnbcrt1invoice", claim.Invoice)

	lockLog := makeLog(
		t, eventLockIntent, testOperator, [32]byte(testHash),
		big.NewInt(5_000),
	)
	lock, err := ledger.parseLockIntent(lockLog)
	require.NoError(t, err)
	require.Equal(t, testUser, lock.UserAddress)
	require.Equal(t, testHash, lock.Hash)
	require.Zero(t, lock.Amount.Cmp(big.NewInt(5_000)))

	revealLog := makeLog(
		t, eventPreimageReveal, testOperator, [32]byte(testHash),
		[32]byte(testPreimage),
	)
	reveal, err := ledger.parsePreimageReveal(revealLog)
	require.NoError(t, err)
	require.Equal(t, testOperator, reveal.Operator)
	require.Equal(t, testPreimage, reveal.Preimage)

	// A log of another event doesn't parse.
	_, err = ledger.parseClaimIntent(lockLog)
	require.Error(t, err)
}

func TestSubscribeLockIntents(t *testing.T) {
	defer test.Guard(t)()

	backend := newMockBackend()
	ledger := newTestLedger(t, backend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	intents, errChan, err := ledger.SubscribeLockIntents(ctx)
	require.NoError(t, err)
	<-backend.subbed

	// Removed and malformed logs are skipped.
	removed := makeLog(
		t, eventLockIntent, testOperator, [32]byte(testHash),
		big.NewInt(1),
	)
	removed.Removed = true
	backend.logs <- removed

	backend.logs <- types.Log{
		Address: testContract,
		Topics:  []common.Hash{SwapsABI.Events[eventLockIntent].ID},
	}

	otherOperator := test.Address(9)
	backend.logs <- makeLog(
		t, eventLockIntent, otherOperator, [32]byte(testHash),
		big.NewInt(7),
	)

	select {
	case intent := <-intents:
		require.Equal(t, otherOperator, intent.Operator)
		require.Zero(t, intent.Amount.Cmp(big.NewInt(7)))

	case <-time.After(test.Timeout):
		t.Fatal("no lock intent")
	}

	subErr := errors.New("connection lost")
	backend.subErr <- subErr

	select {
	case err := <-errChan:
		require.ErrorIs(t, err, subErr)

	case <-time.After(test.Timeout):
		t.Fatal("no subscription error")
	}
}

func TestLedgerTransactions(t *testing.T) {
	backend := newMockBackend()
	ledger := newTestLedger(t, backend)
	ctx := context.Background()

	err := ledger.ClaimPayment(ctx, testUser, testHash, testPreimage)
	require.NoError(t, err)

	err = ledger.LockForSwap(ctx, testUser, testHash)
	require.NoError(t, err)

	require.Len(t, backend.sent, 2)

	claimData, err := SwapsABI.Pack(
		methodClaimPayment, testUser, [32]byte(testHash),
		[32]byte(testPreimage),
	)
	require.NoError(t, err)
	require.Equal(t, claimData, backend.sent[0].Data())
	require.Equal(t, testContract, *backend.sent[0].To())
	require.EqualValues(t, 0, backend.sent[0].Nonce())

	lockData, err := SwapsABI.Pack(
		methodLockForSwap, testUser, [32]byte(testHash),
	)
	require.NoError(t, err)
	require.Equal(t, lockData, backend.sent[1].Data())
	require.EqualValues(t, 1, backend.sent[1].Nonce())

	// The transactions are signed by the operator key.
	signer := types.LatestSignerForChainID(big.NewInt(1337))
	from, err := types.Sender(signer, backend.sent[0])
	require.NoError(t, err)
	require.Equal(t, ledger.Operator(), from)

	backend.receiptStatus = types.ReceiptStatusFailed
	err = ledger.LockForSwap(ctx, testUser, testHash)
	require.ErrorIs(t, err, ErrTxReverted)
}

func TestOperatorFees(t *testing.T) {
	backend := newMockBackend()
	ledger := newTestLedger(t, backend)

	result, err := SwapsABI.Methods[methodOperators].Outputs.Pack(
		big.NewInt(2_500), big.NewInt(10_000),
	)
	require.NoError(t, err)
	backend.callResult = result

	fees, err := ledger.OperatorFees(context.Background())
	require.NoError(t, err)
	require.Zero(t, fees.LinearFee.Cmp(big.NewInt(2_500)))
	require.Zero(t, fees.ConstantFee.Cmp(big.NewInt(10_000)))

	require.Len(t, backend.calls, 1)
	input, err := SwapsABI.Pack(methodOperators, ledger.Operator())
	require.NoError(t, err)
	require.Equal(t, input, backend.calls[0].Data)
}

func TestNewLedgerValidation(t *testing.T) {
	_, err := NewLedger(&Config{ChainID: big.NewInt(1)})
	require.Error(t, err)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	_, err = NewLedger(&Config{Key: key})
	require.Error(t, err)
}
