package ethledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/lightninglabs/tbtcswap"
	"github.com/lightninglabs/tbtcswap/swap"
	"github.com/lightningnetwork/lnd/lntypes"
)

var (
	// ErrTxReverted is returned when a swap transaction was mined but
	// reverted by the contract.
	ErrTxReverted = errors.New("transaction reverted")
)

// Backend is the chain connection the ledger needs. It is implemented by
// *ethclient.Client.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Config holds the dependencies of the ledger.
type Config struct {
	// Backend is the connection to the chain.
	Backend Backend

	// Contract is the address of the swap contract.
	Contract common.Address

	// Key is the operator's signing key. The operator address is derived
	// from it.
	Key *ecdsa.PrivateKey

	// ChainID is the id of the chain transactions are signed for.
	ChainID *big.Int

	// GasLimit is the gas limit of swap transactions. If zero, the gas
	// is estimated for each transaction.
	GasLimit uint64
}

// Ledger is the swap contract on an EVM chain.
type Ledger struct {
	cfg *Config

	operator common.Address
	contract *bind.BoundContract

	// txMu serializes transaction submission so that concurrent swaps
	// don't pick the same nonce.
	txMu sync.Mutex
}

// NewLedger returns a ledger bound to the contract in the config.
func NewLedger(cfg *Config) (*Ledger, error) {
	if cfg.Key == nil {
		return nil, errors.New("operator key not set")
	}
	if cfg.ChainID == nil {
		return nil, errors.New("chain id not set")
	}

	contract := bind.NewBoundContract(
		cfg.Contract, SwapsABI, cfg.Backend, cfg.Backend, cfg.Backend,
	)

	return &Ledger{
		cfg:      cfg,
		operator: crypto.PubkeyToAddress(cfg.Key.PublicKey),
		contract: contract,
	}, nil
}

// Operator returns the operator address derived from the signing key.
func (l *Ledger) Operator() common.Address {
	return l.operator
}

// SubscribeClaimIntents returns a stream of TBTC2LNSwapCreated events.
func (l *Ledger) SubscribeClaimIntents(ctx context.Context) (
	<-chan *tbtcswap.ClaimIntent, <-chan error, error) {

	return watch(ctx, l, eventClaimIntent, l.parseClaimIntent)
}

// SubscribeLockIntents returns a stream of LN2TBTCSwapCreated events.
func (l *Ledger) SubscribeLockIntents(ctx context.Context) (
	<-chan *tbtcswap.LockIntent, <-chan error, error) {

	return watch(ctx, l, eventLockIntent, l.parseLockIntent)
}

// SubscribePreimageReveals returns a stream of LN2TBTCPreimageRevealed
// events.
func (l *Ledger) SubscribePreimageReveals(ctx context.Context) (
	<-chan *tbtcswap.PreimageReveal, <-chan error, error) {

	return watch(ctx, l, eventPreimageReveal, l.parsePreimageReveal)
}

// watch subscribes to the logs of one contract event and converts them with
// parse. Logs removed by a reorg and logs that can't be parsed are skipped.
func watch[T any](ctx context.Context, l *Ledger, name string,
	parse func(types.Log) (T, error)) (<-chan T, <-chan error, error) {

	logs, sub, err := l.contract.WatchLogs(
		&bind.WatchOpts{Context: ctx}, name,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to watch %v: %w", name, err)
	}

	events := make(chan T)
	errChan := make(chan error, 1)

	go func() {
		defer sub.Unsubscribe()

		for {
			select {
			case lg := <-logs:
				if lg.Removed {
					log.Debugf("Skipping removed %v log in tx %v",
						name, lg.TxHash)

					continue
				}

				event, err := parse(lg)
				if err != nil {
					log.Warnf("Unable to parse %v log in tx "+
						"%v: %v", name, lg.TxHash, err)

					continue
				}

				select {
				case events <- event:
				case <-ctx.Done():
					return
				}

			case err := <-sub.Err():
				if err == nil {
					err = fmt.Errorf("%v subscription closed",
						name)
				}
				errChan <- err

				return

			case <-ctx.Done():
				return
			}
		}
	}()

	return events, errChan, nil
}

func (l *Ledger) parseClaimIntent(lg types.Log) (*tbtcswap.ClaimIntent,
	error) {

	var event claimIntentEvent
	if err := l.contract.UnpackLog(&event, eventClaimIntent, lg); err != nil {
		return nil, err
	}

	return &tbtcswap.ClaimIntent{
		UserAddress: event.UserAddress,
		Operator:    event.Operator,
		Hash:        event.PaymentHash,
		Amount:      event.Amount,
		LockTime:    event.LockTime,
		Invoice:     event.Invoice,
	}, nil
}

func (l *Ledger) parseLockIntent(lg types.Log) (*tbtcswap.LockIntent, error) {
	var event lockIntentEvent
	if err := l.contract.UnpackLog(&event, eventLockIntent, lg); err != nil {
		return nil, err
	}

	return &tbtcswap.LockIntent{
		UserAddress: event.UserAddress,
		Operator:    event.Operator,
		Hash:        event.PaymentHash,
		Amount:      event.TBTCAmount,
	}, nil
}

func (l *Ledger) parsePreimageReveal(lg types.Log) (*tbtcswap.PreimageReveal,
	error) {

	var event preimageRevealEvent
	err := l.contract.UnpackLog(&event, eventPreimageReveal, lg)
	if err != nil {
		return nil, err
	}

	return &tbtcswap.PreimageReveal{
		UserAddress: event.UserAddress,
		Operator:    event.Operator,
		Hash:        event.PaymentHash,
		Preimage:    event.Preimage,
	}, nil
}

// ClaimPayment calls operatorClaimPayment and waits for the transaction to be
// mined.
func (l *Ledger) ClaimPayment(ctx context.Context, userAddress common.Address,
	hash lntypes.Hash, preimage lntypes.Preimage) error {

	return l.transact(
		ctx, methodClaimPayment, userAddress, [32]byte(hash),
		[32]byte(preimage),
	)
}

// LockForSwap calls operatorLockTBTCForLN2TBTCSwap and waits for the
// transaction to be mined.
func (l *Ledger) LockForSwap(ctx context.Context, userAddress common.Address,
	hash lntypes.Hash) error {

	return l.transact(ctx, methodLockForSwap, userAddress, [32]byte(hash))
}

func (l *Ledger) transact(ctx context.Context, method string,
	params ...interface{}) error {

	opts, err := bind.NewKeyedTransactorWithChainID(
		l.cfg.Key, l.cfg.ChainID,
	)
	if err != nil {
		return err
	}
	opts.Context = ctx
	opts.GasLimit = l.cfg.GasLimit

	l.txMu.Lock()
	tx, err := l.contract.Transact(opts, method, params...)
	l.txMu.Unlock()
	if err != nil {
		return fmt.Errorf("%v: %w", method, err)
	}

	log.Debugf("Sent %v tx %v", method, tx.Hash())

	receipt, err := bind.WaitMined(ctx, l.cfg.Backend, tx)
	if err != nil {
		return fmt.Errorf("%v: unable to wait for tx %v: %w", method,
			tx.Hash(), err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%v tx %v: %w", method, tx.Hash(),
			ErrTxReverted)
	}

	log.Infof("%v tx %v mined in block %v", method, tx.Hash(),
		receipt.BlockNumber)

	return nil
}

// OperatorFees returns the fee policy the operator registered on the
// contract.
func (l *Ledger) OperatorFees(ctx context.Context) (*swap.FeePolicy, error) {
	var out []interface{}
	err := l.contract.Call(
		&bind.CallOpts{Context: ctx}, &out, methodOperators, l.operator,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch operator fees: %w", err)
	}

	if len(out) != 2 {
		return nil, fmt.Errorf("unexpected operators result: %v", out)
	}

	linearFee, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected linear fee type %T", out[0])
	}
	constantFee, ok := out[1].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected constant fee type %T",
			out[1])
	}

	fees := &swap.FeePolicy{
		ConstantFee: constantFee,
		LinearFee:   linearFee,
	}

	return fees, fees.Validate()
}

var _ tbtcswap.Ledger = (*Ledger)(nil)
