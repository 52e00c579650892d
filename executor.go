package tbtcswap

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lightninglabs/tbtcswap/swap"
	"github.com/lightninglabs/tbtcswap/swapdb"
	"github.com/lightningnetwork/lnd/lntypes"
	"golang.org/x/sync/errgroup"
)

// errStreamClosed is returned when the ledger closes an event stream.
var errStreamClosed = errors.New("event stream closed")

// Executor receives swap events from the ledger, filters those addressed to
// this operator and executes the corresponding swaps. Swaps run concurrently,
// each in its own goroutine.
type Executor struct {
	cfg *Config

	// lockSwaps holds the running lock swaps, keyed by payment hash, so
	// that preimage reveals can be routed to them.
	lockSwaps map[lntypes.Hash]*LockSwap
	lockMu    sync.Mutex

	wg sync.WaitGroup
}

// NewExecutor returns a new swap executor.
func NewExecutor(cfg *Config) (*Executor, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = DefaultRetryConfig
	}
	if cfg.TimeoutPolicy == (swap.TimeoutPolicy{}) {
		cfg.TimeoutPolicy = swap.DefaultTimeoutPolicy
	}

	return &Executor{
		cfg:       cfg,
		lockSwaps: make(map[lntypes.Hash]*LockSwap),
	}, nil
}

// Run subscribes to the ledger's event streams and handles events until the
// context is canceled. A failed stream is resubscribed under the retry policy.
// Swaps run on ctx, not on the streams. If a stream can't be resubscribed, Run
// returns its error while running swaps continue. The caller must then wait
// for them with WaitForFinished before it releases the services. If ctx is
// canceled, Run waits for all swaps to return and returns nil.
func (e *Executor) Run(ctx context.Context) error {
	log.Infof("Swap executor started for operator %v",
		e.cfg.Operator.Hex())

	g, streamCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runStream(
			streamCtx, e.cfg.Retry, "claim intents",
			e.cfg.Ledger.SubscribeClaimIntents,
			func(i *ClaimIntent) {
				e.goHandle(func() error {
					return e.HandleClaim(ctx, i)
				})
			},
		)
	})

	g.Go(func() error {
		return runStream(
			streamCtx, e.cfg.Retry, "lock intents",
			e.cfg.Ledger.SubscribeLockIntents,
			func(i *LockIntent) {
				e.goHandle(func() error {
					return e.HandleLock(ctx, i)
				})
			},
		)
	})

	g.Go(func() error {
		return runStream(
			streamCtx, e.cfg.Retry, "preimage reveals",
			e.cfg.Ledger.SubscribePreimageReveals,
			func(r *PreimageReveal) {
				e.goHandle(func() error {
					return e.HandleReveal(ctx, r)
				})
			},
		)
	})

	err := g.Wait()
	if ctx.Err() != nil {
		e.WaitForFinished()
		return nil
	}

	log.Errorf("Swap executor stopped dispatching events: %v", err)

	return err
}

// runStream is the worker of one ledger event stream. Every event is handed
// to handle without waiting for earlier events to complete. A stream that
// fails or is closed is resubscribed. runStream only returns if the context
// is canceled or resubscribing failed under the retry policy.
func runStream[T any](ctx context.Context, retry RetryConfig, name string,
	subscribe func(context.Context) (<-chan T, <-chan error, error),
	handle func(T)) error {

	for {
		subCtx, cancel := context.WithCancel(ctx)

		var (
			events  <-chan T
			errChan <-chan error
		)
		err := retry.retry(subCtx, log, "subscription to "+name,
			func() error {
				var err error
				events, errChan, err = subscribe(subCtx)

				return err
			},
		)
		if err != nil {
			cancel()

			if ctx.Err() != nil {
				return ctx.Err()
			}

			return fmt.Errorf("unable to subscribe to %v: %w", name,
				err)
		}

		err = consumeStream(subCtx, events, errChan, handle)
		cancel()

		if ctx.Err() != nil {
			return ctx.Err()
		}

		log.Warnf("Stream of %v failed, resubscribing: %v", name, err)
	}
}

// consumeStream dispatches the events of one subscription until it fails.
func consumeStream[T any](ctx context.Context, events <-chan T,
	errChan <-chan error, handle func(T)) error {

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return errStreamClosed
			}

			handle(event)

		case err := <-errChan:
			return err

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// goHandle runs an event handler in a new goroutine and logs its error.
func (e *Executor) goHandle(handle func() error) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		err := handle()
		switch {
		case err == nil, errors.Is(err, ErrEventIgnored),
			errors.Is(err, context.Canceled):

		default:
			log.Errorf("Swap error: %v", err)
		}
	}()
}

// filter returns ErrEventIgnored for events addressed to another operator.
func (e *Executor) filter(operator common.Address, event string) error {
	if operator == e.cfg.Operator {
		return nil
	}

	log.Tracef("Ignoring %v for operator %v", event, operator.Hex())
	e.cfg.Metrics.ignored(event)

	return ErrEventIgnored
}

// HandleClaim executes a claim swap to completion.
func (e *Executor) HandleClaim(ctx context.Context, intent *ClaimIntent) error {
	if err := e.filter(intent.Operator, "claim"); err != nil {
		return err
	}

	log.Infof("Claim intent %v from %v", intent.Hash,
		intent.UserAddress.Hex())

	return NewClaimSwap(e.cfg, intent).Run(ctx)
}

// HandleLock creates the hold invoice of a lock swap and returns once it is
// recorded. The rest of the swap runs in the background until it completes
// or the context is canceled.
func (e *Executor) HandleLock(ctx context.Context, intent *LockIntent) error {
	if err := e.filter(intent.Operator, "lock"); err != nil {
		return err
	}

	log.Infof("Lock intent %v from %v", intent.Hash,
		intent.UserAddress.Hex())

	lockSwap := NewLockSwap(e.cfg, intent)
	if err := lockSwap.Start(ctx); err != nil {
		return err
	}

	e.lockMu.Lock()
	e.lockSwaps[intent.Hash] = lockSwap
	e.lockMu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		defer func() {
			e.lockMu.Lock()
			delete(e.lockSwaps, intent.Hash)
			e.lockMu.Unlock()
		}()

		err := lockSwap.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			lockSwap.log.Errorf("Lock swap error: %v", err)
		}
	}()

	return nil
}

// HandleReveal routes a preimage reveal to the lock swap of the hash. If no
// such swap is running or it stopped before it took the reveal, the invoice
// is settled directly unless the swap is known to be settled already.
func (e *Executor) HandleReveal(ctx context.Context,
	reveal *PreimageReveal) error {

	if err := e.filter(reveal.Operator, "reveal"); err != nil {
		return err
	}

	if reveal.Preimage.Hash() != reveal.Hash {
		return fmt.Errorf("revealed preimage doesn't match hash %v",
			reveal.Hash)
	}

	e.lockMu.Lock()
	lockSwap, ok := e.lockSwaps[reveal.Hash]
	e.lockMu.Unlock()

	if ok && lockSwap.deliverReveal(ctx, reveal) {
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	return e.settleUntracked(ctx, reveal)
}

// settleUntracked settles the hold invoice of a lock swap that isn't run by
// this executor, for example because it was started before a restart.
func (e *Executor) settleUntracked(ctx context.Context,
	reveal *PreimageReveal) error {

	key := swapdb.Key{
		Address: reveal.UserAddress,
		Hash:    reveal.Hash,
	}

	record, err := e.cfg.Store.FetchSwap(ctx, key)
	switch {
	case err == nil && record.State == swapdb.StateSettled:
		log.Debugf("Swap %v already settled", reveal.Hash)
		return nil

	case err != nil && !errors.Is(err, swapdb.ErrSwapNotFound):
		return err
	}

	swapLog := &swap.PrefixLog{
		Logger: log,
		Hash:   reveal.Hash,
	}
	swapLog.Infof("Settling untracked hold invoice")

	err = e.cfg.Retry.retry(ctx, swapLog, "invoice settlement", func() error {
		return e.cfg.Network.SettleInvoice(ctx, reveal.Preimage)
	})
	if err != nil {
		err = fmt.Errorf("%w: preimage %v: %v", ErrSettlementFailed,
			reveal.Preimage, err)

		e.cfg.Metrics.atRisk(swap.TypeLock)
		e.cfg.Alerter.Alert(&Alert{
			Type:        swap.TypeLock,
			UserAddress: reveal.UserAddress,
			Hash:        reveal.Hash,
			Message:     err.Error(),
		})

		return err
	}

	// This also resolves a swap that was escalated because it stopped
	// before the reveal.
	if record != nil {
		if err := e.cfg.Store.UpdateState(
			context.WithoutCancel(ctx), key, swapdb.StateSettled,
		); err != nil {
			swapLog.Errorf("Unable to store settled state: %v", err)
		}
	}

	return nil
}

// WaitForFinished waits for all swap goroutines to return.
func (e *Executor) WaitForFinished() {
	e.wg.Wait()
}
