package tbtcswap

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/lightninglabs/tbtcswap/fsm"
	"github.com/lightninglabs/tbtcswap/swap"
	"github.com/lightninglabs/tbtcswap/swapdb"
	"github.com/lightningnetwork/lnd/queue"
)

// defaultInboxSize is the buffer size of a lock swap's event inbox.
const defaultInboxSize = 10

// Lock swap states.
var (
	// CreateHoldInvoice is the state where the hold invoice is created
	// and the swap is recorded.
	CreateHoldInvoice = fsm.StateType("CreateHoldInvoice")

	// WaitForHeld is the state where we wait for the counterparty to pay
	// the hold invoice.
	WaitForHeld = fsm.StateType("WaitForHeld")

	// LockOnLedger is the state where tokens are locked for the
	// counterparty.
	LockOnLedger = fsm.StateType("LockOnLedger")

	// WaitForPreimage is the state where we wait for the counterparty to
	// claim the locked tokens, revealing the preimage.
	WaitForPreimage = fsm.StateType("WaitForPreimage")

	// SettleInvoice is the state where the hold invoice is settled with
	// the revealed preimage.
	SettleInvoice = fsm.StateType("SettleInvoice")

	// LockCompleted is the final state of a successful lock swap.
	LockCompleted = fsm.StateType("LockCompleted")

	// LockFailed is the final state of a lock swap that was aborted
	// before any funds were at risk.
	LockFailed = fsm.StateType("LockFailed")

	// LockFundsAtRisk is the final state of a lock swap that couldn't
	// lock or settle after the invoice was held.
	LockFundsAtRisk = fsm.StateType("LockFundsAtRisk")
)

// Lock swap events.
var (
	// OnInvoiceCreated is returned when the hold invoice was created and
	// recorded.
	OnInvoiceCreated = fsm.EventType("OnInvoiceCreated")

	// OnInvoiceHeld is sent when the hold invoice is paid.
	OnInvoiceHeld = fsm.EventType("OnInvoiceHeld")

	// OnInvoiceCanceled is sent when the hold invoice was canceled.
	OnInvoiceCanceled = fsm.EventType("OnInvoiceCanceled")

	// OnLocked is returned when the lock transaction was confirmed.
	OnLocked = fsm.EventType("OnLocked")

	// OnPreimageRevealed is sent when the counterparty revealed the
	// preimage on the ledger.
	OnPreimageRevealed = fsm.EventType("OnPreimageRevealed")

	// OnSettled is returned when the hold invoice was settled.
	OnSettled = fsm.EventType("OnSettled")
)

var (
	errInvoiceCanceled = errors.New("hold invoice canceled")
)

// LockSwap is the state machine of a swap where the counterparty pays a hold
// invoice and the operator locks tokens for them on the ledger.
type LockSwap struct {
	*fsm.StateMachine

	cfg *Config

	// Intent is the ledger event that started the swap.
	Intent *LockIntent

	key swapdb.Key
	log *swap.PrefixLog

	invoice string

	// lockSubmitted guards the ledger lock so that it is submitted at
	// most once, no matter how often the held invoice is reported.
	lockSubmitted atomic.Bool

	// inbox serializes invoice updates and preimage reveals for the swap.
	inbox *queue.ConcurrentQueue

	// quit is closed when Run returns.
	quit chan struct{}
}

// NewLockSwap creates the state machine for a lock intent.
func NewLockSwap(cfg *Config, intent *LockIntent) *LockSwap {
	s := &LockSwap{
		cfg:    cfg,
		Intent: intent,
		key: swapdb.Key{
			Address: intent.UserAddress,
			Hash:    intent.Hash,
		},
		log: &swap.PrefixLog{
			Logger: log,
			Hash:   intent.Hash,
		},
		inbox: queue.NewConcurrentQueue(defaultInboxSize),
		quit:  make(chan struct{}),
	}
	s.StateMachine = fsm.NewStateMachine(s.GetStates())
	s.ActionEntryFunc = s.logTransition

	return s
}

// GetStates returns the lock swap state machine.
func (s *LockSwap) GetStates() fsm.States {
	return fsm.States{
		fsm.Default: fsm.State{
			Transitions: fsm.Transitions{
				OnStart: CreateHoldInvoice,
			},
		},
		CreateHoldInvoice: fsm.State{
			Transitions: fsm.Transitions{
				OnInvoiceCreated: WaitForHeld,
				fsm.OnError:      LockFailed,
			},
			Action: s.createHoldInvoiceAction,
		},
		WaitForHeld: fsm.State{
			Transitions: fsm.Transitions{
				OnInvoiceHeld:     LockOnLedger,
				OnInvoiceCanceled: LockFailed,
				fsm.OnError:       LockFailed,
			},
			Action: fsm.NoOpAction,
		},
		LockOnLedger: fsm.State{
			Transitions: fsm.Transitions{
				OnLocked:      WaitForPreimage,
				OnFundsAtRisk: LockFundsAtRisk,
			},
			Action: s.lockOnLedgerAction,
		},
		WaitForPreimage: fsm.State{
			Transitions: fsm.Transitions{
				OnPreimageRevealed: SettleInvoice,
				OnInvoiceCanceled:  LockFundsAtRisk,
				OnFundsAtRisk:      LockFundsAtRisk,
			},
			Action: fsm.NoOpAction,
		},
		SettleInvoice: fsm.State{
			Transitions: fsm.Transitions{
				OnSettled:     LockCompleted,
				OnFundsAtRisk: LockFundsAtRisk,
			},
			Action: s.settleInvoiceAction,
		},
		LockCompleted: fsm.State{
			Action: s.completedAction,
		},
		LockFailed: fsm.State{
			Action: s.failedAction,
		},
		LockFundsAtRisk: fsm.State{
			Action: s.fundsAtRiskAction,
		},
	}
}

// Start creates and records the hold invoice. It returns once the swap waits
// for the invoice to be paid, or with the error that aborted the swap.
func (s *LockSwap) Start(ctx context.Context) error {
	s.cfg.Metrics.started(swap.TypeLock)

	if err := s.SendEvent(ctx, OnStart, nil); err != nil {
		return err
	}

	if state := s.CurrentState(); state != WaitForHeld {
		if s.LastActionError != nil {
			return s.LastActionError
		}

		return fmt.Errorf("lock swap stopped in state %v", state)
	}

	return nil
}

// Invoice returns the generated hold invoice.
func (s *LockSwap) Invoice() string {
	return s.invoice
}

// Run subscribes to the hold invoice and processes invoice updates and
// preimage reveals until the swap reaches a final state. Start must have
// succeeded before.
func (s *LockSwap) Run(ctx context.Context) error {
	s.inbox.Start()
	defer s.inbox.Stop()
	defer close(s.quit)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates, errChan, err := s.cfg.Network.SubscribeInvoice(
		ctx, s.Intent.Hash,
	)
	if err != nil {
		s.LastActionError = fmt.Errorf("unable to subscribe to "+
			"invoice: %w", err)

		return s.SendEvent(ctx, fsm.OnError, nil)
	}

	// Forward invoice updates into the inbox so that they are processed
	// in order with preimage reveals.
	go func() {
		for {
			var item interface{}
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				item = update

			case err := <-errChan:
				item = err

			case <-ctx.Done():
				return
			}

			select {
			case s.inbox.ChanIn() <- item:
			case <-ctx.Done():
				return
			}

			if _, ok := item.(error); ok {
				return
			}
		}
	}()

	for {
		if s.isFinal() {
			return nil
		}

		select {
		case item := <-s.inbox.ChanOut():
			if err := s.handleInboxItem(ctx, item); err != nil {
				return err
			}

		case <-ctx.Done():
			return s.stop(ctx)
		}
	}
}

// stop ends a swap whose context was canceled before it reached a final
// state. Once the tokens are locked the held payment can only be settled
// with the preimage from the ledger, so such a swap is escalated.
func (s *LockSwap) stop(ctx context.Context) error {
	if s.CurrentState() != WaitForPreimage {
		return ctx.Err()
	}

	s.LastActionError = fmt.Errorf("stopped before preimage reveal: %w",
		ctx.Err())

	return s.SendEvent(context.WithoutCancel(ctx), OnFundsAtRisk, nil)
}

// deliverReveal queues a preimage reveal for the swap. It returns false if
// the swap stopped before the reveal could be queued.
func (s *LockSwap) deliverReveal(ctx context.Context,
	reveal *PreimageReveal) bool {

	select {
	case s.inbox.ChanIn() <- reveal:
		return true

	case <-s.quit:
		return false

	case <-ctx.Done():
		return false
	}
}

func (s *LockSwap) handleInboxItem(ctx context.Context,
	item interface{}) error {

	switch item := item.(type) {
	case InvoiceUpdate:
		return s.handleInvoiceUpdate(ctx, item)

	case *PreimageReveal:
		return s.handleReveal(ctx, item)

	case error:
		s.log.Errorf("Invoice subscription failed: %v", item)

		// Without a subscription we won't learn about the invoice
		// being paid. Once the tokens are locked the preimage reveal
		// on the ledger drives the swap, so only an unpaid swap is
		// aborted.
		if s.CurrentState() == WaitForHeld {
			s.LastActionError = fmt.Errorf("invoice subscription "+
				"failed: %w", item)

			return s.SendEvent(ctx, fsm.OnError, nil)
		}

		return nil

	default:
		return fmt.Errorf("unexpected inbox item %T", item)
	}
}

// handleInvoiceUpdate translates an invoice update into a state machine
// event. Updates that don't apply in the current state are dropped.
func (s *LockSwap) handleInvoiceUpdate(ctx context.Context,
	update InvoiceUpdate) error {

	var event fsm.EventType
	switch update.State {
	case InvoiceStateHeld:
		event = OnInvoiceHeld

	case InvoiceStateCanceled:
		event = OnInvoiceCanceled

	default:
		s.log.Debugf("Invoice %v", update.State)
		return nil
	}

	err := s.SendEvent(ctx, event, &update)
	if errors.Is(err, fsm.ErrEventRejected) {
		s.log.Debugf("Ignoring invoice update %v", update.State)
		return nil
	}

	return err
}

func (s *LockSwap) handleReveal(ctx context.Context,
	reveal *PreimageReveal) error {

	err := s.SendEvent(ctx, OnPreimageRevealed, reveal)
	if errors.Is(err, fsm.ErrEventRejected) {
		s.log.Warnf("Ignoring preimage reveal in state %v",
			s.CurrentState())

		return nil
	}

	return err
}

func (s *LockSwap) isFinal() bool {
	switch s.CurrentState() {
	case LockCompleted, LockFailed, LockFundsAtRisk:
		return true

	default:
		return false
	}
}

func (s *LockSwap) logTransition(n fsm.Notification) {
	s.log.Debugf("%v -> %v on %v", n.PreviousState, n.NextState, n.Event)
}
