package tbtcswap

import (
	"context"
	"fmt"

	"github.com/lightninglabs/tbtcswap/fsm"
	"github.com/lightninglabs/tbtcswap/swap"
	"github.com/lightninglabs/tbtcswap/swapdb"
	"github.com/lightningnetwork/lnd/lntypes"
)

// Claim swap states.
var (
	// ValidateClaim is the state where the claim intent is checked
	// against the operator's policy.
	ValidateClaim = fsm.StateType("ValidateClaim")

	// PayInvoice is the state where the counterparty's invoice is paid.
	PayInvoice = fsm.StateType("PayInvoice")

	// ClaimOnLedger is the state where the locked tokens are claimed with
	// the preimage.
	ClaimOnLedger = fsm.StateType("ClaimOnLedger")

	// ClaimCompleted is the final state of a successful claim swap.
	ClaimCompleted = fsm.StateType("ClaimCompleted")

	// ClaimFailed is the final state of a claim swap that was aborted
	// before any funds were at risk.
	ClaimFailed = fsm.StateType("ClaimFailed")

	// ClaimFundsAtRisk is the final state of a claim swap that paid the
	// invoice but couldn't claim the locked tokens.
	ClaimFundsAtRisk = fsm.StateType("ClaimFundsAtRisk")
)

// Events shared by both swap state machines.
var (
	// OnStart is sent to start a swap.
	OnStart = fsm.EventType("OnStart")

	// OnFundsAtRisk is returned by actions that failed after an
	// irreversible step.
	OnFundsAtRisk = fsm.EventType("OnFundsAtRisk")
)

// Claim swap events.
var (
	// OnValidated is returned when the intent passed all checks.
	OnValidated = fsm.EventType("OnValidated")

	// OnPaid is returned when the invoice was paid.
	OnPaid = fsm.EventType("OnPaid")

	// OnClaimed is returned when the claim transaction was confirmed.
	OnClaimed = fsm.EventType("OnClaimed")
)

// ClaimSwap is the state machine of a swap where the counterparty locked
// tokens on the ledger and the operator pays their invoice.
type ClaimSwap struct {
	*fsm.StateMachine

	cfg *Config

	// Intent is the ledger event that started the swap.
	Intent *ClaimIntent

	key swapdb.Key
	log *swap.PrefixLog

	invoice       *ParsedInvoice
	route         *Route
	preimage      lntypes.Preimage
	recordCreated bool
}

// NewClaimSwap creates the state machine for a claim intent.
func NewClaimSwap(cfg *Config, intent *ClaimIntent) *ClaimSwap {
	s := &ClaimSwap{
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
	}
	s.StateMachine = fsm.NewStateMachine(s.GetStates())
	s.ActionEntryFunc = s.logTransition

	return s
}

// GetStates returns the claim swap state machine.
func (s *ClaimSwap) GetStates() fsm.States {
	return fsm.States{
		fsm.Default: fsm.State{
			Transitions: fsm.Transitions{
				OnStart: ValidateClaim,
			},
		},
		ValidateClaim: fsm.State{
			Transitions: fsm.Transitions{
				OnValidated: PayInvoice,
				fsm.OnError: ClaimFailed,
			},
			Action: s.validateAction,
		},
		PayInvoice: fsm.State{
			Transitions: fsm.Transitions{
				OnPaid:        ClaimOnLedger,
				OnFundsAtRisk: ClaimFundsAtRisk,
				fsm.OnError:   ClaimFailed,
			},
			Action: s.payInvoiceAction,
		},
		ClaimOnLedger: fsm.State{
			Transitions: fsm.Transitions{
				OnClaimed:     ClaimCompleted,
				OnFundsAtRisk: ClaimFundsAtRisk,
			},
			Action: s.claimOnLedgerAction,
		},
		ClaimCompleted: fsm.State{
			Action: s.completedAction,
		},
		ClaimFailed: fsm.State{
			Action: s.failedAction,
		},
		ClaimFundsAtRisk: fsm.State{
			Action: s.fundsAtRiskAction,
		},
	}
}

// Run executes the claim swap to completion. It returns nil if the locked
// tokens were claimed and the error that ended the swap otherwise.
func (s *ClaimSwap) Run(ctx context.Context) error {
	s.cfg.Metrics.started(swap.TypeClaim)

	err := s.SendEvent(ctx, OnStart, nil)
	if err != nil {
		return err
	}

	switch state := s.CurrentState(); state {
	case ClaimCompleted:
		return nil

	case ClaimFailed, ClaimFundsAtRisk:
		return s.LastActionError

	default:
		return fmt.Errorf("claim swap stopped in state %v", state)
	}
}

func (s *ClaimSwap) logTransition(n fsm.Notification) {
	s.log.Debugf("%v -> %v on %v", n.PreviousState, n.NextState, n.Event)
}
