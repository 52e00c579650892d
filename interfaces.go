package tbtcswap

import (
	"context"
	"math/big"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/ethereum/go-ethereum/common"
	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/lightningnetwork/lnd/routing/route"
)

// ClaimIntent is emitted by the ledger when a counterparty locked tokens and
// asks the operator to pay an invoice in exchange for them.
type ClaimIntent struct {
	// UserAddress is the ledger address of the counterparty.
	UserAddress common.Address

	// Operator is the operator the intent is addressed to.
	Operator common.Address

	// Hash is the payment hash the locked tokens are bound to.
	Hash lntypes.Hash

	// Amount is the locked amount in ledger units.
	Amount *big.Int

	// LockTime is the duration the tokens stay locked before the
	// counterparty can reclaim them.
	LockTime *big.Int

	// Invoice is the encoded invoice the operator is asked to pay.
	Invoice string
}

// LockIntent is emitted by the ledger when a counterparty wants to pay on the
// payment network in exchange for tokens locked by the operator.
type LockIntent struct {
	// UserAddress is the ledger address of the counterparty.
	UserAddress common.Address

	// Operator is the operator the intent is addressed to.
	Operator common.Address

	// Hash is the payment hash of the hold invoice to create.
	Hash lntypes.Hash

	// Amount is the amount the counterparty wants to receive. It is
	// denominated in network units as registered by the ledger.
	Amount *big.Int
}

// PreimageReveal is emitted by the ledger when the counterparty of a lock swap
// claimed the locked tokens and thereby revealed the preimage.
type PreimageReveal struct {
	// UserAddress is the ledger address of the counterparty.
	UserAddress common.Address

	// Operator is the operator the reveal is addressed to.
	Operator common.Address

	// Hash is the payment hash of the swap.
	Hash lntypes.Hash

	// Preimage is the revealed secret.
	Preimage lntypes.Preimage
}

// ParsedInvoice is a decoded invoice. At most one of the amount fields is
// set, none of them being set means that no amount is requested.
type ParsedInvoice struct {
	// PaymentRequest is the encoded invoice.
	PaymentRequest string

	// Hash is the payment hash of the invoice.
	Hash lntypes.Hash

	// Destination is the node the invoice pays to.
	Destination route.Vertex

	// Tokens is the requested amount in whole network units.
	Tokens *btcutil.Amount

	// MilliTokens is the requested amount in milli units.
	MilliTokens *lnwire.MilliSatoshi

	// SafeTokens is the requested amount in whole network units, rounded
	// up from a milli unit amount.
	SafeTokens *btcutil.Amount

	// CltvExpiry is the final cltv delta requested by the invoice.
	CltvExpiry uint64
}

// HasAmount returns true if the invoice requests an amount in any unit.
func (p *ParsedInvoice) HasAmount() bool {
	return p.Tokens != nil || p.MilliTokens != nil || p.SafeTokens != nil
}

// Route is a concrete payment route for one specific invoice.
type Route struct {
	// Path is the route as it is handed to the payment network.
	Path *lnrpc.Route

	// Fee is the total routing fee, rounded up to whole network units.
	Fee btcutil.Amount

	// TimeoutDelta is the number of blocks until the route's htlc expires.
	TimeoutDelta uint32
}

// InvoiceState is the state of a hold invoice.
type InvoiceState uint8

const (
	// InvoiceStateOpen means that the invoice wasn't paid yet.
	InvoiceStateOpen InvoiceState = iota

	// InvoiceStateHeld means that the payer's htlcs are locked in and
	// the invoice can be settled with the preimage.
	InvoiceStateHeld

	// InvoiceStateSettled means that the invoice was settled.
	InvoiceStateSettled

	// InvoiceStateCanceled means that the invoice was canceled or
	// expired.
	InvoiceStateCanceled
)

func (s InvoiceState) String() string {
	switch s {
	case InvoiceStateOpen:
		return "Open"
	case InvoiceStateHeld:
		return "Held"
	case InvoiceStateSettled:
		return "Settled"
	case InvoiceStateCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// InvoiceUpdate is a state change of a hold invoice.
type InvoiceUpdate struct {
	// Hash is the payment hash of the invoice.
	Hash lntypes.Hash

	// State is the new state of the invoice.
	State InvoiceState

	// AmountPaid is the amount of the accepted htlcs.
	AmountPaid btcutil.Amount
}

// Ledger is the smart contract ledger the swaps are coordinated on.
type Ledger interface {
	// SubscribeClaimIntents returns a stream of new claim intents.
	SubscribeClaimIntents(ctx context.Context) (<-chan *ClaimIntent,
		<-chan error, error)

	// SubscribeLockIntents returns a stream of new lock intents.
	SubscribeLockIntents(ctx context.Context) (<-chan *LockIntent,
		<-chan error, error)

	// SubscribePreimageReveals returns a stream of revealed preimages.
	SubscribePreimageReveals(ctx context.Context) (<-chan *PreimageReveal,
		<-chan error, error)

	// ClaimPayment claims the tokens the counterparty locked by revealing
	// the preimage. It returns once the transaction is confirmed.
	ClaimPayment(ctx context.Context, userAddress common.Address,
		hash lntypes.Hash, preimage lntypes.Preimage) error

	// LockForSwap locks tokens for the counterparty of a lock swap. It
	// returns once the transaction is confirmed.
	LockForSwap(ctx context.Context, userAddress common.Address,
		hash lntypes.Hash) error
}

// PaymentNetwork is the payment channel network node of the operator.
type PaymentNetwork interface {
	// PayViaRoute pays an invoice along exactly the given route and
	// returns the preimage. A payment that definitely failed returns an
	// error wrapping ErrPaymentFailed.
	PayViaRoute(ctx context.Context, hash lntypes.Hash,
		route *Route) (lntypes.Preimage, error)

	// AddHoldInvoice creates a hold invoice for the given hash. If an
	// invoice with that hash exists, ErrDuplicateInvoiceId is returned.
	AddHoldInvoice(ctx context.Context, hash lntypes.Hash,
		amount btcutil.Amount, memo string) (string, error)

	// SubscribeInvoice returns a stream of state updates of the invoice
	// with the given hash.
	SubscribeInvoice(ctx context.Context, hash lntypes.Hash) (
		<-chan InvoiceUpdate, <-chan error, error)

	// SettleInvoice settles the held invoice that belongs to the
	// preimage.
	SettleInvoice(ctx context.Context, preimage lntypes.Preimage) error
}

// Router finds routes for invoices.
type Router interface {
	// FindRoute returns a route that pays the given invoice.
	FindRoute(ctx context.Context, invoice *ParsedInvoice) (*Route, error)
}

// InvoiceParser decodes invoices.
type InvoiceParser interface {
	// ParseInvoice decodes an encoded invoice.
	ParseInvoice(invoice string) (*ParsedInvoice, error)
}
