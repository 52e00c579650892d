package tbtcswap

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/ethereum/go-ethereum/common"
	"github.com/lightninglabs/tbtcswap/swap"
	"github.com/lightninglabs/tbtcswap/swapdb"
	"github.com/lightninglabs/tbtcswap/test"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/stretchr/testify/require"
)

var (
	testOperator = test.Address(1)
	testUser     = test.Address(2)
	otherUser    = test.Address(3)

	testPreimage = test.Preimage(7)
	testHash     = testPreimage.Hash()

	testTime = time.Unix(1700000000, 0)
)

// ledgerCall is a transaction submitted to the ledger mock.
type ledgerCall struct {
	userAddress common.Address
	hash        lntypes.Hash
	preimage    lntypes.Preimage
}

// ledgerMock is a Ledger that records submitted transactions and lets tests
// inject events and failures.
type ledgerMock struct {
	claimIntents chan *ClaimIntent
	lockIntents  chan *LockIntent
	reveals      chan *PreimageReveal
	streamErrs   chan error

	// claimSubscribeErr fails claim intent subscriptions if set.
	claimSubscribeErr error

	// claimSubscriptions receives a value for every successful claim
	// intent subscription.
	claimSubscriptions chan struct{}

	// claimErr and lockErr return the result of the n-th attempt of a
	// claim or lock, starting at 1. They are called without holding mu.
	claimErr func(attempt int) error
	lockErr  func(attempt int) error

	claims []ledgerCall
	locks  []ledgerCall
	mu     sync.Mutex

	lockChan chan ledgerCall
}

func newLedgerMock() *ledgerMock {
	return &ledgerMock{
		claimIntents: make(chan *ClaimIntent),
		lockIntents:  make(chan *LockIntent),
		reveals:      make(chan *PreimageReveal),
		streamErrs:   make(chan error, 1),
		lockChan:     make(chan ledgerCall, 10),

		claimSubscriptions: make(chan struct{}, 10),
	}
}

func (l *ledgerMock) SubscribeClaimIntents(_ context.Context) (
	<-chan *ClaimIntent, <-chan error, error) {

	l.mu.Lock()
	err := l.claimSubscribeErr
	l.mu.Unlock()

	if err != nil {
		return nil, nil, err
	}

	l.claimSubscriptions <- struct{}{}

	return l.claimIntents, l.streamErrs, nil
}

// failClaimSubscriptions makes all further claim intent subscriptions fail.
func (l *ledgerMock) failClaimSubscriptions(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.claimSubscribeErr = err
}

func (l *ledgerMock) SubscribeLockIntents(_ context.Context) (
	<-chan *LockIntent, <-chan error, error) {

	return l.lockIntents, make(chan error), nil
}

func (l *ledgerMock) SubscribePreimageReveals(_ context.Context) (
	<-chan *PreimageReveal, <-chan error, error) {

	return l.reveals, make(chan error), nil
}

func (l *ledgerMock) ClaimPayment(_ context.Context,
	userAddress common.Address, hash lntypes.Hash,
	preimage lntypes.Preimage) error {

	l.mu.Lock()
	l.claims = append(l.claims, ledgerCall{
		userAddress: userAddress,
		hash:        hash,
		preimage:    preimage,
	})
	attempt := len(l.claims)
	l.mu.Unlock()

	if l.claimErr != nil {
		return l.claimErr(attempt)
	}

	return nil
}

func (l *ledgerMock) LockForSwap(_ context.Context,
	userAddress common.Address, hash lntypes.Hash) error {

	call := ledgerCall{
		userAddress: userAddress,
		hash:        hash,
	}

	l.mu.Lock()
	l.locks = append(l.locks, call)
	attempt := len(l.locks)
	l.mu.Unlock()

	if l.lockErr != nil {
		if err := l.lockErr(attempt); err != nil {
			return err
		}
	}

	l.lockChan <- call

	return nil
}

func (l *ledgerMock) claimCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.claims)
}

func (l *ledgerMock) lockCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.locks)
}

// holdInvoice is a hold invoice created on the network mock.
type holdInvoice struct {
	hash    lntypes.Hash
	amount  btcutil.Amount
	invoice string
}

// networkMock is a PaymentNetwork that records payments and hold invoices.
type networkMock struct {
	// payResult returns the outcome of a payment.
	payResult func(hash lntypes.Hash) (lntypes.Preimage, error)

	// settleErr returns the result of the n-th settle attempt, starting
	// at 1.
	settleErr func(attempt int) error

	// subscribeErr fails invoice subscriptions if set.
	subscribeErr error

	payments     []*Route
	holdInvoices map[lntypes.Hash]*holdInvoice
	settleCalls  int
	updates      map[lntypes.Hash]chan InvoiceUpdate
	updateErrs   map[lntypes.Hash]chan error
	mu           sync.Mutex

	subscriptions chan lntypes.Hash
	settled       chan lntypes.Preimage
}

func newNetworkMock() *networkMock {
	return &networkMock{
		payResult: func(hash lntypes.Hash) (lntypes.Preimage, error) {
			if hash != testHash {
				return lntypes.Preimage{}, fmt.Errorf("%w: "+
					"unknown hash", ErrPaymentFailed)
			}

			return testPreimage, nil
		},
		holdInvoices:  make(map[lntypes.Hash]*holdInvoice),
		updates:       make(map[lntypes.Hash]chan InvoiceUpdate),
		updateErrs:    make(map[lntypes.Hash]chan error),
		subscriptions: make(chan lntypes.Hash, 10),
		settled:       make(chan lntypes.Preimage, 10),
	}
}

func (n *networkMock) PayViaRoute(_ context.Context, hash lntypes.Hash,
	route *Route) (lntypes.Preimage, error) {

	n.mu.Lock()
	n.payments = append(n.payments, route)
	n.mu.Unlock()

	return n.payResult(hash)
}

func (n *networkMock) AddHoldInvoice(_ context.Context, hash lntypes.Hash,
	amount btcutil.Amount, _ string) (string, error) {

	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.holdInvoices[hash]; ok {
		return "", ErrDuplicateInvoiceId
	}

	invoice := &holdInvoice{
		hash:    hash,
		amount:  amount,
		invoice: fmt.Sprintf("lnbcrt%v-%d", hash, len(n.holdInvoices)),
	}
	n.holdInvoices[hash] = invoice

	return invoice.invoice, nil
}

func (n *networkMock) SubscribeInvoice(_ context.Context,
	hash lntypes.Hash) (<-chan InvoiceUpdate, <-chan error, error) {

	if n.subscribeErr != nil {
		return nil, nil, n.subscribeErr
	}

	updates, errChan := n.invoiceStreams(hash)
	n.subscriptions <- hash

	return updates, errChan, nil
}

func (n *networkMock) SettleInvoice(_ context.Context,
	preimage lntypes.Preimage) error {

	n.mu.Lock()
	n.settleCalls++
	attempt := n.settleCalls
	n.mu.Unlock()

	if n.settleErr != nil {
		if err := n.settleErr(attempt); err != nil {
			return err
		}
	}

	n.settled <- preimage

	return nil
}

// invoiceStreams returns the update and error streams of a hold invoice.
func (n *networkMock) invoiceStreams(hash lntypes.Hash) (
	chan InvoiceUpdate, chan error) {

	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.updates[hash]; !ok {
		n.updates[hash] = make(chan InvoiceUpdate, 10)
		n.updateErrs[hash] = make(chan error, 1)
	}

	return n.updates[hash], n.updateErrs[hash]
}

func (n *networkMock) paymentCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()

	return len(n.payments)
}

func (n *networkMock) settleCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.settleCalls
}

func (n *networkMock) holdInvoice(hash lntypes.Hash) *holdInvoice {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.holdInvoices[hash]
}

// routerMock returns a fixed route.
type routerMock struct {
	route *Route
	err   error
	calls int
	mu    sync.Mutex
}

func (r *routerMock) FindRoute(_ context.Context,
	_ *ParsedInvoice) (*Route, error) {

	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls++

	return r.route, r.err
}

// parserMock returns pre-registered invoices.
type parserMock struct {
	invoices map[string]*ParsedInvoice
}

func (p *parserMock) ParseInvoice(invoice string) (*ParsedInvoice, error) {
	parsed, ok := p.invoices[invoice]
	if !ok {
		return nil, fmt.Errorf("unknown invoice %v", invoice)
	}

	return parsed, nil
}

// testContext holds a swap configuration wired to mocks.
type testContext struct {
	t *testing.T

	cfg     *Config
	ledger  *ledgerMock
	network *networkMock
	router  *routerMock
	parser  *parserMock
	store   swapdb.Store
	alerter *LogAlerter
}

// newTestContext returns a test context with zero fees, a route with a
// timeout delta of 10 blocks and a ledger scale of 10^7 units per sat.
func newTestContext(t *testing.T) *testContext {
	testClock := clock.NewTestClock(testTime)

	ledger := newLedgerMock()
	network := newNetworkMock()
	router := &routerMock{
		route: &Route{
			TimeoutDelta: 10,
		},
	}
	parser := &parserMock{
		invoices: make(map[string]*ParsedInvoice),
	}
	store := swapdb.NewMemoryStore(testClock)
	alerter := NewLogAlerter(testClock, 10)

	metrics, err := NewMetrics(nil)
	require.NoError(t, err)

	cfg := &Config{
		Operator:          testOperator,
		Ledger:            ledger,
		Network:           network,
		Router:            router,
		Parser:            parser,
		Store:             store,
		Alerter:           alerter,
		Metrics:           metrics,
		Clock:             testClock,
		Fees:              swap.NewFeePolicy(0, 0),
		TimeoutPolicy:     swap.DefaultTimeoutPolicy,
		LedgerUnitsPerSat: big.NewInt(1e7),
		Retry: RetryConfig{
			InitialInterval: time.Millisecond,
			MaxInterval:     time.Millisecond,
			MaxAttempts:     3,
		},
	}

	return &testContext{
		t:       t,
		cfg:     cfg,
		ledger:  ledger,
		network: network,
		router:  router,
		parser:  parser,
		store:   store,
		alerter: alerter,
	}
}

// addInvoice registers an invoice with the parser mock and returns its
// encoded form.
func (c *testContext) addInvoice(invoice *ParsedInvoice) string {
	invoice.PaymentRequest = fmt.Sprintf("invoice%d", len(c.parser.invoices))
	c.parser.invoices[invoice.PaymentRequest] = invoice

	return invoice.PaymentRequest
}

// fetchState returns the stored state of a swap of the test user.
func (c *testContext) fetchState(hash lntypes.Hash) swapdb.State {
	c.t.Helper()

	record, err := c.store.FetchSwap(context.Background(), swapdb.Key{
		Address: testUser,
		Hash:    hash,
	})
	require.NoError(c.t, err)

	return record.State
}

func sats(amt btcutil.Amount) *btcutil.Amount {
	return &amt
}
