package tbtcswap

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lightninglabs/tbtcswap/fsm"
	"github.com/lightninglabs/tbtcswap/swap"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/lntypes"
)

// defaultMaxAlerts is the number of alerts kept by the LogAlerter.
const defaultMaxAlerts = 100

// Alert describes a swap that requires manual intervention because funds are
// at risk.
type Alert struct {
	// Time is the time the alert was raised.
	Time time.Time `json:"time"`

	// Type is the direction of the affected swap.
	Type swap.Type `json:"-"`

	// SwapType is the human readable direction of the affected swap.
	SwapType string `json:"swap_type"`

	// UserAddress is the counterparty of the affected swap.
	UserAddress common.Address `json:"user_address"`

	// Hash is the payment hash of the affected swap.
	Hash lntypes.Hash `json:"-"`

	// PaymentHash is the hex encoded payment hash of the affected swap.
	PaymentHash string `json:"payment_hash"`

	// Message describes what went wrong.
	Message string `json:"message"`
}

// Alerter is notified about swaps that put funds at risk.
type Alerter interface {
	// Alert raises a new alert.
	Alert(alert *Alert)
}

// LogAlerter is an Alerter that logs alerts at the critical level and keeps
// the most recent ones in memory.
type LogAlerter struct {
	clock  clock.Clock
	alerts *fsm.FixedSizeSlice[Alert]
}

// NewLogAlerter returns a new LogAlerter that keeps the given number of
// alerts.
func NewLogAlerter(clock clock.Clock, maxAlerts int) *LogAlerter {
	if maxAlerts <= 0 {
		maxAlerts = defaultMaxAlerts
	}

	return &LogAlerter{
		clock:  clock,
		alerts: fsm.NewFixedSizeSlice[Alert](maxAlerts),
	}
}

// Alert logs the alert and stores it.
//
// NOTE: Part of the Alerter interface.
func (l *LogAlerter) Alert(alert *Alert) {
	a := *alert
	if a.Time.IsZero() {
		a.Time = l.clock.Now()
	}
	a.SwapType = a.Type.String()
	a.PaymentHash = a.Hash.String()

	log.Criticalf("FUNDS AT RISK: %v swap %v of %v: %v", a.SwapType,
		a.Hash, a.UserAddress.Hex(), a.Message)

	l.alerts.Add(a)
}

// Alerts returns the stored alerts, oldest first.
func (l *LogAlerter) Alerts() []Alert {
	return l.alerts.Get()
}

var _ Alerter = (*LogAlerter)(nil)
