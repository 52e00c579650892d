package tbtcswap

import (
	"github.com/lightninglabs/tbtcswap/swap"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "tbtcswap"

// Metrics holds the prometheus collectors of the swap executor.
type Metrics struct {
	swapsStarted   *prometheus.CounterVec
	swapsCompleted *prometheus.CounterVec
	swapsFailed    *prometheus.CounterVec
	fundsAtRisk    *prometheus.CounterVec
	eventsIgnored  *prometheus.CounterVec
}

// NewMetrics creates the swap collectors and registers them with the given
// registerer. A nil registerer leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	newCounter := func(name, help string, labels ...string) (
		*prometheus.CounterVec, error) {

		counter := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      name,
			Help:      help,
		}, labels)

		if reg == nil {
			return counter, nil
		}

		return counter, reg.Register(counter)
	}

	var (
		m   Metrics
		err error
	)

	m.swapsStarted, err = newCounter(
		"swaps_started_total", "Number of accepted swap intents.",
		"type",
	)
	if err != nil {
		return nil, err
	}

	m.swapsCompleted, err = newCounter(
		"swaps_completed_total", "Number of successful swaps.", "type",
	)
	if err != nil {
		return nil, err
	}

	m.swapsFailed, err = newCounter(
		"swaps_failed_total", "Number of swaps aborted before any "+
			"funds were at risk.", "type", "reason",
	)
	if err != nil {
		return nil, err
	}

	m.fundsAtRisk, err = newCounter(
		"funds_at_risk_total", "Number of swaps that require manual "+
			"intervention.", "type",
	)
	if err != nil {
		return nil, err
	}

	m.eventsIgnored, err = newCounter(
		"events_ignored_total", "Number of ledger events addressed "+
			"to other operators.", "event",
	)
	if err != nil {
		return nil, err
	}

	return &m, nil
}

func (m *Metrics) started(t swap.Type) {
	if m != nil {
		m.swapsStarted.WithLabelValues(t.String()).Inc()
	}
}

func (m *Metrics) completed(t swap.Type) {
	if m != nil {
		m.swapsCompleted.WithLabelValues(t.String()).Inc()
	}
}

func (m *Metrics) failed(t swap.Type, reason error) {
	if m != nil {
		m.swapsFailed.WithLabelValues(
			t.String(), failureReason(reason),
		).Inc()
	}
}

func (m *Metrics) atRisk(t swap.Type) {
	if m != nil {
		m.fundsAtRisk.WithLabelValues(t.String()).Inc()
	}
}

func (m *Metrics) ignored(event string) {
	if m != nil {
		m.eventsIgnored.WithLabelValues(event).Inc()
	}
}
