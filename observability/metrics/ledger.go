package metrics

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	mmerrors "maplemarket/core/errors"
	"maplemarket/core/events"
)

// Ledger records transaction outcomes and committed events. It implements
// vm.Observer and events.Emitter.
type Ledger struct {
	committed *prometheus.CounterVec
	reverted  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	events    *prometheus.CounterVec
	requests  *prometheus.CounterVec
	request   *prometheus.HistogramVec
}

var (
	ledgerOnce     sync.Once
	ledgerRegistry *Ledger
)

// Default returns the ledger metrics registered on the default Prometheus
// registry.
func Default() *Ledger {
	ledgerOnce.Do(func() {
		ledgerRegistry = NewLedger(prometheus.DefaultRegisterer)
	})
	return ledgerRegistry
}

// NewLedger creates the collectors and registers them on reg.
func NewLedger(reg prometheus.Registerer) *Ledger {
	m := &Ledger{
		committed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maplemarket",
			Subsystem: "tx",
			Name:      "committed_total",
			Help:      "Committed transactions segmented by method.",
		}, []string{"method"}),
		reverted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maplemarket",
			Subsystem: "tx",
			Name:      "reverted_total",
			Help:      "Reverted transactions segmented by method and error code.",
		}, []string{"method", "reason"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "maplemarket",
			Subsystem: "tx",
			Name:      "duration_seconds",
			Help:      "Transaction execution latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"method", "outcome"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maplemarket",
			Subsystem: "events",
			Name:      "emitted_total",
			Help:      "Committed events segmented by type.",
		}, []string{"type"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maplemarket",
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "HTTP API requests segmented by route and status code.",
		}, []string{"route", "status"}),
		request: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "maplemarket",
			Subsystem: "rpc",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for HTTP API handlers.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
	if reg != nil {
		reg.MustRegister(m.committed, m.reverted, m.latency, m.events, m.requests, m.request)
	}
	return m
}

func normalizeMethod(method string) string {
	method = strings.TrimSpace(method)
	if method == "" {
		return "unknown"
	}
	return method
}

// TransactionCommitted implements vm.Observer.
func (m *Ledger) TransactionCommitted(method string, elapsed time.Duration) {
	if m == nil {
		return
	}
	method = normalizeMethod(method)
	m.committed.WithLabelValues(method).Inc()
	m.latency.WithLabelValues(method, "committed").Observe(elapsed.Seconds())
}

// TransactionReverted implements vm.Observer.
func (m *Ledger) TransactionReverted(method string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	method = normalizeMethod(method)
	m.reverted.WithLabelValues(method, mmerrors.Code(err)).Inc()
	m.latency.WithLabelValues(method, "reverted").Observe(elapsed.Seconds())
}

// Emit implements events.Emitter.
func (m *Ledger) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	m.events.WithLabelValues(evt.EventType()).Inc()
}

// ObserveRequest records one HTTP API request. route is the chi route
// pattern, never the raw path.
func (m *Ledger) ObserveRequest(route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.request.WithLabelValues(route).Observe(elapsed.Seconds())
}
