// Package observability exposes governance activity as Prometheus metrics.
//
// Counters are fed by the event stream (Metrics implements
// domain.EventSink). Gauges for current state are read from a stats
// function at scrape time, so they are never stale after a restart.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tutu-network/guild/internal/domain"
)

const namespace = "guild"

// Compile-time contract assertion.
var _ domain.EventSink = (*Metrics)(nil)

// Metrics holds every collector of one guild instance.
type Metrics struct {
	registry *prometheus.Registry

	// ─── Event Metrics ──────────────────────────────────────────────────────
	EventsTotal       *prometheus.CounterVec
	VotesTotal        *prometheus.CounterVec
	ProposalsCreated  *prometheus.CounterVec
	ProposalsExecuted *prometheus.CounterVec
	TreasuryDeposited prometheus.Counter
	TreasuryWithdrawn prometheus.Counter
	MembershipChanges *prometheus.CounterVec
	LastEventSeq      prometheus.Gauge

	// ─── HTTP Metrics ───────────────────────────────────────────────────────
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// ─── Keeper Metrics ─────────────────────────────────────────────────────
	KeeperRuns       prometheus.Counter
	KeeperExecutions *prometheus.CounterVec
}

// New creates the collectors on a private registry that also carries the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		EventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "emitted_total",
			Help:      "Total governance events emitted, by type.",
		}, []string{"type"}),

		VotesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "voting",
			Name:      "ballots_total",
			Help:      "Total ballots cast, by choice.",
		}, []string{"choice"}),

		ProposalsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proposals",
			Name:      "created_total",
			Help:      "Total proposals created, by kind.",
		}, []string{"kind"}),

		ProposalsExecuted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proposals",
			Name:      "executed_total",
			Help:      "Total proposals executed, by outcome.",
		}, []string{"outcome"}),

		TreasuryDeposited: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "treasury",
			Name:      "deposited_total",
			Help:      "Total amount deposited into the treasury.",
		}),

		TreasuryWithdrawn: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "treasury",
			Name:      "withdrawn_total",
			Help:      "Total amount paid out of the treasury.",
		}),

		MembershipChanges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "members",
			Name:      "changes_total",
			Help:      "Total membership changes, by action.",
		}, []string{"action"}),

		LastEventSeq: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "last_seq",
			Help:      "Sequence number of the most recent event.",
		}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests, by method, route and status.",
		}, []string{"method", "route", "status"}),

		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"method", "route"}),

		KeeperRuns: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keeper",
			Name:      "runs_total",
			Help:      "Total keeper sweeps.",
		}),

		KeeperExecutions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keeper",
			Name:      "executions_total",
			Help:      "Total keeper execution attempts, by result.",
		}, []string{"result"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ─── Event Sink ─────────────────────────────────────────────────────────────

// Emit updates the counters for ev.
func (m *Metrics) Emit(ev domain.Event) {
	m.EventsTotal.WithLabelValues(string(ev.Type)).Inc()
	m.LastEventSeq.Set(float64(ev.Seq))

	switch ev.Type {
	case domain.EventVoteCast:
		m.VotesTotal.WithLabelValues(ev.Attrs["choice"]).Inc()
	case domain.EventProposalCreated:
		m.ProposalsCreated.WithLabelValues(ev.Attrs["kind"]).Inc()
	case domain.EventProposalExecuted:
		m.ProposalsExecuted.WithLabelValues(ev.Attrs["outcome"]).Inc()
	case domain.EventFundsDeposited:
		m.TreasuryDeposited.Add(float64(ev.Amount))
	case domain.EventFundsWithdrawn:
		m.TreasuryWithdrawn.Add(float64(ev.Amount))
	case domain.EventMemberAdded:
		m.MembershipChanges.WithLabelValues("added").Inc()
	case domain.EventMemberRemoved:
		m.MembershipChanges.WithLabelValues("removed").Inc()
	}
}

// ─── State Gauges ───────────────────────────────────────────────────────────

// RegisterStats exposes the current governance state, read through stats
// on every scrape.
func (m *Metrics) RegisterStats(stats func() domain.Stats) {
	gauge := func(subsystem, name, help string, value func(domain.Stats) float64) {
		m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		}, func() float64 { return value(stats()) }))
	}

	gauge("members", "active", "Number of eligible members.",
		func(s domain.Stats) float64 { return float64(s.MemberCount) })
	gauge("proposals", "total", "Number of proposals ever created.",
		func(s domain.Stats) float64 { return float64(s.ProposalCount) })
	gauge("proposals", "active", "Number of proposals still accepting ballots.",
		func(s domain.Stats) float64 { return float64(s.ActiveProposals) })
	gauge("treasury", "balance", "Current treasury balance.",
		func(s domain.Stats) float64 { return float64(s.TreasuryBalance) })
	gauge("params", "quorum_percent", "Current quorum percentage.",
		func(s domain.Stats) float64 { return float64(s.Params.QuorumPercent) })
	gauge("params", "pass_threshold_percent", "Current pass threshold percentage.",
		func(s domain.Stats) float64 { return float64(s.Params.PassThresholdPercent) })
	gauge("governance", "paused", "Whether governance is paused (1) or not (0).",
		func(s domain.Stats) float64 {
			if s.Paused {
				return 1
			}
			return 0
		})
}

// ─── HTTP Middleware ────────────────────────────────────────────────────────

// ObserveRequest records one served request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ─── Keeper ─────────────────────────────────────────────────────────────────

// ObserveKeeperRun records one sweep and the results of its attempts,
// keyed by error kind ("" for success).
func (m *Metrics) ObserveKeeperRun(results map[string]int) {
	m.KeeperRuns.Inc()
	for kind, n := range results {
		label := kind
		if label == "" {
			label = "ok"
		}
		m.KeeperExecutions.WithLabelValues(label).Add(float64(n))
	}
}
