package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain repository.Metrics using Prometheus.
type Recorder struct {
	fetchesTotal    *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	cacheOpsTotal   *prometheus.CounterVec
	breakerState    *prometheus.GaugeVec
	tripwiresTotal  *prometheus.CounterVec
	decisionsTotal  *prometheus.CounterVec
	regimeChanges   prometheus.Counter
	planAgeSeconds  prometheus.Gauge
	opportunityBps  prometheus.Gauge
	latency         *prometheus.HistogramVec
}

var (
	once     sync.Once
	recorder *Recorder
)

// New returns the process-wide Prometheus metrics recorder. Collectors
// register against the default registry, so construction happens once.
func New() *Recorder {
	once.Do(initRecorder)
	return recorder
}

func initRecorder() {
	recorder = &Recorder{
		fetchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "perphelm_provider_fetches_total",
				Help: "Provider fetch outcomes per timescale",
			},
			[]string{"provider", "timescale", "result"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "perphelm_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		cacheOpsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "perphelm_cache_ops_total",
				Help: "Cache lookups by outcome",
			},
			[]string{"provider", "outcome"},
		),
		breakerState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "perphelm_breaker_state",
				Help: "Circuit state per provider (0 closed, 1 half-open, 2 open)",
			},
			[]string{"provider"},
		),
		tripwiresTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "perphelm_tripwire_events_total",
				Help: "Tripwire events fired",
			},
			[]string{"trigger", "severity"},
		),
		decisionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "perphelm_governor_decisions_total",
				Help: "Plan-change proposals by outcome",
			},
			[]string{"outcome"},
		),
		regimeChanges: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "perphelm_regime_changes_total",
				Help: "Confirmed regime transitions",
			},
		),
		planAgeSeconds: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "perphelm_active_plan_age_seconds",
				Help: "Age of the active strategy plan",
			},
		),
		opportunityBps: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "perphelm_opportunity_cost_bps",
				Help: "Best shadow portfolio advantage over the live plan",
			},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "perphelm_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordFetch records a provider fetch outcome ("ok", "error", "timeout", "circuit_open").
func (r *Recorder) RecordFetch(provider, timescale, result string) {
	r.fetchesTotal.WithLabelValues(provider, timescale, result).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordCacheOp records a cache lookup outcome ("hit", "miss").
func (r *Recorder) RecordCacheOp(provider, outcome string) {
	r.cacheOpsTotal.WithLabelValues(provider, outcome).Inc()
}

// RecordBreakerState records the circuit state for a provider.
func (r *Recorder) RecordBreakerState(provider string, state float64) {
	r.breakerState.WithLabelValues(provider).Set(state)
}

// RecordTripwire records a fired tripwire event.
func (r *Recorder) RecordTripwire(trigger, severity string) {
	r.tripwiresTotal.WithLabelValues(trigger, severity).Inc()
}

// RecordDecision records a governor decision ("approved", "rejected", "forced").
func (r *Recorder) RecordDecision(outcome string) {
	r.decisionsTotal.WithLabelValues(outcome).Inc()
}

// RecordRegimeChange records a confirmed regime change.
func (r *Recorder) RecordRegimeChange() {
	r.regimeChanges.Inc()
}

// RecordPlanAge records the active plan age in seconds.
func (r *Recorder) RecordPlanAge(seconds float64) {
	r.planAgeSeconds.Set(seconds)
}

// RecordOpportunityCost records the latest opportunity-cost estimate.
func (r *Recorder) RecordOpportunityCost(bps float64) {
	r.opportunityBps.Set(bps)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
