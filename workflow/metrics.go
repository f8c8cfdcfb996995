package workflow

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics exposes engine activity under the "sagaflow" namespace.
// Grounded on the teacher's graph/metrics.go, extended with the new subsystems'
// counters (ledger hit/miss, budget reservations, loop detections, bandit
// selections, approval waits) named in SPEC_FULL §3.
type PrometheusMetrics struct {
	inflightSteps prometheus.Gauge
	queueDepth    prometheus.Gauge

	stepLatency *prometheus.HistogramVec

	retries        *prometheus.CounterVec
	mergeConflicts *prometheus.CounterVec
	backpressure   *prometheus.CounterVec

	ledgerHits       prometheus.Counter
	ledgerMisses     prometheus.Counter
	budgetExhausted  *prometheus.CounterVec
	loopsDetected    *prometheus.CounterVec
	banditSelections *prometheus.CounterVec
	approvalWaits    prometheus.Histogram

	mu      sync.RWMutex
	enabled bool
}

// NewPrometheusMetrics registers every engine metric with registry (pass
// prometheus.DefaultRegisterer for the global registry, or a fresh
// prometheus.NewRegistry() for test isolation).
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	pm := &PrometheusMetrics{enabled: true}

	pm.inflightSteps = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "sagaflow", Name: "inflight_steps",
		Help: "Current number of steps executing concurrently",
	})
	pm.queueDepth = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "sagaflow", Name: "queue_depth",
		Help: "Pending work items in the frontier queue",
	})
	pm.stepLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sagaflow", Name: "step_latency_ms",
		Help:    "Step execution duration in milliseconds",
		Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
	}, []string{"workflow_id", "step_id", "status"})
	pm.retries = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sagaflow", Name: "retries_total",
		Help: "Cumulative step retry attempts",
	}, []string{"workflow_id", "step_id", "reason"})
	pm.mergeConflicts = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sagaflow", Name: "merge_conflicts_total",
		Help: "Concurrent fork-path state merge conflicts",
	}, []string{"workflow_id", "conflict_type"})
	pm.backpressure = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sagaflow", Name: "backpressure_events_total",
		Help: "Frontier queue saturation events",
	}, []string{"workflow_id", "reason"})
	pm.ledgerHits = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "sagaflow", Name: "ledger_hits_total",
		Help: "Step execution ledger cache hits",
	})
	pm.ledgerMisses = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "sagaflow", Name: "ledger_misses_total",
		Help: "Step execution ledger cache misses",
	})
	pm.budgetExhausted = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sagaflow", Name: "budget_exhausted_total",
		Help: "Budget reservations rejected for lack of remaining capacity",
	}, []string{"workflow_id", "dimension"})
	pm.loopsDetected = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sagaflow", Name: "loops_detected_total",
		Help: "Loop detector positive detections by loop type",
	}, []string{"workflow_id", "loop_type"})
	pm.banditSelections = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sagaflow", Name: "bandit_selections_total",
		Help: "Agent selector choices by agent and task category",
	}, []string{"agent_id", "task_category"})
	pm.approvalWaits = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sagaflow", Name: "approval_wait_seconds",
		Help:    "Time an instance spent suspended awaiting approval",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	})

	return pm
}

func (pm *PrometheusMetrics) RecordStepLatency(workflowID, stepID string, latency time.Duration, status string) {
	if !pm.enabled {
		return
	}
	pm.stepLatency.WithLabelValues(workflowID, stepID, status).Observe(float64(latency.Milliseconds()))
}

func (pm *PrometheusMetrics) IncrementRetries(workflowID, stepID, reason string) {
	if pm.enabled {
		pm.retries.WithLabelValues(workflowID, stepID, reason).Inc()
	}
}

func (pm *PrometheusMetrics) UpdateQueueDepth(depth int) {
	if pm.enabled {
		pm.queueDepth.Set(float64(depth))
	}
}

func (pm *PrometheusMetrics) UpdateInflightSteps(count int) {
	if pm.enabled {
		pm.inflightSteps.Set(float64(count))
	}
}

func (pm *PrometheusMetrics) IncrementMergeConflicts(workflowID, conflictType string) {
	if pm.enabled {
		pm.mergeConflicts.WithLabelValues(workflowID, conflictType).Inc()
	}
}

func (pm *PrometheusMetrics) IncrementBackpressure(workflowID, reason string) {
	if pm.enabled {
		pm.backpressure.WithLabelValues(workflowID, reason).Inc()
	}
}

func (pm *PrometheusMetrics) IncrementLedgerHit() {
	if pm.enabled {
		pm.ledgerHits.Inc()
	}
}

func (pm *PrometheusMetrics) IncrementLedgerMiss() {
	if pm.enabled {
		pm.ledgerMisses.Inc()
	}
}

func (pm *PrometheusMetrics) IncrementBudgetExhausted(workflowID, dimension string) {
	if pm.enabled {
		pm.budgetExhausted.WithLabelValues(workflowID, dimension).Inc()
	}
}

func (pm *PrometheusMetrics) IncrementLoopDetected(workflowID, loopType string) {
	if pm.enabled {
		pm.loopsDetected.WithLabelValues(workflowID, loopType).Inc()
	}
}

func (pm *PrometheusMetrics) IncrementBanditSelection(agentID, taskCategory string) {
	if pm.enabled {
		pm.banditSelections.WithLabelValues(agentID, taskCategory).Inc()
	}
}

func (pm *PrometheusMetrics) ObserveApprovalWait(d time.Duration) {
	if pm.enabled {
		pm.approvalWaits.Observe(d.Seconds())
	}
}

// Disable stops metric recording (used by tests that want a quiet registry).
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}

// Reset zeroes the gauges; counters and histograms are cumulative by Prometheus
// design and are not reset.
func (pm *PrometheusMetrics) Reset() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.inflightSteps.Set(0)
	pm.queueDepth.Set(0)
}
