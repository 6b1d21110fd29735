package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики job'ов.
var (
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatplane_jobs_processed_total",
		Help: "Jobs finished, by queue, kind and final state.",
	}, []string{"queue", "kind", "state"})

	JobsRetried = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatplane_jobs_retried_total",
		Help: "Job attempts that failed and were scheduled for retry.",
	}, []string{"queue", "kind"})

	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatplane_job_duration_seconds",
		Help:    "Handler duration per attempt.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"queue", "kind"})

	JobsPruned = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatplane_jobs_pruned_total",
		Help: "Finished jobs removed by retention.",
	}, []string{"queue", "state"})
)

// Метрики circuit breaker'а.
var (
	// BreakerState: 0 — CLOSED, 1 — HALF_OPEN, 2 — OPEN.
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chatplane_breaker_state",
		Help: "Circuit breaker state (0 closed, 1 half-open, 2 open).",
	}, []string{"breaker"})

	BreakerRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatplane_breaker_rejected_total",
		Help: "Calls rejected without reaching the dependency.",
	}, []string{"breaker"})
)

// Метрики пулов tenant'ов.
var (
	TenantPools = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatplane_tenant_pools",
		Help: "Tenant connection pools currently cached in this process.",
	})

	TenantPoolCreations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatplane_tenant_pool_creations_total",
		Help: "Tenant pool creation attempts by result.",
	}, []string{"result"})
)

// Метрики маршрутизации событий.
var (
	FanoutEmits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatplane_fanout_emits_total",
		Help: "Events delivered into realtime rooms.",
	}, []string{"event"})

	FanoutDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatplane_fanout_drops_total",
		Help: "Signals dropped during target resolution, by reason.",
	}, []string{"reason"})
)

// ProvisioningDuration — длительность provisioning'а по результату.
var ProvisioningDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "chatplane_provisioning_duration_seconds",
	Help:    "End-to-end tenant provisioning duration.",
	Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
}, []string{"result"})
