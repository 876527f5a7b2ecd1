package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cycle metrics
	CyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qsched_cycles_total",
			Help: "Total number of scheduling cycles completed",
		},
	)

	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qsched_cycle_duration_seconds",
			Help:    "Time taken to run one scheduling cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	JobsCheckedPerCycle = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qsched_jobs_checked_per_cycle",
			Help:    "Number of jobs considered in one scheduling cycle",
			Buckets: []float64{1, 10, 50, 100, 500, 1000, 2000, 5000},
		},
	)

	// Job disposition metrics
	JobsRunTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qsched_jobs_run_total",
			Help: "Total number of jobs started by the cycle driver",
		},
	)

	JobsCanNotRunTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qsched_jobs_can_not_run_total",
			Help: "Total number of jobs left can_not_run at cycle end",
		},
	)

	JobsBackfilledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qsched_jobs_backfilled_total",
			Help: "Total number of jobs chosen as a backfill top job",
		},
	)

	// Placement metrics
	PlacementAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qsched_placement_attempts_total",
			Help: "Total number of placement attempts by outcome",
		},
		[]string{"outcome"},
	)

	PlacementDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qsched_placement_duration_seconds",
			Help:    "Time taken to place a single resource_resv in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Preemption metrics
	PreemptAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qsched_preempt_attempts_total",
			Help: "Total number of preemption attempts by action",
		},
		[]string{"action"},
	)

	PreemptVictimsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qsched_preempt_victims_total",
			Help: "Total number of jobs preempted across all cycles",
		},
	)

	// Reservation metrics
	ReservationsConfirmedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qsched_reservations_confirmed_total",
			Help: "Total number of reservations successfully confirmed",
		},
	)

	ReservationsFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qsched_reservations_failed_total",
			Help: "Total number of reservations that failed confirmation",
		},
	)

	// Cluster gauges, refreshed by Collector from the last materialized universe
	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "qsched_nodes_total",
			Help: "Total number of nodes by scheduling eligibility",
		},
		[]string{"eligible"},
	)

	QueuesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "qsched_queues_total",
			Help: "Total number of queues by started/enabled state",
		},
		[]string{"started"},
	)

	FairshareUsageFactor = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "qsched_fairshare_usage_factor",
			Help: "Fair-share usage factor for each leaf entity, in [0,1]",
		},
		[]string{"entity"},
	)

	// IFL transport metrics
	IFLRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qsched_ifl_requests_total",
			Help: "Total number of application-level requests issued to the server by type",
		},
		[]string{"request_type"},
	)
)

func init() {
	prometheus.MustRegister(CyclesTotal)
	prometheus.MustRegister(CycleDuration)
	prometheus.MustRegister(JobsCheckedPerCycle)
	prometheus.MustRegister(JobsRunTotal)
	prometheus.MustRegister(JobsCanNotRunTotal)
	prometheus.MustRegister(JobsBackfilledTotal)
	prometheus.MustRegister(PlacementAttemptsTotal)
	prometheus.MustRegister(PlacementDuration)
	prometheus.MustRegister(PreemptAttemptsTotal)
	prometheus.MustRegister(PreemptVictimsTotal)
	prometheus.MustRegister(ReservationsConfirmedTotal)
	prometheus.MustRegister(ReservationsFailedTotal)
	prometheus.MustRegister(NodesTotal)
	prometheus.MustRegister(QueuesTotal)
	prometheus.MustRegister(FairshareUsageFactor)
	prometheus.MustRegister(IFLRequestsTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
