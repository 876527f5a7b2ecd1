/*
Package metrics provides Prometheus metrics collection and exposition for the
scheduler.

Metrics are defined and registered at package init using the Prometheus
client library, giving observability into cycle throughput, placement and
preemption behavior, and reservation confirmation outcomes. They are exposed
via HTTP for scraping by Prometheus servers.

# Metrics Catalog

Cycle metrics:

	qsched_cycles_total                 Counter  cycles completed
	qsched_cycle_duration_seconds        Histogram  wall time per cycle
	qsched_jobs_checked_per_cycle        Histogram  jobs considered per cycle

Job disposition metrics:

	qsched_jobs_run_total               Counter
	qsched_jobs_can_not_run_total        Counter
	qsched_jobs_backfilled_total         Counter

Placement metrics:

	qsched_placement_attempts_total{outcome}  Counter
	qsched_placement_duration_seconds         Histogram

Preemption metrics:

	qsched_preempt_attempts_total{action}  Counter
	qsched_preempt_victims_total           Counter

Reservation metrics:

	qsched_reservations_confirmed_total  Counter
	qsched_reservations_failed_total     Counter

Cluster gauges, refreshed by Collector from the last materialized universe:

	qsched_nodes_total{eligible}
	qsched_queues_total{started}
	qsched_fairshare_usage_factor{entity}

IFL transport metrics:

	qsched_ifl_requests_total{request_type}  Counter

# Usage

	import "github.com/quillhpc/qsched/pkg/metrics"

	metrics.JobsRunTotal.Inc()

	timer := metrics.NewTimer()
	placement.Place(u, rr)
	timer.ObserveDuration(metrics.PlacementDuration)

	http.Handle("/metrics", metrics.Handler())

# Integration Points

This package integrates with:

  - internal/cycle: records cycle/placement/preemption/reservation counters
  - internal/statusapi: serves alongside the read-only status endpoints
  - Prometheus: scrapes /metrics
*/
package metrics
