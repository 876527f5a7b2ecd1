package cycle

import (
	"github.com/quillhpc/qsched/internal/preempt"
	"github.com/quillhpc/qsched/internal/uni"
	"github.com/quillhpc/qsched/pkg/metrics"
)

// driverMetrics records cycle/placement/preemption observations into the
// process-wide Prometheus registry owned by pkg/metrics (SPEC_FULL.md E2:
// client_golang wired to both pkg/metrics and internal/cycle). It carries no
// state of its own and never registers anything itself, so a Driver built
// without calling New (e.g. in a unit test constructing a Driver literal)
// is still safe to use as long as it goes through newDriverMetrics.
type driverMetrics struct{}

func newDriverMetrics() *driverMetrics {
	return &driverMetrics{}
}

func (m *driverMetrics) observeCycle(report Report) {
	if m == nil {
		return
	}
	metrics.CyclesTotal.Inc()
	metrics.CycleDuration.Observe(report.Duration.Seconds())
	metrics.JobsCheckedPerCycle.Observe(float64(report.JobsChecked))
	metrics.JobsRunTotal.Add(float64(report.JobsRun))
	metrics.JobsCanNotRunTotal.Add(float64(report.JobsCanNotRun))
	metrics.JobsBackfilledTotal.Add(float64(report.JobsBackfilled))
	metrics.ReservationsConfirmedTotal.Add(float64(report.ReservationsConfirmed))
	metrics.ReservationsFailedTotal.Add(float64(report.ReservationsFailed))
	if report.JobsRun > 0 {
		metrics.PlacementAttemptsTotal.WithLabelValues("placed").Add(float64(report.JobsRun))
	}
	if report.JobsCanNotRun > 0 {
		metrics.PlacementAttemptsTotal.WithLabelValues("can_not_run").Add(float64(report.JobsCanNotRun))
	}
}

func (m *driverMetrics) observeJobRun(rr *uni.ResResv) {
	if m == nil {
		return
	}
	_ = rr
}

func (m *driverMetrics) observePreempt(action preempt.Action, victims int) {
	if m == nil {
		return
	}
	metrics.PreemptAttemptsTotal.WithLabelValues(action.String()).Inc()
	metrics.PreemptVictimsTotal.Add(float64(victims))
}
