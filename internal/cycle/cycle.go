// Package cycle implements the scheduling cycle driver (spec §4.K): the
// single-threaded loop that stats the server, materializes a universe,
// confirms reservations or else walks the sorted job list through
// next_job/is_ok_to_run, and on failure decides preempt / backfill-as-
// top-job / record-and-skip before freeing the universe at cycle end.
// The driver owns the only goroutine that mutates a Universe; it uses
// internal/workerpool solely for the bounded duplication reservation
// confirmation already performs.
package cycle

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/quillhpc/qsched/internal/audit"
	"github.com/quillhpc/qsched/internal/calendar"
	"github.com/quillhpc/qsched/internal/events"
	"github.com/quillhpc/qsched/internal/fairshare"
	"github.com/quillhpc/qsched/internal/ifl"
	"github.com/quillhpc/qsched/internal/materialize"
	"github.com/quillhpc/qsched/internal/placement"
	"github.com/quillhpc/qsched/internal/policy"
	"github.com/quillhpc/qsched/internal/preempt"
	"github.com/quillhpc/qsched/internal/resource"
	"github.com/quillhpc/qsched/internal/reservation"
	"github.com/quillhpc/qsched/internal/schderr"
	"github.com/quillhpc/qsched/internal/statusapi"
	"github.com/quillhpc/qsched/internal/store"
	"github.com/quillhpc/qsched/internal/uni"
	"github.com/quillhpc/qsched/internal/workerpool"
	"github.com/quillhpc/qsched/pkg/metrics"
)

// Limits bounds one cycle's work (spec §4.K "bounded-work discipline":
// sched_cycle_length, max_jobs_to_check, max_preempt_attempts).
type Limits struct {
	CycleLength        time.Duration
	MaxJobsToCheck     int
	MaxPreemptAttempts int
}

// Snapshot is the already-decoded batch-status reply set a cycle
// materializes into a Universe (spec §4.C). Decoding the wire stat-reply
// payload into these records is the transport layer's responsibility; see
// iflsource.go for the current boundary.
type Snapshot struct {
	Server materialize.ServerRecord
	Queues []materialize.QueueRecord
	Nodes  []materialize.NodeRecord
	Jobs   []materialize.JobRecord
	Resvs  []materialize.ResvRecord
}

// StatSource supplies one cycle's server snapshot.
type StatSource interface {
	Fetch(ctx context.Context) (Snapshot, error)
}

// Report summarizes one completed cycle for logging, the driver's metrics,
// and internal/statusapi's read-only view.
type Report struct {
	CycleID               string
	StartedAt              time.Time
	Duration               time.Duration
	JobsChecked            int
	JobsRun                int
	JobsCanNotRun          int
	JobsPreempted          int
	JobsBackfilled         int
	ReservationsConfirmed  int
	ReservationsFailed     int
	Warnings               []materialize.Warning
}

// Driver runs scheduling cycles against a live ifl.Client connection,
// bundling every subsystem package a cycle touches.
type Driver struct {
	Pool     *workerpool.Pool
	Client   *ifl.Client
	Policy   *policy.Policy
	Registry *resource.Registry
	Store    *store.Store   // optional; nil disables estimate persistence
	Broker   *events.Broker // optional; nil disables event publication
	Audit    *audit.Sink    // optional; nil disables decision auditing
	Log      zerolog.Logger
	Limits   Limits

	// EquivClassBy names the resource set equivalence classing groups on
	// (spec §4.H); the zero value groups purely on select/place/identity.
	EquivClassBy resource.DefSet

	metrics *driverMetrics

	mu         sync.Mutex
	lastReport statusapi.CycleReport
	haveReport bool
	lastStats  metrics.ClusterStats
	haveStats  bool
	cycleSeq   int
}

// New builds a Driver, including its cycle metrics (see metrics.go).
func New(pool *workerpool.Pool, client *ifl.Client, pol *policy.Policy, reg *resource.Registry, log zerolog.Logger, limits Limits) *Driver {
	return &Driver{
		Pool:     pool,
		Client:   client,
		Policy:   pol,
		Registry: reg,
		Log:      log.With().Str("component", "cycle").Logger(),
		Limits:   limits,
		metrics:  newDriverMetrics(),
	}
}

// LastReport implements statusapi.ReportSource.
func (d *Driver) LastReport() (statusapi.CycleReport, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastReport, d.haveReport
}

// ClusterStats implements pkg/metrics.StatsSource, reporting the cluster
// shape materialized by the most recently completed cycle.
func (d *Driver) ClusterStats() (metrics.ClusterStats, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastStats, d.haveStats
}

func (d *Driver) nextCycleID() string {
	d.cycleSeq++
	return fmt.Sprintf("cycle-%06d-%d", d.cycleSeq, time.Now().UnixNano())
}

// Run executes exactly one scheduling cycle (spec §4.K steps 1-7).
// fairshareRoot is the persistent fair-share tree, mutated in place and
// expected to outlive the Universe this call builds and discards.
func (d *Driver) Run(ctx context.Context, source StatSource, fairshareRoot *fairshare.Node, now time.Time) (Report, error) {
	wallStart := time.Now()
	cycleID := d.nextCycleID()
	log := d.Log.With().Str("cycle_id", cycleID).Logger()

	report := Report{CycleID: cycleID, StartedAt: now}
	d.publish(events.TypeCycleStarted, cycleID, "")

	// Step 1: pull server time, update policy.current_time.
	d.Policy.CurrentTime = now
	d.Policy.RecomputeTimeFlags(now)
	deadline := wallStart.Add(d.Limits.CycleLength)

	// Step 2: stat the world; build the universe.
	snap, err := source.Fetch(ctx)
	if err != nil {
		return report, fmt.Errorf("cycle: fetching snapshot: %w", err)
	}
	u := uni.NewUniverse()
	mzr := materialize.New(d.Registry)
	mzr.Server(u, snap.Server)
	for _, qr := range snap.Queues {
		mzr.Queue(u, qr)
	}
	mzr.Nodes(u, snap.Nodes)
	for _, jr := range snap.Jobs {
		mzr.Job(u, jr)
	}
	for _, rr := range snap.Resvs {
		mzr.Reservation(u, rr)
	}
	mzr.Finalize(u)
	u.ServerTime = now
	u.IsPrimeTime = d.Policy.IsPrimeTime
	u.IsDedicatedTime = d.Policy.IsDedicatedTime
	report.Warnings = mzr.Warnings

	// Step 3: equivalence classes and the fair-share tree for this cycle.
	u.Fairshare = fairshareRoot
	if fairshareRoot != nil {
		fairshareRoot.ResetCycle()
	}
	u.EquivClasses = policy.BuildEquivClasses(u, d.EquivClassBy)

	// Step 4: reservation confirmation takes the whole cycle if needed.
	if d.anyConfirmable(u, now) {
		confirmer := reservation.New(d.Pool, d.Client, log)
		results, err := confirmer.ConfirmAll(u, now)
		if err != nil {
			return report, fmt.Errorf("cycle: confirming reservations: %w", err)
		}
		for _, r := range results {
			if r.Confirmed {
				report.ReservationsConfirmed++
				d.publish(events.TypeReservationConfirm, r.ResvID, r.ExecVnode)
			} else {
				report.ReservationsFailed++
				d.publish(events.TypeReservationFailed, r.ResvID, r.Reason)
			}
		}
		report.Duration = time.Since(wallStart)
		d.finish(report, u)
		return report, nil
	}

	// Step 5: otherwise, the main next_job/is_ok_to_run loop.
	d.runMainLoop(ctx, u, &report, deadline)

	// Step 7: write back can_not_run estimates, flush audit, free universe.
	d.flushEstimates(u, now)
	d.flushAudit(ctx, cycleID, u)

	report.Duration = time.Since(wallStart)
	d.finish(report, u)
	return report, nil
}

func (d *Driver) anyConfirmable(u *uni.Universe, now time.Time) bool {
	for _, rr := range u.Reservations {
		if rr.IsResv() && rr.Resv.Confirmable(now) {
			return true
		}
	}
	return false
}

// runMainLoop implements next_job/is_ok_to_run (spec §4.K step 5) plus
// preempt/backfill/record-skip disposition (step 6) and bounded-work
// discipline.
func (d *Driver) runMainLoop(ctx context.Context, u *uni.Universe, report *Report, deadline time.Time) {
	jobs := append([]*uni.ResResv(nil), u.Jobs...)
	d.Policy.SortJobs(jobs, d.jobSortValue(u))

	attempts := preempt.NewAttempts(d.Limits.MaxPreemptAttempts)
	topJobChosen := false

	for _, rr := range jobs {
		if report.JobsChecked >= d.Limits.MaxJobsToCheck {
			d.Log.Warn().Int("checked", report.JobsChecked).Msg("max_jobs_to_check reached, ending cycle")
			break
		}
		if time.Now().After(deadline) {
			d.Log.Warn().Msg("sched_cycle_length exceeded, ending cycle")
			break
		}
		report.JobsChecked++

		if d.nextJob(u, rr) {
			if err := d.runJob(u, rr); err != nil {
				d.Log.Error().Err(err).Str("job_id", rr.ID).Msg("run-job failed")
				rr.Errors.Addf(schderr.CodeSimulationFailed, "", err.Error())
			} else {
				report.JobsRun++
				d.publish(events.TypeJobRun, rr.ID, "")
				continue
			}
		}

		tier := rr.Errors.Tier()
		switch tier {
		case schderr.TierNeverRun:
			rr.CanNeverRun = true
			report.JobsCanNotRun++
			d.publish(events.TypeJobCanNotRun, rr.ID, primaryReason(rr))
			continue
		case schderr.TierRunLater:
			if d.Policy.Preempting && d.tryPreempt(u, rr, attempts) {
				report.JobsPreempted++
				d.publish(events.TypeJobPreempted, rr.ID, "")
				if d.nextJob(u, rr) {
					if err := d.runJob(u, rr); err == nil {
						report.JobsRun++
						d.publish(events.TypeJobRun, rr.ID, "")
						continue
					}
				}
			}
		}

		if d.Policy.Backfill && !topJobChosen && tier != schderr.TierNeverRun {
			if d.backfillTopJob(u, rr) {
				topJobChosen = true
				report.JobsBackfilled++
				d.publish(events.TypeJobBackfilled, rr.ID, "")
				continue
			}
		}

		rr.CanNotRun = true
		report.JobsCanNotRun++
		d.publish(events.TypeJobCanNotRun, rr.ID, primaryReason(rr))
	}
}

func primaryReason(rr *uni.ResResv) string {
	if e, ok := rr.Errors.Primary(); ok {
		return e.String()
	}
	return ""
}

// nextJob is_ok_to_run: a job must be structurally Runnable, pass queue
// and per-entity run limits, and find a placement (spec §4.K step 5).
func (d *Driver) nextJob(u *uni.Universe, rr *uni.ResResv) bool {
	if !rr.Runnable() {
		rr.Errors.Addf(schderr.CodeCanNotRun, "", "not runnable this cycle")
		return false
	}
	switch policy.CheckRunLimits(u, rr) {
	case policy.LimitHard:
		rr.Errors.Addf(schderr.CodeLimitExceeded, "", rr.Job.Owner)
		return false
	case policy.LimitSoft:
		rr.Errors.Addf(schderr.CodeLimitExceeded, "", rr.Job.Owner)
		return false
	}
	return placement.Place(u, rr)
}

// jobSortValue supplies SortKey values for the configured job-sort vector
// (spec §4.H, SPEC_FULL.md E3 job_sort_formula).
func (d *Driver) jobSortValue(u *uni.Universe) func(rr *uni.ResResv, key policy.SortKey) float64 {
	return func(rr *uni.ResResv, key policy.SortKey) float64 {
		switch key.Name {
		case "formula":
			v, err := d.Policy.EvaluateFormula(formulaVars(u, rr))
			if err != nil {
				return 0
			}
			return v
		case "fairshare":
			if u.Fairshare == nil || rr.Job == nil {
				return 0
			}
			leaf := u.Fairshare.Find(rr.Job.FairshareEntity)
			if leaf == nil {
				return 0
			}
			return leaf.UsageFactor
		case "eligible_time":
			if rr.Job == nil || rr.Job.EligibleAt.IsZero() {
				return 0
			}
			return u.ServerTime.Sub(rr.Job.EligibleAt).Seconds()
		default:
			req, ok := rr.TotalRequest().Find(key.Name)
			if !ok {
				return 0
			}
			return req.Value.Amount()
		}
	}
}

func formulaVars(u *uni.Universe, rr *uni.ResResv) map[string]float64 {
	vars := map[string]float64{
		"job_priority": float64(rr.Job.PreemptPriority),
	}
	if !rr.Job.EligibleAt.IsZero() {
		vars["eligible_time"] = u.ServerTime.Sub(rr.Job.EligibleAt).Seconds()
	}
	if u.Fairshare != nil {
		if leaf := u.Fairshare.Find(rr.Job.FairshareEntity); leaf != nil {
			vars["fair_share_perc"] = leaf.UsageFactor * 100
		}
	}
	return vars
}

// runJob issues send_run_job and eagerly assigns the chosen nspecs'
// resources and fair-share usage in the local universe (spec §4.K step 5,
// §4.I "updates the local universe eagerly").
func (d *Driver) runJob(u *uni.Universe, rr *uni.ResResv) error {
	_, ack, err := d.Client.RunJob(rr.ID, ifl.RunSync)
	if err != nil {
		return fmt.Errorf("cycle: run-job %s: %w", rr.ID, err)
	}
	if ack == nil || !ack.Success {
		msg := "no ack"
		if ack != nil {
			msg = ack.Message
		}
		return fmt.Errorf("cycle: run-job %s rejected: %s", rr.ID, msg)
	}

	for _, ns := range rr.NSpecs {
		node := u.Nodes[ns.NodeIndex]
		for _, req := range ns.Reqs {
			if avail, ok := node.Resources[req.Def.Name]; ok {
				avail.Assign(req.Value.Amount())
			}
		}
	}
	rr.Job.State = uni.JobRunning
	u.UserRunCounts[rr.Job.Owner]++
	u.GroupRunCounts[rr.Job.Group]++
	u.ProjectRunCounts[rr.Job.Project]++

	if u.Fairshare != nil {
		if leaf := u.Fairshare.Find(rr.Job.FairshareEntity); leaf != nil {
			leaf.AddUsage(fairshareCost(rr))
		}
	}
	d.metrics.observeJobRun(rr)
	return nil
}

// fairshareCost is the resource-hours a run consumes against its entity's
// fair-share usage (SPEC_FULL.md E3: fair-share resource accounting; the
// specific resource weighted is the configured fair-share resource, here
// simplified to the consumable total of the select spec).
func fairshareCost(rr *uni.ResResv) float64 {
	var total float64
	for _, req := range rr.TotalRequest() {
		if req.Def.Kind.Consumable() {
			total += req.Value.Amount()
		}
	}
	hours := rr.Duration.Hours()
	if hours <= 0 {
		hours = 1
	}
	return total * hours
}

// preemptStatusCheckpointable is the bit of JobData.PreemptStatus this
// driver treats as "may be checkpointed" (spec leaves the exact bit layout
// to the implementation; decided here, see DESIGN.md Open Questions).
const preemptStatusCheckpointable uint32 = 1 << 0

func buildPreemptCandidates(u *uni.Universe, requesterLevel int) []preempt.Candidate {
	var out []preempt.Candidate
	for _, j := range u.Jobs {
		if j.Job == nil || !j.Job.State.Has(uni.JobRunning) {
			continue
		}
		if j.Job.PreemptPriority >= requesterLevel {
			continue
		}
		out = append(out, preempt.Candidate{
			ResResv:        j,
			Level:          j.Job.PreemptPriority,
			Checkpointable: j.Job.PreemptStatus&preemptStatusCheckpointable != 0,
			OverSoftLimit:  policy.CheckRunLimits(u, j) == policy.LimitSoft,
			StartTime:      j.Start,
		})
	}
	return out
}

// tryPreempt computes a minimal preemption set for rr over each preempt
// action in S/C/R/D order, bounded by attempts, and applies the first
// action that both fits the attempt budget and frees enough (spec §4.I).
func (d *Driver) tryPreempt(u *uni.Universe, rr *uni.ResResv, attempts *preempt.Attempts) bool {
	need := rr.TotalRequest()
	candidates := buildPreemptCandidates(u, rr.Job.PreemptPriority)
	if len(candidates) == 0 {
		return false
	}

	for _, action := range []preempt.Action{preempt.ActionSuspend, preempt.ActionCheckpoint, preempt.ActionRequeue, preempt.ActionDelete} {
		chosen, ok := preempt.SelectMinimalSet(need, rr.Job.PreemptPriority, action, candidates)
		if !ok || len(chosen) == 0 {
			continue
		}
		if !withinAttemptBudget(attempts, chosen) {
			continue
		}
		if err := d.issuePreempt(action, chosen); err != nil {
			d.Log.Error().Err(err).Str("job_id", rr.ID).Str("action", action.String()).Msg("preempt action failed")
			continue
		}
		applyPreemptLocally(u, chosen)
		d.metrics.observePreempt(action, len(chosen))
		return true
	}
	return false
}

func withinAttemptBudget(attempts *preempt.Attempts, chosen []preempt.Candidate) bool {
	used := map[int]bool{}
	for _, c := range chosen {
		if used[c.Level] {
			continue
		}
		if !attempts.TryUse(c.Level) {
			return false
		}
		used[c.Level] = true
	}
	return true
}

func (d *Driver) issuePreempt(action preempt.Action, chosen []preempt.Candidate) error {
	ids := make([]string, len(chosen))
	for i, c := range chosen {
		ids[i] = c.ResResv.ID
	}
	switch action {
	case preempt.ActionSuspend:
		for _, id := range ids {
			if err := d.Client.SigJob(id, ifl.SigSuspend); err != nil {
				return err
			}
		}
	case preempt.ActionCheckpoint:
		for _, id := range ids {
			if err := d.Client.SigJob(id, ifl.SigAdminSuspend); err != nil {
				return err
			}
		}
	default:
		return d.Client.PreemptJobs(ids)
	}
	return nil
}

// applyPreemptLocally updates the local universe eagerly, without waiting
// for the server's asynchronous state change (spec §4.I).
func applyPreemptLocally(u *uni.Universe, chosen []preempt.Candidate) {
	for _, c := range chosen {
		for _, ns := range c.ResResv.NSpecs {
			node := u.Nodes[ns.NodeIndex]
			for _, req := range ns.Reqs {
				if avail, ok := node.Resources[req.Def.Name]; ok {
					avail.Release(req.Value.Amount())
				}
			}
		}
		c.ResResv.Job.State = uni.JobSuspended
		c.ResResv.NSpecs = nil
		c.ResResv.Nodes = nil
	}
}

// backfillTopJob reserves rr a future slot by simulating forward from the
// live universe on a disposable clone until placement succeeds, then
// inserts run/end calendar events into the live universe so later jobs
// tested this cycle respect the window (spec §4.K step 6). At most one top
// job is chosen per cycle.
func (d *Driver) backfillTopJob(u *uni.Universe, rr *uni.ResResv) bool {
	clone := u.Clone()
	crr, ok := clone.JobByID(rr.ID)
	if !ok {
		return false
	}
	start, ok := estimateStart(clone, crr)
	if !ok {
		return false
	}
	end := start.Add(jobDuration(rr))

	runEvt := calendar.CreateEvent(rr.ID+"-run", uni.EventRun, start, rr.ID)
	endEvt := calendar.CreateEvent(rr.ID+"-end", uni.EventEnd, end, rr.ID)
	calendar.AddEvent(u, runEvt)
	calendar.AddEvent(u, endEvt)

	rr.Start, rr.End = start, end
	rr.Nodes = append([]int(nil), crr.Nodes...)
	rr.NSpecs = append([]uni.NSpec(nil), crr.NSpecs...)
	rr.Job.EstimatedStart = start
	rr.Job.EstimatedExecVnode = formatExecVnode(clone, rr.NSpecs)
	rr.CanNotRun = true
	rr.Errors.Addf(schderr.CodeBackfillConflict, "", "reserved as top job at "+start.Format(time.RFC3339))
	return true
}

func jobDuration(rr *uni.ResResv) time.Duration {
	if rr.Duration > 0 {
		return rr.Duration
	}
	return rr.HardDuration
}

// estimateStart probes placement after each calendar event in turn,
// advancing u's simulated time, until placement succeeds or the calendar
// is exhausted. This walks internal/calendar's event list directly rather
// than calendar.Simulate because Simulate's StopAtJobRunnable mode tests
// only the Runnable() flag, not resource fit (internal/reservation's
// Confirmer uses the analogous Simulate+Place-per-occurrence pattern for
// the same reason).
func estimateStart(u *uni.Universe, rr *uni.ResResv) (time.Time, bool) {
	rr.Errors = schderr.List{}
	if placement.Place(u, rr) {
		return u.ServerTime, true
	}
	cur := u.ServerTime
	for i, e := range u.Events {
		if e.Disabled || e.Time.Before(cur) {
			continue
		}
		if err := applyEvent(u, u.Events[i]); err != nil {
			return time.Time{}, false
		}
		cur = e.Time
		u.ServerTime = cur
		rr.Errors = schderr.List{}
		if placement.Place(u, rr) {
			return cur, true
		}
	}
	return time.Time{}, false
}

// applyEvent mirrors internal/reservation's unexported event-apply
// function: a run event assigns the target's chosen resources, an end
// event releases them (spec §4.F).
func applyEvent(u *uni.Universe, e *uni.Event) error {
	target, ok := u.ResResvByID(e.TargetID)
	if !ok {
		return nil
	}
	switch e.Type {
	case uni.EventRun:
		for _, ns := range target.NSpecs {
			node := u.Nodes[ns.NodeIndex]
			for _, req := range ns.Reqs {
				if avail, ok := node.Resources[req.Def.Name]; ok {
					avail.Assign(req.Value.Amount())
				}
			}
		}
	case uni.EventEnd:
		for _, ns := range target.NSpecs {
			node := u.Nodes[ns.NodeIndex]
			for _, req := range ns.Reqs {
				if avail, ok := node.Resources[req.Def.Name]; ok {
					avail.Release(req.Value.Amount())
				}
			}
		}
	}
	return nil
}

// formatExecVnode renders nspecs as a condensed execvnode string grouped
// by node, matching internal/reservation's unexported rendering.
func formatExecVnode(u *uni.Universe, nspecs []uni.NSpec) string {
	byNode := map[int]resource.ReqList{}
	var order []int
	for _, ns := range nspecs {
		if _, ok := byNode[ns.NodeIndex]; !ok {
			order = append(order, ns.NodeIndex)
		}
		byNode[ns.NodeIndex] = append(byNode[ns.NodeIndex], ns.Reqs...)
	}
	var parts []string
	for _, idx := range order {
		node := u.Nodes[idx]
		var fields []string
		for _, req := range byNode[idx] {
			fields = append(fields, fmt.Sprintf("%s=%s", req.Def.Name, req.Value.String()))
		}
		parts = append(parts, fmt.Sprintf("(%s:%s)", node.Name, strings.Join(fields, ":")))
	}
	return strings.Join(parts, "+")
}

// flushEstimates persists estimated start/execvnode for every job left
// can_not_run this cycle (spec §4.K step 7, §6 "estimated start-time
// write-back").
func (d *Driver) flushEstimates(u *uni.Universe, now time.Time) {
	if d.Store == nil {
		return
	}
	var estimates []store.Estimate
	for _, rr := range u.Jobs {
		if !rr.CanNotRun || rr.Job.EstimatedStart.IsZero() {
			continue
		}
		estimates = append(estimates, store.Estimate{
			JobID:       rr.ID,
			EstimatedAt: now,
			Start:       rr.Job.EstimatedStart,
			ExecVnode:   rr.Job.EstimatedExecVnode,
			Reason:      primaryReason(rr),
		})
	}
	if len(estimates) == 0 {
		return
	}
	if err := d.Store.PutEstimates(estimates); err != nil {
		d.Log.Error().Err(err).Msg("persisting estimated start times")
	}
}

// flushAudit records one decision row per job this cycle touched (optional
// Postgres sink, SPEC_FULL.md E2).
func (d *Driver) flushAudit(ctx context.Context, cycleID string, u *uni.Universe) {
	if d.Audit == nil {
		return
	}
	var decisions []audit.Decision
	for _, rr := range u.Jobs {
		outcome := "can_not_run"
		switch {
		case rr.Job.State.Has(uni.JobRunning) && !rr.CanNotRun:
			outcome = "ran"
		case rr.CanNeverRun:
			outcome = "can_never_run"
		}
		decisions = append(decisions, audit.Decision{
			CycleID:    cycleID,
			Time:       time.Now(),
			ObjectID:   rr.ID,
			ObjectKind: "job",
			Outcome:    outcome,
			Reason:     primaryReason(rr),
			ExecVnode:  rr.Job.EstimatedExecVnode,
		})
	}
	if len(decisions) == 0 {
		return
	}
	if err := d.Audit.RecordAll(ctx, decisions); err != nil {
		d.Log.Error().Err(err).Msg("recording cycle decisions")
	}
}

func (d *Driver) publish(typ events.Type, objectID, message string) {
	if d.Broker == nil {
		return
	}
	d.Broker.Publish(&events.Event{
		Type:     typ,
		Message:  message,
		Metadata: map[string]string{"object_id": objectID},
	})
}

func (d *Driver) finish(report Report, u *uni.Universe) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastReport = statusapi.CycleReport{
		CycleID:               report.CycleID,
		StartedAt:              report.StartedAt,
		Duration:               report.Duration,
		JobsRun:                report.JobsRun,
		JobsCanNotRun:          report.JobsCanNotRun,
		JobsPreempted:          report.JobsPreempted,
		ReservationsConfirmed:  report.ReservationsConfirmed,
	}
	d.haveReport = true
	if u != nil {
		d.lastStats = clusterStats(u)
		d.haveStats = true
	}
	d.metrics.observeCycle(report)
	d.publish(events.TypeCycleCompleted, report.CycleID, "")
}

// clusterStats summarizes a materialized universe for pkg/metrics'
// gauges; computed once at cycle end since the universe itself is
// discarded immediately after (spec §4.K step 7).
func clusterStats(u *uni.Universe) metrics.ClusterStats {
	stats := metrics.ClusterStats{
		NodesTotal:  len(u.Nodes),
		QueuesTotal: len(u.Queues),
	}
	for _, n := range u.Nodes {
		if n.SchedulingEligible() {
			stats.NodesEligible++
		}
	}
	for _, q := range u.Queues {
		if q.Startable() {
			stats.QueuesStarted++
		}
	}
	if u.Fairshare != nil {
		usage := map[string]float64{}
		for _, leaf := range u.Fairshare.Leaves() {
			usage[leaf.Name] = leaf.UsageFactor
		}
		stats.FairshareUsage = usage
	}
	return stats
}
