// Package reservation implements reservation confirmation (spec §4.J): for
// each confirmable reservation, a cloned universe is advanced occurrence by
// occurrence, the placement engine chooses an execvnode per occurrence, and
// the result is reported to the server and mirrored back into the live
// universe.
package reservation

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/quillhpc/qsched/internal/calendar"
	"github.com/quillhpc/qsched/internal/ifl"
	"github.com/quillhpc/qsched/internal/placement"
	"github.com/quillhpc/qsched/internal/resource"
	"github.com/quillhpc/qsched/internal/uni"
	"github.com/quillhpc/qsched/internal/workerpool"
)

const weekStep = 7 * 24 * time.Hour

// Confirmer runs the confirmation engine against the live universe,
// reporting decisions through an ifl.Client.
type Confirmer struct {
	Pool   *workerpool.Pool
	Client *ifl.Client
	Log    zerolog.Logger
}

func New(pool *workerpool.Pool, client *ifl.Client, log zerolog.Logger) *Confirmer {
	return &Confirmer{Pool: pool, Client: client, Log: log.With().Str("component", "reservation").Logger()}
}

// Result records one reservation's confirmation outcome.
type Result struct {
	ResvID    string
	Confirmed bool
	ExecVnode string
	Reason    string
}

// ConfirmAll confirms every confirmable reservation in live as of now (spec
// §4.J, §4.K step 4: "only confirm reservations this cycle"). The live
// universe is mutated in place for every reservation successfully
// confirmed; a failed reservation is marked ResvDeleted with its substate
// left at SubstateInConflict so the cycle driver can skip it this cycle.
func (c *Confirmer) ConfirmAll(live *uni.Universe, now time.Time) ([]Result, error) {
	var results []Result
	for _, rr := range live.Reservations {
		if rr.Kind != uni.KindResv || !rr.Resv.Confirmable(now) {
			continue
		}
		res, err := c.confirmOne(live, rr, now)
		if err != nil {
			c.Log.Error().Err(err).Str("resv_id", rr.ID).Msg("reservation confirmation failed")
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

func (c *Confirmer) confirmOne(live *uni.Universe, liveRR *uni.ResResv, now time.Time) (Result, error) {
	clone := live.Clone()
	rr, ok := clone.ResvByID(liveRR.ID)
	if !ok {
		return Result{}, fmt.Errorf("reservation: %s missing from cloned universe", liveRR.ID)
	}
	clone.ServerTime = now

	startIndex := rr.Resv.OccurrenceIndex
	if startIndex == 0 {
		startIndex = 1
	}
	total := rr.Resv.TotalOccurrences
	if total == 0 {
		total = 1
	}

	releaseDegradedOrAltered(clone, rr)

	baseStart := rr.Start
	baseDuration := rr.Duration
	if !rr.Resv.ReqStartStanding.IsZero() {
		baseStart = rr.Resv.ReqStartStanding
	}
	if rr.Resv.ReqDurationStanding > 0 {
		baseDuration = rr.Resv.ReqDurationStanding
	}

	var execVnodes []string
	for occ := startIndex; occ <= total; occ++ {
		occStart := baseStart.Add(time.Duration(occ-startIndex) * weekStep)
		occEnd := occStart.Add(baseDuration)

		if _, err := calendar.Simulate(clone, applyEvent, calendar.StopAtTime, occStart, ""); err != nil {
			return c.fail(live, liveRR, fmt.Sprintf("simulating to occurrence %d: %v", occ, err))
		}

		rr.Start, rr.End, rr.Duration = occStart, occEnd, baseDuration
		if !placement.Place(clone, rr) {
			reason := "no placement found"
			if e, ok := rr.Errors.Primary(); ok {
				reason = e.String()
			}
			return c.fail(live, liveRR, fmt.Sprintf("occurrence %d: %s", occ, reason))
		}
		execVnodes = append(execVnodes, formatExecVnode(clone, rr.NSpecs))
	}

	outcome := fmt.Sprintf("SUCCESS:partition=%s", firstNonEmpty(rr.Resv.Partition, "default"))
	condensed := strings.Join(execVnodes, ";")

	if c.Client != nil {
		ack, err := c.Client.ConfirmResv(liveRR.ID, condensed, baseStart, outcome)
		if err != nil {
			return Result{}, fmt.Errorf("reservation: reporting confirm-resv for %s: %w", liveRR.ID, err)
		}
		if !ack.Success {
			return c.fail(live, liveRR, "server rejected confirm-resv: "+ack.Message)
		}
	}

	mirror(live, liveRR, rr, execVnodes, startIndex, baseStart, baseDuration)
	return Result{ResvID: liveRR.ID, Confirmed: true, ExecVnode: condensed}, nil
}

func (c *Confirmer) fail(live *uni.Universe, liveRR *uni.ResResv, reason string) (Result, error) {
	if c.Client != nil {
		if _, err := c.Client.ConfirmResv(liveRR.ID, "", liveRR.Start, "FAIL"); err != nil {
			c.Log.Error().Err(err).Str("resv_id", liveRR.ID).Msg("reporting confirm-resv failure")
		}
	}
	liveRR.Resv.State = uni.ResvDeleted
	liveRR.Resv.Substate = uni.SubstateInConflict
	c.Log.Warn().Str("resv_id", liveRR.ID).Str("reason", reason).Msg("reservation confirmation failed")
	return Result{ResvID: liveRR.ID, Confirmed: false, Reason: reason}, nil
}

// releaseDegradedOrAltered releases the resources currently assigned to
// rr's existing allocation before re-running placement: the degraded path
// (a running reservation that lost vnodes) and the alter-reduce path both
// need their prior allocation's resources freed before being re-searched
// (spec §4.J: "Release the occurrence's previously-held nodes").
func releaseDegradedOrAltered(clone *uni.Universe, rr *uni.ResResv) {
	if rr.Resv.Substate != uni.SubstateDegraded && rr.Resv.State != uni.ResvBeingAltered {
		return
	}
	for _, ns := range rr.NSpecs {
		if ns.NodeIndex < 0 || ns.NodeIndex >= len(clone.Nodes) {
			continue
		}
		node := clone.Nodes[ns.NodeIndex]
		for _, req := range ns.Reqs {
			if avail, ok := node.Resources[req.Def.Name]; ok {
				avail.Release(req.Value.Amount())
			}
		}
	}
}

// applyEvent applies a calendar event's resource effect during
// confirmation simulation: a run event assigns the target's chosen
// resources, an end event releases them (spec §4.F).
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

// mirror copies the confirmed occurrence chain's allocation back onto the
// live universe's reservation and materializes any additional occurrences
// beyond the first as separate resource_resvs, matching the shape
// internal/materialize builds from a stat-resv reply (spec §4.J step 4).
func mirror(live *uni.Universe, liveRR, simRR *uni.ResResv, execVnodes []string, startIndex int, baseStart time.Time, baseDuration time.Duration) {
	liveRR.Resv.State = uni.ResvConfirmed
	liveRR.Resv.Substate = uni.SubstateNormal
	liveRR.Resv.ExecVnodeSeq = execVnodes
	liveRR.Start = baseStart
	liveRR.Duration = baseDuration
	liveRR.End = baseStart.Add(baseDuration)
	liveRR.NSpecs = simRR.NSpecs
	liveRR.Nodes = simRR.Nodes
	liveRR.Resv.ResvNodes = simRR.Nodes

	for _, ns := range simRR.NSpecs {
		node := live.Nodes[ns.NodeIndex]
		for _, req := range ns.Reqs {
			if avail, ok := node.Resources[req.Def.Name]; ok {
				avail.Assign(req.Value.Amount())
			}
		}
	}

	for i := range execVnodes[1:] {
		occIndex := startIndex + i + 1
		occStart := baseStart.Add(time.Duration(occIndex-startIndex) * weekStep)
		occID := fmt.Sprintf("%s.occ%d", liveRR.ID, occIndex)
		if _, exists := live.ResvByID(occID); exists {
			continue
		}
		clone := &uni.ResResv{
			ID: occID, Kind: uni.KindResv, Select: liveRR.Select, Place: liveRR.Place,
			Start: occStart, End: occStart.Add(baseDuration), Duration: baseDuration,
			Resv: &uni.ResvData{
				Recurrence: liveRR.Resv.Recurrence, Timezone: liveRR.Resv.Timezone,
				OccurrenceIndex: occIndex, TotalOccurrences: liveRR.Resv.TotalOccurrences,
				ExecVnodeSeq: execVnodes, State: uni.ResvConfirmed,
				ParentID: liveRR.ID, Partition: liveRR.Resv.Partition,
			},
		}
		live.AddReservation(clone)
	}
}

// formatExecVnode renders nspecs as a condensed execvnode string grouped
// by node, e.g. "(n1:ncpus=8)+(n2:ncpus=8)".
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

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
