// Package preempt implements the scheduler's preemption engine (spec
// §4.I): selecting a minimal set of lower-priority running jobs whose
// termination frees exactly what a blocked higher-priority job needs.
package preempt

import (
	"sort"
	"time"

	"github.com/quillhpc/qsched/internal/resource"
	"github.com/quillhpc/qsched/internal/uni"
)

// Action is a preempt-order token (spec §4.I: "S/C/R/D").
type Action int

const (
	ActionSuspend Action = iota
	ActionCheckpoint
	ActionRequeue
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionSuspend:
		return "suspend"
	case ActionCheckpoint:
		return "checkpoint"
	case ActionRequeue:
		return "requeue"
	case ActionDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Candidate is a running job under consideration as a preemption victim.
type Candidate struct {
	ResResv       *uni.ResResv
	Level         int  // preempt priority; lower is more preemptable
	Checkpointable bool
	OverSoftLimit bool
	StartTime     time.Time
}

// Attempts tracks the per-level preempt-attempt budget for one cycle
// (spec §4.I: "per-level attempt count per cycle is bounded by
// preempt_attempts").
type Attempts struct {
	limit int
	used  map[int]int
}

func NewAttempts(limit int) *Attempts {
	return &Attempts{limit: limit, used: map[int]int{}}
}

func (a *Attempts) TryUse(level int) bool {
	if a.used[level] >= a.limit {
		return false
	}
	a.used[level]++
	return true
}

// eligible reports whether a candidate may be preempted on behalf of a
// requester at requesterLevel using action, per spec §4.I constraints:
// the victim's level must be strictly lower than the requester's, and the
// victim must permit the requested action.
func eligible(c Candidate, requesterLevel int, action Action) bool {
	if c.Level >= requesterLevel {
		return false
	}
	if action == ActionCheckpoint && !c.Checkpointable {
		return false
	}
	return true
}

// sortForSelection orders candidates by preempt_sort: soft-limit violators
// first (spec §4.I "a victim over a soft limit... may be preferred"), then
// by min_time_since_start (the job that started most recently is preempted
// first, minimizing lost work... spec names min_time_since_start as the
// configured key without further detail, so ties favor the newest start).
func sortForSelection(candidates []Candidate) []Candidate {
	out := append([]Candidate(nil), candidates...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].OverSoftLimit != out[j].OverSoftLimit {
			return out[i].OverSoftLimit
		}
		return out[i].StartTime.After(out[j].StartTime)
	})
	return out
}

// freed sums the consumable resources a candidate's running job currently
// holds, by resource name.
func freed(c Candidate) map[string]float64 {
	out := map[string]float64{}
	for _, ns := range c.ResResv.NSpecs {
		for _, req := range ns.Reqs {
			if req.Def.Kind.Consumable() {
				out[req.Def.Name] += req.Value.Amount()
			}
		}
	}
	return out
}

// SelectMinimalSet computes the smallest prefix of the sorted candidate
// list whose cumulative freed resources satisfy need (spec §4.I: "the
// smallest collection of running lower-priority jobs whose termination
// frees exactly what is needed"). Returns false if no prefix suffices.
func SelectMinimalSet(need resource.ReqList, requesterLevel int, action Action, candidates []Candidate) ([]Candidate, bool) {
	sorted := sortForSelection(candidates)

	remaining := map[string]float64{}
	for _, r := range need {
		if r.Def.Kind.Consumable() {
			remaining[r.Def.Name] = r.Value.Amount()
		}
	}

	var chosen []Candidate
	for _, c := range sorted {
		if allZero(remaining) {
			break
		}
		if !eligible(c, requesterLevel, action) {
			continue
		}
		gain := freed(c)
		useful := false
		for name, amt := range gain {
			if remaining[name] > 1e-9 {
				useful = true
				remaining[name] -= amt
				if remaining[name] < 0 {
					remaining[name] = 0
				}
			}
		}
		if useful {
			chosen = append(chosen, c)
		}
	}

	return chosen, allZero(remaining)
}

func allZero(m map[string]float64) bool {
	for _, v := range m {
		if v > 1e-9 {
			return false
		}
	}
	return true
}
