// Package policy implements the scheduler's per-cycle policy: sort
// ordering, starving detection, preempt-level assignment, equivalence
// classing, prime/dedicated time and node partitions, and per-entity run
// limits (spec §4.H, supplemented per SPEC_FULL.md E3).
package policy

import (
	"fmt"
	"sort"
	"time"

	"github.com/quillhpc/qsched/internal/uni"
)

// SortKey names one key in a multi-key sort vector. Direction is
// ascending unless Descending is set.
type SortKey struct {
	Name       string // a resource name, "formula", "fairshare", "eligible_time", "queue_priority"
	Descending bool
}

// Policy is the per-cycle status struct (spec §4.H).
type Policy struct {
	RoundRobin     bool
	ByQueue        bool
	StrictFIFO     bool
	StrictOrdering bool
	FairShare      bool
	HelpStarving   bool
	Backfill       bool
	SortNodes      bool
	BackfillPrime  bool
	Preempting     bool

	CurrentTime     time.Time
	IsPrimeTime     bool
	IsDedicatedTime bool

	JobSortKeys  []SortKey
	NodeSortKeys []SortKey

	JobSortFormula string

	MaxStarve time.Duration

	// PrimeWindows / DedicatedWindows are configured clock windows used to
	// clip backfill-prime top-job reservations at a prime/non-prime or
	// dedicated-time boundary (SPEC_FULL.md E3).
	PrimeWindows     []TimeWindow
	DedicatedWindows []TimeWindow

	// Partitions names the node partitions configured on the cluster, each
	// a disjoint subset of node names (SPEC_FULL.md E3).
	Partitions map[string][]string
}

// TimeWindow is a daily [Start, End) clock window in minutes-since-midnight.
type TimeWindow struct {
	StartMinute int
	EndMinute   int
}

// Contains reports whether t's time-of-day falls within w.
func (w TimeWindow) Contains(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	if w.StartMinute <= w.EndMinute {
		return m >= w.StartMinute && m < w.EndMinute
	}
	// Window wraps midnight.
	return m >= w.StartMinute || m < w.EndMinute
}

func New() *Policy {
	return &Policy{Partitions: map[string][]string{}}
}

// RecomputeTimeFlags refreshes IsPrimeTime/IsDedicatedTime for now.
func (p *Policy) RecomputeTimeFlags(now time.Time) {
	p.CurrentTime = now
	p.IsPrimeTime = false
	for _, w := range p.PrimeWindows {
		if w.Contains(now) {
			p.IsPrimeTime = true
			break
		}
	}
	p.IsDedicatedTime = false
	for _, w := range p.DedicatedWindows {
		if w.Contains(now) {
			p.IsDedicatedTime = true
			break
		}
	}
}

// ClipToPrimeBoundary returns the earliest time >= from that is a
// prime/non-prime transition boundary on or after from, used by
// backfill-prime to bound a top job's reserved window at the boundary
// (SPEC_FULL.md E3). If no window applies, from is returned unchanged.
func (p *Policy) ClipToPrimeBoundary(from time.Time) time.Time {
	if !p.BackfillPrime {
		return from
	}
	best := from
	found := false
	for _, w := range p.PrimeWindows {
		for _, boundaryMinute := range []int{w.StartMinute, w.EndMinute} {
			cand := atMinute(from, boundaryMinute)
			if cand.Before(from) {
				cand = cand.Add(24 * time.Hour)
			}
			if !found || cand.Before(best) {
				best, found = cand, true
			}
		}
	}
	if !found {
		return from
	}
	return best
}

func atMinute(ref time.Time, minute int) time.Time {
	midnight := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, ref.Location())
	return midnight.Add(time.Duration(minute) * time.Minute)
}

// PartitionOf returns the partition name containing node, or "" if none.
func (p *Policy) PartitionOf(node string) string {
	for name, nodes := range p.Partitions {
		for _, n := range nodes {
			if n == node {
				return name
			}
		}
	}
	return ""
}

// Starving reports whether rr has been eligible longer than MaxStarve
// (spec §4.G: "a job becomes starving once its age exceeds max_starve").
func (p *Policy) Starving(rr *uni.ResResv) bool {
	if !rr.IsJob() || rr.Job.EligibleAt.IsZero() {
		return false
	}
	return p.CurrentTime.Sub(rr.Job.EligibleAt) > p.MaxStarve
}

// formulaVars supplies named values to the job_sort_formula evaluator,
// typically resource request amounts and job metadata.
type formulaVars map[string]float64

// EvaluateFormula evaluates p.JobSortFormula against vars, supporting
// +, -, *, /, unary -, parentheses, numeric literals, and named variables
// (SPEC_FULL.md E3 job_sort_formula).
func (p *Policy) EvaluateFormula(vars map[string]float64) (float64, error) {
	if p.JobSortFormula == "" {
		return 0, nil
	}
	toks, err := tokenizeFormula(p.JobSortFormula)
	if err != nil {
		return 0, err
	}
	parser := &formulaParser{toks: toks, vars: formulaVars(vars)}
	val, err := parser.parseExpr()
	if err != nil {
		return 0, err
	}
	if parser.pos != len(parser.toks) {
		return 0, fmt.Errorf("policy: unexpected trailing tokens in formula %q", p.JobSortFormula)
	}
	return val, nil
}

// SortJobs stably sorts jobs by JobSortKeys, with valueOf supplying each
// key's value for a job (spec §4.H: "stable, multi-key... the sorted job
// list is the outer loop of a cycle").
func (p *Policy) SortJobs(jobs []*uni.ResResv, valueOf func(rr *uni.ResResv, key SortKey) float64) {
	sort.SliceStable(jobs, func(i, j int) bool {
		for _, key := range p.JobSortKeys {
			vi := valueOf(jobs[i], key)
			vj := valueOf(jobs[j], key)
			if vi == vj {
				continue
			}
			if key.Descending {
				return vi > vj
			}
			return vi < vj
		}
		return jobs[i].SeqRank < jobs[j].SeqRank
	})
}

// SortNodes stably sorts node indices by NodeSortKeys, falling back to
// numeric rank for determinism (spec §4.E: "ties are broken by the node's
// numeric rank").
func (p *Policy) SortNodes(u *uni.Universe, idx []int, valueOf func(n *uni.Node, key SortKey) float64) {
	sort.SliceStable(idx, func(i, j int) bool {
		ni, nj := u.Nodes[idx[i]], u.Nodes[idx[j]]
		for _, key := range p.NodeSortKeys {
			vi := valueOf(ni, key)
			vj := valueOf(nj, key)
			if vi == vj {
				continue
			}
			if key.Descending {
				return vi > vj
			}
			return vi < vj
		}
		return ni.Rank < nj.Rank
	})
}
