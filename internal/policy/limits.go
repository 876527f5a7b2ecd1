package policy

import "github.com/quillhpc/qsched/internal/uni"

// LimitKind distinguishes a hard limit (job is NEVER_RUN blocked) from a
// soft limit (job is RUN_LATER blocked and is a preferred preemption
// target), per SPEC_FULL.md E3.
type LimitKind int

const (
	LimitNone LimitKind = iota
	LimitSoft
	LimitHard
)

// CheckRunLimits reports whether rr may start given the queue's current
// per-user/group/project running counts (SPEC_FULL.md E3: per-queue/user/
// group/project max_run/max_queued limits). It checks the overall ("")
// limit and the entity-specific limit, returning the most restrictive.
func CheckRunLimits(u *uni.Universe, rr *uni.ResResv) LimitKind {
	if !rr.IsJob() {
		return LimitNone
	}
	q, ok := u.Queues[rr.Job.Queue]
	if !ok || q.UserLimits == nil {
		return LimitNone
	}

	worst := LimitNone
	check := func(limits *uni.LimitSet, entity string, count int) {
		if limits == nil {
			return
		}
		if max, ok := hardLimit(limits.MaxRun, ""); ok && count >= max {
			worst = maxKind(worst, LimitHard)
		}
		if max, ok := hardLimit(limits.MaxRun, entity); ok && count >= max {
			worst = maxKind(worst, LimitHard)
		}
		if max, ok := hardLimit(limits.MaxRunSoft, ""); ok && count >= max {
			worst = maxKind(worst, LimitSoft)
		}
		if max, ok := hardLimit(limits.MaxRunSoft, entity); ok && count >= max {
			worst = maxKind(worst, LimitSoft)
		}
	}

	check(q.UserLimits, rr.Job.Owner, u.UserRunCounts[rr.Job.Owner])
	check(q.GroupLimits, rr.Job.Group, u.GroupRunCounts[rr.Job.Group])
	check(q.ProjectLimits, rr.Job.Project, u.ProjectRunCounts[rr.Job.Project])
	return worst
}

func hardLimit(m map[string]int, key string) (int, bool) {
	v, ok := m[key]
	return v, ok
}

func maxKind(a, b LimitKind) LimitKind {
	if b > a {
		return b
	}
	return a
}
