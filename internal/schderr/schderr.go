// Package schderr implements the scheduler's error-accumulation type
// (schd_error, spec §3/§7): an ordered list of reasons a placement or
// simulation attempt failed, classified into a three-tier permanence
// taxonomy that the cycle driver uses to decide retry-this-cycle vs.
// retry-next-cycle vs. give-up.
package schderr

import "fmt"

// Tier is the permanence class of an error code (spec §7).
type Tier int

const (
	TierRunLater Tier = iota
	TierNotRun
	TierNeverRun
)

func (t Tier) String() string {
	switch t {
	case TierRunLater:
		return "RUN_LATER"
	case TierNotRun:
		return "NOT_RUN"
	case TierNeverRun:
		return "NEVER_RUN"
	default:
		return "UNKNOWN"
	}
}

// Code is a specific classified failure reason.
type Code int

const (
	CodeNone Code = iota
	CodeInsufficientResource
	CodeNodeState
	CodeSharingConflict
	CodeAOEMismatch
	CodeLimitExceeded
	CodeNoNodeResource
	CodeQueueNotStarted
	CodeCanNotRun
	CodeCanNeverRun
	CodeNoFreeNodes
	CodeInvalidSelect
	CodeBackfillConflict
	CodeDedicatedTime
	CodeSimulationFailed
)

// codeTiers classifies each code into a permanence tier. Codes not listed
// default to TierNotRun.
var codeTiers = map[Code]Tier{
	CodeInsufficientResource: TierRunLater,
	CodeNodeState:            TierRunLater,
	CodeSharingConflict:      TierRunLater,
	CodeAOEMismatch:          TierRunLater,
	CodeLimitExceeded:        TierNotRun,
	CodeNoNodeResource:       TierNeverRun,
	CodeQueueNotStarted:      TierNotRun,
	CodeCanNotRun:            TierNotRun,
	CodeCanNeverRun:          TierNeverRun,
	CodeNoFreeNodes:          TierRunLater,
	CodeInvalidSelect:        TierNeverRun,
	CodeBackfillConflict:     TierNotRun,
	CodeDedicatedTime:        TierNotRun,
	CodeSimulationFailed:     TierNotRun,
}

func (c Code) Tier() Tier {
	if t, ok := codeTiers[c]; ok {
		return t
	}
	return TierNotRun
}

func (c Code) String() string {
	switch c {
	case CodeInsufficientResource:
		return "INSUFFICIENT_RESOURCE"
	case CodeNodeState:
		return "NODE_STATE"
	case CodeSharingConflict:
		return "SHARING_CONFLICT"
	case CodeAOEMismatch:
		return "AOE_MISMATCH"
	case CodeLimitExceeded:
		return "LIMIT_EXCEEDED"
	case CodeNoNodeResource:
		return "NO_NODE_RESOURCE"
	case CodeQueueNotStarted:
		return "QUEUE_NOT_STARTED"
	case CodeCanNotRun:
		return "CAN_NOT_RUN"
	case CodeCanNeverRun:
		return "CAN_NEVER_RUN"
	case CodeNoFreeNodes:
		return "NO_FREE_NODES"
	case CodeInvalidSelect:
		return "INVALID_SELECT"
	case CodeBackfillConflict:
		return "BACKFILL_CONFLICT"
	case CodeDedicatedTime:
		return "DEDICATED_TIME"
	case CodeSimulationFailed:
		return "SIMULATION_FAILED"
	default:
		return "NONE"
	}
}

// Entry is one reason record: a code, its resource (if per-resource),
// up to three string arguments, and an optional override message that
// replaces the default rendering.
type Entry struct {
	Code     Code
	Resource string
	Arg1     string
	Arg2     string
	Arg3     string
	Override string
}

func (e Entry) String() string {
	if e.Override != "" {
		return e.Override
	}
	if e.Resource != "" {
		return fmt.Sprintf("%s: resource=%s %s %s %s", e.Code, e.Resource, e.Arg1, e.Arg2, e.Arg3)
	}
	return fmt.Sprintf("%s: %s %s %s", e.Code, e.Arg1, e.Arg2, e.Arg3)
}

// List accumulates Entry records in the order they were raised.
type List struct {
	entries []Entry
}

func (l *List) Add(e Entry) {
	l.entries = append(l.entries, e)
}

func (l *List) Addf(code Code, resource string, args ...string) {
	e := Entry{Code: code, Resource: resource}
	if len(args) > 0 {
		e.Arg1 = args[0]
	}
	if len(args) > 1 {
		e.Arg2 = args[1]
	}
	if len(args) > 2 {
		e.Arg3 = args[2]
	}
	l.Add(e)
}

func (l *List) Empty() bool { return len(l.entries) == 0 }

func (l *List) Entries() []Entry { return l.entries }

// Primary returns the most-specific reason: the first entry whose tier is
// the most permanent (NEVER_RUN > NOT_RUN > RUN_LATER) seen in the list,
// per spec §7: "the first most-specific reason is used to update the job
// comment at cycle end".
func (l *List) Primary() (Entry, bool) {
	if len(l.entries) == 0 {
		return Entry{}, false
	}
	best := l.entries[0]
	for _, e := range l.entries[1:] {
		if e.Code.Tier() > best.Code.Tier() {
			best = e
		}
	}
	return best, true
}

// Tier returns the overall tier for the list: the most permanent tier
// among all entries, or TierRunLater if empty.
func (l *List) Tier() Tier {
	t := TierRunLater
	for _, e := range l.entries {
		if e.Code.Tier() > t {
			t = e.Code.Tier()
		}
	}
	return t
}

// Comment renders a user-visible job comment, truncated to maxLen
// (spec §7: "truncated to MAX_LOG_SIZE").
func (l *List) Comment(maxLen int) string {
	p, ok := l.Primary()
	if !ok {
		return ""
	}
	s := p.String()
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return s
}
