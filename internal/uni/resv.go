package uni

import "time"

// ResvState is the reservation's top-level lifecycle state (spec §3).
type ResvState int

const (
	ResvUnconfirmed ResvState = iota
	ResvConfirmed
	ResvRunning
	ResvBeingAltered
	ResvDeletingJobs
	ResvDeleted
)

func (s ResvState) String() string {
	switch s {
	case ResvUnconfirmed:
		return "UNCONFIRMED"
	case ResvConfirmed:
		return "CONFIRMED"
	case ResvRunning:
		return "RUNNING"
	case ResvBeingAltered:
		return "BEING_ALTERED"
	case ResvDeletingJobs:
		return "DELETING_JOBS"
	case ResvDeleted:
		return "DELETED"
	default:
		return "UNKNOWN"
	}
}

// ResvSubstate refines State with degraded/conflict/alter-history info.
type ResvSubstate int

const (
	SubstateNormal ResvSubstate = iota
	SubstateDegraded
	SubstateInConflict
	SubstateAlteredOrigValues
)

func (s ResvSubstate) String() string {
	switch s {
	case SubstateDegraded:
		return "DEGRADED"
	case SubstateInConflict:
		return "IN_CONFLICT"
	case SubstateAlteredOrigValues:
		return "ALTERED_ORIG_VALUES"
	default:
		return "NORMAL"
	}
}

// ResvData is the reservation-specific payload of a resource_resv (spec §3).
type ResvData struct {
	Recurrence string
	Timezone   string

	OccurrenceIndex  int
	TotalOccurrences int
	ExecVnodeSeq     []string // one condensed execvnode string per occurrence

	State    ResvState
	Substate ResvSubstate

	RetryTime time.Time
	Partition string

	ParentID string // for materialized occurrences > 1, the standing resv's id

	// Captured at the first alter of a standing reservation so later
	// occurrences keep using the pre-alter schedule (spec §4.J).
	ReqStartStanding    time.Time
	ReqDurationStanding time.Duration

	ResvNodes []int // indices into Universe.Nodes; the reservation's own universe
}

// Confirmable reports whether this reservation should be (re)confirmed
// this cycle: unconfirmed, being altered, or confirmed-but-degraded with a
// retry time in the past (spec §4.J).
func (r *ResvData) Confirmable(now time.Time) bool {
	switch r.State {
	case ResvUnconfirmed, ResvBeingAltered:
		return true
	case ResvConfirmed:
		return r.Substate == SubstateDegraded && !r.RetryTime.After(now)
	default:
		return false
	}
}
