package uni

import (
	"time"

	"github.com/quillhpc/qsched/internal/rangeset"
	"github.com/quillhpc/qsched/internal/resource"
)

// JobState is a bitmask of the job's lifecycle flags (spec §3).
type JobState uint32

const (
	JobQueued JobState = 1 << iota
	JobRunning
	JobHeld
	JobWaiting
	JobTransit
	JobExiting
	JobSuspended
	JobSuspSched
	JobUserBusy
	JobBegin
	JobExpired
	JobCheckpointed
)

func (s JobState) Has(bit JobState) bool { return s&bit != 0 }

// AccrueType classifies why a job's eligible-time clock is or is not
// running (supplemental feature, spec §9 original-source parity).
type AccrueType int

const (
	AccrueIneligible AccrueType = iota
	AccrueEligible
	AccrueRunning
)

// JobData is the job-specific payload of a resource_resv (spec §3).
type JobData struct {
	Owner   string
	Group   string
	Project string
	Queue   string

	State JobState

	IsArray        bool
	QueuedSubjobs  *rangeset.Range
	ParentArrayID  string

	PreemptPriority int
	PreemptStatus   uint32

	EstimatedStart     time.Time
	EstimatedExecVnode string

	Dependencies []string

	Accrue      AccrueType
	EligibleAt  time.Time

	FairshareEntity string

	ReleaseOnSuspend resource.ReqList

	FormulaValue float64
}
