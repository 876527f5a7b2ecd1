package uni

import "github.com/quillhpc/qsched/internal/resource"

// LimitSet holds a hard and soft counter limit for one entity dimension
// (user, group, or project), as configured on a queue or server (spec §3,
// supplemented per original PBS queue/server limit attributes).
type LimitSet struct {
	MaxRun      map[string]int // entity name -> hard running-job limit; "" = overall
	MaxRunSoft  map[string]int
	MaxQueued   map[string]int
	MaxQueuedSoft map[string]int
}

func NewLimitSet() *LimitSet {
	return &LimitSet{
		MaxRun:        map[string]int{},
		MaxRunSoft:    map[string]int{},
		MaxQueued:     map[string]int{},
		MaxQueuedSoft: map[string]int{},
	}
}

// Queue is a queue_info (spec §3).
type Queue struct {
	Name    string
	Started bool
	Enabled bool

	Resources map[string]*resource.Available

	UserLimits    *LimitSet
	GroupLimits   *LimitSet
	ProjectLimits *LimitSet

	NodeAssoc bool
	NodeIdx   []int // indices into Universe.Nodes, valid when NodeAssoc

	PrimeTimeOnly bool
	DedicatedOnly bool

	IsResvQueue bool
	ResvID      string

	Partition string
}

// Startable reports whether jobs in this queue may be considered at all
// this cycle (spec §4.E step 1).
func (q *Queue) Startable() bool {
	return q.Started && q.Enabled
}
