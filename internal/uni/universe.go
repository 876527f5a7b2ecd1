package uni

import (
	"time"

	"github.com/quillhpc/qsched/internal/fairshare"
	"github.com/quillhpc/qsched/internal/resource"
)

// Universe is the per-cycle world (server_info, spec §3): the root of all
// jobs, queues, nodes, and reservations plus the calendar and fair-share
// tree. A Universe is created when the cycle materializes the server
// snapshot, mutated only by the cycle that owns it, and discarded at cycle
// end; only the Fairshare tree and its usage counters outlive it.
type Universe struct {
	Name       string
	ServerTime time.Time

	// Jobs holds every resource_resv with Kind == KindJob; Reservations
	// holds every resource_resv with Kind == KindResv. Both are indexed by
	// ID via JobByID/ResvByID for O(1) lookup.
	Jobs         []*ResResv
	Reservations []*ResResv
	jobIndex     map[string]int
	resvIndex    map[string]int

	Queues   map[string]*Queue
	Nodes    []*Node
	nodeByID map[string]int

	Events []*Event

	Fairshare *fairshare.Node

	EquivClasses []*EquivClass

	// PlacementSets maps a placement-set key (e.g. a resource value like
	// a switch or rack name) to the node indices sharing it. The global
	// set is keyed "".
	PlacementSets map[string][]int

	PreemptCounts map[int]int // attempts used this cycle, by preempt level

	UserRunCounts    map[string]int
	GroupRunCounts   map[string]int
	ProjectRunCounts map[string]int

	ServerResources map[string]*resource.Available

	IsPrimeTime     bool
	IsDedicatedTime bool
}

func NewUniverse() *Universe {
	return &Universe{
		Queues:           make(map[string]*Queue),
		jobIndex:         make(map[string]int),
		resvIndex:        make(map[string]int),
		nodeByID:         make(map[string]int),
		PlacementSets:    make(map[string][]int),
		PreemptCounts:    make(map[int]int),
		UserRunCounts:    make(map[string]int),
		GroupRunCounts:   make(map[string]int),
		ProjectRunCounts: make(map[string]int),
		ServerResources:  make(map[string]*resource.Available),
	}
}

func (u *Universe) AddJob(rr *ResResv) {
	u.jobIndex[rr.ID] = len(u.Jobs)
	u.Jobs = append(u.Jobs, rr)
}

func (u *Universe) AddReservation(rr *ResResv) {
	u.resvIndex[rr.ID] = len(u.Reservations)
	u.Reservations = append(u.Reservations, rr)
}

func (u *Universe) AddNode(n *Node) {
	n.Index = len(u.Nodes)
	u.nodeByID[n.Name] = n.Index
	u.Nodes = append(u.Nodes, n)
}

func (u *Universe) JobByID(id string) (*ResResv, bool) {
	i, ok := u.jobIndex[id]
	if !ok {
		return nil, false
	}
	return u.Jobs[i], true
}

func (u *Universe) ResvByID(id string) (*ResResv, bool) {
	i, ok := u.resvIndex[id]
	if !ok {
		return nil, false
	}
	return u.Reservations[i], true
}

func (u *Universe) NodeByName(name string) (*Node, bool) {
	i, ok := u.nodeByID[name]
	if !ok {
		return nil, false
	}
	return u.Nodes[i], true
}

// ResResvByID finds either a job or a reservation by id, since calendar
// events and nspec records reference resource_resv generically.
func (u *Universe) ResResvByID(id string) (*ResResv, bool) {
	if rr, ok := u.JobByID(id); ok {
		return rr, true
	}
	return u.ResvByID(id)
}

// NodesUnassociated returns the indices of nodes with no queue association,
// the candidate universe for jobs whose queue has no node-set (spec §4.E
// step 2).
func (u *Universe) NodesUnassociated() []int {
	var out []int
	for i, n := range u.Nodes {
		if n.Queue == "" {
			out = append(out, i)
		}
	}
	return out
}

// Clone deep-copies the universe's mutable state: nodes, queue resource
// counters, and events. Job/reservation identities are copied by value
// reference (a fresh ResResv struct) so a cloned universe can be placed
// into independently of the live one (spec §4.J reservation confirmation,
// §4.M duplication). The copy runs serially on the caller's goroutine.
func (u *Universe) Clone() *Universe {
	cp := NewUniverse()
	cp.Name = u.Name
	cp.ServerTime = u.ServerTime
	cp.IsPrimeTime = u.IsPrimeTime
	cp.IsDedicatedTime = u.IsDedicatedTime
	cp.Fairshare = u.Fairshare

	for _, n := range u.Nodes {
		cp.AddNode(n.Clone())
	}
	for name, q := range u.Queues {
		qc := *q
		qc.Resources = make(map[string]*resource.Available, len(q.Resources))
		for k, v := range q.Resources {
			qc.Resources[k] = v.Clone()
		}
		cp.Queues[name] = &qc
	}
	for _, rr := range u.Jobs {
		cp.AddJob(cloneResResv(rr))
	}
	for _, rr := range u.Reservations {
		cp.AddReservation(cloneResResv(rr))
	}
	cp.Events = make([]*Event, len(u.Events))
	for i, e := range u.Events {
		ec := *e
		cp.Events[i] = &ec
	}
	for k, v := range u.ServerResources {
		cp.ServerResources[k] = v.Clone()
	}
	return cp
}

func cloneResResv(rr *ResResv) *ResResv {
	cp := *rr
	cp.Nodes = append([]int(nil), rr.Nodes...)
	cp.NSpecs = append([]NSpec(nil), rr.NSpecs...)
	if rr.Job != nil {
		j := *rr.Job
		cp.Job = &j
	}
	if rr.Resv != nil {
		r := *rr.Resv
		r.ResvNodes = append([]int(nil), rr.Resv.ResvNodes...)
		cp.Resv = &r
	}
	return &cp
}
