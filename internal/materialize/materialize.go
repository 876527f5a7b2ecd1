// Package materialize converts per-cycle batch-status records (the
// already-decoded results of stat-server/stat-queue(*)/stat-sched/
// stat-node(*)/stat-resv(*)/selstat requests, spec §4.C) into the
// internal/uni universe. A record that fails validation is ignored with a
// warning rather than aborting the cycle; only the record's own data is
// dropped.
package materialize

import (
	"fmt"
	"strings"
	"time"

	"github.com/quillhpc/qsched/internal/resource"
	"github.com/quillhpc/qsched/internal/uni"
)

// Warning records one ignored-with-warning record (spec §4.C).
type Warning struct {
	Object string
	Reason string
}

func (w Warning) String() string { return fmt.Sprintf("%s: %s", w.Object, w.Reason) }

// Materializer accumulates warnings across one cycle's worth of
// conversions and resolves the resource Registry every record's values
// are checked against.
type Materializer struct {
	Registry *resource.Registry
	Warnings []Warning
}

func New(reg *resource.Registry) *Materializer {
	return &Materializer{Registry: reg}
}

func (m *Materializer) warn(object, reason string) {
	m.Warnings = append(m.Warnings, Warning{Object: object, Reason: reason})
}

// ServerRecord is the decoded stat-server reply.
type ServerRecord struct {
	Time      time.Time
	Resources map[string]resource.Value
}

// Server populates u's server time and server-level resources.
func (m *Materializer) Server(u *uni.Universe, rec ServerRecord) {
	u.ServerTime = rec.Time
	for name, val := range rec.Resources {
		def, ok := m.Registry.Lookup(name)
		if !ok {
			m.warn("server", "unknown resource "+name)
			continue
		}
		u.ServerResources[name] = &resource.Available{Def: def, Avail: val}
	}
}

// QueueRecord is one decoded stat-queue reply entry.
type QueueRecord struct {
	Name    string
	Started bool
	Enabled bool

	Resources map[string]resource.Value

	NodeAssoc bool

	MaxRun, MaxRunSoft         map[string]int
	MaxQueued, MaxQueuedSoft   map[string]int
	UserMaxRun, UserMaxRunSoft map[string]int
	GroupMaxRun, GroupMaxRunSoft map[string]int
	ProjectMaxRun, ProjectMaxRunSoft map[string]int

	PrimeTimeOnly bool
	DedicatedOnly bool

	IsResvQueue bool
	ResvID      string

	Partition string
}

// Queue converts one QueueRecord, returning false (and recording a
// warning) if the record has no identity (spec §4.C: "missing identity").
func (m *Materializer) Queue(u *uni.Universe, rec QueueRecord) bool {
	if rec.Name == "" {
		m.warn("queue", "missing identity")
		return false
	}
	q := &uni.Queue{
		Name:          rec.Name,
		Started:       rec.Started,
		Enabled:       rec.Enabled,
		Resources:     map[string]*resource.Available{},
		NodeAssoc:     rec.NodeAssoc,
		PrimeTimeOnly: rec.PrimeTimeOnly,
		DedicatedOnly: rec.DedicatedOnly,
		IsResvQueue:   rec.IsResvQueue,
		ResvID:        rec.ResvID,
		Partition:     rec.Partition,
	}
	for name, val := range rec.Resources {
		def, ok := m.Registry.Lookup(name)
		if !ok {
			m.warn(rec.Name, "unknown resource "+name)
			continue
		}
		q.Resources[name] = &resource.Available{Def: def, Avail: val}
	}
	q.UserLimits = limitSet(rec.UserMaxRun, rec.UserMaxRunSoft, rec.MaxQueued, rec.MaxQueuedSoft)
	q.GroupLimits = limitSet(rec.GroupMaxRun, rec.GroupMaxRunSoft, nil, nil)
	q.ProjectLimits = limitSet(rec.ProjectMaxRun, rec.ProjectMaxRunSoft, nil, nil)
	if rec.MaxRun != nil || rec.MaxRunSoft != nil {
		if q.UserLimits.MaxRun == nil {
			q.UserLimits.MaxRun = map[string]int{}
		}
		for k, v := range rec.MaxRun {
			q.UserLimits.MaxRun[k] = v
		}
		for k, v := range rec.MaxRunSoft {
			q.UserLimits.MaxRunSoft[k] = v
		}
	}
	u.Queues[q.Name] = q
	return true
}

func limitSet(maxRun, maxRunSoft, maxQueued, maxQueuedSoft map[string]int) *uni.LimitSet {
	ls := uni.NewLimitSet()
	for k, v := range maxRun {
		ls.MaxRun[k] = v
	}
	for k, v := range maxRunSoft {
		ls.MaxRunSoft[k] = v
	}
	for k, v := range maxQueued {
		ls.MaxQueued[k] = v
	}
	for k, v := range maxQueuedSoft {
		ls.MaxQueuedSoft[k] = v
	}
	return ls
}

// NodeRecord is one decoded stat-node reply entry. Indirect maps a
// resource name to the vnode name it is indirect upon; resolution happens
// once, after every node in the batch has been added (spec §4.D).
type NodeRecord struct {
	Name  string
	Host  string
	Rank  int
	State uni.NodeState

	Resources map[string]resource.Value
	Indirect  map[string]string

	Queue         string
	Partition     string
	PlacementPool string
}

// Nodes converts a full stat-node(*) batch in one pass so indirect
// resources (which may point at a vnode appearing later in the batch) can
// be resolved afterward.
func (m *Materializer) Nodes(u *uni.Universe, recs []NodeRecord) {
	type pending struct {
		nodeIndex        int
		resourceName     string
		targetVnode      string
	}
	var toResolve []pending

	for _, rec := range recs {
		if rec.Name == "" {
			m.warn("node", "missing identity")
			continue
		}
		n := &uni.Node{
			Name: rec.Name, Rank: rec.Rank, Host: rec.Host, Queue: rec.Queue,
			State: rec.State, Partition: rec.Partition, PlacementPool: rec.PlacementPool,
			Resources: map[string]*resource.Available{},
		}
		for name, val := range rec.Resources {
			def, ok := m.Registry.Lookup(name)
			if !ok {
				m.warn(rec.Name, "unknown resource "+name)
				continue
			}
			n.Resources[name] = &resource.Available{Def: def, Avail: val}
		}
		u.AddNode(n)
		for resName, target := range rec.Indirect {
			toResolve = append(toResolve, pending{nodeIndex: n.Index, resourceName: resName, targetVnode: target})
		}
	}

	for _, p := range toResolve {
		src := u.Nodes[p.nodeIndex]
		targetNode, ok := u.NodeByName(p.targetVnode)
		if !ok {
			m.warn(src.Name, "indirect target vnode not found: "+p.targetVnode)
			continue
		}
		targetAvail, ok := targetNode.Resources[p.resourceName]
		if !ok {
			m.warn(src.Name, "indirect target vnode has no resource "+p.resourceName)
			continue
		}
		if avail, ok := src.Resources[p.resourceName]; ok {
			avail.Indirect = targetAvail
		} else {
			def, _ := m.Registry.Lookup(p.resourceName)
			src.Resources[p.resourceName] = &resource.Available{Def: def, Indirect: targetAvail}
		}
	}
}

// JobRecord is one decoded selstat reply entry.
type JobRecord struct {
	ID      string
	Owner   string
	Group   string
	Project string
	Queue   string

	State JobStateInput

	Select *uni.SelSpec
	Place  *uni.Place

	IsArray       bool
	ParentArrayID string // non-empty for a subjob

	EligibleAt       time.Time
	Accrue           uni.AccrueType
	FairshareEntity  string
	ReleaseOnSuspend resource.ReqList
	FormulaValue     float64

	PreemptPriority int
	PreemptStatus   uint32

	// ExecVnode is the condensed "(node:res=val:res=val)+(node2:...)"
	// placement string a running or suspended job already holds (spec
	// §4.C). Jobs in any other state carry no assignment and are priced
	// purely through placement.Place this cycle.
	ExecVnode string
}

// JobStateInput is the job state bitmask carried on the wire.
type JobStateInput = uni.JobState

// Job converts one JobRecord. Missing identity or an empty select spec are
// ignored with a warning (spec §8 "A zero-chunk select is rejected as
// invalid" combined with §4.C's "no select spec for a job/resv"); a
// subjob whose parent is not yet materialized is ignored, not failed
// (spec §8 boundary behavior) — the caller is expected to present array
// parents before their subjobs in a batch.
func (m *Materializer) Job(u *uni.Universe, rec JobRecord) bool {
	if rec.ID == "" {
		m.warn("job", "missing identity")
		return false
	}
	if rec.Select == nil || len(rec.Select.Chunks) == 0 {
		m.warn(rec.ID, "no select spec")
		return false
	}
	if rec.ParentArrayID != "" {
		if _, ok := u.JobByID(rec.ParentArrayID); !ok {
			m.warn(rec.ID, "subjob parent not yet materialized")
			return false
		}
	}
	rr := &uni.ResResv{
		ID:     rec.ID,
		Kind:   uni.KindJob,
		Select: rec.Select,
		Place:  rec.Place,
		Job: &uni.JobData{
			Owner: rec.Owner, Group: rec.Group, Project: rec.Project, Queue: rec.Queue,
			State: rec.State, IsArray: rec.IsArray, ParentArrayID: rec.ParentArrayID,
			EligibleAt: rec.EligibleAt, Accrue: rec.Accrue,
			FairshareEntity: rec.FairshareEntity, ReleaseOnSuspend: rec.ReleaseOnSuspend,
			FormulaValue: rec.FormulaValue,
			PreemptPriority: rec.PreemptPriority, PreemptStatus: rec.PreemptStatus,
		},
	}
	if rec.ExecVnode != "" && (rec.State.Has(uni.JobRunning) || rec.State.Has(uni.JobSuspended)) {
		rr.Nodes, rr.NSpecs = assignExecVnode(u, rec.ExecVnode, m)
	}
	u.AddJob(rr)
	return true
}

// assignExecVnode parses a condensed execvnode string and, for each
// (vnode:res=val:...) term, assigns the named resources against that
// vnode so an already-running or suspended job's occupancy is reflected
// in this cycle's availability accounting (spec §4.D, §4.I "a preempted
// job's resources are released back"). A term naming an unknown vnode or
// resource is skipped with a warning; the rest of the execvnode is still
// applied.
func assignExecVnode(u *uni.Universe, execVnode string, m *Materializer) ([]int, []uni.NSpec) {
	var nodes []int
	var nspecs []uni.NSpec
	for chunkSeq, part := range strings.Split(execVnode, "+") {
		part = strings.TrimPrefix(strings.TrimSuffix(part, ")"), "(")
		if part == "" {
			continue
		}
		fields := strings.Split(part, ":")
		node, ok := u.NodeByName(fields[0])
		if !ok {
			if m != nil {
				m.warn(fields[0], "execvnode names unknown vnode")
			}
			continue
		}
		var reqs resource.ReqList
		for _, kv := range fields[1:] {
			name, val, ok := strings.Cut(kv, "=")
			if !ok {
				continue
			}
			avail, ok := node.Resources[name]
			if !ok {
				if m != nil {
					m.warn(node.Name, "execvnode names unknown resource "+name)
				}
				continue
			}
			v, err := parseExecVnodeValue(avail.Def, val)
			if err != nil {
				continue
			}
			avail.Assign(v.Amount())
			reqs = append(reqs, resource.Req{Def: avail.Def, Value: v})
		}
		nodes = append(nodes, node.Index)
		nspecs = append(nspecs, uni.NSpec{ChunkSeq: chunkSeq, NodeIndex: node.Index, EndOfChunk: true, Reqs: reqs})
	}
	return nodes, nspecs
}

func parseExecVnodeValue(def *resource.Def, raw string) (resource.Value, error) {
	switch def.Kind {
	case resource.KindSize:
		kb, err := resource.ParseSize(raw)
		if err != nil {
			return resource.Value{}, err
		}
		return resource.Size(kb), nil
	case resource.KindTime:
		sec, err := resource.ParseTime(raw)
		if err != nil {
			return resource.Value{}, err
		}
		return resource.Time(sec), nil
	case resource.KindFloat:
		f, err := parseFloatStrict(raw)
		if err != nil {
			return resource.Value{}, err
		}
		return resource.Float(f), nil
	default:
		f, err := parseFloatStrict(raw)
		if err != nil {
			return resource.Value{}, err
		}
		return resource.Long(f), nil
	}
}

func parseFloatStrict(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(s, "%g", &f)
	return f, err
}

// ResvRecord is one decoded stat-resv reply entry, possibly a standing
// reservation with more than one occurrence.
type ResvRecord struct {
	ID      string
	Owner   string
	Select  *uni.SelSpec
	Place   *uni.Place

	Start    time.Time
	End      time.Time
	Duration time.Duration

	State    uni.ResvState
	Substate uni.ResvSubstate

	Recurrence       string
	Timezone         string
	OccurrenceIndex  int
	TotalOccurrences int
	ExecVnodeSeq     []string // condensed execvnode per occurrence, confirmed standing resvs only

	ResvNodeNames []string
	Partition     string
	RetryTime     time.Time
}

// Reservation converts rec into the universe's parent resource_resv for
// the soonest occurrence, then — for a standing reservation already
// confirmed with more than one occurrence's execvnode recorded — unrolls
// the remaining occurrences by cloning the parent and overriding
// start/end/duration/resv_nodes (spec §4.C paragraph 2, §8 scenario 5).
func (m *Materializer) Reservation(u *uni.Universe, rec ResvRecord) bool {
	if rec.ID == "" {
		m.warn("reservation", "missing identity")
		return false
	}
	if rec.Select == nil || len(rec.Select.Chunks) == 0 {
		m.warn(rec.ID, "no select spec")
		return false
	}
	if rec.State == uni.ResvDeletingJobs && len(rec.ResvNodeNames) == 0 {
		m.warn(rec.ID, "reservation in delete-and-not-on-node state")
		return false
	}

	occIndex := rec.OccurrenceIndex
	if occIndex == 0 {
		occIndex = 1
	}
	parent := &uni.ResResv{
		ID: rec.ID, Kind: uni.KindResv, Select: rec.Select, Place: rec.Place,
		Start: rec.Start, End: rec.End, Duration: rec.Duration,
		Resv: &uni.ResvData{
			Recurrence: rec.Recurrence, Timezone: rec.Timezone,
			OccurrenceIndex: occIndex, TotalOccurrences: rec.TotalOccurrences,
			ExecVnodeSeq: rec.ExecVnodeSeq, State: rec.State, Substate: rec.Substate,
			RetryTime: rec.RetryTime, Partition: rec.Partition,
			ResvNodes: resolveNodeIndices(u, rec.ResvNodeNames, m),
		},
	}
	u.AddReservation(parent)

	if rec.TotalOccurrences > 1 && rec.State == uni.ResvConfirmed && len(rec.ExecVnodeSeq) > occIndex {
		for occ := occIndex + 1; occ <= rec.TotalOccurrences && occ <= len(rec.ExecVnodeSeq); occ++ {
			step := time.Duration(occ-occIndex) * 7 * 24 * time.Hour
			occStart := rec.Start.Add(step)
			occEnd := occStart.Add(rec.Duration)
			occNodes := resolveNodeIndices(u, parseExecVnodeNames(rec.ExecVnodeSeq[occ-1]), m)
			clone := &uni.ResResv{
				ID: fmt.Sprintf("%s.occ%d", rec.ID, occ), Kind: uni.KindResv,
				Select: rec.Select, Place: rec.Place,
				Start: occStart, End: occEnd, Duration: rec.Duration,
				Resv: &uni.ResvData{
					Recurrence: rec.Recurrence, Timezone: rec.Timezone,
					OccurrenceIndex: occ, TotalOccurrences: rec.TotalOccurrences,
					ExecVnodeSeq: rec.ExecVnodeSeq,
					State:        uni.ResvConfirmed, // "marked CONFIRMED not RUNNING" (spec §8 scenario 5)
					ParentID:     rec.ID,
					Partition:    rec.Partition,
					ResvNodes:    occNodes,
				},
			}
			u.AddReservation(clone)
		}
	}
	return true
}

func resolveNodeIndices(u *uni.Universe, names []string, m *Materializer) []int {
	var out []int
	for _, name := range names {
		n, ok := u.NodeByName(name)
		if !ok {
			if m != nil {
				m.warn(name, "reservation node not found")
			}
			continue
		}
		out = append(out, n.Index)
	}
	return out
}

// parseExecVnodeNames extracts vnode names from a condensed execvnode
// string of the form "(n1:ncpus=8)+(n2:ncpus=8)".
func parseExecVnodeNames(execVnode string) []string {
	var out []string
	for _, part := range strings.Split(execVnode, "+") {
		part = strings.TrimPrefix(part, "(")
		part = strings.TrimSuffix(part, ")")
		if part == "" {
			continue
		}
		name := part
		if i := strings.IndexByte(part, ':'); i >= 0 {
			name = part[:i]
		}
		out = append(out, name)
	}
	return out
}

// Finalize runs the cross-record steps that need every node and queue
// already materialized: building each node-associated queue's NodeIdx and
// grouping nodes into placement sets keyed by PlacementPool (spec §4.K
// step 3 "materialize placement sets").
func (m *Materializer) Finalize(u *uni.Universe) {
	for _, q := range u.Queues {
		if !q.NodeAssoc {
			continue
		}
		var idx []int
		for _, n := range u.Nodes {
			if n.Queue == q.Name {
				idx = append(idx, n.Index)
			}
		}
		q.NodeIdx = idx
	}

	sets := map[string][]int{}
	for _, n := range u.Nodes {
		sets[n.PlacementPool] = append(sets[n.PlacementPool], n.Index)
	}
	u.PlacementSets = sets
}
