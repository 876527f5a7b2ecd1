package uni

import (
	"time"

	"github.com/quillhpc/qsched/internal/resource"
)

// NodeState is a bitmask of the node's current condition flags.
type NodeState uint32

const (
	StateFree NodeState = 1 << iota
	StateOffline
	StateDown
	StateUnknown
	StateBusy
	StateStale
	StateMaintenance
	StateSleeping
	StateProvisioning
	StateWaitProvisioning
	StateJobExclusive
	StateJobSharing
	StateResvExclusive
)

func (s NodeState) Has(bit NodeState) bool { return s&bit != 0 }

// unavailableForScheduling are states that make a node ineligible as a
// placement target regardless of resource fit (spec §4.E step 4).
const unavailableForScheduling = StateDown | StateStale | StateUnknown | StateOffline | StateMaintenance

// Node is one schedulable vnode (node_info, spec §3).
type Node struct {
	Name  string
	Rank  int
	Index int

	Host      string
	Queue     string
	State     NodeState
	Resources map[string]*resource.Available

	RunningJobs  []string
	RunningResvs []string

	LastStateChange time.Time
	LastUsed        time.Time

	Partition     string
	PlacementPool string
}

// IsFree is computed, never a primary source of truth (spec §3).
func (n *Node) IsFree() bool {
	return n.State.Has(StateFree) && !n.State.Has(unavailableForScheduling) &&
		!n.State.Has(StateJobExclusive) && !n.State.Has(StateResvExclusive)
}

// SchedulingEligible reports whether the node can be considered at all for
// placement of a non-provisioning, non-reservation job (spec §4.E step 4).
func (n *Node) SchedulingEligible() bool {
	if n.State.Has(unavailableForScheduling) {
		return false
	}
	if n.State.Has(StateWaitProvisioning) || n.State.Has(StateProvisioning) {
		return false
	}
	if n.State.Has(StateResvExclusive) {
		return false
	}
	if n.State.Has(StateJobExclusive) {
		return false
	}
	return true
}

// Resource looks up a named resource on the node.
func (n *Node) Resource(name string) (*resource.Available, bool) {
	r, ok := n.Resources[name]
	return r, ok
}

// Clone returns a deep copy of the node suitable for an independent
// universe (simulation, reservation confirmation).
func (n *Node) Clone() *Node {
	cp := *n
	cp.Resources = make(map[string]*resource.Available, len(n.Resources))
	for k, v := range n.Resources {
		cp.Resources[k] = v.Clone()
	}
	cp.RunningJobs = append([]string(nil), n.RunningJobs...)
	cp.RunningResvs = append([]string(nil), n.RunningResvs...)
	return &cp
}
