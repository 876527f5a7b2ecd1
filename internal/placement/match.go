package placement

import (
	"github.com/quillhpc/qsched/internal/resource"
	"github.com/quillhpc/qsched/internal/uni"
)

// tentative tracks consumable amounts provisionally allocated against a
// node during one Place() call, so later chunk instances in the same job
// see earlier instances' consumption before anything commits to the live
// universe (spec §4.E step 4: "accounting for this same placement's
// earlier chunks within the same job").
type tentative struct {
	byNode map[int]map[string]float64
}

func newTentative() *tentative {
	return &tentative{byNode: map[int]map[string]float64{}}
}

func (t *tentative) used(nodeIdx int, resName string) float64 {
	m, ok := t.byNode[nodeIdx]
	if !ok {
		return 0
	}
	return m[resName]
}

func (t *tentative) add(nodeIdx int, resName string, amount float64) {
	m, ok := t.byNode[nodeIdx]
	if !ok {
		m = map[string]float64{}
		t.byNode[nodeIdx] = m
	}
	m[resName] += amount
}

// nodeEligible applies the state-based rejection rules of spec §4.E step 4.
func nodeEligible(n *uni.Node, rr *uni.ResResv) bool {
	if n.State.Has(uni.StateDown) || n.State.Has(uni.StateStale) ||
		n.State.Has(uni.StateUnknown) || n.State.Has(uni.StateOffline) ||
		n.State.Has(uni.StateMaintenance) {
		return false
	}
	if n.State.Has(uni.StateProvisioning) || n.State.Has(uni.StateWaitProvisioning) {
		return false
	}
	if n.State.Has(uni.StateResvExclusive) {
		if rr.IsResv() {
			owned := false
			for _, idx := range rr.Resv.ResvNodes {
				if idx == n.Index {
					owned = true
					break
				}
			}
			if !owned {
				return false
			}
		} else {
			return false
		}
	}
	if n.State.Has(uni.StateJobExclusive) {
		return false
	}
	if n.State.Has(uni.StateJobSharing) && rr.Place != nil && rr.Place.Sharing == uni.SharingExcl {
		return false
	}
	return true
}

// remaining returns a consumable resource's live remaining amount on n,
// net of amount already tentatively consumed this Place() call.
func remaining(n *uni.Node, t *tentative, name string) (float64, bool) {
	av, ok := n.Resource(name)
	if !ok {
		return 0, false
	}
	return av.Remaining() - t.used(n.Index, name), true
}

// nodeCanSatisfy reports whether n alone (net of tentative use) can supply
// every request in reqs.
func nodeCanSatisfy(n *uni.Node, t *tentative, reqs resource.ReqList) bool {
	for _, req := range reqs {
		av, ok := n.Resource(req.Def.Name)
		if !ok {
			return false
		}
		if req.Def.Kind.Consumable() {
			rem, _ := remaining(n, t, req.Def.Name)
			if req.Value.Amount() > rem {
				return false
			}
		} else if !av.CanSatisfy(req.Value) {
			return false
		}
	}
	return true
}

func applyTentative(t *tentative, nodeIdx int, reqs resource.ReqList) {
	for _, req := range reqs {
		if req.Def.Kind.Consumable() {
			t.add(nodeIdx, req.Def.Name, req.Value.Amount())
		}
	}
}

// commit flushes every tentatively-allocated amount into the live
// universe's node resources.
func commit(u *uni.Universe, rr *uni.ResResv, t *tentative) {
	for nodeIdx, byRes := range t.byNode {
		n := u.Nodes[nodeIdx]
		for name, amount := range byRes {
			if av, ok := n.Resource(name); ok {
				av.Assign(amount)
			}
		}
		n.RunningJobs = appendUnique(n.RunningJobs, rr.ID)
	}
}

func appendUnique(list []string, id string) []string {
	for _, v := range list {
		if v == id {
			return list
		}
	}
	return append(list, id)
}

// enforceSharing applies the post-allocation exclusivity rules of
// spec §4.E step 6.
func enforceSharing(u *uni.Universe, rr *uni.ResResv) {
	if rr.Place == nil {
		return
	}
	switch rr.Place.Sharing {
	case uni.SharingExcl:
		for _, idx := range rr.Nodes {
			u.Nodes[idx].State |= uni.StateJobExclusive
		}
	case uni.SharingExclHost:
		hosts := map[string]bool{}
		for _, idx := range rr.Nodes {
			hosts[u.Nodes[idx].Host] = true
		}
		for _, n := range u.Nodes {
			if hosts[n.Host] {
				n.State |= uni.StateJobExclusive
			}
		}
	}
}
