package placement

import (
	"fmt"

	"github.com/quillhpc/qsched/internal/resource"
	"github.com/quillhpc/qsched/internal/schderr"
	"github.com/quillhpc/qsched/internal/uni"
)

// placeFree matches each chunk instance to the first candidate node (in
// sort order) that can satisfy it alone, with no spread constraint beyond
// resource availability (spec §4.E step 3, "free").
func placeFree(u *uni.Universe, rr *uni.ResResv, candidates []int, instances []chunkInstance, t *tentative) ([]uni.NSpec, bool) {
	var nspecs []uni.NSpec
	for _, inst := range instances {
		nodeIdx, ok := firstFit(u, rr, candidates, t, inst)
		if !ok {
			if ns, ok2 := superchunk(u, rr, candidates, t, inst); ok2 {
				nspecs = append(nspecs, ns...)
				continue
			}
			rr.Errors.Addf(schderr.CodeInsufficientResource, "", fmt.Sprintf("chunk=%d", inst.seq))
			return nil, false
		}
		applyTentative(t, nodeIdx, inst.reqs)
		nspecs = append(nspecs, uni.NSpec{ChunkSeq: inst.seq, NodeIndex: nodeIdx, SubSeq: 0, EndOfChunk: true, Reqs: inst.reqs})
	}
	return nspecs, true
}

// placeSpread implements scatter (keyFn = host) and vscatter (keyFn =
// vnode name): every chunk instance must land on a node whose key has not
// already been used by an earlier instance of the same job.
func placeSpread(u *uni.Universe, rr *uni.ResResv, candidates []int, instances []chunkInstance, t *tentative, keyFn func(*uni.Node) string) ([]uni.NSpec, bool) {
	used := map[string]bool{}
	var nspecs []uni.NSpec
	for _, inst := range instances {
		found := -1
		for _, idx := range candidates {
			n := u.Nodes[idx]
			if used[keyFn(n)] {
				continue
			}
			if !nodeEligible(n, rr) {
				continue
			}
			if nodeCanSatisfy(n, t, inst.reqs) {
				found = idx
				break
			}
		}
		if found < 0 {
			rr.Errors.Addf(schderr.CodeInsufficientResource, "", fmt.Sprintf("chunk=%d", inst.seq))
			return nil, false
		}
		used[keyFn(u.Nodes[found])] = true
		applyTentative(t, found, inst.reqs)
		nspecs = append(nspecs, uni.NSpec{ChunkSeq: inst.seq, NodeIndex: found, SubSeq: 0, EndOfChunk: true, Reqs: inst.reqs})
	}
	return nspecs, true
}

// placePack prefers reusing the node(s) already chosen for earlier
// instances of the same job, falling back to the next candidate and then
// to a superchunk split across one host's vnodes (spec §4.E step 3, "pack:
// pick the single set of nodes, ideally a single node").
func placePack(u *uni.Universe, rr *uni.ResResv, candidates []int, instances []chunkInstance, t *tentative) ([]uni.NSpec, bool) {
	var nspecs []uni.NSpec
	var preferred []int
	for _, inst := range instances {
		nodeIdx, ok := firstFit(u, rr, preferred, t, inst)
		if !ok {
			nodeIdx, ok = firstFit(u, rr, candidates, t, inst)
		}
		if !ok {
			if ns, ok2 := superchunk(u, rr, candidates, t, inst); ok2 {
				nspecs = append(nspecs, ns...)
				for _, n := range ns {
					preferred = appendUniqueInt(preferred, n.NodeIndex)
				}
				continue
			}
			rr.Errors.Addf(schderr.CodeInsufficientResource, "", fmt.Sprintf("chunk=%d", inst.seq))
			return nil, false
		}
		applyTentative(t, nodeIdx, inst.reqs)
		preferred = appendUniqueInt(preferred, nodeIdx)
		nspecs = append(nspecs, uni.NSpec{ChunkSeq: inst.seq, NodeIndex: nodeIdx, SubSeq: 0, EndOfChunk: true, Reqs: inst.reqs})
	}
	return nspecs, true
}

func appendUniqueInt(list []int, v int) []int {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

func firstFit(u *uni.Universe, rr *uni.ResResv, candidates []int, t *tentative, inst chunkInstance) (int, bool) {
	for _, idx := range candidates {
		n := u.Nodes[idx]
		if !nodeEligible(n, rr) {
			continue
		}
		if nodeCanSatisfy(n, t, inst.reqs) {
			return idx, true
		}
	}
	return -1, false
}

// superchunk attempts to satisfy one chunk instance's consumable requests
// by spreading it across several vnodes of a single host, when no single
// node can supply it alone (spec §4.E step 4 "superchunk", resolving the
// open question on split rules: consumables are drawn additively from
// same-host vnodes in candidate order; non-consumables and string/boolean
// requests must match on every eligible vnode of that host).
func superchunk(u *uni.Universe, rr *uni.ResResv, candidates []int, t *tentative, inst chunkInstance) ([]uni.NSpec, bool) {
	byHost := map[string][]int{}
	var hostOrder []string
	for _, idx := range candidates {
		n := u.Nodes[idx]
		if !nodeEligible(n, rr) {
			continue
		}
		if _, ok := byHost[n.Host]; !ok {
			hostOrder = append(hostOrder, n.Host)
		}
		byHost[n.Host] = append(byHost[n.Host], idx)
	}

	for _, host := range hostOrder {
		vnodes := byHost[host]
		if len(vnodes) < 2 {
			continue
		}
		if specs, ok := tryHostSuperchunk(u, inst, vnodes, t); ok {
			return specs, true
		}
	}
	return nil, false
}

func tryHostSuperchunk(u *uni.Universe, inst chunkInstance, vnodes []int, t *tentative) ([]uni.NSpec, bool) {
	remainingNeed := map[string]float64{}
	for _, req := range inst.reqs {
		if req.Def.Kind.Consumable() {
			remainingNeed[req.Def.Name] = req.Value.Amount()
		} else {
			for _, idx := range vnodes {
				if av, ok := u.Nodes[idx].Resource(req.Def.Name); !ok || !av.CanSatisfy(req.Value) {
					return nil, false
				}
			}
		}
	}

	var contributions []uni.NSpec
	localUse := map[int]map[string]float64{}
	for _, idx := range vnodes {
		contributed := false
		reqs := make([]resourceContribution, 0)
		for name, need := range remainingNeed {
			if need <= 0 {
				continue
			}
			rem, ok := remaining(u.Nodes[idx], t, name)
			if !ok {
				continue
			}
			take := rem
			if take <= 0 {
				continue
			}
			if take > need {
				take = need
			}
			remainingNeed[name] -= take
			if localUse[idx] == nil {
				localUse[idx] = map[string]float64{}
			}
			localUse[idx][name] = take
			reqs = append(reqs, resourceContribution{name: name, amount: take})
			contributed = true
		}
		if contributed {
			contributions = append(contributions, uni.NSpec{ChunkSeq: inst.seq, NodeIndex: idx, SubSeq: len(contributions) + 1, Reqs: contributionReqs(inst, reqs)})
		}
		if allSatisfied(remainingNeed) {
			break
		}
	}
	if !allSatisfied(remainingNeed) {
		return nil, false
	}
	if len(contributions) < 2 {
		return nil, false
	}
	contributions[len(contributions)-1].EndOfChunk = true

	for idx, byName := range localUse {
		for name, amt := range byName {
			t.add(idx, name, amt)
		}
	}
	return contributions, true
}

type resourceContribution struct {
	name   string
	amount float64
}

func allSatisfied(need map[string]float64) bool {
	for _, v := range need {
		if v > 1e-9 {
			return false
		}
	}
	return true
}

func contributionReqs(inst chunkInstance, contribs []resourceContribution) (out resource.ReqList) {
	byName := map[string]float64{}
	for _, c := range contribs {
		byName[c.name] = c.amount
	}
	for _, req := range inst.reqs {
		if amt, ok := byName[req.Def.Name]; ok {
			out = append(out, resource.Req{Def: req.Def, Value: reqValueAt(req.Def.Kind, amt)})
		} else if !req.Def.Kind.Consumable() {
			out = append(out, req)
		}
	}
	return out
}

func reqValueAt(kind resource.Kind, amount float64) resource.Value {
	switch kind {
	case resource.KindSize:
		return resource.Size(int64(amount))
	case resource.KindTime:
		return resource.Time(int64(amount))
	case resource.KindFloat:
		return resource.Float(amount)
	default:
		return resource.Long(amount)
	}
}
