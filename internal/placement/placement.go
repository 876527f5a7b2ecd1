// Package placement implements the scheduler's placement engine
// (spec §4.E): matching a resource_resv's select spec and place directive
// against the candidate node set.
package placement

import (
	"fmt"
	"sort"

	"github.com/quillhpc/qsched/internal/resource"
	"github.com/quillhpc/qsched/internal/schderr"
	"github.com/quillhpc/qsched/internal/uni"
)

// chunkInstance is one expanded unit of a chunk: select=2:ncpus=4 expands
// to two chunkInstances sharing the parent chunk's reqs but each getting
// its own sequence number, so nspec_arr can "identify chunk 1 and 2"
// (spec §8 scenario 1).
type chunkInstance struct {
	seq  int
	reqs resource.ReqList
}

func expandChunks(sel *uni.SelSpec) []chunkInstance {
	var out []chunkInstance
	seq := 1
	for _, c := range sel.Chunks {
		for i := 0; i < c.Count; i++ {
			out = append(out, chunkInstance{seq: seq, reqs: c.Reqs})
			seq++
		}
	}
	return out
}

// CandidateNodes determines the candidate node universe for rr before any
// arrangement is applied (spec §4.E step 2).
func CandidateNodes(u *uni.Universe, rr *uni.ResResv) []int {
	if rr.IsResv() {
		return append([]int(nil), rr.Resv.ResvNodes...)
	}
	q, ok := u.Queues[rr.Job.Queue]
	if ok && q.IsResvQueue {
		if resv, ok := u.ResvByID(q.ResvID); ok {
			return append([]int(nil), resv.Resv.ResvNodes...)
		}
	}
	if ok && q.NodeAssoc {
		return append([]int(nil), q.NodeIdx...)
	}
	return u.NodesUnassociated()
}

func sortCandidates(u *uni.Universe, candidates []int) []int {
	out := append([]int(nil), candidates...)
	sort.SliceStable(out, func(i, j int) bool {
		ni, nj := u.Nodes[out[i]], u.Nodes[out[j]]
		return ni.Rank < nj.Rank
	})
	return out
}

// Place runs the full decision procedure for rr against u, recording the
// chosen nspec_arr and rewriting ExecSelect on success, and accumulating
// reasons on rr.Errors on failure (spec §4.E).
func Place(u *uni.Universe, rr *uni.ResResv) bool {
	if rr.CanNotRun {
		rr.Errors.Addf(schderr.CodeCanNotRun, "")
		return false
	}
	if rr.CanNeverRun {
		rr.Errors.Addf(schderr.CodeCanNeverRun, "")
		return false
	}
	if rr.IsJob() {
		q, ok := u.Queues[rr.Job.Queue]
		if !ok || !q.Startable() {
			rr.Errors.Addf(schderr.CodeQueueNotStarted, "", rr.Job.Queue)
			return false
		}
	}
	if rr.Select == nil || len(rr.Select.Chunks) == 0 {
		rr.Errors.Addf(schderr.CodeInvalidSelect, "")
		return false
	}

	candidates := sortCandidates(u, CandidateNodes(u, rr))
	if len(candidates) == 0 {
		rr.Errors.Addf(schderr.CodeNoFreeNodes, "")
		return false
	}

	instances := expandChunks(rr.Select)
	tentative := newTentative()

	var nspecs []uni.NSpec
	var ok bool
	switch rr.Place.Arrangement {
	case uni.ArrangeScatter:
		nspecs, ok = placeSpread(u, rr, candidates, instances, tentative, hostKey)
	case uni.ArrangeVScatter:
		nspecs, ok = placeSpread(u, rr, candidates, instances, tentative, vnodeKey)
	case uni.ArrangePack:
		nspecs, ok = placePack(u, rr, candidates, instances, tentative)
	default:
		nspecs, ok = placeFree(u, rr, candidates, instances, tentative)
	}
	if !ok {
		return false
	}

	commit(u, rr, tentative)
	rr.NSpecs = nspecs
	rr.Nodes = nodesUsed(nspecs)
	rr.ExecSelect = execSelectFromNSpecs(rr.Select, nspecs)
	enforceSharing(u, rr)
	return true
}

func hostKey(n *uni.Node) string  { return n.Host }
func vnodeKey(n *uni.Node) string { return n.Name }

func nodesUsed(nspecs []uni.NSpec) []int {
	seen := map[int]bool{}
	var out []int
	for _, ns := range nspecs {
		if !seen[ns.NodeIndex] {
			seen[ns.NodeIndex] = true
			out = append(out, ns.NodeIndex)
		}
	}
	return out
}

// execSelectFromNSpecs rewrites the execution select from the realized
// allocation so retry/restart place on the same vnodes (spec §4.E step 5).
func execSelectFromNSpecs(sel *uni.SelSpec, nspecs []uni.NSpec) *uni.SelSpec {
	bySeq := map[int][]uni.NSpec{}
	var order []int
	for _, ns := range nspecs {
		if _, ok := bySeq[ns.ChunkSeq]; !ok {
			order = append(order, ns.ChunkSeq)
		}
		bySeq[ns.ChunkSeq] = append(bySeq[ns.ChunkSeq], ns)
	}
	out := &uni.SelSpec{}
	for _, seq := range order {
		group := bySeq[seq]
		out.Chunks = append(out.Chunks, uni.Chunk{
			Seq:   seq,
			Count: 1,
			Ref:   fmt.Sprintf("chunk-%d", seq),
			Reqs:  group[0].Reqs,
		})
	}
	out.Recompute(nil)
	return out
}
