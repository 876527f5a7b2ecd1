package uni

import (
	"testing"

	"github.com/quillhpc/qsched/internal/resource"
	"github.com/stretchr/testify/assert"
)

func TestUniverseNodeIndexing(t *testing.T) {
	u := NewUniverse()
	reg := resource.StandardRegistry()
	ncpus, _ := reg.Lookup("ncpus")

	n1 := &Node{Name: "n1", Resources: map[string]*resource.Available{
		"ncpus": {Def: ncpus, Avail: resource.Long(8)},
	}}
	u.AddNode(n1)

	got, ok := u.NodeByName("n1")
	assert.True(t, ok)
	assert.Equal(t, 0, got.Index)
	assert.Same(t, n1, got)
}

func TestResResvTotalRequest(t *testing.T) {
	reg := resource.StandardRegistry()
	ncpus, _ := reg.Lookup("ncpus")
	mem, _ := reg.Lookup("mem")

	rr := &ResResv{
		ID:   "J1",
		Kind: KindJob,
		Job:  &JobData{},
		Select: &SelSpec{Chunks: []Chunk{
			{Seq: 1, Count: 2, Reqs: resource.ReqList{
				{Def: ncpus, Value: resource.Long(4)},
				{Def: mem, Value: resource.Size(8 * 1024 * 1024)},
			}},
		}},
	}

	total := rr.TotalRequest()
	req, ok := total.Find("ncpus")
	assert.True(t, ok)
	assert.Equal(t, 8.0, req.Value.Amount())
}

func TestNodeCloneIndependence(t *testing.T) {
	reg := resource.StandardRegistry()
	ncpus, _ := reg.Lookup("ncpus")
	n := &Node{Name: "n1", Resources: map[string]*resource.Available{
		"ncpus": {Def: ncpus, Avail: resource.Long(8), Assigned: resource.Long(0)},
	}}
	cp := n.Clone()
	cp.Resources["ncpus"].Assign(4)

	assert.Equal(t, 0.0, n.Resources["ncpus"].Assigned.Amount())
	assert.Equal(t, 4.0, cp.Resources["ncpus"].Assigned.Amount())
}
