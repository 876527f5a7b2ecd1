package materialize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillhpc/qsched/internal/resource"
	"github.com/quillhpc/qsched/internal/uni"
)

func selSpec(reg *resource.Registry, ncpus float64) *uni.SelSpec {
	def := reg.MustLookup("ncpus")
	s := &uni.SelSpec{Chunks: []uni.Chunk{{Count: 1, Reqs: resource.ReqList{{Def: def, Value: resource.Long(ncpus)}}}}}
	s.Recompute(reg)
	return s
}

func TestMaterializeNodesResolvesIndirectAcrossBatch(t *testing.T) {
	reg := resource.StandardRegistry()
	reg.Define("license", resource.KindLong, 0)
	m := New(reg)
	u := uni.NewUniverse()

	m.Nodes(u, []NodeRecord{
		{Name: "n1", Resources: map[string]resource.Value{"ncpus": resource.Long(8), "license": resource.Long(4)}},
		{
			Name:      "n2",
			Resources: map[string]resource.Value{"ncpus": resource.Long(8)},
			Indirect:  map[string]string{"license": "n1"},
		},
	})
	require.Empty(t, m.Warnings)

	n1, ok := u.NodeByName("n1")
	require.True(t, ok)

	n2, ok := u.NodeByName("n2")
	require.True(t, ok)
	avail, ok := n2.Resources["license"]
	require.True(t, ok)
	assert.NotNil(t, avail.Indirect)
	assert.Same(t, n1.Resources["license"], avail.Indirect)
}

func TestMaterializeNodeMissingIdentityIgnored(t *testing.T) {
	reg := resource.StandardRegistry()
	m := New(reg)
	u := uni.NewUniverse()

	m.Nodes(u, []NodeRecord{{Name: ""}, {Name: "n1"}})
	require.Len(t, u.Nodes, 1)
	require.Len(t, m.Warnings, 1)
	assert.Equal(t, "node", m.Warnings[0].Object)
}

func TestMaterializeJobNoSelectSpecIgnored(t *testing.T) {
	reg := resource.StandardRegistry()
	m := New(reg)
	u := uni.NewUniverse()

	ok := m.Job(u, JobRecord{ID: "1.server"})
	assert.False(t, ok)
	require.Len(t, m.Warnings, 1)
	assert.Equal(t, "no select spec", m.Warnings[0].Reason)
	_, found := u.JobByID("1.server")
	assert.False(t, found)
}

func TestMaterializeSubjobParentNotYetMaterializedIgnored(t *testing.T) {
	reg := resource.StandardRegistry()
	m := New(reg)
	u := uni.NewUniverse()

	sel := selSpec(reg, 1)
	ok := m.Job(u, JobRecord{ID: "2[3].server", Select: sel, ParentArrayID: "2[].server"})
	assert.False(t, ok)
	require.Len(t, m.Warnings, 1)
	assert.Equal(t, "subjob parent not yet materialized", m.Warnings[0].Reason)

	ok = m.Job(u, JobRecord{ID: "2[].server", Select: sel, IsArray: true})
	assert.True(t, ok)

	ok = m.Job(u, JobRecord{ID: "2[3].server", Select: sel, ParentArrayID: "2[].server"})
	assert.True(t, ok)
	rr, found := u.JobByID("2[3].server")
	require.True(t, found)
	assert.Equal(t, "2[].server", rr.Job.ParentArrayID)
}

func TestMaterializeStandingReservationUnrollsOccurrences(t *testing.T) {
	reg := resource.StandardRegistry()
	m := New(reg)
	u := uni.NewUniverse()

	m.Nodes(u, []NodeRecord{
		{Name: "n1", Resources: map[string]resource.Value{"ncpus": resource.Long(8)}},
		{Name: "n2", Resources: map[string]resource.Value{"ncpus": resource.Long(8)}},
	})

	start := time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC) // a Monday
	dur := time.Hour

	ok := m.Reservation(u, ResvRecord{
		ID:               "R1.server",
		Select:            selSpec(reg, 8),
		Start:             start,
		End:               start.Add(dur),
		Duration:          dur,
		State:             uni.ResvConfirmed,
		Recurrence:        "FREQ=WEEKLY",
		OccurrenceIndex:   1,
		TotalOccurrences:  4,
		ExecVnodeSeq:      []string{"(n1:ncpus=8)", "(n2:ncpus=8)", "(n1:ncpus=8)", "(n2:ncpus=8)"},
		ResvNodeNames:     []string{"n1"},
	})
	require.True(t, ok)
	require.Empty(t, m.Warnings)

	require.Len(t, u.Reservations, 4)

	parent, found := u.ResvByID("R1.server")
	require.True(t, found)
	assert.Equal(t, 1, parent.Resv.OccurrenceIndex)
	assert.True(t, parent.Start.Equal(start))

	occ2, found := u.ResvByID("R1.server.occ2")
	require.True(t, found)
	assert.Equal(t, 2, occ2.Resv.OccurrenceIndex)
	assert.Equal(t, uni.ResvConfirmed, occ2.Resv.State)
	assert.Equal(t, "R1.server", occ2.Resv.ParentID)
	assert.True(t, occ2.Start.Equal(start.Add(7*24*time.Hour)))
	n2, _ := u.NodeByName("n2")
	require.Contains(t, occ2.Resv.ResvNodes, n2.Index)

	occ4, found := u.ResvByID("R1.server.occ4")
	require.True(t, found)
	assert.Equal(t, 4, occ4.Resv.OccurrenceIndex)
	assert.True(t, occ4.Start.Equal(start.Add(21*24*time.Hour)))
}

func TestMaterializeReservationDeletingJobsNotOnNodeIgnored(t *testing.T) {
	reg := resource.StandardRegistry()
	m := New(reg)
	u := uni.NewUniverse()

	ok := m.Reservation(u, ResvRecord{
		ID:     "R2.server",
		Select: selSpec(reg, 1),
		State:  uni.ResvDeletingJobs,
	})
	assert.False(t, ok)
	require.Len(t, m.Warnings, 1)
	assert.Equal(t, "reservation in delete-and-not-on-node state", m.Warnings[0].Reason)
}

func TestFinalizeBuildsQueueNodeIdxAndPlacementSets(t *testing.T) {
	reg := resource.StandardRegistry()
	m := New(reg)
	u := uni.NewUniverse()

	m.Nodes(u, []NodeRecord{
		{Name: "n1", Resources: map[string]resource.Value{"ncpus": resource.Long(8)}, Queue: "batch", PlacementPool: "rackA"},
		{Name: "n2", Resources: map[string]resource.Value{"ncpus": resource.Long(8)}, Queue: "batch", PlacementPool: "rackB"},
	})
	ok := m.Queue(u, QueueRecord{Name: "batch", Started: true, Enabled: true, NodeAssoc: true})
	require.True(t, ok)

	m.Finalize(u)

	q := u.Queues["batch"]
	require.Len(t, q.NodeIdx, 2)
	assert.Len(t, u.PlacementSets["rackA"], 1)
	assert.Len(t, u.PlacementSets["rackB"], 1)
}

func TestMaterializeQueueMissingIdentityIgnored(t *testing.T) {
	reg := resource.StandardRegistry()
	m := New(reg)
	u := uni.NewUniverse()

	ok := m.Queue(u, QueueRecord{Name: ""})
	assert.False(t, ok)
	require.Len(t, m.Warnings, 1)
}
