package reservation

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillhpc/qsched/internal/resource"
	"github.com/quillhpc/qsched/internal/uni"
	"github.com/quillhpc/qsched/internal/workerpool"
)

func buildUniverse(reg *resource.Registry) *uni.Universe {
	u := uni.NewUniverse()
	for _, name := range []string{"n1", "n2"} {
		u.AddNode(&uni.Node{
			Name:  name,
			State: uni.StateFree,
			Resources: map[string]*resource.Available{
				"ncpus": {Def: reg.MustLookup("ncpus"), Avail: resource.Long(8)},
			},
		})
	}
	return u
}

func selSpec(reg *resource.Registry, ncpus float64) *uni.SelSpec {
	def := reg.MustLookup("ncpus")
	s := &uni.SelSpec{Chunks: []uni.Chunk{{Count: 1, Reqs: resource.ReqList{{Def: def, Value: resource.Long(ncpus)}}}}}
	s.Recompute(reg)
	return s
}

func TestConfirmAllConfirmsUnconfirmedReservation(t *testing.T) {
	reg := resource.StandardRegistry()
	u := buildUniverse(reg)

	start := time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC)
	rr := &uni.ResResv{
		ID: "R1.server", Kind: uni.KindResv,
		Select: selSpec(reg, 4), Place: &uni.Place{},
		Start: start, End: start.Add(time.Hour), Duration: time.Hour,
		Resv: &uni.ResvData{
			State: uni.ResvUnconfirmed, OccurrenceIndex: 1, TotalOccurrences: 1,
			ResvNodes: []int{0, 1},
		},
	}
	u.AddReservation(rr)

	c := New(workerpool.New(0), nil, zerolog.Nop())
	results, err := c.ConfirmAll(u, start.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Confirmed)
	assert.NotEmpty(t, results[0].ExecVnode)

	assert.Equal(t, uni.ResvConfirmed, rr.Resv.State)
	assert.NotEmpty(t, rr.NSpecs)
	assert.NotEmpty(t, rr.Resv.ExecVnodeSeq)
}

func TestConfirmAllSkipsAlreadyConfirmedHealthyReservation(t *testing.T) {
	reg := resource.StandardRegistry()
	u := buildUniverse(reg)

	start := time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC)
	rr := &uni.ResResv{
		ID: "R2.server", Kind: uni.KindResv,
		Select: selSpec(reg, 4), Place: &uni.Place{},
		Start: start, End: start.Add(time.Hour), Duration: time.Hour,
		Resv: &uni.ResvData{
			State: uni.ResvConfirmed, Substate: uni.SubstateNormal,
			OccurrenceIndex: 1, TotalOccurrences: 1, ResvNodes: []int{0, 1},
		},
	}
	u.AddReservation(rr)

	c := New(workerpool.New(0), nil, zerolog.Nop())
	results, err := c.ConfirmAll(u, start.Add(-time.Minute))
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestConfirmAllFailsWhenNoCandidateNodes(t *testing.T) {
	reg := resource.StandardRegistry()
	u := buildUniverse(reg)

	start := time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC)
	rr := &uni.ResResv{
		ID: "R3.server", Kind: uni.KindResv,
		Select: selSpec(reg, 4), Place: &uni.Place{},
		Start: start, End: start.Add(time.Hour), Duration: time.Hour,
		Resv: &uni.ResvData{
			State: uni.ResvUnconfirmed, OccurrenceIndex: 1, TotalOccurrences: 1,
			ResvNodes: nil,
		},
	}
	u.AddReservation(rr)

	c := New(workerpool.New(0), nil, zerolog.Nop())
	results, err := c.ConfirmAll(u, start.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Confirmed)
	assert.Equal(t, uni.ResvDeleted, rr.Resv.State)
}

func TestConfirmAllReconfirmsDegradedReservationReleasingPriorAllocation(t *testing.T) {
	reg := resource.StandardRegistry()
	u := buildUniverse(reg)

	start := time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC)
	rr := &uni.ResResv{
		ID: "R4.server", Kind: uni.KindResv,
		Select: selSpec(reg, 4), Place: &uni.Place{},
		Start: start, End: start.Add(time.Hour), Duration: time.Hour,
		NSpecs: []uni.NSpec{{NodeIndex: 0, Reqs: resource.ReqList{{Def: reg.MustLookup("ncpus"), Value: resource.Long(4)}}}},
		Resv: &uni.ResvData{
			State: uni.ResvConfirmed, Substate: uni.SubstateDegraded,
			OccurrenceIndex: 1, TotalOccurrences: 1, ResvNodes: []int{0, 1},
			RetryTime: start.Add(-2 * time.Hour),
		},
	}
	u.Nodes[0].Resources["ncpus"].Assign(4)
	u.AddReservation(rr)

	c := New(workerpool.New(0), nil, zerolog.Nop())
	results, err := c.ConfirmAll(u, start.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Confirmed)
	assert.Equal(t, uni.SubstateNormal, rr.Resv.Substate)
}
