package policy

import (
	"testing"
	"time"

	"github.com/quillhpc/qsched/internal/resource"
	"github.com/quillhpc/qsched/internal/uni"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateFormula(t *testing.T) {
	p := New()
	p.JobSortFormula = "2*ncpus + (priority - 1)"
	v, err := p.EvaluateFormula(map[string]float64{"ncpus": 4, "priority": 10})
	require.NoError(t, err)
	assert.Equal(t, 17.0, v)
}

func TestEvaluateFormulaUnknownVarIsZero(t *testing.T) {
	p := New()
	p.JobSortFormula = "ncpus + missing"
	v, err := p.EvaluateFormula(map[string]float64{"ncpus": 3})
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)
}

func TestSortJobsMultiKey(t *testing.T) {
	p := New()
	p.JobSortKeys = []SortKey{{Name: "priority", Descending: true}}
	jobs := []*uni.ResResv{
		{ID: "low", SeqRank: 1},
		{ID: "high", SeqRank: 2},
		{ID: "mid", SeqRank: 3},
	}
	priorities := map[string]float64{"low": 1, "high": 10, "mid": 5}
	p.SortJobs(jobs, func(rr *uni.ResResv, key SortKey) float64 {
		return priorities[rr.ID]
	})
	assert.Equal(t, []string{"high", "mid", "low"}, []string{jobs[0].ID, jobs[1].ID, jobs[2].ID})
}

func TestPrimeTimeWindow(t *testing.T) {
	p := New()
	p.PrimeWindows = []TimeWindow{{StartMinute: 8 * 60, EndMinute: 18 * 60}}
	morning := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	night := time.Date(2026, 1, 5, 22, 0, 0, 0, time.UTC)
	p.RecomputeTimeFlags(morning)
	assert.True(t, p.IsPrimeTime)
	p.RecomputeTimeFlags(night)
	assert.False(t, p.IsPrimeTime)
}

func TestStarvingDetection(t *testing.T) {
	p := New()
	p.MaxStarve = time.Hour
	p.CurrentTime = time.Unix(10000, 0)
	rr := &uni.ResResv{Kind: uni.KindJob, Job: &uni.JobData{EligibleAt: time.Unix(10000-3700, 0)}}
	assert.True(t, p.Starving(rr))

	rr2 := &uni.ResResv{Kind: uni.KindJob, Job: &uni.JobData{EligibleAt: time.Unix(10000-100, 0)}}
	assert.False(t, p.Starving(rr2))
}

func TestBuildEquivClassesGroupsIdenticalJobs(t *testing.T) {
	reg := resource.StandardRegistry()
	ncpus, _ := reg.Lookup("ncpus")

	mkJob := func(id, queue string, n float64) *uni.ResResv {
		sel := &uni.SelSpec{Chunks: []uni.Chunk{{Seq: 1, Count: 1, Reqs: resource.ReqList{{Def: ncpus, Value: resource.Long(n)}}}}}
		return &uni.ResResv{ID: id, Kind: uni.KindJob, Select: sel, Place: &uni.Place{}, Job: &uni.JobData{Queue: queue, Owner: "alice"}}
	}

	u := uni.NewUniverse()
	u.AddJob(mkJob("J1", "workq", 4))
	u.AddJob(mkJob("J2", "workq", 4))
	u.AddJob(mkJob("J3", "workq", 8))

	classes := BuildEquivClasses(u, nil)
	total := 0
	for _, c := range classes {
		total += len(c.Members)
	}
	assert.Equal(t, 3, total)
	assert.Len(t, classes, 2)
}
