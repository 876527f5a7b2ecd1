package preempt

import (
	"testing"
	"time"

	"github.com/quillhpc/qsched/internal/resource"
	"github.com/quillhpc/qsched/internal/uni"
	"github.com/stretchr/testify/assert"
)

func runningJob(id string, ncpusDef *resource.Def, amount float64, level int, start time.Time) Candidate {
	rr := &uni.ResResv{ID: id, Kind: uni.KindJob, Job: &uni.JobData{}, NSpecs: []uni.NSpec{
		{Reqs: resource.ReqList{{Def: ncpusDef, Value: resource.Long(amount)}}},
	}}
	return Candidate{ResResv: rr, Level: level, StartTime: start}
}

func TestSelectMinimalSetPicksJustEnough(t *testing.T) {
	reg := resource.StandardRegistry()
	ncpus, _ := reg.Lookup("ncpus")

	now := time.Unix(100000, 0)
	candidates := []Candidate{
		runningJob("A", ncpus, 2, 1, now.Add(-1*time.Hour)),
		runningJob("B", ncpus, 4, 1, now.Add(-2*time.Hour)),
		runningJob("C", ncpus, 8, 1, now.Add(-30*time.Minute)),
	}
	need := resource.ReqList{{Def: ncpus, Value: resource.Long(6)}}

	chosen, ok := SelectMinimalSet(need, 5, ActionSuspend, candidates)
	assert.True(t, ok)
	assert.NotEmpty(t, chosen)

	var total float64
	for _, c := range chosen {
		for _, ns := range c.ResResv.NSpecs {
			for _, r := range ns.Reqs {
				total += r.Value.Amount()
			}
		}
	}
	assert.GreaterOrEqual(t, total, 6.0)
}

func TestSelectMinimalSetRespectsLevel(t *testing.T) {
	reg := resource.StandardRegistry()
	ncpus, _ := reg.Lookup("ncpus")
	candidates := []Candidate{runningJob("A", ncpus, 100, 10, time.Now().Add(-time.Hour))}
	need := resource.ReqList{{Def: ncpus, Value: resource.Long(1)}}

	chosen, ok := SelectMinimalSet(need, 5, ActionSuspend, candidates)
	assert.False(t, ok)
	assert.Empty(t, chosen)
}

func TestSelectMinimalSetPrefersSoftLimitViolators(t *testing.T) {
	reg := resource.StandardRegistry()
	ncpus, _ := reg.Lookup("ncpus")
	now := time.Unix(100000, 0)

	soft := runningJob("soft", ncpus, 4, 1, now.Add(-time.Hour))
	soft.OverSoftLimit = true
	normal := runningJob("normal", ncpus, 4, 1, now.Add(-time.Minute))

	need := resource.ReqList{{Def: ncpus, Value: resource.Long(4)}}
	chosen, ok := SelectMinimalSet(need, 5, ActionSuspend, []Candidate{normal, soft})
	assert.True(t, ok)
	assert.Equal(t, "soft", chosen[0].ResResv.ID)
}
