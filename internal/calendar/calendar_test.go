package calendar

import (
	"testing"
	"time"

	"github.com/quillhpc/qsched/internal/uni"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddEventKeepsTimeOrder(t *testing.T) {
	u := uni.NewUniverse()
	u.AddJob(&uni.ResResv{ID: "J1", Kind: uni.KindJob, Job: &uni.JobData{}})
	u.AddJob(&uni.ResResv{ID: "J2", Kind: uni.KindJob, Job: &uni.JobData{}})

	base := time.Unix(1000, 0)
	AddEvent(u, CreateEvent("run-J2", uni.EventRun, base.Add(2*time.Hour), "J2"))
	AddEvent(u, CreateEvent("run-J1", uni.EventRun, base.Add(1*time.Hour), "J1"))

	require.Len(t, u.Events, 2)
	assert.Equal(t, "run-J1", u.Events[0].Name)
	assert.Equal(t, "run-J2", u.Events[1].Name)

	j1, _ := u.JobByID("J1")
	assert.True(t, j1.HasRunEvent)
	assert.Equal(t, 0, j1.RunEventID)
}

func TestDeleteEventClearsOwnerPointer(t *testing.T) {
	u := uni.NewUniverse()
	u.AddJob(&uni.ResResv{ID: "J1", Kind: uni.KindJob, Job: &uni.JobData{}})
	AddEvent(u, CreateEvent("run-J1", uni.EventRun, time.Unix(1000, 0), "J1"))

	require.NoError(t, DeleteEvent(u, 0))
	assert.Empty(t, u.Events)
	j1, _ := u.JobByID("J1")
	assert.False(t, j1.HasRunEvent)
}

func TestSimulateStopsAtTime(t *testing.T) {
	u := uni.NewUniverse()
	u.ServerTime = time.Unix(1000, 0)
	u.AddJob(&uni.ResResv{ID: "J1", Kind: uni.KindJob, Job: &uni.JobData{}})
	AddEvent(u, CreateEvent("e1", uni.EventRun, time.Unix(1100, 0), "J1"))
	AddEvent(u, CreateEvent("e2", uni.EventRun, time.Unix(1300, 0), "J1"))

	var applied []string
	apply := func(u *uni.Universe, e *uni.Event) error {
		applied = append(applied, e.Name)
		return nil
	}

	_, err := Simulate(u, apply, StopAtTime, time.Unix(1200, 0), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"e1"}, applied)
}

func TestSimulateSkipsDisabled(t *testing.T) {
	u := uni.NewUniverse()
	u.ServerTime = time.Unix(1000, 0)
	u.AddJob(&uni.ResResv{ID: "J1", Kind: uni.KindJob, Job: &uni.JobData{}})
	AddEvent(u, CreateEvent("e1", uni.EventRun, time.Unix(1100, 0), "J1"))
	require.NoError(t, SetDisabled(u, 0, true))

	var applied []string
	apply := func(u *uni.Universe, e *uni.Event) error {
		applied = append(applied, e.Name)
		return nil
	}
	_, err := Simulate(u, apply, StopAtTime, time.Unix(2000, 0), "")
	require.NoError(t, err)
	assert.Empty(t, applied)
}
