package uni

import "time"

// EventType distinguishes a job/reservation's run-time anchor from its
// end-time anchor in the calendar (spec §3 timed_event).
type EventType int

const (
	EventRun EventType = iota
	EventEnd
)

func (t EventType) String() string {
	if t == EventRun {
		return "run"
	}
	return "end"
}

// Event is a timed_event: an anchor point in the calendar referencing the
// resource_resv it will run or end. Disabling an event (rather than
// unlinking it) is how the calendar is edited cheaply in place (spec §4.F).
type Event struct {
	Name     string
	Type     EventType
	Time     time.Time
	Disabled bool
	TargetID string // ResResv.ID
}
