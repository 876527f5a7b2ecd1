// Package calendar implements the scheduler's event list (spec §4.F): an
// ordered sequence of run/end anchors used to find a job's estimated
// start, confirm reservations by simulating forward, and decide whether a
// smaller job can be backfilled without delaying a reserved top job.
package calendar

import (
	"fmt"
	"sort"
	"time"

	"github.com/quillhpc/qsched/internal/uni"
)

// CreateEvent allocates a new timed_event and returns it without inserting
// it into the universe's calendar; callers insert via AddEvent.
func CreateEvent(name string, typ uni.EventType, t time.Time, targetID string) *uni.Event {
	return &uni.Event{Name: name, Type: typ, Time: t, TargetID: targetID}
}

// AddEvent splices e into u.Events in time order (spec §4.F: "splice in
// sorted by time"), and records the event id on the target resource_resv.
func AddEvent(u *uni.Universe, e *uni.Event) {
	idx := sort.Search(len(u.Events), func(i int) bool {
		return u.Events[i].Time.After(e.Time)
	})
	u.Events = append(u.Events, nil)
	copy(u.Events[idx+1:], u.Events[idx:])
	u.Events[idx] = e

	if rr, ok := u.ResResvByID(e.TargetID); ok {
		if e.Type == uni.EventRun {
			rr.HasRunEvent = true
			rr.RunEventID = idx
		} else {
			rr.HasEndEvent = true
			rr.EndEventID = idx
		}
	}
	reindexEventIDs(u)
}

// DeleteEvent unlinks and removes the event at index idx, and nulls the
// event pointer on the owning resource_resv (spec §4.F).
func DeleteEvent(u *uni.Universe, idx int) error {
	if idx < 0 || idx >= len(u.Events) {
		return fmt.Errorf("calendar: event index %d out of range", idx)
	}
	e := u.Events[idx]
	if rr, ok := u.ResResvByID(e.TargetID); ok {
		if e.Type == uni.EventRun {
			rr.HasRunEvent = false
		} else {
			rr.HasEndEvent = false
		}
	}
	u.Events = append(u.Events[:idx], u.Events[idx+1:]...)
	reindexEventIDs(u)
	return nil
}

// SetDisabled toggles an event's Disabled flag without unlinking it, the
// cheap in-place calendar edit spec §4.F describes.
func SetDisabled(u *uni.Universe, idx int, disabled bool) error {
	if idx < 0 || idx >= len(u.Events) {
		return fmt.Errorf("calendar: event index %d out of range", idx)
	}
	u.Events[idx].Disabled = disabled
	return nil
}

// FindEvent performs the linear lookup keyed by name, type, and time that
// spec §4.F specifies for find_timed_event.
func FindEvent(u *uni.Universe, name string, typ uni.EventType, t time.Time) (int, bool) {
	for i, e := range u.Events {
		if e.Name == name && e.Type == typ && e.Time.Equal(t) {
			return i, true
		}
	}
	return -1, false
}

// reindexEventIDs keeps every ResResv's cached RunEventID/EndEventID
// accurate after an insertion or deletion shifts indices.
func reindexEventIDs(u *uni.Universe) {
	for _, e := range u.Events {
		if rr, ok := u.ResResvByID(e.TargetID); ok {
			rr.HasRunEvent = false
			rr.HasEndEvent = false
		}
	}
	for i, e := range u.Events {
		if rr, ok := u.ResResvByID(e.TargetID); ok {
			if e.Type == uni.EventRun {
				rr.RunEventID, rr.HasRunEvent = i, true
			} else {
				rr.EndEventID, rr.HasEndEvent = i, true
			}
		}
	}
}

// StopMode selects the condition under which Simulate halts.
type StopMode int

const (
	StopAtTime StopMode = iota
	StopAtJobRunnable
	StopAtCalendarEnd
)

// SimulateFunc applies a run or end event's effect to the universe
// (update_resresv_on_run / update_resresv_on_end, spec §4.F). The cycle and
// reservation packages supply this since the precise accounting lives in
// internal/placement.
type SimulateFunc func(u *uni.Universe, e *uni.Event) error

// Simulate advances through u.Events from the current simulated time,
// applying apply to each enabled, non-past event in order, until a stop
// condition is met (spec §4.F). It returns the final simulated time.
func Simulate(u *uni.Universe, apply SimulateFunc, mode StopMode, stopTime time.Time, stopJobID string) (time.Time, error) {
	cur := u.ServerTime
	for i, e := range u.Events {
		if e.Disabled {
			continue
		}
		if e.Time.Before(cur) {
			continue
		}
		switch mode {
		case StopAtTime:
			if e.Time.After(stopTime) {
				return cur, nil
			}
		case StopAtJobRunnable:
			if rr, ok := u.ResResvByID(stopJobID); ok && rr.Runnable() && !rr.CanNotRun {
				return cur, nil
			}
		}
		if err := apply(u, u.Events[i]); err != nil {
			return cur, fmt.Errorf("calendar: simulate event %s at %s: %w", e.Name, e.Time, err)
		}
		cur = e.Time
	}
	return cur, nil
}
