// Package schedule provides the one-shot delayed actions the trial sequencer
// runs on. It has no goroutines: pending actions fire only from Advance, which
// the caller invokes from its tick loop.
package schedule

import "time"

// maxCascade bounds how many chained actions a single Advance may fire, so a
// zero delay that keeps rescheduling itself cannot spin forever.
const maxCascade = 16

// Action is invoked with the tick time at which it fired
type Action func(now time.Duration)

type entry struct {
	name       string
	fireAt     time.Duration
	action     Action
	generation uint64
}

// Queue holds at most one pending action. Scheduling a new action supersedes
// the previous one by bumping the generation.
type Queue struct {
	pending    *entry
	generation uint64
}

// Schedule arranges for action to run on the first Advance at or after
// now+delay, replacing any action still pending. It returns the generation
// of the new entry.
func (q *Queue) Schedule(name string, now, delay time.Duration, action Action) uint64 {
	if delay < 0 {
		delay = 0
	}
	q.generation++
	q.pending = &entry{
		name:       name,
		fireAt:     now + delay,
		action:     action,
		generation: q.generation,
	}
	return q.generation
}

// Cancel drops the pending action, if any. It reports whether one was dropped.
func (q *Queue) Cancel() bool {
	q.generation++
	dropped := q.pending != nil
	q.pending = nil
	return dropped
}

// Pending returns the name and fire time of the pending action
func (q *Queue) Pending() (name string, fireAt time.Duration, ok bool) {
	if q.pending == nil {
		return "", 0, false
	}
	return q.pending.name, q.pending.fireAt, true
}

// Generation returns the current generation counter
func (q *Queue) Generation() uint64 {
	return q.generation
}

// Advance fires the pending action when it is due. An action may schedule a
// follow-up; that one fires in the same call only if it is already due.
// Returns the number of actions fired.
func (q *Queue) Advance(now time.Duration) int {
	fired := 0
	for fired < maxCascade {
		e := q.pending
		if e == nil || now < e.fireAt || e.generation != q.generation {
			return fired
		}
		q.pending = nil
		e.action(now)
		fired++
	}
	return fired
}
