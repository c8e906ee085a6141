package engine

import (
	"sync/atomic"
	"time"
)

// event is one scheduled callback in the priority queue
type event struct {
	fireAt   time.Time
	id       string
	callback func()
	priority int
	index    int
}

// eventQueue orders events by fire time ascending; on equal times the
// higher priority fires first. Implements container/heap.
type eventQueue []*event

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].fireAt.Equal(q[j].fireAt) {
		return q[i].priority > q[j].priority
	}
	return q[i].fireAt.Before(q[j].fireAt)
}

func (q eventQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *eventQueue) Push(x any) {
	ev := x.(*event)
	ev.index = len(*q)
	*q = append(*q, ev)
}

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return ev
}

// RepeatingTask is the handle for a repeating event. Cancel stops future
// occurrences; an occurrence already firing completes normally.
type RepeatingTask struct {
	id        string
	cancelled atomic.Bool
}

// ID returns the event id shared by all occurrences of this task
func (t *RepeatingTask) ID() string { return t.id }

// Cancel prevents any further occurrences from being scheduled
func (t *RepeatingTask) Cancel() { t.cancelled.Store(true) }

// Cancelled reports whether the task has been cancelled
func (t *RepeatingTask) Cancelled() bool { return t.cancelled.Load() }
