package sched

import (
	"container/heap"
	"log/slog"
	"sync/atomic"
)

// Queue is a priority task queue with lock-free producers and a single
// consumer.
//
// Add, Len and CountByPriority may be called from any goroutine. Pop,
// PeekPriority, the Execute methods and Clear belong to the one processing
// goroutine and must not be called concurrently with each other.
type Queue struct {
	nextID atomic.Uint64
	intake atomic.Pointer[Task]

	pending atomic.Int64
	counts  [NumPriorities]atomic.Int64

	executed atomic.Int64
	panics   atomic.Int64

	// ready is only touched by the consumer.
	ready taskHeap

	logger *slog.Logger
	onRun  func(Priority)
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithQueueLogger sets the logger used to report recovered task panics.
func WithQueueLogger(l *slog.Logger) QueueOption {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// WithRunHook registers fn to be called after every executed task.
func WithRunHook(fn func(Priority)) QueueOption {
	return func(q *Queue) {
		q.onRun = fn
	}
}

// NewQueue returns an empty queue.
func NewQueue(opts ...QueueOption) *Queue {
	q := &Queue{
		logger: slog.Default().With("component", "sched"),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Add enqueues fn at priority p and returns its task id. It never blocks.
func (q *Queue) Add(p Priority, fn func()) uint64 {
	if int(p) >= NumPriorities {
		p = UserInput
	}
	t := &Task{
		id:       q.nextID.Add(1),
		priority: p,
		fn:       fn,
	}
	q.pending.Add(1)
	q.counts[p].Add(1)
	for {
		head := q.intake.Load()
		t.next = head
		if q.intake.CompareAndSwap(head, t) {
			return t.id
		}
	}
}

// Len returns the number of pending tasks.
func (q *Queue) Len() int {
	return int(max(q.pending.Load(), 0))
}

// CountByPriority returns the number of pending tasks per level.
func (q *Queue) CountByPriority() PriorityCount {
	var c PriorityCount
	for i := range q.counts {
		c[i] = int(max(q.counts[i].Load(), 0))
	}
	return c
}

// collect moves everything on the intake stack into the ready heap.
func (q *Queue) collect() {
	t := q.intake.Swap(nil)
	for t != nil {
		next := t.next
		t.next = nil
		heap.Push(&q.ready, t)
		t = next
	}
}

func (q *Queue) take(t *Task) {
	q.pending.Add(-1)
	q.counts[t.priority].Add(-1)
}

// Pop removes and returns the most urgent task.
func (q *Queue) Pop() (*Task, bool) {
	q.collect()
	if len(q.ready) == 0 {
		return nil, false
	}
	t := heap.Pop(&q.ready).(*Task)
	q.take(t)
	return t, true
}

// PeekPriority returns the priority of the most urgent task without removing
// it.
func (q *Queue) PeekPriority() (Priority, bool) {
	q.collect()
	if len(q.ready) == 0 {
		return Idle, false
	}
	return q.ready[0].priority, true
}

// run executes t, recovering and logging a panic so one faulty task cannot
// stop the frame.
func (q *Queue) run(t *Task) {
	defer func() {
		if r := recover(); r != nil {
			q.panics.Add(1)
			q.logger.Warn("task panicked",
				"task", t.id,
				"priority", t.priority.String(),
				"panic", r)
		}
		q.executed.Add(1)
		if q.onRun != nil {
			q.onRun(t.priority)
		}
	}()
	t.Run()
}

// ExecuteUntil runs tasks in order while the head's priority is at least
// threshold. The first task below threshold is left in the queue. It returns the number
// of tasks run.
func (q *Queue) ExecuteUntil(threshold Priority) int {
	n := 0
	for {
		p, ok := q.PeekPriority()
		if !ok || p < threshold {
			return n
		}
		t, _ := q.Pop()
		q.run(t)
		n++
	}
}

// ExecutePriority runs only tasks of exactly priority p that are at the head
// of the queue. It stops at the first task of a different priority.
func (q *Queue) ExecutePriority(p Priority) int {
	n := 0
	for {
		head, ok := q.PeekPriority()
		if !ok || head != p {
			return n
		}
		t, _ := q.Pop()
		q.run(t)
		n++
	}
}

// ExecuteAll runs every pending task, including tasks added by the tasks it
// runs.
func (q *Queue) ExecuteAll() int {
	return q.ExecuteUntil(Idle)
}

// ExecuteWithin runs all UserInput tasks, then tasks down to lowest while budget
// has time remaining. It returns the number of tasks run.
func (q *Queue) ExecuteWithin(budget *FrameBudget, lowest Priority) int {
	n := q.ExecuteUntil(UserInput)
	for budget == nil || !budget.IsOverBudget() {
		p, ok := q.PeekPriority()
		if !ok || p < lowest {
			break
		}
		t, _ := q.Pop()
		q.run(t)
		n++
	}
	return n
}

// Clear drops every pending task without running it and returns how many
// were dropped.
func (q *Queue) Clear() int {
	q.collect()
	n := len(q.ready)
	for _, t := range q.ready {
		q.take(t)
	}
	clear(q.ready)
	q.ready = q.ready[:0]
	return n
}

// QueueStats is a snapshot of queue counters.
type QueueStats struct {
	Pending  int
	Executed int64
	Panics   int64
	ByLevel  PriorityCount
}

// Stats returns a snapshot of the queue's counters.
func (q *Queue) Stats() QueueStats {
	return QueueStats{
		Pending:  q.Len(),
		Executed: q.executed.Load(),
		Panics:   q.panics.Load(),
		ByLevel:  q.CountByPriority(),
	}
}
