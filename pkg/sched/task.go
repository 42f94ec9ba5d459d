package sched

// Task is a one-shot unit of work.
type Task struct {
	id       uint64
	priority Priority
	fn       func()

	// next links tasks on the queue's intake stack.
	next *Task
}

// ID returns the task's sequence number. IDs increase in Add order within a
// queue.
func (t *Task) ID() uint64 { return t.id }

// Priority returns the task's priority.
func (t *Task) Priority() Priority { return t.priority }

// Run invokes the task's callback.
func (t *Task) Run() {
	if t.fn != nil {
		t.fn()
	}
}

// before reports whether t runs before u: higher priority first, then lower
// id.
func (t *Task) before(u *Task) bool {
	if t.priority != u.priority {
		return t.priority > u.priority
	}
	return t.id < u.id
}

// taskHeap implements container/heap over (priority desc, id asc).
type taskHeap []*Task

func (h taskHeap) Len() int           { return len(h) }
func (h taskHeap) Less(i, j int) bool { return h[i].before(h[j]) }
func (h taskHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(*Task)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}
