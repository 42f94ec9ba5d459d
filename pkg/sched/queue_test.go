package sched

import (
	"sync"
	"testing"
)

func recorder() (*[]string, func(string) func()) {
	var order []string
	return &order, func(name string) func() {
		return func() { order = append(order, name) }
	}
}

func TestQueuePriorityOrder(t *testing.T) {
	q := NewQueue()
	order, rec := recorder()

	q.Add(Build, rec("A"))
	q.Add(UserInput, rec("B"))
	q.Add(Animation, rec("C"))
	q.Add(Idle, rec("D"))

	if n := q.ExecuteAll(); n != 4 {
		t.Errorf("ExecuteAll() = %d, want 4", n)
	}
	want := []string{"B", "C", "A", "D"}
	for i, w := range want {
		if (*order)[i] != w {
			t.Errorf("order = %v, want %v", *order, want)
			break
		}
	}
}

func TestQueueFIFOWithinPriority(t *testing.T) {
	q := NewQueue()
	order, rec := recorder()

	q.Add(Build, rec("1"))
	q.Add(Build, rec("2"))
	q.Add(Build, rec("3"))

	q.ExecuteAll()
	if got := *order; len(got) != 3 || got[0] != "1" || got[1] != "2" || got[2] != "3" {
		t.Errorf("order = %v, want [1 2 3]", got)
	}
}

func TestQueueExecuteUntilStopsWithoutConsuming(t *testing.T) {
	q := NewQueue()
	order, rec := recorder()

	q.Add(UserInput, rec("input"))
	q.Add(Build, rec("build"))
	q.Add(Idle, rec("idle"))

	if n := q.ExecuteUntil(Build); n != 2 {
		t.Errorf("ExecuteUntil(Build) = %d, want 2", n)
	}
	if q.Len() != 1 {
		t.Errorf("Len() = %d, want 1", q.Len())
	}
	p, ok := q.PeekPriority()
	if !ok || p != Idle {
		t.Errorf("PeekPriority() = %v, %v, want idle, true", p, ok)
	}
	if len(*order) != 2 {
		t.Errorf("order = %v", *order)
	}
}

func TestQueueAddReturnsIncreasingIDs(t *testing.T) {
	q := NewQueue()
	a := q.Add(Idle, nil)
	b := q.Add(UserInput, nil)
	if b <= a {
		t.Errorf("ids not increasing: %d then %d", a, b)
	}

	task, ok := q.Pop()
	if !ok || task.ID() != b || task.Priority() != UserInput {
		t.Errorf("Pop() = %+v, want id %d user_input", task, b)
	}
}

func TestQueuePopEmpty(t *testing.T) {
	q := NewQueue()
	if _, ok := q.Pop(); ok {
		t.Error("Pop() on empty queue = ok")
	}
	if _, ok := q.PeekPriority(); ok {
		t.Error("PeekPriority() on empty queue = ok")
	}
}

func TestQueueExecutePriority(t *testing.T) {
	q := NewQueue()
	q.Add(Animation, func() {})
	q.Add(Animation, func() {})
	q.Add(Build, func() {})

	if n := q.ExecutePriority(Build); n != 0 {
		t.Errorf("ExecutePriority(Build) with animation head = %d, want 0", n)
	}
	if n := q.ExecutePriority(Animation); n != 2 {
		t.Errorf("ExecutePriority(Animation) = %d, want 2", n)
	}
	if q.Len() != 1 {
		t.Errorf("Len() = %d, want 1", q.Len())
	}
}

func TestQueueCountByPriorityAndClear(t *testing.T) {
	q := NewQueue()
	q.Add(Idle, nil)
	q.Add(Build, nil)
	q.Add(Build, nil)
	q.Add(UserInput, nil)

	c := q.CountByPriority()
	if c[Idle] != 1 || c[Build] != 2 || c[Animation] != 0 || c[UserInput] != 1 {
		t.Errorf("CountByPriority() = %v", c)
	}
	if c.Total() != 4 {
		t.Errorf("Total() = %d, want 4", c.Total())
	}

	if n := q.Clear(); n != 4 {
		t.Errorf("Clear() = %d, want 4", n)
	}
	if q.Len() != 0 || q.CountByPriority().Total() != 0 {
		t.Errorf("after Clear: Len() = %d, counts = %v", q.Len(), q.CountByPriority())
	}
}

func TestQueueTaskAddedDuringExecution(t *testing.T) {
	q := NewQueue()
	ran := 0
	q.Add(Build, func() {
		ran++
		q.Add(Build, func() { ran++ })
	})
	if n := q.ExecuteAll(); n != 2 {
		t.Errorf("ExecuteAll() = %d, want 2", n)
	}
	if ran != 2 {
		t.Errorf("ran = %d, want 2", ran)
	}
}

func TestQueueRecoversPanics(t *testing.T) {
	var hook []Priority
	q := NewQueue(WithRunHook(func(p Priority) { hook = append(hook, p) }))
	ran := false
	q.Add(UserInput, func() { panic("boom") })
	q.Add(Build, func() { ran = true })

	if n := q.ExecuteAll(); n != 2 {
		t.Errorf("ExecuteAll() = %d, want 2", n)
	}
	if !ran {
		t.Error("task after panicking task did not run")
	}
	stats := q.Stats()
	if stats.Panics != 1 || stats.Executed != 2 {
		t.Errorf("Stats() = %+v, want 1 panic, 2 executed", stats)
	}
	if len(hook) != 2 || hook[0] != UserInput {
		t.Errorf("run hook = %v", hook)
	}
}

func TestQueueConcurrentAdd(t *testing.T) {
	q := NewQueue()
	const (
		producers = 8
		perP      = 500
	)
	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < perP; j++ {
				q.Add(Priority(j%NumPriorities), func() {})
			}
		}(i)
	}
	wg.Wait()

	if q.Len() != producers*perP {
		t.Fatalf("Len() = %d, want %d", q.Len(), producers*perP)
	}

	var prev *Task
	n := 0
	for {
		task, ok := q.Pop()
		if !ok {
			break
		}
		if prev != nil && task.before(prev) {
			t.Fatalf("task %d (%v) popped after %d (%v)", task.ID(), task.Priority(), prev.ID(), prev.Priority())
		}
		prev = task
		n++
	}
	if n != producers*perP {
		t.Errorf("popped %d, want %d", n, producers*perP)
	}
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in   string
		want Priority
	}{
		{"idle", Idle},
		{"Build", Build},
		{"animation", Animation},
		{"user_input", UserInput},
		{"input", UserInput},
	}
	for _, tt := range tests {
		got, err := ParsePriority(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParsePriority(%q) = %v, %v, want %v", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParsePriority("urgent"); err == nil {
		t.Error("ParsePriority(urgent) returned no error")
	}
}

func TestPriorityHigherLower(t *testing.T) {
	if Idle.Higher() != Build || UserInput.Higher() != UserInput {
		t.Error("Higher() mismatch")
	}
	if UserInput.Lower() != Animation || Idle.Lower() != Idle {
		t.Error("Lower() mismatch")
	}
	if Animation.String() != "animation" {
		t.Errorf("String() = %q", Animation.String())
	}
}

func TestQueueMixedInsertionOrder(t *testing.T) {
	q := NewQueue()
	var got []Priority
	for _, p := range []Priority{Idle, UserInput, Build, Animation} {
		q.Add(p, func() { got = append(got, p) })
	}

	q.ExecuteAll()
	want := []Priority{UserInput, Animation, Build, Idle}
	if len(got) != len(want) {
		t.Fatalf("ran %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ran %v, want %v", got, want)
			break
		}
	}
}

func TestQueueExecuteUntilBuildLeavesIdle(t *testing.T) {
	q := NewQueue()
	for i := 0; i < 3; i++ {
		q.Add(UserInput, func() {})
	}
	for i := 0; i < 2; i++ {
		q.Add(Build, func() {})
	}
	q.Add(Idle, func() {})

	if n := q.ExecuteUntil(Build); n != 5 {
		t.Errorf("ExecuteUntil(Build) = %d, want 5", n)
	}
	if n := q.Len(); n != 1 {
		t.Errorf("Len() = %d, want 1", n)
	}
	if c := q.CountByPriority(); c[Idle] != 1 {
		t.Errorf("CountByPriority()[Idle] = %d, want 1", c[Idle])
	}
}
