// Package sched orders one-shot work items by urgency within a frame.
//
// Producers on any goroutine Add tasks without blocking. A single processing
// goroutine drains them once per frame: user input first and
// unconditionally, then animation, build and idle work while the frame
// budget has time left.
package sched

import (
	"fmt"
	"strings"
)

// Priority is the urgency of a task. Higher values run first.
type Priority uint8

const (
	Idle Priority = iota
	Build
	Animation
	UserInput
)

// NumPriorities is the number of priority levels.
const NumPriorities = int(UserInput) + 1

var priorityNames = [NumPriorities]string{"idle", "build", "animation", "user_input"}

func (p Priority) String() string {
	if int(p) < NumPriorities {
		return priorityNames[p]
	}
	return fmt.Sprintf("priority(%d)", uint8(p))
}

// Higher returns the next more urgent level, saturating at UserInput.
func (p Priority) Higher() Priority {
	if p >= UserInput {
		return UserInput
	}
	return p + 1
}

// Lower returns the next less urgent level, saturating at Idle.
func (p Priority) Lower() Priority {
	if p == Idle {
		return Idle
	}
	return p - 1
}

// ParsePriority parses a priority name as produced by String. It also
// accepts "input" and "userinput".
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "idle":
		return Idle, nil
	case "build":
		return Build, nil
	case "animation":
		return Animation, nil
	case "user_input", "userinput", "input":
		return UserInput, nil
	}
	return Idle, fmt.Errorf("sched: unknown priority %q", s)
}

// PriorityCount holds the number of pending tasks per level.
type PriorityCount [NumPriorities]int

// Total returns the number of tasks across all levels.
func (c PriorityCount) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}
