package dirty

import "github.com/vango-dev/framepipe/pkg/node"

// Handle lets the holder request a rebuild of one node. It is a small value:
// copying it is cloning it, and copies may be used from any goroutine. The
// zero Handle does nothing.
type Handle struct {
	id  node.ID
	set *Set
}

// NewHandle returns a handle that schedules id into set.
func NewHandle(id node.ID, set *Set) Handle {
	return Handle{id: id, set: set}
}

// ScheduleRebuild marks the node dirty. It never blocks and never fails, and
// calling it repeatedly before the next drain yields a single entry.
func (h Handle) ScheduleRebuild() {
	if h.set != nil {
		h.set.Mark(h.id)
	}
}

// ID returns the node the handle refers to.
func (h Handle) ID() node.ID { return h.id }

// Valid reports whether the handle is bound to a set and a node.
func (h Handle) Valid() bool { return h.set != nil && h.id != node.None }
