// Package node holds the per-node identity and atomic status flags shared by
// the render pipelines.
package node

import (
	"strings"
	"sync/atomic"
)

// Bits is a snapshot of a node's flag word.
type Bits uint32

const (
	// Dirty means the node must be rebuilt before the next frame.
	Dirty Bits = 1 << iota
	// Mounted is set while the node is attached to a tree.
	Mounted
	// Active is set while a mounted node participates in frames.
	Active
	// NeedsLayout means the node's geometry is stale.
	NeedsLayout
	// NeedsPaint means the node's painted output is stale.
	NeedsPaint
	// Defunct marks an unmounted node. It is terminal.
	Defunct
)

// lifecycleMask covers the bits that encode the lifecycle state.
//
// Legal lifecycle encodings:
//
//	state     Mounted Active Defunct
//	Initial      0      0       0
//	Active       1      1       0
//	Inactive     1      0       0
//	Defunct      0      0       1
//
// Dirty, NeedsLayout and NeedsPaint may accompany any non-Defunct state.
const lifecycleMask = Mounted | Active | Defunct

var bitNames = [...]string{"dirty", "mounted", "active", "needs-layout", "needs-paint", "defunct"}

// Has reports whether every bit in mask is set.
func (b Bits) Has(mask Bits) bool { return b&mask == mask }

func (b Bits) String() string {
	if b == 0 {
		return "0"
	}
	var parts []string
	for i, name := range bitNames {
		if b&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}

// Lifecycle is the mount state of a node.
type Lifecycle uint8

const (
	LifecycleInitial Lifecycle = iota
	LifecycleActive
	LifecycleInactive
	LifecycleDefunct
)

func (l Lifecycle) String() string {
	switch l {
	case LifecycleInitial:
		return "initial"
	case LifecycleActive:
		return "active"
	case LifecycleInactive:
		return "inactive"
	case LifecycleDefunct:
		return "defunct"
	default:
		return "unknown"
	}
}

// Lifecycle decodes the lifecycle state from b.
func (b Bits) Lifecycle() Lifecycle {
	switch {
	case b&Defunct != 0:
		return LifecycleDefunct
	case b.Has(Mounted | Active):
		return LifecycleActive
	case b&Mounted != 0:
		return LifecycleInactive
	default:
		return LifecycleInitial
	}
}

// Flags is a node's status word. Every method is a single atomic
// read-modify-write (or a bounded CAS loop for lifecycle transitions) and may
// be called from any goroutine without further synchronization.
//
// The zero value is an Initial node at depth 0.
type Flags struct {
	bits  atomic.Uint32
	depth atomic.Int64
}

// Load returns a snapshot of all bits.
func (f *Flags) Load() Bits { return Bits(f.bits.Load()) }

// Lifecycle returns the current lifecycle state.
func (f *Flags) Lifecycle() Lifecycle { return f.Load().Lifecycle() }

func (f *Flags) set(mask Bits) Bits   { return Bits(f.bits.Or(uint32(mask))) }
func (f *Flags) clear(mask Bits) Bits { return Bits(f.bits.And(^uint32(mask))) }

// MarkDirty sets Dirty and reports whether it was previously clear.
func (f *Flags) MarkDirty() bool { return f.set(Dirty)&Dirty == 0 }

// ClearDirty clears Dirty.
func (f *Flags) ClearDirty() { f.clear(Dirty) }

// MarkNeedsLayout sets NeedsLayout and NeedsPaint together; a node whose
// geometry changed must also repaint. It reports whether NeedsLayout was
// previously clear.
func (f *Flags) MarkNeedsLayout() bool {
	return f.set(NeedsLayout|NeedsPaint)&NeedsLayout == 0
}

// MarkNeedsPaint sets NeedsPaint and reports whether it was previously clear.
func (f *Flags) MarkNeedsPaint() bool { return f.set(NeedsPaint)&NeedsPaint == 0 }

// ClearNeedsLayout clears NeedsLayout only. NeedsPaint stays set until the
// paint pass clears it.
func (f *Flags) ClearNeedsLayout() { f.clear(NeedsLayout) }

// ClearNeedsPaint clears NeedsPaint.
func (f *Flags) ClearNeedsPaint() { f.clear(NeedsPaint) }

// IsDirty reports whether Dirty is set.
func (f *Flags) IsDirty() bool { return f.Load()&Dirty != 0 }

// NeedsLayout reports whether NeedsLayout is set.
func (f *Flags) NeedsLayout() bool { return f.Load()&NeedsLayout != 0 }

// NeedsPaint reports whether NeedsPaint is set.
func (f *Flags) NeedsPaint() bool { return f.Load()&NeedsPaint != 0 }

// IsMounted reports whether the node is attached (Active or Inactive).
func (f *Flags) IsMounted() bool { return f.Load()&Mounted != 0 }

// IsActive reports whether the node is in the Active state.
func (f *Flags) IsActive() bool { return f.Load().Has(Mounted | Active) }

// IsDefunct reports whether the node has been unmounted.
func (f *Flags) IsDefunct() bool { return f.Load()&Defunct != 0 }

// transition moves the lifecycle from one of the states in from to the state
// encoded by to, applying extra on success. It fails without side effects if
// the current state is not in from.
func (f *Flags) transition(from []Lifecycle, to, extraSet, extraClear Bits) bool {
	for {
		old := f.bits.Load()
		cur := Bits(old)
		ok := false
		for _, l := range from {
			if cur.Lifecycle() == l {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
		next := (cur&^lifecycleMask | to | extraSet) &^ extraClear
		if f.bits.CompareAndSwap(old, uint32(next)) {
			return true
		}
	}
}

// Mount moves an Initial node to Active at the given depth and marks it
// dirty. It returns false if the node was not Initial.
func (f *Flags) Mount(depth int) bool {
	if !f.transition([]Lifecycle{LifecycleInitial}, Mounted|Active, Dirty, 0) {
		return false
	}
	f.depth.Store(int64(depth))
	return true
}

// Unmount moves a mounted node to Defunct and clears its pending work
// flags. Defunct is terminal; Unmount on an Initial or Defunct node returns
// false.
func (f *Flags) Unmount() bool {
	return f.transition([]Lifecycle{LifecycleActive, LifecycleInactive}, Defunct, 0, Dirty|NeedsLayout|NeedsPaint)
}

// Activate moves an Inactive node back to Active.
func (f *Flags) Activate() bool {
	return f.transition([]Lifecycle{LifecycleInactive}, Mounted|Active, 0, 0)
}

// Deactivate moves an Active node to Inactive.
func (f *Flags) Deactivate() bool {
	return f.transition([]Lifecycle{LifecycleActive}, Mounted, 0, 0)
}

// SetDepth records the node's distance from the root.
func (f *Flags) SetDepth(depth int) { f.depth.Store(int64(depth)) }

// Depth returns the cached distance from the root.
func (f *Flags) Depth() int { return int(f.depth.Load()) }
