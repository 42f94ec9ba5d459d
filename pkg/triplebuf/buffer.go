// Package triplebuf hands values from one producer goroutine to one consumer
// goroutine without locks. The producer never waits for the consumer and the
// consumer always sees the most recently completed value; intermediate
// values written between two reads are dropped.
package triplebuf

import "sync/atomic"

// fresh is set in the shared index word when the shared slot holds a value
// the consumer has not taken yet. Keeping it in the same word as the index
// lets a single exchange hand over the slot and the flag together.
const fresh uint32 = 1 << 31

// Buffer is a single-producer, single-consumer triple buffer.
//
// Each of the three slots is owned by exactly one role at a time: the
// producer owns the write slot, the consumer owns the read slot, and the
// shared slot is in transit. Roles only change through atomic exchanges on
// the shared index, so a slot is never read while it is being written.
//
// Write must only be called from one goroutine and Read from one (possibly
// different) goroutine. HasNewData is safe from anywhere.
type Buffer[T any] struct {
	slots [3]T

	write  atomic.Uint32
	_      [60]byte
	read   atomic.Uint32
	_      [60]byte
	shared atomic.Uint32

	clone func(T) T
}

// New returns a buffer whose three slots hold initial. Read returns values as
// stored; use NewWithClone when T shares memory the producer keeps mutating.
func New[T any](initial T) *Buffer[T] {
	return NewWithClone(initial, nil)
}

// NewWithClone returns a buffer that passes every value handed to the
// consumer through clone. A nil clone returns values as stored.
func NewWithClone[T any](initial T, clone func(T) T) *Buffer[T] {
	b := &Buffer[T]{clone: clone}
	for i := range b.slots {
		if clone != nil {
			b.slots[i] = clone(initial)
		} else {
			b.slots[i] = initial
		}
	}
	b.write.Store(0)
	b.read.Store(1)
	b.shared.Store(2)
	return b
}

// Write publishes v. It never blocks.
func (b *Buffer[T]) Write(v T) {
	w := b.write.Load()
	b.slots[w] = v
	old := b.shared.Swap(w | fresh)
	b.write.Store(old &^ fresh)
}

// Read returns the latest published value, or the value returned by the
// previous Read when nothing new was written. It never blocks.
func (b *Buffer[T]) Read() T {
	r := b.read.Load()
	if b.shared.Load()&fresh != 0 {
		old := b.shared.Swap(r)
		r = old &^ fresh
		b.read.Store(r)
	}
	v := b.slots[r]
	if b.clone != nil {
		v = b.clone(v)
	}
	return v
}

// HasNewData reports whether a value was written since the last Read.
func (b *Buffer[T]) HasNewData() bool {
	return b.shared.Load()&fresh != 0
}
