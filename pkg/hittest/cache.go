// Package hittest memoizes hit-test results for pointer positions.
//
// Positions are quantized into small cells so that sub-cell pointer jitter
// over a static tree reuses the previous answer. Any change to the tree calls
// Invalidate, which only bumps a generation counter; the next lookup notices
// the mismatch and clears the whole cache at once.
package hittest

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/vango-dev/framepipe/pkg/geom"
	"github.com/vango-dev/framepipe/pkg/node"
)

// DefaultCellSize is the quantization step for positions, in logical pixels.
const DefaultCellSize = 0.1

// Key identifies a cache entry: a quantized position under a given root.
type Key struct {
	X, Y int64
	Root node.ID
}

// NewKey returns the key for pos under root using DefaultCellSize.
func NewKey(pos geom.Offset, root node.ID) Key {
	return KeyWithCell(pos, root, DefaultCellSize)
}

// KeyWithCell returns the key for pos under root, quantizing each axis to
// the cell containing it.
func KeyWithCell(pos geom.Offset, root node.ID, cell float64) Key {
	if cell <= 0 {
		cell = DefaultCellSize
	}
	return Key{
		X:    quantize(pos.X, cell),
		Y:    quantize(pos.Y, cell),
		Root: root,
	}
}

// quantEpsilon absorbs the rounding error of v / cell, so that a position
// sitting on a cell boundary (0.7 with cell 0.1) lands in the upper cell.
const quantEpsilon = 1e-9

func quantize(v, cell float64) int64 {
	return int64(math.Floor(v/cell + quantEpsilon))
}

// Stats is a snapshot of cache activity.
type Stats struct {
	Hits    int64
	Misses  int64
	Clears  int64
	Entries int
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Option configures a Cache.
type Option[R any] func(*Cache[R])

// WithCellSize sets the quantization step.
func WithCellSize[R any](cell float64) Option[R] {
	return func(c *Cache[R]) {
		if cell > 0 {
			c.cell = cell
		}
	}
}

// WithMaxEntries bounds the number of entries. When an insert would exceed
// the bound the cache is cleared first. Zero means unbounded.
func WithMaxEntries[R any](n int) Option[R] {
	return func(c *Cache[R]) {
		if n >= 0 {
			c.maxEntries = n
		}
	}
}

// WithClone sets the function used to copy results in and out of the cache,
// for result types that share memory (slices, maps).
func WithClone[R any](clone func(R) R) Option[R] {
	return func(c *Cache[R]) {
		c.clone = clone
	}
}

// WithObserver registers fn to be told the outcome of every lookup.
func WithObserver[R any](fn func(hit bool)) Option[R] {
	return func(c *Cache[R]) {
		c.observe = fn
	}
}

// Cache maps quantized positions to hit-test results.
//
// Invalidate may be called from any goroutine. The other methods take an
// internal mutex; they are expected to be called from the goroutine that
// performs hit tests, so the lock is uncontended in practice.
type Cache[R any] struct {
	generation atomic.Uint64

	mu               sync.Mutex
	entries          map[Key]R
	cachedGeneration uint64

	cell       float64
	maxEntries int
	clone      func(R) R
	observe    func(hit bool)

	hits   atomic.Int64
	misses atomic.Int64
	clears atomic.Int64
}

// New returns an empty cache.
func New[R any](opts ...Option[R]) *Cache[R] {
	c := &Cache[R]{
		entries: make(map[Key]R),
		cell:    DefaultCellSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key returns the key pos and root map to in this cache.
func (c *Cache[R]) Key(pos geom.Offset, root node.ID) Key {
	return KeyWithCell(pos, root, c.cell)
}

// sync clears the entries if the generation moved. It reports whether a
// clear happened. c.mu must be held.
func (c *Cache[R]) sync() bool {
	gen := c.generation.Load()
	if gen == c.cachedGeneration {
		return false
	}
	clear(c.entries)
	c.cachedGeneration = gen
	c.clears.Add(1)
	return true
}

func (c *Cache[R]) copyOf(r R) R {
	if c.clone != nil {
		return c.clone(r)
	}
	return r
}

func (c *Cache[R]) record(hit bool) {
	if hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	if c.observe != nil {
		c.observe(hit)
	}
}

// Get returns the cached result for pos under root. After an Invalidate the
// first Get clears the cache and misses.
func (c *Cache[R]) Get(pos geom.Offset, root node.ID) (R, bool) {
	c.mu.Lock()
	var zero R
	if c.sync() {
		c.mu.Unlock()
		c.record(false)
		return zero, false
	}
	r, ok := c.entries[c.Key(pos, root)]
	if ok {
		r = c.copyOf(r)
	}
	c.mu.Unlock()
	c.record(ok)
	if !ok {
		return zero, false
	}
	return r, true
}

// Insert stores result for pos under root. A pending invalidation is left
// for the next Get, which drops this entry along with the rest.
func (c *Cache[R]) Insert(pos geom.Offset, root node.ID, result R) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := c.Key(pos, root)
	if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		if _, exists := c.entries[key]; !exists {
			clear(c.entries)
			c.clears.Add(1)
		}
	}
	c.entries[key] = c.copyOf(result)
}

// Resolve returns the cached result for pos under root, or computes, stores
// and returns it. compute runs without the cache lock held. If the cache is
// invalidated while compute runs, the result is returned but not stored.
func (c *Cache[R]) Resolve(pos geom.Offset, root node.ID, compute func() R) R {
	if r, ok := c.Get(pos, root); ok {
		return r
	}
	gen := c.generation.Load()
	r := compute()
	if c.generation.Load() != gen {
		return r
	}
	c.Insert(pos, root, r)
	return r
}

// Invalidate marks every entry stale. Entries are dropped lazily by the next
// Get.
func (c *Cache[R]) Invalidate() {
	c.generation.Add(1)
}

// Generation returns the live generation counter.
func (c *Cache[R]) Generation() uint64 {
	return c.generation.Load()
}

// Len returns the number of stored entries, including stale ones not yet
// cleared.
func (c *Cache[R]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of cache activity.
func (c *Cache[R]) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Clears:  c.clears.Load(),
		Entries: c.Len(),
	}
}
