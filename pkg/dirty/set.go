// Package dirty tracks which nodes need work in the next frame.
//
// Set is a lock-free, deduplicating set of node IDs backed by a paged atomic
// bitmap: any goroutine may Mark, and a single consumer drains once per frame.
// Handle is the small value that callbacks carry to schedule a rebuild of the
// node they belong to.
package dirty

import (
	"math/bits"
	"sync/atomic"

	"github.com/vango-dev/framepipe/pkg/node"
)

const (
	wordsPerPage = 64
	idsPerPage   = wordsPerPage * 64
)

// MaxID is the largest id a Set tracks. Larger ids are ignored, which bounds
// the page directory at MaxID/idsPerPage+1 slots.
const MaxID node.ID = 1<<26 - 1

// page holds the bits for idsPerPage consecutive ids.
type page struct {
	words [wordsPerPage]atomic.Uint64
}

// slot is shared by every directory generation so a page installed through
// an old directory is visible through the new one.
type slot struct {
	p atomic.Pointer[page]
}

// Source is anything the pipelines can drain pending node ids from and put
// unfinished ids back into. *Set implements it.
type Source interface {
	Mark(id node.ID)
	Drain() []node.ID
}

// Set is a concurrent set of node IDs.
//
// Mark, IsDirty and Len are safe from any goroutine and never block. Drain
// and Clear are meant for a single consumer; a Mark racing a Drain lands
// either in that Drain's result or in the next one.
//
// The zero value is ready to use.
type Set struct {
	dir    atomic.Pointer[[]*slot]
	count  atomic.Int64
	onMark atomic.Pointer[func()]
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{}
}

// OnMark registers fn to be called whenever an id is newly inserted. fn runs
// on the marking goroutine and must not block. Passing nil removes it.
func (s *Set) OnMark(fn func()) {
	if fn == nil {
		s.onMark.Store(nil)
		return
	}
	s.onMark.Store(&fn)
}

// Mark inserts id. Marking an id that is already present, node.None or an id
// above MaxID is a no-op.
func (s *Set) Mark(id node.ID) {
	if id == node.None || id > MaxID {
		return
	}
	p := s.pageFor(id, true)
	w, mask := wordBit(id)
	if p.words[w].Or(mask)&mask != 0 {
		return
	}
	s.count.Add(1)
	if fn := s.onMark.Load(); fn != nil {
		(*fn)()
	}
}

// IsDirty reports whether id is currently in the set.
func (s *Set) IsDirty(id node.ID) bool {
	if id == node.None || id > MaxID {
		return false
	}
	p := s.pageFor(id, false)
	if p == nil {
		return false
	}
	w, mask := wordBit(id)
	return p.words[w].Load()&mask != 0
}

// Len returns the number of ids in the set. Under concurrent marking the
// value is a snapshot.
func (s *Set) Len() int {
	n := s.count.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}

// Drain removes and returns every id in the set, in ascending order. It
// returns nil when the set is empty.
func (s *Set) Drain() []node.ID {
	dir := s.dir.Load()
	if dir == nil {
		return nil
	}
	var out []node.ID
	if n := s.Len(); n > 0 {
		out = make([]node.ID, 0, n)
	}
	for pi, sl := range *dir {
		p := sl.p.Load()
		if p == nil {
			continue
		}
		base := pi * idsPerPage
		for wi := range p.words {
			word := p.words[wi].Swap(0)
			if word == 0 {
				continue
			}
			s.count.Add(-int64(bits.OnesCount64(word)))
			for word != 0 {
				b := bits.TrailingZeros64(word)
				out = append(out, node.ID(base+wi*64+b))
				word &= word - 1
			}
		}
	}
	return out
}

// Clear empties the set.
func (s *Set) Clear() {
	s.Drain()
}

func wordBit(id node.ID) (int, uint64) {
	off := int(id) % idsPerPage
	return off / 64, 1 << (off % 64)
}

// pageFor returns the page holding id, allocating it when create is set.
func (s *Set) pageFor(id node.ID, create bool) *page {
	pi := int(id) / idsPerPage
	dir := s.dir.Load()
	if dir == nil || pi >= len(*dir) {
		if !create {
			return nil
		}
		dir = s.grow(pi + 1)
	}
	sl := (*dir)[pi]
	if p := sl.p.Load(); p != nil || !create {
		return p
	}
	fresh := new(page)
	if sl.p.CompareAndSwap(nil, fresh) {
		return fresh
	}
	return sl.p.Load()
}

// grow makes the directory hold at least n slots and returns it.
func (s *Set) grow(n int) *[]*slot {
	for {
		old := s.dir.Load()
		var cur []*slot
		if old != nil {
			cur = *old
			if len(cur) >= n {
				return old
			}
		}
		size := max(n, 2*len(cur), 1)
		next := make([]*slot, size)
		copy(next, cur)
		for i := len(cur); i < size; i++ {
			next[i] = new(slot)
		}
		if s.dir.CompareAndSwap(old, &next) {
			return &next
		}
	}
}
