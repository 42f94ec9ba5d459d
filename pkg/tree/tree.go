// Package tree is a flat, index-addressed node store that implements the
// collaborator interfaces of package pipeline.
//
// Nodes live in a slice indexed by node.ID; parent and child links are IDs,
// never pointers. Removed IDs are not reused, so a stale dirty mark for a
// removed node can never land on a newer node.
package tree

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/vango-dev/framepipe/pkg/geom"
	"github.com/vango-dev/framepipe/pkg/hittest"
	"github.com/vango-dev/framepipe/pkg/node"
	"github.com/vango-dev/framepipe/pkg/pipeline"
)

// Kind distinguishes composition-only nodes from nodes that lay out and
// paint.
type Kind uint8

const (
	// Render nodes take part in layout and paint.
	Render Kind = iota
	// Component nodes only compose children. The pipelines skip them.
	Component
)

func (k Kind) String() string {
	if k == Component {
		return "component"
	}
	return "render"
}

// LayoutFunc computes a node's size under c. It positions and lays out
// children through lc.
type LayoutFunc func(lc *LayoutContext, c geom.Constraints) (geom.Size, error)

// PaintFunc records a node's own content within bounds (root coordinates).
type PaintFunc func(id node.ID, bounds geom.Rect) (any, error)

// BuildFunc re-runs a node's composition step.
type BuildFunc func(ctx context.Context, id node.ID) error

// Spec describes a node to insert.
type Spec struct {
	Name   string
	Kind   Kind
	Layout LayoutFunc
	Paint  PaintFunc
	Build  BuildFunc
}

// Scheduler receives layout and paint requests raised by tree changes.
// *pipeline.Owner implements it.
type Scheduler interface {
	RequestLayout(id node.ID)
	RequestPaint(id node.ID)
}

// Errors returned by structural mutations.
var (
	ErrRootExists = errors.New("tree: root already exists")
	ErrNotFound   = errors.New("tree: node not found")
	ErrCycle      = errors.New("tree: node cannot be moved under its own subtree")
)

type entry struct {
	spec     Spec
	parent   node.ID
	children []node.ID
	flags    node.Flags

	constraints    geom.Constraints
	hasConstraints bool
	size           geom.Size
	offset         geom.Offset // relative to parent
}

// Tree is a node arena.
//
// Structure and geometry are guarded by an RWMutex; node flags are atomic.
// User callbacks (layout, paint, build) run without the lock held and may
// call back into the tree.
type Tree struct {
	mu    sync.RWMutex
	nodes []*entry // nodes[0] is always nil
	root  node.ID
	live  int

	sched  Scheduler
	hits   *hittest.Cache[[]node.ID]
	logger *slog.Logger
}

// Option configures a Tree.
type Option func(*Tree)

// WithScheduler forwards layout and paint requests to s.
func WithScheduler(s Scheduler) Option {
	return func(t *Tree) { t.sched = s }
}

// WithHitTestCache replaces the default hit-test cache.
func WithHitTestCache(c *hittest.Cache[[]node.ID]) Option {
	return func(t *Tree) {
		if c != nil {
			t.hits = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tree) {
		if l != nil {
			t.logger = l
		}
	}
}

// New returns an empty tree.
func New(opts ...Option) *Tree {
	t := &Tree{
		nodes:  []*entry{nil},
		logger: slog.Default().With("component", "tree"),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.hits == nil {
		t.hits = NewHitTestCache()
	}
	return t
}

// NewHitTestCache returns a hit-test cache suitable for WithHitTestCache.
func NewHitTestCache(opts ...hittest.Option[[]node.ID]) *hittest.Cache[[]node.ID] {
	opts = append([]hittest.Option[[]node.ID]{hittest.WithClone(slices.Clone[[]node.ID])}, opts...)
	return hittest.New(opts...)
}

// SetScheduler sets the receiver of layout and paint requests. It is meant
// for wiring at startup, before any frame runs.
func (t *Tree) SetScheduler(s Scheduler) {
	t.mu.Lock()
	t.sched = s
	t.mu.Unlock()
}

func (t *Tree) scheduler() Scheduler {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sched
}

func (t *Tree) get(id node.ID) *entry {
	if int(id) >= len(t.nodes) {
		return nil
	}
	return t.nodes[id]
}

func (t *Tree) lookup(id node.ID) *entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.get(id)
}

func (t *Tree) requestLayout(ids ...node.ID) {
	sched := t.scheduler()
	for _, id := range ids {
		if id == node.None {
			continue
		}
		if e := t.lookup(id); e != nil {
			e.flags.MarkNeedsLayout()
		}
		if sched != nil {
			sched.RequestLayout(id)
		}
	}
}

// Insert adds a node under parent and returns its ID. Passing node.None as
// parent creates the root, which fails if one exists.
func (t *Tree) Insert(parent node.ID, spec Spec) (node.ID, error) {
	t.mu.Lock()
	depth := 0
	if parent == node.None {
		if t.root != node.None {
			t.mu.Unlock()
			return node.None, ErrRootExists
		}
	} else {
		p := t.get(parent)
		if p == nil {
			t.mu.Unlock()
			return node.None, fmt.Errorf("%w: parent %d", ErrNotFound, parent)
		}
		depth = p.flags.Depth() + 1
	}

	id := node.ID(len(t.nodes))
	e := &entry{spec: spec, parent: parent}
	e.flags.Mount(depth)
	t.nodes = append(t.nodes, e)
	t.live++
	if parent == node.None {
		t.root = id
	} else {
		p := t.get(parent)
		p.children = append(p.children, id)
	}
	t.mu.Unlock()

	t.hits.Invalidate()
	t.requestLayout(id, parent)
	return id, nil
}

// Remove detaches id and its subtree. Removed nodes become Defunct.
func (t *Tree) Remove(id node.ID) error {
	t.mu.Lock()
	e := t.get(id)
	if e == nil {
		t.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	parent := e.parent
	if p := t.get(parent); p != nil {
		p.children = slices.DeleteFunc(p.children, func(c node.ID) bool { return c == id })
	}
	if id == t.root {
		t.root = node.None
	}
	removed := 0
	t.walkLocked(id, func(n node.ID, ne *entry) {
		ne.flags.Unmount()
		t.nodes[n] = nil
		removed++
	})
	t.live -= removed
	t.mu.Unlock()

	t.hits.Invalidate()
	t.requestLayout(parent)
	t.logger.Debug("removed subtree", "node", id, "nodes", removed)
	return nil
}

// Reparent moves id, with its subtree, under newParent and updates the
// cached depths.
func (t *Tree) Reparent(id, newParent node.ID) error {
	t.mu.Lock()
	e, np := t.get(id), t.get(newParent)
	if e == nil || np == nil {
		t.mu.Unlock()
		return fmt.Errorf("%w: %d -> %d", ErrNotFound, id, newParent)
	}
	for a := newParent; a != node.None; a = t.get(a).parent {
		if a == id {
			t.mu.Unlock()
			return ErrCycle
		}
	}
	oldParent := e.parent
	if op := t.get(oldParent); op != nil {
		op.children = slices.DeleteFunc(op.children, func(c node.ID) bool { return c == id })
	}
	if id == t.root {
		t.root = node.None
	}
	e.parent = newParent
	e.hasConstraints = false
	np.children = append(np.children, id)
	base := np.flags.Depth() + 1
	t.setDepthsLocked(id, base)
	t.mu.Unlock()

	t.hits.Invalidate()
	t.requestLayout(id, oldParent, newParent)
	return nil
}

func (t *Tree) setDepthsLocked(id node.ID, depth int) {
	e := t.get(id)
	e.flags.SetDepth(depth)
	for _, c := range e.children {
		t.setDepthsLocked(c, depth+1)
	}
}

// walkLocked visits id's subtree, parents before children.
func (t *Tree) walkLocked(id node.ID, fn func(node.ID, *entry)) {
	e := t.get(id)
	if e == nil {
		return
	}
	children := e.children
	fn(id, e)
	for _, c := range children {
		t.walkLocked(c, fn)
	}
}

// Root returns the root node, or node.None for an empty tree.
func (t *Tree) Root() node.ID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root
}

// Len returns the number of live nodes.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.live
}

// Children returns a copy of id's children.
func (t *Tree) Children(id node.ID) []node.ID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if e := t.get(id); e != nil {
		return slices.Clone(e.children)
	}
	return nil
}

// Parent returns id's parent.
func (t *Tree) Parent(id node.ID) (node.ID, bool) {
	e := t.lookup(id)
	if e == nil || e.parent == node.None {
		return node.None, false
	}
	return e.parent, true
}

// Contains reports whether id names a live node.
func (t *Tree) Contains(id node.ID) bool { return t.lookup(id) != nil }

// IsRenderNode reports whether id is a live render node.
func (t *Tree) IsRenderNode(id node.ID) bool {
	e := t.lookup(id)
	return e != nil && e.spec.Kind == Render
}

// Name returns the node's name from its Spec.
func (t *Tree) Name(id node.ID) string {
	if e := t.lookup(id); e != nil {
		return e.spec.Name
	}
	return ""
}

// Flags returns the node's flags, or nil if id is not live.
func (t *Tree) Flags(id node.ID) *node.Flags {
	if e := t.lookup(id); e != nil {
		return &e.flags
	}
	return nil
}

// Depth returns the node's cached depth, or -1 if id is not live.
func (t *Tree) Depth(id node.ID) int {
	if e := t.lookup(id); e != nil {
		return e.flags.Depth()
	}
	return -1
}

// MarkNeedsLayout flags id for layout and schedules it.
func (t *Tree) MarkNeedsLayout(id node.ID) {
	t.requestLayout(id)
}

// MarkNeedsPaint flags id for paint and schedules it.
func (t *Tree) MarkNeedsPaint(id node.ID) {
	e := t.lookup(id)
	if e == nil {
		return
	}
	e.flags.MarkNeedsPaint()
	if sched := t.scheduler(); sched != nil {
		sched.RequestPaint(id)
	}
}

// NeedsLayout reports whether id needs layout.
func (t *Tree) NeedsLayout(id node.ID) bool {
	e := t.lookup(id)
	return e != nil && e.flags.NeedsLayout()
}

// ClearNeedsLayout clears id's layout flag.
func (t *Tree) ClearNeedsLayout(id node.ID) {
	if e := t.lookup(id); e != nil {
		e.flags.ClearNeedsLayout()
	}
}

// NeedsPaint reports whether id needs paint.
func (t *Tree) NeedsPaint(id node.ID) bool {
	e := t.lookup(id)
	return e != nil && e.flags.NeedsPaint()
}

// ClearNeedsPaint clears id's paint flag.
func (t *Tree) ClearNeedsPaint(id node.ID) {
	if e := t.lookup(id); e != nil {
		e.flags.ClearNeedsPaint()
	}
}

// Size returns the node's last laid-out size.
func (t *Tree) Size(id node.ID) geom.Size {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if e := t.get(id); e != nil {
		return e.size
	}
	return geom.Size{}
}

// SetSize stores the node's laid-out size.
func (t *Tree) SetSize(id node.ID, size geom.Size) {
	t.mu.Lock()
	e := t.get(id)
	changed := e != nil && e.size != size
	if changed {
		e.size = size
	}
	t.mu.Unlock()
	if changed {
		t.hits.Invalidate()
	}
}

// Constraints returns the constraints id's parent last laid it out with.
func (t *Tree) Constraints(id node.ID) (geom.Constraints, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if e := t.get(id); e != nil && e.hasConstraints {
		return e.constraints, true
	}
	return geom.Constraints{}, false
}

// Offset returns the node's position in root coordinates.
func (t *Tree) Offset(id node.ID) geom.Offset {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var off geom.Offset
	for e := t.get(id); e != nil; e = t.get(e.parent) {
		off = off.Add(e.offset)
	}
	return off
}

// Rebuild runs the node's BuildFunc and flags the node for layout. A
// component node cannot be laid out by the pipeline, so its nearest render
// descendants are flagged instead.
func (t *Tree) Rebuild(ctx context.Context, id node.ID) error {
	e := t.lookup(id)
	if e == nil {
		return pipeline.ErrNodeMissing
	}
	if e.spec.Build != nil {
		if err := e.spec.Build(ctx, id); err != nil {
			return err
		}
	}
	e.flags.ClearDirty()
	t.requestLayout(t.renderFrontier(id)...)
	return nil
}

// renderFrontier returns id if it is a render node, otherwise the nearest
// render nodes below it.
func (t *Tree) renderFrontier(id node.ID) []node.ID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []node.ID
	var visit func(node.ID)
	visit = func(n node.ID) {
		e := t.get(n)
		if e == nil {
			return
		}
		if e.spec.Kind == Render {
			out = append(out, n)
			return
		}
		for _, c := range e.children {
			visit(c)
		}
	}
	visit(id)
	return out
}

var (
	_ pipeline.Tree = (*Tree)(nil)
	_ Scheduler     = (*pipeline.Owner)(nil)
)
