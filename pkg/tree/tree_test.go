package tree

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/vango-dev/framepipe/pkg/geom"
	"github.com/vango-dev/framepipe/pkg/node"
	"github.com/vango-dev/framepipe/pkg/pipeline"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// fixed lays out to a fixed size.
func fixed(w, h float64) LayoutFunc {
	return func(lc *LayoutContext, c geom.Constraints) (geom.Size, error) {
		return geom.Size{Width: w, Height: h}, nil
	}
}

// row lays children out left to right.
func row(lc *LayoutContext, c geom.Constraints) (geom.Size, error) {
	x, h := 0.0, 0.0
	for _, child := range lc.Children() {
		s, err := lc.LayoutChild(child, geom.Loose(c.Biggest()))
		if err != nil {
			return geom.Size{}, err
		}
		lc.PositionChild(child, geom.Offset{X: x})
		x += s.Width
		h = max(h, s.Height)
	}
	return geom.Size{Width: x, Height: h}, nil
}

func label(id node.ID, bounds geom.Rect) (any, error) {
	return id.String(), nil
}

func mustInsert(t *testing.T, tr *Tree, parent node.ID, spec Spec) node.ID {
	t.Helper()
	id, err := tr.Insert(parent, spec)
	if err != nil {
		t.Fatalf("Insert(%d) error = %v", parent, err)
	}
	return id
}

func TestInsertDepthAndRoot(t *testing.T) {
	tr := New(WithLogger(quietLogger))
	root := mustInsert(t, tr, node.None, Spec{Name: "root"})
	a := mustInsert(t, tr, root, Spec{Name: "a"})
	b := mustInsert(t, tr, a, Spec{Name: "b"})

	if tr.Root() != root || root != 1 {
		t.Errorf("Root() = %d, want 1", tr.Root())
	}
	if tr.Depth(b) != 2 {
		t.Errorf("Depth(b) = %d, want 2", tr.Depth(b))
	}
	if tr.Len() != 3 {
		t.Errorf("Len() = %d, want 3", tr.Len())
	}
	if _, err := tr.Insert(node.None, Spec{}); !errors.Is(err, ErrRootExists) {
		t.Errorf("second root error = %v, want ErrRootExists", err)
	}
	if _, err := tr.Insert(99, Spec{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing parent error = %v, want ErrNotFound", err)
	}
	if lc := tr.Flags(a).Lifecycle(); lc != node.LifecycleActive {
		t.Errorf("inserted node lifecycle = %v, want active", lc)
	}
}

func TestRemoveSubtree(t *testing.T) {
	tr := New(WithLogger(quietLogger))
	root := mustInsert(t, tr, node.None, Spec{})
	a := mustInsert(t, tr, root, Spec{})
	b := mustInsert(t, tr, a, Spec{})
	flags := tr.Flags(b)

	if err := tr.Remove(a); err != nil {
		t.Fatal(err)
	}
	if tr.Contains(a) || tr.Contains(b) {
		t.Error("removed nodes still present")
	}
	if !flags.IsDefunct() {
		t.Error("removed node is not defunct")
	}
	if len(tr.Children(root)) != 0 {
		t.Errorf("Children(root) = %v, want none", tr.Children(root))
	}
	if tr.Len() != 1 {
		t.Errorf("Len() = %d, want 1", tr.Len())
	}

	c := mustInsert(t, tr, root, Spec{})
	if c == a || c == b {
		t.Errorf("removed id %d reused", c)
	}
}

func TestReparent(t *testing.T) {
	tr := New(WithLogger(quietLogger))
	root := mustInsert(t, tr, node.None, Spec{})
	a := mustInsert(t, tr, root, Spec{})
	b := mustInsert(t, tr, root, Spec{})
	c := mustInsert(t, tr, b, Spec{})

	if err := tr.Reparent(b, a); err != nil {
		t.Fatal(err)
	}
	if tr.Depth(b) != 2 || tr.Depth(c) != 3 {
		t.Errorf("depths = %d, %d, want 2, 3", tr.Depth(b), tr.Depth(c))
	}
	if p, _ := tr.Parent(b); p != a {
		t.Errorf("Parent(b) = %d, want %d", p, a)
	}
	if err := tr.Reparent(a, c); !errors.Is(err, ErrCycle) {
		t.Errorf("Reparent into own subtree error = %v, want ErrCycle", err)
	}
}

func buildRow(t *testing.T, tr *Tree) (root, left, right node.ID) {
	root = mustInsert(t, tr, node.None, Spec{Layout: row, Paint: label})
	left = mustInsert(t, tr, root, Spec{Layout: fixed(50, 20), Paint: label})
	right = mustInsert(t, tr, root, Spec{Layout: fixed(30, 40), Paint: label})
	return root, left, right
}

func TestOwnerFrameOverTree(t *testing.T) {
	owner := pipeline.NewOwner(pipeline.WithLogger(quietLogger))
	tr := New(WithScheduler(owner), WithLogger(quietLogger))
	root, left, right := buildRow(t, tr)

	frame, err := owner.BuildFrame(context.Background(), tr, geom.Loose(geom.Size{Width: 800, Height: 600}))
	if err != nil {
		t.Fatalf("BuildFrame() error = %v", err)
	}
	// The root lays out both children, so they are skipped afterwards.
	if frame.LaidOut != 1 {
		t.Errorf("LaidOut = %d, want 1", frame.LaidOut)
	}
	if got := tr.Size(root); got != (geom.Size{Width: 80, Height: 40}) {
		t.Errorf("Size(root) = %v, want 80x40", got)
	}
	if got := tr.Offset(right); got != (geom.Offset{X: 50}) {
		t.Errorf("Offset(right) = %v, want (50, 0)", got)
	}
	if frame.Painted != 1 {
		t.Fatalf("Painted = %d, want 1 layer for the root subtree", frame.Painted)
	}
	items, ok := frame.Layers[0].Payload.([]Item)
	if !ok || len(items) != 3 {
		t.Fatalf("payload = %#v, want 3 items", frame.Layers[0].Payload)
	}
	if items[1].Node != left || items[2].Bounds.Min.X != 50 {
		t.Errorf("items = %+v", items)
	}
	for _, id := range []node.ID{root, left, right} {
		if tr.NeedsLayout(id) || tr.NeedsPaint(id) {
			t.Errorf("node %d flags = %v after frame", id, tr.Flags(id).Load())
		}
	}

	// A rebuild of one child only relays out that child.
	owner.Handle(left).ScheduleRebuild()
	frame, err = owner.BuildFrame(context.Background(), tr, geom.Loose(geom.Size{Width: 800, Height: 600}))
	if err != nil {
		t.Fatal(err)
	}
	if frame.Rebuilt != 1 || frame.LaidOut != 1 || frame.Painted != 1 || frame.Layers[0].Node != left {
		t.Errorf("second frame = %+v", frame)
	}
}

func TestRebuildComponentMarksRenderChildren(t *testing.T) {
	tr := New(WithLogger(quietLogger))
	root := mustInsert(t, tr, node.None, Spec{})
	comp := mustInsert(t, tr, root, Spec{Kind: Component})
	leaf := mustInsert(t, tr, comp, Spec{})
	for _, id := range []node.ID{root, comp, leaf} {
		tr.ClearNeedsLayout(id)
	}

	built := false
	tr.nodes[comp].spec.Build = func(ctx context.Context, id node.ID) error {
		built = true
		return nil
	}
	if err := tr.Rebuild(context.Background(), comp); err != nil {
		t.Fatal(err)
	}
	if !built {
		t.Error("BuildFunc not called")
	}
	if tr.NeedsLayout(comp) || !tr.NeedsLayout(leaf) {
		t.Errorf("needs layout comp=%v leaf=%v, want false, true", tr.NeedsLayout(comp), tr.NeedsLayout(leaf))
	}
	if tr.IsRenderNode(comp) {
		t.Error("component reported as render node")
	}
	if err := tr.Rebuild(context.Background(), 99); !errors.Is(err, pipeline.ErrNodeMissing) {
		t.Errorf("Rebuild(missing) error = %v", err)
	}
}

func TestHitTest(t *testing.T) {
	owner := pipeline.NewOwner(pipeline.WithLogger(quietLogger))
	tr := New(WithScheduler(owner), WithLogger(quietLogger))
	root, left, right := buildRow(t, tr)
	if _, err := owner.BuildFrame(context.Background(), tr, geom.Loose(geom.Size{Width: 800, Height: 600})); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		pos  geom.Offset
		want []node.ID
	}{
		{geom.Offset{X: 10, Y: 10}, []node.ID{left, root}},
		{geom.Offset{X: 60, Y: 30}, []node.ID{right, root}},
		{geom.Offset{X: 10, Y: 30}, []node.ID{root}},
		{geom.Offset{X: 500, Y: 500}, nil},
	}
	for _, tt := range tests {
		got := tr.HitTest(tt.pos)
		if len(got) != len(tt.want) {
			t.Errorf("HitTest(%v) = %v, want %v", tt.pos, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("HitTest(%v) = %v, want %v", tt.pos, got, tt.want)
				break
			}
		}
	}

	before := tr.HitTestStats()
	tr.HitTest(geom.Offset{X: 10.01, Y: 10.02})
	after := tr.HitTestStats()
	if after.Hits != before.Hits+1 {
		t.Errorf("jittered hit test missed the cache: %+v -> %+v", before, after)
	}

	// Structural change invalidates.
	if err := tr.Remove(left); err != nil {
		t.Fatal(err)
	}
	if got := tr.HitTest(geom.Offset{X: 10, Y: 10}); len(got) != 1 || got[0] != root {
		t.Errorf("HitTest after removal = %v, want [root]", got)
	}
}

func TestLayoutErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	owner := pipeline.NewOwner(pipeline.WithLogger(quietLogger))
	tr := New(WithScheduler(owner), WithLogger(quietLogger))
	root := mustInsert(t, tr, node.None, Spec{Layout: row})
	mustInsert(t, tr, root, Spec{Layout: func(*LayoutContext, geom.Constraints) (geom.Size, error) {
		return geom.Size{}, boom
	}})

	_, err := owner.BuildFrame(context.Background(), tr, geom.Loose(geom.Size{Width: 10, Height: 10}))
	if !errors.Is(err, pipeline.ErrLayoutFailed) || !errors.Is(err, boom) {
		t.Errorf("error = %v, want ErrLayoutFailed wrapping boom", err)
	}
}

type countingScheduler struct {
	layouts, paints atomic.Int64
}

func (s *countingScheduler) RequestLayout(node.ID) { s.layouts.Add(1) }
func (s *countingScheduler) RequestPaint(node.ID)  { s.paints.Add(1) }

func TestSetSchedulerConcurrentWithRequests(t *testing.T) {
	tr := New(WithLogger(quietLogger))
	root := mustInsert(t, tr, node.None, Spec{Name: "root", Layout: fixed(10, 10)})
	s := &countingScheduler{}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for range 100 {
			tr.SetScheduler(s)
		}
	}()
	go func() {
		defer wg.Done()
		for range 100 {
			tr.MarkNeedsPaint(root)
			tr.MarkNeedsLayout(root)
		}
	}()
	wg.Wait()

	tr.MarkNeedsPaint(root)
	tr.MarkNeedsLayout(root)
	if s.paints.Load() == 0 || s.layouts.Load() == 0 {
		t.Errorf("requests = %d paint, %d layout, want both > 0", s.paints.Load(), s.layouts.Load())
	}
}
