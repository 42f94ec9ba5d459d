package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/vango-dev/framepipe/pkg/dirty"
	"github.com/vango-dev/framepipe/pkg/geom"
	"github.com/vango-dev/framepipe/pkg/node"
)

var quiet = WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

var viewport = geom.Loose(geom.Size{Width: 800, Height: 600})

func indexOf(ids []node.ID, id node.ID) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func TestComputeLayoutParentsFirst(t *testing.T) {
	const a, b, c node.ID = 1, 2, 3
	tree := newFakeTree()
	tree.add(a, node.None)
	tree.add(b, a)
	tree.add(c, a)

	p := NewLayoutPipeline(quiet)
	p.MarkDirty(c)
	p.MarkDirty(a)
	p.MarkDirty(b)

	n, err := p.ComputeLayout(context.Background(), tree, viewport)
	if err != nil {
		t.Fatalf("ComputeLayout() error = %v", err)
	}
	if n != 3 {
		t.Errorf("ComputeLayout() = %d, want 3", n)
	}
	if tree.laidOut[0] != a {
		t.Errorf("laid out %v, want %d first", tree.laidOut, a)
	}
	for _, id := range []node.ID{a, b, c} {
		if tree.NeedsLayout(id) {
			t.Errorf("node %d still needs layout", id)
		}
		if !tree.NeedsPaint(id) {
			t.Errorf("node %d lost NeedsPaint after layout", id)
		}
	}
}

func TestComputeLayoutDepthMonotonic(t *testing.T) {
	tree := newFakeTree()
	tree.add(1, node.None)
	for id := node.ID(2); id <= 40; id++ {
		tree.add(id, id/2)
	}
	p := NewLayoutPipeline(quiet)
	for id := node.ID(40); id >= 1; id-- {
		p.MarkDirty(id)
	}

	if _, err := p.ComputeLayout(context.Background(), tree, viewport); err != nil {
		t.Fatal(err)
	}
	last := -1
	for _, id := range tree.laidOut {
		d := tree.Depth(id)
		if d < last {
			t.Fatalf("node %d at depth %d laid out after depth %d", id, d, last)
		}
		last = d
	}
}

func TestComputeLayoutSkipsSatisfiedChildren(t *testing.T) {
	tree := newFakeTree()
	tree.cascade = true
	tree.add(1, node.None)
	tree.add(2, 1)
	tree.add(3, 1)

	p := NewLayoutPipeline(quiet)
	for _, id := range []node.ID{3, 2, 1} {
		p.MarkDirty(id)
	}
	n, err := p.ComputeLayout(context.Background(), tree, viewport)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("ComputeLayout() = %d, want 1 (children satisfied by parent)", n)
	}
	if got := p.Stats().Skipped; got != 2 {
		t.Errorf("Stats().Skipped = %d, want 2", got)
	}
}

func TestComputeLayoutBenignSkips(t *testing.T) {
	tree := newFakeTree()
	tree.add(1, node.None)
	tree.add(2, 1).component = true

	p := NewLayoutPipeline(quiet)
	p.MarkDirty(1)
	p.MarkDirty(2)
	p.MarkDirty(99)

	n, err := p.ComputeLayout(context.Background(), tree, viewport)
	if err != nil {
		t.Fatalf("ComputeLayout() error = %v", err)
	}
	if n != 1 {
		t.Errorf("ComputeLayout() = %d, want 1", n)
	}
	st := p.Stats()
	if st.Missing != 1 || st.WrongKind != 1 {
		t.Errorf("Stats() = %+v, want 1 missing and 1 wrong kind", st)
	}
}

func TestComputeLayoutFailureAborts(t *testing.T) {
	tree := newFakeTree()
	tree.add(1, node.None)
	tree.add(2, 1).layoutErr = errBoom
	tree.add(3, 2)

	p := NewLayoutPipeline(quiet)
	p.MarkDirty(1)
	p.MarkDirty(2)
	p.MarkDirty(3)

	n, err := p.ComputeLayout(context.Background(), tree, viewport)
	if !errors.Is(err, ErrLayoutFailed) {
		t.Fatalf("error = %v, want ErrLayoutFailed", err)
	}
	if !errors.Is(err, errBoom) {
		t.Errorf("error = %v does not wrap the cause", err)
	}
	var perr *Error
	if !errors.As(err, &perr) || perr.Node != 2 {
		t.Errorf("error node = %v, want 2", perr)
	}
	if n != 1 {
		t.Errorf("ComputeLayout() = %d, want 1", n)
	}
	if tree.NeedsLayout(1) {
		t.Error("node processed before the failure lost its layout")
	}
	// The node after the failure is carried over, the failing one is not.
	if !p.set.IsDirty(3) || p.set.IsDirty(2) {
		t.Errorf("requeued = 3:%v 2:%v, want only 3", p.set.IsDirty(3), p.set.IsDirty(2))
	}
}

func TestComputeLayoutCancelled(t *testing.T) {
	tree := newFakeTree()
	tree.add(1, node.None)
	p := NewLayoutPipeline(quiet)
	p.MarkDirty(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.ComputeLayout(ctx, tree, viewport); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if p.DirtyCount() != 1 {
		t.Errorf("DirtyCount() = %d, want 1", p.DirtyCount())
	}
}

func TestComputeLayoutParallel(t *testing.T) {
	tree := newFakeTree()
	tree.add(1, node.None)
	for id := node.ID(2); id <= 64; id++ {
		tree.add(id, id/2)
	}
	p := NewLayoutPipeline(quiet, WithParallelLayout(4))
	if !p.Parallel() {
		t.Fatal("Parallel() = false")
	}
	for id := node.ID(1); id <= 64; id++ {
		p.MarkDirty(id)
	}

	n, err := p.ComputeLayout(context.Background(), tree, viewport)
	if err != nil {
		t.Fatal(err)
	}
	if n != 64 {
		t.Errorf("ComputeLayout() = %d, want 64", n)
	}
	last := -1
	for _, id := range tree.laidOut {
		d := tree.Depth(id)
		if d < last {
			t.Fatalf("parallel layout broke depth order: %d at depth %d after %d", id, d, last)
		}
		last = d
	}
}

func TestComputeLayoutParallelFailure(t *testing.T) {
	tree := newFakeTree()
	tree.add(1, node.None)
	tree.add(2, 1).layoutErr = errBoom
	tree.add(3, 1)
	tree.add(4, 3)

	p := NewLayoutPipeline(quiet, WithParallelLayout(2))
	for id := node.ID(1); id <= 4; id++ {
		p.MarkDirty(id)
	}
	_, err := p.ComputeLayout(context.Background(), tree, viewport)
	if !errors.Is(err, ErrLayoutFailed) {
		t.Fatalf("error = %v, want ErrLayoutFailed", err)
	}
	if !p.set.IsDirty(4) {
		t.Error("deeper node was not requeued")
	}
}

func TestComputeLayoutParallelCancelledMidLevel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree := newFakeTree()
	for id := node.ID(1); id <= 3; id++ {
		tree.add(id, node.None).onLayout = cancel
	}
	p := NewLayoutPipeline(quiet, WithParallelLayout(1))
	for id := node.ID(1); id <= 3; id++ {
		p.MarkDirty(id)
	}

	n, err := p.ComputeLayout(ctx, tree, viewport)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if n != 1 {
		t.Errorf("ComputeLayout() = %d, want 1", n)
	}
	if p.DirtyCount() != 2 {
		t.Errorf("DirtyCount() = %d, want 2", p.DirtyCount())
	}
	if got := p.Stats().Failures; got != 1 {
		t.Errorf("Stats().Failures = %d, want 1", got)
	}
}

func TestLayoutExternalSource(t *testing.T) {
	tree := newFakeTree()
	tree.add(1, node.None)

	shared := dirty.NewSet()
	p := NewLayoutPipeline(quiet, WithSource(shared))
	dirty.NewHandle(1, shared).ScheduleRebuild()

	n, err := p.ComputeLayout(context.Background(), tree, viewport)
	if err != nil || n != 1 {
		t.Errorf("ComputeLayout() = %d, %v, want 1, nil", n, err)
	}
	if shared.Len() != 0 {
		t.Errorf("shared Len() = %d, want 0", shared.Len())
	}
}

func TestLayoutHandle(t *testing.T) {
	p := NewLayoutPipeline(quiet)
	h := p.Handle(5)
	h.ScheduleRebuild()
	h.ScheduleRebuild()
	if p.DirtyCount() != 1 {
		t.Errorf("DirtyCount() = %d, want 1", p.DirtyCount())
	}
}
