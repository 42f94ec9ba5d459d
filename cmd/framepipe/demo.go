package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/vango-dev/framepipe/internal/config"
	"github.com/vango-dev/framepipe/pkg/geom"
	"github.com/vango-dev/framepipe/pkg/node"
	"github.com/vango-dev/framepipe/pkg/pipeline"
	"github.com/vango-dev/framepipe/pkg/sched"
	"github.com/vango-dev/framepipe/pkg/tree"
)

// viewport is the size frames are laid out into.
var viewport = geom.Size{Width: 1280, Height: 720}

// leaf holds a leaf's current size in whole pixels.
type leaf struct {
	id     node.ID
	width  atomic.Int64
	height atomic.Int64
}

func (l *leaf) layout(lc *tree.LayoutContext, c geom.Constraints) (geom.Size, error) {
	return geom.Size{Width: float64(l.width.Load()), Height: float64(l.height.Load())}, nil
}

// demo is a synthetic tree: render containers alternating row and column
// layout, component nodes under the root whose rebuild resizes their
// leaves, and fixed-size leaves.
type demo struct {
	tree       *tree.Tree
	owner      *pipeline.Owner
	cfg        config.DemoConfig
	leaves     []*leaf
	render     []node.ID
	components []node.ID
	// resized counts leaf size changes made by producers and rebuilds
	resized atomic.Int64
}

func newDemo(t *tree.Tree, owner *pipeline.Owner, cfg config.DemoConfig) (*demo, error) {
	d := &demo{tree: t, owner: owner, cfg: cfg}
	rng := rand.New(rand.NewPCG(uint64(cfg.Seed), 0))

	root, err := t.Insert(node.None, tree.Spec{Name: "root", Layout: column, Paint: label})
	if err != nil {
		return nil, err
	}
	d.render = append(d.render, root)

	type pending struct {
		id    node.ID
		depth int
	}
	queue := []pending{{root, 0}}
	created := 1
	for len(queue) > 0 && created < cfg.Nodes {
		p := queue[0]
		queue = queue[1:]
		for i := 0; i < cfg.Fanout && created < cfg.Nodes; i++ {
			remaining := cfg.Nodes - created
			spec := tree.Spec{Name: fmt.Sprintf("n%d", created), Paint: label}
			isLeaf := remaining <= len(queue)+1 || (p.depth > 0 && rng.IntN(3) == 0)

			var l *leaf
			switch {
			case p.depth == 0 && !isLeaf:
				spec.Kind = tree.Component
				spec.Paint = nil
				spec.Build = func(ctx context.Context, id node.ID) error {
					d.rebuildComponent(id)
					return nil
				}
			case isLeaf:
				l = &leaf{}
				l.width.Store(int64(8 + rng.IntN(64)))
				l.height.Store(int64(8 + rng.IntN(32)))
				spec.Layout = l.layout
			case p.depth%2 == 0:
				spec.Layout = column
			default:
				spec.Layout = row
			}

			id, err := t.Insert(p.id, spec)
			if err != nil {
				return nil, err
			}
			created++

			switch {
			case spec.Kind == tree.Component:
				d.components = append(d.components, id)
				queue = append(queue, pending{id, p.depth + 1})
			case l != nil:
				l.id = id
				d.leaves = append(d.leaves, l)
				d.render = append(d.render, id)
			default:
				d.render = append(d.render, id)
				queue = append(queue, pending{id, p.depth + 1})
			}
		}
	}

	return d, nil
}

// rebuildComponent gives every leaf under id a new width derived from the
// current one.
func (d *demo) rebuildComponent(id node.ID) {
	for _, l := range d.leaves {
		if d.isDescendant(l.id, id) {
			l.width.Store(8 + (l.width.Load()*7+13)%64)
			d.resized.Add(1)
		}
	}
}

func (d *demo) isDescendant(n, ancestor node.ID) bool {
	for {
		p, ok := d.tree.Parent(n)
		if !ok {
			return false
		}
		if p == ancestor {
			return true
		}
		n = p
	}
}

// produce dirties the tree at cfg.Rate actions per second until ctx is
// done. Each producer uses its own random source.
func (d *demo) produce(ctx context.Context, n int) error {
	if d.cfg.Rate <= 0 {
		return nil
	}
	rng := rand.New(rand.NewPCG(uint64(d.cfg.Seed), uint64(n+1)))
	ticker := time.NewTicker(time.Second / time.Duration(d.cfg.Rate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.step(rng)
		}
	}
}

// step performs one random producer action.
func (d *demo) step(rng *rand.Rand) {
	switch r := rng.IntN(10); {
	case r < 5 && len(d.leaves) > 0:
		l := d.leaves[rng.IntN(len(d.leaves))]
		l.width.Store(int64(8 + rng.IntN(64)))
		d.resized.Add(1)
		d.tree.MarkNeedsLayout(l.id)
	case r < 7:
		d.tree.MarkNeedsPaint(d.render[rng.IntN(len(d.render))])
	case r < 8 && len(d.components) > 0:
		d.owner.Handle(d.components[rng.IntN(len(d.components))]).ScheduleRebuild()
	case r < 9:
		pos := geom.Offset{X: rng.Float64() * viewport.Width, Y: rng.Float64() * viewport.Height}
		d.owner.Tasks().Add(sched.UserInput, func() {
			d.tree.HitTest(pos)
		})
	default:
		p := sched.Animation
		if rng.IntN(2) == 0 {
			p = sched.Idle
		}
		d.owner.Tasks().Add(p, func() {
			d.tree.MarkNeedsPaint(d.tree.Root())
		})
	}
}

// column lays children out top to bottom.
func column(lc *tree.LayoutContext, c geom.Constraints) (geom.Size, error) {
	y, w := 0.0, 0.0
	for _, child := range lc.Children() {
		s, err := lc.LayoutChild(child, geom.Loose(c.Biggest()))
		if err != nil {
			return geom.Size{}, err
		}
		lc.PositionChild(child, geom.Offset{Y: y})
		y += s.Height
		w = max(w, s.Width)
	}
	return geom.Size{Width: w, Height: y}, nil
}

// row lays children out left to right.
func row(lc *tree.LayoutContext, c geom.Constraints) (geom.Size, error) {
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
	return id.String() + "@" + bounds.String(), nil
}
