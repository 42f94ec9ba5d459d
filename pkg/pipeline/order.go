package pipeline

import (
	"context"
	"log/slog"
	"sort"

	"github.com/vango-dev/framepipe/pkg/dirty"
	"github.com/vango-dev/framepipe/pkg/node"
)

// byDepth pairs a node with the depth it was sorted by.
type byDepth struct {
	id    node.ID
	depth int
}

// order filters drained ids down to live render nodes and sorts them by
// ascending depth. Ties keep the drain order, which is ascending id.
func order(ctx context.Context, logger *slog.Logger, tree nodeKinds, ids []node.ID, st *passStats) []byDepth {
	out := make([]byDepth, 0, len(ids))
	for _, id := range ids {
		if !tree.Contains(id) {
			st.missing.Add(1)
			logger.DebugContext(ctx, "skipping missing node", "node", id)
			continue
		}
		if !tree.IsRenderNode(id) {
			st.wrongKind.Add(1)
			logger.DebugContext(ctx, "skipping non-render node", "node", id)
			continue
		}
		out = append(out, byDepth{id: id, depth: tree.Depth(id)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].depth < out[j].depth })
	return out
}

// levels splits a depth-sorted slice into runs of equal depth.
func levels(sorted []byDepth) [][]byDepth {
	var out [][]byDepth
	start := 0
	for i := 1; i <= len(sorted); i++ {
		if i == len(sorted) || sorted[i].depth != sorted[start].depth {
			out = append(out, sorted[start:i])
			start = i
		}
	}
	return out
}

// requeue puts ids not reached by an aborted pass back into src.
func requeue(src dirty.Source, rest []byDepth, st *passStats) {
	for _, n := range rest {
		src.Mark(n.id)
	}
	st.requeued.Add(int64(len(rest)))
}
