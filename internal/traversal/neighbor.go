// Package traversal provides the one polymorphic seam spec §9 calls out:
// a NeighborProvider abstraction so a single BFS can walk either the raw
// CRDT state directly or the bitmap index, and a reference BFS exercising
// both. It is deliberately not a general traversal library.
package traversal

import (
	"context"

	"github.com/rohankatakam/warpgraph/internal/graph"
	"github.com/rohankatakam/warpgraph/internal/index"
)

// NeighborProvider returns a node's alive out-neighbors along edges with
// the given label (empty label means any label).
type NeighborProvider interface {
	Neighbors(ctx context.Context, node, label string) ([]string, error)
}

// StateNeighborProvider walks a WarpState directly, with no materialized
// index: correct but O(|edges|) per call since WarpState exposes no
// adjacency structure of its own.
type StateNeighborProvider struct {
	state *graph.WarpState
}

func NewStateNeighborProvider(state *graph.WarpState) *StateNeighborProvider {
	return &StateNeighborProvider{state: state}
}

func (p *StateNeighborProvider) Neighbors(ctx context.Context, node, label string) ([]string, error) {
	var out []string
	for _, ek := range p.state.EdgeAlive.AliveElements() {
		from, to, l, err := graph.DecodeEdgeKey(ek)
		if err != nil {
			continue
		}
		if from != node {
			continue
		}
		if label != "" && l != label {
			continue
		}
		if p.state.IsEdgeVisible(from, to, l) {
			out = append(out, to)
		}
	}
	return out, nil
}

// IndexNeighborProvider walks the persisted bitmap index, giving O(1)
// bitmap lookups per hop instead of a full edge scan.
type IndexNeighborProvider struct {
	reader *index.LogicalIndexReader
}

func NewIndexNeighborProvider(reader *index.LogicalIndexReader) *IndexNeighborProvider {
	return &IndexNeighborProvider{reader: reader}
}

func (p *IndexNeighborProvider) Neighbors(ctx context.Context, node, label string) ([]string, error) {
	return p.reader.Neighbors(ctx, node, label, index.DirectionOut)
}
