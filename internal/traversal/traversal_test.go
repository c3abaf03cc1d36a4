package traversal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/warpgraph/internal/graph"
)

func lineState(t *testing.T) *graph.WarpState {
	t.Helper()
	st := graph.NewWarpState()
	r := graph.NewJoinReducer()
	patch := &graph.Patch{
		Writer: "w1", Lamport: 1, Context: graph.NewVersionVector(),
		Ops: []graph.RawOp{
			{Kind: graph.OpNodeAdd, Node: "a", Dot: graph.Dot{WriterID: "w1", Counter: 1}},
			{Kind: graph.OpNodeAdd, Node: "b", Dot: graph.Dot{WriterID: "w1", Counter: 2}},
			{Kind: graph.OpNodeAdd, Node: "c", Dot: graph.Dot{WriterID: "w1", Counter: 3}},
			{Kind: graph.OpEdgeAdd, From: "a", To: "b", Label: "knows", Dot: graph.Dot{WriterID: "w1", Counter: 4}},
			{Kind: graph.OpEdgeAdd, From: "b", To: "c", Label: "knows", Dot: graph.Dot{WriterID: "w1", Counter: 5}},
		},
	}
	out, err := r.ApplyFast(st, patch, "sha1")
	require.NoError(t, err)
	return out
}

func TestBFS_StateProviderTwoHops(t *testing.T) {
	st := lineState(t)
	provider := NewStateNeighborProvider(st)
	depths, err := BFS(context.Background(), provider, "a", "knows", 2)
	require.NoError(t, err)
	require.Equal(t, map[string]int{"b": 1, "c": 2}, depths)
}

func TestBFS_RespectsMaxDepth(t *testing.T) {
	st := lineState(t)
	provider := NewStateNeighborProvider(st)
	depths, err := BFS(context.Background(), provider, "a", "knows", 1)
	require.NoError(t, err)
	require.Equal(t, map[string]int{"b": 1}, depths)
}
