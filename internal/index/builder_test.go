package index

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/warpgraph/internal/graph"
)

func seedState(t *testing.T) *graph.WarpState {
	t.Helper()
	st := graph.NewWarpState()
	r := graph.NewJoinReducer()
	patch := &graph.Patch{
		Schema:  2,
		Writer:  "w1",
		Lamport: 1,
		Context: graph.NewVersionVector(),
		Ops: []graph.RawOp{
			{Kind: graph.OpNodeAdd, Node: "a", Dot: graph.Dot{WriterID: "w1", Counter: 1}},
			{Kind: graph.OpNodeAdd, Node: "b", Dot: graph.Dot{WriterID: "w1", Counter: 2}},
			{Kind: graph.OpEdgeAdd, From: "a", To: "b", Label: "knows", Dot: graph.Dot{WriterID: "w1", Counter: 3}},
			{Kind: graph.OpPropSet, Node: "a", Key: "name", Value: "alice"},
		},
	}
	out, err := r.ApplyFast(st, patch, "sha1")
	require.NoError(t, err)
	return out
}

func TestLogicalBitmapIndexBuilder_Build(t *testing.T) {
	st := seedState(t)
	builder := NewLogicalBitmapIndexBuilder()
	idx, err := builder.Build(st)
	require.NoError(t, err)

	require.Equal(t, 2, idx.Receipt.NodeCount)
	require.Equal(t, 1, idx.Receipt.EdgeCount)

	shardA := graph.ShardKey("a")
	metaA := idx.Meta[shardA]
	require.NotNil(t, metaA)
	localA, ok := metaA.NodeToGlobal["a"]
	require.True(t, ok)
	alive, err := metaA.IsAlive(localA)
	require.NoError(t, err)
	require.True(t, alive)

	propsA := idx.Props[shardA]
	require.NotNil(t, propsA)
	v, ok := propsA.Get("a", "name")
	require.True(t, ok)
	require.Equal(t, "alice", v)
}

func TestLogicalBitmapIndexBuilder_AdjacencyRoundTrip(t *testing.T) {
	st := seedState(t)
	idx, err := NewLogicalBitmapIndexBuilder().Build(st)
	require.NoError(t, err)

	shardBytes := shardByteAssignment()
	aGlobal, err := idx.nodeGlobalID(shardBytes, "a")
	require.NoError(t, err)
	bGlobal, err := idx.nodeGlobalID(shardBytes, "b")
	require.NoError(t, err)

	fwd := idx.Forward[graph.ShardKey("a")]
	require.NotNil(t, fwd)
	neighbors, err := fwd.Neighbors(aGlobal, BucketAll)
	require.NoError(t, err)
	require.Contains(t, neighbors, bGlobal)
}

func TestPropertyIndexBuilder_BuildOnly(t *testing.T) {
	st := seedState(t)
	props := NewPropertyIndexBuilder().Build(st)
	shard, ok := props[graph.ShardKey("a")]
	require.True(t, ok)
	v, ok := shard.Get("a", "name")
	require.True(t, ok)
	require.Equal(t, "alice", v)
}
