package index

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/warpgraph/internal/graph"
)

func TestIncrementalIndexUpdater_ComputeDirtyShards(t *testing.T) {
	diff := &graph.PatchDiff{
		NodesAdded: []string{"c"},
		EdgesAdded: []graph.EdgeAddedDiff{{From: "a", To: "c", Label: "owns"}},
		PropsChanged: []graph.PropChangedDiff{
			{Node: "a", Key: "name", Value: "alice"},
		},
	}
	st := graph.NewWarpState()
	u := NewIncrementalIndexUpdater()
	dirty := u.ComputeDirtyShards(st, diff)

	cShard := dirty[graph.ShardKey("c")]
	require.NotNil(t, cShard)
	require.True(t, cShard.TouchesMeta)

	aShard := dirty[graph.ShardKey("a")]
	require.NotNil(t, aShard)
	require.True(t, aShard.TouchesFwd)
	require.True(t, aShard.TouchesProps)
}

// TestIncrementalIndexUpdater_ComputeDirtyShards_MarksPeerOfRemovedNode
// proves a node's death marks its surviving neighbor's shard dirty too,
// since ApplyToBuilt purges the dead node's global_id from that neighbor's
// adjacency bitmap via RemoveFromAllBuckets.
func TestIncrementalIndexUpdater_ComputeDirtyShards_MarksPeerOfRemovedNode(t *testing.T) {
	st := graph.NewWarpState()
	r := graph.NewJoinReducer()
	basePatch := &graph.Patch{
		Writer: "w1", Lamport: 1, Context: graph.NewVersionVector(),
		Ops: []graph.RawOp{
			{Kind: graph.OpNodeAdd, Node: "a", Dot: graph.Dot{WriterID: "w1", Counter: 1}},
			{Kind: graph.OpNodeAdd, Node: "b", Dot: graph.Dot{WriterID: "w1", Counter: 2}},
			{Kind: graph.OpEdgeAdd, From: "a", To: "b", Label: "manages", Dot: graph.Dot{WriterID: "w1", Counter: 3}},
		},
	}
	st, err := r.ApplyFast(st, basePatch, "sha-base")
	require.NoError(t, err)

	removePatch := &graph.Patch{
		Writer: "w1", Lamport: 2, Context: graph.NewVersionVector(),
		Ops: []graph.RawOp{
			{Kind: graph.OpNodeRemove, Node: "b", ObservedDots: st.NodeAlive.ObservedDots("b")},
		},
	}
	newSt, diff, err := r.ApplyWithDiff(st.Clone(), removePatch, "sha-remove")
	require.NoError(t, err)

	u := NewIncrementalIndexUpdater()
	dirty := u.ComputeDirtyShards(newSt, diff)

	aShard := dirty[graph.ShardKey("a")]
	require.NotNil(t, aShard, "removing b must dirty a's forward shard since a's adjacency bitmap loses b")
	require.True(t, aShard.TouchesFwd)
}

// TestIncrementalIndexUpdater_EquivalentToFullRebuild is spec §8's
// "Incremental equivalence" testable property: applying a patch's diff
// incrementally to a previously-built index must produce the same
// observable adjacency as a full rebuild from the post-patch state.
func TestIncrementalIndexUpdater_EquivalentToFullRebuild(t *testing.T) {
	st := graph.NewWarpState()
	r := graph.NewJoinReducer()

	basePatch := &graph.Patch{
		Writer: "w1", Lamport: 1, Context: graph.NewVersionVector(),
		Ops: []graph.RawOp{
			{Kind: graph.OpNodeAdd, Node: "a", Dot: graph.Dot{WriterID: "w1", Counter: 1}},
			{Kind: graph.OpNodeAdd, Node: "b", Dot: graph.Dot{WriterID: "w1", Counter: 2}},
		},
	}
	st, err := r.ApplyFast(st, basePatch, "sha-base")
	require.NoError(t, err)

	idx, err := NewLogicalBitmapIndexBuilder().Build(st)
	require.NoError(t, err)

	incrementalPatch := &graph.Patch{
		Writer: "w1", Lamport: 2, Context: graph.NewVersionVector(),
		Ops: []graph.RawOp{
			{Kind: graph.OpNodeAdd, Node: "c", Dot: graph.Dot{WriterID: "w1", Counter: 3}},
			{Kind: graph.OpEdgeAdd, From: "a", To: "c", Label: "owns", Dot: graph.Dot{WriterID: "w1", Counter: 4}},
		},
	}
	newSt, diff, err := r.ApplyWithDiff(st.Clone(), incrementalPatch, "sha-incr")
	require.NoError(t, err)

	u := NewIncrementalIndexUpdater()
	require.NoError(t, u.ApplyToBuilt(idx, newSt, diff))

	fullIdx, err := NewLogicalBitmapIndexBuilder().Build(newSt)
	require.NoError(t, err)

	shardBytes := shardByteAssignment()
	aGlobalIncr, err := idx.nodeGlobalID(shardBytes, "a")
	require.NoError(t, err)
	cGlobalIncr, err := idx.nodeGlobalID(shardBytes, "c")
	require.NoError(t, err)

	aGlobalFull, err := fullIdx.nodeGlobalID(shardBytes, "a")
	require.NoError(t, err)
	cGlobalFull, err := fullIdx.nodeGlobalID(shardBytes, "c")
	require.NoError(t, err)

	require.Equal(t, aGlobalFull, aGlobalIncr)
	require.Equal(t, cGlobalFull, cGlobalIncr)

	incrFwd := idx.Forward[graph.ShardKey("a")]
	fullFwd := fullIdx.Forward[graph.ShardKey("a")]

	incrNeighbors, err := incrFwd.Neighbors(aGlobalIncr, BucketAll)
	require.NoError(t, err)
	fullNeighbors, err := fullFwd.Neighbors(aGlobalFull, BucketAll)
	require.NoError(t, err)
	require.ElementsMatch(t, fullNeighbors, incrNeighbors)
	require.Contains(t, incrNeighbors, cGlobalIncr)
}

// TestIncrementalIndexUpdater_NodeRemovePurgesPeerBitmap is spec §8
// scenario 2: a tombstoned endpoint must disappear from get_edges on its
// surviving neighbor, via the full incremental path (not just a full
// rebuild) - ApplyToBuilt must purge the dead node's global_id out of
// every peer's adjacency bitmap, not just its own owner row.
func TestIncrementalIndexUpdater_NodeRemovePurgesPeerBitmap(t *testing.T) {
	st := graph.NewWarpState()
	r := graph.NewJoinReducer()
	basePatch := &graph.Patch{
		Writer: "w1", Lamport: 1, Context: graph.NewVersionVector(),
		Ops: []graph.RawOp{
			{Kind: graph.OpNodeAdd, Node: "a", Dot: graph.Dot{WriterID: "w1", Counter: 1}},
			{Kind: graph.OpNodeAdd, Node: "b", Dot: graph.Dot{WriterID: "w1", Counter: 2}},
			{Kind: graph.OpEdgeAdd, From: "a", To: "b", Label: "manages", Dot: graph.Dot{WriterID: "w1", Counter: 3}},
		},
	}
	st, err := r.ApplyFast(st, basePatch, "sha-base")
	require.NoError(t, err)

	idx, err := NewLogicalBitmapIndexBuilder().Build(st)
	require.NoError(t, err)

	shardBytes := shardByteAssignment()
	aGlobal, err := idx.nodeGlobalID(shardBytes, "a")
	require.NoError(t, err)
	bGlobal, err := idx.nodeGlobalID(shardBytes, "b")
	require.NoError(t, err)

	before, err := idx.Forward[graph.ShardKey("a")].Neighbors(aGlobal, BucketAll)
	require.NoError(t, err)
	require.Contains(t, before, bGlobal)

	removePatch := &graph.Patch{
		Writer: "w1", Lamport: 2, Context: graph.NewVersionVector(),
		Ops: []graph.RawOp{
			{Kind: graph.OpNodeRemove, Node: "b", ObservedDots: st.NodeAlive.ObservedDots("b")},
		},
	}
	newSt, diff, err := r.ApplyWithDiff(st.Clone(), removePatch, "sha-remove")
	require.NoError(t, err)

	u := NewIncrementalIndexUpdater()
	require.NoError(t, u.ApplyToBuilt(idx, newSt, diff))

	after, err := idx.Forward[graph.ShardKey("a")].Neighbors(aGlobal, BucketAll)
	require.NoError(t, err)
	require.NotContains(t, after, bGlobal, "a's adjacency bitmap must no longer carry b's global_id once b is tombstoned")
}
