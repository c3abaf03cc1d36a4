package graph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJoinReducer_TwoWritersOneNode(t *testing.T) {
	r := NewJoinReducer()
	s1 := NewWarpState()
	p1 := &Patch{Writer: "w1", Lamport: 1, Context: NewVersionVector(), Ops: []RawOp{
		{Kind: OpNodeAdd, Node: "a", Dot: Dot{WriterID: "w1", Counter: 1}},
	}}
	s1, err := r.ApplyFast(s1, p1, "sha1")
	require.NoError(t, err)

	s2 := NewWarpState()
	p2 := &Patch{Writer: "w2", Lamport: 1, Context: NewVersionVector(), Ops: []RawOp{
		{Kind: OpNodeAdd, Node: "a", Dot: Dot{WriterID: "w2", Counter: 1}},
	}}
	s2, err = r.ApplyFast(s2, p2, "sha2")
	require.NoError(t, err)

	merged := r.JoinStates(s1, s2)
	require.True(t, merged.IsNodeVisible("a"))

	p3 := &Patch{Writer: "w1", Lamport: 2, Context: NewVersionVector(), Ops: []RawOp{
		{Kind: OpNodeRemove, Node: "a", ObservedDots: []string{Dot{WriterID: "w1", Counter: 1}.String()}},
	}}
	merged, err = r.ApplyFast(merged, p3, "sha3")
	require.NoError(t, err)
	require.True(t, merged.IsNodeVisible("a"), "node must survive via w2's dot")
}

func TestJoinReducer_EdgeEndpointTombstoned(t *testing.T) {
	r := NewJoinReducer()
	s := NewWarpState()
	patch := &Patch{Writer: "w1", Lamport: 1, Context: NewVersionVector(), Ops: []RawOp{
		{Kind: OpNodeAdd, Node: "a", Dot: Dot{WriterID: "w1", Counter: 1}},
		{Kind: OpNodeAdd, Node: "b", Dot: Dot{WriterID: "w1", Counter: 2}},
		{Kind: OpEdgeAdd, From: "a", To: "b", Label: "knows", Dot: Dot{WriterID: "w1", Counter: 3}},
	}}
	s, err := r.ApplyFast(s, patch, "sha1")
	require.NoError(t, err)
	require.True(t, s.IsEdgeVisible("a", "b", "knows"))

	removeA := &Patch{Writer: "w1", Lamport: 2, Context: NewVersionVector(), Ops: []RawOp{
		{Kind: OpNodeRemove, Node: "a", ObservedDots: s.NodeAlive.ObservedDots("a")},
	}}
	s, err = r.ApplyFast(s, removeA, "sha2")
	require.NoError(t, err)
	require.False(t, s.IsEdgeVisible("a", "b", "knows"), "endpoint aliveness gates edge visibility")
}

func TestJoinReducer_LWWTiebreaker(t *testing.T) {
	r := NewJoinReducer()
	s := NewWarpState()
	s.NodeAlive.Add("n", Dot{WriterID: "seed", Counter: 1})

	patch := &Patch{Writer: "A", Lamport: 1, Context: NewVersionVector(), Ops: []RawOp{
		{Kind: OpPropSet, Node: "n", Key: "x", Value: "from-A"},
	}}
	s, err := r.ApplyFast(s, patch, "samesha")
	require.NoError(t, err)

	patch2 := &Patch{Writer: "B", Lamport: 1, Context: NewVersionVector(), Ops: []RawOp{
		{Kind: OpPropSet, Node: "n", Key: "x", Value: "from-B"},
	}}
	s, err = r.ApplyFast(s, patch2, "samesha")
	require.NoError(t, err)

	val, ok := s.GetNodeProperty("n", "x")
	require.True(t, ok)
	require.Equal(t, "from-B", val, "writer B wins the lexicographic tiebreak")
}

func TestJoinReducer_ApplyWithReceipt(t *testing.T) {
	r := NewJoinReducer()
	s := NewWarpState()
	dot := Dot{WriterID: "w1", Counter: 1}
	patch := &Patch{Writer: "w1", Lamport: 1, Context: NewVersionVector(), Ops: []RawOp{
		{Kind: OpNodeAdd, Node: "a", Dot: dot},
	}}
	s, receipt, err := r.ApplyWithReceipt(s, patch, "sha1")
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, receipt.OpOutcomes[0].Outcome)

	// Re-applying the identical dot is redundant.
	_, receipt2, err := r.ApplyWithReceipt(s, patch, "sha1")
	require.NoError(t, err)
	require.Equal(t, OutcomeRedundant, receipt2.OpOutcomes[0].Outcome)
}

func TestJoinReducer_ApplyWithDiff(t *testing.T) {
	r := NewJoinReducer()
	s := NewWarpState()
	patch := &Patch{Writer: "w1", Lamport: 1, Context: NewVersionVector(), Ops: []RawOp{
		{Kind: OpNodeAdd, Node: "a", Dot: Dot{WriterID: "w1", Counter: 1}},
		{Kind: OpNodeAdd, Node: "b", Dot: Dot{WriterID: "w1", Counter: 2}},
		{Kind: OpEdgeAdd, From: "a", To: "b", Label: "knows", Dot: Dot{WriterID: "w1", Counter: 3}},
	}}
	s, diff, err := r.ApplyWithDiff(s, patch, "sha1")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "b"}, diff.NodesAdded)
	require.Len(t, diff.EdgesAdded, 1)
	require.Equal(t, "a", diff.EdgesAdded[0].From)

	// Redundant add produces no diff entry.
	_, diff2, err := r.ApplyWithDiff(s, patch, "sha1")
	require.NoError(t, err)
	require.Empty(t, diff2.NodesAdded)
	require.Empty(t, diff2.EdgesAdded)
}

func TestJoinReducer_UnknownOpIgnored(t *testing.T) {
	r := NewJoinReducer()
	s := NewWarpState()
	patch := &Patch{Writer: "w1", Lamport: 1, Context: NewVersionVector(), Ops: []RawOp{
		{Kind: OpKind(99)},
		{Kind: OpNodeAdd, Node: "a", Dot: Dot{WriterID: "w1", Counter: 1}},
	}}
	s, err := r.ApplyFast(s, patch, "sha1")
	require.NoError(t, err)
	require.True(t, s.IsNodeVisible("a"))
}

func TestJoinReducer_MalformedOpRaisesTypedError(t *testing.T) {
	r := NewJoinReducer()
	s := NewWarpState()
	patch := &Patch{Writer: "w1", Lamport: 1, Context: NewVersionVector(), Ops: []RawOp{
		{Kind: OpNodeAdd, Node: ""},
	}}
	_, err := r.ApplyFast(s, patch, "sha1")
	require.Error(t, err)
	var perr *PatchError
	require.ErrorAs(t, err, &perr)
}

func TestJoinReducer_DeterminismUnderPermutation(t *testing.T) {
	r := NewJoinReducer()

	build := func(order []int) *WarpState {
		ops := []RawOp{
			{Kind: OpNodeAdd, Node: "a", Dot: Dot{WriterID: "w1", Counter: 1}},
			{Kind: OpNodeAdd, Node: "b", Dot: Dot{WriterID: "w1", Counter: 2}},
			{Kind: OpEdgeAdd, From: "a", To: "b", Label: "knows", Dot: Dot{WriterID: "w1", Counter: 3}},
		}
		patches := make([]*Patch, len(ops))
		shas := make([]string, len(ops))
		for i, idx := range order {
			patches[i] = &Patch{Writer: "w1", Lamport: uint64(idx + 1), Context: NewVersionVector(), Ops: []RawOp{ops[idx]}}
			shas[i] = "sha"
		}
		st, err := r.Reduce(patches, shas, nil)
		require.NoError(t, err)
		return st
	}

	s1 := build([]int{0, 1, 2})
	proj1, err := s1.VisibleProjection()
	require.NoError(t, err)

	s2 := build([]int{1, 0, 2})
	proj2, err := s2.VisibleProjection()
	require.NoError(t, err)

	require.Equal(t, proj1, proj2)
}
