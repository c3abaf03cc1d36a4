package graph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeRoundTrip(t *testing.T) {
	tests := []RawOp{
		{Kind: OpNodeAdd, Node: "a", Dot: Dot{WriterID: "w1", Counter: 1}},
		{Kind: OpPropSet, Node: "a", Key: "color", Value: "blue"},
		{Kind: OpPropSet, Node: EncodeEdgePropNodeField("a", "b", "knows"), Key: "since", Value: 2020},
		{Kind: OpEdgeAdd, From: "a", To: "b", Label: "knows", Dot: Dot{WriterID: "w1", Counter: 2}},
	}
	for _, op := range tests {
		canon, err := NormalizeRawOp(op)
		require.NoError(t, err)
		back := LowerCanonicalOp(canon)
		require.Equal(t, op, back)
	}
}

func TestNormalize_SplitsEdgePropSetBeforeReducer(t *testing.T) {
	// A raw PropSet whose Node carries the \x01 prefix is always split into
	// an EdgePropSet by the normalizer; a canonical NodePropSet that still
	// carries the prefix indicates missed normalization and the reducer
	// rejects it with a PatchError.
	op := RawOp{Kind: OpPropSet, Node: EncodeEdgePropNodeField("a", "b", "knows"), Key: "k", Value: 1}
	canon, err := NormalizeRawOp(op)
	require.NoError(t, err)
	require.Equal(t, OpEdgePropSet, canon.Kind)
}
