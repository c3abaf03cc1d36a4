package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/warpgraph/internal/graph"
)

type memShardSource struct {
	shards map[string][]byte
}

func (m *memShardSource) ReadShard(ctx context.Context, path string) ([]byte, bool, error) {
	data, ok := m.shards[path]
	return data, ok, nil
}

func newMemSource(t *testing.T, idx *BuiltIndex) *memShardSource {
	t.Helper()
	shards := make(map[string][]byte)
	for key, m := range idx.Meta {
		data, err := encodeCanonical(m)
		require.NoError(t, err)
		shards[metaPath(key)] = data
	}
	for key, a := range idx.Forward {
		data, err := encodeCanonical(a)
		require.NoError(t, err)
		shards[fwdPath(key)] = data
	}
	for key, a := range idx.Reverse {
		data, err := encodeCanonical(a)
		require.NoError(t, err)
		shards[revPath(key)] = data
	}
	for key, p := range idx.Props {
		data, err := encodeCanonical(p)
		require.NoError(t, err)
		shards[propsPath(key)] = data
	}
	labelData, err := encodeCanonical(idx.Labels)
	require.NoError(t, err)
	shards[labelsPath()] = labelData
	return &memShardSource{shards: shards}
}

func TestLogicalIndexReader_NeighborsAndProperties(t *testing.T) {
	st := seedState(t)
	idx, err := NewLogicalBitmapIndexBuilder().Build(st)
	require.NoError(t, err)

	reader, err := NewLogicalIndexReader(newMemSource(t, idx), 8)
	require.NoError(t, err)

	ctx := context.Background()
	exists, err := reader.NodeExists(ctx, "a")
	require.NoError(t, err)
	require.True(t, exists)

	neighbors, err := reader.Neighbors(ctx, "a", "knows", DirectionOut)
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, neighbors)

	neighbors, err = reader.Neighbors(ctx, "a", "", DirectionOut)
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, neighbors)

	reverseNeighbors, err := reader.Neighbors(ctx, "b", "knows", DirectionIn)
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, reverseNeighbors)

	v, ok, err := reader.GetNodeProperty(ctx, "a", "name")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "alice", v)
}

func TestLogicalIndexReader_UnknownNode(t *testing.T) {
	st := graph.NewWarpState()
	idx, err := NewLogicalBitmapIndexBuilder().Build(st)
	require.NoError(t, err)
	reader, err := NewLogicalIndexReader(newMemSource(t, idx), 8)
	require.NoError(t, err)

	exists, err := reader.NodeExists(context.Background(), "ghost")
	require.NoError(t, err)
	require.False(t, exists)
}
