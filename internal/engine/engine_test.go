package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/warpgraph/internal/objectstore"
	"github.com/rohankatakam/warpgraph/internal/patchbuilder"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	store, err := objectstore.OpenBoltStore(filepath.Join(t.TempDir(), "store.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(store, "g", 64, patchbuilder.PolicyReject, nil)
}

func TestEngine_CommitThenLoadStateRoundTrips(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	b, _, err := e.NewBuilder(ctx, "w1", []string{"w1"})
	require.NoError(t, err)
	require.NoError(t, b.AddNode("a"))
	require.NoError(t, b.AddNode("b"))
	require.NoError(t, b.AddEdge("a", "b", "knows"))
	_, err = b.Commit(ctx, e.Store, nil)
	require.NoError(t, err)

	state, err := e.LoadState(ctx, []string{"w1"})
	require.NoError(t, err)
	require.True(t, state.IsEdgeVisible("a", "b", "knows"))
}

func TestEngine_LoadStateWalksMultiCommitChain(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	b1, _, err := e.NewBuilder(ctx, "w1", []string{"w1"})
	require.NoError(t, err)
	require.NoError(t, b1.AddNode("a"))
	_, err = b1.Commit(ctx, e.Store, nil)
	require.NoError(t, err)

	b2, _, err := e.NewBuilder(ctx, "w1", []string{"w1"})
	require.NoError(t, err)
	require.NoError(t, b2.AddNode("b"))
	require.NoError(t, b2.AddEdge("a", "b", "knows"))
	_, err = b2.Commit(ctx, e.Store, nil)
	require.NoError(t, err)

	state, err := e.LoadState(ctx, []string{"w1"})
	require.NoError(t, err)
	require.True(t, state.IsNodeVisible("a"))
	require.True(t, state.IsNodeVisible("b"))
	require.True(t, state.IsEdgeVisible("a", "b", "knows"))
}

func TestEngine_SyncThenLoadReaderAnswersNeighbors(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	b, _, err := e.NewBuilder(ctx, "w1", []string{"w1"})
	require.NoError(t, err)
	require.NoError(t, b.AddNode("a"))
	require.NoError(t, b.AddNode("b"))
	require.NoError(t, b.AddEdge("a", "b", "knows"))
	_, err = b.Commit(ctx, e.Store, nil)
	require.NoError(t, err)

	result, err := e.Sync(ctx, []string{"w1"})
	require.NoError(t, err)
	require.Equal(t, 2, result.Receipt.NodeCount)
	require.Equal(t, 1, result.Receipt.EdgeCount)

	reader, err := e.LoadReader(ctx)
	require.NoError(t, err)
	neighbors, err := reader.Neighbors(ctx, "a", "knows", 0)
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, neighbors)
}

func TestEngine_SyncIsReRunnableAfterNewCommits(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	b1, _, err := e.NewBuilder(ctx, "w1", []string{"w1"})
	require.NoError(t, err)
	require.NoError(t, b1.AddNode("a"))
	_, err = b1.Commit(ctx, e.Store, nil)
	require.NoError(t, err)

	_, err = e.Sync(ctx, []string{"w1"})
	require.NoError(t, err)

	b2, _, err := e.NewBuilder(ctx, "w1", []string{"w1"})
	require.NoError(t, err)
	require.NoError(t, b2.AddNode("b"))
	require.NoError(t, b2.AddEdge("a", "b", "knows"))
	_, err = b2.Commit(ctx, e.Store, nil)
	require.NoError(t, err)

	result, err := e.Sync(ctx, []string{"w1"})
	require.NoError(t, err)
	require.Equal(t, 2, result.Receipt.NodeCount)
	require.Equal(t, 1, result.Receipt.EdgeCount)
}
