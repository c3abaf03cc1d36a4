package view

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/warpgraph/internal/graph"
	"github.com/rohankatakam/warpgraph/internal/objectstore"
)

func newTestStore(t *testing.T) objectstore.Store {
	t.Helper()
	s, err := objectstore.OpenBoltStore(filepath.Join(t.TempDir(), "view.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedState(t *testing.T) *graph.WarpState {
	t.Helper()
	st := graph.NewWarpState()
	r := graph.NewJoinReducer()
	patch := &graph.Patch{
		Writer: "w1", Lamport: 1, Context: graph.NewVersionVector(),
		Ops: []graph.RawOp{
			{Kind: graph.OpNodeAdd, Node: "a", Dot: graph.Dot{WriterID: "w1", Counter: 1}},
			{Kind: graph.OpNodeAdd, Node: "b", Dot: graph.Dot{WriterID: "w1", Counter: 2}},
			{Kind: graph.OpEdgeAdd, From: "a", To: "b", Label: "knows", Dot: graph.Dot{WriterID: "w1", Counter: 3}},
		},
	}
	out, err := r.ApplyFast(st, patch, "sha1")
	require.NoError(t, err)
	return out
}

func TestMaterializedViewService_BuildPersistLoad(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	st := seedState(t)

	svc := New(8)
	idx, err := svc.Build(st)
	require.NoError(t, err)

	treeOID, err := svc.PersistIndexTree(ctx, store, idx)
	require.NoError(t, err)

	commitSHA, err := store.CommitWithTree(ctx, objectstore.CommitSpec{TreeOID: treeOID, Message: "graph=g\nwriter=index\nlamport=1"})
	require.NoError(t, err)

	reader, err := svc.LoadFromOIDs(ctx, store, commitSHA)
	require.NoError(t, err)

	neighbors, err := reader.Neighbors(ctx, "a", "knows", 0)
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, neighbors)
}

func TestMaterializedViewService_VerifyIndex(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	st := seedState(t)

	svc := New(8)
	idx, err := svc.Build(st)
	require.NoError(t, err)
	treeOID, err := svc.PersistIndexTree(ctx, store, idx)
	require.NoError(t, err)
	commitSHA, err := store.CommitWithTree(ctx, objectstore.CommitSpec{TreeOID: treeOID, Message: "graph=g\nwriter=index\nlamport=1"})
	require.NoError(t, err)

	reader, err := svc.LoadFromOIDs(ctx, store, commitSHA)
	require.NoError(t, err)

	result, err := svc.VerifyIndex(ctx, reader, st, 1.0, 42)
	require.NoError(t, err)
	require.Zero(t, result.Failed, result.Errors)
	require.Equal(t, int64(42), result.Seed)
}
