package patchbuilder

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/warpgraph/internal/graph"
	"github.com/rohankatakam/warpgraph/internal/objectstore"
)

func newStoreAt(t *testing.T) objectstore.Store {
	t.Helper()
	s, err := objectstore.OpenBoltStore(filepath.Join(t.TempDir(), "store.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPatchBuilder_CommitEmptyPatchRejected(t *testing.T) {
	st := graph.NewWarpState()
	store := newStoreAt(t)
	b := New("g", "w1", graph.NewVersionVector(), 0, func() *graph.WarpState { return st }, PolicyReject, nil, store)
	_, err := b.Commit(context.Background(), store, nil)
	var eerr *EmptyPatchError
	require.ErrorAs(t, err, &eerr)
}

func TestPatchBuilder_CommitProducesApplyablePatch(t *testing.T) {
	store := newStoreAt(t)
	st := graph.NewWarpState()
	b := New("g", "w1", graph.NewVersionVector(), 0, func() *graph.WarpState { return st }, PolicyReject, nil, store)

	require.NoError(t, b.AddNode("a"))
	require.NoError(t, b.AddNode("b"))
	require.NoError(t, b.AddEdge("a", "b", "knows"))

	result, err := b.Commit(context.Background(), store, nil)
	require.NoError(t, err)
	require.NotEmpty(t, result.CommitSHA)
	require.Equal(t, 2, result.Patch.Schema)

	r := graph.NewJoinReducer()
	applied, err := r.ApplyFast(graph.NewWarpState(), result.Patch, result.PatchSHA)
	require.NoError(t, err)
	require.True(t, applied.IsEdgeVisible("a", "b", "knows"))
}

func TestPatchBuilder_CascadeDeleteOrdering(t *testing.T) {
	store := newStoreAt(t)
	st := graph.NewWarpState()
	seed := New("g", "w1", graph.NewVersionVector(), 0, func() *graph.WarpState { return st }, PolicyReject, nil, store)
	require.NoError(t, seed.AddNode("a"))
	require.NoError(t, seed.AddNode("b"))
	require.NoError(t, seed.AddNode("c"))
	require.NoError(t, seed.AddEdge("a", "b", "knows"))
	require.NoError(t, seed.AddEdge("a", "c", "owns"))
	result, err := seed.Commit(context.Background(), store, nil)
	require.NoError(t, err)

	r := graph.NewJoinReducer()
	st, err = r.ApplyFast(st, result.Patch, result.PatchSHA)
	require.NoError(t, err)

	del := New("g", "w1", result.Patch.Context, result.Patch.Lamport, func() *graph.WarpState { return st }, PolicyCascade, nil, store)
	require.NoError(t, del.RemoveNode("a"))
	require.Len(t, del.ops, 3)
	require.Equal(t, graph.OpEdgeRemove, del.ops[0].Kind)
	require.Equal(t, graph.OpEdgeRemove, del.ops[1].Kind)
	require.Equal(t, graph.OpNodeRemove, del.ops[2].Kind)
}

func TestPatchBuilder_RejectPolicyRefusesDataLoss(t *testing.T) {
	store := newStoreAt(t)
	st := graph.NewWarpState()
	seed := New("g", "w1", graph.NewVersionVector(), 0, func() *graph.WarpState { return st }, PolicyReject, nil, store)
	require.NoError(t, seed.AddNode("a"))
	require.NoError(t, seed.AddNode("b"))
	require.NoError(t, seed.AddEdge("a", "b", "knows"))
	result, err := seed.Commit(context.Background(), store, nil)
	require.NoError(t, err)

	r := graph.NewJoinReducer()
	st, err = r.ApplyFast(st, result.Patch, result.PatchSHA)
	require.NoError(t, err)

	del := New("g", "w1", result.Patch.Context, result.Patch.Lamport, func() *graph.WarpState { return st }, PolicyReject, nil, store)
	err = del.RemoveNode("a")
	var derr *DeleteWithDataError
	require.ErrorAs(t, err, &derr)
}

func TestPatchBuilder_AttachContentWritesBlobAndTreeEntry(t *testing.T) {
	store := newStoreAt(t)
	st := graph.NewWarpState()
	ctx := context.Background()
	b := New("g", "w1", graph.NewVersionVector(), 0, func() *graph.WarpState { return st }, PolicyReject, nil, store)

	require.NoError(t, b.AddNode("doc1"))
	payload := []byte("hello warpgraph")
	oid, err := b.AttachContent(ctx, "doc1", payload)
	require.NoError(t, err)
	require.NotEmpty(t, oid)

	blob, err := store.ReadBlob(ctx, oid)
	require.NoError(t, err)
	require.Equal(t, payload, blob)

	result, err := b.Commit(ctx, store, nil)
	require.NoError(t, err)

	r := graph.NewJoinReducer()
	applied, err := r.ApplyFast(graph.NewWarpState(), result.Patch, result.PatchSHA)
	require.NoError(t, err)
	got, ok := applied.GetNodeProperty("doc1", graph.ContentPropertyKey)
	require.True(t, ok)
	require.Equal(t, oid, got)

	treeOIDs, err := store.ReadTreeOIDs(ctx, result.CommitSHA)
	require.NoError(t, err)
	found := false
	for _, treeOID := range treeOIDs {
		if treeOID == oid {
			found = true
		}
	}
	require.True(t, found, "content blob OID must be reachable from the commit tree")
}

func TestPatchBuilder_AttachContentRequiresStore(t *testing.T) {
	st := graph.NewWarpState()
	b := New("g", "w1", graph.NewVersionVector(), 0, func() *graph.WarpState { return st }, PolicyReject, nil, nil)
	require.NoError(t, b.AddNode("doc1"))
	_, err := b.AttachContent(context.Background(), "doc1", []byte("x"))
	require.Error(t, err)
}

func TestPatchBuilder_WriterRefCASRejectsStaleExpectedSHA(t *testing.T) {
	// Checks, directly against the store, the ErrRefConflict that Commit
	// maps to WriterCASConflictError. Commit reads the writer ref right
	// before its CAS, so reaching that mapping through Commit takes a
	// concurrent writer, which this test does not set up.
	store := newStoreAt(t)
	ctx := context.Background()
	require.NoError(t, store.CASUpdateRef(ctx, "refs/g/writers/w1", "", "sha-a"))
	err := store.CASUpdateRef(ctx, "refs/g/writers/w1", "wrong", "sha-b")
	require.ErrorIs(t, err, objectstore.ErrRefConflict)
}
