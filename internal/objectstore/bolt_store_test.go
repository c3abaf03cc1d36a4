package objectstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.bolt")
	s, err := OpenBoltStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBoltStore_BlobRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	oid, err := s.WriteBlob(ctx, []byte("hello"))
	require.NoError(t, err)

	got, err := s.ReadBlob(ctx, oid)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)

	_, err = s.ReadBlob(ctx, "deadbeef")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBoltStore_TreeAndCommit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	oid, err := s.WriteBlob(ctx, []byte("patch-bytes"))
	require.NoError(t, err)

	treeOID, err := s.WriteTree(ctx, []TreeEntry{{OID: oid, Path: "patch.cbor"}})
	require.NoError(t, err)

	commitSHA, err := s.CommitWithTree(ctx, CommitSpec{TreeOID: treeOID, Message: "graph=g\nwriter=w1\nlamport=1\npatch-oid=" + oid + "\nschema=2"})
	require.NoError(t, err)

	oids, err := s.ReadTreeOIDs(ctx, commitSHA)
	require.NoError(t, err)
	require.Equal(t, oid, oids["patch.cbor"])

	msg, err := s.ShowCommitMessage(ctx, commitSHA)
	require.NoError(t, err)
	env := ParseCommitEnvelope(msg)
	require.Equal(t, "g", env["graph"])
	require.Equal(t, "w1", env["writer"])
}

func TestBoltStore_RefCAS(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CASUpdateRef(ctx, "refs/g/writers/w1", "", "sha1"))

	err := s.CASUpdateRef(ctx, "refs/g/writers/w1", "wrong-expected", "sha2")
	require.ErrorIs(t, err, ErrRefConflict)

	require.NoError(t, s.CASUpdateRef(ctx, "refs/g/writers/w1", "sha1", "sha2"))

	oid, ok, err := s.ReadRef(ctx, "refs/g/writers/w1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "sha2", oid)
}
