// Package objectstore defines the content-addressed blob/tree/ref store
// contract the core engine is built against (spec §6). The core never
// depends on a concrete backend directly — only on this interface — so
// any equivalent object store satisfies it.
package objectstore

import "context"

// TreeEntry is one row of a tree object. Mode and Type are always
// "100644" and "blob" respectively in this system; no subtrees are used.
type TreeEntry struct {
	Mode string
	Type string
	OID  string
	Path string
}

// CommitSpec describes a commit to create via CommitWithTree.
type CommitSpec struct {
	TreeOID string
	Parents []string
	Message string
}

// Store is the plumbing interface the core uses for all external I/O.
// Implementations MUST provide update-ref CAS semantics, or be externally
// synchronized so that concurrent UpdateRef calls on the same ref never
// silently clobber each other.
type Store interface {
	WriteBlob(ctx context.Context, data []byte) (oid string, err error)
	ReadBlob(ctx context.Context, oid string) ([]byte, error)

	// WriteTree writes a tree object from entries sorted by Path and
	// returns its content-addressed OID.
	WriteTree(ctx context.Context, entries []TreeEntry) (treeOID string, err error)
	// ReadTreeOIDs returns the path->oid map held by the tree pointed to
	// by a commit.
	ReadTreeOIDs(ctx context.Context, commitSHA string) (map[string]string, error)

	ReadRef(ctx context.Context, refName string) (oid string, ok bool, err error)
	// UpdateRef moves refName to oid. Implementations providing true CAS
	// should take an expectedOID and fail with ErrRefConflict if the ref
	// does not currently hold that value; see CASUpdateRef.
	UpdateRef(ctx context.Context, refName, oid string) error
	// CASUpdateRef moves refName to newOID only if it currently holds
	// expectedOID (or doesn't exist and expectedOID == ""). Returns
	// ErrRefConflict on mismatch.
	CASUpdateRef(ctx context.Context, refName, expectedOID, newOID string) error

	CommitWithTree(ctx context.Context, spec CommitSpec) (commitSHA string, err error)
	ShowCommitMessage(ctx context.Context, commitSHA string) ([]byte, error)
	// ReadCommitParents returns a commit's parent SHAs, letting callers walk
	// a writer's chain back to its root without decoding the commit's tree.
	ReadCommitParents(ctx context.Context, commitSHA string) ([]string, error)

	Close() error
}
