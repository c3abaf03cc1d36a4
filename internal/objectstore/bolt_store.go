package objectstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"

	"github.com/rohankatakam/warpgraph/internal/errors"
)

var (
	bucketBlobs   = []byte("blobs")
	bucketTrees   = []byte("trees")
	bucketRefs    = []byte("refs")
	bucketCommits = []byte("commits")
)

var _ Store = (*BoltStore)(nil)

// BoltStore implements Store on top of a single bbolt file: content
// addressing uses sha256 hex digests as keys within dedicated buckets for
// blobs, trees, commits, and a separate mutable bucket for refs.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens (creating if absent) a bbolt-backed object store at
// path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o644, nil)
	if err != nil {
		return nil, errors.StoreErrorf(err, "objectstore: open %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketBlobs, bucketTrees, bucketRefs, bucketCommits} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.StoreError(err, "objectstore: init buckets")
	}
	return &BoltStore{db: db}, nil
}

func contentOID(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (s *BoltStore) WriteBlob(_ context.Context, data []byte) (string, error) {
	oid := contentOID(data)
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBlobs).Put([]byte(oid), data)
	})
	if err != nil {
		return "", err
	}
	return oid, nil
}

func (s *BoltStore) ReadBlob(_ context.Context, oid string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketBlobs).Get([]byte(oid))
		if v == nil {
			return ErrNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// serializedTree is the canonical on-disk form of a tree object.
type serializedTree struct {
	Entries []TreeEntry `cbor:"entries"`
}

func (s *BoltStore) WriteTree(_ context.Context, entries []TreeEntry) (string, error) {
	sorted := append([]TreeEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })
	for i := range sorted {
		if sorted[i].Mode == "" {
			sorted[i].Mode = "100644"
		}
		if sorted[i].Type == "" {
			sorted[i].Type = "blob"
		}
	}
	opts := cbor.CoreDetEncOptions()
	mode, err := opts.EncMode()
	if err != nil {
		return "", err
	}
	data, err := mode.Marshal(serializedTree{Entries: sorted})
	if err != nil {
		return "", err
	}
	oid := contentOID(data)
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTrees).Put([]byte(oid), data)
	})
	if err != nil {
		return "", err
	}
	return oid, nil
}

func (s *BoltStore) readTree(tx *bolt.Tx, treeOID string) (serializedTree, error) {
	var tree serializedTree
	v := tx.Bucket(bucketTrees).Get([]byte(treeOID))
	if v == nil {
		return tree, ErrNotFound
	}
	if err := cbor.Unmarshal(v, &tree); err != nil {
		return tree, err
	}
	return tree, nil
}

// serializedCommit is the canonical on-disk form of a commit object.
type serializedCommit struct {
	TreeOID string   `cbor:"tree_oid"`
	Parents []string `cbor:"parents"`
	Message string   `cbor:"message"`
}

func (s *BoltStore) ReadTreeOIDs(_ context.Context, commitSHA string) (map[string]string, error) {
	out := make(map[string]string)
	err := s.db.View(func(tx *bolt.Tx) error {
		cv := tx.Bucket(bucketCommits).Get([]byte(commitSHA))
		if cv == nil {
			return ErrNotFound
		}
		var commit serializedCommit
		if err := cbor.Unmarshal(cv, &commit); err != nil {
			return err
		}
		tree, err := s.readTree(tx, commit.TreeOID)
		if err != nil {
			return err
		}
		for _, e := range tree.Entries {
			out[e.Path] = e.OID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BoltStore) ReadRef(_ context.Context, refName string) (string, bool, error) {
	var oid string
	var ok bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketRefs).Get([]byte(refName))
		if v != nil {
			oid = string(v)
			ok = true
		}
		return nil
	})
	return oid, ok, err
}

func (s *BoltStore) UpdateRef(_ context.Context, refName, oid string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRefs).Put([]byte(refName), []byte(oid))
	})
}

func (s *BoltStore) CASUpdateRef(_ context.Context, refName, expectedOID, newOID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRefs)
		cur := b.Get([]byte(refName))
		curStr := string(cur)
		if cur == nil {
			curStr = ""
		}
		if curStr != expectedOID {
			return ErrRefConflict
		}
		return b.Put([]byte(refName), []byte(newOID))
	})
}

func (s *BoltStore) CommitWithTree(_ context.Context, spec CommitSpec) (string, error) {
	opts := cbor.CoreDetEncOptions()
	mode, err := opts.EncMode()
	if err != nil {
		return "", err
	}
	parents := append([]string(nil), spec.Parents...)
	sort.Strings(parents)
	data, err := mode.Marshal(serializedCommit{TreeOID: spec.TreeOID, Parents: parents, Message: spec.Message})
	if err != nil {
		return "", err
	}
	// Commit identity is the content hash of the encoded tree, sorted
	// parents and message: commits differing in any of these (including
	// a parent) receive distinct SHAs, and a truly identical commit (e.g.
	// retried after a transient failure before update_ref) idempotently
	// reuses the same SHA.
	sha := contentOID(data)
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCommits).Put([]byte(sha), data)
	})
	if err != nil {
		return "", err
	}
	return sha, nil
}

func (s *BoltStore) ShowCommitMessage(_ context.Context, commitSHA string) ([]byte, error) {
	var msg []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketCommits).Get([]byte(commitSHA))
		if v == nil {
			return ErrNotFound
		}
		var commit serializedCommit
		if err := cbor.Unmarshal(v, &commit); err != nil {
			return err
		}
		msg = []byte(commit.Message)
		return nil
	})
	return msg, err
}

func (s *BoltStore) ReadCommitParents(_ context.Context, commitSHA string) ([]string, error) {
	var parents []string
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketCommits).Get([]byte(commitSHA))
		if v == nil {
			return ErrNotFound
		}
		var commit serializedCommit
		if err := cbor.Unmarshal(v, &commit); err != nil {
			return err
		}
		parents = commit.Parents
		return nil
	})
	if err != nil {
		return nil, err
	}
	return parents, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// ParseCommitEnvelope extracts the magic-line key/value pairs from a
// commit message (spec §6): "graph=...\nwriter=...\n..." etc.
func ParseCommitEnvelope(msg []byte) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(string(msg), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		out[parts[0]] = parts[1]
	}
	return out
}
