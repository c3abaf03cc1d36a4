package index

import "fmt"

// ShardIDOverflowError is raised when a shard's local-id space (spec §4.7:
// 2^24 entries) is exhausted and a new node hashes into it.
type ShardIDOverflowError struct {
	ShardKey    string
	NextLocalID uint32
}

func (e *ShardIDOverflowError) Error() string {
	return fmt.Sprintf("index: shard %s exhausted local id space (next=%d, max=%d)", e.ShardKey, e.NextLocalID, MaxLocalID)
}

// StaleBaseError reports that a caller's claimed base index state no longer
// matches what was actually persisted. No code in this module returns it;
// IncrementalIndexUpdater applies a diff without checking its base.
type StaleBaseError struct {
	Shard string
}

func (e *StaleBaseError) Error() string {
	return fmt.Sprintf("index: stale base for shard %s", e.Shard)
}

// VerifyMismatchError is raised by VerifyIndex when a sampled node's
// bitmap-derived view disagrees with the CRDT-derived view.
type VerifyMismatchError struct {
	Node   string
	Detail string
}

func (e *VerifyMismatchError) Error() string {
	return fmt.Sprintf("index: verify mismatch for node %q: %s", e.Node, e.Detail)
}
