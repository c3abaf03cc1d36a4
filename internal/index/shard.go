// Package index builds, reads, and incrementally updates the sharded
// Roaring-bitmap materialized view described in spec §3-§4.5-§4.7: per-
// shard alive-node bitmaps, forward/reverse labeled adjacency, node
// property shards, and the label registry, all canonical-CBOR encoded.
package index

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/fxamacker/cbor/v2"
)

const (
	// ShardCount is the number of 2-hex-char shards (spec §3, §4.1).
	ShardCount = 256
	// MaxLocalID is the size of a single shard's local_id space (2^24,
	// spec §4.7): local ids run from 0 to MaxLocalID-1, and allocating
	// past that raises ShardIDOverflowError.
	MaxLocalID = 1 << 24

	// BucketAll is the unfiltered adjacency bucket key.
	BucketAll = "all"
)

// GlobalID packs a shard byte and a local id into the 32-bit identifier
// referenced by bitmaps: (shard_byte << 24) | local_id.
type GlobalID uint32

func MakeGlobalID(shardByte byte, localID uint32) GlobalID {
	return GlobalID(uint32(shardByte)<<24 | (localID & (MaxLocalID - 1)))
}

func (g GlobalID) ShardByte() byte   { return byte(g >> 24) }
func (g GlobalID) LocalID() uint32   { return uint32(g) & (MaxLocalID - 1) }

// MetaShard is the per-shard node registry (`meta_XX.cbor`).
type MetaShard struct {
	NodeToGlobal map[string]uint32 `cbor:"node_to_global"`
	NextLocalID  uint32            `cbor:"next_local_id"`
	Alive        []byte            `cbor:"alive"` // serialized roaring bitmap of local ids
}

func NewMetaShard() *MetaShard {
	return &MetaShard{NodeToGlobal: make(map[string]uint32)}
}

func (m *MetaShard) aliveBitmap() (*roaring.Bitmap, error) {
	bm := roaring.New()
	if len(m.Alive) > 0 {
		if err := bm.UnmarshalBinary(m.Alive); err != nil {
			return nil, fmt.Errorf("index: unmarshal alive bitmap: %w", err)
		}
	}
	return bm, nil
}

func (m *MetaShard) setAliveBitmap(bm *roaring.Bitmap) error {
	data, err := bm.MarshalBinary()
	if err != nil {
		return err
	}
	m.Alive = data
	return nil
}

// SetAlive marks localID alive in this shard's bitmap.
func (m *MetaShard) SetAlive(localID uint32) error {
	bm, err := m.aliveBitmap()
	if err != nil {
		return err
	}
	bm.Add(localID)
	return m.setAliveBitmap(bm)
}

// ClearAlive marks localID dead (global_id remains reserved).
func (m *MetaShard) ClearAlive(localID uint32) error {
	bm, err := m.aliveBitmap()
	if err != nil {
		return err
	}
	bm.Remove(localID)
	return m.setAliveBitmap(bm)
}

// IsAlive reports whether localID is currently marked alive.
func (m *MetaShard) IsAlive(localID uint32) (bool, error) {
	bm, err := m.aliveBitmap()
	if err != nil {
		return false, err
	}
	return bm.Contains(localID), nil
}

// AllocateLocalID returns node's existing local_id if already registered
// (re-add after remove preserves global_id), otherwise allocates the next
// one. Overflow past MaxLocalID raises ShardIDOverflowError.
func (m *MetaShard) AllocateLocalID(shardKey string, node string) (uint32, error) {
	if id, ok := m.NodeToGlobal[node]; ok {
		return id, nil
	}
	if m.NextLocalID >= MaxLocalID {
		return 0, &ShardIDOverflowError{ShardKey: shardKey, NextLocalID: m.NextLocalID}
	}
	id := m.NextLocalID
	m.NodeToGlobal[node] = id
	m.NextLocalID++
	return id, nil
}

// LabelRegistry is the append-only label->id map (`labels.cbor`).
type LabelRegistry struct {
	LabelToID map[string]uint32 `cbor:"label_to_id"`
	NextID    uint32            `cbor:"next_id"`
}

func NewLabelRegistry() *LabelRegistry {
	return &LabelRegistry{LabelToID: make(map[string]uint32)}
}

// Register returns label's existing id, allocating and appending a new one
// if unseen. Existing ids are preserved across rebuilds.
func (l *LabelRegistry) Register(label string) uint32 {
	if id, ok := l.LabelToID[label]; ok {
		return id
	}
	id := l.NextID
	l.LabelToID[label] = id
	l.NextID++
	return id
}

// AdjacencyShard holds, per owner global id, a bucket -> bitmap map
// (`fwd_XX.cbor` / `rev_XX.cbor`). Buckets are "all" or a label_id string.
type AdjacencyShard struct {
	// Owner global id -> bucket -> serialized roaring bitmap.
	ByOwner map[uint32]map[string][]byte `cbor:"by_owner"`
}

func NewAdjacencyShard() *AdjacencyShard {
	return &AdjacencyShard{ByOwner: make(map[uint32]map[string][]byte)}
}

func (a *AdjacencyShard) bucket(owner uint32, bucket string) (*roaring.Bitmap, error) {
	bm := roaring.New()
	buckets, ok := a.ByOwner[owner]
	if !ok {
		return bm, nil
	}
	raw, ok := buckets[bucket]
	if !ok {
		return bm, nil
	}
	if err := bm.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("index: unmarshal adjacency bitmap: %w", err)
	}
	return bm, nil
}

func (a *AdjacencyShard) setBucket(owner uint32, bucket string, bm *roaring.Bitmap) error {
	data, err := bm.MarshalBinary()
	if err != nil {
		return err
	}
	buckets, ok := a.ByOwner[owner]
	if !ok {
		buckets = make(map[string][]byte)
		a.ByOwner[owner] = buckets
	}
	buckets[bucket] = data
	return nil
}

// AddNeighbor adds neighborGlobalID to both the "all" bucket and the
// label_id bucket for owner.
func (a *AdjacencyShard) AddNeighbor(owner uint32, labelID string, neighborGlobalID uint32) error {
	for _, bucket := range []string{BucketAll, labelID} {
		bm, err := a.bucket(owner, bucket)
		if err != nil {
			return err
		}
		bm.Add(neighborGlobalID)
		if err := a.setBucket(owner, bucket, bm); err != nil {
			return err
		}
	}
	return nil
}

// RemoveNeighbor removes neighborGlobalID from the label_id bucket and
// recomputes "all" as the OR of all remaining per-label buckets.
func (a *AdjacencyShard) RemoveNeighbor(owner uint32, labelID string, neighborGlobalID uint32) error {
	bm, err := a.bucket(owner, labelID)
	if err != nil {
		return err
	}
	bm.Remove(neighborGlobalID)
	if err := a.setBucket(owner, labelID, bm); err != nil {
		return err
	}
	return a.recomputeAll(owner)
}

func (a *AdjacencyShard) recomputeAll(owner uint32) error {
	all := roaring.New()
	for bucket, raw := range a.ByOwner[owner] {
		if bucket == BucketAll {
			continue
		}
		bm := roaring.New()
		if err := bm.UnmarshalBinary(raw); err != nil {
			return err
		}
		all.Or(bm)
	}
	return a.setBucket(owner, BucketAll, all)
}

// ClearOwner removes every bucket for owner (used when a node dies).
func (a *AdjacencyShard) ClearOwner(owner uint32) {
	delete(a.ByOwner, owner)
}

// RemoveFromAllBuckets removes neighborGlobalID from every bucket owner
// currently has (used when neighborGlobalID's node dies and must be
// purged from every peer bitmap it appears in).
func (a *AdjacencyShard) RemoveFromAllBuckets(owner uint32, neighborGlobalID uint32) error {
	buckets, ok := a.ByOwner[owner]
	if !ok {
		return nil
	}
	for bucket, raw := range buckets {
		bm := roaring.New()
		if err := bm.UnmarshalBinary(raw); err != nil {
			return err
		}
		if !bm.Contains(neighborGlobalID) {
			continue
		}
		bm.Remove(neighborGlobalID)
		if err := a.setBucket(owner, bucket, bm); err != nil {
			return err
		}
	}
	return nil
}

// Neighbors returns the sorted neighbor global ids held in bucket for owner.
func (a *AdjacencyShard) Neighbors(owner uint32, bucket string) ([]uint32, error) {
	bm, err := a.bucket(owner, bucket)
	if err != nil {
		return nil, err
	}
	return bm.ToArray(), nil
}

// Owners returns every owner global id with at least one bucket recorded.
func (a *AdjacencyShard) Owners() []uint32 {
	out := make([]uint32, 0, len(a.ByOwner))
	for o := range a.ByOwner {
		out = append(out, o)
	}
	return out
}

// PropertyShard holds node properties for one shard (`props_XX.cbor`).
type PropertyShard struct {
	Entries map[string]map[string]any `cbor:"entries"` // node -> key -> value
}

func NewPropertyShard() *PropertyShard {
	return &PropertyShard{Entries: make(map[string]map[string]any)}
}

func (p *PropertyShard) Set(node, key string, value any) {
	m, ok := p.Entries[node]
	if !ok {
		m = make(map[string]any)
		p.Entries[node] = m
	}
	m[key] = value
}

func (p *PropertyShard) Get(node, key string) (any, bool) {
	m, ok := p.Entries[node]
	if !ok {
		return nil, false
	}
	v, ok := m[key]
	return v, ok
}

func (p *PropertyShard) All(node string) (map[string]any, bool) {
	m, ok := p.Entries[node]
	return m, ok
}

// Receipt is build metadata for a materialized view (`receipt.cbor`).
type Receipt struct {
	NodeCount  int               `cbor:"node_count"`
	EdgeCount  int               `cbor:"edge_count"`
	ShardCheck map[string]string `cbor:"shard_checksums"`
}

// --- canonical CBOR codecs shared by every shard type ---

func encodeCanonical(v any) ([]byte, error) {
	opts := cbor.CoreDetEncOptions()
	mode, err := opts.EncMode()
	if err != nil {
		return nil, err
	}
	return mode.Marshal(v)
}

func decodeInto(data []byte, v any) error {
	return cbor.Unmarshal(data, v)
}

// DecodeMetaShard decodes a persisted meta_XX.cbor blob.
func DecodeMetaShard(data []byte) (*MetaShard, error) {
	m := NewMetaShard()
	if err := decodeInto(data, m); err != nil {
		return nil, fmt.Errorf("index: decode meta shard: %w", err)
	}
	return m, nil
}

// DecodeAdjacencyShard decodes a persisted fwd_XX.cbor or rev_XX.cbor blob.
func DecodeAdjacencyShard(data []byte) (*AdjacencyShard, error) {
	a := NewAdjacencyShard()
	if err := decodeInto(data, a); err != nil {
		return nil, fmt.Errorf("index: decode adjacency shard: %w", err)
	}
	return a, nil
}

// DecodePropertyShard decodes a persisted props_XX.cbor blob.
func DecodePropertyShard(data []byte) (*PropertyShard, error) {
	p := NewPropertyShard()
	if err := decodeInto(data, p); err != nil {
		return nil, fmt.Errorf("index: decode property shard: %w", err)
	}
	return p, nil
}

// DecodeLabelRegistry decodes a persisted labels.cbor blob.
func DecodeLabelRegistry(data []byte) (*LabelRegistry, error) {
	l := NewLabelRegistry()
	if err := decodeInto(data, l); err != nil {
		return nil, fmt.Errorf("index: decode label registry: %w", err)
	}
	return l, nil
}

// DecodeReceipt decodes a persisted receipt.cbor blob.
func DecodeReceipt(data []byte) (Receipt, error) {
	var r Receipt
	if err := decodeInto(data, &r); err != nil {
		return Receipt{}, fmt.Errorf("index: decode receipt: %w", err)
	}
	return r, nil
}
