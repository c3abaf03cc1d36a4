package index

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/rohankatakam/warpgraph/internal/cache"
	"github.com/rohankatakam/warpgraph/internal/graph"
)

// Direction selects which adjacency shard (forward or reverse) a neighbor
// lookup reads from.
type Direction int

const (
	DirectionOut Direction = iota
	DirectionIn
)

func (d Direction) String() string {
	if d == DirectionIn {
		return "in"
	}
	return "out"
}

// EdgeNeighbor is one {neighbor_id, label} pair as returned by get_edges
// (spec §4.6, §8 scenario 4).
type EdgeNeighbor struct {
	Neighbor string
	Label    string
}

// ShardSource abstracts the byte-level storage a reader loads persisted
// shard objects from (spec §4.6: shards are read lazily, on demand, from
// whatever backs the materialized view's commit tree — in this module,
// internal/objectstore.Store via internal/view).
type ShardSource interface {
	ReadShard(ctx context.Context, path string) ([]byte, bool, error)
}

func metaPath(shardKey string) string  { return fmt.Sprintf("meta_%s.cbor", shardKey) }
func fwdPath(shardKey string) string   { return fmt.Sprintf("fwd_%s.cbor", shardKey) }
func revPath(shardKey string) string   { return fmt.Sprintf("rev_%s.cbor", shardKey) }
func propsPath(shardKey string) string { return fmt.Sprintf("props_%s.cbor", shardKey) }
func labelsPath() string               { return "labels.cbor" }

// LogicalIndexReader answers neighbor and label queries against a
// persisted bitmap index, lazily loading and LRU-caching shards (spec
// §4.6). It never mutates the underlying store.
type LogicalIndexReader struct {
	source ShardSource

	meta   *cache.Cache[string, *MetaShard]
	fwd    *cache.Cache[string, *AdjacencyShard]
	rev    *cache.Cache[string, *AdjacencyShard]
	labels *LabelRegistry
}

// NewLogicalIndexReader builds a reader with a per-shard-kind LRU of
// cacheSize entries (spec §4.6's shard cache), using internal/cache's
// hit/miss-instrumented wrapper around hashicorp/golang-lru.
func NewLogicalIndexReader(source ShardSource, cacheSize int) (*LogicalIndexReader, error) {
	if cacheSize <= 0 {
		cacheSize = 64
	}
	meta, err := cache.New[string, *MetaShard](cacheSize)
	if err != nil {
		return nil, err
	}
	fwd, err := cache.New[string, *AdjacencyShard](cacheSize)
	if err != nil {
		return nil, err
	}
	rev, err := cache.New[string, *AdjacencyShard](cacheSize)
	if err != nil {
		return nil, err
	}
	return &LogicalIndexReader{source: source, meta: meta, fwd: fwd, rev: rev}, nil
}

func (r *LogicalIndexReader) loadMeta(ctx context.Context, shardKey string) (*MetaShard, error) {
	if m, ok := r.meta.Get(shardKey); ok {
		return m, nil
	}
	data, found, err := r.source.ReadShard(ctx, metaPath(shardKey))
	if err != nil {
		return nil, err
	}
	m := NewMetaShard()
	if found {
		if err := decodeInto(data, m); err != nil {
			return nil, fmt.Errorf("index: decode meta shard %s: %w", shardKey, err)
		}
	}
	r.meta.Add(shardKey, m)
	return m, nil
}

func (r *LogicalIndexReader) loadAdjacency(ctx context.Context, shardKey string, dir Direction) (*AdjacencyShard, error) {
	shardCache, path := r.fwd, fwdPath(shardKey)
	if dir == DirectionIn {
		shardCache, path = r.rev, revPath(shardKey)
	}
	if a, ok := shardCache.Get(shardKey); ok {
		return a, nil
	}
	data, found, err := r.source.ReadShard(ctx, path)
	if err != nil {
		return nil, err
	}
	a := NewAdjacencyShard()
	if found {
		if err := decodeInto(data, a); err != nil {
			return nil, fmt.Errorf("index: decode adjacency shard %s: %w", shardKey, err)
		}
	}
	shardCache.Add(shardKey, a)
	return a, nil
}

func (r *LogicalIndexReader) loadLabels(ctx context.Context) (*LabelRegistry, error) {
	if r.labels != nil {
		return r.labels, nil
	}
	data, found, err := r.source.ReadShard(ctx, labelsPath())
	if err != nil {
		return nil, err
	}
	l := NewLabelRegistry()
	if found {
		if err := decodeInto(data, l); err != nil {
			return nil, fmt.Errorf("index: decode label registry: %w", err)
		}
	}
	r.labels = l
	return l, nil
}

func (r *LogicalIndexReader) loadProps(ctx context.Context, shardKey string) (*PropertyShard, error) {
	data, found, err := r.source.ReadShard(ctx, propsPath(shardKey))
	if err != nil {
		return nil, err
	}
	p := NewPropertyShard()
	if found {
		if err := decodeInto(data, p); err != nil {
			return nil, fmt.Errorf("index: decode property shard %s: %w", shardKey, err)
		}
	}
	return p, nil
}

func shardKeyOf(globalID uint32) string {
	return fmt.Sprintf("%02x", GlobalID(globalID).ShardByte())
}

// resolveName looks up the node name owning globalID by loading its shard's
// meta and scanning NodeToGlobal. Meta shards are small (spec §4.1 caps
// local ids at 2^24 per shard but real shards are far smaller), so a linear
// scan here is cheap relative to the bitmap operations it follows.
func (r *LogicalIndexReader) resolveName(ctx context.Context, globalID uint32) (string, bool, error) {
	shardKey := shardKeyOf(globalID)
	meta, err := r.loadMeta(ctx, shardKey)
	if err != nil {
		return "", false, err
	}
	for node, id := range meta.NodeToGlobal {
		if id == GlobalID(globalID).LocalID() {
			alive, err := meta.IsAlive(id)
			if err != nil {
				return "", false, err
			}
			return node, alive, nil
		}
	}
	return "", false, nil
}

// NodeExists reports whether node is currently marked alive in the index.
func (r *LogicalIndexReader) NodeExists(ctx context.Context, node string) (bool, error) {
	meta, err := r.loadMeta(ctx, nodeShardKey(node))
	if err != nil {
		return false, err
	}
	localID, ok := meta.NodeToGlobal[node]
	if !ok {
		return false, nil
	}
	return meta.IsAlive(localID)
}

// Neighbors returns the sorted, alive-filtered neighbor node names of node
// along edges with the given label (empty label means "all labels") in the
// given direction.
func (r *LogicalIndexReader) Neighbors(ctx context.Context, node, label string, dir Direction) ([]string, error) {
	shardKey := nodeShardKey(node)
	meta, err := r.loadMeta(ctx, shardKey)
	if err != nil {
		return nil, err
	}
	localID, ok := meta.NodeToGlobal[node]
	if !ok {
		return nil, nil
	}
	globalID := uint32(MakeGlobalID(shardByteForKey(shardKey), localID))

	adj, err := r.loadAdjacency(ctx, shardKey, dir)
	if err != nil {
		return nil, err
	}

	bucket := BucketAll
	if label != "" {
		labels, err := r.loadLabels(ctx)
		if err != nil {
			return nil, err
		}
		id, ok := labels.LabelToID[label]
		if !ok {
			return nil, nil
		}
		bucket = fmt.Sprintf("%d", id)
	}

	neighborIDs, err := adj.Neighbors(globalID, bucket)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, nid := range neighborIDs {
		name, alive, err := r.resolveName(ctx, nid)
		if err != nil {
			return nil, err
		}
		if alive {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

// GetEdges returns node's alive neighbors in the given direction as
// {neighbor, label} pairs (spec's get_edges(node, direction, filter_label_ids?)
// with no label filter: every label bucket owner has is resolved via the
// label registry, not just the unfiltered "all" bucket, since "all" carries
// neighbor ids with no attached label).
func (r *LogicalIndexReader) GetEdges(ctx context.Context, node string, dir Direction) ([]EdgeNeighbor, error) {
	shardKey := nodeShardKey(node)
	meta, err := r.loadMeta(ctx, shardKey)
	if err != nil {
		return nil, err
	}
	localID, ok := meta.NodeToGlobal[node]
	if !ok {
		return nil, nil
	}
	globalID := uint32(MakeGlobalID(shardByteForKey(shardKey), localID))

	adj, err := r.loadAdjacency(ctx, shardKey, dir)
	if err != nil {
		return nil, err
	}
	labels, err := r.loadLabels(ctx)
	if err != nil {
		return nil, err
	}

	var out []EdgeNeighbor
	for label, labelID := range labels.LabelToID {
		bucket := fmt.Sprintf("%d", labelID)
		neighborIDs, err := adj.Neighbors(globalID, bucket)
		if err != nil {
			return nil, err
		}
		for _, nid := range neighborIDs {
			name, alive, err := r.resolveName(ctx, nid)
			if err != nil {
				return nil, err
			}
			if !alive {
				continue
			}
			out = append(out, EdgeNeighbor{Neighbor: name, Label: label})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Neighbor != out[j].Neighbor {
			return out[i].Neighbor < out[j].Neighbor
		}
		return out[i].Label < out[j].Label
	})
	return out, nil
}

// GetNodeProperty returns a node's property value, reading the property
// shard for node's shard key fresh each call (property shards are not
// LRU-cached: they change on every property-only rebuild and are typically
// read once per query rather than traversed repeatedly).
func (r *LogicalIndexReader) GetNodeProperty(ctx context.Context, node, key string) (any, bool, error) {
	shard, err := r.loadProps(ctx, nodeShardKey(node))
	if err != nil {
		return nil, false, err
	}
	v, ok := shard.Get(node, key)
	return v, ok, nil
}

func nodeShardKey(node string) string {
	return graph.ShardKey(node)
}

// shardByteForKey parses a 2-hex-char shard key back into its byte value;
// shardByteAssignment (builder.go) guarantees shard keys are exactly the
// hex encoding of their byte, so this never fails for a key ShardKey
// itself produced.
func shardByteForKey(shardKey string) byte {
	v, err := strconv.ParseUint(shardKey, 16, 8)
	if err != nil {
		return 0
	}
	return byte(v)
}
