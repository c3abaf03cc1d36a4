package index

import (
	"fmt"
	"sort"

	"github.com/rohankatakam/warpgraph/internal/graph"
)

// BuiltIndex is the complete in-memory output of a full index build (spec
// §4.5): one meta/adjacency/property shard per shard key actually used,
// plus the shared label registry.
type BuiltIndex struct {
	Labels   *LabelRegistry
	Meta     map[string]*MetaShard       // shard key -> shard
	Forward  map[string]*AdjacencyShard  // shard key -> outgoing edges owned by nodes in this shard
	Reverse  map[string]*AdjacencyShard  // shard key -> incoming edges owned by nodes in this shard
	Props    map[string]*PropertyShard   // shard key -> shard
	Receipt  Receipt
}

func newBuiltIndex() *BuiltIndex {
	return &BuiltIndex{
		Labels:  NewLabelRegistry(),
		Meta:    make(map[string]*MetaShard),
		Forward: make(map[string]*AdjacencyShard),
		Reverse: make(map[string]*AdjacencyShard),
		Props:   make(map[string]*PropertyShard),
	}
}

func (b *BuiltIndex) metaFor(shardKey string) *MetaShard {
	s, ok := b.Meta[shardKey]
	if !ok {
		s = NewMetaShard()
		b.Meta[shardKey] = s
	}
	return s
}

func (b *BuiltIndex) forwardFor(shardKey string) *AdjacencyShard {
	s, ok := b.Forward[shardKey]
	if !ok {
		s = NewAdjacencyShard()
		b.Forward[shardKey] = s
	}
	return s
}

func (b *BuiltIndex) reverseFor(shardKey string) *AdjacencyShard {
	s, ok := b.Reverse[shardKey]
	if !ok {
		s = NewAdjacencyShard()
		b.Reverse[shardKey] = s
	}
	return s
}

func (b *BuiltIndex) propsFor(shardKey string) *PropertyShard {
	s, ok := b.Props[shardKey]
	if !ok {
		s = NewPropertyShard()
		b.Props[shardKey] = s
	}
	return s
}

// nodeGlobalID allocates (or re-looks-up) the global id for node, keyed by
// its shard. Used so forward/reverse adjacency can reference nodes living
// in other shards by global id without cross-shard pointers.
func (b *BuiltIndex) nodeGlobalID(shardByIndex map[string]byte, node string) (uint32, error) {
	shardKey := graph.ShardKey(node)
	shardByte, ok := shardByIndex[shardKey]
	if !ok {
		return 0, fmt.Errorf("index: shard key %q has no assigned byte", shardKey)
	}
	meta := b.metaFor(shardKey)
	localID, err := meta.AllocateLocalID(shardKey, node)
	if err != nil {
		return 0, err
	}
	return uint32(MakeGlobalID(shardByte, localID)), nil
}

// LogicalBitmapIndexBuilder performs the full-build algorithm of spec §4.5:
// iterate the visible projection of a WarpState, assign every alive node a
// stable (shard, local_id) pair, and populate per-shard alive/adjacency
// bitmaps plus the shared label registry.
type LogicalBitmapIndexBuilder struct{}

func NewLogicalBitmapIndexBuilder() *LogicalBitmapIndexBuilder {
	return &LogicalBitmapIndexBuilder{}
}

// shardByteAssignment derives the canonical shard-key -> byte mapping: the
// low byte of the shard key's own hex value, identical to how ShardKey
// picks a 2-hex-char bucket, so global ids and on-disk shard file names
// agree (spec §4.1 "256 shards, one per possible ShardKey hex value").
func shardByteAssignment() map[string]byte {
	out := make(map[string]byte, ShardCount)
	for i := 0; i < ShardCount; i++ {
		key := fmt.Sprintf("%02x", i)
		out[key] = byte(i)
	}
	return out
}

// Build runs a full rebuild of the bitmap index from state's visible
// projection. It does not consult any prior on-disk index: see
// IncrementalIndexUpdater for incremental rebuilds.
func (bld *LogicalBitmapIndexBuilder) Build(state *graph.WarpState) (*BuiltIndex, error) {
	out := newBuiltIndex()
	shardBytes := shardByteAssignment()

	nodes := state.NodeAlive.AliveElements()
	sort.Strings(nodes)
	for _, node := range nodes {
		shardKey := graph.ShardKey(node)
		meta := out.metaFor(shardKey)
		localID, err := meta.AllocateLocalID(shardKey, node)
		if err != nil {
			return nil, err
		}
		if err := meta.SetAlive(localID); err != nil {
			return nil, err
		}
	}

	edges := state.EdgeAlive.AliveElements()
	for _, ek := range edges {
		from, to, label, err := graph.DecodeEdgeKey(ek)
		if err != nil {
			continue
		}
		if !state.NodeAlive.IsAlive(from) || !state.NodeAlive.IsAlive(to) {
			continue
		}

		labelID := out.Labels.Register(label)
		labelIDStr := fmt.Sprintf("%d", labelID)

		fromGlobal, err := out.nodeGlobalID(shardBytes, from)
		if err != nil {
			return nil, err
		}
		toGlobal, err := out.nodeGlobalID(shardBytes, to)
		if err != nil {
			return nil, err
		}

		fromShard := graph.ShardKey(from)
		toShard := graph.ShardKey(to)

		if err := out.forwardFor(fromShard).AddNeighbor(fromGlobal, labelIDStr, toGlobal); err != nil {
			return nil, err
		}
		if err := out.reverseFor(toShard).AddNeighbor(toGlobal, labelIDStr, fromGlobal); err != nil {
			return nil, err
		}
	}

	for _, node := range nodes {
		props := collectNodeProps(state, node)
		if len(props) == 0 {
			continue
		}
		shardKey := graph.ShardKey(node)
		propShard := out.propsFor(shardKey)
		for k, v := range props {
			propShard.Set(node, k, v)
		}
	}

	out.Receipt = Receipt{
		NodeCount:  len(nodes),
		EdgeCount:  len(edges),
		ShardCheck: make(map[string]string),
	}

	return out, nil
}

// collectNodeProps reads every live property of node directly out of
// state.Prop, since WarpState exposes only single-key lookups.
func collectNodeProps(state *graph.WarpState, node string) map[string]any {
	out := make(map[string]any)
	prefix := node + "\x00"
	for propKey, reg := range state.Prop {
		if graph.IsEdgePropKey(propKey) {
			continue
		}
		if len(propKey) <= len(prefix) || propKey[:len(prefix)] != prefix {
			continue
		}
		key := propKey[len(prefix):]
		if v, ok := state.GetNodeProperty(node, key); ok {
			out[key] = v
		} else {
			_ = reg
		}
	}
	return out
}

// PropertyIndexBuilder builds only the property shards of state (spec
// §4.5's property-only rebuild path). MaterializedViewService does not use
// it; property changes reach a persisted index through
// IncrementalIndexUpdater.
type PropertyIndexBuilder struct{}

func NewPropertyIndexBuilder() *PropertyIndexBuilder { return &PropertyIndexBuilder{} }

func (p *PropertyIndexBuilder) Build(state *graph.WarpState) map[string]*PropertyShard {
	out := make(map[string]*PropertyShard)
	for _, node := range state.NodeAlive.AliveElements() {
		props := collectNodeProps(state, node)
		if len(props) == 0 {
			continue
		}
		shardKey := graph.ShardKey(node)
		shard, ok := out[shardKey]
		if !ok {
			shard = NewPropertyShard()
			out[shardKey] = shard
		}
		for k, v := range props {
			shard.Set(node, k, v)
		}
	}
	return out
}
