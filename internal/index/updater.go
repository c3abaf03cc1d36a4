package index

import (
	"fmt"

	"github.com/rohankatakam/warpgraph/internal/graph"
)

// DirtyShard names a shard that must be rewritten because this patch's
// diff touched a node or edge living in it (spec §4.7).
type DirtyShard struct {
	ShardKey     string
	TouchesMeta  bool
	TouchesFwd   bool
	TouchesRev   bool
	TouchesProps bool
}

// IncrementalIndexUpdater computes the minimal set of shards a single
// patch's PatchDiff requires rewriting, and applies that diff directly to
// an in-memory BuiltIndex without re-scanning the full WarpState (spec
// §4.7's incremental-equals-full invariant).
type IncrementalIndexUpdater struct{}

func NewIncrementalIndexUpdater() *IncrementalIndexUpdater { return &IncrementalIndexUpdater{} }

// ComputeDirtyShards returns, for a given diff, every shard key whose
// on-disk shard files must be rewritten. A node add/remove dirties its own
// meta and (as an edge endpoint) potentially forward/reverse adjacency in
// its own and its neighbors' shards; an edge add/remove dirties the
// forward shard of its source and the reverse shard of its target; a
// property change dirties the owning node's property shard. state is
// consulted to find incident edges of added/removed nodes, since
// ApplyToBuilt mutates peer shards for those edges too (restoring surviving
// adjacency on re-add, purging stale adjacency on death) and those peer
// shards must be rewritten alongside the dying/reviving node's own shard.
func (u *IncrementalIndexUpdater) ComputeDirtyShards(state *graph.WarpState, diff *graph.PatchDiff) map[string]*DirtyShard {
	dirty := make(map[string]*DirtyShard)

	touch := func(key string, meta, fwd, rev, props bool) {
		d, ok := dirty[key]
		if !ok {
			d = &DirtyShard{ShardKey: key}
			dirty[key] = d
		}
		d.TouchesMeta = d.TouchesMeta || meta
		d.TouchesFwd = d.TouchesFwd || fwd
		d.TouchesRev = d.TouchesRev || rev
		d.TouchesProps = d.TouchesProps || props
	}

	touchIncidentPeers := func(n string) {
		for _, ek := range state.EdgeAlive.AliveElements() {
			from, to, _, err := graph.DecodeEdgeKey(ek)
			if err != nil {
				continue
			}
			switch n {
			case from:
				touch(graph.ShardKey(to), false, false, true, false)
			case to:
				touch(graph.ShardKey(from), false, true, false, false)
			}
		}
	}

	for _, n := range diff.NodesAdded {
		touch(graph.ShardKey(n), true, true, true, false)
		touchIncidentPeers(n)
	}
	for _, n := range diff.NodesRemoved {
		touch(graph.ShardKey(n), true, true, true, true)
		touchIncidentPeers(n)
	}
	for _, e := range diff.EdgesAdded {
		touch(graph.ShardKey(e.From), false, true, false, false)
		touch(graph.ShardKey(e.To), false, false, true, false)
	}
	for _, e := range diff.EdgesRemoved {
		touch(graph.ShardKey(e.From), false, true, false, false)
		touch(graph.ShardKey(e.To), false, false, true, false)
	}
	for _, p := range diff.PropsChanged {
		if p.IsEdgeProp {
			touch(graph.ShardKey(p.From), false, false, false, true)
			continue
		}
		touch(graph.ShardKey(p.Node), false, false, false, true)
	}

	return dirty
}

// ApplyToBuilt mutates idx in place to reflect diff, allocating fresh
// local ids for newly added nodes and updating adjacency/property shards
// accordingly. Callers must persist exactly the shard keys ComputeDirtyShards
// returned afterward.
func (u *IncrementalIndexUpdater) ApplyToBuilt(idx *BuiltIndex, state *graph.WarpState, diff *graph.PatchDiff) error {
	shardBytes := shardByteAssignment()

	for _, n := range diff.NodesAdded {
		shardKey := graph.ShardKey(n)
		meta := idx.metaFor(shardKey)
		localID, err := meta.AllocateLocalID(shardKey, n)
		if err != nil {
			return err
		}
		if err := meta.SetAlive(localID); err != nil {
			return err
		}
		idx.Receipt.NodeCount++

		// A node that dies and is later re-added keeps its global_id, but
		// its forward/reverse rows were cleared on death (below). Any edge
		// incident to it that survived the whole time in state.EdgeAlive
		// (never itself removed) must be restored here, per spec §4.7 step
		// 7 - the EdgesAdded loop below only covers edges newly dotted in
		// this same patch, not ones dotted earlier while the node was dead.
		nodeGlobal, err := idx.nodeGlobalID(shardBytes, n)
		if err != nil {
			return err
		}
		for _, ek := range state.EdgeAlive.AliveElements() {
			from, to, label, derr := graph.DecodeEdgeKey(ek)
			if derr != nil {
				continue
			}
			if from != n && to != n {
				continue
			}
			other := to
			if from != n {
				other = from
			}
			if !state.NodeAlive.IsAlive(other) {
				continue
			}
			labelID := idx.Labels.Register(label)
			labelIDStr := fmt.Sprintf("%d", labelID)
			otherGlobal, err := idx.nodeGlobalID(shardBytes, other)
			if err != nil {
				return err
			}
			if from == n {
				if err := idx.forwardFor(shardKey).AddNeighbor(nodeGlobal, labelIDStr, otherGlobal); err != nil {
					return err
				}
				if err := idx.reverseFor(graph.ShardKey(other)).AddNeighbor(otherGlobal, labelIDStr, nodeGlobal); err != nil {
					return err
				}
			} else {
				if err := idx.reverseFor(shardKey).AddNeighbor(nodeGlobal, labelIDStr, otherGlobal); err != nil {
					return err
				}
				if err := idx.forwardFor(graph.ShardKey(other)).AddNeighbor(otherGlobal, labelIDStr, nodeGlobal); err != nil {
					return err
				}
			}
		}
	}

	for _, n := range diff.NodesRemoved {
		shardKey := graph.ShardKey(n)
		meta := idx.metaFor(shardKey)
		localID, ok := meta.NodeToGlobal[n]
		if !ok {
			continue
		}
		if err := meta.ClearAlive(localID); err != nil {
			return err
		}
		idx.Receipt.NodeCount--
		globalID, err := idx.nodeGlobalID(shardBytes, n)
		if err != nil {
			return err
		}

		// The node's own forward/reverse rows are cleared below, but every
		// peer that still points at it needs globalID purged from its own
		// bitmaps too - otherwise get_edges on a surviving neighbor keeps
		// returning a tombstoned endpoint forever. A node's death does not
		// by itself retract its incident edges from state.EdgeAlive (that
		// only happens via an explicit EdgeRemove op, handled separately
		// below), so scan the current, post-apply EdgeAlive set for every
		// edge still naming n and clear n out of the other endpoint's
		// adjacency.
		for _, ek := range state.EdgeAlive.AliveElements() {
			from, to, _, derr := graph.DecodeEdgeKey(ek)
			if derr != nil {
				continue
			}
			switch n {
			case from:
				peerGlobal, perr := idx.nodeGlobalID(shardBytes, to)
				if perr != nil {
					return perr
				}
				if err := idx.reverseFor(graph.ShardKey(to)).RemoveFromAllBuckets(peerGlobal, globalID); err != nil {
					return err
				}
			case to:
				peerGlobal, perr := idx.nodeGlobalID(shardBytes, from)
				if perr != nil {
					return perr
				}
				if err := idx.forwardFor(graph.ShardKey(from)).RemoveFromAllBuckets(peerGlobal, globalID); err != nil {
					return err
				}
			}
		}

		idx.forwardFor(shardKey).ClearOwner(globalID)
		idx.reverseFor(shardKey).ClearOwner(globalID)
		if ps, ok := idx.Props[shardKey]; ok {
			delete(ps.Entries, n)
		}
	}

	for _, e := range diff.EdgesAdded {
		if !state.NodeAlive.IsAlive(e.From) || !state.NodeAlive.IsAlive(e.To) {
			continue
		}
		labelID := idx.Labels.Register(e.Label)
		labelIDStr := fmt.Sprintf("%d", labelID)
		fromGlobal, err := idx.nodeGlobalID(shardBytes, e.From)
		if err != nil {
			return err
		}
		toGlobal, err := idx.nodeGlobalID(shardBytes, e.To)
		if err != nil {
			return err
		}
		if err := idx.forwardFor(graph.ShardKey(e.From)).AddNeighbor(fromGlobal, labelIDStr, toGlobal); err != nil {
			return err
		}
		if err := idx.reverseFor(graph.ShardKey(e.To)).AddNeighbor(toGlobal, labelIDStr, fromGlobal); err != nil {
			return err
		}
		idx.Receipt.EdgeCount++
	}

	for _, e := range diff.EdgesRemoved {
		labelID, ok := idx.Labels.LabelToID[e.Label]
		if !ok {
			continue
		}
		labelIDStr := fmt.Sprintf("%d", labelID)
		fromGlobal, err := idx.nodeGlobalID(shardBytes, e.From)
		if err != nil {
			return err
		}
		toGlobal, err := idx.nodeGlobalID(shardBytes, e.To)
		if err != nil {
			return err
		}
		if err := idx.forwardFor(graph.ShardKey(e.From)).RemoveNeighbor(fromGlobal, labelIDStr, toGlobal); err != nil {
			return err
		}
		if err := idx.reverseFor(graph.ShardKey(e.To)).RemoveNeighbor(toGlobal, labelIDStr, fromGlobal); err != nil {
			return err
		}
		idx.Receipt.EdgeCount--
	}

	for _, p := range diff.PropsChanged {
		if p.IsEdgeProp {
			// Edge properties are not materialized into the bitmap index:
			// the index only accelerates topology and node-property
			// lookups (spec §4.5). Readers needing an edge property fall
			// through to the CRDT state directly.
			continue
		}
		v, ok := state.GetNodeProperty(p.Node, p.Key)
		if !ok {
			continue
		}
		idx.propsFor(graph.ShardKey(p.Node)).Set(p.Node, p.Key, v)
	}

	return nil
}
