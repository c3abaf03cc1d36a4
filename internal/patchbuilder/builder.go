// Package patchbuilder provides the fluent construction of a new patch
// against a snapshotted WarpState, with dot assignment, observed-dots
// capture for removes, a configurable delete-with-data policy, and an
// atomic compare-and-swap commit against a writer ref (spec §4.4).
package patchbuilder

import (
	"context"
	"fmt"
	"strings"

	"github.com/rohankatakam/warpgraph/internal/graph"
	"github.com/rohankatakam/warpgraph/internal/logging"
	"github.com/rohankatakam/warpgraph/internal/objectstore"
)

// StateSnapshotFunc lazily produces the WarpState snapshot a builder reads
// observed dots and incident-data from. It is invoked at most once per
// builder, on first read, preventing TOCTOU across concurrent writers
// touching the same cached in-memory state.
type StateSnapshotFunc func() *graph.WarpState

// PatchBuilder accumulates ops against a snapshotted state and commits
// them as a single patch.
type PatchBuilder struct {
	graphName string
	writerID  string
	logger    *logging.Logger
	policy    DeleteWithDataPolicy
	store     objectstore.Store

	snapshotFn StateSnapshotFunc
	snapshot   *graph.WarpState

	vv      graph.VersionVector
	lamport uint64 // base lamport incorporating the globally observed max at creation

	ops              []graph.RawOp
	capturedBlobOIDs []string

	reads  map[string]struct{}
	writes map[string]struct{}

	committed bool
	inFlight  bool
}

// New creates a builder for writerID against graphName. vv is a clone of
// the writer's current version vector (the builder owns it exclusively,
// per spec §5's "PatchBuilder exclusively owns its... cloned version
// vector"). lamportBase is the greatest lamport this writer has observed
// so far from any source. snapshotFn lazily supplies the state snapshot
// used for observed-dots capture and delete-with-data scanning. store
// backs AttachContent's blob writes; it is the same store Commit is later
// called with.
func New(graphName, writerID string, vv graph.VersionVector, lamportBase uint64, snapshotFn StateSnapshotFunc, policy DeleteWithDataPolicy, logger *logging.Logger, store objectstore.Store) *PatchBuilder {
	if logger == nil {
		logger, _ = logging.NewLogger(logging.DebugConfig())
	}
	return &PatchBuilder{
		graphName:  graphName,
		writerID:   writerID,
		logger:     logger,
		policy:     policy,
		store:      store,
		snapshotFn: snapshotFn,
		vv:         vv.Clone(),
		lamport:    lamportBase,
		reads:      make(map[string]struct{}),
		writes:     make(map[string]struct{}),
	}
}

func (b *PatchBuilder) assertMutable() error {
	if b.committed || b.inFlight {
		return &SealedBuilderError{}
	}
	return nil
}

func (b *PatchBuilder) state() *graph.WarpState {
	if b.snapshot == nil {
		b.snapshot = b.snapshotFn()
	}
	return b.snapshot
}

func (b *PatchBuilder) nextDot() graph.Dot {
	counter := b.vv.Increment(b.writerID)
	return graph.Dot{WriterID: b.writerID, Counter: counter}
}

// AddNode stages a NodeAdd with a freshly assigned dot.
func (b *PatchBuilder) AddNode(node string) error {
	if err := b.assertMutable(); err != nil {
		return err
	}
	if err := graph.ValidateIdentifier("node", node); err != nil {
		return err
	}
	b.writes[node] = struct{}{}
	b.ops = append(b.ops, graph.RawOp{Kind: graph.OpNodeAdd, Node: node, Dot: b.nextDot()})
	return nil
}

// RemoveNode stages a NodeRemove using the observed-dots snapshot of node,
// applying the builder's DeleteWithDataPolicy to any incident edges or
// properties found in that snapshot.
func (b *PatchBuilder) RemoveNode(node string) error {
	if err := b.assertMutable(); err != nil {
		return err
	}
	if err := graph.ValidateIdentifier("node", node); err != nil {
		return err
	}
	st := b.state()

	incidentEdges := b.findIncidentEdges(st, node)
	hasProps := b.hasNodeProperties(st, node)

	if len(incidentEdges) > 0 || hasProps {
		switch b.policy {
		case PolicyReject:
			return &DeleteWithDataError{Node: node}
		case PolicyCascade:
			for _, e := range incidentEdges {
				observed := st.EdgeAlive.ObservedDots(graph.EncodeEdgeKey(e.From, e.To, e.Label))
				b.ops = append(b.ops, graph.RawOp{Kind: graph.OpEdgeRemove, From: e.From, To: e.To, Label: e.Label, ObservedDots: observed})
				b.writes[e.From] = struct{}{}
				b.writes[e.To] = struct{}{}
			}
		case PolicyWarn:
			b.logger.Warn("removing node with attached data", "node", node, "incident_edges", len(incidentEdges), "has_properties", hasProps)
		}
	}

	observed := st.NodeAlive.ObservedDots(node)
	b.reads[node] = struct{}{}
	b.writes[node] = struct{}{}
	b.ops = append(b.ops, graph.RawOp{Kind: graph.OpNodeRemove, Node: node, ObservedDots: observed})
	return nil
}

type incidentEdge struct{ From, To, Label string }

// findIncidentEdges scans the snapshot for alive edges where node is
// either endpoint, via prefix match on encoded edge keys (spec §4.4).
func (b *PatchBuilder) findIncidentEdges(st *graph.WarpState, node string) []incidentEdge {
	var out []incidentEdge
	for _, key := range st.EdgeAlive.AliveElements() {
		from, to, label, err := graph.DecodeEdgeKey(key)
		if err != nil {
			continue
		}
		if from == node || to == node {
			out = append(out, incidentEdge{From: from, To: to, Label: label})
		}
	}
	return out
}

func (b *PatchBuilder) hasNodeProperties(st *graph.WarpState, node string) bool {
	prefix := node + "\x00"
	for key := range st.Prop {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

// AddEdge stages an EdgeAdd with a freshly assigned dot.
func (b *PatchBuilder) AddEdge(from, to, label string) error {
	if err := b.assertMutable(); err != nil {
		return err
	}
	for field, v := range map[string]string{"from": from, "to": to, "label": label} {
		if err := graph.ValidateIdentifier(field, v); err != nil {
			return err
		}
	}
	b.writes[from] = struct{}{}
	b.writes[to] = struct{}{}
	b.ops = append(b.ops, graph.RawOp{Kind: graph.OpEdgeAdd, From: from, To: to, Label: label, Dot: b.nextDot()})
	return nil
}

// RemoveEdge stages an EdgeRemove using the observed-dots snapshot.
func (b *PatchBuilder) RemoveEdge(from, to, label string) error {
	if err := b.assertMutable(); err != nil {
		return err
	}
	st := b.state()
	key := graph.EncodeEdgeKey(from, to, label)
	observed := st.EdgeAlive.ObservedDots(key)
	b.reads[from] = struct{}{}
	b.reads[to] = struct{}{}
	b.ops = append(b.ops, graph.RawOp{Kind: graph.OpEdgeRemove, From: from, To: to, Label: label, ObservedDots: observed})
	return nil
}

// SetProperty stages a node PropSet. Property sets do not consume a dot;
// their EventId is derived at commit time.
func (b *PatchBuilder) SetProperty(node, key string, value any) error {
	if err := b.assertMutable(); err != nil {
		return err
	}
	if err := graph.ValidateIdentifier("node", node); err != nil {
		return err
	}
	if err := graph.ValidateIdentifier("key", key); err != nil {
		return err
	}
	b.writes[node] = struct{}{}
	b.ops = append(b.ops, graph.RawOp{Kind: graph.OpPropSet, Node: node, Key: key, Value: value})
	return nil
}

// SetEdgeProperty stages an edge PropSet, encoded on the wire with the
// \x01-prefixed node field.
func (b *PatchBuilder) SetEdgeProperty(from, to, label, key string, value any) error {
	if err := b.assertMutable(); err != nil {
		return err
	}
	st := b.state()
	if !st.EdgeAlive.IsAlive(graph.EncodeEdgeKey(from, to, label)) {
		return &graph.UnknownEdgePropertyError{From: from, To: to, Label: label}
	}
	b.writes[from] = struct{}{}
	b.writes[to] = struct{}{}
	b.ops = append(b.ops, graph.RawOp{Kind: graph.OpPropSet, Node: graph.EncodeEdgePropNodeField(from, to, label), Key: key, Value: value})
	return nil
}

// AttachContent writes data as a blob via the object store and stages a
// PropSet setting the reserved "_content" property to its OID. The blob
// OID is tracked so Commit can add a corresponding tree entry, keeping it
// reachable from the commit tree for GC purposes. It returns the content
// OID so callers can reference the same blob elsewhere (e.g. logging,
// dedup checks) without recomputing its hash.
func (b *PatchBuilder) AttachContent(ctx context.Context, node string, data []byte) (string, error) {
	if err := b.assertMutable(); err != nil {
		return "", err
	}
	if err := graph.ValidateIdentifier("node", node); err != nil {
		return "", err
	}
	if b.store == nil {
		return "", fmt.Errorf("patchbuilder: AttachContent requires a builder constructed with a non-nil store")
	}
	oid, err := b.store.WriteBlob(ctx, data)
	if err != nil {
		return "", fmt.Errorf("patchbuilder: write content blob: %w", err)
	}
	b.writes[node] = struct{}{}
	b.capturedBlobOIDs = append(b.capturedBlobOIDs, oid)
	b.ops = append(b.ops, graph.RawOp{Kind: graph.OpPropSet, Node: node, Key: graph.ContentPropertyKey, Value: oid})
	return oid, nil
}
