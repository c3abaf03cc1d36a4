package graph

import (
	"sort"

	"github.com/fxamacker/cbor/v2"
)

// WarpState is the materialized CRDT state: node/edge existence as
// OR-Sets, properties as LWW registers, the observed causal frontier, and
// the most recent birth EventId of every edge (used to filter stale edge
// properties at query time).
type WarpState struct {
	NodeAlive        *ORSet[string]
	EdgeAlive        *ORSet[EdgeKey]
	Prop             map[string]LWWRegister // PropKey -> register
	ObservedFrontier VersionVector
	EdgeBirthEvent   map[EdgeKey]EventId
}

// NewWarpState returns an empty state.
func NewWarpState() *WarpState {
	return &WarpState{
		NodeAlive:        NewORSet[string](),
		EdgeAlive:        NewORSet[EdgeKey](),
		Prop:             make(map[string]LWWRegister),
		ObservedFrontier: NewVersionVector(),
		EdgeBirthEvent:   make(map[EdgeKey]EventId),
	}
}

// Clone returns a deep, independent copy suitable for snapshotting before
// a PatchBuilder reads from it or before a reader iterates over it.
func (s *WarpState) Clone() *WarpState {
	out := &WarpState{
		NodeAlive:        s.NodeAlive.Clone(),
		EdgeAlive:        s.EdgeAlive.Clone(),
		Prop:             make(map[string]LWWRegister, len(s.Prop)),
		ObservedFrontier: s.ObservedFrontier.Clone(),
		EdgeBirthEvent:   make(map[EdgeKey]EventId, len(s.EdgeBirthEvent)),
	}
	for k, v := range s.Prop {
		out.Prop[k] = v
	}
	for k, v := range s.EdgeBirthEvent {
		out.EdgeBirthEvent[k] = v
	}
	return out
}

// IsNodeVisible reports whether a node is alive (spec §3 "visible").
func (s *WarpState) IsNodeVisible(node string) bool {
	return s.NodeAlive.IsAlive(node)
}

// IsEdgeVisible reports whether an edge is alive in its OR-Set AND both
// endpoints are currently alive.
func (s *WarpState) IsEdgeVisible(from, to, label string) bool {
	key := EncodeEdgeKey(from, to, label)
	if !s.EdgeAlive.IsAlive(key) {
		return false
	}
	return s.NodeAlive.IsAlive(from) && s.NodeAlive.IsAlive(to)
}

// IsNodePropertyVisible reports whether a node property is visible: its
// owning node must be alive.
func (s *WarpState) IsNodePropertyVisible(node string) bool {
	return s.IsNodeVisible(node)
}

// IsEdgePropertyVisible reports whether an edge property is visible: the
// owning edge must be visible and the property's EventId must not precede
// the edge's current birth EventId (a stale property from before the
// edge's most recent (re)add is filtered out).
func (s *WarpState) IsEdgePropertyVisible(from, to, label string, propEvent EventId) bool {
	if !s.IsEdgeVisible(from, to, label) {
		return false
	}
	birth, ok := s.EdgeBirthEvent[EncodeEdgeKey(from, to, label)]
	if !ok {
		return true
	}
	return !propEvent.Less(birth)
}

// GetNodeProperty returns the live value of a node property, if visible.
func (s *WarpState) GetNodeProperty(node, key string) (any, bool) {
	if !s.IsNodePropertyVisible(node) {
		return nil, false
	}
	reg, ok := s.Prop[EncodePropKey(node, key)]
	if !ok {
		return nil, false
	}
	return reg.Value, true
}

// GetEdgeProperty returns the live value of an edge property, if visible.
func (s *WarpState) GetEdgeProperty(from, to, label, key string) (any, bool) {
	reg, ok := s.Prop[EncodeEdgePropKey(from, to, label, key)]
	if !ok {
		return nil, false
	}
	if !s.IsEdgePropertyVisible(from, to, label, reg.EventID) {
		return nil, false
	}
	return reg.Value, true
}

// Join computes the CRDT state-state join of s and other: union of both
// OR-Sets, componentwise LWW-max of every property register, merged
// frontiers, and the later of the two birth EventIds per edge.
// join(a,b) = join(b,a) and join(a,a) = a.
func (s *WarpState) Join(other *WarpState) *WarpState {
	out := &WarpState{
		NodeAlive:        s.NodeAlive.Join(other.NodeAlive),
		EdgeAlive:        s.EdgeAlive.Join(other.EdgeAlive),
		Prop:             make(map[string]LWWRegister, len(s.Prop)+len(other.Prop)),
		ObservedFrontier: s.ObservedFrontier.Clone().Merge(other.ObservedFrontier),
		EdgeBirthEvent:   make(map[EdgeKey]EventId, len(s.EdgeBirthEvent)+len(other.EdgeBirthEvent)),
	}
	for k, v := range s.Prop {
		out.Prop[k] = v
	}
	for k, v := range other.Prop {
		out.Prop[k] = LWWMax(out.Prop[k], v.EventID, v.Value)
	}
	for k, v := range s.EdgeBirthEvent {
		out.EdgeBirthEvent[k] = v
	}
	for k, v := range other.EdgeBirthEvent {
		if cur, ok := out.EdgeBirthEvent[k]; !ok || cur.Less(v) {
			out.EdgeBirthEvent[k] = v
		}
	}
	return out
}

// Compact drops ORSet tombstone entries no writer below frontier could
// still reference (spec §9 Open Question on compaction semantics).
func (s *WarpState) Compact(frontier VersionVector) {
	s.NodeAlive.Compact(frontier)
	s.EdgeAlive.Compact(frontier)
}

// visibleNodeProp is the canonical, sorted view of one node property used
// by Serialize.
type visibleNodeProp struct {
	Node  string `cbor:"node"`
	Key   string `cbor:"key"`
	Value any    `cbor:"value"`
}

type visibleEdge struct {
	From  string `cbor:"from"`
	To    string `cbor:"to"`
	Label string `cbor:"label"`
}

type visibleEdgeProp struct {
	From  string `cbor:"from"`
	To    string `cbor:"to"`
	Label string `cbor:"label"`
	Key   string `cbor:"key"`
	Value any    `cbor:"value"`
}

// visibleProjection is the canonical projection of a WarpState used for
// determinism hashing and round-trip tests (spec §3, §8): nodes sorted,
// edges sorted by (from,to,label), properties sorted by (node,key).
type visibleProjection struct {
	Nodes      []string          `cbor:"nodes"`
	Edges      []visibleEdge     `cbor:"edges"`
	NodeProps  []visibleNodeProp `cbor:"node_props"`
	EdgeProps  []visibleEdgeProp `cbor:"edge_props"`
}

// VisibleProjection builds the canonical, order-independent projection of
// the current visible graph: sorted nodes, sorted visible edges, and
// sorted visible properties. Hashing this projection's canonical CBOR
// encoding is invariant under patch delivery order (spec §3 invariant).
func (s *WarpState) VisibleProjection() ([]byte, error) {
	proj := visibleProjection{}

	nodes := s.NodeAlive.AliveElements()
	sort.Strings(nodes)
	proj.Nodes = nodes

	edges := s.EdgeAlive.AliveElements()
	var visEdges []visibleEdge
	for _, ek := range edges {
		from, to, label, err := DecodeEdgeKey(ek)
		if err != nil {
			continue
		}
		if s.NodeAlive.IsAlive(from) && s.NodeAlive.IsAlive(to) {
			visEdges = append(visEdges, visibleEdge{From: from, To: to, Label: label})
		}
	}
	sort.Slice(visEdges, func(i, j int) bool {
		a, b := visEdges[i], visEdges[j]
		if a.From != b.From {
			return a.From < b.From
		}
		if a.To != b.To {
			return a.To < b.To
		}
		return a.Label < b.Label
	})
	proj.Edges = visEdges

	var nodeProps []visibleNodeProp
	var edgeProps []visibleEdgeProp
	for propKey, reg := range s.Prop {
		if IsEdgePropKey(propKey) {
			from, to, label, key, err := decodeEdgePropFullKey(propKey)
			if err != nil {
				continue
			}
			if s.IsEdgePropertyVisible(from, to, label, reg.EventID) {
				edgeProps = append(edgeProps, visibleEdgeProp{From: from, To: to, Label: label, Key: key, Value: reg.Value})
			}
			continue
		}
		node, key, err := decodeNodePropFullKey(propKey)
		if err != nil {
			continue
		}
		if s.IsNodePropertyVisible(node) {
			nodeProps = append(nodeProps, visibleNodeProp{Node: node, Key: key, Value: reg.Value})
		}
	}
	sort.Slice(nodeProps, func(i, j int) bool {
		a, b := nodeProps[i], nodeProps[j]
		if a.Node != b.Node {
			return a.Node < b.Node
		}
		return a.Key < b.Key
	})
	sort.Slice(edgeProps, func(i, j int) bool {
		a, b := edgeProps[i], edgeProps[j]
		if a.From != b.From {
			return a.From < b.From
		}
		if a.To != b.To {
			return a.To < b.To
		}
		if a.Label != b.Label {
			return a.Label < b.Label
		}
		return a.Key < b.Key
	})
	proj.NodeProps = nodeProps
	proj.EdgeProps = edgeProps

	opts := cbor.CoreDetEncOptions()
	mode, err := opts.EncMode()
	if err != nil {
		return nil, err
	}
	return mode.Marshal(proj)
}

func decodeNodePropFullKey(k string) (node, key string, err error) {
	parts := splitOnce(k, fieldSep)
	if len(parts) != 2 {
		return "", "", errMalformedPropKey(k)
	}
	return parts[0], parts[1], nil
}

func decodeEdgePropFullKey(k string) (from, to, label, key string, err error) {
	lastSep := -1
	for i := len(k) - 1; i >= 0; i-- {
		if k[i] == fieldSep {
			lastSep = i
			break
		}
	}
	if lastSep < 0 {
		return "", "", "", "", errMalformedPropKey(k)
	}
	nodeField, key := k[:lastSep], k[lastSep+1:]
	from, to, label, err = DecodeEdgePropNodeField(nodeField)
	return from, to, label, key, err
}

func splitOnce(s string, sep byte) []string {
	idx := -1
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			idx = i
			break
		}
	}
	if idx < 0 {
		return []string{s}
	}
	return []string{s[:idx], s[idx+1:]}
}

type malformedPropKeyError string

func (e malformedPropKeyError) Error() string { return "graph: malformed property key: " + string(e) }

func errMalformedPropKey(k string) error { return malformedPropKeyError(k) }
