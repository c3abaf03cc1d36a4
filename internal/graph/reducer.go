package graph

// TickOutcome is the per-op result recorded by ApplyWithReceipt.
type TickOutcome string

const (
	OutcomeApplied    TickOutcome = "applied"
	OutcomeRedundant  TickOutcome = "redundant"
	OutcomeSuperseded TickOutcome = "superseded"
)

// TickReceipt records, for every op in a patch, what actually happened
// when it was applied. OpType names are remapped for receipt output:
// NodeRemove -> NodeTombstone, EdgeRemove -> EdgeTombstone.
type TickReceipt struct {
	OpOutcomes []OpOutcome
}

// OpOutcome is one entry of a TickReceipt.
type OpOutcome struct {
	OpIndex int
	OpType  string
	Outcome TickOutcome
	Reason  string // set for "superseded": the winning (writer,lamport)
}

// PatchDiff captures alive-ness transitions and property value changes
// produced while applying a single patch. It drives IncrementalIndexUpdater.
type PatchDiff struct {
	NodesAdded   []string
	NodesRemoved []string
	EdgesAdded   []EdgeAddedDiff
	EdgesRemoved []EdgeRemovedDiff
	PropsChanged []PropChangedDiff
}

type EdgeAddedDiff struct {
	From, To, Label string
}

type EdgeRemovedDiff struct {
	From, To, Label string
}

type PropChangedDiff struct {
	// Node set for node properties; From/To/Label set for edge properties.
	Node            string
	From, To, Label string
	Key             string
	Value           any
	IsEdgeProp      bool
}

// Patch is an immutable, per-writer batch of ops with a causal context
// (spec §3).
type Patch struct {
	Schema   int // 2 or 3
	Writer   string
	Lamport  uint64
	Context  VersionVector
	Ops      []RawOp
	Reads    []string
	Writes   []string
}

// JoinReducer applies patches to a WarpState and computes CRDT state-state
// joins. It is pure: no module-level mutable state (spec §9).
type JoinReducer struct{}

// NewJoinReducer returns a reducer. It carries no state of its own.
func NewJoinReducer() *JoinReducer { return &JoinReducer{} }

// ApplyFast mutates state in place by applying every op of patch, with no
// receipt or diff bookkeeping.
func (r *JoinReducer) ApplyFast(state *WarpState, patch *Patch, patchSHA string) (*WarpState, error) {
	for i, raw := range patch.Ops {
		if !IsKnownRawOp(raw.Kind) {
			continue
		}
		op, err := NormalizeRawOp(raw)
		if err != nil {
			return nil, err
		}
		eventID := EventId{Lamport: patch.Lamport, WriterID: patch.Writer, PatchSHA: patchSHA, OpIndex: uint32(i)}
		if err := r.applyOp(state, op, eventID); err != nil {
			return nil, err
		}
	}
	r.advanceFrontier(state, patch)
	return state, nil
}

// ApplyWithReceipt applies patch and additionally records a per-op
// TickReceipt describing whether each op was applied, redundant, or
// superseded.
func (r *JoinReducer) ApplyWithReceipt(state *WarpState, patch *Patch, patchSHA string) (*WarpState, *TickReceipt, error) {
	receipt := &TickReceipt{}
	for i, raw := range patch.Ops {
		if !IsKnownRawOp(raw.Kind) {
			continue
		}
		op, err := NormalizeRawOp(raw)
		if err != nil {
			return nil, nil, err
		}
		eventID := EventId{Lamport: patch.Lamport, WriterID: patch.Writer, PatchSHA: patchSHA, OpIndex: uint32(i)}
		outcome := r.computeOutcome(state, op, eventID)
		outcome.OpIndex = i
		if err := r.applyOp(state, op, eventID); err != nil {
			return nil, nil, err
		}
		receipt.OpOutcomes = append(receipt.OpOutcomes, outcome)
	}
	r.advanceFrontier(state, patch)
	return state, receipt, nil
}

// ApplyWithDiff applies patch and additionally records a PatchDiff of
// alive-ness transitions and property value changes.
func (r *JoinReducer) ApplyWithDiff(state *WarpState, patch *Patch, patchSHA string) (*WarpState, *PatchDiff, error) {
	diff := &PatchDiff{}

	// Build a reverse index dot -> element once, so NodeRemove/EdgeRemove
	// diffing is O(|observed_dots|) after a single O(total dots) pass.
	nodeDotOwner := reverseDotIndex(state.NodeAlive)
	edgeDotOwner := reverseDotIndex(state.EdgeAlive)

	for i, raw := range patch.Ops {
		if !IsKnownRawOp(raw.Kind) {
			continue
		}
		op, err := NormalizeRawOp(raw)
		if err != nil {
			return nil, nil, err
		}
		eventID := EventId{Lamport: patch.Lamport, WriterID: patch.Writer, PatchSHA: patchSHA, OpIndex: uint32(i)}

		switch op.Kind {
		case OpNodeAdd:
			wasAlive := state.NodeAlive.IsAlive(op.Node)
			if err := r.applyOp(state, op, eventID); err != nil {
				return nil, nil, err
			}
			if !wasAlive && state.NodeAlive.IsAlive(op.Node) {
				diff.NodesAdded = append(diff.NodesAdded, op.Node)
			}
		case OpNodeRemove:
			candidates := map[string]bool{}
			for _, d := range op.ObservedDots {
				if owner, ok := nodeDotOwner[d]; ok {
					candidates[owner] = true
				}
			}
			if err := r.applyOp(state, op, eventID); err != nil {
				return nil, nil, err
			}
			for node := range candidates {
				if !state.NodeAlive.IsAlive(node) {
					diff.NodesRemoved = append(diff.NodesRemoved, node)
				}
			}
		case OpEdgeAdd:
			key := EncodeEdgeKey(op.From, op.To, op.Label)
			wasAlive := state.EdgeAlive.IsAlive(key)
			if err := r.applyOp(state, op, eventID); err != nil {
				return nil, nil, err
			}
			if !wasAlive && state.EdgeAlive.IsAlive(key) {
				diff.EdgesAdded = append(diff.EdgesAdded, EdgeAddedDiff{From: op.From, To: op.To, Label: op.Label})
			}
		case OpEdgeRemove:
			candidates := map[EdgeKey]bool{}
			for _, d := range op.ObservedDots {
				if owner, ok := edgeDotOwner[d]; ok {
					candidates[owner] = true
				}
			}
			if err := r.applyOp(state, op, eventID); err != nil {
				return nil, nil, err
			}
			for key := range candidates {
				if !state.EdgeAlive.IsAlive(key) {
					from, to, label, derr := DecodeEdgeKey(key)
					if derr == nil {
						diff.EdgesRemoved = append(diff.EdgesRemoved, EdgeRemovedDiff{From: from, To: to, Label: label})
					}
				}
			}
		case OpNodePropSet:
			before, hadBefore := state.Prop[EncodePropKey(op.Node, op.Key)]
			if err := r.applyOp(state, op, eventID); err != nil {
				return nil, nil, err
			}
			after := state.Prop[EncodePropKey(op.Node, op.Key)]
			if !hadBefore || before.Value != after.Value {
				diff.PropsChanged = append(diff.PropsChanged, PropChangedDiff{Node: op.Node, Key: op.Key, Value: after.Value})
			}
		case OpEdgePropSet:
			pk := EncodeEdgePropKey(op.From, op.To, op.Label, op.Key)
			before, hadBefore := state.Prop[pk]
			if err := r.applyOp(state, op, eventID); err != nil {
				return nil, nil, err
			}
			after := state.Prop[pk]
			if !hadBefore || before.Value != after.Value {
				diff.PropsChanged = append(diff.PropsChanged, PropChangedDiff{From: op.From, To: op.To, Label: op.Label, Key: op.Key, Value: after.Value, IsEdgeProp: true})
			}
		default:
			if err := r.applyOp(state, op, eventID); err != nil {
				return nil, nil, err
			}
		}
	}

	r.advanceFrontier(state, patch)
	return state, diff, nil
}

// Reduce folds a sequence of patches into a single resulting state,
// starting from initial (or an empty state if nil).
func (r *JoinReducer) Reduce(patches []*Patch, patchSHAs []string, initial *WarpState) (*WarpState, error) {
	state := initial
	if state == nil {
		state = NewWarpState()
	}
	for i, p := range patches {
		var err error
		state, err = r.ApplyFast(state, p, patchSHAs[i])
		if err != nil {
			return nil, err
		}
	}
	return state, nil
}

// JoinStates computes the CRDT state-state join of a and b.
func (r *JoinReducer) JoinStates(a, b *WarpState) *WarpState {
	return a.Join(b)
}

func (r *JoinReducer) advanceFrontier(state *WarpState, patch *Patch) {
	state.ObservedFrontier.Merge(patch.Context)
	state.ObservedFrontier.Advance(patch.Writer, patch.Lamport)
}

func (r *JoinReducer) applyOp(state *WarpState, op CanonicalOp, eventID EventId) error {
	switch op.Kind {
	case OpNodeAdd:
		if op.Node == "" {
			return &PatchError{OpType: "NodeAdd", Field: "node", Actual: op.Node}
		}
		if op.Dot.WriterID == "" {
			return &PatchError{OpType: "NodeAdd", Field: "dot", Actual: op.Dot}
		}
		state.NodeAlive.Add(op.Node, op.Dot)

	case OpNodeRemove:
		if op.ObservedDots == nil {
			return &PatchError{OpType: "NodeRemove", Field: "observed_dots", Actual: op.ObservedDots}
		}
		state.NodeAlive.Remove(op.ObservedDots)

	case OpEdgeAdd:
		if op.From == "" || op.To == "" || op.Label == "" {
			return &PatchError{OpType: "EdgeAdd", Field: "from/to/label", Actual: op}
		}
		if op.Dot.WriterID == "" {
			return &PatchError{OpType: "EdgeAdd", Field: "dot", Actual: op.Dot}
		}
		key := EncodeEdgeKey(op.From, op.To, op.Label)
		state.EdgeAlive.Add(key, op.Dot)
		if cur, ok := state.EdgeBirthEvent[key]; !ok || cur.Less(eventID) {
			state.EdgeBirthEvent[key] = eventID
		}

	case OpEdgeRemove:
		if op.ObservedDots == nil {
			return &PatchError{OpType: "EdgeRemove", Field: "observed_dots", Actual: op.ObservedDots}
		}
		state.EdgeAlive.Remove(op.ObservedDots)

	case OpNodePropSet:
		if op.Node == "" || op.Key == "" {
			return &PatchError{OpType: "NodePropSet", Field: "node/key", Actual: op}
		}
		if IsEdgePropKey(op.Node) {
			return &PatchError{OpType: "NodePropSet", Field: "node", Actual: op.Node}
		}
		pk := EncodePropKey(op.Node, op.Key)
		state.Prop[pk] = LWWMax(state.Prop[pk], eventID, op.Value)

	case OpEdgePropSet:
		if op.From == "" || op.To == "" || op.Label == "" || op.Key == "" {
			return &PatchError{OpType: "EdgePropSet", Field: "from/to/label/key", Actual: op}
		}
		key := EncodeEdgeKey(op.From, op.To, op.Label)
		if !state.EdgeAlive.IsAlive(key) {
			return &UnknownEdgePropertyError{From: op.From, To: op.To, Label: op.Label}
		}
		pk := EncodeEdgePropKey(op.From, op.To, op.Label, op.Key)
		state.Prop[pk] = LWWMax(state.Prop[pk], eventID, op.Value)

	case OpBlobValue:
		// No state effect; provenance only (recorded in receipts).

	default:
		// Unknown op type: silently ignored (forward-compat).
	}
	return nil
}

func (r *JoinReducer) computeOutcome(state *WarpState, op CanonicalOp, eventID EventId) OpOutcome {
	switch op.Kind {
	case OpNodeAdd:
		outcome := OutcomeApplied
		if state.NodeAlive.HasDot(op.Node, op.Dot) {
			outcome = OutcomeRedundant
		}
		return OpOutcome{OpType: "NodeAdd", Outcome: outcome}

	case OpNodeRemove:
		outcome := OutcomeRedundant
		for _, d := range op.ObservedDots {
			if !state.NodeAlive.IsTombstoned(d) {
				outcome = OutcomeApplied
				break
			}
		}
		return OpOutcome{OpType: "NodeTombstone", Outcome: outcome}

	case OpEdgeAdd:
		key := EncodeEdgeKey(op.From, op.To, op.Label)
		outcome := OutcomeApplied
		if state.EdgeAlive.HasDot(key, op.Dot) {
			outcome = OutcomeRedundant
		}
		return OpOutcome{OpType: "EdgeAdd", Outcome: outcome}

	case OpEdgeRemove:
		outcome := OutcomeRedundant
		for _, d := range op.ObservedDots {
			if !state.EdgeAlive.IsTombstoned(d) {
				outcome = OutcomeApplied
				break
			}
		}
		return OpOutcome{OpType: "EdgeTombstone", Outcome: outcome}

	case OpNodePropSet:
		cur, ok := state.Prop[EncodePropKey(op.Node, op.Key)]
		return propOutcome("NodePropSet", ok, cur, eventID)

	case OpEdgePropSet:
		cur, ok := state.Prop[EncodeEdgePropKey(op.From, op.To, op.Label, op.Key)]
		return propOutcome("EdgePropSet", ok, cur, eventID)

	default:
		return OpOutcome{OpType: "Unknown", Outcome: OutcomeRedundant}
	}
}

func propOutcome(opType string, hadPrior bool, cur LWWRegister, candidate EventId) OpOutcome {
	if !hadPrior || cur.EventID.Less(candidate) {
		return OpOutcome{OpType: opType, Outcome: OutcomeApplied}
	}
	if cur.EventID == candidate {
		return OpOutcome{OpType: opType, Outcome: OutcomeRedundant}
	}
	return OpOutcome{
		OpType:  opType,
		Outcome: OutcomeSuperseded,
		Reason:  cur.EventID.WriterID + "@" + formatUint(cur.EventID.Lamport),
	}
}

func formatUint(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

func reverseDotIndex[T comparable](s *ORSet[T]) map[string]T {
	idx := make(map[string]T)
	for _, x := range s.Elements() {
		for _, d := range allDots(s, x) {
			idx[d] = x
		}
	}
	return idx
}

// allDots returns every dot ever recorded for x, alive or tombstoned.
func allDots[T comparable](s *ORSet[T], x T) []string {
	set, ok := s.entries[x]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	return out
}
