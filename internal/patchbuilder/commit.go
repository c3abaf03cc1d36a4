package patchbuilder

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/fxamacker/cbor/v2"

	"github.com/rohankatakam/warpgraph/internal/graph"
	"github.com/rohankatakam/warpgraph/internal/objectstore"
)

// wirePatch is the canonical CBOR-encoded form of a committed patch.
type wirePatch struct {
	Schema  int               `cbor:"schema"`
	Writer  string            `cbor:"writer"`
	Lamport uint64            `cbor:"lamport"`
	Context map[string]uint64 `cbor:"context"`
	Ops     []wireOp          `cbor:"ops"`
	Reads   []string          `cbor:"reads"`
	Writes  []string          `cbor:"writes"`
}

type wireOp struct {
	Kind         int      `cbor:"kind"`
	Node         string   `cbor:"node,omitempty"`
	Dot          string   `cbor:"dot,omitempty"`
	ObservedDots []string `cbor:"observed_dots,omitempty"`
	From         string   `cbor:"from,omitempty"`
	To           string   `cbor:"to,omitempty"`
	Label        string   `cbor:"label,omitempty"`
	Key          string   `cbor:"key,omitempty"`
	Value        any      `cbor:"value,omitempty"`
	OID          string   `cbor:"oid,omitempty"`
}

func toWireOp(op graph.RawOp) wireOp {
	w := wireOp{Kind: int(op.Kind), Node: op.Node, From: op.From, To: op.To, Label: op.Label, Key: op.Key, Value: op.Value, OID: op.OID}
	if op.Dot.WriterID != "" {
		w.Dot = op.Dot.String()
	}
	w.ObservedDots = op.ObservedDots
	return w
}

// CommitResult is returned on a successful commit.
type CommitResult struct {
	CommitSHA string
	PatchSHA  string
	Patch     *graph.Patch
}

// Commit runs the ten-step atomicity protocol described in spec §4.4:
// validate, CAS-check the writer ref, compute the commit lamport, encode
// and write the patch blob, write the commit tree (patch blob plus any
// AttachContent blobs), create the commit, and CAS-update the writer ref.
// onSuccess, if non-nil, is invoked after the ref update succeeds so the
// caller can eagerly re-materialize its cached state.
func (b *PatchBuilder) Commit(ctx context.Context, store objectstore.Store, onSuccess func(*graph.Patch, string)) (*CommitResult, error) {
	if b.committed || b.inFlight {
		return nil, &SealedBuilderError{}
	}
	b.inFlight = true
	defer func() { b.inFlight = false }()

	if len(b.ops) == 0 {
		return nil, &EmptyPatchError{}
	}

	writerRef := writerRefName(b.graphName, b.writerID)
	currentOID, hasCurrent, err := store.ReadRef(ctx, writerRef)
	if err != nil {
		return nil, fmt.Errorf("patchbuilder: read writer ref: %w", err)
	}
	if !hasCurrent {
		currentOID = ""
	}

	commitLamport := b.lamport
	if hasCurrent {
		msg, err := store.ShowCommitMessage(ctx, currentOID)
		if err == nil {
			env := objectstore.ParseCommitEnvelope(msg)
			if lamStr, ok := env["lamport"]; ok {
				if parentLamport, perr := strconv.ParseUint(lamStr, 10, 64); perr == nil && parentLamport+1 > commitLamport {
					commitLamport = parentLamport + 1
				}
			}
		}
	}

	schema := 2
	for _, op := range b.ops {
		if op.Kind == graph.OpPropSet && graph.IsEdgePropKey(op.Node) {
			schema = 3
			break
		}
	}

	reads := sortedKeys(b.reads)
	writes := sortedKeys(b.writes)

	wp := wirePatch{
		Schema:  schema,
		Writer:  b.writerID,
		Lamport: commitLamport,
		Context: map[string]uint64(b.vv),
		Reads:   reads,
		Writes:  writes,
	}
	for _, op := range b.ops {
		wp.Ops = append(wp.Ops, toWireOp(op))
	}

	opts := cbor.CoreDetEncOptions()
	encMode, err := opts.EncMode()
	if err != nil {
		return nil, err
	}
	patchBytes, err := encMode.Marshal(wp)
	if err != nil {
		return nil, fmt.Errorf("patchbuilder: encode patch: %w", err)
	}

	patchOID, err := store.WriteBlob(ctx, patchBytes)
	if err != nil {
		return nil, fmt.Errorf("patchbuilder: write patch blob: %w", err)
	}

	entries := []objectstore.TreeEntry{{OID: patchOID, Path: "patch.cbor"}}
	for i, oid := range b.capturedBlobOIDs {
		entries = append(entries, objectstore.TreeEntry{OID: oid, Path: fmt.Sprintf("content/%d-%s", i, oid)})
	}
	treeOID, err := store.WriteTree(ctx, entries)
	if err != nil {
		return nil, fmt.Errorf("patchbuilder: write tree: %w", err)
	}

	message := fmt.Sprintf("graph=%s\nwriter=%s\nlamport=%d\npatch-oid=%s\nschema=%d",
		b.graphName, b.writerID, commitLamport, patchOID, schema)

	var parents []string
	if hasCurrent {
		parents = []string{currentOID}
	}
	commitSHA, err := store.CommitWithTree(ctx, objectstore.CommitSpec{TreeOID: treeOID, Parents: parents, Message: message})
	if err != nil {
		return nil, fmt.Errorf("patchbuilder: create commit: %w", err)
	}

	if err := store.CASUpdateRef(ctx, writerRef, currentOID, commitSHA); err != nil {
		if err == objectstore.ErrRefConflict {
			actual, _, _ := store.ReadRef(ctx, writerRef)
			return nil, &WriterCASConflictError{ExpectedSHA: currentOID, ActualSHA: actual}
		}
		return nil, fmt.Errorf("patchbuilder: update writer ref: %w", err)
	}

	b.committed = true

	patch := &graph.Patch{
		Schema:  schema,
		Writer:  b.writerID,
		Lamport: commitLamport,
		Context: b.vv.Clone(),
		Ops:     b.ops,
		Reads:   reads,
		Writes:  writes,
	}

	if onSuccess != nil {
		onSuccess(patch, patchOID)
	}

	return &CommitResult{CommitSHA: commitSHA, PatchSHA: patchOID, Patch: patch}, nil
}

// DecodePatch reverses the canonical CBOR encoding Commit writes, for
// callers (internal/engine) that replay a writer's chain of committed
// patches back into a graph.Patch.
func DecodePatch(data []byte) (*graph.Patch, error) {
	var wp wirePatch
	if err := cbor.Unmarshal(data, &wp); err != nil {
		return nil, fmt.Errorf("patchbuilder: decode patch: %w", err)
	}
	patch := &graph.Patch{
		Schema:  wp.Schema,
		Writer:  wp.Writer,
		Lamport: wp.Lamport,
		Context: graph.VersionVector(wp.Context),
		Reads:   wp.Reads,
		Writes:  wp.Writes,
	}
	for _, w := range wp.Ops {
		patch.Ops = append(patch.Ops, fromWireOp(w))
	}
	return patch, nil
}

func fromWireOp(w wireOp) graph.RawOp {
	op := graph.RawOp{Kind: graph.OpKind(w.Kind), Node: w.Node, From: w.From, To: w.To, Label: w.Label, Key: w.Key, Value: w.Value, OID: w.OID, ObservedDots: w.ObservedDots}
	if w.Dot != "" {
		op.Dot, _ = graph.ParseDot(w.Dot)
	}
	return op
}

func writerRefName(graphName, writerID string) string {
	return "refs/" + graphName + "/writers/" + writerID
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
