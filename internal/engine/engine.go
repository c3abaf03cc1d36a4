// Package engine wires internal/patchbuilder, internal/objectstore,
// internal/graph, and internal/view into the load/commit/sync lifecycle
// cmd/warpgraph drives: replaying a graph's CRDT state from committed
// patches, handing out a PatchBuilder against that state, and keeping the
// materialized bitmap index's own commit ref current (spec §4.4, §4.8,
// §5's "frontier map writer -> head SHA is the sync unit").
package engine

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rohankatakam/warpgraph/internal/graph"
	"github.com/rohankatakam/warpgraph/internal/index"
	"github.com/rohankatakam/warpgraph/internal/logging"
	"github.com/rohankatakam/warpgraph/internal/objectstore"
	"github.com/rohankatakam/warpgraph/internal/patchbuilder"
	"github.com/rohankatakam/warpgraph/internal/view"
)

// Engine owns one graph's object store handle and materialized-view
// service.
type Engine struct {
	Store     objectstore.Store
	GraphName string
	View      *view.MaterializedViewService
	Policy    patchbuilder.DeleteWithDataPolicy
	Logger    *logging.Logger
}

// New returns an Engine for graphName against store, whose readers use an
// LRU of readerCacheSize shards per kind.
func New(store objectstore.Store, graphName string, readerCacheSize int, policy patchbuilder.DeleteWithDataPolicy, logger *logging.Logger) *Engine {
	if logger == nil {
		logger, _ = logging.NewLogger(logging.DebugConfig())
	}
	return &Engine{
		Store:     store,
		GraphName: graphName,
		View:      view.New(readerCacheSize),
		Policy:    policy,
		Logger:    logger,
	}
}

func writerRefName(graphName, writerID string) string {
	return "refs/" + graphName + "/writers/" + writerID
}

func indexRefName(graphName string) string {
	return "refs/" + graphName + "/index"
}

// LoadState replays every committed patch reachable from writerIDs' ref
// heads into a fresh WarpState. Patches within one writer's chain apply
// oldest-first; across writers, application order does not matter (CRDT
// convergence, spec §3).
func (e *Engine) LoadState(ctx context.Context, writerIDs []string) (*graph.WarpState, error) {
	reducer := graph.NewJoinReducer()
	state := graph.NewWarpState()

	for _, writerID := range writerIDs {
		head, ok, err := e.Store.ReadRef(ctx, writerRefName(e.GraphName, writerID))
		if err != nil {
			return nil, fmt.Errorf("engine: read writer ref %s: %w", writerID, err)
		}
		if !ok {
			continue
		}
		chain, err := e.commitChain(ctx, head)
		if err != nil {
			return nil, err
		}
		for _, commitSHA := range chain {
			patch, patchSHA, err := e.readCommitPatch(ctx, commitSHA)
			if err != nil {
				return nil, err
			}
			if _, err := reducer.ApplyFast(state, patch, patchSHA); err != nil {
				return nil, fmt.Errorf("engine: apply patch %s: %w", patchSHA, err)
			}
		}
	}
	return state, nil
}

// commitChain walks parents from head back to the chain's root, returning
// commit SHAs oldest-first. A writer's own chain is always linear (spec
// §5), so only the first parent is followed.
func (e *Engine) commitChain(ctx context.Context, head string) ([]string, error) {
	var chain []string
	cur := head
	for cur != "" {
		chain = append(chain, cur)
		parents, err := e.Store.ReadCommitParents(ctx, cur)
		if err != nil {
			return nil, fmt.Errorf("engine: read commit parents %s: %w", cur, err)
		}
		if len(parents) == 0 {
			break
		}
		cur = parents[0]
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

func (e *Engine) readCommitPatch(ctx context.Context, commitSHA string) (*graph.Patch, string, error) {
	paths, err := e.Store.ReadTreeOIDs(ctx, commitSHA)
	if err != nil {
		return nil, "", fmt.Errorf("engine: read commit tree %s: %w", commitSHA, err)
	}
	patchOID, ok := paths["patch.cbor"]
	if !ok {
		return nil, "", fmt.Errorf("engine: commit %s has no patch.cbor entry", commitSHA)
	}
	data, err := e.Store.ReadBlob(ctx, patchOID)
	if err != nil {
		return nil, "", fmt.Errorf("engine: read patch blob %s: %w", patchOID, err)
	}
	patch, err := patchbuilder.DecodePatch(data)
	if err != nil {
		return nil, "", err
	}
	return patch, patchOID, nil
}

func (e *Engine) lastLamport(ctx context.Context, writerID string) (uint64, error) {
	head, ok, err := e.Store.ReadRef(ctx, writerRefName(e.GraphName, writerID))
	if err != nil {
		return 0, fmt.Errorf("engine: read writer ref %s: %w", writerID, err)
	}
	if !ok {
		return 0, nil
	}
	msg, err := e.Store.ShowCommitMessage(ctx, head)
	if err != nil {
		return 0, fmt.Errorf("engine: read commit message %s: %w", head, err)
	}
	env := objectstore.ParseCommitEnvelope(msg)
	lamStr, ok := env["lamport"]
	if !ok {
		return 0, nil
	}
	lamport, err := strconv.ParseUint(lamStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("engine: malformed lamport in commit %s: %w", head, err)
	}
	return lamport, nil
}

// NewBuilder loads the joined state of writerIDs and returns a
// PatchBuilder for writerID ready to stage ops against it, along with the
// state it snapshots (callers that need to inspect the graph before
// staging ops can reuse it without a second replay).
func (e *Engine) NewBuilder(ctx context.Context, writerID string, writerIDs []string) (*patchbuilder.PatchBuilder, *graph.WarpState, error) {
	state, err := e.LoadState(ctx, writerIDs)
	if err != nil {
		return nil, nil, err
	}
	lamportBase, err := e.lastLamport(ctx, writerID)
	if err != nil {
		return nil, nil, err
	}
	vv := state.ObservedFrontier.Clone()
	snapshotFn := func() *graph.WarpState { return state }
	b := patchbuilder.New(e.GraphName, writerID, vv, lamportBase, snapshotFn, e.Policy, e.Logger, e.Store)
	return b, state, nil
}

// SyncResult reports what a sync produced: a full rebuild the first time a
// graph is synced, or an incremental update applied against the previous
// sync's index thereafter.
type SyncResult struct {
	IndexCommitSHA string
	Receipt        index.Receipt
	Incremental    bool
}

func watermarkKey(writerID string) string { return "watermark_" + writerID }

// pendingPatch is one not-yet-indexed patch found past a writer's recorded
// sync watermark.
type pendingPatch struct {
	patch *graph.Patch
	sha   string
}

// loadStateSince replays, per writer, only the patches at or below
// watermarks[writerID] into a fresh WarpState via the cheap ApplyFast path,
// then returns that base state alongside every patch strictly past its
// writer's watermark - the ones Sync's incremental path must still fold in
// via ApplyWithDiff to produce a PatchDiff. Order across writers does not
// matter (CRDT join is commutative, spec §3); order within one writer's
// chain is preserved oldest-first.
func (e *Engine) loadStateSince(ctx context.Context, writerIDs []string, watermarks map[string]uint64) (*graph.WarpState, []pendingPatch, error) {
	reducer := graph.NewJoinReducer()
	state := graph.NewWarpState()
	var pending []pendingPatch

	for _, writerID := range writerIDs {
		head, ok, err := e.Store.ReadRef(ctx, writerRefName(e.GraphName, writerID))
		if err != nil {
			return nil, nil, fmt.Errorf("engine: read writer ref %s: %w", writerID, err)
		}
		if !ok {
			continue
		}
		chain, err := e.commitChain(ctx, head)
		if err != nil {
			return nil, nil, err
		}
		watermark := watermarks[writerID]
		for _, commitSHA := range chain {
			patch, patchSHA, err := e.readCommitPatch(ctx, commitSHA)
			if err != nil {
				return nil, nil, err
			}
			if patch.Lamport <= watermark {
				if _, err := reducer.ApplyFast(state, patch, patchSHA); err != nil {
					return nil, nil, fmt.Errorf("engine: apply patch %s: %w", patchSHA, err)
				}
				continue
			}
			pending = append(pending, pendingPatch{patch: patch, sha: patchSHA})
		}
	}
	return state, pending, nil
}

func mergeDiff(dst, src *graph.PatchDiff) {
	dst.NodesAdded = append(dst.NodesAdded, src.NodesAdded...)
	dst.NodesRemoved = append(dst.NodesRemoved, src.NodesRemoved...)
	dst.EdgesAdded = append(dst.EdgesAdded, src.EdgesAdded...)
	dst.EdgesRemoved = append(dst.EdgesRemoved, src.EdgesRemoved...)
	dst.PropsChanged = append(dst.PropsChanged, src.PropsChanged...)
}

// Sync brings the graph's materialized bitmap index up to date with
// writerIDs' current committed patches. The first sync for a graph does a
// full rebuild (spec §4.8's full-build path: internal/view.Build). Every
// later sync instead loads the previous sync's BuiltIndex back from its
// commit tree and folds in only the patches committed since, via the
// documented incremental pipeline - graph.JoinReducer.ApplyWithDiff,
// index.IncrementalIndexUpdater.ComputeDirtyShards/ApplyToBuilt, and
// view.MaterializedViewService.ApplyDiff - rewriting only the shards that
// actually changed instead of every shard in the graph.
func (e *Engine) Sync(ctx context.Context, writerIDs []string) (*SyncResult, error) {
	ref := indexRefName(e.GraphName)
	currentOID, hasCurrent, err := e.Store.ReadRef(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("engine: read index ref: %w", err)
	}

	if !hasCurrent {
		return e.fullSync(ctx, writerIDs, "")
	}

	prevMsg, err := e.Store.ShowCommitMessage(ctx, currentOID)
	if err != nil {
		return nil, fmt.Errorf("engine: read index commit message %s: %w", currentOID, err)
	}
	env := objectstore.ParseCommitEnvelope(prevMsg)
	watermarks := make(map[string]uint64, len(writerIDs))
	for _, writerID := range writerIDs {
		if v, ok := env[watermarkKey(writerID)]; ok {
			if lamport, err := strconv.ParseUint(v, 10, 64); err == nil {
				watermarks[writerID] = lamport
			}
		}
	}

	state, pending, err := e.loadStateSince(ctx, writerIDs, watermarks)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		idx, _, err := e.View.LoadBuiltIndex(ctx, e.Store, currentOID)
		if err != nil {
			return nil, err
		}
		return &SyncResult{IndexCommitSHA: currentOID, Receipt: idx.Receipt, Incremental: true}, nil
	}

	idx, prevTreeOIDs, err := e.View.LoadBuiltIndex(ctx, e.Store, currentOID)
	if err != nil {
		return nil, err
	}

	reducer := graph.NewJoinReducer()
	diff := &graph.PatchDiff{}
	newWatermarks := make(map[string]uint64, len(watermarks))
	for k, v := range watermarks {
		newWatermarks[k] = v
	}
	for _, pp := range pending {
		var patchDiff *graph.PatchDiff
		state, patchDiff, err = reducer.ApplyWithDiff(state, pp.patch, pp.sha)
		if err != nil {
			return nil, fmt.Errorf("engine: apply patch %s: %w", pp.sha, err)
		}
		mergeDiff(diff, patchDiff)
		if pp.patch.Lamport > newWatermarks[pp.patch.Writer] {
			newWatermarks[pp.patch.Writer] = pp.patch.Lamport
		}
	}

	treeOID, err := e.View.ApplyDiff(ctx, e.Store, idx, state, diff, prevTreeOIDs)
	if err != nil {
		return nil, fmt.Errorf("engine: apply incremental diff: %w", err)
	}

	message := e.indexCommitMessage(idx.Receipt, newWatermarks)
	commitSHA, err := e.Store.CommitWithTree(ctx, objectstore.CommitSpec{TreeOID: treeOID, Parents: []string{currentOID}, Message: message})
	if err != nil {
		return nil, fmt.Errorf("engine: commit index tree: %w", err)
	}
	if err := e.Store.CASUpdateRef(ctx, ref, currentOID, commitSHA); err != nil {
		return nil, fmt.Errorf("engine: update index ref: %w", err)
	}
	return &SyncResult{IndexCommitSHA: commitSHA, Receipt: idx.Receipt, Incremental: true}, nil
}

// fullSync rebuilds the materialized bitmap index from scratch - the path
// taken the first time a graph is synced, when there is no previous index
// commit to load and apply a diff against.
func (e *Engine) fullSync(ctx context.Context, writerIDs []string, currentOID string) (*SyncResult, error) {
	state, err := e.LoadState(ctx, writerIDs)
	if err != nil {
		return nil, err
	}
	built, err := e.View.Build(state)
	if err != nil {
		return nil, fmt.Errorf("engine: build index: %w", err)
	}
	treeOID, err := e.View.PersistIndexTree(ctx, e.Store, built)
	if err != nil {
		return nil, fmt.Errorf("engine: persist index tree: %w", err)
	}

	watermarks := make(map[string]uint64, len(writerIDs))
	for _, writerID := range writerIDs {
		lamport, err := e.lastLamport(ctx, writerID)
		if err != nil {
			return nil, err
		}
		watermarks[writerID] = lamport
	}

	ref := indexRefName(e.GraphName)
	var parents []string
	if currentOID != "" {
		parents = []string{currentOID}
	}
	message := e.indexCommitMessage(built.Receipt, watermarks)
	commitSHA, err := e.Store.CommitWithTree(ctx, objectstore.CommitSpec{TreeOID: treeOID, Parents: parents, Message: message})
	if err != nil {
		return nil, fmt.Errorf("engine: commit index tree: %w", err)
	}
	if err := e.Store.CASUpdateRef(ctx, ref, currentOID, commitSHA); err != nil {
		return nil, fmt.Errorf("engine: update index ref: %w", err)
	}
	return &SyncResult{IndexCommitSHA: commitSHA, Receipt: built.Receipt}, nil
}

func (e *Engine) indexCommitMessage(receipt index.Receipt, watermarks map[string]uint64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "graph=%s\nnodes=%d\nedges=%d\n", e.GraphName, receipt.NodeCount, receipt.EdgeCount)
	writerIDs := make([]string, 0, len(watermarks))
	for writerID := range watermarks {
		writerIDs = append(writerIDs, writerID)
	}
	sort.Strings(writerIDs)
	for _, writerID := range writerIDs {
		fmt.Fprintf(&b, "%s=%d\n", watermarkKey(writerID), watermarks[writerID])
	}
	return b.String()
}

// LoadReader resolves the graph's current index commit and returns a
// ready-to-query LogicalIndexReader. Callers should run Sync at least once
// before calling this.
func (e *Engine) LoadReader(ctx context.Context) (*index.LogicalIndexReader, error) {
	ref := indexRefName(e.GraphName)
	commitSHA, ok, err := e.Store.ReadRef(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("engine: read index ref: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("engine: graph %q has no materialized index yet; run sync first", e.GraphName)
	}
	return e.View.LoadFromOIDs(ctx, e.Store, commitSHA)
}
