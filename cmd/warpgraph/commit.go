package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/warpgraph/internal/config"
)

// rawOp is the JSON shape one line of a commit's op file takes.
type rawOp struct {
	Op    string      `json:"op"`
	Node  string      `json:"node,omitempty"`
	From  string      `json:"from,omitempty"`
	To    string      `json:"to,omitempty"`
	Label string      `json:"label,omitempty"`
	Key   string      `json:"key,omitempty"`
	Value interface{} `json:"value,omitempty"`
}

var opsFile string

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Commit a batch of ops as a single patch",
	Long: `commit reads a JSON array of ops from --file (or stdin when --file
is "-") and stages each one onto a fresh PatchBuilder seeded from the
current joined state, then commits them as a single patch against this
writer's ref.

Each op is a JSON object with an "op" field of one of:
  add_node, remove_node, add_edge, remove_edge, set_property, set_edge_property

Example file:
  [
    {"op": "add_node", "node": "alice"},
    {"op": "add_node", "node": "bob"},
    {"op": "add_edge", "from": "alice", "to": "bob", "label": "knows"},
    {"op": "set_property", "node": "alice", "key": "age", "value": 30}
  ]`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if opsFile == "" {
			return fmt.Errorf("--file is required")
		}
		ops, err := readOps(opsFile)
		if err != nil {
			return err
		}
		if len(ops) == 0 {
			return fmt.Errorf("op file %s contains no ops", opsFile)
		}

		writerIDs, err := knownWriters()
		if err != nil {
			return err
		}

		e, closeStore, err := openEngine(config.ValidationContextCommit)
		if err != nil {
			return err
		}
		defer closeStore()

		ctx := context.Background()
		b, _, err := e.NewBuilder(ctx, cfg.Writer.ID, writerIDs)
		if err != nil {
			return fmt.Errorf("load state: %w", err)
		}

		for i, op := range ops {
			if err := applyOp(b, op); err != nil {
				return fmt.Errorf("op %d (%s): %w", i, op.Op, err)
			}
		}

		result, err := b.Commit(ctx, e.Store, nil)
		if err != nil {
			return fmt.Errorf("commit: %w", err)
		}

		logger.WithFields(map[string]interface{}{
			"commit": result.CommitSHA,
			"patch":  result.PatchSHA,
			"ops":    len(ops),
		}).Info("patch committed")
		fmt.Printf("committed %d ops: commit=%s patch=%s lamport=%d\n",
			len(ops), result.CommitSHA, result.PatchSHA, result.Patch.Lamport)
		return nil
	},
}

func init() {
	commitCmd.Flags().StringVarP(&opsFile, "file", "f", "", `op file, JSON array ("-" for stdin)`)
}

func readOps(path string) ([]rawOp, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open op file: %w", err)
		}
		defer f.Close()
		r = f
	}
	var ops []rawOp
	if err := json.NewDecoder(r).Decode(&ops); err != nil {
		return nil, fmt.Errorf("decode op file: %w", err)
	}
	return ops, nil
}

func applyOp(b interface {
	AddNode(string) error
	RemoveNode(string) error
	AddEdge(string, string, string) error
	RemoveEdge(string, string, string) error
	SetProperty(string, string, any) error
	SetEdgeProperty(string, string, string, string, any) error
}, op rawOp) error {
	switch op.Op {
	case "add_node":
		return b.AddNode(op.Node)
	case "remove_node":
		return b.RemoveNode(op.Node)
	case "add_edge":
		return b.AddEdge(op.From, op.To, op.Label)
	case "remove_edge":
		return b.RemoveEdge(op.From, op.To, op.Label)
	case "set_property":
		return b.SetProperty(op.Node, op.Key, op.Value)
	case "set_edge_property":
		return b.SetEdgeProperty(op.From, op.To, op.Label, op.Key, op.Value)
	default:
		return fmt.Errorf("unknown op %q", op.Op)
	}
}
