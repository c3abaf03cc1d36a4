package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/warpgraph/internal/config"
	"github.com/rohankatakam/warpgraph/internal/index"
)

var (
	neighborLabel     string
	neighborDirection string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the materialized bitmap index",
}

var neighborsCmd = &cobra.Command{
	Use:   "neighbors <node>",
	Short: "List a node's alive neighbors",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := parseDirection(neighborDirection)
		if err != nil {
			return err
		}

		e, closeStore, err := openEngine(config.ValidationContextQuery)
		if err != nil {
			return err
		}
		defer closeStore()

		ctx := context.Background()
		reader, err := e.LoadReader(ctx)
		if err != nil {
			return fmt.Errorf("load index: %w", err)
		}

		edges, err := reader.GetEdges(ctx, args[0], dir)
		if err != nil {
			return fmt.Errorf("neighbors: %w", err)
		}
		if neighborLabel != "" {
			filtered := edges[:0]
			for _, e := range edges {
				if e.Label == neighborLabel {
					filtered = append(filtered, e)
				}
			}
			edges = filtered
		}
		if len(edges) == 0 {
			fmt.Println("(no neighbors)")
			return nil
		}
		for _, e := range edges {
			fmt.Printf("%s\t%s\n", e.Neighbor, e.Label)
		}
		return nil
	},
}

func parseDirection(s string) (index.Direction, error) {
	switch strings.ToLower(s) {
	case "", "out":
		return index.DirectionOut, nil
	case "in":
		return index.DirectionIn, nil
	default:
		return 0, fmt.Errorf("--direction must be \"out\" or \"in\", got %q", s)
	}
}

func init() {
	neighborsCmd.Flags().StringVar(&neighborLabel, "label", "", "restrict to this edge label (default: all labels)")
	neighborsCmd.Flags().StringVar(&neighborDirection, "direction", "out", `"out" or "in"`)
	queryCmd.AddCommand(neighborsCmd)
}
