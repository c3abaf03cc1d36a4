package traversal

import "context"

// BFS walks outward from start up to maxDepth hops using provider, over
// edges with the given label (empty label means any label). Returns every
// reachable node paired with its hop distance from start; start itself is
// not included.
func BFS(ctx context.Context, provider NeighborProvider, start, label string, maxDepth int) (map[string]int, error) {
	depth := map[string]int{start: 0}
	frontier := []string{start}

	for d := 1; d <= maxDepth && len(frontier) > 0; d++ {
		var next []string
		for _, node := range frontier {
			neighbors, err := provider.Neighbors(ctx, node, label)
			if err != nil {
				return nil, err
			}
			for _, n := range neighbors {
				if _, seen := depth[n]; seen {
					continue
				}
				depth[n] = d
				next = append(next, n)
			}
		}
		frontier = next
	}

	delete(depth, start)
	return depth, nil
}
