package graph

import W "github.com/jopdesign/wcet/utils/worklist"

type traversalFunc[T any] func(node T) (stop bool)

// Performs a breadth-first search from the provided start nodes, calling the
// provided function (f) for every reachable node, stopping early if f returns
// true.
// Returns whether the search stopped early (as a result of f returning true).
func (G Graph[T]) BFSV(f traversalFunc[T], starts ...T) bool {
	visited := G.mapFactory()
	for _, start := range starts {
		visited.Set(start, true)
	}

	done := false
	W.StartV(starts, func(node T, add func(T)) {
		if done || f(node) {
			done = true
			return
		}

		for _, next := range G.Edges(node) {
			if _, found := visited.Get(next); !found {
				visited.Set(next, true)
				add(next)
			}
		}
	})

	return done
}

// Reachable lists the nodes reachable from starts in breadth-first order.
func (G Graph[T]) Reachable(starts ...T) (nodes []T) {
	G.BFSV(func(node T) bool {
		nodes = append(nodes, node)
		return false
	}, starts...)
	return
}

// Postorder lists the nodes reachable from root in depth-first post-order.
// Successors are visited in the order returned by Edges.
func (G Graph[T]) Postorder(root T) (order []T) {
	seen := G.mapFactory()

	var dfs func(T)
	dfs = func(node T) {
		seen.Set(node, true)
		for _, succ := range G.Edges(node) {
			if _, found := seen.Get(succ); !found {
				dfs(succ)
			}
		}
		order = append(order, node)
	}

	dfs(root)
	return
}
