package graph

// A DAG decomposition of a graph based on strongly connected components.
// The nodes in component i are guaranteed to only have edges to nodes in
// components with index j <= i, so iterating components in index order visits
// callees before callers.
type SCCDecomposition[T any] struct {
	Components [][]T
	comp       Mapper[T]
	Original   Graph[T]
}

// An alias for component type (in case representation changes)
type SCC = int

// Returns the index of the component the node is a part of, or -1 when the
// node was not reachable from the start nodes.
func (scc SCCDecomposition[T]) ComponentOf(node T) SCC {
	if comp, hasComp := scc.comp.Get(node); hasComp {
		return comp.(int)
	}
	return -1
}

// Cyclic reports whether the node lies on a cycle: its component has several
// members or the node has an edge to itself.
func (scc SCCDecomposition[T]) Cyclic(node T) bool {
	c := scc.ComponentOf(node)
	if c == -1 {
		return false
	}
	if len(scc.Components[c]) > 1 {
		return true
	}
	for _, succ := range scc.Original.Edges(node) {
		if scc.ComponentOf(succ) == c {
			return true
		}
	}
	return false
}

// Compute the strongly connected components of the subgraph reachable from the
// provided start nodes (Tarjan's algorithm).
func (G Graph[T]) SCC(startNodes []T) SCCDecomposition[T] {
	index, comp := G.mapFactory(), G.mapFactory()
	counter := 0
	var stack []T
	var components [][]T

	var visit func(T) int
	visit = func(node T) int {
		counter++
		low := counter
		index.Set(node, low)
		height := len(stack)
		stack = append(stack, node)

		for _, succ := range G.Edges(node) {
			if _, done := comp.Get(succ); done {
				continue
			}
			succLow := 0
			if idx, visited := index.Get(succ); visited {
				succLow = idx.(int)
			} else {
				succLow = visit(succ)
			}
			if succLow < low {
				low = succLow
			}
		}

		if idx, _ := index.Get(node); low == idx.(int) {
			members := append([]T(nil), stack[height:]...)
			stack = stack[:height]
			for _, m := range members {
				comp.Set(m, len(components))
			}
			components = append(components, members)
		}

		index.Set(node, low)
		return low
	}

	for _, node := range startNodes {
		if _, done := comp.Get(node); !done {
			visit(node)
		}
	}

	return SCCDecomposition[T]{
		Components: components,
		comp:       comp,
		Original:   G,
	}
}

