package graph

/*
	This package exposes generic graph algorithms over anything with a graph
	representation: control-flow graphs, call graphs, collapsed loop nests.

	A graph is described only by its edge relation and by a key-value map
	factory for the node type. Algorithms never need the full node set up front,
	they discover nodes from the start nodes they are given.
*/

type Mapper[K any] interface {
	Get(key K) (any, bool)
	Set(key K, value any)
}

type mapFactory[K any] func() Mapper[K]
type edgesOf[T any] func(node T) []T

type Graph[T any] struct {
	mapFactory  mapFactory[T]
	edgesOf     edgesOf[T]
	cachedEdges Mapper[T]
}

// Edges returns the successors of a node. Results are cached, so the edge
// relation must not change during the lifetime of the graph value.
func (G Graph[T]) Edges(node T) []T {
	if cached, found := G.cachedEdges.Get(node); found {
		return cached.([]T)
	}

	es := G.edgesOf(node)
	G.cachedEdges.Set(node, es)
	return es
}

func Of[T any](mapFactory mapFactory[T], edgesOf edgesOf[T]) Graph[T] {
	return Graph[T]{
		mapFactory,
		edgesOf,
		mapFactory(),
	}
}

// Mapper implementation using Go's builtin maps
type mapMapper[K comparable] map[K]any

func (m mapMapper[K]) Get(key K) (any, bool) {
	value, ok := m[key]
	return value, ok
}

func (m mapMapper[K]) Set(key K, value any) {
	m[key] = value
}

func OfHashable[K comparable](edgesOf edgesOf[K]) Graph[K] {
	return Of(func() Mapper[K] { return mapMapper[K]{} }, edgesOf)
}

// Reversed returns the graph with every edge flipped, restricted to the nodes
// reachable from starts in G.
func (G Graph[T]) Reversed(starts ...T) Graph[T] {
	preds := G.mapFactory()
	G.BFSV(func(node T) bool {
		for _, succ := range G.Edges(node) {
			var ps []T
			if itf, found := preds.Get(succ); found {
				ps = itf.([]T)
			}
			preds.Set(succ, append(ps, node))
		}
		return false
	}, starts...)

	return Of(G.mapFactory, func(node T) []T {
		if itf, found := preds.Get(node); found {
			return itf.([]T)
		}
		return nil
	})
}
