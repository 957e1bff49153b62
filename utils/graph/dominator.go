package graph

import "fmt"

// Dominators is the dominator tree of the nodes reachable from a root.
// Source: https://www.cs.rice.edu/~keith/EMBED/dom.pdf
type Dominators[T any] struct {
	order []T
	time  Mapper[T]
	idom  []int
}

func (G Graph[T]) Dominators(root T) *Dominators[T] {
	pred := G.mapFactory()
	for _, node := range G.Reachable(root) {
		for _, succ := range G.Edges(node) {
			var ps []T
			if itf, found := pred.Get(succ); found {
				ps = itf.([]T)
			}
			pred.Set(succ, append(ps, node))
		}
	}

	order := G.Postorder(root)
	time := G.mapFactory()
	for i, node := range order {
		time.Set(node, i)
	}

	n := len(order)
	idom := make([]int, n)
	for i := range idom {
		idom[i] = -1
	}
	idom[n-1] = n - 1

	D := &Dominators[T]{order, time, idom}

	for changed := true; changed; {
		changed = false

		// Process nodes in reverse post-order (except for root)
		for i := n - 2; i >= 0; i-- {
			newIdom := -1
			predsItf, _ := pred.Get(order[i])
			preds, _ := predsItf.([]T)

			for _, p := range preds {
				j := D.index(p)
				if idom[j] == -1 {
					continue
				}
				if newIdom == -1 {
					newIdom = j
				} else {
					newIdom = D.intersect(j, newIdom)
				}
			}

			if newIdom != idom[i] {
				idom[i] = newIdom
				changed = true
			}
		}
	}

	return D
}

func (D *Dominators[T]) index(node T) int {
	itf, found := D.time.Get(node)
	if !found {
		panic(fmt.Errorf("%v was not reachable when computing the dominator tree", node))
	}
	return itf.(int)
}

func (D *Dominators[T]) intersect(a, b int) int {
	for a != b {
		for a < b {
			a = D.idom[a]
		}
		for b < a {
			b = D.idom[b]
		}
	}
	return a
}

// Reachable reports whether the node was reached from the root.
func (D *Dominators[T]) Reachable(node T) bool {
	_, found := D.time.Get(node)
	return found
}

// Dominates holds when every path from the root to b passes through a.
func (D *Dominators[T]) Dominates(a, b T) bool {
	i, j := D.index(a), D.index(b)
	return D.intersect(i, j) == i
}

// Idom returns the immediate dominator of a node. The root is its own
// immediate dominator.
func (D *Dominators[T]) Idom(node T) T {
	return D.order[D.idom[D.index(node)]]
}

// Common returns the closest node dominating every given node.
func (D *Dominators[T]) Common(nodes ...T) T {
	if len(nodes) == 0 {
		panic("Empty list of nodes for dominator computation")
	}

	dom := D.index(nodes[0])
	for _, node := range nodes[1:] {
		dom = D.intersect(D.index(node), dom)
	}
	return D.order[dom]
}
