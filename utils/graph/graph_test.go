package graph

import (
	"sort"
	"testing"
)

var edges = map[int][]int{
	0:  {1, 8},
	1:  {4, 5, 2},
	2:  {6, 3, 9},
	3:  {2, 7},
	4:  {0, 5},
	5:  {6},
	6:  {5},
	7:  {3, 6},
	8:  {},
	9:  {10, 11},
	10: {12, 13},
	11: {12, 13},
	12: {},
	13: {},
}
var _sampleGraph = OfHashable(func(i int) []int {
	return edges[i]
})

func TestSCC(t *testing.T) {
	scc := _sampleGraph.SCC([]int{0})

	sameComponent := [][]int{{0, 1, 4}, {2, 3, 7}, {5, 6}}
	for _, group := range sameComponent {
		c := scc.ComponentOf(group[0])
		for _, n := range group[1:] {
			if scc.ComponentOf(n) != c {
				t.Errorf("%d and %d should share a component", group[0], n)
			}
		}
		if !scc.Cyclic(group[0]) {
			t.Errorf("%d should be cyclic", group[0])
		}
	}

	for _, n := range []int{8, 9, 12} {
		if scc.Cyclic(n) {
			t.Errorf("%d should not be cyclic", n)
		}
	}

	// Components are in reverse topological order.
	for i, comp := range scc.Components {
		for _, n := range comp {
			for _, succ := range edges[n] {
				if scc.ComponentOf(succ) > i {
					t.Errorf("edge %d -> %d points to a later component", n, succ)
				}
			}
		}
	}

	if scc.ComponentOf(100) != -1 {
		t.Error("unreachable node has a component")
	}
}

func TestDominators(t *testing.T) {
	D := _sampleGraph.Dominators(0)

	tests := []struct {
		a, b      int
		dominates bool
	}{
		{0, 13, true},
		{1, 2, true},
		{2, 9, true},
		{9, 12, true},
		{10, 12, false},
		{5, 6, false},
		{3, 7, true},
		{8, 1, false},
	}

	for _, test := range tests {
		if got := D.Dominates(test.a, test.b); got != test.dominates {
			t.Errorf("Dominates(%d, %d) = %v", test.a, test.b, got)
		}
	}

	if idom := D.Idom(12); idom != 9 {
		t.Errorf("idom(12) = %d, expected 9", idom)
	}
	if c := D.Common(10, 11); c != 9 {
		t.Errorf("common dominator of 10 and 11 is %d, expected 9", c)
	}
}

func TestReversed(t *testing.T) {
	R := _sampleGraph.Reversed(0)
	preds := R.Edges(6)
	sort.Ints(preds)
	if len(preds) != 3 || preds[0] != 2 || preds[1] != 5 || preds[2] != 7 {
		t.Errorf("unexpected predecessors of 6: %v", preds)
	}

	reach := R.Reachable(12)
	found := map[int]bool{}
	for _, n := range reach {
		found[n] = true
	}
	for _, n := range []int{9, 10, 11, 2, 1, 0} {
		if !found[n] {
			t.Errorf("%d should reach 12", n)
		}
	}
	if found[8] {
		t.Errorf("8 does not reach 12")
	}
}
