package absint

import (
	"sort"

	"github.com/jopdesign/wcet/analysis/cfg"
	L "github.com/jopdesign/wcet/analysis/lattice"
	"github.com/jopdesign/wcet/program"
	"github.com/jopdesign/wcet/utils"
)

// candidate is a conditional branch able to bound a loop: it is innermost in
// the loop, leaves it along exactly one edge and dominates every back edge.
type candidate struct {
	block cfg.NodeId
	// stayTaken tells whether the taken edge is the one staying in the loop.
	stayTaken bool
}

// branchEdges lists the edges controlled by the branch ending block,
// looking through a split node inserted after it.
func branchEdges(g *cfg.CFG, block cfg.NodeId) []cfg.EdgeId {
	var res []cfg.EdgeId
	for _, e := range g.Out(block) {
		if dst := g.Edge(e).Dst; g.Node(dst).Kind == cfg.SplitNode {
			res = append(res, g.Out(dst)...)
		} else {
			res = append(res, e)
		}
	}
	return res
}

func candidates(g *cfg.CFG, t *cfg.Topology, h cfg.NodeId) []candidate {
	var res []candidate
	for _, n := range t.Loops.Members(h) {
		node := g.Node(n)
		if node.Kind != cfg.BlockNode || node.End <= node.Start ||
			!g.Method.Instructions[node.End-1].Op.IsConditional() {
			continue
		}
		if inner, ok := t.Loops.Innermost(n); !ok || inner != h {
			continue
		}

		exits, stays := 0, 0
		var exitTaken bool
		for _, e := range branchEdges(g, n) {
			b, taken, ok := g.BranchOf(e)
			if !ok || b != n {
				continue
			}
			if t.Loops.Contains(h, g.Edge(e).Dst) {
				stays++
			} else {
				exits++
				exitTaken = taken
			}
		}
		if exits != 1 || stays == 0 {
			continue
		}

		dominates := true
		for _, be := range t.Loops.BackEdges(h) {
			if !t.Dom.Dominates(n, g.Edge(be).Src) {
				dominates = false
				break
			}
		}
		if dominates {
			res = append(res, candidate{n, !exitTaken})
		}
	}
	return res
}

// iterations bounds the number of times a loop variable with the given
// entry value and per-iteration increment can satisfy the stay condition,
// when the values satisfying it lie in stay.
func iterations(entry, stay, inc L.Interval) (int, bool) {
	if stay.IsBot() {
		return 0, true
	}
	incLow, lok := inc.LowInt()
	incHigh, hok := inc.HighInt()
	stayLow, slok := stay.LowInt()
	stayHigh, shok := stay.HighInt()
	entryLow, elok := entry.LowInt()
	entryHigh, ehok := entry.HighInt()

	var n int
	switch {
	case lok && incLow > 0:
		if !shok || !slok || !elok {
			return 0, false
		}
		low := stayLow
		if entryLow < low {
			low = entryLow
		}
		n = utils.FloorDiv(stayHigh-low, incLow) + 1
	case hok && incHigh < 0:
		if !slok || !shok || !ehok {
			return 0, false
		}
		high := stayHigh
		if entryHigh > high {
			high = entryHigh
		}
		n = utils.FloorDiv(high-stayLow, -incHigh) + 1
	default:
		return 0, false
	}
	if n < 0 {
		n = 0
	}
	return n, true
}

func hasLocal(ls []int, l int) bool {
	i := sort.SearchInts(ls, l)
	return i < len(ls) && ls[i] == l
}

// count derives the bound of one candidate.
func (a *analysis) count(g *cfg.CFG, t *cfg.Topology, key loopKey, li *loopInfo, c candidate) (int, bool) {
	bi, ok := a.branches[branchKey{key.frame, c.block}]
	if !ok {
		return 0, false
	}
	if !bi.feasible[b2i(c.stayTaken)] {
		return 0, true
	}

	cmp, _ := g.Method.Instructions[g.Node(c.block).End-1].Op.Comparison()
	if !c.stayTaken {
		cmp = cmp.Negate()
	}

	written := t.Loops.WrittenLocals(key.header)
	outside := func(site program.Site) bool {
		if site.Method != g.Method.Ref {
			return true
		}
		for _, n := range t.Loops.Members(key.header) {
			node := g.Node(n)
			if node.Start <= site.Index && site.Index < node.End {
				return false
			}
			if node.Kind == cfg.InvokeNode && node.Start == site.Index {
				return false
			}
		}
		return true
	}

	sides := []struct {
		v, bound L.ValueMapping
		cmp      program.Comparison
	}{
		{bi.left, bi.right, cmp},
		{bi.right, bi.left, cmp.Mirror()},
	}
	best, found := 0, false
	for _, side := range sides {
		v := side.v
		if !v.HasSource || v.Derived || v.Source.Kind != L.LocalSlot || !hasLocal(written, v.Source.Index) {
			continue
		}
		if !side.bound.DefinedOutside(outside) {
			continue
		}
		back := li.back.Value(v.Source)
		if !back.HasIncrement {
			continue
		}
		stay := v.Value().Restrict(side.cmp, side.bound.Value())
		n, ok := iterations(li.entry.Value(v.Source).Value(), stay, back.Increment)
		if ok && (!found || n < best) {
			best, found = n, true
		}
	}
	return best, found
}

// loopBound infers the bound of one loop in one frame, or Unbounded.
func (a *analysis) loopBound(g *cfg.CFG, t *cfg.Topology, key loopKey, li *loopInfo) int {
	if !li.hasBack {
		return 0
	}
	if !li.hasEntry {
		return Unbounded
	}
	bound := Unbounded
	for _, c := range candidates(g, t, key.header) {
		if n, ok := a.count(g, t, key, li, c); ok && (bound == Unbounded || n < bound) {
			bound = n
		}
	}
	return bound
}

// result collects the loop bounds and branch outcomes of all frames.
func (a *analysis) result() (*Result, error) {
	res := newResult(a.prog)
	for key, bi := range a.branches {
		g, err := a.cfgs.Get(key.method)
		if err != nil {
			return nil, err
		}
		site := program.Site{Method: key.method, Index: g.Node(key.block).End - 1}
		res.setBranch(site, key.cs, bi.feasible)
	}
	for key, li := range a.loops {
		g, err := a.cfgs.Get(key.method)
		if err != nil {
			return nil, err
		}
		t, err := g.Topology()
		if err != nil {
			return nil, err
		}
		b := a.loopBound(g, t, key, li)
		if b == Unbounded {
			utils.VerbosePrint("No bound for loop at %s in %s\n", g.Site(key.header), a.contexts[key.cs])
		}
		res.setBound(g.Site(key.header), key.cs, b)
	}
	return res, nil
}
