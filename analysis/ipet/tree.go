package ipet

import (
	"github.com/jopdesign/wcet/analysis/cfg"
	"github.com/jopdesign/wcet/analysis/cost"
	"github.com/jopdesign/wcet/analysis/defs"
	"github.com/jopdesign/wcet/program"

	uf "github.com/spakin/disjoint"
)

// TreeBound computes a cheap WCET bound without a solver. Loops are
// collapsed innermost first, each costing its bound plus one times its most
// expensive iteration; what remains is acyclic and its longest path from
// Entry to Exit is the bound. Every invoke and return misses the cache.
func (s *Solver) TreeBound(ref program.MethodRef) (int, error) {
	if err := s.checkRecursion(ref); err != nil {
		return 0, err
	}
	miss, err := cost.NewPolicy(cost.Config{Policy: "always-miss"})
	if err != nil {
		return 0, err
	}
	t := &tree{s, s.model.WithPolicy(miss), map[string]int{}}
	return t.method(ref, defs.EmptyCallString())
}

type tree struct {
	*Solver
	model *cost.Model
	memo  map[string]int
}

func (t *tree) method(ref program.MethodRef, cs defs.CallString) (int, error) {
	key := string(ref) + "|" + cs.Key()
	if c, ok := t.memo[key]; ok {
		return c, nil
	}

	g, err := t.cfgs.Get(ref)
	if err != nil {
		return 0, err
	}
	topo, err := g.Topology()
	if err != nil {
		return 0, err
	}

	costs := map[cfg.NodeId]int{}
	for _, n := range g.Nodes() {
		if costs[n], err = t.node(g, n, cs); err != nil {
			return 0, err
		}
	}

	elems := map[cfg.NodeId]*uf.Element{}
	for _, n := range g.Nodes() {
		elems[n] = uf.NewElement()
		elems[n].Data = n
	}
	rep := func(n cfg.NodeId) cfg.NodeId { return elems[n].Find().Data.(cfg.NodeId) }
	d := dag{
		dst:      func(e cfg.EdgeId) cfg.NodeId { return rep(g.Edge(e).Dst) },
		nodeCost: func(n cfg.NodeId) int { return costs[n] },
		edgeCost: func(e cfg.EdgeId) int { return t.model.Edge(g, e) },
	}
	// out follows the edges leaving the members of a collapsed node.
	outOf := func(inLoop func(cfg.NodeId) bool, skip map[cfg.EdgeId]bool) func(cfg.NodeId) []cfg.EdgeId {
		return func(r cfg.NodeId) []cfg.EdgeId {
			var res []cfg.EdgeId
			for _, n := range g.Nodes() {
				if rep(n) != r {
					continue
				}
				for _, e := range g.Out(n) {
					dst := g.Edge(e).Dst
					if !skip[e] && rep(dst) != r && inLoop(dst) {
						res = append(res, e)
					}
				}
			}
			return res
		}
	}

	headers := topo.Loops.Headers
	for i := len(headers) - 1; i >= 0; i-- {
		h := headers[i]
		bound, ok := t.bounds.LoopBound(g.Site(h), cs)
		if !ok {
			return 0, defs.Errorf(defs.AnalysisNonconvergence, g.Site(h), "unbounded loop").In(cs)
		}

		back := map[cfg.EdgeId]bool{}
		last := map[cfg.NodeId]bool{}
		backAlign := 0
		for _, e := range topo.Loops.BackEdges(h) {
			back[e] = true
			last[rep(g.Edge(e).Src)] = true
			backAlign = max(backAlign, t.model.Edge(g, e))
		}
		for _, e := range topo.Loops.ExitEdges(h) {
			last[rep(g.Edge(e).Src)] = true
		}

		d.out = outOf(func(n cfg.NodeId) bool { return topo.Loops.Contains(h, n) }, back)
		iter, _ := d.longest(rep(h), func(n cfg.NodeId) bool { return last[n] })

		for _, m := range topo.Loops.Members(h) {
			uf.Union(elems[h], elems[m])
		}
		elems[h].Find().Data = h
		costs[h] = (bound + 1) * (iter + backAlign)
	}

	d.out = outOf(func(cfg.NodeId) bool { return true }, nil)
	res, ok := d.longest(rep(g.Entry()), func(n cfg.NodeId) bool { return n == rep(g.Exit()) })
	if !ok {
		return 0, defs.MethodErrorf(defs.MalformedProgram, ref, "exit is unreachable from entry")
	}
	t.memo[key] = res
	return res, nil
}

func (t *tree) node(g *cfg.CFG, n cfg.NodeId, cs defs.CallString) (int, error) {
	node := g.Node(n)
	if node.Kind != cfg.InvokeNode {
		return t.model.Node(g, n)
	}
	local, err := t.model.Node(g, n)
	if err != nil {
		return 0, err
	}
	if callee, ok := t.cfgs.Program().Method(node.Callee); !ok || callee.Native {
		return local, nil
	}
	callee, err := t.method(node.Callee, cs.Push(g.Site(n), t.opts.CallStringLength))
	if err != nil {
		return 0, err
	}
	miss, err := t.model.InvokeCost(g.Method.Ref, node.Callee, defs.AlwaysMiss)
	if err != nil {
		return 0, err
	}
	return local + callee + miss, nil
}
