package ipet

import (
	"github.com/jopdesign/wcet/analysis/cfg"
	"github.com/jopdesign/wcet/analysis/defs"
	"github.com/jopdesign/wcet/program"
	"github.com/jopdesign/wcet/utils/worklist"
)

// flowGraph is the part of a CFG that can carry flow: nodes on some feasible
// path from Entry to Exit and the feasible edges between them.
type flowGraph struct {
	nodes map[cfg.NodeId]bool
	edges map[cfg.EdgeId]bool
}

func feasible(g *cfg.CFG, bounds LoopBounds, e cfg.EdgeId, cs defs.CallString) bool {
	block, taken, ok := g.BranchOf(e)
	if !ok {
		return true
	}
	site := program.Site{Method: g.Method.Ref, Index: g.Node(block).End - 1}
	return !bounds.Infeasible(site, taken, cs)
}

func prune(g *cfg.CFG, bounds LoopBounds, cs defs.CallString) (flowGraph, bool) {
	ok := map[cfg.EdgeId]bool{}
	for _, e := range g.Edges() {
		ok[e] = feasible(g, bounds, e, cs)
	}

	reach := func(start cfg.NodeId, next func(cfg.NodeId) []cfg.EdgeId, end func(*cfg.Edge) cfg.NodeId) map[cfg.NodeId]bool {
		seen := map[cfg.NodeId]bool{start: true}
		worklist.Start(start, func(n cfg.NodeId, add func(cfg.NodeId)) {
			for _, e := range next(n) {
				if !ok[e] {
					continue
				}
				if m := end(g.Edge(e)); !seen[m] {
					seen[m] = true
					add(m)
				}
			}
		})
		return seen
	}
	fwd := reach(g.Entry(), g.Out, func(e *cfg.Edge) cfg.NodeId { return e.Dst })
	if !fwd[g.Exit()] {
		return flowGraph{}, false
	}
	bwd := reach(g.Exit(), g.In, func(e *cfg.Edge) cfg.NodeId { return e.Src })

	fg := flowGraph{map[cfg.NodeId]bool{}, map[cfg.EdgeId]bool{}}
	for n := range fwd {
		if bwd[n] {
			fg.nodes[n] = true
		}
	}
	for e, feasible := range ok {
		edge := g.Edge(e)
		if feasible && fg.nodes[edge.Src] && fg.nodes[edge.Dst] {
			fg.edges[e] = true
		}
	}
	return fg, true
}

// dag computes longest paths over an acyclic view of a graph.
type dag struct {
	out      func(cfg.NodeId) []cfg.EdgeId
	dst      func(cfg.EdgeId) cfg.NodeId
	nodeCost func(cfg.NodeId) int
	edgeCost func(cfg.EdgeId) int
}

// longest returns the cost of the most expensive path from start to a node
// accepted by final, both ends included. ok is false when no such node is
// reachable.
func (d dag) longest(start cfg.NodeId, final func(cfg.NodeId) bool) (cost int, ok bool) {
	type entry struct {
		cost int
		ok   bool
	}
	memo := map[cfg.NodeId]entry{}
	var visit func(cfg.NodeId) entry
	visit = func(n cfg.NodeId) entry {
		if r, done := memo[n]; done {
			return r
		}
		var best entry
		if final(n) {
			best = entry{0, true}
		}
		for _, e := range d.out(n) {
			r := visit(d.dst(e))
			if r.ok && (!best.ok || r.cost+d.edgeCost(e) > best.cost) {
				best = entry{r.cost + d.edgeCost(e), true}
			}
		}
		if best.ok {
			best.cost += d.nodeCost(n)
		}
		memo[n] = best
		return best
	}
	r := visit(start)
	return r.cost, r.ok
}
