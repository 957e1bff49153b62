package cfg

// InsertSummaryNodes collapses loops into summary nodes, innermost first.
// Only loops without invokes whose exit edges share one source and one
// target are collapsed. Returns the number of loops collapsed.
func (g *CFG) InsertSummaryNodes() (int, error) {
	count := 0
	for {
		topo, err := g.Topology()
		if err != nil {
			return count, err
		}

		collapsed := false
		for _, h := range topo.Loops.Headers {
			if topo.Loops.IsInnermost(h) && g.summarizable(topo, h) {
				g.summarize(topo, h)
				collapsed = true
				count++
				break
			}
		}
		if !collapsed {
			return count, nil
		}
	}
}

func (g *CFG) summarizable(topo *Topology, h NodeId) bool {
	for _, n := range topo.Loops.Members(h) {
		switch g.nodes[n].Kind {
		case InvokeNode, SplitNode, JoinNode, ReturnNode, ExitNode:
			return false
		}
	}

	exits := topo.Loops.ExitEdges(h)
	if len(exits) == 0 {
		return false
	}
	src, dst := g.edges[exits[0]].Src, g.edges[exits[0]].Dst
	for _, e := range exits[1:] {
		if g.edges[e].Src != src || g.edges[e].Dst != dst {
			return false
		}
	}
	return true
}

func (g *CFG) summarize(topo *Topology, h NodeId) {
	members := topo.Loops.Members(h)
	exits := topo.Loops.ExitEdges(h)

	sum := &Summary{
		Header:    h,
		Members:   members,
		BackEdges: append([]EdgeId{}, topo.Loops.BackEdges(h)...),
		Exit:      g.edges[exits[0]].Src,
	}
	for _, n := range members {
		for _, e := range g.out[n] {
			if topo.Loops.Contains(h, g.edges[e].Dst) {
				sum.Internal = append(sum.Internal, e)
			}
		}
	}

	s := g.addNode(&Node{Kind: SummaryNode, Start: g.nodes[h].Start, End: g.nodes[h].Start, Summary: sum})

	for _, e := range append([]EdgeId{}, g.in[h]...) {
		if !topo.Loops.Contains(h, g.edges[e].Src) {
			g.redirect(e, s)
		}
	}
	for _, e := range exits {
		g.reroot(e, s)
	}
	for _, n := range members {
		g.nodes[n].owner = s
	}
	g.touch()
}

// WrittenLocals lists the local slots stored to by node n, including the
// members of a summary.
func (g *CFG) WrittenLocals(n NodeId) []int {
	return g.writtenLocals([]NodeId{n})
}
