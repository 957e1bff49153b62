package cfg

import (
	"fmt"
	"sort"

	"github.com/jopdesign/wcet/analysis/defs"
	"github.com/jopdesign/wcet/program"
	"github.com/jopdesign/wcet/utils"

	"golang.org/x/tools/container/intsets"
)

// ResolveVirtualInvokes replaces every virtual invoke by the implementations
// the dispatch oracle reports for it in the given context. A single receiver
// resolves the node in place; several receivers are wrapped between a split
// and a join node. Running it again is a no-op.
func (g *CFG) ResolveVirtualInvokes(prog program.Program, ctx defs.CallString) error {
	if g.resolved {
		return nil
	}

	for _, n := range g.Invokes() {
		node := g.nodes[n]
		if !node.Virtual {
			continue
		}

		site := g.Site(n)
		receivers := append([]program.MethodRef{}, prog.PossibleReceivers(site, ctx.Sites())...)
		sort.Slice(receivers, func(i, j int) bool { return receivers[i] < receivers[j] })

		switch len(receivers) {
		case 0:
			return &defs.Error{
				Kind:    defs.MalformedProgram,
				Site:    site,
				Context: ctx.Plain(),
				Err:     fmt.Errorf("%w for %s", defs.NoImplementation, node.Callee),
			}
		case 1:
			node.Callee, node.Virtual = receivers[0], false
			g.touch()
		default:
			utils.VerbosePrint("%s: %v at %s, dispatching to %v\n", g.Method.Ref, defs.Ambiguous, site, receivers)
			g.dispatch(n, receivers)
		}
	}

	g.resolved = true
	return nil
}

// dispatch replaces an invoke node by split -> implementations -> join.
func (g *CFG) dispatch(n NodeId, receivers []program.MethodRef) {
	node := g.nodes[n]
	split := g.addNode(&Node{Kind: SplitNode, Start: node.Start, End: node.Start})
	join := g.addNode(&Node{Kind: JoinNode, Start: node.Start, End: node.Start})

	for _, e := range append([]EdgeId{}, g.in[n]...) {
		g.redirect(e, split)
	}
	for _, e := range append([]EdgeId{}, g.out[n]...) {
		g.reroot(e, join)
	}

	for _, r := range receivers {
		impl := g.addNode(&Node{Kind: InvokeNode, Start: node.Start, End: node.End, Callee: r})
		g.addEdge(DispatchEdge, split, impl)
		g.addEdge(ReturnEdge, impl, join)
	}

	g.removeNode(n)
}

// reachable collects the nodes reachable from start along succ.
func (g *CFG) reachable(start NodeId, succ func(NodeId) []NodeId) *intsets.Sparse {
	var seen intsets.Sparse
	seen.Insert(int(start))
	stack := []NodeId{start}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, s := range succ(n) {
			if seen.Insert(int(s)) {
				stack = append(stack, s)
			}
		}
	}
	return &seen
}

// Check removes the nodes that are not reachable from Entry (dead) and the
// nodes from which Exit cannot be reached (stuck). It fails if Exit itself
// is unreachable.
func (g *CFG) Check() error {
	fwd := g.reachable(g.entry, g.Successors)
	if !fwd.Has(int(g.exit)) {
		return defs.MethodErrorf(defs.MalformedProgram, g.Method.Ref, "exit is unreachable from entry")
	}
	bwd := g.reachable(g.exit, g.Predecessors)

	for _, n := range g.Nodes() {
		switch {
		case !fwd.Has(int(n)):
			utils.VerbosePrint("%s: removing dead node %s\n", g.Method.Ref, g.NodeString(n))
		case !bwd.Has(int(n)):
			utils.VerbosePrint("%s: removing stuck node %s\n", g.Method.Ref, g.NodeString(n))
		default:
			continue
		}
		g.removeNode(n)
	}
	return nil
}

// InsertSplitNodes gives every block with several successors a single
// synthetic split successor that carries the original out edges.
func (g *CFG) InsertSplitNodes() {
	for _, n := range g.Nodes() {
		node := g.nodes[n]
		if node.Kind != BlockNode || len(g.out[n]) < 2 {
			continue
		}

		split := g.addNode(&Node{Kind: SplitNode, Start: node.End - 1, End: node.End - 1})
		for _, e := range append([]EdgeId{}, g.out[n]...) {
			g.reroot(e, split)
		}
		g.addEdge(FlowEdge, n, split)
	}
}

// InsertReturnNodes places a dedicated return node after every invoke.
func (g *CFG) InsertReturnNodes() {
	for _, n := range g.Invokes() {
		if !g.visible(n) || g.hasReturnNode(n) {
			continue
		}

		node := g.nodes[n]
		ret := g.addNode(&Node{Kind: ReturnNode, Start: node.Start, End: node.Start})
		for _, e := range append([]EdgeId{}, g.out[n]...) {
			g.reroot(e, ret)
		}
		g.addEdge(FlowEdge, n, ret)
	}
}

func (g *CFG) hasReturnNode(n NodeId) bool {
	out := g.out[n]
	return len(out) == 1 && g.nodes[g.edges[out[0]].Dst].Kind == ReturnNode
}

// InsertContinueLoopNodes merges the back edges of every loop header with
// several of them into one synthetic predecessor of the header.
func (g *CFG) InsertContinueLoopNodes() error {
	topo, err := g.Topology()
	if err != nil {
		return err
	}

	for _, h := range topo.Loops.Headers {
		backs := topo.Loops.BackEdges(h)
		if len(backs) < 2 {
			continue
		}

		cont := g.addNode(&Node{Kind: ContinueNode, Start: g.nodes[h].Start, End: g.nodes[h].Start})
		for _, e := range backs {
			g.redirect(e, cont)
		}
		g.addEdge(FlowEdge, cont, h)
	}
	return nil
}
