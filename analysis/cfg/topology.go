package cfg

import (
	"sort"

	"github.com/jopdesign/wcet/analysis/defs"
	"github.com/jopdesign/wcet/program"
	"github.com/jopdesign/wcet/utils/graph"

	"golang.org/x/tools/container/intsets"
)

// Topology is the loop structure of a reducible CFG.
type Topology struct {
	// Order is a topological order of the nodes reachable from Entry once
	// back edges are ignored.
	Order []NodeId
	index map[NodeId]int
	back  map[EdgeId]bool

	Dom   *graph.Dominators[NodeId]
	Loops *LoopColoring
}

// Index is the position of a node in the topological order, or -1.
func (t *Topology) Index(n NodeId) int {
	if i, ok := t.index[n]; ok {
		return i
	}
	return -1
}

func (t *Topology) IsBackEdge(e EdgeId) bool { return t.back[e] }

// LoopColoring assigns every node the natural loops it belongs to.
type LoopColoring struct {
	// Headers lists the loop headers in topological order.
	Headers []NodeId

	backEdges  map[NodeId][]EdgeId
	members    map[NodeId]*intsets.Sparse
	headersOf  map[NodeId][]NodeId
	exitEdges  map[NodeId][]EdgeId
	entryEdges map[NodeId][]EdgeId
	writes     map[NodeId][]int
}

func (l *LoopColoring) IsHeader(n NodeId) bool {
	_, ok := l.backEdges[n]
	return ok
}

func (l *LoopColoring) BackEdges(h NodeId) []EdgeId  { return l.backEdges[h] }
func (l *LoopColoring) ExitEdges(h NodeId) []EdgeId  { return l.exitEdges[h] }
func (l *LoopColoring) EntryEdges(h NodeId) []EdgeId { return l.entryEdges[h] }

// WrittenLocals lists the local slots stored to inside the loop of h.
func (l *LoopColoring) WrittenLocals(h NodeId) []int { return l.writes[h] }

// Contains checks whether n belongs to the loop of h.
func (l *LoopColoring) Contains(h, n NodeId) bool {
	m, ok := l.members[h]
	return ok && m.Has(int(n))
}

// Members lists the nodes of the loop of h by id.
func (l *LoopColoring) Members(h NodeId) []NodeId {
	m, ok := l.members[h]
	if !ok {
		return nil
	}
	res := make([]NodeId, 0, m.Len())
	for _, x := range m.AppendTo(nil) {
		res = append(res, NodeId(x))
	}
	return res
}

// HeadersOf lists the headers of the loops containing n, outermost first.
func (l *LoopColoring) HeadersOf(n NodeId) []NodeId { return l.headersOf[n] }

// Innermost returns the header of the innermost loop containing n.
func (l *LoopColoring) Innermost(n NodeId) (NodeId, bool) {
	hs := l.headersOf[n]
	if len(hs) == 0 {
		return NoNode, false
	}
	return hs[len(hs)-1], true
}

// IsInnermost holds for loops without nested loops.
func (l *LoopColoring) IsInnermost(h NodeId) bool {
	for _, n := range l.Members(h) {
		if n != h && l.IsHeader(n) {
			return false
		}
	}
	return true
}

// Topology computes, or returns the memoized, loop structure of the current
// version of the graph. Irreducible graphs are malformed.
func (g *CFG) Topology() (*Topology, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.topo.version != g.version {
		g.topo.res, g.topo.err = g.computeTopology()
		g.topo.version = g.version
	}
	return g.topo.res, g.topo.err
}

func (g *CFG) computeTopology() (*Topology, error) {
	t := &Topology{
		index: map[NodeId]int{},
		back:  map[EdgeId]bool{},
		Dom:   g.Graph().Dominators(g.entry),
	}

	// Depth-first search: retreating edges are back edges, reverse postorder
	// of the remaining DAG is a topological order.
	const (
		white = iota
		grey
		black
	)
	color := map[NodeId]int{}
	var post []NodeId
	var dfs func(NodeId)
	dfs = func(n NodeId) {
		color[n] = grey
		for _, e := range g.out[n] {
			dst := g.edges[e].Dst
			switch color[dst] {
			case white:
				dfs(dst)
			case grey:
				t.back[e] = true
			}
		}
		color[n] = black
		post = append(post, n)
	}
	dfs(g.entry)

	for i := len(post) - 1; i >= 0; i-- {
		t.index[post[i]] = len(t.Order)
		t.Order = append(t.Order, post[i])
	}

	loops := &LoopColoring{
		backEdges:  map[NodeId][]EdgeId{},
		members:    map[NodeId]*intsets.Sparse{},
		headersOf:  map[NodeId][]NodeId{},
		exitEdges:  map[NodeId][]EdgeId{},
		entryEdges: map[NodeId][]EdgeId{},
		writes:     map[NodeId][]int{},
	}
	t.Loops = loops

	backs := make([]EdgeId, 0, len(t.back))
	for e := range t.back {
		backs = append(backs, e)
	}
	sort.Slice(backs, func(i, j int) bool { return backs[i] < backs[j] })

	for _, e := range backs {
		src, h := g.edges[e].Src, g.edges[e].Dst
		if !t.Dom.Dominates(h, src) {
			return nil, defs.Errorf(defs.MalformedProgram, g.Site(h),
				"irreducible control flow: %s does not dominate %s", g.NodeString(h), g.NodeString(src))
		}

		if _, ok := loops.backEdges[h]; !ok {
			loops.members[h] = &intsets.Sparse{}
			loops.members[h].Insert(int(h))
		}
		loops.backEdges[h] = append(loops.backEdges[h], e)

		// The natural loop of the back edge: everything reaching src without
		// passing through h.
		members := loops.members[h]
		stack := []NodeId{src}
		if members.Insert(int(src)) {
			for len(stack) > 0 {
				n := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				for _, p := range g.Predecessors(n) {
					if t.Index(p) >= 0 && members.Insert(int(p)) {
						stack = append(stack, p)
					}
				}
			}
		}
	}

	for h := range loops.backEdges {
		loops.Headers = append(loops.Headers, h)
	}
	sort.Slice(loops.Headers, func(i, j int) bool {
		return t.index[loops.Headers[i]] < t.index[loops.Headers[j]]
	})

	for _, h := range loops.Headers {
		for _, n := range loops.Members(h) {
			// Outer headers dominate inner ones, so headers in topological
			// order are outermost first.
			loops.headersOf[n] = append(loops.headersOf[n], h)

			for _, e := range g.out[n] {
				if !loops.Contains(h, g.edges[e].Dst) {
					loops.exitEdges[h] = append(loops.exitEdges[h], e)
				}
			}
		}
		for _, e := range g.in[h] {
			if !t.back[e] && !loops.Contains(h, g.edges[e].Src) {
				loops.entryEdges[h] = append(loops.entryEdges[h], e)
			}
		}
		loops.writes[h] = g.writtenLocals(loops.Members(h))
	}

	return t, nil
}

// writtenLocals collects the local slots stored to by the given nodes,
// looking into summaries.
func (g *CFG) writtenLocals(ns []NodeId) []int {
	var slots intsets.Sparse
	var visit func(NodeId)
	visit = func(n NodeId) {
		node := g.nodes[n]
		switch node.Kind {
		case BlockNode:
			for _, ins := range g.Method.Instructions[node.Start:node.End] {
				if ins.Op == program.ISTORE || ins.Op == program.IINC {
					slots.Insert(ins.Operand(0))
				}
			}
		case SummaryNode:
			for _, m := range node.Summary.Members {
				visit(m)
			}
		}
	}
	for _, n := range ns {
		visit(n)
	}

	return slots.AppendTo(nil)
}
