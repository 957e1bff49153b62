package cfg

import (
	"sort"
	"sync"

	"github.com/jopdesign/wcet/program"
	"github.com/jopdesign/wcet/utils/graph"
)

// NodeId addresses a node in the arena of a CFG. Ids are stable: removed
// nodes leave a tombstone behind.
type NodeId int

// EdgeId addresses an edge in the arena of a CFG.
type EdgeId int

// NoNode is the absent node.
const NoNode NodeId = -1

type NodeKind uint8

const (
	EntryNode NodeKind = iota
	ExitNode
	// BlockNode is a basic block of straight-line instructions.
	BlockNode
	// InvokeNode holds a single invoke instruction.
	InvokeNode
	// SplitNode fans out control flow, either to the implementations of a
	// virtual invoke or to the successors of a block.
	SplitNode
	// JoinNode merges the implementations of a virtual invoke.
	JoinNode
	// ReturnNode is the dedicated successor of an invoke.
	ReturnNode
	// ContinueNode merges the back edges of a loop.
	ContinueNode
	// SummaryNode stands for a collapsed loop.
	SummaryNode
)

var nodeKindNames = [...]string{"entry", "exit", "block", "invoke", "split", "join", "return", "continue", "summary"}

func (k NodeKind) String() string { return nodeKindNames[k] }

type EdgeKind uint8

const (
	EntryEdge EdgeKind = iota
	ExitEdge
	// NextEdge is a fall-through. Out of a conditional branch it is the
	// not-taken side.
	NextEdge
	GotoEdge
	// BranchEdge is the taken side of a conditional branch.
	BranchEdge
	SelectEdge
	DispatchEdge
	ReturnEdge
	// FlowEdge connects synthetic nodes.
	FlowEdge
)

var edgeKindNames = [...]string{"entry", "exit", "next", "goto", "branch", "select", "dispatch", "return", "flow"}

func (k EdgeKind) String() string { return edgeKindNames[k] }

// Node is a vertex of a control-flow graph.
type Node struct {
	Id   NodeId
	Kind NodeKind
	// Start and End delimit the instructions [Start, End) of block and invoke
	// nodes. Synthetic nodes carry the index of the instruction they were
	// created for in Start, with End == Start.
	Start, End int
	// Callee is the invoked method of invoke nodes.
	Callee program.MethodRef
	// Virtual is set for invoke nodes not yet resolved to one implementation.
	Virtual bool
	// Summary describes the loop collapsed into a summary node.
	Summary *Summary

	owner   NodeId
	removed bool
}

// Instructions returns the range of instruction indices of the node.
func (n *Node) Instructions() (start, end int) {
	return n.Start, n.End
}

// Summary is a loop collapsed into a single node. Members and internal edges
// stay in the arena, owned by the summary node.
type Summary struct {
	Header    NodeId
	Members   []NodeId
	BackEdges []EdgeId
	Internal  []EdgeId
	// Exits are the sources of the loop's exit edges. They all coincide.
	Exit NodeId
}

type Edge struct {
	Id       EdgeId
	Kind     EdgeKind
	Src, Dst NodeId

	removed bool
}

// CFG is the control-flow graph of one method. Every structural edit bumps
// the version; derived analyses are memoized per version.
type CFG struct {
	Method *program.Method

	nodes []*Node
	edges []*Edge
	out   [][]EdgeId
	in    [][]EdgeId

	entry, exit NodeId
	version     int
	resolved    bool

	mu   sync.Mutex
	topo struct {
		version int
		res     *Topology
		err     error
	}
}

func newCFG(m *program.Method) *CFG {
	g := &CFG{Method: m}
	g.topo.version = -1
	g.entry = g.addNode(&Node{Kind: EntryNode, Start: -1, End: -1})
	g.exit = g.addNode(&Node{Kind: ExitNode, Start: len(m.Instructions), End: len(m.Instructions)})
	return g
}

func (g *CFG) Entry() NodeId { return g.entry }
func (g *CFG) Exit() NodeId  { return g.exit }

// Version identifies the structure of the graph.
func (g *CFG) Version() int { return g.version }

func (g *CFG) touch() { g.version++ }

func (g *CFG) Node(id NodeId) *Node { return g.nodes[id] }
func (g *CFG) Edge(id EdgeId) *Edge { return g.edges[id] }

// Site is the instruction a node was built from.
func (g *CFG) Site(id NodeId) program.Site {
	return program.Site{Method: g.Method.Ref, Index: g.nodes[id].Start}
}

// Line is the source line of the first instruction of a node, or 0.
func (g *CFG) Line(id NodeId) int {
	i := g.nodes[id].Start
	if i < 0 || i >= len(g.Method.Instructions) {
		return 0
	}
	return g.Method.Instructions[i].Line
}

func (g *CFG) addNode(n *Node) NodeId {
	n.Id = NodeId(len(g.nodes))
	n.owner = NoNode
	g.nodes = append(g.nodes, n)
	g.out = append(g.out, nil)
	g.in = append(g.in, nil)
	g.touch()
	return n.Id
}

func (g *CFG) addEdge(kind EdgeKind, src, dst NodeId) EdgeId {
	e := &Edge{Id: EdgeId(len(g.edges)), Kind: kind, Src: src, Dst: dst}
	g.edges = append(g.edges, e)
	g.out[src] = append(g.out[src], e.Id)
	g.in[dst] = append(g.in[dst], e.Id)
	g.touch()
	return e.Id
}

func without(es []EdgeId, e EdgeId) []EdgeId {
	res := make([]EdgeId, 0, len(es))
	for _, x := range es {
		if x != e {
			res = append(res, x)
		}
	}
	return res
}

// redirect moves the destination of an edge.
func (g *CFG) redirect(e EdgeId, dst NodeId) {
	edge := g.edges[e]
	g.in[edge.Dst] = without(g.in[edge.Dst], e)
	edge.Dst = dst
	g.in[dst] = append(g.in[dst], e)
	g.touch()
}

// reroot moves the source of an edge.
func (g *CFG) reroot(e EdgeId, src NodeId) {
	edge := g.edges[e]
	g.out[edge.Src] = without(g.out[edge.Src], e)
	edge.Src = src
	g.out[src] = append(g.out[src], e)
	g.touch()
}

func (g *CFG) removeEdge(e EdgeId) {
	edge := g.edges[e]
	edge.removed = true
	g.out[edge.Src] = without(g.out[edge.Src], e)
	g.in[edge.Dst] = without(g.in[edge.Dst], e)
	g.touch()
}

func (g *CFG) removeNode(n NodeId) {
	for _, e := range append(append([]EdgeId{}, g.out[n]...), g.in[n]...) {
		if !g.edges[e].removed {
			g.removeEdge(e)
		}
	}
	g.nodes[n].removed = true
	g.touch()
}

// visible holds for live nodes not hidden inside a summary.
func (g *CFG) visible(n NodeId) bool {
	node := g.nodes[n]
	return !node.removed && node.owner == NoNode
}

// Nodes lists the live top-level nodes by id.
func (g *CFG) Nodes() []NodeId {
	res := make([]NodeId, 0, len(g.nodes))
	for _, n := range g.nodes {
		if g.visible(n.Id) {
			res = append(res, n.Id)
		}
	}
	return res
}

// Edges lists the live edges between top-level nodes by id.
func (g *CFG) Edges() []EdgeId {
	res := make([]EdgeId, 0, len(g.edges))
	for _, e := range g.edges {
		if !e.removed && g.visible(e.Src) && g.visible(e.Dst) {
			res = append(res, e.Id)
		}
	}
	return res
}

// Out returns the outgoing edges of a node, in creation order.
func (g *CFG) Out(n NodeId) []EdgeId { return g.out[n] }

// In returns the incoming edges of a node, in creation order.
func (g *CFG) In(n NodeId) []EdgeId { return g.in[n] }

// Successors returns the targets of the outgoing edges of n.
func (g *CFG) Successors(n NodeId) []NodeId {
	res := make([]NodeId, len(g.out[n]))
	for i, e := range g.out[n] {
		res[i] = g.edges[e].Dst
	}
	return res
}

// Predecessors returns the sources of the incoming edges of n.
func (g *CFG) Predecessors(n NodeId) []NodeId {
	res := make([]NodeId, len(g.in[n]))
	for i, e := range g.in[n] {
		res[i] = g.edges[e].Src
	}
	return res
}

// Graph exposes the successor relation to the generic graph algorithms.
func (g *CFG) Graph() graph.Graph[NodeId] {
	return graph.OfHashable(g.Successors)
}

// Owner returns the summary node hiding n, or NoNode.
func (g *CFG) Owner(n NodeId) NodeId {
	return g.nodes[n].owner
}

// Invokes lists the invoke nodes, including those hidden in summaries.
func (g *CFG) Invokes() []NodeId {
	var res []NodeId
	for _, n := range g.nodes {
		if !n.removed && n.Kind == InvokeNode {
			res = append(res, n.Id)
		}
	}
	return res
}

// IsResolved holds once every virtual invoke has been resolved.
func (g *CFG) IsResolved() bool { return g.resolved }

// Clone copies the graph. The copy is independent except for summaries,
// which are never mutated once created.
func (g *CFG) Clone() *CFG {
	c := &CFG{
		Method:   g.Method,
		entry:    g.entry,
		exit:     g.exit,
		version:  g.version,
		resolved: g.resolved,
		nodes:    make([]*Node, len(g.nodes)),
		edges:    make([]*Edge, len(g.edges)),
		out:      make([][]EdgeId, len(g.out)),
		in:       make([][]EdgeId, len(g.in)),
	}
	c.topo.version = -1
	for i, n := range g.nodes {
		cp := *n
		c.nodes[i] = &cp
	}
	for i, e := range g.edges {
		cp := *e
		c.edges[i] = &cp
	}
	for i := range g.out {
		c.out[i] = append([]EdgeId{}, g.out[i]...)
		c.in[i] = append([]EdgeId{}, g.in[i]...)
	}
	return c
}

// BranchOf finds the conditional branch controlling an edge. Edges leaving a
// split node inserted after the branch block are attributed to the block.
func (g *CFG) BranchOf(e EdgeId) (block NodeId, taken bool, ok bool) {
	edge := g.edges[e]
	if edge.Kind != BranchEdge && edge.Kind != NextEdge {
		return NoNode, false, false
	}
	src := edge.Src
	if g.nodes[src].Kind == SplitNode && len(g.in[src]) == 1 {
		src = g.edges[g.in[src][0]].Src
	}
	node := g.nodes[src]
	if node.Kind != BlockNode || node.End == 0 {
		return NoNode, false, false
	}
	if !g.Method.Instructions[node.End-1].Op.IsConditional() {
		return NoNode, false, false
	}
	return src, edge.Kind == BranchEdge, true
}

func sortedNodes(ns []NodeId) []NodeId {
	sort.Slice(ns, func(i, j int) bool { return ns[i] < ns[j] })
	return ns
}
