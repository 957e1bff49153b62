package cfg

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jopdesign/wcet/program"
)

func sortRefs(refs []program.MethodRef) {
	sort.Slice(refs, func(i, j int) bool { return refs[i] < refs[j] })
}

// NodeString describes a node on one line, without its successors.
func (g *CFG) NodeString(n NodeId) string {
	node := g.nodes[n]
	switch node.Kind {
	case EntryNode, ExitNode:
		return fmt.Sprintf("n%d %s", n, node.Kind)
	case BlockNode:
		return fmt.Sprintf("n%d block [%d,%d)", n, node.Start, node.End)
	case InvokeNode:
		if node.Virtual {
			return fmt.Sprintf("n%d invoke virtual %s @%d", n, node.Callee, node.Start)
		}
		return fmt.Sprintf("n%d invoke %s @%d", n, node.Callee, node.Start)
	case SummaryNode:
		ms := make([]string, len(node.Summary.Members))
		for i, m := range node.Summary.Members {
			ms[i] = fmt.Sprintf("n%d", m)
		}
		return fmt.Sprintf("n%d summary @%d {%s}", n, node.Start, strings.Join(ms, " "))
	}
	return fmt.Sprintf("n%d %s @%d", n, node.Kind, node.Start)
}

// String prints the top-level nodes by id, each followed by its out edges.
// The format is stable and used by golden tests.
func (g *CFG) String() string {
	var sb strings.Builder
	sb.WriteString(string(g.Method.Ref) + "\n")
	for _, n := range g.Nodes() {
		sb.WriteString("  " + g.NodeString(n))
		if out := g.out[n]; len(out) > 0 {
			sb.WriteString(" ->")
			for _, e := range out {
				edge := g.edges[e]
				fmt.Fprintf(&sb, " n%d(%s)", edge.Dst, edge.Kind)
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
