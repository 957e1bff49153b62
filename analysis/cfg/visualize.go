package cfg

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jopdesign/wcet/utils/dot"
	"github.com/jopdesign/wcet/utils/graph"
)

var edgeStyles = map[EdgeKind]dot.DotAttrs{
	BranchEdge:   {"color": "darkgreen", "label": "T"},
	NextEdge:     {},
	GotoEdge:     {"style": "dashed"},
	SelectEdge:   {"color": "blue"},
	DispatchEdge: {"style": "bold"},
	ReturnEdge:   {"style": "bold, dashed"},
	EntryEdge:    {"color": "gray"},
	ExitEdge:     {"color": "gray"},
	FlowEdge:     {"style": "dotted"},
}

// ToDot renders the graph, grouping the nodes of every innermost loop in a
// cluster. When annotate is given, its result is appended to the label of
// every node.
func (g *CFG) ToDot(annotate func(NodeId) string) *dot.DotGraph {
	G := g.Graph()
	topo, err := g.Topology()
	if err != nil {
		topo = nil
	}
	return G.ToDotGraph(g.Nodes(), &graph.VisualizationConfig[NodeId]{
		ClusterKey: func(n NodeId) any {
			if topo == nil {
				return nil
			}
			if h, ok := topo.Loops.Innermost(n); ok {
				return h
			}
			return nil
		},
		ClusterAttrs: func(key any) (string, dot.DotAttrs) {
			id := fmt.Sprintf("loop_n%d", key)
			return id, dot.DotAttrs{"label": fmt.Sprintf("loop n%d", key), "style": "dashed"}
		},
		NodeAttrs: func(n NodeId) (string, dot.DotAttrs) {
			node := g.nodes[n]
			lines := []string{g.NodeString(n)}
			if node.Kind == BlockNode {
				for i := node.Start; i < node.End; i++ {
					lines = append(lines, fmt.Sprintf("%d: %s", i, g.Method.Instructions[i]))
				}
			}
			if annotate != nil {
				if extra := annotate(n); extra != "" {
					lines = append(lines, extra)
				}
			}

			attrs := dot.DotAttrs{
				"label": strings.Join(lines, "\\l") + "\\l",
			}
			switch node.Kind {
			case EntryNode, ExitNode:
				attrs["shape"] = "oval"
			case InvokeNode:
				attrs["style"] = "filled"
				attrs["fillcolor"] = "lightblue"
			case SummaryNode:
				attrs["style"] = "filled"
				attrs["fillcolor"] = "lightyellow"
			}
			return fmt.Sprintf("n%d", n), attrs
		},
		EdgeAttrs: func(from, to NodeId) dot.DotAttrs {
			for _, e := range g.out[from] {
				if g.edges[e].Dst == to {
					return edgeStyles[g.edges[e].Kind]
				}
			}
			return nil
		},
	})
}

// Visualize writes the graph to outDir, rendered in the given image format.
func (g *CFG) Visualize(outDir, format string, annotate func(NodeId) string) (string, error) {
	var buf bytes.Buffer
	if err := g.ToDot(annotate).WriteDot(&buf); err != nil {
		return "", err
	}
	return dot.DotToImage(filepath.Join(outDir, string(g.Method.Ref)), format, buf.Bytes())
}
