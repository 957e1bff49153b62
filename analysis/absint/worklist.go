package absint

import (
	"github.com/jopdesign/wcet/analysis/cfg"
	"github.com/jopdesign/wcet/program"
	"github.com/jopdesign/wcet/utils/pq"
)

// frame is one method analyzed under one call string.
type frame struct {
	method program.MethodRef
	cs     string
}

// item is a node of a frame awaiting processing.
type item struct {
	frame
	node cfg.NodeId
}

// newWorklist orders pending nodes. Frames discovered later come first so
// that callees reach their exit before the caller resumes. Inside a frame,
// nodes are taken in topological order, which stabilizes loop bodies before
// their exits are visited.
func (a *analysis) newWorklist() pq.PriorityQueue[item] {
	return pq.Empty(func(x, y item) bool {
		if x.frame != y.frame {
			return a.frames[x.frame] > a.frames[y.frame]
		}

		ix, iy := a.topoIndex(x), a.topoIndex(y)
		if ix != iy {
			return ix < iy
		}
		return x.node < y.node
	})
}

func (a *analysis) topoIndex(it item) int {
	g, err := a.cfgs.Get(it.method)
	if err != nil {
		return 0
	}
	t, err := g.Topology()
	if err != nil {
		return 0
	}
	return t.Index(it.node)
}
