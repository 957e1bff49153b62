package cfg

import (
	"sort"

	"github.com/jopdesign/wcet/analysis/defs"
	"github.com/jopdesign/wcet/program"
	"github.com/jopdesign/wcet/utils"
)

// leaders computes the sorted start indices of basic blocks.
func leaders(m *program.Method) []int {
	set := map[int]struct{}{0: {}}
	for i, ins := range m.Instructions {
		flow := ins.Flow()
		for _, t := range flow.Targets {
			set[t.Index] = struct{}{}
		}
		if flow.Terminal() {
			set[i+1] = struct{}{}
		}
		if ins.Op.IsInvoke() {
			set[i] = struct{}{}
			set[i+1] = struct{}{}
		}
	}
	for _, h := range m.Handlers {
		set[h.Target] = struct{}{}
	}

	res := make([]int, 0, len(set))
	for l := range set {
		if l < len(m.Instructions) {
			res = append(res, l)
		}
	}
	sort.Ints(res)
	return res
}

// Build partitions the instructions of a method into basic blocks and wires
// them according to the flow info of their last instruction. Invokes get a
// node of their own.
func Build(m *program.Method) (*CFG, error) {
	if len(m.Instructions) == 0 {
		return nil, defs.MethodErrorf(defs.MalformedProgram, m.Ref, "method has no code")
	}

	g := newCFG(m)
	ls := leaders(m)

	blockAt := make(map[int]NodeId, len(ls))
	for i, start := range ls {
		end := len(m.Instructions)
		if i+1 < len(ls) {
			end = ls[i+1]
		}

		node := &Node{Kind: BlockNode, Start: start, End: end}
		if ins := m.Instructions[start]; ins.Op.IsInvoke() {
			node.Kind = InvokeNode
			node.Callee = ins.Callee
			node.Virtual = ins.Op == program.INVOKEVIRTUAL
		}
		blockAt[start] = g.addNode(node)
	}

	g.addEdge(EntryEdge, g.entry, blockAt[0])

	site := func(i int) program.Site { return program.Site{Method: m.Ref, Index: i} }

	for _, start := range ls {
		n := blockAt[start]
		last := g.nodes[n].End - 1
		flow := m.Instructions[last].Flow()

		if flow.Exit {
			if flow.Thrown {
				utils.Warn("%s: dropping exceptional exit at instruction %d", m.Ref, last)
				continue
			}
			g.addEdge(ExitEdge, n, g.exit)
			continue
		}

		if !flow.AlwaysTaken {
			next, ok := blockAt[last+1]
			if !ok {
				return nil, defs.Errorf(defs.MalformedProgram, site(last), "control falls off the end of the method")
			}
			g.addEdge(NextEdge, n, next)
		}

		for _, t := range flow.Targets {
			dst, ok := blockAt[t.Index]
			if !ok {
				return nil, defs.Errorf(defs.MalformedProgram, site(last), "flow target %d does not start a block", t.Index)
			}

			kind := GotoEdge
			switch t.Kind {
			case program.TargetBranch:
				kind = BranchEdge
			case program.TargetSelect:
				kind = SelectEdge
			}
			g.addEdge(kind, n, dst)
		}
	}

	return g, nil
}
