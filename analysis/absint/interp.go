package absint

import (
	"errors"
	"fmt"
	"time"

	"github.com/jopdesign/wcet/analysis/cfg"
	"github.com/jopdesign/wcet/analysis/defs"
	L "github.com/jopdesign/wcet/analysis/lattice"
	"github.com/jopdesign/wcet/program"
	"github.com/jopdesign/wcet/utils"
	"github.com/jopdesign/wcet/utils/pq"
)

// branchKey identifies a conditional branch block of a frame.
type branchKey struct {
	frame
	block cfg.NodeId
}

// branchInfo accumulates what was observed at a conditional branch.
type branchInfo struct {
	left, right L.ValueMapping
	// feasible records, indexed by taken, whether the edge was ever followed.
	feasible [2]bool
}

// loopKey identifies a loop header of a frame.
type loopKey struct {
	frame
	header cfg.NodeId
}

// loopInfo holds the states flowing into a loop header, before increments
// are reset.
type loopInfo struct {
	entry, back       L.State
	hasEntry, hasBack bool
}

type analysis struct {
	prog    program.Program
	cfgs    *cfg.Cache
	opts    Options
	natives Natives

	worklist pq.PriorityQueue[item]
	contexts map[string]defs.CallString
	// frames maps every discovered frame to its discovery rank.
	frames  map[frame]int
	states  map[item]L.State
	visits  map[item]int
	exits   map[frame]L.State
	callers map[frame]map[item]struct{}

	branches map[branchKey]*branchInfo
	loops    map[loopKey]*loopInfo

	metrics *Metrics
}

// Analyze computes loop bounds for every method reachable from roots. Each
// root is analyzed in the empty context, starting with the configured
// initial heap.
func Analyze(cfgs *cfg.Cache, opts Options, natives Natives, roots ...program.MethodRef) (*Result, error) {
	a := &analysis{
		prog:     cfgs.Program(),
		cfgs:     cfgs,
		opts:     opts,
		natives:  natives,
		contexts: map[string]defs.CallString{},
		frames:   map[frame]int{},
		states:   map[item]L.State{},
		visits:   map[item]int{},
		exits:    map[frame]L.State{},
		callers:  map[frame]map[item]struct{}{},
		branches: map[branchKey]*branchInfo{},
		loops:    map[loopKey]*loopInfo{},
		metrics:  &Metrics{},
	}
	a.worklist = a.newWorklist()

	start := time.Now()
	err := a.run(roots)
	a.metrics.Time = time.Since(start)
	a.metrics.Frames = len(a.frames)
	a.metrics.States = len(a.states)
	if err != nil {
		a.metrics.Outcome = OutcomeFailed
		return nil, err
	}
	a.metrics.Outcome = OutcomeSuccess

	res, err := a.result()
	if err != nil {
		return nil, err
	}
	res.Metrics = a.metrics
	return res, nil
}

func (a *analysis) run(roots []program.MethodRef) error {
	for _, root := range roots {
		m, ok := a.prog.Method(root)
		if !ok {
			return defs.MethodErrorf(defs.MalformedProgram, root, "unknown analysis root")
		}
		if m.Native {
			return defs.MethodErrorf(defs.UnsupportedConstruct, root, "native analysis root")
		}
		if err := a.enter(root, defs.EmptyCallString(), a.opts.initialHeap()); err != nil {
			return err
		}
	}

	for !a.worklist.IsEmpty() {
		a.metrics.Steps++
		if a.opts.MaxSteps > 0 && a.metrics.Steps > a.opts.MaxSteps {
			return defs.MethodErrorf(defs.AnalysisNonconvergence, roots[0],
				"no fixpoint after %d steps", a.opts.MaxSteps)
		}
		if err := a.process(a.worklist.GetNext()); err != nil {
			return err
		}
	}
	return nil
}

// enter schedules the entry of method under cs with the given state.
func (a *analysis) enter(method program.MethodRef, cs defs.CallString, s L.State) error {
	g, err := a.cfgs.Get(method)
	if err != nil {
		return err
	}
	fr := frame{method, cs.Key()}
	if _, ok := a.frames[fr]; !ok {
		a.frames[fr] = len(a.frames)
		a.contexts[fr.cs] = cs
		utils.VerbosePrint("Entering %s in %s\n", method, cs)
	}
	return a.update(g, item{fr, g.Entry()}, s, true)
}

// update joins s into the in-state of it and schedules it on change. Joins
// closing a cycle of the abstract execution, along a back edge or into a
// method entry, are widened once they grew the state WidenAfter times.
func (a *analysis) update(g *cfg.CFG, it item, s L.State, cyclic bool) error {
	old, ok := a.states[it]
	if !ok {
		a.states[it] = s
		a.worklist.Add(it)
		return nil
	}

	joined, err := old.Join(s)
	if err != nil {
		return defs.Errorf(defs.MalformedProgram, g.Site(it.node), "%w", err).In(a.contexts[it.cs])
	}
	if joined.Eq(old) {
		return nil
	}
	if cyclic {
		a.visits[it]++
		if a.visits[it] > a.opts.WidenAfter {
			joined, _ = old.Widen(joined)
		}
	}
	a.states[it] = joined
	a.worklist.Add(it)
	return nil
}

func (a *analysis) process(it item) error {
	g, err := a.cfgs.Get(it.method)
	if err != nil {
		return err
	}
	cs := a.contexts[it.cs]
	in := a.states[it]
	node := g.Node(it.node)

	out := in
	switch node.Kind {
	case cfg.ExitNode:
		a.exits[it.frame] = in
		for caller := range a.callers[it.frame] {
			a.worklist.Add(caller)
		}
		return nil
	case cfg.BlockNode:
		if out, err = a.block(g.Method, node.Start, node.End, in, cs); err != nil {
			return a.located(err, cs)
		}
		if node.End > node.Start && g.Method.Instructions[node.End-1].Op.IsConditional() {
			a.recordBranch(branchKey{it.frame, it.node}, out)
		}
	case cfg.InvokeNode:
		var ready bool
		if out, ready, err = a.invoke(g, it, cs, in); err != nil || !ready {
			return a.located(err, cs)
		}
	case cfg.SummaryNode:
		for _, l := range g.WrittenLocals(it.node) {
			out = out.Set(L.Local(l), L.Defined(L.Top, g.Site(it.node)))
		}
		out = invalidate(out.DropHeap(), func(L.Location) bool { return true })
	}
	return a.propagate(g, it, out)
}

// located attaches the context to analysis errors.
func (a *analysis) located(err error, cs defs.CallString) error {
	var aerr *defs.Error
	if errors.As(err, &aerr) && aerr.Context == "" {
		aerr.In(cs)
	}
	return err
}

func (a *analysis) recordBranch(key branchKey, s L.State) {
	left, right := s.Value(L.Operand(0)), s.Value(L.Operand(1))
	if bi, ok := a.branches[key]; ok {
		bi.left, bi.right = bi.left.Join(left), bi.right.Join(right)
		return
	}
	a.branches[key] = &branchInfo{left: left, right: right}
}

// restrict constrains s by the outcome of the branch ending block. It
// reports false when the outcome is impossible.
func (a *analysis) restrict(g *cfg.CFG, block cfg.NodeId, taken bool, s L.State) (L.State, bool) {
	cmp, _ := g.Method.Instructions[g.Node(block).End-1].Op.Comparison()
	if !taken {
		cmp = cmp.Negate()
	}
	left, right := s.Value(L.Operand(0)), s.Value(L.Operand(1))
	s = s.Delete(L.Operand(0)).Delete(L.Operand(1))

	l := left.Value().Restrict(cmp, right.Value())
	r := right.Value().Restrict(cmp.Mirror(), left.Value())
	if l.IsBot() || r.IsBot() {
		return s, false
	}
	for _, p := range []struct {
		v  L.ValueMapping
		iv L.Interval
	}{{left, l}, {right, r}} {
		if p.v.HasSource && !p.v.Derived {
			s = s.Set(p.v.Source, s.Value(p.v.Source).Narrow(p.iv))
		}
	}
	return s, true
}

// propagate pushes the out-state of a node along its edges.
func (a *analysis) propagate(g *cfg.CFG, it item, out L.State) error {
	t, err := g.Topology()
	if err != nil {
		return err
	}
	for _, e := range g.Out(it.node) {
		s := out
		if block, taken, ok := g.BranchOf(e); ok {
			var feasible bool
			s, feasible = a.restrict(g, block, taken, s)
			if !feasible {
				continue
			}
			if bi, ok := a.branches[branchKey{it.frame, block}]; ok {
				bi.feasible[b2i(taken)] = true
			}
		}

		dst := g.Edge(e).Dst
		if t.Loops.IsHeader(dst) {
			a.recordLoopEntry(loopKey{it.frame, dst}, t.IsBackEdge(e), s)
			s = s.ResetIncrements(t.Loops.WrittenLocals(dst))
		}
		if err := a.update(g, item{it.frame, dst}, s, t.IsBackEdge(e)); err != nil {
			return err
		}
	}
	return nil
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (a *analysis) recordLoopEntry(key loopKey, back bool, s L.State) {
	li, ok := a.loops[key]
	if !ok {
		li = &loopInfo{}
		a.loops[key] = li
	}
	join := func(acc *L.State, has *bool) {
		if !*has {
			*acc, *has = s, true
			return
		}
		if j, err := acc.Join(s); err == nil {
			*acc = j
		}
	}
	if back {
		join(&li.back, &li.hasBack)
	} else {
		join(&li.entry, &li.hasEntry)
	}
}

// invoke evaluates an invoke node. Calls of analyzed methods are ready once
// the callee frame reached its exit.
func (a *analysis) invoke(g *cfg.CFG, it item, cs defs.CallString, in L.State) (L.State, bool, error) {
	node := g.Node(it.node)
	site := g.Site(it.node)
	ins := g.Method.Instructions[node.Start]

	s, args, err := in.PopN(ins.Args)
	if err != nil {
		return s, false, defs.Errorf(defs.MalformedProgram, site, "%s: %w", ins.Op, err)
	}
	callee, ok := a.prog.Method(node.Callee)
	if !ok {
		return s, false, defs.Errorf(defs.MalformedProgram, site, "unknown callee %s", node.Callee)
	}

	if callee.Native {
		eff, ok := a.natives[callee.Ref]
		if !ok {
			return s, false, defs.Errorf(defs.UnsupportedConstruct, site, "no effect summary for native %s", callee.Ref)
		}
		if eff.ClobbersHeap {
			s = invalidate(s.DropHeap(), isHeap)
		}
		if ins.Returns {
			res := L.Top
			if eff.Result != nil {
				res = eff.Result(args)
			}
			s = s.Push(L.Defined(res, site))
		}
		return s, true, nil
	}

	calleeCs := cs.Push(site, a.opts.CallStringLength)
	entry := L.EmptyState().WithHeap(s)
	for i, v := range args {
		entry = entry.Set(L.Local(i), L.Constant(v.Value()))
	}
	fr := frame{callee.Ref, calleeCs.Key()}
	if a.callers[fr] == nil {
		a.callers[fr] = map[item]struct{}{}
	}
	a.callers[fr][it] = struct{}{}
	if err := a.enter(callee.Ref, calleeCs, entry); err != nil {
		return s, false, err
	}

	exit, ok := a.exits[fr]
	if !ok {
		return s, false, nil
	}
	// Heap cells changed by the callee count as defined at the call.
	heap := L.EmptyState()
	exit.Heap().ForEach(func(loc L.Location, v L.ValueMapping) {
		if old, ok := s.Get(loc); !ok || !old.Eq(v) {
			v = definedAt(v, site)
		}
		heap = heap.Set(loc, v)
	})
	s = invalidate(s.WithHeap(heap), isHeap)
	if ins.Returns {
		s = s.Push(L.Defined(exit.Value(L.Return()).Value(), site))
	}
	return s, true, nil
}

func (a *analysis) String() string {
	return fmt.Sprintf("loop bound analysis (%d frames, %d states)", len(a.frames), len(a.states))
}
