package ipet

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/benbjohnson/immutable"
	"github.com/jopdesign/wcet/analysis/cfg"
	"github.com/jopdesign/wcet/analysis/cost"
	"github.com/jopdesign/wcet/analysis/defs"
	"github.com/jopdesign/wcet/program"
	"github.com/jopdesign/wcet/utils"
	"github.com/jopdesign/wcet/utils/graph"

	"golang.org/x/sync/singleflight"
)

// Solution is the worst-case execution of a method in one context.
type Solution struct {
	Method  program.MethodRef
	Context defs.Context
	Cost    WcetCost

	// NodeFlow and EdgeFlow are the execution counts along the worst-case
	// path. Nodes and edges that cannot carry flow are missing.
	NodeFlow map[cfg.NodeId]int
	EdgeFlow map[cfg.EdgeId]int
	// NodeCost is the cost of one execution of each node.
	NodeCost map[cfg.NodeId]WcetCost
	// Misses lists the callees loaded by an all-fit scope.
	Misses []program.MethodRef
}

func (s *Solution) WCET() int { return s.Cost.Total() }

type memoKey struct {
	method program.MethodRef
	ctx    defs.Context
}

func (k memoKey) Hash() uint32 {
	return utils.HashCombine(utils.StringHash(string(k.method)), k.ctx.Hash())
}

func (k memoKey) Equal(o memoKey) bool {
	return k.method == o.method && k.ctx.Equal(o.ctx)
}

func (k memoKey) String() string { return string(k.method) + "|" + k.ctx.Key() }

// Solver computes WCETs by implicit path enumeration, one linear program per
// method and context. Solutions and failures are memoized; the solver may be
// used from several goroutines.
type Solver struct {
	cfgs   *cfg.Cache
	model  *cost.Model
	bounds LoopBounds
	opts   Options

	mu     sync.Mutex
	memo   *immutable.Map[memoKey, *Solution]
	failed *immutable.Map[memoKey, error]
	flight singleflight.Group
}

func NewSolver(cfgs *cfg.Cache, model *cost.Model, bounds LoopBounds, opts Options) *Solver {
	return &Solver{
		cfgs:   cfgs,
		model:  model,
		bounds: bounds,
		opts:   opts,
		memo:   utils.NewImmMap[memoKey, *Solution](),
		failed: utils.NewImmMap[memoKey, error](),
	}
}

func (s *Solver) Model() *cost.Model { return s.model }

// WCET solves a root method in the empty call string, under the cache
// approximation the policy picks for it.
func (s *Solver) WCET(ref program.MethodRef) (*Solution, error) {
	if err := s.checkRecursion(ref); err != nil {
		return nil, err
	}
	approx, err := s.model.Approx(ref)
	if err != nil {
		return nil, err
	}
	return s.Solve(ref, defs.MakeContext(defs.EmptyCallString(), approx))
}

// checkRecursion rejects call graphs with cycles reachable from ref.
func (s *Solver) checkRecursion(ref program.MethodRef) error {
	var err error
	callGraph := graph.OfHashable(func(m program.MethodRef) []program.MethodRef {
		callees, cerr := s.cfgs.Callees(m)
		if cerr != nil && err == nil {
			err = cerr
		}
		return callees
	})
	sccs := callGraph.SCC([]program.MethodRef{ref})
	if err != nil {
		return err
	}
	for _, comp := range sccs.Components {
		for _, m := range comp {
			if sccs.Cyclic(m) {
				return defs.MethodErrorf(defs.UnsupportedConstruct, m, "recursive call graph through %v", comp)
			}
		}
	}
	return nil
}

func (s *Solver) lookup(key memoKey) (*Solution, error, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sol, ok := s.memo.Get(key); ok {
		return sol, nil, true
	}
	if err, ok := s.failed.Get(key); ok {
		return nil, err, true
	}
	return nil, nil, false
}

func (s *Solver) record(key memoKey, sol *Solution, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failed = s.failed.Set(key, err)
	} else {
		s.memo = s.memo.Set(key, sol)
	}
}

// Failures lists the (method, context) pairs that could not be solved.
func (s *Solver) Failures() map[string]error {
	s.mu.Lock()
	failed := s.failed
	s.mu.Unlock()

	res := map[string]error{}
	for itr := failed.Iterator(); !itr.Done(); {
		k, err, _ := itr.Next()
		res[string(k.method)+" "+k.ctx.Plain()] = err
	}
	return res
}

// Solve returns the memoized solution of a method in a context, computing it
// on first request. Concurrent requests for the same pair share one
// computation.
func (s *Solver) Solve(ref program.MethodRef, ctx defs.Context) (*Solution, error) {
	key := memoKey{ref, ctx}
	if sol, err, ok := s.lookup(key); ok {
		return sol, err
	}
	v, err, _ := s.flight.Do(key.String(), func() (interface{}, error) {
		if sol, err, ok := s.lookup(key); ok {
			return sol, err
		}
		sol, err := s.solve(ref, ctx)
		s.record(key, sol, err)
		return sol, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*Solution), nil
}

func (s *Solver) graph(ref program.MethodRef) (*cfg.CFG, error) {
	g, err := s.cfgs.Get(ref)
	if err != nil || !s.opts.SummarizeLoops {
		return g, err
	}
	g = g.Clone()
	if _, err := g.InsertSummaryNodes(); err != nil {
		return nil, err
	}
	return g, nil
}

// calleeApprox is the context a callee is analyzed in. Inside always-hit
// and all-fit scopes everything the callee touches is already cached.
func (s *Solver) calleeApprox(callee program.MethodRef, scope defs.CacheApprox) (defs.CacheApprox, error) {
	if scope != defs.AlwaysMiss {
		return defs.AlwaysHit, nil
	}
	return s.model.Approx(callee)
}

// nodeCost prices one execution of a node in the given context.
func (s *Solver) nodeCost(g *cfg.CFG, n cfg.NodeId, ctx defs.Context) (WcetCost, error) {
	node := g.Node(n)
	switch node.Kind {
	case cfg.BlockNode:
		c, err := s.model.Node(g, n)
		return WcetCost{Local: c}, err
	case cfg.SummaryNode:
		c, err := s.summaryCost(g, n, ctx.CallString)
		return WcetCost{Local: c}, err
	case cfg.InvokeNode:
	default:
		return WcetCost{}, nil
	}

	if node.Virtual {
		return WcetCost{}, defs.Errorf(defs.MalformedProgram, g.Site(n),
			"invoke of %s is still virtual, resolve it before solving", node.Callee).In(ctx)
	}
	local, err := s.model.Node(g, n)
	if err != nil {
		return WcetCost{}, err
	}
	res := WcetCost{Local: local}
	if callee, ok := s.cfgs.Program().Method(node.Callee); !ok || callee.Native {
		return res, nil
	}

	approx, err := s.calleeApprox(node.Callee, ctx.Cache)
	if err != nil {
		return WcetCost{}, err
	}
	calleeCtx := defs.MakeContext(ctx.CallString.Push(g.Site(n), s.opts.CallStringLength), approx)
	sol, err := s.Solve(node.Callee, calleeCtx)
	if err != nil {
		return WcetCost{}, err
	}
	res.NonLocal = sol.WCET()

	if res.Cache, err = s.model.InvokeCost(g.Method.Ref, node.Callee, ctx.Cache); err != nil {
		return WcetCost{}, err
	}
	return res, nil
}

// summaryCost bounds a collapsed loop: every iteration but the last takes
// the longest path back to the header, the last one the longest path out.
func (s *Solver) summaryCost(g *cfg.CFG, n cfg.NodeId, cs defs.CallString) (int, error) {
	sum := g.Node(n).Summary
	bound, ok := s.bounds.LoopBound(g.Site(sum.Header), cs)
	if !ok {
		return 0, defs.Errorf(defs.AnalysisNonconvergence, g.Site(sum.Header), "unbounded loop")
	}

	costs := map[cfg.NodeId]int{}
	for _, m := range sum.Members {
		var c int
		var err error
		if g.Node(m).Kind == cfg.SummaryNode {
			c, err = s.summaryCost(g, m, cs)
		} else {
			c, err = s.model.Node(g, m)
		}
		if err != nil {
			return 0, err
		}
		costs[m] = c
	}
	back := map[cfg.EdgeId]bool{}
	backSrc := map[cfg.NodeId]bool{}
	backAlign := 0
	for _, e := range sum.BackEdges {
		back[e] = true
		backSrc[g.Edge(e).Src] = true
		backAlign = max(backAlign, s.model.Edge(g, e))
	}
	internal := map[cfg.NodeId][]cfg.EdgeId{}
	for _, e := range sum.Internal {
		if !back[e] {
			internal[g.Edge(e).Src] = append(internal[g.Edge(e).Src], e)
		}
	}

	d := dag{
		out:      func(m cfg.NodeId) []cfg.EdgeId { return internal[m] },
		dst:      func(e cfg.EdgeId) cfg.NodeId { return g.Edge(e).Dst },
		nodeCost: func(m cfg.NodeId) int { return costs[m] },
		edgeCost: func(e cfg.EdgeId) int { return s.model.Edge(g, e) },
	}
	iter, _ := d.longest(sum.Header, func(m cfg.NodeId) bool { return backSrc[m] })
	last, ok := d.longest(sum.Header, func(m cfg.NodeId) bool { return m == sum.Exit })
	if !ok {
		return 0, defs.Errorf(defs.MalformedProgram, g.Site(sum.Header), "summarized loop has no exit")
	}
	return bound*(iter+backAlign) + last, nil
}

func (s *Solver) solve(ref program.MethodRef, ctx defs.Context) (*Solution, error) {
	g, err := s.graph(ref)
	if err != nil {
		return nil, err
	}
	topo, err := g.Topology()
	if err != nil {
		return nil, err
	}
	cs := ctx.CallString

	fg, ok := prune(g, s.bounds, cs)
	if !ok {
		return nil, defs.MethodErrorf(defs.SolverFailure, ref, "no feasible path from entry to exit").In(ctx)
	}

	nodes := make([]cfg.NodeId, 0, len(fg.nodes))
	for n := range fg.nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })
	edges := make([]cfg.EdgeId, 0, len(fg.edges))
	for e := range fg.edges {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i] < edges[j] })

	nodeCost := map[cfg.NodeId]WcetCost{}
	for _, n := range nodes {
		if nodeCost[n], err = s.nodeCost(g, n, ctx); err != nil {
			return nil, err
		}
	}

	// The flow through a node is the flow of its incoming edges, so node
	// costs are charged on those edges.
	p := &problem{}
	col := map[cfg.EdgeId]int{}
	for _, e := range edges {
		c := nodeCost[g.Edge(e).Dst].Total() + s.model.Edge(g, e)
		col[e] = p.addVar(fmt.Sprintf("e%d", e), float64(c))
	}

	for _, n := range nodes {
		if n == g.Exit() {
			continue
		}
		row := map[int]float64{}
		for _, e := range g.Out(n) {
			if fg.edges[e] {
				row[col[e]] -= 1
			}
		}
		if n == g.Entry() {
			for v := range row {
				row[v] = 1
			}
			p.addRow(row, eq, 1)
			continue
		}
		for _, e := range g.In(n) {
			if fg.edges[e] {
				row[col[e]] += 1
			}
		}
		p.addRow(row, eq, 0)
	}

	for _, h := range topo.Loops.Headers {
		if !fg.nodes[h] {
			continue
		}
		bound, ok := s.bounds.LoopBound(g.Site(h), cs)
		if !ok {
			return nil, defs.Errorf(defs.AnalysisNonconvergence, g.Site(h), "unbounded loop").In(ctx)
		}
		row := map[int]float64{}
		for _, e := range topo.Loops.BackEdges(h) {
			if fg.edges[e] {
				row[col[e]] += 1
			}
		}
		if len(row) == 0 {
			continue
		}
		for _, e := range topo.Loops.EntryEdges(h) {
			if fg.edges[e] {
				row[col[e]] -= float64(bound)
			}
		}
		p.addRow(row, le, 0)
	}

	// Inside an all-fit scope each callee, and what it reaches, is loaded at
	// most once, and only if it is invoked at all.
	type miss struct {
		callee program.MethodRef
		v      int
		cost   int
	}
	var misses []miss
	if ctx.Cache == defs.AllFit {
		invokes := map[program.MethodRef][]cfg.NodeId{}
		var callees []program.MethodRef
		for _, n := range nodes {
			node := g.Node(n)
			if node.Kind != cfg.InvokeNode {
				continue
			}
			if m, ok := s.cfgs.Program().Method(node.Callee); ok && m.Native {
				continue
			}
			if _, seen := invokes[node.Callee]; !seen {
				callees = append(callees, node.Callee)
			}
			invokes[node.Callee] = append(invokes[node.Callee], n)
		}
		for _, c := range callees {
			load, err := s.model.LoadCost(c)
			if err != nil {
				return nil, err
			}
			v := p.addVar("miss "+string(c), float64(load))
			misses = append(misses, miss{c, v, load})
			p.addRow(map[int]float64{v: 1}, le, 1)
			row := map[int]float64{v: 1}
			for _, n := range invokes[c] {
				for _, e := range g.In(n) {
					if fg.edges[e] {
						row[col[e]] -= 1
					}
				}
			}
			p.addRow(row, le, 0)
		}
	}

	opt, x, err := p.solve()
	if err != nil {
		utils.VerbosePrint("%s %s: linear program\n%s", ref, ctx, p)
		return nil, defs.MethodErrorf(defs.SolverFailure, ref, "%w", err).In(ctx)
	}

	sol := &Solution{
		Method:   ref,
		Context:  ctx,
		NodeFlow: map[cfg.NodeId]int{},
		EdgeFlow: map[cfg.EdgeId]int{},
		NodeCost: nodeCost,
	}
	for _, e := range edges {
		f := int(math.Round(x[col[e]]))
		sol.EdgeFlow[e] = f
		sol.NodeFlow[g.Edge(e).Dst] += f
		sol.Cost.Local += f * s.model.Edge(g, e)
	}
	sol.NodeFlow[g.Entry()] = 1
	for _, n := range nodes {
		sol.Cost = sol.Cost.Add(nodeCost[n].Scale(sol.NodeFlow[n]))
	}
	for _, m := range misses {
		if math.Round(x[m.v]) >= 1 {
			sol.Misses = append(sol.Misses, m.callee)
			sol.Cost.Cache += m.cost
		}
	}

	if err := s.check(g, sol, opt); err != nil {
		return nil, err
	}
	utils.VerbosePrint("%s %s: %s\n", ref, ctx, sol.Cost)
	return sol, nil
}

// check validates an integral solution against the linear program: flow is
// conserved and the recomputed cost matches the optimum.
func (s *Solver) check(g *cfg.CFG, sol *Solution, opt float64) error {
	fail := func(format string, args ...interface{}) error {
		return defs.MethodErrorf(defs.SolverFailure, sol.Method, format, args...).In(sol.Context)
	}
	for n, f := range sol.NodeFlow {
		if n == g.Exit() {
			continue
		}
		out := 0
		for _, e := range g.Out(n) {
			out += sol.EdgeFlow[e]
		}
		if out != f {
			return fail("flow not conserved at %s: %d in, %d out", g.NodeString(n), f, out)
		}
	}
	if got, want := sol.Cost.Total(), int(math.Round(opt)); got != want {
		return fail("inconsistent solution: recomputed cost %d, objective %d", got, want)
	}
	return nil
}
