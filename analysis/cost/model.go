package cost

import (
	"fmt"

	"github.com/jopdesign/wcet/analysis/cfg"
	"github.com/jopdesign/wcet/analysis/defs"
	"github.com/jopdesign/wcet/program"
	"github.com/jopdesign/wcet/utils"
)

// Model prices CFG nodes and edges, and the method cache effects of
// invokes.
type Model struct {
	cfgs   *cfg.Cache
	prog   program.Program
	timing Timing
	config Config
	policy Policy
}

// NewModel validates the configuration and builds the cost model.
func NewModel(cfgs *cfg.Cache, c Config) (*Model, error) {
	timing, err := DefaultTiming().Override(c.Timing)
	if err != nil {
		return nil, err
	}
	policy, err := NewPolicy(c)
	if err != nil {
		return nil, err
	}
	return &Model{
		cfgs:   cfgs,
		prog:   cfgs.Program(),
		timing: timing,
		config: c,
		policy: policy,
	}, nil
}

// WithTiming returns a copy of the model using another timing table.
func (m *Model) WithTiming(t Timing) *Model {
	c := *m
	c.timing = t
	return &c
}

// WithPolicy returns a copy of the model using another cache policy.
func (m *Model) WithPolicy(p Policy) *Model {
	c := *m
	c.policy = p
	return &c
}

func (m *Model) Policy() Policy { return m.policy }

func (m *Model) String() string { return "cost model (" + m.policy.Name() + ")" }

// fallback prices an unmodeled construct when the unsafe fallback is on.
func (m *Model) fallback(site program.Site, format string, args ...interface{}) (int, error) {
	if !m.config.UnsafeFallback {
		return 0, defs.Errorf(defs.UnsupportedConstruct, site, format, args...)
	}
	utils.Unsafe("%v: %s, approximating with %d cycles", site, fmt.Sprintf(format, args...), FallbackCycles)
	return FallbackCycles, nil
}

// Instruction returns the execution time of the i'th instruction of method.
func (m *Model) Instruction(method *program.Method, i int) (int, error) {
	op := method.Instructions[i].Op
	if c, ok := m.timing[op]; ok {
		return c, nil
	}
	site := program.Site{Method: method.Ref, Index: i}
	if unbounded(op) {
		return m.fallback(site, "unbounded execution time of %s", op)
	}
	return m.fallback(site, "no timing for %s", op)
}

// Node returns the local execution time of a node: the instructions of a
// block, or the invoke instruction of an invoke node together with the
// time spent in a native callee. Synthetic nodes are free.
func (m *Model) Node(g *cfg.CFG, n cfg.NodeId) (int, error) {
	node := g.Node(n)
	switch node.Kind {
	case cfg.BlockNode:
		total := 0
		for i := node.Start; i < node.End; i++ {
			c, err := m.Instruction(g.Method, i)
			if err != nil {
				return 0, err
			}
			total += c
		}
		return total, nil
	case cfg.InvokeNode:
		c, err := m.Instruction(g.Method, node.Start)
		if err != nil {
			return 0, err
		}
		if callee, ok := m.prog.Method(node.Callee); ok && callee.Native {
			nc, ok := m.config.Natives[string(callee.Ref)]
			if !ok {
				if nc, err = m.fallback(g.Site(n), "no timing for native %s", callee.Ref); err != nil {
					return 0, err
				}
			}
			c += nc
		}
		return c, nil
	}
	return 0, nil
}

// Edge returns the alignment penalty of taking an edge.
func (m *Model) Edge(g *cfg.CFG, e cfg.EdgeId) int {
	if !m.config.Alignment {
		return 0
	}
	edge := g.Edge(e)
	switch edge.Kind {
	case cfg.BranchEdge, cfg.GotoEdge, cfg.SelectEdge:
	default:
		return 0
	}
	dst := g.Node(edge.Dst)
	if dst.Start < 0 || dst.Start >= len(g.Method.Instructions) {
		return 0
	}
	if g.Method.Offset(dst.Start)%8 != 0 {
		return m.config.AlignmentPenalty
	}
	return 0
}

// words returns the cache footprint of a method, failing for methods the
// cache cannot hold.
func (m *Model) words(ref program.MethodRef) (int, error) {
	method, ok := m.prog.Method(ref)
	if !ok {
		return 0, defs.MethodErrorf(defs.MalformedProgram, ref, "unknown method")
	}
	w := method.SizeInWords()
	if err := m.policy.Fits(w); err != nil {
		return 0, defs.MethodErrorf(defs.CacheConfigurationError, ref, "%w", err)
	}
	return w, nil
}

// MissPenalty is the time needed to load a method into the cache.
func (m *Model) MissPenalty(ref program.MethodRef) (int, error) {
	w, err := m.words(ref)
	if err != nil {
		return 0, err
	}
	return m.config.Latency + w*m.config.CyclesPerWord, nil
}

// Approx chooses the cache approximation of a scope rooted at ref.
func (m *Model) Approx(ref program.MethodRef) (defs.CacheApprox, error) {
	reach, err := m.cfgs.Reachable(ref)
	if err != nil {
		return defs.AlwaysMiss, err
	}
	var sizes []int
	for _, r := range reach {
		if method, ok := m.prog.Method(r); ok && method.Native {
			continue
		}
		w, err := m.words(r)
		if err != nil {
			return defs.AlwaysMiss, err
		}
		sizes = append(sizes, w)
	}
	return m.policy.Approx(sizes), nil
}

func (m *Model) isNative(ref program.MethodRef) bool {
	method, ok := m.prog.Method(ref)
	return ok && method.Native
}

// InvokeCost is the cache cost of one execution of an invoke of callee by
// caller, return included. Under AllFit every method is loaded once per
// scope execution, which LoadCost accounts for, so single invokes hit.
func (m *Model) InvokeCost(caller, callee program.MethodRef, approx defs.CacheApprox) (int, error) {
	if m.isNative(callee) {
		return 0, nil
	}
	if approx == defs.AlwaysHit || approx == defs.AllFit {
		return 2 * m.config.HitCycles, nil
	}

	invoke, err := m.MissPenalty(callee)
	if err != nil {
		return 0, err
	}
	callees, err := m.cfgs.Callees(callee)
	if err != nil {
		return 0, err
	}
	if m.policy.ReturnHits(len(callees) == 0) {
		return invoke + m.config.HitCycles, nil
	}
	ret, err := m.MissPenalty(caller)
	if err != nil {
		return 0, err
	}
	return invoke + ret, nil
}

// LoadCost is the cost of loading callee and every method reachable from
// it once. It bounds the misses caused by invoking callee inside an AllFit
// scope.
func (m *Model) LoadCost(callee program.MethodRef) (int, error) {
	reach, err := m.cfgs.Reachable(callee)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, r := range reach {
		if m.isNative(r) {
			continue
		}
		p, err := m.MissPenalty(r)
		if err != nil {
			return 0, err
		}
		total += p
	}
	return total, nil
}
