package cfg

import (
	"sync"

	"github.com/jopdesign/wcet/analysis/defs"
	"github.com/jopdesign/wcet/program"
)

// Options selects the structural transforms applied to cached graphs.
type Options struct {
	ReturnNodes   bool `yaml:"returnNodes"`
	SplitNodes    bool `yaml:"splitNodes"`
	ContinueNodes bool `yaml:"continueNodes"`
}

// Cache builds the CFG of a method on first request. Cached graphs are
// resolved in the empty context and checked. They must be treated as
// read-only; clone them before further edits.
type Cache struct {
	prog program.Program
	opts Options

	mu   sync.Mutex
	cfgs map[program.MethodRef]*cacheEntry
}

type cacheEntry struct {
	once sync.Once
	g    *CFG
	err  error
}

func NewCache(prog program.Program, opts Options) *Cache {
	return &Cache{
		prog: prog,
		opts: opts,
		cfgs: make(map[program.MethodRef]*cacheEntry),
	}
}

func (c *Cache) Program() program.Program { return c.prog }

// Get returns the CFG of a method.
func (c *Cache) Get(ref program.MethodRef) (*CFG, error) {
	c.mu.Lock()
	entry, ok := c.cfgs[ref]
	if !ok {
		entry = &cacheEntry{}
		c.cfgs[ref] = entry
	}
	c.mu.Unlock()

	entry.once.Do(func() {
		entry.g, entry.err = c.build(ref)
	})
	return entry.g, entry.err
}

func (c *Cache) build(ref program.MethodRef) (*CFG, error) {
	m, ok := c.prog.Method(ref)
	if !ok {
		return nil, defs.MethodErrorf(defs.MalformedProgram, ref, "unknown method")
	}

	g, err := Build(m)
	if err != nil {
		return nil, err
	}
	if err := g.ResolveVirtualInvokes(c.prog, defs.EmptyCallString()); err != nil {
		return nil, err
	}
	if err := g.Check(); err != nil {
		return nil, err
	}

	if c.opts.ReturnNodes {
		g.InsertReturnNodes()
	}
	if c.opts.SplitNodes {
		g.InsertSplitNodes()
	}
	if c.opts.ContinueNodes {
		if err := g.InsertContinueLoopNodes(); err != nil {
			return nil, err
		}
	}

	// Reject irreducible graphs up front.
	if _, err := g.Topology(); err != nil {
		return nil, err
	}
	return g, nil
}

// Callees lists the methods invoked by ref, sorted and without duplicates.
func (c *Cache) Callees(ref program.MethodRef) ([]program.MethodRef, error) {
	g, err := c.Get(ref)
	if err != nil {
		return nil, err
	}
	seen := map[program.MethodRef]bool{}
	var res []program.MethodRef
	for _, n := range g.Invokes() {
		callee := g.nodes[n].Callee
		if !seen[callee] {
			seen[callee] = true
			res = append(res, callee)
		}
	}
	sortRefs(res)
	return res, nil
}

// Reachable lists the methods with code reachable from ref through invokes,
// ref included, in breadth-first order. Natives are listed but not entered.
func (c *Cache) Reachable(ref program.MethodRef) ([]program.MethodRef, error) {
	seen := map[program.MethodRef]bool{ref: true}
	queue := []program.MethodRef{ref}
	for i := 0; i < len(queue); i++ {
		m, ok := c.prog.Method(queue[i])
		if !ok {
			return nil, defs.MethodErrorf(defs.MalformedProgram, queue[i], "unknown method")
		}
		if m.Native {
			continue
		}
		callees, err := c.Callees(queue[i])
		if err != nil {
			return nil, err
		}
		for _, callee := range callees {
			if !seen[callee] {
				seen[callee] = true
				queue = append(queue, callee)
			}
		}
	}
	return queue, nil
}
