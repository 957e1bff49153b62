package ipet

import (
	"fmt"

	"github.com/jopdesign/wcet/analysis/defs"
	"github.com/jopdesign/wcet/program"
)

// Options configures the WCET computation.
type Options struct {
	// CallStringLength bounds the call strings separating callee contexts.
	// It should match the one the loop bounds were computed with.
	CallStringLength int `yaml:"callString"`
	// SummarizeLoops collapses simple loops into summary nodes before the
	// linear program is built.
	SummarizeLoops bool `yaml:"summarizeLoops"`
	// Jobs bounds the number of targets solved in parallel.
	Jobs int `yaml:"jobs"`
}

func DefaultOptions() Options {
	return Options{CallStringLength: 1, Jobs: 4}
}

// LoopBounds supplies flow facts. It is implemented by the results of the
// loop bound analysis.
type LoopBounds interface {
	// LoopBound is the maximal number of back edge traversals per entry of
	// the loop headed at header.
	LoopBound(header program.Site, cs defs.CallString) (int, bool)
	// Infeasible holds when the branch at site never goes the given way.
	Infeasible(site program.Site, taken bool, cs defs.CallString) bool
}

// WcetCost splits an execution time in cycles.
type WcetCost struct {
	// Local is spent in the instructions of the method itself.
	Local int
	// NonLocal is spent in callees.
	NonLocal int
	// Cache is spent loading methods into the method cache.
	Cache int
}

func (c WcetCost) Total() int { return c.Local + c.NonLocal + c.Cache }

func (c WcetCost) Add(o WcetCost) WcetCost {
	return WcetCost{c.Local + o.Local, c.NonLocal + o.NonLocal, c.Cache + o.Cache}
}

func (c WcetCost) Scale(k int) WcetCost {
	return WcetCost{c.Local * k, c.NonLocal * k, c.Cache * k}
}

func (c WcetCost) String() string {
	return fmt.Sprintf("%d (local %d, non-local %d, cache %d)", c.Total(), c.Local, c.NonLocal, c.Cache)
}
