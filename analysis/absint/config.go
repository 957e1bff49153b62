package absint

import (
	"github.com/jopdesign/wcet/analysis/lattice"
	"github.com/jopdesign/wcet/program"
)

// Options configures the loop bound analysis.
type Options struct {
	// CallStringLength bounds the call strings used as contexts.
	CallStringLength int `yaml:"callString"`
	// WidenAfter is the number of joins at a loop header or method entry
	// before widening kicks in.
	WidenAfter int `yaml:"widenAfter"`
	// MaxSteps aborts analyses that do not stabilize.
	MaxSteps int `yaml:"maxSteps"`
	// InitialHeap holds the value ranges of heap cells when the root method
	// starts, as [low, high] pairs.
	InitialHeap map[string][2]int `yaml:"initialHeap"`
	// ResultCacheDir stores results keyed by program hash. Empty disables
	// persistence.
	ResultCacheDir string `yaml:"resultCacheDir"`
}

func DefaultOptions() Options {
	return Options{
		CallStringLength: 1,
		WidenAfter:       3,
		MaxSteps:         1_000_000,
	}
}

func (o Options) initialHeap() lattice.State {
	s := lattice.EmptyState()
	for name, r := range o.InitialHeap {
		s = s.Set(lattice.Heap(name), lattice.Constant(lattice.FiniteInterval(r[0], r[1])))
	}
	return s
}

// NativeEffect summarizes a native method for the interpreter.
type NativeEffect struct {
	// Result computes the returned value. Nil for natives producing none.
	Result func(args []lattice.ValueMapping) lattice.Interval
	// ClobbersHeap is set for natives writing memory.
	ClobbersHeap bool
}

// Natives maps native methods to their effects.
type Natives map[program.MethodRef]NativeEffect

func unknownResult([]lattice.ValueMapping) lattice.Interval { return lattice.Top }

// DefaultNatives covers the hardware access primitives of the runtime.
func DefaultNatives() Natives {
	return Natives{
		"Native.rd":        {Result: unknownResult},
		"Native.rdMem":     {Result: unknownResult},
		"Native.rdIntMem":  {Result: unknownResult},
		"Native.getStatic": {Result: unknownResult},
		"Native.getSP":     {Result: unknownResult},
		"Native.toInt":     {Result: unknownResult},
		"Native.wr":        {ClobbersHeap: true},
		"Native.wrMem":     {ClobbersHeap: true},
		"Native.wrIntMem":  {ClobbersHeap: true},
		"Native.putStatic": {ClobbersHeap: true},
		"Native.memCopy":   {ClobbersHeap: true},
		"Native.condMove": {Result: func(args []lattice.ValueMapping) lattice.Interval {
			if len(args) < 2 {
				return lattice.Top
			}
			return args[0].Value().Join(args[1].Value())
		}},
	}
}
