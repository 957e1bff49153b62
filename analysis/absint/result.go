package absint

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jopdesign/wcet/analysis/defs"
	"github.com/jopdesign/wcet/program"
)

// Unbounded marks loops without an inferred bound.
const Unbounded = -1

// Result holds the loop bounds and infeasible branch outcomes found by the
// analysis, per call string.
type Result struct {
	prog program.Program
	// bounds maps loop header sites to a bound per call string key.
	bounds map[program.Site]map[string]int
	// branches maps conditional branch sites to the feasibility of the
	// [fall-through, taken] edges per call string key.
	branches map[program.Site]map[string][2]bool

	Metrics *Metrics
}

func newResult(prog program.Program) *Result {
	return &Result{
		prog:     prog,
		bounds:   map[program.Site]map[string]int{},
		branches: map[program.Site]map[string][2]bool{},
	}
}

func (r *Result) setBound(header program.Site, cs string, b int) {
	if r.bounds[header] == nil {
		r.bounds[header] = map[string]int{}
	}
	r.bounds[header][cs] = b
}

func (r *Result) setBranch(site program.Site, cs string, feasible [2]bool) {
	if r.branches[site] == nil {
		r.branches[site] = map[string][2]bool{}
	}
	r.branches[site][cs] = feasible
}

// matching calls do for every stored context compatible with cs.
func matching[V any](stored map[string]V, cs defs.CallString, do func(V)) error {
	for key, v := range stored {
		other, err := defs.ParseCallString(key)
		if err != nil {
			return err
		}
		if other.Matches(cs) {
			do(v)
		}
	}
	return nil
}

// Inferred returns the bound inferred for the loop headed at header when
// executed in cs: the largest bound over the compatible contexts.
func (r *Result) Inferred(header program.Site, cs defs.CallString) (int, bool) {
	found, bound := false, 0
	err := matching(r.bounds[header], cs, func(b int) {
		switch {
		case b == Unbounded || (found && bound == Unbounded):
			bound = Unbounded
		case b > bound:
			bound = b
		}
		found = true
	})
	if err != nil || !found || bound == Unbounded {
		return 0, false
	}
	return bound, true
}

// Annotated returns the source annotation of the loop headed at header.
func (r *Result) Annotated(header program.Site) (int, bool) {
	m, ok := r.prog.Method(header.Method)
	if !ok || header.Index < 0 || header.Index >= len(m.Instructions) {
		return 0, false
	}
	return m.Annotation(m.Instructions[header.Index].Line)
}

// LoopBound combines the inferred bound and the source annotation of a loop,
// keeping the tighter one.
func (r *Result) LoopBound(header program.Site, cs defs.CallString) (int, bool) {
	inferred, iok := r.Inferred(header, cs)
	annotated, aok := r.Annotated(header)
	switch {
	case iok && aok:
		return min(inferred, annotated), true
	case iok:
		return inferred, true
	case aok:
		return annotated, true
	}
	return 0, false
}

// Infeasible holds when the given outcome of the branch at site was never
// observed in any context compatible with cs.
func (r *Result) Infeasible(site program.Site, taken bool, cs defs.CallString) bool {
	found, infeasible := false, true
	err := matching(r.branches[site], cs, func(f [2]bool) {
		found = true
		if f[b2i(taken)] {
			infeasible = false
		}
	})
	return err == nil && found && infeasible
}

// Headers lists the analyzed loop headers, ordered by site.
func (r *Result) Headers() []program.Site {
	res := make([]program.Site, 0, len(r.bounds))
	for h := range r.bounds {
		res = append(res, h)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Method != res[j].Method {
			return res[i].Method < res[j].Method
		}
		return res[i].Index < res[j].Index
	})
	return res
}

// String lists the bounds per loop header and context.
func (r *Result) String() string {
	var sb strings.Builder
	for _, h := range r.Headers() {
		keys := make([]string, 0, len(r.bounds[h]))
		for k := range r.bounds[h] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b := "unbounded"
			if v := r.bounds[h][k]; v != Unbounded {
				b = fmt.Sprint(v)
			}
			fmt.Fprintf(&sb, "%s [%s]: %s", h, k, b)
			if a, ok := r.Annotated(h); ok {
				fmt.Fprintf(&sb, " (annotated %d)", a)
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
