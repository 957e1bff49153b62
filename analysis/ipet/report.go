package ipet

import (
	"fmt"
	"strings"

	"github.com/jopdesign/wcet/analysis/cfg"
	"github.com/jopdesign/wcet/analysis/cost"
	"github.com/jopdesign/wcet/program"
	"github.com/jopdesign/wcet/utils"
)

// Report summarizes the WCET of one target under several cache models.
type Report struct {
	Target program.MethodRef
	// Policy names the configured cache policy.
	Policy string

	Tree       int
	AlwaysMiss int
	AlwaysHit  int
	// Solution is the solution under the configured policy.
	Solution *Solution

	// Err is the first failure among the analyses. Figures of the analyses
	// that failed are zero.
	Err error
}

func (r Report) WCET() int {
	if r.Solution == nil {
		return 0
	}
	return r.Solution.WCET()
}

func (r Report) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n", utils.MethodString(string(r.Target)))
	if r.Err != nil {
		fmt.Fprintf(&sb, "  error: %v\n", r.Err)
	}
	if r.Solution != nil {
		fmt.Fprintf(&sb, "  wcet (%s): %s\n", r.Policy, utils.CyclesString(r.Solution.Cost))
	}
	fmt.Fprintf(&sb, "  tree bound:  %s\n", utils.CyclesString(r.Tree))
	fmt.Fprintf(&sb, "  always miss: %s\n", utils.CyclesString(r.AlwaysMiss))
	fmt.Fprintf(&sb, "  always hit:  %s\n", utils.CyclesString(r.AlwaysHit))
	return sb.String()
}

// Analyze reports the WCET of every target under the configured cache
// policy, under the always-miss and always-hit models, and the tree bound.
func Analyze(cfgs *cfg.Cache, model *cost.Model, bounds LoopBounds, opts Options, targets ...program.MethodRef) ([]Report, error) {
	solverFor := func(policy string) (*Solver, error) {
		p, err := cost.NewPolicy(cost.Config{Policy: policy})
		if err != nil {
			return nil, err
		}
		return NewSolver(cfgs, model.WithPolicy(p), bounds, opts), nil
	}
	miss, err := solverFor("always-miss")
	if err != nil {
		return nil, err
	}
	hit, err := solverFor("always-hit")
	if err != nil {
		return nil, err
	}
	configured := NewSolver(cfgs, model, bounds, opts)

	reports := make([]Report, len(targets))
	for i, t := range targets {
		reports[i] = Report{Target: t, Policy: model.Policy().Name()}
	}
	note := func(r *Report, err error) {
		if err != nil && r.Err == nil {
			r.Err = err
		}
	}

	for i, o := range configured.SolveAll(targets) {
		reports[i].Solution = o.Solution
		note(&reports[i], o.Err)
	}
	for i, o := range miss.SolveAll(targets) {
		if o.Err == nil {
			reports[i].AlwaysMiss = o.Solution.WCET()
		}
		note(&reports[i], o.Err)
	}
	for i, o := range hit.SolveAll(targets) {
		if o.Err == nil {
			reports[i].AlwaysHit = o.Solution.WCET()
		}
		note(&reports[i], o.Err)
	}
	for i := range reports {
		tb, err := configured.TreeBound(targets[i])
		reports[i].Tree = tb
		note(&reports[i], err)
	}
	return reports, nil
}
