package ipet

import (
	"github.com/jopdesign/wcet/program"

	"golang.org/x/sync/errgroup"
)

// Outcome is the result of solving one target.
type Outcome struct {
	Target   program.MethodRef
	Solution *Solution
	Err      error
}

// SolveAll computes the WCET of several targets in parallel. A failing
// target does not stop the others; shared callees are solved once.
func (s *Solver) SolveAll(targets []program.MethodRef) []Outcome {
	res := make([]Outcome, len(targets))

	var eg errgroup.Group
	if s.opts.Jobs > 0 {
		eg.SetLimit(s.opts.Jobs)
	}
	for i, target := range targets {
		i, target := i, target
		eg.Go(func() error {
			sol, err := s.WCET(target)
			res[i] = Outcome{target, sol, err}
			return nil
		})
	}
	eg.Wait()
	return res
}
