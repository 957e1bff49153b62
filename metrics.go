package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/jopdesign/wcet/analysis/absint"
	"github.com/jopdesign/wcet/analysis/cfg"
	"github.com/jopdesign/wcet/analysis/defs"
	"github.com/jopdesign/wcet/analysis/ipet"
	"github.com/jopdesign/wcet/utils"

	"github.com/fatih/color"
)

// gatherMetrics prints the results of a WCET run and tells whether any
// target failed.
func gatherMetrics(bounds *absint.Result, reports []ipet.Report) (failed bool) {
	msg := "================ Results =====================\n\n"

	if bounds != nil && bounds.Metrics != nil {
		msg += "Loop bounds: " + bounds.Metrics.String() + "\n\n"
	}

	sort.Slice(reports, func(i, j int) bool { return reports[i].Target < reports[j].Target })
	solved := 0
	for _, r := range reports {
		msg += r.String()
		switch {
		case r.Err == nil:
			solved++
		case errors.Is(r.Err, defs.AnalysisNonconvergence):
			msg += "  " + color.YellowString("unbounded") + "\n"
			failed = true
		default:
			failed = true
		}
		msg += "\n"
	}

	summary := fmt.Sprintf("%d/%d targets solved", solved, len(reports))
	if failed {
		msg += utils.CanColorize(color.New(color.FgRed).SprintFunc())(summary) + "\n"
	} else {
		msg += utils.CanColorize(color.New(color.FgGreen).SprintFunc())(summary) + "\n"
	}
	fmt.Print(msg)
	return failed
}

// visualize renders the target graphs annotated with the worst-case flow.
func (p pipeline) visualize(reports []ipet.Report) {
	if err := os.MkdirAll(opts.OutDir(), 0o755); err != nil {
		log.Println(err)
		return
	}
	for _, r := range reports {
		g, err := p.cfgs.Get(r.Target)
		if err != nil {
			log.Println(err)
			continue
		}
		var annotate func(cfg.NodeId) string
		if sol := r.Solution; sol != nil {
			annotate = func(n cfg.NodeId) string {
				return fmt.Sprintf("flow %d, cost %d", sol.NodeFlow[n], sol.NodeCost[n].Total())
			}
		}
		path, err := g.Visualize(opts.OutDir(), opts.OutputFormat(), annotate)
		if err != nil {
			log.Println(err)
			continue
		}
		log.Println("Wrote", path)
	}
}
