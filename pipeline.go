package main

import (
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/jopdesign/wcet/analysis/absint"
	"github.com/jopdesign/wcet/analysis/cfg"
	"github.com/jopdesign/wcet/analysis/cost"
	"github.com/jopdesign/wcet/analysis/ipet"
	"github.com/jopdesign/wcet/program"
	"github.com/jopdesign/wcet/utils"
)

// pipeline is a wrapper around the analysis stages of one program.
type pipeline struct {
	prog    program.Program
	conf    Config
	cfgs    *cfg.Cache
	targets []program.MethodRef
}

func newPipeline(prog program.Program, conf Config) (pipeline, error) {
	p := pipeline{
		prog: prog,
		conf: conf,
		cfgs: cfg.NewCache(prog, conf.CFG),
	}
	for _, m := range prog.Methods() {
		if !m.Native && !m.Abstract && opts.IsTarget(string(m.Ref)) {
			p.targets = append(p.targets, m.Ref)
		}
	}
	sort.Slice(p.targets, func(i, j int) bool { return p.targets[i] < p.targets[j] })
	if len(p.targets) == 0 {
		return p, fmt.Errorf("no method matches %q", opts.Function())
	}
	return p, nil
}

// loopBounds runs the dataflow analysis from every target, reusing a
// persisted result when the program did not change.
func (p pipeline) loopBounds() (*absint.Result, error) {
	log.Println("Inferring loop bounds...")
	defer utils.TimeTrack(time.Now(), "Loop bound inference")
	res, err := absint.AnalyzeCached(p.cfgs, p.conf.Dataflow, absint.DefaultNatives(), p.targets...)
	if err != nil {
		return nil, err
	}
	log.Println("Loop bounds done:", res.Metrics)

	opts.OnVerbose(func() {
		fmt.Print(res)
	})
	return res, nil
}

func (p pipeline) costModel() (*cost.Model, error) {
	return cost.NewModel(p.cfgs, p.conf.Processor)
}

// wcet computes the reports of every target.
func (p pipeline) wcet() ([]ipet.Report, *absint.Result, error) {
	bounds, err := p.loopBounds()
	if err != nil {
		return nil, nil, err
	}
	model, err := p.costModel()
	if err != nil {
		return nil, bounds, err
	}

	log.Println("Solving", len(p.targets), "target(s) with", model)
	defer utils.TimeTrack(time.Now(), "IPET")
	reports, err := ipet.Analyze(p.cfgs, model, bounds, p.conf.IPET, p.targets...)
	return reports, bounds, err
}
