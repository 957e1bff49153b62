package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/jopdesign/wcet/analysis/defs"
	"github.com/jopdesign/wcet/program"
	"github.com/jopdesign/wcet/utils"

	"github.com/fatih/color"
)

var (
	opts = utils.Opts()
	task = opts.Task()
)

func main() {
	utils.ParseArgs()

	prog, err := program.LoadFile(opts.Program())
	if err != nil {
		log.Println("Failed to load", opts.Program())
		log.Fatalln(err)
	}

	conf, err := LoadConfig(opts.Config())
	if err != nil {
		log.Fatalln(err)
	}
	conf.override()

	pl, err := newPipeline(prog, conf)
	if err != nil {
		log.Fatalln(err)
	}

	if !task.IsWcet() {
		if err := pl.secondaryTask(); err != nil {
			fail(err)
		}
		return
	}

	reports, bounds, err := pl.wcet()
	if err != nil {
		fail(err)
	}
	failed := gatherMetrics(bounds, reports)

	if opts.Visualize() {
		pl.visualize(reports)
	}
	if failed {
		os.Exit(1)
	}
}

// fail reports a fatal analysis error. Unbounded loops are reported as such
// rather than as a crash.
func fail(err error) {
	if errors.Is(err, defs.AnalysisNonconvergence) {
		fmt.Println(color.YellowString("unbounded:"), err)
		os.Exit(2)
	}
	log.Fatalln(color.RedString("error:"), err)
}
