package main

import (
	"fmt"
	"log"
	"os"

	"github.com/jopdesign/wcet/analysis/cfg"
	"github.com/jopdesign/wcet/program"
	"github.com/jopdesign/wcet/utils"

	"github.com/fatih/color"
)

// secondaryTask executes the tasks other than the WCET computation.
func (pl pipeline) secondaryTask() error {
	switch {
	// loop-bounds : runs the dataflow analysis and lists the bound of every
	// loop header per call string.
	case task.IsLoopBounds():
		res, err := pl.loopBounds()
		if err != nil {
			return err
		}
		fmt.Println("================ Loop bounds =================")
		fmt.Print(res)
		fmt.Println(color.GreenString("%d loop header(s)", len(res.Headers())))

	// cfg-to-dot : renders the graphs of the targets.
	case task.IsCfgToDot():
		if err := os.MkdirAll(opts.OutDir(), 0o755); err != nil {
			return err
		}
		log.Println("Preparing to visualize CFGs:")
		return pl.eachGraph(func(g *cfg.CFG) error {
			path, err := g.Visualize(opts.OutDir(), opts.OutputFormat(), nil)
			if err == nil {
				log.Println("Wrote", path)
			}
			return err
		})

	// dump-cfg : prints the graphs of the targets with their loop structure.
	case task.IsDumpCfg():
		return pl.eachGraph(func(g *cfg.CFG) error {
			topo, err := g.Topology()
			if err != nil {
				return err
			}
			fmt.Println(utils.MethodString(string(g.Method.Ref)))
			fmt.Println(g)
			for _, h := range topo.Loops.Headers {
				fmt.Printf("loop %s: %d member(s), %d exit(s)\n",
					g.NodeString(h), len(topo.Loops.Members(h)), len(topo.Loops.ExitEdges(h)))
			}
			fmt.Println()
			return nil
		})

	// hash : prints the content hash keying persisted results.
	case task.IsHash():
		h, err := program.Hash(pl.prog)
		if err != nil {
			return err
		}
		fmt.Println(h)
	}
	return nil
}

func (pl pipeline) eachGraph(do func(*cfg.CFG) error) error {
	for _, t := range pl.targets {
		g, err := pl.cfgs.Get(t)
		if err != nil {
			return err
		}
		if err := do(g); err != nil {
			return err
		}
	}
	return nil
}
