package utils

import (
	"flag"
	"fmt"
	"log"
	"strings"
)

type options struct {
	minlen         uint
	nodesep        float64
	callString     int
	jobs           int
	function       string
	program        string
	config         string
	cachePolicy    string
	outputFormat   string
	outDir         string
	resultCacheDir string
	task           string
	noColorize     bool
	verbose        bool
	visualize      bool
	unsafeCosts    bool
}

const (
	_WCET = iota
	_LOOP_BOUNDS
	_CFG_TO_DOT
	_DUMP_CFG
	_HASH
)

func CanColorize(col func(...interface{}) string) func(...interface{}) string {
	if opts.noColorize {
		return func(is ...interface{}) string {
			return fmt.Sprintf(strings.Repeat("%s", len(is)), is...)
		}
	}
	return col
}

var task = []struct{ flag, explanation string }{{
	"wcet",
	"Compute the tree, always-miss, always-hit and cache-aware WCET of every target method",
}, {
	"loop-bounds",
	"Run the interval dataflow analysis and print the inferred loop bounds per call string",
}, {
	"cfg-to-dot",
	"Render the control-flow graphs of the target methods",
}, {
	"dump-cfg",
	"Print the control-flow graphs of the target methods as text",
}, {
	"hash",
	"Print the content hash of the loaded program",
}}

var opts = &options{}

type optInterface struct{}

type taskInterface struct{}

func Opts() optInterface {
	return optInterface{}
}

func (optInterface) NoColorize() bool {
	return opts.noColorize
}
func (optInterface) Minlen() uint {
	return opts.minlen
}
func (optInterface) Nodesep() float64 {
	return opts.nodesep
}

// Function is the comma separated list of target method names.
func (optInterface) Function() string {
	return opts.function
}
func (optInterface) Program() string {
	return opts.program
}
func (optInterface) Config() string {
	return opts.config
}

// CallString is the call string length requested on the command line, or -1.
func (optInterface) CallString() int {
	return opts.callString
}

// CachePolicy overrides the configured cache policy when non-empty.
func (optInterface) CachePolicy() string {
	return opts.cachePolicy
}
func (optInterface) Jobs() int {
	return opts.jobs
}
func (optInterface) OutputFormat() string {
	return opts.outputFormat
}
func (optInterface) OutDir() string {
	return opts.outDir
}
func (optInterface) ResultCacheDir() string {
	return opts.resultCacheDir
}
func (optInterface) Verbose() bool {
	return opts.verbose
}
func (optInterface) Visualize() bool {
	return opts.visualize
}

// UnsafeCosts enables the fallback cost for instructions without a bounded
// execution time.
func (optInterface) UnsafeCosts() bool {
	return opts.unsafeCosts
}

func (optInterface) Task() taskInterface {
	return taskInterface{}
}
func (taskInterface) IsWcet() bool {
	return opts.task == task[_WCET].flag
}
func (taskInterface) IsLoopBounds() bool {
	return opts.task == task[_LOOP_BOUNDS].flag
}
func (taskInterface) IsCfgToDot() bool {
	return opts.task == task[_CFG_TO_DOT].flag
}
func (taskInterface) IsDumpCfg() bool {
	return opts.task == task[_DUMP_CFG].flag
}
func (taskInterface) IsHash() bool {
	return opts.task == task[_HASH].flag
}

func init() {
	taskFlag := "\n"
	for _, task := range task {
		taskFlag += task.flag + " -- " + task.explanation + "\n"
	}
	taskFlag += "\n"

	flag.UintVar(&(opts.minlen), "minlen", 2, "Minimum edge length (for wider output).")
	flag.Float64Var(&(opts.nodesep), "nodesep", 0.35, "Minimum space between two adjacent nodes in the same rank (for taller output).")
	flag.StringVar(&(opts.function), "fun", "measure", "target methods, comma separated.\n"+
		"- Names need not be fully qualified. A simple name matches every method whose reference ends with it.\n"+
		"- Use '.' to target every method.\n")
	flag.StringVar(&(opts.program), "program", "", "YAML program description to analyze")
	flag.StringVar(&(opts.config), "config", "", "YAML processor and analysis configuration (defaults apply when empty)")
	flag.IntVar(&(opts.callString), "callstring", -1, "call string length for the dataflow and IPET contexts (overrides the configuration)")
	flag.StringVar(&(opts.cachePolicy), "cache", "", "cache policy [always-hit | always-miss | lru | fifo | varblock] (overrides the configuration)")
	flag.IntVar(&(opts.jobs), "jobs", 4, "number of target methods solved in parallel")
	flag.StringVar(&(opts.outputFormat), "format", "svg", "output file format [svg | png | jpg | ...]")
	flag.StringVar(&(opts.outDir), "outdir", "out", "directory receiving rendered graphs")
	flag.StringVar(&(opts.resultCacheDir), "result-cache", "", "directory of persisted dataflow results (disabled when empty)")
	flag.StringVar(&(opts.task), "task", task[_WCET].flag, "Set the task to do during execution. Options:"+taskFlag)
	flag.BoolVar(&(opts.noColorize), "no-colorize", false, "Disable pretty printer colorization")
	flag.BoolVar(&(opts.verbose), "verbose", false, "enable verbose output")
	flag.BoolVar(&(opts.visualize), "visualize", false, "render the control-flow graphs of the targets after the analysis")
	flag.BoolVar(&(opts.unsafeCosts), "unsafe", false, "price unbounded instructions with a fixed estimate instead of failing")

	// Set up logging
	log.SetFlags(log.Ltime | log.Lshortfile)
}

func ParseArgs() {
	// Calling flag.Parse in init messes up unit tests.
	// See https://stackoverflow.com/questions/60235896/flag-provided-but-not-defined-test-v
	flag.Parse()

	validTask := false
	for _, task := range task {
		if task.flag == opts.task {
			validTask = true
			break
		}
	}

	if !validTask {
		log.Fatalf("Value \"%s\" is not valid for -task", opts.task)
	}
	if opts.program == "" {
		log.Fatalln("No program given, use -program")
	}
	if opts.jobs < 1 {
		opts.jobs = 1
	}
	if Opts().Task().IsCfgToDot() {
		opts.noColorize = true
	}
}

// AnalyzeAllFuncs holds when every method is a target.
func (optInterface) AnalyzeAllFuncs() bool {
	return opts.function == "."
}

// IsTarget reports whether the method reference is selected by -fun.
func (o optInterface) IsTarget(ref string) bool {
	if o.AnalyzeAllFuncs() {
		return true
	}
	for _, f := range strings.Split(opts.function, ",") {
		if f = strings.TrimSpace(f); f != "" && (ref == f || strings.HasSuffix(ref, "."+f)) {
			return true
		}
	}
	return false
}

func (optInterface) OnVerbose(do func()) {
	if Opts().Verbose() {
		do()
	}
}
