package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jopdesign/wcet/analysis/defs"
	"github.com/jopdesign/wcet/program"

	"gopkg.in/yaml.v3"
)

// expectation is the "expect" section of an example program.
type expectation struct {
	Expect struct {
		Loops     map[string]int `yaml:"loops"`
		Unbounded bool           `yaml:"unbounded"`
	} `yaml:"expect"`
}

func TestExamples(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("examples", "*.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) == 0 {
		t.Fatal("No example programs")
	}

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".yaml")
		t.Run(name, func(t *testing.T) {
			data, err := os.ReadFile(file)
			if err != nil {
				t.Fatal(err)
			}
			var exp expectation
			if err := yaml.Unmarshal(data, &exp); err != nil {
				t.Fatal(err)
			}
			prog, err := program.Load(data)
			if err != nil {
				t.Fatal(err)
			}

			pl, err := newPipeline(prog, DefaultConfig())
			if err != nil {
				t.Fatal(err)
			}
			reports, bounds, err := pl.wcet()
			if err != nil {
				t.Fatal(err)
			}

			for s, want := range exp.Expect.Loops {
				site, err := program.ParseSite(s)
				if err != nil {
					t.Fatal(err)
				}
				if got, ok := bounds.LoopBound(site, defs.EmptyCallString()); !ok || got != want {
					t.Errorf("Loop %s: expected bound %d, got %d (%v)", s, want, got, ok)
				}
			}

			for _, r := range reports {
				if exp.Expect.Unbounded {
					if !errors.Is(r.Err, defs.AnalysisNonconvergence) {
						t.Errorf("%s: expected an unbounded loop, got %v", r.Target, r.Err)
					}
					continue
				}
				if r.Err != nil {
					t.Errorf("%s: %v", r.Target, r.Err)
					continue
				}
				if wcet := r.WCET(); wcet < r.AlwaysHit || wcet > r.AlwaysMiss || r.AlwaysMiss > r.Tree {
					t.Errorf("%s: expected hit %d <= wcet %d <= miss %d <= tree %d",
						r.Target, r.AlwaysHit, wcet, r.AlwaysMiss, r.Tree)
				}
			}
		})
	}
}

func TestNoTarget(t *testing.T) {
	prog := program.NewMemory().Add(program.MustAssemble("Main.other", 0, false, "return"))
	if _, err := newPipeline(prog, DefaultConfig()); err == nil {
		t.Error("Expected an error without a matching target")
	}
}
