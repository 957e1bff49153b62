package cost

import (
	"errors"
	"testing"

	"github.com/jopdesign/wcet/analysis/cfg"
	"github.com/jopdesign/wcet/analysis/defs"
	"github.com/jopdesign/wcet/program"
)

const (
	leafSrc = `
	iload 0
	iconst 1
	iadd
	ireturn
`
	callerSrc = `
	iconst 2
	invokestatic Main.leaf 1 ret
	pop
	return
`
	allocSrc = `
	iconst 4
	newarray
	pop
	return
`
	jumpSrc = `
	iconst 0
	ifeq far
	nop
far:
	return
`
)

func testProgram() *program.Memory {
	return program.NewMemory().
		Add(program.MustAssemble("Main.leaf", 1, true, leafSrc)).
		Add(program.MustAssemble("Main.caller", 0, false, callerSrc)).
		Add(program.MustAssemble("Main.alloc", 0, false, allocSrc)).
		Add(program.MustAssemble("Main.jump", 0, false, jumpSrc))
}

func newModel(t *testing.T, c Config) (*Model, *cfg.Cache) {
	t.Helper()
	cfgs := cfg.NewCache(testProgram(), cfg.Options{})
	m, err := NewModel(cfgs, c)
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	return m, cfgs
}

func getCFG(t *testing.T, cfgs *cfg.Cache, ref program.MethodRef) *cfg.CFG {
	t.Helper()
	g, err := cfgs.Get(ref)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestTiming(t *testing.T) {
	timing, err := DefaultTiming().Override(map[string]int{"iadd": 3, "imul": -1})
	if err != nil {
		t.Fatal(err)
	}
	if timing[program.IADD] != 3 {
		t.Errorf("Expected overridden iadd, got %d", timing[program.IADD])
	}
	if _, ok := timing[program.IMUL]; ok {
		t.Error("Expected imul to be removed")
	}
	if DefaultTiming()[program.IADD] != 1 {
		t.Error("Override modified the default table")
	}
	if _, err := DefaultTiming().Override(map[string]int{"frobnicate": 1}); err == nil {
		t.Error("Expected an error for an unknown mnemonic")
	}
}

func TestNodeCost(t *testing.T) {
	m, cfgs := newModel(t, DefaultConfig())

	t.Run("Block", func(t *testing.T) {
		m := m.WithTiming(Uniform(1))
		g := getCFG(t, cfgs, "Main.leaf")
		total := 0
		for _, n := range g.Nodes() {
			c, err := m.Node(g, n)
			if err != nil {
				t.Fatal(err)
			}
			total += c
		}
		if total != 4 {
			t.Errorf("Expected 4 cycles, got %d", total)
		}
	})

	t.Run("Unbounded", func(t *testing.T) {
		g := getCFG(t, cfgs, "Main.alloc")
		var err error
		for _, n := range g.Nodes() {
			if _, err = m.Node(g, n); err != nil {
				break
			}
		}
		if !errors.Is(err, defs.UnsupportedConstruct) {
			t.Errorf("Expected an unsupported construct, got %v", err)
		}
	})

	t.Run("UnsafeFallback", func(t *testing.T) {
		c := DefaultConfig()
		c.UnsafeFallback = true
		m, cfgs := newModel(t, c)
		g := getCFG(t, cfgs, "Main.alloc")
		total := 0
		for _, n := range g.Nodes() {
			c, err := m.Node(g, n)
			if err != nil {
				t.Fatal(err)
			}
			total += c
		}
		if total < FallbackCycles {
			t.Errorf("Expected the fallback estimate, got %d", total)
		}
	})
}

func TestAlignment(t *testing.T) {
	c := DefaultConfig()
	c.Alignment = true
	c.AlignmentPenalty = 5
	m, cfgs := newModel(t, c)
	g := getCFG(t, cfgs, "Main.jump")

	// far: starts at byte 5 (iconst 1, ifeq 3, nop 1).
	penalized := 0
	for _, e := range g.Edges() {
		if p := m.Edge(g, e); p > 0 {
			if g.Edge(e).Kind != cfg.BranchEdge {
				t.Errorf("Unexpected penalty on %s edge", g.Edge(e).Kind)
			}
			penalized += p
		}
	}
	if penalized != 5 {
		t.Errorf("Expected one penalized branch, got total penalty %d", penalized)
	}

	c.Alignment = false
	m, _ = newModel(t, c)
	for _, e := range g.Edges() {
		if m.Edge(g, e) != 0 {
			t.Error("Alignment penalty charged while disabled")
		}
	}
}

func TestPolicies(t *testing.T) {
	t.Run("Geometry", func(t *testing.T) {
		for _, c := range []Config{
			{Policy: "lru", CacheWords: 100, Blocks: 3},
			{Policy: "fifo", CacheWords: 64, Blocks: 0},
			{Policy: "random"},
		} {
			if _, err := NewPolicy(c); !errors.Is(err, defs.CacheConfigurationError) {
				t.Errorf("%+v: expected a cache configuration error, got %v", c, err)
			}
		}
	})

	t.Run("TooLarge", func(t *testing.T) {
		c := DefaultConfig()
		c.Policy, c.CacheWords, c.Blocks = "lru", 4, 4
		m, _ := newModel(t, c)
		if _, err := m.MissPenalty("Main.caller"); !errors.Is(err, defs.CacheConfigurationError) {
			t.Errorf("Expected a cache configuration error, got %v", err)
		}
	})

	t.Run("Approx", func(t *testing.T) {
		tests := []struct {
			policy string
			blocks int
			want   defs.CacheApprox
		}{
			{"always-hit", 16, defs.AlwaysHit},
			{"always-miss", 16, defs.AlwaysMiss},
			{"lru", 16, defs.AllFit},
			{"fifo", 1, defs.AlwaysMiss},
			{"varblock", 16, defs.AllFit},
		}
		for _, tc := range tests {
			c := DefaultConfig()
			c.Policy, c.Blocks = tc.policy, tc.blocks
			m, _ := newModel(t, c)
			got, err := m.Approx("Main.caller")
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Errorf("%s/%d: expected %s, got %s", tc.policy, tc.blocks, tc.want, got)
			}
		}
	})

	t.Run("InvokeCost", func(t *testing.T) {
		c := DefaultConfig()
		c.Latency, c.CyclesPerWord, c.HitCycles = 10, 1, 0

		c.Policy = "always-miss"
		m, _ := newModel(t, c)
		miss, err := m.InvokeCost("Main.caller", "Main.leaf", defs.AlwaysMiss)
		if err != nil {
			t.Fatal(err)
		}
		leaf, _ := m.MissPenalty("Main.leaf")
		caller, _ := m.MissPenalty("Main.caller")
		if miss != leaf+caller {
			t.Errorf("Expected invoke and return to miss (%d), got %d", leaf+caller, miss)
		}

		c.Policy = "lru"
		m, _ = newModel(t, c)
		lru, err := m.InvokeCost("Main.caller", "Main.leaf", defs.AlwaysMiss)
		if err != nil {
			t.Fatal(err)
		}
		if lru != leaf {
			t.Errorf("Expected returns from leaves to hit under LRU, got %d", lru)
		}

		hit, _ := m.InvokeCost("Main.caller", "Main.leaf", defs.AllFit)
		if hit != 0 {
			t.Errorf("Expected invokes inside an all-fit scope to hit, got %d", hit)
		}

		load, err := m.LoadCost("Main.leaf")
		if err != nil {
			t.Fatal(err)
		}
		if load != leaf {
			t.Errorf("Expected load cost %d, got %d", leaf, load)
		}
	})
}
