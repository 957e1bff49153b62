package absint

import (
	"bytes"
	"errors"
	"testing"

	"github.com/jopdesign/wcet/analysis/cfg"
	"github.com/jopdesign/wcet/analysis/defs"
	"github.com/jopdesign/wcet/program"
)

const (
	countUpSrc = `
	iconst 0
	istore 0
loop:
	iload 0
	iconst 10
	if_icmpge done
	iinc 0 1
	goto loop
done:
	return
`
	countDownSrc = `
	iconst 20
	istore 0
loop:
	iload 0
	ifle done
	iinc 0 -2
	goto loop
done:
	return
`
	strideSrc = `
	iconst 0
	istore 1
loop:
	iload 1
	iconst 10
	if_icmpge done
	iload 1
	iconst 3
	iadd
	istore 1
	goto loop
done:
	return
`
	argLoopSrc = `
	iconst 0
	istore 1
.line 7
loop:
	iload 1
	iload 0
	if_icmpge done
	iinc 1 1
	goto loop
done:
	return
`
	twoCallsSrc = `
	iconst 5
	invokestatic Main.work 1
	iconst 50
	invokestatic Main.work 1
	return
`
	deadBranchSrc = `
	iconst 3
	istore 0
	iload 0
	iconst 5
	if_icmpge big
	return
big:
	return
`
	nestedSrc = `
	iconst 0
	istore 0
outer:
	iload 0
	iconst 4
	if_icmpge done
	iconst 0
	istore 1
inner:
	iload 1
	iconst 3
	if_icmpge next
	iinc 1 1
	goto inner
next:
	iinc 0 1
	goto outer
done:
	return
`
	globalLoopSrc = `
	iconst 0
	istore 0
loop:
	iload 0
	getstatic Main.limit
	if_icmpge done
	iinc 0 1
	goto loop
done:
	return
`
	nativeSrc = `
	iconst 1
	invokestatic Native.rd 1 ret
	pop
	return
`
)

func analyze(t *testing.T, prog program.Program, opts Options, roots ...program.MethodRef) *Result {
	t.Helper()
	res, err := Analyze(cfg.NewCache(prog, cfg.Options{}), opts, DefaultNatives(), roots...)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	return res
}

func site(m program.MethodRef, i int) program.Site {
	return program.Site{Method: m, Index: i}
}

func TestLoopBounds(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		header int
		bound  int
	}{
		{"CountUp", countUpSrc, 2, 10},
		{"CountDown", countDownSrc, 2, 10},
		{"Stride", strideSrc, 2, 4},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			prog := program.NewMemory().Add(program.MustAssemble("Main.run", 0, false, tc.src))
			res := analyze(t, prog, DefaultOptions(), "Main.run")

			b, ok := res.LoopBound(site("Main.run", tc.header), defs.EmptyCallString())
			if !ok {
				t.Fatalf("No bound inferred\n%s", res)
			}
			if b != tc.bound {
				t.Errorf("Expected bound %d, got %d", tc.bound, b)
			}
		})
	}

	t.Run("Nested", func(t *testing.T) {
		prog := program.NewMemory().Add(program.MustAssemble("Main.run", 0, false, nestedSrc))
		res := analyze(t, prog, DefaultOptions(), "Main.run")

		for header, bound := range map[int]int{2: 4, 7: 3} {
			if b, ok := res.LoopBound(site("Main.run", header), defs.EmptyCallString()); !ok || b != bound {
				t.Errorf("Loop at %d: expected bound %d, got %d (%v)", header, bound, b, ok)
			}
		}
	})

	t.Run("InitialHeap", func(t *testing.T) {
		prog := program.NewMemory().Add(program.MustAssemble("Main.run", 0, false, globalLoopSrc))
		opts := DefaultOptions()
		opts.InitialHeap = map[string][2]int{"Main.limit": {0, 6}}
		res := analyze(t, prog, opts, "Main.run")

		if b, ok := res.LoopBound(site("Main.run", 2), defs.EmptyCallString()); !ok || b != 6 {
			t.Errorf("Expected bound 6, got %d (%v)", b, ok)
		}
	})
}

func TestAnnotations(t *testing.T) {
	m := program.MustAssemble("Main.run", 1, false, argLoopSrc)
	prog := program.NewMemory().Add(m)
	header := site("Main.run", 2)

	t.Run("Unbounded", func(t *testing.T) {
		res := analyze(t, prog, DefaultOptions(), "Main.run")
		if b, ok := res.LoopBound(header, defs.EmptyCallString()); ok {
			t.Errorf("Expected no bound, got %d", b)
		}
	})

	t.Run("Annotated", func(t *testing.T) {
		m.LoopBounds[7] = 12
		defer delete(m.LoopBounds, 7)

		res := analyze(t, prog, DefaultOptions(), "Main.run")
		if _, ok := res.Inferred(header, defs.EmptyCallString()); ok {
			t.Error("Expected no inferred bound")
		}
		if b, ok := res.LoopBound(header, defs.EmptyCallString()); !ok || b != 12 {
			t.Errorf("Expected the annotated bound 12, got %d (%v)", b, ok)
		}
	})

	t.Run("Tighter", func(t *testing.T) {
		up := program.MustAssemble("Main.up", 0, false, ".line 3\n"+countUpSrc)
		up.LoopBounds[3] = 4
		res := analyze(t, program.NewMemory().Add(up), DefaultOptions(), "Main.up")
		if b, _ := res.LoopBound(site("Main.up", 2), defs.EmptyCallString()); b != 4 {
			t.Errorf("Expected the annotation to win, got %d", b)
		}
	})
}

func TestContextSensitivity(t *testing.T) {
	prog := program.NewMemory().
		Add(program.MustAssemble("Main.main", 0, false, twoCallsSrc)).
		Add(program.MustAssemble("Main.work", 1, false, argLoopSrc))
	header := site("Main.work", 2)
	first := defs.MakeCallString(site("Main.main", 1))
	second := defs.MakeCallString(site("Main.main", 3))

	t.Run("Insensitive", func(t *testing.T) {
		opts := DefaultOptions()
		opts.CallStringLength = 0
		res := analyze(t, prog, opts, "Main.main")

		for _, cs := range []defs.CallString{first, second, defs.EmptyCallString()} {
			if b, ok := res.LoopBound(header, cs); !ok || b != 50 {
				t.Errorf("%s: expected bound 50, got %d (%v)", cs, b, ok)
			}
		}
	})

	t.Run("InsensitiveWidening", func(t *testing.T) {
		for _, after := range []int{1, 3, 10} {
			opts := DefaultOptions()
			opts.CallStringLength = 0
			opts.WidenAfter = after
			res := analyze(t, prog, opts, "Main.main")
			if b, ok := res.LoopBound(header, defs.EmptyCallString()); !ok || b != 50 {
				t.Errorf("WidenAfter %d: expected bound 50, got %d (%v)", after, b, ok)
			}
		}
	})

	t.Run("CallString1", func(t *testing.T) {
		res := analyze(t, prog, DefaultOptions(), "Main.main")

		if b, ok := res.LoopBound(header, first); !ok || b != 5 {
			t.Errorf("First call: expected bound 5, got %d (%v)", b, ok)
		}
		if b, ok := res.LoopBound(header, second); !ok || b != 50 {
			t.Errorf("Second call: expected bound 50, got %d (%v)", b, ok)
		}
		if b, ok := res.LoopBound(header, defs.EmptyCallString()); !ok || b != 50 {
			t.Errorf("Any call: expected bound 50, got %d (%v)", b, ok)
		}
	})
}

func TestInfeasible(t *testing.T) {
	prog := program.NewMemory().Add(program.MustAssemble("Main.run", 0, false, deadBranchSrc))
	res := analyze(t, prog, DefaultOptions(), "Main.run")
	branch := site("Main.run", 4)

	if !res.Infeasible(branch, true, defs.EmptyCallString()) {
		t.Error("Expected the taken edge to be infeasible")
	}
	if res.Infeasible(branch, false, defs.EmptyCallString()) {
		t.Error("Expected the fall-through edge to be feasible")
	}
	if res.Infeasible(site("Main.run", 0), true, defs.EmptyCallString()) {
		t.Error("Unknown branches are never infeasible")
	}
}

func TestErrors(t *testing.T) {
	t.Run("UnknownNative", func(t *testing.T) {
		prog := program.NewMemory().
			Add(&program.Method{Ref: "Native.mystery", Native: true}).
			Add(program.MustAssemble("Main.run", 0, false, "invokestatic Native.mystery 0\nreturn"))
		_, err := Analyze(cfg.NewCache(prog, cfg.Options{}), DefaultOptions(), DefaultNatives(), "Main.run")
		if !errors.Is(err, defs.UnsupportedConstruct) {
			t.Errorf("Expected an unsupported construct, got %v", err)
		}
	})

	t.Run("KnownNative", func(t *testing.T) {
		prog := program.NewMemory().
			Add(&program.Method{Ref: "Native.rd", Native: true, Args: 1, Returns: true}).
			Add(program.MustAssemble("Main.run", 0, false, nativeSrc))
		analyze(t, prog, DefaultOptions(), "Main.run")
	})

	t.Run("StepBudget", func(t *testing.T) {
		prog := program.NewMemory().Add(program.MustAssemble("Main.run", 0, false, countUpSrc))
		opts := DefaultOptions()
		opts.MaxSteps = 3
		_, err := Analyze(cfg.NewCache(prog, cfg.Options{}), opts, DefaultNatives(), "Main.run")
		if !errors.Is(err, defs.AnalysisNonconvergence) {
			t.Errorf("Expected nonconvergence, got %v", err)
		}
	})

	t.Run("Underflow", func(t *testing.T) {
		prog := program.NewMemory().Add(program.MustAssemble("Main.run", 0, false, "pop\nreturn"))
		_, err := Analyze(cfg.NewCache(prog, cfg.Options{}), DefaultOptions(), DefaultNatives(), "Main.run")
		if !errors.Is(err, defs.MalformedProgram) {
			t.Errorf("Expected a malformed program, got %v", err)
		}
	})
}

func TestPersistence(t *testing.T) {
	prog := program.NewMemory().
		Add(program.MustAssemble("Main.main", 0, false, twoCallsSrc)).
		Add(program.MustAssemble("Main.work", 1, false, argLoopSrc))
	res := analyze(t, prog, DefaultOptions(), "Main.main")

	var buf bytes.Buffer
	if err := res.Save(&buf); err != nil {
		t.Fatal(err)
	}
	stored := buf.Bytes()

	loaded, err := Load(bytes.NewReader(stored), prog)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.String() != res.String() {
		t.Errorf("Round trip changed the result:\n%s\nvs\n%s", res, loaded)
	}

	other := program.NewMemory().Add(program.MustAssemble("Main.main", 0, false, "return"))
	if _, err := Load(bytes.NewReader(stored), other); !errors.Is(err, ErrStale) {
		t.Errorf("Expected a stale result, got %v", err)
	}

	t.Run("Cached", func(t *testing.T) {
		opts := DefaultOptions()
		opts.ResultCacheDir = t.TempDir()
		cfgs := cfg.NewCache(prog, cfg.Options{})

		first, err := AnalyzeCached(cfgs, opts, DefaultNatives(), "Main.main")
		if err != nil {
			t.Fatal(err)
		}
		second, err := AnalyzeCached(cfgs, opts, DefaultNatives(), "Main.main")
		if err != nil {
			t.Fatal(err)
		}
		if second.Metrics.Outcome != OutcomeCached {
			t.Errorf("Expected the second run to be cached, got %s", second.Metrics.Outcome)
		}
		if first.String() != second.String() {
			t.Errorf("Cached result differs:\n%s\nvs\n%s", first, second)
		}
	})

	t.Run("InitialHeapChange", func(t *testing.T) {
		prog := program.NewMemory().Add(program.MustAssemble("Main.run", 0, false, globalLoopSrc))
		cfgs := cfg.NewCache(prog, cfg.Options{})
		dir := t.TempDir()
		header := site("Main.run", 2)

		for _, tc := range []struct {
			limit   int
			outcome Outcome
		}{
			{6, OutcomeSuccess},
			{100, OutcomeSuccess},
			{100, OutcomeCached},
		} {
			opts := DefaultOptions()
			opts.ResultCacheDir = dir
			opts.InitialHeap = map[string][2]int{"Main.limit": {0, tc.limit}}
			res, err := AnalyzeCached(cfgs, opts, DefaultNatives(), "Main.run")
			if err != nil {
				t.Fatal(err)
			}
			if res.Metrics.Outcome != tc.outcome {
				t.Errorf("Limit %d: expected outcome %s, got %s", tc.limit, tc.outcome, res.Metrics.Outcome)
			}
			if b, ok := res.LoopBound(header, defs.EmptyCallString()); !ok || b != tc.limit {
				t.Errorf("Limit %d: expected bound %d, got %d (%v)", tc.limit, tc.limit, b, ok)
			}
		}
	})

	t.Run("NativesChange", func(t *testing.T) {
		opts := DefaultOptions()
		a, err := fingerprint(opts, DefaultNatives())
		if err != nil {
			t.Fatal(err)
		}
		fewer := DefaultNatives()
		delete(fewer, "Native.wr")
		b, _ := fingerprint(opts, fewer)
		opts.ResultCacheDir = "elsewhere"
		c, _ := fingerprint(opts, DefaultNatives())
		if a == b {
			t.Error("Native summaries did not affect the fingerprint")
		}
		if a != c {
			t.Error("The cache directory affected the fingerprint")
		}
	})
}
