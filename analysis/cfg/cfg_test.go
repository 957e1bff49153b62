package cfg

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/jopdesign/wcet/analysis/defs"
	"github.com/jopdesign/wcet/program"

	"github.com/sebdah/goldie/v2"
)

const (
	straightSrc = `
	iconst 1
	istore 0
	iload 0
	pop
	return
`
	loopSrc = `
	iconst 0
	istore 0
.line 3
loop:
	iload 0
	iconst 10
	if_icmpge done
	iinc 0 1
	goto loop
done:
	return
`
	callsSrc = `
	iconst 1
	invokestatic Main.f 1 ret
	pop
	invokevirtual Shape.area 0
	return
`
	twoBackEdgesSrc = `
	iconst 0
	istore 0
loop:
	iload 0
	iconst 10
	if_icmpge done
	iload 0
	ifeq skip
	goto loop
skip:
	iinc 0 1
	goto loop
done:
	return
`
	irreducibleSrc = `
	iload 0
	ifeq b
a:
	iinc 0 1
	iload 0
	ifne out
b:
	iinc 0 -1
	goto a
out:
	return
`
)

func testProgram() *program.Memory {
	return program.NewMemory().
		Add(program.MustAssemble("Main.straight", 0, false, straightSrc)).
		Add(program.MustAssemble("Main.loop", 0, false, loopSrc)).
		Add(program.MustAssemble("Main.calls", 0, false, callsSrc)).
		Add(program.MustAssemble("Main.twoBackEdges", 0, false, twoBackEdgesSrc)).
		Add(program.MustAssemble("Main.irreducible", 1, false, irreducibleSrc)).
		Add(program.MustAssemble("Main.f", 1, true, "iload 0\nireturn")).
		Add(&program.Method{Ref: "Shape.area", Abstract: true}).
		Add(program.MustAssemble("Circle.area", 0, false, "return")).
		Add(program.MustAssemble("Square.area", 0, false, "return")).
		Implement("Shape.area", "Circle.area", "Square.area")
}

func mustBuild(t *testing.T, prog program.Program, ref program.MethodRef) *CFG {
	t.Helper()
	m, ok := prog.Method(ref)
	if !ok {
		t.Fatalf("unknown method %s", ref)
	}
	g, err := Build(m)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func countKind(g *CFG, kind NodeKind) (n int) {
	for _, id := range g.Nodes() {
		if g.Node(id).Kind == kind {
			n++
		}
	}
	return
}

func TestDump(t *testing.T) {
	prog := testProgram()

	t.Run("straight", func(t *testing.T) {
		g := mustBuild(t, prog, "Main.straight")
		goldie.New(t).Assert(t, t.Name(), []byte(g.String()))
	})

	t.Run("loop", func(t *testing.T) {
		g := mustBuild(t, prog, "Main.loop")
		goldie.New(t).Assert(t, t.Name(), []byte(g.String()))
	})

	t.Run("loop-split", func(t *testing.T) {
		g := mustBuild(t, prog, "Main.loop")
		g.InsertSplitNodes()
		goldie.New(t).Assert(t, t.Name(), []byte(g.String()))
	})

	t.Run("loop-summary", func(t *testing.T) {
		g := mustBuild(t, prog, "Main.loop")
		if n, err := g.InsertSummaryNodes(); err != nil || n != 1 {
			t.Fatalf("expected one summary, got %d (%v)", n, err)
		}
		goldie.New(t).Assert(t, t.Name(), []byte(g.String()))
	})

	t.Run("calls", func(t *testing.T) {
		g, err := NewCache(prog, Options{}).Get("Main.calls")
		if err != nil {
			t.Fatal(err)
		}
		goldie.New(t).Assert(t, t.Name(), []byte(g.String()))
	})

	t.Run("calls-return", func(t *testing.T) {
		g, err := NewCache(prog, Options{ReturnNodes: true}).Get("Main.calls")
		if err != nil {
			t.Fatal(err)
		}
		goldie.New(t).Assert(t, t.Name(), []byte(g.String()))
	})
}

func TestEntryExit(t *testing.T) {
	prog := testProgram()
	cache := NewCache(prog, Options{ReturnNodes: true, SplitNodes: true, ContinueNodes: true})

	for _, ref := range []program.MethodRef{"Main.straight", "Main.loop", "Main.calls", "Main.twoBackEdges"} {
		t.Run(string(ref), func(t *testing.T) {
			g, err := cache.Get(ref)
			if err != nil {
				t.Fatal(err)
			}

			if countKind(g, EntryNode) != 1 || countKind(g, ExitNode) != 1 {
				t.Errorf("expected exactly one entry and one exit:\n%s", g)
			}
			if len(g.In(g.Entry())) != 0 || len(g.Out(g.Exit())) != 0 {
				t.Errorf("entry has predecessors or exit has successors:\n%s", g)
			}

			fwd := g.reachable(g.Entry(), g.Successors)
			bwd := g.reachable(g.Exit(), g.Predecessors)
			for _, n := range g.Nodes() {
				if !fwd.Has(int(n)) || !bwd.Has(int(n)) {
					t.Errorf("%s is not on a path from entry to exit", g.NodeString(n))
				}
			}
		})
	}
}

func TestCheck(t *testing.T) {
	t.Run("Dead", func(t *testing.T) {
		m := program.MustAssemble("Main.dead", 0, false, "goto end\niconst 1\npop\nend:\nreturn")
		g, err := Build(m)
		if err != nil {
			t.Fatal(err)
		}
		before := len(g.Nodes())
		if err := g.Check(); err != nil {
			t.Fatal(err)
		}
		if len(g.Nodes()) != before-1 {
			t.Errorf("expected the dead block to be removed:\n%s", g)
		}
	})

	t.Run("Stuck", func(t *testing.T) {
		m := program.MustAssemble("Main.stuck", 1, false, "iload 0\nifeq out\nspin:\ngoto spin\nout:\nreturn")
		g, err := Build(m)
		if err != nil {
			t.Fatal(err)
		}
		if err := g.Check(); err != nil {
			t.Fatal(err)
		}
		for _, n := range g.Nodes() {
			if node := g.Node(n); node.Kind == BlockNode && node.Start == 2 {
				t.Errorf("stuck block survived:\n%s", g)
			}
		}
	})

	t.Run("ExitUnreachable", func(t *testing.T) {
		m := program.MustAssemble("Main.forever", 0, false, "spin:\ngoto spin")
		g, err := Build(m)
		if err != nil {
			t.Fatal(err)
		}
		if err := g.Check(); !errors.Is(err, defs.MalformedProgram) {
			t.Errorf("expected a malformed program, got %v", err)
		}
	})

	t.Run("Throw", func(t *testing.T) {
		m := program.MustAssemble("Main.throws", 1, false, "iload 0\nifeq ok\nnew\nathrow\nok:\nreturn")
		g, err := Build(m)
		if err != nil {
			t.Fatal(err)
		}
		if err := g.Check(); err != nil {
			t.Fatal(err)
		}
		if len(g.In(g.Exit())) != 1 {
			t.Errorf("expected the throwing exit to be dropped:\n%s", g)
		}
	})
}

func TestBuildErrors(t *testing.T) {
	for name, src := range map[string]string{
		"FallOff": "iconst 1\npop",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Build(program.MustAssemble("Bad.m", 0, false, src))
			if !errors.Is(err, defs.MalformedProgram) {
				t.Errorf("expected a malformed program, got %v", err)
			}
		})
	}

	t.Run("Empty", func(t *testing.T) {
		if _, err := Build(&program.Method{Ref: "Bad.empty"}); !errors.Is(err, defs.MalformedProgram) {
			t.Errorf("expected a malformed program, got %v", err)
		}
	})
}

func TestResolveVirtualInvokes(t *testing.T) {
	t.Run("NoImplementation", func(t *testing.T) {
		prog := program.NewMemory().
			Add(program.MustAssemble("Main.m", 0, false, "invokevirtual Shape.area 0\nreturn")).
			Add(&program.Method{Ref: "Shape.area", Abstract: true})
		g := mustBuild(t, prog, "Main.m")

		err := g.ResolveVirtualInvokes(prog, defs.EmptyCallString())
		if !errors.Is(err, defs.MalformedProgram) || !errors.Is(err, defs.NoImplementation) {
			t.Errorf("expected a missing implementation, got %v", err)
		}
	})

	t.Run("Single", func(t *testing.T) {
		prog := program.NewMemory().
			Add(program.MustAssemble("Main.m", 0, false, "invokevirtual Shape.area 0\nreturn")).
			Add(&program.Method{Ref: "Shape.area", Abstract: true}).
			Add(program.MustAssemble("Circle.area", 0, false, "return")).
			Implement("Shape.area", "Circle.area")
		g := mustBuild(t, prog, "Main.m")

		if err := g.ResolveVirtualInvokes(prog, defs.EmptyCallString()); err != nil {
			t.Fatal(err)
		}
		if countKind(g, SplitNode) != 0 {
			t.Errorf("a single receiver should resolve in place:\n%s", g)
		}
		for _, n := range g.Invokes() {
			if node := g.Node(n); node.Virtual || node.Callee != "Circle.area" {
				t.Errorf("unexpected invoke %s", g.NodeString(n))
			}
		}
	})

	t.Run("Site", func(t *testing.T) {
		prog := testProgram().DispatchAt(program.Site{Method: "Main.calls", Index: 3}, "Square.area")
		g := mustBuild(t, prog, "Main.calls")
		if err := g.ResolveVirtualInvokes(prog, defs.EmptyCallString()); err != nil {
			t.Fatal(err)
		}
		if countKind(g, SplitNode) != 0 {
			t.Errorf("the site override should leave one receiver:\n%s", g)
		}
	})
}

func TestIdempotentTransforms(t *testing.T) {
	prog := testProgram()

	transforms := map[string]func(*testing.T, *CFG){
		"ResolveVirtualInvokes": func(t *testing.T, g *CFG) {
			if err := g.ResolveVirtualInvokes(prog, defs.EmptyCallString()); err != nil {
				t.Fatal(err)
			}
		},
		"Check": func(t *testing.T, g *CFG) {
			if err := g.Check(); err != nil {
				t.Fatal(err)
			}
		},
		"InsertSplitNodes":  func(_ *testing.T, g *CFG) { g.InsertSplitNodes() },
		"InsertReturnNodes": func(_ *testing.T, g *CFG) { g.InsertReturnNodes() },
		"InsertContinueLoopNodes": func(t *testing.T, g *CFG) {
			if err := g.InsertContinueLoopNodes(); err != nil {
				t.Fatal(err)
			}
		},
		"InsertSummaryNodes": func(t *testing.T, g *CFG) {
			if _, err := g.InsertSummaryNodes(); err != nil {
				t.Fatal(err)
			}
		},
	}

	for name, transform := range transforms {
		for _, ref := range []program.MethodRef{"Main.loop", "Main.calls", "Main.twoBackEdges"} {
			t.Run(name+"/"+string(ref), func(t *testing.T) {
				g := mustBuild(t, prog, ref)
				transform(t, g)
				once := g.String()
				version := g.Version()

				transform(t, g)
				if twice := g.String(); twice != once {
					t.Errorf("second run changed the graph:\n%s\nvs\n%s", once, twice)
				}
				if g.Version() != version {
					t.Errorf("second run bumped the version from %d to %d", version, g.Version())
				}
			})
		}
	}
}

func TestTopology(t *testing.T) {
	prog := testProgram()

	t.Run("Loop", func(t *testing.T) {
		g := mustBuild(t, prog, "Main.loop")
		topo, err := g.Topology()
		if err != nil {
			t.Fatal(err)
		}

		if len(topo.Loops.Headers) != 1 {
			t.Fatalf("expected one loop, got %v", topo.Loops.Headers)
		}
		h := topo.Loops.Headers[0]
		if g.Node(h).Start != 2 || g.Line(h) != 3 {
			t.Errorf("unexpected header %s", g.NodeString(h))
		}
		if ms := topo.Loops.Members(h); len(ms) != 2 {
			t.Errorf("expected two members, got %v", ms)
		}
		if len(topo.Loops.BackEdges(h)) != 1 || len(topo.Loops.ExitEdges(h)) != 1 || len(topo.Loops.EntryEdges(h)) != 1 {
			t.Errorf("unexpected loop edges")
		}
		if ws := topo.Loops.WrittenLocals(h); len(ws) != 1 || ws[0] != 0 {
			t.Errorf("expected local 0 to be written, got %v", ws)
		}
		if topo.Index(g.Entry()) != 0 {
			t.Errorf("entry is not first in topological order")
		}

		for _, e := range g.Edges() {
			edge := g.Edge(e)
			if !topo.IsBackEdge(e) && topo.Index(edge.Src) >= topo.Index(edge.Dst) {
				t.Errorf("forward edge n%d -> n%d against topological order", edge.Src, edge.Dst)
			}
		}
	})

	t.Run("Memoized", func(t *testing.T) {
		g := mustBuild(t, prog, "Main.loop")
		t1, _ := g.Topology()
		t2, _ := g.Topology()
		if t1 != t2 {
			t.Error("topology recomputed without structural change")
		}
		g.InsertSplitNodes()
		if t3, _ := g.Topology(); t3 == t1 {
			t.Error("topology not recomputed after a structural change")
		}
	})

	t.Run("Irreducible", func(t *testing.T) {
		g := mustBuild(t, prog, "Main.irreducible")
		if _, err := g.Topology(); !errors.Is(err, defs.MalformedProgram) {
			t.Errorf("expected irreducible graph to be malformed, got %v", err)
		}
	})

	t.Run("ContinueNodes", func(t *testing.T) {
		g := mustBuild(t, prog, "Main.twoBackEdges")
		if err := g.InsertContinueLoopNodes(); err != nil {
			t.Fatal(err)
		}
		topo, err := g.Topology()
		if err != nil {
			t.Fatal(err)
		}
		h := topo.Loops.Headers[0]
		backs := topo.Loops.BackEdges(h)
		if len(backs) != 1 || g.Node(g.Edge(backs[0]).Src).Kind != ContinueNode {
			t.Errorf("expected a single back edge from a continue node:\n%s", g)
		}
	})
}

func TestBranchOf(t *testing.T) {
	g := mustBuild(t, testProgram(), "Main.loop")
	g.InsertSplitNodes()

	found := 0
	for _, e := range g.Edges() {
		block, taken, ok := g.BranchOf(e)
		if !ok {
			continue
		}
		found++
		if g.Node(block).Start != 2 {
			t.Errorf("branch attributed to %s", g.NodeString(block))
		}
		if taken != (g.Edge(e).Kind == BranchEdge) {
			t.Errorf("wrong polarity for edge %d", e)
		}
	}
	if found != 2 {
		t.Errorf("expected both branch edges to be found through the split node, found %d", found)
	}
}

func TestCacheReachable(t *testing.T) {
	cache := NewCache(testProgram(), Options{})
	refs, err := cache.Reachable("Main.calls")
	if err != nil {
		t.Fatal(err)
	}
	expected := []program.MethodRef{"Main.calls", "Circle.area", "Main.f", "Square.area"}
	if len(refs) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, refs)
	}
	for i := range refs {
		if refs[i] != expected[i] {
			t.Errorf("expected %v, got %v", expected, refs)
		}
	}
}

func TestToDot(t *testing.T) {
	g := mustBuild(t, testProgram(), "Main.loop")
	var buf bytes.Buffer
	err := g.ToDot(func(n NodeId) string {
		if n == g.Entry() {
			return "flow 1"
		}
		return ""
	}).WriteDot(&buf)
	if err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"digraph ControlFlow", "flow 1", "iinc", "subgraph \"cluster_loop_n"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in the DOT output:\n%s", want, out)
		}
	}
}
