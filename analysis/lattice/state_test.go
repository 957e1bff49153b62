package lattice

import (
	"errors"
	"testing"

	"github.com/jopdesign/wcet/program"
)

func TestStateStack(t *testing.T) {
	s := EmptyState().Push(Constant(Const(1))).Push(Constant(Const(2)))
	if s.Height() != 2 {
		t.Fatalf("expected height 2, got %d", s.Height())
	}

	top, err := s.Peek(0)
	if err != nil || !top.Value().Eq(Const(2)) {
		t.Errorf("expected top [2, 2], got %s (%v)", top, err)
	}

	s, vs, err := s.PopN(2)
	if err != nil {
		t.Fatal(err)
	}
	if !vs[0].Value().Eq(Const(1)) || !vs[1].Value().Eq(Const(2)) {
		t.Errorf("operands popped out of order: %v", vs)
	}

	if _, _, err := s.Pop(); !errors.Is(err, errStack) {
		t.Errorf("expected stack underflow, got %v", err)
	}
}

func TestStateJoin(t *testing.T) {
	site := program.Site{Method: "A.m", Index: 3}
	s1 := EmptyState().
		Set(Local(0), Defined(Const(0), site).WithIncrement(Const(1))).
		Set(Local(1), Constant(Const(5)))
	s2 := EmptyState().
		Set(Local(0), Defined(Const(4), site).WithIncrement(Const(2)))

	j, err := s1.Join(s2)
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := j.Get(Local(1)); ok {
		t.Error("a location missing on one side should become unknown")
	}

	v := j.Value(Local(0))
	if !v.Value().Eq(FiniteInterval(0, 4)) {
		t.Errorf("expected [0, 4], got %s", v.Value())
	}
	if !v.HasIncrement || !v.Increment.Eq(FiniteInterval(1, 2)) || !v.SoftInc {
		t.Errorf("expected soft increment [1, 2], got %s", v)
	}
	if len(v.Defs) != 1 || v.Defs[0] != site {
		t.Errorf("expected a single definition, got %v", v.Defs)
	}

	if _, err := s1.Push(Unknown()).Join(s2); !errors.Is(err, errStack) {
		t.Errorf("expected mismatched stack heights to fail, got %v", err)
	}
}

func TestStateDefsCap(t *testing.T) {
	v := Unknown()
	for i := 0; i <= maxDefs; i++ {
		v = v.Join(Defined(Top, program.Site{Method: "A.m", Index: i}))
	}
	if !v.DefsUnknown {
		t.Error("expected definitions to become unknown past the cap")
	}
	if v.DefinedOutside(func(program.Site) bool { return true }) {
		t.Error("unknown definitions cannot be outside of anything")
	}
}

func TestStateHeap(t *testing.T) {
	s := EmptyState().
		Set(Heap("A.n"), Constant(Const(10))).
		Set(Local(0), Constant(Const(1)))

	dropped := s.DropHeap()
	if _, ok := dropped.Get(Heap("A.n")); ok {
		t.Error("heap cell survived DropHeap")
	}
	if _, ok := dropped.Get(Local(0)); !ok {
		t.Error("DropHeap removed a local")
	}

	restored := dropped.WithHeap(s.Heap())
	if !restored.Eq(s) {
		t.Errorf("expected %s, got %s", s, restored)
	}
}

func TestStateResetIncrements(t *testing.T) {
	s := EmptyState().Set(Local(2), Constant(FiniteInterval(0, 9)))
	s = s.ResetIncrements([]int{2})
	v := s.Value(Local(2))
	if !v.HasIncrement || !v.Increment.Eq(Const(0)) {
		t.Errorf("expected increment [0, 0], got %s", v)
	}
	if !v.Value().Eq(FiniteInterval(0, 9)) {
		t.Errorf("reset changed the value: %s", v)
	}
}
