package lattice

import (
	"math"
	"testing"

	"github.com/jopdesign/wcet/program"
)

func TestIntervalJoin(t *testing.T) {
	type b = FiniteBound
	type P = PlusInfinity
	type M = MinusInfinity
	int := MakeInterval

	tests := []struct {
		a, b, expected Interval
	}{
		{Bot, Bot, Bot},
		{Bot, Top, Top},
		{Top, Bot, Top},
		{Top, Top, Top},
		{Bot, int(b(0), b(0)), int(b(0), b(0))},
		{int(b(0), b(0)), Bot, int(b(0), b(0))},
		{int(b(0), b(0)), int(b(1), b(1)), int(b(0), b(1))},
		{int(b(1), b(2)), int(b(3), b(4)), int(b(1), b(4))},
		{int(b(-1), b(0)), int(b(0), b(1)), int(b(-1), b(1))},
		{int(b(0), b(1024)), int(b(0), P{}), int(b(0), P{})},
		{int(b(-1024), b(0)), int(b(0), P{}), int(b(-1024), P{})},
		{int(M{}, b(0)), int(b(-1024), b(0)), int(M{}, b(0))},
		{int(M{}, b(-1024)), int(b(1024), P{}), Top},
	}

	for _, test := range tests {
		res := test.a.Join(test.b)
		if !res.Eq(test.expected) {
			t.Errorf("%s ⊔ %s = %s, expected %s\n", test.a, test.b, res, test.expected)
		} else {
			t.Logf("%s ⊔ %s = %s\n", test.a, test.b, res)
		}
	}
}

func TestIntervalMeet(t *testing.T) {
	tests := []struct {
		a, b, expected Interval
	}{
		{Top, Bot, Bot},
		{Top, Const(3), Const(3)},
		{FiniteInterval(0, 10), FiniteInterval(5, 20), FiniteInterval(5, 10)},
		{FiniteInterval(0, 4), FiniteInterval(5, 20), Bot},
		{AtLeast(0), AtMost(9), FiniteInterval(0, 9)},
	}

	for _, test := range tests {
		if res := test.a.Meet(test.b); !res.Eq(test.expected) {
			t.Errorf("%s ⊓ %s = %s, expected %s\n", test.a, test.b, res, test.expected)
		}
	}
}

func TestIntervalWiden(t *testing.T) {
	tests := []struct {
		a, b, expected Interval
	}{
		{Bot, Const(1), Const(1)},
		{Const(0), Const(0), Const(0)},
		{Const(0), FiniteInterval(0, 1), AtLeast(0)},
		{FiniteInterval(0, 5), FiniteInterval(-1, 5), AtMost(5)},
		{FiniteInterval(0, 5), FiniteInterval(1, 4), FiniteInterval(0, 5)},
		{Const(0), FiniteInterval(-1, 1), Top},
	}

	for _, test := range tests {
		if res := test.a.Widen(test.b); !res.Eq(test.expected) {
			t.Errorf("%s ∇ %s = %s, expected %s\n", test.a, test.b, res, test.expected)
		}
	}
}

func TestIntervalArithmetic(t *testing.T) {
	t.Run("Plus", func(t *testing.T) {
		if res := FiniteInterval(1, 2).Plus(FiniteInterval(10, 20)); !res.Eq(FiniteInterval(11, 22)) {
			t.Errorf("got %s", res)
		}
		if res := AtLeast(0).Plus(Const(1)); !res.Eq(AtLeast(1)) {
			t.Errorf("got %s", res)
		}
	})

	t.Run("Minus", func(t *testing.T) {
		if res := FiniteInterval(0, 10).Minus(FiniteInterval(1, 2)); !res.Eq(FiniteInterval(-2, 9)) {
			t.Errorf("got %s", res)
		}
	})

	t.Run("Mult", func(t *testing.T) {
		if res := FiniteInterval(-2, 3).Mult(FiniteInterval(4, 5)); !res.Eq(FiniteInterval(-10, 15)) {
			t.Errorf("got %s", res)
		}
		if res := AtLeast(1).Mult(Const(0)); !res.Eq(Const(0)) {
			t.Errorf("got %s", res)
		}
	})

	t.Run("Overflow", func(t *testing.T) {
		if res := Const(math.MaxInt32).Plus(Const(1)); !res.IsTop() {
			t.Errorf("expected overflow to ⊤, got %s", res)
		}
	})
}

func TestIntervalRestrict(t *testing.T) {
	tests := []struct {
		a        Interval
		cmp      program.Comparison
		b        Interval
		expected Interval
	}{
		{Top, program.CmpLT, Const(10), AtMost(9)},
		{Top, program.CmpLE, Const(10), AtMost(10)},
		{Top, program.CmpGT, Const(10), AtLeast(11)},
		{Top, program.CmpGE, FiniteInterval(3, 10), AtLeast(3)},
		{FiniteInterval(0, 20), program.CmpEQ, FiniteInterval(5, 30), FiniteInterval(5, 20)},
		{FiniteInterval(0, 5), program.CmpNE, Const(0), FiniteInterval(1, 5)},
		{FiniteInterval(0, 5), program.CmpNE, Const(5), FiniteInterval(0, 4)},
		{FiniteInterval(0, 5), program.CmpNE, Const(3), FiniteInterval(0, 5)},
		{Const(10), program.CmpLT, Const(10), Bot},
	}

	for _, test := range tests {
		if res := test.a.Restrict(test.cmp, test.b); !res.Eq(test.expected) {
			t.Errorf("%s restricted by %v %s = %s, expected %s\n", test.a, test.cmp, test.b, res, test.expected)
		}
	}
}

func TestIntervalCount(t *testing.T) {
	if n, ok := FiniteInterval(3, 7).Count(); !ok || n != 5 {
		t.Errorf("expected 5, got %d %v", n, ok)
	}
	if n, ok := Bot.Count(); !ok || n != 0 {
		t.Errorf("expected 0, got %d %v", n, ok)
	}
	if _, ok := AtLeast(0).Count(); ok {
		t.Error("open interval should not be countable")
	}
}
