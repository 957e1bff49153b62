package absint

import (
	"github.com/jopdesign/wcet/analysis/defs"
	L "github.com/jopdesign/wcet/analysis/lattice"
	"github.com/jopdesign/wcet/program"
)

// invalidate drops the provenance of stack values loaded from a location
// matching overwritten. Such values no longer describe the location, so
// branch conditions on them must not narrow it.
func invalidate(s L.State, overwritten func(L.Location) bool) L.State {
	for i := 0; i < s.Height(); i++ {
		if v, ok := s.Get(L.Stack(i)); ok && v.HasSource && overwritten(v.Source) {
			s = s.Set(L.Stack(i), v.Stored())
		}
	}
	return s
}

func isLocation(loc L.Location) func(L.Location) bool {
	return func(o L.Location) bool { return o == loc }
}

func isHeap(loc L.Location) bool { return loc.Kind == L.HeapCell }

// definedAt is v written by the instruction at site.
func definedAt(v L.ValueMapping, site program.Site) L.ValueMapping {
	v = v.Stored()
	v.Assigned = v.Constrained
	v.Defs, v.DefsUnknown = []program.Site{site}, false
	return v
}

// binop evaluates an arithmetic instruction. Adding or subtracting a
// constant keeps track of the location the other operand came from, which
// lets stores of `i + c` back into i maintain the increment of i.
func binop(op program.Opcode, a, b L.ValueMapping, site program.Site) L.ValueMapping {
	av, bv := a.Value(), b.Value()
	switch op {
	case program.IADD, program.ISUB:
		var r L.Interval
		if op == program.IADD {
			r = av.Plus(bv)
		} else {
			r = av.Minus(bv)
		}
		res := L.Defined(r, site)

		shift := func(base L.ValueMapping, c int) L.ValueMapping {
			if !base.HasSource {
				return res
			}
			v := res.DerivedFrom(base.Source)
			if base.HasIncrement {
				v = v.WithIncrement(base.Increment.Plus(L.Const(c)))
				v.SoftInc = base.SoftInc
			}
			return v
		}
		if c, ok := bv.Singleton(); ok {
			if op == program.ISUB {
				c = -c
			}
			return shift(a, c)
		}
		if c, ok := av.Singleton(); ok && op == program.IADD {
			return shift(b, c)
		}
		return res
	case program.IMUL:
		return L.Defined(av.Mult(bv), site)
	case program.IDIV:
		x, okx := av.Singleton()
		y, oky := bv.Singleton()
		if okx && oky && y != 0 {
			return L.Defined(L.Const(x/y), site)
		}
		return L.Defined(L.Top, site)
	case program.IREM:
		return L.Defined(remainder(av, bv), site)
	}
	return L.Defined(L.Top, site)
}

// remainder bounds x % y. The result has the sign of x and a magnitude below
// the largest divisor magnitude.
func remainder(x, y L.Interval) L.Interval {
	if a, ok := x.Singleton(); ok {
		if b, ok := y.Singleton(); ok && b != 0 {
			return L.Const(a % b)
		}
	}
	yl, yh, ok := y.GetFiniteBounds()
	if !ok {
		return L.Top
	}
	m := yh
	if -yl > m {
		m = -yl
	}
	if m == 0 {
		return L.Top
	}
	res := L.FiniteInterval(-(m - 1), m-1)
	if x.Leq(L.AtLeast(0)) {
		res = res.Meet(L.AtLeast(0))
	}
	if x.Leq(L.AtMost(0)) {
		res = res.Meet(L.AtMost(0))
	}
	return res
}

// weakUpdate merges v into a heap cell that may stand for several concrete
// locations. Cells without a known value stay unknown.
func weakUpdate(s L.State, loc L.Location, v L.ValueMapping) L.State {
	s = invalidate(s, isLocation(loc))
	if old, ok := s.Get(loc); ok {
		return s.Set(loc, old.Join(v))
	}
	return s
}

// readHeap loads a heap cell as a fresh stack value.
func readHeap(s L.State, loc L.Location) L.ValueMapping {
	return s.Value(loc).WithoutIncrement().Stored()
}

// step applies one instruction of a basic block to the state.
func (a *analysis) step(s L.State, site program.Site, ins program.Instruction, cs defs.CallString) (L.State, error) {
	var err error
	pop := func() L.ValueMapping {
		if err != nil {
			return L.Unknown()
		}
		var v L.ValueMapping
		s, v, err = s.Pop()
		return v
	}
	heapLoc := func() (string, bool) {
		return a.prog.HeapLocation(site, cs.Sites())
	}

	switch op := ins.Op; {
	case op == program.NOP || op == program.GOTO:
	case op == program.ICONST:
		s = s.Push(L.Constant(L.Const(ins.Operand(0))))
	case op == program.ILOAD:
		loc := L.Local(ins.Operand(0))
		s = s.Push(s.Value(loc).LoadedFrom(loc))
	case op == program.ISTORE:
		loc := L.Local(ins.Operand(0))
		v := pop()
		if !v.HasSource || v.Source != loc {
			v = v.WithoutIncrement()
		}
		s = invalidate(s, isLocation(loc))
		s = s.Set(loc, definedAt(v, site))
	case op == program.IINC:
		loc := L.Local(ins.Operand(0))
		d := L.Const(ins.Operand(1))
		old := s.Value(loc)
		v := L.Defined(old.Value().Plus(d), site)
		if old.HasIncrement {
			v = v.WithIncrement(old.Increment.Plus(d))
			v.SoftInc = old.SoftInc
		}
		s = invalidate(s, isLocation(loc))
		s = s.Set(loc, v)
	case op == program.DUP:
		v := pop()
		if err == nil {
			s = s.Push(v).Push(v)
		}
	case op == program.POP || op == program.SWITCH || op == program.ATHROW:
		pop()
		if op == program.ATHROW {
			s = s.ClearStack()
		}
	case op == program.IADD || op == program.ISUB || op == program.IMUL ||
		op == program.IDIV || op == program.IREM:
		b := pop()
		x := pop()
		s = s.Push(binop(op, x, b, site))
	case op == program.INEG:
		v := pop()
		s = s.Push(L.Defined(v.Value().Neg(), site))
	case op.IsCompareWithZero():
		v := pop()
		s = s.Set(L.Operand(0), v).Set(L.Operand(1), L.Constant(L.Const(0)))
	case op.IsConditional():
		y := pop()
		x := pop()
		s = s.Set(L.Operand(0), x).Set(L.Operand(1), y)
	case op == program.GETSTATIC:
		if name, ok := heapLoc(); ok {
			loc := L.Heap(name)
			s = s.Push(readHeap(s, loc).LoadedFrom(loc))
		} else {
			s = s.Push(L.Defined(L.Top, site))
		}
	case op == program.PUTSTATIC:
		v := pop()
		if name, ok := heapLoc(); ok {
			loc := L.Heap(name)
			s = invalidate(s, isLocation(loc))
			s = s.Set(loc, definedAt(v.WithoutIncrement(), site))
		} else {
			s = invalidate(s.DropHeap(), isHeap)
		}
	case op == program.GETFIELD || op == program.IALOAD:
		if op == program.IALOAD {
			pop()
		}
		pop()
		if name, ok := heapLoc(); ok {
			s = s.Push(readHeap(s, L.Heap(name)))
		} else {
			s = s.Push(L.Defined(L.Top, site))
		}
	case op == program.PUTFIELD || op == program.IASTORE:
		v := pop()
		if op == program.IASTORE {
			pop()
		}
		pop()
		if name, ok := heapLoc(); ok {
			s = weakUpdate(s, L.Heap(name), definedAt(v.WithoutIncrement(), site))
		} else {
			s = invalidate(s.DropHeap(), isHeap)
		}
	case op == program.ARRAYLENGTH:
		pop()
		if name, ok := heapLoc(); ok {
			s = s.Push(readHeap(s, L.ArrayLength(name)).Narrow(L.AtLeast(0)))
		} else {
			s = s.Push(L.Defined(L.AtLeast(0), site))
		}
	case op == program.NEW:
		s = s.Push(L.Defined(L.Top, site))
	case op == program.NEWARRAY:
		n := pop()
		if name, ok := heapLoc(); ok {
			loc := L.ArrayLength(name)
			length := L.Defined(n.Value().Meet(L.AtLeast(0)), site)
			if old, known := s.Get(loc); known {
				length = old.Join(length)
			}
			s = invalidate(s, isLocation(loc))
			s = s.Set(loc, length)
		}
		s = s.Push(L.Defined(L.Top, site))
	case op == program.RETURN:
		s = s.ClearStack()
	case op == program.IRETURN:
		v := pop()
		s = s.ClearStack().Set(L.Return(), v.Stored().WithoutIncrement())
	default:
		return s, defs.Errorf(defs.UnsupportedConstruct, site, "no transfer function for %s", op)
	}

	if err != nil {
		return s, defs.Errorf(defs.MalformedProgram, site, "%s: %w", ins.Op, err)
	}
	return s, nil
}

// block runs the instructions [start, end) of m.
func (a *analysis) block(m *program.Method, start, end int, s L.State, cs defs.CallString) (L.State, error) {
	for i := start; i < end; i++ {
		var err error
		if s, err = a.step(s, program.Site{Method: m.Ref, Index: i}, m.Instructions[i], cs); err != nil {
			return s, err
		}
	}
	return s, nil
}
