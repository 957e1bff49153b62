package lattice

import (
	"math"
	"strconv"
)

// IntervalBound is a bound of an interval: an integer or one of ±∞.
type IntervalBound interface {
	// Eq checks whether two bounds are equal.
	Eq(IntervalBound) bool
	// Leq checks whether the bound is less than or equal to another.
	Leq(IntervalBound) bool
	// Plus adds two bounds. Adding opposite infinities is undefined.
	Plus(IntervalBound) IntervalBound
	// Mult multiplies two bounds, with 0 * ±∞ = 0.
	Mult(IntervalBound) IntervalBound
	// Neg negates the bound.
	Neg() IntervalBound

	String() string
}

type (
	// FiniteBound is an integer bound.
	FiniteBound int
	// PlusInfinity is the bound ∞.
	PlusInfinity struct{}
	// MinusInfinity is the bound -∞.
	MinusInfinity struct{}
)

func (b FiniteBound) String() string { return strconv.Itoa(int(b)) }
func (PlusInfinity) String() string { return "∞" }
func (MinusInfinity) String() string { return "-∞" }
func (b FiniteBound) Neg() IntervalBound { return -b }
func (PlusInfinity) Neg() IntervalBound { return MinusInfinity{} }
func (MinusInfinity) Neg() IntervalBound { return PlusInfinity{} }

// rank orders bounds by their kind: -∞ < finite < ∞.
func rank(b IntervalBound) int {
	switch b.(type) {
	case MinusInfinity:
		return -1
	case PlusInfinity:
		return 1
	}
	return 0
}

func (b FiniteBound) Eq(o IntervalBound) bool {
	ob, ok := o.(FiniteBound)
	return ok && b == ob
}
func (PlusInfinity) Eq(o IntervalBound) bool { return rank(o) == 1 }
func (MinusInfinity) Eq(o IntervalBound) bool { return rank(o) == -1 }

func (b FiniteBound) Leq(o IntervalBound) bool {
	if ob, ok := o.(FiniteBound); ok {
		return b <= ob
	}
	return rank(o) == 1
}
func (PlusInfinity) Leq(o IntervalBound) bool { return rank(o) == 1 }
func (MinusInfinity) Leq(o IntervalBound) bool { return true }

func (b FiniteBound) Plus(o IntervalBound) IntervalBound {
	if ob, ok := o.(FiniteBound); ok {
		return b + ob
	}
	return o
}
func (p PlusInfinity) Plus(o IntervalBound) IntervalBound {
	if rank(o) == -1 {
		panic(errInfinities)
	}
	return p
}
func (m MinusInfinity) Plus(o IntervalBound) IntervalBound {
	if rank(o) == 1 {
		panic(errInfinities)
	}
	return m
}

// signOf returns the sign of a bound.
func signOf(b IntervalBound) int {
	switch b := b.(type) {
	case FiniteBound:
		switch {
		case b < 0:
			return -1
		case b > 0:
			return 1
		}
		return 0
	}
	return rank(b)
}

func (b FiniteBound) Mult(o IntervalBound) IntervalBound {
	if ob, ok := o.(FiniteBound); ok {
		return b * ob
	}
	return o.Mult(b)
}
func (p PlusInfinity) Mult(o IntervalBound) IntervalBound {
	switch signOf(o) {
	case 0:
		return FiniteBound(0)
	case 1:
		return p
	}
	return MinusInfinity{}
}
func (m MinusInfinity) Mult(o IntervalBound) IntervalBound {
	switch signOf(o) {
	case 0:
		return FiniteBound(0)
	case 1:
		return m
	}
	return PlusInfinity{}
}

// Lt, Gt and Geq are derived from Leq and Eq.
func Lt(a, b IntervalBound) bool { return a.Leq(b) && !a.Eq(b) }
func Gt(a, b IntervalBound) bool { return !a.Leq(b) }
func Geq(a, b IntervalBound) bool { return b.Leq(a) }

// MinBound returns the smallest of the bounds.
func MinBound(a IntervalBound, bs ...IntervalBound) IntervalBound {
	for _, b := range bs {
		if b.Leq(a) {
			a = b
		}
	}
	return a
}

// MaxBound returns the largest of the bounds.
func MaxBound(a IntervalBound, bs ...IntervalBound) IntervalBound {
	for _, b := range bs {
		if a.Leq(b) {
			a = b
		}
	}
	return a
}

// inInt32 checks that a finite bound is a representable machine integer.
func inInt32(b IntervalBound) bool {
	fb, ok := b.(FiniteBound)
	return !ok || (math.MinInt32 <= int64(fb) && int64(fb) <= math.MaxInt32)
}
