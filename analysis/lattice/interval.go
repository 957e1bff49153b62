package lattice

import (
	"github.com/jopdesign/wcet/program"
	"github.com/jopdesign/wcet/utils"
)

// Interval is a member of the interval lattice: the set of integers between
// `low` and `high`. Open (infinite) bounds mean "unknown" in that direction.
type Interval struct {
	low  IntervalBound
	high IntervalBound
}

var (
	// Top is [-∞, ∞].
	Top = Interval{MinusInfinity{}, PlusInfinity{}}
	// Bot is the empty interval [∞, -∞].
	Bot = Interval{PlusInfinity{}, MinusInfinity{}}
)

// MakeInterval creates an interval with possibly infinite bounds. Empty
// ranges are normalized to Bot.
func MakeInterval(low, high IntervalBound) Interval {
	if !low.Leq(high) || rank(low) == 1 || rank(high) == -1 {
		return Bot
	}
	return Interval{low, high}
}

// FiniteInterval creates the interval [low, high].
func FiniteInterval(low, high int) Interval {
	return MakeInterval(FiniteBound(low), FiniteBound(high))
}

// Const creates the singleton interval [c, c].
func Const(c int) Interval {
	return FiniteInterval(c, c)
}

// AtLeast creates [low, ∞].
func AtLeast(low int) Interval {
	return MakeInterval(FiniteBound(low), PlusInfinity{})
}

// AtMost creates [-∞, high].
func AtMost(high int) Interval {
	return MakeInterval(MinusInfinity{}, FiniteBound(high))
}

func (e Interval) Low() IntervalBound  { return e.low }
func (e Interval) High() IntervalBound { return e.high }

func (e Interval) String() string {
	if e.IsBot() {
		return colorize.Element("⊥")
	}
	return colorize.Element("[" + e.low.String() + ", " + e.high.String() + "]")
}

// IsBot checks that the interval is equal to ⊥ = [∞, -∞].
func (e Interval) IsBot() bool {
	return rank(e.low) == 1 && rank(e.high) == -1
}

// IsTop checks that the interval is equal to ⊤ = [-∞, ∞].
func (e Interval) IsTop() bool {
	return rank(e.low) == -1 && rank(e.high) == 1
}

// IsFinite holds for non-empty intervals with finite bounds.
func (e Interval) IsFinite() bool {
	_, lok := e.low.(FiniteBound)
	_, hok := e.high.(FiniteBound)
	return lok && hok
}

// GetFiniteBounds returns the integer bounds of a finite interval.
func (e Interval) GetFiniteBounds() (low, high int, ok bool) {
	l, lok := e.low.(FiniteBound)
	h, hok := e.high.(FiniteBound)
	return int(l), int(h), lok && hok
}

// LowInt returns the lower bound if it is finite.
func (e Interval) LowInt() (int, bool) {
	l, ok := e.low.(FiniteBound)
	return int(l), ok
}

// HighInt returns the upper bound if it is finite.
func (e Interval) HighInt() (int, bool) {
	h, ok := e.high.(FiniteBound)
	return int(h), ok
}

// Singleton returns c when the interval is [c, c].
func (e Interval) Singleton() (int, bool) {
	l, h, ok := e.GetFiniteBounds()
	return l, ok && l == h
}

// Contains checks membership of an integer.
func (e Interval) Contains(c int) bool {
	return e.low.Leq(FiniteBound(c)) && FiniteBound(c).Leq(e.high)
}

// Eq computes e1 = e2.
func (e1 Interval) Eq(e2 Interval) bool {
	if e1.IsBot() || e2.IsBot() {
		return e1.IsBot() == e2.IsBot()
	}
	return e1.low.Eq(e2.low) && e1.high.Eq(e2.high)
}

// Leq computes e1 ⊑ e2.
func (e1 Interval) Leq(e2 Interval) bool {
	if e1.IsBot() {
		return true
	}
	if e2.IsBot() {
		return false
	}
	return e2.low.Leq(e1.low) && e1.high.Leq(e2.high)
}

// Join computes e1 ⊔ e2: the lowest of the lower bounds and the highest of
// the upper bounds.
func (e1 Interval) Join(e2 Interval) Interval {
	switch {
	case e1.IsBot():
		return e2
	case e2.IsBot():
		return e1
	}
	return Interval{MinBound(e1.low, e2.low), MaxBound(e1.high, e2.high)}
}

// Meet computes e1 ⊓ e2, constraining e1 to the values also in e2.
func (e1 Interval) Meet(e2 Interval) Interval {
	if e1.IsBot() || e2.IsBot() {
		return Bot
	}
	return MakeInterval(MaxBound(e1.low, e2.low), MinBound(e1.high, e2.high))
}

// Widen extrapolates the growth from e1 to e2: every bound of e2 that moved
// outwards is replaced by the corresponding infinity.
func (e1 Interval) Widen(e2 Interval) Interval {
	switch {
	case e1.IsBot():
		return e2
	case e2.IsBot():
		return e1
	}
	low, high := e1.low, e1.high
	if Lt(e2.low, e1.low) {
		low = MinusInfinity{}
	}
	if Gt(e2.high, e1.high) {
		high = PlusInfinity{}
	}
	return Interval{low, high}
}

// machine turns results outside the 32 bit integer range into ⊤, matching
// the wrap-around semantics of integer arithmetic.
func machine(e Interval) Interval {
	if e.IsBot() || (inInt32(e.low) && inInt32(e.high)) {
		return e
	}
	return Top
}

// Plus computes [a, b] + [c, d] = [a + c, b + d].
func (e1 Interval) Plus(e2 Interval) Interval {
	if e1.IsBot() || e2.IsBot() {
		return Bot
	}
	return machine(Interval{e1.low.Plus(e2.low), e1.high.Plus(e2.high)})
}

// Neg computes -[a, b] = [-b, -a].
func (e Interval) Neg() Interval {
	if e.IsBot() {
		return Bot
	}
	return machine(Interval{e.high.Neg(), e.low.Neg()})
}

// Minus computes [a, b] - [c, d] = [a - d, b - c].
func (e1 Interval) Minus(e2 Interval) Interval {
	return e1.Plus(e2.Neg())
}

// Mult computes the hull of the pairwise bound products.
func (e1 Interval) Mult(e2 Interval) Interval {
	if e1.IsBot() || e2.IsBot() {
		return Bot
	}
	a, b := e1.low.Mult(e2.low), e1.low.Mult(e2.high)
	c, d := e1.high.Mult(e2.low), e1.high.Mult(e2.high)
	return machine(Interval{MinBound(a, b, c, d), MaxBound(a, b, c, d)})
}

// Restrict constrains e1 to the values x for which `x cmp y` holds for some
// y in e2.
func (e1 Interval) Restrict(cmp program.Comparison, e2 Interval) Interval {
	if e1.IsBot() || e2.IsBot() {
		return Bot
	}
	switch cmp {
	case program.CmpEQ:
		return e1.Meet(e2)
	case program.CmpLT:
		return e1.Meet(MakeInterval(MinusInfinity{}, e2.high.Plus(FiniteBound(-1))))
	case program.CmpLE:
		return e1.Meet(MakeInterval(MinusInfinity{}, e2.high))
	case program.CmpGT:
		return e1.Meet(MakeInterval(e2.low.Plus(FiniteBound(1)), PlusInfinity{}))
	case program.CmpGE:
		return e1.Meet(MakeInterval(e2.low, PlusInfinity{}))
	case program.CmpNE:
		c, ok := e2.Singleton()
		if !ok {
			return e1
		}
		if e1.low.Eq(FiniteBound(c)) {
			return MakeInterval(FiniteBound(c+1), e1.high)
		}
		if e1.high.Eq(FiniteBound(c)) {
			return MakeInterval(e1.low, FiniteBound(c-1))
		}
		return e1
	}
	panic(errInternal)
}

// Count returns the number of integers in a finite interval.
func (e Interval) Count() (int, bool) {
	if e.IsBot() {
		return 0, true
	}
	l, h, ok := e.GetFiniteBounds()
	return h - l + 1, ok
}

// Hash is consistent with Eq.
func (e Interval) Hash() uint32 {
	if e.IsBot() {
		return 0
	}
	return utils.HashCombine(utils.StringHash(e.low.String()), utils.StringHash(e.high.String()))
}
