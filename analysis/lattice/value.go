package lattice

import (
	"sort"
	"strings"

	"github.com/jopdesign/wcet/program"
)

// maxDefs caps the number of defining sites tracked per value.
const maxDefs = 8

// ValueMapping is the abstract value of a location together with the
// provenance needed for loop bound extraction.
type ValueMapping struct {
	// Assigned is the range of values written to the location.
	Assigned Interval
	// Constrained is Assigned narrowed by the branch conditions on the path.
	// It is the value used by every read.
	Constrained Interval

	// Increment is the change of the value since the header of the innermost
	// loop writing it was last entered. Only meaningful when HasIncrement.
	Increment    Interval
	HasIncrement bool
	// SoftInc is set when different increments were merged.
	SoftInc bool

	// Source is the location a stack value was loaded from. When Derived is
	// set the value is Source plus a constant instead of a copy of it.
	Source    Location
	HasSource bool
	Derived   bool

	// Defs are the instructions that may have defined the value. Constants and
	// values flowing in from callers have none. When DefsUnknown is set the
	// sites were not tracked.
	Defs        []program.Site
	DefsUnknown bool
}

// Unknown is the value without any information.
func Unknown() ValueMapping {
	return ValueMapping{Assigned: Top, Constrained: Top}
}

// Constant is an untracked value known to lie in iv.
func Constant(iv Interval) ValueMapping {
	return ValueMapping{Assigned: iv, Constrained: iv}
}

// Defined is a value in iv produced by the instruction at site.
func Defined(iv Interval, site program.Site) ValueMapping {
	return ValueMapping{Assigned: iv, Constrained: iv, Defs: []program.Site{site}}
}

// Value is the interval observed by reads.
func (v ValueMapping) Value() Interval {
	return v.Constrained
}

// WithIncrement returns the value with a known increment.
func (v ValueMapping) WithIncrement(inc Interval) ValueMapping {
	v.Increment, v.HasIncrement = inc, true
	return v
}

// WithoutIncrement forgets the increment.
func (v ValueMapping) WithoutIncrement() ValueMapping {
	v.Increment, v.HasIncrement, v.SoftInc = Interval{}, false, false
	return v
}

// LoadedFrom records the location a stack value was copied from.
func (v ValueMapping) LoadedFrom(loc Location) ValueMapping {
	v.Source, v.HasSource, v.Derived = loc, true, false
	return v
}

// DerivedFrom records that the value is loc plus a constant.
func (v ValueMapping) DerivedFrom(loc Location) ValueMapping {
	v.Source, v.HasSource, v.Derived = loc, true, true
	return v
}

// CopyOf holds when the value is an unmodified copy of loc.
func (v ValueMapping) CopyOf(loc Location) bool {
	return v.HasSource && !v.Derived && v.Source == loc
}

// Stored drops stack-only provenance when the value is written to a
// location.
func (v ValueMapping) Stored() ValueMapping {
	v.Source, v.HasSource, v.Derived = Location{}, false, false
	return v
}

// Narrow constrains the observed value.
func (v ValueMapping) Narrow(iv Interval) ValueMapping {
	v.Constrained = v.Constrained.Meet(iv)
	return v
}

// DefinedOutside holds when every defining site satisfies outside. Constants
// and parameters are defined outside of everything.
func (v ValueMapping) DefinedOutside(outside func(program.Site) bool) bool {
	if v.DefsUnknown {
		return false
	}
	for _, d := range v.Defs {
		if !outside(d) {
			return false
		}
	}
	return true
}

func mergeDefs(a, b []program.Site) ([]program.Site, bool) {
	set := map[program.Site]struct{}{}
	for _, d := range a {
		set[d] = struct{}{}
	}
	for _, d := range b {
		set[d] = struct{}{}
	}
	if len(set) > maxDefs {
		return nil, true
	}
	defs := make([]program.Site, 0, len(set))
	for d := range set {
		defs = append(defs, d)
	}
	sort.Slice(defs, func(i, j int) bool {
		if defs[i].Method != defs[j].Method {
			return defs[i].Method < defs[j].Method
		}
		return defs[i].Index < defs[j].Index
	})
	return defs, false
}

func sameDefs(a, b []program.Site) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// combine merges two mappings, combining intervals with op.
func (v ValueMapping) combine(o ValueMapping, op func(Interval, Interval) Interval) ValueMapping {
	res := ValueMapping{
		Assigned:    op(v.Assigned, o.Assigned),
		Constrained: op(v.Constrained, o.Constrained),
	}

	if v.HasIncrement && o.HasIncrement {
		res.Increment, res.HasIncrement = op(v.Increment, o.Increment), true
		res.SoftInc = v.SoftInc || o.SoftInc || !v.Increment.Eq(o.Increment)
	}

	if v.HasSource && o.HasSource && v.Source == o.Source && v.Derived == o.Derived {
		res.Source, res.HasSource, res.Derived = v.Source, true, v.Derived
	}

	if v.DefsUnknown || o.DefsUnknown {
		res.DefsUnknown = true
	} else {
		res.Defs, res.DefsUnknown = mergeDefs(v.Defs, o.Defs)
	}
	return res
}

// Join computes the least upper bound of two mappings.
func (v ValueMapping) Join(o ValueMapping) ValueMapping {
	return v.combine(o, Interval.Join)
}

// Widen extrapolates the growth from v to o.
func (v ValueMapping) Widen(o ValueMapping) ValueMapping {
	return v.combine(o, Interval.Widen)
}

// Eq compares every component of two mappings.
func (v ValueMapping) Eq(o ValueMapping) bool {
	return v.Assigned.Eq(o.Assigned) &&
		v.Constrained.Eq(o.Constrained) &&
		v.HasIncrement == o.HasIncrement &&
		(!v.HasIncrement || v.Increment.Eq(o.Increment)) &&
		v.SoftInc == o.SoftInc &&
		v.HasSource == o.HasSource && v.Source == o.Source && v.Derived == o.Derived &&
		v.DefsUnknown == o.DefsUnknown && sameDefs(v.Defs, o.Defs)
}

func (v ValueMapping) String() string {
	var sb strings.Builder
	sb.WriteString(v.Constrained.String())
	if !v.Assigned.Eq(v.Constrained) {
		sb.WriteString(" " + colorize.Attr("assigned") + "=" + v.Assigned.String())
	}
	if v.HasIncrement {
		sb.WriteString(" " + colorize.Attr("inc") + "=" + v.Increment.String())
		if v.SoftInc {
			sb.WriteString("~")
		}
	}
	if v.HasSource {
		rel := "from"
		if v.Derived {
			rel = "from~"
		}
		sb.WriteString(" " + colorize.Attr(rel) + "=" + v.Source.String())
	}
	return sb.String()
}
