package lattice

import (
	"fmt"
	"sort"
	"strings"

	"github.com/benbjohnson/immutable"
	"github.com/jopdesign/wcet/utils"
)

// State is the abstract machine state at a program point: a persistent map
// from locations to values plus the height of the operand stack. Locations
// missing from the map hold an unknown value.
type State struct {
	values *immutable.Map[Location, ValueMapping]
	height int
}

// EmptyState has an empty operand stack and no known values.
func EmptyState() State {
	return State{values: utils.NewImmMap[Location, ValueMapping]()}
}

// Height is the number of operands on the stack.
func (s State) Height() int {
	return s.height
}

// Get returns the value stored at loc, if one is known.
func (s State) Get(loc Location) (ValueMapping, bool) {
	return s.values.Get(loc)
}

// Value returns the value stored at loc, or the unknown value.
func (s State) Value(loc Location) ValueMapping {
	if v, ok := s.values.Get(loc); ok {
		return v
	}
	return Unknown()
}

func (s State) Set(loc Location, v ValueMapping) State {
	s.values = s.values.Set(loc, v)
	return s
}

func (s State) Delete(loc Location) State {
	s.values = s.values.Delete(loc)
	return s
}

// Push places v on top of the operand stack.
func (s State) Push(v ValueMapping) State {
	s = s.Set(Stack(s.height), v)
	s.height++
	return s
}

// Pop removes the top of the operand stack.
func (s State) Pop() (State, ValueMapping, error) {
	if s.height == 0 {
		return s, ValueMapping{}, errStack
	}
	s.height--
	loc := Stack(s.height)
	v := s.Value(loc)
	return s.Delete(loc), v, nil
}

// PopN removes n operands and returns them bottom first.
func (s State) PopN(n int) (State, []ValueMapping, error) {
	vs := make([]ValueMapping, n)
	for i := n - 1; i >= 0; i-- {
		var err error
		if s, vs[i], err = s.Pop(); err != nil {
			return s, nil, err
		}
	}
	return s, vs, nil
}

// Peek returns the operand i positions below the top of the stack.
func (s State) Peek(i int) (ValueMapping, error) {
	if i < 0 || i >= s.height {
		return ValueMapping{}, errStack
	}
	return s.Value(Stack(s.height - 1 - i)), nil
}

// ClearStack empties the operand stack.
func (s State) ClearStack() State {
	for s.height > 0 {
		s.height--
		s = s.Delete(Stack(s.height))
	}
	return s
}

// ForEach visits all known locations.
func (s State) ForEach(do func(Location, ValueMapping)) {
	for itr := s.values.Iterator(); !itr.Done(); {
		loc, v, _ := itr.Next()
		do(loc, v)
	}
}

// merge combines two states of equal stack height. Locations known on only
// one side become unknown.
func (s State) merge(o State, op func(ValueMapping, ValueMapping) ValueMapping) (State, error) {
	if s.height != o.height {
		return s, fmt.Errorf("%w: merging stack heights %d and %d", errStack, s.height, o.height)
	}
	mb := immutable.NewMapBuilder[Location, ValueMapping](utils.HashableHasher[Location]())
	for itr := s.values.Iterator(); !itr.Done(); {
		loc, v1, _ := itr.Next()
		if v2, ok := o.values.Get(loc); ok {
			mb.Set(loc, op(v1, v2))
		}
	}
	return State{values: mb.Map(), height: s.height}, nil
}

// Join computes the least upper bound of two states.
func (s State) Join(o State) (State, error) {
	return s.merge(o, ValueMapping.Join)
}

// Widen extrapolates from s to o pointwise.
func (s State) Widen(o State) (State, error) {
	return s.merge(o, ValueMapping.Widen)
}

// Eq checks that the states hold the same values.
func (s State) Eq(o State) bool {
	if s.height != o.height || s.values.Len() != o.values.Len() {
		return false
	}
	for itr := s.values.Iterator(); !itr.Done(); {
		loc, v1, _ := itr.Next()
		if v2, ok := o.values.Get(loc); !ok || !v1.Eq(v2) {
			return false
		}
	}
	return true
}

// ResetIncrements marks the given locals as unchanged since this point. It
// is applied when entering the header of a loop writing them.
func (s State) ResetIncrements(locals []int) State {
	for _, l := range locals {
		loc := Local(l)
		v := s.Value(loc)
		v.SoftInc = false
		s = s.Set(loc, v.WithIncrement(Const(0)))
	}
	return s
}

// DropHeap forgets every heap cell.
func (s State) DropHeap() State {
	for itr := s.values.Iterator(); !itr.Done(); {
		loc, _, _ := itr.Next()
		if loc.Kind == HeapCell {
			s = s.Delete(loc)
		}
	}
	return s
}

// Heap returns the state restricted to its heap cells.
func (s State) Heap() State {
	res := EmptyState()
	s.ForEach(func(loc Location, v ValueMapping) {
		if loc.Kind == HeapCell {
			res = res.Set(loc, v)
		}
	})
	return res
}

// WithHeap replaces the heap cells of s by the ones of h.
func (s State) WithHeap(h State) State {
	s = s.DropHeap()
	h.ForEach(func(loc Location, v ValueMapping) {
		if loc.Kind == HeapCell {
			s = s.Set(loc, v)
		}
	})
	return s
}

func (s State) String() string {
	locs := make([]Location, 0, s.values.Len())
	s.ForEach(func(loc Location, _ ValueMapping) {
		locs = append(locs, loc)
	})
	sort.Slice(locs, func(i, j int) bool { return locs[i].less(locs[j]) })

	strs := make([]string, 0, len(locs))
	for _, loc := range locs {
		strs = append(strs, loc.String()+" ↦ "+s.Value(loc).String())
	}
	return fmt.Sprintf("{ %s } h=%d", strings.Join(strs, ", "), s.height)
}
