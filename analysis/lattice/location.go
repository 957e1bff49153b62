package lattice

import (
	"fmt"

	"github.com/jopdesign/wcet/utils"
)

// LocationKind distinguishes the storage classes of abstract locations.
type LocationKind uint8

const (
	StackSlot LocationKind = iota
	LocalSlot
	HeapCell
	// ReturnCell holds the value returned by a method.
	ReturnCell
	// OperandCell keeps the operands of a conditional branch until the
	// outgoing edges are constrained by it.
	OperandCell
)

// Location is an abstract storage location: an operand stack slot (counted
// from the bottom of the frame's stack), a local variable slot, or a named
// heap cell resolved by the alias oracle.
type Location struct {
	Kind  LocationKind
	Index int
	Name  string
}

func Stack(i int) Location      { return Location{Kind: StackSlot, Index: i} }
func Local(i int) Location      { return Location{Kind: LocalSlot, Index: i} }
func Heap(name string) Location { return Location{Kind: HeapCell, Name: name} }
func Return() Location          { return Location{Kind: ReturnCell} }
func Operand(i int) Location    { return Location{Kind: OperandCell, Index: i} }

// ArrayLength is the heap cell tracking the length of the array stored at name.
func ArrayLength(name string) Location {
	return Heap(name + ".length")
}

func (l Location) Hash() uint32 {
	return utils.HashCombine(uint32(l.Kind), uint32(l.Index), utils.StringHash(l.Name))
}

func (l Location) Equal(o Location) bool {
	return l == o
}

func (l Location) String() string {
	switch l.Kind {
	case StackSlot:
		return colorize.Key(fmt.Sprintf("s%d", l.Index))
	case LocalSlot:
		return colorize.Key(fmt.Sprintf("l%d", l.Index))
	case ReturnCell:
		return colorize.Key("ret")
	case OperandCell:
		return colorize.Key(fmt.Sprintf("op%d", l.Index))
	}
	return colorize.Key(l.Name)
}

// less orders locations: stack, locals, then heap cells by name.
func (l Location) less(o Location) bool {
	if l.Kind != o.Kind {
		return l.Kind < o.Kind
	}
	if l.Index != o.Index {
		return l.Index < o.Index
	}
	return l.Name < o.Name
}
