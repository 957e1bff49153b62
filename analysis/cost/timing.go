package cost

import (
	"fmt"

	"github.com/jopdesign/wcet/program"
)

// Timing maps opcodes to their execution time in cycles. Opcodes missing
// from the table have no bounded execution time.
type Timing map[program.Opcode]int

// DefaultTiming approximates a microcoded stack processor without wait
// states. Allocation and throwing are left out: their cost depends on the
// runtime and is not bounded.
func DefaultTiming() Timing {
	t := Timing{
		program.NOP:           1,
		program.ICONST:        1,
		program.ILOAD:         1,
		program.ISTORE:        1,
		program.IINC:          8,
		program.DUP:           1,
		program.POP:           1,
		program.IADD:          1,
		program.ISUB:          1,
		program.IMUL:          35,
		program.IDIV:          1300,
		program.IREM:          1300,
		program.INEG:          4,
		program.GOTO:          4,
		program.SWITCH:        40,
		program.GETSTATIC:     12,
		program.PUTSTATIC:     13,
		program.GETFIELD:      10,
		program.PUTFIELD:      13,
		program.IALOAD:        29,
		program.IASTORE:       32,
		program.ARRAYLENGTH:   6,
		program.INVOKESTATIC:  74,
		program.INVOKEVIRTUAL: 100,
		program.RETURN:        21,
		program.IRETURN:       23,
	}
	for _, op := range program.Opcodes() {
		if op.IsConditional() {
			t[op] = 4
		}
	}
	return t
}

// Uniform charges the same number of cycles for every opcode.
func Uniform(cycles int) Timing {
	t := Timing{}
	for _, op := range program.Opcodes() {
		t[op] = cycles
	}
	return t
}

// Override returns a copy of the table with the given entries, keyed by
// mnemonic, replaced. Negative values remove an entry.
func (t Timing) Override(overrides map[string]int) (Timing, error) {
	res := make(Timing, len(t))
	for op, c := range t {
		res[op] = c
	}
	for name, c := range overrides {
		op, err := program.ParseOpcode(name)
		if err != nil {
			return nil, fmt.Errorf("timing override: %w", err)
		}
		if c < 0 {
			delete(res, op)
		} else {
			res[op] = c
		}
	}
	return res, nil
}

// unbounded opcodes are the ones the unsafe fallback was designed for.
func unbounded(op program.Opcode) bool {
	return op == program.NEW || op == program.NEWARRAY || op == program.ATHROW
}
