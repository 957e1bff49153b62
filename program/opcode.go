package program

import (
	"fmt"
	"strings"
)

// Opcode identifies the operation performed by an instruction.
type Opcode uint8

const (
	NOP Opcode = iota
	ICONST
	ILOAD
	ISTORE
	IINC
	DUP
	POP
	IADD
	ISUB
	IMUL
	IDIV
	IREM
	INEG
	IFEQ
	IFNE
	IFLT
	IFGE
	IFGT
	IFLE
	IF_ICMPEQ
	IF_ICMPNE
	IF_ICMPLT
	IF_ICMPGE
	IF_ICMPGT
	IF_ICMPLE
	GOTO
	SWITCH
	GETSTATIC
	PUTSTATIC
	GETFIELD
	PUTFIELD
	IALOAD
	IASTORE
	ARRAYLENGTH
	NEW
	NEWARRAY
	INVOKESTATIC
	INVOKEVIRTUAL
	RETURN
	IRETURN
	ATHROW

	numOpcodes
)

var opcodeNames = [...]string{
	NOP:           "nop",
	ICONST:        "iconst",
	ILOAD:         "iload",
	ISTORE:        "istore",
	IINC:          "iinc",
	DUP:           "dup",
	POP:           "pop",
	IADD:          "iadd",
	ISUB:          "isub",
	IMUL:          "imul",
	IDIV:          "idiv",
	IREM:          "irem",
	INEG:          "ineg",
	IFEQ:          "ifeq",
	IFNE:          "ifne",
	IFLT:          "iflt",
	IFGE:          "ifge",
	IFGT:          "ifgt",
	IFLE:          "ifle",
	IF_ICMPEQ:     "if_icmpeq",
	IF_ICMPNE:     "if_icmpne",
	IF_ICMPLT:     "if_icmplt",
	IF_ICMPGE:     "if_icmpge",
	IF_ICMPGT:     "if_icmpgt",
	IF_ICMPLE:     "if_icmple",
	GOTO:          "goto",
	SWITCH:        "switch",
	GETSTATIC:     "getstatic",
	PUTSTATIC:     "putstatic",
	GETFIELD:      "getfield",
	PUTFIELD:      "putfield",
	IALOAD:        "iaload",
	IASTORE:       "iastore",
	ARRAYLENGTH:   "arraylength",
	NEW:           "new",
	NEWARRAY:      "newarray",
	INVOKESTATIC:  "invokestatic",
	INVOKEVIRTUAL: "invokevirtual",
	RETURN:        "return",
	IRETURN:       "ireturn",
	ATHROW:        "athrow",
}

func (op Opcode) String() string {
	if op < numOpcodes {
		return opcodeNames[op]
	}
	return fmt.Sprintf("opcode(%d)", uint8(op))
}

// ParseOpcode maps a mnemonic (case-insensitive) to its opcode.
func ParseOpcode(s string) (Opcode, error) {
	s = strings.ToLower(s)
	for op, name := range opcodeNames {
		if name == s {
			return Opcode(op), nil
		}
	}
	return NOP, fmt.Errorf("unknown opcode %q", s)
}

// Opcodes lists every opcode in numeric order.
func Opcodes() []Opcode {
	ops := make([]Opcode, 0, numOpcodes)
	for op := Opcode(0); op < numOpcodes; op++ {
		ops = append(ops, op)
	}
	return ops
}

// IsConditional holds for branches with a taken and a fall-through successor.
func (op Opcode) IsConditional() bool {
	return IFEQ <= op && op <= IF_ICMPLE
}

// IsCompareWithZero holds for the single operand conditional branches.
func (op Opcode) IsCompareWithZero() bool {
	return IFEQ <= op && op <= IFLE
}

// IsInvoke holds for method invocations.
func (op Opcode) IsInvoke() bool {
	return op == INVOKESTATIC || op == INVOKEVIRTUAL
}

// IsReturn holds for instructions leaving the method normally.
func (op Opcode) IsReturn() bool {
	return op == RETURN || op == IRETURN
}

// Comparison is the relation tested by a conditional branch.
type Comparison uint8

const (
	CmpEQ Comparison = iota
	CmpNE
	CmpLT
	CmpGE
	CmpGT
	CmpLE
)

func (c Comparison) String() string {
	return [...]string{"==", "!=", "<", ">=", ">", "<="}[c]
}

// Negate returns the relation holding exactly when c does not.
func (c Comparison) Negate() Comparison {
	return [...]Comparison{CmpNE, CmpEQ, CmpGE, CmpLT, CmpLE, CmpGT}[c]
}

// Mirror returns the relation obtained by swapping the operands of c.
func (c Comparison) Mirror() Comparison {
	return [...]Comparison{CmpEQ, CmpNE, CmpGT, CmpLE, CmpLT, CmpGE}[c]
}

// Comparison returns the relation tested by a conditional branch opcode.
func (op Opcode) Comparison() (Comparison, bool) {
	switch {
	case op.IsCompareWithZero():
		return Comparison(op - IFEQ), true
	case IF_ICMPEQ <= op && op <= IF_ICMPLE:
		return Comparison(op - IF_ICMPEQ), true
	}
	return 0, false
}
