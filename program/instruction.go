package program

import (
	"fmt"
	"strings"
)

// Instruction is a single stack machine instruction of a method body.
type Instruction struct {
	Op Opcode
	// Operands holds immediate operands: the constant of ICONST, the slot of
	// ILOAD/ISTORE, or the slot and delta of IINC.
	Operands []int
	// Field names the static or instance field accessed by field opcodes.
	Field string
	// Callee is the statically referenced method of an invoke.
	Callee MethodRef
	// Args is the number of stack operands consumed by an invoke, receiver
	// included.
	Args int
	// Returns is set for invokes of methods producing a value.
	Returns bool
	// Targets are the declared flow targets as instruction indices. For
	// SWITCH the first target is the default.
	Targets []int
	Line    int
}

// Operand returns the i'th immediate operand, or 0 if absent.
func (ins Instruction) Operand(i int) int {
	if i < len(ins.Operands) {
		return ins.Operands[i]
	}
	return 0
}

// StackEffect returns the number of stack slots consumed and produced.
func (ins Instruction) StackEffect() (pops, pushes int) {
	switch ins.Op {
	case NOP, IINC, GOTO, RETURN:
		return 0, 0
	case ICONST, ILOAD, GETSTATIC, NEW:
		return 0, 1
	case ISTORE, POP, PUTSTATIC, SWITCH, IRETURN, ATHROW:
		return 1, 0
	case DUP:
		return 1, 2
	case IADD, ISUB, IMUL, IDIV, IREM, IALOAD:
		return 2, 1
	case INEG, GETFIELD, ARRAYLENGTH, NEWARRAY:
		return 1, 1
	case PUTFIELD:
		return 2, 0
	case IASTORE:
		return 3, 0
	case INVOKESTATIC, INVOKEVIRTUAL:
		if ins.Returns {
			return ins.Args, 1
		}
		return ins.Args, 0
	}
	if ins.Op.IsCompareWithZero() {
		return 1, 0
	}
	if ins.Op.IsConditional() {
		return 2, 0
	}
	return 0, 0
}

// Size is the encoded length of the instruction in bytes.
func (ins Instruction) Size() int {
	switch ins.Op {
	case ICONST:
		switch c := ins.Operand(0); {
		case -1 <= c && c <= 5:
			return 1
		case -128 <= c && c <= 127:
			return 2
		default:
			return 3
		}
	case ILOAD, ISTORE:
		if ins.Operand(0) <= 3 {
			return 1
		}
		return 2
	case NEWARRAY:
		return 2
	case IINC, GOTO, GETSTATIC, PUTSTATIC, GETFIELD, PUTFIELD, NEW, INVOKESTATIC:
		return 3
	case INVOKEVIRTUAL:
		return 3
	case SWITCH:
		return 12 + 4*len(ins.Targets)
	}
	if ins.Op.IsConditional() {
		return 3
	}
	return 1
}

// TargetKind tags a declared flow target.
type TargetKind uint8

const (
	TargetGoto TargetKind = iota
	TargetBranch
	TargetSelect
)

// FlowTarget is one declared successor of a terminal instruction.
type FlowTarget struct {
	Index int
	Kind  TargetKind
}

// FlowInfo summarizes how control leaves an instruction.
type FlowInfo struct {
	// Exit is set when control leaves the method.
	Exit bool
	// Thrown is set for exits raising an exception.
	Thrown bool
	// AlwaysTaken is set when control never falls through.
	AlwaysTaken bool
	Targets     []FlowTarget
}

// Terminal reports whether the instruction ends a basic block.
func (f FlowInfo) Terminal() bool {
	return f.Exit || f.AlwaysTaken || len(f.Targets) > 0
}

// Flow returns the flow info of the instruction.
func (ins Instruction) Flow() FlowInfo {
	switch {
	case ins.Op.IsReturn():
		return FlowInfo{Exit: true, AlwaysTaken: true}
	case ins.Op == ATHROW:
		return FlowInfo{Exit: true, Thrown: true, AlwaysTaken: true}
	case ins.Op == GOTO:
		return FlowInfo{AlwaysTaken: true, Targets: ins.targets(TargetGoto)}
	case ins.Op == SWITCH:
		return FlowInfo{AlwaysTaken: true, Targets: ins.targets(TargetSelect)}
	case ins.Op.IsConditional():
		return FlowInfo{Targets: ins.targets(TargetBranch)}
	}
	return FlowInfo{}
}

func (ins Instruction) targets(kind TargetKind) []FlowTarget {
	ts := make([]FlowTarget, len(ins.Targets))
	for i, t := range ins.Targets {
		ts[i] = FlowTarget{t, kind}
	}
	return ts
}

func (ins Instruction) String() string {
	var sb strings.Builder
	sb.WriteString(ins.Op.String())
	for _, o := range ins.Operands {
		fmt.Fprintf(&sb, " %d", o)
	}
	if ins.Field != "" {
		sb.WriteString(" " + ins.Field)
	}
	if ins.Callee != "" {
		sb.WriteString(" " + string(ins.Callee))
	}
	for _, t := range ins.Targets {
		fmt.Fprintf(&sb, " @%d", t)
	}
	return sb.String()
}
