package program

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// Assemble parses a textual method body.
//
// Each line holds one instruction, a label definition ("name:") or a line
// directive (".line N"). Comments start with ';' or '#'. Branch operands are
// labels, invokes name their callee optionally followed by the argument count
// and "ret" when a value is produced; Link fills these in from known callees.
//
//	loop:
//	  iload 0
//	  iconst 10
//	  if_icmpge done
//	  iinc 0 1
//	  goto loop
//	done:
//	  return
func Assemble(ref MethodRef, args int, returns bool, src string) (*Method, error) {
	type pending struct {
		labels []string
		line   int
	}

	var (
		ins    []Instruction
		refs   []pending
		labels = make(map[string]int)
		line   int
	)

	sc := bufio.NewScanner(strings.NewReader(src))
	for lineNo := 1; sc.Scan(); lineNo++ {
		text := sc.Text()
		if i := strings.IndexAny(text, ";#"); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}

		if strings.HasSuffix(fields[0], ":") {
			name := strings.TrimSuffix(fields[0], ":")
			if _, dup := labels[name]; dup {
				return nil, fmt.Errorf("%s:%d: duplicate label %q", ref, lineNo, name)
			}
			labels[name] = len(ins)
			fields = fields[1:]
			if len(fields) == 0 {
				continue
			}
		}

		if fields[0] == ".line" {
			if len(fields) != 2 {
				return nil, fmt.Errorf("%s:%d: .line expects one operand", ref, lineNo)
			}
			n, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", ref, lineNo, err)
			}
			line = n
			continue
		}

		op, err := ParseOpcode(fields[0])
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", ref, lineNo, err)
		}
		in := Instruction{Op: op, Line: line}
		var targets []string
		operands := fields[1:]

		switch {
		case op == GOTO || op.IsConditional():
			if len(operands) != 1 {
				return nil, fmt.Errorf("%s:%d: %s expects a label", ref, lineNo, op)
			}
			targets = operands
		case op == SWITCH:
			if len(operands) == 0 {
				return nil, fmt.Errorf("%s:%d: switch expects a default label", ref, lineNo)
			}
			targets = operands
		case op.IsInvoke():
			if len(operands) == 0 {
				return nil, fmt.Errorf("%s:%d: %s expects a callee", ref, lineNo, op)
			}
			in.Callee = MethodRef(operands[0])
			in.Args = -1
			for _, o := range operands[1:] {
				if o == "ret" {
					in.Returns = true
				} else if in.Args, err = strconv.Atoi(o); err != nil {
					return nil, fmt.Errorf("%s:%d: %w", ref, lineNo, err)
				}
			}
		case op == GETSTATIC || op == PUTSTATIC || op == GETFIELD || op == PUTFIELD:
			if len(operands) != 1 {
				return nil, fmt.Errorf("%s:%d: %s expects a field", ref, lineNo, op)
			}
			in.Field = operands[0]
		default:
			for _, o := range operands {
				v, err := strconv.Atoi(o)
				if err != nil {
					return nil, fmt.Errorf("%s:%d: %w", ref, lineNo, err)
				}
				in.Operands = append(in.Operands, v)
			}
		}

		ins = append(ins, in)
		refs = append(refs, pending{targets, lineNo})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	for i, p := range refs {
		for _, l := range p.labels {
			target, ok := labels[l]
			if !ok {
				return nil, fmt.Errorf("%s:%d: undefined label %q", ref, p.line, l)
			}
			ins[i].Targets = append(ins[i].Targets, target)
		}
	}

	return &Method{
		Ref:          ref,
		Args:         args,
		Returns:      returns,
		Instructions: ins,
		LoopBounds:   make(map[int]int),
	}, nil
}

// MustAssemble is like Assemble but panics on malformed input.
func MustAssemble(ref MethodRef, args int, returns bool, src string) *Method {
	m, err := Assemble(ref, args, returns, src)
	if err != nil {
		panic(err)
	}
	return m
}

// Link completes the argument count and return flag of every invoke whose
// callee is known, and rejects invokes left incomplete.
func (p *Memory) Link() error {
	for _, m := range p.Methods() {
		for i := range m.Instructions {
			in := &m.Instructions[i]
			if !in.Op.IsInvoke() {
				continue
			}
			if callee, ok := p.methods[in.Callee]; ok {
				if in.Args < 0 {
					in.Args = callee.Args
				}
				in.Returns = in.Returns || callee.Returns
			}
			if in.Args < 0 {
				return fmt.Errorf("%v: unknown argument count for %s", Site{m.Ref, i}, in.Callee)
			}
		}
	}
	return nil
}
