package program

import (
	"fmt"
	"sort"
	"strings"
)

// MethodRef identifies a method, e.g. "Main.measure".
type MethodRef string

// Class returns the part of the reference before the last dot.
func (r MethodRef) Class() string {
	if i := strings.LastIndexByte(string(r), '.'); i >= 0 {
		return string(r[:i])
	}
	return ""
}

// Name returns the part of the reference after the last dot.
func (r MethodRef) Name() string {
	return string(r[strings.LastIndexByte(string(r), '.')+1:])
}

// Site identifies an instruction of a method.
type Site struct {
	Method MethodRef
	Index  int
}

// NoSite marks values not defined by any instruction.
var NoSite = Site{Index: -1}

func (s Site) IsValid() bool {
	return s.Index >= 0
}

func (s Site) String() string {
	if !s.IsValid() {
		return "<none>"
	}
	return fmt.Sprintf("%s@%d", s.Method, s.Index)
}

// Handler is an exception handler range [Start, End) jumping to Target.
type Handler struct {
	Start, End, Target int
}

// Method is the code and metadata of one method.
type Method struct {
	Ref      MethodRef
	Args     int
	Returns  bool
	Native   bool
	Abstract bool

	Instructions []Instruction
	Handlers     []Handler

	// LoopBounds holds source annotations: the maximal number of back edge
	// traversals per entry of the loop whose header starts at the given line.
	LoopBounds map[int]int
}

// Offset returns the byte offset of the instruction at index i.
func (m *Method) Offset(i int) int {
	off := 0
	for j := 0; j < i && j < len(m.Instructions); j++ {
		off += m.Instructions[j].Size()
	}
	return off
}

// SizeInBytes is the length of the encoded method body.
func (m *Method) SizeInBytes() int {
	return m.Offset(len(m.Instructions))
}

// SizeInWords is the method body length in 32 bit words, rounded up.
func (m *Method) SizeInWords() int {
	return (m.SizeInBytes() + 3) / 4
}

// Annotation returns the source loop bound annotated at the given line.
func (m *Method) Annotation(line int) (int, bool) {
	b, ok := m.LoopBounds[line]
	return b, ok
}

func (m *Method) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s(%d)", m.Ref, m.Args)
	if m.Returns {
		sb.WriteString(" int")
	}
	sb.WriteString(" {\n")
	for i, ins := range m.Instructions {
		fmt.Fprintf(&sb, "  %3d: %s\n", i, ins)
	}
	sb.WriteString("}")
	return sb.String()
}

// Program is the analyzed program together with its resolution oracles.
// Contexts are call strings, oldest call site first.
type Program interface {
	// Method returns the method with the given reference.
	Method(ref MethodRef) (*Method, bool)
	// Methods returns every method, ordered by reference.
	Methods() []*Method
	// PossibleReceivers returns the implementations an invoke may dispatch to.
	PossibleReceivers(site Site, context []Site) []MethodRef
	// HeapLocation names the abstract heap location accessed by a field or
	// array instruction. It fails when the receiver cannot be resolved.
	HeapLocation(site Site, context []Site) (string, bool)
}

// Memory is an in-memory Program.
type Memory struct {
	methods map[MethodRef]*Method
	// dispatch maps a statically referenced method to its implementations.
	dispatch map[MethodRef][]MethodRef
	// siteDispatch overrides dispatch at specific invoke sites.
	siteDispatch map[Site][]MethodRef
	heap         map[Site]string
}

// NewMemory creates an empty in-memory program.
func NewMemory() *Memory {
	return &Memory{
		methods:      make(map[MethodRef]*Method),
		dispatch:     make(map[MethodRef][]MethodRef),
		siteDispatch: make(map[Site][]MethodRef),
		heap:         make(map[Site]string),
	}
}

// Add registers a method, replacing any method with the same reference.
func (p *Memory) Add(m *Method) *Memory {
	p.methods[m.Ref] = m
	return p
}

// Implement declares that invokes of ref may dispatch to impls.
func (p *Memory) Implement(ref MethodRef, impls ...MethodRef) *Memory {
	p.dispatch[ref] = append(p.dispatch[ref], impls...)
	return p
}

// DispatchAt restricts the receivers of the invoke at site.
func (p *Memory) DispatchAt(site Site, impls ...MethodRef) *Memory {
	p.siteDispatch[site] = impls
	return p
}

// Alias declares the heap location accessed at site.
func (p *Memory) Alias(site Site, location string) *Memory {
	p.heap[site] = location
	return p
}

func (p *Memory) Method(ref MethodRef) (*Method, bool) {
	m, ok := p.methods[ref]
	return m, ok
}

func (p *Memory) Methods() []*Method {
	ms := make([]*Method, 0, len(p.methods))
	for _, m := range p.methods {
		ms = append(ms, m)
	}
	sort.Slice(ms, func(i, j int) bool { return ms[i].Ref < ms[j].Ref })
	return ms
}

// PossibleReceivers prefers site overrides, then the dispatch table, then
// the static callee when it has a body.
func (p *Memory) PossibleReceivers(site Site, _ []Site) []MethodRef {
	if impls, ok := p.siteDispatch[site]; ok {
		return impls
	}
	m, ok := p.methods[site.Method]
	if !ok || site.Index < 0 || site.Index >= len(m.Instructions) {
		return nil
	}
	callee := m.Instructions[site.Index].Callee
	if impls, ok := p.dispatch[callee]; ok {
		return impls
	}
	if target, ok := p.methods[callee]; ok && !target.Abstract {
		return []MethodRef{callee}
	}
	return nil
}

// HeapLocation resolves static fields by name and everything else through
// the alias table.
func (p *Memory) HeapLocation(site Site, _ []Site) (string, bool) {
	if loc, ok := p.heap[site]; ok {
		return loc, true
	}
	if m, ok := p.methods[site.Method]; ok && site.Index >= 0 && site.Index < len(m.Instructions) {
		if ins := m.Instructions[site.Index]; ins.Op == GETSTATIC || ins.Op == PUTSTATIC {
			return ins.Field, true
		}
	}
	return "", false
}

func (p *Memory) oracles() oracleTables {
	sites := make(map[string][]MethodRef, len(p.siteDispatch))
	for site, impls := range p.siteDispatch {
		sites[site.String()] = impls
	}
	heap := make(map[string]string, len(p.heap))
	for site, loc := range p.heap {
		heap[site.String()] = loc
	}
	return oracleTables{p.dispatch, sites, heap}
}

var _ Program = (*Memory)(nil)
