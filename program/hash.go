package program

import (
	"fmt"

	"github.com/mitchellh/hashstructure/v2"
)

// hashedMethod is the part of a method that influences analysis results.
type hashedMethod struct {
	Ref          MethodRef
	Args         int
	Returns      bool
	Native       bool
	Abstract     bool
	Instructions []Instruction
	Handlers     []Handler
	LoopBounds   map[int]int
}

// oracleTables are the resolution tables of a program that decide receivers
// and heap aliases.
type oracleTables struct {
	Dispatch map[MethodRef][]MethodRef
	Sites    map[string][]MethodRef
	Heap     map[string]string
}

// Hash computes a content hash over every method of the program: the
// identifiers, the instruction streams with their constants, and annotations.
// Programs exposing their resolution tables have them hashed as well.
func Hash(p Program) (string, error) {
	var snapshot struct {
		Methods []hashedMethod
		Oracles oracleTables
	}
	for _, m := range p.Methods() {
		snapshot.Methods = append(snapshot.Methods, hashedMethod{
			m.Ref, m.Args, m.Returns, m.Native, m.Abstract,
			m.Instructions, m.Handlers, m.LoopBounds,
		})
	}
	if o, ok := p.(interface{ oracles() oracleTables }); ok {
		snapshot.Oracles = o.oracles()
	}

	h, err := hashstructure.Hash(snapshot, hashstructure.FormatV2, nil)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", h), nil
}
