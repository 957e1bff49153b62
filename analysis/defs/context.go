package defs

import (
	"fmt"

	"github.com/jopdesign/wcet/utils"
)

// CacheApprox is the method cache approximation a method is analyzed under.
type CacheApprox uint8

const (
	// AlwaysMiss assumes every invoke and return misses.
	AlwaysMiss CacheApprox = iota
	// AlwaysHit assumes every invoke and return hits.
	AlwaysHit
	// AllFit holds when every method reachable from the analyzed one fits in
	// the cache at once, so each of them misses at most once per execution.
	AllFit
)

func (a CacheApprox) String() string {
	switch a {
	case AlwaysMiss:
		return "always-miss"
	case AlwaysHit:
		return "always-hit"
	case AllFit:
		return "all-fit"
	}
	return fmt.Sprintf("approx(%d)", uint8(a))
}

// Context is the execution context of a method: its call string and the
// cache approximation.
type Context struct {
	CallString CallString
	Cache      CacheApprox
}

// MakeContext builds a context.
func MakeContext(cs CallString, approx CacheApprox) Context {
	return Context{cs, approx}
}

// Key is a canonical string usable as a map key.
func (c Context) Key() string {
	return c.CallString.Key() + "|" + c.Cache.String()
}

func (c Context) Hash() uint32 {
	return utils.HashCombine(c.CallString.Hash(), uint32(c.Cache))
}

func (c Context) Equal(other Context) bool {
	return c.Cache == other.Cache && c.CallString.Equal(other.CallString)
}

// Plain renders the context without colors.
func (c Context) Plain() string {
	return c.CallString.Plain() + "/" + c.Cache.String()
}

func (c Context) String() string {
	return c.CallString.String() + "/" + c.Cache.String()
}
