package defs

import (
	"strings"

	"github.com/jopdesign/wcet/program"
	"github.com/jopdesign/wcet/utils"
)

// CallString is a bounded sequence of call sites, oldest first. It is an
// immutable value: every operation returns a new call string.
type CallString struct {
	sites []program.Site
}

// EmptyCallString is the context of analysis roots.
func EmptyCallString() CallString {
	return CallString{}
}

// MakeCallString builds a call string from sites, oldest first.
func MakeCallString(sites ...program.Site) CallString {
	return CallString{append([]program.Site(nil), sites...)}
}

// Push appends a call site and keeps only the most recent bound sites.
func (cs CallString) Push(site program.Site, bound int) CallString {
	if bound <= 0 {
		return CallString{}
	}
	sites := make([]program.Site, 0, len(cs.sites)+1)
	sites = append(sites, cs.sites...)
	sites = append(sites, site)
	if len(sites) > bound {
		sites = sites[len(sites)-bound:]
	}
	return CallString{sites}
}

// Truncate keeps only the most recent bound sites.
func (cs CallString) Truncate(bound int) CallString {
	if bound < 0 || len(cs.sites) <= bound {
		return cs
	}
	return CallString{cs.sites[len(cs.sites)-bound:]}
}

func (cs CallString) Len() int {
	return len(cs.sites)
}

func (cs CallString) IsEmpty() bool {
	return len(cs.sites) == 0
}

// Sites returns a copy of the call sites, oldest first.
func (cs CallString) Sites() []program.Site {
	return append([]program.Site(nil), cs.sites...)
}

// Top returns the most recent call site.
func (cs CallString) Top() (program.Site, bool) {
	if len(cs.sites) == 0 {
		return program.NoSite, false
	}
	return cs.sites[len(cs.sites)-1], true
}

// HasSuffix reports whether other is a suffix of cs.
func (cs CallString) HasSuffix(other CallString) bool {
	if len(other.sites) > len(cs.sites) {
		return false
	}
	off := len(cs.sites) - len(other.sites)
	for i, s := range other.sites {
		if cs.sites[off+i] != s {
			return false
		}
	}
	return true
}

// Matches holds when one of the call strings is a suffix of the other.
// Results stored for cs are then sound for other.
func (cs CallString) Matches(other CallString) bool {
	return cs.HasSuffix(other) || other.HasSuffix(cs)
}

func (cs CallString) Equal(other CallString) bool {
	return len(cs.sites) == len(other.sites) && cs.HasSuffix(other)
}

func (cs CallString) Hash() uint32 {
	return utils.StringHash(cs.Key())
}

// Key is a canonical string usable as a map key.
func (cs CallString) Key() string {
	strs := make([]string, len(cs.sites))
	for i, s := range cs.sites {
		strs[i] = s.String()
	}
	return strings.Join(strs, ";")
}

// ParseCallString inverts Key.
func ParseCallString(key string) (CallString, error) {
	if key == "" {
		return CallString{}, nil
	}
	var sites []program.Site
	for _, s := range strings.Split(key, ";") {
		site, err := program.ParseSite(s)
		if err != nil {
			return CallString{}, err
		}
		sites = append(sites, site)
	}
	return CallString{sites}, nil
}

// Plain renders the call string without colors.
func (cs CallString) Plain() string {
	return "[" + cs.Key() + "]"
}

func (cs CallString) String() string {
	return colorize.Context(cs.Plain())
}
