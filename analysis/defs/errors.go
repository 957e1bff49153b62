package defs

import (
	"fmt"
	"strings"

	"github.com/jopdesign/wcet/program"
)

// ErrorKind classifies analysis failures. Kinds are errors themselves, so
// errors.Is(err, MalformedProgram) tests the kind of any wrapped *Error.
type ErrorKind uint8

const (
	// MalformedProgram: unresolved flow targets, irreducible or dead-ended
	// graphs. Fatal for the request.
	MalformedProgram ErrorKind = iota + 1
	// UnsupportedConstruct: unmodeled natives, unpriced instructions, recursion.
	UnsupportedConstruct
	// AnalysisNonconvergence: a loop bound could not be determined. Reported
	// as an unbounded WCET.
	AnalysisNonconvergence
	// SolverFailure: the LP was infeasible, unbounded or inconsistent. Fatal
	// for one (method, context) only.
	SolverFailure
	// CacheConfigurationError: the cache geometry cannot hold some method.
	CacheConfigurationError
	// NoImplementation: a virtual invoke has no receiver.
	NoImplementation
	// Ambiguous: a virtual invoke has several receivers where one was required.
	Ambiguous
)

var kindNames = map[ErrorKind]string{
	MalformedProgram:        "malformed program",
	UnsupportedConstruct:    "unsupported construct",
	AnalysisNonconvergence:  "unbounded",
	SolverFailure:           "solver failure",
	CacheConfigurationError: "cache configuration error",
	NoImplementation:        "no implementation",
	Ambiguous:               "ambiguous dispatch",
}

func (k ErrorKind) Error() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("error kind %d", uint8(k))
}

// Error is a located analysis failure.
type Error struct {
	Kind ErrorKind
	// Site locates the offending instruction. Index -1 designates the whole
	// method.
	Site    program.Site
	Context string
	Err     error
}

// Errorf creates a located error.
func Errorf(kind ErrorKind, site program.Site, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Site: site, Err: fmt.Errorf(format, args...)}
}

// MethodErrorf creates an error located at a whole method.
func MethodErrorf(kind ErrorKind, method program.MethodRef, format string, args ...interface{}) *Error {
	return Errorf(kind, program.Site{Method: method, Index: -1}, format, args...)
}

// In attaches the uncolored description of a call string or context.
func (e *Error) In(ctx interface{ Plain() string }) *Error {
	e.Context = ctx.Plain()
	return e
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.Error())
	if e.Site.Method != "" {
		sb.WriteString(" in " + string(e.Site.Method))
		if e.Site.Index >= 0 {
			fmt.Fprintf(&sb, " at instruction %d", e.Site.Index)
		}
	}
	if e.Context != "" {
		sb.WriteString(" (context " + e.Context + ")")
	}
	if e.Err != nil {
		sb.WriteString(": " + e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
