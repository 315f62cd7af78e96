// Package errs defines the error-kind taxonomy shared by every BioSeqZip
// package, following the error-wrapping conventions the teacher codebase
// uses throughout (fmt.Errorf("%v, while ...", err, ...)).
package errs

import "fmt"

// Kind classifies a BioSeqZip error so that callers at the pipeline entry
// point can decide how to report it, without every layer needing to know
// about exit codes.
type Kind int

const (
	// ConfigInvalid marks contradictory layout options, unknown output
	// formats, or unparseable RAM strings.
	ConfigInvalid Kind = iota
	// PathMissing marks an input path that does not exist, or that is not
	// of the kind required (file vs directory).
	PathMissing
	// IoFailure marks an underlying read or write that failed mid-stream.
	IoFailure
	// FormatError marks a malformed record in a sequence or details file.
	FormatError
	// CounterOverflow marks an occurrence counter that would exceed its
	// representable range.
	CounterOverflow
	// InvariantViolated marks an internal invariant violation (e.g.
	// len(quality) != len(sequence) at merge time). It always indicates a
	// bug in this codebase, not bad input.
	InvariantViolated
)

func (k Kind) String() string {
	switch k {
	case ConfigInvalid:
		return "ConfigInvalid"
	case PathMissing:
		return "PathMissing"
	case IoFailure:
		return "IoFailure"
	case FormatError:
		return "FormatError"
	case CounterOverflow:
		return "CounterOverflow"
	case InvariantViolated:
		return "InvariantViolated"
	default:
		return "Unknown"
	}
}

// Error is the error type returned from every BioSeqZip package boundary.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %v: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an *Error with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error around an existing error, following the teacher's
// "%v, while <doing X>" message convention.
func Wrap(kind Kind, err error, while string) *Error {
	return &Error{Kind: kind, Message: while, Err: err}
}
