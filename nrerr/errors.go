// Package nrerr defines the failure taxonomy for nanraster.
//
// Every error returned by the codec, the kernel, the fixture loaders, the
// generator or the CLI maps to exactly one FailureClass. The class decides the
// process exit code and whether the failure aborts a run (fatal) or is only
// recorded as a verification finding (soft).
package nrerr

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// FailureClass is a stable failure category.
type FailureClass string

const (
	IOError                FailureClass = "IO_ERROR"
	InvalidLength          FailureClass = "INVALID_LENGTH"
	UnknownReason          FailureClass = "UNKNOWN_REASON"
	OutOfBounds            FailureClass = "OUT_OF_BOUNDS"
	ClassificationMismatch FailureClass = "CLASSIFICATION_MISMATCH"
	StatisticalDivergence  FailureClass = "STATISTICAL_DIVERGENCE"
	InvalidConfig          FailureClass = "INVALID_CONFIG"
	CLIUsage               FailureClass = "CLI_USAGE"
	InternalError          FailureClass = "INTERNAL_ERROR"
)

// ExitCode returns the process exit code for this failure class.
func (fc FailureClass) ExitCode() int {
	switch fc {
	case ClassificationMismatch, StatisticalDivergence:
		return 1
	case UnknownReason, InvalidConfig, CLIUsage:
		return 2
	default:
		return 10
	}
}

// Soft reports whether failures of this class are accumulated in statistics
// instead of aborting the run.
func (fc FailureClass) Soft() bool {
	return fc == ClassificationMismatch || fc == StatisticalDivergence
}

// Error is the structured error type for all nanraster failures.
type Error struct {
	Class FailureClass
	// Index is the element or point index the failure refers to, or -1.
	Index   int
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var s string
	if e.Index >= 0 {
		s = fmt.Sprintf("nrerr: %s at index %d: %s", e.Class, e.Index, e.Message)
	} else {
		s = fmt.Sprintf("nrerr: %s: %s", e.Class, e.Message)
	}
	if e.Cause != nil {
		s += ": " + e.Cause.Error()
	}
	return s
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given class and message.
func New(class FailureClass, index int, message string) *Error {
	return &Error{Class: class, Index: index, Message: message}
}

// Newf is New with a format string.
func Newf(class FailureClass, index int, format string, args ...any) *Error {
	return &Error{Class: class, Index: index, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(class FailureClass, index int, message string, cause error) *Error {
	return &Error{Class: class, Index: index, Message: message, Cause: cause}
}

// ClassOf returns the class of the first *Error in err's chain, or
// InternalError when the chain carries no classification.
func ClassOf(err error) FailureClass {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return InternalError
}
