// Package faults defines the error classes shared by the verification
// pipeline. Every package wraps one of these sentinels so the CLI can map an
// error to an exit code and a test verdict with errors.Is.
package faults

import (
	"github.com/pkg/errors"
)

var (
	// ErrInputDefect means a listing, log or manifest is missing or unusable.
	// Only the affected artifact is skipped.
	ErrInputDefect = errors.New("input defect")

	// ErrIndeterminate means no verdict could be reached: the reference
	// simulator hung, crashed or produced no usable records.
	ErrIndeterminate = errors.New("indeterminate")

	// ErrSelfCheckFailed means the DUT reported a failing self-check.
	ErrSelfCheckFailed = errors.New("self-check failed")

	// ErrTraceMismatch means the DUT and reference traces differ.
	ErrTraceMismatch = errors.New("trace mismatch")
)

// Process exit codes
const (
	ExitOK            = 0
	ExitUsage         = 1
	ExitInputDefect   = 2
	ExitIndeterminate = 3
	ExitFailed        = 4
)

// ExitCode maps an error to the process exit code of its class
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrInputDefect):
		return ExitInputDefect
	case errors.Is(err, ErrIndeterminate):
		return ExitIndeterminate
	case errors.Is(err, ErrSelfCheckFailed), errors.Is(err, ErrTraceMismatch):
		return ExitFailed
	default:
		return ExitUsage
	}
}
