package verify

import (
	"fmt"
	"slices"

	"github.com/pmezard/go-difflib/difflib"
)

// DefaultMaxDiffLines is the number of differing lines kept for diagnostics
const DefaultMaxDiffLines = 5

// Differ compares two canonical traces and returns the differing lines
type Differ interface {
	Diff(dut, ref []string) []string
}

// LineDiffer is a line by line differ that keeps the first MaxLines
// differences. DUT only lines are prefixed with "-", reference only lines
// with "+", both followed by the 1-based line number in their own log.
type LineDiffer struct {
	MaxLines int
}

// NewLineDiffer returns a differ keeping DefaultMaxDiffLines lines
func NewLineDiffer() *LineDiffer {
	return &LineDiffer{MaxLines: DefaultMaxDiffLines}
}

// Diff implements Differ
func (d *LineDiffer) Diff(dut, ref []string) []string {
	if slices.Equal(dut, ref) {
		return nil
	}

	limit := d.MaxLines
	if limit <= 0 {
		limit = DefaultMaxDiffLines
	}

	// Traces repeat the same lines a lot (window no-ops, loops), which the
	// popularity heuristic would treat as junk
	matcher := difflib.NewMatcherWithJunk(dut, ref, false, nil)

	var out []string
	for _, op := range matcher.GetOpCodes() {
		if op.Tag == 'e' {
			continue
		}

		if op.Tag == 'r' || op.Tag == 'd' {
			for i := op.I1; i < op.I2; i++ {
				out = append(out, fmt.Sprintf("-%d: %s", i+1, dut[i]))
				if len(out) == limit {
					return out
				}
			}
		}

		if op.Tag == 'r' || op.Tag == 'i' {
			for j := op.J1; j < op.J2; j++ {
				out = append(out, fmt.Sprintf("+%d: %s", j+1, ref[j]))
				if len(out) == limit {
					return out
				}
			}
		}
	}

	return out
}
