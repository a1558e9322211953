// Package verify decides the verdict of a test from the DUT self-check status
// and the comparison of the DUT and reference canonical traces.
//
// Evaluation is a two step state machine. The self-check is looked at first
// and a failing self-check ends the evaluation right away, without diffing
// the traces. Only then are the traces compared: an empty reference makes the
// comparison not applicable, an empty diff passes and anything else fails
// with the first differing lines as diagnostic.
package verify

// Status is the outcome of a check
type Status int

const (
	StatusPass Status = iota
	StatusFail
	StatusNotApplicable
	StatusIndeterminate
)

// String returns the text used in verdict reports
func (s Status) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusFail:
		return "FAIL"
	case StatusNotApplicable:
		return "Not Applicable"
	case StatusIndeterminate:
		return "INDETERMINATE"
	default:
		return "UNKNOWN"
	}
}

// Terminal returns true if the status must stop a fail-stop batch
func (s Status) Terminal() bool {
	return s == StatusFail || s == StatusIndeterminate
}
