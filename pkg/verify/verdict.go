package verify

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/texerai/maveric2/pkg/utils"
)

// ReportNameWidth is the column width of the "<name>: " prefix of a report line
const ReportNameWidth = 29

// Verdict is the outcome of evaluating one test
type Verdict struct {
	Test      string
	SelfCheck SelfCheck
	// Trace is the trace comparison outcome. It is not applicable when the
	// comparison did not run.
	Trace  Status
	Status Status
	Reason string
	Diff   []string
}

// Failed returns true if the verdict must stop a fail-stop batch
func (v Verdict) Failed() bool {
	return v.Status.Terminal()
}

// ReportLine renders the verdict as a single result line:
//
//	<name>: <status line> Tracecomp: PASS|FAIL|Not Applicable
func (v Verdict) ReportLine() string {
	status := v.SelfCheck.Line
	if v.Status == StatusIndeterminate {
		status = StatusIndeterminate.String()
		if v.Reason != "" {
			status += " (" + v.Reason + ")"
		}
	} else if status == "" {
		status = StatusFail.String() + " (" + noStatusReason + ")"
	}

	trace := v.Trace
	if trace == StatusIndeterminate {
		trace = StatusNotApplicable
	}

	return fmt.Sprintf("%s%s Tracecomp: %s", utils.PadRight(v.Test+": ", ReportNameWidth, ' '), status, trace)
}

// String returns the report line followed by the diagnostic diff, if any
func (v Verdict) String() string {
	if len(v.Diff) == 0 {
		return v.ReportLine()
	}
	return v.ReportLine() + "\n  " + strings.Join(v.Diff, "\n  ")
}

// Indeterminate builds the verdict of a test whose evidence could not be collected
func Indeterminate(test string, err error) Verdict {
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	return Verdict{
		Test:   test,
		Trace:  StatusNotApplicable,
		Status: StatusIndeterminate,
		Reason: reason,
	}
}

// Evaluator combines the self-check and the trace comparison into a verdict
type Evaluator struct {
	differ Differ
	logger *slog.Logger
}

// NewEvaluator returns an evaluator. A nil differ means a default LineDiffer
func NewEvaluator(differ Differ, logger *slog.Logger) *Evaluator {
	if differ == nil {
		differ = NewLineDiffer()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{differ: differ, logger: logger}
}

// Evaluate decides the verdict of a test. A failing self-check returns
// immediately without comparing the traces. An empty reference trace makes
// the comparison not applicable, which never fails the test by itself.
func (e *Evaluator) Evaluate(test string, selfCheck SelfCheck, dut, ref []string) Verdict {
	v := Verdict{
		Test:      test,
		SelfCheck: selfCheck,
		Trace:     StatusNotApplicable,
	}

	if selfCheck.Status == StatusFail {
		v.Status = StatusFail
		v.Reason = selfCheck.Reason()
		e.logger.Debug("self-check failed, trace comparison skipped", "test", test, "reason", v.Reason)
		return v
	}

	switch {
	case len(ref) == 0:
		v.Trace = StatusNotApplicable
	default:
		v.Diff = e.differ.Diff(dut, ref)
		if len(v.Diff) == 0 {
			v.Trace = StatusPass
		} else {
			v.Trace = StatusFail
			v.Reason = "trace mismatch"
		}
	}

	switch {
	case v.Trace == StatusFail:
		v.Status = StatusFail
	case selfCheck.Status == StatusPass || v.Trace == StatusPass:
		v.Status = StatusPass
	default:
		v.Status = StatusNotApplicable
	}

	e.logger.Debug("test evaluated", "test", test, "status", v.Status, "trace", v.Trace, "diff_lines", len(v.Diff))
	return v
}

// EvaluateOutput evaluates a test from its raw DUT output and the reference trace
func (e *Evaluator) EvaluateOutput(test string, out DUTOutput, ref []string) Verdict {
	return e.Evaluate(test, ParseSelfCheck(out.Status), out.Trace, ref)
}
