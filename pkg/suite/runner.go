// Package suite runs batches of tests against the DUT and the reference
// simulator and stops at the first failing test.
package suite

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sourcegraph/conc/stream"
	"github.com/texerai/maveric2/pkg/faults"
	"github.com/texerai/maveric2/pkg/logging"
	"github.com/texerai/maveric2/pkg/utils"
	"github.com/texerai/maveric2/pkg/verify"
)

// TestLogName is the per-test JSON log in a test directory
const TestLogName = "test.log"

// Config holds the suite configuration
type Config struct {
	// Manifest is the "name: path" test list
	Manifest string `mapstructure:"manifest"`

	// ELFDir holds <name>.elf test binaries for tests without an explicit one
	ELFDir string `mapstructure:"elf_dir"`

	// WorkDir is the root of the per-test directories
	WorkDir string `mapstructure:"workdir"`

	// Results is the verdict report file
	Results string `mapstructure:"results"`

	// Parallel is the number of tests run at once
	Parallel int `mapstructure:"parallel"`

	// KeepWorkDir keeps every test directory, not only the failing ones
	KeepWorkDir bool `mapstructure:"keep_workdir"`

	DUT DUTConfig `mapstructure:"dut"`
}

// DefaultConfig returns the layout of the project test tree
func DefaultConfig() Config {
	return Config{
		Manifest: "test/tests/list/list.txt",
		ELFDir:   "test/tests/bin",
		WorkDir:  "build/difftest",
		Results:  "result.txt",
		Parallel: 1,
		DUT: DUTConfig{
			Timeout: 10 * time.Minute,
		},
	}
}

// Report is the outcome of a run
type Report struct {
	// Verdicts holds the verdict of every test run, in submission order
	Verdicts []verify.Verdict

	// Halted is the verdict that stopped the run, nil if every test ran
	Halted *verify.Verdict

	// Skipped lists the tests not run because the run stopped
	Skipped []string
}

// Err maps the halting verdict to its error class
func (r *Report) Err() error {
	if r.Halted == nil {
		return nil
	}

	v := r.Halted
	switch {
	case v.Status == verify.StatusIndeterminate:
		return utils.MakeError(faults.ErrIndeterminate, "%s: %s", v.Test, v.Reason)
	case v.Trace == verify.StatusFail:
		return utils.MakeError(faults.ErrTraceMismatch, "%s", v.Test)
	default:
		return utils.MakeError(faults.ErrSelfCheckFailed, "%s: %s", v.Test, v.Reason)
	}
}

// Sink receives verdicts as soon as they are final
type Sink interface {
	Write(v verify.Verdict) error
}

// Runner runs tests with a fail-stop policy
type Runner struct {
	DUT       DUT
	Reference Reference
	Evaluator *verify.Evaluator
	Workspace *Workspace
	Sink      Sink
	Parallel  int
	Logger    *slog.Logger
}

// Run executes the tests. Verdicts are observed in submission order even
// when tests run in parallel; the first FAIL or INDETERMINATE verdict in
// that order stops the run and cancels the tests still in flight.
func (r *Runner) Run(ctx context.Context, tests []Test) (*Report, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	evaluator := r.Evaluator
	if evaluator == nil {
		evaluator = verify.NewEvaluator(nil, logger)
	}

	parallel := r.Parallel
	if parallel < 1 {
		parallel = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	report := &Report{}
	var sinkErr error
	done := make([]bool, len(tests))

	observe := func(i int, v verify.Verdict) {
		if report.Halted != nil {
			return
		}

		done[i] = true
		report.Verdicts = append(report.Verdicts, v)
		if r.Sink != nil && sinkErr == nil {
			sinkErr = r.Sink.Write(v)
		}

		if v.Failed() {
			halted := v
			report.Halted = &halted
			logger.Info("stopping run at first failure", "test", v.Test, "status", v.Status)
			cancel()
		}
	}

	if parallel == 1 {
		for i, test := range tests {
			if ctx.Err() != nil {
				break
			}
			observe(i, r.runOne(ctx, i, test, evaluator, logger))
		}
	} else {
		s := stream.New().WithMaxGoroutines(parallel)

		for i, test := range tests {
			if ctx.Err() != nil {
				break
			}

			s.Go(func() stream.Callback {
				if ctx.Err() != nil {
					return func() {}
				}

				v := r.runOne(ctx, i, test, evaluator, logger)

				// Callbacks run one at a time in submission order
				return func() { observe(i, v) }
			})
		}

		s.Wait()
	}

	for i, test := range tests {
		if !done[i] {
			report.Skipped = append(report.Skipped, test.Name)
		}
	}

	if sinkErr != nil {
		return report, errors.Wrap(sinkErr, "cannot write verdict report")
	}

	return report, nil
}

func (r *Runner) runOne(ctx context.Context, seq int, test Test, evaluator *verify.Evaluator, logger *slog.Logger) verify.Verdict {
	dir, err := r.Workspace.Allocate(seq, test.Name)
	if err != nil {
		return verify.Indeterminate(test.Name, err)
	}

	logFile, err := r.Workspace.Fs().Create(filepath.Join(dir, TestLogName))
	if err == nil {
		defer logFile.Close()
		logger = logging.WithFile(logger, logFile)
	}
	logger = logger.With("test", test.Name)

	v := r.evaluate(ctx, test, dir, evaluator, logger)
	logger.Info("test finished", "status", v.Status, "trace", v.Trace)

	if err := r.Workspace.Release(dir, v.Failed()); err != nil {
		logger.Warn("cannot remove test directory", "dir", dir, "error", err.Error())
	}

	return v
}

func (r *Runner) evaluate(ctx context.Context, test Test, dir string, evaluator *verify.Evaluator, logger *slog.Logger) verify.Verdict {
	out, err := r.DUT.Run(ctx, test, dir)
	if err != nil {
		logger.Warn("DUT run failed", "error", err.Error())
		return verify.Indeterminate(test.Name, err)
	}

	selfCheck := verify.ParseSelfCheck(out.Status)
	if selfCheck.Status == verify.StatusFail {
		// No reference capture for a test that already failed
		return evaluator.Evaluate(test.Name, selfCheck, out.Trace, nil)
	}

	ref, err := r.Reference.Trace(ctx, test, dir)
	if err != nil {
		logger.Warn("reference trace failed", "error", err.Error())
		return verify.Indeterminate(test.Name, err)
	}

	return evaluator.Evaluate(test.Name, selfCheck, out.Trace, ref)
}
