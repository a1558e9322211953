package suite

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/texerai/maveric2/pkg/commitlog"
	"github.com/texerai/maveric2/pkg/refsim"
	"github.com/texerai/maveric2/pkg/trace"
)

const (
	// CommitLogName is the raw simulator log in a test directory
	CommitLogName = "trace.log"

	// TraceLogSuffix is appended to the test name to name its canonical reference trace
	TraceLogSuffix = "-log-trace.log"
)

// Reference produces the canonical reference trace of a test. An empty
// trace means the test has no comparable reference.
type Reference interface {
	Trace(ctx context.Context, test Test, dir string) ([]string, error)
}

// Capturer captures a raw commit log, implemented by *refsim.Simulator
type Capturer interface {
	Capture(ctx context.Context, elf string, logPath string) (*refsim.CaptureResult, error)
}

// SpikeReference captures the commit log with the reference simulator,
// parses it, normalizes the measurement window and formats it
type SpikeReference struct {
	capturer Capturer
	parser   *commitlog.Parser
	window   trace.WindowConfig
	fs       afero.Fs
	logger   *slog.Logger
}

// NewSpikeReference creates the reference pipeline. Binaries, raw logs and
// canonical traces are accessed on fs. A simulator process writes its log
// through the OS, so a real capturer needs afero.NewOsFs.
func NewSpikeReference(capturer Capturer, parser *commitlog.Parser, window trace.WindowConfig, fs afero.Fs, logger *slog.Logger) *SpikeReference {
	if logger == nil {
		logger = slog.Default()
	}
	return &SpikeReference{
		capturer: capturer,
		parser:   parser,
		window:   window,
		fs:       fs,
		logger:   logger,
	}
}

// Trace implements Reference. A test without binary has no reference and
// yields an empty trace.
func (r *SpikeReference) Trace(ctx context.Context, test Test, dir string) ([]string, error) {
	if test.ELF == "" {
		r.logger.Info("no reference binary, trace comparison not applicable", "test", test.Name)
		return nil, nil
	}
	if _, err := r.fs.Stat(test.ELF); err != nil {
		r.logger.Info("reference binary not found, trace comparison not applicable", "test", test.Name, "elf", test.ELF)
		return nil, nil
	}

	return r.Capture(ctx, test.ELF, filepath.Join(dir, CommitLogName), filepath.Join(dir, test.Name+TraceLogSuffix))
}

// Capture runs the whole pipeline on a binary. The raw log is kept at
// logPath and the canonical trace is written to outPath.
func (r *SpikeReference) Capture(ctx context.Context, elf, logPath, outPath string) ([]string, error) {
	result, err := r.capturer.Capture(ctx, elf, logPath)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("reference log captured", "elf", elf, "reason", result.Reason, "duration", result.Duration)

	f, err := r.fs.Open(logPath)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open commit log %s", logPath)
	}
	defer f.Close()

	parsed, err := r.parser.Parse(f)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", logPath)
	}
	if len(parsed.Skipped) > 0 {
		r.logger.Warn("malformed commit log lines skipped", "log", logPath, "count", len(parsed.Skipped))
	}

	records, window, ok := trace.Extract(parsed.Records, r.window)
	if ok {
		r.logger.Debug("measurement window normalized", "start", window.Start, "end", window.End, "nops", window.Len())
	} else {
		r.logger.Debug("no measurement window in reference trace", "elf", elf)
	}

	lines := trace.FormatRecords(records)

	out, err := r.fs.Create(outPath)
	if err != nil {
		return nil, errors.Wrapf(err, "error writing to file %s", outPath)
	}
	if err := trace.WriteLines(out, lines); err != nil {
		out.Close()
		return nil, errors.Wrapf(err, "error writing to file %s", outPath)
	}
	if err := out.Close(); err != nil {
		return nil, errors.Wrapf(err, "error writing to file %s", outPath)
	}

	return lines, nil
}
