package suite

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/texerai/maveric2/pkg/commitlog"
	"github.com/texerai/maveric2/pkg/faults"
	"github.com/texerai/maveric2/pkg/logging"
	"github.com/texerai/maveric2/pkg/refsim"
	"github.com/texerai/maveric2/pkg/trace"
	"github.com/texerai/maveric2/pkg/verify"
)

const (
	lineA = "PC: 0x0000000080000000, INSTR: 0x00000013"
	lineB = "PC: 0x0000000080000004, INSTR: 0x00a00093, REG x1: 0x000000000000000a"
)

type fakeRun struct {
	out   verify.DUTOutput
	err   error
	delay time.Duration
}

type fakeDUT struct {
	runs map[string]fakeRun
}

func (d *fakeDUT) Run(ctx context.Context, test Test, dir string) (verify.DUTOutput, error) {
	run := d.runs[test.Name]
	if run.delay > 0 {
		select {
		case <-time.After(run.delay):
		case <-ctx.Done():
			return verify.DUTOutput{}, errors.Wrap(faults.ErrIndeterminate, "canceled")
		}
	}
	return run.out, run.err
}

type fakeReference struct {
	mu     sync.Mutex
	traces map[string][]string
	errs   map[string]error
	calls  []string
}

func (r *fakeReference) Trace(ctx context.Context, test Test, dir string) ([]string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, test.Name)
	r.mu.Unlock()
	return r.traces[test.Name], r.errs[test.Name]
}

type recordingSink struct {
	verdicts []verify.Verdict
}

func (s *recordingSink) Write(v verify.Verdict) error {
	s.verdicts = append(s.verdicts, v)
	return nil
}

func pass(trace ...string) fakeRun {
	return fakeRun{out: verify.DUTOutput{Status: "PASS | TOTAL CYCLES: 10", Trace: trace}}
}

func tests(names ...string) []Test {
	out := make([]Test, len(names))
	for i, n := range names {
		out[i] = Test{Name: n, Mem: n + ".txt"}
	}
	return out
}

func newRunner(dut DUT, ref Reference, parallel int) (*Runner, *recordingSink, afero.Fs) {
	fs := afero.NewMemMapFs()
	sink := &recordingSink{}
	return &Runner{
		DUT:       dut,
		Reference: ref,
		Workspace: NewWorkspace(fs, "/work", false),
		Sink:      sink,
		Parallel:  parallel,
		Logger:    logging.Discard(),
	}, sink, fs
}

func names(verdicts []verify.Verdict) []string {
	out := make([]string, len(verdicts))
	for i, v := range verdicts {
		out[i] = v.Test
	}
	return out
}

func TestParseManifest(t *testing.T) {
	doc := `am-add: ./test/tests/instr/am-add.txt
am-sub: ./test/tests/instr/am-sub.txt
stress:
  mem: ./test/tests/instr/stress.txt
  elf: ./bin/stress
`
	m, err := ParseManifest(strings.NewReader(doc), "elf")
	require.NoError(t, err)

	assert.Equal(t, []string{"am-add", "am-sub", "stress"}, m.Names())
	assert.Equal(t, Test{Name: "am-add", Mem: "./test/tests/instr/am-add.txt", ELF: filepath.Join("elf", "am-add.elf")}, m.Tests[0])
	assert.Equal(t, Test{Name: "stress", Mem: "./test/tests/instr/stress.txt", ELF: "./bin/stress"}, m.Tests[2])
}

func TestParseManifest_Errors(t *testing.T) {
	tests := map[string]string{
		"duplicate":   "a: x\na: y\n",
		"not mapping": "- a\n- b\n",
		"malformed":   "a: [x\n",
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseManifest(strings.NewReader(doc), "")
			require.Error(t, err)
			assert.True(t, errors.Is(err, faults.ErrInputDefect))
		})
	}

	t.Run("empty", func(t *testing.T) {
		m, err := ParseManifest(strings.NewReader(""), "")
		require.NoError(t, err)
		assert.Empty(t, m.Tests)
	})
}

func TestManifestSelect(t *testing.T) {
	m := &Manifest{Tests: tests("a", "b", "c")}

	all, err := m.Select()
	require.NoError(t, err)
	assert.Len(t, all, 3)

	sel, err := m.Select("c", "a", "c")
	require.NoError(t, err)
	assert.Equal(t, []Test{m.Tests[2], m.Tests[0]}, sel)

	_, err = m.Select("a", "zz")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zz")
}

func TestLoadGroup(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := GroupPath("test/tests/list/list.txt", "am")
	assert.Equal(t, filepath.Join("test", "tests", "list", "list-am.txt"), path)

	require.NoError(t, afero.WriteFile(fs, path, []byte("am-add\n\n  am-sub  \n"), 0o644))

	group, err := LoadGroup(fs, path)
	require.NoError(t, err)
	assert.Equal(t, []string{"am-add", "am-sub"}, group)

	_, err = LoadGroup(fs, "missing.txt")
	assert.True(t, errors.Is(err, faults.ErrInputDefect))
}

func TestRunner_AllPass(t *testing.T) {
	dut := &fakeDUT{runs: map[string]fakeRun{
		"a": pass(lineA),
		"b": pass(lineA, lineB),
	}}
	ref := &fakeReference{traces: map[string][]string{"a": {lineA}}}

	runner, sink, fs := newRunner(dut, ref, 1)
	report, err := runner.Run(context.Background(), tests("a", "b"))
	require.NoError(t, err)

	assert.Nil(t, report.Halted)
	assert.Empty(t, report.Skipped)
	require.Len(t, report.Verdicts, 2)
	assert.Equal(t, verify.StatusPass, report.Verdicts[0].Trace)
	assert.Equal(t, verify.StatusNotApplicable, report.Verdicts[1].Trace)
	assert.Equal(t, report.Verdicts, sink.verdicts)
	assert.NoError(t, report.Err())

	// Passing test directories are removed
	entries, err := afero.ReadDir(fs, "/work")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunner_FailStop(t *testing.T) {
	dut := &fakeDUT{runs: map[string]fakeRun{
		"a": pass(lineA),
		"b": {out: verify.DUTOutput{Status: "ILLEGAL INSTRUCTION | PC: 0x80000010"}},
		"c": pass(lineA),
	}}
	ref := &fakeReference{traces: map[string][]string{"a": {lineA}, "c": {lineA}}}

	runner, _, fs := newRunner(dut, ref, 1)
	report, err := runner.Run(context.Background(), tests("a", "b", "c"))
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, names(report.Verdicts))
	require.NotNil(t, report.Halted)
	assert.Equal(t, "b", report.Halted.Test)
	assert.Equal(t, []string{"c"}, report.Skipped)

	// The failing test never reached the reference simulator
	assert.Equal(t, []string{"a"}, ref.calls)

	err = report.Err()
	assert.True(t, errors.Is(err, faults.ErrSelfCheckFailed))

	// Failing test directories are kept
	exists, err := afero.DirExists(fs, "/work/001-b")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRunner_TraceMismatch(t *testing.T) {
	dut := &fakeDUT{runs: map[string]fakeRun{"a": pass(lineA)}}
	ref := &fakeReference{traces: map[string][]string{"a": {lineB}}}

	runner, _, _ := newRunner(dut, ref, 1)
	report, err := runner.Run(context.Background(), tests("a"))
	require.NoError(t, err)

	require.NotNil(t, report.Halted)
	assert.Equal(t, verify.StatusFail, report.Halted.Trace)
	assert.NotEmpty(t, report.Halted.Diff)
	assert.True(t, errors.Is(report.Err(), faults.ErrTraceMismatch))
}

func TestRunner_ReferenceErrorIsIndeterminate(t *testing.T) {
	dut := &fakeDUT{runs: map[string]fakeRun{"a": pass(lineA), "b": pass(lineA)}}
	ref := &fakeReference{errs: map[string]error{"a": errors.Wrap(faults.ErrIndeterminate, "timed out")}}

	runner, _, _ := newRunner(dut, ref, 1)
	report, err := runner.Run(context.Background(), tests("a", "b"))
	require.NoError(t, err)

	require.NotNil(t, report.Halted)
	assert.Equal(t, verify.StatusIndeterminate, report.Halted.Status)
	assert.Equal(t, []string{"b"}, report.Skipped)
	assert.True(t, errors.Is(report.Err(), faults.ErrIndeterminate))
}

func TestRunner_ParallelKeepsSubmissionOrder(t *testing.T) {
	dut := &fakeDUT{runs: map[string]fakeRun{
		"a": {out: pass(lineA).out, delay: 50 * time.Millisecond},
		"b": {out: verify.DUTOutput{Status: "FAIL | x3"}, delay: 100 * time.Millisecond},
		"c": pass(lineA),
		"d": pass(lineA),
	}}
	ref := &fakeReference{traces: map[string][]string{}}

	runner, sink, _ := newRunner(dut, ref, 4)
	report, err := runner.Run(context.Background(), tests("a", "b", "c", "d"))
	require.NoError(t, err)

	// c and d finish first but are observed after the failure of b
	assert.Equal(t, []string{"a", "b"}, names(report.Verdicts))
	assert.Equal(t, []string{"a", "b"}, names(sink.verdicts))
	require.NotNil(t, report.Halted)
	assert.Equal(t, "b", report.Halted.Test)
	assert.ElementsMatch(t, []string{"c", "d"}, report.Skipped)
}

func TestRunner_Canceled(t *testing.T) {
	dut := &fakeDUT{runs: map[string]fakeRun{"a": {out: pass(lineA).out, delay: time.Minute}}}

	runner, _, _ := newRunner(dut, &fakeReference{}, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	report, err := runner.Run(ctx, tests("a", "b"))
	require.NoError(t, err)
	require.NotNil(t, report.Halted)
	assert.Equal(t, verify.StatusIndeterminate, report.Halted.Status)
}

func TestReportWriter(t *testing.T) {
	fs := afero.NewMemMapFs()
	var console bytes.Buffer

	w, err := NewReportWriter(fs, "result.txt", true, &console, false)
	require.NoError(t, err)

	evaluator := verify.NewEvaluator(nil, logging.Discard())
	require.NoError(t, w.Write(evaluator.Evaluate("am-add", verify.ParseSelfCheck("PASS"), []string{lineA}, []string{lineA})))
	require.NoError(t, w.Write(evaluator.Evaluate("am-sub", verify.ParseSelfCheck("PASS"), []string{lineA}, []string{lineB})))
	require.NoError(t, w.Close())

	content, err := afero.ReadFile(fs, "result.txt")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(string(content), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "am-add:                      PASS Tracecomp: PASS", lines[2])
	assert.Equal(t, "am-sub:                      PASS Tracecomp: FAIL", lines[3])

	assert.Contains(t, console.String(), "am-sub:                      PASS Tracecomp: FAIL\n  -1: "+lineA)

	// Appending keeps previous lines
	w, err = NewReportWriter(fs, "result.txt", false, nil, false)
	require.NoError(t, err)
	require.NoError(t, w.Write(verify.Indeterminate("am-and", errors.New("boom"))))
	require.NoError(t, w.Close())

	content, err = afero.ReadFile(fs, "result.txt")
	require.NoError(t, err)
	assert.Equal(t, 5, strings.Count(string(content), "\n"))
}

func TestCommandDUT(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("DUT stand-in is a POSIX shell script")
	}

	dir := t.TempDir()
	script := filepath.Join(dir, "vtop")
	require.NoError(t, os.WriteFile(script, []byte(`#!/bin/sh
echo "loading $1"
echo "PC: 0x0000000080000000, INSTR: 0x00000013"
echo "PASS | TOTAL CYCLES: 3"
echo "- top.sv:10: Verilog \$finish"
exit 1
`), 0o755))

	fs := afero.NewOsFs()
	dut, err := NewCommandDUT(DUTConfig{Command: []string{script, "{mem}"}, Timeout: 10 * time.Second}, fs, logging.Discard())
	require.NoError(t, err)

	test := Test{Name: "am-add", Mem: "am-add.txt"}
	assert.Equal(t, []string{script, "am-add.txt"}, dut.Expand(test, dir))

	out, err := dut.Run(context.Background(), test, dir)
	require.NoError(t, err)

	// The first non-trace line is the status line
	assert.Equal(t, "loading am-add.txt", out.Status)
	assert.Equal(t, []string{lineA}, out.Trace)

	saved, err := os.ReadFile(filepath.Join(dir, DUTLogName))
	require.NoError(t, err)
	assert.Contains(t, string(saved), "PASS | TOTAL CYCLES: 3")
}

func TestCommandDUT_Timeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("DUT stand-in is a POSIX shell script")
	}

	dir := t.TempDir()
	dut, err := NewCommandDUT(DUTConfig{Command: []string{"sleep", "10"}, Timeout: 100 * time.Millisecond}, afero.NewOsFs(), logging.Discard())
	require.NoError(t, err)

	_, err = dut.Run(context.Background(), Test{Name: "hang"}, dir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, faults.ErrIndeterminate))
}

func TestNewCommandDUT_NoCommand(t *testing.T) {
	_, err := NewCommandDUT(DUTConfig{}, afero.NewMemMapFs(), nil)
	assert.Error(t, err)
}

type fakeCapturer struct {
	fs  afero.Fs
	log string
}

func (c *fakeCapturer) Capture(ctx context.Context, elf string, logPath string) (*refsim.CaptureResult, error) {
	if err := afero.WriteFile(c.fs, logPath, []byte(c.log), 0o644); err != nil {
		return nil, err
	}
	return &refsim.CaptureResult{LogPath: logPath, Reason: refsim.ReasonSentinel, Sentinel: "ecall"}, nil
}

func TestSpikeReference(t *testing.T) {
	dir := t.TempDir()
	elf := filepath.Join(dir, "am-add.elf")
	require.NoError(t, os.WriteFile(elf, []byte{0x7f, 'E', 'L', 'F'}, 0o644))

	log := strings.Join([]string{
		"core   0: 0x0000000000001000 (0x00000297) auipc   t0, 0x0",
		"xrv64i2p1_m2p0_a2p1_f2p2_d2p2_zicsr2p0_zifencei2p0_zmmul1p0",
		"core   0: 3 0x0000000080000000 (0x00a00093) x1  0x000000000000000a",
		"core   0: 3 0x0000000080000004 (0xf1402573) x10 0x0000000000000000",
		"core   0: 3 0x0000000080000008 (0x00108093) x1  0x000000000000000b",
		"core   0: 3 0x000000008000000c (0x00200193) x3  0x0000000000000002",
		"core   0: 0x0000000080000010 (0x00000073) ecall",
	}, "\n")

	ref := NewSpikeReference(&fakeCapturer{fs: afero.NewOsFs(), log: log}, commitlog.NewParser(commitlog.DefaultConfig(), logging.Discard()),
		trace.DefaultWindowConfig(), afero.NewOsFs(), logging.Discard())

	lines, err := ref.Trace(context.Background(), Test{Name: "am-add", ELF: elf}, dir)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"PC: 0x0000000080000000, INSTR: 0x00a00093, REG x1: 0x000000000000000a",
		"PC: 0x0000000080000004, INSTR: 0x00000013",
		"PC: 0x0000000080000008, INSTR: 0x00000013",
		"PC: 0x000000008000000c, INSTR: 0x00200193, REG x3: 0x0000000000000002",
	}, lines)

	written, err := os.ReadFile(filepath.Join(dir, "am-add"+TraceLogSuffix))
	require.NoError(t, err)
	assert.Equal(t, strings.Join(lines, "\n")+"\n", string(written))

	t.Run("missing binary is not applicable", func(t *testing.T) {
		lines, err := ref.Trace(context.Background(), Test{Name: "stress", ELF: filepath.Join(dir, "none.elf")}, dir)
		require.NoError(t, err)
		assert.Empty(t, lines)
	})
}

func TestSpikeReference_InjectedFs(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/work/001-am-add", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/bin/am-add.elf", []byte{0x7f, 'E', 'L', 'F'}, 0o644))

	log := strings.Join([]string{
		"xrv64i2p1_m2p0_a2p1_f2p2_d2p2_zicsr2p0_zifencei2p0_zmmul1p0",
		"core   0: 3 0x0000000080000000 (0x00a00093) x1  0x000000000000000a",
		"core   0: 0x0000000080000004 (0x00000073) ecall",
	}, "\n")

	ref := NewSpikeReference(&fakeCapturer{fs: fs, log: log}, commitlog.NewParser(commitlog.DefaultConfig(), logging.Discard()),
		trace.DefaultWindowConfig(), fs, logging.Discard())

	lines, err := ref.Trace(context.Background(), Test{Name: "am-add", ELF: "/bin/am-add.elf"}, "/work/001-am-add")
	require.NoError(t, err)
	assert.Equal(t, []string{"PC: 0x0000000080000000, INSTR: 0x00a00093, REG x1: 0x000000000000000a"}, lines)

	written, err := afero.ReadFile(fs, "/work/001-am-add/am-add"+TraceLogSuffix)
	require.NoError(t, err)
	assert.Equal(t, lines[0]+"\n", string(written))

	lines, err = ref.Trace(context.Background(), Test{Name: "am-sub", ELF: "/bin/am-sub.elf"}, "/work/001-am-add")
	require.NoError(t, err)
	assert.Empty(t, lines)
}
