package refsim

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/texerai/maveric2/pkg/faults"
)

// fakeSpike writes a shell script standing in for the simulator
func fakeSpike(t *testing.T, body string) (string, string) {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("fake simulator is a POSIX shell script")
	}

	dir := t.TempDir()
	script := filepath.Join(dir, "spike")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\n"+body), 0o755))

	elf := filepath.Join(dir, "test.elf")
	require.NoError(t, os.WriteFile(elf, []byte{0x7f, 'E', 'L', 'F'}, 0o644))

	return script, elf
}

func newSim(t *testing.T, script string, timeout time.Duration) *Simulator {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Path = script
	cfg.Args = nil
	cfg.Timeout = timeout
	cfg.PollInterval = 10 * time.Millisecond

	sim, err := Discover(cfg, nil)
	require.NoError(t, err)
	return sim
}

const loopForever = "while true; do sleep 0.05; done\n"

func TestCapture_StopsOnSentinel(t *testing.T) {
	script, elf := fakeSpike(t, `echo "core   0: 0x0000000080000000 (0x00000297) auipc   t0, 0x0" >&2
echo "core   0: 0x0000000080000004 (0x00000073) ecall" >&2
`+loopForever)

	logPath := filepath.Join(t.TempDir(), "trace.log")
	result, err := newSim(t, script, 10*time.Second).Capture(context.Background(), elf, logPath)
	require.NoError(t, err)

	assert.Equal(t, ReasonSentinel, result.Reason)
	assert.Equal(t, "ecall", result.Sentinel)
	assert.Less(t, result.Duration, 10*time.Second)

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "auipc")
}

func TestCapture_Timeout(t *testing.T) {
	script, elf := fakeSpike(t, `echo "core   0: 0x0000000080000000 (0x00000297) auipc   t0, 0x0" >&2
`+loopForever)

	logPath := filepath.Join(t.TempDir(), "trace.log")
	result, err := newSim(t, script, 200*time.Millisecond).Capture(context.Background(), elf, logPath)
	require.Error(t, err)
	assert.True(t, errors.Is(err, faults.ErrIndeterminate))
	require.NotNil(t, result)
	assert.Equal(t, ReasonTimeout, result.Reason)

	// Partial output is kept
	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "auipc")
}

func TestCapture_Canceled(t *testing.T) {
	script, elf := fakeSpike(t, loopForever)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	result, err := newSim(t, script, 0).Capture(ctx, elf, filepath.Join(t.TempDir(), "trace.log"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, faults.ErrIndeterminate))
	assert.Equal(t, ReasonCanceled, result.Reason)
}

func TestCapture_Exited(t *testing.T) {
	script, elf := fakeSpike(t, `echo "core   0: 0x0000000080000000 (0x00000297) auipc   t0, 0x0" >&2
exit 3
`)

	result, err := newSim(t, script, 10*time.Second).Capture(context.Background(), elf, filepath.Join(t.TempDir(), "trace.log"))
	require.NoError(t, err)
	assert.Equal(t, ReasonExited, result.Reason)
	assert.Equal(t, 3, result.ExitCode)
	assert.Empty(t, result.Sentinel)
}

func TestCapture_SentinelBeforeExit(t *testing.T) {
	script, elf := fakeSpike(t, `echo "core   0: 0x0000000080000004 (0x00100073) ebreak" >&2
`)

	result, err := newSim(t, script, 10*time.Second).Capture(context.Background(), elf, filepath.Join(t.TempDir(), "trace.log"))
	require.NoError(t, err)
	assert.Equal(t, ReasonSentinel, result.Reason)
	assert.Equal(t, "ebreak", result.Sentinel)
}

func TestCapture_MissingBinary(t *testing.T) {
	script, _ := fakeSpike(t, "exit 0\n")

	_, err := newSim(t, script, time.Second).Capture(context.Background(), "/nonexistent/test.elf", filepath.Join(t.TempDir(), "trace.log"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, faults.ErrInputDefect))
}

func TestDiscover(t *testing.T) {
	t.Run("explicit path not found", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Path = "/nonexistent/spike"
		_, err := Discover(cfg, nil)
		assert.Error(t, err)
	})

	t.Run("RISCV root", func(t *testing.T) {
		if runtime.GOOS == "windows" {
			t.Skip("executable name differs on windows")
		}

		root := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(root, "bin"), 0o755))
		spike := filepath.Join(root, "bin", "spike")
		require.NoError(t, os.WriteFile(spike, []byte("#!/bin/sh\n"), 0o755))
		t.Setenv("RISCV", root)

		sim, err := Discover(DefaultConfig(), nil)
		require.NoError(t, err)
		assert.Equal(t, spike, sim.Path())
	})
}

func TestLogTail_SplitSentinel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.log")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	tail, err := newLogTail(path, []string{"ecall", "ebreak"})
	require.NoError(t, err)
	defer tail.Close()

	_, found, err := tail.Scan()
	require.NoError(t, err)
	assert.False(t, found)

	_, err = f.WriteString("core   0: 0x0000000080000004 (0x00000073) eca")
	require.NoError(t, err)
	_, found, err = tail.Scan()
	require.NoError(t, err)
	assert.False(t, found)

	_, err = f.WriteString("ll\n")
	require.NoError(t, err)
	sentinel, found, err := tail.Scan()
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "ecall", sentinel)
}

func TestReasonString(t *testing.T) {
	assert.Equal(t, "sentinel", ReasonSentinel.String())
	assert.Equal(t, "exited", ReasonExited.String())
	assert.Equal(t, "timeout", ReasonTimeout.String())
	assert.Equal(t, "canceled", ReasonCanceled.String())
}
