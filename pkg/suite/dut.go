package suite

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/texerai/maveric2/pkg/faults"
	"github.com/texerai/maveric2/pkg/utils"
	"github.com/texerai/maveric2/pkg/verify"
)

// DUTLogName is the file holding the DUT console output in a test directory
const DUTLogName = "dut.log"

// DUT runs a test on the device under test
type DUT interface {
	Run(ctx context.Context, test Test, dir string) (verify.DUTOutput, error)
}

// DUTConfig configures the command that runs the DUT simulation
type DUTConfig struct {
	// Command is the DUT command line. {name}, {mem}, {elf} and {dir} are
	// replaced by the test name, image, binary and test directory.
	Command []string `mapstructure:"command"`

	// Timeout bounds a single DUT run. Zero means no deadline
	Timeout time.Duration `mapstructure:"timeout"`

	// Dir is the working directory of the command, the current one if empty
	Dir string `mapstructure:"dir"`
}

// CommandDUT runs a DUT simulator executable and reads its console output
type CommandDUT struct {
	config DUTConfig
	fs     afero.Fs
	logger *slog.Logger
}

// NewCommandDUT creates a command DUT. The console output is saved on fs
func NewCommandDUT(config DUTConfig, fs afero.Fs, logger *slog.Logger) (*CommandDUT, error) {
	if len(config.Command) == 0 {
		return nil, errors.New("no DUT command configured (suite.dut.command)")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandDUT{config: config, fs: fs, logger: logger}, nil
}

// Expand returns the command line for a test
func (d *CommandDUT) Expand(test Test, dir string) []string {
	replacer := strings.NewReplacer(
		"{name}", test.Name,
		"{mem}", test.Mem,
		"{elf}", test.ELF,
		"{dir}", dir,
	)

	args := make([]string, len(d.config.Command))
	for i, arg := range d.config.Command {
		args[i] = replacer.Replace(arg)
	}
	return args
}

// Run implements DUT. A non-zero exit status is not an error by itself: the
// self-check status line decides. Failing to start, timing out or being
// canceled is indeterminate.
func (d *CommandDUT) Run(ctx context.Context, test Test, dir string) (verify.DUTOutput, error) {
	if d.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.Timeout)
		defer cancel()
	}

	args := d.Expand(test, dir)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = d.config.Dir
	cmd.WaitDelay = time.Second

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stdout

	d.logger.Debug("running DUT", "test", test.Name, "command", strings.Join(args, " "))
	start := time.Now()
	runErr := cmd.Run()

	logPath := filepath.Join(dir, DUTLogName)
	if err := afero.WriteFile(d.fs, logPath, stdout.Bytes(), 0o644); err != nil {
		d.logger.Warn("cannot save DUT output", "path", logPath, "error", err.Error())
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return verify.DUTOutput{}, utils.MakeError(faults.ErrIndeterminate, "DUT run of %s interrupted: %v", test.Name, ctxErr)
	}

	var exitErr *exec.ExitError
	if runErr != nil && !errors.As(runErr, &exitErr) {
		return verify.DUTOutput{}, utils.MakeError(faults.ErrIndeterminate, "cannot run DUT for %s: %v", test.Name, runErr)
	}

	out, err := verify.ReadDUTOutput(&stdout)
	if err != nil {
		return out, utils.MakeError(faults.ErrIndeterminate, "%v", err)
	}

	d.logger.Debug("DUT finished",
		"test", test.Name,
		"duration", time.Since(start),
		"exit_code", cmd.ProcessState.ExitCode(),
		"trace_lines", len(out.Trace),
		"status", out.Status)

	return out, nil
}

func (d *CommandDUT) String() string {
	return fmt.Sprintf("command DUT %q", strings.Join(d.config.Command, " "))
}
