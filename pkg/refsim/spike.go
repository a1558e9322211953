// Package refsim drives the reference instruction set simulator (spike) to
// capture the raw commit log of a test binary.
//
// The simulator is run with its diagnostic stream redirected to a log file.
// While it runs, the log is followed through an independent read handle and
// the process is killed on the first termination sentinel, on timeout or on
// cancellation. The log written so far is always kept.
package refsim

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/texerai/maveric2/pkg/faults"
	"github.com/texerai/maveric2/pkg/utils"
)

// Reason tells why a capture ended
type Reason int

const (
	// ReasonSentinel means a termination sentinel was seen in the log
	ReasonSentinel Reason = iota
	// ReasonExited means the simulator exited by itself
	ReasonExited
	// ReasonTimeout means the capture deadline expired
	ReasonTimeout
	// ReasonCanceled means the caller canceled the capture
	ReasonCanceled
)

func (r Reason) String() string {
	switch r {
	case ReasonSentinel:
		return "sentinel"
	case ReasonExited:
		return "exited"
	case ReasonTimeout:
		return "timeout"
	case ReasonCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Config holds the reference simulator configuration
type Config struct {
	// Path is the explicit path to the simulator executable
	Path string `mapstructure:"path"`

	// Args are passed before the test binary path
	Args []string `mapstructure:"args"`

	// Timeout bounds a capture. Zero means no deadline other than the caller context
	Timeout time.Duration `mapstructure:"timeout"`

	// PollInterval is the log polling period used besides file change events
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// Sentinels are the log substrings that end a capture
	Sentinels []string `mapstructure:"sentinels"`
}

// DefaultConfig returns the interactive commit logging setup used for trace comparison
func DefaultConfig() Config {
	return Config{
		Args:         []string{"-d", "--log-commits"},
		Timeout:      2 * time.Minute,
		PollInterval: 50 * time.Millisecond,
		Sentinels:    []string{"ecall", "ebreak"},
	}
}

// Simulator is a discovered reference simulator
type Simulator struct {
	config Config
	path   string
	logger *slog.Logger
}

// Path returns the simulator executable path
func (s *Simulator) Path() string {
	return s.path
}

// Discover finds the reference simulator.
// Search order:
// 1. Explicit Path in config
// 2. $RISCV/bin
// 3. System PATH
func Discover(config Config, logger *slog.Logger) (*Simulator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if config.PollInterval <= 0 {
		config.PollInterval = DefaultConfig().PollInterval
	}

	sim := &Simulator{config: config, logger: logger}

	if config.Path != "" {
		if _, err := os.Stat(config.Path); err != nil {
			return nil, errors.Errorf("specified reference simulator path not found: %s", config.Path)
		}
		sim.path = config.Path
		return sim, nil
	}

	exe := "spike"
	if runtime.GOOS == "windows" {
		exe = "spike.exe"
	}

	if root := os.Getenv("RISCV"); root != "" {
		path := filepath.Join(root, "bin", exe)
		if _, err := os.Stat(path); err == nil {
			sim.path = path
			return sim, nil
		}
	}

	if path, err := exec.LookPath(exe); err == nil {
		sim.path = path
		return sim, nil
	}

	return nil, errors.New("could not find the spike reference simulator; set refsim.path or $RISCV")
}

// CaptureResult contains the result of a capture
type CaptureResult struct {
	// LogPath is the raw commit log file
	LogPath string

	// Command is the simulator command that was executed
	Command string

	// Reason tells why the capture ended
	Reason Reason

	// Sentinel is the sentinel that ended the capture, if any
	Sentinel string

	// ExitCode is the simulator exit code, -1 if it was killed
	ExitCode int

	Duration time.Duration
}

// Capture runs the simulator on a test binary, writing its diagnostic stream
// to logPath. A timeout or a canceled context kills the simulator and
// returns an ErrIndeterminate error along with the partial result.
func (s *Simulator) Capture(ctx context.Context, elf string, logPath string) (*CaptureResult, error) {
	if _, err := os.Stat(elf); err != nil {
		return nil, utils.MakeError(faults.ErrInputDefect, "test binary not found: %s", elf)
	}

	logFile, err := os.Create(logPath)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot create commit log %s", logPath)
	}
	defer logFile.Close()

	args := append(append([]string{}, s.config.Args...), elf)
	cmd := exec.Command(s.path, args...)
	cmd.Stderr = logFile

	result := &CaptureResult{
		LogPath:  logPath,
		Command:  fmt.Sprintf("%s %s", s.path, strings.Join(args, " ")),
		ExitCode: -1,
	}

	tail, err := newLogTail(logPath, s.config.Sentinels)
	if err != nil {
		return nil, err
	}
	defer tail.Close()

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, utils.MakeError(faults.ErrIndeterminate, "failed to start %s: %v", s.path, err)
	}
	s.logger.Debug("reference simulator started", "command", result.Command, "pid", cmd.Process.Pid)

	exited := make(chan error, 1)
	go func() {
		exited <- cmd.Wait()
	}()

	var once sync.Once
	kill := func() {
		once.Do(func() {
			if err := cmd.Process.Kill(); err != nil {
				s.logger.Debug("kill failed", "pid", cmd.Process.Pid, "error", err.Error())
			}
			<-exited
		})
	}
	defer kill()

	// Change notifications only shorten the wait, the ticker alone is enough
	var events <-chan fsnotify.Event
	var watchErrors <-chan error
	if watcher, err := fsnotify.NewWatcher(); err == nil {
		defer watcher.Close()
		if err := watcher.Add(logPath); err == nil {
			events = watcher.Events
			watchErrors = watcher.Errors
		} else {
			s.logger.Debug("cannot watch commit log, polling only", "path", logPath, "error", err.Error())
		}
	}

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if s.config.Timeout > 0 {
		timer := time.NewTimer(s.config.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	finish := func(reason Reason) {
		result.Reason = reason
		result.Duration = time.Since(start)
	}

	poll := func() (bool, error) {
		sentinel, found, err := tail.Scan()
		if err != nil {
			return false, err
		}
		if found {
			kill()
			result.Sentinel = sentinel
			finish(ReasonSentinel)
			s.logger.Debug("sentinel found, reference simulator stopped", "sentinel", sentinel, "duration", result.Duration)
		}
		return found, nil
	}

	for {
		select {
		case <-ctx.Done():
			kill()
			finish(ReasonCanceled)
			s.logger.Warn("reference capture canceled", "elf", elf)
			return result, utils.MakeError(faults.ErrIndeterminate, "reference capture of %s canceled: %v", elf, ctx.Err())

		case <-deadline:
			kill()
			finish(ReasonTimeout)
			s.logger.Warn("reference capture timed out", "elf", elf, "timeout", s.config.Timeout)
			return result, utils.MakeError(faults.ErrIndeterminate, "reference capture of %s timed out after %s", elf, s.config.Timeout)

		case waitErr := <-exited:
			// Wait already returned, make the deferred kill a no-op
			once.Do(func() {})
			result.ExitCode = cmd.ProcessState.ExitCode()
			if found, err := poll(); err != nil || found {
				return result, err
			}
			finish(ReasonExited)
			s.logger.Debug("reference simulator exited", "exit_code", result.ExitCode, "error", waitErr)
			return result, nil

		case event := <-events:
			if event.Has(fsnotify.Write) {
				if found, err := poll(); err != nil || found {
					return result, err
				}
			}

		case err := <-watchErrors:
			if err != nil {
				s.logger.Debug("commit log watch error", "error", err.Error())
			}

		case <-ticker.C:
			if found, err := poll(); err != nil || found {
				return result, err
			}
		}
	}
}
