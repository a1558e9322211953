package trace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/texerai/maveric2/cmd/common"
	"github.com/texerai/maveric2/pkg/commitlog"
	"github.com/texerai/maveric2/pkg/faults"
	"github.com/texerai/maveric2/pkg/refsim"
	"github.com/texerai/maveric2/pkg/suite"
	"github.com/texerai/maveric2/pkg/trace"
	"github.com/texerai/maveric2/pkg/traceview"
	"github.com/texerai/maveric2/pkg/utils"
	"github.com/texerai/maveric2/pkg/verify"
)

var (
	captureOutDir  string
	captureKeepLog bool

	compareStatus string
	compareName   string
)

// TraceCmd represents the trace command
var TraceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Reference trace capture and comparison",
}

var captureCmd = &cobra.Command{
	Use:   "capture name elf",
	Short: "Capture the canonical reference trace of a test binary",
	Long: `Runs the test binary on the spike reference simulator, parses its commit log,
replaces the measurement window by no-ops and writes the canonical trace to
<out-dir>/<name>-log-trace.log.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		name, elf := args[0], args[1]

		cfg := common.Config()
		logger := common.Logger()

		sim, err := refsim.Discover(cfg.RefSim, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding reference simulator: %v\n", err)
			os.Exit(faults.ExitUsage)
		}

		if err := os.MkdirAll(captureOutDir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
			os.Exit(faults.ExitUsage)
		}

		logDir := captureOutDir
		if !captureKeepLog {
			tmp, err := os.MkdirTemp("", "maveric2-"+name+"-")
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error creating temporary directory: %v\n", err)
				os.Exit(faults.ExitUsage)
			}
			defer os.RemoveAll(tmp)
			logDir = tmp
		}

		ctx, cancel := common.SignalContext()
		defer cancel()

		ref := suite.NewSpikeReference(sim, commitlog.NewParser(cfg.CommitLog, logger), cfg.Window, afero.NewOsFs(), logger)

		outPath := filepath.Join(captureOutDir, name+suite.TraceLogSuffix)
		logPath := filepath.Join(logDir, name+"-"+suite.CommitLogName)
		lines, err := ref.Capture(ctx, elf, logPath, outPath)
		if err != nil {
			// The partial log is left in place for inspection
			if _, statErr := os.Stat(logPath); statErr == nil {
				logger.Warn("raw commit log kept", "path", logPath)
			}
			common.Exit("Error capturing reference trace", err)
		}

		logger.Info("reference trace written", "path", outPath, "lines", len(lines))
	},
}

var compareCmd = &cobra.Command{
	Use:   "compare dut-log ref-log",
	Short: "Decide the verdict of a DUT trace against a reference trace",
	Long: `Compares the DUT output with a canonical reference trace.

The DUT log may be the raw DUT console output: canonical trace lines are
compared and the first other line is taken as the self-check status line,
unless --status is given. Exits with 0 on PASS or Not Applicable and 4 on FAIL.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		logger := common.Logger()

		dut, ref, err := readLogs(args[0], args[1])
		if err != nil {
			common.Exit("Error reading traces", err)
		}

		status := dut.Status
		if cmd.Flags().Changed("status") {
			status = compareStatus
		}

		selfCheck := verify.ParseSelfCheck(status)
		if status == "" {
			selfCheck = verify.SelfCheck{Line: verify.StatusNotApplicable.String(), Status: verify.StatusNotApplicable}
		}

		name := compareName
		if name == "" {
			name = filepath.Base(args[0])
		}

		v := verify.NewEvaluator(nil, logger).Evaluate(name, selfCheck, dut.Trace, ref)

		report := suite.NewConsoleReport(os.Stdout, common.Colorize(os.Stdout))
		if err := report.Write(v); err != nil {
			common.Exit("Error writing verdict", err)
		}

		if v.Failed() {
			os.Exit(faults.ExitFailed)
		}
	},
}

var viewCmd = &cobra.Command{
	Use:   "view dut-log ref-log",
	Short: "Browse a DUT trace and a reference trace side by side",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if !common.IsTerminal() {
			fmt.Fprintln(os.Stderr, "Error: trace view needs an interactive terminal")
			os.Exit(faults.ExitUsage)
		}

		dut, ref, err := readLogs(args[0], args[1])
		if err != nil {
			common.Exit("Error reading traces", err)
		}

		title := fmt.Sprintf("%s vs %s", args[0], args[1])
		if err := traceview.NewViewer(title, traceview.BuildRows(dut.Trace, ref)).Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error running trace view: %v\n", err)
			os.Exit(faults.ExitUsage)
		}
	},
}

func readLogs(dutPath, refPath string) (verify.DUTOutput, []string, error) {
	dutFile, err := os.Open(dutPath)
	if err != nil {
		return verify.DUTOutput{}, nil, utils.MakeError(faults.ErrInputDefect, "cannot open DUT log: %v", err)
	}
	defer dutFile.Close()

	dut, err := verify.ReadDUTOutput(dutFile)
	if err != nil {
		return dut, nil, utils.MakeError(faults.ErrInputDefect, "%v", err)
	}

	refFile, err := os.Open(refPath)
	if err != nil {
		return dut, nil, utils.MakeError(faults.ErrInputDefect, "cannot open reference log: %v", err)
	}
	defer refFile.Close()

	ref, err := trace.ReadLog(refFile)
	if err != nil {
		return dut, nil, utils.MakeError(faults.ErrInputDefect, "%v", err)
	}

	return dut, ref, nil
}

func init() {
	TraceCmd.AddCommand(captureCmd, compareCmd, viewCmd)

	captureCmd.Flags().StringVarP(&captureOutDir, "out-dir", "o", "spike_log_trace", "Output directory of the canonical trace")
	captureCmd.Flags().BoolVar(&captureKeepLog, "keep-log", false, "Keep the raw commit log next to the canonical trace")

	compareCmd.Flags().StringVarP(&compareStatus, "status", "s", "", "DUT self-check status line. Overrides the one found in the DUT log")
	compareCmd.Flags().StringVarP(&compareName, "name", "n", "", "Test name used in the verdict line. Defaults to the DUT log name")
}
