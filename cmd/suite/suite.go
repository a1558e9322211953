package suite

import (
	"fmt"
	"os"

	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/texerai/maveric2/cmd/common"
	"github.com/texerai/maveric2/pkg/commitlog"
	"github.com/texerai/maveric2/pkg/config"
	"github.com/texerai/maveric2/pkg/faults"
	"github.com/texerai/maveric2/pkg/refsim"
	"github.com/texerai/maveric2/pkg/suite"
	"github.com/texerai/maveric2/pkg/verify"
)

var (
	groups       []string
	appendReport bool
)

// SuiteCmd represents the suite command
var SuiteCmd = &cobra.Command{
	Use:   "suite",
	Short: "Test suite listing and batch runs",
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tests of the manifest",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := common.Config()
		common.Logger()

		tests, err := selectTests(afero.NewOsFs(), cfg, nil)
		if err != nil {
			common.Exit("Error reading tests", err)
		}

		for _, t := range tests {
			fmt.Println(t.Name)
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run [test...]",
	Short: "Run tests, stopping at the first failure",
	Long: `Runs the selected tests (every manifest test by default) on the DUT command,
captures their reference traces and writes one verdict line per test to the
results file. The run stops at the first FAIL or INDETERMINATE verdict.

Exit codes: 0 all tests passed, 2 input defect, 3 indeterminate, 4 failure.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := common.Config()
		logger := common.Logger()
		fs := afero.NewOsFs()

		tests, err := selectTests(fs, cfg, args)
		if err != nil {
			common.Exit("Error selecting tests", err)
		}
		if len(tests) == 0 {
			fmt.Fprintln(os.Stderr, "No tests selected")
			return
		}

		dut, err := suite.NewCommandDUT(cfg.Suite.DUT, fs, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(faults.ExitUsage)
		}

		sim, err := refsim.Discover(cfg.RefSim, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding reference simulator: %v\n", err)
			os.Exit(faults.ExitUsage)
		}

		report, err := suite.NewReportWriter(fs, cfg.Suite.Results, !appendReport, os.Stdout, common.Colorize(os.Stdout))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(faults.ExitUsage)
		}
		defer report.Close()

		runner := &suite.Runner{
			DUT:       dut,
			Reference: suite.NewSpikeReference(sim, commitlog.NewParser(cfg.CommitLog, logger), cfg.Window, fs, logger),
			Evaluator: verify.NewEvaluator(nil, logger),
			Workspace: suite.NewWorkspace(fs, cfg.Suite.WorkDir, cfg.Suite.KeepWorkDir),
			Sink:      report,
			Parallel:  cfg.Suite.Parallel,
			Logger:    logger,
		}

		ctx, cancel := common.SignalContext()
		defer cancel()

		result, err := runner.Run(ctx, tests)
		report.Summary(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}

		if err := result.Err(); err != nil {
			report.Close()
			os.Exit(faults.ExitCode(err))
		}
	},
}

// selectTests returns the tests named in args and in the selected groups, in
// that order, or every manifest test when nothing is named
func selectTests(fs afero.Fs, cfg *config.Config, args []string) ([]suite.Test, error) {
	manifest, err := suite.LoadManifest(fs, cfg.Suite.Manifest, cfg.Suite.ELFDir)
	if err != nil {
		return nil, err
	}

	names := append([]string{}, args...)
	for _, group := range groups {
		members, err := suite.LoadGroup(fs, suite.GroupPath(cfg.Suite.Manifest, group))
		if err != nil {
			return nil, err
		}
		names = append(names, members...)
	}

	if len(groups) > 0 && len(names) == 0 {
		return nil, nil
	}

	return manifest.Select(lo.Compact(names)...)
}

func init() {
	SuiteCmd.AddCommand(listCmd, runCmd)

	SuiteCmd.PersistentFlags().StringSliceVarP(&groups, "group", "g", nil, "Test group (list-<group>.txt next to the manifest). May be repeated")

	runCmd.Flags().IntP("parallel", "j", 1, "Number of tests run at once")
	runCmd.Flags().Bool("keep", false, "Keep every test directory, not only the failing ones")
	runCmd.Flags().BoolVar(&appendReport, "append", false, "Append to the results file instead of starting a new one")

	cobra.CheckErr(viper.BindPFlag("suite.parallel", runCmd.Flags().Lookup("parallel")))
	cobra.CheckErr(viper.BindPFlag("suite.keep_workdir", runCmd.Flags().Lookup("keep")))
}
