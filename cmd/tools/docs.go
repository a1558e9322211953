package tools

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/texerai/maveric2/pkg/faults"
	"github.com/texerai/maveric2/pkg/suite"
	"github.com/texerai/maveric2/pkg/verify"
	"gopkg.in/yaml.v3"
)

const traceFormatDoc = `Canonical trace format

One line per retired instruction:

  PC: 0x<16 hex>, INSTR: 0x<8 hex>[, REG <id>: <value>][, MEM <addr>[: 0x<16 hex>]]

REG is present when the instruction writes a register. MEM is present for
memory accesses: loads print the bare address, stores print the address and
the stored doubleword. Instructions of the measurement window are replaced by
"PC: <pc>, INSTR: 0x00000013" no-ops at consecutive addresses.`

const manifestDoc = `Test manifest

A YAML mapping from test name to its instruction memory image, in run order:

  am-add: tests/instr/am-add.txt
  am-sub:
    mem: tests/instr/am-sub.txt
    elf: tests/bin/am-sub.elf

The ELF defaults to <elf-dir>/<name>` + suite.ELFExt + `. Groups are plain
list-<group>.txt files next to the manifest with one test name per line.`

var supportedModules = map[string]func() (string, error){
	"trace.format":   func() (string, error) { return traceFormatDoc, nil },
	"suite.manifest": func() (string, error) { return manifestDoc, nil },
	"suite.report":   func() (string, error) { return reportDoc(), nil },
	"config":         configDoc,
}

func moduleNames() []string {
	names := lo.Keys(supportedModules)
	slices.Sort(names)
	return names
}

func reportDoc() string {
	example := verify.Verdict{
		Test:      "am-add",
		SelfCheck: verify.SelfCheck{Line: "PASS", Status: verify.StatusPass},
		Trace:     verify.StatusPass,
		Status:    verify.StatusPass,
	}

	return "Results file\n\n" + suite.ReportNote + "\nfollowed by one line per test:\n\n  " + example.ReportLine() +
		"\n\nThe run stops at the first FAIL or INDETERMINATE line.\n\nExit codes: " +
		fmt.Sprintf("%d pass, %d usage, %d input defect, %d indeterminate, %d failure.",
			faults.ExitOK, faults.ExitUsage, faults.ExitInputDefect, faults.ExitIndeterminate, faults.ExitFailed)
}

func configDoc() (string, error) {
	out, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return "", err
	}
	return "Effective configuration\n\n" + string(out), nil
}

var docsCmd = &cobra.Command{
	Use:   "docs module",
	Short: "Show maveric2 documentation",
	Long: `Dumps the documentation of the specified maveric2 module.
By default the tool dumps the documentation to stdout, but it can be redirected to a file using the --output flag.

Supported modules:
` + strings.Join(lo.Map(moduleNames(), func(module string, _ int) string { return "  " + module }), "\n"),
	Args:      cobra.MatchAll(cobra.OnlyValidArgs, cobra.ExactArgs(1)),
	ValidArgs: moduleNames(),
	Run: func(cmd *cobra.Command, args []string) {
		doc, err := supportedModules[args[0]]()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error rendering documentation:", err)
			os.Exit(faults.ExitUsage)
		}

		outputFile, _ := cmd.Flags().GetString("output")
		if outputFile == "" {
			fmt.Println(doc)
			return
		}

		file, err := os.Create(outputFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error creating file:", err)
			os.Exit(faults.ExitUsage)
		}
		defer file.Close()
		fmt.Fprintln(file, doc)
	},
}

func init() {
	ToolsCmd.AddCommand(docsCmd)
	docsCmd.Flags().StringP("output", "o", "", "Output file. If not specified, the documentation is dumped to stdout.")
}
