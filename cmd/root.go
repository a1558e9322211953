package cmd

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/texerai/maveric2/cmd/common"
	"github.com/texerai/maveric2/cmd/mem"
	suitecmd "github.com/texerai/maveric2/cmd/suite"
	"github.com/texerai/maveric2/cmd/tools"
	tracecmd "github.com/texerai/maveric2/cmd/trace"
	"github.com/texerai/maveric2/pkg/config"
	"github.com/texerai/maveric2/pkg/faults"
)

var cfgFile string

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "maveric2",
	Short: "Differential trace verification of the MAVERIC core",
	Long: `maveric2 checks a RISC-V core under test against the spike reference simulator.

It builds instruction memory images from disassembly listings, captures and
normalizes reference commit logs, compares them with the execution trace
reported by the core and runs whole test suites with a stop-at-first-failure
policy.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the maveric2 version",
	Run: func(cmd *cobra.Command, args []string) {
		version := "(devel)"
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
			version = info.Main.Version
		}
		fmt.Println("maveric2", version)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := RootCmd.Execute()
	if err != nil {
		os.Exit(faults.ExitUsage)
	}
}

func init() {
	RootCmd.AddCommand(mem.MemCmd, tracecmd.TraceCmd, suitecmd.SuiteCmd, tools.ToolsCmd, versionCmd)
	cobra.OnInitialize(initConfig)

	flags := RootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is .maveric2.yaml in the working or home directory)")
	flags.BoolP("verbose", "v", false, "Enable debug logging")
	flags.String("log-format", "text", "Log format: text or json")
	flags.String("color", "auto", "Color verdicts: auto, always or never")

	cobra.CheckErr(viper.BindPFlag(common.KeyVerbose, flags.Lookup("verbose")))
	cobra.CheckErr(viper.BindPFlag(common.KeyLogFormat, flags.Lookup("log-format")))
	cobra.CheckErr(viper.BindPFlag(common.KeyColor, flags.Lookup("color")))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigType("yaml")
		viper.SetConfigName(".maveric2")
	}

	config.SetupEnv(viper.GetViper())

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool(common.KeyVerbose) {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	} else if cfgFile != "" {
		fmt.Fprintf(os.Stderr, "Error reading config file %s: %v\n", cfgFile, err)
		os.Exit(faults.ExitUsage)
	}
}
