// Package common holds the state shared by the subcommands: the loaded
// configuration, the logger and the exit helpers.
package common

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/viper"
	"github.com/texerai/maveric2/pkg/config"
	"github.com/texerai/maveric2/pkg/faults"
	"github.com/texerai/maveric2/pkg/logging"
	"golang.org/x/term"
)

// Viper keys bound to the persistent flags
const (
	KeyVerbose   = "log.verbose"
	KeyLogFormat = "log.format"
	KeyColor     = "color"
)

// Config loads the configuration or exits
func Config() *config.Config {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(faults.ExitUsage)
	}
	return cfg
}

// Logger builds the console logger from the persistent flags and makes it the default
func Logger() *slog.Logger {
	format, err := logging.ParseFormat(viper.GetString(KeyLogFormat))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(faults.ExitUsage)
	}

	logger := logging.New(logging.Options{
		Format:  format,
		Verbose: viper.GetBool(KeyVerbose),
	})
	slog.SetDefault(logger)
	return logger
}

// Colorize tells whether output written to f should be colored
func Colorize(f *os.File) bool {
	switch strings.ToLower(viper.GetString(KeyColor)) {
	case "always":
		return true
	case "never":
		return false
	default:
		return term.IsTerminal(int(f.Fd()))
	}
}

// IsTerminal returns true if both stdin and stdout are terminals
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// SignalContext returns a context canceled on interrupt
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// Exit prints err and exits with the code of its error class
func Exit(message string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", message, err)
	os.Exit(faults.ExitCode(err))
}
