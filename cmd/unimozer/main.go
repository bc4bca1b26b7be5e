package main

import (
	"os"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"unimozer/internal/version"
)

var rootCmd = &cobra.Command{
	Use:           "unimozer",
	Short:         "Headless driver for the unimozer workspace engine",
	Long:          `unimozer opens a Java project the way the IDE does: it loads drafts, parses the class graph, reconciles the diagram layout and keeps packed archives in sync.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := setupColor(cmd); err != nil {
			return err
		}
		if err := setupLogging(cmd); err != nil {
			return err
		}
		metricsCleanup, err := setupMetrics(cmd)
		if err != nil {
			return err
		}
		cleanup, err := setupTracing(cmd)
		if err != nil {
			metricsCleanup()
			return err
		}
		profCleanup, err := setupProfiling(cmd)
		if err != nil {
			cleanup()
			metricsCleanup()
			return err
		}
		traceCleanup = func() {
			profCleanup()
			cleanup()
			metricsCleanup()
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		runCleanup()
	},
}

var traceCleanup func()

func runCleanup() {
	if traceCleanup != nil {
		traceCleanup()
		traceCleanup = nil
	}
}

var registered sync.Once

// registerOnce attaches subcommands and persistent flags to rootCmd.
func registerOnce() {
	registered.Do(register)
}

func register() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(layoutCmd)
	rootCmd.AddCommand(packCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)

	flags := rootCmd.PersistentFlags()
	flags.String("color", "auto", "colorize output (auto|on|off)")
	flags.String("log-level", "warn", "log level (debug|info|warn|error)")
	flags.String("config", "", "path to unimozer.toml (default: searched from the project directory upward)")
	flags.String("trace", "", "trace output file (- for stderr)")
	flags.String("trace-level", "off", "trace level (off|error|phase|detail|debug)")
	flags.String("trace-mode", "stream", "trace storage (stream|ring|both)")
	flags.Int("trace-ring-size", 4096, "events kept in ring mode")
	flags.Duration("trace-heartbeat", 0, "heartbeat interval (0 disables)")
	flags.Bool("metrics", false, "print engine metrics to stderr on exit")
	flags.String("cpu-profile", "", "write CPU profile to file")
	flags.String("mem-profile", "", "write heap profile to file on exit")
	flags.String("runtime-trace", "", "write Go runtime trace to file")
}

func main() {
	registerOnce()
	if err := rootCmd.Execute(); err != nil {
		printError(os.Stderr, err)
		runCleanup()
		os.Exit(1)
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
