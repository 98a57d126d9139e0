package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/piconix/f1voice/internal/config"
	"github.com/piconix/f1voice/internal/logging"
)

var (
	version = "dev"
	noColor bool
)

var rootCmd = &cobra.Command{
	Use:           "f1voice",
	Short:         "Voice answers to Formula One results questions",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if !cmd.Flags().Changed("no-color") {
			noColor = !stderrIsTerminal()
		}
	},
}

func init() {
	rootCmd.Version = version
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(startCmd, stopCmd, statusCmd)
	rootCmd.AddCommand(askCmd, biasCmd, historyCmd)
	rootCmd.AddCommand(seedCmd, mcpCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

func stderrIsTerminal() bool {
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// setupLogging installs the configured logger as the process default. The
// closer releases the log file, if any.
func setupLogging(cfg config.Config, w io.Writer) (*slog.Logger, io.Closer) {
	logger, closer := logging.NewWithFile(cfg.Log.Level, w, logging.FileOptions{Path: cfg.Log.File})
	logging.SetDefault(logger)
	return logger, closer
}
