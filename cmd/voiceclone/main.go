// Command voiceclone cuts reference recordings into voice samples and
// synthesizes speech in the cloned voice.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/book-expert/logger"
	"github.com/book-expert/voiceclone/internal/config"
	"github.com/spf13/cobra"
)

// Flag names.
const (
	flagConfig  = "config"
	flagVerbose = "verbose"
)

// File names.
const (
	logFileNameDefault = "voiceclone.log"
	logFileNameVerbose = "voiceclone-verbose.log"
)

// app carries the state shared by every subcommand.
type app struct {
	configPath string
	verbose    bool

	cfg *config.Config
	log *logger.Logger
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "voiceclone",
		Short: "Clone a voice from a recording and speak new text with it",
		Long: `voiceclone prepares reference samples from a long recording and drives an
external text-to-speech engine to generate speech in that voice.

Run "segment" once per recording, then "synthesize" as often as needed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return a.setup()
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configPath, flagConfig, "", "Path to a TOML config file (default ./"+config.DefaultFileName+")")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, flagVerbose, "v", false, "Enable verbose output")

	rootCmd.AddCommand(
		newSegmentCmd(a),
		newSynthesizeCmd(a),
		newVoicesCmd(a),
		newHealthCmd(a),
	)

	return rootCmd
}

func (a *app) setup() error {
	cfg, err := config.Resolve(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logFileName := logFileNameDefault
	if a.verbose {
		logFileName = logFileNameVerbose
	}

	log, err := logger.New(cfg.Paths.BaseLogsDir, logFileName)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	a.cfg = cfg
	a.log = log

	return nil
}

func (a *app) close() {
	if a.log == nil {
		return
	}

	closeErr := a.log.Close()
	if closeErr != nil {
		fmt.Fprintf(os.Stderr, "error closing logger: %v\n", closeErr)
	}

	a.log = nil
}

func execute(ctx context.Context, args []string, out io.Writer) error {
	a := &app{}
	defer a.close()

	rootCmd := newRootCmd(a)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(out)

	return rootCmd.ExecuteContext(ctx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := execute(ctx, os.Args[1:], os.Stdout)

	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
