// Command ectar packages a directory tree into Reed-Solomon encoded
// shard files that survive partial media loss, and extracts, lists, and
// verifies such archives.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ectar/ectar/internal/archive"
	"github.com/ectar/ectar/internal/fec"
	"github.com/ectar/ectar/internal/index"
	"github.com/ectar/ectar/internal/tarstream"
)

var version = "dev"

// Exit codes: 0 success, 1 input error, 2 unrecoverable chunk, 3 I/O.
const (
	exitOK            = 0
	exitInputError    = 1
	exitUnrecoverable = 2
	exitIOError       = 3
)

var (
	flagVerbose bool
	flagQuiet   bool
	flagLogFile string
)

func main() {
	os.Exit(run())
}

func run() int {
	archive.ToolVersion = version

	root := &cobra.Command{
		Use:           "ectar",
		Short:         "Erasure-coded tar archives for long-term data preservation",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging()
		},
	}

	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose output")
	root.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress all output except errors")
	root.PersistentFlags().StringVar(&flagLogFile, "log", "", "write structured JSON log to FILE")

	root.AddCommand(newCreateCmd())
	root.AddCommand(newExtractCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newVerifyCmd())
	root.AddCommand(newInfoCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCode(err)
	}
	return exitOK
}

func setupLogging() error {
	level := slog.LevelWarn
	if flagVerbose {
		level = slog.LevelDebug
	} else if !flagQuiet {
		level = slog.LevelInfo
	}
	textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})

	var handler slog.Handler = textHandler
	if flagLogFile != "" {
		lf, err := os.Create(flagLogFile)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{Level: slog.LevelDebug})
		handler = newMultiHandler(textHandler, jsonHandler)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// exitCode maps an error to the documented exit codes.
func exitCode(err error) int {
	var ise *fec.InsufficientShardsError
	if errors.As(err, &ise) {
		return exitUnrecoverable
	}
	var cse *fec.CorruptShardError
	if errors.As(err, &cse) {
		return exitUnrecoverable
	}

	var se *tarstream.StreamError
	var pe *os.PathError
	if errors.As(err, &se) || errors.As(err, &pe) {
		return exitIOError
	}

	if errors.Is(err, index.ErrCorrupt) {
		return exitInputError
	}
	return exitInputError
}
