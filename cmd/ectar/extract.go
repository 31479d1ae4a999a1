package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ectar/ectar/internal/archive"
	"github.com/ectar/ectar/internal/event"
	"github.com/ectar/ectar/internal/stats"
	"github.com/ectar/ectar/internal/ui"
)

func newExtractCmd() *cobra.Command {
	var (
		input   string
		outDir  string
		files   []string
		exclude []string
		strip   int
		partial bool
	)

	cmd := &cobra.Command{
		Use:   "extract [flags]",
		Short: "Extract files from an archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			collector := stats.NewCollector()
			events := make(chan event.Event, 256)
			presenter := ui.NewPresenter(ui.Config{
				Writer:  os.Stderr,
				Verbose: flagVerbose,
				Quiet:   flagQuiet,
				Stats:   collector,
			})

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				presenter.Run(events)
			}()

			res, err := archive.Extract(ctx, archive.ExtractConfig{
				Input:           input,
				OutDir:          outDir,
				Files:           files,
				Exclude:         exclude,
				StripComponents: strip,
				Partial:         partial,
				Events:          events,
				Stats:           collector,
			})
			close(events)
			wg.Wait()

			if err != nil {
				return err
			}

			if !flagQuiet {
				fmt.Fprintf(os.Stderr, "Extraction complete\n")
				fmt.Fprintf(os.Stderr, "  Chunks recovered: %d/%d\n", res.ChunksRecovered, res.ChunksTotal)
				fmt.Fprintf(os.Stderr, "  Files extracted: %d\n", res.FilesExtracted)
				// Never silently lose data: name every entry that failed.
				for _, f := range res.Failed {
					fmt.Fprintf(os.Stderr, "  FAILED %s: %v\n", f.Path, f.Err)
				}
			}
			if len(res.Failed) > 0 && !partial {
				return fmt.Errorf("%d entries failed to extract", len(res.Failed))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "shard glob, directory, or archive basename (required)")
	cmd.Flags().StringVarP(&outDir, "output", "o", ".", "output directory")
	cmd.Flags().StringArrayVar(&files, "files", nil, "extract only entries matching PATTERN (repeatable)")
	cmd.Flags().StringArrayVar(&exclude, "exclude", nil, "skip entries matching PATTERN (repeatable)")
	cmd.Flags().IntVar(&strip, "strip-components", 0, "strip N leading path components")
	cmd.Flags().BoolVar(&partial, "partial", false, "extract recoverable leading chunks even if later chunks are lost")
	cmd.MarkFlagRequired("input")

	return cmd
}
