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
	"github.com/ectar/ectar/internal/config"
	"github.com/ectar/ectar/internal/event"
	"github.com/ectar/ectar/internal/stats"
	"github.com/ectar/ectar/internal/ui"
)

func newCreateCmd() *cobra.Command {
	var (
		output         string
		dataShards     int
		parityShards   int
		chunkSizeStr   string
		level          int
		noCompression  bool
		noIndex        bool
		exclude        []string
		followSymlinks bool
	)

	cmd := &cobra.Command{
		Use:   "create [flags] PATH...",
		Short: "Create a new erasure-coded archive",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Config-file defaults apply only to flags left unset.
			fileCfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			d := fileCfg.Defaults
			if !cmd.Flags().Changed("data-shards") && d.DataShards != nil {
				dataShards = *d.DataShards
			}
			if !cmd.Flags().Changed("parity-shards") && d.ParityShards != nil {
				parityShards = *d.ParityShards
			}
			if !cmd.Flags().Changed("compression-level") && d.CompressionLevel != nil {
				level = *d.CompressionLevel
			}
			if !cmd.Flags().Changed("chunk-size") && d.ChunkSize != nil {
				chunkSizeStr = *d.ChunkSize
			}

			chunkSize, err := config.ParseSize(chunkSizeStr)
			if err != nil {
				return fmt.Errorf("invalid --chunk-size: %w", err)
			}

			params := config.Params{
				DataShards:       dataShards,
				ParityShards:     parityShards,
				ChunkSize:        chunkSize,
				CompressionLevel: level,
				NoCompression:    noCompression,
			}
			if err := params.Validate(); err != nil {
				return err
			}

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

			res, err := archive.Create(ctx, archive.CreateConfig{
				Output:         output,
				Paths:          args,
				Params:         params,
				Exclude:        exclude,
				FollowSymlinks: followSymlinks,
				NoIndex:        noIndex,
				Events:         events,
				Stats:          collector,
			})
			close(events)
			wg.Wait()

			if err != nil {
				return err
			}

			if !flagQuiet {
				fmt.Fprintf(os.Stderr, "Archive created: %s\n", output)
				if summary := presenter.Summary(); summary != "" {
					fmt.Fprintln(os.Stderr, summary)
				}
				fmt.Fprintf(os.Stderr, "  Files: %d  Chunks: %d  Raw: %s  On media: %s\n",
					res.Files, res.Chunks,
					ui.FormatBytes(res.TotalBytes), ui.FormatBytes(res.ShardBytes))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "archive basename (required)")
	cmd.Flags().IntVar(&dataShards, "data-shards", config.DefaultDataShards, "number of data shards per chunk")
	cmd.Flags().IntVar(&parityShards, "parity-shards", config.DefaultParityShards, "number of parity shards per chunk")
	cmd.Flags().StringVar(&chunkSizeStr, "chunk-size", "1GB", "chunk size (e.g. 1GB, 100MB)")
	cmd.Flags().IntVar(&level, "compression-level", 3, "zstd compression level (1-22)")
	cmd.Flags().BoolVar(&noCompression, "no-compression", false, "store raw tar bytes without compression")
	cmd.Flags().BoolVar(&noIndex, "no-index", false, "skip the index file (archive usable via emergency decode only)")
	cmd.Flags().StringArrayVar(&exclude, "exclude", nil, "exclude paths matching PATTERN (repeatable)")
	cmd.Flags().BoolVar(&followSymlinks, "follow-symlinks", false, "archive symlink targets instead of links")
	cmd.MarkFlagRequired("output")

	return cmd
}
