package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ectar/ectar/internal/archive"
	"github.com/ectar/ectar/internal/fec"
)

func newVerifyCmd() *cobra.Command {
	var (
		input      string
		quick      bool
		full       bool
		reportPath string
	)

	cmd := &cobra.Command{
		Use:   "verify [flags]",
		Short: "Verify archive integrity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if quick && full {
				return fmt.Errorf("--quick and --full are mutually exclusive")
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rep, err := archive.Verify(ctx, archive.VerifyConfig{
				Input:      input,
				Full:       full,
				ReportPath: reportPath,
			})
			if err != nil {
				return err
			}

			if !flagQuiet {
				printReport(rep)
			}
			if rep.Status == archive.StatusFailed {
				for _, d := range rep.Chunks {
					if !d.Recoverable {
						return fmt.Errorf("verification failed: %d unrecoverable chunks: %w",
							len(rep.Unrecoverable), &fec.InsufficientShardsError{
								Chunk: d.ChunkNumber, Have: d.ShardsAvailable, Need: d.ShardsRequired,
							})
					}
				}
				return fmt.Errorf("verification failed: %d unrecoverable chunks", len(rep.Unrecoverable))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "shard glob, directory, or archive basename (required)")
	cmd.Flags().BoolVar(&quick, "quick", false, "shard census only (default)")
	cmd.Flags().BoolVar(&full, "full", false, "decode every chunk and check all checksums")
	cmd.Flags().StringVar(&reportPath, "report", "", "write detailed JSON report to PATH")
	cmd.MarkFlagRequired("input")

	return cmd
}

func printReport(rep *archive.VerifyReport) {
	w := os.Stderr
	fmt.Fprintf(w, "Archive: %s\n", rep.ArchiveName)
	fmt.Fprintf(w, "Status:  %s\n", rep.Status)
	fmt.Fprintf(w, "Chunks:  %d total, %d verified, %d unrecoverable\n",
		rep.TotalChunks, rep.ChunksVerified, len(rep.Unrecoverable))
	fmt.Fprintf(w, "Shards:  %d expected, %d missing\n", rep.TotalShards, rep.MissingShards)
	if rep.FilesChecked > 0 {
		fmt.Fprintf(w, "Files:   %d checked, %d mismatched\n", rep.FilesChecked, len(rep.FileMismatches))
	}
	for _, d := range rep.Chunks {
		if d.Recoverable && d.ShardsAvailable == d.ShardsExpected {
			continue
		}
		state := "degraded"
		if !d.Recoverable {
			state = "UNRECOVERABLE"
		}
		fmt.Fprintf(w, "  chunk %d: %d/%d shards (%s, %d needed)\n",
			d.ChunkNumber, d.ShardsAvailable, d.ShardsExpected, state, d.ShardsRequired)
	}
	for _, m := range rep.FileMismatches {
		fmt.Fprintf(w, "  MISMATCH %s\n", m.Path)
	}
}
