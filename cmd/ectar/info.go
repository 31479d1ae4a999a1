package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ectar/ectar/internal/archive"
)

func newInfoCmd() *cobra.Command {
	var (
		input     string
		formatStr string
	)

	cmd := &cobra.Command{
		Use:   "info [flags]",
		Short: "Display archive metadata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := archive.ParseListFormat(formatStr)
			if err != nil {
				return err
			}
			if format == archive.FormatCSV {
				return fmt.Errorf("invalid output format %q (use text or json)", formatStr)
			}
			return archive.Info(archive.InfoConfig{
				Input:  input,
				Format: format,
				Out:    os.Stdout,
			})
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "shard glob, directory, or archive basename (required)")
	cmd.Flags().StringVar(&formatStr, "format", "text", "output format: text or json")
	cmd.MarkFlagRequired("input")

	return cmd
}
