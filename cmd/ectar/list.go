package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ectar/ectar/internal/archive"
)

func newListCmd() *cobra.Command {
	var (
		input     string
		pattern   string
		long      bool
		formatStr string
	)

	cmd := &cobra.Command{
		Use:   "list [flags]",
		Short: "List the contents of an archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := archive.ParseListFormat(formatStr)
			if err != nil {
				return err
			}
			return archive.List(archive.ListConfig{
				Input:   input,
				Pattern: pattern,
				Long:    long,
				Format:  format,
				Out:     os.Stdout,
			})
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "shard glob, directory, or archive basename (required)")
	cmd.Flags().StringVar(&pattern, "files", "", "list only entries matching PATTERN")
	cmd.Flags().BoolVar(&long, "long", false, "long listing with metadata")
	cmd.Flags().StringVar(&formatStr, "format", "text", "output format: text, json, or csv")
	cmd.MarkFlagRequired("input")

	return cmd
}
