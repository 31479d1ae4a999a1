package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ectar/ectar/internal/index"
	"github.com/ectar/ectar/internal/stats"
)

// InfoConfig parameterizes the info command.
type InfoConfig struct {
	Input  string
	Format ListFormat // text or json
	Out    io.Writer
}

// Info prints archive metadata and derived statistics from the index.
func Info(cfg InfoConfig) error {
	path, found := index.Find(cfg.Input)
	if !found {
		return fmt.Errorf("no index file for %q (info requires the index)", cfg.Input)
	}
	ix, err := index.Read(path)
	if err != nil {
		return err
	}

	if cfg.Format == FormatJSON {
		enc := json.NewEncoder(cfg.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(ix)
	}
	return infoText(cfg.Out, ix)
}

func infoText(w io.Writer, ix *index.Index) error {
	p := ix.Parameters
	total := p.TotalShards()

	fmt.Fprintln(w, "Archive Information")
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(w, "Name:              %s\n", ix.ArchiveName)
	fmt.Fprintf(w, "Created:           %s\n", ix.Created.Format(time.RFC3339))
	fmt.Fprintf(w, "Tool Version:      %s\n", ix.ToolVersion)
	fmt.Fprintf(w, "Index Version:     %s\n\n", ix.Version)

	fmt.Fprintln(w, "Erasure Coding Parameters")
	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintf(w, "Data Shards:       %d\n", p.DataShards)
	fmt.Fprintf(w, "Parity Shards:     %d\n", p.ParityShards)
	fmt.Fprintf(w, "Total Shards:      %d\n", total)
	fmt.Fprintf(w, "Redundancy:        %.1f%%\n", float64(p.ParityShards)/float64(p.DataShards)*100)
	fmt.Fprintf(w, "Can Lose:          %d shards per chunk\n", p.ParityShards)
	if p.ChunkSize > 0 {
		fmt.Fprintf(w, "Chunk Size:        %s\n", stats.FormatBytes(p.ChunkSize))
	}
	if p.CompressionLevel != nil {
		fmt.Fprintf(w, "Compression Level: %d\n", *p.CompressionLevel)
	} else {
		fmt.Fprintf(w, "Compression:       none\n")
	}
	fmt.Fprintln(w)

	var raw, encoded, onMedia int64
	for _, c := range ix.Chunks {
		raw += c.UncompressedSize
		encoded += c.CompressedSize
		onMedia += c.ShardSize * int64(total)
	}

	fmt.Fprintln(w, "Archive Statistics")
	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintf(w, "Total Files:       %d\n", len(ix.Files))
	fmt.Fprintf(w, "Total Chunks:      %d\n", len(ix.Chunks))
	fmt.Fprintf(w, "Original Size:     %s\n", stats.FormatBytes(raw))
	fmt.Fprintf(w, "Encoded Size:      %s\n", stats.FormatBytes(encoded))
	fmt.Fprintf(w, "Size On Media:     %s\n", stats.FormatBytes(onMedia))
	if raw > 0 {
		fmt.Fprintf(w, "Compression Ratio: %.2f%%\n", float64(encoded)/float64(raw)*100)
	}
	if encoded > 0 {
		fmt.Fprintf(w, "Storage Overhead:  %.2f%%\n", (float64(onMedia)/float64(encoded)-1)*100)
	}

	if len(ix.Chunks) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Chunk Details")
		fmt.Fprintln(w, strings.Repeat("-", 60))
		fmt.Fprintf(w, "%-8s %-14s %-14s %-12s\n", "Chunk", "Raw", "Encoded", "Shard Size")
		for _, c := range ix.Chunks {
			fmt.Fprintf(w, "%-8d %-14s %-14s %-12s\n",
				c.ChunkNumber,
				stats.FormatBytes(c.UncompressedSize),
				stats.FormatBytes(c.CompressedSize),
				stats.FormatBytes(c.ShardSize))
		}
	}
	return nil
}
