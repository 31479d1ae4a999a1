package archive

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/ectar/ectar/internal/filter"
	"github.com/ectar/ectar/internal/index"
	"github.com/ectar/ectar/internal/stats"
)

// ListFormat selects the list output rendering.
type ListFormat string

const (
	FormatText ListFormat = "text"
	FormatJSON ListFormat = "json"
	FormatCSV  ListFormat = "csv"
)

// ParseListFormat validates a --format value.
func ParseListFormat(s string) (ListFormat, error) {
	switch ListFormat(s) {
	case FormatText, FormatJSON, FormatCSV:
		return ListFormat(s), nil
	default:
		return "", fmt.Errorf("invalid output format %q (use text, json, or csv)", s)
	}
}

// ListConfig parameterizes a listing.
type ListConfig struct {
	Input   string
	Pattern string // include pattern; empty lists everything
	Long    bool
	Format  ListFormat
	Out     io.Writer
}

// List prints the archive's file table from the index.
func List(cfg ListConfig) error {
	path, found := index.Find(cfg.Input)
	if !found {
		return fmt.Errorf("no index file for %q (list requires the index)", cfg.Input)
	}
	ix, err := index.Read(path)
	if err != nil {
		return err
	}

	files := ix.Files
	if cfg.Pattern != "" {
		ch := filter.NewChain()
		if err := ch.AddInclude(cfg.Pattern); err != nil {
			return fmt.Errorf("pattern %q: %w", cfg.Pattern, err)
		}
		kept := files[:0:0]
		for _, f := range files {
			if ch.Match(f.Path, f.EntryType == index.TypeDirectory) {
				kept = append(kept, f)
			}
		}
		files = kept
	}

	switch cfg.Format {
	case FormatJSON:
		enc := json.NewEncoder(cfg.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(files)
	case FormatCSV:
		return listCSV(cfg.Out, files)
	default:
		return listText(cfg.Out, ix, files, cfg.Long)
	}
}

func listText(w io.Writer, ix *index.Index, files []index.FileRecord, long bool) error {
	if !long {
		for _, f := range files {
			fmt.Fprintln(w, f.Path)
		}
		return nil
	}

	fmt.Fprintf(w, "Archive: %s\n", ix.ArchiveName)
	fmt.Fprintf(w, "Created: %s\n", ix.Created.Format(time.RFC3339))
	fmt.Fprintf(w, "Files: %d\n\n", len(files))
	fmt.Fprintf(w, "%-10s %-10s %-8s %-7s %s\n", "Type", "Size", "Chunk", "Mode", "Path")

	for _, f := range files {
		chunk := strconv.Itoa(f.Chunk)
		if len(f.SpansChunks) > 1 {
			chunk = fmt.Sprintf("%d-%d", f.SpansChunks[0], f.SpansChunks[len(f.SpansChunks)-1])
		}
		fmt.Fprintf(w, "%-10s %-10s %-8s %-7s %s\n",
			string(f.EntryType), stats.FormatBytes(f.Size), chunk,
			fmt.Sprintf("%04o", f.Mode), f.Path)
	}
	return nil
}

func listCSV(w io.Writer, files []index.FileRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"path", "type", "size", "chunk", "mode", "mtime", "checksum"}); err != nil {
		return err
	}
	for _, f := range files {
		rec := []string{
			f.Path,
			string(f.EntryType),
			strconv.FormatInt(f.Size, 10),
			strconv.Itoa(f.Chunk),
			fmt.Sprintf("%04o", f.Mode),
			f.Mtime.Format(time.RFC3339),
			f.Checksum,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
