package ui

import (
	"fmt"
	"io"

	"github.com/ectar/ectar/internal/event"
	"github.com/ectar/ectar/internal/stats"
)

// Presenter consumes pipeline events and renders progress.
type Presenter interface {
	// Run processes events until the channel closes.
	Run(events <-chan event.Event) error
	// Summary returns the final one-block summary for stderr.
	Summary() string
}

// Config configures the plain presenter.
type Config struct {
	Writer  io.Writer
	Verbose bool
	Quiet   bool
	Stats   *stats.Collector
}

// NewPresenter returns the line-per-event presenter. Verbose prints one
// line per file; default prints chunk-level progress; quiet prints
// nothing but still drains events.
func NewPresenter(cfg Config) Presenter {
	return &plainPresenter{cfg: cfg}
}

type plainPresenter struct {
	cfg Config
}

func (p *plainPresenter) Run(events <-chan event.Event) error {
	for ev := range events {
		p.handle(ev)
	}
	return nil
}

func (p *plainPresenter) handle(ev event.Event) {
	if p.cfg.Quiet {
		return
	}
	w := p.cfg.Writer
	switch ev.Type {
	case event.ScanComplete:
		if p.cfg.Stats != nil {
			p.cfg.Stats.SetTotals(ev.Total, ev.TotalSize)
		}
		fmt.Fprintf(w, "scanned %s files, %s\n", FormatCount(ev.Total), FormatBytes(ev.TotalSize))
	case event.FileAdded:
		if p.cfg.Verbose {
			fmt.Fprintf(w, "add %s  %s\n", ev.Path, FormatBytes(ev.Size))
		}
	case event.ShardsWritten:
		fmt.Fprintf(w, "chunk %d sealed: %d shards, %s payload\n", ev.Chunk, ev.Shards, FormatBytes(ev.Size))
	case event.ChunkRecovered:
		fmt.Fprintf(w, "chunk %d recovered (%d shards used)\n", ev.Chunk, ev.Shards)
	case event.ChunkFailed:
		msg := "unrecoverable"
		if ev.Error != nil {
			msg = ev.Error.Error()
		}
		fmt.Fprintf(w, "chunk %d FAILED: %s\n", ev.Chunk, msg)
	case event.FileExtracted:
		if p.cfg.Verbose {
			fmt.Fprintf(w, "extract %s  %s\n", ev.Path, FormatBytes(ev.Size))
		}
	case event.FileFailed:
		msg := "error"
		if ev.Error != nil {
			msg = ev.Error.Error()
		}
		fmt.Fprintf(w, "FAILED %s: %s\n", ev.Path, msg)
	case event.VerifyChunkFail:
		fmt.Fprintf(w, "chunk %d verification FAILED\n", ev.Chunk)
	}
}

func (p *plainPresenter) Summary() string {
	if p.cfg.Stats == nil {
		return ""
	}
	s := p.cfg.Stats.Snapshot()
	if s.ChunksSealed > 0 {
		return fmt.Sprintf("%s files, %s raw -> %s encoded in %d chunks (%s shards on media), %s",
			FormatCount(s.FilesAdded), FormatBytes(s.BytesRead), FormatBytes(s.BytesEncoded),
			s.ChunksSealed, FormatBytes(s.BytesShards), FormatDuration(s.Elapsed))
	}
	if s.ChunksRecovered > 0 || s.ChunksFailed > 0 {
		line := fmt.Sprintf("chunks recovered: %d/%d, %s files extracted, %s",
			s.ChunksRecovered, s.ChunksRecovered+s.ChunksFailed,
			FormatCount(s.FilesExtracted), FormatDuration(s.Elapsed))
		if s.FilesFailed > 0 {
			line += fmt.Sprintf(" (%d entries failed)", s.FilesFailed)
		}
		return line
	}
	return ""
}
