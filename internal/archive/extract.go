package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ectar/ectar/internal/compress"
	"github.com/ectar/ectar/internal/event"
	"github.com/ectar/ectar/internal/fec"
	"github.com/ectar/ectar/internal/filter"
	"github.com/ectar/ectar/internal/index"
	"github.com/ectar/ectar/internal/shard"
	"github.com/ectar/ectar/internal/stats"
	"github.com/ectar/ectar/internal/tarstream"
)

// ExtractConfig parameterizes a decode run.
type ExtractConfig struct {
	Input  string // shard glob, directory, or archive basename
	OutDir string

	Files           []string // include patterns; empty extracts everything
	Exclude         []string
	StripComponents int

	// Partial stops cleanly at the first unrecoverable chunk instead of
	// failing, yielding every entry within the surviving prefix.
	Partial bool

	Events chan<- event.Event
	Stats  *stats.Collector
}

// ExtractResult summarizes a decode run.
type ExtractResult struct {
	ChunksTotal     int
	ChunksRecovered int
	FilesExtracted  int
	Emergency       bool // decoded without an index
	Failed          []tarstream.Failure
}

// Extract reconstructs chunks from surviving shards and unpacks the tar
// stream. With an index present the index drives chunk order and
// parameters; without one every parameter is read from the
// self-describing shard headers (emergency decode, no filtering of
// chunk order beyond ascending numbers).
func Extract(ctx context.Context, cfg ExtractConfig) (ExtractResult, error) {
	var res ExtractResult

	chunks, _, err := shard.Discover(cfg.Input)
	if err != nil {
		return res, err
	}

	var ix *index.Index
	if path, found := index.Find(cfg.Input); found {
		ix, err = index.Read(path)
		if err != nil {
			return res, err
		}
		slog.Info("index loaded", "path", path,
			"chunks", len(ix.Chunks), "files", len(ix.Files))
	} else {
		if len(chunks) == 0 {
			return res, fmt.Errorf("no shards found for %q", cfg.Input)
		}
		res.Emergency = true
		slog.Warn("no index file found, extracting from shard headers only")
		if len(cfg.Files) > 0 || len(cfg.Exclude) > 0 {
			slog.Warn("file filters are unavailable without an index, extracting everything")
		}
	}

	plan, err := planDecode(ix, chunks)
	if err != nil {
		return res, err
	}
	res.ChunksTotal = len(plan.order)

	// Strict mode checks recoverability up front so we fail before
	// touching the output directory.
	if !cfg.Partial {
		for _, n := range plan.order {
			cs := chunks[n]
			if cs == nil {
				return res, &fec.InsufficientShardsError{Chunk: n, Have: 0, Need: plan.codec.DataShards()}
			}
			if !cs.Recoverable(plan.codec.DataShards()) {
				return res, &fec.InsufficientShardsError{
					Chunk: n, Have: len(cs.Shards), Need: plan.codec.DataShards(),
				}
			}
		}
	}

	var fchain *filter.Chain
	if !res.Emergency {
		fchain, err = buildChain(cfg.Files, cfg.Exclude)
		if err != nil {
			return res, err
		}
	}
	ex := &tarstream.Extractor{
		OutDir:          cfg.OutDir,
		Filter:          fchain,
		StripComponents: cfg.StripComponents,
		Partial:         cfg.Partial,
		Events:          cfg.Events,
		Stats:           cfg.Stats,
	}

	pr, pw := io.Pipe()

	decodeErr := make(chan error, 1)
	go func() {
		decodeErr <- decodeChunks(ctx, cfg, plan, chunks, pw, &res)
	}()

	tarRes, tarErr := ex.Run(pr)
	// Drain whatever the decoder still has so it can finish cleanly,
	// then surface its verdict.
	io.Copy(io.Discard, pr)
	pr.Close()
	derr := <-decodeErr

	res.FilesExtracted = tarRes.Entries
	res.Failed = tarRes.Failed

	if derr != nil {
		return res, derr
	}
	if tarErr != nil {
		return res, tarErr
	}
	return res, nil
}

type decodePlan struct {
	order []int
	codec *fec.Codec
	comp  compress.Codec
	ix    *index.Index
}

// planDecode fixes the chunk order and coding parameters, from the index
// when present or from shard headers otherwise.
func planDecode(ix *index.Index, chunks map[int]*shard.ChunkSet) (*decodePlan, error) {
	if ix != nil {
		codec, err := fec.NewCodec(ix.Parameters.DataShards, ix.Parameters.ParityShards)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", index.ErrCorrupt, err)
		}
		// Headers must agree with the index, or the index belongs to a
		// different archive.
		for _, n := range ix.ChunkNumbers() {
			cs := chunks[n]
			if cs == nil {
				continue
			}
			k, total, _, err := cs.Consensus()
			if err != nil {
				continue
			}
			if k != ix.Parameters.DataShards || total != ix.Parameters.TotalShards() {
				return nil, fmt.Errorf("%w: shard headers report %d/%d shards, index says %d/%d",
					index.ErrCorrupt, k, total, ix.Parameters.DataShards, ix.Parameters.TotalShards())
			}
			break
		}
		comp, err := compress.ForLevel(levelOf(ix))
		if err != nil {
			return nil, err
		}
		return &decodePlan{order: ix.ChunkNumbers(), codec: codec, comp: comp, ix: ix}, nil
	}

	order := shard.ChunkNumbers(chunks)
	var k, total int
	for _, n := range order {
		var err error
		if k, total, _, err = chunks[n].Consensus(); err == nil {
			break
		}
	}
	if total == 0 {
		return nil, fmt.Errorf("no readable shard headers found")
	}
	codec, err := fec.NewCodec(k, total-k)
	if err != nil {
		return nil, err
	}
	// The codec variant is sniffed off the first decoded chunk.
	return &decodePlan{order: order, codec: codec, comp: nil}, nil
}

func levelOf(ix *index.Index) int {
	if ix.Parameters.CompressionLevel == nil {
		return 0
	}
	return *ix.Parameters.CompressionLevel
}

// decodeChunks reconstructs each chunk in order and streams the
// decompressed bytes into pw. On an unrecoverable chunk it either
// aborts (strict) or closes the stream cleanly (partial).
func decodeChunks(ctx context.Context, cfg ExtractConfig, plan *decodePlan,
	chunks map[int]*shard.ChunkSet, pw *io.PipeWriter, res *ExtractResult) error {
	comp := plan.comp

	finish := func(err error) error {
		if err != nil && cfg.Partial && recoverable(err) {
			slog.Warn("stopping at unrecoverable chunk (partial mode)", "error", err)
			pw.Close()
			return nil
		}
		pw.CloseWithError(err)
		return err
	}

	for _, n := range plan.order {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}

		payload, used, err := decodeOneChunk(plan, chunks, n)
		if err != nil {
			event.Emit(cfg.Events, event.Event{Type: event.ChunkFailed, Chunk: n, Error: err})
			if cfg.Stats != nil {
				cfg.Stats.AddChunksFailed(1)
			}
			return finish(err)
		}

		res.ChunksRecovered++
		event.Emit(cfg.Events, event.Event{
			Type: event.ChunkRecovered, Chunk: n, Size: int64(len(payload)), Shards: used,
		})
		if cfg.Stats != nil {
			cfg.Stats.AddChunksRecovered(1)
		}

		if comp == nil {
			comp = compress.Detect(payload)
		}
		dec, err := comp.NewReader(bytes.NewReader(payload))
		if err != nil {
			return finish(fmt.Errorf("chunk %d: decompression: %w", n, err))
		}
		_, err = io.Copy(pw, dec)
		dec.Close()
		if err != nil {
			if isPipeClosed(err) {
				// Tar side stopped reading (filters satisfied or failure);
				// nothing further to decode.
				return nil
			}
			return finish(fmt.Errorf("chunk %d: decompression: %w", n, err))
		}
	}
	pw.Close()
	return nil
}

// decodeOneChunk loads the surviving shards of chunk n and runs the
// Reed-Solomon decode. It also cross-checks the chunk checksum when the
// index carries one.
func decodeOneChunk(plan *decodePlan, chunks map[int]*shard.ChunkSet, n int) ([]byte, int, error) {
	k := plan.codec.DataShards()

	cs := chunks[n]
	if cs == nil {
		return nil, 0, &fec.InsufficientShardsError{Chunk: n, Have: 0, Need: k}
	}

	var shardSize int64
	var padlen int
	if plan.ix != nil {
		rec := plan.ix.Chunk(n)
		if rec == nil {
			return nil, 0, fmt.Errorf("%w: chunk %d missing from index", index.ErrCorrupt, n)
		}
		shardSize = rec.ShardSize
		padlen = int(shardSize*int64(k) - rec.CompressedSize)
	} else {
		var err error
		if _, _, padlen, err = cs.Consensus(); err != nil {
			return nil, 0, err
		}
		if shardSize, err = cs.ShardSize(); err != nil {
			return nil, 0, err
		}
	}

	loaded, err := cs.Load(plan.codec.TotalShards(), shardSize)
	if err != nil {
		return nil, 0, err
	}
	used := 0
	for _, s := range loaded {
		if s != nil {
			used++
		}
	}

	payload, err := plan.codec.Decode(n, loaded, int(shardSize), padlen)
	if err != nil {
		return nil, 0, err
	}

	if plan.ix != nil {
		if rec := plan.ix.Chunk(n); rec.Checksum != "" && blake3Sum(payload) != rec.Checksum {
			return nil, 0, &fec.CorruptShardError{
				Chunk: n, ShareNum: -1, Reason: "decoded chunk fails checksum",
			}
		}
	}
	return payload, used, nil
}

// recoverable reports whether an error means "this chunk is lost" as
// opposed to an environmental failure; only the former is absorbed by
// partial mode.
func recoverable(err error) bool {
	var ise *fec.InsufficientShardsError
	var cse *fec.CorruptShardError
	return errors.As(err, &ise) || errors.As(err, &cse)
}

func isPipeClosed(err error) bool {
	return errors.Is(err, io.ErrClosedPipe)
}

func buildChain(includes, excludes []string) (*filter.Chain, error) {
	if len(includes) == 0 && len(excludes) == 0 {
		return nil, nil
	}
	ch := filter.NewChain()
	for _, p := range includes {
		if err := ch.AddInclude(p); err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
	}
	for _, p := range excludes {
		if err := ch.AddExclude(p); err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
	}
	return ch, nil
}
