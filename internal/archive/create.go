// Package archive composes the pipeline: tar stream -> chunker (each
// chunk compressed on its own) -> shard codec -> shard files + index,
// and its inverse. One
// chunk is in flight at a time; memory stays bounded by a single chunk
// plus its shards.
package archive

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/zeebo/blake3"

	"github.com/ectar/ectar/internal/chunker"
	"github.com/ectar/ectar/internal/compress"
	"github.com/ectar/ectar/internal/config"
	"github.com/ectar/ectar/internal/event"
	"github.com/ectar/ectar/internal/fec"
	"github.com/ectar/ectar/internal/index"
	"github.com/ectar/ectar/internal/shard"
	"github.com/ectar/ectar/internal/stats"
	"github.com/ectar/ectar/internal/tarstream"
)

// ToolVersion is stamped into every index; overridden at link time.
var ToolVersion = "dev"

// CreateConfig parameterizes an encode run.
type CreateConfig struct {
	Output string // archive basename; shard files and index land beside it
	Paths  []string
	Params config.Params

	Exclude        []string
	FollowSymlinks bool
	NoIndex        bool

	Events chan<- event.Event
	Stats  *stats.Collector
}

// CreateResult summarizes a successful encode.
type CreateResult struct {
	Files      int
	Chunks     int
	TotalBytes int64 // raw tar payload bytes
	ShardBytes int64 // bytes on media across all shards
}

// Create archives cfg.Paths into shard files plus an index.
// Cancellation is honored at chunk boundaries: shards already written
// remain valid, and the archive stays usable via emergency decode.
func Create(ctx context.Context, cfg CreateConfig) (CreateResult, error) {
	var res CreateResult
	if cfg.Output == "" {
		return res, fmt.Errorf("archive basename required")
	}
	if len(cfg.Paths) == 0 {
		return res, fmt.Errorf("no input paths")
	}
	if err := cfg.Params.Validate(); err != nil {
		return res, err
	}

	codec, err := fec.NewCodec(cfg.Params.DataShards, cfg.Params.ParityShards)
	if err != nil {
		return res, err
	}
	comp, err := compress.ForLevel(cfg.Params.Level())
	if err != nil {
		return res, err
	}

	var chunks []index.ChunkRecord
	seal := func(chunkNum int, payload []byte, rawSize int64) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		shards, padlen, err := codec.Encode(payload)
		if err != nil {
			return err
		}
		if err := shard.WriteChunk(cfg.Output, chunkNum, codec.DataShards(), shards, padlen); err != nil {
			return err
		}

		sum := blake3Sum(payload)
		chunks = append(chunks, index.ChunkRecord{
			ChunkNumber:      chunkNum,
			CompressedSize:   int64(len(payload)),
			UncompressedSize: rawSize,
			ShardSize:        int64(len(shards[0])),
			Checksum:         sum,
		})

		shardBytes := int64(len(shards[0])) * int64(len(shards))
		res.ShardBytes += shardBytes
		if cfg.Stats != nil {
			cfg.Stats.AddChunksSealed(1)
			cfg.Stats.AddBytesEncoded(int64(len(payload)))
			cfg.Stats.AddBytesShards(shardBytes)
		}
		event.Emit(cfg.Events, event.Event{
			Type: event.ShardsWritten, Chunk: chunkNum,
			Size: int64(len(payload)), Shards: len(shards),
		})
		slog.Debug("chunk sealed", "chunk", chunkNum,
			"compressed", len(payload), "raw", rawSize, "shard_size", len(shards[0]))
		return nil
	}

	cw, err := chunker.NewWriter(comp, cfg.Params.ChunkSize, seal)
	if err != nil {
		return res, err
	}

	builder, err := tarstream.NewBuilder(cw, tarstream.BuilderOptions{
		CurrentChunk:   cw.CurrentChunk,
		LastChunk:      cw.LastChunk,
		Exclude:        cfg.Exclude,
		FollowSymlinks: cfg.FollowSymlinks,
		Events:         cfg.Events,
		Stats:          cfg.Stats,
	})
	if err != nil {
		return res, err
	}

	for _, p := range cfg.Paths {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := builder.AddPath(p); err != nil {
			return res, err
		}
	}
	if err := builder.Close(); err != nil {
		return res, err
	}
	if err := cw.Close(); err != nil {
		return res, err
	}

	files := builder.Records()
	res.Files = len(files)
	res.Chunks = len(chunks)
	for _, c := range chunks {
		res.TotalBytes += c.UncompressedSize
	}

	if !cfg.NoIndex {
		level := cfg.Params.CompressionLevel
		params := index.Params{
			DataShards:   cfg.Params.DataShards,
			ParityShards: cfg.Params.ParityShards,
			ChunkSize:    cfg.Params.ChunkSize,
		}
		if !cfg.Params.NoCompression {
			params.CompressionLevel = &level
		}
		ix := &index.Index{
			Version:     index.FormatVersion,
			Created:     time.Now().UTC(),
			ToolVersion: ToolVersion,
			ArchiveName: cfg.Output,
			Parameters:  params,
			Chunks:      chunks,
			Files:       files,
		}
		if err := ix.Write(index.Path(cfg.Output)); err != nil {
			return res, fmt.Errorf("write index: %w", err)
		}
		event.Emit(cfg.Events, event.Event{Type: event.IndexWritten})
	}

	return res, nil
}

func blake3Sum(b []byte) string {
	h := blake3.New()
	h.Write(b)
	return "blake3:" + hex.EncodeToString(h.Sum(nil))
}
