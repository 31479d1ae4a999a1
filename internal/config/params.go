// Package config holds archive parameters, their validation, and the
// optional user config file with persistent flag defaults.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ectar/ectar/internal/compress"
)

// Defaults mirror the reference tool.
const (
	DefaultDataShards   = 10
	DefaultParityShards = 5
	DefaultChunkSize    = 1 << 30 // 1 GiB
)

// Params are the erasure and compression knobs of one archive.
type Params struct {
	DataShards       int
	ParityShards     int
	ChunkSize        int64
	CompressionLevel int
	NoCompression    bool
}

// Validate rejects parameter combinations the format cannot express.
func (p Params) Validate() error {
	if p.DataShards < 1 {
		return fmt.Errorf("data shards must be at least 1, got %d", p.DataShards)
	}
	if p.ParityShards < 1 {
		return fmt.Errorf("parity shards must be at least 1, got %d", p.ParityShards)
	}
	if total := p.DataShards + p.ParityShards; total > 256 {
		return fmt.Errorf("total shards (data + parity) cannot exceed 256, got %d", total)
	}
	if p.ChunkSize < 1 {
		return fmt.Errorf("chunk size must be positive, got %d", p.ChunkSize)
	}
	if !p.NoCompression {
		if err := compress.ValidateLevel(p.CompressionLevel); err != nil {
			return err
		}
	}
	return nil
}

// Level returns the effective compression level: 0 when compression is
// off, which selects the identity codec.
func (p Params) Level() int {
	if p.NoCompression {
		return 0
	}
	return p.CompressionLevel
}

// ParseSize parses a human-readable byte size such as "1GB" or "100 MB".
// Bare numbers are bytes; units are powers of 1024.
func ParseSize(s string) (int64, error) {
	in := strings.ToUpper(strings.TrimSpace(s))

	mult := int64(1)
	switch {
	case strings.HasSuffix(in, "TB"):
		in, mult = in[:len(in)-2], 1<<40
	case strings.HasSuffix(in, "GB"):
		in, mult = in[:len(in)-2], 1<<30
	case strings.HasSuffix(in, "MB"):
		in, mult = in[:len(in)-2], 1<<20
	case strings.HasSuffix(in, "KB"):
		in, mult = in[:len(in)-2], 1<<10
	case strings.HasSuffix(in, "B"):
		in = in[:len(in)-1]
	}

	n, err := strconv.ParseInt(strings.TrimSpace(in), 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid byte size %q", s)
	}
	return n * mult, nil
}
