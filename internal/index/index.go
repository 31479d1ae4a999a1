// Package index defines the archive index: a zstd-compressed JSON
// document listing chunks and files. The index is authoritative for
// listing and filtering, but recovery never depends on it — every chunk
// decodes from shard headers alone.
package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ectar/ectar/internal/compress"
)

// FormatVersion is the index schema version.
const FormatVersion = "1.0"

// Ext is the index file suffix appended to the archive basename.
const Ext = ".index.zst"

// ErrCorrupt marks an index that exists but cannot be parsed, or whose
// parameters contradict the discovered shards.
var ErrCorrupt = errors.New("corrupt archive index")

// EntryType classifies a file record.
type EntryType string

const (
	TypeFile      EntryType = "file"
	TypeDirectory EntryType = "directory"
	TypeSymlink   EntryType = "symlink"
	TypeHardlink  EntryType = "hardlink"
	TypeOther     EntryType = "other"
)

// Params records the erasure and compression configuration of the
// archive. CompressionLevel is null for uncompressed archives.
type Params struct {
	DataShards       int   `json:"data_shards"`
	ParityShards     int   `json:"parity_shards"`
	ChunkSize        int64 `json:"chunk_size"`
	CompressionLevel *int  `json:"compression_level"`
}

// ChunkRecord describes one chunk. CompressedSize is the erasure payload
// length before zero-padding; UncompressedSize the raw tar bytes the
// chunk carries; ShardSize the uniform per-shard payload length.
type ChunkRecord struct {
	ChunkNumber      int    `json:"chunk_number"`
	CompressedSize   int64  `json:"compressed_size"`
	UncompressedSize int64  `json:"uncompressed_size"`
	ShardSize        int64  `json:"shard_size"`
	Checksum         string `json:"checksum,omitempty"`
}

// FileRecord describes one archived entry. Offset is informational and
// written as zero ("unknown"); extraction streams the tar sequentially.
type FileRecord struct {
	Path        string    `json:"path"`
	Chunk       int       `json:"chunk"`
	Offset      int64     `json:"offset"`
	Size        int64     `json:"size"`
	Checksum    string    `json:"checksum,omitempty"`
	Mode        uint32    `json:"mode"`
	Mtime       time.Time `json:"mtime"`
	UID         *int64    `json:"uid,omitempty"`
	GID         *int64    `json:"gid,omitempty"`
	EntryType   EntryType `json:"entry_type"`
	Target      string    `json:"target,omitempty"`
	SpansChunks []int     `json:"spans_chunks,omitempty"`
}

// Index is the archive's global metadata document.
type Index struct {
	Version     string        `json:"version"`
	Created     time.Time     `json:"created"`
	ToolVersion string        `json:"tool_version"`
	ArchiveName string        `json:"archive_name"`
	Parameters  Params        `json:"parameters"`
	Chunks      []ChunkRecord `json:"chunks"`
	Files       []FileRecord  `json:"files"`
}

// TotalShards returns data+parity shard count.
func (p Params) TotalShards() int { return p.DataShards + p.ParityShards }

// Path returns the index file path for an archive basename.
func Path(base string) string { return base + Ext }

// Find derives the index path from a shard glob or basename and reports
// whether it exists on disk. For a directory it returns the index file
// inside it when there is exactly one.
func Find(pattern string) (string, bool) {
	if info, err := os.Stat(pattern); err == nil && info.IsDir() {
		if matches, _ := filepath.Glob(filepath.Join(pattern, "*"+Ext)); len(matches) == 1 {
			return matches[0], true
		}
	}
	base := pattern
	base = strings.ReplaceAll(base, ".c*", "")
	base = strings.ReplaceAll(base, ".s*", "")
	base = strings.ReplaceAll(base, "*", "")
	p := Path(base)
	if _, err := os.Stat(p); err == nil {
		return p, true
	}
	return p, false
}

// Write serializes the index as indented JSON and writes it compressed
// at the fixed index level. The index is always zstd-compressed, even
// for --no-compression archives: it is small and its codec is part of
// the file name.
func (ix *Index) Write(path string) error {
	doc, err := json.MarshalIndent(ix, "", "  ")
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w, err := compress.NewZstd(compress.IndexLevel).NewWriter(f)
	if err != nil {
		f.Close()
		return err
	}
	if _, err := w.Write(doc); err != nil {
		w.Close()
		f.Close()
		return err
	}
	if err := w.Close(); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Read parses an index file. Unknown JSON fields are ignored; missing
// optional fields default to zero values. Invalid JSON or an unreadable
// zstd stream reports ErrCorrupt.
func Read(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := compress.NewZstd(compress.IndexLevel).NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer r.Close()

	doc, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	var ix Index
	if err := json.Unmarshal(doc, &ix); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if ix.Parameters.DataShards < 1 || ix.Parameters.ParityShards < 1 {
		return nil, fmt.Errorf("%w: invalid erasure parameters %d+%d",
			ErrCorrupt, ix.Parameters.DataShards, ix.Parameters.ParityShards)
	}
	return &ix, nil
}

// ChunkNumbers returns the chunk numbers present in the index, in index
// order. Damaged archives may have gaps; iteration must follow this
// list, not 1..N.
func (ix *Index) ChunkNumbers() []int {
	nums := make([]int, len(ix.Chunks))
	for i, c := range ix.Chunks {
		nums[i] = c.ChunkNumber
	}
	return nums
}

// Chunk returns the record for a chunk number, or nil.
func (ix *Index) Chunk(n int) *ChunkRecord {
	for i := range ix.Chunks {
		if ix.Chunks[i].ChunkNumber == n {
			return &ix.Chunks[i]
		}
	}
	return nil
}
