package shard

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/ectar/ectar/internal/fec"
)

// File is one discovered shard file. Only the name and the 2-4 byte
// header are read during discovery; the payload stays on disk until a
// chunk is actually decoded.
type File struct {
	Path        string
	Base        string
	Chunk       int
	Share       int
	Header      fec.Header
	HeaderLen   int
	PayloadSize int64
}

// ChunkSet groups the discovered shards of a single chunk by share
// number.
type ChunkSet struct {
	Chunk  int
	Shards map[int]*File
}

// Recoverable reports whether at least `need` shards are present.
func (cs *ChunkSet) Recoverable(need int) bool { return len(cs.Shards) >= need }

// Consensus returns the (required, total, padlen) agreed by the shard
// headers, dropping shards that disagree with the majority-free first
// reading. An error means no shard carried a parseable header.
func (cs *ChunkSet) Consensus() (required, total, padlen int, err error) {
	shares := make([]int, 0, len(cs.Shards))
	for s := range cs.Shards {
		shares = append(shares, s)
	}
	sort.Ints(shares)
	if len(shares) == 0 {
		return 0, 0, 0, fmt.Errorf("chunk %d: no shards", cs.Chunk)
	}

	ref := cs.Shards[shares[0]].Header
	for _, s := range shares[1:] {
		h := cs.Shards[s].Header
		if h.Required != ref.Required || h.Total != ref.Total || h.PadLen != ref.PadLen {
			slog.Warn("shard header disagrees with chunk, ignoring shard",
				"chunk", cs.Chunk, "share", s)
			delete(cs.Shards, s)
		}
	}
	return ref.Required, ref.Total, ref.PadLen, nil
}

// ShardSize returns the payload size carried by the most shards of the
// chunk, ties going to the larger size, so a truncated shard does not
// poison the vote. It errors only when the chunk has no shards.
func (cs *ChunkSet) ShardSize() (int64, error) {
	counts := map[int64]int{}
	for _, f := range cs.Shards {
		counts[f.PayloadSize]++
	}
	var best int64
	bestN := 0
	for size, n := range counts {
		if n > bestN || (n == bestN && size > best) {
			best, bestN = size, n
		}
	}
	if bestN == 0 {
		return 0, fmt.Errorf("chunk %d: no shards", cs.Chunk)
	}
	return best, nil
}

// Load reads the payloads of the chunk's shards into a sparse slice
// indexed by share number. Shards whose payload length differs from
// shardSize are left nil; unreadable shards likewise, with a warning.
func (cs *ChunkSet) Load(total int, shardSize int64) ([][]byte, error) {
	out := make([][]byte, total)
	for share, f := range cs.Shards {
		if share >= total {
			slog.Warn("share number exceeds total, ignoring", "chunk", cs.Chunk, "share", share)
			continue
		}
		if f.PayloadSize != shardSize {
			slog.Warn("shard payload length mismatch, treating as missing",
				"chunk", cs.Chunk, "share", share, "have", f.PayloadSize, "want", shardSize)
			continue
		}
		payload, err := readPayload(f)
		if err != nil {
			slog.Warn("shard unreadable, treating as missing",
				"chunk", cs.Chunk, "share", share, "error", err)
			continue
		}
		out[share] = payload
	}
	return out, nil
}

func readPayload(f *File) ([]byte, error) {
	r, err := os.Open(f.Path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	if _, err := r.Seek(int64(f.HeaderLen), io.SeekStart); err != nil {
		return nil, err
	}
	payload := make([]byte, f.PayloadSize)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// Discover enumerates shard files matching pattern — a glob, a directory,
// or an archive basename — and groups them by chunk number. Files whose
// names do not parse as shards are skipped; files whose headers are
// invalid are skipped with a warning. The basename of the archive is returned alongside the chunks.
func Discover(pattern string) (map[int]*ChunkSet, string, error) {
	paths, err := expand(pattern)
	if err != nil {
		return nil, "", err
	}

	chunks := map[int]*ChunkSet{}
	base := ""
	for _, path := range paths {
		b, chunk, share, ok := ParseName(filepath.Base(path))
		if !ok {
			continue
		}

		f, err := scanShard(path)
		if err != nil {
			slog.Warn("skipping invalid shard file", "path", path, "error", err)
			continue
		}
		f.Base, f.Chunk, f.Share = b, chunk, share

		if f.Header.ShareNum != share {
			slog.Warn("shard header sharenum disagrees with file name, trusting header",
				"path", path, "name", share, "header", f.Header.ShareNum)
			f.Share = f.Header.ShareNum
		}

		cs := chunks[chunk]
		if cs == nil {
			cs = &ChunkSet{Chunk: chunk, Shards: map[int]*File{}}
			chunks[chunk] = cs
		}
		if prev, dup := cs.Shards[f.Share]; dup {
			slog.Warn("duplicate shard, keeping first", "chunk", chunk, "share", f.Share,
				"kept", prev.Path, "ignored", path)
			continue
		}
		cs.Shards[f.Share] = f
		if base == "" {
			base = b
		}
	}
	return chunks, base, nil
}

// ChunkNumbers returns the discovered chunk numbers in ascending order.
func ChunkNumbers(chunks map[int]*ChunkSet) []int {
	nums := make([]int, 0, len(chunks))
	for n := range chunks {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

func expand(pattern string) ([]string, error) {
	if info, err := os.Stat(pattern); err == nil && info.IsDir() {
		entries, err := os.ReadDir(pattern)
		if err != nil {
			return nil, err
		}
		paths := make([]string, 0, len(entries))
		for _, e := range entries {
			if !e.IsDir() {
				paths = append(paths, filepath.Join(pattern, e.Name()))
			}
		}
		return paths, nil
	}

	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid shard pattern %q: %w", pattern, err)
	}
	if len(paths) == 0 {
		// Not a glob hit: treat the pattern as an archive basename.
		paths, err = filepath.Glob(pattern + ".c*.s*")
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func scanShard(path string) (*File, error) {
	r, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	h, n, err := fec.ReadHeader(r)
	if err != nil {
		return nil, err
	}
	info, err := r.Stat()
	if err != nil {
		return nil, err
	}
	return &File{
		Path:        path,
		Header:      h,
		HeaderLen:   n,
		PayloadSize: info.Size() - int64(n),
	}, nil
}
