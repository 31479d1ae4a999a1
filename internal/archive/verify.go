package archive

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ectar/ectar/internal/compress"
	"github.com/ectar/ectar/internal/event"
	"github.com/ectar/ectar/internal/fec"
	"github.com/ectar/ectar/internal/index"
	"github.com/ectar/ectar/internal/shard"
)

// VerifyStatus is the overall archive health verdict.
type VerifyStatus string

const (
	StatusHealthy  VerifyStatus = "healthy"  // all shards present
	StatusDegraded VerifyStatus = "degraded" // shards missing, all chunks recoverable
	StatusFailed   VerifyStatus = "failed"   // at least one chunk lost
)

// VerifyConfig parameterizes a verification pass.
type VerifyConfig struct {
	Input string
	// Full decodes every chunk and checks chunk and file checksums;
	// without it only the shard census runs.
	Full bool
	// ReportPath, when set, receives the report as JSON.
	ReportPath string

	Events chan<- event.Event
}

// ChunkDetail is one chunk's row in the verification report.
type ChunkDetail struct {
	ChunkNumber     int   `json:"chunk_number"`
	ShardsAvailable int   `json:"shards_available"`
	ShardsRequired  int   `json:"shards_required"`
	ShardsExpected  int   `json:"shards_expected"`
	Recoverable     bool  `json:"recoverable"`
	Decoded         bool  `json:"decoded"`
	ChecksumValid   *bool `json:"checksum_valid,omitempty"`
}

// FileDetail records a file whose content checksum failed in full mode.
type FileDetail struct {
	Path     string `json:"path"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// VerifyReport is the complete verification outcome.
type VerifyReport struct {
	ArchiveName    string        `json:"archive_name"`
	Status         VerifyStatus  `json:"status"`
	TotalChunks    int           `json:"total_chunks"`
	ChunksVerified int           `json:"chunks_verified"`
	ChunksFailed   []int         `json:"chunks_failed,omitempty"`
	Unrecoverable  []int         `json:"chunks_unrecoverable,omitempty"`
	TotalShards    int           `json:"total_shards"`
	MissingShards  int           `json:"missing_shards"`
	Chunks         []ChunkDetail `json:"chunks"`
	FilesChecked   int           `json:"files_checked,omitempty"`
	FileMismatches []FileDetail  `json:"file_mismatches,omitempty"`
}

// Verify checks archive health against its index. Quick mode is a shard
// census; full mode decodes every recoverable chunk, validates chunk
// checksums, and re-hashes file contents out of the tar stream against
// the per-file sha256 records.
func Verify(ctx context.Context, cfg VerifyConfig) (*VerifyReport, error) {
	path, found := index.Find(cfg.Input)
	if !found {
		return nil, fmt.Errorf("no index file for %q (verify requires the index)", cfg.Input)
	}
	ix, err := index.Read(path)
	if err != nil {
		return nil, err
	}

	chunks, _, err := shard.Discover(cfg.Input)
	if err != nil {
		return nil, err
	}

	report := &VerifyReport{
		ArchiveName: ix.ArchiveName,
		Status:      StatusHealthy,
		TotalChunks: len(ix.Chunks),
	}

	codec, err := fec.NewCodec(ix.Parameters.DataShards, ix.Parameters.ParityShards)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", index.ErrCorrupt, err)
	}
	comp, err := compress.ForLevel(levelOf(ix))
	if err != nil {
		return nil, err
	}

	need := ix.Parameters.DataShards
	expected := ix.Parameters.TotalShards()

	// Full mode spools the decoded tar stream to a temp file so memory
	// stays bounded by one chunk.
	var tarSpool *os.File
	if cfg.Full {
		tarSpool, err = os.CreateTemp("", "ectar-verify-*.tar")
		if err != nil {
			return nil, err
		}
		defer os.Remove(tarSpool.Name())
		defer tarSpool.Close()
	}

	for _, rec := range ix.Chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n := rec.ChunkNumber
		have := 0
		if cs := chunks[n]; cs != nil {
			have = len(cs.Shards)
		}

		detail := ChunkDetail{
			ChunkNumber:     n,
			ShardsAvailable: have,
			ShardsRequired:  need,
			ShardsExpected:  expected,
			Recoverable:     have >= need,
		}
		report.TotalShards += expected
		if have < expected {
			report.MissingShards += expected - have
		}

		switch {
		case !detail.Recoverable:
			slog.Error("chunk unrecoverable", "chunk", n, "have", have, "need", need)
			report.Unrecoverable = append(report.Unrecoverable, n)
			report.Status = StatusFailed
		case have < expected:
			slog.Warn("chunk degraded", "chunk", n, "have", have, "expected", expected)
			if report.Status == StatusHealthy {
				report.Status = StatusDegraded
			}
		}

		if cfg.Full && detail.Recoverable {
			plan := &decodePlan{codec: codec, comp: comp, ix: ix}
			payload, _, err := decodeOneChunk(plan, chunks, n)
			detail.Decoded = true
			if err != nil {
				ok := false
				detail.ChecksumValid = &ok
				report.ChunksFailed = append(report.ChunksFailed, n)
				if report.Status == StatusHealthy {
					report.Status = StatusDegraded
				}
				event.Emit(cfg.Events, event.Event{Type: event.VerifyChunkFail, Chunk: n, Error: err})
				slog.Error("chunk verification failed", "chunk", n, "error", err)
			} else {
				ok := true
				detail.ChecksumValid = &ok
				report.ChunksVerified++
				event.Emit(cfg.Events, event.Event{Type: event.VerifyChunkOK, Chunk: n})

				dec, derr := comp.NewReader(bytes.NewReader(payload))
				if derr == nil {
					_, derr = io.Copy(tarSpool, dec)
					dec.Close()
				}
				if derr != nil {
					return nil, fmt.Errorf("chunk %d: decompression: %w", n, derr)
				}
			}
		} else if detail.Recoverable {
			report.ChunksVerified++
		}

		report.Chunks = append(report.Chunks, detail)
	}

	if cfg.Full && report.Status != StatusFailed && len(report.ChunksFailed) == 0 {
		if _, err := tarSpool.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		checked, mismatches, err := verifyFileHashes(ix, tarSpool)
		if err != nil {
			return nil, err
		}
		report.FilesChecked = checked
		report.FileMismatches = mismatches
		if len(mismatches) > 0 && report.Status == StatusHealthy {
			report.Status = StatusDegraded
		}
	}

	if cfg.ReportPath != "" {
		if err := writeReport(report, cfg.ReportPath); err != nil {
			return nil, err
		}
	}
	return report, nil
}

// verifyFileHashes walks the decoded tar stream and compares each regular
// file's sha256 against its index record.
func verifyFileHashes(ix *index.Index, stream io.Reader) (int, []FileDetail, error) {
	want := map[string]string{}
	for _, f := range ix.Files {
		if f.EntryType == index.TypeFile && f.Checksum != "" {
			want[f.Path] = f.Checksum
		}
	}

	var mismatches []FileDetail
	checked := 0

	tr := tar.NewReader(stream)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return checked, mismatches, fmt.Errorf("tar stream: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name, ok := cleanName(hdr.Name)
		if !ok {
			continue
		}
		expected, tracked := want[name]
		h := sha256.New()
		if _, err := io.Copy(h, tr); err != nil {
			return checked, mismatches, fmt.Errorf("tar stream: %w", err)
		}
		if !tracked {
			continue
		}
		checked++
		actual := "sha256:" + hex.EncodeToString(h.Sum(nil))
		if actual != expected {
			mismatches = append(mismatches, FileDetail{Path: name, Expected: expected, Actual: actual})
		}
	}
	return checked, mismatches, nil
}

func cleanName(name string) (string, bool) {
	if len(name) > 1 && name[len(name)-1] == '/' {
		name = name[:len(name)-1]
	}
	if name == "" {
		return "", false
	}
	return name, true
}

func writeReport(report *VerifyReport, path string) error {
	doc, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(doc, '\n'), 0o644)
}
