package shard

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ectar/ectar/internal/fec"
)

// Sink is one shard's output destination. The file implementation below
// is the only one in the core; a tape-device sink slots in behind the
// same contract once its failure model is settled.
type Sink interface {
	io.Writer
	// Finish flushes and durably closes the sink.
	Finish() error
}

// FileSink writes a shard to a regular file.
type FileSink struct {
	f  *os.File
	bw *bufio.Writer
}

// NewFileSink creates (truncating) the shard file at path.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &FileSink{f: f, bw: bufio.NewWriter(f)}, nil
}

func (s *FileSink) Write(p []byte) (int, error) { return s.bw.Write(p) }

func (s *FileSink) Finish() error {
	if err := s.bw.Flush(); err != nil {
		s.f.Close()
		return err
	}
	if err := s.f.Sync(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}

// WriteChunk writes the k+m shards of one chunk, each as header+payload,
// fanning out one writer goroutine per shard. It returns only after every
// shard is durably flushed, so a crash truncates the archive at a chunk
// boundary rather than interleaving partial chunks.
func WriteChunk(base string, chunkNum, dataShards int, shards [][]byte, padlen int) error {
	total := len(shards)
	errs := make([]error, total)

	var wg sync.WaitGroup
	for i, payload := range shards {
		wg.Add(1)
		go func(share int, payload []byte) {
			defer wg.Done()
			errs[share] = writeOne(base, chunkNum, dataShards, total, share, padlen, payload)
		}(i, payload)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("chunk %d: %w", chunkNum, err)
	}
	return nil
}

func writeOne(base string, chunkNum, dataShards, total, share, padlen int, payload []byte) error {
	h, err := fec.NewHeader(dataShards, total, share, padlen)
	if err != nil {
		return err
	}

	sink, err := NewFileSink(FileName(base, chunkNum, share))
	if err != nil {
		return err
	}
	if _, err := sink.Write(h.Encode()); err != nil {
		sink.Finish()
		return err
	}
	if _, err := sink.Write(payload); err != nil {
		sink.Finish()
		return err
	}
	return sink.Finish()
}
