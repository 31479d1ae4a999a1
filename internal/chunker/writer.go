// Package chunker splits the tar byte stream into bounded chunks, each
// compressed independently so a destroyed chunk cannot poison the
// decompression of its neighbors.
package chunker

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ectar/ectar/internal/compress"
)

// SealFunc receives a finished chunk: its 1-based number, the encoded
// (compressed) payload, and the count of raw bytes it represents. The
// payload buffer is owned by the callee after the call returns.
type SealFunc func(chunkNumber int, payload []byte, rawSize int64) error

// Writer is an io.Writer that opens a fresh compressor per chunk and
// seals the chunk once chunkSize raw bytes have been written into it.
// The final, possibly short chunk seals on Close. Empty chunks are never
// sealed. Memory use is bounded by one chunk's compressed payload.
type Writer struct {
	codec     compress.Codec
	chunkSize int64
	seal      SealFunc

	chunkNum int
	raw      int64 // raw bytes in the open chunk
	buf      bytes.Buffer
	enc      io.WriteCloser
}

// NewWriter creates a chunking writer. chunkSize is the raw byte count
// per chunk and must be positive.
func NewWriter(codec compress.Codec, chunkSize int64, seal SealFunc) (*Writer, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunker: chunk size must be positive, got %d", chunkSize)
	}
	return &Writer{codec: codec, chunkSize: chunkSize, seal: seal}, nil
}

// CurrentChunk returns the chunk number the next written byte lands in.
// Chunk numbering starts at 1.
func (w *Writer) CurrentChunk() int {
	if w.enc == nil {
		return w.chunkNum + 1
	}
	return w.chunkNum
}

// LastChunk returns the chunk holding the most recently written byte,
// or 0 before any write. Unlike CurrentChunk it does not advance when a
// chunk seals exactly at its boundary.
func (w *Writer) LastChunk() int {
	return w.chunkNum
}

// Chunks returns the number of chunks sealed so far.
func (w *Writer) Chunks() int {
	if w.enc != nil {
		return w.chunkNum - 1
	}
	return w.chunkNum
}

func (w *Writer) open() error {
	w.chunkNum++
	w.raw = 0
	w.buf.Reset()
	enc, err := w.codec.NewWriter(&w.buf)
	if err != nil {
		return err
	}
	w.enc = enc
	return nil
}

func (w *Writer) sealCurrent() error {
	if err := w.enc.Close(); err != nil {
		return fmt.Errorf("chunker: finish chunk %d: %w", w.chunkNum, err)
	}
	w.enc = nil

	if w.raw == 0 {
		return nil
	}
	payload := append([]byte(nil), w.buf.Bytes()...)
	if err := w.seal(w.chunkNum, payload, w.raw); err != nil {
		return err
	}
	return nil
}

func (w *Writer) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		if w.enc == nil {
			if err := w.open(); err != nil {
				return written, err
			}
		}

		room := w.chunkSize - w.raw
		take := int64(len(p) - written)
		if take > room {
			take = room
		}

		n, err := w.enc.Write(p[written : written+int(take)])
		w.raw += int64(n)
		written += n
		if err != nil {
			return written, err
		}

		if w.raw == w.chunkSize {
			if err := w.sealCurrent(); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

// Close seals the trailing chunk, if any bytes are pending.
func (w *Writer) Close() error {
	if w.enc == nil {
		return nil
	}
	return w.sealCurrent()
}
