// Package compress wraps the streaming codec applied to chunk payloads.
// Two variants exist: zstd at a caller-chosen level, and an identity
// pass-through for --no-compression. Both present plain byte pipes; the
// pipeline never branches on which one it holds.
package compress

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Zstd level bounds, matching the reference zstd tool.
const (
	MinLevel     = 1
	MaxLevel     = 22
	DefaultLevel = 3

	// IndexLevel is the fixed level for the archive index, chosen for
	// maximum compression: the index is written once and tiny relative
	// to payload.
	IndexLevel = 19
)

// Codec is a streaming byte-pipe pair.
type Codec interface {
	// NewWriter wraps w; bytes written to the result are encoded into w.
	// The returned writer must be closed to flush the final frame.
	NewWriter(w io.Writer) (io.WriteCloser, error)
	// NewReader wraps r to decode its stream.
	NewReader(r io.Reader) (io.ReadCloser, error)
	// Level reports the compression level, or 0 for the identity codec.
	Level() int
}

// ValidateLevel checks a zstd level.
func ValidateLevel(level int) error {
	if level < MinLevel || level > MaxLevel {
		return fmt.Errorf("compression level must be between %d and %d, got %d", MinLevel, MaxLevel, level)
	}
	return nil
}

// ForLevel returns the zstd codec at the given level, or the identity
// codec when level is 0.
func ForLevel(level int) (Codec, error) {
	if level == 0 {
		return Identity{}, nil
	}
	if err := ValidateLevel(level); err != nil {
		return nil, err
	}
	return Zstd{level: level}, nil
}

// Zstd is the zstd streaming codec.
type Zstd struct {
	level int
}

func NewZstd(level int) Zstd { return Zstd{level: level} }

func (z Zstd) Level() int { return z.level }

func (z Zstd) NewWriter(w io.Writer) (io.WriteCloser, error) {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(z.level)))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	return enc, nil
}

func (z Zstd) NewReader(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return dec.IOReadCloser(), nil
}

// Identity passes bytes through untouched.
type Identity struct{}

func (Identity) Level() int { return 0 }

func (Identity) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{w}, nil
}

func (Identity) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// zstd frame magic, little-endian on the wire.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Detect sniffs a decoded chunk payload and returns the codec that can
// read it. Emergency decode uses this when no index records the level.
func Detect(payload []byte) Codec {
	if bytes.HasPrefix(payload, zstdMagic) {
		return Zstd{level: DefaultLevel}
	}
	return Identity{}
}
