package fec

import (
	"fmt"

	"github.com/klauspost/reedsolomon"
)

// InsufficientShardsError reports a chunk that cannot be reconstructed
// because fewer than k shards survive.
type InsufficientShardsError struct {
	Chunk int
	Have  int
	Need  int
}

func (e *InsufficientShardsError) Error() string {
	return fmt.Sprintf("chunk %d: insufficient shards (have %d, need %d)", e.Chunk, e.Have, e.Need)
}

// CorruptShardError reports a chunk whose shards did not decode to a
// usable payload: reconstruction failed, or the decoded chunk failed its
// checksum. ShareNum is -1 when no single shard is identified. Shards of
// the wrong length never cause it; Decode drops them as absent. The
// decode is not retried with a different subset of shards.
type CorruptShardError struct {
	Chunk    int
	ShareNum int
	Reason   string
}

func (e *CorruptShardError) Error() string {
	return fmt.Sprintf("chunk %d shard %d: %s", e.Chunk, e.ShareNum, e.Reason)
}

// Codec Reed-Solomon encodes chunk buffers into data+parity shards and
// reconstructs chunks from any k surviving shards. The generator matrix is
// the zfec convention, so shards written here decode under zunfec and vice
// versa.
type Codec struct {
	dataShards   int
	parityShards int
	enc          reedsolomon.Encoder
}

// NewCodec validates (k, m) and builds the coder.
func NewCodec(dataShards, parityShards int) (*Codec, error) {
	if dataShards < 1 || parityShards < 1 {
		return nil, fmt.Errorf("fec: data and parity shard counts must be at least 1")
	}
	if dataShards+parityShards > 256 {
		return nil, fmt.Errorf("fec: total shards %d exceeds 256", dataShards+parityShards)
	}

	parity, err := parityMatrix(dataShards, dataShards+parityShards)
	if err != nil {
		return nil, err
	}
	enc, err := reedsolomon.New(dataShards, parityShards, reedsolomon.WithCustomMatrix(parity))
	if err != nil {
		return nil, fmt.Errorf("fec: %w", err)
	}
	return &Codec{dataShards: dataShards, parityShards: parityShards, enc: enc}, nil
}

func (c *Codec) DataShards() int   { return c.dataShards }
func (c *Codec) ParityShards() int { return c.parityShards }
func (c *Codec) TotalShards() int  { return c.dataShards + c.parityShards }

// ShardSize returns the per-shard payload length for a chunk of n bytes.
func (c *Codec) ShardSize(n int) int {
	return (n + c.dataShards - 1) / c.dataShards
}

// Encode splits chunk into k data shards of ceil(len/k) bytes (the tail
// zero-padded by padlen bytes) and computes m parity shards. Returns the k+m shard
// payloads and the pad length.
func (c *Codec) Encode(chunk []byte) ([][]byte, int, error) {
	if len(chunk) == 0 {
		return nil, 0, fmt.Errorf("fec: refusing to encode empty chunk")
	}

	shardSize := c.ShardSize(len(chunk))
	padlen := shardSize*c.dataShards - len(chunk)

	shards := make([][]byte, c.TotalShards())
	for i := range shards {
		shards[i] = make([]byte, shardSize)
	}
	for i := range c.dataShards {
		lo := i * shardSize
		if lo >= len(chunk) {
			break
		}
		copy(shards[i], chunk[lo:])
	}

	if err := c.enc.Encode(shards); err != nil {
		return nil, 0, fmt.Errorf("fec: encode: %w", err)
	}
	return shards, padlen, nil
}

// Decode reconstructs the chunk payload from a sparse shard slice indexed
// by sharenum (nil entries are missing). Shards whose length differs from
// shardSize are dropped as corrupt; if at least k usable shards remain the
// chunk is rebuilt, the data shards concatenated, and padlen trailing zero
// bytes stripped. chunkNum is used only for error context.
func (c *Codec) Decode(chunkNum int, shards [][]byte, shardSize, padlen int) ([]byte, error) {
	if len(shards) != c.TotalShards() {
		return nil, fmt.Errorf("fec: shard slice has %d entries, want %d", len(shards), c.TotalShards())
	}
	if padlen < 0 || padlen >= c.dataShards {
		return nil, fmt.Errorf("fec: padlen %d out of range [0,%d)", padlen, c.dataShards)
	}

	work := make([][]byte, len(shards))
	have := 0
	for i, s := range shards {
		if s == nil {
			continue
		}
		if len(s) != shardSize {
			// Treated as absent; reconstruction proceeds from the rest.
			continue
		}
		work[i] = s
		have++
	}
	if have < c.dataShards {
		return nil, &InsufficientShardsError{Chunk: chunkNum, Have: have, Need: c.dataShards}
	}

	if err := c.enc.ReconstructData(work); err != nil {
		return nil, &CorruptShardError{Chunk: chunkNum, ShareNum: -1, Reason: fmt.Sprintf("reconstruction failed: %v", err)}
	}

	out := make([]byte, 0, shardSize*c.dataShards)
	for i := range c.dataShards {
		out = append(out, work[i]...)
	}
	return out[:len(out)-padlen], nil
}
