// Package stats tracks pipeline counters using lock-free atomics. One
// collector is shared between the archive engine (writers) and the CLI
// presenter (reader).
package stats

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Collector accumulates archive operation statistics.
type Collector struct {
	filesAdded      atomic.Int64
	bytesRead       atomic.Int64
	bytesEncoded    atomic.Int64 // compressed chunk payload bytes
	bytesShards     atomic.Int64 // shard bytes on media, parity included
	chunksSealed    atomic.Int64
	chunksRecovered atomic.Int64
	chunksFailed    atomic.Int64
	filesExtracted  atomic.Int64
	filesFailed     atomic.Int64

	filesTotal atomic.Int64
	bytesTotal atomic.Int64

	startTime time.Time
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// SetTotals records scan totals (called once when the walk completes).
func (c *Collector) SetTotals(files, bytes int64) {
	c.filesTotal.Store(files)
	c.bytesTotal.Store(bytes)
}

func (c *Collector) AddFilesAdded(n int64)      { c.filesAdded.Add(n) }
func (c *Collector) AddBytesRead(n int64)       { c.bytesRead.Add(n) }
func (c *Collector) AddBytesEncoded(n int64)    { c.bytesEncoded.Add(n) }
func (c *Collector) AddBytesShards(n int64)     { c.bytesShards.Add(n) }
func (c *Collector) AddChunksSealed(n int64)    { c.chunksSealed.Add(n) }
func (c *Collector) AddChunksRecovered(n int64) { c.chunksRecovered.Add(n) }
func (c *Collector) AddChunksFailed(n int64)    { c.chunksFailed.Add(n) }
func (c *Collector) AddFilesExtracted(n int64)  { c.filesExtracted.Add(n) }
func (c *Collector) AddFilesFailed(n int64)     { c.filesFailed.Add(n) }

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	FilesAdded      int64
	BytesRead       int64
	BytesEncoded    int64
	BytesShards     int64
	ChunksSealed    int64
	ChunksRecovered int64
	ChunksFailed    int64
	FilesExtracted  int64
	FilesFailed     int64
	FilesTotal      int64
	BytesTotal      int64
	Elapsed         time.Duration
}

// Snapshot returns a consistent point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		FilesAdded:      c.filesAdded.Load(),
		BytesRead:       c.bytesRead.Load(),
		BytesEncoded:    c.bytesEncoded.Load(),
		BytesShards:     c.bytesShards.Load(),
		ChunksSealed:    c.chunksSealed.Load(),
		ChunksRecovered: c.chunksRecovered.Load(),
		ChunksFailed:    c.chunksFailed.Load(),
		FilesExtracted:  c.filesExtracted.Load(),
		FilesFailed:     c.filesFailed.Load(),
		FilesTotal:      c.filesTotal.Load(),
		BytesTotal:      c.bytesTotal.Load(),
		Elapsed:         c.Elapsed(),
	}
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.startTime)
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"files=%d bytes=%d encoded=%d chunks=%d recovered=%d failed=%d",
		s.FilesAdded, s.BytesRead, s.BytesEncoded,
		s.ChunksSealed, s.ChunksRecovered, s.ChunksFailed,
	)
}

// FormatBytes returns a human-readable byte count.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
