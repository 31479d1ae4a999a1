package ui

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ectar/ectar/internal/event"
	"github.com/ectar/ectar/internal/stats"
)

func TestFormatCount(t *testing.T) {
	assert.Equal(t, "0", FormatCount(0))
	assert.Equal(t, "999", FormatCount(999))
	assert.Equal(t, "1,000", FormatCount(1000))
	assert.Equal(t, "1,234,567", FormatCount(1234567))
	assert.Equal(t, "-1,234", FormatCount(-1234))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "5s", FormatDuration(5*time.Second))
	assert.Equal(t, "2m 03s", FormatDuration(123*time.Second))
	assert.Equal(t, "1h 01m 05s", FormatDuration(3665*time.Second))
}

func TestFormatRatio(t *testing.T) {
	assert.Equal(t, "50.0%", FormatRatio(1, 2))
	assert.Equal(t, "--", FormatRatio(1, 0))
}

func TestPlainPresenterChunkLines(t *testing.T) {
	var buf bytes.Buffer
	col := stats.NewCollector()
	p := NewPresenter(Config{Writer: &buf, Stats: col})

	events := make(chan event.Event, 4)
	events <- event.Event{Type: event.ShardsWritten, Chunk: 1, Shards: 9, Size: 1024}
	events <- event.Event{Type: event.ChunkFailed, Chunk: 2}
	close(events)

	assert.NoError(t, p.Run(events))
	out := buf.String()
	assert.Contains(t, out, "chunk 1 sealed: 9 shards")
	assert.Contains(t, out, "chunk 2 FAILED")
}

func TestPlainPresenterQuiet(t *testing.T) {
	var buf bytes.Buffer
	p := NewPresenter(Config{Writer: &buf, Quiet: true})

	events := make(chan event.Event, 1)
	events <- event.Event{Type: event.ShardsWritten, Chunk: 1}
	close(events)

	assert.NoError(t, p.Run(events))
	assert.Empty(t, buf.String())
}

func TestPresenterSummaryCreate(t *testing.T) {
	col := stats.NewCollector()
	col.AddFilesAdded(3)
	col.AddBytesRead(4096)
	col.AddBytesEncoded(1024)
	col.AddChunksSealed(2)
	p := NewPresenter(Config{Writer: &bytes.Buffer{}, Stats: col})

	s := p.Summary()
	assert.Contains(t, s, "3 files")
	assert.Contains(t, s, "2 chunks")
}

func TestPresenterSummaryExtract(t *testing.T) {
	col := stats.NewCollector()
	col.AddChunksRecovered(5)
	col.AddChunksFailed(1)
	col.AddFilesExtracted(40)
	p := NewPresenter(Config{Writer: &bytes.Buffer{}, Stats: col})

	assert.Contains(t, p.Summary(), "chunks recovered: 5/6")
}
