package stats

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollectorCounters(t *testing.T) {
	c := NewCollector()
	c.AddFilesAdded(3)
	c.AddBytesRead(1000)
	c.AddChunksSealed(2)
	c.AddChunksRecovered(1)
	c.SetTotals(10, 5000)

	s := c.Snapshot()
	assert.Equal(t, int64(3), s.FilesAdded)
	assert.Equal(t, int64(1000), s.BytesRead)
	assert.Equal(t, int64(2), s.ChunksSealed)
	assert.Equal(t, int64(1), s.ChunksRecovered)
	assert.Equal(t, int64(10), s.FilesTotal)
	assert.Equal(t, int64(5000), s.BytesTotal)
}

func TestCollectorConcurrent(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				c.AddBytesRead(1)
				c.AddFilesAdded(1)
			}
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	assert.Equal(t, int64(5000), s.BytesRead)
	assert.Equal(t, int64(5000), s.FilesAdded)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.0 KB", FormatBytes(1024))
	assert.Equal(t, "1.5 MB", FormatBytes(3*1024*1024/2))
	assert.Equal(t, "2.0 GB", FormatBytes(2*1024*1024*1024))
}
