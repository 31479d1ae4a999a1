package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypeString(t *testing.T) {
	assert.Equal(t, "ChunkSealed", ChunkSealed.String())
	assert.Equal(t, "FileExtracted", FileExtracted.String())
	assert.Equal(t, "Unknown", Type(99).String())
	assert.Equal(t, "Unknown", Type(0).String())
}

func TestEmitNilChannel(t *testing.T) {
	assert.NotPanics(t, func() {
		Emit(nil, Event{Type: FileAdded})
	})
}

func TestEmitSetsTimestamp(t *testing.T) {
	ch := make(chan Event, 1)
	Emit(ch, Event{Type: ChunkSealed, Chunk: 3})
	ev := <-ch
	assert.Equal(t, ChunkSealed, ev.Type)
	assert.False(t, ev.Timestamp.IsZero())
}

// A full channel must drop, never block the pipeline.
func TestEmitFullChannelDrops(t *testing.T) {
	ch := make(chan Event, 1)
	Emit(ch, Event{Type: FileAdded})
	done := make(chan struct{})
	go func() {
		Emit(ch, Event{Type: FileAdded})
		close(done)
	}()
	<-done
	assert.Len(t, ch, 1)
}
