package stations

import (
	"fmt"
	"iter"
	"time"

	"github.com/Vovarama1992/scribe/internal/models"
)

// ChunkPlanner splits a waveform into fixed windows of chunkDuration.
// The last window may be shorter.
type ChunkPlanner struct {
	window int
}

func NewChunkPlanner(chunkDuration time.Duration, sampleRate int) (*ChunkPlanner, error) {
	if chunkDuration <= 0 {
		return nil, fmt.Errorf("chunk duration must be positive, got %s", chunkDuration)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	window := int(chunkDuration * time.Duration(sampleRate) / time.Second)
	if window <= 0 {
		return nil, fmt.Errorf("chunk duration %s is shorter than one sample at %d Hz", chunkDuration, sampleRate)
	}
	return &ChunkPlanner{window: window}, nil
}

// WindowSamples is the nominal chunk size in samples.
func (p *ChunkPlanner) WindowSamples() int { return p.window }

func (p *ChunkPlanner) Count(total int) int {
	if total <= 0 {
		return 0
	}
	return (total + p.window - 1) / p.window
}

func (p *ChunkPlanner) Plan(w models.Waveform) iter.Seq[models.Chunk] {
	return p.PlanSamples(w.Len())
}

// PlanSamples yields chunks one at a time, in temporal order.
func (p *ChunkPlanner) PlanSamples(total int) iter.Seq[models.Chunk] {
	return func(yield func(models.Chunk) bool) {
		for i, off := 0, 0; off < total; i, off = i+1, off+p.window {
			c := models.Chunk{Index: i, Offset: off, Length: min(p.window, total-off)}
			if !yield(c) {
				return
			}
		}
	}
}
