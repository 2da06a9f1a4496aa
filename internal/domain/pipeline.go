package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/Vovarama1992/scribe/internal/domain/stations"
	"github.com/Vovarama1992/scribe/internal/models"
	"github.com/Vovarama1992/scribe/internal/ports"
)

type ChunkExecutor interface {
	TranscribeChunk(ctx context.Context, w models.Waveform, c models.Chunk) (string, error)
}

// ProgressFunc is called after every chunk with its text and the number
// of chunks planned.
type ProgressFunc func(c models.Chunk, total int, text string)

// Pipeline runs normalize -> plan -> execute -> join for one audio input.
type Pipeline struct {
	normalizer ports.Normalizer
	planner    *stations.ChunkPlanner
	executor   ChunkExecutor
	sampleRate int
	metrics    ports.Metrics
	log        *logger.ZapLogger
}

func NewPipeline(
	normalizer ports.Normalizer,
	planner *stations.ChunkPlanner,
	executor ChunkExecutor,
	sampleRate int,
	metrics ports.Metrics,
	log *logger.ZapLogger,
) *Pipeline {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &Pipeline{
		normalizer: normalizer,
		planner:    planner,
		executor:   executor,
		sampleRate: sampleRate,
		metrics:    metrics,
		log:        log,
	}
}

func (p *Pipeline) Transcribe(ctx context.Context, audio []byte) (string, error) {
	return p.TranscribeWithProgress(ctx, audio, nil)
}

func (p *Pipeline) TranscribeWithProgress(ctx context.Context, audio []byte, progress ProgressFunc) (string, error) {
	start := time.Now()

	w, err := p.normalizer.Decode(ctx, audio)
	if err != nil {
		var de *ports.DecodeError
		if !errors.As(err, &de) {
			err = &ports.DecodeError{Err: err}
		}
		return "", err
	}
	if w.SampleRate != p.sampleRate {
		return "", &ports.DecodeError{Err: fmt.Errorf("waveform is %d Hz, pipeline expects %d Hz", w.SampleRate, p.sampleRate)}
	}

	total := p.planner.Count(w.Len())
	texts := make([]string, 0, total)

	for c := range p.planner.Plan(w) {
		text, err := p.executor.TranscribeChunk(ctx, w, c)
		if err != nil {
			var ie *ports.InferenceError
			if !errors.As(err, &ie) {
				err = &ports.InferenceError{Chunk: c.Index, Err: err}
			}
			return "", err
		}
		texts = append(texts, text)
		if progress != nil {
			progress(c, total, text)
		}
	}

	transcript := stations.Join(texts)
	took := time.Since(start)
	p.metrics.ObserveTranscription(w.Duration(), took)

	fields := map[string]any{
		"chunks": total,
		"audio":  w.Duration().String(),
		"took":   took.String(),
		"length": len(transcript),
	}
	if w.Duration() > 0 {
		fields["rtf"] = took.Seconds() / w.Duration().Seconds()
	}
	p.log.Log(logger.LogEntry{
		Level:   "info",
		Message: "[PIPELINE][DONE]",
		Fields:  fields,
	})
	return transcript, nil
}
