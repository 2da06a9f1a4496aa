package stations

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/Vovarama1992/scribe/internal/models"
	"github.com/Vovarama1992/scribe/internal/ports"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavFormatPCM  = 1
	wavReadFrames = 4096
)

// S1DecodeWAV reads already normalized WAV bytes: PCM, mono, 16-bit at
// the configured sample rate. Anything else is rejected.
type S1DecodeWAV struct {
	sampleRate int
	log        *logger.ZapLogger
}

func NewS1DecodeWAV(sampleRate int, log *logger.ZapLogger) *S1DecodeWAV {
	return &S1DecodeWAV{sampleRate: sampleRate, log: log}
}

func (s *S1DecodeWAV) Decode(_ context.Context, data []byte) (models.Waveform, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return models.Waveform{}, &ports.DecodeError{Err: fmt.Errorf("not a valid wav file")}
	}
	if d.WavAudioFormat != wavFormatPCM {
		return models.Waveform{}, &ports.DecodeError{Err: fmt.Errorf("unsupported wav format %d", d.WavAudioFormat)}
	}
	if d.NumChans != 1 {
		return models.Waveform{}, &ports.DecodeError{Err: fmt.Errorf("expected mono audio, got %d channels", d.NumChans)}
	}
	if d.BitDepth != 16 {
		return models.Waveform{}, &ports.DecodeError{Err: fmt.Errorf("expected 16-bit samples, got %d", d.BitDepth)}
	}
	if int(d.SampleRate) != s.sampleRate {
		return models.Waveform{}, &ports.DecodeError{Err: fmt.Errorf("expected %d Hz, got %d Hz", s.sampleRate, d.SampleRate)}
	}

	if err := d.FwdToPCM(); err != nil {
		return models.Waveform{}, &ports.DecodeError{Err: fmt.Errorf("seek pcm: %w", err)}
	}

	samples := make([]int16, 0, int(d.PCMLen()/2))
	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: 1, SampleRate: s.sampleRate},
		Data:   make([]int, wavReadFrames),
	}
	for {
		n, err := d.PCMBuffer(buf)
		if err != nil && !errors.Is(err, io.EOF) {
			return models.Waveform{}, &ports.DecodeError{Err: fmt.Errorf("read pcm: %w", err)}
		}
		for _, v := range buf.Data[:n] {
			samples = append(samples, int16(v))
		}
		if n == 0 || err != nil {
			break
		}
	}

	w := models.Waveform{Samples: samples, SampleRate: s.sampleRate, Channels: 1}
	s.log.Log(logger.LogEntry{
		Level:   "info",
		Message: "[S1][WAV][OK]",
		Fields: map[string]any{
			"samples":  len(samples),
			"duration": w.Duration().String(),
		},
	})
	return w, nil
}
