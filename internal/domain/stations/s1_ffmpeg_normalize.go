package stations

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/Vovarama1992/scribe/internal/models"
	"github.com/Vovarama1992/scribe/internal/ports"
)

const maxFFmpegErrPreview = 180

// S1FFmpegNormalize accepts any container ffmpeg can read and produces
// mono s16le PCM at the configured rate.
type S1FFmpegNormalize struct {
	bin        string
	sampleRate int
	log        *logger.ZapLogger
}

func NewS1FFmpegNormalize(bin string, sampleRate int, log *logger.ZapLogger) *S1FFmpegNormalize {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &S1FFmpegNormalize{bin: bin, sampleRate: sampleRate, log: log}
}

func (s *S1FFmpegNormalize) Decode(ctx context.Context, data []byte) (models.Waveform, error) {
	start := time.Now()

	cmd := exec.CommandContext(
		ctx,
		s.bin,
		"-loglevel", "error",
		"-i", "pipe:0",
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(s.sampleRate),
		"-f", "s16le",
		"pipe:1",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(data)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		return models.Waveform{}, &ports.DecodeError{Err: fmt.Errorf("ffmpeg: %w: %s", err, trim(msg, maxFFmpegErrPreview))}
	}

	samples, err := pcmToSamples(stdout.Bytes())
	if err != nil {
		return models.Waveform{}, &ports.DecodeError{Err: err}
	}

	w := models.Waveform{Samples: samples, SampleRate: s.sampleRate, Channels: 1}
	s.log.Log(logger.LogEntry{
		Level:   "info",
		Message: "[S1][FFMPEG][OK]",
		Fields: map[string]any{
			"bytes":    len(data),
			"samples":  len(samples),
			"duration": w.Duration().String(),
			"took":     time.Since(start).String(),
		},
	})
	return w, nil
}

func pcmToSamples(pcm []byte) ([]int16, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("pcm length must be even for 16-bit audio")
	}
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples, nil
}

func trim(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
