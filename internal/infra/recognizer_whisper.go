//go:build whisper

package infra

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/Vovarama1992/scribe/internal/models"
	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

const (
	whisperSampleRate = 16000
	whisperBeamSize   = 5
)

// WhisperRecognizer runs whisper.cpp in process. The model is loaded once;
// every chunk gets a fresh decoding context that is dropped afterwards.
type WhisperRecognizer struct {
	model whisper.Model
	ctx   whisper.Context
	opts  models.DecodeOptions
}

func NewWhisperRecognizer(modelPath string, opts models.DecodeOptions) (*WhisperRecognizer, error) {
	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load whisper model %q: %w", modelPath, err)
	}
	return &WhisperRecognizer{model: model, opts: opts}, nil
}

func (r *WhisperRecognizer) Recognize(_ context.Context, samples []float32, sampleRate int) (string, error) {
	if sampleRate != whisperSampleRate {
		return "", fmt.Errorf("whisper needs %d Hz audio, got %d Hz", whisperSampleRate, sampleRate)
	}

	wctx, err := r.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper context: %w", err)
	}
	r.ctx = wctx

	lang := r.opts.Language
	if lang == "" {
		lang = "auto"
	}
	if err := wctx.SetLanguage(lang); err != nil {
		return "", fmt.Errorf("whisper language %q: %w", lang, err)
	}
	wctx.SetTranslate(false)
	if r.opts.Strategy == models.StrategyBeam {
		wctx.SetBeamSize(whisperBeamSize)
	}

	var sb strings.Builder
	onSegment := func(seg whisper.Segment) {
		sb.WriteString(seg.Text)
	}
	if err := wctx.Process(samples, nil, onSegment, nil); err != nil {
		return "", fmt.Errorf("whisper process: %w", err)
	}
	return strings.TrimSpace(sb.String()), nil
}

// ReleaseWorkspace drops the per-chunk decoding state before the next
// chunk allocates its own.
func (r *WhisperRecognizer) ReleaseWorkspace() {
	r.ctx = nil
	runtime.GC()
}

func (r *WhisperRecognizer) Configure(opts models.DecodeOptions) error {
	r.opts = opts
	return nil
}

func (r *WhisperRecognizer) Close() error {
	return r.model.Close()
}
