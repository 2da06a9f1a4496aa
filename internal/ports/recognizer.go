package ports

import (
	"context"

	"github.com/Vovarama1992/scribe/internal/models"
)

// Recognizer is the opaque speech recognition capability. It maps one
// bounded buffer of mono float samples to text and is not safe for
// concurrent use.
type Recognizer interface {
	Recognize(ctx context.Context, samples []float32, sampleRate int) (string, error)
}

// RecognizerLoader builds the recognizer once, at executor initialization.
type RecognizerLoader func(opts models.DecodeOptions) (Recognizer, error)

// WorkspaceReleaser is implemented by recognizers that hold per-call
// working memory which must be dropped before the next call.
type WorkspaceReleaser interface {
	ReleaseWorkspace()
}

// Configurable is implemented by recognizers whose decoding options can
// be changed after initialization.
type Configurable interface {
	Configure(opts models.DecodeOptions) error
}

// Normalizer turns raw submitted audio into a canonical waveform.
type Normalizer interface {
	Decode(ctx context.Context, audio []byte) (models.Waveform, error)
}
