//go:build !whisper

package infra

import (
	"context"
	"errors"

	"github.com/Vovarama1992/scribe/internal/models"
)

var errWhisperDisabled = errors.New("whisper.cpp support is disabled in this build (rebuild with -tags whisper)")

type WhisperRecognizer struct{}

func NewWhisperRecognizer(string, models.DecodeOptions) (*WhisperRecognizer, error) {
	return nil, errWhisperDisabled
}

func (r *WhisperRecognizer) Recognize(context.Context, []float32, int) (string, error) {
	return "", errWhisperDisabled
}

func (r *WhisperRecognizer) Close() error { return nil }
