package infra

import (
	"fmt"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/Vovarama1992/scribe/internal/config"
	"github.com/Vovarama1992/scribe/internal/models"
	"github.com/Vovarama1992/scribe/internal/ports"
)

// NewRecognizerLoader picks the recognizer backend. Loading happens
// later, once, inside the executor.
func NewRecognizerLoader(cfg config.Model, log *logger.ZapLogger) (ports.RecognizerLoader, error) {
	switch cfg.Backend {
	case config.ModelHTTP:
		return func(opts models.DecodeOptions) (ports.Recognizer, error) {
			return NewHTTPRecognizer(cfg.URL, cfg.Name, cfg.APIKey, cfg.Timeout, opts, log), nil
		}, nil
	case config.ModelWhisper:
		return func(opts models.DecodeOptions) (ports.Recognizer, error) {
			rec, err := NewWhisperRecognizer(cfg.Path, opts)
			if err != nil {
				return nil, err
			}
			return rec, nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown model backend %q", cfg.Backend)
	}
}
