package delivery

import (
	"context"
	"net/http"
	"time"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/Vovarama1992/scribe/internal/ports"
)

type TranscribeHandler struct {
	svc      ports.Transcriber
	maxBytes int64
	log      *logger.ZapLogger
}

func NewTranscribeHandler(svc ports.Transcriber, maxBytes int64, log *logger.ZapLogger) *TranscribeHandler {
	return &TranscribeHandler{
		svc:      svc,
		maxBytes: maxBytes,
		log:      log,
	}
}

// POST /api/transcribe
//
// Runs in the request goroutine. A client disconnect does not abort the
// chunk loop.
func (h *TranscribeHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	audio, err := readAudio(w, r, h.maxBytes)
	if err != nil {
		writeError(w, h.log, "transcribe: read audio", err)
		return
	}

	start := time.Now()
	text, err := h.svc.Transcribe(context.WithoutCancel(r.Context()), audio)
	if err != nil {
		writeError(w, h.log, "transcribe failed", err)
		return
	}

	h.log.Log(logger.LogEntry{
		Level:   "info",
		Message: "transcribe done",
		Fields: map[string]any{
			"bytes": len(audio),
			"chars": len(text),
			"took":  time.Since(start).String(),
		},
	})

	writeJSON(w, http.StatusOK, map[string]string{
		"transcription": text,
	})
}
