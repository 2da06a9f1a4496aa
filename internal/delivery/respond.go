package delivery

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/Vovarama1992/scribe/internal/ports"
)

var errEmptyAudio = errors.New("empty audio")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps typed pipeline and store errors onto status codes.
func writeError(w http.ResponseWriter, log *logger.ZapLogger, msg string, err error) {
	var (
		decodeErr *ports.DecodeError
		inferErr  *ports.InferenceError
		infraErr  *ports.InfrastructureError
		tooLarge  *http.MaxBytesError
	)

	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, errEmptyAudio), errors.As(err, &decodeErr):
		code = http.StatusBadRequest
	case errors.As(err, &tooLarge):
		code = http.StatusRequestEntityTooLarge
	case errors.Is(err, ports.ErrJobNotFound):
		code = http.StatusNotFound
	case errors.As(err, &inferErr):
		code = http.StatusBadGateway
	case errors.As(err, &infraErr):
		code = http.StatusServiceUnavailable
	}

	level := "info"
	if code >= http.StatusInternalServerError {
		level = "error"
	}
	log.Log(logger.LogEntry{
		Level:   level,
		Message: msg,
		Fields:  map[string]any{"status": code},
		Error:   err,
	})

	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// readAudio takes the "file" part of a multipart form, or the raw body
// for any other content type.
func readAudio(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	body := http.MaxBytesReader(w, r.Body, limit)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var src io.Reader = body
	if mediaType == "multipart/form-data" {
		r.Body = body
		file, _, err := r.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: form field \"file\": %v", errEmptyAudio, err)
		}
		defer file.Close()
		src = file
	}

	audio, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, errEmptyAudio
	}
	return audio, nil
}
