package delivery

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/Vovarama1992/scribe/internal/models"
	"github.com/Vovarama1992/scribe/internal/ports"
)

type DecodingHandler struct {
	ctl ports.DecodingController
	log *logger.ZapLogger
}

func NewDecodingHandler(ctl ports.DecodingController, log *logger.ZapLogger) *DecodingHandler {
	return &DecodingHandler{
		ctl: ctl,
		log: log,
	}
}

// GET /api/decoding
func (h *DecodingHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ctl.Options())
}

// POST /api/decoding
//
// Waits for the chunk currently on the recognizer, if any.
func (h *DecodingHandler) Set(w http.ResponseWriter, r *http.Request) {
	var opts models.DecodeOptions
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if !models.ValidStrategy(opts.Strategy) {
		http.Error(w, "unknown strategy: "+opts.Strategy, http.StatusBadRequest)
		return
	}

	if err := h.ctl.Reconfigure(opts); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, ports.ErrNotConfigurable) {
			code = http.StatusConflict
		}
		h.log.Log(logger.LogEntry{
			Level:   "error",
			Message: "reconfigure failed",
			Error:   err,
		})
		http.Error(w, err.Error(), code)
		return
	}

	h.log.Log(logger.LogEntry{
		Level:   "info",
		Message: "decoding updated",
		Fields:  map[string]any{"strategy": opts.Strategy, "language": opts.Language},
	})

	writeJSON(w, http.StatusOK, h.ctl.Options())
}
