package delivery

import (
	"net/http"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/Vovarama1992/scribe/internal/ports"
	"github.com/go-chi/chi/v5"
)

type JobHandler struct {
	jobs     ports.JobService
	maxBytes int64
	log      *logger.ZapLogger
}

func NewJobHandler(jobs ports.JobService, maxBytes int64, log *logger.ZapLogger) *JobHandler {
	return &JobHandler{
		jobs:     jobs,
		maxBytes: maxBytes,
		log:      log,
	}
}

// POST /api/jobs
func (h *JobHandler) Submit(w http.ResponseWriter, r *http.Request) {
	audio, err := readAudio(w, r, h.maxBytes)
	if err != nil {
		writeError(w, h.log, "submit: read audio", err)
		return
	}

	id, err := h.jobs.Submit(r.Context(), audio)
	if err != nil {
		writeError(w, h.log, "submit failed", err)
		return
	}

	h.log.Log(logger.LogEntry{
		Level:   "info",
		Message: "job submitted",
		Fields:  map[string]any{"jobID": id, "bytes": len(audio)},
	})

	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

// GET /api/jobs/{id}
func (h *JobHandler) Status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}

	job, err := h.jobs.Status(r.Context(), id)
	if err != nil {
		writeError(w, h.log, "job status", err)
		return
	}

	writeJSON(w, http.StatusOK, job)
}
