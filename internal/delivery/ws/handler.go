package ws

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/Vovarama1992/scribe/internal/models"
	"github.com/Vovarama1992/scribe/internal/ports"
)

// WSHandler streams progress of one job. The client first receives the
// job's current status, then every event the workers publish for it.
func WSHandler(hub *Hub, jobs ports.JobService, log *logger.ZapLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := r.URL.Query().Get("jobID")
		if jobID == "" {
			http.Error(w, "missing jobID", http.StatusBadRequest)
			return
		}

		if _, err := jobs.Status(r.Context(), jobID); err != nil {
			if errors.Is(err, ports.ErrJobNotFound) {
				http.Error(w, "job not found", http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}

		conn, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Log(logger.LogEntry{
				Level:   "error",
				Message: "[WS] upgrade failed",
				Error:   err,
			})
			return
		}

		hub.Register(jobID, conn)
		defer hub.Unregister(jobID, conn)

		// re-read after Register so no event falls between the two
		job, err := jobs.Status(r.Context(), jobID)
		if err != nil {
			log.Log(logger.LogEntry{
				Level:   "error",
				Message: "[WS] status failed",
				Fields:  map[string]any{"jobID": jobID},
				Error:   err,
			})
			return
		}
		payload, _ := json.Marshal(snapshot(job))
		hub.SendTo(jobID, conn, payload)

		if job.IsTerminal() {
			return
		}

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}

func snapshot(job *models.Job) ports.JobEvent {
	return ports.JobEvent{
		JobID:  job.ID,
		Status: job.Status,
		Text:   job.Result,
		Error:  job.Error,
	}
}
