package delivery

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type Handlers struct {
	Auth       *AuthHandler
	Transcribe *TranscribeHandler
	Jobs       *JobHandler
	Decoding   *DecodingHandler
	WS         http.HandlerFunc
	Metrics    http.Handler
}

func RegisterRoutes(r chi.Router, h Handlers) {
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics)
	}

	// login
	r.Post("/api/login", h.Auth.Login)

	// sync
	r.Post("/api/transcribe", h.Transcribe.Transcribe)

	// async jobs
	r.Post("/api/jobs", h.Jobs.Submit)
	r.Get("/api/jobs/{id}", h.Jobs.Status)

	r.Get("/api/decoding", h.Decoding.Get)
	r.Post("/api/decoding", h.Decoding.Set)

	if h.WS != nil {
		r.Get("/ws", h.WS)
	}
}
