package ports

import (
	"context"

	"github.com/Vovarama1992/scribe/internal/models"
)

// JobEvent is emitted by workers while a job moves through its states.
type JobEvent struct {
	JobID  string           `json:"jobId"`
	Status models.JobStatus `json:"status"`
	Chunk  int              `json:"chunk,omitempty"`
	Total  int              `json:"total,omitempty"`
	Text   string           `json:"text,omitempty"`
	Error  string           `json:"error,omitempty"`
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

type JobService interface {
	Submit(ctx context.Context, audio []byte) (string, error)
	Status(ctx context.Context, id string) (*models.Job, error)
}

type DecodingController interface {
	Reconfigure(opts models.DecodeOptions) error
	Options() models.DecodeOptions
}
