package ports

import (
	"time"

	"github.com/Vovarama1992/scribe/internal/models"
)

type Metrics interface {
	ObserveTranscription(audio, took time.Duration)
	JobFinished(status models.JobStatus)
	InfrastructureFault(op string)
}

type NopMetrics struct{}

func (NopMetrics) ObserveTranscription(time.Duration, time.Duration) {}
func (NopMetrics) JobFinished(models.JobStatus)                       {}
func (NopMetrics) InfrastructureFault(string)                         {}
