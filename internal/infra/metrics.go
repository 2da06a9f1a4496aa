package infra

import (
	"net/http"
	"time"

	"github.com/Vovarama1992/scribe/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type PrometheusMetrics struct {
	registry *prometheus.Registry
	audio    prometheus.Counter
	rtf      prometheus.Histogram
	jobs     *prometheus.CounterVec
	faults   *prometheus.CounterVec
}

func NewPrometheusMetrics() *PrometheusMetrics {
	m := &PrometheusMetrics{
		registry: prometheus.NewRegistry(),
		audio: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scribe",
			Name:      "audio_seconds_total",
			Help:      "Seconds of audio transcribed.",
		}),
		rtf: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "scribe",
			Name:      "real_time_factor",
			Help:      "Processing time divided by audio duration, per transcription.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scribe",
			Name:      "jobs_finished_total",
			Help:      "Jobs that reached a terminal status.",
		}, []string{"status"}),
		faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scribe",
			Name:      "infrastructure_faults_total",
			Help:      "Queue or store failures seen by workers.",
		}, []string{"op"}),
	}
	m.registry.MustRegister(m.audio, m.rtf, m.jobs, m.faults)
	return m
}

func (m *PrometheusMetrics) ObserveTranscription(audio, took time.Duration) {
	m.audio.Add(audio.Seconds())
	if audio > 0 {
		m.rtf.Observe(took.Seconds() / audio.Seconds())
	}
}

func (m *PrometheusMetrics) JobFinished(status models.JobStatus) {
	m.jobs.WithLabelValues(string(status)).Inc()
}

func (m *PrometheusMetrics) InfrastructureFault(op string) {
	m.faults.WithLabelValues(op).Inc()
}

func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
