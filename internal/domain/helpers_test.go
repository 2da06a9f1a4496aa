package domain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/Vovarama1992/scribe/internal/models"
	"github.com/Vovarama1992/scribe/internal/ports"
	"go.uber.org/zap"
)

func nopLogger() *logger.ZapLogger {
	return logger.NewZapLogger(zap.NewNop().Sugar())
}

// byteNormalizer turns every input byte into one sample. Input starting
// with "bad" fails to decode.
type byteNormalizer struct {
	rate int
}

func (n byteNormalizer) Decode(_ context.Context, data []byte) (models.Waveform, error) {
	if len(data) >= 3 && string(data[:3]) == "bad" {
		return models.Waveform{}, fmt.Errorf("unsupported container")
	}
	s := make([]int16, len(data))
	for i, b := range data {
		s[i] = int16(b)
	}
	return models.Waveform{Samples: s, SampleRate: n.rate, Channels: 1}, nil
}

// fakeExecutor returns "c<index>" per chunk. It tracks the scratch it
// would hold so peak usage can be checked against a single chunk.
type fakeExecutor struct {
	mu       sync.Mutex
	failAt   int
	calls    []models.Chunk
	inUse    int
	peak     int
	acquired int
	released int
	delay    time.Duration
}

func newFakeExecutor() *fakeExecutor { return &fakeExecutor{failAt: -1} }

func (e *fakeExecutor) TranscribeChunk(_ context.Context, _ models.Waveform, c models.Chunk) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.acquired++
	e.inUse += c.Length
	e.peak = max(e.peak, e.inUse)
	defer func() {
		e.inUse -= c.Length
		e.released++
	}()

	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	e.calls = append(e.calls, c)
	if c.Index == e.failAt {
		return "", &ports.InferenceError{Chunk: c.Index, Err: fmt.Errorf("recognizer crashed")}
	}
	return fmt.Sprintf("c%d", c.Index), nil
}

type countingMetrics struct {
	mu       sync.Mutex
	observed int
	finished map[models.JobStatus]int
	faults   map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{
		finished: make(map[models.JobStatus]int),
		faults:   make(map[string]int),
	}
}

func (m *countingMetrics) ObserveTranscription(time.Duration, time.Duration) {
	m.mu.Lock()
	m.observed++
	m.mu.Unlock()
}

func (m *countingMetrics) JobFinished(s models.JobStatus) {
	m.mu.Lock()
	m.finished[s]++
	m.mu.Unlock()
}

func (m *countingMetrics) InfrastructureFault(op string) {
	m.mu.Lock()
	m.faults[op]++
	m.mu.Unlock()
}

func (m *countingMetrics) faultCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, v := range m.faults {
		n += v
	}
	return n
}
