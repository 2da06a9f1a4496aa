package stations

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/Vovarama1992/scribe/internal/models"
	"github.com/Vovarama1992/scribe/internal/ports"
)

// ExecutorStats describes the working memory the executor has held.
// PeakSamples never exceeds one window, however many chunks ran.
type ExecutorStats struct {
	Chunks      int
	Failures    int
	Releases    int
	InUse       int
	PeakSamples int
}

// S3Executor drives the recognizer one chunk at a time. The recognizer
// holds an exclusive accelerator context, so every call runs under mu and
// its scratch buffer is cleared and released before mu is unlocked.
type S3Executor struct {
	maxSamples int
	log        *logger.ZapLogger

	mu         sync.Mutex
	opts       models.DecodeOptions
	recognizer ports.Recognizer
	load       func() (ports.Recognizer, error)
	scratch    []float32
	stats      ExecutorStats
	closed     bool
}

var errExecutorClosed = errors.New("executor closed")

func NewS3Executor(
	loader ports.RecognizerLoader,
	opts models.DecodeOptions,
	maxChunkSamples int,
	log *logger.ZapLogger,
) (*S3Executor, error) {
	if loader == nil {
		return nil, fmt.Errorf("executor: recognizer loader is nil")
	}
	if maxChunkSamples <= 0 {
		return nil, fmt.Errorf("executor: max chunk samples must be positive, got %d", maxChunkSamples)
	}
	if !models.ValidStrategy(opts.Strategy) {
		return nil, fmt.Errorf("executor: unknown decoding strategy %q", opts.Strategy)
	}

	e := &S3Executor{
		maxSamples: maxChunkSamples,
		log:        log,
		opts:       opts,
	}
	// runs at most once, always under mu
	e.load = sync.OnceValues(func() (ports.Recognizer, error) {
		start := time.Now()
		rec, err := loader(e.opts)
		if err != nil {
			return nil, err
		}
		e.recognizer = rec
		e.log.Log(logger.LogEntry{
			Level:   "info",
			Message: "[EXEC][INIT]",
			Fields: map[string]any{
				"strategy": e.opts.Strategy,
				"language": e.opts.Language,
				"took":     time.Since(start).String(),
			},
		})
		return rec, nil
	})
	return e, nil
}

// Warmup initializes the recognizer so load failures surface at startup.
func (e *S3Executor) Warmup() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return errExecutorClosed
	}
	if _, err := e.load(); err != nil {
		return fmt.Errorf("executor: init recognizer: %w", err)
	}
	return nil
}

func (e *S3Executor) TranscribeChunk(ctx context.Context, w models.Waveform, c models.Chunk) (string, error) {
	if c.Length > e.maxSamples {
		return "", &ports.InferenceError{
			Chunk: c.Index,
			Err:   fmt.Errorf("chunk of %d samples exceeds window of %d", c.Length, e.maxSamples),
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		e.stats.Failures++
		return "", &ports.InferenceError{Chunk: c.Index, Err: errExecutorClosed}
	}
	rec, err := e.load()
	if err != nil {
		e.stats.Failures++
		return "", &ports.InferenceError{Chunk: c.Index, Err: fmt.Errorf("init recognizer: %w", err)}
	}

	start := time.Now()
	buf := e.acquire(c.Length)
	defer e.release(rec, buf)

	toFloat32(buf, w.Window(c))

	text, err := rec.Recognize(ctx, buf, w.SampleRate)
	if err != nil {
		e.stats.Failures++
		e.log.Log(logger.LogEntry{
			Level:   "error",
			Message: "[EXEC][ERR]",
			Fields:  map[string]any{"chunk": c.Index, "samples": c.Length},
			Error:   err,
		})
		return "", &ports.InferenceError{Chunk: c.Index, Err: err}
	}

	e.stats.Chunks++
	e.log.Log(logger.LogEntry{
		Level:   "info",
		Message: "[EXEC][OK]",
		Fields: map[string]any{
			"chunk":   c.Index,
			"samples": c.Length,
			"audio":   c.Duration(w.SampleRate).String(),
			"took":    time.Since(start).String(),
		},
	})
	return strings.TrimSpace(text), nil
}

// Reconfigure changes decoding options. It waits for any in-flight chunk.
func (e *S3Executor) Reconfigure(opts models.DecodeOptions) error {
	if !models.ValidStrategy(opts.Strategy) {
		return fmt.Errorf("executor: unknown decoding strategy %q", opts.Strategy)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.recognizer != nil {
		c, ok := e.recognizer.(ports.Configurable)
		if !ok {
			return ports.ErrNotConfigurable
		}
		if err := c.Configure(opts); err != nil {
			return fmt.Errorf("executor: configure recognizer: %w", err)
		}
	}
	e.opts = opts

	e.log.Log(logger.LogEntry{
		Level:   "info",
		Message: "[EXEC][RECONFIGURE]",
		Fields:  map[string]any{"strategy": opts.Strategy, "language": opts.Language},
	})
	return nil
}

// Close waits for any in-flight chunk and frees the loaded model. Later
// chunks fail with an InferenceError.
func (e *S3Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	rec := e.recognizer
	e.recognizer = nil
	clear(e.scratch)
	e.scratch = nil

	if c, ok := rec.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("executor: close recognizer: %w", err)
		}
	}
	e.log.Log(logger.LogEntry{
		Level:   "info",
		Message: "[EXEC][CLOSE]",
	})
	return nil
}

func (e *S3Executor) Options() models.DecodeOptions {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opts
}

func (e *S3Executor) Stats() ExecutorStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// acquire hands out n samples of scratch. Capacity is capped by
// maxSamples, so the buffer never grows past one window.
func (e *S3Executor) acquire(n int) []float32 {
	if cap(e.scratch) < n {
		e.scratch = make([]float32, n, max(n, min(e.maxSamples, 2*cap(e.scratch))))
	}
	buf := e.scratch[:n]
	e.stats.InUse = n
	e.stats.PeakSamples = max(e.stats.PeakSamples, n)
	return buf
}

func (e *S3Executor) release(rec ports.Recognizer, buf []float32) {
	clear(buf)
	e.stats.InUse = 0
	e.stats.Releases++
	if r, ok := rec.(ports.WorkspaceReleaser); ok {
		r.ReleaseWorkspace()
	}
}

func toFloat32(dst []float32, src []int16) {
	for i, s := range src {
		dst[i] = float32(s) / 32768.0
	}
}
