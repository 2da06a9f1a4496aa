package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/Vovarama1992/scribe/internal/models"
)

// HTTPRecognizer sends every chunk as a WAV body to a recognition server.
type HTTPRecognizer struct {
	endpoint string
	model    string
	apiKey   string
	timeout  time.Duration
	client   *http.Client
	opts     models.DecodeOptions
	log      *logger.ZapLogger
}

func NewHTTPRecognizer(
	endpoint, model, apiKey string,
	timeout time.Duration,
	opts models.DecodeOptions,
	log *logger.ZapLogger,
) *HTTPRecognizer {
	return &HTTPRecognizer{
		endpoint: endpoint,
		model:    model,
		apiKey:   apiKey,
		timeout:  timeout,
		client:   &http.Client{},
		opts:     opts,
		log:      log,
	}
}

type recognizeResponse struct {
	Result string `json:"result"`
	Error  string `json:"error_message"`
}

// Configure is called by the executor while no chunk is in flight.
func (s *HTTPRecognizer) Configure(opts models.DecodeOptions) error {
	s.opts = opts
	return nil
}

func (s *HTTPRecognizer) Recognize(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	f, err := writeChunkWAV(samples, sampleRate)
	if err != nil {
		return "", err
	}
	defer os.Remove(f.Name())
	defer f.Close()

	text, err := s.post(ctx, f, sampleRate)
	if err == nil {
		return text, nil
	}

	s.log.Log(logger.LogEntry{
		Level:   "error",
		Message: "[RECOGNIZE][ERR][FIRST]",
		Error:   err,
	})

	// one retry; post sets a fresh deadline
	text, err = s.post(context.WithoutCancel(ctx), f, sampleRate)
	if err != nil {
		return "", fmt.Errorf("recognize after retry: %w", err)
	}
	return text, nil
}

func (s *HTTPRecognizer) post(ctx context.Context, f *os.File, sampleRate int) (string, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	st, err := f.Stat()
	if err != nil {
		return "", err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	q := url.Values{}
	q.Set("format", "wav")
	q.Set("sampleRateHertz", strconv.Itoa(sampleRate))
	q.Set("decoding", s.opts.Strategy)
	if s.model != "" {
		q.Set("model", s.model)
	}
	if s.opts.Language != "" {
		q.Set("lang", s.opts.Language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"?"+q.Encode(), io.NopCloser(f))
	if err != nil {
		return "", err
	}
	req.ContentLength = st.Size()
	req.Header.Set("Content-Type", "audio/wav")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Api-Key "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("recognizer request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("recognizer read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("recognizer http %d: %s", resp.StatusCode, trimBody(raw))
	}

	var parsed recognizeResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("recognizer response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("recognizer: %s", parsed.Error)
	}
	return parsed.Result, nil
}

func trimBody(b []byte) string {
	const maxBody = 180
	if len(b) <= maxBody {
		return string(b)
	}
	return string(b[:maxBody]) + "…"
}
