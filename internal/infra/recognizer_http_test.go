package infra

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/Vovarama1992/scribe/internal/models"
	"github.com/go-audio/wav"
	"go.uber.org/zap"
)

func nopLogger() *logger.ZapLogger {
	return logger.NewZapLogger(zap.NewNop().Sugar())
}

func TestHTTPRecognizerPostsWAV(t *testing.T) {
	var (
		gotQuery  string
		gotAuth   string
		gotFrames int
		gotRate   uint32
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")

		raw, _ := io.ReadAll(r.Body)
		d := wav.NewDecoder(bytes.NewReader(raw))
		buf, err := d.FullPCMBuffer()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotFrames = len(buf.Data)
		gotRate = d.SampleRate

		w.Write([]byte(`{"result":"hello there"}`))
	}))
	defer srv.Close()

	opts := models.DecodeOptions{Strategy: models.StrategyBeam, Language: "en"}
	rec := NewHTTPRecognizer(srv.URL, "base", "key-1", time.Second, opts, nopLogger())

	text, err := rec.Recognize(context.Background(), make([]float32, 5000), 16000)
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if text != "hello there" {
		t.Fatalf("text = %q", text)
	}
	if gotAuth != "Api-Key key-1" {
		t.Fatalf("auth = %q", gotAuth)
	}
	for _, want := range []string{"decoding=beam", "lang=en", "model=base", "sampleRateHertz=16000", "format=wav"} {
		if !strings.Contains(gotQuery, want) {
			t.Fatalf("query %q missing %s", gotQuery, want)
		}
	}
	if gotFrames != 5000 || gotRate != 16000 {
		t.Fatalf("wav = %d frames at %d Hz, want 5000 at 16000", gotFrames, gotRate)
	}

	if err := rec.Configure(models.DecodeOptions{Strategy: models.StrategyGreedy}); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if _, err := rec.Recognize(context.Background(), make([]float32, 10), 16000); err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if !strings.Contains(gotQuery, "decoding=greedy") || strings.Contains(gotQuery, "lang=") || !strings.Contains(gotQuery, "model=base") {
		t.Fatalf("query after Configure = %q", gotQuery)
	}
}

func TestHTTPRecognizerRetriesOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"result":"second time"}`))
	}))
	defer srv.Close()

	rec := NewHTTPRecognizer(srv.URL, "", "", time.Second, models.DecodeOptions{Strategy: models.StrategyGreedy}, nopLogger())
	text, err := rec.Recognize(context.Background(), make([]float32, 100), 16000)
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if text != "second time" || calls.Load() != 2 {
		t.Fatalf("text = %q calls = %d", text, calls.Load())
	}
}

func TestHTTPRecognizerReportsFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"error_message":"model not loaded"}`))
	}))
	defer srv.Close()

	rec := NewHTTPRecognizer(srv.URL, "", "", 0, models.DecodeOptions{Strategy: models.StrategyGreedy}, nopLogger())
	_, err := rec.Recognize(context.Background(), make([]float32, 100), 16000)
	if err == nil || !strings.Contains(err.Error(), "model not loaded") {
		t.Fatalf("error = %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
}

func TestFloatToPCM16(t *testing.T) {
	cases := []struct {
		in   float32
		want int
	}{
		{0, 0},
		{0.5, 16384},
		{-1, -32768},
		{1, 32767},
		{3, 32767},
		{-3, -32768},
	}
	for _, tc := range cases {
		if got := floatToPCM16(tc.in); got != tc.want {
			t.Fatalf("floatToPCM16(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
