package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Vovarama1992/scribe/internal/models"
)

const sampleYAML = `
server:
  host: 127.0.0.1
  port: "9090"
model:
  backend: http
  url: http://asr:9000/recognize
  decoding:
    strategy: beam
    language: ru
audio:
  sample_rate: 16000
  chunk_duration: 30m
queue:
  backend: redis
store:
  backend: redis
redis:
  addr: redis:6379
worker:
  count: 2
  lease: 1h
`

func env(vals map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vals[k]
		return v, ok
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	cfg, err := LoadWithEnv(writeConfig(t, sampleYAML), env(nil))
	if err != nil {
		t.Fatalf("LoadWithEnv() error = %v", err)
	}

	if cfg.Server.Addr() != "127.0.0.1:9090" {
		t.Fatalf("addr = %q", cfg.Server.Addr())
	}
	if cfg.Audio.ChunkDuration != 30*time.Minute || cfg.Audio.SampleRate != 16000 {
		t.Fatalf("audio = %+v", cfg.Audio)
	}
	if cfg.Model.Decoding != (models.DecodeOptions{Strategy: "beam", Language: "ru"}) {
		t.Fatalf("decoding = %+v", cfg.Model.Decoding)
	}
	if cfg.Worker.Count != 2 || cfg.Worker.Lease != time.Hour {
		t.Fatalf("worker = %+v", cfg.Worker)
	}
	// defaults survive where the file is silent
	if cfg.Queue.Name != "job_queue" || cfg.Worker.Backoff != 5*time.Second || cfg.Audio.Normalizer != NormalizerWAV {
		t.Fatalf("defaults lost: queue=%q backoff=%v normalizer=%q", cfg.Queue.Name, cfg.Worker.Backoff, cfg.Audio.Normalizer)
	}
}

func TestEnvOverrides(t *testing.T) {
	cfg, err := LoadWithEnv(writeConfig(t, sampleYAML), env(map[string]string{
		"PORT":           "7000",
		"REDIS_ADDR":     "cache:6380",
		"MODEL_API_KEY":  "k",
		"MODEL_NAME":     "large-v3",
		"CHUNK_DURATION": "10m",
		"WORKER_COUNT":   "4",
	}))
	if err != nil {
		t.Fatalf("LoadWithEnv() error = %v", err)
	}
	if cfg.Server.Port != "7000" || cfg.Redis.Addr != "cache:6380" || cfg.Model.APIKey != "k" || cfg.Model.Name != "large-v3" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Audio.ChunkDuration != 10*time.Minute || cfg.Worker.Count != 4 {
		t.Fatalf("typed overrides not applied: %v %d", cfg.Audio.ChunkDuration, cfg.Worker.Count)
	}
}

func TestEnvOnly(t *testing.T) {
	cfg, err := LoadWithEnv("", env(map[string]string{
		"PORT":              "8080",
		"MODEL_BACKEND":     "whisper",
		"MODEL_PATH":        "/models/ggml-base.bin",
		"DECODING_STRATEGY": "greedy",
		"SAMPLE_RATE":       "16000",
		"CHUNK_DURATION":    "30m",
		"QUEUE_BACKEND":     "postgres",
		"STORE_BACKEND":     "postgres",
		"DATABASE_URL":      "postgres://localhost/scribe",
	}))
	if err != nil {
		t.Fatalf("LoadWithEnv() error = %v", err)
	}
	if cfg.Postgres.DSN != "postgres://localhost/scribe" || cfg.Model.Backend != ModelWhisper {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestValidateMissingRequired(t *testing.T) {
	_, err := LoadWithEnv("", env(nil))
	if err == nil {
		t.Fatalf("empty config should fail")
	}
	for _, want := range []string{
		"server.port",
		"model.backend",
		"model.decoding.strategy",
		"audio.sample_rate",
		"audio.chunk_duration",
		"queue.backend",
		"store.backend",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func TestValidateBackendParams(t *testing.T) {
	body := strings.Replace(sampleYAML, "  addr: redis:6379\n", "", 1)
	_, err := LoadWithEnv(writeConfig(t, body), env(nil))
	if err == nil || !strings.Contains(err.Error(), "redis.addr") {
		t.Fatalf("error = %v, want redis.addr", err)
	}

	_, err = LoadWithEnv(writeConfig(t, sampleYAML), env(map[string]string{"DECODING_STRATEGY": "sampling"}))
	if err == nil || !strings.Contains(err.Error(), "sampling") {
		t.Fatalf("error = %v, want unknown strategy", err)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := LoadWithEnv(filepath.Join(t.TempDir(), "missing.yml"), env(nil)); err == nil {
		t.Fatalf("missing file should fail")
	}
	if _, err := LoadWithEnv(writeConfig(t, "server: [1, 2"), env(nil)); err == nil {
		t.Fatalf("broken yaml should fail")
	}
	if _, err := LoadWithEnv(writeConfig(t, sampleYAML), env(map[string]string{"SAMPLE_RATE": "fast"})); err == nil {
		t.Fatalf("non-numeric SAMPLE_RATE should fail")
	}
}
