package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Vovarama1992/scribe/internal/models"
	"gopkg.in/yaml.v3"
)

const (
	ModelHTTP    = "http"
	ModelWhisper = "whisper"

	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"

	NormalizerWAV    = "wav"
	NormalizerFFmpeg = "ffmpeg"
)

type Config struct {
	Server   Server   `yaml:"server"`
	Model    Model    `yaml:"model"`
	Audio    Audio    `yaml:"audio"`
	Queue    Queue    `yaml:"queue"`
	Store    Store    `yaml:"store"`
	Redis    Redis    `yaml:"redis"`
	Postgres Postgres `yaml:"postgres"`
	Worker   Worker   `yaml:"worker"`
}

type Server struct {
	Host           string `yaml:"host"`
	Port           string `yaml:"port"`
	AuthSecret     string `yaml:"auth_secret"`
	AuthPassword   string `yaml:"auth_password"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

func (s Server) Addr() string { return s.Host + ":" + s.Port }

type Model struct {
	Name     string               `yaml:"name"`
	Backend  string               `yaml:"backend"`
	Path     string               `yaml:"path"`
	URL      string               `yaml:"url"`
	APIKey   string               `yaml:"api_key"`
	Timeout  time.Duration        `yaml:"timeout"`
	Decoding models.DecodeOptions `yaml:"decoding"`
}

type Audio struct {
	SampleRate    int           `yaml:"sample_rate"`
	ChunkDuration time.Duration `yaml:"chunk_duration"`
	Normalizer    string        `yaml:"normalizer"`
	FFmpegBin     string        `yaml:"ffmpeg_bin"`
}

type Queue struct {
	Backend string        `yaml:"backend"`
	Name    string        `yaml:"name"`
	Block   time.Duration `yaml:"block"`
}

type Store struct {
	Backend string `yaml:"backend"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type Postgres struct {
	DSN string `yaml:"dsn"`
}

type Worker struct {
	Count        int           `yaml:"count"`
	Backoff      time.Duration `yaml:"backoff"`
	Lease        time.Duration `yaml:"lease"`
	ReapInterval time.Duration `yaml:"reap_interval"`
}

// Load reads the YAML file at path (skipped when path is empty) and
// applies environment overrides. The result is validated.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

func LoadWithEnv(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: Server{MaxUploadBytes: 1 << 30},
		Model:  Model{Timeout: 10 * time.Minute},
		Audio:  Audio{Normalizer: NormalizerWAV, FFmpegBin: "ffmpeg"},
		Queue:  Queue{Name: "job_queue", Block: 5 * time.Second},
		Worker: Worker{
			Count:        1,
			Backoff:      5 * time.Second,
			Lease:        2 * time.Hour,
			ReapInterval: time.Minute,
		},
	}
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"HOST":              &cfg.Server.Host,
		"PORT":              &cfg.Server.Port,
		"AUTH_SECRET":       &cfg.Server.AuthSecret,
		"AUTH_PASSWORD":     &cfg.Server.AuthPassword,
		"MODEL_NAME":        &cfg.Model.Name,
		"MODEL_BACKEND":     &cfg.Model.Backend,
		"MODEL_PATH":        &cfg.Model.Path,
		"MODEL_URL":         &cfg.Model.URL,
		"MODEL_API_KEY":     &cfg.Model.APIKey,
		"DECODING_STRATEGY": &cfg.Model.Decoding.Strategy,
		"LANGUAGE":          &cfg.Model.Decoding.Language,
		"NORMALIZER":        &cfg.Audio.Normalizer,
		"QUEUE_BACKEND":     &cfg.Queue.Backend,
		"QUEUE_NAME":        &cfg.Queue.Name,
		"STORE_BACKEND":     &cfg.Store.Backend,
		"REDIS_ADDR":        &cfg.Redis.Addr,
		"REDIS_PASSWORD":    &cfg.Redis.Password,
		"DATABASE_URL":      &cfg.Postgres.DSN,
	}
	for key, dst := range str {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"SAMPLE_RATE":  &cfg.Audio.SampleRate,
		"REDIS_DB":     &cfg.Redis.DB,
		"WORKER_COUNT": &cfg.Worker.Count,
	}
	for key, dst := range ints {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("env %s: %w", key, err)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"CHUNK_DURATION": &cfg.Audio.ChunkDuration,
		"WORKER_BACKOFF": &cfg.Worker.Backoff,
		"WORKER_LEASE":   &cfg.Worker.Lease,
	}
	for key, dst := range durations {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("env %s: %w", key, err)
			}
			*dst = d
		}
	}
	return nil
}

// Validate reports every missing or invalid option at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Server.Port == "" {
		add("server.port is required")
	}
	if c.Server.AuthSecret != "" && c.Server.AuthPassword == "" {
		add("server.auth_password is required when server.auth_secret is set")
	}

	switch c.Model.Backend {
	case ModelHTTP:
		if c.Model.URL == "" {
			add("model.url is required for the http backend")
		}
	case ModelWhisper:
		if c.Model.Path == "" {
			add("model.path is required for the whisper backend")
		}
	case "":
		add("model.backend is required")
	default:
		add("model.backend %q is not one of http, whisper", c.Model.Backend)
	}
	if c.Model.Decoding.Strategy == "" {
		add("model.decoding.strategy is required")
	} else if !models.ValidStrategy(c.Model.Decoding.Strategy) {
		add("model.decoding.strategy %q is not one of greedy, beam", c.Model.Decoding.Strategy)
	}

	if c.Audio.SampleRate <= 0 {
		add("audio.sample_rate is required and must be positive")
	}
	if c.Audio.ChunkDuration <= 0 {
		add("audio.chunk_duration is required and must be positive")
	}
	if c.Audio.Normalizer != NormalizerWAV && c.Audio.Normalizer != NormalizerFFmpeg {
		add("audio.normalizer %q is not one of wav, ffmpeg", c.Audio.Normalizer)
	}

	if c.Queue.Name == "" {
		add("queue.name is required")
	}
	c.checkBackend("queue.backend", c.Queue.Backend, add)
	c.checkBackend("store.backend", c.Store.Backend, add)
	if c.Queue.Backend == BackendMemory && c.Store.Backend != BackendMemory && c.Store.Backend != "" {
		add("queue.backend memory only works with store.backend memory")
	}

	if c.Worker.Count < 0 {
		add("worker.count must not be negative")
	}
	if c.Worker.Backoff <= 0 {
		add("worker.backoff must be positive")
	}
	if c.Worker.Lease <= 0 || c.Worker.ReapInterval <= 0 {
		add("worker.lease and worker.reap_interval must be positive")
	}

	return errors.Join(errs...)
}

func (c *Config) checkBackend(name, backend string, add func(string, ...any)) {
	switch backend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.Addr == "" {
			add("redis.addr is required for %s redis", name)
		}
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			add("postgres.dsn is required for %s postgres", name)
		}
	case "":
		add("%s is required", name)
	default:
		add("%s %q is not one of memory, redis, postgres", name, backend)
	}
}
