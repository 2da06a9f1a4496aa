package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/Vovarama1992/scribe/internal/config"
	"github.com/Vovarama1992/scribe/internal/delivery"
	ws "github.com/Vovarama1992/scribe/internal/delivery/ws"
	"github.com/Vovarama1992/scribe/internal/domain"
	"github.com/Vovarama1992/scribe/internal/domain/stations"
	"github.com/Vovarama1992/scribe/internal/infra"
	"github.com/Vovarama1992/scribe/internal/ports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", envOr("CONFIG_PATH", "config.yml"), "path to YAML config")
	flag.Parse()

	// LOGGER
	zcore, _ := zap.NewProduction()
	defer zcore.Sync()
	zl := logger.NewZapLogger(zcore.Sugar())

	// CONFIG
	path := *configPath
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		panic("invalid config: " + err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// BACKENDS
	var (
		pool *pgxpool.Pool
		rdb  *redis.Client
	)
	if cfg.Queue.Backend == config.BackendPostgres || cfg.Store.Backend == config.BackendPostgres {
		listeners := 0
		if cfg.Queue.Backend == config.BackendPostgres {
			listeners = cfg.Worker.Count
		}
		pool, err = infra.NewPgxPool(ctx, cfg.Postgres.DSN, listeners)
		if err != nil {
			panic(err.Error())
		}
		defer pool.Close()

		if err := infra.EnsureSchema(ctx, pool); err != nil {
			panic(err.Error())
		}
	}
	if cfg.Queue.Backend == config.BackendRedis || cfg.Store.Backend == config.BackendRedis {
		rdb, err = infra.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			panic(err.Error())
		}
		defer rdb.Close()
	}

	store, queue := buildBackends(cfg, pool, rdb)
	metrics := infra.NewPrometheusMetrics()

	// STATIONS
	var normalizer ports.Normalizer
	switch cfg.Audio.Normalizer {
	case config.NormalizerFFmpeg:
		normalizer = stations.NewS1FFmpegNormalize(cfg.Audio.FFmpegBin, cfg.Audio.SampleRate, zl)
	default:
		normalizer = stations.NewS1DecodeWAV(cfg.Audio.SampleRate, zl)
	}

	planner, err := stations.NewChunkPlanner(cfg.Audio.ChunkDuration, cfg.Audio.SampleRate)
	if err != nil {
		panic("chunk planner: " + err.Error())
	}

	loader, err := infra.NewRecognizerLoader(cfg.Model, zl)
	if err != nil {
		panic(err.Error())
	}
	executor, err := stations.NewS3Executor(loader, cfg.Model.Decoding, planner.WindowSamples(), zl)
	if err != nil {
		panic(err.Error())
	}
	if err := executor.Warmup(); err != nil {
		panic(err.Error())
	}

	// SERVICES
	pipeline := domain.NewPipeline(normalizer, planner, executor, cfg.Audio.SampleRate, metrics, zl)
	jobService := domain.NewJobService(store, queue, zl)
	authService := domain.NewAuthService(cfg.Server.AuthPassword, cfg.Server.AuthSecret)

	events := make(chan ports.JobEvent, 256)
	hub := ws.NewHub(zl)

	// ROUTER
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "X-Auth"},
		AllowCredentials: true,
	}))
	r.Use(delivery.AuthMiddleware(authService))

	delivery.RegisterRoutes(r, delivery.Handlers{
		Auth:       delivery.NewAuthHandler(authService, zl),
		Transcribe: delivery.NewTranscribeHandler(pipeline, cfg.Server.MaxUploadBytes, zl),
		Jobs:       delivery.NewJobHandler(jobService, cfg.Server.MaxUploadBytes, zl),
		Decoding:   delivery.NewDecodingHandler(executor, zl),
		WS:         ws.WSHandler(hub, jobService, zl),
		Metrics:    metrics.Handler(),
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	// WORKERS
	for i := range cfg.Worker.Count {
		w := domain.NewWorker(queue, store, pipeline, zl, domain.WorkerOptions{
			ID:      i + 1,
			Backoff: cfg.Worker.Backoff,
			Events:  events,
			Metrics: metrics,
		})
		g.Go(func() error { return w.Run(gctx) })
	}

	reaper := domain.NewReaper(store, cfg.Worker.Lease, cfg.Worker.ReapInterval, metrics, zl)
	g.Go(func() error { return reaper.Run(gctx) })

	// BROADCAST LISTENER
	g.Go(func() error { return hub.Forward(gctx, events) })

	g.Go(func() error {
		zl.Log(logger.LogEntry{
			Level:   "info",
			Message: "server started",
			Fields: map[string]any{
				"addr":    srv.Addr,
				"model":   cfg.Model.Backend,
				"name":    cfg.Model.Name,
				"queue":   cfg.Queue.Backend,
				"store":   cfg.Store.Backend,
				"workers": cfg.Worker.Count,
			},
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if cerr := executor.Close(); cerr != nil {
		zl.Log(logger.LogEntry{
			Level:   "error",
			Message: "[EXEC][CLOSE][ERR]",
			Error:   cerr,
		})
	}
	if err != nil {
		zl.Log(logger.LogEntry{
			Level:   "error",
			Message: "server crashed",
			Error:   err,
		})
		os.Exit(1)
	}

	zl.Log(logger.LogEntry{
		Level:   "info",
		Message: "server stopped",
	})
}

func buildBackends(cfg *config.Config, pool *pgxpool.Pool, rdb *redis.Client) (ports.JobStore, ports.JobQueue) {
	var store ports.JobStore
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		store = infra.NewPostgresJobStore(pool)
	case config.BackendRedis:
		store = infra.NewRedisJobStore(rdb)
	default:
		store = infra.NewMemoryJobStore()
	}

	var queue ports.JobQueue
	switch cfg.Queue.Backend {
	case config.BackendPostgres:
		queue = infra.NewPostgresJobQueue(pool, cfg.Queue.Name, cfg.Queue.Block)
	case config.BackendRedis:
		queue = infra.NewRedisJobQueue(rdb, cfg.Queue.Name, cfg.Queue.Block)
	default:
		queue = infra.NewMemoryJobQueue()
	}
	return store, queue
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
