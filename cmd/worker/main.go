package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"clipforge/internal/pkg/logger"
	"clipforge/internal/registry/postgres"
	"clipforge/internal/render"
	"clipforge/internal/renderer"
	"clipforge/internal/worker"
	"clipforge/internal/worker/queue"
)

func main() {
	log := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Format:      getEnv("LOG_FORMAT", "json"),
		ServiceName: "clipforge-worker",
	})

	// The worker shares the registry with the API across processes,
	// so it always runs on postgres.
	dbURL := mustEnv(log, "DATABASE_URL")
	redisAddr := mustEnv(log, "REDIS_ADDR")
	rendererBaseURL := mustEnv(log, "RENDERER_HTTP_BASEURL")
	queueName := getEnv("RENDER_QUEUE_NAME", "clipforge:renders")
	pollInterval := durationEnv(log, "POLL_INTERVAL", 2*time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.LogFatal("failed to connect to PostgreSQL", err)
	}
	defer pool.Close()

	reg := postgres.New(pool)
	if err := reg.EnsureSchema(ctx); err != nil {
		log.LogFatal("failed to ensure renders schema", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer rdb.Close()

	store := render.NewStore(renderer.NewClient(rendererBaseURL), reg, log)

	log.Info("clipforge worker started", "queue", queueName, "poll_interval", pollInterval.String())

	err = worker.Run(ctx, worker.Deps{
		Store:        store,
		Queue:        queue.NewRedisQueue(rdb, queueName),
		PollInterval: pollInterval,
		Log:          log,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.LogFatal("worker stopped", err)
	}
	log.Info("clipforge worker stopped")
}

func getEnv(key, defaultValue string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	return v
}

func mustEnv(log *logger.Logger, key string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		log.Error("missing required environment variable", "key", key)
		os.Exit(1)
	}
	return v
}

func durationEnv(log *logger.Logger, key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warn("invalid duration, using default", "key", key, "value", v, "default", def.String())
		return def
	}
	return d
}
