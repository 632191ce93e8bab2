package main

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"clipforge/internal/httpapi"
	"clipforge/internal/pkg/logger"
	"clipforge/internal/pkg/shutdown"
	"clipforge/internal/registry/memory"
	"clipforge/internal/registry/postgres"
	"clipforge/internal/render"
	"clipforge/internal/renderer"
	"clipforge/internal/storage"
)

func main() {
	log := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Format:      getEnv("LOG_FORMAT", "json"),
		ServiceName: "clipforge-api",
		AddSource:   getEnv("LOG_SOURCE", "false") == "true",
	})

	log.Info("starting clipforge API", "version", "0.1.0")

	httpPort := getEnv("HTTP_PORT", "8080")
	rendererBaseURL := mustEnv(log, "RENDERER_HTTP_BASEURL")
	registryDriver := getEnv("REGISTRY_DRIVER", "memory")
	queueName := getEnv("RENDER_QUEUE_NAME", "clipforge:renders")

	ctx := context.Background()
	shutdownMgr := shutdown.NewManager(log, 30*time.Second)

	var (
		reg  render.Registry
		pool *pgxpool.Pool
	)
	switch registryDriver {
	case "memory":
		reg = memory.New()
	case "postgres":
		dbURL := mustEnv(log, "DATABASE_URL")
		log.Info("connecting to PostgreSQL")
		p, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			log.LogFatal("failed to connect to PostgreSQL", err)
		}
		if err := p.Ping(ctx); err != nil {
			log.LogFatal("failed to ping PostgreSQL", err)
		}
		pgReg := postgres.New(p)
		if err := pgReg.EnsureSchema(ctx); err != nil {
			log.LogFatal("failed to ensure renders schema", err)
		}
		shutdownMgr.Register("postgres", func(ctx context.Context) error {
			p.Close()
			return nil
		})
		pool = p
		reg = pgReg
		log.Info("PostgreSQL connected")
	default:
		log.Error("unknown registry driver", "driver", registryDriver)
		os.Exit(1)
	}

	// Redis is optional: with it, the worker keeps polling in-flight
	// renders; without it, progress advances only on status requests.
	var rdb *redis.Client
	if redisAddr := getEnv("REDIS_ADDR", ""); redisAddr != "" {
		log.Info("connecting to Redis")
		rdb = redis.NewClient(&redis.Options{Addr: redisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.LogFatal("failed to ping Redis", err)
		}
		shutdownMgr.Register("redis", func(ctx context.Context) error {
			return rdb.Close()
		})
		log.Info("Redis connected")
	}

	log.Info("initializing storage provider")
	sp, err := storage.NewProvider()
	if err != nil {
		log.LogFatal("failed to initialize storage provider", err)
	}
	log.Info("storage provider initialized", "provider", sp.Provider())

	backend := renderer.NewClient(rendererBaseURL)
	store := render.NewStore(backend, reg, log)

	router := httpapi.NewRouter(httpapi.Deps{
		Store:         store,
		SP:            sp,
		Log:           log,
		RDB:           rdb,
		QueueName:     queueName,
		Pool:          pool,
		SubmitLimiter: httpapi.DefaultSubmitLimiter(),
	})

	server := &http.Server{
		Addr:         "0.0.0.0:" + httpPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	go func() {
		log.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogFatal("HTTP server failed", err)
		}
	}()

	shutdownMgr.Wait()
}

// getEnv gets an environment variable with a default value.
func getEnv(key, defaultValue string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	return v
}

// mustEnv gets a required environment variable or exits.
func mustEnv(log *logger.Logger, key string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		log.Error("missing required environment variable", "key", key)
		os.Exit(1)
	}
	return v
}
