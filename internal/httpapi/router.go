package httpapi

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"clipforge/internal/httpapi/handlers"
	"clipforge/internal/httpkit"
	"clipforge/internal/pkg/logger"
	"clipforge/internal/pkg/middleware"
	"clipforge/internal/pkg/ratelimit"
	"clipforge/internal/ports"
	"clipforge/internal/render"
)

type Deps struct {
	Store     *render.Store
	SP        ports.StorageProvider
	Log       *logger.Logger
	RDB       *redis.Client
	QueueName string
	Pool      *pgxpool.Pool

	// SubmitLimiter guards POST /renders. Nil disables limiting.
	SubmitLimiter *ratelimit.Limiter
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(log))
	r.Use(middleware.Recovery(log))

	allowedOrigins := envCSV("CORS_ALLOWED_ORIGINS", []string{
		"http://localhost:3000",
		"http://localhost:5173",
	})
	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAgeSeconds:  600,
	}))

	h := handlers.New(handlers.Deps{
		Store:     d.Store,
		SP:        d.SP,
		Log:       log,
		RDB:       d.RDB,
		QueueName: d.QueueName,
		Pool:      d.Pool,
	})

	r.Get("/health", h.Health)

	r.Group(func(r chi.Router) {
		if d.SubmitLimiter != nil {
			r.Use(middleware.RateLimit(log, d.SubmitLimiter))
		}
		r.Post("/renders", h.PostRender)
	})

	r.Get("/renders/{renderId}", h.GetRender)
	r.Get("/renders/{renderId}/download", h.DownloadRender)

	return r
}

// DefaultSubmitLimiter reads RATE_LIMIT_SUBMITS_PER_MINUTE (0 disables).
func DefaultSubmitLimiter() *ratelimit.Limiter {
	limit := 20
	if raw := strings.TrimSpace(os.Getenv("RATE_LIMIT_SUBMITS_PER_MINUTE")); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			if v == 0 {
				return nil
			}
			if v > 0 {
				limit = v
			}
		}
	}
	return ratelimit.New(limit, time.Minute)
}

func envCSV(key string, def []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
