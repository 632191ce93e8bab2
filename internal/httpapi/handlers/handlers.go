package handlers

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"clipforge/internal/pkg/logger"
	"clipforge/internal/ports"
	"clipforge/internal/render"
)

type Deps struct {
	Store *render.Store
	SP    ports.StorageProvider
	Log   *logger.Logger

	// RDB and QueueName enable handing submitted jobs to the
	// reconciliation worker. Optional: without Redis, progress still
	// advances on every status request.
	RDB       *redis.Client
	QueueName string

	// Pool is only used for deep health checks when the postgres
	// registry is configured.
	Pool *pgxpool.Pool
}

type Handler struct {
	store     *render.Store
	sp        ports.StorageProvider
	log       *logger.Logger
	rdb       *redis.Client
	queueName string
	pool      *pgxpool.Pool
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	return &Handler{
		store:     d.Store,
		sp:        d.SP,
		log:       log.WithComponent("httpapi"),
		rdb:       d.RDB,
		queueName: d.QueueName,
		pool:      d.Pool,
	}
}
