package worker

import (
	"context"
	"time"

	"clipforge/internal/pkg/logger"
	"clipforge/internal/render"
)

// Queue is the pending-poll queue. The Redis implementation lives in
// the queue subpackage.
type Queue interface {
	Pop(ctx context.Context) (string, error)
	Push(ctx context.Context, jobID string) error
}

type Deps struct {
	Store        *render.Store
	Queue        Queue
	PollInterval time.Duration
	Log          *logger.Logger
}
