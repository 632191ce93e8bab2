// Package worker hosts the cooperative polling loop that drives
// status reconciliation for in-flight renders. The loop is just
// another caller of the store: all progress advancement stays
// pull-based, and the store itself never sleeps or schedules.
package worker

import (
	"context"
	"errors"
	"time"

	"clipforge/internal/pkg/logger"
	"clipforge/internal/render"
)

// Run polls jobs from the queue until ctx is canceled. Jobs still
// rendering after a poll are re-enqueued after PollInterval; terminal
// jobs are dropped from the rotation.
func Run(ctx context.Context, d Deps) error {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("worker")

	interval := d.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("worker context canceled, stopping")
			return ctx.Err()
		default:
		}

		popCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		jobID, err := d.Queue.Pop(popCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				log.Info("worker stopping due to context cancellation")
				return ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			log.Warn("queue pop error, retrying", "error", err.Error())
			time.Sleep(1 * time.Second)
			continue
		}
		if jobID == "" {
			continue
		}

		jobCtx := logger.ContextWithJobID(ctx, jobID)
		jobLog := log.WithJobID(jobID)

		job, err := d.Store.GetStatus(jobCtx, jobID)
		if err != nil {
			if render.IsNotFound(err) {
				jobLog.Warn("queued render unknown to registry, dropping")
				continue
			}
			jobLog.Error("status reconciliation failed", "error", err.Error())
			continue
		}

		switch {
		case job.State == render.StateCompleted:
			jobLog.Info("render completed", "result_location", job.ResultLocation)
		case job.State == render.StateFailed:
			jobLog.Info("render failed", "failure_reason", job.FailureReason)
		default:
			jobLog.Debug("render in progress", "progress", job.Progress)

			select {
			case <-ctx.Done():
				log.Info("worker context canceled, stopping")
				return ctx.Err()
			case <-time.After(interval):
			}
			if err := d.Queue.Push(ctx, jobID); err != nil {
				jobLog.Warn("re-enqueue failed", "error", err.Error())
			}
		}
	}
}
