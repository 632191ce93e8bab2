// Package memory provides the in-process job registry. It replaces
// the mutable process-global cache the service grew out of with an
// injected, concurrency-safe store that hands out defensive copies.
package memory

import (
	"context"
	"sync"

	"clipforge/internal/pkg/errors"
	"clipforge/internal/render"
)

type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*render.Job
}

func New() *Registry {
	return &Registry{jobs: make(map[string]*render.Job)}
}

func (r *Registry) Create(ctx context.Context, job *render.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.ID]; exists {
		return errors.AlreadyExists("render job", job.ID)
	}
	r.jobs[job.ID] = job.Clone()
	return nil
}

func (r *Registry) Get(ctx context.Context, id string) (*render.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, render.NotFoundErr(id)
	}
	return job.Clone(), nil
}

func (r *Registry) Update(ctx context.Context, job *render.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.jobs[job.ID]
	if !ok {
		return render.NotFoundErr(job.ID)
	}
	if cur.Terminal() {
		return render.StaleErr(job.ID)
	}
	r.jobs[job.ID] = job.Clone()
	return nil
}
