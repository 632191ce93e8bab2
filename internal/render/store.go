package render

import (
	"context"
	"math"
	"sync"
	"time"

	"clipforge/internal/pkg/errors"
	"clipforge/internal/pkg/logger"
)

// Store owns the lifecycle of render jobs. It is the single source of
// truth for "what is the state of job X": jobs are created by Submit
// and only ever mutated by the reconciliation inside GetStatus.
type Store struct {
	backend Backend
	reg     Registry
	log     *logger.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewStore(backend Backend, reg Registry, log *logger.Logger) *Store {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Store{
		backend: backend,
		reg:     reg,
		log:     log.WithComponent("renderstore"),
		locks:   make(map[string]*sync.Mutex),
	}
}

// Submit forwards a validated render request to the backend and
// records the job. Backend rejection is captured as a FAILED job, not
// returned as an error, so callers discover every outcome the same
// way: by polling. The only error returned is caller misuse.
func (s *Store) Submit(ctx context.Context, params []byte) (*Job, error) {
	if len(params) == 0 {
		return nil, errors.ValidationField("params", "render params must not be empty")
	}

	now := time.Now().UTC()
	job := &Job{
		ID:        newJobID(),
		Params:    append([]byte(nil), params...),
		CreatedAt: now,
	}
	log := s.log.FromContext(ctx).WithJobID(job.ID)

	handle, err := s.backend.StartRender(ctx, job.Params)
	if err != nil {
		completed := time.Now().UTC()
		job.State = StateFailed
		job.FailureReason = err.Error()
		job.CompletedAt = &completed
		log.Warn("backend rejected submission", "reason", job.FailureReason)
	} else {
		job.State = StateRendering
		job.ExternalHandle = handle
		log.Info("render submitted", "external_handle", handle)
	}

	if err := s.reg.Create(ctx, job); err != nil {
		return nil, errors.Wrap(err, "renderstore.submit", "failed to persist render job")
	}
	return job.Clone(), nil
}

// GetStatus returns the current record for id, reconciling it against
// the backend when the job is still rendering. Terminal records are
// returned as stored with no backend call. Unknown ids yield a
// CodeNotFound error; every backend or transport problem is folded
// into FAILED state instead of being returned.
func (s *Store) GetStatus(ctx context.Context, id string) (*Job, error) {
	job, err := s.reg.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	// Terminal states are sinks; no poll, no flapping when the
	// backend's own record expires.
	if job.Terminal() {
		return job, nil
	}
	// Defensive: a rendering job without a handle has nothing to poll.
	if job.ExternalHandle == "" {
		return job, nil
	}

	lock := s.jobLock(id)
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the lock: a concurrent poller may have applied a
	// terminal outcome while we waited. Done must be applied once and
	// CompletedAt set exactly once.
	job, err = s.reg.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Terminal() {
		s.releaseLock(id)
		return job, nil
	}

	log := s.log.FromContext(ctx).WithJobID(id)

	prog, err := s.backend.PollProgress(ctx, job.ExternalHandle)
	switch {
	case err != nil:
		s.finish(job, StateFailed, "", "progress poll failed: "+err.Error())
		log.Warn("progress poll failed", "reason", err.Error())
	case prog.FatalError:
		reason := prog.ErrorMessage
		if reason == "" {
			reason = "render failed"
		}
		s.finish(job, StateFailed, "", reason)
		log.Info("render failed", "reason", reason)
	case prog.Done && prog.ResultLocation == "":
		// Out-of-contract response: done with nothing to serve.
		s.finish(job, StateFailed, "", "backend reported done without an output location")
		log.Warn("render done without output location")
	case prog.Done:
		s.finish(job, StateCompleted, prog.ResultLocation, "")
		log.Info("render completed", "result_location", prog.ResultLocation)
	default:
		if pct := roundPercent(prog.FractionComplete); pct > job.Progress {
			job.Progress = pct
		}
	}

	if err := s.reg.Update(ctx, job); err != nil {
		// The registry is shared across processes, so a reconciler in
		// another process may have finished the job while we polled.
		// Its outcome wins; return what it stored.
		if IsStale(err) {
			s.releaseLock(id)
			return s.reg.Get(ctx, id)
		}
		return nil, errors.Wrap(err, "renderstore.status", "failed to persist render job")
	}
	if job.Terminal() {
		s.releaseLock(id)
	}
	return job, nil
}

// finish moves job into a terminal state. Progress freezes at its last
// value except on completion, where the backend is at 100 by contract.
func (s *Store) finish(job *Job, state State, resultLocation, failureReason string) {
	now := time.Now().UTC()
	job.State = state
	job.ResultLocation = resultLocation
	job.FailureReason = failureReason
	job.CompletedAt = &now
	if state == StateCompleted {
		job.Progress = 100
	}
}

func (s *Store) jobLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// releaseLock drops the keyed mutex for a terminal job. Terminal
// reads never take the lock again, and the registry rejects stale
// writes, so a late waiter on the old mutex cannot do damage.
func (s *Store) releaseLock(id string) {
	s.mu.Lock()
	delete(s.locks, id)
	s.mu.Unlock()
}

func roundPercent(fraction float64) int {
	pct := int(math.Round(fraction * 100))
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
