package worker_test

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"clipforge/internal/pkg/logger"
	"clipforge/internal/registry/memory"
	"clipforge/internal/render"
	"clipforge/internal/worker"
)

type chanQueue struct {
	ch chan string

	mu     sync.Mutex
	pushed []string
}

func newChanQueue(size int) *chanQueue {
	return &chanQueue{ch: make(chan string, size)}
}

func (q *chanQueue) Pop(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case id := <-q.ch:
		return id, nil
	}
}

func (q *chanQueue) Push(ctx context.Context, jobID string) error {
	q.mu.Lock()
	q.pushed = append(q.pushed, jobID)
	q.mu.Unlock()
	q.ch <- jobID
	return nil
}

func (q *chanQueue) pushCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pushed)
}

type seqBackend struct {
	mu       sync.Mutex
	poll     int
	progress []render.Progress
}

func (b *seqBackend) StartRender(ctx context.Context, params json.RawMessage) (string, error) {
	return "handle-1", nil
}

func (b *seqBackend) PollProgress(ctx context.Context, handle string) (render.Progress, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx := b.poll
	if idx >= len(b.progress) {
		idx = len(b.progress) - 1
	}
	b.poll++
	return b.progress[idx], nil
}

func quietLog() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Output: io.Discard})
}

func TestRunStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := newChanQueue(1)

	store := render.NewStore(&seqBackend{progress: []render.Progress{{}}}, memory.New(), quietLog())

	done := make(chan error, 1)
	go func() {
		done <- worker.Run(ctx, worker.Deps{Store: store, Queue: q, Log: quietLog()})
	}()

	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestRunDrivesJobToCompletion(t *testing.T) {
	backend := &seqBackend{progress: []render.Progress{
		{FractionComplete: 0.5},
		{Done: true, FractionComplete: 1.0, ResultLocation: "https://bucket/out.mp4"},
	}}
	store := render.NewStore(backend, memory.New(), quietLog())

	job, err := store.Submit(context.Background(), []byte(`{"text":"hi"}`))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	q := newChanQueue(4)
	if err := q.Push(context.Background(), job.ID); err != nil {
		t.Fatalf("seed queue: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- worker.Run(ctx, worker.Deps{
			Store:        store,
			Queue:        q,
			PollInterval: 10 * time.Millisecond,
			Log:          quietLog(),
		})
	}()

	deadline := time.After(3 * time.Second)
	for {
		got, err := store.GetStatus(context.Background(), job.ID)
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if got.State == render.StateCompleted {
			if got.ResultLocation != "https://bucket/out.mp4" {
				t.Errorf("unexpected result location %q", got.ResultLocation)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatalf("job never completed, state=%s", got.State)
		case <-time.After(10 * time.Millisecond):
		}
	}

	// The rendering pass must have gone back into rotation at least once.
	if q.pushCount() < 2 {
		t.Errorf("expected at least one re-enqueue, got %d pushes", q.pushCount())
	}

	cancel()
	<-done
}

func TestRunDropsUnknownJobs(t *testing.T) {
	store := render.NewStore(&seqBackend{progress: []render.Progress{{}}}, memory.New(), quietLog())

	q := newChanQueue(1)
	if err := q.Push(context.Background(), "rnd_ghost"); err != nil {
		t.Fatalf("seed queue: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- worker.Run(ctx, worker.Deps{Store: store, Queue: q, Log: quietLog()})
	}()

	// Give the loop a moment to consume and drop the ghost id.
	time.Sleep(100 * time.Millisecond)

	if q.pushCount() != 1 {
		t.Errorf("unknown job must not be re-enqueued, got %d pushes", q.pushCount())
	}

	cancel()
	<-done
}
