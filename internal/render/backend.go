package render

import (
	"context"
	"encoding/json"
)

// Progress is the backend's view of an in-flight render.
type Progress struct {
	// Done means the render finished and the artifact is retrievable.
	Done bool
	// FractionComplete is in [0,1]; only meaningful while not done.
	FractionComplete float64
	// FatalError means the render itself failed (bad input media etc).
	FatalError bool
	// ResultLocation is set when Done.
	ResultLocation string
	// ErrorMessage is set when FatalError.
	ErrorMessage string
}

// Backend is the opaque asynchronous rendering service. The store
// never inspects its internals, only this contract.
type Backend interface {
	// StartRender submits a render request and returns the backend's
	// own handle for it. Fails with *SubmissionError on validation,
	// quota, or availability problems.
	StartRender(ctx context.Context, params json.RawMessage) (handle string, err error)

	// PollProgress reads the live progress of a previously started
	// render. Fails with *TransportError when the backend cannot be
	// reached or answers out of contract.
	PollProgress(ctx context.Context, handle string) (Progress, error)
}

// SubmissionError means the backend rejected the initial request.
// The store records it as job failure, it is never returned to callers.
type SubmissionError struct {
	Message string
}

func (e *SubmissionError) Error() string { return e.Message }

// TransportError means the backend was unreachable or erroring while
// polling. With no retry scheduler in the store, it is terminal.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }
