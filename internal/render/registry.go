package render

import (
	"context"

	"clipforge/internal/pkg/errors"
)

// Registry is the persistence port for job records. The store is the
// only writer; implementations live in internal/registry.
type Registry interface {
	// Create inserts a new record. IDs are never reused, so a
	// duplicate insert is a programming error.
	Create(ctx context.Context, job *Job) error

	// Get returns the record for id, or a CodeNotFound error.
	Get(ctx context.Context, id string) (*Job, error)

	// Update overwrites the record for job.ID. Implementations must
	// refuse to overwrite a record that already reached a terminal
	// state and return StaleErr instead: stores in other processes
	// share the registry, and a slow poll must not resurrect a
	// finished job.
	Update(ctx context.Context, job *Job) error
}

// NotFoundErr builds the canonical unknown-job error. Registries
// return it so callers can distinguish "never existed" from "failed".
func NotFoundErr(id string) error {
	return errors.NotFound("render job", id)
}

// IsNotFound reports whether err is the unknown-job error.
func IsNotFound(err error) bool {
	return errors.IsNotFound(err)
}

// StaleErr is the error registries return when an Update targets a
// record that is already terminal. The caller lost the race; the
// stored outcome wins.
func StaleErr(id string) error {
	return errors.Newf(errors.CodeConflict, "render job already terminal: %s", id)
}

// IsStale reports whether err is a lost-race update rejection.
func IsStale(err error) bool {
	return errors.IsCode(err, errors.CodeConflict)
}
