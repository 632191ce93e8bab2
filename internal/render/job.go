package render

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a render job.
type State string

const (
	// StateQueued is declared for deployments that decouple acceptance
	// from backend dispatch. Submission here is synchronous-on-accept,
	// so no job is ever observed in it.
	StateQueued State = "QUEUED"

	StateRendering State = "RENDERING"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
)

// Job is one request to turn a set of media/text/parameters into a
// finished video artifact via the external render backend.
type Job struct {
	ID             string          `json:"id"`
	State          State           `json:"state"`
	ExternalHandle string          `json:"external_handle,omitempty"`
	Progress       int             `json:"progress"`
	ResultLocation string          `json:"result_location,omitempty"`
	FailureReason  string          `json:"failure_reason,omitempty"`
	Params         json.RawMessage `json:"params"`
	CreatedAt      time.Time       `json:"created_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// Terminal reports whether the job has reached a sink state.
// Terminal jobs never change again.
func (j *Job) Terminal() bool {
	return j.State == StateCompleted || j.State == StateFailed
}

// Clone returns a deep copy. Params and CompletedAt are the only
// reference-typed fields.
func (j *Job) Clone() *Job {
	cp := *j
	if j.Params != nil {
		cp.Params = append(json.RawMessage(nil), j.Params...)
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

func newJobID() string {
	return "rnd_" + uuid.NewString()
}
