package pipeline

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"telemetry-pipeline/internal/models"
)

// State is a step of a pipeline run. Runs only move forward:
// Idle, Fetching, Transforming, Loading, then Done or Failed.
type State string

const (
	StateIdle         State = "idle"
	StateFetching     State = "fetching"
	StateTransforming State = "transforming"
	StateLoading      State = "loading"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

// Run outcomes as reported to observers and the trigger API.
const (
	StatusSucceeded = "succeeded"
	StatusNoData    = "no_data"
	StatusRejected  = "rejected"
	StatusFailed    = "failed"
)

// Report describes one run.
type Report struct {
	RunID         uuid.UUID
	State         State
	FailedStage   State // the stage that was running when the run failed
	Devices       int
	Rows          int
	Skipped       []*models.RowError
	Inserted      int
	Verified      bool
	VerifiedCount int64
	Err           error
	StartedAt     time.Time
	FinishedAt    time.Time
}

// OK reports whether the run loaded its rows.
func (r Report) OK() bool {
	return r.State == StateDone && r.Err == nil
}

// Status classifies the outcome. An empty snapshot is a failure but is
// reported separately as no_data. A snapshot whose every record was
// malformed is reported as rejected.
func (r Report) Status() string {
	switch {
	case r.OK():
		return StatusSucceeded
	case errors.Is(r.Err, models.ErrRowTransform):
		return StatusRejected
	case errors.Is(r.Err, models.ErrNoRows):
		return StatusNoData
	default:
		return StatusFailed
	}
}

// Duration is the wall time of the run.
func (r Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *Report) fail(err error) {
	r.FailedStage = r.State
	r.State = StateFailed
	r.Err = err
}
