// Package gateway abstracts the worker dispatch surface: provisioning and
// releasing worker capacity per role, starting jobs, and polling their
// status. All calls are non-blocking or bounded by the caller's context;
// the control loop never holds a connection across ticks.
package gateway

import (
	"context"

	"github.com/farmer1st/farmcode/id"
	"github.com/farmer1st/farmcode/journal"
	"github.com/farmer1st/farmcode/phase"
)

// JobState represents the externally visible run state of a dispatched job.
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// Finished reports whether the job reached a terminal state.
func (s JobState) Finished() bool { return s == JobCompleted || s == JobFailed }

// RewindContext travels with a dispatch that follows a rejection, so the
// worker knows it is redoing work and why.
type RewindContext struct {
	Attempt           int    `json:"rewind_attempt"`
	PreviousRejection string `json:"previous_rejection"`
}

// Dispatch is the payload handed to a worker when a phase starts.
type Dispatch struct {
	WorkflowID id.WorkflowID     `json:"workflow_id"`
	Phase      string            `json:"phase"`
	Refs       map[string]string `json:"refs,omitempty"`
	Rewind     *RewindContext    `json:"rewind_context,omitempty"`
}

// JobHandle is the ephemeral status of one dispatch. It is never persisted
// beyond the pointer's active job id scalar.
type JobHandle struct {
	ID      id.JobID        `json:"job_id"`
	State   JobState        `json:"run_state"`
	Outcome journal.Outcome `json:"outcome,omitempty"`
}

// Gateway is the dispatch contract consumed by the control loop.
//
// EnsureCapacity and ReleaseCapacity take the requesting workflow so that
// acquire/release pairs are counted per (role, workflow): capacity scales
// to zero only when no workflow holds the role, and repeating either call
// is a no-op.
type Gateway interface {
	// EnsureCapacity requests worker capacity for a role and reports
	// whether it is ready. Non-blocking beyond the warm-up backoff;
	// connection failures during warm-up are expected and reported as
	// not-ready rather than errors.
	EnsureCapacity(ctx context.Context, role phase.Role, workflowID id.WorkflowID) (bool, error)

	// ReleaseCapacity drops this workflow's hold on a role. Idempotent.
	ReleaseCapacity(ctx context.Context, role phase.Role, workflowID id.WorkflowID) error

	// StartJob dispatches work to a role and returns quickly with the new
	// job's ID.
	StartJob(ctx context.Context, role phase.Role, d Dispatch) (id.JobID, error)

	// QueryJob returns the current status of a dispatched job.
	QueryJob(ctx context.Context, role phase.Role, jobID id.JobID) (JobHandle, error)
}
