// Package journal implements the worker completion journal: one JSON
// document per worker role per workflow, written only by that worker and
// read only by the control loop. The journal is the sole source of truth
// for phase outcomes; the loop trusts nothing but a COMPLETED entry.
package journal

import (
	"fmt"
	"time"

	"github.com/farmer1st/farmcode"
	"github.com/farmer1st/farmcode/id"
	"github.com/farmer1st/farmcode/phase"
)

// RunState represents the execution state of a phase attempt.
type RunState string

const (
	// RunPending means the worker initialized its entry but has not started.
	RunPending RunState = "pending"
	// RunRunning means the worker is executing. Evidence of liveness, not
	// of completion.
	RunRunning RunState = "running"
	// RunCompleted means the worker finished and committed a definitive
	// outcome. The only state the loop acts on.
	RunCompleted RunState = "completed"
	// RunFailed means the worker recorded its own failure.
	RunFailed RunState = "failed"
)

// Terminal reports whether the run state is final.
func (s RunState) Terminal() bool { return s == RunCompleted || s == RunFailed }

// Outcome is the worker's verdict for a completed phase attempt.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomePass    Outcome = "pass"
	OutcomeReject  Outcome = "reject"
	OutcomeWaiting Outcome = "waiting"
)

// Meta identifies which attempt a journal entry describes.
type Meta struct {
	Role        phase.Role    `json:"worker_role"`
	PhaseName   string        `json:"phase_name"`
	JobID       id.JobID      `json:"job_id"`
	StartedAt   time.Time     `json:"started_at"`
	LastUpdated time.Time     `json:"last_updated"`
}

// Status is the worker-reported state and outcome of the attempt.
type Status struct {
	RunState     RunState `json:"run_state"`
	Outcome      Outcome  `json:"outcome"`
	RejectReason string   `json:"reject_reason,omitempty"`
	ErrorMessage string   `json:"error_message,omitempty"`
}

// Entry is one journal document. A worker overwrites its entry on each new
// dispatch into a phase; a rewind changes content, not identity.
type Entry struct {
	Meta   Meta           `json:"meta"`
	Status Status         `json:"status"`
	Output map[string]any `json:"output,omitempty"`
}

// Terminal reports whether the entry carries a final run state.
func (e *Entry) Terminal() bool { return e.Status.RunState.Terminal() }

// Validate checks the entry is structurally meaningful to the loop.
func (e *Entry) Validate() error {
	if e.Meta.Role == phase.RoleNone {
		return fmt.Errorf("%w: entry has no worker role", farmcode.ErrMalformedJournal)
	}
	if e.Meta.PhaseName == "" {
		return fmt.Errorf("%w: entry has no phase name", farmcode.ErrMalformedJournal)
	}
	switch e.Status.RunState {
	case RunPending, RunRunning, RunCompleted, RunFailed:
	default:
		return fmt.Errorf("%w: unknown run state %q", farmcode.ErrMalformedJournal, e.Status.RunState)
	}
	switch e.Status.Outcome {
	case OutcomePending, OutcomePass, OutcomeReject, OutcomeWaiting:
	default:
		return fmt.Errorf("%w: unknown outcome %q", farmcode.ErrMalformedJournal, e.Status.Outcome)
	}
	if e.Status.RunState == RunCompleted && e.Status.Outcome == OutcomePending {
		return fmt.Errorf("%w: completed entry without definitive outcome", farmcode.ErrMalformedJournal)
	}
	return nil
}

// Path returns the document path for a role's journal within a workflow.
func Path(workflowID id.WorkflowID, role phase.Role) string {
	return fmt.Sprintf("journals/%s/%s.json", workflowID, role)
}
