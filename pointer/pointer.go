// Package pointer defines the durable record of where a workflow is: its
// phase index, lifecycle state, active job, and rewind budget. The pointer
// is exclusively mutated by the control loop for its workflow; everything
// else reads it.
package pointer

import (
	"fmt"
	"time"

	"github.com/farmer1st/farmcode"
	"github.com/farmer1st/farmcode/id"
	"github.com/farmer1st/farmcode/phase"
)

// LifecycleState represents the lifecycle state of a workflow.
type LifecycleState string

const (
	// StatePending means the workflow was created but its first phase has
	// not been dispatched yet.
	StatePending LifecycleState = "pending"
	// StateRunning means a worker phase is dispatched or dispatchable.
	StateRunning LifecycleState = "running"
	// StateAwaitingExternal means the current phase has no worker and the
	// workflow waits for an external notification.
	StateAwaitingExternal LifecycleState = "awaiting_external"
	// StateCompleted means every phase resolved PASS.
	StateCompleted LifecycleState = "completed"
	// StateFailed means the workflow failed terminally and requires a human.
	StateFailed LifecycleState = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s LifecycleState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Outcome is the resolution of the most recently completed phase attempt.
type Outcome string

const (
	OutcomeNone    Outcome = "none"
	OutcomePass    Outcome = "pass"
	OutcomeReject  Outcome = "reject"
	OutcomeWaiting Outcome = "waiting"
)

// Pointer is the durable progress record for one workflow.
type Pointer struct {
	ID id.WorkflowID `json:"id"`

	// Title and Description are audit metadata carried from workflow
	// creation. Never used for control decisions.
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`

	// Sequence is the immutable ordered phase list, validated at creation.
	Sequence phase.Sequence `json:"sequence"`

	// CurrentIndex is monotonic except on rewind.
	CurrentIndex int            `json:"current_index"`
	State        LifecycleState `json:"state"`

	// ActiveJobID is set iff a dispatch for the current phase is
	// unresolved.
	ActiveJobID id.JobID `json:"active_job_id,omitempty"`
	LastOutcome Outcome  `json:"last_outcome"`

	RewindCount      int    `json:"rewind_count"`
	LastRejectReason string `json:"last_reject_reason,omitempty"`

	// FailureReason holds the diagnostic for a terminal failure. Empty
	// unless State is StateFailed.
	FailureReason string `json:"failure_reason,omitempty"`

	PhaseStartedAt time.Time  `json:"phase_started_at"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a pointer at phase zero in the pending state. The sequence is
// validated here, never again.
func New(workflowID id.WorkflowID, title, description string, seq phase.Sequence) (*Pointer, error) {
	if err := seq.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Pointer{
		ID:             workflowID,
		Title:          title,
		Description:    description,
		Sequence:       seq,
		CurrentIndex:   0,
		State:          StatePending,
		LastOutcome:    OutcomeNone,
		PhaseStartedAt: now,
		StartedAt:      now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Terminal reports whether the pointer admits no further transitions.
func (p *Pointer) Terminal() bool { return p.State.Terminal() }

// CurrentPhase returns the phase at CurrentIndex. An out-of-range index on
// a non-terminal pointer is corruption, reported as ErrInvalidTransition.
func (p *Pointer) CurrentPhase() (phase.Phase, error) {
	ph, ok := p.Sequence.At(p.CurrentIndex)
	if !ok {
		return phase.Phase{}, fmt.Errorf("%w: phase index %d out of range [0,%d)",
			farmcode.ErrInvalidTransition, p.CurrentIndex, len(p.Sequence))
	}
	return ph, nil
}

// Validate checks structural invariants. It does not check the rewind
// budget, which depends on loop configuration.
func (p *Pointer) Validate() error {
	if err := p.Sequence.Validate(); err != nil {
		return err
	}
	if !p.Terminal() {
		if _, ok := p.Sequence.At(p.CurrentIndex); !ok {
			return fmt.Errorf("%w: index %d out of range on non-terminal pointer",
				farmcode.ErrInvalidTransition, p.CurrentIndex)
		}
	}
	if p.Terminal() && !p.ActiveJobID.IsNil() {
		return fmt.Errorf("%w: terminal pointer holds active job %s",
			farmcode.ErrInvalidTransition, p.ActiveJobID)
	}
	return nil
}

// Clone returns a deep copy. Stores return clones so callers can mutate
// without racing with the store.
func (p *Pointer) Clone() *Pointer {
	cp := *p
	cp.Sequence = make(phase.Sequence, len(p.Sequence))
	copy(cp.Sequence, p.Sequence)
	if p.FinishedAt != nil {
		t := *p.FinishedAt
		cp.FinishedAt = &t
	}
	return &cp
}
