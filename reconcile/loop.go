// Package reconcile implements the control loop: the only writer of
// workflow pointers. Each tick reconciles one workflow's pointer against
// the completion journal and the dispatch gateway, then persists at most
// one transition. Ticks are idempotent; re-running a tick after a crash
// reaches the same state without duplicating work.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/farmer1st/farmcode"
	"github.com/farmer1st/farmcode/gateway"
	"github.com/farmer1st/farmcode/id"
	"github.com/farmer1st/farmcode/journal"
	"github.com/farmer1st/farmcode/observability"
	"github.com/farmer1st/farmcode/phase"
	"github.com/farmer1st/farmcode/pointer"
)

// Projector pushes a pointer's state to an external status surface.
// Implementations swallow their own errors; the loop neither checks nor
// retries projection.
type Projector interface {
	Project(ctx context.Context, p *pointer.Pointer)
}

// DefaultPhaseTimeout bounds one phase attempt from dispatch to a trusted
// completed journal.
const DefaultPhaseTimeout = 2 * time.Hour

// DefaultMaxRewinds is how many rewinds to phase zero a workflow may spend
// before a further rejection becomes terminal.
const DefaultMaxRewinds = 2

// Loop reconciles workflow pointers. One Loop serves all workflows; per
// workflow, calls are serialized by the coordinator.
type Loop struct {
	pointers  pointer.Store
	journals  *journal.Reader
	gw        gateway.Gateway
	projector Projector
	metrics   *observability.Metrics
	logger    *slog.Logger

	clock        func() time.Time
	phaseTimeout time.Duration
	maxRewinds   int
	refs         map[string]string
}

// Option configures a Loop.
type Option func(*Loop)

// WithProjector sets the status projector.
func WithProjector(p Projector) Option {
	return func(l *Loop) { l.projector = p }
}

// WithMetrics sets the metric sink. Nil is valid and records nothing.
func WithMetrics(m *observability.Metrics) Option {
	return func(l *Loop) { l.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// WithClock overrides the time source. Tests use this to drive timeouts.
func WithClock(clock func() time.Time) Option {
	return func(l *Loop) { l.clock = clock }
}

// WithPhaseTimeout sets the per-phase attempt timeout.
func WithPhaseTimeout(d time.Duration) Option {
	return func(l *Loop) { l.phaseTimeout = d }
}

// WithMaxRewinds sets the rewind budget.
func WithMaxRewinds(n int) Option {
	return func(l *Loop) { l.maxRewinds = n }
}

// WithRefs sets opaque refs (repository, branch, etc.) carried verbatim on
// every dispatch.
func WithRefs(refs map[string]string) Option {
	return func(l *Loop) { l.refs = refs }
}

// NewLoop creates a control loop over the given collaborators.
func NewLoop(pointers pointer.Store, journals *journal.Reader, gw gateway.Gateway, opts ...Option) *Loop {
	l := &Loop{
		pointers:     pointers,
		journals:     journals,
		gw:           gw,
		logger:       slog.Default(),
		clock:        func() time.Time { return time.Now().UTC() },
		phaseTimeout: DefaultPhaseTimeout,
		maxRewinds:   DefaultMaxRewinds,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Tick reconciles one workflow once. Safe to invoke at any frequency; a
// tick that finds nothing to do changes nothing.
func (l *Loop) Tick(ctx context.Context, workflowID id.WorkflowID) error {
	l.metrics.Tick(ctx)

	p, err := l.pointers.GetPointer(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("reconcile: load pointer: %w", err)
	}
	if p.Terminal() {
		return nil
	}

	current, err := p.CurrentPhase()
	if err != nil {
		// An out-of-range index on a live pointer means the record was
		// corrupted outside the loop. Fail rather than guess.
		return l.fail(ctx, p, phase.RoleNone, fmt.Sprintf("pointer corrupt: %v", err), "protocol_violation")
	}

	if current.IsAwait() {
		// A freshly created pointer whose first phase is a gate still
		// reads pending; settle it so Notify will accept the wake.
		if p.State != pointer.StateAwaitingExternal {
			p.State = pointer.StateAwaitingExternal
			if err := l.save(ctx, p); err != nil {
				return err
			}
		}
		// Exit is only via Notify.
		return nil
	}

	entry, jerr := l.journals.Read(ctx, workflowID, current.Role)
	switch {
	case jerr == nil:
		if entry.Status.RunState == journal.RunCompleted && matchesAttempt(p, current, entry) {
			return l.resolve(ctx, p, current, entry)
		}
	case errors.Is(jerr, farmcode.ErrNoJournal):
		// Worker has not written yet.
	case errors.Is(jerr, farmcode.ErrMalformedJournal):
		return l.fail(ctx, p, current.Role, fmt.Sprintf("malformed journal: %v", jerr), "protocol_violation")
	default:
		return fmt.Errorf("reconcile: read journal: %w", jerr)
	}

	if p.ActiveJobID.IsNil() {
		return l.dispatch(ctx, p, current)
	}
	return l.awaitResolution(ctx, p, current)
}

// dispatch runs step 4: acquire capacity and start the phase's job. A
// not-ready gateway is normal; the tick simply returns and the next one
// retries, bounded by the phase timeout.
func (l *Loop) dispatch(ctx context.Context, p *pointer.Pointer, current phase.Phase) error {
	if l.expired(p) {
		return l.failTimeout(ctx, p, current)
	}

	ready, err := l.gw.EnsureCapacity(ctx, current.Role, p.ID)
	if err != nil {
		return fmt.Errorf("reconcile: ensure capacity for %s: %w", current.Role, err)
	}
	if !ready {
		l.logger.Debug("capacity not ready",
			slog.String("workflow_id", p.ID.String()),
			slog.String("role", string(current.Role)),
		)
		return nil
	}

	d := gateway.Dispatch{
		WorkflowID: p.ID,
		Phase:      current.Name,
		Refs:       l.refs,
	}
	if p.LastOutcome == pointer.OutcomeReject {
		d.Rewind = &gateway.RewindContext{
			Attempt:           p.RewindCount,
			PreviousRejection: p.LastRejectReason,
		}
	}

	jobID, err := l.gw.StartJob(ctx, current.Role, d)
	if err != nil {
		// Transient dispatch failure. Retried next tick within the phase
		// timeout, never surfaced as a tick error.
		l.logger.Warn("dispatch failed, will retry",
			slog.String("workflow_id", p.ID.String()),
			slog.String("phase", current.Name),
			slog.String("error", err.Error()),
		)
		return nil
	}

	p.ActiveJobID = jobID
	p.State = pointer.StateRunning
	p.PhaseStartedAt = l.clock()
	if err := l.save(ctx, p); err != nil {
		return err
	}
	l.logger.Info("phase dispatched",
		slog.String("workflow_id", p.ID.String()),
		slog.String("phase", current.Name),
		slog.String("role", string(current.Role)),
		slog.String("job_id", jobID.String()),
	)
	return nil
}

// awaitResolution runs step 5: the dispatch is out but no trusted journal
// has appeared. Only the phase timeout can end the wait; gateway-reported
// job states are informational because the journal is the sole truth for
// outcomes.
func (l *Loop) awaitResolution(ctx context.Context, p *pointer.Pointer, current phase.Phase) error {
	if l.expired(p) {
		return l.failTimeout(ctx, p, current)
	}

	h, err := l.gw.QueryJob(ctx, current.Role, p.ActiveJobID)
	if err != nil {
		l.logger.Debug("job status query failed",
			slog.String("workflow_id", p.ID.String()),
			slog.String("job_id", p.ActiveJobID.String()),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if h.State.Finished() {
		l.logger.Debug("job finished, waiting for committed journal",
			slog.String("workflow_id", p.ID.String()),
			slog.String("job_id", p.ActiveJobID.String()),
			slog.String("job_state", string(h.State)),
		)
	}
	return nil
}

// resolve runs steps 6 and 7 on a trusted completed journal entry.
// Capacity for the phase's role is released whatever branch is taken.
func (l *Loop) resolve(ctx context.Context, p *pointer.Pointer, current phase.Phase, entry *journal.Entry) error {
	defer l.release(ctx, current.Role, p.ID)

	switch entry.Status.Outcome {
	case journal.OutcomePass:
		return l.advance(ctx, p)

	case journal.OutcomeReject:
		if !current.CanReject {
			reason := fmt.Sprintf("REJECT from non-rejecting phase %q", current.Name)
			return l.fail(ctx, p, phase.RoleNone, reason, "protocol_violation")
		}
		return l.reject(ctx, p, entry.Status.RejectReason)

	case journal.OutcomeWaiting:
		p.ActiveJobID = id.Nil
		p.LastOutcome = pointer.OutcomeWaiting
		// Restamp so the committed WAITING journal no longer matches the
		// attempt; the next tick starts a fresh dispatch with a fresh
		// timeout window.
		p.PhaseStartedAt = l.clock()
		if err := l.save(ctx, p); err != nil {
			return err
		}
		l.logger.Info("phase yielded, staying in place",
			slog.String("workflow_id", p.ID.String()),
			slog.String("phase", current.Name),
		)
		return nil

	default:
		// Entry.Validate rejects a completed entry without a definitive
		// outcome before it reaches here.
		return l.fail(ctx, p, phase.RoleNone,
			fmt.Sprintf("completed journal with outcome %q", entry.Status.Outcome), "protocol_violation")
	}
}

// matchesAttempt reports whether a completed journal entry belongs to the
// pointer's current phase attempt rather than an earlier pass.
func matchesAttempt(p *pointer.Pointer, current phase.Phase, entry *journal.Entry) bool {
	if !p.ActiveJobID.IsNil() {
		return entry.Meta.JobID == p.ActiveJobID
	}
	// Crash after the worker finished but before this loop saw it: no
	// active job recorded, so trust the journal only if it names the
	// current phase and postdates our entry into it.
	return entry.Meta.PhaseName == current.Name && entry.Meta.LastUpdated.After(p.PhaseStartedAt)
}

func (l *Loop) expired(p *pointer.Pointer) bool {
	return l.clock().Sub(p.PhaseStartedAt) > l.phaseTimeout
}

// release drops capacity for a role, best-effort.
func (l *Loop) release(ctx context.Context, role phase.Role, workflowID id.WorkflowID) {
	if role == phase.RoleNone {
		return
	}
	if err := l.gw.ReleaseCapacity(ctx, role, workflowID); err != nil {
		l.logger.Warn("capacity release failed",
			slog.String("role", string(role)),
			slog.String("workflow_id", workflowID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// save persists the pointer and projects the new state.
func (l *Loop) save(ctx context.Context, p *pointer.Pointer) error {
	if err := l.pointers.UpdatePointer(ctx, p); err != nil {
		return fmt.Errorf("reconcile: save pointer: %w", err)
	}
	if l.projector != nil {
		l.projector.Project(ctx, p)
	}
	return nil
}
