package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/farmer1st/farmcode/id"
	"github.com/farmer1st/farmcode/phase"
	"github.com/farmer1st/farmcode/pointer"
)

// advance moves the pointer past a passed phase. Past the end of the
// sequence the workflow completes; an await-phase parks it until Notify.
func (l *Loop) advance(ctx context.Context, p *pointer.Pointer) error {
	now := l.clock()

	p.CurrentIndex++
	p.ActiveJobID = id.Nil
	p.LastOutcome = pointer.OutcomePass
	p.PhaseStartedAt = now

	next, ok := p.Sequence.At(p.CurrentIndex)
	switch {
	case !ok:
		p.State = pointer.StateCompleted
		p.FinishedAt = &now
	case next.IsAwait():
		p.State = pointer.StateAwaitingExternal
	default:
		p.State = pointer.StateRunning
	}

	if err := l.save(ctx, p); err != nil {
		return err
	}

	if p.State == pointer.StateCompleted {
		l.logger.Info("workflow completed",
			slog.String("workflow_id", p.ID.String()),
		)
	} else {
		l.metrics.Transition(ctx, next.Name)
		l.logger.Info("phase advanced",
			slog.String("workflow_id", p.ID.String()),
			slog.String("phase", next.Name),
			slog.Int("index", p.CurrentIndex),
		)
	}
	return nil
}

// reject applies the rewind policy. Within budget the workflow restarts at
// phase zero carrying the rejection context; beyond it the rejection is
// terminal.
func (l *Loop) reject(ctx context.Context, p *pointer.Pointer, reason string) error {
	newCount := p.RewindCount + 1
	if newCount > l.maxRewinds {
		return l.fail(ctx, p, phase.RoleNone,
			fmt.Sprintf("rewind budget exhausted (%d): %s", l.maxRewinds, reason), "rewind_exhausted")
	}

	p.CurrentIndex = 0
	p.RewindCount = newCount
	p.LastRejectReason = reason
	p.LastOutcome = pointer.OutcomeReject
	p.ActiveJobID = id.Nil
	p.PhaseStartedAt = l.clock()

	first, _ := p.Sequence.At(0)
	if first.IsAwait() {
		p.State = pointer.StateAwaitingExternal
	} else {
		p.State = pointer.StateRunning
	}

	if err := l.save(ctx, p); err != nil {
		return err
	}
	l.metrics.Rewind(ctx)
	l.logger.Warn("workflow rewound to phase zero",
		slog.String("workflow_id", p.ID.String()),
		slog.Int("rewind_count", newCount),
		slog.String("reason", reason),
	)
	return nil
}

// fail forces the workflow terminal. releaseRole, when not RoleNone, names
// a role whose capacity this workflow still holds.
func (l *Loop) fail(ctx context.Context, p *pointer.Pointer, releaseRole phase.Role, reason, class string) error {
	now := l.clock()

	p.State = pointer.StateFailed
	p.FailureReason = reason
	p.ActiveJobID = id.Nil
	p.FinishedAt = &now

	if err := l.save(ctx, p); err != nil {
		return err
	}
	l.release(ctx, releaseRole, p.ID)
	l.metrics.Failure(ctx, class)
	l.logger.Error("workflow failed",
		slog.String("workflow_id", p.ID.String()),
		slog.String("class", class),
		slog.String("reason", reason),
	)
	return nil
}

// failTimeout fails a workflow whose current phase attempt outlived the
// phase timeout. A journal outcome committed after this point is ignored:
// the pointer is terminal.
func (l *Loop) failTimeout(ctx context.Context, p *pointer.Pointer, current phase.Phase) error {
	reason := fmt.Sprintf("phase %q exceeded timeout %s", current.Name, l.phaseTimeout)
	return l.fail(ctx, p, current.Role, reason, "phase_timeout")
}
