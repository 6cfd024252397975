package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/farmer1st/farmcode/id"
	"github.com/farmer1st/farmcode/pointer"
)

// Notify delivers an external event to a workflow parked in an
// await-phase. It is the only exit from the awaiting state. The expected
// phase name must match the pointer's current phase exactly; a mismatch is
// a logged no-op so stale or duplicate notifications cannot corrupt state.
func (l *Loop) Notify(ctx context.Context, workflowID id.WorkflowID, expectedPhase string, payload []byte) (bool, error) {
	p, err := l.pointers.GetPointer(ctx, workflowID)
	if err != nil {
		return false, fmt.Errorf("reconcile: load pointer: %w", err)
	}

	if p.Terminal() || p.State != pointer.StateAwaitingExternal {
		l.logger.Warn("notification ignored: workflow not awaiting",
			slog.String("workflow_id", workflowID.String()),
			slog.String("state", string(p.State)),
			slog.String("expected_phase", expectedPhase),
		)
		return false, nil
	}

	current, err := p.CurrentPhase()
	if err != nil {
		return false, err
	}
	if current.Name != expectedPhase {
		l.logger.Warn("notification ignored: phase mismatch",
			slog.String("workflow_id", workflowID.String()),
			slog.String("current_phase", current.Name),
			slog.String("expected_phase", expectedPhase),
		)
		return false, nil
	}

	l.logger.Info("external event accepted",
		slog.String("workflow_id", workflowID.String()),
		slog.String("phase", current.Name),
		slog.Int("payload_bytes", len(payload)),
	)

	if err := l.advance(ctx, p); err != nil {
		return false, err
	}
	l.metrics.Wake(ctx)
	return true, nil
}
