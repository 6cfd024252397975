// Package projector mirrors workflow lifecycle state onto an external
// status surface as a `status:` label. Projection is strictly best-effort:
// every failure is logged and swallowed, and nothing here ever feeds back
// into control decisions.
package projector

import (
	"context"
	"log/slog"
	"strings"

	"github.com/farmer1st/farmcode/id"
	"github.com/farmer1st/farmcode/pointer"
)

// statusPrefix marks the labels this package owns. Labels outside the
// prefix are never touched.
const statusPrefix = "status:"

var stateLabels = map[pointer.LifecycleState]string{
	pointer.StatePending:          "status:new",
	pointer.StateRunning:          "status:running",
	pointer.StateAwaitingExternal: "status:awaiting-approval",
	pointer.StateCompleted:        "status:done",
	pointer.StateFailed:           "status:failed",
}

// LabelService manages labels on whatever tracker hosts the workflow.
type LabelService interface {
	Labels(ctx context.Context, workflowID id.WorkflowID) ([]string, error)
	AddLabel(ctx context.Context, workflowID id.WorkflowID, label string) error
	RemoveLabel(ctx context.Context, workflowID id.WorkflowID, label string) error
}

// Projector applies the status label matching a pointer's state, then
// clears stale status labels. Adding before removing keeps the workflow
// labeled through the swap.
type Projector struct {
	labels LabelService
	logger *slog.Logger
}

// Option configures a Projector.
type Option func(*Projector)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Projector) { p.logger = l }
}

// New creates a Projector over the given label service.
func New(labels LabelService, opts ...Option) *Projector {
	p := &Projector{
		labels: labels,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Project pushes the pointer's state to the label surface. It never
// returns an error; partial application is acceptable and retried
// naturally on the next state change.
func (p *Projector) Project(ctx context.Context, ptr *pointer.Pointer) {
	target, ok := stateLabels[ptr.State]
	if !ok {
		p.logger.Warn("no status label for state",
			slog.String("workflow_id", ptr.ID.String()),
			slog.String("state", string(ptr.State)),
		)
		return
	}

	if err := p.labels.AddLabel(ctx, ptr.ID, target); err != nil {
		p.logger.Warn("status label add failed",
			slog.String("workflow_id", ptr.ID.String()),
			slog.String("label", target),
			slog.String("error", err.Error()),
		)
		// Do not remove old labels if the new one did not stick.
		return
	}

	existing, err := p.labels.Labels(ctx, ptr.ID)
	if err != nil {
		p.logger.Warn("status label listing failed",
			slog.String("workflow_id", ptr.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	for _, label := range existing {
		if !strings.HasPrefix(label, statusPrefix) || label == target {
			continue
		}
		if err := p.labels.RemoveLabel(ctx, ptr.ID, label); err != nil {
			p.logger.Warn("status label removal failed",
				slog.String("workflow_id", ptr.ID.String()),
				slog.String("label", label),
				slog.String("error", err.Error()),
			)
		}
	}
}
