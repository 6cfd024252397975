package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/farmer1st/farmcode/id"
	"github.com/farmer1st/farmcode/pointer"
)

// Notifier delivers an external wake to the control loop. The loop rejects
// the notification when the expected phase name no longer matches.
type Notifier interface {
	Notify(ctx context.Context, workflowID id.WorkflowID, expectedPhase string, payload []byte) (bool, error)
}

// Poller scans a workflow's timeline for approval signals while the
// workflow sits in an await-phase, and wakes the loop through the
// Notifier. It reads the pointer store but never writes it.
type Poller struct {
	pointers pointer.Store
	source   TimelineSource
	notifier Notifier
	logger   *slog.Logger

	mu        sync.Mutex
	lastCheck map[string]time.Time
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) PollerOption {
	return func(p *Poller) { p.logger = l }
}

// NewPoller creates a poller over the given timeline source.
func NewPoller(pointers pointer.Store, source TimelineSource, notifier Notifier, opts ...PollerOption) *Poller {
	p := &Poller{
		pointers:  pointers,
		source:    source,
		notifier:  notifier,
		logger:    slog.Default(),
		lastCheck: make(map[string]time.Time),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Scan checks the workflow's timeline once. A no-op unless the workflow is
// awaiting an external event. Comments already seen on a previous scan are
// skipped via a per-workflow high-water mark.
func (p *Poller) Scan(ctx context.Context, workflowID id.WorkflowID) error {
	ptr, err := p.pointers.GetPointer(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("signal: load pointer: %w", err)
	}
	if ptr.State != pointer.StateAwaitingExternal {
		return nil
	}

	current, err := ptr.CurrentPhase()
	if err != nil {
		return fmt.Errorf("signal: resolve phase: %w", err)
	}

	comments, err := p.source.Comments(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("signal: read timeline: %w", err)
	}

	since := p.since(workflowID)
	// Approvals predating the await-phase belong to an earlier gate.
	if ptr.PhaseStartedAt.After(since) {
		since = ptr.PhaseStartedAt
	}

	approval, ok := DetectApproval(comments, since)
	if !ok {
		p.advanceWatermark(workflowID, comments)
		return nil
	}

	payload, err := json.Marshal(approval)
	if err != nil {
		return fmt.Errorf("signal: marshal approval: %w", err)
	}

	accepted, err := p.notifier.Notify(ctx, workflowID, current.Name, payload)
	if err != nil {
		return fmt.Errorf("signal: notify: %w", err)
	}
	if !accepted {
		p.logger.Warn("approval notification rejected",
			slog.String("workflow_id", workflowID.String()),
			slog.String("phase", current.Name),
			slog.String("approver", approval.Approver),
		)
	} else {
		p.logger.Info("approval accepted",
			slog.String("workflow_id", workflowID.String()),
			slog.String("phase", current.Name),
			slog.String("approver", approval.Approver),
		)
	}

	p.mu.Lock()
	p.lastCheck[workflowID.String()] = approval.At
	p.mu.Unlock()
	return nil
}

func (p *Poller) since(workflowID id.WorkflowID) time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastCheck[workflowID.String()]
}

// advanceWatermark moves the high-water mark to the newest comment seen so
// an already scanned backlog is not rescanned every interval.
func (p *Poller) advanceWatermark(workflowID id.WorkflowID, comments []Comment) {
	if len(comments) == 0 {
		return
	}
	newest := comments[len(comments)-1].CreatedAt
	p.mu.Lock()
	if newest.After(p.lastCheck[workflowID.String()]) {
		p.lastCheck[workflowID.String()] = newest
	}
	p.mu.Unlock()
}
