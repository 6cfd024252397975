package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/farmer1st/farmcode/artifact"
	"github.com/farmer1st/farmcode/id"
	"github.com/farmer1st/farmcode/phase"
)

// Writer is the worker-side half of the journal protocol. A worker must
// Init its entry before doing anything, Begin before work starts, and
// Commit exactly one terminal entry before releasing itself for shutdown.
// Each call writes the full document in a single durable put.
type Writer struct {
	store artifact.Store
	role  phase.Role
}

// NewWriter creates a Writer for one worker role.
func NewWriter(store artifact.Store, role phase.Role) *Writer {
	return &Writer{store: store, role: role}
}

// Init overwrites the role's entry for a fresh dispatch: PENDING run state,
// pending outcome. A rewound phase reuses the same document path.
func (w *Writer) Init(ctx context.Context, workflowID id.WorkflowID, phaseName string, jobID id.JobID) error {
	now := time.Now().UTC()
	entry := &Entry{
		Meta: Meta{
			Role:        w.role,
			PhaseName:   phaseName,
			JobID:       jobID,
			StartedAt:   now,
			LastUpdated: now,
		},
		Status: Status{RunState: RunPending, Outcome: OutcomePending},
	}
	return w.put(ctx, workflowID, entry, "init")
}

// Begin marks the entry RUNNING. Must follow Init for the same attempt.
func (w *Writer) Begin(ctx context.Context, workflowID id.WorkflowID) error {
	entry, err := w.load(ctx, workflowID)
	if err != nil {
		return err
	}
	entry.Status.RunState = RunRunning
	entry.Meta.LastUpdated = time.Now().UTC()
	return w.put(ctx, workflowID, entry, "begin")
}

// Commit writes the single terminal entry: COMPLETED with a definitive
// outcome, committed atomically by the artifact store.
func (w *Writer) Commit(ctx context.Context, workflowID id.WorkflowID, outcome Outcome, rejectReason string, output map[string]any) error {
	if outcome == OutcomePending {
		return fmt.Errorf("journal: commit requires a definitive outcome")
	}

	entry, err := w.load(ctx, workflowID)
	if err != nil {
		return err
	}
	entry.Status.RunState = RunCompleted
	entry.Status.Outcome = outcome
	entry.Status.RejectReason = rejectReason
	entry.Output = output
	entry.Meta.LastUpdated = time.Now().UTC()
	return w.put(ctx, workflowID, entry, "commit")
}

// Fail records the worker's own failure. Terminal but not COMPLETED: the
// loop will not act on it before the phase timeout.
func (w *Writer) Fail(ctx context.Context, workflowID id.WorkflowID, errMsg string) error {
	entry, err := w.load(ctx, workflowID)
	if err != nil {
		return err
	}
	entry.Status.RunState = RunFailed
	entry.Status.ErrorMessage = errMsg
	entry.Meta.LastUpdated = time.Now().UTC()
	return w.put(ctx, workflowID, entry, "fail")
}

func (w *Writer) load(ctx context.Context, workflowID id.WorkflowID) (*Entry, error) {
	data, err := w.store.Get(ctx, Path(workflowID, w.role))
	if err != nil {
		return nil, fmt.Errorf("journal: load own entry: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("journal: parse own entry: %w", err)
	}
	return &entry, nil
}

func (w *Writer) put(ctx context.Context, workflowID id.WorkflowID, entry *Entry, action string) error {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("journal: marshal entry: %w", err)
	}
	msg := fmt.Sprintf("journal(%s): %s %s for %s", w.role, action, entry.Meta.PhaseName, workflowID)
	if err := w.store.Put(ctx, Path(workflowID, w.role), data, msg); err != nil {
		return fmt.Errorf("journal: put entry: %w", err)
	}
	return nil
}
