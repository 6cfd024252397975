package pointer

import (
	"context"

	"github.com/farmer1st/farmcode/id"
)

// ListOpts controls filtering for pointer list queries.
type ListOpts struct {
	// State filters by lifecycle state. Empty means all states.
	State LifecycleState
	// Limit is the maximum number of pointers to return. Zero means no limit.
	Limit int
}

// Store defines the persistence contract for workflow pointers.
// Implementations must be safe for concurrent use; writers are the control
// loops, one per workflow, but reads come from pollers and projectors too.
type Store interface {
	// CreatePointer persists a new pointer. Returns farmcode.ErrPointerExists
	// if the workflow already has one.
	CreatePointer(ctx context.Context, p *Pointer) error

	// GetPointer retrieves a pointer by workflow ID. Returns
	// farmcode.ErrPointerNotFound if absent.
	GetPointer(ctx context.Context, workflowID id.WorkflowID) (*Pointer, error)

	// UpdatePointer persists changes to an existing pointer. Returns
	// farmcode.ErrPointerNotFound if absent.
	UpdatePointer(ctx context.Context, p *Pointer) error

	// DeletePointer removes a pointer by workflow ID.
	DeletePointer(ctx context.Context, workflowID id.WorkflowID) error

	// ListPointers returns pointers matching the given options, ordered by
	// creation time ascending.
	ListPointers(ctx context.Context, opts ListOpts) ([]*Pointer, error)
}
