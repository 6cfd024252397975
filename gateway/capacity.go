package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/farmer1st/farmcode/id"
	"github.com/farmer1st/farmcode/phase"
)

// Scaler controls the replica count backing one worker role. Implemented
// by gateway/k8s over the Deployment scale subresource.
type Scaler interface {
	// ScaleTo sets the desired replica count for a role.
	ScaleTo(ctx context.Context, role phase.Role, replicas int) error

	// ReadyReplicas returns how many replicas for a role are ready to
	// accept work.
	ReadyReplicas(ctx context.Context, role phase.Role) (int, error)
}

// CapacityCounter reference-counts capacity holds per (role, workflow) on
// top of a Scaler. A role is scaled up on its first hold and back to zero
// when the last hold is released, so overlapping rewind and prior-phase
// teardown within one workflow, or two workflows sharing a role, never
// tear capacity out from under each other.
type CapacityCounter struct {
	scaler Scaler
	logger *slog.Logger

	mu    sync.Mutex
	holds map[phase.Role]map[string]struct{}
}

// NewCapacityCounter creates a counter over the given scaler.
func NewCapacityCounter(scaler Scaler, logger *slog.Logger) *CapacityCounter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CapacityCounter{
		scaler: scaler,
		logger: logger,
		holds:  make(map[phase.Role]map[string]struct{}),
	}
}

// Acquire records a hold for the workflow and reports whether the role has
// ready capacity. Idempotent: re-acquiring an existing hold only re-checks
// readiness.
func (c *CapacityCounter) Acquire(ctx context.Context, role phase.Role, workflowID id.WorkflowID) (bool, error) {
	c.mu.Lock()
	set, ok := c.holds[role]
	if !ok {
		set = make(map[string]struct{})
		c.holds[role] = set
	}
	first := len(set) == 0
	set[workflowID.String()] = struct{}{}
	c.mu.Unlock()

	if first {
		if err := c.scaler.ScaleTo(ctx, role, 1); err != nil {
			return false, fmt.Errorf("gateway: scale up %s: %w", role, err)
		}
	}

	n, err := c.scaler.ReadyReplicas(ctx, role)
	if err != nil {
		return false, fmt.Errorf("gateway: readiness of %s: %w", role, err)
	}
	return n >= 1, nil
}

// Release drops the workflow's hold and scales the role to zero when no
// holds remain. Idempotent: releasing an absent hold is a no-op.
func (c *CapacityCounter) Release(ctx context.Context, role phase.Role, workflowID id.WorkflowID) error {
	c.mu.Lock()
	set, ok := c.holds[role]
	if ok {
		delete(set, workflowID.String())
	}
	last := ok && len(set) == 0
	c.mu.Unlock()

	if !last {
		return nil
	}

	if err := c.scaler.ScaleTo(ctx, role, 0); err != nil {
		return fmt.Errorf("gateway: scale down %s: %w", role, err)
	}
	c.logger.Info("worker capacity released",
		slog.String("role", string(role)),
	)
	return nil
}

// Holds returns the current number of holds on a role.
func (c *CapacityCounter) Holds(role phase.Role) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.holds[role])
}
