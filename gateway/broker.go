package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/farmer1st/farmcode/backoff"
	"github.com/farmer1st/farmcode/id"
	"github.com/farmer1st/farmcode/phase"
)

// Compile-time check that Broker implements Gateway.
var _ Gateway = (*Broker)(nil)

// JobClient starts and queries jobs on a role's worker endpoint.
// Implemented by HTTPJobClient; test fakes implement it directly.
type JobClient interface {
	Start(ctx context.Context, role phase.Role, d Dispatch) (id.JobID, error)
	Query(ctx context.Context, role phase.Role, jobID id.JobID) (JobHandle, error)
}

// Broker is the standard Gateway: a CapacityCounter over a Scaler for the
// capacity lifecycle, and a JobClient for dispatch. Warm-up readiness is
// rechecked with exponential backoff (1s/2s/4s) within the caller's
// context deadline; the overall retry budget is the phase timeout,
// enforced by the control loop, not here.
type Broker struct {
	caps   *CapacityCounter
	jobs   JobClient
	warmup backoff.Strategy
	logger *slog.Logger
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) BrokerOption {
	return func(b *Broker) { b.logger = logger }
}

// WithWarmupBackoff overrides the in-call readiness recheck delays.
func WithWarmupBackoff(s backoff.Strategy) BrokerOption {
	return func(b *Broker) { b.warmup = s }
}

// NewBroker creates a Broker from a scaler and a job client.
func NewBroker(scaler Scaler, jobs JobClient, opts ...BrokerOption) *Broker {
	b := &Broker{
		jobs:   jobs,
		warmup: backoff.Warmup(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.caps = NewCapacityCounter(scaler, b.logger)
	return b
}

// EnsureCapacity acquires a hold and waits briefly for readiness. Scaler
// connection failures during warm-up are expected: they are logged and
// reported as not-ready so the loop retries on a later tick.
func (b *Broker) EnsureCapacity(ctx context.Context, role phase.Role, workflowID id.WorkflowID) (bool, error) {
	for attempt := 1; ; attempt++ {
		ready, err := b.caps.Acquire(ctx, role, workflowID)
		if err != nil {
			b.logger.Debug("capacity warm-up not ready",
				slog.String("role", string(role)),
				slog.String("workflow_id", workflowID.String()),
				slog.String("error", err.Error()),
			)
			return false, nil
		}
		if ready {
			return true, nil
		}

		delay := b.warmup.Delay(attempt)
		select {
		case <-ctx.Done():
			return false, nil
		case <-time.After(delay):
		}
	}
}

// ReleaseCapacity drops the workflow's hold on the role.
func (b *Broker) ReleaseCapacity(ctx context.Context, role phase.Role, workflowID id.WorkflowID) error {
	return b.caps.Release(ctx, role, workflowID)
}

// StartJob dispatches work to the role's endpoint.
func (b *Broker) StartJob(ctx context.Context, role phase.Role, d Dispatch) (id.JobID, error) {
	return b.jobs.Start(ctx, role, d)
}

// QueryJob returns the current status of a dispatched job.
func (b *Broker) QueryJob(ctx context.Context, role phase.Role, jobID id.JobID) (JobHandle, error) {
	return b.jobs.Query(ctx, role, jobID)
}
