// Package memory provides an in-memory Gateway for tests and local
// development. Jobs never run anywhere; tests drive their outcomes through
// the Complete and Fail hooks.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/farmer1st/farmcode"
	"github.com/farmer1st/farmcode/gateway"
	"github.com/farmer1st/farmcode/id"
	"github.com/farmer1st/farmcode/journal"
	"github.com/farmer1st/farmcode/phase"
)

// Compile-time check that Gateway implements gateway.Gateway.
var _ gateway.Gateway = (*Gateway)(nil)

type jobRecord struct {
	role     phase.Role
	dispatch gateway.Dispatch
	handle   gateway.JobHandle
}

// Gateway is an in-memory gateway.Gateway. Capacity is always ready by
// default; SetReady can make a role report unavailable capacity.
type Gateway struct {
	mu       sync.Mutex
	jobs     map[string]*jobRecord
	order    []string
	notReady map[phase.Role]bool
	starts   map[phase.Role]int
	releases map[phase.Role]int
}

// New creates an empty in-memory gateway.
func New() *Gateway {
	return &Gateway{
		jobs:     make(map[string]*jobRecord),
		notReady: make(map[phase.Role]bool),
		starts:   make(map[phase.Role]int),
		releases: make(map[phase.Role]int),
	}
}

// EnsureCapacity reports ready unless the role was marked not ready.
func (g *Gateway) EnsureCapacity(_ context.Context, role phase.Role, _ id.WorkflowID) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.notReady[role], nil
}

// ReleaseCapacity records the release.
func (g *Gateway) ReleaseCapacity(_ context.Context, role phase.Role, _ id.WorkflowID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.releases[role]++
	return nil
}

// StartJob records a new pending job and returns its ID.
func (g *Gateway) StartJob(_ context.Context, role phase.Role, d gateway.Dispatch) (id.JobID, error) {
	if role == phase.RoleNone || !role.Valid() {
		return id.Nil, fmt.Errorf("%w: %q", farmcode.ErrUnknownRole, role)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	jobID := id.NewJobID()
	g.jobs[jobID.String()] = &jobRecord{
		role:     role,
		dispatch: d,
		handle: gateway.JobHandle{
			ID:    jobID,
			State: gateway.JobRunning,
		},
	}
	g.order = append(g.order, jobID.String())
	g.starts[role]++
	return jobID, nil
}

// QueryJob returns the job's current handle.
func (g *Gateway) QueryJob(_ context.Context, _ phase.Role, jobID id.JobID) (gateway.JobHandle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.jobs[jobID.String()]
	if !ok {
		return gateway.JobHandle{}, farmcode.ErrJobNotFound
	}
	return rec.handle, nil
}

// ──────────────────────────────────────────────────
// Test hooks
// ──────────────────────────────────────────────────

// Complete marks a job completed with the given outcome.
func (g *Gateway) Complete(jobID id.JobID, outcome journal.Outcome) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if rec, ok := g.jobs[jobID.String()]; ok {
		rec.handle.State = gateway.JobCompleted
		rec.handle.Outcome = outcome
	}
}

// Fail marks a job failed at the infrastructure level.
func (g *Gateway) Fail(jobID id.JobID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if rec, ok := g.jobs[jobID.String()]; ok {
		rec.handle.State = gateway.JobFailed
	}
}

// SetReady toggles whether a role reports ready capacity.
func (g *Gateway) SetReady(role phase.Role, ready bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.notReady[role] = !ready
}

// Starts returns how many jobs were started for a role.
func (g *Gateway) Starts(role phase.Role) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.starts[role]
}

// Releases returns how many times a role's capacity was released.
func (g *Gateway) Releases(role phase.Role) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.releases[role]
}

// LastDispatch returns the dispatch payload of the most recently started
// job for a role, if any.
func (g *Gateway) LastDispatch(role phase.Role) (gateway.Dispatch, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i := len(g.order) - 1; i >= 0; i-- {
		rec := g.jobs[g.order[i]]
		if rec.role == role {
			return rec.dispatch, true
		}
	}
	return gateway.Dispatch{}, false
}
