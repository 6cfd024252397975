package reconcile_test

import (
	"context"
	"sync"
	"testing"
	"time"

	artifactmemory "github.com/farmer1st/farmcode/artifact/memory"
	gwmemory "github.com/farmer1st/farmcode/gateway/memory"
	"github.com/farmer1st/farmcode/id"
	"github.com/farmer1st/farmcode/journal"
	"github.com/farmer1st/farmcode/phase"
	"github.com/farmer1st/farmcode/pointer"
	"github.com/farmer1st/farmcode/reconcile"
	storememory "github.com/farmer1st/farmcode/store/memory"
)

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now().UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// harness wires a loop with in-memory collaborators.
type harness struct {
	t         *testing.T
	pointers  *storememory.Store
	artifacts *artifactmemory.Store
	gw        *gwmemory.Gateway
	clock     *fakeClock
	loop      *reconcile.Loop
}

func newHarness(t *testing.T, opts ...reconcile.Option) *harness {
	t.Helper()
	h := &harness{
		t:         t,
		pointers:  storememory.New(),
		artifacts: artifactmemory.New(),
		gw:        gwmemory.New(),
		clock:     newFakeClock(),
	}
	opts = append([]reconcile.Option{reconcile.WithClock(h.clock.Now)}, opts...)
	h.loop = reconcile.NewLoop(h.pointers, journal.NewReader(h.artifacts), h.gw, opts...)
	return h
}

func (h *harness) create(seq phase.Sequence) id.WorkflowID {
	h.t.Helper()
	p, err := pointer.New(id.NewWorkflowID(), "feature", "", seq)
	if err != nil {
		h.t.Fatalf("pointer.New: %v", err)
	}
	p.PhaseStartedAt = h.clock.Now()
	p.StartedAt = h.clock.Now()
	if err := h.pointers.CreatePointer(context.Background(), p); err != nil {
		h.t.Fatalf("CreatePointer: %v", err)
	}
	return p.ID
}

// tick advances the clock a minute and runs one reconciliation, so each
// tick observably postdates any journal committed before it.
func (h *harness) tick(wf id.WorkflowID) {
	h.t.Helper()
	h.clock.Advance(time.Minute)
	if err := h.loop.Tick(context.Background(), wf); err != nil {
		h.t.Fatalf("Tick: %v", err)
	}
}

func (h *harness) get(wf id.WorkflowID) *pointer.Pointer {
	h.t.Helper()
	p, err := h.pointers.GetPointer(context.Background(), wf)
	if err != nil {
		h.t.Fatalf("GetPointer: %v", err)
	}
	return p
}

// commit writes a full worker journal protocol run for the current active
// job: init, begin, commit with the given outcome.
func (h *harness) commit(wf id.WorkflowID, role phase.Role, phaseName string, outcome journal.Outcome, rejectReason string) {
	h.t.Helper()
	ctx := context.Background()
	p := h.get(wf)

	w := journal.NewWriter(h.artifacts, role)
	if err := w.Init(ctx, wf, phaseName, p.ActiveJobID); err != nil {
		h.t.Fatalf("journal init: %v", err)
	}
	if err := w.Begin(ctx, wf); err != nil {
		h.t.Fatalf("journal begin: %v", err)
	}
	if err := w.Commit(ctx, wf, outcome, rejectReason, nil); err != nil {
		h.t.Fatalf("journal commit: %v", err)
	}
}

func workerSeq(names ...string) phase.Sequence {
	roles := []phase.Role{phase.RoleArchitect, phase.RolePlanner, phase.RoleTester}
	seq := make(phase.Sequence, len(names))
	for i, n := range names {
		seq[i] = phase.Phase{Name: n, Role: roles[i%len(roles)]}
	}
	return seq
}

// Scenario A: three worker phases, each resolving PASS, end in completion.
func TestPassThroughAllPhases(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	seq := workerSeq("s", "t", "u")
	wf := h.create(seq)

	for i, ph := range seq {
		h.tick(wf) // dispatch
		p := h.get(wf)
		if p.State != pointer.StateRunning || p.ActiveJobID.IsNil() {
			t.Fatalf("phase %d: state %q active %v", i, p.State, p.ActiveJobID)
		}
		if p.CurrentIndex != i {
			t.Fatalf("phase %d: index %d", i, p.CurrentIndex)
		}

		h.commit(wf, ph.Role, ph.Name, journal.OutcomePass, "")
		h.tick(wf) // resolve + advance
	}

	p := h.get(wf)
	if p.State != pointer.StateCompleted {
		t.Fatalf("state = %q, want completed", p.State)
	}
	if p.FinishedAt == nil {
		t.Error("FinishedAt not stamped")
	}
	if !p.ActiveJobID.IsNil() {
		t.Error("completed pointer holds an active job")
	}
	if p.LastOutcome != pointer.OutcomePass {
		t.Errorf("LastOutcome = %q", p.LastOutcome)
	}
}

// Re-ticking after dispatch without a completed journal never issues a
// second dispatch.
func TestNoDoubleDispatch(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	wf := h.create(workerSeq("s"))

	h.tick(wf)
	first := h.get(wf).ActiveJobID

	for i := 0; i < 5; i++ {
		h.tick(wf)
	}

	if got := h.gw.Starts(phase.RoleArchitect); got != 1 {
		t.Errorf("starts = %d, want 1", got)
	}
	if h.get(wf).ActiveJobID != first {
		t.Error("active job id changed across idle ticks")
	}
}

// Crash after the worker finished: no active job recorded, journal already
// COMPLETED for the current phase. The next tick advances without
// re-dispatching.
func TestCrashAfterWorkAdvancesWithoutRedispatch(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	seq := workerSeq("s", "t")
	wf := h.create(seq)

	// The worker commits PASS against a job the pointer never recorded.
	ctx := context.Background()
	w := journal.NewWriter(h.artifacts, phase.RoleArchitect)
	if err := w.Init(ctx, wf, "s", id.NewJobID()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := w.Begin(ctx, wf); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := w.Commit(ctx, wf, journal.OutcomePass, "", nil); err != nil {
		t.Fatalf("commit: %v", err)
	}

	h.tick(wf)

	p := h.get(wf)
	if p.CurrentIndex != 1 {
		t.Fatalf("index = %d, want 1", p.CurrentIndex)
	}
	if got := h.gw.Starts(phase.RoleArchitect); got != 0 {
		t.Errorf("starts for recovered phase = %d, want 0", got)
	}
}

// A stale completed journal from an earlier pass through the phase does
// not resolve the new attempt.
func TestStaleJournalIgnoredWhileJobActive(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	wf := h.create(workerSeq("s"))

	h.tick(wf) // dispatch

	// Journal committed under a different job id.
	ctx := context.Background()
	w := journal.NewWriter(h.artifacts, phase.RoleArchitect)
	if err := w.Init(ctx, wf, "s", id.NewJobID()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := w.Begin(ctx, wf); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := w.Commit(ctx, wf, journal.OutcomePass, "", nil); err != nil {
		t.Fatalf("commit: %v", err)
	}

	h.tick(wf)

	p := h.get(wf)
	if p.CurrentIndex != 0 || p.State != pointer.StateRunning {
		t.Errorf("stale journal advanced the pointer: index %d state %q", p.CurrentIndex, p.State)
	}
}

// Scenario B: rejectable phase, max one rewind. First REJECT rewinds to
// zero; the second is terminal.
func TestRewindBudget(t *testing.T) {
	t.Parallel()

	h := newHarness(t, reconcile.WithMaxRewinds(1))
	seq := phase.Sequence{
		{Name: "s", Role: phase.RoleArchitect},
		{Name: "t", Role: phase.RoleTester, CanReject: true},
	}
	wf := h.create(seq)

	// s passes, t rejects.
	h.tick(wf)
	h.commit(wf, phase.RoleArchitect, "s", journal.OutcomePass, "")
	h.tick(wf)
	h.tick(wf)
	h.commit(wf, phase.RoleTester, "t", journal.OutcomeReject, "missing edge cases")
	h.tick(wf)

	p := h.get(wf)
	if p.CurrentIndex != 0 {
		t.Fatalf("index = %d, want 0 after rewind", p.CurrentIndex)
	}
	if p.RewindCount != 1 {
		t.Fatalf("RewindCount = %d, want 1", p.RewindCount)
	}
	if p.LastRejectReason != "missing edge cases" {
		t.Errorf("LastRejectReason = %q", p.LastRejectReason)
	}
	if p.State != pointer.StateRunning {
		t.Errorf("state = %q", p.State)
	}

	// The re-dispatch carries the rewind context.
	h.tick(wf)
	d, ok := h.gw.LastDispatch(phase.RoleArchitect)
	if !ok {
		t.Fatal("no dispatch recorded after rewind")
	}
	if d.Rewind == nil || d.Rewind.Attempt != 1 || d.Rewind.PreviousRejection != "missing edge cases" {
		t.Errorf("rewind context = %+v", d.Rewind)
	}

	// Second pass: s passes, t rejects again. Budget exhausted.
	h.commit(wf, phase.RoleArchitect, "s", journal.OutcomePass, "")
	h.tick(wf)
	h.tick(wf)
	h.commit(wf, phase.RoleTester, "t", journal.OutcomeReject, "still wrong")
	h.tick(wf)

	p = h.get(wf)
	if p.State != pointer.StateFailed {
		t.Fatalf("state = %q, want failed after exhausting rewinds", p.State)
	}
	if p.FailureReason == "" {
		t.Error("FailureReason not recorded")
	}
	if p.FinishedAt == nil {
		t.Error("FinishedAt not stamped")
	}
}

// REJECT from a phase without CanReject is a protocol violation.
func TestRejectFromNonRejectingPhaseFails(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	wf := h.create(workerSeq("s"))

	h.tick(wf)
	h.commit(wf, phase.RoleArchitect, "s", journal.OutcomeReject, "not allowed to say this")
	h.tick(wf)

	p := h.get(wf)
	if p.State != pointer.StateFailed {
		t.Fatalf("state = %q, want failed", p.State)
	}
	if p.RewindCount != 0 {
		t.Errorf("protocol violation consumed a rewind: count %d", p.RewindCount)
	}
}

// Scenario C: await-phase is exited only by a matching notification.
func TestAwaitPhase(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	seq := phase.Sequence{
		{Name: "s", Role: phase.RoleArchitect},
		{Name: "gate"},
		{Name: "u", Role: phase.RoleTester},
	}
	wf := h.create(seq)
	ctx := context.Background()

	h.tick(wf)
	h.commit(wf, phase.RoleArchitect, "s", journal.OutcomePass, "")
	h.tick(wf)

	p := h.get(wf)
	if p.State != pointer.StateAwaitingExternal || p.CurrentIndex != 1 {
		t.Fatalf("state %q index %d, want awaiting at 1", p.State, p.CurrentIndex)
	}

	// Ticks at the gate dispatch nothing.
	before := h.gw.Starts(phase.RoleTester)
	for i := 0; i < 3; i++ {
		h.tick(wf)
	}
	if got := h.gw.Starts(phase.RoleTester); got != before {
		t.Errorf("loop dispatched during await-phase: %d starts", got-before)
	}

	// Mismatched phase name is a no-op.
	accepted, err := h.loop.Notify(ctx, wf, "wrong-gate", nil)
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if accepted {
		t.Fatal("mismatched notification was accepted")
	}
	if p := h.get(wf); p.CurrentIndex != 1 {
		t.Fatalf("mismatched notification moved the pointer to %d", p.CurrentIndex)
	}

	// Matching name advances past the gate.
	accepted, err = h.loop.Notify(ctx, wf, "gate", []byte(`{"approver":"maria"}`))
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if !accepted {
		t.Fatal("matching notification was rejected")
	}
	p = h.get(wf)
	if p.CurrentIndex != 2 || p.State != pointer.StateRunning {
		t.Errorf("after wake: index %d state %q", p.CurrentIndex, p.State)
	}

	// A duplicate of the same notification no longer matches.
	accepted, err = h.loop.Notify(ctx, wf, "gate", nil)
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if accepted {
		t.Error("duplicate notification was accepted")
	}
}

func TestAwaitFirstPhaseAcceptsWake(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	wf := h.create(phase.Sequence{
		{Name: "kickoff-approval"},
		{Name: "s", Role: phase.RoleArchitect},
	})
	ctx := context.Background()

	// The first tick settles a pending pointer at a gate into awaiting.
	h.tick(wf)
	if p := h.get(wf); p.State != pointer.StateAwaitingExternal {
		t.Fatalf("state = %q, want %q", p.State, pointer.StateAwaitingExternal)
	}

	accepted, err := h.loop.Notify(ctx, wf, "kickoff-approval", nil)
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if !accepted {
		t.Fatal("wake at first-phase gate was rejected")
	}
	if p := h.get(wf); p.CurrentIndex != 1 || p.State != pointer.StateRunning {
		t.Errorf("after wake: index %d state %q", p.CurrentIndex, p.State)
	}
}

// Scenario D: journal stuck at RUNNING past the phase timeout is fatal.
func TestPhaseTimeout(t *testing.T) {
	t.Parallel()

	h := newHarness(t, reconcile.WithPhaseTimeout(time.Hour))
	wf := h.create(workerSeq("s"))
	ctx := context.Background()

	h.tick(wf)

	// Worker starts but never commits.
	p := h.get(wf)
	w := journal.NewWriter(h.artifacts, phase.RoleArchitect)
	if err := w.Init(ctx, wf, "s", p.ActiveJobID); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := w.Begin(ctx, wf); err != nil {
		t.Fatalf("begin: %v", err)
	}

	h.clock.Advance(time.Hour + time.Minute)
	h.tick(wf)

	p = h.get(wf)
	if p.State != pointer.StateFailed {
		t.Fatalf("state = %q, want failed", p.State)
	}
	if p.FailureReason == "" {
		t.Error("timeout failure has no reason")
	}
	if got := h.gw.Releases(phase.RoleArchitect); got != 1 {
		t.Errorf("capacity releases = %d, want 1 after timeout", got)
	}
}

// An outcome committed after the timeout already fired is ignored.
func TestLateOutcomeAfterTimeoutIgnored(t *testing.T) {
	t.Parallel()

	h := newHarness(t, reconcile.WithPhaseTimeout(time.Hour))
	wf := h.create(workerSeq("s", "t"))

	h.tick(wf)
	jobID := h.get(wf).ActiveJobID

	h.clock.Advance(2 * time.Hour)
	h.tick(wf)
	if p := h.get(wf); p.State != pointer.StateFailed {
		t.Fatalf("state = %q, want failed", p.State)
	}

	// The worker finally commits PASS.
	ctx := context.Background()
	w := journal.NewWriter(h.artifacts, phase.RoleArchitect)
	if err := w.Init(ctx, wf, "s", jobID); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := w.Begin(ctx, wf); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := w.Commit(ctx, wf, journal.OutcomePass, "", nil); err != nil {
		t.Fatalf("commit: %v", err)
	}

	h.tick(wf)
	p := h.get(wf)
	if p.State != pointer.StateFailed || p.CurrentIndex != 0 {
		t.Errorf("late outcome revived the workflow: state %q index %d", p.State, p.CurrentIndex)
	}
}

// Capacity not ready defers dispatch without error; a later tick proceeds.
func TestCapacityNotReadyDefersDispatch(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.gw.SetReady(phase.RoleArchitect, false)
	wf := h.create(workerSeq("s"))

	h.tick(wf)
	if got := h.gw.Starts(phase.RoleArchitect); got != 0 {
		t.Fatalf("dispatched with no capacity: %d starts", got)
	}
	if p := h.get(wf); !p.ActiveJobID.IsNil() {
		t.Fatal("active job recorded without a dispatch")
	}

	h.gw.SetReady(phase.RoleArchitect, true)
	h.tick(wf)
	if got := h.gw.Starts(phase.RoleArchitect); got != 1 {
		t.Errorf("starts = %d after capacity became ready, want 1", got)
	}
}

// A malformed journal document is a protocol violation.
func TestMalformedJournalFails(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	wf := h.create(workerSeq("s"))
	ctx := context.Background()

	h.tick(wf)
	if err := h.artifacts.Put(ctx, journal.Path(wf, phase.RoleArchitect), []byte("{not json"), ""); err != nil {
		t.Fatalf("Put: %v", err)
	}

	h.tick(wf)
	if p := h.get(wf); p.State != pointer.StateFailed {
		t.Errorf("state = %q, want failed on malformed journal", p.State)
	}
}

// A WAITING outcome clears the active job, stays in phase, and allows a
// fresh dispatch on a later tick.
func TestWaitingOutcomeStaysInPhase(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	wf := h.create(workerSeq("s"))

	h.tick(wf)
	h.commit(wf, phase.RoleArchitect, "s", journal.OutcomeWaiting, "")
	h.tick(wf)

	p := h.get(wf)
	if p.CurrentIndex != 0 {
		t.Fatalf("index = %d, want 0", p.CurrentIndex)
	}
	if !p.ActiveJobID.IsNil() {
		t.Fatal("active job not cleared on WAITING")
	}
	if p.LastOutcome != pointer.OutcomeWaiting {
		t.Errorf("LastOutcome = %q", p.LastOutcome)
	}
	if got := h.gw.Releases(phase.RoleArchitect); got != 1 {
		t.Errorf("releases = %d, want 1", got)
	}

	// Next tick starts a fresh attempt.
	h.tick(wf)
	if got := h.gw.Starts(phase.RoleArchitect); got != 2 {
		t.Errorf("starts = %d, want 2 after WAITING", got)
	}
}

// Terminal pointers are never touched.
func TestTickIsNoopOnTerminal(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	seq := workerSeq("s")
	wf := h.create(seq)

	h.tick(wf)
	h.commit(wf, phase.RoleArchitect, "s", journal.OutcomePass, "")
	h.tick(wf)

	done := h.get(wf)
	if done.State != pointer.StateCompleted {
		t.Fatalf("state = %q", done.State)
	}

	h.tick(wf)
	after := h.get(wf)
	if after.UpdatedAt != done.UpdatedAt {
		t.Error("tick mutated a terminal pointer")
	}
	if got := h.gw.Starts(phase.RoleArchitect); got != 1 {
		t.Errorf("starts = %d, want 1", got)
	}
}

// Capacity is released exactly once per resolution, whatever the branch.
func TestCapacityReleasedAfterResolution(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	seq := workerSeq("s", "t")
	wf := h.create(seq)

	h.tick(wf)
	h.commit(wf, phase.RoleArchitect, "s", journal.OutcomePass, "")
	h.tick(wf)

	if got := h.gw.Releases(phase.RoleArchitect); got != 1 {
		t.Errorf("releases = %d, want 1 after PASS", got)
	}
}
