package projector_test

import (
	"context"
	"errors"
	"testing"

	"github.com/farmer1st/farmcode/id"
	"github.com/farmer1st/farmcode/phase"
	"github.com/farmer1st/farmcode/pointer"
	"github.com/farmer1st/farmcode/projector"
)

// fakeLabels is a LabelService with scriptable failures.
type fakeLabels struct {
	labels     map[string]bool
	addErr     error
	listErr    error
	removeErr  error
	addCalls   int
	removeLogs []string
}

func newFakeLabels(existing ...string) *fakeLabels {
	f := &fakeLabels{labels: make(map[string]bool)}
	for _, l := range existing {
		f.labels[l] = true
	}
	return f
}

func (f *fakeLabels) Labels(_ context.Context, _ id.WorkflowID) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]string, 0, len(f.labels))
	for l := range f.labels {
		out = append(out, l)
	}
	return out, nil
}

func (f *fakeLabels) AddLabel(_ context.Context, _ id.WorkflowID, label string) error {
	f.addCalls++
	if f.addErr != nil {
		return f.addErr
	}
	f.labels[label] = true
	return nil
}

func (f *fakeLabels) RemoveLabel(_ context.Context, _ id.WorkflowID, label string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	delete(f.labels, label)
	f.removeLogs = append(f.removeLogs, label)
	return nil
}

func testPointer(t *testing.T, state pointer.LifecycleState) *pointer.Pointer {
	t.Helper()
	p, err := pointer.New(id.NewWorkflowID(), "feature", "", phase.DefaultSequence())
	if err != nil {
		t.Fatalf("pointer.New: %v", err)
	}
	p.State = state
	return p
}

func TestProjectSwapsStatusLabel(t *testing.T) {
	t.Parallel()

	labels := newFakeLabels("status:new", "enhancement")
	pr := projector.New(labels)

	pr.Project(context.Background(), testPointer(t, pointer.StateRunning))

	if !labels.labels["status:running"] {
		t.Error("status:running not added")
	}
	if labels.labels["status:new"] {
		t.Error("stale status label not removed")
	}
	if !labels.labels["enhancement"] {
		t.Error("non-status label was touched")
	}
}

func TestProjectKeepsOldLabelWhenAddFails(t *testing.T) {
	t.Parallel()

	labels := newFakeLabels("status:new")
	labels.addErr = errors.New("api quota exceeded")
	pr := projector.New(labels)

	pr.Project(context.Background(), testPointer(t, pointer.StateRunning))

	if !labels.labels["status:new"] {
		t.Error("old label removed even though the new one failed to apply")
	}
}

func TestProjectSwallowsAllErrors(t *testing.T) {
	t.Parallel()

	labels := newFakeLabels("status:new")
	labels.listErr = errors.New("listing down")
	labels.removeErr = errors.New("removal down")
	pr := projector.New(labels)

	// Must not panic or propagate anything.
	pr.Project(context.Background(), testPointer(t, pointer.StateFailed))

	if !labels.labels["status:failed"] {
		t.Error("add skipped despite only list/remove failing")
	}
}

func TestProjectIdempotent(t *testing.T) {
	t.Parallel()

	labels := newFakeLabels("status:done")
	pr := projector.New(labels)

	pr.Project(context.Background(), testPointer(t, pointer.StateCompleted))
	pr.Project(context.Background(), testPointer(t, pointer.StateCompleted))

	if len(labels.removeLogs) != 0 {
		t.Errorf("removed labels on idempotent projection: %v", labels.removeLogs)
	}
	if !labels.labels["status:done"] {
		t.Error("status:done missing")
	}
}
