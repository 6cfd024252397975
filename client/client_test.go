package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/farmer1st/farmcode/client"
	"github.com/farmer1st/farmcode/id"
	"github.com/farmer1st/farmcode/phase"
	"github.com/farmer1st/farmcode/pointer"
)

func testPointer(t *testing.T) *pointer.Pointer {
	t.Helper()
	p, err := pointer.New(id.NewWorkflowID(), "test", "", phase.DefaultSequence())
	if err != nil {
		t.Fatalf("pointer.New: %v", err)
	}
	return p
}

func TestCreateWorkflow(t *testing.T) {
	t.Parallel()

	want := testPointer(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/workflows" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req client.CreateWorkflowRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Title != "test" {
			t.Errorf("title = %q, want %q", req.Title, "test")
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(want)
	}))
	defer srv.Close()

	c := client.New(srv.URL)
	got, err := c.CreateWorkflow(context.Background(), client.CreateWorkflowRequest{Title: "test"})
	if err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}
	if got.ID != want.ID {
		t.Errorf("ID = %v, want %v", got.ID, want.ID)
	}
	if got.State != pointer.StatePending {
		t.Errorf("State = %v, want %v", got.State, pointer.StatePending)
	}
}

func TestGetWorkflowNotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "workflow not found"})
	}))
	defer srv.Close()

	c := client.New(srv.URL)
	_, err := c.GetWorkflow(context.Background(), id.NewWorkflowID())
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", apiErr.StatusCode)
	}
	if apiErr.Message != "workflow not found" {
		t.Errorf("Message = %q, want %q", apiErr.Message, "workflow not found")
	}
}

func TestListWorkflowsFiltersByState(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("state"); got != string(pointer.StateFailed) {
			t.Errorf("state query = %q, want %q", got, pointer.StateFailed)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"workflows": []*pointer.Pointer{},
			"count":     0,
		})
	}))
	defer srv.Close()

	c := client.New(srv.URL)
	got, err := c.ListWorkflows(context.Background(), pointer.StateFailed)
	if err != nil {
		t.Fatalf("ListWorkflows: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty list, got %d", len(got))
	}
}

func TestNotify(t *testing.T) {
	t.Parallel()

	workflowID := id.NewWorkflowID()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wantPath := "/workflows/" + workflowID.String() + "/notify"
		if r.URL.Path != wantPath {
			t.Errorf("path = %q, want %q", r.URL.Path, wantPath)
		}
		var body struct {
			Phase   string          `json:"phase"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.Phase != "specs-approval" {
			t.Errorf("phase = %q, want %q", body.Phase, "specs-approval")
		}
		_ = json.NewEncoder(w).Encode(map[string]bool{"accepted": true})
	}))
	defer srv.Close()

	c := client.New(srv.URL)
	accepted, err := c.Notify(context.Background(), workflowID, "specs-approval", map[string]string{"approver": "reviewer1"})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if !accepted {
		t.Error("expected accepted=true")
	}
}

func TestDeleteWorkflow(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %q, want DELETE", r.Method)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := client.New(srv.URL)
	if err := c.DeleteWorkflow(context.Background(), id.NewWorkflowID()); err != nil {
		t.Fatalf("DeleteWorkflow: %v", err)
	}
}
