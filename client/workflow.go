package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/farmer1st/farmcode/id"
	"github.com/farmer1st/farmcode/pointer"
)

// PhaseSpec describes one phase when creating a workflow with a custom
// sequence.
type PhaseSpec struct {
	Name      string `json:"name"`
	Role      string `json:"role"`
	CanReject bool   `json:"can_reject"`
}

// CreateWorkflowRequest is the payload for CreateWorkflow. An empty Phases
// slice selects the server's default sequence.
type CreateWorkflowRequest struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Phases      []PhaseSpec `json:"phases,omitempty"`
}

// CreateWorkflow creates a workflow and starts tracking it server-side.
func (c *Client) CreateWorkflow(ctx context.Context, req CreateWorkflowRequest) (*pointer.Pointer, error) {
	var p pointer.Pointer
	if err := c.do(ctx, http.MethodPost, "/workflows", req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetWorkflow retrieves the pointer for one workflow.
func (c *Client) GetWorkflow(ctx context.Context, workflowID id.WorkflowID) (*pointer.Pointer, error) {
	var p pointer.Pointer
	if err := c.do(ctx, http.MethodGet, "/workflows/"+workflowID.String(), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListWorkflows lists workflow pointers, optionally filtered to one
// lifecycle state.
func (c *Client) ListWorkflows(ctx context.Context, state pointer.LifecycleState) ([]*pointer.Pointer, error) {
	path := "/workflows"
	if state != "" {
		path += "?state=" + url.QueryEscape(string(state))
	}
	var resp struct {
		Workflows []*pointer.Pointer `json:"workflows"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Workflows, nil
}

// DeleteWorkflow untracks and removes a workflow.
func (c *Client) DeleteWorkflow(ctx context.Context, workflowID id.WorkflowID) error {
	return c.do(ctx, http.MethodDelete, "/workflows/"+workflowID.String(), nil, nil)
}

// Notify wakes a workflow paused at an await-phase. The phase name must
// match the workflow's current phase exactly; a mismatch is reported as
// accepted=false, not an error.
func (c *Client) Notify(ctx context.Context, workflowID id.WorkflowID, phase string, payload any) (bool, error) {
	body := struct {
		Phase   string          `json:"phase"`
		Payload json.RawMessage `json:"payload,omitempty"`
	}{Phase: phase}

	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return false, fmt.Errorf("farmcode/client: marshal payload: %w", err)
		}
		body.Payload = raw
	}

	var resp struct {
		Accepted bool `json:"accepted"`
	}
	if err := c.do(ctx, http.MethodPost, "/workflows/"+workflowID.String()+"/notify", body, &resp); err != nil {
		return false, err
	}
	return resp.Accepted, nil
}
