package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/farmer1st/farmcode"
	"github.com/farmer1st/farmcode/id"
	"github.com/farmer1st/farmcode/phase"
)

// Compile-time check that HTTPJobClient implements JobClient.
var _ JobClient = (*HTTPJobClient)(nil)

// HTTPJobClient dispatches jobs over the workers' HTTP JSON endpoints.
// The endpoint table is a closed map from role to base URL, fixed at
// construction; there is no runtime string lookup beyond it.
type HTTPJobClient struct {
	endpoints map[phase.Role]string
	hc        *http.Client
}

// NewHTTPJobClient creates a client over the given role endpoint table.
// Every role in the table must be in the closed role set.
func NewHTTPJobClient(endpoints map[phase.Role]string) (*HTTPJobClient, error) {
	for role := range endpoints {
		if role == phase.RoleNone || !role.Valid() {
			return nil, fmt.Errorf("%w: endpoint for %q", farmcode.ErrUnknownRole, role)
		}
	}
	return &HTTPJobClient{
		endpoints: endpoints,
		hc:        &http.Client{Timeout: 3 * time.Second},
	}, nil
}

type startRequest struct {
	TaskType string   `json:"task_type"`
	Context  Dispatch `json:"context"`
}

type startResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// Start posts the dispatch payload and returns the worker-assigned job ID.
func (c *HTTPJobClient) Start(ctx context.Context, role phase.Role, d Dispatch) (id.JobID, error) {
	base, ok := c.endpoints[role]
	if !ok {
		return id.Nil, fmt.Errorf("%w: %q", farmcode.ErrUnknownRole, role)
	}

	body, err := json.Marshal(startRequest{TaskType: string(role), Context: d})
	if err != nil {
		return id.Nil, fmt.Errorf("gateway: marshal dispatch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/jobs", bytes.NewReader(body))
	if err != nil {
		return id.Nil, fmt.Errorf("gateway: build start request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return id.Nil, fmt.Errorf("gateway: start job on %s: %w", role, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusServiceUnavailable {
		// Worker is up but refusing work; the loop retries next tick.
		return id.Nil, fmt.Errorf("gateway: start job on %s: %w", role, farmcode.ErrCapacityUnavailable)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return id.Nil, fmt.Errorf("gateway: start job on %s: unexpected status %d", role, resp.StatusCode)
	}

	var sr startResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return id.Nil, fmt.Errorf("gateway: decode start response: %w", err)
	}
	jobID, err := id.ParseJobID(sr.JobID)
	if err != nil {
		return id.Nil, fmt.Errorf("gateway: worker returned bad job id: %w", err)
	}
	return jobID, nil
}

// Query fetches the current status of a job.
func (c *HTTPJobClient) Query(ctx context.Context, role phase.Role, jobID id.JobID) (JobHandle, error) {
	base, ok := c.endpoints[role]
	if !ok {
		return JobHandle{}, fmt.Errorf("%w: %q", farmcode.ErrUnknownRole, role)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/jobs/"+jobID.String(), nil)
	if err != nil {
		return JobHandle{}, fmt.Errorf("gateway: build query request: %w", err)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return JobHandle{}, fmt.Errorf("gateway: query job on %s: %w", role, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return JobHandle{}, farmcode.ErrJobNotFound
	default:
		return JobHandle{}, fmt.Errorf("gateway: query job on %s: unexpected status %d", role, resp.StatusCode)
	}

	var h JobHandle
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return JobHandle{}, fmt.Errorf("gateway: decode job status: %w", err)
	}
	return h, nil
}
