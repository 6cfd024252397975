package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/farmer1st/farmcode"
	"github.com/farmer1st/farmcode/id"
	"github.com/farmer1st/farmcode/phase"
	"github.com/farmer1st/farmcode/pointer"
)

// CreatePointer stores the pointer as a Hash and indexes its workflow ID.
func (s *Store) CreatePointer(ctx context.Context, p *pointer.Pointer) error {
	if err := p.Validate(); err != nil {
		return err
	}

	wfID := p.ID.String()
	key := pointerKey(wfID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("farmcode/redis: create check exists: %w", err)
	}
	if exists > 0 {
		return farmcode.ErrPointerExists
	}

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	fields, err := pointerToMap(p)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.SAdd(ctx, pointerIDsKey, wfID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("farmcode/redis: create pointer: %w", err)
	}
	return nil
}

// GetPointer retrieves a pointer by workflow ID.
func (s *Store) GetPointer(ctx context.Context, workflowID id.WorkflowID) (*pointer.Pointer, error) {
	vals, err := s.client.HGetAll(ctx, pointerKey(workflowID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("farmcode/redis: get pointer: %w", err)
	}
	if len(vals) == 0 {
		return nil, farmcode.ErrPointerNotFound
	}
	return mapToPointer(vals)
}

// UpdatePointer persists changes to an existing pointer.
func (s *Store) UpdatePointer(ctx context.Context, p *pointer.Pointer) error {
	if err := p.Validate(); err != nil {
		return err
	}

	key := pointerKey(p.ID.String())
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("farmcode/redis: update check exists: %w", err)
	}
	if exists == 0 {
		return farmcode.ErrPointerNotFound
	}

	p.UpdatedAt = time.Now().UTC()
	fields, err := pointerToMap(p)
	if err != nil {
		return err
	}

	if _, err := s.client.HSet(ctx, key, fields).Result(); err != nil {
		return fmt.Errorf("farmcode/redis: update pointer: %w", err)
	}
	return nil
}

// DeletePointer removes a pointer and its index entry.
func (s *Store) DeletePointer(ctx context.Context, workflowID id.WorkflowID) error {
	wfID := workflowID.String()
	key := pointerKey(wfID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("farmcode/redis: delete check exists: %w", err)
	}
	if exists == 0 {
		return farmcode.ErrPointerNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, pointerIDsKey, wfID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("farmcode/redis: delete pointer: %w", err)
	}
	return nil
}

// ListPointers returns pointers matching the filters, ordered by creation
// time.
func (s *Store) ListPointers(ctx context.Context, opts pointer.ListOpts) ([]*pointer.Pointer, error) {
	ids, err := s.client.SMembers(ctx, pointerIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("farmcode/redis: list pointer ids: %w", err)
	}

	out := make([]*pointer.Pointer, 0, len(ids))
	for _, wfID := range ids {
		vals, err := s.client.HGetAll(ctx, pointerKey(wfID)).Result()
		if err != nil {
			return nil, fmt.Errorf("farmcode/redis: list get %s: %w", wfID, err)
		}
		if len(vals) == 0 {
			continue // deleted between SMembers and HGetAll
		}
		p, err := mapToPointer(vals)
		if err != nil {
			return nil, err
		}
		if opts.State != "" && p.State != opts.State {
			continue
		}
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// ──────────────────────────────────────────────────
// Hash conversion
// ──────────────────────────────────────────────────

func pointerToMap(p *pointer.Pointer) (map[string]interface{}, error) {
	seq, err := json.Marshal(p.Sequence)
	if err != nil {
		return nil, fmt.Errorf("farmcode/redis: marshal sequence: %w", err)
	}

	m := map[string]interface{}{
		"id":                 p.ID.String(),
		"title":              p.Title,
		"description":        p.Description,
		"sequence":           string(seq),
		"current_index":      strconv.Itoa(p.CurrentIndex),
		"state":              string(p.State),
		"active_job_id":      p.ActiveJobID.String(),
		"last_outcome":       string(p.LastOutcome),
		"rewind_count":       strconv.Itoa(p.RewindCount),
		"last_reject_reason": p.LastRejectReason,
		"failure_reason":     p.FailureReason,
		"phase_started_at":   p.PhaseStartedAt.Format(time.RFC3339Nano),
		"started_at":         p.StartedAt.Format(time.RFC3339Nano),
		"created_at":         p.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":         p.UpdatedAt.Format(time.RFC3339Nano),
	}
	if p.FinishedAt != nil {
		m["finished_at"] = p.FinishedAt.Format(time.RFC3339Nano)
	}
	return m, nil
}

func mapToPointer(m map[string]string) (*pointer.Pointer, error) {
	wfID, err := id.ParseWorkflowID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("farmcode/redis: parse workflow id: %w", err)
	}

	var seq phase.Sequence
	if err := json.Unmarshal([]byte(m["sequence"]), &seq); err != nil {
		return nil, fmt.Errorf("farmcode/redis: unmarshal sequence: %w", err)
	}

	currentIndex, _ := strconv.Atoi(m["current_index"]) //nolint:errcheck // best-effort parse from trusted Redis data
	rewindCount, _ := strconv.Atoi(m["rewind_count"])   //nolint:errcheck // best-effort parse from trusted Redis data

	phaseStartedAt, _ := time.Parse(time.RFC3339Nano, m["phase_started_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	startedAt, _ := time.Parse(time.RFC3339Nano, m["started_at"])            //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"])            //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"])            //nolint:errcheck // best-effort parse from trusted Redis data

	p := &pointer.Pointer{
		ID:               wfID,
		Title:            m["title"],
		Description:      m["description"],
		Sequence:         seq,
		CurrentIndex:     currentIndex,
		State:            pointer.LifecycleState(m["state"]),
		LastOutcome:      pointer.Outcome(m["last_outcome"]),
		RewindCount:      rewindCount,
		LastRejectReason: m["last_reject_reason"],
		FailureReason:    m["failure_reason"],
		PhaseStartedAt:   phaseStartedAt,
		StartedAt:        startedAt,
		CreatedAt:        createdAt,
		UpdatedAt:        updatedAt,
	}

	if v := m["active_job_id"]; v != "" {
		p.ActiveJobID, _ = id.ParseJobID(v) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	if v := m["finished_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		p.FinishedAt = &t
	}
	return p, nil
}
