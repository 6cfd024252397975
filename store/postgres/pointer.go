package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/farmer1st/farmcode"
	"github.com/farmer1st/farmcode/id"
	"github.com/farmer1st/farmcode/phase"
	"github.com/farmer1st/farmcode/pointer"
)

const pointerColumns = `
	id, title, description, sequence, current_index, state,
	active_job_id, last_outcome, rewind_count, last_reject_reason,
	failure_reason, phase_started_at, started_at, finished_at,
	created_at, updated_at`

// CreatePointer persists a new pointer.
func (s *Store) CreatePointer(ctx context.Context, p *pointer.Pointer) error {
	if err := p.Validate(); err != nil {
		return err
	}

	seq, err := json.Marshal(p.Sequence)
	if err != nil {
		return fmt.Errorf("farmcode/postgres: marshal sequence: %w", err)
	}

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err = s.pool.Exec(ctx, `
		INSERT INTO farmcode_pointers (
			id, title, description, sequence, current_index, state,
			active_job_id, last_outcome, rewind_count, last_reject_reason,
			failure_reason, phase_started_at, started_at, finished_at,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14,
			$15, $16
		)`,
		p.ID.String(), p.Title, p.Description, seq, p.CurrentIndex, string(p.State),
		p.ActiveJobID.String(), string(p.LastOutcome), p.RewindCount, p.LastRejectReason,
		p.FailureReason, p.PhaseStartedAt, p.StartedAt, p.FinishedAt,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return farmcode.ErrPointerExists
		}
		return fmt.Errorf("farmcode/postgres: create pointer: %w", err)
	}
	return nil
}

// GetPointer retrieves a pointer by workflow ID.
func (s *Store) GetPointer(ctx context.Context, workflowID id.WorkflowID) (*pointer.Pointer, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pointerColumns+` FROM farmcode_pointers WHERE id = $1`,
		workflowID.String(),
	)
	p, err := scanPointer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, farmcode.ErrPointerNotFound
		}
		return nil, fmt.Errorf("farmcode/postgres: get pointer: %w", err)
	}
	return p, nil
}

// UpdatePointer persists changes to an existing pointer.
func (s *Store) UpdatePointer(ctx context.Context, p *pointer.Pointer) error {
	if err := p.Validate(); err != nil {
		return err
	}

	seq, err := json.Marshal(p.Sequence)
	if err != nil {
		return fmt.Errorf("farmcode/postgres: marshal sequence: %w", err)
	}

	p.UpdatedAt = time.Now().UTC()

	tag, err := s.pool.Exec(ctx, `
		UPDATE farmcode_pointers SET
			title = $2, description = $3, sequence = $4, current_index = $5,
			state = $6, active_job_id = $7, last_outcome = $8,
			rewind_count = $9, last_reject_reason = $10, failure_reason = $11,
			phase_started_at = $12, started_at = $13, finished_at = $14,
			updated_at = $15
		WHERE id = $1`,
		p.ID.String(), p.Title, p.Description, seq, p.CurrentIndex,
		string(p.State), p.ActiveJobID.String(), string(p.LastOutcome),
		p.RewindCount, p.LastRejectReason, p.FailureReason,
		p.PhaseStartedAt, p.StartedAt, p.FinishedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("farmcode/postgres: update pointer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return farmcode.ErrPointerNotFound
	}
	return nil
}

// DeletePointer removes a pointer.
func (s *Store) DeletePointer(ctx context.Context, workflowID id.WorkflowID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM farmcode_pointers WHERE id = $1`,
		workflowID.String(),
	)
	if err != nil {
		return fmt.Errorf("farmcode/postgres: delete pointer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return farmcode.ErrPointerNotFound
	}
	return nil
}

// ListPointers returns pointers matching the filters, ordered by creation
// time.
func (s *Store) ListPointers(ctx context.Context, opts pointer.ListOpts) ([]*pointer.Pointer, error) {
	query := `SELECT ` + pointerColumns + ` FROM farmcode_pointers`
	args := []any{}
	if opts.State != "" {
		query += ` WHERE state = $1`
		args = append(args, string(opts.State))
	}
	query += ` ORDER BY created_at ASC`
	if opts.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, opts.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("farmcode/postgres: list pointers: %w", err)
	}
	defer rows.Close()

	var out []*pointer.Pointer
	for rows.Next() {
		p, scanErr := scanPointer(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("farmcode/postgres: scan pointer: %w", scanErr)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("farmcode/postgres: list pointers: %w", err)
	}
	return out, nil
}

// scanPointer reads one pointer row.
func scanPointer(row pgx.Row) (*pointer.Pointer, error) {
	var (
		p           pointer.Pointer
		rawID       string
		rawSeq      []byte
		rawState    string
		rawJobID    string
		rawOutcome  string
		finishedAt  *time.Time
	)

	err := row.Scan(
		&rawID, &p.Title, &p.Description, &rawSeq, &p.CurrentIndex, &rawState,
		&rawJobID, &rawOutcome, &p.RewindCount, &p.LastRejectReason,
		&p.FailureReason, &p.PhaseStartedAt, &p.StartedAt, &finishedAt,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.ID, err = id.ParseWorkflowID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse workflow id: %w", err)
	}
	var seq phase.Sequence
	if err := json.Unmarshal(rawSeq, &seq); err != nil {
		return nil, fmt.Errorf("unmarshal sequence: %w", err)
	}
	p.Sequence = seq
	p.State = pointer.LifecycleState(rawState)
	p.LastOutcome = pointer.Outcome(rawOutcome)
	p.FinishedAt = finishedAt

	if rawJobID != "" {
		p.ActiveJobID, err = id.ParseJobID(rawJobID)
		if err != nil {
			return nil, fmt.Errorf("parse job id: %w", err)
		}
	}
	return &p, nil
}
