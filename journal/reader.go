package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/farmer1st/farmcode"
	"github.com/farmer1st/farmcode/artifact"
	"github.com/farmer1st/farmcode/id"
	"github.com/farmer1st/farmcode/phase"
)

// Reader reads journal entries on behalf of the control loop. It never
// writes journal documents, even for cleanup; the assigned worker is the
// single writer per document.
type Reader struct {
	store artifact.Store
}

// NewReader creates a Reader over the given artifact store.
func NewReader(store artifact.Store) *Reader {
	return &Reader{store: store}
}

// Read pulls the artifact store and parses the entry for the given role.
// Returns farmcode.ErrNoJournal when the worker has not written yet, and
// farmcode.ErrMalformedJournal when a document exists but cannot be
// trusted; the caller treats the latter as a protocol violation.
func (r *Reader) Read(ctx context.Context, workflowID id.WorkflowID, role phase.Role) (*Entry, error) {
	if err := r.store.Pull(ctx); err != nil {
		return nil, fmt.Errorf("journal: pull before read: %w", err)
	}

	data, err := r.store.Get(ctx, Path(workflowID, role))
	if err != nil {
		if errors.Is(err, farmcode.ErrArtifactNotFound) {
			return nil, farmcode.ErrNoJournal
		}
		return nil, fmt.Errorf("journal: read %s/%s: %w", workflowID, role, err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("%w: %s/%s: %v", farmcode.ErrMalformedJournal, workflowID, role, err)
	}
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	return &entry, nil
}
