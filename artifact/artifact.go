// Package artifact abstracts the version-controlled store that holds
// worker-written journal documents. Reads are pull-then-get; writes are a
// single put that the backend commits and pushes atomically.
package artifact

import "context"

// Store is the narrow contract between the journal layer and the shared
// artifact repository.
type Store interface {
	// Pull refreshes the local view of the store. Safe to call before
	// every read; backends without a remote treat it as a no-op.
	Pull(ctx context.Context) error

	// Get returns the contents of the document at path. Returns
	// farmcode.ErrArtifactNotFound if no such document exists.
	Get(ctx context.Context, path string) ([]byte, error)

	// Put replaces the document at path and durably commits it in one
	// step, recording message as the change description.
	Put(ctx context.Context, path string, data []byte, message string) error
}
