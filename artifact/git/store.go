// Package git implements artifact.Store over a local clone of a shared git
// repository, shelling out to the git CLI. Put writes the file, commits,
// and pushes in one call so remote readers only ever observe complete
// documents.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/farmer1st/farmcode"
	"github.com/farmer1st/farmcode/artifact"
)

var _ artifact.Store = (*Store)(nil)

// Store is a git-CLI-backed artifact store rooted at a working clone.
type Store struct {
	workdir string
	remote  string
	branch  string
	logger  *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithRemote sets the remote and branch to pull from and push to.
// Defaults to origin/main.
func WithRemote(remote, branch string) Option {
	return func(s *Store) {
		s.remote = remote
		s.branch = branch
	}
}

// New creates a Store over an existing clone at workdir.
func New(workdir string, opts ...Option) (*Store, error) {
	if _, err := os.Stat(filepath.Join(workdir, ".git")); err != nil {
		return nil, fmt.Errorf("farmcode/git: %q is not a git clone: %w", workdir, err)
	}

	s := &Store{
		workdir: workdir,
		remote:  "origin",
		branch:  "main",
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Pull fast-forwards the clone. A diverged clone is an operational error
// surfaced to the caller; the store never force-resolves.
func (s *Store) Pull(ctx context.Context) error {
	if err := s.git(ctx, "pull", "--ff-only", s.remote, s.branch); err != nil {
		return fmt.Errorf("farmcode/git: pull: %w", err)
	}
	return nil
}

// Get reads the document at path relative to the clone root.
func (s *Store) Get(_ context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.workdir, filepath.FromSlash(path)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, farmcode.ErrArtifactNotFound
		}
		return nil, fmt.Errorf("farmcode/git: read %q: %w", path, err)
	}
	return data, nil
}

// Put writes, commits, and pushes the document in one call.
func (s *Store) Put(ctx context.Context, path string, data []byte, message string) error {
	full := filepath.Join(s.workdir, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("farmcode/git: mkdir for %q: %w", path, err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("farmcode/git: write %q: %w", path, err)
	}

	if err := s.git(ctx, "add", "--", filepath.FromSlash(path)); err != nil {
		return fmt.Errorf("farmcode/git: add %q: %w", path, err)
	}
	if err := s.git(ctx, "commit", "-m", message); err != nil {
		// An empty commit means the document was already in this state;
		// idempotent writes are fine.
		if strings.Contains(err.Error(), "nothing to commit") {
			return nil
		}
		return fmt.Errorf("farmcode/git: commit %q: %w", path, err)
	}
	if err := s.git(ctx, "push", s.remote, s.branch); err != nil {
		return fmt.Errorf("farmcode/git: push: %w", err)
	}
	return nil
}

func (s *Store) git(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = s.workdir

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		s.logger.Debug("git command failed",
			slog.String("args", strings.Join(args, " ")),
			slog.String("output", out.String()),
		)
		return fmt.Errorf("git %s: %s: %w", args[0], strings.TrimSpace(out.String()), err)
	}
	return nil
}
