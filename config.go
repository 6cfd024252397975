package farmcode

import "time"

// Config holds configuration for the Coordinator and its control loops.
type Config struct {
	// PollInterval is how often each tracked workflow is reconciled.
	PollInterval time.Duration

	// TickTimeout bounds every blocking call made within one tick. It must
	// be shorter than PollInterval so a tick never overlaps itself.
	TickTimeout time.Duration

	// SignalPollInterval is how often await-phases are scanned for
	// externally posted approval markers.
	SignalPollInterval time.Duration

	// PhaseTimeout is the hard per-phase deadline. A phase with no
	// committed journal past this deadline fails the whole workflow.
	PhaseTimeout time.Duration

	// MaxRewinds is the rejection budget. The rewind that would exceed it
	// becomes a terminal failure instead.
	MaxRewinds int

	// ShutdownTimeout is the maximum time to wait for loops to drain.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:       5 * time.Second,
		TickTimeout:        4 * time.Second,
		SignalPollInterval: 30 * time.Second,
		PhaseTimeout:       2 * time.Hour,
		MaxRewinds:         2,
		ShutdownTimeout:    30 * time.Second,
	}
}
