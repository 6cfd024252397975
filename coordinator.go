package farmcode

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/farmer1st/farmcode/id"
)

// Option configures a Coordinator.
type Option func(*Coordinator) error

// Ticker is the minimal control-loop interface held by the Coordinator.
// reconcile.Loop satisfies it. The Coordinator references the loop through
// this interface to avoid an import cycle with the reconcile package.
type Ticker interface {
	Tick(ctx context.Context, workflowID id.WorkflowID) error
}

// WakeScanner performs one scan pass for external wake signals on a
// workflow parked in an await-phase. signal.Poller satisfies it.
type WakeScanner interface {
	Scan(ctx context.Context, workflowID id.WorkflowID) error
}

// WithConfig sets the coordinator configuration.
func WithConfig(cfg Config) Option {
	return func(c *Coordinator) error {
		c.config = cfg
		return nil
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) error {
		c.logger = logger
		return nil
	}
}

// WithLoop sets the control loop driven by each workflow's ticker.
func WithLoop(loop Ticker) Option {
	return func(c *Coordinator) error {
		c.loop = loop
		return nil
	}
}

// WithWakeScanner sets the signal poller used while workflows sit in
// await-phases. Optional; without one, await-phases exit only via a direct
// Notify call on the loop.
func WithWakeScanner(s WakeScanner) Option {
	return func(c *Coordinator) error {
		c.scanner = s
		return nil
	}
}

// Coordinator runs one control loop per tracked workflow. Each workflow
// ticks on its own timer; ticks for one workflow are strictly sequential
// and never overlap. There is no shared mutable state across workflows.
type Coordinator struct {
	config  Config
	logger  *slog.Logger
	loop    Ticker
	scanner WakeScanner

	mu      sync.Mutex
	tracked map[string]context.CancelFunc
	wg      sync.WaitGroup
	closed  bool
}

// New creates a Coordinator with the given options.
func New(opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		config:  DefaultConfig(),
		logger:  slog.Default(),
		tracked: make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.loop == nil {
		return nil, ErrNoLoop
	}
	return c, nil
}

// Track starts reconciling a workflow. Idempotent: tracking an already
// tracked workflow is a no-op. The ticker stops on its own when Untrack or
// Stop is called; terminal workflows keep ticking cheaply (a tick on a
// terminal pointer is a no-op) until untracked by the caller.
func (c *Coordinator) Track(ctx context.Context, workflowID id.WorkflowID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	key := workflowID.String()
	if _, ok := c.tracked[key]; ok {
		return
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.tracked[key] = cancel

	c.wg.Add(1)
	go c.run(loopCtx, workflowID)

	c.logger.Info("workflow tracked",
		slog.String("workflow_id", key),
		slog.Duration("poll_interval", c.config.PollInterval),
	)
}

// Untrack stops the ticker for a workflow. The pointer itself is untouched.
func (c *Coordinator) Untrack(workflowID id.WorkflowID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := workflowID.String()
	if cancel, ok := c.tracked[key]; ok {
		cancel()
		delete(c.tracked, key)
	}
}

// Stop cancels all tickers and waits for them to drain, bounded by
// ShutdownTimeout.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	for key, cancel := range c.tracked {
		cancel()
		delete(c.tracked, key)
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	timeout := c.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return context.DeadlineExceeded
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run drives one workflow: a reconcile tick every PollInterval and, when a
// scanner is configured, a wake scan every SignalPollInterval. The loop
// suspends between whole ticks by sleeping, never by holding a connection.
func (c *Coordinator) run(ctx context.Context, workflowID id.WorkflowID) {
	defer c.wg.Done()

	tick := time.NewTicker(c.config.PollInterval)
	defer tick.Stop()

	var scan <-chan time.Time
	if c.scanner != nil {
		scanTick := time.NewTicker(c.config.SignalPollInterval)
		defer scanTick.Stop()
		scan = scanTick.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			c.tickOnce(ctx, workflowID)
		case <-scan:
			c.scanOnce(ctx, workflowID)
		}
	}
}

func (c *Coordinator) tickOnce(ctx context.Context, workflowID id.WorkflowID) {
	tctx, cancel := context.WithTimeout(ctx, c.config.TickTimeout)
	defer cancel()

	if err := c.loop.Tick(tctx, workflowID); err != nil {
		c.logger.Error("tick failed",
			slog.String("workflow_id", workflowID.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Coordinator) scanOnce(ctx context.Context, workflowID id.WorkflowID) {
	sctx, cancel := context.WithTimeout(ctx, c.config.TickTimeout)
	defer cancel()

	if err := c.scanner.Scan(sctx, workflowID); err != nil {
		c.logger.Error("wake scan failed",
			slog.String("workflow_id", workflowID.String()),
			slog.String("error", err.Error()),
		)
	}
}
