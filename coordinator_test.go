package farmcode_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/farmer1st/farmcode"
	"github.com/farmer1st/farmcode/id"
)

type countingTicker struct {
	mu    sync.Mutex
	ticks map[string]int
}

func newCountingTicker() *countingTicker {
	return &countingTicker{ticks: make(map[string]int)}
}

func (c *countingTicker) Tick(_ context.Context, workflowID id.WorkflowID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks[workflowID.String()]++
	return nil
}

func (c *countingTicker) count(workflowID id.WorkflowID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks[workflowID.String()]
}

func fastConfig() farmcode.Config {
	cfg := farmcode.DefaultConfig()
	cfg.PollInterval = 5 * time.Millisecond
	cfg.TickTimeout = 4 * time.Millisecond
	cfg.ShutdownTimeout = time.Second
	return cfg
}

func TestNewRequiresLoop(t *testing.T) {
	t.Parallel()

	_, err := farmcode.New()
	if err != farmcode.ErrNoLoop {
		t.Fatalf("New() error = %v, want ErrNoLoop", err)
	}
}

func TestTrackTicksUntilStop(t *testing.T) {
	t.Parallel()

	ticker := newCountingTicker()
	c, err := farmcode.New(
		farmcode.WithConfig(fastConfig()),
		farmcode.WithLoop(ticker),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	wf := id.NewWorkflowID()
	c.Track(context.Background(), wf)

	deadline := time.After(time.Second)
	for ticker.count(wf) < 3 {
		select {
		case <-deadline:
			t.Fatalf("saw only %d ticks within a second", ticker.count(wf))
		case <-time.After(time.Millisecond):
		}
	}

	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	settled := ticker.count(wf)
	time.Sleep(25 * time.Millisecond)
	if got := ticker.count(wf); got != settled {
		t.Errorf("ticks continued after Stop: %d -> %d", settled, got)
	}
}

func TestTrackIsIdempotent(t *testing.T) {
	t.Parallel()

	ticker := newCountingTicker()
	c, err := farmcode.New(
		farmcode.WithConfig(fastConfig()),
		farmcode.WithLoop(ticker),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Stop(context.Background()) //nolint:errcheck // shutdown in test cleanup

	wf := id.NewWorkflowID()
	ctx := context.Background()
	c.Track(ctx, wf)
	c.Track(ctx, wf)
	c.Track(ctx, wf)

	time.Sleep(30 * time.Millisecond)
	one := ticker.count(wf)

	// A doubled ticker would roughly double the count over the same window.
	time.Sleep(30 * time.Millisecond)
	two := ticker.count(wf)
	if two-one > 2*(one+1) {
		t.Errorf("tick rate suggests duplicate tickers: %d then %d", one, two)
	}
}

func TestUntrackStopsTicking(t *testing.T) {
	t.Parallel()

	ticker := newCountingTicker()
	c, err := farmcode.New(
		farmcode.WithConfig(fastConfig()),
		farmcode.WithLoop(ticker),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Stop(context.Background()) //nolint:errcheck // shutdown in test cleanup

	wf := id.NewWorkflowID()
	c.Track(context.Background(), wf)
	time.Sleep(20 * time.Millisecond)
	c.Untrack(wf)

	// Allow an in-flight tick to land before sampling.
	time.Sleep(10 * time.Millisecond)
	settled := ticker.count(wf)
	time.Sleep(25 * time.Millisecond)
	if got := ticker.count(wf); got != settled {
		t.Errorf("ticks continued after Untrack: %d -> %d", settled, got)
	}
}

func TestTrackAfterStopIsNoop(t *testing.T) {
	t.Parallel()

	ticker := newCountingTicker()
	c, err := farmcode.New(
		farmcode.WithConfig(fastConfig()),
		farmcode.WithLoop(ticker),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	wf := id.NewWorkflowID()
	c.Track(context.Background(), wf)
	time.Sleep(25 * time.Millisecond)
	if got := ticker.count(wf); got != 0 {
		t.Errorf("tracked after Stop: %d ticks", got)
	}
}
