// Package middleware provides composable middleware for reconcile ticks.
// Middleware wraps tick calls synchronously and can modify execution
// (recover from panics, log, enforce deadlines, add tracing, etc.).
package middleware

import (
	"context"

	"github.com/farmer1st/farmcode/id"
)

// Handler is the terminal function that executes the tick logic.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler with cross-cutting logic.
// It receives the current context, the workflow being reconciled, and the
// next handler to call. Middleware MUST call next to continue the chain
// (unless short-circuiting on error).
type Middleware func(ctx context.Context, workflowID id.WorkflowID, next Handler) error

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, recover, timeout) executes as:
//
//	logging → recover → timeout → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, workflowID id.WorkflowID, next Handler) error {
		// Build the chain from the end backwards.
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) error {
				return mw(ctx, workflowID, prev)
			}
		}
		return h(ctx)
	}
}

// Ticker is the reconcile surface middleware wraps. It matches the
// coordinator's tick contract so a wrapped ticker drops in anywhere an
// unwrapped one does.
type Ticker interface {
	Tick(ctx context.Context, workflowID id.WorkflowID) error
}

type wrappedTicker struct {
	inner Ticker
	mw    Middleware
}

// Wrap returns a Ticker whose Tick runs through the given middleware before
// reaching the inner ticker.
func Wrap(inner Ticker, mws ...Middleware) Ticker {
	return &wrappedTicker{inner: inner, mw: Chain(mws...)}
}

func (w *wrappedTicker) Tick(ctx context.Context, workflowID id.WorkflowID) error {
	return w.mw(ctx, workflowID, func(ctx context.Context) error {
		return w.inner.Tick(ctx, workflowID)
	})
}
