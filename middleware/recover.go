package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/farmer1st/farmcode/id"
)

// Recover returns middleware that recovers from panics in the tick chain.
// Panics are converted to errors and logged with a stack trace, so one
// misbehaving workflow cannot take down the whole coordinator process.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, workflowID id.WorkflowID, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("tick panicked",
					slog.String("workflow_id", workflowID.String()),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				retErr = fmt.Errorf("panic reconciling workflow %s: %v", workflowID, r)
			}
		}()
		return next(ctx)
	}
}
