package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/farmer1st/farmcode/id"
)

// Logging returns middleware that logs tick completion. Ticks fire every few
// seconds per workflow, so success is logged at debug and only failures at
// error.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, workflowID id.WorkflowID, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("tick failed",
				slog.String("workflow_id", workflowID.String()),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Debug("tick completed",
				slog.String("workflow_id", workflowID.String()),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
