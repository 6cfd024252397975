package middleware

import (
	"context"
	"time"

	"github.com/farmer1st/farmcode/id"
)

// Timeout returns middleware that enforces a per-tick deadline. When the
// deadline is exceeded the context is cancelled and the tick surfaces
// context.DeadlineExceeded from whichever blocking call it was in.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, _ id.WorkflowID, next Handler) error {
		if d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
