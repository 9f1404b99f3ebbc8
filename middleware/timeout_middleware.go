package middleware

import (
	"context"
	"errors"
	"time"

	"mini-rpc-server/message"
	"mini-rpc-server/rpcerr"
)

// TimeOutMiddleware gives the rest of the chain a deadline. Handlers are
// expected to honour ctx; the chain is not abandoned mid-flight because the
// response and call context belong to the running task.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *message.Request, resp *message.Response) error {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			err := next(ctx, req, resp)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return rpcerr.ErrTimeout
			}
			return err
		}
	}
}
