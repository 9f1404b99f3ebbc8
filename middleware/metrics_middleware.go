package middleware

import (
	"context"
	"errors"

	"mini-rpc-server/message"
	"mini-rpc-server/metrics"
	"mini-rpc-server/rpcerr"
)

// MetricsMiddleware counts requests turned away by a rate limiter further in.
// Request totals and latency are recorded by the task itself.
func MetricsMiddleware(m *metrics.Metrics) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *message.Request, resp *message.Response) error {
			err := next(ctx, req, resp)
			if errors.Is(err, rpcerr.ErrRateLimited) {
				m.RateLimited()
			}
			return err
		}
	}
}
