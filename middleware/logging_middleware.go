package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mini-rpc-server/message"
)

func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, req *message.Request, resp *message.Response) error {
			start := time.Now()
			err := next(ctx, req, resp)
			fields := []zap.Field{
				zap.String("method", req.FullName()),
				zap.Int64("log_id", req.LogID),
				zap.Duration("duration", time.Since(start)),
			}
			if err != nil {
				logger.Info("request failed", append(fields, zap.Error(err))...)
				return err
			}
			logger.Debug("request served", fields...)
			return nil
		}
	}
}
