package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"idrpc/message"
)

func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			start := time.Now()
			resp := next(ctx, req)
			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.Int64("request_id", req.RequestID),
				zap.Duration("duration", time.Since(start)),
			}
			if resp.Error != nil {
				logger.Warn("rpc call failed", append(fields, zap.Error(resp.Error))...)
			} else {
				logger.Debug("rpc call", fields...)
			}
			return resp
		}
	}
}
