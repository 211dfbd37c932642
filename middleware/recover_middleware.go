package middleware

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"idrpc/message"
)

// RecoverMiddleware turns a handler panic into an ordinary failure so that one
// bad call cannot take the server down.
func RecoverMiddleware(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) (resp *message.Response) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("handler panic",
						zap.String("method", req.Method),
						zap.Int64("request_id", req.RequestID),
						zap.Any("panic", r),
						zap.Stack("stack"),
					)
					resp = &message.Response{Error: fmt.Errorf("panic: %v", r)}
				}
			}()
			return next(ctx, req)
		}
	}
}
