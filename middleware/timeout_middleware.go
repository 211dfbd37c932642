package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"idrpc/message"
)

// ErrTimeout fails a call whose handler outlived its budget. The peer sees
// ServerInternalError.
var ErrTimeout = errors.New("middleware: handler deadline exceeded")

// TimeOutMiddleware bounds each handler invocation to timeout, on top of the
// connection scope already carried by ctx. The handler runs on its own
// goroutine; when the budget is spent its context is cancelled and the call is
// answered at once. A handler that ignores cancellation keeps running and its
// result is dropped.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			if timeout <= 0 {
				return next(ctx, req)
			}
			callCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			result := make(chan *message.Response, 1)
			go func() {
				result <- next(callCtx, req)
			}()

			select {
			case resp := <-result:
				return resp
			case <-callCtx.Done():
				if ctx.Err() != nil {
					// The connection went away, not the budget.
					return &message.Response{Error: ctx.Err()}
				}
				return &message.Response{Error: fmt.Errorf("%w: %s after %v", ErrTimeout, req.Method, timeout)}
			}
		}
	}
}
