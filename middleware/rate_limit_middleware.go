package middleware

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"idrpc/message"
)

// RateLimitMiddleware throttles handler invocations with a token bucket shared by
// every connection of the server. A request waits for a token; if its context
// ends first (connection closed, timeout) the call fails.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			if err := limiter.Wait(ctx); err != nil {
				return &message.Response{Error: fmt.Errorf("rate limit exceeded: %w", err)}
			}
			return next(ctx, req)
		}
	}
}
