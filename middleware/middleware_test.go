package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"idrpc/message"
)

// echoHandler returns the argument as the result.
func echoHandler(ctx context.Context, req *message.Request) *message.Response {
	return &message.Response{Result: req.Arg}
}

// slowHandler sleeps 200ms unless its context ends first.
func slowHandler(ctx context.Context, req *message.Request) *message.Response {
	select {
	case <-time.After(200 * time.Millisecond):
	case <-ctx.Done():
	}
	return &message.Response{Result: "ok"}
}

func newRequest() *message.Request {
	return &message.Request{RequestID: 1, ServiceID: 1024, MethodID: 2, Method: "Arith.Add", Arg: "ok"}
}

func TestLogging(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	handler := LoggingMiddleware(zap.New(core))(echoHandler)

	resp := handler(context.Background(), newRequest())
	if resp == nil || resp.Result != "ok" {
		t.Fatalf("expect result 'ok', got %+v", resp)
	}

	entries := logs.FilterField(zap.String("method", "Arith.Add")).All()
	if len(entries) != 1 || entries[0].Level != zap.DebugLevel {
		t.Fatalf("expect one debug entry for Arith.Add, got %+v", logs.All())
	}
}

func TestLoggingFailure(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	failing := func(ctx context.Context, req *message.Request) *message.Response {
		return &message.Response{Error: errors.New("boom")}
	}
	LoggingMiddleware(zap.New(core))(failing)(context.Background(), newRequest())

	if logs.FilterLevelExact(zap.WarnLevel).Len() != 1 {
		t.Fatalf("expect one warn entry, got %+v", logs.All())
	}
}

func TestTimeoutPass(t *testing.T) {
	handler := TimeOutMiddleware(500 * time.Millisecond)(echoHandler)

	resp := handler(context.Background(), newRequest())
	if resp.Error != nil {
		t.Fatalf("expect no error, got '%v'", resp.Error)
	}
}

func TestTimeoutExceeded(t *testing.T) {
	handler := TimeOutMiddleware(50 * time.Millisecond)(slowHandler)

	resp := handler(context.Background(), newRequest())
	if !errors.Is(resp.Error, ErrTimeout) {
		t.Fatalf("expect timeout error, got '%v'", resp.Error)
	}
}

func TestRateLimit(t *testing.T) {
	// rate=1 per second, burst=2: the first two pass immediately, the third has to wait ~1s
	handler := RateLimitMiddleware(1, 2)(echoHandler)

	for i := 0; i < 2; i++ {
		resp := handler(context.Background(), newRequest())
		if resp.Error != nil {
			t.Fatalf("request %d should pass, got error: %v", i, resp.Error)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	resp := handler(ctx, newRequest())
	if resp.Error == nil {
		t.Fatal("request 3 should be rate limited")
	}
}

func TestRecover(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	panicking := func(ctx context.Context, req *message.Request) *message.Response {
		panic("kaboom")
	}

	resp := RecoverMiddleware(zap.New(core))(panicking)(context.Background(), newRequest())
	if resp == nil || resp.Error == nil {
		t.Fatalf("expect an error response, got %+v", resp)
	}
	if logs.FilterLevelExact(zap.ErrorLevel).Len() != 1 {
		t.Fatalf("expect the panic to be logged")
	}
}

func TestChain(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req *message.Request) *message.Response {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}

	chained := Chain(tag("a"), tag("b"), LoggingMiddleware(zap.NewNop()), TimeOutMiddleware(500*time.Millisecond))
	resp := chained(echoHandler)(context.Background(), newRequest())

	if resp == nil || resp.Error != nil {
		t.Fatalf("expect success, got %+v", resp)
	}
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("expect outermost-first order [a b], got %v", order)
	}
}
