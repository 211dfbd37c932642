package service

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"idrpc/codec"
	"idrpc/protocol"
)

type Args struct {
	A, B int
}

func multiply(ctx context.Context, args Args) (int, error) {
	return args.A * args.B, nil
}

func TestTypedHandler(t *testing.T) {
	c := &codec.JSONCodec{}
	h := NewHandler("Arith.Multiply", Func[Args, int](multiply))

	if h.Name() != "Arith.Multiply" {
		t.Errorf("Name: got %q", h.Name())
	}
	if h.ArgType() != reflect.TypeOf(Args{}) || h.ResultType() != reflect.TypeOf(0) {
		t.Errorf("types: got %v -> %v", h.ArgType(), h.ResultType())
	}

	body, _ := c.Encode(Args{A: 9, B: 9})
	arg, err := h.ReadArgument(c, body)
	if err != nil {
		t.Fatalf("ReadArgument: %v", err)
	}
	result, err := h.Invoke(context.Background(), arg)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	frame, err := h.WriteResult(c, 5, result)
	if err != nil {
		t.Fatalf("WriteResult: %v", err)
	}
	header, ok, err := protocol.TryReadResponseHeader(frame)
	if !ok || err != nil || header.RequestID != 5 || header.ErrorCode != protocol.OK {
		t.Fatalf("unexpected response header %+v (ok=%v err=%v)", header, ok, err)
	}
	v, err := protocol.ReadBody[int](c, frame[protocol.ResponseHeaderSize:])
	if err != nil || v != 81 {
		t.Fatalf("expect 81, got %d (%v)", v, err)
	}
}

func TestTypedHandlerArgumentDecodeError(t *testing.T) {
	h := NewHandler("Arith.Multiply", Func[Args, int](multiply))
	if _, err := h.ReadArgument(&codec.JSONCodec{}, []byte(`"not an object"`)); !errors.Is(err, protocol.ErrCodec) {
		t.Fatalf("expect ErrCodec, got %v", err)
	}
}

func TestTypedHandlerWrongArgumentType(t *testing.T) {
	h := NewHandler("Arith.Multiply", Func[Args, int](multiply))
	if _, err := h.Invoke(context.Background(), "wrong"); err == nil {
		t.Fatal("expect error for mismatched argument type")
	}
}

func TestTypedHandlerPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	h := NewHandler("Fail.Always", Func[Args, int](func(ctx context.Context, a Args) (int, error) {
		return 0, boom
	}))
	if _, err := h.Invoke(context.Background(), Args{}); !errors.Is(err, boom) {
		t.Fatalf("expect boom, got %v", err)
	}
}

func TestNewMethodValidate(t *testing.T) {
	if err := NewMethod(1, "Multiply", Func[Args, int](multiply)).Validate(); err != nil {
		t.Fatalf("valid method reported %v", err)
	}
	if err := NewMethod[Args, int](1, "Multiply", nil).Validate(); err == nil {
		t.Fatal("expect error for nil implementation")
	}
	if err := (Method{ID: 1, Name: "Empty"}).Validate(); err == nil {
		t.Fatal("expect error for missing handler")
	}
}

func TestFromFunc(t *testing.T) {
	c := &codec.JSONCodec{}
	m := FromFunc(2, "Add", func(ctx context.Context, a Args) (int, error) {
		return a.A + a.B, nil
	})
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	body, _ := c.Encode(Args{A: 9, B: 9})
	arg, err := m.Handler.ReadArgument(c, body)
	if err != nil {
		t.Fatalf("ReadArgument: %v", err)
	}
	result, err := m.Handler.Invoke(context.Background(), arg)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if result.(int) != 18 {
		t.Fatalf("expect 18, got %v", result)
	}
}

func TestFromFuncVoid(t *testing.T) {
	var seen Args
	m := FromFunc(3, "Store", func(ctx context.Context, a Args) error {
		seen = a
		return nil
	})
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if m.Handler.ResultType() != reflect.TypeOf(struct{}{}) {
		t.Errorf("void result type: got %v", m.Handler.ResultType())
	}
	if _, err := m.Handler.Invoke(context.Background(), Args{A: 4}); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if seen.A != 4 {
		t.Errorf("implementation not called")
	}
	frame, err := m.Handler.WriteResult(&codec.JSONCodec{}, 1, nil)
	if err != nil {
		t.Fatalf("WriteResult: %v", err)
	}
	if string(frame[protocol.ResponseHeaderSize:]) != "{}" {
		t.Errorf("void payload: got %q", frame[protocol.ResponseHeaderSize:])
	}
}

func TestFromFuncInvalidSignatures(t *testing.T) {
	cases := map[string]any{
		"nil":              nil,
		"not a func":       42,
		"nil func":         (func(context.Context, Args) (int, error))(nil),
		"missing context":  func(a Args) (int, error) { return 0, nil },
		"context second":   func(a Args, ctx context.Context) (int, error) { return 0, nil },
		"too many params":  func(ctx context.Context, a, b Args) (int, error) { return 0, nil },
		"variadic":         func(ctx context.Context, a ...Args) (int, error) { return 0, nil },
		"no error":         func(ctx context.Context, a Args) int { return 0 },
		"error first":      func(ctx context.Context, a Args) (error, int) { return nil, 0 },
		"three results":    func(ctx context.Context, a Args) (int, int, error) { return 0, 0, nil },
		"chan argument":    func(ctx context.Context, a chan int) (int, error) { return 0, nil },
		"func result":      func(ctx context.Context, a Args) (func(), error) { return nil, nil },
		"no results":       func(ctx context.Context, a Args) {},
	}
	for name, fn := range cases {
		if err := FromFunc(1, name, fn).Validate(); err == nil {
			t.Errorf("%s: expect signature error", name)
		}
	}
}

func TestRequestInfoContext(t *testing.T) {
	if _, ok := RequestInfoFromContext(context.Background()); ok {
		t.Fatal("expect no RequestInfo on a bare context")
	}
	ctx := WithRequestInfo(context.Background(), RequestInfo{RequestID: 7, ServiceID: 1024, MethodID: 1, Method: "Arith.Multiply"})
	info, ok := RequestInfoFromContext(ctx)
	if !ok || info.RequestID != 7 || info.ServiceID != 1024 || info.Method != "Arith.Multiply" {
		t.Fatalf("unexpected RequestInfo %+v (ok=%v)", info, ok)
	}
}
