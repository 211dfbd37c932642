// Package service binds method implementations to the dispatch core.
//
// A Handler hides one method's argument and result types behind a uniform
// interface, so the server can keep a single (serviceID, methodID) -> Handler
// table instead of switching on types per call. Handlers are built once at
// registration time; nothing here runs reflection on the call path unless the
// method was declared with FromFunc.
package service

import (
	"context"
	"fmt"
	"reflect"

	"idrpc/codec"
	"idrpc/protocol"
)

// Handler is the type-erased invocation unit for one method.
type Handler interface {
	Name() string
	ArgType() reflect.Type
	ResultType() reflect.Type
	// ReadArgument decodes the method's argument from a request payload.
	ReadArgument(c codec.Codec, body []byte) (any, error)
	// Invoke calls the bound implementation. ctx is cancelled when the
	// connection that carried the request shuts down.
	Invoke(ctx context.Context, arg any) (any, error)
	// WriteResult encodes result as a complete response frame.
	WriteResult(c codec.Codec, requestID int64, result any) ([]byte, error)
}

// Func is the canonical method shape: one argument plus a context, one result.
type Func[TArg, TReply any] func(ctx context.Context, arg TArg) (TReply, error)

type typedHandler[TArg, TReply any] struct {
	name string
	fn   Func[TArg, TReply]
}

// NewHandler wraps fn in a Handler named name.
func NewHandler[TArg, TReply any](name string, fn Func[TArg, TReply]) Handler {
	return &typedHandler[TArg, TReply]{name: name, fn: fn}
}

func (h *typedHandler[TArg, TReply]) Name() string { return h.name }

func (h *typedHandler[TArg, TReply]) ArgType() reflect.Type {
	return reflect.TypeFor[TArg]()
}

func (h *typedHandler[TArg, TReply]) ResultType() reflect.Type {
	return reflect.TypeFor[TReply]()
}

func (h *typedHandler[TArg, TReply]) ReadArgument(c codec.Codec, body []byte) (any, error) {
	return protocol.ReadBody[TArg](c, body)
}

func (h *typedHandler[TArg, TReply]) Invoke(ctx context.Context, arg any) (any, error) {
	var a TArg
	if arg != nil {
		var ok bool
		if a, ok = arg.(TArg); !ok {
			return nil, fmt.Errorf("service: %s: argument is %T, want %v", h.name, arg, h.ArgType())
		}
	}
	return h.fn(ctx, a)
}

func (h *typedHandler[TArg, TReply]) WriteResult(c codec.Codec, requestID int64, result any) ([]byte, error) {
	var r TReply
	if result != nil {
		var ok bool
		if r, ok = result.(TReply); !ok {
			return nil, fmt.Errorf("service: %s: result is %T, want %v", h.name, result, h.ResultType())
		}
	}
	return protocol.WriteResponse(c, r, requestID)
}
