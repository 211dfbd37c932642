package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"idrpc/codec"
	"idrpc/protocol"
)

// Method declares one callable method of a service.
type Method struct {
	ID      uint16
	Name    string
	Handler Handler

	err error // set when the declaration could not produce a Handler
}

// NewMethod declares a method with the canonical signature.
func NewMethod[TArg, TReply any](id uint16, name string, fn Func[TArg, TReply]) Method {
	m := Method{ID: id, Name: name}
	if fn == nil {
		m.err = errors.New("nil implementation")
		return m
	}
	m.Handler = NewHandler(name, fn)
	return m
}

// Validate reports why the declaration does not fit the call convention.
func (m Method) Validate() error {
	if m.err != nil {
		return m.err
	}
	if m.Handler == nil {
		return errors.New("no handler bound")
	}
	return nil
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	voidType    = reflect.TypeOf(struct{}{})
)

// FromFunc declares a method from an arbitrary function value. Accepted shapes:
//
//	func(context.Context, TArg) (TReply, error)
//	func(context.Context, TArg) error            // result encoded as struct{}
//
// The shape is checked here, once; an invalid one is reported by Validate.
func FromFunc(id uint16, name string, fn any) Method {
	m := Method{ID: id, Name: name}
	h, err := newReflectHandler(name, fn)
	if err != nil {
		m.err = err
		return m
	}
	m.Handler = h
	return m
}

type reflectHandler struct {
	name       string
	fn         reflect.Value
	argType    reflect.Type
	resultType reflect.Type
	void       bool
}

func serializable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return false
	}
	return true
}

func newReflectHandler(name string, fn any) (*reflectHandler, error) {
	if fn == nil {
		return nil, errors.New("nil implementation")
	}
	v := reflect.ValueOf(fn)
	t := v.Type()
	if t.Kind() != reflect.Func {
		return nil, fmt.Errorf("implementation is %v, not a func", t)
	}
	if v.IsNil() {
		return nil, errors.New("nil implementation")
	}
	if t.IsVariadic() || t.NumIn() != 2 {
		return nil, fmt.Errorf("want (context.Context, arg), got %d parameters", t.NumIn())
	}
	if t.In(0) != contextType {
		return nil, fmt.Errorf("first parameter is %v, want context.Context", t.In(0))
	}
	if !serializable(t.In(1)) {
		return nil, fmt.Errorf("argument type %v cannot be serialized", t.In(1))
	}

	h := &reflectHandler{name: name, fn: v, argType: t.In(1)}
	switch t.NumOut() {
	case 1:
		h.void = true
		h.resultType = voidType
	case 2:
		h.resultType = t.Out(0)
		if !serializable(h.resultType) {
			return nil, fmt.Errorf("result type %v cannot be serialized", h.resultType)
		}
	default:
		return nil, fmt.Errorf("want (result, error) or error, got %d results", t.NumOut())
	}
	if t.Out(t.NumOut()-1) != errorType {
		return nil, fmt.Errorf("last result is %v, want error", t.Out(t.NumOut()-1))
	}
	return h, nil
}

func (h *reflectHandler) Name() string             { return h.name }
func (h *reflectHandler) ArgType() reflect.Type    { return h.argType }
func (h *reflectHandler) ResultType() reflect.Type { return h.resultType }

func (h *reflectHandler) ReadArgument(c codec.Codec, body []byte) (any, error) {
	argv := reflect.New(h.argType)
	if err := protocol.ReadBodyInto(c, body, argv.Interface()); err != nil {
		return nil, err
	}
	return argv.Elem().Interface(), nil
}

func (h *reflectHandler) Invoke(ctx context.Context, arg any) (any, error) {
	argv := reflect.Zero(h.argType)
	if arg != nil {
		argv = reflect.ValueOf(arg)
		if !argv.Type().AssignableTo(h.argType) {
			return nil, fmt.Errorf("service: %s: argument is %T, want %v", h.name, arg, h.argType)
		}
	}
	out := h.fn.Call([]reflect.Value{reflect.ValueOf(ctx), argv})

	errv := out[len(out)-1]
	if !errv.IsNil() {
		return nil, errv.Interface().(error)
	}
	if h.void {
		return struct{}{}, nil
	}
	return out[0].Interface(), nil
}

func (h *reflectHandler) WriteResult(c codec.Codec, requestID int64, result any) ([]byte, error) {
	if h.void {
		result = struct{}{}
	}
	return protocol.WriteResponse(c, result, requestID)
}
