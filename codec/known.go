package codec

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrUnknownType is returned when a value's type was never registered with Known.
var ErrUnknownType = errors.New("codec: unknown type")

type knownCodec struct {
	Codec
	types map[reflect.Type]struct{}
}

// Known restricts inner to a finite set of types. Encoding an unregistered type
// is a programming error and fails before any bytes are produced; decoding into
// one fails the call. A pointer to a registered type is accepted as well.
func Known(inner Codec, types ...reflect.Type) Codec {
	k := &knownCodec{Codec: inner, types: make(map[reflect.Type]struct{}, len(types))}
	for _, t := range types {
		if t != nil {
			k.types[t] = struct{}{}
		}
	}
	return k
}

func (k *knownCodec) allowed(t reflect.Type) bool {
	if t == nil {
		return false
	}
	if _, ok := k.types[t]; ok {
		return true
	}
	if t.Kind() == reflect.Ptr {
		_, ok := k.types[t.Elem()]
		return ok
	}
	return false
}

func (k *knownCodec) Encode(v any) ([]byte, error) {
	if t := reflect.TypeOf(v); !k.allowed(t) {
		return nil, fmt.Errorf("%w: %v", ErrUnknownType, t)
	}
	return k.Codec.Encode(v)
}

func (k *knownCodec) Decode(data []byte, v any) error {
	t := reflect.TypeOf(v)
	if t == nil || t.Kind() != reflect.Ptr || !k.allowed(t.Elem()) {
		return fmt.Errorf("%w: %v", ErrUnknownType, t)
	}
	return k.Codec.Decode(data, v)
}
