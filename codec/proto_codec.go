package codec

import (
	"fmt"
	"reflect"

	"google.golang.org/protobuf/proto"
)

// ProtoCodec serializes protobuf messages. Unknown fields survive a decode,
// so peers built against older or newer schemas can still talk.
type ProtoCodec struct{}

func (c *ProtoCodec) Encode(v any) ([]byte, error) {
	m, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("ProtoCodec: %T is not a proto.Message", v)
	}
	return proto.Marshal(m)
}

// Decode accepts either a message or a pointer to a message pointer; the
// latter is allocated when nil, which is what a generic *T result slot needs.
func (c *ProtoCodec) Decode(data []byte, v any) error {
	if m, ok := v.(proto.Message); ok {
		return proto.Unmarshal(data, m)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr && !rv.IsNil() && rv.Elem().Kind() == reflect.Ptr {
		if rv.Elem().IsNil() {
			rv.Elem().Set(reflect.New(rv.Elem().Type().Elem()))
		}
		if m, ok := rv.Elem().Interface().(proto.Message); ok {
			return proto.Unmarshal(data, m)
		}
	}
	return fmt.Errorf("ProtoCodec: cannot decode into %T", v)
}

func (c *ProtoCodec) Type() CodecType {
	return CodecTypeProto
}
