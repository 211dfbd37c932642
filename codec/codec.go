// Package codec provides the pluggable value serializers used for frame payloads.
//
// The protocol layer never looks inside a payload: it hands argument and result
// values to a Codec and only cares about the bytes that come back.
package codec

type CodecType byte

const (
	CodecTypeJSON   CodecType = 0
	CodecTypeBinary CodecType = 1
	CodecTypeProto  CodecType = 2
)

// Codec converts one argument or result value to and from bytes.
// Implementations must be safe for concurrent use.
type Codec interface {
	Encode(v any) ([]byte, error)
	// Decode fills the value pointed to by v.
	Decode(data []byte, v any) error
	Type() CodecType
}

// GetCodec returns the codec for a CodecType, falling back to JSON.
func GetCodec(codecType CodecType) Codec {
	switch codecType {
	case CodecTypeBinary:
		return &BinaryCodec{}
	case CodecTypeProto:
		return &ProtoCodec{}
	default:
		return &JSONCodec{}
	}
}

func (t CodecType) String() string {
	switch t {
	case CodecTypeJSON:
		return "json"
	case CodecTypeBinary:
		return "binary"
	case CodecTypeProto:
		return "proto"
	default:
		return "unknown"
	}
}
