package codec

import (
	"fmt"
)

// BinaryCodec passes raw bytes through unchanged, for payloads that are
// already encoded by the caller. Only []byte and string values are accepted.
type BinaryCodec struct{}

func (c *BinaryCodec) Encode(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case *[]byte:
		return *b, nil
	case string:
		return []byte(b), nil
	case *string:
		return []byte(*b), nil
	}
	return nil, fmt.Errorf("BinaryCodec: cannot encode %T", v)
}

// Decode copies data: the frame reader reuses its buffer once the call returns.
func (c *BinaryCodec) Decode(data []byte, v any) error {
	switch b := v.(type) {
	case *[]byte:
		*b = append([]byte(nil), data...)
		return nil
	case *string:
		*b = string(data)
		return nil
	}
	return fmt.Errorf("BinaryCodec: cannot decode into %T", v)
}

func (c *BinaryCodec) Type() CodecType {
	return CodecTypeBinary
}
