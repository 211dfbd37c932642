package codec

import (
	"encoding/json"
)

// JSONCodec is the default payload codec. Arguments and results travel as bare
// JSON values; unknown object fields are ignored on decode, so a peer may add
// fields to a declared type without breaking older callers.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c *JSONCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
