package codec

import (
	"errors"
	"reflect"
	"testing"

	"google.golang.org/protobuf/types/known/wrapperspb"
)

type addArgs struct {
	A int `json:"a"`
	B int `json:"b"`
}

func TestJSONCodec(t *testing.T) {
	jsonCodec := &JSONCodec{}

	data, err := jsonCodec.Encode(addArgs{A: 1, B: 2})
	if err != nil {
		t.Fatalf("JSONCodec Encode failed: %v", err)
	}
	if string(data) != `{"a":1,"b":2}` {
		t.Errorf("unexpected encoding: %s", data)
	}

	var decoded addArgs
	if err := jsonCodec.Decode(data, &decoded); err != nil {
		t.Fatalf("JSONCodec Decode failed: %v", err)
	}
	if decoded.A != 1 || decoded.B != 2 {
		t.Errorf("decoded mismatch: got %+v", decoded)
	}
}

func TestJSONCodecToleratesUnknownFields(t *testing.T) {
	var decoded addArgs
	err := (&JSONCodec{}).Decode([]byte(`{"a":3,"b":4,"c":"new field"}`), &decoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.A != 3 || decoded.B != 4 {
		t.Errorf("decoded mismatch: got %+v", decoded)
	}
}

func TestBinaryCodec(t *testing.T) {
	binaryCodec := &BinaryCodec{}

	original := []byte("hello world")
	data, err := binaryCodec.Encode(original)
	if err != nil {
		t.Fatalf("BinaryCodec Encode failed: %v", err)
	}

	var decoded []byte
	if err := binaryCodec.Decode(data, &decoded); err != nil {
		t.Fatalf("BinaryCodec Decode failed: %v", err)
	}
	if string(decoded) != string(original) {
		t.Errorf("Payload mismatch: got %s, want %s", decoded, original)
	}

	// The decoded slice must not alias the input buffer.
	data[0] = 'H'
	if decoded[0] != 'h' {
		t.Errorf("decoded payload aliases the frame buffer")
	}

	var s string
	if err := binaryCodec.Decode([]byte("abc"), &s); err != nil || s != "abc" {
		t.Errorf("string decode: got %q, %v", s, err)
	}
}

func TestBinaryCodecRejectsStructs(t *testing.T) {
	if _, err := (&BinaryCodec{}).Encode(addArgs{}); err == nil {
		t.Fatal("expect error encoding a struct with BinaryCodec")
	}
	var v addArgs
	if err := (&BinaryCodec{}).Decode([]byte("x"), &v); err == nil {
		t.Fatal("expect error decoding into a struct with BinaryCodec")
	}
}

func TestProtoCodec(t *testing.T) {
	protoCodec := &ProtoCodec{}

	data, err := protoCodec.Encode(wrapperspb.Int64(81))
	if err != nil {
		t.Fatalf("ProtoCodec Encode failed: %v", err)
	}

	// Generic result slots hand the codec a **T.
	var reply *wrapperspb.Int64Value
	if err := protoCodec.Decode(data, &reply); err != nil {
		t.Fatalf("ProtoCodec Decode failed: %v", err)
	}
	if reply.GetValue() != 81 {
		t.Errorf("expect 81, got %d", reply.GetValue())
	}

	direct := &wrapperspb.Int64Value{}
	if err := protoCodec.Decode(data, direct); err != nil {
		t.Fatalf("ProtoCodec Decode into message failed: %v", err)
	}
	if direct.GetValue() != 81 {
		t.Errorf("expect 81, got %d", direct.GetValue())
	}

	if _, err := protoCodec.Encode(addArgs{}); err == nil {
		t.Fatal("expect error encoding a non-proto value")
	}
}

func TestKnownCodec(t *testing.T) {
	c := Known(&JSONCodec{}, reflect.TypeOf(addArgs{}), reflect.TypeOf(0))

	if _, err := c.Encode(addArgs{A: 1}); err != nil {
		t.Fatalf("encode registered type: %v", err)
	}
	if _, err := c.Encode(&addArgs{A: 1}); err != nil {
		t.Fatalf("encode pointer to registered type: %v", err)
	}
	if _, err := c.Encode("not registered"); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expect ErrUnknownType, got %v", err)
	}
	if _, err := c.Encode(nil); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expect ErrUnknownType for nil, got %v", err)
	}

	var n int
	if err := c.Decode([]byte("18"), &n); err != nil || n != 18 {
		t.Fatalf("decode registered type: got %d, %v", n, err)
	}
	var s string
	if err := c.Decode([]byte(`"x"`), &s); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expect ErrUnknownType on decode, got %v", err)
	}
	if c.Type() != CodecTypeJSON {
		t.Errorf("Known must report the inner codec type, got %v", c.Type())
	}
}

func TestGetCodec(t *testing.T) {
	cases := map[CodecType]CodecType{
		CodecTypeJSON:   CodecTypeJSON,
		CodecTypeBinary: CodecTypeBinary,
		CodecTypeProto:  CodecTypeProto,
		CodecType(99):   CodecTypeJSON,
	}
	for in, want := range cases {
		if got := GetCodec(in).Type(); got != want {
			t.Errorf("GetCodec(%d).Type() = %v, want %v", in, got, want)
		}
	}
}
