// Package protocol implements the binary frame protocol shared by client and server.
//
// Every frame is a fixed 16-byte header followed by a variable-length payload.
// The header is fixed-width so a reader can always tell whether enough bytes are
// buffered before it tries to decode anything. All integers are little-endian.
//
// Request frame:
//
//	0        4                   12        14        16
//	┌────────┬───────────────────┬─────────┬─────────┬──────────────────┐
//	│  size  │     requestID     │ service │ method  │   payload ...    │
//	│ int32  │       int64       │ uint16  │ uint16  │   size bytes     │
//	└────────┴───────────────────┴─────────┴─────────┴──────────────────┘
//
// Response frame:
//
//	0        4                   12                  16
//	┌────────┬───────────────────┬───────────────────┬──────────────────┐
//	│  size  │     requestID     │     errorCode     │   payload ...    │
//	│ int32  │       int64       │       int32       │   size bytes     │
//	└────────┴───────────────────┴───────────────────┴──────────────────┘
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"

	"idrpc/codec"
)

const (
	RequestHeaderSize  = 16 // 4 (size) + 8 (requestID) + 2 (serviceID) + 2 (methodID)
	ResponseHeaderSize = 16 // 4 (size) + 8 (requestID) + 4 (errorCode)
	MaxPayloadSize     = 128 * 1024 * 1024
)

var (
	// ErrInvalidPayloadSize is a framing violation: the stream can no longer be trusted.
	ErrInvalidPayloadSize = errors.New("protocol: invalid payload size")
	// ErrPayloadTooLarge is returned when an encoded value exceeds MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("protocol: payload too large")
	// ErrCodec wraps every serializer failure.
	ErrCodec = errors.New("protocol: codec error")
)

// ErrorCode is the failure kind carried by a response header.
type ErrorCode int32

const (
	OK                  ErrorCode = 0
	UnknownMethod       ErrorCode = 1
	ArgumentDecodeError ErrorCode = 2
	ServerInternalError ErrorCode = 3
)

func (c ErrorCode) String() string {
	switch c {
	case OK:
		return "ok"
	case UnknownMethod:
		return "unknown method"
	case ArgumentDecodeError:
		return "argument decode error"
	case ServerInternalError:
		return "server internal error"
	default:
		return fmt.Sprintf("error code %d", int32(c))
	}
}

// RequestHeader is the fixed envelope in front of every request payload.
type RequestHeader struct {
	PayloadSize int32
	RequestID   int64
	ServiceID   uint16
	MethodID    uint16
}

// ResponseHeader is the fixed envelope in front of every response payload.
type ResponseHeader struct {
	PayloadSize int32
	RequestID   int64
	ErrorCode   ErrorCode
}

func checkPayloadSize(size int32) error {
	if size < 0 || size > MaxPayloadSize {
		return fmt.Errorf("%w: %d", ErrInvalidPayloadSize, size)
	}
	return nil
}

// TryReadRequestHeader decodes a request header from the front of buf.
// ok is false when fewer than RequestHeaderSize bytes are buffered; that is
// not an error, the caller should read more and retry.
func TryReadRequestHeader(buf []byte) (h RequestHeader, ok bool, err error) {
	if len(buf) < RequestHeaderSize {
		return h, false, nil
	}
	h.PayloadSize = int32(binary.LittleEndian.Uint32(buf[0:4]))
	if err := checkPayloadSize(h.PayloadSize); err != nil {
		return h, false, err
	}
	h.RequestID = int64(binary.LittleEndian.Uint64(buf[4:12]))
	h.ServiceID = binary.LittleEndian.Uint16(buf[12:14])
	h.MethodID = binary.LittleEndian.Uint16(buf[14:16])
	return h, true, nil
}

// TryReadResponseHeader is the response-side counterpart of TryReadRequestHeader.
func TryReadResponseHeader(buf []byte) (h ResponseHeader, ok bool, err error) {
	if len(buf) < ResponseHeaderSize {
		return h, false, nil
	}
	h.PayloadSize = int32(binary.LittleEndian.Uint32(buf[0:4]))
	if err := checkPayloadSize(h.PayloadSize); err != nil {
		return h, false, err
	}
	h.RequestID = int64(binary.LittleEndian.Uint64(buf[4:12]))
	h.ErrorCode = ErrorCode(binary.LittleEndian.Uint32(buf[12:16]))
	return h, true, nil
}

// ReadBody decodes a payload into a fresh T.
func ReadBody[T any](c codec.Codec, body []byte) (T, error) {
	var v T
	if err := c.Decode(body, &v); err != nil {
		return v, fmt.Errorf("%w: decode %T: %w", ErrCodec, v, err)
	}
	return v, nil
}

// ReadBodyInto decodes a payload into the value pointed to by v.
func ReadBodyInto(c codec.Codec, body []byte, v any) error {
	if err := c.Decode(body, v); err != nil {
		return fmt.Errorf("%w: decode %T: %w", ErrCodec, v, err)
	}
	return nil
}

func encodePayload(c codec.Codec, v any) ([]byte, error) {
	payload, err := c.Encode(v)
	if err != nil {
		return nil, fmt.Errorf("%w: encode %T: %w", ErrCodec, v, err)
	}
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	return payload, nil
}

// WriteRequest serializes arg and returns one contiguous request frame.
// Nothing is returned on failure, so a partial frame can never reach the wire.
func WriteRequest(c codec.Codec, arg any, requestID int64, serviceID, methodID uint16) ([]byte, error) {
	payload, err := encodePayload(c, arg)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, RequestHeaderSize+len(payload))
	PutRequestHeader(frame, RequestHeader{
		PayloadSize: int32(len(payload)),
		RequestID:   requestID,
		ServiceID:   serviceID,
		MethodID:    methodID,
	})
	copy(frame[RequestHeaderSize:], payload)
	return frame, nil
}

// WriteResponse serializes result and returns one contiguous OK response frame.
func WriteResponse(c codec.Codec, result any, requestID int64) ([]byte, error) {
	payload, err := encodePayload(c, result)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, ResponseHeaderSize+len(payload))
	PutResponseHeader(frame, ResponseHeader{
		PayloadSize: int32(len(payload)),
		RequestID:   requestID,
		ErrorCode:   OK,
	})
	copy(frame[ResponseHeaderSize:], payload)
	return frame, nil
}

// WriteErrorResponse returns a header-only response frame carrying code.
func WriteErrorResponse(code ErrorCode, requestID int64) []byte {
	frame := make([]byte, ResponseHeaderSize)
	PutResponseHeader(frame, ResponseHeader{RequestID: requestID, ErrorCode: code})
	return frame
}

// PutRequestHeader writes h into the first RequestHeaderSize bytes of buf.
func PutRequestHeader(buf []byte, h RequestHeader) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.PayloadSize))
	binary.LittleEndian.PutUint64(buf[4:12], uint64(h.RequestID))
	binary.LittleEndian.PutUint16(buf[12:14], h.ServiceID)
	binary.LittleEndian.PutUint16(buf[14:16], h.MethodID)
}

// PutResponseHeader writes h into the first ResponseHeaderSize bytes of buf.
func PutResponseHeader(buf []byte, h ResponseHeader) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.PayloadSize))
	binary.LittleEndian.PutUint64(buf[4:12], uint64(h.RequestID))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(h.ErrorCode))
}
