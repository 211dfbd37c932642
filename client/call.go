package client

import (
	"errors"
	"fmt"

	"idrpc/protocol"
)

var (
	// ErrClientStopped is returned by every call that could not complete because
	// the client stopped, whatever the reason.
	ErrClientStopped = errors.New("rpc client: client is stopped")

	// ErrConnectionLost additionally marks stops caused by the transport.
	ErrConnectionLost = errors.New("rpc client: connection lost")

	// Server-reported failures, matched by errors.Is against a *ServerError.
	ErrUnknownMethod  = errors.New("rpc client: unknown method")
	ErrArgumentDecode = errors.New("rpc client: server could not decode argument")
	ErrServerInternal = errors.New("rpc client: server internal error")
)

// ServerError is a failure reported by the server in a response header.
type ServerError struct {
	Code protocol.ErrorCode
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("rpc client: server error: %v", e.Code)
}

func (e *ServerError) Is(target error) bool {
	switch target {
	case ErrUnknownMethod:
		return e.Code == protocol.UnknownMethod
	case ErrArgumentDecode:
		return e.Code == protocol.ArgumentDecodeError
	case ErrServerInternal:
		return e.Code == protocol.ServerInternalError
	}
	return false
}

// CodeOf extracts the wire error code from an error returned by Call.
func CodeOf(err error) (protocol.ErrorCode, bool) {
	var se *ServerError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return protocol.OK, false
}

// pendingCall is an in-flight request waiting for its response.
// done is buffered and written exactly once: whoever removes the call from the
// pending table owns that write.
type pendingCall struct {
	requestID int64
	serviceID uint16
	methodID  uint16
	reply     any // pointer the response payload is decoded into
	done      chan error
}

func (p *pendingCall) finish(err error) {
	p.done <- err
}
