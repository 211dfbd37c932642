// Package message defines the values passed through the server's middleware chain.
//
// By the time a Request exists the frame has been parsed and the argument decoded;
// middleware only ever sees typed values, never bytes.
package message

import "idrpc/service"

// Request is one decoded call on its way to a handler.
type Request struct {
	RequestID int64
	ServiceID uint16
	MethodID  uint16
	Method    string // Format: "ServiceName.MethodName", e.g., "Arith.Add"
	Arg       any    // Decoded argument, already of the method's argument type

	Handler service.Handler // Resolved by the serve loop before dispatch
}

// Response is what a handler (or a middleware short-circuiting it) produced.
//
//   - On success: Result holds the value to encode, Error is nil.
//   - On failure: Error is non-nil and Result is ignored. The cause never
//     crosses the wire; the peer only sees ServerInternalError.
type Response struct {
	Result any
	Error  error
}
