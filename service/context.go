package service

import "context"

// RequestInfo describes the request a handler is serving.
type RequestInfo struct {
	RequestID  int64
	ServiceID  uint16
	MethodID   uint16
	Method     string // handler name, e.g. "Arith.Add"
	RemoteAddr string
}

type requestInfoKey struct{}

// WithRequestInfo returns a copy of ctx carrying info.
func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// RequestInfoFromContext returns the RequestInfo stored by the server, if any.
func RequestInfoFromContext(ctx context.Context) (RequestInfo, bool) {
	info, ok := ctx.Value(requestInfoKey{}).(RequestInfo)
	return info, ok
}
