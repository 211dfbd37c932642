package client

import "context"

// Invoke is the typed form of Client.Call.
func Invoke[TArg, TReply any](ctx context.Context, c *Client, serviceID, methodID uint16, arg TArg) (TReply, error) {
	var reply TReply
	err := c.Call(ctx, serviceID, methodID, arg, &reply)
	return reply, err
}

// Stub is a typed handle on one remote method.
//
//	multiply := client.NewStub[Args, int](1024, 1)
//	product, err := multiply.Call(ctx, c, Args{A: 9, B: 9})
type Stub[TArg, TReply any] struct {
	ServiceID uint16
	MethodID  uint16
}

func NewStub[TArg, TReply any](serviceID, methodID uint16) Stub[TArg, TReply] {
	return Stub[TArg, TReply]{ServiceID: serviceID, MethodID: methodID}
}

func (s Stub[TArg, TReply]) Call(ctx context.Context, c *Client, arg TArg) (TReply, error) {
	return Invoke[TArg, TReply](ctx, c, s.ServiceID, s.MethodID, arg)
}
