// Package client implements the calling side of the protocol.
//
// A Client multiplexes any number of concurrent calls over one connection.
// Each call gets a request ID under the write lock, so IDs hit the wire in
// strictly increasing order, and a single background goroutine (recvLoop)
// reads responses and routes them back by ID, in whatever order they arrive.
//
//	goroutine-1 ──Call(id=1)──┐
//	goroutine-2 ──Call(id=2)──┼──→ single TCP conn ──→ Server
//	goroutine-3 ──Call(id=3)──┘
//
//	recvLoop:  ←── response(id=2) → pending[2] → goroutine-2 wakes up
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"idrpc/codec"
	"idrpc/protocol"
)

type state int32

const (
	stateConnected state = iota
	stateStopping
	stateStopped
)

// Client owns one connection and the calls in flight on it.
type Client struct {
	conn   net.Conn
	codec  codec.Codec
	logger *zap.Logger
	opts   *options

	sending sync.Mutex // Serializes id assignment + frame write
	nextID  int64      // Last issued request ID (protected by sending)
	state   atomic.Int32
	pending sync.Map // map[int64]*pendingCall

	done chan struct{} // Closed once the client is stopped
}

// Dial connects to addr over TCP and starts the receive loop.
func Dial(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	d := net.Dialer{Timeout: o.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("rpc client: dial %s: %w", addr, err)
	}
	return newClient(conn, o), nil
}

// NewClient wraps an established connection. The Client takes ownership of conn.
func NewClient(conn net.Conn, opts ...Option) *Client {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return newClient(conn, o)
}

func newClient(conn net.Conn, o *options) *Client {
	c := &Client{
		conn:   conn,
		codec:  o.codec,
		logger: o.logger.Named("client").With(zap.String("remote", conn.RemoteAddr().String())),
		opts:   o,
		done:   make(chan struct{}),
	}
	go c.recvLoop()
	return c
}

// Call invokes (serviceID, methodID) with arg and decodes the result into reply,
// which must be a pointer (or nil to discard the result). It blocks until the
// response arrives, the client stops, or ctx ends. Abandoning a call through
// ctx does not cancel the work on the server; its response is dropped.
func (c *Client) Call(ctx context.Context, serviceID, methodID uint16, arg, reply any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	call := &pendingCall{
		serviceID: serviceID,
		methodID:  methodID,
		reply:     reply,
		done:      make(chan error, 1),
	}
	if err := c.send(ctx, call, arg); err != nil {
		return err
	}

	select {
	case err := <-call.done:
		return err
	case <-ctx.Done():
		if _, ok := c.pending.LoadAndDelete(call.requestID); !ok {
			// recvLoop or stop already owns the slot and will fill it.
			return <-call.done
		}
		return ctx.Err()
	}
}

// send assigns the request ID and writes the frame while holding the write lock.
func (c *Client) send(ctx context.Context, call *pendingCall, arg any) error {
	c.sending.Lock()

	if state(c.state.Load()) != stateConnected {
		c.sending.Unlock()
		return ErrClientStopped
	}

	id := c.nextID + 1
	frame, err := protocol.WriteRequest(c.codec, arg, id, call.serviceID, call.methodID)
	if err != nil {
		// Nothing was written, the connection is still usable.
		c.sending.Unlock()
		return err
	}
	c.nextID = id
	call.requestID = id

	// Register before writing so recvLoop can never see a response it doesn't know.
	c.pending.Store(id, call)

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
	}
	_, err = c.conn.Write(frame)
	if _, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(time.Time{})
	}
	c.sending.Unlock()

	if err != nil {
		c.pending.Delete(id)
		// A failed write may have left half a frame on the wire.
		err = fmt.Errorf("%w: %w: write: %v", ErrClientStopped, ErrConnectionLost, err)
		c.stop(err)
		return err
	}
	return nil
}

// Stop closes the connection and fails every pending call with ErrClientStopped.
// It is safe to call any number of times from any goroutine.
func (c *Client) Stop() error {
	return c.stop(ErrClientStopped)
}

// Done is closed once the client has stopped.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) stop(cause error) error {
	if !c.state.CompareAndSwap(int32(stateConnected), int32(stateStopping)) {
		return nil
	}

	// Closing first unblocks recvLoop and any writer stuck on a full socket.
	err := c.conn.Close()

	// Once stopped is published under the write lock, no call can register
	// itself any more, so the sweep below sees every pending call.
	c.sending.Lock()
	c.state.Store(int32(stateStopped))
	c.sending.Unlock()
	close(c.done)

	c.pending.Range(func(key, _ any) bool {
		if v, ok := c.pending.LoadAndDelete(key); ok {
			v.(*pendingCall).finish(cause)
		}
		return true
	})
	return err
}

// recvLoop runs in a dedicated goroutine for the lifetime of the connection.
// Reads must be sequential to keep frame boundaries, so it is the only reader.
func (c *Client) recvLoop() {
	reader := protocol.NewReader(c.conn, c.opts.readBufferSize)
	var err error
	for {
		var header protocol.ResponseHeader
		var body []byte
		header, body, err = reader.ReadResponse()
		if err != nil {
			break
		}

		v, ok := c.pending.LoadAndDelete(header.RequestID)
		if !ok {
			// Abandoned or unknown call: skip its payload.
			c.logger.Debug("discarding response", zap.Int64("request_id", header.RequestID))
			continue
		}
		call := v.(*pendingCall)

		if header.ErrorCode != protocol.OK {
			call.finish(&ServerError{Code: header.ErrorCode})
			continue
		}
		if call.reply != nil {
			if derr := protocol.ReadBodyInto(c.codec, body, call.reply); derr != nil {
				c.logger.Warn("decode response failed",
					zap.Int64("request_id", header.RequestID),
					zap.Uint16("service_id", call.serviceID),
					zap.Uint16("method_id", call.methodID),
					zap.Error(derr),
				)
				call.finish(derr)
				continue
			}
		}
		call.finish(nil)
	}

	if state(c.state.Load()) == stateConnected {
		if errors.Is(err, protocol.ErrInvalidPayloadSize) {
			c.logger.Error("receive loop exit", zap.Error(err))
		} else {
			c.logger.Info("receive loop exit", zap.Error(err))
		}
	}
	c.stop(fmt.Errorf("%w: %w: %v", ErrClientStopped, ErrConnectionLost, err))
}
