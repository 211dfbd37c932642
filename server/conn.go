package server

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"idrpc/message"
	"idrpc/protocol"
	"idrpc/registry"
	"idrpc/service"
)

// conn is the server side of one accepted connection.
//
// Lifecycle: Accepted → Serving → Closing → Closed. Closing is triggered by
// EOF, a framing violation, a write failure or server shutdown, and happens
// exactly once.
type conn struct {
	server *Server
	rwc    net.Conn
	remote string
	logger *zap.Logger

	ctx    context.Context // Cancelled on close; handed to every handler
	cancel context.CancelFunc

	writeMu   sync.Mutex     // One frame on the wire at a time
	inflight  sync.WaitGroup // Dispatched calls; Add only from the read loop
	closeOnce sync.Once
}

func newConn(s *Server, rwc net.Conn) *conn {
	ctx, cancel := context.WithCancel(s.ctx)
	remote := rwc.RemoteAddr().String()
	return &conn{
		server: s,
		rwc:    rwc,
		remote: remote,
		logger: s.logger.With(zap.String("remote", remote)),
		ctx:    ctx,
		cancel: cancel,
	}
}

// serve runs the read loop. Reads must be sequential to keep frame boundaries,
// but every request is dispatched on its own goroutine so a slow handler never
// blocks the requests behind it.
func (c *conn) serve() {
	c.logger.Debug("connection opened")
	defer c.server.connWG.Done()

	reader := protocol.NewReader(c.rwc, c.server.opts.readBufferSize)
	table := c.server.table
	cdc := c.server.opts.codec

	for {
		header, body, err := reader.ReadRequest()
		if err != nil {
			c.readFailed(err)
			break
		}

		m, ok := table.Method(header.ServiceID, header.MethodID)
		if !ok {
			c.logger.Warn("unknown method",
				zap.Int64("request_id", header.RequestID),
				zap.Uint16("service_id", header.ServiceID),
				zap.Uint16("method_id", header.MethodID),
			)
			if c.write(protocol.WriteErrorResponse(protocol.UnknownMethod, header.RequestID)) != nil {
				break
			}
			continue
		}

		// body aliases the reader's buffer, so decode before the next read.
		arg, err := m.Handler().ReadArgument(cdc, body)
		if err != nil {
			c.logger.Warn("decode argument failed",
				zap.Int64("request_id", header.RequestID),
				zap.String("method", m.FullName()),
				zap.Error(err),
			)
			if c.write(protocol.WriteErrorResponse(protocol.ArgumentDecodeError, header.RequestID)) != nil {
				break
			}
			continue
		}

		c.inflight.Add(1)
		go c.dispatch(header, m, arg)
	}

	if c.server.shuttingDown() && c.ctx.Err() == nil {
		// Graceful: answer what was already accepted, then close.
		c.inflight.Wait()
		c.close()
		return
	}
	c.close()
	c.inflight.Wait()
}

func (c *conn) readFailed(err error) {
	switch {
	case errors.Is(err, protocol.ErrInvalidPayloadSize):
		c.logger.Error("framing violation", zap.Error(err))
	case errors.Is(err, io.EOF), c.ctx.Err() != nil, c.server.shuttingDown():
		// Peer hung up or we are closing.
	default:
		c.logger.Debug("read failed", zap.Error(err))
	}
}

// dispatch runs one call through the middleware chain and writes its response.
func (c *conn) dispatch(header protocol.RequestHeader, m *registry.MethodDescriptor, arg any) {
	defer c.inflight.Done()

	ctx := service.WithRequestInfo(c.ctx, service.RequestInfo{
		RequestID:  header.RequestID,
		ServiceID:  header.ServiceID,
		MethodID:   header.MethodID,
		Method:     m.FullName(),
		RemoteAddr: c.remote,
	})
	req := &message.Request{
		RequestID: header.RequestID,
		ServiceID: header.ServiceID,
		MethodID:  header.MethodID,
		Method:    m.FullName(),
		Arg:       arg,
		Handler:   m.Handler(),
	}
	resp := c.server.handler(ctx, req)

	// Nobody is left to read the answer.
	if c.ctx.Err() != nil {
		return
	}

	if resp.Error != nil {
		c.logger.Error("handler failed",
			zap.Int64("request_id", header.RequestID),
			zap.String("method", m.FullName()),
			zap.Error(resp.Error),
		)
		c.write(protocol.WriteErrorResponse(protocol.ServerInternalError, header.RequestID))
		return
	}

	frame, err := m.Handler().WriteResult(c.server.opts.codec, header.RequestID, resp.Result)
	if err != nil {
		c.logger.Error("encode result failed",
			zap.Int64("request_id", header.RequestID),
			zap.String("method", m.FullName()),
			zap.Error(err),
		)
		frame = protocol.WriteErrorResponse(protocol.ServerInternalError, header.RequestID)
	}
	c.write(frame)
}

// write sends one complete frame. A failed write may leave a torn frame on the
// wire, so it closes the connection.
func (c *conn) write(frame []byte) error {
	c.writeMu.Lock()
	_, err := c.rwc.Write(frame)
	c.writeMu.Unlock()
	if err != nil {
		if c.ctx.Err() == nil {
			c.logger.Error("write response failed", zap.Error(err))
		}
		c.close()
	}
	return err
}

// stopReading unblocks the read loop without touching the write side.
func (c *conn) stopReading() {
	_ = c.rwc.SetReadDeadline(time.Now())
}

// close cancels the connection scope and releases the transport, once.
func (c *conn) close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.rwc.Close()
		c.server.removeConn(c)
		c.logger.Debug("connection closed")
	})
	return err
}
